package bot

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"FamilyPoints/internal/dialogue"
	"FamilyPoints/internal/ledger"
	"FamilyPoints/internal/model"
)

const helpText = `<b>Family Points</b>

/start – open the menu (also /points)
/cancel – abandon the current action
/leaderboard – show everyone's points
/history – show recent activity
/credit &lt;name&gt; &lt;amount&gt; &lt;reason&gt; – add points
/debit &lt;name&gt; &lt;amount&gt; &lt;reason&gt; – subtract points
/transfer &lt;from&gt; &lt;to&gt; &lt;amount&gt; &lt;reason&gt; – move points
/help – show this message`

const unknownCommandText = "Sorry, I don't understand that command. Please use the buttons or type /start to begin."

// command executes a slash command and returns the reply.
func (r *Router) command(user model.AccountID, text string) dialogue.Reply {
	fields := strings.Fields(text)
	name := strings.ToLower(fields[0])
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	args := fields[1:]

	switch name {
	case "/start", "/points":
		return r.machine.Handle(user, dialogue.Start())
	case "/cancel":
		return r.machine.Handle(user, dialogue.Cancel())
	case "/leaderboard":
		return dialogue.Reply{Text: r.views.Leaderboard()}
	case "/history":
		return dialogue.Reply{Text: r.views.History()}
	case "/help":
		return dialogue.Reply{Text: helpText}
	case "/add_account":
		return r.addAccount(user, args)
	case "/credit", "/debit":
		return r.creditOrDebit(user, name, args)
	case "/transfer":
		return r.transfer(user, args)
	}
	return dialogue.Reply{Text: unknownCommandText, Buttons: dialogue.MainMenu()}
}

func (r *Router) addAccount(user model.AccountID, args []string) dialogue.Reply {
	if user != r.adminID {
		r.logger.Warn("add_account refused", zap.String("user", string(user)))
		return dialogue.Reply{Text: "Only the administrator can add accounts."}
	}
	if len(args) < 2 {
		return dialogue.Reply{Text: "Usage: /add_account &lt;name&gt; &lt;telegram id&gt;"}
	}
	id := args[len(args)-1]
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return dialogue.Reply{Text: "The account id must be a numeric Telegram id."}
	}
	name := strings.Join(args[:len(args)-1], " ")
	if err := r.registry.Add(model.AccountID(id), name); err != nil {
		if errors.Is(err, ledger.ErrAccountExists) {
			return dialogue.Reply{Text: fmt.Sprintf("Account %s already exists.", html.EscapeString(id))}
		}
		r.logger.Error("add account", zap.String("id", id), zap.Error(err))
		return dialogue.Reply{Text: dialogue.RejectionText(err, r.registry.Resolve)}
	}
	return dialogue.Reply{Text: fmt.Sprintf("Added %s (%s) with 0 points.", html.EscapeString(name), html.EscapeString(id))}
}

func (r *Router) creditOrDebit(user model.AccountID, cmd string, args []string) dialogue.Reply {
	usage := dialogue.Reply{Text: fmt.Sprintf("Usage: %s &lt;name&gt; &lt;amount&gt; &lt;reason&gt;", cmd)}
	target, rest, ok := r.takeAccount(args)
	if !ok {
		return r.unknownName(args, usage)
	}
	amount, reason, ok := amountAndReason(rest)
	if !ok {
		return usage
	}
	op := model.OpCredit
	if cmd == "/debit" {
		op = model.OpDebit
	}
	return r.apply(ledger.Request{Operation: op, Performer: user, Target: target, Amount: amount, Reason: reason})
}

func (r *Router) transfer(user model.AccountID, args []string) dialogue.Reply {
	usage := dialogue.Reply{Text: "Usage: /transfer &lt;from&gt; &lt;to&gt; &lt;amount&gt; &lt;reason&gt;"}
	source, rest, ok := r.takeAccount(args)
	if !ok {
		return r.unknownName(args, usage)
	}
	target, rest, ok := r.takeAccount(rest)
	if !ok {
		return r.unknownName(rest, usage)
	}
	amount, reason, ok := amountAndReason(rest)
	if !ok {
		return usage
	}
	return r.apply(ledger.Request{Operation: model.OpTransfer, Performer: user, Source: source, Target: target, Amount: amount, Reason: reason})
}

func (r *Router) apply(req ledger.Request) dialogue.Reply {
	res, err := r.engine.Apply(req)
	if err != nil {
		return dialogue.Reply{Text: dialogue.RejectionText(err, r.registry.Resolve)}
	}
	return dialogue.Reply{Text: dialogue.ResultText(res, r.registry.Resolve)}
}

// takeAccount matches the longest leading run of args that names an account,
// so names with spaces work without quoting. At least one argument is always
// left for the caller.
func (r *Router) takeAccount(args []string) (model.AccountID, []string, bool) {
	for n := len(args) - 1; n >= 1; n-- {
		if id, ok := r.registry.LookupByName(strings.Join(args[:n], " ")); ok {
			return id, args[n:], true
		}
	}
	return "", nil, false
}

func (r *Router) unknownName(args []string, usage dialogue.Reply) dialogue.Reply {
	if len(args) < 2 {
		return usage
	}
	return dialogue.Reply{Text: fmt.Sprintf("I don't know anyone called %s.", html.EscapeString(args[0]))}
}

func amountAndReason(args []string) (int64, string, bool) {
	if len(args) < 2 {
		return 0, "", false
	}
	amount, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return amount, strings.Join(args[1:], " "), true
}
