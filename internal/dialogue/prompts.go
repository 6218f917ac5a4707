package dialogue

import (
	"errors"
	"fmt"
	"html"

	"FamilyPoints/internal/ledger"
	"FamilyPoints/internal/model"
)

var cancelRow = []Button{{Label: "❌ Cancel", Token: TokenCancel}}

// MainMenu is the keyboard shown in ChooseOperation.
func MainMenu() [][]Button {
	return [][]Button{
		{{Label: "➕ Add Points", Token: TokenCredit}},
		{{Label: "➖ Subtract Points", Token: TokenDebit}},
		{{Label: "↔️ Transfer Points", Token: TokenTransfer}},
		{{Label: "📊 Leaderboard", Token: TokenLeaderboard}},
		{{Label: "📜 History", Token: TokenHistory}},
	}
}

func (m *Machine) menu(text string) Reply {
	return Reply{Text: text, Buttons: MainMenu()}
}

func (m *Machine) withMenu(text string) Reply {
	return Reply{Text: text + "\n\nWhat would you like to do next?", Buttons: MainMenu()}
}

// prompt renders the question asked on entering st.
func (m *Machine) prompt(st state) Reply {
	switch st := st.(type) {
	case chooseOperation:
		return m.menu("What would you like to do?")
	case selectAccount:
		var q string
		switch st.op {
		case model.OpCredit:
			q = "Who do you want to add points to?"
		case model.OpDebit:
			q = "Who do you want to subtract points from?"
		default:
			q = "Who do you want to transfer points FROM?"
		}
		return Reply{Text: q, Buttons: accountRows(m.firstChoices(st.op))}
	case selectSecond:
		return Reply{
			Text:    fmt.Sprintf("Who do you want to transfer points TO from %s?", m.escName(st.source)),
			Buttons: accountRows(m.secondChoices(st.source)),
		}
	case enterAmount:
		var q string
		switch st.op {
		case model.OpCredit:
			q = fmt.Sprintf("How many points do you want to add to %s?", m.escName(st.target))
		case model.OpDebit:
			q = fmt.Sprintf("How many points do you want to subtract from %s?", m.escName(st.target))
		default:
			q = fmt.Sprintf("How many points do you want to transfer from %s to %s?", m.escName(st.source), m.escName(st.target))
		}
		return Reply{Text: q, Buttons: [][]Button{cancelRow}}
	case enterReason:
		return Reply{
			Text:    fmt.Sprintf("Please provide a reason for %s.", m.describe(st.op, st.source, st.target, st.amount)),
			Buttons: [][]Button{cancelRow},
		}
	case awaitConfirmation:
		r := st.req
		return Reply{
			Text: fmt.Sprintf("Please confirm:\n<b>%s</b>\nReason: <i>%s</i>",
				m.describe(r.Operation, r.Source, r.Target, r.Amount), html.EscapeString(r.Reason)),
			Buttons: [][]Button{{
				{Label: "✅ Confirm", Token: TokenConfirm},
				{Label: "❌ Cancel", Token: TokenCancel},
			}},
		}
	}
	return Reply{Text: "Send /start to begin."}
}

// reprompt answers input the current state does not accept.
func (m *Machine) reprompt(st state) Reply {
	var msg string
	switch st.(type) {
	case idle:
		return Reply{Text: "I work with buttons and a few commands. Send /start to see what I can do.", Buttons: MainMenu()}
	case chooseOperation:
		msg = "Please choose an action using the buttons below."
	case selectAccount, selectSecond:
		msg = "Please pick an account using the buttons below."
	case enterAmount:
		msg = "Please enter the amount in digits (e.g., 10):"
	case enterReason:
		msg = "Please type a reason for this action:"
	case awaitConfirmation:
		msg = "Please confirm or cancel using the buttons below."
	}
	return m.guide(msg, st)
}

// guide keeps the buttons of st and replaces the question with msg.
func (m *Machine) guide(msg string, st state) Reply {
	return Reply{Text: msg, Buttons: m.prompt(st).Buttons}
}

func (m *Machine) describe(op model.Operation, source, target model.AccountID, amount int64) string {
	switch op {
	case model.OpCredit:
		return fmt.Sprintf("adding %d points to %s", amount, m.escName(target))
	case model.OpDebit:
		return fmt.Sprintf("subtracting %d points from %s", amount, m.escName(target))
	default:
		return fmt.Sprintf("transferring %d points from %s to %s", amount, m.escName(source), m.escName(target))
	}
}

func (m *Machine) escName(id model.AccountID) string {
	return html.EscapeString(m.name(id))
}

func accountRows(accounts []model.Account) [][]Button {
	rows := make([][]Button, 0, len(accounts)+1)
	for _, a := range accounts {
		label := a.DisplayName
		if a.Pool {
			label = "🎯 " + label
		}
		rows = append(rows, []Button{{Label: label, Token: AccountToken(a.ID)}})
	}
	return append(rows, cancelRow)
}

func insufficientText(name string, have int64) string {
	return fmt.Sprintf("%s doesn't have enough points. Current: %d points. Action cancelled.",
		html.EscapeString(name), have)
}

// ResultText describes a committed operation and the new balances.
func ResultText(res *ledger.Result, name func(model.AccountID) string) string {
	e := res.Entry
	esc := func(id model.AccountID) string { return html.EscapeString(name(id)) }
	reason := html.EscapeString(e.Reason)
	switch e.Operation {
	case model.OpCredit:
		return fmt.Sprintf("%s added %d points to %s (Reason: %s).\nNew total for %s: %d points.",
			esc(e.PerformerID), e.Amount, esc(e.TargetID), reason, esc(e.TargetID), res.Balances[e.TargetID])
	case model.OpDebit:
		return fmt.Sprintf("%s subtracted %d points from %s (Reason: %s).\nNew total for %s: %d points.",
			esc(e.PerformerID), e.Amount, esc(e.TargetID), reason, esc(e.TargetID), res.Balances[e.TargetID])
	default:
		return fmt.Sprintf("%s transferred %d points from %s to %s (Reason: %s).\nNew totals:\n%s: %d points\n%s: %d points.",
			esc(e.PerformerID), e.Amount, esc(e.SourceID), esc(e.TargetID), reason,
			esc(e.SourceID), res.Balances[e.SourceID], esc(e.TargetID), res.Balances[e.TargetID])
	}
}

// RejectionText explains why the ledger refused an operation.
func RejectionText(err error, name func(model.AccountID) string) string {
	var insufficient *ledger.InsufficientFundsError
	switch {
	case errors.As(err, &insufficient):
		return insufficientText(name(insufficient.Account), insufficient.Have)
	case errors.Is(err, ledger.ErrSelfTransfer):
		return "Cannot transfer points to the same account. Action cancelled."
	case errors.Is(err, ledger.ErrTransferSourceIneligible):
		return "Points cannot be transferred out of that account. Action cancelled."
	case errors.Is(err, ledger.ErrDebitIneligible):
		return "Points cannot be subtracted from that account. Action cancelled."
	case errors.Is(err, ledger.ErrInvalidAmount):
		return "Amount must be a positive number. Action cancelled."
	case errors.Is(err, ledger.ErrInvalidReason):
		return "Reasons should be descriptive, not just numbers. Action cancelled."
	case errors.Is(err, ledger.ErrUnknownAccount):
		return "That account is not registered. Action cancelled."
	case errors.Is(err, ledger.ErrAccountExists):
		return "That account already exists."
	case errors.Is(err, ledger.ErrPersist):
		return "Could not save the change, so nothing was applied. Please try again later."
	}
	return "Action failed: " + html.EscapeString(err.Error())
}
