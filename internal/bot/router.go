// Package bot routes Telegram updates to commands and per-user dialogues.
package bot

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"FamilyPoints/internal/dialogue"
	"FamilyPoints/internal/ledger"
	"FamilyPoints/internal/model"
	"FamilyPoints/internal/notifier"
)

// Messenger delivers replies. *notifier.TelegramNotifier implements it.
type Messenger interface {
	SendWithRetry(ctx context.Context, chatID, text string, keyboard [][]notifier.InlineButton) (int64, error)
	EditOrSend(ctx context.Context, chatID string, messageID int64, text string, keyboard [][]notifier.InlineButton) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// Deps are the collaborators of a Router.
type Deps struct {
	Messenger Messenger
	Machine   *dialogue.Machine
	Registry  *ledger.Registry
	Engine    *ledger.Engine
	Views     *Views
	AdminID   model.AccountID
	Logger    *zap.Logger
}

// Router turns updates into dialogue inputs and command calls.
type Router struct {
	messenger Messenger
	machine   *dialogue.Machine
	registry  *ledger.Registry
	engine    *ledger.Engine
	views     *Views
	adminID   model.AccountID
	logger    *zap.Logger
}

// NewRouter creates a Router.
func NewRouter(deps Deps) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		messenger: deps.Messenger,
		machine:   deps.Machine,
		registry:  deps.Registry,
		engine:    deps.Engine,
		views:     deps.Views,
		adminID:   deps.AdminID,
		logger:    logger.Named("bot"),
	}
}

const refusalText = "Sorry, this bot is only available to family members."

// HandleUpdate processes one update. It is safe to call from the polling loop.
func (r *Router) HandleUpdate(ctx context.Context, u notifier.Update) {
	switch {
	case u.CallbackQuery != nil:
		r.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		r.handleMessage(ctx, u.Message)
	}
}

func (r *Router) allowed(user model.AccountID) bool {
	return user == r.adminID || r.registry.IsMember(user)
}

func (r *Router) handleMessage(ctx context.Context, msg *notifier.Message) {
	if msg.From == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	user := model.AccountID(notifier.FormatID(msg.From.ID))
	chat := notifier.FormatID(msg.Chat.ID)

	if !r.allowed(user) {
		r.logger.Warn("refused message from unregistered user", zap.String("user", string(user)))
		r.send(ctx, chat, dialogue.Reply{Text: refusalText})
		return
	}

	if strings.HasPrefix(text, "/") {
		r.send(ctx, chat, r.command(user, text))
		return
	}
	r.send(ctx, chat, r.machine.Handle(user, dialogue.Text(text)))
}

func (r *Router) handleCallback(ctx context.Context, cb *notifier.CallbackQuery) {
	if err := r.messenger.AnswerCallback(ctx, cb.ID); err != nil {
		r.logger.Warn("answer callback", zap.Error(err))
	}
	user := model.AccountID(notifier.FormatID(cb.From.ID))

	if cb.Message == nil {
		if !r.allowed(user) {
			return
		}
		r.send(ctx, string(user), r.machine.Handle(user, dialogue.Press(cb.Data)))
		return
	}

	chat := notifier.FormatID(cb.Message.Chat.ID)
	if !r.allowed(user) {
		r.logger.Warn("refused button press from unregistered user", zap.String("user", string(user)))
		r.send(ctx, chat, dialogue.Reply{Text: refusalText})
		return
	}
	// In a shared chat the pressed message may be another member's prompt; an
	// idle presser gets a fresh reply instead of overwriting it.
	private := chat == string(user)
	active := r.machine.State(user) != dialogue.StateIdle
	reply := r.machine.Handle(user, dialogue.Press(cb.Data))
	if !private && !active {
		r.send(ctx, chat, reply)
		return
	}
	if err := r.messenger.EditOrSend(ctx, chat, cb.Message.MessageID, reply.Text, keyboard(reply.Buttons)); err != nil {
		r.logger.Error("deliver reply", zap.String("chat", chat), zap.Error(err))
	}
}

func (r *Router) send(ctx context.Context, chat string, reply dialogue.Reply) {
	if _, err := r.messenger.SendWithRetry(ctx, chat, reply.Text, keyboard(reply.Buttons)); err != nil {
		r.logger.Error("deliver reply", zap.String("chat", chat), zap.Error(err))
	}
}

func keyboard(rows [][]dialogue.Button) [][]notifier.InlineButton {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]notifier.InlineButton, len(rows))
	for i, row := range rows {
		out[i] = make([]notifier.InlineButton, len(row))
		for j, b := range row {
			out[i][j] = notifier.InlineButton{Text: b.Label, CallbackData: b.Token}
		}
	}
	return out
}
