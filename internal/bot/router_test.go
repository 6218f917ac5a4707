package bot

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"FamilyPoints/internal/dialogue"
	"FamilyPoints/internal/ledger"
	"FamilyPoints/internal/model"
	"FamilyPoints/internal/notifier"
)

const (
	papa   int64 = 15260416
	mama   int64 = 441113371
	danya  int64 = 1059153162
	admin  int64 = 99
	outsdr int64 = 777
)

type sent struct {
	Chat      string
	MessageID int64
	Text      string
	Keyboard  [][]notifier.InlineButton
}

type fakeMessenger struct {
	mu       sync.Mutex
	sends    []sent
	edits    []sent
	answered []string
	editErr  error
}

func (f *fakeMessenger) SendWithRetry(_ context.Context, chatID, text string, kb [][]notifier.InlineButton) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sent{Chat: chatID, Text: text, Keyboard: kb})
	return int64(len(f.sends)), nil
}

func (f *fakeMessenger) EditOrSend(_ context.Context, chatID string, messageID int64, text string, kb [][]notifier.InlineButton) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, sent{Chat: chatID, MessageID: messageID, Text: text, Keyboard: kb})
	return f.editErr
}

func (f *fakeMessenger) AnswerCallback(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, id)
	return nil
}

func (f *fakeMessenger) last() sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends[len(f.sends)-1]
}

type routerFixture struct {
	msg    *fakeMessenger
	router *Router
	store  *ledger.Store
	eng    *ledger.Engine
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store, err := ledger.Open(filepath.Join(t.TempDir(), "points_data.json"), ledger.Options{
		Members: map[model.AccountID]string{
			model.AccountID(notifier.FormatID(papa)):  "Papa",
			model.AccountID(notifier.FormatID(mama)):  "Mama",
			model.AccountID(notifier.FormatID(danya)): "Danya",
		},
		Pool:   ledger.PoolPolicy{ID: "goal", Name: "Goal Pool"},
		Logger: logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := ledger.NewRegistry(store)
	eng := ledger.NewEngine(store, nil, logger)
	views := NewViews(store, reg, 10)
	machine := dialogue.New(dialogue.Deps{
		Accounts: reg, Balances: store, Engine: eng, Views: views, Policy: store.Policy(), Logger: logger,
	})
	msg := &fakeMessenger{}
	r := NewRouter(Deps{
		Messenger: msg, Machine: machine, Registry: reg, Engine: eng, Views: views,
		AdminID: model.AccountID(notifier.FormatID(admin)), Logger: logger,
	})
	return &routerFixture{msg: msg, router: r, store: store, eng: eng}
}

func (f *routerFixture) text(from int64, text string) sent {
	f.router.HandleUpdate(context.Background(), notifier.Update{Message: &notifier.Message{
		From: &notifier.User{ID: from}, Chat: notifier.Chat{ID: from}, Text: text,
	}})
	return f.msg.last()
}

func (f *routerFixture) press(from int64, messageID int64, data string) {
	f.router.HandleUpdate(context.Background(), notifier.Update{CallbackQuery: &notifier.CallbackQuery{
		ID: "cb", From: notifier.User{ID: from}, Data: data,
		Message: &notifier.Message{MessageID: messageID, Chat: notifier.Chat{ID: from}},
	}})
}

func (f *routerFixture) pressIn(from, chat, messageID int64, data string) {
	f.router.HandleUpdate(context.Background(), notifier.Update{CallbackQuery: &notifier.CallbackQuery{
		ID: "cb", From: notifier.User{ID: from}, Data: data,
		Message: &notifier.Message{MessageID: messageID, Chat: notifier.Chat{ID: chat}},
	}})
}

func (f *routerFixture) balance(id int64) int64 {
	b, _ := f.store.Balance(model.AccountID(notifier.FormatID(id)))
	return b
}

func TestRouter_RefusesOutsiders(t *testing.T) {
	f := newRouterFixture(t)
	out := f.text(outsdr, "/start")
	assert.Equal(t, refusalText, out.Text)
	assert.Empty(t, out.Keyboard)

	f.press(outsdr, 3, dialogue.TokenCredit)
	assert.Empty(t, f.msg.edits)
	assert.Equal(t, refusalText, f.msg.last().Text)
}

func TestRouter_StartShowsMenu(t *testing.T) {
	f := newRouterFixture(t)
	out := f.text(papa, "/start")
	assert.Equal(t, notifier.FormatID(papa), out.Chat)
	require.NotEmpty(t, out.Keyboard)
	assert.Equal(t, dialogue.TokenCredit, out.Keyboard[0][0].CallbackData)

	out = f.text(papa, "/points@FamilyPointsBot")
	assert.NotEmpty(t, out.Keyboard)
}

func TestRouter_ButtonFlowEditsMessage(t *testing.T) {
	f := newRouterFixture(t)
	f.text(papa, "/start")
	f.press(papa, 11, dialogue.TokenCredit)
	f.press(papa, 11, dialogue.AccountToken(model.AccountID(notifier.FormatID(danya))))
	f.text(papa, "4")
	f.text(papa, "tidy room")
	f.press(papa, 12, dialogue.TokenConfirm)

	assert.Equal(t, int64(4), f.balance(danya))
	require.Len(t, f.msg.edits, 3)
	assert.Equal(t, int64(12), f.msg.edits[2].MessageID)
	assert.Contains(t, f.msg.edits[2].Text, "New total for Danya: 4 points.")
	assert.Len(t, f.msg.answered, 3)
}

func TestRouter_IdlePressInGroupDoesNotEditOthersPrompt(t *testing.T) {
	const group = -1001234
	f := newRouterFixture(t)
	f.pressIn(papa, group, 20, dialogue.TokenCredit)
	require.Len(t, f.msg.sends, 1, "first press from the menu is idle, so a fresh reply")
	assert.Empty(t, f.msg.edits)

	f.pressIn(papa, group, 21, dialogue.AccountToken(model.AccountID(notifier.FormatID(danya))))
	require.Len(t, f.msg.edits, 1, "papa is mid-dialogue, so their prompt is edited")
	assert.Equal(t, int64(21), f.msg.edits[0].MessageID)

	f.pressIn(mama, group, 21, dialogue.TokenCancel)
	assert.Len(t, f.msg.edits, 1, "mama is idle and must not overwrite papa's prompt")
	require.Len(t, f.msg.sends, 2)
	assert.Equal(t, notifier.FormatID(group), f.msg.last().Chat)
	assert.Equal(t, dialogue.StateEnterAmount, f.router.machine.State(model.AccountID(notifier.FormatID(papa))))
}

func TestRouter_EditFailureIsLoggedOnly(t *testing.T) {
	f := newRouterFixture(t)
	f.msg.editErr = errors.New("boom")
	f.text(papa, "/start")
	assert.NotPanics(t, func() { f.press(papa, 1, dialogue.TokenLeaderboard) })
}

func TestRouter_DirectCommands(t *testing.T) {
	f := newRouterFixture(t)

	out := f.text(mama, "/credit danya 10 washed the car")
	assert.Contains(t, out.Text, "Mama added 10 points to Danya (Reason: washed the car)")
	assert.Equal(t, int64(10), f.balance(danya))

	out = f.text(mama, "/debit Danya 30 too much")
	assert.Contains(t, out.Text, "Current: 10 points")

	out = f.text(danya, "/transfer Danya Goal Pool 4 bike fund")
	assert.Contains(t, out.Text, "Goal Pool: 4 points")
	assert.Equal(t, int64(6), f.balance(danya))

	out = f.text(danya, "/transfer goal pool papa 1 oops")
	assert.Contains(t, out.Text, "cannot be transferred out")

	out = f.text(papa, "/credit Nobody 5 hi")
	assert.Contains(t, out.Text, "I don't know anyone called Nobody")

	out = f.text(papa, "/credit danya five chores")
	assert.Contains(t, out.Text, "Usage: /credit")

	out = f.text(papa, "/credit danya 5 123")
	assert.Contains(t, out.Text, "not just numbers")
	assert.Equal(t, int64(6), f.balance(danya))
}

func TestRouter_AddAccountIsAdminOnly(t *testing.T) {
	f := newRouterFixture(t)

	out := f.text(papa, "/add_account Tima 5863747570")
	assert.Contains(t, out.Text, "Only the administrator")

	out = f.text(admin, "/add_account Little Tima 5863747570")
	assert.Contains(t, out.Text, "Added Little Tima (5863747570)")
	bal, known := f.store.Balance("5863747570")
	assert.True(t, known)
	assert.Zero(t, bal)

	out = f.text(admin, "/add_account Tima 5863747570")
	assert.Contains(t, out.Text, "already exists")

	out = f.text(admin, "/add_account Tima abc")
	assert.Contains(t, out.Text, "numeric")

	out = f.text(5863747570, "/leaderboard")
	assert.Contains(t, out.Text, "Little Tima: 0 points")
}

func TestRouter_StrayTextAndUnknownCommand(t *testing.T) {
	f := newRouterFixture(t)

	out := f.text(papa, "hello there")
	assert.Contains(t, out.Text, "/start")
	assert.NotEmpty(t, out.Keyboard)

	out = f.text(papa, "/dance")
	assert.Equal(t, unknownCommandText, out.Text)
	assert.NotEmpty(t, out.Keyboard)
}

func TestRouter_CancelCommandMidDialogue(t *testing.T) {
	f := newRouterFixture(t)
	f.text(papa, "/start")
	f.press(papa, 1, dialogue.TokenCredit)
	out := f.text(papa, "/cancel")
	assert.Contains(t, out.Text, "cancelled")

	out = f.text(papa, "/history")
	assert.Equal(t, "No activity recorded yet.", out.Text)
}
