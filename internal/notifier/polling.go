package notifier

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// User is the sender of a message or button press.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// Chat is the conversation a message belongs to.
type Chat struct {
	ID int64 `json:"id"`
}

// Message is an inbound or previously sent message.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

// CallbackQuery is an inline button press.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message"`
	Data    string   `json:"data"`
}

// Update is one item from getUpdates.
type Update struct {
	UpdateID      int            `json:"update_id"`
	Message       *Message       `json:"message"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

// FormatID renders a Telegram id the way chat_id and account ids expect it.
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// UpdateHandler is called for every update, in order.
type UpdateHandler func(ctx context.Context, u Update)

const pollRetryDelay = 5 * time.Second

func (t *TelegramNotifier) getUpdates(ctx context.Context, offset int) ([]Update, error) {
	var updates []Update
	payload := map[string]any{
		"offset":          offset,
		"timeout":         30,
		"allowed_updates": []string{"message", "callback_query"},
	}
	if err := t.call(ctx, t.pollClient, "getUpdates", payload, &updates); err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}
	return updates, nil
}

// StartPolling long-polls for updates and hands each one to handler. Blocks
// until ctx is cancelled.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler UpdateHandler) {
	offset := 0
	t.logger.Info("polling started")
	for {
		if ctx.Err() != nil {
			t.logger.Info("polling stopped")
			return
		}

		updates, err := t.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				t.logger.Info("polling stopped")
				return
			}
			t.logger.Warn("polling request failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(pollRetryDelay):
			}
			continue
		}

		for _, u := range updates {
			offset = u.UpdateID + 1
			handler(ctx, u)
		}
	}
}
