package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const defaultAPIBase = "https://api.telegram.org"

// InlineButton is one inline keyboard button.
type InlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// APIError is a response the Bot API answered with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// temporary reports whether retrying the same call may succeed.
func (e *APIError) temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// TelegramNotifier talks to the Telegram Bot API.
type TelegramNotifier struct {
	BotToken string
	APIBase  string
	Client   *http.Client

	// MaxRetries bounds SendWithRetry and EditOrSend.
	MaxRetries    uint64
	RetryInterval time.Duration

	pollClient *http.Client
	logger     *zap.Logger
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, apiBase, proxyURL string, logger *zap.Logger) *TelegramNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		} else {
			logger.Warn("ignoring invalid proxy url", zap.Error(err))
		}
	}
	return &TelegramNotifier{
		BotToken:      botToken,
		APIBase:       strings.TrimRight(apiBase, "/"),
		Client:        &http.Client{Timeout: 30 * time.Second, Transport: transport},
		MaxRetries:    3,
		RetryInterval: time.Second,
		pollClient:    &http.Client{Timeout: 35 * time.Second, Transport: transport},
		logger:        logger.Named("telegram"),
	}
}

func (t *TelegramNotifier) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.APIBase, t.BotToken, method)
}

// call posts payload to method and decodes the result into out, if non-nil.
func (t *TelegramNotifier) call(ctx context.Context, client *http.Client, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.methodURL(method), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}
	var envelope struct {
		OK          bool            `json:"ok"`
		Result      json.RawMessage `json:"result"`
		ErrorCode   int             `json:"error_code"`
		Description string          `json:"description"`
		Parameters  struct {
			RetryAfter int `json:"retry_after"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return &APIError{Method: method, Code: resp.StatusCode, Description: string(respBody)}
	}
	if !envelope.OK || resp.StatusCode != http.StatusOK {
		code := envelope.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &APIError{Method: method, Code: code, Description: envelope.Description, RetryAfter: envelope.Parameters.RetryAfter}
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

func markup(keyboard [][]InlineButton) any {
	if len(keyboard) == 0 {
		return nil
	}
	return map[string]any{"inline_keyboard": keyboard}
}

// SendMessage sends text to chatID and returns the new message id.
func (t *TelegramNotifier) SendMessage(ctx context.Context, chatID, text string, keyboard [][]InlineButton) (int64, error) {
	payload := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if m := markup(keyboard); m != nil {
		payload["reply_markup"] = m
	}
	var msg struct {
		MessageID int64 `json:"message_id"`
	}
	if err := t.call(ctx, t.Client, "sendMessage", payload, &msg); err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// EditMessage replaces the text and keyboard of an existing message.
func (t *TelegramNotifier) EditMessage(ctx context.Context, chatID string, messageID int64, text string, keyboard [][]InlineButton) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if m := markup(keyboard); m != nil {
		payload["reply_markup"] = m
	}
	err := t.call(ctx, t.Client, "editMessageText", payload, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "message is not modified") {
		return nil
	}
	return err
}

// AnswerCallback acknowledges a button press.
func (t *TelegramNotifier) AnswerCallback(ctx context.Context, callbackID string) error {
	return t.call(ctx, t.Client, "answerCallbackQuery", map[string]any{"callback_query_id": callbackID}, nil)
}

func (t *TelegramNotifier) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.RetryInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, t.MaxRetries), ctx)
}

// retry runs op until it succeeds, fails permanently or MaxRetries is spent.
func (t *TelegramNotifier) retry(ctx context.Context, what string, op func() error) error {
	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op()
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.temporary() {
			return backoff.Permanent(err)
		}
		return err
	}, t.retryPolicy(ctx), func(err error, wait time.Duration) {
		t.logger.Warn(what+" failed, retrying",
			zap.Int("attempt", attempt),
			zap.Uint64("max_retries", t.MaxRetries),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
}

// SendWithRetry sends a message with exponential backoff retry.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, chatID, text string, keyboard [][]InlineButton) (int64, error) {
	var id int64
	err := t.retry(ctx, "send", func() error {
		var err error
		id, err = t.SendMessage(ctx, chatID, text, keyboard)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("send to %s: %w", chatID, err)
	}
	return id, nil
}

// EditOrSend edits messageID with bounded retries and falls back to a fresh
// message when the edit keeps failing.
func (t *TelegramNotifier) EditOrSend(ctx context.Context, chatID string, messageID int64, text string, keyboard [][]InlineButton) error {
	err := t.retry(ctx, "edit", func() error {
		return t.EditMessage(ctx, chatID, messageID, text, keyboard)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	t.logger.Warn("edit failed, sending a new message", zap.String("chat", chatID), zap.Int64("message", messageID), zap.Error(err))
	_, err = t.SendWithRetry(ctx, chatID, text, keyboard)
	return err
}
