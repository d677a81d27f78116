// Package telegram implements gencode.Frontend over the Telegram Bot API
// using long polling.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	gencode "github.com/nevindra/gencode"
)

const defaultAPIBase = "https://api.telegram.org"

// Bot implements gencode.Frontend for Telegram.
type Bot struct {
	token       string
	apiBase     string
	httpClient  *http.Client
	pollTimeout int
	retryDelay  time.Duration
	logger      *slog.Logger
}

var _ gencode.Frontend = (*Bot)(nil)

// Option configures a Bot.
type Option func(*Bot)

// WithAPIBase overrides the Bot API base URL (for local Bot API servers and tests).
func WithAPIBase(url string) Option {
	return func(b *Bot) { b.apiBase = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets the HTTP client. Its timeout must exceed the poll timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Bot) { b.httpClient = c }
}

// WithPollTimeout sets the long-poll timeout in seconds (default 30).
func WithPollTimeout(secs int) Option {
	return func(b *Bot) { b.pollTimeout = secs }
}

// WithRetryDelay sets the pause after a failed poll (default 3s).
func WithRetryDelay(d time.Duration) Option {
	return func(b *Bot) { b.retryDelay = d }
}

// WithLogger sets a structured logger for poll and send errors.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bot) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBot creates a Telegram bot with the given token.
func NewBot(token string, opts ...Option) *Bot {
	b := &Bot{
		token:       token,
		apiBase:     defaultAPIBase,
		httpClient:  &http.Client{},
		pollTimeout: 30,
		retryDelay:  3 * time.Second,
		logger:      gencode.NopLogger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Me returns the bot's own account, used to recognize /cmd@BotName mentions.
func (b *Bot) Me(ctx context.Context) (User, error) {
	var u User
	err := b.call(ctx, "getMe", map[string]any{}, &u)
	return u, err
}

// Poll starts long-polling for updates and returns a channel of incoming
// text messages. The channel is closed when ctx is cancelled.
func (b *Bot) Poll(ctx context.Context) (<-chan gencode.IncomingMessage, error) {
	ch := make(chan gencode.IncomingMessage)
	go b.pollLoop(ctx, ch)
	return ch, nil
}

func (b *Bot) pollLoop(ctx context.Context, ch chan<- gencode.IncomingMessage) {
	defer close(ch)
	var offset int64

	for ctx.Err() == nil {
		updates, err := b.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Warn("telegram: poll error", "error", err)
			select {
			case <-time.After(b.retryDelay):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil {
				continue
			}
			msg := toIncoming(u.Message)
			if msg.Text == "" {
				continue
			}
			select {
			case ch <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (b *Bot) getUpdates(ctx context.Context, offset int64) ([]Update, error) {
	body := map[string]any{
		"offset":          offset,
		"timeout":         b.pollTimeout,
		"allowed_updates": []string{"message"},
	}
	var result []Update
	if err := b.call(ctx, "getUpdates", body, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Send sends text formatted as Telegram HTML. Text longer than one
// Telegram message is split. A chunk whose HTML Telegram rejects is resent as
// plain text. Returns the ID of the last message sent.
func (b *Bot) Send(ctx context.Context, chatID string, text string) (string, error) {
	var lastID string
	for _, chunk := range splitMessage(text) {
		var result Message
		err := b.call(ctx, "sendMessage", map[string]any{
			"chat_id":    chatID,
			"text":       FormatHTML(chunk),
			"parse_mode": "HTML",
		}, &result)
		if isParseError(err) {
			b.logger.Debug("telegram: html rejected, sending plain text", "chat", chatID, "error", err)
			err = b.call(ctx, "sendMessage", map[string]any{
				"chat_id": chatID,
				"text":    chunk,
			}, &result)
		}
		if err != nil {
			return "", err
		}
		lastID = strconv.FormatInt(result.MessageID, 10)
	}
	return lastID, nil
}

// SendTyping shows a typing indicator.
func (b *Bot) SendTyping(ctx context.Context, chatID string) error {
	return b.call(ctx, "sendChatAction", map[string]any{
		"chat_id": chatID,
		"action":  "typing",
	}, nil)
}

// call posts JSON to a Bot API method and decodes the result.
func (b *Bot) call(ctx context.Context, method string, reqBody any, result any) error {
	url := b.apiBase + "/bot" + b.token + "/" + method

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("telegram: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram: read response: %w", err)
	}

	var envelope apiResponse[json.RawMessage]
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("telegram: decode response: %w (body: %s)", err, string(raw))
	}
	if !envelope.OK {
		apiErr := &APIError{Method: method, Code: envelope.ErrorCode, Description: envelope.Description}
		if envelope.Parameters != nil {
			apiErr.RetryAfter = time.Duration(envelope.Parameters.RetryAfter) * time.Second
		}
		return apiErr
	}
	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("telegram: decode result: %w", err)
		}
	}
	return nil
}

// APIError is an error response from the Bot API.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s: error %d: %s", e.Method, e.Code, e.Description)
}

// isParseError reports whether Telegram rejected the message entities.
func isParseError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest &&
		strings.Contains(apiErr.Description, "can't parse entities")
}

// toIncoming converts a Telegram Message to a gencode.IncomingMessage.
// A caption stands in for text on media messages.
func toIncoming(m *Message) gencode.IncomingMessage {
	msg := gencode.IncomingMessage{
		ID:     strconv.FormatInt(m.MessageID, 10),
		ChatID: strconv.FormatInt(m.Chat.ID, 10),
		Text:   m.Text,
	}
	if msg.Text == "" {
		msg.Text = m.Caption
	}
	if m.From != nil {
		msg.UserID = strconv.FormatInt(m.From.ID, 10)
		msg.Username = m.From.Username
	}
	return msg
}
