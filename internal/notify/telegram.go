package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/adpilot/internal/pkg/httpretry"
	"github.com/ignite/adpilot/internal/pkg/logger"
)

// Telegram sends run summaries to a chat via the Bot API. Errors are logged
// and swallowed; notification is best-effort by contract.
type Telegram struct {
	botToken   string
	chatID     string
	httpClient httpretry.HTTPDoer
}

// TelegramConfig holds Telegram Bot API settings.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// NewTelegram creates a Telegram notifier.
func NewTelegram(cfg TelegramConfig) *Telegram {
	return &Telegram{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: 15 * time.Second,
		}, 2),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing).
func (t *Telegram) SetHTTPClient(client httpretry.HTTPDoer) {
	t.httpClient = client
}

// Send posts the message to the configured chat.
func (t *Telegram) Send(ctx context.Context, text string) {
	body, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    text,
	})
	if err != nil {
		logger.Warn("telegram: failed to marshal message", "error", err.Error())
		return
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		logger.Warn("telegram: failed to create request", "error", err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		logger.Warn("telegram: send failed", "error", err.Error())
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warn("telegram: send rejected", "status", resp.StatusCode)
	}
}
