// Package notify sends pipeline outcomes to a Telegram chat and answers the
// bot commands that chat can send back.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"interview-insights-go/internal/apiclient"
	"interview-insights-go/internal/config"
	"interview-insights-go/internal/logger"
)

// Telegram rejects messages longer than this many characters.
const maxMessageRunes = 4096

// Client posts to the Telegram Bot API.
type Client struct {
	api     *apiclient.Client
	baseURL string
	token   string
	chatID  string
	log     *logger.Logger
}

func New(cfg config.TelegramConfig, log *logger.Logger) *Client {
	return &Client{
		api:     apiclient.New("telegram", cfg.Timeout),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.BotToken,
		chatID:  cfg.ChatID,
		log:     log.Component("notify"),
	}
}

// Enabled reports whether a bot token and default chat are configured.
func (c *Client) Enabled() bool {
	return c.token != "" && c.chatID != ""
}

// Send posts an HTML-formatted message to chatID.
func (c *Client) Send(ctx context.Context, chatID, text string) error {
	if c.token == "" {
		return fmt.Errorf("telegram bot token not configured")
	}
	if r := []rune(text); len(r) > maxMessageRunes {
		text = string(r[:maxMessageRunes-1]) + "…"
	}
	payload, err := json.Marshal(map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
	if err != nil {
		return fmt.Errorf("encode telegram message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/bot"+c.token+"/sendMessage", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.api.DoJSON(req, nil)
}

// Notify sends text to the default chat. Failures are logged, never returned.
func (c *Client) Notify(ctx context.Context, text string) {
	if !c.Enabled() {
		c.log.Debug("telegram not configured - skipping notification")
		return
	}
	if err := c.Send(ctx, c.chatID, text); err != nil {
		c.log.WithError(err).Warn("notification failed")
	}
}
