// Fleetsync - Device Telemetry Sync and Reconciliation
// Copyright 2026 Max Geller (mgeller)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mgeller/fleetsync

package alerting

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/mgeller/fleetsync/internal/config"
)

// Notifier delivers one alert message to an external channel.
type Notifier interface {
	Send(ctx context.Context, text string) error
	// HealthCheck verifies the channel is reachable and the credentials
	// are valid.
	HealthCheck(ctx context.Context) error
}

// TelegramNotifier sends alerts through the Telegram Bot API.
type TelegramNotifier struct {
	botToken   string
	chatID     string
	baseURL    string
	httpClient *http.Client
}

// NewTelegramNotifier creates a Telegram notifier from config.
func NewTelegramNotifier(cfg *config.TelegramConfig) *TelegramNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramNotifier{
		botToken:   cfg.BotToken,
		chatID:     cfg.ChatID,
		baseURL:    "https://api.telegram.org",
		httpClient: &http.Client{Timeout: timeout},
	}
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts one message to the configured chat.
func (n *TelegramNotifier) Send(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": n.chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}
	return n.call(ctx, "sendMessage", payload)
}

// HealthCheck probes the bot credentials with getMe.
func (n *TelegramNotifier) HealthCheck(ctx context.Context) error {
	return n.call(ctx, "getMe", nil)
}

func (n *TelegramNotifier) call(ctx context.Context, method string, payload []byte) error {
	url := fmt.Sprintf("%s/bot%s/%s", n.baseURL, n.botToken, method)

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("failed to build telegram request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s failed: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read telegram response: %w", err)
	}

	var tr telegramResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return fmt.Errorf("telegram %s returned status %d with unparsable body", method, resp.StatusCode)
	}
	if !tr.OK {
		return fmt.Errorf("telegram %s rejected: %s", method, tr.Description)
	}
	return nil
}
