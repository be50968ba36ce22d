// Package notify contains the HTTP notification transport (Telegram Bot API)
// and a reachability-based connectivity collaborator for it.
package notify

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

	"github.com/rs/zerolog"

	"github.com/sweeney/intercom-listener/internal/logic"
)

// DefaultAPIBase is the Telegram Bot API endpoint.
const DefaultAPIBase = "https://api.telegram.org"

// StatusTransportError is returned when no HTTP response was received.
const StatusTransportError = -1

// TelegramConfig configures the Telegram transport.
type TelegramConfig struct {
	APIBase string
	Token   string
	ChatID  string
	Timeout time.Duration
}

// Telegram sends notifications through the Bot API sendMessage method.
type Telegram struct {
	cfg    TelegramConfig
	client *http.Client
	logger zerolog.Logger
}

// sendMessage is the sendMessage request body.
type sendMessage struct {
	ChatID              string `json:"chat_id"`
	Text                string `json:"text"`
	ParseMode           string `json:"parse_mode"`
	DisableNotification bool   `json:"disable_notification"`
}

// NewTelegram creates a Telegram transport.
func NewTelegram(cfg TelegramConfig, logger zerolog.Logger) *Telegram {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Telegram{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			// The bot API never redirects; a redirect means a wrong endpoint.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

// Send posts n.Text once. It returns the HTTP status code, or
// StatusTransportError with the cause if the request did not complete.
func (t *Telegram) Send(ctx context.Context, n logic.Notification) (int, error) {
	body, err := json.Marshal(sendMessage{
		ChatID:              t.cfg.ChatID,
		Text:                n.Text,
		ParseMode:           "HTML",
		DisableNotification: false,
	})
	if err != nil {
		return StatusTransportError, fmt.Errorf("encode message: %w", err)
	}

	endpoint := t.cfg.APIBase + "/bot" + t.cfg.Token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return StatusTransportError, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// url.Error carries the request URL, which embeds the bot token.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		t.logger.Error().Err(err).Msg("HTTP POST request failed")
		return StatusTransportError, fmt.Errorf("post sendMessage: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	t.logger.Info().Int("status", resp.StatusCode).Int64("content_length", resp.ContentLength).
		Str("channel", string(n.Channel)).Msg("HTTP POST sendMessage")
	return resp.StatusCode, nil
}
