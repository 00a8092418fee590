package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lhildreth66/Routecast2-sub001/internal/httpclient"
)

// TelegramPrefix marks device tokens that are Telegram chat ids.
const TelegramPrefix = "tg:"

// TelegramDispatcher delivers pushes through the Telegram Bot API. The token
// carries the chat id as "tg:<chat_id>".
type TelegramDispatcher struct {
	botToken string
	baseURL  string
	client   *httpclient.Client
	logger   zerolog.Logger
}

// NewTelegramDispatcher builds a Telegram provider.
func NewTelegramDispatcher(botToken, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramDispatcher{
		botToken: botToken,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   httpclient.New("telegram", httpclient.Options{Timeout: timeout}, logger),
		logger:   logger.With().Str("component", "push_telegram").Logger(),
	}
}

// Name implements Provider.
func (n *TelegramDispatcher) Name() string { return "telegram" }

// Accepts implements Provider.
func (n *TelegramDispatcher) Accepts(token string) bool {
	return strings.HasPrefix(token, TelegramPrefix) && len(token) > len(TelegramPrefix)
}

// Send calls sendMessage with the rendered title and body.
func (n *TelegramDispatcher) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	if !n.Accepts(token) {
		return fmt.Errorf("%w: expected %s<chat_id>", ErrInvalidToken, TelegramPrefix)
	}
	chatID := strings.TrimPrefix(token, TelegramPrefix)

	payload := map[string]string{
		"chat_id": chatID,
		"text":    renderText(title, body, data),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(resp.Body, &result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false: %s", result.Description)
	}

	n.logger.Debug().Str("trip_id", data["trip_id"]).Msg("push delivered via telegram")
	return nil
}

func renderText(title, body string, data map[string]string) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(body)
	if tripID := data["trip_id"]; tripID != "" {
		b.WriteString("\nTrip: ")
		b.WriteString(tripID)
	}
	return b.String()
}

var _ Provider = (*TelegramDispatcher)(nil)
