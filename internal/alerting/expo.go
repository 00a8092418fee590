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

const defaultExpoURL = "https://exp.host/--/api/v2/push/send"

// ExpoDispatcher delivers pushes to Expo push tokens.
type ExpoDispatcher struct {
	url         string
	accessToken string
	client      *httpclient.Client
	logger      zerolog.Logger
}

// NewExpoDispatcher builds an Expo provider. accessToken is optional.
func NewExpoDispatcher(url, accessToken string, timeout time.Duration, logger zerolog.Logger) *ExpoDispatcher {
	if url == "" {
		url = defaultExpoURL
	}
	return &ExpoDispatcher{
		url:         url,
		accessToken: accessToken,
		client:      httpclient.New("expo", httpclient.Options{Timeout: timeout}, logger),
		logger:      logger.With().Str("component", "push_expo").Logger(),
	}
}

// Name implements Provider.
func (e *ExpoDispatcher) Name() string { return "expo" }

// Accepts implements Provider.
func (e *ExpoDispatcher) Accepts(token string) bool {
	for _, prefix := range []string{"ExponentPushToken[", "ExpoPushToken["} {
		if strings.HasPrefix(token, prefix) && strings.HasSuffix(token, "]") && len(token) > len(prefix)+1 {
			return true
		}
	}
	return false
}

type expoMessage struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound,omitempty"`
}

type expoTicket struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

type expoResponse struct {
	Data   []expoTicket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Send posts a single message and checks the returned push ticket.
func (e *ExpoDispatcher) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	if !e.Accepts(token) {
		return fmt.Errorf("%w: not an expo token", ErrInvalidToken)
	}

	raw, err := json.Marshal([]expoMessage{{To: token, Title: title, Body: body, Data: data, Sound: "default"}})
	if err != nil {
		return fmt.Errorf("marshal expo payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create expo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if e.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+e.accessToken)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send expo request: %w", err)
	}

	var out expoResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return fmt.Errorf("decode expo response: %w", err)
	}
	if len(out.Errors) > 0 {
		return fmt.Errorf("expo rejected request: %s %s", out.Errors[0].Code, out.Errors[0].Message)
	}
	if len(out.Data) == 0 {
		return fmt.Errorf("expo returned no ticket")
	}
	ticket := out.Data[0]
	if ticket.Status != "ok" {
		if ticket.Details.Error == "DeviceNotRegistered" {
			return fmt.Errorf("%w: device not registered", ErrInvalidToken)
		}
		return fmt.Errorf("expo ticket %s: %s %s", ticket.Status, ticket.Details.Error, ticket.Message)
	}

	e.logger.Debug().Str("trip_id", data["trip_id"]).Msg("push delivered via expo")
	return nil
}

var _ Provider = (*ExpoDispatcher)(nil)
