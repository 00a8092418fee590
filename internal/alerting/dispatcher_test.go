package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

var testData = map[string]string{"type": "smart_departure", "trip_id": "trip-1"}

func TestTelegramDispatcherSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/botsecret/sendMessage") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	d := NewTelegramDispatcher("secret", srv.URL, time.Second, testLogger())
	err := d.Send(context.Background(), "tg:42", Title, "Delay 2h avoids ~75% of hazards", testData)
	require.NoError(t, err)

	assert.Equal(t, "42", received["chat_id"])
	assert.Contains(t, received["text"], Title)
	assert.Contains(t, received["text"], "Delay 2h")
	assert.Contains(t, received["text"], "trip-1")
}

func TestTelegramDispatcherOkFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "chat not found"})
	}))
	defer srv.Close()

	d := NewTelegramDispatcher("secret", srv.URL, time.Second, testLogger())
	err := d.Send(context.Background(), "tg:42", Title, "body", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramDispatcherRejectsForeignToken(t *testing.T) {
	d := NewTelegramDispatcher("secret", "http://127.0.0.1:1", time.Second, testLogger())
	assert.False(t, d.Accepts("tg:"))
	err := d.Send(context.Background(), "ExponentPushToken[abc]", Title, "body", nil)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpoDispatcherSuccess(t *testing.T) {
	var got []expoMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":[{"status":"ok","id":"ticket-1"}]}`))
	}))
	defer srv.Close()

	d := NewExpoDispatcher(srv.URL, "access", time.Second, testLogger())
	err := d.Send(context.Background(), "ExponentPushToken[abc]", Title, "body", testData)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "ExponentPushToken[abc]", got[0].To)
	assert.Equal(t, Title, got[0].Title)
	assert.Equal(t, "trip-1", got[0].Data["trip_id"])
}

func TestExpoDispatcherTicketErrors(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		invalid bool
	}{
		{name: "device not registered", payload: `{"data":[{"status":"error","message":"gone","details":{"error":"DeviceNotRegistered"}}]}`, invalid: true},
		{name: "rate limited", payload: `{"data":[{"status":"error","message":"slow down","details":{"error":"MessageRateExceeded"}}]}`},
		{name: "request error", payload: `{"errors":[{"code":"VALIDATION_ERROR","message":"bad"}]}`},
		{name: "empty", payload: `{"data":[]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.payload))
			}))
			defer srv.Close()

			d := NewExpoDispatcher(srv.URL, "", time.Second, testLogger())
			err := d.Send(context.Background(), "ExpoPushToken[xyz]", Title, "body", nil)
			require.Error(t, err)
			assert.Equal(t, tc.invalid, errors.Is(err, ErrInvalidToken))
		})
	}
}

func TestExpoDispatcherAccepts(t *testing.T) {
	d := NewExpoDispatcher("", "", time.Second, testLogger())
	assert.True(t, d.Accepts("ExponentPushToken[abc]"))
	assert.True(t, d.Accepts("ExpoPushToken[abc]"))
	assert.False(t, d.Accepts("ExponentPushToken[]"))
	assert.False(t, d.Accepts("ExponentPushToken[abc"))
	assert.False(t, d.Accepts("tg:42"))
}

type recordingProvider struct {
	name   string
	prefix string
	err    error
	sent   []string
}

func (p *recordingProvider) Name() string              { return p.name }
func (p *recordingProvider) Accepts(token string) bool { return strings.HasPrefix(token, p.prefix) }

func (p *recordingProvider) Send(_ context.Context, token, _, _ string, _ map[string]string) error {
	p.sent = append(p.sent, token)
	return p.err
}

func TestRouterRoutesByPrefix(t *testing.T) {
	a := &recordingProvider{name: "a", prefix: "a:"}
	b := &recordingProvider{name: "b", prefix: "b:", err: errors.New("boom")}
	r := NewRouter(a, nil, b)
	assert.Equal(t, 2, r.Len())

	require.NoError(t, r.Send(context.Background(), "a:1", Title, "body", nil))
	assert.Equal(t, []string{"a:1"}, a.sent)

	err := r.Send(context.Background(), "b:2", Title, "body", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b: boom")

	assert.ErrorIs(t, r.Send(context.Background(), "c:3", Title, "body", nil), ErrInvalidToken)
	assert.ErrorIs(t, r.Send(context.Background(), "  ", Title, "body", nil), ErrInvalidToken)
}
