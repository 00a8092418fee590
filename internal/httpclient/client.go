// Package httpclient wraps outbound HTTP calls in a circuit breaker so a
// failing upstream is shed quickly instead of eating every per-call timeout.
package httpclient

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit open")

// Options tune a Client.
type Options struct {
	Timeout          time.Duration
	UserAgent        string
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Response is a fully-read upstream response.
type Response struct {
	Status int
	Body   []byte
	Header http.Header
}

// StatusError reports a non-2xx upstream answer.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream status %d", e.Status)
	}
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Body)
}

// Client is a breaker-guarded HTTP client.
type Client struct {
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker[*Response]
	userAgent string
}

// New builds a Client named name. The name labels breaker state logs.
func New(name string, opts Options, logger zerolog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}
	log := logger.With().Str("component", "http_client").Str("upstream", name).Logger()

	cb := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Status < 500 && se.Status != http.StatusTooManyRequests
			}
			return err == nil
		},
	})

	return &Client{
		http:      &http.Client{Timeout: opts.Timeout},
		breaker:   cb,
		userAgent: opts.UserAgent,
	}
}

// Do sends req and reads the whole body. Non-2xx answers are returned as
// *StatusError alongside the response.
func (c *Client) Do(req *http.Request) (*Response, error) {
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.breaker.Execute(func() (*Response, error) {
		raw, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer raw.Body.Close()

		body, err := io.ReadAll(raw.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		out := &Response{Status: raw.StatusCode, Body: body, Header: raw.Header}
		if raw.StatusCode < 200 || raw.StatusCode >= 300 {
			return out, &StatusError{Status: raw.StatusCode, Body: truncate(strings.TrimSpace(string(body)), 256)}
		}
		return out, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, c.breaker.Name())
	}
	return resp, err
}

// State reports the breaker state for health output.
func (c *Client) State() string {
	return c.breaker.State().String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
