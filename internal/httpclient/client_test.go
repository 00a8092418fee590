package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, c *Client, url string) (*Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	require.NoError(t, err)
	return c.Do(req)
}

func TestDoSuccessSetsUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "routecast-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New("test", Options{Timeout: time.Second, UserAgent: "routecast-test"}, zerolog.Nop())
	resp, err := get(t, c, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
}

func TestDoStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad coordinates"))
	}))
	defer srv.Close()

	c := New("test", Options{Timeout: time.Second}, zerolog.Nop())
	resp, err := get(t, c, srv.URL)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Status)
	assert.Equal(t, "bad coordinates", se.Body)
	require.NotNil(t, resp)
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New("flaky", Options{Timeout: time.Second, FailureThreshold: 2, OpenTimeout: time.Minute}, zerolog.Nop())
	for i := 0; i < 2; i++ {
		_, err := get(t, c, srv.URL)
		require.Error(t, err)
	}

	_, err := get(t, c, srv.URL)
	assert.True(t, errors.Is(err, ErrCircuitOpen), "got %v", err)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, "open", c.State())
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New("lookup", Options{Timeout: time.Second, FailureThreshold: 1}, zerolog.Nop())
	for i := 0; i < 3; i++ {
		_, err := get(t, c, srv.URL)
		assert.False(t, errors.Is(err, ErrCircuitOpen))
	}
	assert.Equal(t, "closed", c.State())
}
