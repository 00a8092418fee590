package entitlement

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v82"
)

func TestStaticAllowlist(t *testing.T) {
	s := NewStatic([]string{" alice ", "", "bob"})
	ok, err := s.IsPremium(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = s.IsPremium(context.Background(), "carol")
	assert.False(t, ok)

	ok, _ = NewStatic([]string{"*"}).IsPremium(context.Background(), "anyone")
	assert.True(t, ok)
}

type customers map[string]string

func (c customers) CustomerID(_ context.Context, userID string) (string, error) {
	if userID == "broken" {
		return "", errors.New("db down")
	}
	return c[userID], nil
}

func stripeServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/subscriptions", r.URL.Path)
		assert.Equal(t, "cus_1", r.URL.Query().Get("customer"))
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, stripe.APIVersion, r.Header.Get("Stripe-Version"))
		_, _ = w.Write([]byte(body))
	}))
}

func TestStripeActiveSubscription(t *testing.T) {
	srv := stripeServer(t, `{"data":[{"id":"sub_1","status":"canceled"},{"id":"sub_2","status":"trialing","items":{"data":[{"price":{"id":"price_pro"}}]}}]}`)
	defer srv.Close()

	s := NewStripe(StripeOptions{SecretKey: "sk_test", BaseURL: srv.URL, Timeout: time.Second}, customers{"u1": "cus_1"}, zerolog.Nop())
	ok, err := s.IsPremium(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStripePriceFilter(t *testing.T) {
	srv := stripeServer(t, `{"data":[{"id":"sub_1","status":"active","items":{"data":[{"price":{"id":"price_basic"}}]}}]}`)
	defer srv.Close()

	s := NewStripe(StripeOptions{SecretKey: "sk_test", BaseURL: srv.URL, PriceIDs: []string{"price_pro"}}, customers{"u1": "cus_1"}, zerolog.Nop())
	ok, err := s.IsPremium(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStripeWithoutCustomer(t *testing.T) {
	s := NewStripe(StripeOptions{SecretKey: "sk_test", BaseURL: "http://127.0.0.1:1"}, customers{}, zerolog.Nop())
	ok, err := s.IsPremium(context.Background(), "stranger")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.IsPremium(context.Background(), "broken")
	assert.Error(t, err)
}

func TestStripeUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	s := NewStripe(StripeOptions{SecretKey: "sk_test", BaseURL: srv.URL}, customers{"u1": "cus_1"}, zerolog.Nop())
	_, err := s.IsPremium(context.Background(), "u1")
	assert.Error(t, err)
}

type countingChecker struct {
	premium bool
	calls   int
}

func (c *countingChecker) IsPremium(context.Context, string) (bool, error) {
	c.calls++
	return c.premium, nil
}

func TestCachedFallsThroughWhenRedisIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	next := &countingChecker{premium: true}
	c := NewCached(next, client, time.Minute, zerolog.Nop())
	for i := 0; i < 2; i++ {
		ok, err := c.IsPremium(context.Background(), "u1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 2, next.calls)
}

func TestCachedWithoutClient(t *testing.T) {
	next := &countingChecker{}
	ok, err := NewCached(next, nil, 0, zerolog.Nop()).IsPremium(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, next.calls)
}
