package entitlement

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	stripe "github.com/stripe/stripe-go/v82"

	"github.com/lhildreth66/Routecast2-sub001/internal/httpclient"
)

const stripeAPIBase = "https://api.stripe.com"

// CustomerLookup resolves a user to a Stripe customer id. An empty id with a
// nil error means the user never subscribed.
type CustomerLookup interface {
	CustomerID(ctx context.Context, userID string) (string, error)
}

// StripeOptions configure the Stripe checker.
type StripeOptions struct {
	SecretKey string
	BaseURL   string
	Timeout   time.Duration
	// PriceIDs restricts premium to subscriptions on these prices. Empty
	// accepts any live subscription.
	PriceIDs []string
}

// Stripe reads subscription status from the Stripe REST API.
type Stripe struct {
	secretKey string
	baseURL   string
	prices    map[string]bool
	customers CustomerLookup
	client    *httpclient.Client
	logger    zerolog.Logger
}

// NewStripe builds a Stripe checker.
func NewStripe(opts StripeOptions, customers CustomerLookup, logger zerolog.Logger) *Stripe {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	prices := make(map[string]bool, len(opts.PriceIDs))
	for _, p := range opts.PriceIDs {
		if p = strings.TrimSpace(p); p != "" {
			prices[p] = true
		}
	}
	return &Stripe{
		secretKey: opts.SecretKey,
		baseURL:   baseURL,
		prices:    prices,
		customers: customers,
		client:    httpclient.New("stripe", httpclient.Options{Timeout: opts.Timeout}, logger),
		logger:    logger.With().Str("component", "entitlement_stripe").Logger(),
	}
}

type subscriptionList struct {
	Data []struct {
		ID     string                    `json:"id"`
		Status stripe.SubscriptionStatus `json:"status"`
		Items  struct {
			Data []struct {
				Price struct {
					ID string `json:"id"`
				} `json:"price"`
			} `json:"data"`
		} `json:"items"`
	} `json:"data"`
}

// IsPremium implements Checker.
func (s *Stripe) IsPremium(ctx context.Context, userID string) (bool, error) {
	customerID, err := s.customers.CustomerID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("resolve stripe customer: %w", err)
	}
	if customerID == "" {
		return false, nil
	}

	params := url.Values{}
	params.Set("customer", customerID)
	params.Set("status", "all")
	params.Set("limit", "10")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/subscriptions?"+params.Encode(), nil)
	if err != nil {
		return false, fmt.Errorf("create stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("list stripe subscriptions: %w", err)
	}

	var list subscriptionList
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return false, fmt.Errorf("decode stripe subscriptions: %w", err)
	}

	for _, sub := range list.Data {
		if sub.Status != stripe.SubscriptionStatusActive && sub.Status != stripe.SubscriptionStatusTrialing {
			continue
		}
		if len(s.prices) == 0 {
			return true, nil
		}
		for _, item := range sub.Items.Data {
			if s.prices[item.Price.ID] {
				return true, nil
			}
		}
	}
	s.logger.Debug().Str("user_id", userID).Msg("no live premium subscription")
	return false, nil
}

var _ Checker = (*Stripe)(nil)
