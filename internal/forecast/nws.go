package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lhildreth66/Routecast2-sub001/internal/httpclient"
)

// Severities counted as advisories.
var countedSeverities = map[string]bool{
	"Moderate": true,
	"Severe":   true,
	"Extreme":  true,
}

// NWSOptions parameterise the National Weather Service alerts client.
type NWSOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// NWS counts active alerts from api.weather.gov.
type NWS struct {
	baseURL string
	client  *httpclient.Client
	logger  zerolog.Logger
}

// NewNWS constructs an alerts client. api.weather.gov rejects requests
// without a User-Agent.
func NewNWS(opts NWSOptions, logger zerolog.Logger) *NWS {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.weather.gov"
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = "routecast-advisor/1.0"
	}

	return &NWS{
		baseURL: baseURL,
		client:  httpclient.New("nws", httpclient.Options{Timeout: opts.Timeout, UserAgent: ua}, logger),
		logger:  logger.With().Str("component", "nws_alerts").Logger(),
	}
}

type alertCollection struct {
	Features []struct {
		Properties struct {
			Event     string     `json:"event"`
			Severity  string     `json:"severity"`
			Effective *time.Time `json:"effective"`
			Onset     *time.Time `json:"onset"`
			Expires   *time.Time `json:"expires"`
			Ends      *time.Time `json:"ends"`
		} `json:"properties"`
	} `json:"features"`
}

type alertWindow struct {
	from time.Time
	to   time.Time
}

// Advisories implements AlertCounter. An alert covers an hour when the hour
// falls in [onset, ends). Missing onset falls back to effective, missing ends
// to expires; an alert without any end is open-ended.
func (n *NWS) Advisories(ctx context.Context, lat, lon float64, hours []time.Time) ([]int, error) {
	counts := make([]int, len(hours))
	if len(hours) == 0 {
		return counts, nil
	}

	endpoint := fmt.Sprintf("%s/alerts/active?point=%.4f,%.4f", n.baseURL, lat, lon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build nws request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nws alerts: %w", err)
	}

	var payload alertCollection
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("decode nws alerts: %w", err)
	}

	windows := make([]alertWindow, 0, len(payload.Features))
	for _, f := range payload.Features {
		p := f.Properties
		if !countedSeverities[p.Severity] {
			continue
		}
		var w alertWindow
		switch {
		case p.Onset != nil:
			w.from = *p.Onset
		case p.Effective != nil:
			w.from = *p.Effective
		}
		switch {
		case p.Ends != nil:
			w.to = *p.Ends
		case p.Expires != nil:
			w.to = *p.Expires
		}
		windows = append(windows, w)
	}

	for i, h := range hours {
		for _, w := range windows {
			if !w.from.IsZero() && h.Before(w.from) {
				continue
			}
			if !w.to.IsZero() && !h.Before(w.to) {
				continue
			}
			counts[i]++
		}
	}
	return counts, nil
}

var _ AlertCounter = (*NWS)(nil)
