package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lhildreth66/Routecast2-sub001/internal/domain"
	"github.com/lhildreth66/Routecast2-sub001/internal/httpclient"
)

const hourlyVariables = "wind_speed_10m,precipitation,temperature_2m"

// OpenMeteoOptions parameterise the Open-Meteo client.
type OpenMeteoOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// OpenMeteo reads hourly forecasts from api.open-meteo.com.
type OpenMeteo struct {
	baseURL string
	client  *httpclient.Client
	logger  zerolog.Logger
}

// NewOpenMeteo constructs an Open-Meteo client.
func NewOpenMeteo(opts OpenMeteoOptions, logger zerolog.Logger) *OpenMeteo {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.open-meteo.com/v1"
	}

	return &OpenMeteo{
		baseURL: baseURL,
		client: httpclient.New("open-meteo", httpclient.Options{
			Timeout:   opts.Timeout,
			UserAgent: opts.UserAgent,
		}, logger),
		logger: logger.With().Str("component", "open_meteo").Logger(),
	}
}

type hourlyResponse struct {
	Hourly struct {
		Time          []int64    `json:"time"`
		WindSpeed     []*float64 `json:"wind_speed_10m"`
		Precipitation []*float64 `json:"precipitation"`
		Temperature   []*float64 `json:"temperature_2m"`
	} `json:"hourly"`
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

// Hourly implements Source without advisory counts. Hours with any missing
// variable are dropped rather than treated as calm.
func (m *OpenMeteo) Hourly(ctx context.Context, lat, lon float64, from time.Time, hours int) ([]domain.HourlyForecast, error) {
	if hours <= 0 {
		return nil, nil
	}
	start := domain.DepartureHour(from)
	end := start.Add(time.Duration(hours-1) * time.Hour)

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("hourly", hourlyVariables)
	q.Set("wind_speed_unit", "kmh")
	q.Set("precipitation_unit", "mm")
	q.Set("timezone", "GMT")
	q.Set("timeformat", "unixtime")
	q.Set("start_hour", start.Format("2006-01-02T15:04"))
	q.Set("end_hour", end.Format("2006-01-02T15:04"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/forecast?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrForecastUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: open-meteo: %w", domain.ErrForecastUnavailable, err)
	}

	var payload hourlyResponse
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode open-meteo: %v", domain.ErrForecastUnavailable, err)
	}
	if payload.Error {
		return nil, fmt.Errorf("%w: open-meteo: %s", domain.ErrForecastUnavailable, payload.Reason)
	}

	h := payload.Hourly
	out := make([]domain.HourlyForecast, 0, len(h.Time))
	for i, ts := range h.Time {
		at := time.Unix(ts, 0).UTC()
		if at.Before(start) || at.After(end) {
			continue
		}
		wind, ok1 := valueAt(h.WindSpeed, i)
		precip, ok2 := valueAt(h.Precipitation, i)
		temp, ok3 := valueAt(h.Temperature, i)
		if !ok1 || !ok2 || !ok3 {
			m.logger.Debug().Time("hour", at).Msg("dropping incomplete forecast hour")
			continue
		}
		out = append(out, domain.HourlyForecast{
			Time:          at,
			WindSpeed:     wind,
			Precipitation: precip,
			Temperature:   temp,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: open-meteo returned no usable hours", domain.ErrForecastUnavailable)
	}
	return out, nil
}

func valueAt(values []*float64, i int) (float64, bool) {
	if i >= len(values) || values[i] == nil || math.IsNaN(*values[i]) {
		return 0, false
	}
	return *values[i], true
}

var _ Source = (*OpenMeteo)(nil)
