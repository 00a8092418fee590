package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhildreth66/Routecast2-sub001/internal/domain"
)

var origin = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func ptr(v float64) *float64 { return &v }

func TestOpenMeteoHourly(t *testing.T) {
	var query map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/forecast" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		query = r.URL.Query()
		payload := map[string]any{
			"hourly": map[string]any{
				"time": []int64{
					origin.Add(-time.Hour).Unix(),
					origin.Unix(),
					origin.Add(time.Hour).Unix(),
					origin.Add(2 * time.Hour).Unix(),
				},
				"wind_speed_10m": []*float64{ptr(1), ptr(40), nil, ptr(20)},
				"precipitation":  []*float64{ptr(0), ptr(5), ptr(1), ptr(1.5)},
				"temperature_2m": []*float64{ptr(3), ptr(-2), ptr(0), ptr(0)},
			},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer srv.Close()

	m := NewOpenMeteo(OpenMeteoOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	got, err := m.Hourly(context.Background(), 39.7392, -104.9903, origin.Add(20*time.Minute), 3)
	require.NoError(t, err)

	assert.Equal(t, "39.7392", query["latitude"][0])
	assert.Equal(t, hourlyVariables, query["hourly"][0])
	assert.Equal(t, "2026-03-14T09:00", query["start_hour"][0])
	assert.Equal(t, "2026-03-14T11:00", query["end_hour"][0])

	// the hour before start is filtered and the hour with a null is dropped
	require.Len(t, got, 2)
	assert.Equal(t, origin, got[0].Time)
	assert.Equal(t, 40.0, got[0].WindSpeed)
	assert.Equal(t, -2.0, got[0].Temperature)
	assert.Equal(t, origin.Add(2*time.Hour), got[1].Time)
}

func TestOpenMeteoErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{name: "bad request", status: http.StatusBadRequest, body: `{"error":true,"reason":"latitude out of range"}`},
		{name: "server error", status: http.StatusBadGateway, body: `oops`},
		{name: "no hours", status: http.StatusOK, body: `{"hourly":{"time":[]}}`},
		{name: "garbage", status: http.StatusOK, body: `not json`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			m := NewOpenMeteo(OpenMeteoOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
			_, err := m.Hourly(context.Background(), 1, 2, origin, 3)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrForecastUnavailable)
		})
	}
}

func TestOpenMeteoMissingDepartureHourIsNotAnchored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"hourly": map[string]any{
				"time": []int64{
					origin.Unix(),
					origin.Add(time.Hour).Unix(),
					origin.Add(2 * time.Hour).Unix(),
					origin.Add(3 * time.Hour).Unix(),
				},
				"wind_speed_10m": []*float64{nil, ptr(40), ptr(40), ptr(0)},
				"precipitation":  []*float64{ptr(5), ptr(5), ptr(5), ptr(0)},
				"temperature_2m": []*float64{ptr(5), ptr(5), ptr(5), ptr(5)},
			},
		})
	}))
	defer srv.Close()

	m := NewOpenMeteo(OpenMeteoOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	got, err := m.Hourly(context.Background(), 1, 2, origin, 4)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, origin.Add(time.Hour), got[0].Time)

	err = Anchored(got, origin)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrForecastUnavailable)
}

func TestAnchored(t *testing.T) {
	assert.NoError(t, Anchored(twoHours(), origin.Add(25*time.Minute)))
	assert.NoError(t, Anchored([]domain.HourlyForecast{{WindSpeed: 1}}, origin), "positional records")
	assert.ErrorIs(t, Anchored(nil, origin), domain.ErrForecastUnavailable)
	assert.ErrorIs(t, Anchored(twoHours(), origin.Add(-time.Hour)), domain.ErrForecastUnavailable)
}

func TestNWSAdvisories(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/alerts/active", r.URL.Path)
		assert.Equal(t, "39.7392,-104.9903", r.URL.Query().Get("point"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"features":[
			{"properties":{"event":"Winter Storm Warning","severity":"Severe","onset":"2026-03-14T09:00:00Z","ends":"2026-03-14T11:00:00Z"}},
			{"properties":{"event":"High Wind Watch","severity":"Moderate","effective":"2026-03-14T10:00:00Z","expires":null}},
			{"properties":{"event":"Special Weather Statement","severity":"Minor","onset":"2026-03-14T09:00:00Z"}}
		]}`))
	}))
	defer srv.Close()

	n := NewNWS(NWSOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	hours := []time.Time{origin, origin.Add(time.Hour), origin.Add(2 * time.Hour)}
	got, err := n.Advisories(context.Background(), 39.7392, -104.9903, hours)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 1}, got)
}

type stubSource struct {
	hours []domain.HourlyForecast
	err   error
	calls int
}

func (s *stubSource) Hourly(context.Context, float64, float64, time.Time, int) ([]domain.HourlyForecast, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.HourlyForecast, len(s.hours))
	copy(out, s.hours)
	return out, nil
}

type stubAlerts struct {
	counts []int
	err    error
}

func (s stubAlerts) Advisories(context.Context, float64, float64, []time.Time) ([]int, error) {
	return s.counts, s.err
}

func twoHours() []domain.HourlyForecast {
	return []domain.HourlyForecast{
		{Time: origin, WindSpeed: 10},
		{Time: origin.Add(time.Hour), WindSpeed: 20},
	}
}

func TestLiveMergesAdvisories(t *testing.T) {
	l := NewLive(&stubSource{hours: twoHours()}, stubAlerts{counts: []int{2, 0}}, noopLogger())
	got, err := l.Hourly(context.Background(), 1, 2, origin, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, got[0].SevereAdvisories)
	assert.Equal(t, 0, got[1].SevereAdvisories)
}

func TestLiveDegradesOnAlertFailure(t *testing.T) {
	l := NewLive(&stubSource{hours: twoHours()}, stubAlerts{err: errors.New("down")}, noopLogger())
	got, err := l.Hourly(context.Background(), 1, 2, origin, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Zero(t, got[0].SevereAdvisories)
}

func TestLivePropagatesWeatherFailure(t *testing.T) {
	fail := &stubSource{err: domain.ErrForecastUnavailable}
	l := NewLive(fail, nil, noopLogger())
	_, err := l.Hourly(context.Background(), 1, 2, origin, 2)
	assert.ErrorIs(t, err, domain.ErrForecastUnavailable)
}

func TestCachedSourceFallsBackWhenRedisIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	next := &stubSource{hours: twoHours()}
	c := NewCachedSource(next, client, time.Minute, noopLogger())

	for i := 0; i < 2; i++ {
		got, err := c.Hourly(context.Background(), 1, 2, origin, 2)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	}
	assert.Equal(t, 2, next.calls)
}

func TestCachedSourceWithoutClient(t *testing.T) {
	next := &stubSource{hours: twoHours()}
	c := NewCachedSource(next, nil, 0, noopLogger())
	_, err := c.Hourly(context.Background(), 1, 2, origin, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)
	assert.Equal(t, "routecast:forecast:1.00:2.00:1773478800:2", c.key(1, 2, origin.Add(10*time.Minute), 2))
}
