package forecast

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lhildreth66/Routecast2-sub001/internal/domain"
)

// Live merges Open-Meteo hours with advisory counts.
type Live struct {
	weather Source
	alerts  AlertCounter
	logger  zerolog.Logger
}

// NewLive builds a Source. alerts may be nil, in which case every hour
// carries zero advisories.
func NewLive(weather Source, alerts AlertCounter, logger zerolog.Logger) *Live {
	return &Live{
		weather: weather,
		alerts:  alerts,
		logger:  logger.With().Str("component", "forecast").Logger(),
	}
}

// Hourly implements Source. Advisory lookup failures degrade to zero
// advisories; weather failures are returned.
func (l *Live) Hourly(ctx context.Context, lat, lon float64, from time.Time, hours int) ([]domain.HourlyForecast, error) {
	out, err := l.weather.Hourly(ctx, lat, lon, from, hours)
	if err != nil {
		return nil, err
	}
	if l.alerts == nil || len(out) == 0 {
		return out, nil
	}

	times := make([]time.Time, len(out))
	for i, h := range out {
		times[i] = h.Time
	}
	counts, err := l.alerts.Advisories(ctx, lat, lon, times)
	if err != nil {
		l.logger.Warn().Err(err).Float64("lat", lat).Float64("lon", lon).Msg("advisory lookup failed, assuming none")
		return out, nil
	}
	for i := range out {
		if i < len(counts) {
			out[i].SevereAdvisories = counts[i]
		}
	}
	return out, nil
}

var _ Source = (*Live)(nil)
