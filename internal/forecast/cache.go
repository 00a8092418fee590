package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lhildreth66/Routecast2-sub001/internal/domain"
)

// DefaultCacheTTL bounds how long a fetched forecast is reused.
const DefaultCacheTTL = 15 * time.Minute

// CachedSource fronts a Source with Redis. Cache errors never fail a fetch.
type CachedSource struct {
	next   Source
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger zerolog.Logger
}

// NewCachedSource wraps next. A nil client disables caching.
func NewCachedSource(next Source, client redis.UniversalClient, ttl time.Duration, logger zerolog.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedSource{
		next:   next,
		client: client,
		ttl:    ttl,
		prefix: "routecast:forecast",
		logger: logger.With().Str("component", "forecast_cache").Logger(),
	}
}

// Hourly implements Source.
func (c *CachedSource) Hourly(ctx context.Context, lat, lon float64, from time.Time, hours int) ([]domain.HourlyForecast, error) {
	if c.client == nil {
		return c.next.Hourly(ctx, lat, lon, from, hours)
	}
	key := c.key(lat, lon, from, hours)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []domain.HourlyForecast
		if jerr := json.Unmarshal(raw, &cached); jerr == nil {
			return cached, nil
		}
		c.logger.Warn().Str("key", key).Msg("discarding unreadable cache entry")
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn().Err(err).Msg("forecast cache read failed")
	}

	out, err := c.next.Hourly(ctx, lat, lon, from, hours)
	if err != nil {
		return nil, err
	}

	if payload, jerr := json.Marshal(out); jerr == nil {
		if serr := c.client.Set(ctx, key, payload, c.ttl).Err(); serr != nil {
			c.logger.Warn().Err(serr).Msg("forecast cache write failed")
		}
	}
	return out, nil
}

// Coordinates are rounded to roughly 1 km so nearby trips share entries.
func (c *CachedSource) key(lat, lon float64, from time.Time, hours int) string {
	return fmt.Sprintf("%s:%.2f:%.2f:%d:%d", c.prefix, lat, lon, domain.DepartureHour(from).Unix(), hours)
}

var _ Source = (*CachedSource)(nil)
