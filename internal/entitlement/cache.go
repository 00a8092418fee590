package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultCacheTTL is how long a premium answer is reused.
const DefaultCacheTTL = 10 * time.Minute

// Cached memoises another Checker in Redis. Redis failures fall through to
// the wrapped checker.
type Cached struct {
	next   Checker
	client redis.UniversalClient
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCached wraps next. A nil client disables caching.
func NewCached(next Checker, client redis.UniversalClient, ttl time.Duration, logger zerolog.Logger) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "entitlement_cache").Logger(),
	}
}

// IsPremium implements Checker.
func (c *Cached) IsPremium(ctx context.Context, userID string) (bool, error) {
	if c.client == nil {
		return c.next.IsPremium(ctx, userID)
	}
	key := "routecast:premium:" + userID

	val, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return val == "1", nil
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn().Err(err).Msg("entitlement cache read failed")
	}

	ok, err := c.next.IsPremium(ctx, userID)
	if err != nil {
		return false, err
	}
	val = "0"
	if ok {
		val = "1"
	}
	if err := c.client.Set(ctx, key, val, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("entitlement cache write failed")
	}
	return ok, nil
}

var _ Checker = (*Cached)(nil)
