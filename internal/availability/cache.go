package availability

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/litebrick/consult-bookings/internal/domain"
	"github.com/litebrick/consult-bookings/internal/schedule"
)

// Outcome is the explicit result of a cache operation. Callers treat Miss and Unavailable
// the same way (recompute) but can log them differently.
type Outcome int

const (
	Miss Outcome = iota
	Hit
	Stored
	Unavailable
)

func (o Outcome) String() string {
	switch o {
	case Hit:
		return "hit"
	case Stored:
		return "stored"
	case Unavailable:
		return "unavailable"
	default:
		return "miss"
	}
}

// SlotCache holds the computed free-slot list per date.
type SlotCache interface {
	Get(ctx context.Context, date schedule.Date) ([]domain.Slot, Outcome)
	Set(ctx context.Context, date schedule.Date, slots []domain.Slot, ttl time.Duration) Outcome
	Invalidate(ctx context.Context, date schedule.Date) Outcome
	Ping(ctx context.Context) error
}

const keyPrefix = "availability:"

func cacheKey(date schedule.Date) string {
	return keyPrefix + date.String()
}

// RedisCache stores slot lists as JSON under availability:YYYY-MM-DD.
type RedisCache struct {
	rdb     redis.UniversalClient
	timeout time.Duration
}

func NewRedisCache(rdb redis.UniversalClient) *RedisCache {
	return &RedisCache{rdb: rdb, timeout: 500 * time.Millisecond}
}

func (c *RedisCache) Get(ctx context.Context, date schedule.Date) ([]domain.Slot, Outcome) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.rdb.Get(ctx, cacheKey(date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, Miss
	}
	if err != nil {
		return nil, Unavailable
	}

	var slots []domain.Slot
	if err := json.Unmarshal(raw, &slots); err != nil {
		// a corrupt entry is as good as none
		return nil, Miss
	}
	return slots, Hit
}

func (c *RedisCache) Set(ctx context.Context, date schedule.Date, slots []domain.Slot, ttl time.Duration) Outcome {
	if slots == nil {
		slots = []domain.Slot{}
	}
	raw, err := json.Marshal(slots)
	if err != nil {
		return Unavailable
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.rdb.Set(ctx, cacheKey(date), raw, ttl).Err(); err != nil {
		return Unavailable
	}
	return Stored
}

// Invalidate removes the entry; removing a missing key is not an error.
func (c *RedisCache) Invalidate(ctx context.Context, date schedule.Date) Outcome {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.rdb.Del(ctx, cacheKey(date)).Err(); err != nil {
		return Unavailable
	}
	return Stored
}

func (c *RedisCache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

// NoopCache is used when no Redis URL is configured: every read misses.
type NoopCache struct{}

func (NoopCache) Get(context.Context, schedule.Date) ([]domain.Slot, Outcome) { return nil, Miss }

func (NoopCache) Set(context.Context, schedule.Date, []domain.Slot, time.Duration) Outcome {
	return Unavailable
}

func (NoopCache) Invalidate(context.Context, schedule.Date) Outcome { return Unavailable }

func (NoopCache) Ping(context.Context) error { return errors.New("cache not configured") }

var (
	_ SlotCache = (*RedisCache)(nil)
	_ SlotCache = NoopCache{}
)
