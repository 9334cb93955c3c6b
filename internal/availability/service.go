package availability

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/litebrick/consult-bookings/internal/domain"
	"github.com/litebrick/consult-bookings/internal/schedule"
	"github.com/litebrick/consult-bookings/pkg/logger"
)

const (
	DefaultCacheTTL = 60 * time.Second
	MaxDateRange    = 31
	datesFanOut     = 4

	// computeTimeout bounds a shared computation, which outlives any single caller.
	computeTimeout = 10 * time.Second
)

// Service answers "which slots are free on this date", read-through the cache.
type Service struct {
	schedule schedule.Config
	oracle   *Oracle
	cache    SlotCache
	ttl      time.Duration
	now      func() time.Time

	group singleflight.Group
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewService(cfg schedule.Config, oracle *Oracle, cache SlotCache, opts ...Option) *Service {
	if cache == nil {
		cache = NoopCache{}
	}
	s := &Service{
		schedule: cfg,
		oracle:   oracle,
		cache:    cache,
		ttl:      DefaultCacheTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FreeSlots returns the bookable free slots of date in start order.
//
// The cached value is the free part of the whole grid; the advance-notice cutoff is applied
// on every read because an entry can be up to one TTL old.
func (s *Service) FreeSlots(ctx context.Context, date schedule.Date) ([]domain.Slot, error) {
	cutoff := s.schedule.Cutoff(s.now())

	if slots, outcome := s.cache.Get(ctx, date); outcome == Hit {
		logger.DebugContext(ctx, "availability cache hit", "date", date.String())
		return schedule.FilterFrom(slots, cutoff), nil
	} else if outcome == Unavailable {
		logger.WarnContext(ctx, "availability cache unavailable, computing", "date", date.String())
	}

	ch := s.group.DoChan(date.String(), func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), computeTimeout)
		defer cancel()
		return s.compute(cctx, date)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return schedule.FilterFrom(res.Val.([]domain.Slot), cutoff), nil
	}
}

func (s *Service) compute(ctx context.Context, date schedule.Date) ([]domain.Slot, error) {
	grid := s.schedule.Grid(date)
	if len(grid) == 0 {
		return []domain.Slot{}, nil
	}

	from, to := s.schedule.Window(date)
	busy, err := s.oracle.Busy(ctx, from, to)
	if err != nil {
		return nil, err
	}

	free := busy.Free(grid)
	if outcome := s.cache.Set(ctx, date, free, s.ttl); outcome == Unavailable {
		logger.WarnContext(ctx, "availability cache write skipped", "date", date.String())
	}
	return free, nil
}

// Invalidate drops the cached entry for date. It never fails; the outcome is returned for logging.
func (s *Service) Invalidate(ctx context.Context, date schedule.Date) Outcome {
	return s.cache.Invalidate(ctx, date)
}

// CachePing reports cache connectivity for health checks.
func (s *Service) CachePing(ctx context.Context) error {
	return s.cache.Ping(ctx)
}

// Dates reports for every date in [from, to] whether at least one slot is free.
// Past dates and dates whose computation fails are reported as unavailable.
func (s *Service) Dates(ctx context.Context, from, to schedule.Date) ([]domain.AvailableDate, error) {
	if to.Before(from) {
		v := domain.NewValidationError("invalid date range")
		v.Add("to", "must not be before from")
		return nil, v
	}
	n := 0
	for d := from; !to.Before(d); d = d.AddDays(1) {
		n++
		if n > MaxDateRange {
			v := domain.NewValidationError("date range too long")
			v.Add("to", "range must not exceed 31 days")
			return nil, v
		}
	}

	today := s.schedule.DateOf(s.now())
	out := make([]domain.AvailableDate, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(datesFanOut)
	for i := 0; i < n; i++ {
		i := i
		d := from.AddDays(i)
		out[i] = domain.AvailableDate{Date: d.String()}
		if d.Before(today) {
			continue
		}
		g.Go(func() error {
			slots, err := s.FreeSlots(gctx, d)
			if err != nil {
				logger.WarnContext(gctx, "availability check failed", "date", d.String(), "error", err)
				return nil
			}
			out[i].HasAvailableSlots = len(slots) > 0
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}
