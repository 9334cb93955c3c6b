// Package retention runs the periodic purge of expired reservations and other housekeeping.
package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/litebrick/consult-bookings/internal/booking"
	"github.com/litebrick/consult-bookings/pkg/logger"
)

// DefaultSchedule runs the sweep daily at 02:00 UTC.
const DefaultSchedule = "0 2 * * *"

type purger interface {
	PurgeExpired(ctx context.Context) (booking.PurgeReport, error)
}

// Task is extra housekeeping run after every purge, e.g. dropping stale rate-limit windows.
type Task func(ctx context.Context) error

type namedTask struct {
	name string
	run  Task
}

type Sweeper struct {
	purger   purger
	schedule string
	timeout  time.Duration
	tasks    []namedTask

	mu sync.Mutex
}

// New validates spec (standard five-field cron syntax) up front.
func New(p purger, spec string) (*Sweeper, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", spec, err)
	}
	return &Sweeper{purger: p, schedule: spec, timeout: 5 * time.Minute}, nil
}

func (s *Sweeper) AddTask(name string, t Task) {
	s.tasks = append(s.tasks, namedTask{name: name, run: t})
}

// RunOnce performs one sweep. Overlapping runs are skipped, not queued.
func (s *Sweeper) RunOnce(ctx context.Context) (booking.PurgeReport, error) {
	if !s.mu.TryLock() {
		logger.WarnContext(ctx, "retention sweep already running, skipping")
		return booking.PurgeReport{}, nil
	}
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "retention purge failed", "error", err)
	}

	for _, t := range s.tasks {
		if terr := t.run(ctx); terr != nil {
			logger.ErrorContext(ctx, "retention task failed", "task", t.name, "error", terr)
		}
	}
	return report, err
}

// Start blocks until ctx is done, running a sweep on every schedule tick. It waits for an
// in-flight sweep to finish before returning.
func (s *Sweeper) Start(ctx context.Context) {
	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc(s.schedule, func() {
		_, _ = s.RunOnce(ctx)
	})
	if err != nil {
		logger.ErrorContext(ctx, "retention sweeper not started", "error", err)
		return
	}

	c.Start()
	logger.InfoContext(ctx, "retention sweeper started", "schedule", s.schedule)

	<-ctx.Done()
	<-c.Stop().Done()
	logger.InfoContext(ctx, "retention sweeper stopped")
}
