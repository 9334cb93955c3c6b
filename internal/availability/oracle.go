// Package availability computes which slots of a business day are free by merging the
// external calendar with the confirmed reservations in the store, and caches the result.
package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/litebrick/consult-bookings/internal/domain"
	"github.com/litebrick/consult-bookings/internal/platform/calendar"
)

const (
	SourceCalendar    = "calendar"
	SourceReservation = "reservation"
)

// ReservationReader is the slice of the store the oracle needs.
type ReservationReader interface {
	ListConfirmedOverlapping(ctx context.Context, from, to time.Time) ([]domain.Reservation, error)
}

// Interval is a busy period. Start is inclusive, End exclusive.
type Interval struct {
	Start  time.Time
	End    time.Time
	Source string
}

// BusySet is ordered by Start.
type BusySet []Interval

// Conflicts reports whether [start, end) overlaps any busy interval.
func (b BusySet) Conflicts(start, end time.Time) bool {
	s := domain.Slot{Start: start, End: end}
	for _, iv := range b {
		if s.Overlaps(iv.Start, iv.End) {
			return true
		}
	}
	return false
}

// Free keeps the slots that overlap nothing in b, preserving order.
func (b BusySet) Free(slots []domain.Slot) []domain.Slot {
	out := make([]domain.Slot, 0, len(slots))
	for _, s := range slots {
		if !b.Conflicts(s.Start, s.End) {
			out = append(out, s)
		}
	}
	return out
}

// Oracle merges the calendar and the store into one busy set.
type Oracle struct {
	calendar calendar.Client
	store    ReservationReader
}

func NewOracle(cal calendar.Client, store ReservationReader) *Oracle {
	if cal == nil {
		cal = calendar.Unconfigured{}
	}
	return &Oracle{calendar: cal, store: store}
}

// Busy fetches calendar events and confirmed reservations overlapping [from, to) concurrently.
// The store is hit with a single range query. A calendar failure is reported as
// *domain.ServiceUnavailableError because availability cannot be trusted without it; the
// caller's own cancellation is returned as is.
func (o *Oracle) Busy(ctx context.Context, from, to time.Time) (BusySet, error) {
	var (
		events       []calendar.Event
		reservations []domain.Reservation
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		evs, err := o.calendar.ListEvents(gctx, from, to)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return &domain.ServiceUnavailableError{Service: "calendar", Err: err}
		}
		events = evs
		return nil
	})
	g.Go(func() error {
		rs, err := o.store.ListConfirmedOverlapping(gctx, from, to)
		if err != nil {
			return fmt.Errorf("list confirmed reservations: %w", err)
		}
		reservations = rs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	busy := make(BusySet, 0, len(events)+len(reservations))
	for _, ev := range events {
		if ev.AllDay || ev.Start.IsZero() || ev.End.IsZero() {
			continue
		}
		if !ev.Start.Before(to) || !ev.End.After(from) {
			continue
		}
		busy = append(busy, Interval{Start: ev.Start.UTC(), End: ev.End.UTC(), Source: SourceCalendar})
	}
	for _, r := range reservations {
		if r.Status != domain.StatusConfirmed {
			continue
		}
		busy = append(busy, Interval{Start: r.Start.UTC(), End: r.End.UTC(), Source: SourceReservation})
	}
	sort.SliceStable(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })
	return busy, nil
}

// Check reports whether [start, end) is busy right now.
func (o *Oracle) Check(ctx context.Context, start, end time.Time) (bool, error) {
	busy, err := o.Busy(ctx, start, end)
	if err != nil {
		return false, err
	}
	return busy.Conflicts(start, end), nil
}
