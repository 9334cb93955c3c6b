package availability_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litebrick/consult-bookings/internal/availability"
	"github.com/litebrick/consult-bookings/internal/domain"
	"github.com/litebrick/consult-bookings/internal/platform/calendar"
	"github.com/litebrick/consult-bookings/internal/schedule"
	"github.com/litebrick/consult-bookings/internal/testutil"
)

var zone = time.FixedZone("UTC+03:00", 3*3600)

func businessDay() schedule.Config {
	return schedule.Config{
		Location:     zone,
		WorkStart:    schedule.ClockTime{Hour: 10},
		WorkEnd:      schedule.ClockTime{Hour: 18},
		SlotDuration: time.Hour,
		MinAdvance:   2 * time.Hour,
	}
}

func local(d schedule.Date, hour, minute int) time.Time {
	return time.Date(d.Year, d.Month, d.Day, hour, minute, 0, 0, zone)
}

type fixture struct {
	day   schedule.Date
	store *testutil.MemStore
	cal   *testutil.FakeCalendar
	cache *testutil.MemCache
	clock *testutil.Clock
	svc   *availability.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	day := schedule.Date{Year: 2025, Month: time.March, Day: 12}
	f := &fixture{
		day:   day,
		store: testutil.NewMemStore(),
		cal:   testutil.NewFakeCalendar(),
		cache: testutil.NewMemCache(),
		clock: testutil.NewClock(local(day, 9, 0)),
	}
	f.svc = availability.NewService(businessDay(), availability.NewOracle(f.cal, f.store), f.cache,
		availability.WithClock(f.clock.Now))
	return f
}

func starts(slots []domain.Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Start.In(zone).Format("15:04"))
	}
	return out
}

func TestFreeSlots_NoBusyIntervals(t *testing.T) {
	f := newFixture(t)

	slots, err := f.svc.FreeSlots(context.Background(), f.day)
	require.NoError(t, err)
	assert.Equal(t, []string{"11:00", "12:00", "13:00", "14:00", "15:00", "16:00", "17:00"}, starts(slots))
}

func TestFreeSlots_ExcludesReservationsAndCalendarEvents(t *testing.T) {
	f := newFixture(t)
	f.store.Put(domain.Reservation{
		ID: "r1", Status: domain.StatusConfirmed,
		Start: local(f.day, 14, 0).UTC(), End: local(f.day, 15, 0).UTC(),
	})
	f.store.Put(domain.Reservation{
		ID: "r2", Status: domain.StatusCancelled,
		Start: local(f.day, 12, 0).UTC(), End: local(f.day, 13, 0).UTC(),
	})
	f.cal = testutil.NewFakeCalendar(
		calendar.Event{ID: "e1", Start: local(f.day, 16, 0).UTC(), End: local(f.day, 16, 30).UTC()},
		calendar.Event{ID: "e2", AllDay: true, Start: time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC)},
	)
	f.svc = availability.NewService(businessDay(), availability.NewOracle(f.cal, f.store), f.cache,
		availability.WithClock(f.clock.Now))

	slots, err := f.svc.FreeSlots(context.Background(), f.day)
	require.NoError(t, err)
	assert.Equal(t, []string{"11:00", "12:00", "13:00", "15:00", "17:00"}, starts(slots))
}

func TestFreeSlots_BackToBackDoesNotConflict(t *testing.T) {
	f := newFixture(t)
	f.store.Put(domain.Reservation{
		ID: "r1", Status: domain.StatusConfirmed,
		Start: local(f.day, 13, 0).UTC(), End: local(f.day, 14, 0).UTC(),
	})

	slots, err := f.svc.FreeSlots(context.Background(), f.day)
	require.NoError(t, err)
	assert.Contains(t, starts(slots), "12:00")
	assert.Contains(t, starts(slots), "14:00")
	assert.NotContains(t, starts(slots), "13:00")
}

func TestFreeSlots_CalendarDownIsServiceUnavailable(t *testing.T) {
	f := newFixture(t)
	f.cal.ListErr = errors.New("dial tcp: timeout")

	_, err := f.svc.FreeSlots(context.Background(), f.day)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)

	var sue *domain.ServiceUnavailableError
	require.ErrorAs(t, err, &sue)
	assert.Equal(t, "calendar", sue.Service)
	assert.False(t, f.cache.Has(f.day))
}

func TestFreeSlots_CacheHitIsRefilteredByCutoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.FreeSlots(ctx, f.day)
	require.NoError(t, err)
	require.True(t, f.cache.Has(f.day))

	// a new busy interval is invisible while the entry lives
	f.store.Put(domain.Reservation{
		ID: "r1", Status: domain.StatusConfirmed,
		Start: local(f.day, 15, 0).UTC(), End: local(f.day, 16, 0).UTC(),
	})
	f.clock.Set(local(f.day, 10, 30))

	slots, err := f.svc.FreeSlots(ctx, f.day)
	require.NoError(t, err)
	assert.Equal(t, []string{"13:00", "14:00", "15:00", "16:00", "17:00"}, starts(slots))

	f.svc.Invalidate(ctx, f.day)
	slots, err = f.svc.FreeSlots(ctx, f.day)
	require.NoError(t, err)
	assert.NotContains(t, starts(slots), "15:00")
}

func TestFreeSlots_CacheDownFallsBackToSource(t *testing.T) {
	f := newFixture(t)
	f.cache.Down = true

	slots, err := f.svc.FreeSlots(context.Background(), f.day)
	require.NoError(t, err)
	assert.Len(t, slots, 7)
	assert.Error(t, f.svc.CachePing(context.Background()))
}

func TestFreeSlots_DayInsideNoticeWindow(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(local(f.day, 17, 0))

	slots, err := f.svc.FreeSlots(context.Background(), f.day)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

type countingCalendar struct {
	calendar.Unconfigured
	calls atomic.Int32
	gate  chan struct{}
}

func (c *countingCalendar) ListEvents(ctx context.Context, _, _ time.Time) ([]calendar.Event, error) {
	c.calls.Add(1)
	<-c.gate
	return nil, nil
}

func TestFreeSlots_ConcurrentMissesAreCoalesced(t *testing.T) {
	day := schedule.Date{Year: 2025, Month: time.March, Day: 12}
	cal := &countingCalendar{gate: make(chan struct{})}
	clock := testutil.NewClock(local(day, 9, 0))
	svc := availability.NewService(businessDay(), availability.NewOracle(cal, testutil.NewMemStore()),
		testutil.NewMemCache(), availability.WithClock(clock.Now))

	const callers = 8
	done := make(chan []domain.Slot, callers)
	for i := 0; i < callers; i++ {
		go func() {
			slots, err := svc.FreeSlots(context.Background(), day)
			assert.NoError(t, err)
			done <- slots
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(cal.gate)

	for i := 0; i < callers; i++ {
		assert.Len(t, <-done, 7)
	}
	assert.LessOrEqual(t, cal.calls.Load(), int32(2))
}

type blockingCalendar struct {
	calendar.Unconfigured
	started chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func (c *blockingCalendar) ListEvents(ctx context.Context, _, _ time.Time) ([]calendar.Event, error) {
	c.once.Do(func() { close(c.started) })
	select {
	case <-c.gate:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestFreeSlots_CancelledCallerDoesNotFailOthers(t *testing.T) {
	day := schedule.Date{Year: 2025, Month: time.March, Day: 12}
	cal := &blockingCalendar{started: make(chan struct{}), gate: make(chan struct{})}
	clock := testutil.NewClock(local(day, 9, 0))
	cache := testutil.NewMemCache()
	svc := availability.NewService(businessDay(), availability.NewOracle(cal, testutil.NewMemStore()),
		cache, availability.WithClock(clock.Now))

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := svc.FreeSlots(ctxA, day)
		errA <- err
	}()
	<-cal.started

	type result struct {
		slots []domain.Slot
		err   error
	}
	resB := make(chan result, 1)
	go func() {
		slots, err := svc.FreeSlots(context.Background(), day)
		resB <- result{slots, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	err := <-errA
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrServiceUnavailable)

	close(cal.gate)
	b := <-resB
	require.NoError(t, b.err)
	assert.Len(t, b.slots, 7)
	assert.True(t, cache.Has(day))
}

func TestOracle_CallerCancellationIsNotServiceUnavailable(t *testing.T) {
	cal := &blockingCalendar{started: make(chan struct{}), gate: make(chan struct{})}
	oracle := availability.NewOracle(cal, testutil.NewMemStore())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cal.started
		cancel()
	}()
	from := local(schedule.Date{Year: 2025, Month: time.March, Day: 12}, 0, 0)
	_, err := oracle.Busy(ctx, from, from.Add(24*time.Hour))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrServiceUnavailable)
}

func TestDates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// fill the whole of the 13th
	next := f.day.AddDays(1)
	f.cal = testutil.NewFakeCalendar(calendar.Event{ID: "busy", Start: local(next, 10, 0).UTC(), End: local(next, 18, 0).UTC()})
	f.svc = availability.NewService(businessDay(), availability.NewOracle(f.cal, f.store), f.cache,
		availability.WithClock(f.clock.Now))

	dates, err := f.svc.Dates(ctx, f.day.AddDays(-1), f.day.AddDays(2))
	require.NoError(t, err)
	require.Len(t, dates, 4)

	assert.Equal(t, domain.AvailableDate{Date: "2025-03-11", HasAvailableSlots: false}, dates[0])
	assert.Equal(t, domain.AvailableDate{Date: "2025-03-12", HasAvailableSlots: true}, dates[1])
	assert.Equal(t, domain.AvailableDate{Date: "2025-03-13", HasAvailableSlots: false}, dates[2])
	assert.Equal(t, domain.AvailableDate{Date: "2025-03-14", HasAvailableSlots: true}, dates[3])
}

func TestDates_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Dates(ctx, f.day, f.day.AddDays(-1))
	var v *domain.ValidationError
	require.ErrorAs(t, err, &v)

	_, err = f.svc.Dates(ctx, f.day, f.day.AddDays(31))
	require.ErrorAs(t, err, &v)

	dates, err := f.svc.Dates(ctx, f.day, f.day.AddDays(30))
	require.NoError(t, err)
	assert.Len(t, dates, 31)
}

func TestDates_FailuresReportedUnavailable(t *testing.T) {
	f := newFixture(t)
	f.cal.ListErr = errors.New("boom")

	dates, err := f.svc.Dates(context.Background(), f.day, f.day.AddDays(1))
	require.NoError(t, err)
	for _, d := range dates {
		assert.False(t, d.HasAvailableSlots)
	}
}
