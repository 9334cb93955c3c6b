// Package testutil holds in-memory collaborators shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/litebrick/consult-bookings/internal/availability"
	"github.com/litebrick/consult-bookings/internal/domain"
	"github.com/litebrick/consult-bookings/internal/notify"
	"github.com/litebrick/consult-bookings/internal/platform/calendar"
	"github.com/litebrick/consult-bookings/internal/schedule"
)

// Journal records side effects across fakes so tests can assert their order.
type Journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *Journal) Record(format string, args ...any) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *Journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// Clock is a settable time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{t: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// MemStore mimics the Postgres store including the exclusion constraint on overlapping
// confirmed reservations.
type MemStore struct {
	mu    sync.Mutex
	rows  map[string]domain.Reservation
	audit []domain.AuditRecord

	Journal *Journal

	ListErr  error
	PurgeErr map[string]error
}

func NewMemStore() *MemStore {
	return &MemStore{rows: map[string]domain.Reservation{}, PurgeErr: map[string]error{}}
}

// Put seeds a row without the overlap check or an audit record.
func (s *MemStore) Put(r domain.Reservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[r.ID] = r
}

func (s *MemStore) Create(_ context.Context, r *domain.Reservation, audit domain.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.rows {
		if other.Status == domain.StatusConfirmed && r.Slot().Overlaps(other.Start, other.End) {
			s.Journal.Record("store:create-rejected")
			return domain.ErrSlotTaken
		}
	}
	s.rows[r.ID] = *r
	s.audit = append(s.audit, audit)
	s.Journal.Record("store:create")
	return nil
}

func (s *MemStore) Get(_ context.Context, id string) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "reservation"}
	}
	return &r, nil
}

func (s *MemStore) ListConfirmedOverlapping(_ context.Context, from, to time.Time) ([]domain.Reservation, error) {
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Reservation
	for _, r := range s.rows {
		if r.Status == domain.StatusConfirmed && r.Slot().Overlaps(from, to) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *MemStore) FindNextByContactDigest(_ context.Context, digest string, now time.Time) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *domain.Reservation
	for _, r := range s.rows {
		if r.Status != domain.StatusConfirmed || r.ContactDigest != digest || r.Start.Before(now) {
			continue
		}
		if best == nil || r.Start.Before(best.Start) {
			r := r
			best = &r
		}
	}
	if best == nil {
		return nil, &domain.NotFoundError{Resource: "reservation"}
	}
	return best, nil
}

func (s *MemStore) Cancel(_ context.Context, id string, audit domain.AuditRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok || r.Status != domain.StatusConfirmed {
		return false, nil
	}
	r.Status = domain.StatusCancelled
	s.rows[id] = r
	s.audit = append(s.audit, audit)
	s.Journal.Record("store:cancel")
	return true, nil
}

func (s *MemStore) ListPurgeable(_ context.Context, before time.Time, limit int) ([]domain.Reservation, error) {
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Reservation
	for _, r := range s.rows {
		if r.PurgeEligible(before) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].End.Before(out[j].End) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) Purge(_ context.Context, id string, audit domain.AuditRecord) (bool, error) {
	if err := s.PurgeErr[id]; err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return false, nil
	}
	delete(s.rows, id)
	s.audit = append(s.audit, audit)
	s.Journal.Record("store:purge")
	return true, nil
}

func (s *MemStore) ListAudit(_ context.Context, limit int) ([]domain.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]domain.AuditRecord(nil), s.audit...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Audit returns every audit record in insertion order.
func (s *MemStore) Audit() []domain.AuditRecord {
	out, _ := s.ListAudit(context.Background(), 0)
	return out
}

func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// FakeCalendar is a scripted calendar.Client.
type FakeCalendar struct {
	mu      sync.Mutex
	events  map[string]calendar.Event
	nextID  int
	Created []calendar.NewEvent
	Deleted []string

	Journal   *Journal
	ListErr   error
	CreateErr error
	DeleteErr error
}

func NewFakeCalendar(events ...calendar.Event) *FakeCalendar {
	c := &FakeCalendar{events: map[string]calendar.Event{}}
	for _, ev := range events {
		c.events[ev.ID] = ev
	}
	return c
}

func (c *FakeCalendar) Configured() bool { return true }

func (c *FakeCalendar) ListEvents(_ context.Context, from, to time.Time) ([]calendar.Event, error) {
	if c.ListErr != nil {
		return nil, c.ListErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []calendar.Event
	for _, ev := range c.events {
		if ev.AllDay || (ev.Start.Before(to) && ev.End.After(from)) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (c *FakeCalendar) CreateEvent(_ context.Context, ev calendar.NewEvent) (string, error) {
	if c.CreateErr != nil {
		c.Journal.Record("calendar:create-failed")
		return "", c.CreateErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := fmt.Sprintf("evt-%d", c.nextID)
	c.events[id] = calendar.Event{ID: id, Summary: ev.Summary, Start: ev.Start, End: ev.End}
	c.Created = append(c.Created, ev)
	c.Journal.Record("calendar:create")
	return id, nil
}

func (c *FakeCalendar) DeleteEvent(_ context.Context, id string) error {
	if c.DeleteErr != nil {
		return c.DeleteErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.events[id]; !ok {
		return calendar.ErrEventNotFound
	}
	delete(c.events, id)
	c.Deleted = append(c.Deleted, id)
	c.Journal.Record("calendar:delete")
	return nil
}

// MemCache is an in-process availability.SlotCache that journals invalidations.
type MemCache struct {
	mu      sync.Mutex
	entries map[string][]domain.Slot

	Journal     *Journal
	Down        bool
	Invalidated []string
}

func NewMemCache() *MemCache {
	return &MemCache{entries: map[string][]domain.Slot{}}
}

func (c *MemCache) Get(_ context.Context, date schedule.Date) ([]domain.Slot, availability.Outcome) {
	if c.Down {
		return nil, availability.Unavailable
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	slots, ok := c.entries[date.String()]
	if !ok {
		return nil, availability.Miss
	}
	return append([]domain.Slot(nil), slots...), availability.Hit
}

func (c *MemCache) Set(_ context.Context, date schedule.Date, slots []domain.Slot, _ time.Duration) availability.Outcome {
	if c.Down {
		return availability.Unavailable
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[date.String()] = append([]domain.Slot(nil), slots...)
	return availability.Stored
}

func (c *MemCache) Invalidate(_ context.Context, date schedule.Date) availability.Outcome {
	c.Journal.Record("cache:invalidate:%s", date)
	c.mu.Lock()
	c.Invalidated = append(c.Invalidated, date.String())
	c.mu.Unlock()
	if c.Down {
		return availability.Unavailable
	}
	c.mu.Lock()
	delete(c.entries, date.String())
	c.mu.Unlock()
	return availability.Stored
}

func (c *MemCache) Ping(context.Context) error {
	if c.Down {
		return fmt.Errorf("cache down")
	}
	return nil
}

func (c *MemCache) Has(date schedule.Date) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[date.String()]
	return ok
}

// RecordingNotifier keeps every notice it receives.
type RecordingNotifier struct {
	mu        sync.Mutex
	Created   []notify.Notice
	Cancelled []notify.Notice
	Err       error
}

func (n *RecordingNotifier) ReservationCreated(_ context.Context, nt notify.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Created = append(n.Created, nt)
	return n.Err
}

func (n *RecordingNotifier) ReservationCancelled(_ context.Context, nt notify.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Cancelled = append(n.Cancelled, nt)
	return n.Err
}

var (
	_ calendar.Client        = (*FakeCalendar)(nil)
	_ availability.SlotCache = (*MemCache)(nil)
	_ notify.Notifier        = (*RecordingNotifier)(nil)
)
