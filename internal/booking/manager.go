// Package booking owns the reservation lifecycle: create, cancel, lookup and retention purge.
//
// Correctness rests on two things: the store's exclusion constraint on overlapping confirmed
// reservations, and invalidating the availability cache before every durable mutation.
// Calendar writes and notifications are side effects that are logged and never abort a booking.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/litebrick/consult-bookings/internal/availability"
	"github.com/litebrick/consult-bookings/internal/domain"
	"github.com/litebrick/consult-bookings/internal/notify"
	"github.com/litebrick/consult-bookings/internal/platform/calendar"
	"github.com/litebrick/consult-bookings/internal/schedule"
	"github.com/litebrick/consult-bookings/internal/utils"
	"github.com/litebrick/consult-bookings/pkg/logger"
)

const (
	DefaultRetention         = 60 * time.Minute
	DefaultSideEffectTimeout = 5 * time.Second
	purgeBatch               = 500
)

type Deps struct {
	Schedule schedule.Config
	Store    Store
	Oracle   *availability.Oracle
	Cache    availability.SlotCache
	Calendar calendar.Client
	Sealer   ContactSealer
	Notifier notify.Notifier
}

type Manager struct {
	schedule schedule.Config
	store    Store
	oracle   *availability.Oracle
	cache    availability.SlotCache
	calendar calendar.Client
	sealer   ContactSealer
	notifier notify.Notifier

	retention         time.Duration
	sideEffectTimeout time.Duration
	now               func() time.Time
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRetention sets how long after its end a confirmed reservation is kept.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.retention = d
		}
	}
}

func WithSideEffectTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.sideEffectTimeout = d
		}
	}
}

func NewManager(d Deps, opts ...Option) *Manager {
	m := &Manager{
		schedule:          d.Schedule,
		store:             d.Store,
		oracle:            d.Oracle,
		cache:             d.Cache,
		calendar:          d.Calendar,
		sealer:            d.Sealer,
		notifier:          d.Notifier,
		retention:         DefaultRetention,
		sideEffectTimeout: DefaultSideEffectTimeout,
		now:               time.Now,
	}
	if m.cache == nil {
		m.cache = availability.NoopCache{}
	}
	if m.calendar == nil {
		m.calendar = calendar.Unconfigured{}
	}
	if m.notifier == nil {
		m.notifier = notify.Nop{}
	}
	if m.oracle == nil {
		m.oracle = availability.NewOracle(m.calendar, m.store)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create books one slot. The returned reservation carries the plaintext contact.
func (m *Manager) Create(ctx context.Context, req domain.ReservationReq) (*domain.Reservation, error) {
	now := m.now()
	in, err := m.validateCreate(req, now)
	if err != nil {
		return nil, err
	}

	busy, err := m.oracle.Check(ctx, in.slot.Start, in.slot.End)
	if err != nil {
		return nil, err
	}
	if busy {
		return nil, slotTaken()
	}

	sealed, err := m.sealer.Seal(in.contact)
	if err != nil {
		return nil, fmt.Errorf("seal contact: %w", err)
	}

	r := &domain.Reservation{
		ID:            uuid.NewString(),
		Date:          m.schedule.Midnight(in.date),
		Start:         in.slot.Start,
		End:           in.slot.End,
		Contact:       sealed,
		ContactDigest: m.sealer.Digest(in.contact),
		ContactKind:   in.kind,
		ConsentGiven:  true,
		Status:        domain.StatusConfirmed,
		CreatedAt:     now.UTC(),
	}
	ctx = logger.WithReservationID(ctx, r.ID)

	m.invalidate(ctx, in.date, "before create")

	eventID, fx := m.createEvent(ctx, r, in.contact)
	fx.log(ctx)
	if eventID != "" {
		r.ExternalEventID = &eventID
	}

	if err := m.store.Create(ctx, r, domain.NewCreatedAudit(r, now)); err != nil {
		if r.HasExternalEvent() {
			m.deleteEvent(ctx, *r.ExternalEventID, "rollback").log(ctx)
		}
		if errors.Is(err, domain.ErrSlotTaken) {
			logger.InfoContext(ctx, "concurrent booking lost the slot", "date", in.date.String())
			return nil, slotTaken()
		}
		return nil, fmt.Errorf("create reservation: %w", err)
	}

	m.invalidate(ctx, in.date, "after create")
	m.notifyCreated(ctx, r, in.contact).log(ctx)

	logger.InfoContext(ctx, "reservation created",
		"date", in.date.String(),
		"start", r.Start.Format(time.RFC3339),
		"contact", utils.MaskContact(in.contact),
		"calendar_event", r.HasExternalEvent(),
	)

	out := *r
	out.Contact = in.contact
	return &out, nil
}

// Cancel moves a confirmed reservation to CANCELLED. Only that transition exists; repeating it
// is a validation error rather than a no-op.
func (m *Manager) Cancel(ctx context.Context, id, status string) (*domain.Reservation, error) {
	if err := parseCancelStatus(status); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, &domain.NotFoundError{Resource: "reservation"}
	}
	ctx = logger.WithReservationID(ctx, id)

	r, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.CanCancel() {
		return nil, alreadyCancelled()
	}

	now := m.now()
	date := m.schedule.DateOf(r.Start)
	m.invalidate(ctx, date, "before cancel")

	ok, err := m.store.Cancel(ctx, r.ID, domain.NewCancelledAudit(r, now))
	if err != nil {
		return nil, fmt.Errorf("cancel reservation: %w", err)
	}
	if !ok {
		return nil, alreadyCancelled()
	}
	r.Status = domain.StatusCancelled

	if r.HasExternalEvent() && r.End.After(now) {
		m.deleteEvent(ctx, *r.ExternalEventID, "cancel").log(ctx)
	}

	m.invalidate(ctx, date, "after cancel")

	contact, openErr := m.sealer.Open(r.Contact)
	if openErr != nil {
		logger.WarnContext(ctx, "cannot open contact for cancellation notice", "error", openErr)
	} else {
		m.notifyCancelled(ctx, r, contact).log(ctx)
	}

	logger.InfoContext(ctx, "reservation cancelled", "date", date.String())
	return m.masked(ctx, r), nil
}

// CancelByContact cancels the nearest upcoming reservation of contact.
func (m *Manager) CancelByContact(ctx context.Context, contact, status string) (*domain.Reservation, error) {
	if err := parseCancelStatus(status); err != nil {
		return nil, err
	}
	r, err := m.lookup(ctx, contact)
	if err != nil {
		return nil, err
	}
	return m.Cancel(ctx, r.ID, status)
}

// LookupByContact returns the nearest upcoming confirmed reservation whose contact digest
// matches. The contact in the result is masked.
func (m *Manager) LookupByContact(ctx context.Context, contact string) (*domain.Reservation, error) {
	r, err := m.lookup(ctx, contact)
	if err != nil {
		return nil, err
	}
	return m.masked(ctx, r), nil
}

func (m *Manager) lookup(ctx context.Context, contact string) (*domain.Reservation, error) {
	if strings.TrimPrefix(strings.TrimSpace(contact), "@") == "" {
		verr := domain.NewValidationError("contact is required")
		verr.Add("contact", "contact is required")
		return nil, verr
	}
	return m.store.FindNextByContactDigest(ctx, m.sealer.Digest(contact), m.now().UTC())
}

// Get returns a reservation with its contact masked.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Reservation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, &domain.NotFoundError{Resource: "reservation"}
	}
	r, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.masked(ctx, r), nil
}

func (m *Manager) ListAudit(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	return m.store.ListAudit(ctx, limit)
}

func (m *Manager) masked(ctx context.Context, r *domain.Reservation) *domain.Reservation {
	out := *r
	plain, err := m.sealer.Open(r.Contact)
	if err != nil {
		logger.WarnContext(ctx, "cannot open stored contact", "reservation_id", r.ID, "error", err)
		out.Contact = "***"
		return &out
	}
	out.Contact = utils.MaskContact(plain)
	return &out
}

func (m *Manager) invalidate(ctx context.Context, date schedule.Date, stage string) {
	if outcome := m.cache.Invalidate(ctx, date); outcome == availability.Unavailable {
		logger.WarnContext(ctx, "availability cache invalidation skipped", "date", date.String(), "stage", stage)
	}
}

func slotTaken() error {
	return &domain.ConflictError{Message: "the selected slot is no longer available", Field: "startInstant"}
}

func alreadyCancelled() error {
	verr := domain.NewValidationError("reservation cannot be cancelled")
	verr.Add("status", "reservation is already cancelled")
	return verr
}
