package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/litebrick/consult-bookings/internal/domain"
	"github.com/litebrick/consult-bookings/internal/notify"
	"github.com/litebrick/consult-bookings/internal/platform/calendar"
	"github.com/litebrick/consult-bookings/internal/utils"
	"github.com/litebrick/consult-bookings/pkg/logger"
)

// sideEffect is the result of a best-effort step. It is inspected for logging only.
type sideEffect struct {
	name    string
	skipped bool
	err     error
}

func (s sideEffect) log(ctx context.Context) {
	switch {
	case s.err != nil:
		logger.WarnContext(ctx, "side effect failed", "step", s.name, "error", s.err)
	case s.skipped:
		logger.DebugContext(ctx, "side effect skipped", "step", s.name)
	default:
		logger.DebugContext(ctx, "side effect done", "step", s.name)
	}
}

func (m *Manager) sideEffectContext(ctx context.Context) (context.Context, context.CancelFunc) {
	// a client hanging up must not cut a side effect short
	return context.WithTimeout(context.WithoutCancel(ctx), m.sideEffectTimeout)
}

func (m *Manager) createEvent(ctx context.Context, r *domain.Reservation, contact string) (string, sideEffect) {
	fx := sideEffect{name: "calendar.create"}
	ctx, cancel := m.sideEffectContext(ctx)
	defer cancel()

	id, err := m.calendar.CreateEvent(ctx, calendar.NewEvent{
		Summary: "Consultation",
		Description: fmt.Sprintf("Contact: %s (%s)\nReservation: %s",
			utils.MaskContact(contact), r.ContactKind, r.ID),
		Start: r.Start,
		End:   r.End,
	})
	switch {
	case errors.Is(err, calendar.ErrNotConfigured):
		fx.skipped = true
	case err != nil:
		fx.err = err
	}
	return id, fx
}

func (m *Manager) deleteEvent(ctx context.Context, eventID, reason string) sideEffect {
	fx := sideEffect{name: "calendar.delete." + reason}
	ctx, cancel := m.sideEffectContext(ctx)
	defer cancel()

	err := m.calendar.DeleteEvent(ctx, eventID)
	switch {
	case errors.Is(err, calendar.ErrNotConfigured), errors.Is(err, calendar.ErrEventNotFound):
		fx.skipped = true
	case err != nil:
		fx.err = err
	}
	return fx
}

func (m *Manager) notifyCreated(ctx context.Context, r *domain.Reservation, contact string) sideEffect {
	ctx, cancel := m.sideEffectContext(ctx)
	defer cancel()
	return sideEffect{
		name: "notify.created",
		err:  m.notifier.ReservationCreated(ctx, notify.NoticeFor(r, contact, m.schedule.Location)),
	}
}

func (m *Manager) notifyCancelled(ctx context.Context, r *domain.Reservation, contact string) sideEffect {
	ctx, cancel := m.sideEffectContext(ctx)
	defer cancel()
	return sideEffect{
		name: "notify.cancelled",
		err:  m.notifier.ReservationCancelled(ctx, notify.NoticeFor(r, contact, m.schedule.Location)),
	}
}
