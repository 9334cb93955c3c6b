package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/litebrick/consult-bookings/internal/domain"
	"github.com/litebrick/consult-bookings/pkg/events"
)

type contactSealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// Publisher hands notices to cmd/notify over the event bus. The contact never travels in
// plaintext.
type Publisher struct {
	bus    events.Publisher
	sealer contactSealer
	now    func() time.Time
}

func NewPublisher(bus events.Publisher, sealer contactSealer) *Publisher {
	return &Publisher{bus: bus, sealer: sealer, now: time.Now}
}

func (p *Publisher) ReservationCreated(ctx context.Context, n Notice) error {
	return p.publish(ctx, events.ReservationCreated, n)
}

func (p *Publisher) ReservationCancelled(ctx context.Context, n Notice) error {
	return p.publish(ctx, events.ReservationCancelled, n)
}

func (p *Publisher) publish(ctx context.Context, subject string, n Notice) error {
	sealed, err := p.sealer.Seal(n.Contact)
	if err != nil {
		return fmt.Errorf("seal contact for event: %w", err)
	}
	offset := 0
	if n.Location != nil {
		_, offset = n.Start.In(n.Location).Zone()
	}
	ev := events.ReservationEvent{
		ReservationID: n.ReservationID,
		StartUTC:      n.Start.UTC(),
		EndUTC:        n.End.UTC(),
		Contact:       sealed,
		ContactKind:   string(n.ContactKind),
		ZoneOffset:    offset,
		OccurredAt:    p.now().UTC(),
	}
	if err := p.bus.Publish(ctx, subject, ev); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Decode turns a bus message back into a Notice, opening the sealed contact.
func Decode(data []byte, sealer contactSealer) (Notice, error) {
	var ev events.ReservationEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return Notice{}, fmt.Errorf("decode reservation event: %w", err)
	}
	contact, err := sealer.Open(ev.Contact)
	if err != nil {
		return Notice{}, fmt.Errorf("open contact: %w", err)
	}
	return Notice{
		ReservationID: ev.ReservationID,
		Start:         ev.StartUTC,
		End:           ev.EndUTC,
		Contact:       contact,
		ContactKind:   domain.ContactKind(ev.ContactKind),
		Location:      zoneFor(ev.ZoneOffset),
	}, nil
}

func zoneFor(offset int) *time.Location {
	if offset == 0 {
		return time.UTC
	}
	sign := '+'
	abs := offset
	if offset < 0 {
		sign, abs = '-', -offset
	}
	return time.FixedZone(fmt.Sprintf("UTC%c%02d:%02d", sign, abs/3600, abs%3600/60), offset)
}

// Dispatch routes a decoded bus message to the matching Notifier method.
func Dispatch(ctx context.Context, target Notifier, subject string, n Notice) error {
	switch subject {
	case events.ReservationCreated:
		return target.ReservationCreated(ctx, n)
	case events.ReservationCancelled:
		return target.ReservationCancelled(ctx, n)
	default:
		return nil
	}
}

var _ Notifier = (*Publisher)(nil)
