// Package notify delivers reservation notices to the business owner. Delivery is best-effort:
// callers log failures and never roll a booking back because of them.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/litebrick/consult-bookings/internal/domain"
	"github.com/litebrick/consult-bookings/internal/utils"
)

// Notice describes a reservation event. Contact is plaintext; implementations decide how much
// of it leaves the process.
type Notice struct {
	ReservationID string
	Start         time.Time
	End           time.Time
	Contact       string
	ContactKind   domain.ContactKind
	// Location is used only for rendering times.
	Location *time.Location
}

func NoticeFor(r *domain.Reservation, contact string, loc *time.Location) Notice {
	return Notice{
		ReservationID: r.ID,
		Start:         r.Start,
		End:           r.End,
		Contact:       contact,
		ContactKind:   r.ContactKind,
		Location:      loc,
	}
}

type Notifier interface {
	ReservationCreated(ctx context.Context, n Notice) error
	ReservationCancelled(ctx context.Context, n Notice) error
}

// Multi fans a notice out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) ReservationCreated(ctx context.Context, n Notice) error {
	var errs []error
	for _, nt := range m {
		if err := nt.ReservationCreated(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) ReservationCancelled(ctx context.Context, n Notice) error {
	var errs []error
	for _, nt := range m {
		if err := nt.ReservationCancelled(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every notice.
type Nop struct{}

func (Nop) ReservationCreated(context.Context, Notice) error   { return nil }
func (Nop) ReservationCancelled(context.Context, Notice) error { return nil }

// FormatCreated renders the owner message for a new booking.
func FormatCreated(n Notice) string {
	return render("New consultation booking", n)
}

func FormatCancelled(n Notice) string {
	return render("Consultation cancelled", n)
}

func render(title string, n Notice) string {
	loc := n.Location
	if loc == nil {
		loc = time.UTC
	}
	start, end := n.Start.In(loc), n.End.In(loc)

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Date: %s\n", start.Format("Mon, 02 Jan 2006"))
	fmt.Fprintf(&b, "Time: %s-%s (%s)\n", start.Format("15:04"), end.Format("15:04"), start.Format("MST"))
	fmt.Fprintf(&b, "Contact: %s (%s)\n", contactLine(n), strings.ToLower(string(n.ContactKind)))
	fmt.Fprintf(&b, "Reservation: %s", n.ReservationID)
	return b.String()
}

func contactLine(n Notice) string {
	if n.ContactKind == domain.ContactHandle {
		return utils.NormalizeHandle(n.Contact)
	}
	return n.Contact
}
