package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/litebrick/consult-bookings/internal/platform/mailer"
)

// Mail sends owner notices by email.
type Mail struct {
	sender mailer.Sender
	to     string
}

func NewMail(sender mailer.Sender, ownerEmail string) *Mail {
	return &Mail{sender: sender, to: ownerEmail}
}

func (m *Mail) ReservationCreated(ctx context.Context, n Notice) error {
	return m.send(ctx, "New consultation booking", FormatCreated(n))
}

func (m *Mail) ReservationCancelled(ctx context.Context, n Notice) error {
	return m.send(ctx, "Consultation cancelled", FormatCancelled(n))
}

func (m *Mail) send(ctx context.Context, subject, text string) error {
	body := "<p>" + strings.ReplaceAll(html.EscapeString(text), "\n", "<br>") + "</p>"
	if _, err := m.sender.Send(ctx, m.to, "", subject, text, body); err != nil {
		return fmt.Errorf("mail notice: %w", err)
	}
	return nil
}

var _ Notifier = (*Mail)(nil)
