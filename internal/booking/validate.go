package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/litebrick/consult-bookings/internal/domain"
	"github.com/litebrick/consult-bookings/internal/schedule"
	"github.com/litebrick/consult-bookings/internal/utils"
)

type createInput struct {
	date    schedule.Date
	slot    domain.Slot
	contact string
	kind    domain.ContactKind
}

func (m *Manager) validateCreate(req domain.ReservationReq, now time.Time) (createInput, error) {
	verr := domain.NewValidationError("invalid reservation request")
	var in createInput

	dateOK := false
	switch {
	case strings.TrimSpace(req.Date) == "":
		verr.Add("date", "date is required")
	default:
		d, err := schedule.ParseDate(strings.TrimSpace(req.Date))
		if err != nil {
			verr.Add("date", "date must be in YYYY-MM-DD format")
		} else if d.Before(m.schedule.DateOf(now)) {
			verr.Add("date", "date must not be in the past")
		} else {
			in.date, dateOK = d, true
		}
	}

	start, startOK := parseInstant(verr, "startInstant", req.StartInstant)
	end, endOK := parseInstant(verr, "endInstant", req.EndInstant)

	kind, kindOK := domain.ParseContactKind(strings.ToUpper(strings.TrimSpace(req.ContactKind)))
	if !kindOK {
		verr.Add("contactKind", "contactKind must be EMAIL or HANDLE")
	}
	in.kind = kind

	contact := strings.TrimSpace(req.Contact)
	switch {
	case contact == "":
		verr.Add("contact", "contact is required")
	case kind == domain.ContactEmail && !utils.IsValidEmail(contact):
		verr.Add("contact", "contact must be a valid email address")
	case kind == domain.ContactHandle && !utils.IsValidHandle(contact):
		verr.Add("contact", "contact must be a handle of 5-32 letters, digits or underscores")
	case kind == domain.ContactEmail:
		in.contact = utils.NormalizeEmail(contact)
	case kind == domain.ContactHandle:
		in.contact = utils.NormalizeHandle(contact)
	}

	switch {
	case req.ConsentGiven == nil:
		verr.Add("consentGiven", "consent is required")
	case !*req.ConsentGiven:
		verr.Add("consentGiven", "consent to personal data processing must be given")
	}

	if startOK && endOK {
		in.slot = domain.Slot{Start: start.UTC(), End: end.UTC()}
		if !end.After(start) {
			verr.Add("endInstant", "endInstant must be after startInstant")
		} else if end.Sub(start) != m.schedule.SlotDuration {
			verr.Add("endInstant", fmt.Sprintf("slot must last exactly %d minutes", int(m.schedule.SlotDuration/time.Minute)))
		}
	}

	if dateOK && startOK {
		if m.schedule.DateOf(start) != in.date {
			verr.Add("startInstant", "startInstant must fall on the requested date")
		}
	}

	if err := verr.OrNil(); err != nil {
		return createInput{}, err
	}

	if !m.schedule.Bookable(in.date, in.slot, now) {
		if onGrid(m.schedule.Grid(in.date), in.slot) {
			verr.Add("startInstant", fmt.Sprintf("slot must start at least %s from now", m.schedule.MinAdvance))
		} else {
			verr.Add("startInstant", "startInstant is not a bookable slot")
		}
		return createInput{}, verr
	}
	return in, nil
}

func parseInstant(verr *domain.ValidationError, field, v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		verr.Add(field, field+" is required")
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		verr.Add(field, field+" must be an RFC 3339 timestamp")
		return time.Time{}, false
	}
	return t, true
}

func onGrid(grid []domain.Slot, s domain.Slot) bool {
	for _, g := range grid {
		if g.Start.Equal(s.Start) && g.End.Equal(s.End) {
			return true
		}
	}
	return false
}

func parseCancelStatus(status string) error {
	st, ok := domain.ParseReservationStatus(strings.ToUpper(strings.TrimSpace(status)))
	if !ok || st != domain.StatusCancelled {
		verr := domain.NewValidationError("unsupported status transition")
		verr.Add("status", "status must be CANCELLED")
		return verr
	}
	return nil
}
