package domain

import (
	"time"
)

type ReservationStatus string

const (
	StatusConfirmed ReservationStatus = "CONFIRMED"
	StatusCancelled ReservationStatus = "CANCELLED"
)

func ParseReservationStatus(s string) (ReservationStatus, bool) {
	switch ReservationStatus(s) {
	case StatusConfirmed, StatusCancelled:
		return ReservationStatus(s), true
	default:
		return "", false
	}
}

type ContactKind string

const (
	ContactEmail  ContactKind = "EMAIL"
	ContactHandle ContactKind = "HANDLE"
)

func ParseContactKind(s string) (ContactKind, bool) {
	switch ContactKind(s) {
	case ContactEmail, ContactHandle:
		return ContactKind(s), true
	default:
		return "", false
	}
}

// Slot is a candidate interval a reservation could occupy. Both ends are UTC.
type Slot struct {
	Start time.Time `json:"startInstant"`
	End   time.Time `json:"endInstant"`
}

// Overlaps reports strict half-open overlap; slots touching at a boundary do not overlap.
func (s Slot) Overlaps(start, end time.Time) bool {
	return s.Start.Before(end) && s.End.After(start)
}

// Reservation is the persisted booking. Contact holds the sealed (encrypted) value while at
// rest; ContactDigest is the keyed digest used for equality lookups.
type Reservation struct {
	ID              string            `json:"id"`
	Date            time.Time         `json:"date"`
	Start           time.Time         `json:"startInstant"`
	End             time.Time         `json:"endInstant"`
	Contact         string            `json:"contact"`
	ContactDigest   string            `json:"-"`
	ContactKind     ContactKind       `json:"contactKind"`
	ConsentGiven    bool              `json:"consentGiven"`
	Status          ReservationStatus `json:"status"`
	ExternalEventID *string           `json:"externalEventId,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// Slot returns the interval occupied by the reservation.
func (r *Reservation) Slot() Slot {
	return Slot{Start: r.Start, End: r.End}
}

func (r *Reservation) CanCancel() bool {
	return r.Status == StatusConfirmed
}

// PurgeEligible reports whether a confirmed reservation ended before cutoff.
func (r *Reservation) PurgeEligible(cutoff time.Time) bool {
	return r.Status == StatusConfirmed && r.End.Before(cutoff)
}

func (r *Reservation) HasExternalEvent() bool {
	return r.ExternalEventID != nil && *r.ExternalEventID != ""
}

// ReservationReq is the create payload accepted over HTTP.
type ReservationReq struct {
	Date         string `json:"date"`
	StartInstant string `json:"startInstant"`
	EndInstant   string `json:"endInstant"`
	Contact      string `json:"contact"`
	ContactKind  string `json:"contactKind"`
	ConsentGiven *bool  `json:"consentGiven"`
}

type StatusPatch struct {
	Status  string `json:"status"`
	Contact string `json:"contact,omitempty"`
}

type AvailableDate struct {
	Date              string `json:"date"`
	HasAvailableSlots bool   `json:"hasAvailableSlots"`
}
