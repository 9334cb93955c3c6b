package domain

import (
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	AuditCreated   AuditAction = "CREATED"
	AuditCancelled AuditAction = "CANCELLED"
	AuditPurged    AuditAction = "PURGED"
)

// AuditMetadata never carries contact data. Date is the business-day marker as stored on the
// reservation.
type AuditMetadata struct {
	Date      time.Time  `json:"date"`
	EndUTC    time.Time  `json:"endUtc"`
	Status    string     `json:"status,omitempty"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// AuditRecord is append-only. ReservationID is nil once the reservation row is gone.
type AuditRecord struct {
	ID            string        `json:"id"`
	Action        AuditAction   `json:"action"`
	ReservationID *string       `json:"reservationId"`
	Metadata      AuditMetadata `json:"metadata"`
	CreatedAt     time.Time     `json:"createdAt"`
}

func NewCreatedAudit(r *Reservation, now time.Time) AuditRecord {
	id := r.ID
	return AuditRecord{
		ID:            uuid.NewString(),
		Action:        AuditCreated,
		ReservationID: &id,
		Metadata: AuditMetadata{
			Date:   r.Date.UTC(),
			EndUTC: r.End.UTC(),
			Status: string(StatusConfirmed),
		},
		CreatedAt: now.UTC(),
	}
}

func NewCancelledAudit(r *Reservation, now time.Time) AuditRecord {
	id := r.ID
	return AuditRecord{
		ID:            uuid.NewString(),
		Action:        AuditCancelled,
		ReservationID: &id,
		Metadata: AuditMetadata{
			Date:   r.Date.UTC(),
			EndUTC: r.End.UTC(),
			Status: string(StatusCancelled),
		},
		CreatedAt: now.UTC(),
	}
}

// NewPurgedAudit is written after the row is deleted, hence the nil reference.
func NewPurgedAudit(r *Reservation, now time.Time) AuditRecord {
	deleted := now.UTC()
	return AuditRecord{
		ID:     uuid.NewString(),
		Action: AuditPurged,
		Metadata: AuditMetadata{
			Date:      r.Date.UTC(),
			EndUTC:    r.End.UTC(),
			DeletedAt: &deleted,
		},
		CreatedAt: deleted,
	}
}
