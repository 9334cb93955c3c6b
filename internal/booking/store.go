package booking

import (
	"context"
	"time"

	"github.com/litebrick/consult-bookings/internal/domain"
)

// Store is the persistent side of the booking lifecycle.
//
// Create must reject a CONFIRMED row that overlaps another CONFIRMED row with
// domain.ErrSlotTaken. Cancel and Purge report false when the row was not in a state
// they could act on. Audit records are written in the same transaction as the change.
type Store interface {
	Create(ctx context.Context, r *domain.Reservation, audit domain.AuditRecord) error
	Get(ctx context.Context, id string) (*domain.Reservation, error)
	ListConfirmedOverlapping(ctx context.Context, from, to time.Time) ([]domain.Reservation, error)
	FindNextByContactDigest(ctx context.Context, digest string, now time.Time) (*domain.Reservation, error)
	Cancel(ctx context.Context, id string, audit domain.AuditRecord) (bool, error)
	ListPurgeable(ctx context.Context, before time.Time, limit int) ([]domain.Reservation, error)
	Purge(ctx context.Context, id string, audit domain.AuditRecord) (bool, error)
	ListAudit(ctx context.Context, limit int) ([]domain.AuditRecord, error)
}

// ContactSealer encrypts contacts at rest and derives their lookup digest.
type ContactSealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
	Digest(contact string) string
}
