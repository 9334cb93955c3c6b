package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/litebrick/consult-bookings/internal/booking"
	"github.com/litebrick/consult-bookings/internal/domain"
)

const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"

	queryTimeout = 3 * time.Second
)

type ReservationRepo struct{ pool *pgxpool.Pool }

func NewReservationRepo(pool *pgxpool.Pool) *ReservationRepo { return &ReservationRepo{pool: pool} }

const reservationCols = `id::text, business_day, start_utc, end_utc,
contact_enc, contact_digest, contact_kind, consent_given,
status, external_event_id, created_at`

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var res domain.Reservation
	err := row.Scan(
		&res.ID, &res.Date, &res.Start, &res.End,
		&res.Contact, &res.ContactDigest, &res.ContactKind, &res.ConsentGiven,
		&res.Status, &res.ExternalEventID, &res.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	res.Date, res.Start, res.End, res.CreatedAt = res.Date.UTC(), res.Start.UTC(), res.End.UTC(), res.CreatedAt.UTC()
	return &res, nil
}

func collect(rows pgx.Rows) ([]domain.Reservation, error) {
	defer rows.Close()
	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

// Create inserts the reservation and its CREATED audit record in one transaction. The
// exclusion constraint turns a concurrent overlapping insert into domain.ErrSlotTaken.
func (r *ReservationRepo) Create(ctx context.Context, res *domain.Reservation, audit domain.AuditRecord) error {
	const q = `INSERT INTO reservations (
    id, business_day, start_utc, end_utc,
    contact_enc, contact_digest, contact_kind, consent_given,
    status, external_event_id, created_at
  ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, q,
			res.ID, res.Date, res.Start, res.End,
			res.Contact, res.ContactDigest, string(res.ContactKind), res.ConsentGiven,
			string(res.Status), res.ExternalEventID, res.CreatedAt,
		); err != nil {
			return err
		}
		return insertAudit(ctx, tx, audit)
	})

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == pgExclusionViolation || pgErr.Code == pgUniqueViolation) {
		return domain.ErrSlotTaken
	}
	return err
}

func (r *ReservationRepo) Get(ctx context.Context, id string) (*domain.Reservation, error) {
	const q = `SELECT ` + reservationCols + ` FROM reservations WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := scanReservation(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: "reservation"}
	}
	return res, err
}

// ListConfirmedOverlapping is the single day-wide query the conflict oracle relies on.
func (r *ReservationRepo) ListConfirmedOverlapping(ctx context.Context, from, to time.Time) ([]domain.Reservation, error) {
	const q = `SELECT ` + reservationCols + ` FROM reservations
WHERE status='CONFIRMED' AND start_utc < $2 AND end_utc > $1
ORDER BY start_utc`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, from, to)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *ReservationRepo) FindNextByContactDigest(ctx context.Context, digest string, now time.Time) (*domain.Reservation, error) {
	const q = `SELECT ` + reservationCols + ` FROM reservations
WHERE status='CONFIRMED' AND contact_digest=$1 AND start_utc >= $2
ORDER BY start_utc LIMIT 1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := scanReservation(r.pool.QueryRow(ctx, q, digest, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: "reservation"}
	}
	return res, err
}

// Cancel flips CONFIRMED to CANCELLED. It returns false when no confirmed row matched.
func (r *ReservationRepo) Cancel(ctx context.Context, id string, audit domain.AuditRecord) (bool, error) {
	const q = `UPDATE reservations SET status='CANCELLED' WHERE id=$1 AND status='CONFIRMED'`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var changed bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, q, id)
		if err != nil {
			return err
		}
		if changed = ct.RowsAffected() > 0; !changed {
			return nil
		}
		return insertAudit(ctx, tx, audit)
	})
	return changed, err
}

func (r *ReservationRepo) ListPurgeable(ctx context.Context, before time.Time, limit int) ([]domain.Reservation, error) {
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	const q = `SELECT ` + reservationCols + ` FROM reservations
WHERE status='CONFIRMED' AND end_utc < $1
ORDER BY end_utc LIMIT $2`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, before, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Purge deletes the row and then appends the PURGED audit record in the same transaction.
// It returns false when the row was already gone.
func (r *ReservationRepo) Purge(ctx context.Context, id string, audit domain.AuditRecord) (bool, error) {
	const q = `DELETE FROM reservations WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var deleted bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, q, id)
		if err != nil {
			return err
		}
		if deleted = ct.RowsAffected() > 0; !deleted {
			return nil
		}
		return insertAudit(ctx, tx, audit)
	})
	return deleted, err
}

func (r *ReservationRepo) ListAudit(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	const q = `SELECT id::text, action, reservation_id::text, metadata, created_at
FROM audit_records ORDER BY created_at DESC LIMIT $1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.AuditRecord, 0, limit)
	for rows.Next() {
		var (
			a    domain.AuditRecord
			meta []byte
		)
		if err := rows.Scan(&a.ID, &a.Action, &a.ReservationID, &meta, &a.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(meta, &a.Metadata); err != nil {
			return nil, fmt.Errorf("decode audit metadata %s: %w", a.ID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func insertAudit(ctx context.Context, tx pgx.Tx, a domain.AuditRecord) error {
	const q = `INSERT INTO audit_records (id, action, reservation_id, metadata, created_at)
VALUES ($1,$2,$3,$4,$5)`
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, q, a.ID, string(a.Action), a.ReservationID, meta, a.CreatedAt)
	return err
}

var _ booking.Store = (*ReservationRepo)(nil)
