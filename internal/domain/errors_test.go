package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError_OrNil(t *testing.T) {
	v := NewValidationError("invalid booking")
	assert.NoError(t, v.OrNil())

	v.Add("date", "required")
	v.Add("date", "second message is ignored")
	err := v.OrNil()
	require.Error(t, err)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "required", ve.Fields["date"])
	assert.Contains(t, err.Error(), "date: required")
}

func TestTypedErrors_MatchSentinels(t *testing.T) {
	wrapped := fmt.Errorf("create: %w", &ConflictError{Message: "taken", Field: "startInstant"})
	assert.ErrorIs(t, wrapped, ErrSlotTaken)

	nf := fmt.Errorf("get: %w", &NotFoundError{Resource: "reservation"})
	assert.ErrorIs(t, nf, ErrNotFound)

	cause := errors.New("dial tcp: timeout")
	su := &ServiceUnavailableError{Service: "calendar", Err: cause}
	assert.ErrorIs(t, su, ErrServiceUnavailable)
	assert.ErrorIs(t, su, cause)
}

func TestSlot_Overlaps_HalfOpen(t *testing.T) {
	base := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	s := Slot{Start: base, End: base.Add(time.Hour)}

	assert.False(t, s.Overlaps(base.Add(time.Hour), base.Add(2*time.Hour)), "back-to-back after")
	assert.False(t, s.Overlaps(base.Add(-time.Hour), base), "back-to-back before")
	assert.True(t, s.Overlaps(base.Add(time.Hour-time.Nanosecond), base.Add(2*time.Hour)))
	assert.True(t, s.Overlaps(base.Add(-time.Hour), base.Add(time.Nanosecond)))
}

func TestReservation_StateGuards(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	r := &Reservation{Status: StatusConfirmed, End: now.Add(-90 * time.Minute)}

	assert.True(t, r.CanCancel())
	assert.True(t, r.PurgeEligible(now.Add(-60*time.Minute)))
	assert.False(t, r.PurgeEligible(now.Add(-120*time.Minute)))

	r.Status = StatusCancelled
	assert.False(t, r.CanCancel())
	assert.False(t, r.PurgeEligible(now))
}

func TestNewPurgedAudit_HasNoReference(t *testing.T) {
	id := "r-1"
	r := &Reservation{
		ID:      id,
		Date:    time.Date(2026, 3, 9, 21, 0, 0, 0, time.UTC),
		End:     time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
		Contact: "sealed",
	}
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	a := NewPurgedAudit(r, now)
	assert.Equal(t, AuditPurged, a.Action)
	assert.Nil(t, a.ReservationID)
	require.NotNil(t, a.Metadata.DeletedAt)
	assert.Equal(t, now, *a.Metadata.DeletedAt)
	assert.Equal(t, r.Date, a.Metadata.Date)

	c := NewCreatedAudit(r, now)
	require.NotNil(t, c.ReservationID)
	assert.Equal(t, id, *c.ReservationID)
}
