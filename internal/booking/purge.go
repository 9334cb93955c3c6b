package booking

import (
	"context"
	"fmt"

	"github.com/litebrick/consult-bookings/internal/domain"
	"github.com/litebrick/consult-bookings/pkg/logger"
)

// PurgeReport summarizes one retention sweep.
type PurgeReport struct {
	Purged  int `json:"purged"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// PurgeExpired hard-deletes confirmed reservations that ended more than the retention window
// ago. Each deletion is followed by a PURGED audit record that carries no contact data and no
// reservation reference. A failing item is logged and the sweep moves on.
func (m *Manager) PurgeExpired(ctx context.Context) (PurgeReport, error) {
	var report PurgeReport
	now := m.now()
	cutoff := now.Add(-m.retention).UTC()

	expired, err := m.store.ListPurgeable(ctx, cutoff, purgeBatch)
	if err != nil {
		return report, fmt.Errorf("list purgeable reservations: %w", err)
	}

	for i := range expired {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		r := &expired[i]
		itemCtx := logger.WithReservationID(ctx, r.ID)

		if r.HasExternalEvent() {
			m.deleteEvent(itemCtx, *r.ExternalEventID, "purge").log(itemCtx)
		}

		ok, err := m.store.Purge(itemCtx, r.ID, domain.NewPurgedAudit(r, m.now()))
		if err != nil {
			report.Failed++
			logger.ErrorContext(itemCtx, "purge failed", "error", err)
			continue
		}
		if !ok {
			report.Skipped++
			continue
		}
		report.Purged++
		m.invalidate(itemCtx, m.schedule.DateOf(r.Start), "after purge")
	}

	if len(expired) > 0 {
		logger.InfoContext(ctx, "retention sweep finished",
			"purged", report.Purged, "skipped", report.Skipped, "failed", report.Failed)
	}
	return report, nil
}
