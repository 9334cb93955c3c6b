package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/litebrick/consult-bookings/internal/http/response"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Health reports liveness. The cache is optional, so a cache outage is reported without
// failing the check; a database outage returns 503.
func Health(db, cache Pinger, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		body := map[string]string{
			"status": "ok",
			"time":   now().UTC().Format(time.RFC3339),
			"cache":  "connected",
		}
		status := http.StatusOK

		if cache == nil || cache.Ping(ctx) != nil {
			body["cache"] = "unavailable"
		}
		if db != nil {
			body["database"] = "connected"
			if err := db.Ping(ctx); err != nil {
				body["database"] = "unavailable"
				body["status"] = "degraded"
				status = http.StatusServiceUnavailable
			}
		}
		response.JSON(w, status, body)
	}
}
