package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/litebrick/consult-bookings/internal/domain"
	"github.com/litebrick/consult-bookings/internal/http/response"
	"github.com/litebrick/consult-bookings/internal/schedule"
)

type Availability interface {
	FreeSlots(ctx context.Context, date schedule.Date) ([]domain.Slot, error)
	Dates(ctx context.Context, from, to schedule.Date) ([]domain.AvailableDate, error)
}

type AvailabilityHandler struct {
	svc        Availability
	production bool
}

func NewAvailabilityHandler(svc Availability, production bool) *AvailabilityHandler {
	return &AvailabilityHandler{svc: svc, production: production}
}

func (h *AvailabilityHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.slots)
	r.Get("/dates", h.dates)
	return r
}

func (h *AvailabilityHandler) slots(w http.ResponseWriter, r *http.Request) {
	date, err := queryDate(r, "date")
	if err != nil {
		response.FromError(w, r, err, h.production)
		return
	}
	slots, err := h.svc.FreeSlots(r.Context(), date)
	if err != nil {
		response.FromError(w, r, err, h.production)
		return
	}
	if slots == nil {
		slots = []domain.Slot{}
	}
	response.JSON(w, http.StatusOK, slots)
}

func (h *AvailabilityHandler) dates(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		response.FromError(w, r, err, h.production)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		response.FromError(w, r, err, h.production)
		return
	}
	dates, err := h.svc.Dates(r.Context(), from, to)
	if err != nil {
		response.FromError(w, r, err, h.production)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"dates": dates})
}

func queryDate(r *http.Request, name string) (schedule.Date, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		v := domain.NewValidationError("Invalid request")
		v.Add(name, name+" is required (YYYY-MM-DD)")
		return schedule.Date{}, v
	}
	d, err := schedule.ParseDate(raw)
	if err != nil {
		v := domain.NewValidationError("Invalid request")
		v.Add(name, "must be a valid date in YYYY-MM-DD format")
		return schedule.Date{}, v
	}
	return d, nil
}
