package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/litebrick/consult-bookings/internal/domain"
	"github.com/litebrick/consult-bookings/internal/http/response"
)

const maxBodyBytes = 16 << 10

type Reservations interface {
	Create(ctx context.Context, req domain.ReservationReq) (*domain.Reservation, error)
	Cancel(ctx context.Context, id, status string) (*domain.Reservation, error)
	CancelByContact(ctx context.Context, contact, status string) (*domain.Reservation, error)
	LookupByContact(ctx context.Context, contact string) (*domain.Reservation, error)
	Get(ctx context.Context, id string) (*domain.Reservation, error)
}

type ReservationsHandler struct {
	svc        Reservations
	production bool
	// createLimit wraps POST / only; nil disables limiting.
	createLimit func(http.Handler) http.Handler
}

func NewReservationsHandler(svc Reservations, production bool, createLimit func(http.Handler) http.Handler) *ReservationsHandler {
	return &ReservationsHandler{svc: svc, production: production, createLimit: createLimit}
}

func (h *ReservationsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(cr chi.Router) {
		if h.createLimit != nil {
			cr.Use(h.createLimit)
		}
		cr.Post("/", h.create)
	})

	r.Get("/by-contact", h.byContact)
	r.Patch("/by-contact/status", h.patchStatusByContact)
	r.Get("/{id}", h.getByID)
	r.Patch("/{id}/status", h.patchStatus)
	return r
}

func (h *ReservationsHandler) create(w http.ResponseWriter, r *http.Request) {
	var in domain.ReservationReq
	if !decode(w, r, &in) {
		return
	}
	res, err := h.svc.Create(r.Context(), in)
	if err != nil {
		response.FromError(w, r, err, h.production)
		return
	}
	response.JSON(w, http.StatusCreated, res)
}

func (h *ReservationsHandler) patchStatus(w http.ResponseWriter, r *http.Request) {
	var in domain.StatusPatch
	if !decode(w, r, &in) {
		return
	}
	res, err := h.svc.Cancel(r.Context(), chi.URLParam(r, "id"), in.Status)
	if err != nil {
		response.FromError(w, r, err, h.production)
		return
	}
	response.JSON(w, http.StatusOK, res)
}

func (h *ReservationsHandler) patchStatusByContact(w http.ResponseWriter, r *http.Request) {
	var in domain.StatusPatch
	if !decode(w, r, &in) {
		return
	}
	res, err := h.svc.CancelByContact(r.Context(), in.Contact, in.Status)
	if err != nil {
		response.FromError(w, r, err, h.production)
		return
	}
	response.JSON(w, http.StatusOK, res)
}

func (h *ReservationsHandler) byContact(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.LookupByContact(r.Context(), r.URL.Query().Get("contact"))
	if err != nil {
		response.FromError(w, r, err, h.production)
		return
	}
	response.JSON(w, http.StatusOK, res)
}

func (h *ReservationsHandler) getByID(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, r, err, h.production)
		return
	}
	response.JSON(w, http.StatusOK, res)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.BadRequest(w, "Invalid JSON body", nil)
		return false
	}
	return true
}
