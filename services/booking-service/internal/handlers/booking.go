package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/barberline/barbershop/services/booking-service/internal/availability"
	"github.com/barberline/barbershop/services/booking-service/internal/booking"
	"github.com/barberline/barbershop/services/booking-service/internal/calendar"
	"github.com/barberline/barbershop/services/booking-service/internal/model"
	"github.com/barberline/barbershop/services/booking-service/internal/slots"
)

type BookingHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewBookingHandler(svc *booking.Service, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger}
}

type createBookingRequest struct {
	Date    string `json:"date"`
	Time    string `json:"time"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Service string `json:"service"`
	Notes   string `json:"notes"`
}

type customerSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type appointmentResponse struct {
	ID        string          `json:"id"`
	Date      calendar.Date   `json:"date"`
	Time      slots.Slot      `json:"time"`
	Service   string          `json:"service"`
	Status    model.Status    `json:"status"`
	Notes     string          `json:"notes,omitempty"`
	Customer  customerSummary `json:"customer"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

type catalogResponse struct {
	Timezone string       `json:"timezone"`
	Slots    []slots.Slot `json:"slots"`
}

type dayResponse struct {
	Date        calendar.Date         `json:"date"`
	Available   bool                  `json:"available"`
	Closure     string                `json:"closure,omitempty"`
	Reason      string                `json:"reason,omitempty"`
	Slots       []slots.Slot          `json:"slots"`
	Unavailable map[slots.Slot]string `json:"unavailable,omitempty"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type rescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (h *BookingHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resolver := h.svc.Resolver()
	writeJSON(w, http.StatusOK, catalogResponse{
		Timezone: resolver.Location().String(),
		Slots:    resolver.Catalog().All(),
	})
}

// Slots serves the available slots of one date.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	day, err := h.svc.Availability(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDayResponse(day))
}

// Days serves the date picker overview for a range of dates.
func (h *BookingHandler) Days(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	days, err := h.svc.Days(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	items := make([]dayResponse, 0, len(days))
	for _, d := range days {
		items = append(items, toDayResponse(d))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := h.svc.Book(r.Context(), booking.BookRequest{
		Date:    req.Date,
		Time:    req.Time,
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Service: req.Service,
		Notes:   req.Notes,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(view))
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	views, err := h.svc.List(r.Context(), booking.ListRequest{
		From:   q.Get("from"),
		To:     q.Get("to"),
		Status: q.Get("status"),
		Limit:  queryLimit(r),
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponses(views))
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(view))
}

func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	status := model.Status(strings.ToLower(strings.TrimSpace(req.Status)))
	view, err := h.svc.UpdateStatus(r.Context(), r.PathValue("id"), status)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(view))
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(view))
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := h.svc.Reschedule(r.Context(), r.PathValue("id"), booking.RescheduleRequest{
		Date: req.Date,
		Time: req.Time,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(view))
}

func (h *BookingHandler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := h.svc.UpdateNotes(r.Context(), r.PathValue("id"), req.Notes)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(view))
}

func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toDayResponse(d availability.Day) dayResponse {
	out := dayResponse{
		Date:      d.Date,
		Available: !d.Closed && len(d.Slots) > 0,
		Closure:   string(d.Kind),
		Reason:    d.Reason,
		Slots:     d.Slots,
	}
	if out.Slots == nil {
		out.Slots = []slots.Slot{}
	}
	if len(d.Unavailable) > 0 {
		out.Unavailable = d.Unavailable
	}
	return out
}

func toAppointmentResponse(v model.AppointmentView) appointmentResponse {
	return appointmentResponse{
		ID:      v.ID,
		Date:    v.Date,
		Time:    v.Time,
		Service: v.Service,
		Status:  v.Status,
		Notes:   v.Notes,
		Customer: customerSummary{
			ID:    v.Customer.ID,
			Name:  v.Customer.Name,
			Email: v.Customer.Email,
			Phone: v.Customer.Phone,
		},
		CreatedAt: v.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: v.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toAppointmentResponses(views []model.AppointmentView) []appointmentResponse {
	items := make([]appointmentResponse, 0, len(views))
	for _, v := range views {
		items = append(items, toAppointmentResponse(v))
	}
	return items
}
