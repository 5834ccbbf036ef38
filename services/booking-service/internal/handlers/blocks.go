package handlers

import (
	"net/http"
	"time"

	"github.com/barberline/barbershop/services/booking-service/internal/calendar"
	"github.com/barberline/barbershop/services/booking-service/internal/model"
	"github.com/barberline/barbershop/services/booking-service/internal/slots"
)

type blockRequest struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Reason string `json:"reason"`
}

type blockedDayResponse struct {
	ID        string        `json:"id"`
	Date      calendar.Date `json:"date"`
	Reason    string        `json:"reason"`
	CreatedAt string        `json:"created_at"`
}

type blockedSlotResponse struct {
	ID        string        `json:"id"`
	Date      calendar.Date `json:"date"`
	Time      slots.Slot    `json:"time"`
	Reason    string        `json:"reason"`
	CreatedAt string        `json:"created_at"`
}

func (h *BookingHandler) ListBlockedDays(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days, err := h.svc.ListBlockedDays(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	items := make([]blockedDayResponse, 0, len(days))
	for _, b := range days {
		items = append(items, toBlockedDayResponse(b))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) BlockDay(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.svc.BlockDay(r.Context(), req.Date, req.Reason)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBlockedDayResponse(b))
}

func (h *BookingHandler) GetBlockedDay(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.GetBlockedDay(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBlockedDayResponse(b))
}

func (h *BookingHandler) UpdateBlockedDay(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.svc.UpdateBlockedDay(r.Context(), r.PathValue("id"), req.Date, req.Reason)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBlockedDayResponse(b))
}

func (h *BookingHandler) UnblockDay(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.UnblockDay(r.Context(), r.PathValue("date")); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BookingHandler) ListBlockedSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	blocked, err := h.svc.ListBlockedSlots(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	items := make([]blockedSlotResponse, 0, len(blocked))
	for _, b := range blocked {
		items = append(items, toBlockedSlotResponse(b))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) BlockSlot(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.svc.BlockSlot(r.Context(), req.Date, req.Time, req.Reason)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBlockedSlotResponse(b))
}

func (h *BookingHandler) GetBlockedSlot(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.GetBlockedSlot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBlockedSlotResponse(b))
}

func (h *BookingHandler) UpdateBlockedSlot(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.svc.UpdateBlockedSlot(r.Context(), r.PathValue("id"), req.Date, req.Time, req.Reason)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBlockedSlotResponse(b))
}

// UnblockSlot takes date and time from the query string; slot labels contain a space.
func (h *BookingHandler) UnblockSlot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := h.svc.UnblockSlot(r.Context(), q.Get("date"), q.Get("time")); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toBlockedDayResponse(b model.BlockedDay) blockedDayResponse {
	return blockedDayResponse{
		ID:        b.ID,
		Date:      b.Date,
		Reason:    b.Reason,
		CreatedAt: b.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toBlockedSlotResponse(b model.BlockedTimeSlot) blockedSlotResponse {
	return blockedSlotResponse{
		ID:        b.ID,
		Date:      b.Date,
		Time:      b.Time,
		Reason:    b.Reason,
		CreatedAt: b.CreatedAt.UTC().Format(time.RFC3339),
	}
}
