package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/barberline/barbershop/services/booking-service/internal/booking"
	"github.com/barberline/barbershop/services/booking-service/internal/calendar"
	"github.com/barberline/barbershop/services/booking-service/internal/slots"
)

type errorResponse struct {
	Error  string        `json:"error"`
	Field  string        `json:"field,omitempty"`
	Date   calendar.Date `json:"date,omitzero"`
	Time   slots.Slot    `json:"time,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation_failed", Reason: "invalid json body"})
		return false
	}
	return true
}

// writeError maps booking refusals to 400, 404 and 409 with a JSON body naming the field,
// date or slot involved. Anything else is logged and reported as a 500.
func writeError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	var be *booking.Error
	if !errors.As(err, &be) {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal"})
		return
	}

	status := http.StatusInternalServerError
	code := "internal"
	switch {
	case errors.Is(err, booking.ErrValidation):
		status, code = http.StatusBadRequest, "validation_failed"
	case errors.Is(err, booking.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, booking.ErrDayBlocked):
		status, code = http.StatusConflict, "day_blocked"
	case errors.Is(err, booking.ErrSlotUnavailable):
		status, code = http.StatusConflict, "slot_unavailable"
	case errors.Is(err, booking.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	}
	writeJSON(w, status, errorResponse{
		Error:  code,
		Field:  be.Field,
		Date:   be.Date,
		Time:   be.Time,
		Reason: be.Reason,
	})
}

func queryLimit(r *http.Request) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
