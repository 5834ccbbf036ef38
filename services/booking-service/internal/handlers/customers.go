package handlers

import (
	"net/http"
	"time"

	"github.com/barberline/barbershop/services/booking-service/internal/booking"
	"github.com/barberline/barbershop/services/booking-service/internal/model"
)

type customerResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type customerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (h *BookingHandler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.svc.ListCustomers(r.Context(), r.URL.Query().Get("search"), queryLimit(r))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	items := make([]customerResponse, 0, len(customers))
	for _, c := range customers {
		items = append(items, toCustomerResponse(c))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetCustomer(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerResponse(c))
}

func (h *BookingHandler) CustomerAppointments(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.CustomerAppointments(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponses(views))
}

// CreateCustomer answers 201 for a new customer and 200 when the email was already known.
func (h *BookingHandler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, created, err := h.svc.CreateCustomer(r.Context(), booking.CustomerUpdate{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toCustomerResponse(c))
}

func (h *BookingHandler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.svc.UpdateCustomer(r.Context(), r.PathValue("id"), booking.CustomerUpdate{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerResponse(c))
}

func (h *BookingHandler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteCustomer(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toCustomerResponse(c model.Customer) customerResponse {
	return customerResponse{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Phone:     c.Phone,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
