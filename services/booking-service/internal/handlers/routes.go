package handlers

import (
	"net/http"

	"github.com/barberline/barbershop/libs/auth"
	"github.com/barberline/barbershop/libs/httpx"
)

type Routes struct {
	Bookings  *BookingHandler
	Auth      *AuthHandler
	JWTSecret string
	// PublicWrites wraps the booking and login endpoints, typically with a rate limiter.
	PublicWrites httpx.Middleware
}

// Register mounts the public API and the admin API. Admin routes require a bearer token
// with the admin role.
func (rt Routes) Register(mux *http.ServeMux) {
	limited := func(h http.HandlerFunc) http.Handler {
		if rt.PublicWrites == nil {
			return h
		}
		return rt.PublicWrites(h)
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return auth.RequireAuth(auth.RequireRole(h, auth.RoleAdmin), rt.JWTSecret)
	}

	b := rt.Bookings
	mux.HandleFunc("/api/v1/public/catalog", b.Catalog)
	mux.HandleFunc("/api/v1/public/slots", b.Slots)
	mux.HandleFunc("/api/v1/public/days", b.Days)
	mux.Handle("/api/v1/public/book", limited(b.Create))
	mux.Handle("/api/v1/auth/login", limited(rt.Auth.Login))

	mux.Handle("GET /api/v1/admin/appointments", admin(b.List))
	mux.Handle("POST /api/v1/admin/appointments", admin(b.Create))
	mux.Handle("GET /api/v1/admin/appointments/{id}", admin(b.Get))
	mux.Handle("DELETE /api/v1/admin/appointments/{id}", admin(b.Delete))
	mux.Handle("PUT /api/v1/admin/appointments/{id}/status", admin(b.UpdateStatus))
	mux.Handle("POST /api/v1/admin/appointments/{id}/cancel", admin(b.Cancel))
	mux.Handle("PUT /api/v1/admin/appointments/{id}/schedule", admin(b.Reschedule))
	mux.Handle("PUT /api/v1/admin/appointments/{id}/notes", admin(b.UpdateNotes))

	mux.Handle("GET /api/v1/admin/blocked-days", admin(b.ListBlockedDays))
	mux.Handle("POST /api/v1/admin/blocked-days", admin(b.BlockDay))
	mux.Handle("GET /api/v1/admin/blocked-days/{id}", admin(b.GetBlockedDay))
	mux.Handle("PUT /api/v1/admin/blocked-days/{id}", admin(b.UpdateBlockedDay))
	mux.Handle("DELETE /api/v1/admin/blocked-days/{date}", admin(b.UnblockDay))
	mux.Handle("GET /api/v1/admin/blocked-slots", admin(b.ListBlockedSlots))
	mux.Handle("POST /api/v1/admin/blocked-slots", admin(b.BlockSlot))
	mux.Handle("DELETE /api/v1/admin/blocked-slots", admin(b.UnblockSlot))
	mux.Handle("GET /api/v1/admin/blocked-slots/{id}", admin(b.GetBlockedSlot))
	mux.Handle("PUT /api/v1/admin/blocked-slots/{id}", admin(b.UpdateBlockedSlot))

	mux.Handle("GET /api/v1/admin/customers", admin(b.ListCustomers))
	mux.Handle("POST /api/v1/admin/customers", admin(b.CreateCustomer))
	mux.Handle("GET /api/v1/admin/customers/{id}", admin(b.GetCustomer))
	mux.Handle("PUT /api/v1/admin/customers/{id}", admin(b.UpdateCustomer))
	mux.Handle("DELETE /api/v1/admin/customers/{id}", admin(b.DeleteCustomer))
	mux.Handle("GET /api/v1/admin/customers/{id}/appointments", admin(b.CustomerAppointments))
}
