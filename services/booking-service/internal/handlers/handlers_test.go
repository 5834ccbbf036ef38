package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/barberline/barbershop/services/booking-service/internal/accounts"
	"github.com/barberline/barbershop/services/booking-service/internal/availability"
	"github.com/barberline/barbershop/services/booking-service/internal/booking"
	"github.com/barberline/barbershop/services/booking-service/internal/model"
	"github.com/barberline/barbershop/services/booking-service/internal/slots"
	"github.com/barberline/barbershop/services/booking-service/internal/storage"
)

const testSecret = "handlers-test-secret"

type testServer struct {
	mux   *http.ServeMux
	token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithStore(t, storage.NewMemory())
}

func newTestServerWithStore(t *testing.T, store storage.Store) *testServer {
	t.Helper()
	now := func() time.Time { return time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC) }
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	catalog, err := slots.New(slots.Config{First: "09:00", Last: "11:00", Step: time.Hour})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	resolver := availability.NewResolver(store, catalog, availability.Policy{
		Location:       time.UTC,
		MaxAdvanceDays: 30,
		ClosedWeekdays: []time.Weekday{time.Sunday},
	}, now)
	svc := booking.NewService(store, resolver, logger, booking.Config{}, now)
	acct := accounts.NewService(store, testSecret, time.Hour, nil)
	if _, err := acct.CreateAdmin(context.Background(), "owner@barber.test", "Owner", "clippers123"); err != nil {
		t.Fatalf("create admin: %v", err)
	}

	mux := http.NewServeMux()
	Routes{
		Bookings:  NewBookingHandler(svc, logger),
		Auth:      NewAuthHandler(acct, logger),
		JWTSecret: testSecret,
	}.Register(mux)

	ts := &testServer{mux: mux}
	rec := ts.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"OWNER@barber.test","password":"clippers123"}`, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var login loginResponse
	decode(t, rec, &login)
	ts.token = login.AccessToken
	return ts
}

func (ts *testServer) do(t *testing.T, method, target, body string, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if admin {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

// decodeError checks the response is JSON before decoding it.
func decodeError(t *testing.T, rec *httptest.ResponseRecorder, v *errorResponse) {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json error body, got %q: %s", ct, rec.Body.String())
	}
	decode(t, rec, v)
}

func bookBody(date, slot, name string) string {
	return `{"date":"` + date + `","time":"` + slot + `","name":"` + name + `","email":"` + name +
		`@example.com","phone":"555-0100","service":"Haircut"}`
}

func TestPublicBookingFlow(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/public/catalog", "", false)
	var catalog catalogResponse
	decode(t, rec, &catalog)
	if len(catalog.Slots) != 3 || catalog.Slots[0] != "9:00 AM" || catalog.Timezone != "UTC" {
		t.Fatalf("unexpected catalog %+v", catalog)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/public/book", bookBody("2025-06-10", "9:00 AM", "alice"), false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("book: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var appt appointmentResponse
	decode(t, rec, &appt)
	if appt.Status != "booked" || appt.Customer.Email != "alice@example.com" || appt.Date.String() != "2025-06-10" {
		t.Fatalf("unexpected appointment %+v", appt)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/public/book", bookBody("2025-06-10", "9:00 AM", "bob"), false)
	if rec.Code != http.StatusConflict {
		t.Fatalf("double booking: expected 409, got %d", rec.Code)
	}
	var refusal errorResponse
	decode(t, rec, &refusal)
	if refusal.Error != "slot_unavailable" || refusal.Time != "9:00 AM" || refusal.Date.String() != "2025-06-10" {
		t.Fatalf("unexpected refusal %+v", refusal)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/public/slots?date=2025-06-10", "", false)
	var day dayResponse
	decode(t, rec, &day)
	if !day.Available || len(day.Slots) != 2 || day.Unavailable["9:00 AM"] != availability.ReasonBooked {
		t.Fatalf("unexpected day %+v", day)
	}
}

func TestPublicValidationAndClosures(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/public/book", `{"date":`, false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json: expected 400, got %d", rec.Code)
	}
	var refusal errorResponse
	decodeError(t, rec, &refusal)
	if refusal.Error != "validation_failed" || refusal.Reason != "invalid json body" {
		t.Fatalf("unexpected bad json body %+v", refusal)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/public/book", bookBody("2025-06-10", "7:00 AM", "carol"), false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown slot: expected 400, got %d", rec.Code)
	}
	refusal = errorResponse{}
	decodeError(t, rec, &refusal)
	if refusal.Field != "time" {
		t.Fatalf("expected time field, got %+v", refusal)
	}

	// 2025-06-08 is a Sunday.
	rec = ts.do(t, http.MethodPost, "/api/v1/public/book", bookBody("2025-06-08", "9:00 AM", "carol"), false)
	if rec.Code != http.StatusConflict {
		t.Fatalf("closed weekday: expected 409, got %d", rec.Code)
	}
	decode(t, rec, &refusal)
	if refusal.Error != "day_blocked" || refusal.Reason == "" {
		t.Fatalf("unexpected refusal %+v", refusal)
	}

	body := `{"time":"9:00 AM","name":"carol","email":"carol@example.com","phone":"1","service":"Haircut"}`
	rec = ts.do(t, http.MethodPost, "/api/v1/public/book", body, false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing date: expected 400, got %d", rec.Code)
	}
	refusal = errorResponse{}
	decodeError(t, rec, &refusal)
	if refusal.Error != "validation_failed" || refusal.Field != "date" {
		t.Fatalf("missing date must name the field, got %+v", refusal)
	}

	body = `{"date":"2025-06-10","name":"carol","email":"carol@example.com","phone":"1","service":"Haircut"}`
	rec = ts.do(t, http.MethodPost, "/api/v1/admin/appointments", body, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing time: expected 400, got %d", rec.Code)
	}
	refusal = errorResponse{}
	decodeError(t, rec, &refusal)
	if refusal.Field != "time" {
		t.Fatalf("missing time must name the field, got %+v", refusal)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/public/book", "", false)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestDaysOverview(t *testing.T) {
	ts := newTestServer(t)
	if rec := ts.do(t, http.MethodPost, "/api/v1/admin/blocked-days", `{"date":"2025-06-03","reason":"Holiday"}`, true); rec.Code != http.StatusCreated {
		t.Fatalf("block day: expected 201, got %d", rec.Code)
	}

	rec := ts.do(t, http.MethodGet, "/api/v1/public/days?from=2025-06-02&to=2025-06-04", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("days: expected 200, got %d", rec.Code)
	}
	var days []dayResponse
	decode(t, rec, &days)
	if len(days) != 3 {
		t.Fatalf("expected 3 days, got %d", len(days))
	}
	if days[1].Available || days[1].Closure != "blocked" || days[1].Reason != "Holiday" {
		t.Fatalf("expected blocked day, got %+v", days[1])
	}
	if !days[0].Available || len(days[0].Slots) != 3 {
		t.Fatalf("expected open day, got %+v", days[0])
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/public/days?from=2025-06-04&to=2025-06-02", "", false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("reversed range: expected 400, got %d", rec.Code)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.do(t, http.MethodGet, "/api/v1/admin/appointments", "", false); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"owner@barber.test","password":"nope"}`, false); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/api/v1/admin/appointments", "", true); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
}

func TestAdminAppointmentLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/public/book", bookBody("2025-06-10", "9:00 AM", "dana"), false)
	var appt appointmentResponse
	decode(t, rec, &appt)
	base := "/api/v1/admin/appointments/" + appt.ID

	rec = ts.do(t, http.MethodPut, base+"/schedule", `{"time":"10:00 AM"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("reschedule: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &appt)
	if appt.Time != "10:00 AM" {
		t.Fatalf("expected 10:00 AM, got %s", appt.Time)
	}

	rec = ts.do(t, http.MethodPut, base+"/schedule", `{}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("empty reschedule: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &appt)
	if appt.Date.String() != "2025-06-10" || appt.Time != "10:00 AM" {
		t.Fatalf("empty reschedule must keep the slot, got %+v", appt)
	}
	rec = ts.do(t, http.MethodPut, base+"/schedule", `not json`, true)
	var refusal errorResponse
	decodeError(t, rec, &refusal)
	if rec.Code != http.StatusBadRequest || refusal.Error != "validation_failed" {
		t.Fatalf("bad json reschedule: %d %+v", rec.Code, refusal)
	}

	rec = ts.do(t, http.MethodPut, base+"/status", `{"status":"Completed"}`, true)
	decode(t, rec, &appt)
	if rec.Code != http.StatusOK || appt.Status != "completed" {
		t.Fatalf("status: %d %+v", rec.Code, appt)
	}
	if rec := ts.do(t, http.MethodPut, base+"/status", `{"status":"done"}`, true); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid status: expected 400, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPut, base+"/notes", `{"notes":"beard trim too"}`, true)
	decode(t, rec, &appt)
	if appt.Notes != "beard trim too" {
		t.Fatalf("notes not saved: %+v", appt)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/admin/appointments?from=2025-06-10&to=2025-06-10&status=completed", "", true)
	var list []appointmentResponse
	decode(t, rec, &list)
	if len(list) != 1 || list[0].ID != appt.ID {
		t.Fatalf("unexpected list %+v", list)
	}

	if rec := ts.do(t, http.MethodDelete, base, "", true); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, base, "", true); rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted: expected 404, got %d", rec.Code)
	}
}

func TestAdminBlockedSlots(t *testing.T) {
	ts := newTestServer(t)

	body := `{"date":"2025-06-10","time":"11:00 AM"}`
	if rec := ts.do(t, http.MethodPost, "/api/v1/admin/blocked-slots", body, true); rec.Code != http.StatusCreated {
		t.Fatalf("block slot: expected 201, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/api/v1/admin/blocked-slots", body, true); rec.Code != http.StatusConflict {
		t.Fatalf("second block: expected 409, got %d", rec.Code)
	}

	rec := ts.do(t, http.MethodGet, "/api/v1/admin/blocked-slots?from=2025-06-01&to=2025-06-30", "", true)
	var blocked []blockedSlotResponse
	decode(t, rec, &blocked)
	if len(blocked) != 1 || blocked[0].Reason != "Not available" {
		t.Fatalf("unexpected blocked slots %+v", blocked)
	}

	q := url.Values{"date": {"2025-06-10"}, "time": {"11:00 AM"}}
	if rec := ts.do(t, http.MethodDelete, "/api/v1/admin/blocked-slots?"+q.Encode(), "", true); rec.Code != http.StatusNoContent {
		t.Fatalf("unblock: expected 204, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodDelete, "/api/v1/admin/blocked-slots?"+q.Encode(), "", true); rec.Code != http.StatusNotFound {
		t.Fatalf("second unblock: expected 404, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodDelete, "/api/v1/admin/blocked-days/2025-06-10", "", true); rec.Code != http.StatusNotFound {
		t.Fatalf("unblock unknown day: expected 404, got %d", rec.Code)
	}
}

func TestAdminCustomers(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/public/book", bookBody("2025-06-10", "9:00 AM", "erin"), false)
	var appt appointmentResponse
	decode(t, rec, &appt)

	rec = ts.do(t, http.MethodGet, "/api/v1/admin/customers?search=ERIN", "", true)
	var customers []customerResponse
	decode(t, rec, &customers)
	if len(customers) != 1 || customers[0].ID != appt.Customer.ID {
		t.Fatalf("unexpected customers %+v", customers)
	}

	path := "/api/v1/admin/customers/" + appt.Customer.ID
	rec = ts.do(t, http.MethodPut, path, `{"name":"Erin B","email":"erin.b@example.com","phone":"555"}`, true)
	var updated customerResponse
	decode(t, rec, &updated)
	if rec.Code != http.StatusOK || updated.Name != "Erin B" {
		t.Fatalf("update: %d %+v", rec.Code, updated)
	}

	rec = ts.do(t, http.MethodGet, path+"/appointments", "", true)
	var history []appointmentResponse
	decode(t, rec, &history)
	if len(history) != 1 || history[0].Customer.Email != "erin.b@example.com" {
		t.Fatalf("unexpected history %+v", history)
	}

	if rec := ts.do(t, http.MethodDelete, path, "", true); rec.Code != http.StatusConflict {
		t.Fatalf("delete referenced customer: expected 409, got %d", rec.Code)
	}
}

func TestAdminBlocksByID(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/admin/blocked-days", `{"date":"2025-06-03","reason":"Holiday"}`, true)
	var day blockedDayResponse
	decode(t, rec, &day)
	if rec := ts.do(t, http.MethodPost, "/api/v1/admin/blocked-days", `{"date":"2025-06-04"}`, true); rec.Code != http.StatusCreated {
		t.Fatalf("block day: expected 201, got %d", rec.Code)
	}

	path := "/api/v1/admin/blocked-days/" + day.ID
	rec = ts.do(t, http.MethodGet, path, "", true)
	var got blockedDayResponse
	decode(t, rec, &got)
	if rec.Code != http.StatusOK || got.Date.String() != "2025-06-03" || got.Reason != "Holiday" {
		t.Fatalf("get day: %d %+v", rec.Code, got)
	}
	rec = ts.do(t, http.MethodPut, path, `{"date":"2025-06-05","reason":"Training"}`, true)
	decode(t, rec, &got)
	if rec.Code != http.StatusOK || got.Date.String() != "2025-06-05" || got.Reason != "Training" {
		t.Fatalf("update day: %d %+v", rec.Code, got)
	}
	rec = ts.do(t, http.MethodPut, path, `{"date":"2025-06-04"}`, true)
	var refusal errorResponse
	decodeError(t, rec, &refusal)
	if rec.Code != http.StatusConflict || refusal.Error != "conflict" || refusal.Date.String() != "2025-06-04" {
		t.Fatalf("clashing day: %d %+v", rec.Code, refusal)
	}
	rec = ts.do(t, http.MethodPut, path, `{"reason":"no date"}`, true)
	refusal = errorResponse{}
	decodeError(t, rec, &refusal)
	if rec.Code != http.StatusBadRequest || refusal.Field != "date" {
		t.Fatalf("missing date: %d %+v", rec.Code, refusal)
	}
	if rec := ts.do(t, http.MethodGet, "/api/v1/admin/blocked-days/missing", "", true); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown day block: expected 404, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/admin/blocked-slots", `{"date":"2025-06-10","time":"9:00 AM"}`, true)
	var slot blockedSlotResponse
	decode(t, rec, &slot)
	slotPath := "/api/v1/admin/blocked-slots/" + slot.ID
	rec = ts.do(t, http.MethodPut, slotPath, `{"date":"2025-06-11","time":"10:00 AM","reason":"Dentist"}`, true)
	decode(t, rec, &slot)
	if rec.Code != http.StatusOK || slot.Date.String() != "2025-06-11" || slot.Time != "10:00 AM" || slot.Reason != "Dentist" {
		t.Fatalf("update slot: %d %+v", rec.Code, slot)
	}
	rec = ts.do(t, http.MethodGet, slotPath, "", true)
	var gotSlot blockedSlotResponse
	decode(t, rec, &gotSlot)
	if rec.Code != http.StatusOK || gotSlot.ID != slot.ID || gotSlot.Time != "10:00 AM" {
		t.Fatalf("get slot: %d %+v", rec.Code, gotSlot)
	}
	if rec := ts.do(t, http.MethodPut, "/api/v1/admin/blocked-slots/missing", `{"date":"2025-06-11","time":"9:00 AM"}`, true); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown slot block: expected 404, got %d", rec.Code)
	}
}

func TestAdminCreateCustomer(t *testing.T) {
	ts := newTestServer(t)

	body := `{"name":"Finn","email":"Finn@Example.com","phone":"555-0142"}`
	rec := ts.do(t, http.MethodPost, "/api/v1/admin/customers", body, true)
	var created customerResponse
	decode(t, rec, &created)
	if rec.Code != http.StatusCreated || created.Email != "finn@example.com" {
		t.Fatalf("create: %d %+v", rec.Code, created)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/admin/customers", `{"name":"Finn R","email":"finn@example.com","phone":"555-0143"}`, true)
	var again customerResponse
	decode(t, rec, &again)
	if rec.Code != http.StatusOK || again.ID != created.ID || again.Name != "Finn R" {
		t.Fatalf("upsert: %d %+v", rec.Code, again)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/admin/customers", `{"name":"Finn","phone":"1"}`, true)
	var refusal errorResponse
	decodeError(t, rec, &refusal)
	if rec.Code != http.StatusBadRequest || refusal.Field != "email" {
		t.Fatalf("missing email: %d %+v", rec.Code, refusal)
	}
}

var errConnReset = errors.New("connection reset by peer")

// brokenStore loses its database connection on every booking write.
type brokenStore struct {
	*storage.Memory
}

func (brokenStore) CreateBooking(context.Context, storage.NewBooking, storage.EventsFunc) (model.AppointmentView, error) {
	return model.AppointmentView{}, errConnReset
}

func TestStorageFailureIsInternalError(t *testing.T) {
	ts := newTestServerWithStore(t, brokenStore{Memory: storage.NewMemory()})

	rec := ts.do(t, http.MethodPost, "/api/v1/public/book", bookBody("2025-06-10", "9:00 AM", "gail"), false)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
	}
	var refusal errorResponse
	decodeError(t, rec, &refusal)
	if refusal.Error != "internal" || refusal.Reason != "" {
		t.Fatalf("internal errors must not leak details, got %+v", refusal)
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	writeError(w, slog.New(slog.NewJSONHandler(io.Discard, nil)), r, fmt.Errorf("load booked slots: %w", errConnReset))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("wrapped storage error: expected 500, got %d", w.Code)
	}
}
