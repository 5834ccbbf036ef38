package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/barberline/barbershop/services/booking-service/internal/calendar"
	"github.com/barberline/barbershop/services/booking-service/internal/model"
	"github.com/barberline/barbershop/services/booking-service/internal/outbox"
	"github.com/barberline/barbershop/services/booking-service/internal/slots"
	"github.com/google/uuid"
)

type slotKey struct {
	date calendar.Date
	time slots.Slot
}

// Memory is a Store kept in process memory. One mutex guards every index, so each
// check-and-write is a single critical section with the same uniqueness guarantees as the
// Postgres indexes. It backs tests and STORAGE_DRIVER=memory.
type Memory struct {
	mu sync.Mutex

	blockedDays  map[calendar.Date]model.BlockedDay
	blockedSlots map[slotKey]model.BlockedTimeSlot
	appointments map[string]model.Appointment
	booked       map[slotKey]string
	customers    map[string]model.Customer
	emails       map[string]string
	admins       map[string]model.Admin
	events       []outbox.Event
}

func NewMemory() *Memory {
	return &Memory{
		blockedDays:  map[calendar.Date]model.BlockedDay{},
		blockedSlots: map[slotKey]model.BlockedTimeSlot{},
		appointments: map[string]model.Appointment{},
		booked:       map[slotKey]string{},
		customers:    map[string]model.Customer{},
		emails:       map[string]string{},
		admins:       map[string]model.Admin{},
	}
}

var _ Store = (*Memory)(nil)

// Events returns the outbox events recorded so far.
func (m *Memory) Events() []outbox.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]outbox.Event, len(m.events))
	copy(out, m.events)
	return out
}

func (m *Memory) BlockedDay(_ context.Context, d calendar.Date) (model.BlockedDay, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blockedDays[d]
	return b, ok, nil
}

func (m *Memory) BlockedSlotsForDate(ctx context.Context, d calendar.Date) ([]model.BlockedTimeSlot, error) {
	return m.ListBlockedSlots(ctx, d, d)
}

func (m *Memory) BookedSlotsForDate(ctx context.Context, d calendar.Date) ([]model.BookedSlot, error) {
	byDate, err := m.BookedSlotsBetween(ctx, d, d)
	if err != nil {
		return nil, err
	}
	return byDate[d], nil
}

func (m *Memory) ListBlockedDays(_ context.Context, from, to calendar.Date) ([]model.BlockedDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.BlockedDay
	for d, b := range m.blockedDays {
		if inRange(d, from, to) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *Memory) ListBlockedSlots(_ context.Context, from, to calendar.Date) ([]model.BlockedTimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.BlockedTimeSlot
	for k, b := range m.blockedSlots {
		if inRange(k.date, from, to) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return chronological(out[i].Date, out[i].Time, out[j].Date, out[j].Time)
	})
	return out, nil
}

func (m *Memory) BookedSlotsBetween(_ context.Context, from, to calendar.Date) (map[calendar.Date][]model.BookedSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[calendar.Date][]model.BookedSlot{}
	for k, id := range m.booked {
		if inRange(k.date, from, to) {
			out[k.date] = append(out[k.date], model.BookedSlot{AppointmentID: id, Time: k.time})
		}
	}
	for d := range out {
		list := out[d]
		sort.Slice(list, func(i, j int) bool { return list[i].Time.Minutes() < list[j].Time.Minutes() })
	}
	return out, nil
}

func (m *Memory) AddBlockedDay(_ context.Context, b model.BlockedDay) (model.BlockedDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.blockedDays[b.Date]; exists {
		return model.BlockedDay{}, ErrDuplicate
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	m.blockedDays[b.Date] = b
	return b, nil
}

func (m *Memory) RemoveBlockedDay(_ context.Context, d calendar.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.blockedDays[d]; !exists {
		return ErrNotFound
	}
	delete(m.blockedDays, d)
	return nil
}

func (m *Memory) AddBlockedSlot(_ context.Context, b model.BlockedTimeSlot) (model.BlockedTimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := slotKey{b.Date, b.Time}
	if _, exists := m.blockedSlots[k]; exists {
		return model.BlockedTimeSlot{}, ErrDuplicate
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	m.blockedSlots[k] = b
	return b, nil
}

func (m *Memory) RemoveBlockedSlot(_ context.Context, d calendar.Date, s slots.Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := slotKey{d, s}
	if _, exists := m.blockedSlots[k]; !exists {
		return ErrNotFound
	}
	delete(m.blockedSlots, k)
	return nil
}

func (m *Memory) BlockedDayByID(_ context.Context, id string) (model.BlockedDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.blockedDays {
		if b.ID == id {
			return b, nil
		}
	}
	return model.BlockedDay{}, ErrNotFound
}

func (m *Memory) UpdateBlockedDay(_ context.Context, b model.BlockedDay) (model.BlockedDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cur model.BlockedDay
	found := false
	for _, existing := range m.blockedDays {
		if existing.ID == b.ID {
			cur, found = existing, true
			break
		}
	}
	if !found {
		return model.BlockedDay{}, ErrNotFound
	}
	if other, taken := m.blockedDays[b.Date]; taken && other.ID != b.ID {
		return model.BlockedDay{}, ErrDuplicate
	}
	b.CreatedAt = cur.CreatedAt
	delete(m.blockedDays, cur.Date)
	m.blockedDays[b.Date] = b
	return b, nil
}

func (m *Memory) BlockedSlotByID(_ context.Context, id string) (model.BlockedTimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.blockedSlots {
		if b.ID == id {
			return b, nil
		}
	}
	return model.BlockedTimeSlot{}, ErrNotFound
}

func (m *Memory) UpdateBlockedSlot(_ context.Context, b model.BlockedTimeSlot) (model.BlockedTimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cur model.BlockedTimeSlot
	found := false
	for _, existing := range m.blockedSlots {
		if existing.ID == b.ID {
			cur, found = existing, true
			break
		}
	}
	if !found {
		return model.BlockedTimeSlot{}, ErrNotFound
	}
	k := slotKey{b.Date, b.Time}
	if other, taken := m.blockedSlots[k]; taken && other.ID != b.ID {
		return model.BlockedTimeSlot{}, ErrDuplicate
	}
	b.CreatedAt = cur.CreatedAt
	delete(m.blockedSlots, slotKey{cur.Date, cur.Time})
	m.blockedSlots[k] = b
	return b, nil
}

func (m *Memory) CreateBooking(_ context.Context, nb NewBooking, events EventsFunc) (model.AppointmentView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := slotKey{nb.Date, nb.Time}
	if _, taken := m.booked[k]; taken {
		return model.AppointmentView{}, ErrDuplicate
	}

	cust, _ := m.mergeCustomerLocked(nb.Customer, nb.At)

	appt := model.Appointment{
		ID:         uuid.NewString(),
		CustomerID: cust.ID,
		Date:       nb.Date,
		Time:       nb.Time,
		Service:    nb.Service,
		Status:     model.StatusBooked,
		Notes:      nb.Notes,
		CreatedAt:  nb.At,
		UpdatedAt:  nb.At,
	}
	view := model.AppointmentView{Appointment: appt, Customer: cust}

	evts, err := collect(events, view)
	if err != nil {
		return model.AppointmentView{}, err
	}

	m.customers[cust.ID] = cust
	m.emails[strings.ToLower(cust.Email)] = cust.ID
	m.appointments[appt.ID] = appt
	m.booked[k] = appt.ID
	m.events = append(m.events, evts...)
	return view, nil
}

func (m *Memory) UpdateAppointment(_ context.Context, id string, mutate Mutation) (model.AppointmentView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.appointments[id]
	if !ok {
		return model.AppointmentView{}, ErrNotFound
	}
	next, evts, err := mutate(m.viewLocked(cur))
	if err != nil {
		return model.AppointmentView{}, err
	}
	next.ID = cur.ID
	next.CustomerID = cur.CustomerID
	next.CreatedAt = cur.CreatedAt

	nextKey := slotKey{next.Date, next.Time}
	if next.Status == model.StatusBooked {
		if owner, taken := m.booked[nextKey]; taken && owner != id {
			return model.AppointmentView{}, ErrDuplicate
		}
	}
	if cur.Status == model.StatusBooked {
		delete(m.booked, slotKey{cur.Date, cur.Time})
	}
	if next.Status == model.StatusBooked {
		m.booked[nextKey] = id
	}
	m.appointments[id] = next
	m.events = append(m.events, evts...)
	return m.viewLocked(next), nil
}

func (m *Memory) DeleteAppointment(_ context.Context, id string, events EventsFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	appt, ok := m.appointments[id]
	if !ok {
		return ErrNotFound
	}
	evts, err := collect(events, m.viewLocked(appt))
	if err != nil {
		return err
	}
	if appt.Status == model.StatusBooked {
		delete(m.booked, slotKey{appt.Date, appt.Time})
	}
	delete(m.appointments, id)
	m.events = append(m.events, evts...)
	return nil
}

func (m *Memory) GetAppointment(_ context.Context, id string) (model.AppointmentView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.appointments[id]
	if !ok {
		return model.AppointmentView{}, ErrNotFound
	}
	return m.viewLocked(appt), nil
}

func (m *Memory) ListAppointments(_ context.Context, f model.AppointmentFilter) ([]model.AppointmentView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AppointmentView
	for _, appt := range m.appointments {
		if !f.From.IsZero() && appt.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && appt.Date.After(f.To) {
			continue
		}
		if f.Status != "" && appt.Status != f.Status {
			continue
		}
		if f.CustomerID != "" && appt.CustomerID != f.CustomerID {
			continue
		}
		out = append(out, m.viewLocked(appt))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date == out[j].Date && out[i].Time == out[j].Time {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return chronological(out[i].Date, out[i].Time, out[j].Date, out[j].Time)
	})
	if limit := clampLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) GetCustomer(_ context.Context, id string) (model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return model.Customer{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) ListCustomers(_ context.Context, f model.CustomerFilter) ([]model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := strings.ToLower(strings.TrimSpace(f.Search))
	var out []model.Customer
	for _, c := range m.customers {
		if q != "" &&
			!strings.Contains(strings.ToLower(c.Name), q) &&
			!strings.Contains(strings.ToLower(c.Email), q) &&
			!strings.Contains(strings.ToLower(c.Phone), q) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].Email < out[j].Email
		}
		return out[i].Name < out[j].Name
	})
	if limit := clampLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) UpsertCustomer(_ context.Context, c model.Customer, at time.Time) (model.Customer, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cust, created := m.mergeCustomerLocked(c, at)
	m.customers[cust.ID] = cust
	m.emails[strings.ToLower(cust.Email)] = cust.ID
	return cust, created, nil
}

// mergeCustomerLocked returns the stored customer for c's email with c's name and phone
// applied, or a new customer. Nothing is written.
func (m *Memory) mergeCustomerLocked(c model.Customer, at time.Time) (model.Customer, bool) {
	cust, exists := m.customers[m.emails[strings.ToLower(c.Email)]]
	if !exists {
		cust = model.Customer{ID: uuid.NewString(), Email: c.Email, CreatedAt: at}
	}
	cust.Name = c.Name
	cust.Phone = c.Phone
	cust.UpdatedAt = at
	return cust, !exists
}

func (m *Memory) UpdateCustomer(_ context.Context, c model.Customer) (model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.customers[c.ID]
	if !ok {
		return model.Customer{}, ErrNotFound
	}
	newEmail := strings.ToLower(c.Email)
	if owner, taken := m.emails[newEmail]; taken && owner != c.ID {
		return model.Customer{}, ErrDuplicate
	}
	delete(m.emails, strings.ToLower(cur.Email))
	m.emails[newEmail] = c.ID
	c.CreatedAt = cur.CreatedAt
	m.customers[c.ID] = c
	return c, nil
}

func (m *Memory) DeleteCustomer(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return ErrNotFound
	}
	for _, appt := range m.appointments {
		if appt.CustomerID == id {
			return ErrReferenced
		}
	}
	delete(m.emails, strings.ToLower(c.Email))
	delete(m.customers, id)
	return nil
}

func (m *Memory) CreateAdmin(_ context.Context, a model.Admin) (model.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(a.Email)
	if _, exists := m.admins[key]; exists {
		return model.Admin{}, ErrDuplicate
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	m.admins[key] = a
	return a, nil
}

func (m *Memory) AdminByEmail(_ context.Context, email string) (model.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.admins[strings.ToLower(email)]
	if !ok {
		return model.Admin{}, ErrNotFound
	}
	return a, nil
}

func (m *Memory) viewLocked(appt model.Appointment) model.AppointmentView {
	return model.AppointmentView{Appointment: appt, Customer: m.customers[appt.CustomerID]}
}

func collect(events EventsFunc, v model.AppointmentView) ([]outbox.Event, error) {
	if events == nil {
		return nil, nil
	}
	return events(v)
}

func inRange(d, from, to calendar.Date) bool {
	return !d.Before(from) && !d.After(to)
}

func chronological(d1 calendar.Date, t1 slots.Slot, d2 calendar.Date, t2 slots.Slot) bool {
	if d1 != d2 {
		return d1.Before(d2)
	}
	return t1.Minutes() < t2.Minutes()
}
