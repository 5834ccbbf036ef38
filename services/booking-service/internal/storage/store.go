package storage

import (
	"context"
	"errors"
	"time"

	"github.com/barberline/barbershop/services/booking-service/internal/calendar"
	"github.com/barberline/barbershop/services/booking-service/internal/model"
	"github.com/barberline/barbershop/services/booking-service/internal/outbox"
	"github.com/barberline/barbershop/services/booking-service/internal/slots"
)

var (
	// ErrDuplicate reports a uniqueness violation: a second booked appointment in a slot,
	// a second block for the same day or slot, or a reused email.
	ErrDuplicate = errors.New("duplicate")
	ErrNotFound  = errors.New("not found")
	// ErrReferenced reports a delete refused because other rows still point at the record.
	ErrReferenced = errors.New("still referenced")
)

// AvailabilityReader is the read side consulted on every availability computation.
type AvailabilityReader interface {
	BlockedDay(ctx context.Context, d calendar.Date) (model.BlockedDay, bool, error)
	BlockedSlotsForDate(ctx context.Context, d calendar.Date) ([]model.BlockedTimeSlot, error)
	BookedSlotsForDate(ctx context.Context, d calendar.Date) ([]model.BookedSlot, error)
	// The range variants cover [from, to] inclusive and back the month overview.
	ListBlockedDays(ctx context.Context, from, to calendar.Date) ([]model.BlockedDay, error)
	ListBlockedSlots(ctx context.Context, from, to calendar.Date) ([]model.BlockedTimeSlot, error)
	BookedSlotsBetween(ctx context.Context, from, to calendar.Date) (map[calendar.Date][]model.BookedSlot, error)
}

// EventsFunc derives the outbox events for a write from the state it produced. It runs
// inside the write's transaction; an error aborts the write.
type EventsFunc func(model.AppointmentView) ([]outbox.Event, error)

// Mutation receives the locked current state and returns the state to persist.
type Mutation func(cur model.AppointmentView) (model.Appointment, []outbox.Event, error)

type NewBooking struct {
	Date     calendar.Date
	Time     slots.Slot
	Service  string
	Notes    string
	Customer model.Customer
	At       time.Time
}

type Store interface {
	AvailabilityReader

	AddBlockedDay(ctx context.Context, b model.BlockedDay) (model.BlockedDay, error)
	RemoveBlockedDay(ctx context.Context, d calendar.Date) error
	AddBlockedSlot(ctx context.Context, b model.BlockedTimeSlot) (model.BlockedTimeSlot, error)
	RemoveBlockedSlot(ctx context.Context, d calendar.Date, s slots.Slot) error
	BlockedDayByID(ctx context.Context, id string) (model.BlockedDay, error)
	// UpdateBlockedDay rewrites the date and reason of block b.ID. Moving onto a date that
	// is already blocked yields ErrDuplicate.
	UpdateBlockedDay(ctx context.Context, b model.BlockedDay) (model.BlockedDay, error)
	BlockedSlotByID(ctx context.Context, id string) (model.BlockedTimeSlot, error)
	UpdateBlockedSlot(ctx context.Context, b model.BlockedTimeSlot) (model.BlockedTimeSlot, error)

	// CreateBooking upserts the customer by email and inserts a booked appointment in one
	// transaction. A second booked appointment for the slot yields ErrDuplicate.
	CreateBooking(ctx context.Context, nb NewBooking, events EventsFunc) (model.AppointmentView, error)
	UpdateAppointment(ctx context.Context, id string, mutate Mutation) (model.AppointmentView, error)
	DeleteAppointment(ctx context.Context, id string, events EventsFunc) error
	GetAppointment(ctx context.Context, id string) (model.AppointmentView, error)
	ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.AppointmentView, error)

	// UpsertCustomer creates the customer or, for a known email, overwrites name and phone.
	// created reports which one happened.
	UpsertCustomer(ctx context.Context, c model.Customer, at time.Time) (cust model.Customer, created bool, err error)
	GetCustomer(ctx context.Context, id string) (model.Customer, error)
	ListCustomers(ctx context.Context, f model.CustomerFilter) ([]model.Customer, error)
	UpdateCustomer(ctx context.Context, c model.Customer) (model.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error

	CreateAdmin(ctx context.Context, a model.Admin) (model.Admin, error)
	AdminByEmail(ctx context.Context, email string) (model.Admin, error)
}

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

func clampLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}
