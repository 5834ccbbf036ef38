package model

import (
	"time"

	"github.com/barberline/barbershop/services/booking-service/internal/calendar"
	"github.com/barberline/barbershop/services/booking-service/internal/slots"
)

type Status string

const (
	StatusBooked    Status = "booked"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no-show"
)

func (s Status) Valid() bool {
	switch s {
	case StatusBooked, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	default:
		return false
	}
}

// Terminal statuses no longer hold a slot.
func (s Status) Terminal() bool { return s != StatusBooked }

type Appointment struct {
	ID         string
	CustomerID string
	Date       calendar.Date
	Time       slots.Slot
	Service    string
	Status     Status
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AppointmentView is an appointment joined with its customer summary.
type AppointmentView struct {
	Appointment
	Customer Customer
}

// BookedSlot is one occupied slot of a day.
type BookedSlot struct {
	AppointmentID string
	Time          slots.Slot
}

type AppointmentFilter struct {
	From   calendar.Date
	To     calendar.Date
	Status Status
	// CustomerID restricts the listing to one customer when set.
	CustomerID string
	Limit      int
}
