package model

import (
	"time"

	"github.com/barberline/barbershop/services/booking-service/internal/calendar"
	"github.com/barberline/barbershop/services/booking-service/internal/slots"
)

const DefaultBlockReason = "Not available"

type BlockedDay struct {
	ID        string
	Date      calendar.Date
	Reason    string
	CreatedAt time.Time
}

type BlockedTimeSlot struct {
	ID        string
	Date      calendar.Date
	Time      slots.Slot
	Reason    string
	CreatedAt time.Time
}
