package outbox

import (
	"encoding/json"
	"time"

	"github.com/barberline/barbershop/services/booking-service/internal/model"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	EventAppointmentBooked        = "booking.appointment.booked.v1"
	EventAppointmentRescheduled   = "booking.appointment.rescheduled.v1"
	EventAppointmentStatusChanged = "booking.appointment.status_changed.v1"
	EventAppointmentCancelled     = "booking.appointment.cancelled.v1"
	EventAppointmentDeleted       = "booking.appointment.deleted.v1"
)

type appointmentPayload struct {
	AppointmentID  string `json:"appointment_id"`
	CustomerID     string `json:"customer_id"`
	CustomerName   string `json:"customer_name,omitempty"`
	CustomerEmail  string `json:"customer_email,omitempty"`
	CustomerPhone  string `json:"customer_phone,omitempty"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	Service        string `json:"service"`
	Status         string `json:"status"`
	PreviousDate   string `json:"previous_date,omitempty"`
	PreviousTime   string `json:"previous_time,omitempty"`
	PreviousStatus string `json:"previous_status,omitempty"`
	OccurredAt     string `json:"occurred_at"`
}

// AppointmentEvent builds an event for v. prev is the state before the change and may be nil.
func AppointmentEvent(eventType string, v model.AppointmentView, prev *model.Appointment, at time.Time) (Event, error) {
	p := appointmentPayload{
		AppointmentID: v.ID,
		CustomerID:    v.CustomerID,
		CustomerName:  v.Customer.Name,
		CustomerEmail: v.Customer.Email,
		CustomerPhone: v.Customer.Phone,
		Date:          v.Date.String(),
		Time:          v.Time.String(),
		Service:       v.Service,
		Status:        string(v.Status),
		OccurredAt:    at.UTC().Format(time.RFC3339),
	}
	if prev != nil {
		if prev.Date != v.Date || prev.Time != v.Time {
			p.PreviousDate = prev.Date.String()
			p.PreviousTime = prev.Time.String()
		}
		if prev.Status != v.Status {
			p.PreviousStatus = string(prev.Status)
		}
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   v.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
