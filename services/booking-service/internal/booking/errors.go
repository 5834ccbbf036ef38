package booking

import (
	"errors"
	"fmt"
	"strings"

	"github.com/barberline/barbershop/services/booking-service/internal/calendar"
	"github.com/barberline/barbershop/services/booking-service/internal/slots"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrDayBlocked      = errors.New("day is not available")
	ErrSlotUnavailable = errors.New("time slot is not available")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
)

// Error is a business refusal. Kind is one of the sentinels above, so callers branch with
// errors.Is and read Date, Time, Field and Reason to explain the refusal.
type Error struct {
	Kind   error
	Date   calendar.Date
	Time   slots.Slot
	Field  string
	Reason string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Field != "" {
		fmt.Fprintf(&b, ": %s", e.Field)
	}
	if !e.Date.IsZero() {
		fmt.Fprintf(&b, " on %s", e.Date)
	}
	if e.Time != "" {
		fmt.Fprintf(&b, " at %s", e.Time)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, " (%s)", e.Reason)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Kind }

func invalid(field, reason string) *Error {
	return &Error{Kind: ErrValidation, Field: field, Reason: reason}
}

func dayBlocked(d calendar.Date, reason string) *Error {
	return &Error{Kind: ErrDayBlocked, Date: d, Reason: reason}
}

func slotUnavailable(d calendar.Date, s slots.Slot, reason string) *Error {
	return &Error{Kind: ErrSlotUnavailable, Date: d, Time: s, Reason: reason}
}

func notFound(what, id string) *Error {
	return &Error{Kind: ErrNotFound, Field: what, Reason: id}
}

func conflict(reason string) *Error {
	return &Error{Kind: ErrConflict, Reason: reason}
}
