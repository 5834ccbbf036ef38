// Package booking admits bookings and drives the appointment lifecycle on top of the
// availability resolver.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/barberline/barbershop/services/booking-service/internal/availability"
	"github.com/barberline/barbershop/services/booking-service/internal/calendar"
	"github.com/barberline/barbershop/services/booking-service/internal/model"
	"github.com/barberline/barbershop/services/booking-service/internal/outbox"
	"github.com/barberline/barbershop/services/booking-service/internal/slots"
	"github.com/barberline/barbershop/services/booking-service/internal/storage"
)

const (
	maxNameLen    = 100
	maxServiceLen = 100
	maxPhoneLen   = 40
	maxNotesLen   = 1000
)

type Config struct {
	// StrictStatusTransitions rejects status changes out of completed, cancelled and
	// no-show. Off by default: admins may override any status.
	StrictStatusTransitions bool
}

type Service struct {
	store    storage.Store
	resolver *availability.Resolver
	logger   *slog.Logger
	now      availability.Clock
	strict   bool
}

func NewService(store storage.Store, resolver *availability.Resolver, logger *slog.Logger, cfg Config, now availability.Clock) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:    store,
		resolver: resolver,
		logger:   logger,
		now:      now,
		strict:   cfg.StrictStatusTransitions,
	}
}

func (s *Service) Resolver() *availability.Resolver { return s.resolver }

type BookRequest struct {
	Date    string
	Time    string
	Name    string
	Email   string
	Phone   string
	Service string
	Notes   string
}

// Book admits a booking. The availability check is advisory; the store's unique index on
// booked (date, time) decides races, and losing one is reported as SlotUnavailable.
func (s *Service) Book(ctx context.Context, req BookRequest) (model.AppointmentView, error) {
	name, err := requiredText("name", req.Name, maxNameLen)
	if err != nil {
		return model.AppointmentView{}, err
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return model.AppointmentView{}, err
	}
	phone, err := requiredText("phone", req.Phone, maxPhoneLen)
	if err != nil {
		return model.AppointmentView{}, err
	}
	service, err := requiredText("service", req.Service, maxServiceLen)
	if err != nil {
		return model.AppointmentView{}, err
	}
	notes, err := optionalText("notes", req.Notes, maxNotesLen)
	if err != nil {
		return model.AppointmentView{}, err
	}
	d, slot, err := s.parseSlot(req.Date, req.Time)
	if err != nil {
		return model.AppointmentView{}, err
	}

	if err := s.admit(ctx, d, slot, ""); err != nil {
		return model.AppointmentView{}, err
	}

	at := s.now()
	view, err := s.store.CreateBooking(ctx, storage.NewBooking{
		Date:     d,
		Time:     slot,
		Service:  service,
		Notes:    notes,
		Customer: model.Customer{Name: name, Email: email, Phone: phone},
		At:       at,
	}, func(v model.AppointmentView) ([]outbox.Event, error) {
		return one(outbox.AppointmentEvent(outbox.EventAppointmentBooked, v, nil, at))
	})
	if errors.Is(err, storage.ErrDuplicate) {
		s.logger.Info("booking lost slot race", "date", d.String(), "time", slot.String())
		return model.AppointmentView{}, slotUnavailable(d, slot, availability.ReasonBooked)
	}
	if err != nil {
		return model.AppointmentView{}, err
	}
	s.logger.Info("appointment booked",
		"appointment_id", view.ID,
		"customer_id", view.CustomerID,
		"date", d.String(),
		"time", slot.String(),
	)
	return view, nil
}

// admit checks d and slot against a fresh resolution. exceptID names an appointment whose
// own booking does not count against it.
func (s *Service) admit(ctx context.Context, d calendar.Date, slot slots.Slot, exceptID string) error {
	day, err := s.resolver.Resolve(ctx, d, exceptID)
	if err != nil {
		return err
	}
	if day.Closed {
		s.logger.Info("booking refused", "date", d.String(), "time", slot.String(), "reason", day.Reason)
		return dayBlocked(d, day.Reason)
	}
	if !day.Has(slot) {
		reason := day.Unavailable[slot]
		if reason == "" {
			reason = "not offered"
		}
		s.logger.Info("booking refused", "date", d.String(), "time", slot.String(), "reason", reason)
		return slotUnavailable(d, slot, reason)
	}
	return nil
}

// UpdateStatus sets the status of an appointment. Any transition is allowed unless strict
// mode is on; moving back to booked still has to win the slot.
func (s *Service) UpdateStatus(ctx context.Context, id string, status model.Status) (model.AppointmentView, error) {
	if !status.Valid() {
		return model.AppointmentView{}, invalid("status", "must be one of booked, completed, cancelled, no-show")
	}
	return s.mutate(ctx, id, func(cur model.AppointmentView) (model.Appointment, []outbox.Event, error) {
		next := cur.Appointment
		if cur.Status == status {
			return next, nil, nil
		}
		if cur.Status.Terminal() {
			if s.strict {
				return next, nil, conflict("appointment is " + string(cur.Status) + " and cannot become " + string(status))
			}
			s.logger.Warn("unusual status transition",
				"appointment_id", cur.ID,
				"from", string(cur.Status),
				"to", string(status),
			)
		}
		at := s.now()
		next.Status = status
		next.UpdatedAt = at

		eventType := outbox.EventAppointmentStatusChanged
		if status == model.StatusCancelled {
			eventType = outbox.EventAppointmentCancelled
		}
		view := model.AppointmentView{Appointment: next, Customer: cur.Customer}
		evts, err := one(outbox.AppointmentEvent(eventType, view, &cur.Appointment, at))
		return next, evts, err
	})
}

// Cancel frees the appointment's slot immediately.
func (s *Service) Cancel(ctx context.Context, id string) (model.AppointmentView, error) {
	return s.UpdateStatus(ctx, id, model.StatusCancelled)
}

type RescheduleRequest struct {
	// Empty fields keep the current value.
	Date string
	Time string
}

func (s *Service) Reschedule(ctx context.Context, id string, req RescheduleRequest) (model.AppointmentView, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return model.AppointmentView{}, err
	}

	d := cur.Date
	if strings.TrimSpace(req.Date) != "" {
		parsed, err := calendar.ParseDate(req.Date, s.resolver.Location())
		if err != nil {
			return model.AppointmentView{}, invalid("date", "use YYYY-MM-DD")
		}
		d = parsed
	}
	slot := cur.Time
	if strings.TrimSpace(req.Time) != "" {
		parsed, err := s.resolver.Catalog().Parse(req.Time)
		if err != nil {
			return model.AppointmentView{}, invalid("time", "not a slot offered by the shop")
		}
		slot = parsed
	}
	if d == cur.Date && slot == cur.Time {
		return cur, nil
	}

	if err := s.admit(ctx, d, slot, cur.ID); err != nil {
		return model.AppointmentView{}, err
	}

	view, err := s.mutate(ctx, id, func(locked model.AppointmentView) (model.Appointment, []outbox.Event, error) {
		at := s.now()
		next := locked.Appointment
		next.Date = d
		next.Time = slot
		next.UpdatedAt = at
		moved := model.AppointmentView{Appointment: next, Customer: locked.Customer}
		evts, err := one(outbox.AppointmentEvent(outbox.EventAppointmentRescheduled, moved, &locked.Appointment, at))
		return next, evts, err
	})
	if err != nil {
		return model.AppointmentView{}, err
	}
	s.logger.Info("appointment rescheduled",
		"appointment_id", id,
		"from_date", cur.Date.String(),
		"from_time", cur.Time.String(),
		"date", d.String(),
		"time", slot.String(),
	)
	return view, nil
}

func (s *Service) UpdateNotes(ctx context.Context, id, notes string) (model.AppointmentView, error) {
	notes, err := optionalText("notes", notes, maxNotesLen)
	if err != nil {
		return model.AppointmentView{}, err
	}
	return s.mutate(ctx, id, func(cur model.AppointmentView) (model.Appointment, []outbox.Event, error) {
		next := cur.Appointment
		next.Notes = notes
		next.UpdatedAt = s.now()
		return next, nil, nil
	})
}

// Delete removes an appointment unconditionally.
func (s *Service) Delete(ctx context.Context, id string) error {
	at := s.now()
	err := s.store.DeleteAppointment(ctx, id, func(v model.AppointmentView) ([]outbox.Event, error) {
		return one(outbox.AppointmentEvent(outbox.EventAppointmentDeleted, v, nil, at))
	})
	if errors.Is(err, storage.ErrNotFound) {
		return notFound("appointment", id)
	}
	if err != nil {
		return err
	}
	s.logger.Info("appointment deleted", "appointment_id", id)
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (model.AppointmentView, error) {
	v, err := s.store.GetAppointment(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.AppointmentView{}, notFound("appointment", id)
	}
	return v, err
}

type ListRequest struct {
	From   string
	To     string
	Status string
	Limit  int
}

func (s *Service) List(ctx context.Context, req ListRequest) ([]model.AppointmentView, error) {
	from, to, err := s.parseRange(req.From, req.To, false)
	if err != nil {
		return nil, err
	}
	f := model.AppointmentFilter{From: from, To: to, Limit: req.Limit}
	if raw := strings.TrimSpace(req.Status); raw != "" {
		status := model.Status(strings.ToLower(raw))
		if !status.Valid() {
			return nil, invalid("status", "must be one of booked, completed, cancelled, no-show")
		}
		f.Status = status
	}
	return s.store.ListAppointments(ctx, f)
}

func (s *Service) mutate(ctx context.Context, id string, fn storage.Mutation) (model.AppointmentView, error) {
	var target model.Appointment
	v, err := s.store.UpdateAppointment(ctx, id, func(cur model.AppointmentView) (model.Appointment, []outbox.Event, error) {
		next, evts, err := fn(cur)
		target = next
		return next, evts, err
	})
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return model.AppointmentView{}, notFound("appointment", id)
	case errors.Is(err, storage.ErrDuplicate):
		// Another booked appointment holds the target slot.
		return model.AppointmentView{}, slotUnavailable(target.Date, target.Time, availability.ReasonBooked)
	case err != nil:
		return model.AppointmentView{}, err
	}
	return v, nil
}

func (s *Service) parseSlot(rawDate, rawTime string) (calendar.Date, slots.Slot, error) {
	d, err := s.parseDate(rawDate)
	if err != nil {
		return calendar.Date{}, "", err
	}
	if strings.TrimSpace(rawTime) == "" {
		return calendar.Date{}, "", invalid("time", "required")
	}
	slot, err := s.resolver.Catalog().Parse(rawTime)
	if err != nil {
		return calendar.Date{}, "", invalid("time", "not a slot offered by the shop")
	}
	return d, slot, nil
}

// parseRange reads an inclusive date range. Missing bounds stay zero unless
// requireBoth is set.
func (s *Service) parseRange(rawFrom, rawTo string, requireBoth bool) (calendar.Date, calendar.Date, error) {
	var from, to calendar.Date
	if strings.TrimSpace(rawFrom) != "" {
		d, err := calendar.ParseDate(rawFrom, s.resolver.Location())
		if err != nil {
			return from, to, invalid("from", "use YYYY-MM-DD")
		}
		from = d
	} else if requireBoth {
		return from, to, invalid("from", "required")
	}
	if strings.TrimSpace(rawTo) != "" {
		d, err := calendar.ParseDate(rawTo, s.resolver.Location())
		if err != nil {
			return from, to, invalid("to", "use YYYY-MM-DD")
		}
		to = d
	} else if requireBoth {
		return from, to, invalid("to", "required")
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return from, to, invalid("to", "must not be before from")
	}
	return from, to, nil
}

func requiredText(field, raw string, maxLen int) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", invalid(field, "required")
	}
	if utf8.RuneCountInString(v) > maxLen {
		return "", invalid(field, "too long")
	}
	return v, nil
}

func optionalText(field, raw string, maxLen int) (string, error) {
	v := strings.TrimSpace(raw)
	if utf8.RuneCountInString(v) > maxLen {
		return "", invalid(field, "too long")
	}
	return v, nil
}

// normalizeEmail lower-cases the address; the customer upsert is keyed on it.
func normalizeEmail(raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", invalid("email", "required")
	}
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v {
		return "", invalid("email", "not a valid address")
	}
	return strings.ToLower(v), nil
}

func one(evt outbox.Event, err error) ([]outbox.Event, error) {
	if err != nil {
		return nil, err
	}
	return []outbox.Event{evt}, nil
}
