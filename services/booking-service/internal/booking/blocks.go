package booking

import (
	"context"
	"errors"
	"strings"

	"github.com/barberline/barbershop/services/booking-service/internal/calendar"
	"github.com/barberline/barbershop/services/booking-service/internal/model"
	"github.com/barberline/barbershop/services/booking-service/internal/storage"
)

const maxReasonLen = 200

// BlockDay closes a whole date. Existing bookings on it are left alone.
func (s *Service) BlockDay(ctx context.Context, rawDate, reason string) (model.BlockedDay, error) {
	d, err := s.parseDate(rawDate)
	if err != nil {
		return model.BlockedDay{}, err
	}
	reason, err = blockReason(reason)
	if err != nil {
		return model.BlockedDay{}, err
	}
	b, err := s.store.AddBlockedDay(ctx, model.BlockedDay{Date: d, Reason: reason, CreatedAt: s.now()})
	if errors.Is(err, storage.ErrDuplicate) {
		return model.BlockedDay{}, &Error{Kind: ErrConflict, Date: d, Reason: "day is already blocked"}
	}
	if err != nil {
		return model.BlockedDay{}, err
	}
	s.logger.Info("day blocked", "date", d.String(), "reason", reason)
	return b, nil
}

func (s *Service) UnblockDay(ctx context.Context, rawDate string) error {
	d, err := s.parseDate(rawDate)
	if err != nil {
		return err
	}
	if err := s.store.RemoveBlockedDay(ctx, d); errors.Is(err, storage.ErrNotFound) {
		return &Error{Kind: ErrNotFound, Date: d, Reason: "day is not blocked"}
	} else if err != nil {
		return err
	}
	s.logger.Info("day unblocked", "date", d.String())
	return nil
}

func (s *Service) BlockSlot(ctx context.Context, rawDate, rawTime, reason string) (model.BlockedTimeSlot, error) {
	d, slot, err := s.parseSlot(rawDate, rawTime)
	if err != nil {
		return model.BlockedTimeSlot{}, err
	}
	reason, err = blockReason(reason)
	if err != nil {
		return model.BlockedTimeSlot{}, err
	}
	b, err := s.store.AddBlockedSlot(ctx, model.BlockedTimeSlot{Date: d, Time: slot, Reason: reason, CreatedAt: s.now()})
	if errors.Is(err, storage.ErrDuplicate) {
		return model.BlockedTimeSlot{}, &Error{Kind: ErrConflict, Date: d, Time: slot, Reason: "slot is already blocked"}
	}
	if err != nil {
		return model.BlockedTimeSlot{}, err
	}
	s.logger.Info("slot blocked", "date", d.String(), "time", slot.String(), "reason", reason)
	return b, nil
}

func (s *Service) UnblockSlot(ctx context.Context, rawDate, rawTime string) error {
	d, slot, err := s.parseSlot(rawDate, rawTime)
	if err != nil {
		return err
	}
	if err := s.store.RemoveBlockedSlot(ctx, d, slot); errors.Is(err, storage.ErrNotFound) {
		return &Error{Kind: ErrNotFound, Date: d, Time: slot, Reason: "slot is not blocked"}
	} else if err != nil {
		return err
	}
	s.logger.Info("slot unblocked", "date", d.String(), "time", slot.String())
	return nil
}

func (s *Service) GetBlockedDay(ctx context.Context, id string) (model.BlockedDay, error) {
	b, err := s.store.BlockedDayByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.BlockedDay{}, notFound("blocked day", id)
	}
	return b, err
}

// UpdateBlockedDay moves a day block and replaces its reason.
func (s *Service) UpdateBlockedDay(ctx context.Context, id, rawDate, reason string) (model.BlockedDay, error) {
	d, err := s.parseDate(rawDate)
	if err != nil {
		return model.BlockedDay{}, err
	}
	reason, err = blockReason(reason)
	if err != nil {
		return model.BlockedDay{}, err
	}
	b, err := s.store.UpdateBlockedDay(ctx, model.BlockedDay{ID: id, Date: d, Reason: reason})
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return model.BlockedDay{}, notFound("blocked day", id)
	case errors.Is(err, storage.ErrDuplicate):
		return model.BlockedDay{}, &Error{Kind: ErrConflict, Date: d, Reason: "day is already blocked"}
	case err != nil:
		return model.BlockedDay{}, err
	}
	s.logger.Info("day block updated", "block_id", id, "date", d.String(), "reason", reason)
	return b, nil
}

func (s *Service) GetBlockedSlot(ctx context.Context, id string) (model.BlockedTimeSlot, error) {
	b, err := s.store.BlockedSlotByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.BlockedTimeSlot{}, notFound("blocked slot", id)
	}
	return b, err
}

func (s *Service) UpdateBlockedSlot(ctx context.Context, id, rawDate, rawTime, reason string) (model.BlockedTimeSlot, error) {
	d, slot, err := s.parseSlot(rawDate, rawTime)
	if err != nil {
		return model.BlockedTimeSlot{}, err
	}
	reason, err = blockReason(reason)
	if err != nil {
		return model.BlockedTimeSlot{}, err
	}
	b, err := s.store.UpdateBlockedSlot(ctx, model.BlockedTimeSlot{ID: id, Date: d, Time: slot, Reason: reason})
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return model.BlockedTimeSlot{}, notFound("blocked slot", id)
	case errors.Is(err, storage.ErrDuplicate):
		return model.BlockedTimeSlot{}, &Error{Kind: ErrConflict, Date: d, Time: slot, Reason: "slot is already blocked"}
	case err != nil:
		return model.BlockedTimeSlot{}, err
	}
	s.logger.Info("slot block updated", "block_id", id, "date", d.String(), "time", slot.String(), "reason", reason)
	return b, nil
}

func (s *Service) ListBlockedDays(ctx context.Context, rawFrom, rawTo string) ([]model.BlockedDay, error) {
	from, to, err := s.parseRange(rawFrom, rawTo, true)
	if err != nil {
		return nil, err
	}
	return s.store.ListBlockedDays(ctx, from, to)
}

func (s *Service) ListBlockedSlots(ctx context.Context, rawFrom, rawTo string) ([]model.BlockedTimeSlot, error) {
	from, to, err := s.parseRange(rawFrom, rawTo, true)
	if err != nil {
		return nil, err
	}
	return s.store.ListBlockedSlots(ctx, from, to)
}

func (s *Service) parseDate(raw string) (calendar.Date, error) {
	if strings.TrimSpace(raw) == "" {
		return calendar.Date{}, invalid("date", "required")
	}
	d, err := calendar.ParseDate(raw, s.resolver.Location())
	if err != nil {
		return calendar.Date{}, invalid("date", "use YYYY-MM-DD")
	}
	return d, nil
}

func blockReason(raw string) (string, error) {
	reason, err := optionalText("reason", raw, maxReasonLen)
	if err != nil {
		return "", err
	}
	if reason == "" {
		reason = model.DefaultBlockReason
	}
	return reason, nil
}
