package booking

import (
	"context"

	"github.com/barberline/barbershop/services/booking-service/internal/availability"
)

// maxPreviewDays bounds one date picker request.
const maxPreviewDays = 62

// Availability resolves one date for the public slot picker.
func (s *Service) Availability(ctx context.Context, rawDate string) (availability.Day, error) {
	d, err := s.parseDate(rawDate)
	if err != nil {
		return availability.Day{}, err
	}
	return s.resolver.Resolve(ctx, d, "")
}

// Days resolves [from, to]. A missing from means today; a missing to means the end of the
// booking window, capped at maxPreviewDays.
func (s *Service) Days(ctx context.Context, rawFrom, rawTo string) ([]availability.Day, error) {
	from, to, err := s.parseRange(rawFrom, rawTo, false)
	if err != nil {
		return nil, err
	}
	if from.IsZero() {
		from = s.resolver.Today()
	}
	if to.IsZero() {
		to = from.AddDays(maxPreviewDays - 1)
		if limit := s.resolver.MaxAdvanceDays(); limit > 0 && limit < maxPreviewDays {
			to = s.resolver.Today().AddDays(limit)
		}
		if to.Before(from) {
			to = from
		}
	}
	if to.Before(from) {
		return nil, invalid("to", "must not be before from")
	}
	if from.DaysUntil(to) >= maxPreviewDays {
		return nil, invalid("to", "range is limited to 62 days")
	}
	return s.resolver.Days(ctx, from, to)
}
