package availability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/barberline/barbershop/services/booking-service/internal/calendar"
	"github.com/barberline/barbershop/services/booking-service/internal/model"
	"github.com/barberline/barbershop/services/booking-service/internal/slots"
	"github.com/barberline/barbershop/services/booking-service/internal/storage"
)

type Clock func() time.Time

// Policy is the shop-wide booking window.
type Policy struct {
	Location *time.Location
	// MaxAdvanceDays limits how far ahead a day can be booked. Zero means no limit.
	MaxAdvanceDays int
	ClosedWeekdays []time.Weekday
}

type ClosureKind string

const (
	ClosureBlocked ClosureKind = "blocked"
	ClosurePast    ClosureKind = "past"
	ClosureTooFar  ClosureKind = "too_far_ahead"
	ClosureWeekday ClosureKind = "closed_weekday"
)

// Day is the resolved availability of one calendar date.
type Day struct {
	Date   calendar.Date
	Closed bool
	Kind   ClosureKind
	Reason string
	Slots  []slots.Slot
	// Unavailable explains why each catalog slot missing from Slots was dropped.
	Unavailable map[slots.Slot]string
}

const (
	ReasonBooked  = "already booked"
	ReasonStarted = "already started"
)

// Has reports whether s is bookable on the day.
func (d Day) Has(s slots.Slot) bool {
	for _, free := range d.Slots {
		if free == s {
			return true
		}
	}
	return false
}

// Resolver is the single source of availability. Every call reads the store again; there
// is no cache to go stale.
type Resolver struct {
	store   storage.AvailabilityReader
	catalog *slots.Catalog
	policy  Policy
	now     Clock
}

func NewResolver(store storage.AvailabilityReader, catalog *slots.Catalog, policy Policy, now Clock) *Resolver {
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Resolver{store: store, catalog: catalog, policy: policy, now: now}
}

func (r *Resolver) Catalog() *slots.Catalog { return r.catalog }

func (r *Resolver) Location() *time.Location { return r.policy.Location }

func (r *Resolver) MaxAdvanceDays() int { return r.policy.MaxAdvanceDays }

// Today is the current calendar date in the shop's timezone.
func (r *Resolver) Today() calendar.Date {
	return calendar.DateOf(r.now(), r.policy.Location)
}

// AvailableSlots lists the bookable slots of d. A closed day yields an empty list.
func (r *Resolver) AvailableSlots(ctx context.Context, d calendar.Date) ([]slots.Slot, error) {
	day, err := r.Resolve(ctx, d, "")
	if err != nil {
		return nil, err
	}
	return day.Slots, nil
}

// Resolve computes the availability of d. The booked slot of appointment exceptID, if any,
// counts as free so an appointment can be moved within its own day.
func (r *Resolver) Resolve(ctx context.Context, d calendar.Date, exceptID string) (Day, error) {
	if closed, ok := r.windowClosure(d); ok {
		return closed, nil
	}

	block, found, err := r.store.BlockedDay(ctx, d)
	if err != nil {
		return Day{}, fmt.Errorf("load blocked day: %w", err)
	}
	if found {
		return blockedDay(block), nil
	}

	blocked, err := r.store.BlockedSlotsForDate(ctx, d)
	if err != nil {
		return Day{}, fmt.Errorf("load blocked slots: %w", err)
	}
	booked, err := r.store.BookedSlotsForDate(ctx, d)
	if err != nil {
		return Day{}, fmt.Errorf("load booked slots: %w", err)
	}
	return r.open(d, blocked, booked, exceptID), nil
}

// Days resolves every date in [from, to] with three range reads, for the date picker.
func (r *Resolver) Days(ctx context.Context, from, to calendar.Date) ([]Day, error) {
	if to.Before(from) {
		return nil, nil
	}
	blockedDays, err := r.store.ListBlockedDays(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load blocked days: %w", err)
	}
	blockedSlots, err := r.store.ListBlockedSlots(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load blocked slots: %w", err)
	}
	booked, err := r.store.BookedSlotsBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load booked slots: %w", err)
	}

	dayBlocks := make(map[calendar.Date]model.BlockedDay, len(blockedDays))
	for _, b := range blockedDays {
		dayBlocks[b.Date] = b
	}
	slotBlocks := map[calendar.Date][]model.BlockedTimeSlot{}
	for _, b := range blockedSlots {
		slotBlocks[b.Date] = append(slotBlocks[b.Date], b)
	}

	var out []Day
	for d := from; !d.After(to); d = d.AddDays(1) {
		if closed, ok := r.windowClosure(d); ok {
			out = append(out, closed)
			continue
		}
		if b, ok := dayBlocks[d]; ok {
			out = append(out, blockedDay(b))
			continue
		}
		out = append(out, r.open(d, slotBlocks[d], booked[d], ""))
	}
	return out, nil
}

func (r *Resolver) open(d calendar.Date, blocked []model.BlockedTimeSlot, booked []model.BookedSlot, exceptID string) Day {
	unavailable := map[slots.Slot]string{}
	blockedSet := make(map[slots.Slot]struct{}, len(blocked))
	for _, b := range blocked {
		blockedSet[b.Time] = struct{}{}
		unavailable[b.Time] = blockReason(b.Reason)
	}
	bookedSet := make(map[slots.Slot]struct{}, len(booked))
	for _, b := range booked {
		if exceptID != "" && b.AppointmentID == exceptID {
			continue
		}
		bookedSet[b.Time] = struct{}{}
		if _, isBlocked := unavailable[b.Time]; !isBlocked {
			unavailable[b.Time] = ReasonBooked
		}
	}

	free := FreeSlots(r.catalog.All(), blockedSet, bookedSet)
	if d == r.Today() {
		// Slots that already started today are gone.
		now := r.now().In(r.policy.Location)
		midnight := d.Time(r.policy.Location)
		upcoming := free[:0]
		for _, s := range free {
			start, _ := r.catalog.StartsAt(midnight, s)
			if start.After(now) {
				upcoming = append(upcoming, s)
				continue
			}
			unavailable[s] = ReasonStarted
		}
		free = upcoming
	}
	return Day{Date: d, Slots: free, Unavailable: unavailable}
}

func (r *Resolver) windowClosure(d calendar.Date) (Day, bool) {
	today := r.Today()
	if d.Before(today) {
		return Day{Date: d, Closed: true, Kind: ClosurePast, Reason: "date is in the past"}, true
	}
	if limit := r.policy.MaxAdvanceDays; limit > 0 && today.DaysUntil(d) > limit {
		return Day{
			Date:   d,
			Closed: true,
			Kind:   ClosureTooFar,
			Reason: fmt.Sprintf("bookings open at most %d days ahead", limit),
		}, true
	}
	for _, wd := range r.policy.ClosedWeekdays {
		if d.Weekday() == wd {
			return Day{Date: d, Closed: true, Kind: ClosureWeekday, Reason: "closed on " + wd.String() + "s"}, true
		}
	}
	return Day{}, false
}

func blockedDay(b model.BlockedDay) Day {
	return Day{Date: b.Date, Closed: true, Kind: ClosureBlocked, Reason: blockReason(b.Reason)}
}

func blockReason(reason string) string {
	if strings.TrimSpace(reason) == "" {
		return model.DefaultBlockReason
	}
	return reason
}

// ParseWeekdays reads names such as "sunday" or "Sun".
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	var out []time.Weekday
	for _, name := range names {
		n := strings.ToLower(strings.TrimSpace(name))
		found := false
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			full := strings.ToLower(wd.String())
			if n == full || (len(n) >= 3 && strings.HasPrefix(full, n)) {
				out = append(out, wd)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
	}
	return out, nil
}
