package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/barberline/barbershop/services/booking-service/internal/calendar"
	"github.com/barberline/barbershop/services/booking-service/internal/model"
	"github.com/barberline/barbershop/services/booking-service/internal/outbox"
	"github.com/barberline/barbershop/services/booking-service/internal/slots"
)

var (
	day = calendar.Date{Year: 2025, Month: time.June, Day: 14}
	at  = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

func booking(email string, slot slots.Slot) NewBooking {
	return NewBooking{
		Date:     day,
		Time:     slot,
		Service:  "Haircut",
		Customer: model.Customer{Name: "Alex", Email: email, Phone: "555-0100"},
		At:       at,
	}
}

func TestMemoryBlocksAreUnique(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.AddBlockedDay(ctx, model.BlockedDay{Date: day, Reason: "Holiday"}); err != nil {
		t.Fatalf("block day: %v", err)
	}
	if _, err := m.AddBlockedDay(ctx, model.BlockedDay{Date: day, Reason: "Again"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	b, found, _ := m.BlockedDay(ctx, day)
	if !found || b.Reason != "Holiday" {
		t.Fatalf("second add must not change the block, got %+v", b)
	}
	if err := m.RemoveBlockedDay(ctx, day); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := m.RemoveBlockedDay(ctx, day); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := m.AddBlockedSlot(ctx, model.BlockedTimeSlot{Date: day, Time: "3:00 PM"}); err != nil {
		t.Fatalf("block slot: %v", err)
	}
	if _, err := m.AddBlockedSlot(ctx, model.BlockedTimeSlot{Date: day, Time: "3:00 PM"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := m.RemoveBlockedSlot(ctx, day, "4:00 PM"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryCreateBookingUpsertsCustomer(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	first, err := m.CreateBooking(ctx, booking("alex@example.com", "10:00 AM"), nil)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	nb := booking("alex@example.com", "11:00 AM")
	nb.Customer.Name = "Alex Renamed"
	second, err := m.CreateBooking(ctx, nb, nil)
	if err != nil {
		t.Fatalf("book again: %v", err)
	}
	if first.CustomerID != second.CustomerID {
		t.Fatal("same email must reuse the customer")
	}
	c, _ := m.GetCustomer(ctx, first.CustomerID)
	if c.Name != "Alex Renamed" {
		t.Fatalf("expected last write to win, got %q", c.Name)
	}

	booked, _ := m.BookedSlotsForDate(ctx, day)
	if len(booked) != 2 || booked[0].Time != "10:00 AM" || booked[1].Time != "11:00 AM" {
		t.Fatalf("unexpected booked slots %+v", booked)
	}
}

func TestMemoryConcurrentBookingsOneWinner(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	const n = 32
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		dupes    int
		otherErr error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.CreateBooking(ctx, booking(fmt.Sprintf("c%d@example.com", i), "10:00 AM"), nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrDuplicate):
				dupes++
			default:
				otherErr = err
			}
		}(i)
	}
	wg.Wait()
	if otherErr != nil {
		t.Fatalf("unexpected error: %v", otherErr)
	}
	if wins != 1 || dupes != n-1 {
		t.Fatalf("expected exactly one winner, got wins=%d dupes=%d", wins, dupes)
	}
}

func TestMemoryEventsFailureLeavesNoRecord(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	boom := errors.New("boom")

	_, err := m.CreateBooking(ctx, booking("alex@example.com", "10:00 AM"), func(model.AppointmentView) ([]outbox.Event, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected events error, got %v", err)
	}
	if booked, _ := m.BookedSlotsForDate(ctx, day); len(booked) != 0 {
		t.Fatal("failed write must not hold the slot")
	}
	if customers, _ := m.ListCustomers(ctx, model.CustomerFilter{}); len(customers) != 0 {
		t.Fatal("failed write must not create the customer")
	}
}

func TestMemoryUpdateAppointmentGuardsSlot(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	a, _ := m.CreateBooking(ctx, booking("a@example.com", "10:00 AM"), nil)
	nb := booking("b@example.com", "11:00 AM")
	b, _ := m.CreateBooking(ctx, nb, nil)

	moveTo := func(target model.AppointmentView) Mutation {
		return func(cur model.AppointmentView) (model.Appointment, []outbox.Event, error) {
			next := cur.Appointment
			next.Time = target.Time
			return next, nil, nil
		}
	}
	if _, err := m.UpdateAppointment(ctx, b.ID, moveTo(a)); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// Cancelling a frees 10:00 AM for b.
	_, err := m.UpdateAppointment(ctx, a.ID, func(cur model.AppointmentView) (model.Appointment, []outbox.Event, error) {
		next := cur.Appointment
		next.Status = model.StatusCancelled
		return next, nil, nil
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	moved, err := m.UpdateAppointment(ctx, b.ID, moveTo(a))
	if err != nil {
		t.Fatalf("move after cancel: %v", err)
	}
	if moved.Time != "10:00 AM" || moved.Customer.Email != "b@example.com" {
		t.Fatalf("unexpected view %+v", moved)
	}
	booked, _ := m.BookedSlotsForDate(ctx, day)
	if len(booked) != 1 || booked[0].AppointmentID != b.ID {
		t.Fatalf("expected only b to hold a slot, got %+v", booked)
	}

	if _, err := m.UpdateAppointment(ctx, "missing", moveTo(a)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryCustomers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	a, _ := m.CreateBooking(ctx, booking("a@example.com", "10:00 AM"), nil)
	nb := booking("b@example.com", "11:00 AM")
	nb.Customer.Name = "Blake"
	b, _ := m.CreateBooking(ctx, nb, nil)

	found, _ := m.ListCustomers(ctx, model.CustomerFilter{Search: "BLA"})
	if len(found) != 1 || found[0].ID != b.CustomerID {
		t.Fatalf("expected search to match Blake, got %+v", found)
	}

	cust, _ := m.GetCustomer(ctx, b.CustomerID)
	cust.Email = "a@example.com"
	if _, err := m.UpdateCustomer(ctx, cust); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for taken email, got %v", err)
	}

	if err := m.DeleteCustomer(ctx, a.CustomerID); !errors.Is(err, ErrReferenced) {
		t.Fatalf("expected ErrReferenced, got %v", err)
	}
	if err := m.DeleteAppointment(ctx, a.ID, nil); err != nil {
		t.Fatalf("delete appointment: %v", err)
	}
	if err := m.DeleteCustomer(ctx, a.CustomerID); err != nil {
		t.Fatalf("delete customer: %v", err)
	}
	if _, err := m.GetCustomer(ctx, a.CustomerID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryListAppointmentsChronological(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i, slot := range []slots.Slot{"2:00 PM", "9:00 AM", "11:00 AM"} {
		if _, err := m.CreateBooking(ctx, booking(fmt.Sprintf("c%d@example.com", i), slot), nil); err != nil {
			t.Fatalf("book %s: %v", slot, err)
		}
	}
	list, _ := m.ListAppointments(ctx, model.AppointmentFilter{From: day, To: day, Status: model.StatusBooked})
	if len(list) != 3 || list[0].Time != "9:00 AM" || list[1].Time != "11:00 AM" || list[2].Time != "2:00 PM" {
		t.Fatalf("unexpected order: %+v", list)
	}
}

func TestMemoryUpdateBlocksByID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	next := day.AddDays(1)

	first, _ := m.AddBlockedDay(ctx, model.BlockedDay{Date: day, Reason: "Holiday", CreatedAt: at})
	second, _ := m.AddBlockedDay(ctx, model.BlockedDay{Date: next, Reason: "Training"})

	if _, err := m.UpdateBlockedDay(ctx, model.BlockedDay{ID: first.ID, Date: next, Reason: "x"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("moving onto a blocked date: expected ErrDuplicate, got %v", err)
	}
	moved, err := m.UpdateBlockedDay(ctx, model.BlockedDay{ID: first.ID, Date: day.AddDays(2), Reason: "Moved"})
	if err != nil || !moved.CreatedAt.Equal(at) {
		t.Fatalf("update: %+v (%v)", moved, err)
	}
	if _, found, _ := m.BlockedDay(ctx, day); found {
		t.Fatal("old date must be reopened")
	}
	got, err := m.BlockedDayByID(ctx, first.ID)
	if err != nil || got.Reason != "Moved" || got.Date != day.AddDays(2) {
		t.Fatalf("get by id: %+v (%v)", got, err)
	}
	if _, err := m.UpdateBlockedDay(ctx, model.BlockedDay{ID: "missing", Date: day}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := m.BlockedDayByID(ctx, second.ID); err != nil {
		t.Fatalf("second block untouched: %v", err)
	}

	a, _ := m.AddBlockedSlot(ctx, model.BlockedTimeSlot{Date: day, Time: "9:00 AM"})
	_, _ = m.AddBlockedSlot(ctx, model.BlockedTimeSlot{Date: day, Time: "10:00 AM"})
	if _, err := m.UpdateBlockedSlot(ctx, model.BlockedTimeSlot{ID: a.ID, Date: day, Time: "10:00 AM"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if _, err := m.UpdateBlockedSlot(ctx, model.BlockedTimeSlot{ID: a.ID, Date: day, Time: "9:00 AM", Reason: "Lunch"}); err != nil {
		t.Fatalf("reason-only update: %v", err)
	}
	got2, err := m.BlockedSlotByID(ctx, a.ID)
	if err != nil || got2.Reason != "Lunch" {
		t.Fatalf("get slot by id: %+v (%v)", got2, err)
	}
	if _, err := m.BlockedSlotByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryUpsertCustomer(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	c, created, err := m.UpsertCustomer(ctx, model.Customer{Name: "Sam", Email: "sam@example.com", Phone: "1"}, at)
	if err != nil || !created {
		t.Fatalf("first upsert: created=%v err=%v", created, err)
	}
	again, created, err := m.UpsertCustomer(ctx, model.Customer{Name: "Samuel", Email: "sam@example.com", Phone: "2"}, at.Add(time.Hour))
	if err != nil || created || again.ID != c.ID || again.Name != "Samuel" || !again.CreatedAt.Equal(at) {
		t.Fatalf("second upsert: %+v created=%v err=%v", again, created, err)
	}

	view, err := m.CreateBooking(ctx, booking("sam@example.com", "9:00 AM"), nil)
	if err != nil || view.CustomerID != c.ID {
		t.Fatalf("booking must reuse the customer: %+v (%v)", view, err)
	}
}
