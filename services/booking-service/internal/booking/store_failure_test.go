package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/barberline/barbershop/services/booking-service/internal/availability"
	"github.com/barberline/barbershop/services/booking-service/internal/calendar"
	"github.com/barberline/barbershop/services/booking-service/internal/model"
	"github.com/barberline/barbershop/services/booking-service/internal/slots"
	"github.com/barberline/barbershop/services/booking-service/internal/storage"
)

var errConnReset = errors.New("connection reset by peer")

// brokenStore fails selected calls the way a dropped database connection would.
type brokenStore struct {
	*storage.Memory
	failReads  bool
	failWrites bool
}

func (b *brokenStore) BookedSlotsForDate(ctx context.Context, d calendar.Date) ([]model.BookedSlot, error) {
	if b.failReads {
		return nil, errConnReset
	}
	return b.Memory.BookedSlotsForDate(ctx, d)
}

func (b *brokenStore) CreateBooking(ctx context.Context, nb storage.NewBooking, events storage.EventsFunc) (model.AppointmentView, error) {
	if b.failWrites {
		return model.AppointmentView{}, errConnReset
	}
	return b.Memory.CreateBooking(ctx, nb, events)
}

func newBrokenService(t *testing.T, store *brokenStore) *Service {
	t.Helper()
	catalog, err := slots.New(slots.Config{First: "09:00", Last: "11:00", Step: time.Hour})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	clock := func() time.Time { return testNow }
	resolver := availability.NewResolver(store, catalog, availability.Policy{MaxAdvanceDays: 30}, clock)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewService(store, resolver, logger, Config{}, clock)
}

func assertSystemError(t *testing.T, err error) {
	t.Helper()
	if !errors.Is(err, errConnReset) {
		t.Fatalf("expected the storage failure to surface, got %v", err)
	}
	var be *Error
	if errors.As(err, &be) {
		t.Fatalf("storage failure must not be reported as a business refusal, got %+v", be)
	}
}

func TestStorageFailuresAreSystemErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("availability read", func(t *testing.T) {
		svc := newBrokenService(t, &brokenStore{Memory: storage.NewMemory(), failReads: true})
		_, err := svc.Book(ctx, req("2025-06-10", "9:00 AM", "uma"))
		assertSystemError(t, err)
		_, err = svc.Availability(ctx, "2025-06-10")
		assertSystemError(t, err)
	})

	t.Run("booking write", func(t *testing.T) {
		store := &brokenStore{Memory: storage.NewMemory(), failWrites: true}
		svc := newBrokenService(t, store)
		_, err := svc.Book(ctx, req("2025-06-10", "9:00 AM", "vic"))
		assertSystemError(t, err)

		views, err := store.ListAppointments(ctx, model.AppointmentFilter{})
		if err != nil || len(views) != 0 {
			t.Fatalf("failed write must leave nothing behind, got %d (%v)", len(views), err)
		}
	})
}
