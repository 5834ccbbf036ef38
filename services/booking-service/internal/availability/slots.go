package availability

import "github.com/barberline/barbershop/services/booking-service/internal/slots"

// FreeSlots returns the catalog slots that are neither blocked nor booked, in catalog
// order. The result is always a subset of catalog.
func FreeSlots(catalog []slots.Slot, blocked, booked map[slots.Slot]struct{}) []slots.Slot {
	free := make([]slots.Slot, 0, len(catalog))
	for _, s := range catalog {
		if _, ok := blocked[s]; ok {
			continue
		}
		if _, ok := booked[s]; ok {
			continue
		}
		free = append(free, s)
	}
	return free
}
