// Package slots defines the shop's fixed daily slot template.
package slots

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const labelLayout = "3:04 PM"

var ErrUnknownSlot = errors.New("unknown time slot")

// Slot is a catalog label such as "9:00 AM". Two slots are equal when their labels are.
type Slot string

func (s Slot) String() string { return string(s) }

// Minutes parses the label back to minutes after midnight, or -1 for a malformed label.
func (s Slot) Minutes() int {
	t, err := time.Parse(labelLayout, string(s))
	if err != nil {
		return -1
	}
	return t.Hour()*60 + t.Minute()
}

// Catalog is the ordered, immutable list of daily slots. Build it once at startup.
type Catalog struct {
	slots   []Slot
	offsets map[Slot]int
}

// Config describes the template as first and last start times in "15:04" form plus the
// step between starts.
type Config struct {
	First string
	Last  string
	Step  time.Duration
}

func DefaultConfig() Config {
	return Config{First: "09:00", Last: "20:00", Step: time.Hour}
}

func New(cfg Config) (*Catalog, error) {
	if cfg.Step <= 0 || cfg.Step%time.Minute != 0 {
		return nil, fmt.Errorf("slot step must be a positive whole number of minutes (got %s)", cfg.Step)
	}
	first, err := clockMinutes(cfg.First)
	if err != nil {
		return nil, fmt.Errorf("first slot: %w", err)
	}
	last, err := clockMinutes(cfg.Last)
	if err != nil {
		return nil, fmt.Errorf("last slot: %w", err)
	}
	if last < first {
		return nil, fmt.Errorf("last slot %s is before first slot %s", cfg.Last, cfg.First)
	}

	step := int(cfg.Step / time.Minute)
	c := &Catalog{offsets: map[Slot]int{}}
	for m := first; m <= last; m += step {
		s := Slot(label(m))
		c.slots = append(c.slots, s)
		c.offsets[s] = m
	}
	return c, nil
}

// MustDefault is the 9:00 AM to 8:00 PM hourly catalog.
func MustDefault() *Catalog {
	c, err := New(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return c
}

// All returns the slots in chronological order. The slice is a copy.
func (c *Catalog) All() []Slot {
	out := make([]Slot, len(c.slots))
	copy(out, c.slots)
	return out
}

func (c *Catalog) Len() int { return len(c.slots) }

func (c *Catalog) Contains(s Slot) bool {
	_, ok := c.offsets[s]
	return ok
}

// Offset is the slot's start in minutes after midnight.
func (c *Catalog) Offset(s Slot) (int, bool) {
	m, ok := c.offsets[s]
	return m, ok
}

// StartsAt returns the wall-clock start of s on the day that begins at midnight.
func (c *Catalog) StartsAt(midnight time.Time, s Slot) (time.Time, bool) {
	m, ok := c.offsets[s]
	if !ok {
		return time.Time{}, false
	}
	return time.Date(midnight.Year(), midnight.Month(), midnight.Day(), m/60, m%60, 0, 0, midnight.Location()), true
}

// Parse maps user input to a catalog slot. It accepts the canonical label, a zero padded
// hour ("09:00 AM"), lower case meridiem and 24 hour clock ("21:00").
func (c *Catalog) Parse(raw string) (Slot, error) {
	raw = strings.TrimSpace(raw)
	if s := Slot(raw); c.Contains(s) {
		return s, nil
	}
	m, err := clockMinutes(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownSlot, raw)
	}
	s := Slot(label(m))
	if !c.Contains(s) {
		return "", fmt.Errorf("%w: %q", ErrUnknownSlot, raw)
	}
	return s, nil
}

func clockMinutes(raw string) (int, error) {
	v := strings.ToUpper(strings.Join(strings.Fields(raw), " "))
	for _, layout := range []string{"15:04", labelLayout, "03:04 PM", "3:04PM", "03:04PM"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Hour()*60 + t.Minute(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized clock time %q", raw)
}

func label(minutes int) string {
	return time.Date(2000, 1, 1, minutes/60, minutes%60, 0, 0, time.UTC).Format(labelLayout)
}
