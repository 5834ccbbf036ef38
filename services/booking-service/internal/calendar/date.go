// Package calendar holds the single calendar-date normalization used by every
// availability and booking comparison.
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const layout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid date")

// Date is a calendar day with the time of day removed. It is comparable and usable as a
// map key.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf truncates t to its calendar day in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate accepts a bare day (2025-06-14) or an RFC 3339 timestamp. Timestamps are
// converted to loc before the time of day is dropped.
func ParseDate(raw string, loc *time.Location) (Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Date{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
		return DateOf(t, loc), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return DateOf(t, loc), nil
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
}

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Time returns midnight of d in loc.
func (d Date) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// UTC is the value stored in DATE columns; pgx writes it without shifting the day.
func (d Date) UTC() time.Time { return d.Time(time.UTC) }

func (d Date) AddDays(n int) Date {
	return DateOf(d.UTC().AddDate(0, 0, n), time.UTC)
}

func (d Date) Weekday() time.Weekday { return d.UTC().Weekday() }

func (d Date) Before(o Date) bool { return d.UTC().Before(o.UTC()) }

func (d Date) After(o Date) bool { return d.UTC().After(o.UTC()) }

// DaysUntil is the number of days from d to o, negative when o is earlier.
func (d Date) DaysUntil(o Date) int {
	return int(o.UTC().Sub(d.UTC()).Hours() / 24)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b), time.UTC)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
