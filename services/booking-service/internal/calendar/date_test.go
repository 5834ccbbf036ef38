package calendar

import (
	"errors"
	"testing"
	"time"
)

func TestParseDateNormalizesTimestamps(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// 02:30 UTC on the 15th is still the evening of the 14th in New York.
	d, err := ParseDate("2025-06-15T02:30:00Z", loc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.String() != "2025-06-14" {
		t.Fatalf("expected 2025-06-14, got %s", d)
	}

	bare, err := ParseDate("2025-06-14", loc)
	if err != nil {
		t.Fatalf("parse bare: %v", err)
	}
	if bare != d {
		t.Fatalf("expected bare date and timestamp to normalize to the same day")
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "tomorrow", "2025-13-01", "14/06/2025"} {
		if _, err := ParseDate(raw, time.UTC); !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("expected ErrInvalidDate for %q, got %v", raw, err)
		}
	}
}

func TestDateArithmetic(t *testing.T) {
	d := Date{Year: 2025, Month: time.February, Day: 28}
	if got := d.AddDays(1).String(); got != "2025-03-01" {
		t.Fatalf("expected 2025-03-01, got %s", got)
	}
	if !d.Before(d.AddDays(1)) || d.After(d.AddDays(1)) {
		t.Fatal("ordering is broken")
	}
	if n := d.DaysUntil(d.AddDays(30)); n != 30 {
		t.Fatalf("expected 30 days, got %d", n)
	}
	if d.AddDays(1).Weekday() != time.Saturday {
		t.Fatalf("2025-03-01 is a Saturday, got %s", d.AddDays(1).Weekday())
	}
}

func TestDateTextRoundTripForJSONKeys(t *testing.T) {
	var d Date
	if err := d.UnmarshalText([]byte("2025-06-16")); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	b, _ := d.MarshalText()
	if string(b) != "2025-06-16" {
		t.Fatalf("unexpected text %q", b)
	}
}
