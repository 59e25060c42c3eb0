package models

import (
	"errors"
	"testing"
	"time"
)

func TestParseOverdueDate(t *testing.T) {
	want := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"2026-03-10", "10/03/2026", " 2026-03-10 "} {
		got, err := ParseOverdueDate(raw)
		if err != nil {
			t.Fatalf("ParseOverdueDate(%q): %v", raw, err)
		}
		if !got.Equal(want) {
			t.Fatalf("ParseOverdueDate(%q) = %v, want %v", raw, got, want)
		}
	}
	for _, raw := range []string{"", "2026/03/10", "31/02/2026", "tomorrow"} {
		if _, err := ParseOverdueDate(raw); !errors.Is(err, ErrInvalidOverdueDate) {
			t.Fatalf("ParseOverdueDate(%q) err = %v, want ErrInvalidOverdueDate", raw, err)
		}
	}
}

func TestBusinessTodayUsesBusinessZone(t *testing.T) {
	t.Setenv("BUSINESS_TIMEZONE_OFFSET_HOURS", "7")
	// 18:30 UTC is already the next day at UTC+7.
	now := time.Date(2026, 3, 9, 18, 30, 0, 0, time.UTC)
	got := BusinessToday(now)
	if want := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("BusinessToday = %v, want %v", got, want)
	}
}

func TestIsOverdue(t *testing.T) {
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		date string
		want bool
	}{
		{"2026-03-09", true},
		{"2025-12-31", true},
		{"2026-03-10", false},
		{"2026-03-11", false},
	}
	for _, tc := range cases {
		if got := IsOverdue(*day(tc.date), today); got != tc.want {
			t.Fatalf("IsOverdue(%s) = %v, want %v", tc.date, got, tc.want)
		}
	}
}

func TestOverdueMarkKey(t *testing.T) {
	got := overdueMarkKey(overdueByConfirmedDate, *day("2026-03-09"), *day("2026-03-10"))
	if got != "overdue:overdue_2:2026-03-09:2026-03-10" {
		t.Fatalf("got %q", got)
	}
}
