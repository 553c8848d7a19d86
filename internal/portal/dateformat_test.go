package portal

import (
	"testing"
	"time"
)

func TestFormatForAttempt(t *testing.T) {
	day := time.Date(2025, 9, 6, 0, 0, 0, 0, time.UTC)
	for attempt := 1; attempt <= 5; attempt++ {
		if got := formatForAttempt(attempt).query(day); got != "9/6/2025" {
			t.Errorf("attempt %d: %q, want 9/6/2025", attempt, got)
		}
	}
	for attempt := 6; attempt <= 12; attempt++ {
		if got := formatForAttempt(attempt).query(day); got != "09/06/2025" {
			t.Errorf("attempt %d: %q, want 09/06/2025", attempt, got)
		}
	}
}

func TestLongFormDate(t *testing.T) {
	day := time.Date(2025, 9, 6, 0, 0, 0, 0, time.UTC)
	if got := longFormDate(day); got != "Saturday, September 6, 2025" {
		t.Errorf("longFormDate = %q", got)
	}
}

func TestSameDay(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"9/6/2025", "09/06/2025", true},
		{"Saturday, September 6, 2025", "9/6/2025", true},
		{"September 6, 2025", "2025-09-06", true},
		{"9/6/2025", "9/7/2025", false},
		{"garbage", "9/6/2025", false},
		{"", "", false},
	}
	for _, c := range cases {
		if got := sameDay(c.a, c.b); got != c.want {
			t.Errorf("sameDay(%q,%q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
