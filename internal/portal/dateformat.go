package portal

import (
	"fmt"
	"strings"
	"time"
)

// The portal is inconsistent about date encodings: some deployments want
// "9/6/2025", others "09/06/2025", and it answers the wrong format with a
// sheet for a different day instead of an error. Formats are tried as an
// ordered list of pure strategies, switching after half the retry budget.
type dateFormat struct {
	name  string
	query func(time.Time) string
}

var dateFormats = []dateFormat{
	{"slash", func(t time.Time) string {
		return fmt.Sprintf("%d/%d/%d", int(t.Month()), t.Day(), t.Year())
	}},
	{"slash_padded", func(t time.Time) string {
		return t.Format("01/02/2006")
	}},
}

// formatForAttempt returns the strategy for a 1-based fetch attempt: the
// first format for attempts 1..5, the next from attempt 6 on.
func formatForAttempt(attempt int) dateFormat {
	idx := (attempt - 1) / 5
	if idx >= len(dateFormats) {
		idx = len(dateFormats) - 1
	}
	return dateFormats[idx]
}

// longFormDate builds the heading string the sheet embeds for its date,
// e.g. "Saturday, September 6, 2025". Used to verify we got the right day.
func longFormDate(t time.Time) string {
	return t.Format("Monday, January 2, 2006")
}

// looseDateLayouts are every encoding the portal has been seen to print.
var looseDateLayouts = []string{
	"1/2/2006",
	"01/02/2006",
	"Monday, January 2, 2006",
	"January 2, 2006",
	"2006-01-02",
}

func parseLooseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range looseDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// sameDay compares two portal date strings tolerantly: any recognized
// encoding of the same calendar day matches.
func sameDay(a, b string) bool {
	ta, okA := parseLooseDate(a)
	tb, okB := parseLooseDate(b)
	if !okA || !okB {
		return false
	}
	return ta.Year() == tb.Year() && ta.Month() == tb.Month() && ta.Day() == tb.Day()
}
