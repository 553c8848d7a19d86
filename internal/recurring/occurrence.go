package recurring

import (
	"sort"
	"time"

	"github.com/example/teesched/internal/booking"
)

// dateOnly truncates t to local midnight in loc.
func dateOnly(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func onPattern(d time.Time, weekdays []time.Weekday) bool {
	for _, wd := range weekdays {
		if d.Weekday() == wd {
			return true
		}
	}
	return false
}

// NextOccurrences lists the next n pattern dates at or after now's date,
// as midnights in loc.
func NextOccurrences(now time.Time, weekdays []time.Weekday, n int, loc *time.Location) []time.Time {
	if n <= 0 || len(weekdays) == 0 {
		return nil
	}
	var out []time.Time
	for d := dateOnly(now, loc); len(out) < n; d = d.AddDate(0, 0, 1) {
		if onPattern(d, weekdays) {
			out = append(out, d)
		}
	}
	return out
}

// NextRelease finds the earliest release instant strictly after now whose
// target date falls on the pattern. The release for a target is aheadDays
// before it at releaseMinute local time.
func NextRelease(now time.Time, weekdays []time.Weekday, aheadDays, releaseMinute int, loc *time.Location) (release, target time.Time) {
	if len(weekdays) == 0 {
		return time.Time{}, time.Time{}
	}
	var candidates []time.Time
	// scan a full week of targets starting from the first one releasable
	// after now
	start := dateOnly(now, loc).AddDate(0, 0, aheadDays)
	for i := 0; i < 8; i++ {
		d := start.AddDate(0, 0, i)
		if !onPattern(d, weekdays) {
			continue
		}
		if booking.WindowOpen(d, aheadDays, releaseMinute, loc).After(now) {
			candidates = append(candidates, d)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Before(candidates[j]) })
	target = candidates[0]
	return booking.WindowOpen(target, aheadDays, releaseMinute, loc), target
}
