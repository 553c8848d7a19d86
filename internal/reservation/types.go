// Package reservation holds the slot model and the selection policy.
package reservation

import "time"

// Slot is one reservable tee time scraped from the catalog. Rebuilt on every
// fetch, never persisted.
type Slot struct {
	Day      time.Time // target date (midnight, portal timezone)
	Time     string    // "07:50"
	Minute   int       // minute of day
	CourseID int
	Tee      string
	Present  int // players already on the slot
	Free     int // seats remaining
}

// Total is the slot's full capacity.
func (s Slot) Total() int { return s.Present + s.Free }
