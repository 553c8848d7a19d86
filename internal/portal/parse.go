package portal

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/example/teesched/internal/reservation"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// The sheet embeds every reservable slot as a six-field call to the inline
// bookSlot handler: course id, date, time, tee, players present, seats free.
// It shows up both in onclick attributes and, on some sheet layouts, inside
// script blocks.
var slotCallRe = regexp.MustCompile(`bookSlot\(\s*(\d+)\s*,\s*'([^']+)'\s*,\s*'([^']+)'\s*,\s*'([^']*)'\s*,\s*(\d+)\s*,\s*(\d+)\s*\)`)

var sanitizer = bluemonday.StrictPolicy()

// stripTags reduces a portal HTML fragment to plain text.
func stripTags(s string) string {
	return strings.TrimSpace(html.UnescapeString(sanitizer.Sanitize(s)))
}

// ParseSlots extracts every reservation descriptor from the raw sheet for
// date. Pure; never fails, no matches means an empty list. Two independent
// strategies cover layout drift: a structural walk over element attributes,
// and a direct pattern scan of the decoded payload. Whichever yields more
// matches wins, so a layout change blinding one strategy cannot zero out the
// result. Duplicate (time, date) pairs collapse to the first occurrence and
// full slots (zero seats free) are dropped.
func ParseSlots(payload string, date time.Time) []reservation.Slot {
	structural := scanAttributes(payload, date)
	direct := scanText(payload, date)
	if len(direct) > len(structural) {
		return direct
	}
	return structural
}

// scanAttributes walks the parsed document and matches descriptors inside
// attribute values (onclick and friends).
func scanAttributes(payload string, date time.Time) []reservation.Slot {
	doc, err := html.Parse(strings.NewReader(payload))
	if err != nil {
		return nil
	}
	c := newCollector(date)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, attr := range n.Attr {
				c.scan(attr.Val)
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return c.slots
}

// scanText matches descriptors anywhere in the entity-decoded payload.
func scanText(payload string, date time.Time) []reservation.Slot {
	c := newCollector(date)
	c.scan(html.UnescapeString(payload))
	return c.slots
}

type collector struct {
	date  time.Time
	seen  map[string]bool
	slots []reservation.Slot
}

func newCollector(date time.Time) *collector {
	return &collector{date: date, seen: map[string]bool{}}
}

func (c *collector) scan(s string) {
	for _, m := range slotCallRe.FindAllStringSubmatch(s, -1) {
		course, _ := strconv.Atoi(m[1])
		descDate := m[2]
		clock := m[3]
		tee := m[4]
		present, _ := strconv.Atoi(m[5])
		free, _ := strconv.Atoi(m[6])

		minute, ok := minuteOf(clock)
		if !ok || free == 0 {
			continue
		}
		key := clock + "|" + descDate
		if c.seen[key] {
			continue
		}
		c.seen[key] = true
		c.slots = append(c.slots, reservation.Slot{
			Day:      c.date,
			Time:     clock,
			Minute:   minute,
			CourseID: course,
			Tee:      tee,
			Present:  present,
			Free:     free,
		})
	}
}

// minuteOf parses "HH:MM" (or "H:MM") into a minute of day.
func minuteOf(clock string) (int, bool) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
