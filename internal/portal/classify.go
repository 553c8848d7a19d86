package portal

import (
	"regexp"
	"strings"
)

// Outcome is the definite reading of an ambiguous submission response.
type Outcome int

const (
	OutcomeConfirmed Outcome = iota
	// OutcomeMismatch: a confirmation marker was present but for a
	// different date or time than requested. Failure, never success.
	OutcomeMismatch
	OutcomeSlotTaken
	OutcomeWeekdayBlocked
	OutcomeRuleConflict
	OutcomeRejected
	OutcomeUnclear
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeMismatch:
		return "confirmation_mismatch"
	case OutcomeSlotTaken:
		return "slot_unavailable"
	case OutcomeWeekdayBlocked:
		return "weekday_restricted"
	case OutcomeRuleConflict:
		return "rule_conflict"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unclear"
	}
}

type Classification struct {
	Outcome       Outcome
	ConfirmedTime string
	ConfirmedDate string
	Message       string
}

// The portal reports results as prose in an HTML page. Rules are evaluated
// in order; the first matching predicate decides the outcome, and anything
// unmatched is read conservatively as a failure rather than a success.
type classifyRule struct {
	outcome Outcome
	match   func(string) bool
}

func contains(marker string) func(string) bool {
	return func(p string) bool { return strings.Contains(p, marker) }
}

func anyOf(markers ...string) func(string) bool {
	return func(p string) bool {
		for _, m := range markers {
			if strings.Contains(p, m) {
				return true
			}
		}
		return false
	}
}

var classifyRules = []classifyRule{
	{OutcomeConfirmed, contains("Your reservation is confirmed")},
	{OutcomeSlotTaken, contains("is no longer available")},
	{OutcomeWeekdayBlocked, contains("not permitted on this weekday")},
	{OutcomeRuleConflict, contains("conflicts with an existing booking")},
	{OutcomeRejected, anyOf("An error has occurred", "Booking failed")},
}

var (
	confirmRe = regexp.MustCompile(`confirmed for (\d{1,2}:\d{2}) on ([^.<]+)`)
	messageRe = regexp.MustCompile(`(?s)<[^>]*id="bookingMessage"[^>]*>(.*?)</div>`)
)

// Classify reads a submission response into a definite outcome.
func Classify(payload string) Classification {
	cl := Classification{Outcome: OutcomeUnclear}
	if m := messageRe.FindStringSubmatch(payload); m != nil {
		cl.Message = stripTags(m[1])
	}
	for _, r := range classifyRules {
		if !r.match(payload) {
			continue
		}
		cl.Outcome = r.outcome
		if r.outcome == OutcomeConfirmed {
			if m := confirmRe.FindStringSubmatch(payload); m != nil {
				cl.ConfirmedTime = strings.TrimSpace(m[1])
				cl.ConfirmedDate = strings.TrimSpace(m[2])
			}
		}
		return cl
	}
	return cl
}
