package scheduler

import "time"

// Decision is what a tick does with one open request.
type Decision int

const (
	// DecisionSkip: window too far out, or it opened moments ago and the
	// deferred timer owns the first attempt.
	DecisionSkip Decision = iota
	// DecisionDefer: the window opens within deferHorizon; arm a timer for
	// the exact instant instead of waiting for the next tick.
	DecisionDefer
	// DecisionBypass: the window opens within bypassHorizon; attempt right
	// away, ignoring the cooldown.
	DecisionBypass
	// DecisionCooldown: the window is open; attempt subject to the
	// between-attempt cooldown.
	DecisionCooldown
)

const (
	deferHorizon  = 30 * time.Second
	bypassHorizon = 60 * time.Second
)

// Eligibility decides, from the clock alone, how a tick should treat a
// request whose window opens at windowOpen. The cooldown itself is enforced
// by the conditional claim, not here.
func Eligibility(now, windowOpen time.Time) (Decision, time.Duration) {
	until := windowOpen.Sub(now)
	switch {
	case until > bypassHorizon:
		return DecisionSkip, 0
	case until > deferHorizon:
		return DecisionBypass, 0
	case until > 0:
		return DecisionDefer, until
	case until > -deferHorizon:
		return DecisionSkip, 0
	default:
		return DecisionCooldown, 0
	}
}
