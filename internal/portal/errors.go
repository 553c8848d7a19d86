package portal

import (
	"errors"
	"fmt"
)

// AuthError means the portal rejected the handshake or never produced a
// usable session. Carries the peer's literal error text when one was found.
type AuthError struct {
	Msg string
}

func (e *AuthError) Error() string {
	if e.Msg == "" {
		return "portal: authentication failed"
	}
	return "portal: authentication failed: " + e.Msg
}

// NetClass classifies the last transport failure of an exhausted retry loop.
type NetClass int

const (
	NetOther NetClass = iota
	NetTimeout
	NetRefused
)

func (c NetClass) String() string {
	switch c {
	case NetTimeout:
		return "timeout"
	case NetRefused:
		return "connection_refused"
	default:
		return "other"
	}
}

// NetworkError wraps a transport-level failure after retries are exhausted.
type NetworkError struct {
	Class NetClass
	Err   error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("portal: network failure (%s): %v", e.Class, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// BookingError is a classified business rejection from the submission
// endpoint. Terminal for the attempt; never retried inside the submitter.
type BookingError struct {
	Outcome Outcome
	Msg     string
}

func (e *BookingError) Error() string {
	if e.Msg == "" {
		return "portal: booking rejected: " + e.Outcome.String()
	}
	return fmt.Sprintf("portal: booking rejected (%s): %s", e.Outcome, e.Msg)
}

// ErrRosterTooSmall is a configuration problem, not a portal outcome: the
// guest roster cannot fill the minimum participant slots.
var ErrRosterTooSmall = errors.New("portal: guest roster smaller than the configured minimum")
