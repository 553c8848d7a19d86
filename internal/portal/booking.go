package portal

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/example/teesched/internal/reservation"
	"golang.org/x/net/html"
)

const (
	dialogPath = "/portal/app/reserve.aspx"
	submitPath = "/portal/app/reservesubmit.aspx"

	// participantSlots is the fixed number of players the form binds.
	participantSlots = 4
)

// The dialog issues three opaque state tokens that must be echoed back
// verbatim or the submission is silently discarded.
var stateTokens = []string{"__VIEWSTATE", "__VIEWSTATEGENERATOR", "__EVENTVALIDATION"}

// Participant is one roster identity bound to a fixed form slot.
type Participant struct {
	Name     string
	MemberNo string
}

type Confirmation struct {
	Time string
	Date string
}

// hiddenFields pulls every <input type="hidden"> name/value pair out of a
// dialog payload.
func hiddenFields(payload string) map[string]string {
	out := map[string]string{}
	doc, err := html.Parse(strings.NewReader(payload))
	if err != nil {
		return out
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "input" {
			var typ, name, val string
			for _, a := range n.Attr {
				switch a.Key {
				case "type":
					typ = a.Val
				case "name":
					name = a.Val
				case "value":
					val = a.Val
				}
			}
			if typ == "hidden" && name != "" {
				out[name] = val
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

// SubmitBooking books slot for the roster and verifies the confirmation.
// The roster must fill at least minRoster of the fixed participant slots.
// Network failures retry up to the fetch budget; classified business
// rejections are terminal for the attempt.
func (c *Client) SubmitBooking(ctx context.Context, slot reservation.Slot, roster []Participant, minRoster int) (*Confirmation, error) {
	if len(roster) < minRoster {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrRosterTooSmall, len(roster), minRoster)
	}
	if len(roster) > participantSlots {
		roster = roster[:participantSlots]
	}

	sheetDate := slot.Day.Format("01/02/2006")
	var lastNet error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx); err != nil {
				return nil, err
			}
		}

		dialog, err := c.get(ctx, dialogPath, url.Values{
			"course": {strconv.Itoa(slot.CourseID)},
			"date":   {sheetDate},
			"time":   {slot.Time},
			"tee":    {slot.Tee},
			"_":      {nonce()},
		})
		if err != nil {
			lastNet = err
			continue
		}
		if hasLoginMarker(dialog) {
			return nil, &AuthError{Msg: "session expired at booking dialog"}
		}

		fields := hiddenFields(dialog)
		form := url.Values{}
		for _, tok := range stateTokens {
			v, ok := fields[tok]
			if !ok {
				return nil, &BookingError{Outcome: OutcomeUnclear, Msg: "dialog missing state token " + tok}
			}
			form.Set(tok, v)
		}
		form.Set("course", strconv.Itoa(slot.CourseID))
		form.Set("date", sheetDate)
		form.Set("time", slot.Time)
		form.Set("tee", slot.Tee)
		for i := 0; i < participantSlots; i++ {
			p := Participant{}
			if i < len(roster) {
				p = roster[i]
			}
			form.Set(fmt.Sprintf("p%d_name", i+1), p.Name)
			form.Set(fmt.Sprintf("p%d_member", i+1), p.MemberNo)
			// fixed per-participant defaults the form always carries
			form.Set(fmt.Sprintf("p%d_transport", i+1), "walk")
			form.Set(fmt.Sprintf("p%d_notify", i+1), "email")
		}

		payload, err := c.postForm(ctx, submitPath, form)
		if err != nil {
			lastNet = err
			continue
		}

		cl := Classify(payload)
		if cl.Outcome != OutcomeConfirmed {
			return nil, &BookingError{Outcome: cl.Outcome, Msg: cl.Message}
		}
		if !c.confirmationMatches(cl, slot, sheetDate) {
			return nil, &BookingError{
				Outcome: OutcomeMismatch,
				Msg:     fmt.Sprintf("portal confirmed %s on %s, requested %s on %s", cl.ConfirmedTime, cl.ConfirmedDate, slot.Time, sheetDate),
			}
		}
		return &Confirmation{Time: cl.ConfirmedTime, Date: cl.ConfirmedDate}, nil
	}

	return nil, &NetworkError{Class: classifyNetErr(lastNet), Err: lastNet}
}

// confirmationMatches requires the echoed date and time to match the request.
// Dates compare tolerantly across the portal's encodings; times compare by
// minute so "7:50" equals "07:50".
func (c *Client) confirmationMatches(cl Classification, slot reservation.Slot, sheetDate string) bool {
	if cl.ConfirmedTime == "" || cl.ConfirmedDate == "" {
		return false
	}
	gotMin, ok := minuteOf(cl.ConfirmedTime)
	if !ok || gotMin != slot.Minute {
		return false
	}
	return sameDay(cl.ConfirmedDate, sheetDate)
}
