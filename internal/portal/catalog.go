package portal

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/example/teesched/internal/reservation"
	"go.uber.org/zap"
)

const teeSheetPath = "/portal/app/teesheet.aspx"

// CatalogKind is the closed set of shapes a catalog fetch can come back in.
type CatalogKind int

const (
	// CatalogOpen: the sheet is live; Slots holds whatever was bookable.
	CatalogOpen CatalogKind = iota
	// CatalogClosed: the booking window has not opened yet. Informational,
	// not a failure; Countdown carries the peer's human-readable text.
	CatalogClosed
	// CatalogSessionExpired: the payload was the login page. The caller
	// re-authenticates and retries the whole fetch exactly once.
	CatalogSessionExpired
)

type CatalogResult struct {
	Kind      CatalogKind
	Slots     []reservation.Slot
	Countdown string
}

var (
	closedMarker = `id="bookingCountdown"`
	countdownRe  = regexp.MustCompile(`(?s)<[^>]*id="bookingCountdown"[^>]*>(.*?)</`)
)

func catalogClosed(payload string) (bool, string) {
	if !strings.Contains(payload, closedMarker) {
		return false, ""
	}
	if m := countdownRe.FindStringSubmatch(payload); m != nil {
		return true, strings.TrimSpace(stripTags(m[1]))
	}
	return true, ""
}

// FetchCatalog retrieves the slot catalog for date. Up to 10 attempts, 2s
// apart. Each attempt primes the sheet without a date filter (the peer
// initializes server-side state from that), then requests the dated sheet
// with a cache-defeating nonce, then verifies the embedded long-form date.
// A date mismatch is attempt-dependent formatting, not an error: the next
// attempts switch encodings.
func (c *Client) FetchCatalog(ctx context.Context, date time.Time) (*CatalogResult, error) {
	var lastNet error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx); err != nil {
				return nil, err
			}
		}

		if _, err := c.get(ctx, teeSheetPath, url.Values{"_": {nonce()}}); err != nil {
			lastNet = err
			continue
		}

		df := formatForAttempt(attempt)
		payload, err := c.get(ctx, teeSheetPath, url.Values{
			"date": {df.query(date)},
			"_":    {nonce()},
		})
		if err != nil {
			lastNet = err
			continue
		}

		if hasLoginMarker(payload) {
			return &CatalogResult{Kind: CatalogSessionExpired}, nil
		}
		if closed, countdown := catalogClosed(payload); closed {
			return &CatalogResult{Kind: CatalogClosed, Countdown: countdown}, nil
		}
		if !strings.Contains(payload, longFormDate(date)) {
			c.log.Warn("tee sheet came back for the wrong day",
				zap.Int("attempt", attempt),
				zap.String("format", df.name),
				zap.String("want", longFormDate(date)))
			continue
		}

		return &CatalogResult{Kind: CatalogOpen, Slots: ParseSlots(payload, date)}, nil
	}

	if lastNet != nil {
		return nil, &NetworkError{Class: classifyNetErr(lastNet), Err: lastNet}
	}
	return nil, &NetworkError{Class: NetOther, Err: errors.New("date validation failed on every format")}
}
