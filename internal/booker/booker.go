// Package booker runs one complete booking attempt: session, catalog, slot
// choice, submission, bookkeeping. Every driver (scheduler tick, catch-up
// sweep, release-instant timer, manual trigger) funnels through here.
package booker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/teesched/internal/booking"
	"github.com/example/teesched/internal/history"
	"github.com/example/teesched/internal/metrics"
	"github.com/example/teesched/internal/portal"
	"github.com/example/teesched/internal/reservation"
	"github.com/example/teesched/internal/roster"
)

// Portal is the slice of the portal client an attempt needs.
type Portal interface {
	EnsureSession(ctx context.Context) error
	Authenticate(ctx context.Context) error
	Invalidate()
	FetchCatalog(ctx context.Context, date time.Time) (*portal.CatalogResult, error)
	SubmitBooking(ctx context.Context, slot reservation.Slot, players []portal.Participant, minRoster int) (*portal.Confirmation, error)
}

type Requests interface {
	MarkBooked(ctx context.Context, id int64, chosenTime string) error
	MarkFailed(ctx context.Context, id int64, msg string) error
}

type History interface {
	Append(ctx context.Context, e history.Entry) error
}

type Roster interface {
	List(ctx context.Context) ([]roster.Guest, error)
}

type Marks interface {
	MarkBooked(ctx context.Context, wd time.Weekday, date time.Time) error
}

type Result struct {
	Outcome    string
	ChosenTime string
	Message    string
	Booked     bool
}

type Booker struct {
	Portal    Portal
	Requests  Requests
	History   History
	Roster    Roster
	Marks     Marks
	Metrics   *metrics.Metrics
	Log       *zap.Logger
	MinRoster int

	// attemptMu serializes attempts across all drivers. Drivers that lose
	// the race skip their turn instead of queueing.
	attemptMu sync.Mutex
}

// TryAttempt runs a full attempt for req if no other attempt is in flight.
// The second return is false when the guard was held.
func (b *Booker) TryAttempt(ctx context.Context, req booking.Request) (Result, bool) {
	if !b.attemptMu.TryLock() {
		b.Log.Debug("attempt already in flight, skipping",
			zap.Int64("request", req.ID), zap.Time("date", req.TargetDate))
		return Result{}, false
	}
	defer b.attemptMu.Unlock()

	start := time.Now()
	res := b.attempt(ctx, req)
	if b.Metrics != nil {
		b.Metrics.Attempts.WithLabelValues(res.Outcome).Inc()
		b.Metrics.AttemptDuration.Observe(time.Since(start).Seconds())
	}
	return res, true
}

func (b *Booker) attempt(ctx context.Context, req booking.Request) Result {
	log := b.Log.With(
		zap.Int64("request", req.ID),
		zap.String("date", req.TargetDate.Format("2006-01-02")),
		zap.String("kind", string(req.Kind)))
	log.Info("booking attempt started", zap.Int("attempts", req.Attempts))

	b.record(ctx, req, history.Entry{Outcome: history.OutcomeAttempting})

	if err := b.Portal.EnsureSession(ctx); err != nil {
		return b.fail(ctx, req, log, history.OutcomeAuthError, err.Error(), false)
	}

	res, err := b.Portal.FetchCatalog(ctx, req.TargetDate)
	if err != nil {
		return b.netFail(ctx, req, log, err)
	}
	if res.Kind == portal.CatalogSessionExpired {
		// one re-auth, one refetch; a second expiry means the credentials
		// are no good
		log.Info("session expired mid-fetch, re-authenticating")
		b.Portal.Invalidate()
		if err := b.Portal.Authenticate(ctx); err != nil {
			return b.fail(ctx, req, log, history.OutcomeAuthError, err.Error(), false)
		}
		if res, err = b.Portal.FetchCatalog(ctx, req.TargetDate); err != nil {
			return b.netFail(ctx, req, log, err)
		}
		if res.Kind == portal.CatalogSessionExpired {
			return b.fail(ctx, req, log, history.OutcomeAuthError, "session rejected after fresh handshake", true)
		}
	}
	if res.Kind == portal.CatalogClosed {
		// not a failure: the request stays pending for the release instant
		log.Info("booking window not open yet", zap.String("countdown", res.Countdown))
		b.record(ctx, req, history.Entry{Outcome: history.OutcomeWindowClosed, Message: res.Countdown})
		return Result{Outcome: history.OutcomeWindowClosed, Message: res.Countdown}
	}

	slot, ok := reservation.ChooseSlotFast(res.Slots, req.EarliestMin, req.LatestMin)
	if !ok {
		msg := fmt.Sprintf("no slot with capacity between %s and %s",
			clock(req.EarliestMin), clock(req.LatestMin))
		return b.fail(ctx, req, log, history.OutcomeNoSlots, msg, true)
	}
	log.Info("slot chosen", zap.String("time", slot.Time), zap.Int("free", slot.Free))

	players, err := b.players(ctx)
	if err != nil {
		return b.fail(ctx, req, log, history.OutcomeConfigError, err.Error(), true)
	}

	conf, err := b.Portal.SubmitBooking(ctx, slot, players, b.MinRoster)
	if err != nil {
		var be *portal.BookingError
		switch {
		case errors.Is(err, portal.ErrRosterTooSmall):
			return b.fail(ctx, req, log, history.OutcomeConfigError, err.Error(), true)
		case errors.As(err, &be):
			r := b.fail(ctx, req, log, be.Outcome.String(), be.Msg, true)
			r.ChosenTime = slot.Time
			return r
		default:
			var ae *portal.AuthError
			if errors.As(err, &ae) {
				return b.fail(ctx, req, log, history.OutcomeAuthError, ae.Msg, false)
			}
			return b.netFail(ctx, req, log, err)
		}
	}

	if err := b.Requests.MarkBooked(ctx, req.ID, slot.Time); err != nil {
		log.Error("booked on the portal but could not persist", zap.Error(err))
	}
	b.record(ctx, req, history.Entry{
		Outcome:    history.OutcomeBooked,
		ChosenTime: slot.Time,
		Message:    fmt.Sprintf("confirmed for %s on %s", conf.Time, conf.Date),
	})
	if req.Kind == booking.KindRecurring && b.Marks != nil {
		if err := b.Marks.MarkBooked(ctx, req.TargetDate.Weekday(), req.TargetDate); err != nil {
			log.Warn("weekday mark not updated", zap.Error(err))
		}
	}
	log.Info("booking confirmed", zap.String("time", slot.Time))
	return Result{Outcome: history.OutcomeBooked, ChosenTime: slot.Time, Booked: true}
}

// fail records a terminal history entry and, when markFailed is set, moves
// the request to failed. Auth errors leave the status alone so the next
// eligible tick retries with a fresh handshake.
func (b *Booker) fail(ctx context.Context, req booking.Request, log *zap.Logger, outcome, msg string, markFailed bool) Result {
	log.Warn("booking attempt did not book", zap.String("outcome", outcome), zap.String("detail", msg))
	b.record(ctx, req, history.Entry{Outcome: outcome, Message: msg})
	if markFailed {
		if err := b.Requests.MarkFailed(ctx, req.ID, msg); err != nil {
			log.Error("status update failed", zap.Error(err))
		}
	}
	return Result{Outcome: outcome, Message: msg}
}

func (b *Booker) netFail(ctx context.Context, req booking.Request, log *zap.Logger, err error) Result {
	var ne *portal.NetworkError
	msg := err.Error()
	if errors.As(err, &ne) {
		msg = fmt.Sprintf("%s: %v", ne.Class, ne.Err)
	}
	return b.fail(ctx, req, log, history.OutcomeNetworkError, msg, false)
}

func (b *Booker) record(ctx context.Context, req booking.Request, e history.Entry) {
	e.TargetDate = req.TargetDate
	e.DayLabel = req.TargetDate.Weekday().String()
	e.Attempts = req.Attempts
	if err := b.History.Append(ctx, e); err != nil {
		b.Log.Error("history append failed", zap.Error(err))
	}
}

func (b *Booker) players(ctx context.Context) ([]portal.Participant, error) {
	gs, err := b.Roster.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("roster: %w", err)
	}
	out := make([]portal.Participant, 0, len(gs))
	for _, g := range gs {
		out = append(out, portal.Participant{Name: g.FullName(), MemberNo: g.MemberNo})
	}
	return out, nil
}

func clock(min int) string {
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}
