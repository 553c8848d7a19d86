package recurring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/example/teesched/internal/booker"
	"github.com/example/teesched/internal/booking"
	"github.com/example/teesched/internal/db"
	"github.com/example/teesched/internal/history"
	"github.com/example/teesched/internal/metrics"
)

// lookahead is how many upcoming pattern dates the catch-up sweep considers.
const lookahead = 6

type Requests interface {
	GetLiveByDate(ctx context.Context, date time.Time) (booking.Request, error)
	Create(ctx context.Context, q booking.Request) (int64, error)
	ClaimImmediate(ctx context.Context, id int64) (bool, error)
	CountOutstanding(ctx context.Context) (int, error)
}

type History interface {
	HasOutcome(ctx context.Context, date time.Time, outcome string) (bool, error)
}

type SettingsSource interface {
	Get(ctx context.Context) (Settings, error)
}

type Attempter interface {
	TryAttempt(ctx context.Context, req booking.Request) (booker.Result, bool)
}

type Prewarmer interface {
	EnsureSession(ctx context.Context) error
}

// Orchestrator keeps the weekly pattern booked through two drivers: a
// periodic catch-up sweep over upcoming occurrences whose windows are
// already open, and a just-in-time attempt fired at the release instant for
// the occurrence that becomes bookable at that moment.
type Orchestrator struct {
	Requests Requests
	History  History
	Settings SettingsSource
	Booker   Attempter
	Portal   Prewarmer
	Metrics  *metrics.Metrics
	Log      *zap.Logger

	Weekdays      []time.Weekday
	AheadDays     int
	ReleaseMinute int
	Loc           *time.Location
	SweepInterval time.Duration
	Prewarm       time.Duration

	// Pace caps how fast consecutive sweep attempts hit the portal.
	// Defaults to one every two seconds.
	Pace *rate.Limiter

	// Now is swapped out in tests.
	Now func() time.Time

	sweepMu sync.Mutex
}

func (o *Orchestrator) clock() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) pace() *rate.Limiter {
	if o.Pace == nil {
		o.Pace = rate.NewLimiter(rate.Every(2*time.Second), 1)
	}
	return o.Pace
}

func (o *Orchestrator) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		o.runSweeps(ctx)
	}()
	go func() {
		defer wg.Done()
		o.runReleases(ctx)
	}()
	wg.Wait()
}

func (o *Orchestrator) runSweeps(ctx context.Context) {
	o.Sweep(ctx)
	t := time.NewTicker(o.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			o.Sweep(ctx)
		}
	}
}

// Sweep walks the upcoming pattern dates whose booking windows are already
// open and pursues any that are not yet held, up to the outstanding cap.
// Overlapping sweeps are skipped, not queued.
func (o *Orchestrator) Sweep(ctx context.Context) {
	if !o.sweepMu.TryLock() {
		if o.Metrics != nil {
			o.Metrics.SweepSkips.Inc()
		}
		o.Log.Debug("sweep already running, skipping")
		return
	}
	defer o.sweepMu.Unlock()

	s, err := o.Settings.Get(ctx)
	if err != nil {
		o.Log.Error("recurring settings unavailable", zap.Error(err))
		return
	}
	if !s.Enabled {
		return
	}

	now := o.clock()
	for _, occ := range NextOccurrences(now, o.Weekdays, lookahead, o.Loc) {
		if booking.WindowOpen(occ, o.AheadDays, o.ReleaseMinute, o.Loc).After(now) {
			// not released yet; the release timer owns this one
			continue
		}
		if skip, err := o.sweepSkips(ctx, occ); err != nil {
			o.Log.Error("sweep lookup failed", zap.Error(err))
			continue
		} else if skip {
			continue
		}

		n, err := o.Requests.CountOutstanding(ctx)
		if err != nil {
			o.Log.Error("outstanding count failed", zap.Error(err))
			return
		}
		if o.Metrics != nil {
			o.Metrics.Outstanding.Set(float64(n))
		}
		if n >= s.MaxOutstanding {
			o.Log.Info("outstanding cap reached", zap.Int("outstanding", n))
			return
		}

		if err := o.pace().Wait(ctx); err != nil {
			return
		}
		o.pursue(ctx, occ, s)
	}
}

// sweepSkips reports whether the sweep should leave occ alone: already
// booked, or a previous attempt found no sellable slots that day.
func (o *Orchestrator) sweepSkips(ctx context.Context, occ time.Time) (bool, error) {
	req, err := o.Requests.GetLiveByDate(ctx, occ)
	if err == nil && req.Status == booking.StatusBooked {
		return true, nil
	}
	if err != nil && !db.IsNotFound(err) {
		return false, err
	}
	return o.History.HasOutcome(ctx, occ, history.OutcomeNoSlots)
}

// pursue finds or creates the request row for occ, claims it, and attempts.
func (o *Orchestrator) pursue(ctx context.Context, occ time.Time, s Settings) {
	req, err := o.Requests.GetLiveByDate(ctx, occ)
	switch {
	case err == nil:
		if req.Status == booking.StatusBooked {
			return
		}
	case db.IsNotFound(err):
		req = booking.Request{
			TargetDate:   occ,
			EarliestMin:  s.EarliestMin,
			LatestMin:    s.LatestMin,
			Kind:         booking.KindRecurring,
			WindowOpenAt: booking.WindowOpen(occ, o.AheadDays, o.ReleaseMinute, o.Loc),
		}
		if req.ID, err = o.Requests.Create(ctx, req); err != nil {
			o.Log.Error("occurrence request not created", zap.Error(err))
			return
		}
	default:
		o.Log.Error("occurrence lookup failed", zap.Error(err))
		return
	}

	won, err := o.Requests.ClaimImmediate(ctx, req.ID)
	if err != nil || !won {
		if err != nil {
			o.Log.Error("claim failed", zap.Error(err))
		}
		return
	}
	req.Attempts++
	o.Booker.TryAttempt(ctx, req)
}

// runReleases sleeps until each release instant, pre-warming the session
// shortly before so the attempt itself spends no time on the handshake.
func (o *Orchestrator) runReleases(ctx context.Context) {
	for {
		release, target := NextRelease(o.clock(), o.Weekdays, o.AheadDays, o.ReleaseMinute, o.Loc)
		o.Log.Info("next release scheduled",
			zap.Time("release", release),
			zap.String("target", target.Format("2006-01-02")))

		if !o.sleepUntil(ctx, release.Add(-o.Prewarm)) {
			return
		}
		if s, err := o.Settings.Get(ctx); err == nil && s.Enabled {
			if err := o.Portal.EnsureSession(ctx); err != nil {
				o.Log.Warn("session prewarm failed", zap.Error(err))
			}
		}
		if !o.sleepUntil(ctx, release) {
			return
		}
		o.releaseAttempt(ctx, target)
	}
}

// releaseAttempt fires the just-in-time attempt for the occurrence released
// right now. Unlike the sweep it never consults the no-slots history: the
// sheet this attempt sees is brand new.
func (o *Orchestrator) releaseAttempt(ctx context.Context, target time.Time) {
	s, err := o.Settings.Get(ctx)
	if err != nil {
		o.Log.Error("recurring settings unavailable", zap.Error(err))
		return
	}
	if !s.Enabled {
		return
	}
	n, err := o.Requests.CountOutstanding(ctx)
	if err != nil {
		o.Log.Error("outstanding count failed", zap.Error(err))
		return
	}
	if n >= s.MaxOutstanding {
		o.Log.Info("outstanding cap reached, release attempt skipped", zap.Int("outstanding", n))
		return
	}
	o.pursue(ctx, target, s)
}

func (o *Orchestrator) sleepUntil(ctx context.Context, t time.Time) bool {
	d := t.Sub(o.clock())
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
