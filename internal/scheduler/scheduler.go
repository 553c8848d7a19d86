// Package scheduler walks the open one-off requests once a minute and hands
// the eligible ones to the booker.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/teesched/internal/booker"
	"github.com/example/teesched/internal/booking"
)

type Requests interface {
	Open(ctx context.Context) ([]booking.Request, error)
	ClaimDue(ctx context.Context, id int64, cooldown time.Duration) (bool, error)
	ClaimImmediate(ctx context.Context, id int64) (bool, error)
}

type Attempter interface {
	TryAttempt(ctx context.Context, req booking.Request) (booker.Result, bool)
}

type Scheduler struct {
	Requests Requests
	Booker   Attempter
	Log      *zap.Logger
	Tick     time.Duration
	Cooldown time.Duration

	// Now is swapped out in tests.
	Now func() time.Time

	mu       sync.Mutex
	deferred map[int64]bool
}

func (s *Scheduler) clock() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) Run(ctx context.Context) {
	s.tick(ctx)
	t := time.NewTicker(s.Tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	reqs, err := s.Requests.Open(ctx)
	if err != nil {
		s.Log.Error("open requests query failed", zap.Error(err))
		return
	}
	for _, r := range reqs {
		switch dec, wait := Eligibility(s.clock(), r.WindowOpenAt); dec {
		case DecisionDefer:
			s.deferAttempt(ctx, r, wait)
		case DecisionBypass:
			s.claimAndAttempt(ctx, r, 0)
		case DecisionCooldown:
			s.claimAndAttempt(ctx, r, s.Cooldown)
		}
	}
}

// deferAttempt arms a one-shot timer at the window-open instant. At most one
// timer per request is outstanding.
func (s *Scheduler) deferAttempt(ctx context.Context, r booking.Request, wait time.Duration) {
	s.mu.Lock()
	if s.deferred == nil {
		s.deferred = map[int64]bool{}
	}
	if s.deferred[r.ID] {
		s.mu.Unlock()
		return
	}
	s.deferred[r.ID] = true
	s.mu.Unlock()

	s.Log.Info("attempt deferred to window open",
		zap.Int64("request", r.ID), zap.Duration("in", wait))
	time.AfterFunc(wait, func() {
		s.mu.Lock()
		delete(s.deferred, r.ID)
		s.mu.Unlock()
		s.claimAndAttempt(ctx, r, 0)
	})
}

// claimAndAttempt takes the atomic claim and, if it won, runs the attempt.
// cooldown 0 claims unconditionally.
func (s *Scheduler) claimAndAttempt(ctx context.Context, r booking.Request, cooldown time.Duration) {
	var (
		won bool
		err error
	)
	if cooldown > 0 {
		won, err = s.Requests.ClaimDue(ctx, r.ID, cooldown)
	} else {
		won, err = s.Requests.ClaimImmediate(ctx, r.ID)
	}
	if err != nil {
		s.Log.Error("claim failed", zap.Int64("request", r.ID), zap.Error(err))
		return
	}
	if !won {
		return
	}
	r.Attempts++
	if _, ran := s.Booker.TryAttempt(ctx, r); !ran {
		s.Log.Debug("attempt slot busy", zap.Int64("request", r.ID))
	}
}
