package scheduler

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/teesched/internal/booker"
	"github.com/example/teesched/internal/booking"
)

type fakeReqs struct {
	open []booking.Request

	due       int
	immediate int
	win       bool
}

func (f *fakeReqs) Open(context.Context) ([]booking.Request, error) { return f.open, nil }
func (f *fakeReqs) ClaimDue(context.Context, int64, time.Duration) (bool, error) {
	f.due++
	return f.win, nil
}
func (f *fakeReqs) ClaimImmediate(context.Context, int64) (bool, error) {
	f.immediate++
	return f.win, nil
}

type fakeAttempter struct{ attempts []booking.Request }

func (f *fakeAttempter) TryAttempt(_ context.Context, r booking.Request) (booker.Result, bool) {
	f.attempts = append(f.attempts, r)
	return booker.Result{}, true
}

func TestTickRoutesClaims(t *testing.T) {
	now := time.Date(2025, 8, 30, 18, 0, 0, 0, time.UTC)
	reqs := &fakeReqs{
		win: true,
		open: []booking.Request{
			{ID: 1, WindowOpenAt: now.Add(2 * time.Hour)},    // skip
			{ID: 2, WindowOpenAt: now.Add(45 * time.Second)}, // bypass
			{ID: 3, WindowOpenAt: now.Add(-time.Hour)},       // cooldown
		},
	}
	att := &fakeAttempter{}
	s := &Scheduler{
		Requests: reqs,
		Booker:   att,
		Log:      zap.NewNop(),
		Cooldown: 5 * time.Minute,
		Now:      func() time.Time { return now },
	}

	s.tick(context.Background())

	if reqs.immediate != 1 || reqs.due != 1 {
		t.Errorf("claims immediate=%d due=%d, want 1/1", reqs.immediate, reqs.due)
	}
	if len(att.attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(att.attempts))
	}
	// the claim stamped a new attempt before the booker saw the request
	if att.attempts[0].Attempts != 1 {
		t.Errorf("attempt count not refreshed after claim: %d", att.attempts[0].Attempts)
	}
}

func TestTickLostClaimSkipsAttempt(t *testing.T) {
	now := time.Date(2025, 8, 30, 18, 0, 0, 0, time.UTC)
	reqs := &fakeReqs{
		win:  false,
		open: []booking.Request{{ID: 3, WindowOpenAt: now.Add(-time.Hour)}},
	}
	att := &fakeAttempter{}
	s := &Scheduler{
		Requests: reqs,
		Booker:   att,
		Log:      zap.NewNop(),
		Cooldown: 5 * time.Minute,
		Now:      func() time.Time { return now },
	}

	s.tick(context.Background())

	if len(att.attempts) != 0 {
		t.Fatalf("attempted despite losing the claim")
	}
}
