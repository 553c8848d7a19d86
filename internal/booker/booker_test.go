package booker

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/teesched/internal/booking"
	"github.com/example/teesched/internal/history"
	"github.com/example/teesched/internal/portal"
	"github.com/example/teesched/internal/reservation"
	"github.com/example/teesched/internal/roster"
)

type fakePortal struct {
	ensureErr error
	authErr   error

	authCalls   int
	invalidated int

	catalogs   []*portal.CatalogResult
	catalogErr error

	conf      *portal.Confirmation
	submitErr error
	submitted []reservation.Slot
}

func (f *fakePortal) EnsureSession(context.Context) error { return f.ensureErr }
func (f *fakePortal) Authenticate(context.Context) error  { f.authCalls++; return f.authErr }
func (f *fakePortal) Invalidate()                         { f.invalidated++ }

func (f *fakePortal) FetchCatalog(context.Context, time.Time) (*portal.CatalogResult, error) {
	if f.catalogErr != nil {
		return nil, f.catalogErr
	}
	res := f.catalogs[0]
	if len(f.catalogs) > 1 {
		f.catalogs = f.catalogs[1:]
	}
	return res, nil
}

func (f *fakePortal) SubmitBooking(_ context.Context, slot reservation.Slot, _ []portal.Participant, _ int) (*portal.Confirmation, error) {
	f.submitted = append(f.submitted, slot)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.conf, nil
}

type fakeRequests struct {
	booked []string
	failed []string
}

func (f *fakeRequests) MarkBooked(_ context.Context, _ int64, t string) error {
	f.booked = append(f.booked, t)
	return nil
}
func (f *fakeRequests) MarkFailed(_ context.Context, _ int64, msg string) error {
	f.failed = append(f.failed, msg)
	return nil
}

type fakeHistory struct{ entries []history.Entry }

func (f *fakeHistory) Append(_ context.Context, e history.Entry) error {
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeHistory) outcomes() []string {
	var out []string
	for _, e := range f.entries {
		out = append(out, e.Outcome)
	}
	return out
}

type fakeRoster struct{ n int }

func (f *fakeRoster) List(context.Context) ([]roster.Guest, error) {
	var out []roster.Guest
	for i := 0; i < f.n; i++ {
		out = append(out, roster.Guest{Position: i + 1, FirstName: "Player", MemberNo: "M"})
	}
	return out, nil
}

type fakeMarks struct {
	weekday time.Weekday
	calls   int
}

func (f *fakeMarks) MarkBooked(_ context.Context, wd time.Weekday, _ time.Time) error {
	f.weekday = wd
	f.calls++
	return nil
}

func saturdayRequest(kind booking.Kind) booking.Request {
	return booking.Request{
		ID:          7,
		TargetDate:  time.Date(2025, 9, 6, 0, 0, 0, 0, time.UTC), // a Saturday
		EarliestMin: 7*60 + 50,
		LatestMin:   13 * 60,
		Kind:        kind,
		Status:      booking.StatusPending,
		Attempts:    1,
	}
}

func openCatalog(slots ...reservation.Slot) *portal.CatalogResult {
	return &portal.CatalogResult{Kind: portal.CatalogOpen, Slots: slots}
}

func slotAt(min, free int) reservation.Slot {
	return reservation.Slot{
		Day:    time.Date(2025, 9, 6, 0, 0, 0, 0, time.UTC),
		Time:   clock(min),
		Minute: min,
		Free:   free,
	}
}

func newBooker(p *fakePortal) (*Booker, *fakeRequests, *fakeHistory, *fakeMarks) {
	reqs := &fakeRequests{}
	hist := &fakeHistory{}
	marks := &fakeMarks{}
	b := &Booker{
		Portal:    p,
		Requests:  reqs,
		History:   hist,
		Roster:    &fakeRoster{n: 4},
		Marks:     marks,
		Log:       zap.NewNop(),
		MinRoster: 3,
	}
	return b, reqs, hist, marks
}

func TestAttemptBooksAndMarksWeekday(t *testing.T) {
	p := &fakePortal{
		catalogs: []*portal.CatalogResult{openCatalog(slotAt(8*60+10, 4))},
		conf:     &portal.Confirmation{Time: "08:10", Date: "Saturday, September 6, 2025"},
	}
	b, reqs, hist, marks := newBooker(p)

	res, ran := b.TryAttempt(context.Background(), saturdayRequest(booking.KindRecurring))
	if !ran {
		t.Fatal("attempt did not run")
	}
	if !res.Booked || res.ChosenTime != "08:10" {
		t.Fatalf("result = %+v", res)
	}
	if len(reqs.booked) != 1 || reqs.booked[0] != "08:10" {
		t.Errorf("MarkBooked calls = %v", reqs.booked)
	}
	if marks.calls != 1 || marks.weekday != time.Saturday {
		t.Errorf("weekday mark = %+v", marks)
	}
	got := hist.outcomes()
	if len(got) != 2 || got[0] != history.OutcomeAttempting || got[1] != history.OutcomeBooked {
		t.Errorf("history outcomes = %v", got)
	}
}

func TestAttemptOneOffSkipsWeekdayMark(t *testing.T) {
	p := &fakePortal{
		catalogs: []*portal.CatalogResult{openCatalog(slotAt(8*60+10, 4))},
		conf:     &portal.Confirmation{Time: "08:10", Date: "9/6/2025"},
	}
	b, _, _, marks := newBooker(p)

	if _, ran := b.TryAttempt(context.Background(), saturdayRequest(booking.KindOneOff)); !ran {
		t.Fatal("attempt did not run")
	}
	if marks.calls != 0 {
		t.Errorf("weekday mark updated for a one-off request")
	}
}

func TestAttemptReauthenticatesOnceOnExpiredSession(t *testing.T) {
	p := &fakePortal{
		catalogs: []*portal.CatalogResult{
			{Kind: portal.CatalogSessionExpired},
			openCatalog(slotAt(8*60+10, 4)),
		},
		conf: &portal.Confirmation{Time: "08:10", Date: "9/6/2025"},
	}
	b, _, _, _ := newBooker(p)

	res, _ := b.TryAttempt(context.Background(), saturdayRequest(booking.KindOneOff))
	if !res.Booked {
		t.Fatalf("result = %+v", res)
	}
	if p.invalidated != 1 || p.authCalls != 1 {
		t.Errorf("invalidated=%d authCalls=%d, want 1/1", p.invalidated, p.authCalls)
	}
}

func TestAttemptClosedWindowIsNotFailure(t *testing.T) {
	p := &fakePortal{catalogs: []*portal.CatalogResult{
		{Kind: portal.CatalogClosed, Countdown: "Booking opens in 2 days"},
	}}
	b, reqs, hist, _ := newBooker(p)

	res, _ := b.TryAttempt(context.Background(), saturdayRequest(booking.KindOneOff))
	if res.Outcome != history.OutcomeWindowClosed {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if len(reqs.failed) != 0 {
		t.Errorf("request marked failed on a closed window: %v", reqs.failed)
	}
	got := hist.outcomes()
	if got[len(got)-1] != history.OutcomeWindowClosed {
		t.Errorf("history outcomes = %v", got)
	}
}

func TestAttemptNoSlotsFailsRequest(t *testing.T) {
	// only slot is full, so nothing is bookable
	p := &fakePortal{catalogs: []*portal.CatalogResult{openCatalog(slotAt(8*60+10, 0))}}
	b, reqs, hist, _ := newBooker(p)

	res, _ := b.TryAttempt(context.Background(), saturdayRequest(booking.KindRecurring))
	if res.Outcome != history.OutcomeNoSlots {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if len(reqs.failed) != 1 {
		t.Errorf("MarkFailed calls = %v", reqs.failed)
	}
	got := hist.outcomes()
	if got[len(got)-1] != history.OutcomeNoSlots {
		t.Errorf("history outcomes = %v", got)
	}
}

func TestAttemptBusinessRejectionUsesClassifierOutcome(t *testing.T) {
	p := &fakePortal{
		catalogs:  []*portal.CatalogResult{openCatalog(slotAt(8*60+10, 4))},
		submitErr: &portal.BookingError{Outcome: portal.OutcomeSlotTaken, Msg: "gone"},
	}
	b, reqs, _, _ := newBooker(p)

	res, _ := b.TryAttempt(context.Background(), saturdayRequest(booking.KindOneOff))
	if res.Outcome != "slot_unavailable" {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if len(reqs.failed) != 1 {
		t.Errorf("request not marked failed")
	}
}

func TestAttemptNetworkErrorKeepsStatus(t *testing.T) {
	p := &fakePortal{catalogErr: &portal.NetworkError{Class: portal.NetTimeout}}
	b, reqs, _, _ := newBooker(p)

	res, _ := b.TryAttempt(context.Background(), saturdayRequest(booking.KindOneOff))
	if res.Outcome != history.OutcomeNetworkError {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if len(reqs.failed) != 0 {
		t.Errorf("network error must not consume the request: %v", reqs.failed)
	}
}

func TestTryAttemptSkipsWhenGuardHeld(t *testing.T) {
	p := &fakePortal{catalogs: []*portal.CatalogResult{openCatalog()}}
	b, _, _, _ := newBooker(p)

	b.attemptMu.Lock()
	defer b.attemptMu.Unlock()

	if _, ran := b.TryAttempt(context.Background(), saturdayRequest(booking.KindOneOff)); ran {
		t.Fatal("attempt ran while another was in flight")
	}
}
