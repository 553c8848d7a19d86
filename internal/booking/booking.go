// Package booking holds BookingRequest rows and their state machine.
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/example/teesched/internal/db"
)

type Kind string

const (
	KindOneOff    Kind = "oneoff"
	KindRecurring Kind = "recurring"
)

type Status string

const (
	StatusPending Status = "pending"
	// StatusBooked is the only terminal status.
	StatusBooked Status = "booked"
	// StatusFailed requests re-enter the attempt pool on later eligible
	// ticks; only a passed target date retires them.
	StatusFailed Status = "failed"
)

type Request struct {
	ID            int64
	TargetDate    time.Time
	EarliestMin   int
	LatestMin     int
	Kind          Kind
	Status        Status
	Attempts      int
	LastAttemptAt *time.Time
	WindowOpenAt  time.Time
	ChosenTime    string
	LastError     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (r Request) Validate() error {
	if r.TargetDate.IsZero() {
		return fmt.Errorf("target_date required")
	}
	if r.EarliestMin < 0 || r.EarliestMin > 24*60 || r.LatestMin < 0 || r.LatestMin > 24*60 {
		return fmt.Errorf("time window out of range")
	}
	if r.LatestMin < r.EarliestMin {
		return fmt.Errorf("latest must not be earlier than earliest")
	}
	if r.WindowOpenAt.IsZero() {
		return fmt.Errorf("window_open_at required")
	}
	return nil
}

// WindowOpen computes the instant the portal starts accepting reservations
// for target: aheadDays before it, at releaseMinute local clock time.
func WindowOpen(target time.Time, aheadDays, releaseMinute int, loc *time.Location) time.Time {
	d := target.AddDate(0, 0, -aheadDays)
	return time.Date(d.Year(), d.Month(), d.Day(), releaseMinute/60, releaseMinute%60, 0, 0, loc)
}

type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

const requestCols = `id,target_date,earliest_minute,latest_minute,kind,status,attempts,last_attempt_at,window_open_at,chosen_time,last_error,created_at,updated_at`

func (r *Repo) scan(row db.Row) (Request, error) {
	var q Request
	err := row.Scan(&q.ID, &q.TargetDate, &q.EarliestMin, &q.LatestMin, &q.Kind, &q.Status,
		&q.Attempts, &q.LastAttemptAt, &q.WindowOpenAt, &q.ChosenTime, &q.LastError, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return Request{}, db.WrapNotFound(err)
	}
	return q, nil
}

func (r *Repo) Create(ctx context.Context, q Request) (int64, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := r.db.QueryRow(ctx, `
INSERT INTO booking_requests(target_date,earliest_minute,latest_minute,kind,status,window_open_at)
VALUES ($1,$2,$3,$4,'pending',$5)
RETURNING id`,
		q.TargetDate, q.EarliestMin, q.LatestMin, q.Kind, q.WindowOpenAt).Scan(&id)
	return id, db.WrapNotFound(err)
}

func (r *Repo) GetByID(ctx context.Context, id int64) (Request, error) {
	return r.scan(r.db.QueryRow(ctx, `SELECT `+requestCols+` FROM booking_requests WHERE id=$1`, id))
}

// GetLiveByDate returns the non-booked or booked request holding date's slot,
// honoring the one-live-request-per-date invariant.
func (r *Repo) GetLiveByDate(ctx context.Context, date time.Time) (Request, error) {
	return r.scan(r.db.QueryRow(ctx, `
SELECT `+requestCols+` FROM booking_requests
WHERE target_date=$1
ORDER BY (status='booked') DESC, created_at DESC
LIMIT 1`, date))
}

func (r *Repo) List(ctx context.Context) ([]Request, error) {
	rows, err := r.db.Query(ctx, `SELECT `+requestCols+` FROM booking_requests ORDER BY target_date ASC, created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Request
	for rows.Next() {
		q, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// Open returns every request still worth attempting: not booked, target date
// not passed.
func (r *Repo) Open(ctx context.Context) ([]Request, error) {
	rows, err := r.db.Query(ctx, `
SELECT `+requestCols+` FROM booking_requests
WHERE status <> 'booked' AND target_date >= CURRENT_DATE
ORDER BY window_open_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Request
	for rows.Next() {
		q, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (r *Repo) Delete(ctx context.Context, id int64) error {
	n, err := r.db.ExecRows(ctx, `DELETE FROM booking_requests WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return db.ErrNotFound
	}
	return nil
}

// ClaimDue atomically checks the cooldown and stamps the attempt in one
// statement, so two ticks racing on the same request cannot both win.
func (r *Repo) ClaimDue(ctx context.Context, id int64, cooldown time.Duration) (bool, error) {
	n, err := r.db.ExecRows(ctx, `
UPDATE booking_requests
SET attempts=attempts+1, last_attempt_at=now(), updated_at=now()
WHERE id=$1 AND status <> 'booked'
  AND (last_attempt_at IS NULL OR last_attempt_at <= now() - make_interval(secs => $2))`,
		id, cooldown.Seconds())
	return n == 1, err
}

// ClaimImmediate is ClaimDue without the cooldown condition, for the
// window-open bypass and explicit triggers.
func (r *Repo) ClaimImmediate(ctx context.Context, id int64) (bool, error) {
	n, err := r.db.ExecRows(ctx, `
UPDATE booking_requests
SET attempts=attempts+1, last_attempt_at=now(), updated_at=now()
WHERE id=$1 AND status <> 'booked'`, id)
	return n == 1, err
}

func (r *Repo) MarkBooked(ctx context.Context, id int64, chosenTime string) error {
	return r.db.Exec(ctx, `
UPDATE booking_requests SET status='booked', chosen_time=$2, last_error=NULL, updated_at=now()
WHERE id=$1`, id, chosenTime)
}

func (r *Repo) MarkFailed(ctx context.Context, id int64, msg string) error {
	return r.db.Exec(ctx, `
UPDATE booking_requests SET status='failed', last_error=$2, updated_at=now()
WHERE id=$1 AND status <> 'booked'`, id, msg)
}

// CountOutstanding counts recurring occurrences still holding a future slot:
// pending or booked, target date not passed. Feeds the orchestrator's cap.
func (r *Repo) CountOutstanding(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
SELECT count(*) FROM booking_requests
WHERE kind='recurring' AND target_date >= CURRENT_DATE AND status IN ('pending','booked')`).Scan(&n)
	return n, err
}
