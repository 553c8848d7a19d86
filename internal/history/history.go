// Package history records one row per booking attempt per occurrence, so
// operators can answer "what happened to Saturday" without reading logs.
package history

import (
	"context"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/example/teesched/internal/db"
)

// Outcome strings stored in attempt_history. The portal classifier outcomes
// map onto these verbatim; the rest are produced before a submission exists.
const (
	OutcomeAttempting   = "attempting"
	OutcomeBooked       = "booked"
	OutcomeNoSlots      = "no_slots"
	OutcomeWindowClosed = "window_not_open"
	OutcomeAuthError    = "auth_error"
	OutcomeNetworkError = "network_error"
	OutcomeConfigError  = "config_error"
)

type Entry struct {
	ID         uuid.UUID
	TargetDate time.Time
	DayLabel   string
	Outcome    string
	ChosenTime string
	Attempts   int
	Message    string
	CreatedAt  time.Time
}

var sanitizer = bluemonday.StrictPolicy()

// sanitize strips markup from portal-derived text before it is stored.
func sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(sanitizer.Sanitize(s)))
}

type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

func (r *Repo) Append(ctx context.Context, e Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return r.db.Exec(ctx, `
INSERT INTO attempt_history(id,target_date,day_label,outcome,chosen_time,attempts,message)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.TargetDate, e.DayLabel, e.Outcome, e.ChosenTime, e.Attempts, sanitize(e.Message))
}

func (r *Repo) scanAll(rows db.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TargetDate, &e.DayLabel, &e.Outcome,
			&e.ChosenTime, &e.Attempts, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const historyCols = `id,target_date,day_label,outcome,chosen_time,attempts,message,created_at`

func (r *Repo) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `
SELECT `+historyCols+` FROM attempt_history
ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

func (r *Repo) ListByDate(ctx context.Context, date time.Time) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `
SELECT `+historyCols+` FROM attempt_history
WHERE target_date=$1 ORDER BY created_at ASC`, date)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

// HasOutcome reports whether date already has an attempt with the given
// outcome. The sweep uses it to stop revisiting days with no sellable slots.
func (r *Repo) HasOutcome(ctx context.Context, date time.Time, outcome string) (bool, error) {
	var n int
	err := r.db.QueryRow(ctx, `
SELECT count(*) FROM attempt_history WHERE target_date=$1 AND outcome=$2`, date, outcome).Scan(&n)
	return n > 0, err
}
