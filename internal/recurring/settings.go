// Package recurring drives the weekly standing-reservation pattern: the
// periodic catch-up sweep and the just-in-time attempt at the release instant.
package recurring

import (
	"context"
	"time"

	"github.com/example/teesched/internal/db"
)

// Settings is the operator-tunable half of the recurring pattern. It lives in
// a singleton row so the API can flip it without a restart.
type Settings struct {
	Enabled        bool
	EarliestMin    int
	LatestMin      int
	MaxOutstanding int
}

type SettingsRepo struct{ db *db.DB }

func NewSettingsRepo(d *db.DB) *SettingsRepo { return &SettingsRepo{db: d} }

func (r *SettingsRepo) Get(ctx context.Context) (Settings, error) {
	var s Settings
	err := r.db.QueryRow(ctx, `
SELECT enabled,earliest_minute,latest_minute,max_outstanding
FROM recurring_settings WHERE id=1`).Scan(&s.Enabled, &s.EarliestMin, &s.LatestMin, &s.MaxOutstanding)
	return s, db.WrapNotFound(err)
}

func (r *SettingsRepo) Update(ctx context.Context, s Settings) error {
	return r.db.Exec(ctx, `
UPDATE recurring_settings
SET enabled=$1, earliest_minute=$2, latest_minute=$3, max_outstanding=$4, updated_at=now()
WHERE id=1`, s.Enabled, s.EarliestMin, s.LatestMin, s.MaxOutstanding)
}

// EnsureDefaults seeds the singleton row on first run and leaves an existing
// row alone.
func (r *SettingsRepo) EnsureDefaults(ctx context.Context, s Settings) error {
	return r.db.Exec(ctx, `
INSERT INTO recurring_settings(id,enabled,earliest_minute,latest_minute,max_outstanding)
VALUES (1,$1,$2,$3,$4)
ON CONFLICT (id) DO NOTHING`, s.Enabled, s.EarliestMin, s.LatestMin, s.MaxOutstanding)
}

// MarkBooked remembers the most recent booked date per weekday, for the
// status view.
func (r *SettingsRepo) MarkBooked(ctx context.Context, wd time.Weekday, date time.Time) error {
	return r.db.Exec(ctx, `
INSERT INTO weekday_marks(weekday,last_booked)
VALUES ($1,$2)
ON CONFLICT (weekday) DO UPDATE SET last_booked=GREATEST(weekday_marks.last_booked, EXCLUDED.last_booked)`,
		int(wd), date)
}

func (r *SettingsRepo) Marks(ctx context.Context) (map[time.Weekday]time.Time, error) {
	rows, err := r.db.Query(ctx, `SELECT weekday,last_booked FROM weekday_marks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[time.Weekday]time.Time{}
	for rows.Next() {
		var wd int
		var d time.Time
		if err := rows.Scan(&wd, &d); err != nil {
			return nil, err
		}
		out[time.Weekday(wd)] = d
	}
	return out, rows.Err()
}
