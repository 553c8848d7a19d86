// Package roster stores the standing list of players submitted with every
// booking.
package roster

import (
	"context"
	"strings"

	"github.com/example/teesched/internal/db"
)

type Guest struct {
	ID        int64
	Position  int
	FirstName string
	LastName  string
	MemberNo  string
}

func (g Guest) FullName() string {
	return strings.TrimSpace(g.FirstName + " " + g.LastName)
}

type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

// List returns the roster in position order, the order participants are
// bound to the submission form.
func (r *Repo) List(ctx context.Context) ([]Guest, error) {
	rows, err := r.db.Query(ctx, `
SELECT id,position,first_name,last_name,member_no FROM guests ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Guest
	for rows.Next() {
		var g Guest
		if err := rows.Scan(&g.ID, &g.Position, &g.FirstName, &g.LastName, &g.MemberNo); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Put inserts or replaces the guest at a position.
func (r *Repo) Put(ctx context.Context, g Guest) error {
	return r.db.Exec(ctx, `
INSERT INTO guests(position,first_name,last_name,member_no)
VALUES ($1,$2,$3,$4)
ON CONFLICT (position) DO UPDATE
SET first_name=EXCLUDED.first_name, last_name=EXCLUDED.last_name, member_no=EXCLUDED.member_no`,
		g.Position, g.FirstName, g.LastName, g.MemberNo)
}

func (r *Repo) Remove(ctx context.Context, position int) error {
	n, err := r.db.ExecRows(ctx, `DELETE FROM guests WHERE position=$1`, position)
	if err != nil {
		return err
	}
	if n == 0 {
		return db.ErrNotFound
	}
	return nil
}
