package portal

import (
	"context"
	"encoding/json"

	"github.com/example/teesched/internal/db"
)

type SavedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SavedSession is the persisted shape of a portal session, so a restart can
// resume without redoing the handshake.
type SavedSession struct {
	Token   string
	Cookies []SavedCookie
}

type SessionStore interface {
	// Load returns the persisted session, or (nil, nil) when none exists.
	Load(ctx context.Context) (*SavedSession, error)
	Save(ctx context.Context, s *SavedSession) error
}

// PGSessionStore keeps the single portal session in the portal_sessions row.
type PGSessionStore struct {
	db *db.DB
}

func NewPGSessionStore(d *db.DB) *PGSessionStore { return &PGSessionStore{db: d} }

func (s *PGSessionStore) Load(ctx context.Context) (*SavedSession, error) {
	var token string
	var raw []byte
	err := s.db.QueryRow(ctx, `SELECT token, cookies FROM portal_sessions WHERE id=1`).Scan(&token, &raw)
	if err != nil {
		if db.IsNotFound(db.WrapNotFound(err)) {
			return nil, nil
		}
		return nil, db.WrapNotFound(err)
	}
	out := &SavedSession{Token: token}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out.Cookies); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PGSessionStore) Save(ctx context.Context, sess *SavedSession) error {
	raw, err := json.Marshal(sess.Cookies)
	if err != nil {
		return err
	}
	return s.db.Exec(ctx, `
INSERT INTO portal_sessions(id, token, cookies, updated_at) VALUES (1, $1, $2, now())
ON CONFLICT (id) DO UPDATE SET token=$1, cookies=$2, updated_at=now()`, sess.Token, raw)
}
