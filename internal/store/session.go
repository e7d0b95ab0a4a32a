package store

import (
	"database/sql"
	"errors"
	"time"
)

// Session is the recorded outcome of one recognition session.
type Session struct {
	ID           string
	State        string
	Identity     string
	Distance     float64
	Frames       int
	TimedOut     bool
	Error        string
	HandoffError string
	StartedAt    time.Time
	EndedAt      time.Time
}

// SessionRepository records recognition sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Record inserts a finished session.
func (r *SessionRepository) Record(sess *Session) error {
	_, err := r.db.Exec(
		`INSERT INTO recognition_sessions
		 (id, state, identity, distance, frames, timed_out, error, handoff_error, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.State, sess.Identity, sess.Distance, sess.Frames, sess.TimedOut,
		sess.Error, sess.HandoffError, sess.StartedAt, sess.EndedAt,
	)
	return err
}

// Get retrieves a session by ID.
func (r *SessionRepository) Get(id string) (*Session, error) {
	sess := &Session{}
	err := r.db.QueryRow(
		`SELECT id, state, identity, distance, frames, timed_out, error, handoff_error, started_at, ended_at
		 FROM recognition_sessions WHERE id = ?`,
		id,
	).Scan(&sess.ID, &sess.State, &sess.Identity, &sess.Distance, &sess.Frames, &sess.TimedOut,
		&sess.Error, &sess.HandoffError, &sess.StartedAt, &sess.EndedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

// List returns the most recent sessions, newest first. A non-positive limit
// returns at most 50.
func (r *SessionRepository) List(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(
		`SELECT id, state, identity, distance, frames, timed_out, error, handoff_error, started_at, ended_at
		 FROM recognition_sessions ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess := &Session{}
		if err := rows.Scan(&sess.ID, &sess.State, &sess.Identity, &sess.Distance, &sess.Frames, &sess.TimedOut,
			&sess.Error, &sess.HandoffError, &sess.StartedAt, &sess.EndedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}
