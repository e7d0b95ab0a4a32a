package store

import (
	"database/sql"
	"errors"
	"time"
)

// Update is a piece of family news posted for a member, such as a trip or a
// new job. The most recent one feeds the conversation starter.
type Update struct {
	ID       string
	MemberID string
	Content  string
	// Date is the day the news refers to, as the poster wrote it.
	Date      string
	CreatedAt time.Time
}

// UpdateRepository stores member updates.
type UpdateRepository struct {
	db *sql.DB
}

// Updates returns the member update repository for this store.
func (s *Store) Updates() *UpdateRepository {
	return &UpdateRepository{db: s.db}
}

// Add stores an update for an existing member.
func (r *UpdateRepository) Add(u *Update) error {
	u.CreatedAt = time.Now()

	_, err := r.db.Exec(
		`INSERT INTO member_updates (id, member_id, content, date, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.MemberID, u.Content, u.Date, u.CreatedAt,
	)
	return err
}

// ListForMember returns a member's updates, newest first.
func (r *UpdateRepository) ListForMember(memberID string) ([]*Update, error) {
	rows, err := r.db.Query(
		`SELECT id, member_id, content, date, created_at
		 FROM member_updates WHERE member_id = ? ORDER BY created_at DESC, rowid DESC`,
		memberID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var updates []*Update
	for rows.Next() {
		u := &Update{}
		if err := rows.Scan(&u.ID, &u.MemberID, &u.Content, &u.Date, &u.CreatedAt); err != nil {
			return nil, err
		}
		updates = append(updates, u)
	}
	return updates, rows.Err()
}

// Latest returns a member's most recent update, or ErrNotFound.
func (r *UpdateRepository) Latest(memberID string) (*Update, error) {
	u := &Update{}
	err := r.db.QueryRow(
		`SELECT id, member_id, content, date, created_at
		 FROM member_updates WHERE member_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		memberID,
	).Scan(&u.ID, &u.MemberID, &u.Content, &u.Date, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}
