package store

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Member is a family member the patient should recognize.
type Member struct {
	ID        string
	Name      string
	Relation  string
	Age       int
	Interest  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MemberRepository provides CRUD operations for family members.
type MemberRepository struct {
	db *sql.DB
}

// Members returns the member repository for this store.
func (s *Store) Members() *MemberRepository {
	return &MemberRepository{db: s.db}
}

// Create inserts a new member into the database.
func (r *MemberRepository) Create(m *Member) error {
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := r.db.Exec(
		`INSERT INTO family_members (id, name, relation, age, interest, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.Relation, m.Age, m.Interest, m.CreatedAt, m.UpdatedAt,
	)
	return err
}

// GetByID retrieves a member by its ID.
func (r *MemberRepository) GetByID(id string) (*Member, error) {
	m := &Member{}

	err := r.db.QueryRow(
		`SELECT id, name, relation, age, interest, created_at, updated_at
		 FROM family_members WHERE id = ?`,
		id,
	).Scan(&m.ID, &m.Name, &m.Relation, &m.Age, &m.Interest, &m.CreatedAt, &m.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return m, nil
}

// List retrieves all members, oldest first.
func (r *MemberRepository) List() ([]*Member, error) {
	rows, err := r.db.Query(
		`SELECT id, name, relation, age, interest, created_at, updated_at
		 FROM family_members ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m := &Member{}
		if err := rows.Scan(&m.ID, &m.Name, &m.Relation, &m.Age, &m.Interest, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return members, nil
}

// Update updates an existing member's details.
func (r *MemberRepository) Update(m *Member) error {
	m.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		`UPDATE family_members SET name = ?, relation = ?, age = ?, interest = ?, updated_at = ?
		 WHERE id = ?`,
		m.Name, m.Relation, m.Age, m.Interest, m.UpdatedAt, m.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a member and, by cascade, their enrollment images.
func (r *MemberRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM family_members WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
