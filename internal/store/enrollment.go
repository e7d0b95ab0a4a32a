package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ayusman/memora/internal/gallery"
)

// EnrollmentImage is a face photo of a member used to build the gallery.
type EnrollmentImage struct {
	ID          string
	MemberID    string
	Filename    string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

// EnrollmentRepository stores enrollment images.
type EnrollmentRepository struct {
	db *sql.DB
}

// Enrollments returns the enrollment image repository for this store.
func (s *Store) Enrollments() *EnrollmentRepository {
	return &EnrollmentRepository{db: s.db}
}

// Add stores an enrollment image for an existing member.
func (r *EnrollmentRepository) Add(img *EnrollmentImage) error {
	img.CreatedAt = time.Now()
	if img.ContentType == "" {
		img.ContentType = "image/jpeg"
	}

	_, err := r.db.Exec(
		`INSERT INTO enrollment_images (id, member_id, filename, content_type, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		img.ID, img.MemberID, img.Filename, img.ContentType, img.Data, img.CreatedAt,
	)
	return err
}

// Get retrieves an enrollment image by ID, including its data.
func (r *EnrollmentRepository) Get(id string) (*EnrollmentImage, error) {
	img := &EnrollmentImage{}
	err := r.db.QueryRow(
		`SELECT id, member_id, filename, content_type, data, created_at
		 FROM enrollment_images WHERE id = ?`,
		id,
	).Scan(&img.ID, &img.MemberID, &img.Filename, &img.ContentType, &img.Data, &img.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return img, nil
}

// ListForMember returns a member's images without their data, oldest first.
func (r *EnrollmentRepository) ListForMember(memberID string) ([]*EnrollmentImage, error) {
	rows, err := r.db.Query(
		`SELECT id, member_id, filename, content_type, created_at
		 FROM enrollment_images WHERE member_id = ? ORDER BY created_at, id`,
		memberID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []*EnrollmentImage
	for rows.Next() {
		img := &EnrollmentImage{}
		if err := rows.Scan(&img.ID, &img.MemberID, &img.Filename, &img.ContentType, &img.CreatedAt); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// Delete removes an enrollment image.
func (r *EnrollmentRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM enrollment_images WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of stored enrollment images.
func (r *EnrollmentRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM enrollment_images`).Scan(&n)
	return n, err
}

// ListEnrollmentImages returns every enrollment image with its member ID as
// the identity, in a stable order.
func (r *EnrollmentRepository) ListEnrollmentImages(ctx context.Context) ([]gallery.EnrollmentImage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT member_id, filename, data
		 FROM enrollment_images ORDER BY member_id, created_at, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []gallery.EnrollmentImage
	for rows.Next() {
		var img gallery.EnrollmentImage
		if err := rows.Scan(&img.Identity, &img.Name, &img.Data); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}
