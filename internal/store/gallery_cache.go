package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ayusman/memora/internal/gallery"
)

// keepSnapshots is how many cached galleries are retained.
const keepSnapshots = 5

// GalleryCacheRepository persists built galleries so embeddings need not be
// recomputed when the enrollment set is unchanged.
type GalleryCacheRepository struct {
	db *sql.DB
}

// GalleryCache returns the gallery cache repository for this store.
func (s *Store) GalleryCache() *GalleryCacheRepository {
	return &GalleryCacheRepository{db: s.db}
}

// LoadGallery returns the entries cached under fingerprint in positional order.
func (r *GalleryCacheRepository) LoadGallery(ctx context.Context, fingerprint string) ([]gallery.Entry, bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT entries FROM gallery_snapshots WHERE fingerprint = ?`, fingerprint,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT identity, embedding FROM gallery_entries
		 WHERE fingerprint = ? ORDER BY position`,
		fingerprint,
	)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	entries := make([]gallery.Entry, 0, count)
	for rows.Next() {
		var identity string
		var blob []byte
		if err := rows.Scan(&identity, &blob); err != nil {
			return nil, false, err
		}
		emb, err := decodeEmbedding(blob)
		if err != nil {
			return nil, false, err
		}
		entries = append(entries, gallery.Entry{Identity: identity, Embedding: emb})
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	if len(entries) != count {
		return nil, false, fmt.Errorf("gallery cache %s is incomplete: %d of %d entries", fingerprint, len(entries), count)
	}
	return entries, true, nil
}

// SaveGallery stores entries under fingerprint, replacing any previous copy,
// and prunes all but the most recent snapshots.
func (r *GalleryCacheRepository) SaveGallery(ctx context.Context, fingerprint string, entries []gallery.Entry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM gallery_snapshots WHERE fingerprint = ?`, fingerprint); err != nil {
		return err
	}
	// Entries cascade, but clear them explicitly in case foreign keys are off.
	if _, err := tx.ExecContext(ctx, `DELETE FROM gallery_entries WHERE fingerprint = ?`, fingerprint); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gallery_snapshots (fingerprint, entries, created_at) VALUES (?, ?, ?)`,
		fingerprint, len(entries), time.Now(),
	); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO gallery_entries (fingerprint, position, identity, embedding) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, e := range entries {
		if _, err := stmt.ExecContext(ctx, fingerprint, i, e.Identity, encodeEmbedding(e.Embedding)); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM gallery_entries WHERE fingerprint NOT IN (
			SELECT fingerprint FROM gallery_snapshots ORDER BY created_at DESC LIMIT ?
		)`, keepSnapshots,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM gallery_snapshots WHERE fingerprint NOT IN (
			SELECT fingerprint FROM gallery_snapshots ORDER BY created_at DESC LIMIT ?
		)`, keepSnapshots,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// encodeEmbedding stores each float32 as its little-endian IEEE-754 bits,
// so values round-trip exactly.
func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob has %d bytes, not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
