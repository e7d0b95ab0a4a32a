package gallery

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ayusman/memora/internal/detector"
)

// EnrollmentImage is one enrollment photo already associated with an identity.
type EnrollmentImage struct {
	Identity string
	Name     string
	Data     []byte
}

// Source lists the enrollment images a gallery is built from.
type Source interface {
	ListEnrollmentImages(ctx context.Context) ([]EnrollmentImage, error)
}

// Encoder computes one embedding from one enrollment image.
type Encoder interface {
	Encode(data []byte) ([]float32, error)
}

// Cache persists built galleries keyed by the fingerprint of their image set.
type Cache interface {
	// LoadGallery returns the cached entries for fingerprint, or ok=false.
	LoadGallery(ctx context.Context, fingerprint string) (entries []Entry, ok bool, err error)
	SaveGallery(ctx context.Context, fingerprint string, entries []Entry) error
}

// Build encodes every image and returns the resulting Gallery. Images that
// cannot be encoded are logged and skipped. If nothing could be encoded, Build
// returns an empty Gallery together with ErrEmptyGallery.
func Build(ctx context.Context, images []EnrollmentImage, enc Encoder) (*Gallery, error) {
	g, _, err := build(ctx, images, enc, nil)
	return g, err
}

// skips counts the images a build could not encode. Permanent skips will fail
// the same way on every rebuild; the rest may succeed when retried.
type skips struct {
	total     int
	permanent int
}

// retryable reports whether any skipped image may encode on a later attempt.
func (s skips) retryable() bool {
	return s.total > s.permanent
}

// permanentSkip reports whether an Encode error will recur for the same image.
func permanentSkip(err error) bool {
	return errors.Is(err, detector.ErrNoFace) || errors.Is(err, detector.ErrInvalidImage)
}

func build(ctx context.Context, images []EnrollmentImage, enc Encoder, progress func(done, total int)) (*Gallery, skips, error) {
	entries := make([]Entry, 0, len(images))
	var skipped skips

	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, skipped, err
		}

		emb, err := enc.Encode(img.Data)
		if err != nil {
			log.Printf("skipping enrollment image %s for identity %s: %v", img.Name, img.Identity, err)
			skipped.total++
			if permanentSkip(err) {
				skipped.permanent++
			}
		} else {
			entries = append(entries, Entry{Identity: img.Identity, Embedding: emb})
		}

		if progress != nil {
			progress(i+1, len(images))
		}
	}

	g := New(entries)
	g.fingerprint = Fingerprint(images)
	if g.Len() == 0 {
		return g, skipped, ErrEmptyGallery
	}
	return g, skipped, nil
}

// Fingerprint hashes the identities, names and contents of an image set in order.
func Fingerprint(images []EnrollmentImage) string {
	h := sha256.New()
	var n [8]byte
	for _, img := range images {
		for _, s := range []string{img.Identity, img.Name} {
			binary.LittleEndian.PutUint64(n[:], uint64(len(s)))
			h.Write(n[:])
			h.Write([]byte(s))
		}
		sum := sha256.Sum256(img.Data)
		h.Write(sum[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CacheKey combines an image-set fingerprint with the identity of the encoder
// that produced the embeddings. An empty encoderID leaves the fingerprint as is.
func CacheKey(fingerprint, encoderID string) string {
	if encoderID == "" {
		return fingerprint
	}
	h := sha256.New()
	h.Write([]byte(encoderID))
	h.Write([]byte{0})
	h.Write([]byte(fingerprint))
	return hex.EncodeToString(h.Sum(nil))
}

// Report describes one rebuild.
type Report struct {
	Version     uint64        `json:"version"`
	Images      int           `json:"images"`
	Entries     int           `json:"entries"`
	Skipped     int           `json:"skipped"`
	FromCache   bool          `json:"from_cache"`
	Fingerprint string        `json:"fingerprint"`
	Duration    time.Duration `json:"duration"`
}

// Builder rebuilds the gallery from a Source and publishes it to a Store.
// Concurrent rebuilds are serialized; readers of the Store are never blocked.
type Builder struct {
	Source  Source
	Encoder Encoder
	Store   *Store
	// Cache is optional. Galleries are cached under CacheKey(fingerprint,
	// EncoderID), and only when no image was skipped for a retryable error.
	Cache     Cache
	EncoderID string
	// OnProgress is called after each image is encoded.
	OnProgress func(done, total int)

	mu sync.Mutex
}

// Rebuild lists the enrollment images, builds a gallery (or loads it from the
// cache when the image set is unchanged) and publishes it. An empty result is
// still published, so removed identities stop matching, and ErrEmptyGallery is
// returned alongside the report.
func (b *Builder) Rebuild(ctx context.Context) (Report, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()

	images, err := b.Source.ListEnrollmentImages(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list enrollment images: %w", err)
	}

	report := Report{
		Images:      len(images),
		Fingerprint: Fingerprint(images),
	}

	key := CacheKey(report.Fingerprint, b.EncoderID)

	var g *Gallery
	if b.Cache != nil && len(images) > 0 {
		entries, ok, err := b.Cache.LoadGallery(ctx, key)
		if err != nil {
			log.Printf("gallery cache lookup failed: %v", err)
		} else if ok {
			g = New(entries)
			g.fingerprint = report.Fingerprint
			report.FromCache = true
			report.Skipped = len(images) - g.Len()
			log.Printf("gallery cache hit for %s (%d entries)", short(key), g.Len())
		}
	}

	var buildErr error
	if g == nil {
		var skipped skips
		g, skipped, buildErr = build(ctx, images, b.Encoder, b.OnProgress)
		report.Skipped = skipped.total
		if buildErr != nil && !errors.Is(buildErr, ErrEmptyGallery) {
			return report, buildErr
		}
		switch {
		case buildErr != nil || b.Cache == nil:
		case skipped.retryable():
			log.Printf("not caching gallery %s: %d of %d skipped images may encode on retry",
				short(key), skipped.total-skipped.permanent, skipped.total)
		default:
			if err := b.Cache.SaveGallery(ctx, key, g.Entries()); err != nil {
				log.Printf("failed to save gallery cache: %v", err)
			}
		}
	}

	published := b.Store.Replace(g)
	report.Version = published.Version()
	report.Entries = published.Len()
	report.Duration = time.Since(start)

	return report, buildErr
}

func short(fingerprint string) string {
	if len(fingerprint) > 12 {
		return fingerprint[:12]
	}
	return fingerprint
}
