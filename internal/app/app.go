// Package app runs recognition sessions: it captures frames, detects faces,
// matches them against the enrolled gallery and hands the recognized identity
// to the personalization bridge.
package app

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/ayusman/memora/internal/capture"
	"github.com/ayusman/memora/internal/detector"
	"github.com/ayusman/memora/internal/gallery"
	"github.com/ayusman/memora/internal/handoff"
	"github.com/ayusman/memora/internal/match"
	"github.com/ayusman/memora/internal/store"
)

// Session defaults.
const (
	// DefaultTimeout is how long a session looks for a face before giving up.
	DefaultTimeout = 10 * time.Second
	// DefaultMaxCaptureFailures is how many consecutive failed reads end a session.
	DefaultMaxCaptureFailures = 3
)

// SessionRecorder persists finished sessions.
type SessionRecorder interface {
	Record(s *store.Session) error
}

// Config holds configuration options for the application.
type Config struct {
	DeviceID int
	// NewCamera creates the frame source for a session. Defaults to capture.NewCamera.
	NewCamera capture.Factory

	Gallery  *gallery.Store
	Builder  *gallery.Builder
	Detector detector.Detector
	Matcher  *match.Matcher

	// Bridge, Sessions, OnFrame and OnResult are optional.
	Bridge   handoff.Bridge
	Sessions SessionRecorder
	OnFrame  func(FrameReport)
	OnResult func(SessionResult)

	Timeout            time.Duration
	MaxFrames          int
	FrameInterval      time.Duration
	MaxCaptureFailures int
	Annotate           bool
}

// App runs recognition sessions and gallery rebuilds.
type App struct {
	config Config
	mu     sync.RWMutex

	snapshot   []byte
	rebuilding sync.WaitGroup
}

// New creates a new App instance with the given configuration.
func New(config Config) *App {
	if config.NewCamera == nil {
		config.NewCamera = capture.NewCamera
	}
	if config.Gallery == nil {
		config.Gallery = gallery.NewStore()
	}
	if config.Matcher == nil {
		config.Matcher = match.NewMatcher(match.DefaultThreshold)
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxCaptureFailures <= 0 {
		config.MaxCaptureFailures = DefaultMaxCaptureFailures
	}

	return &App{config: config}
}

// SetDetector sets the face detector implementation to use.
func (a *App) SetDetector(d detector.Detector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.config.Detector = d
}

// Detector returns the face detector.
func (a *App) Detector() detector.Detector {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config.Detector
}

// SetBridge sets the personalization bridge.
func (a *App) SetBridge(b handoff.Bridge) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.config.Bridge = b
}

// OnResult registers a callback run after every session.
func (a *App) OnResult(fn func(SessionResult)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.config.OnResult = fn
}

// Gallery returns the gallery store sessions read from.
func (a *App) Gallery() *gallery.Store {
	return a.config.Gallery
}

// Matcher returns the matcher.
func (a *App) Matcher() *match.Matcher {
	return a.config.Matcher
}

// LastSnapshot returns the annotated JPEG of the most recent match, if any.
func (a *App) LastSnapshot() []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot
}

func (a *App) setSnapshot(jpeg []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshot = jpeg
}

// ErrNoBuilder is returned when rebuilding without a configured Builder.
var ErrNoBuilder = errors.New("gallery builder not configured")

// RebuildGallery rebuilds and publishes the gallery. Sessions in flight keep
// matching against the snapshot they already hold.
func (a *App) RebuildGallery(ctx context.Context) (gallery.Report, error) {
	if a.config.Builder == nil {
		return gallery.Report{}, ErrNoBuilder
	}
	return a.config.Builder.Rebuild(ctx)
}

// RebuildInBackground starts a rebuild without blocking the caller. The
// returned channel receives the outcome once.
func (a *App) RebuildInBackground() <-chan error {
	done := make(chan error, 1)
	a.rebuilding.Add(1)
	go func() {
		defer a.rebuilding.Done()
		report, err := a.RebuildGallery(context.Background())
		switch {
		case errors.Is(err, gallery.ErrEmptyGallery):
			log.Printf("gallery rebuilt with no identities enrolled")
		case err != nil:
			log.Printf("gallery rebuild failed: %v", err)
		default:
			log.Printf("gallery rebuilt: v%d, %d entries, %d skipped", report.Version, report.Entries, report.Skipped)
		}
		done <- err
	}()
	return done
}

// Wait blocks until background rebuilds have finished.
func (a *App) Wait() {
	a.rebuilding.Wait()
}

// Close waits for background work and releases the detector.
func (a *App) Close() {
	a.Wait()

	if d := a.Detector(); d != nil {
		if err := d.Close(); err != nil {
			log.Printf("Error closing detector: %v", err)
		}
	}
}
