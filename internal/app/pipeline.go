package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/ayusman/memora/internal/capture"
	"github.com/ayusman/memora/internal/gallery"
	"github.com/ayusman/memora/internal/handoff"
	"github.com/ayusman/memora/internal/match"
	"github.com/ayusman/memora/internal/store"
)

// Messages reported in SessionResult.Error.
const (
	MsgCaptureFailed     = "capture failed"
	MsgDeviceUnavailable = "device unavailable"
	MsgNoIdentities      = "no identities enrolled"
	MsgNoFace            = "no face detected"
)

// ErrNoDetector is returned when a session starts without a detector.
var ErrNoDetector = errors.New("face detector not configured")

// SessionResult is the outcome of one recognition session. Exactly one of
// MatchedIdentity, TimedOut and Error is set.
type SessionResult struct {
	SessionID       string  `json:"session_id"`
	MatchedIdentity string  `json:"matched_identity,omitempty"`
	TimedOut        bool    `json:"timed_out,omitempty"`
	Error           string  `json:"error,omitempty"`
	Distance        float64 `json:"distance,omitempty"`
	Frames          int     `json:"frames"`

	// Outcome is the terminal capture state; State is always CLOSED once
	// RunSession returns.
	Outcome        State  `json:"outcome"`
	State          State  `json:"state"`
	GalleryVersion uint64 `json:"gallery_version"`

	Personalization      *handoff.Payload `json:"personalization,omitempty"`
	PersonalizationError string           `json:"personalization_error,omitempty"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	// Err is the underlying error for ERROR outcomes.
	Err error `json:"-"`
	// Snapshot is the annotated JPEG of the matched frame, when annotation is on.
	Snapshot []byte `json:"-"`
}

// Matched reports whether the session recognized someone.
func (r SessionResult) Matched() bool {
	return r.MatchedIdentity != ""
}

// FrameReport describes one processed frame.
type FrameReport struct {
	Index          int
	GalleryVersion uint64
	Faces          int
	Decisions      []match.Decision
}

// session is the per-run state of the recognition loop.
type session struct {
	result    SessionResult
	state     State
	failures  int
	decision  match.Decision
	frame     *gocv.Mat // read but not yet released
	matchedAt *gocv.Mat
	box       image.Rectangle
}

// Frame hooks, replaced in tests.
var (
	closeFrame    = func(m *gocv.Mat) { m.Close() }
	annotateFrame = annotate
)

// dropFrame closes the in-flight frame, if any.
func (s *session) dropFrame() {
	if s.frame != nil {
		closeFrame(s.frame)
		s.frame = nil
	}
}

func (s *session) transition(to State) {
	log.Printf("session %s: %s -> %s", s.result.SessionID, s.state, to)
	s.state = to
}

// RunSession runs one recognition session to completion. It never returns
// with the camera held: every path through the state machine releases it
// exactly once before the handoff bridge is called.
func (a *App) RunSession(ctx context.Context) SessionResult {
	s := &session{
		result: SessionResult{
			SessionID: uuid.New().String(),
			StartedAt: time.Now(),
		},
		state: StateInit,
	}

	cfg := a.sessionConfig()
	s.result.GalleryVersion = cfg.Gallery.Snapshot().Version()

	switch {
	case cfg.Detector == nil:
		a.fail(s, ErrNoDetector)
	case cfg.Gallery.Snapshot().Len() == 0:
		a.fail(s, gallery.ErrEmptyGallery)
	default:
		a.capture(ctx, cfg, s)
	}

	s.result.Outcome = s.state
	s.transition(StateClosed)
	s.result.State = StateClosed
	s.result.EndedAt = time.Now()

	if s.result.Matched() && cfg.Bridge != nil {
		payload, err := cfg.Bridge.OnIdentityRecognized(ctx, s.result.MatchedIdentity)
		if err != nil {
			log.Printf("session %s: handoff for %s failed: %v", s.result.SessionID, s.result.MatchedIdentity, err)
			s.result.PersonalizationError = err.Error()
		} else {
			s.result.Personalization = payload
		}
	}

	a.record(cfg, s.result)

	log.Printf("session %s finished: %s after %d frames", s.result.SessionID, s.result.Outcome, s.result.Frames)
	if cfg.OnResult != nil {
		cfg.OnResult(s.result)
	}

	return s.result
}

func (a *App) sessionConfig() Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config
}

// capture runs the INIT and CAPTURING states.
func (a *App) capture(ctx context.Context, cfg Config, s *session) {
	cam := cfg.NewCamera(cfg.DeviceID)
	if err := cam.Open(); err != nil {
		a.fail(s, err)
		return
	}

	release := sync.OnceFunc(func() {
		if err := cam.Close(); err != nil {
			log.Printf("session %s: error closing camera: %v", s.result.SessionID, err)
		}
	})
	defer release()

	defer func() {
		if r := recover(); r != nil {
			s.dropFrame()
			a.fail(s, fmt.Errorf("recognition loop panic: %v", r))
		}
	}()

	s.transition(StateCapturing)

	runCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	a.loop(runCtx, cfg, cam, s)

	// The frame is annotated after release so the device is free as soon
	// as the decision is made.
	release()
	if s.matchedAt != nil {
		if cfg.Annotate {
			a.snapshotMatch(s)
		}
		closeFrame(s.matchedAt)
		s.matchedAt = nil
	}
}

// snapshotMatch stores the annotated matched frame. Failures only cost the
// snapshot; the session stays MATCHED.
func (a *App) snapshotMatch(s *session) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("session %s: annotate panic: %v", s.result.SessionID, r)
		}
	}()

	jpeg, err := annotateFrame(s.matchedAt, s.box, s.decision.Identity)
	if err != nil {
		log.Printf("session %s: annotate failed: %v", s.result.SessionID, err)
		return
	}
	s.result.Snapshot = jpeg
	a.setSnapshot(jpeg)
}

// loop reads frames until a match, an error, or the budget runs out.
func (a *App) loop(ctx context.Context, cfg Config, cam capture.Camera, s *session) {
	for {
		if ctx.Err() != nil || (cfg.MaxFrames > 0 && s.result.Frames >= cfg.MaxFrames) {
			s.result.TimedOut = true
			s.result.Error = ""
			s.transition(StateNoFaceTimeout)
			return
		}

		frame, err := readFrame(cam, cfg, s)
		if err != nil {
			a.fail(s, err)
			return
		}
		if frame == nil {
			wait(ctx, cfg.FrameInterval)
			continue
		}
		s.frame = frame

		done, err := a.processFrame(cfg, s, frame)
		if err != nil {
			s.dropFrame()
			a.fail(s, err)
			return
		}
		if done {
			s.matchedAt, s.frame = frame, nil
			s.transition(StateMatched)
			return
		}
		s.dropFrame()

		wait(ctx, cfg.FrameInterval)
	}
}

// readFrame returns the next frame. A nil frame with a nil error means the
// read failed but may be retried.
func readFrame(cam capture.Camera, cfg Config, s *session) (*gocv.Mat, error) {
	frame, err := cam.ReadFrame()
	if err == nil {
		s.failures = 0
		return frame, nil
	}

	s.failures++
	log.Printf("session %s: read failed (%d/%d): %v", s.result.SessionID, s.failures, cfg.MaxCaptureFailures, err)
	if s.failures < cfg.MaxCaptureFailures {
		return nil, nil
	}
	if errors.Is(err, capture.ErrCapture) {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %v", capture.ErrCapture, err)
}

// processFrame detects and matches faces on one frame. It returns true on
// the first accepted match; the remaining faces are not evaluated.
func (a *App) processFrame(cfg Config, s *session, frame *gocv.Mat) (bool, error) {
	// Taken once per frame so a gallery swap is never observed mid-frame.
	g := cfg.Gallery.Snapshot()
	if g.Len() == 0 {
		return false, gallery.ErrEmptyGallery
	}

	result, err := cfg.Detector.Detect(frame)
	if err != nil {
		return false, fmt.Errorf("detect faces: %w", err)
	}
	s.result.Frames++

	report := FrameReport{
		Index:          s.result.Frames,
		GalleryVersion: g.Version(),
		Faces:          len(result.Faces),
	}
	defer func() {
		if cfg.OnFrame != nil {
			cfg.OnFrame(report)
		}
	}()

	for i, face := range result.Faces {
		d, err := cfg.Matcher.Match(g, face.Embedding)
		if err != nil {
			return false, err
		}
		report.Decisions = append(report.Decisions, d)
		if !d.Accepted {
			continue
		}

		s.decision = d
		s.box = result.OriginalBox(i)
		s.result.MatchedIdentity = d.Identity
		s.result.Distance = d.Distance
		s.result.GalleryVersion = g.Version()
		return true, nil
	}
	return false, nil
}

// fail moves the session to ERROR.
func (a *App) fail(s *session, err error) {
	s.result.Err = err
	s.result.Error = errorMessage(err)
	s.result.MatchedIdentity = ""
	s.result.TimedOut = false
	s.transition(StateError)
}

func (a *App) record(cfg Config, r SessionResult) {
	if cfg.Sessions == nil {
		return
	}
	distance := r.Distance
	if math.IsInf(distance, 0) || math.IsNaN(distance) {
		distance = 0
	}
	err := cfg.Sessions.Record(&store.Session{
		ID:           r.SessionID,
		State:        r.Outcome.String(),
		Identity:     r.MatchedIdentity,
		Distance:     distance,
		Frames:       r.Frames,
		TimedOut:     r.TimedOut,
		Error:        r.Error,
		HandoffError: r.PersonalizationError,
		StartedAt:    r.StartedAt,
		EndedAt:      r.EndedAt,
	})
	if err != nil {
		log.Printf("session %s: error recording session: %v", r.SessionID, err)
	}
}

// errorMessage maps an error to the message reported to callers.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, capture.ErrCapture):
		return MsgCaptureFailed
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return MsgDeviceUnavailable
	case errors.Is(err, gallery.ErrEmptyGallery):
		return MsgNoIdentities
	default:
		return err.Error()
	}
}

// wait sleeps for d or until ctx is done. It reports whether the full
// interval elapsed.
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

var labelColor = color.RGBA{G: 255, A: 255}

// annotate draws the match box and identity label on frame and returns it
// as JPEG.
func annotate(frame *gocv.Mat, box image.Rectangle, identity string) ([]byte, error) {
	gocv.Rectangle(frame, box, labelColor, 2)
	gocv.PutText(frame, "ID: "+identity, image.Pt(box.Min.X, box.Max.Y+30),
		gocv.FontHersheySimplex, 1.0, labelColor, 2)

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
