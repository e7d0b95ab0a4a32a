package detector

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector and Encoder interfaces.
// It allows tests to control the detection results.
type MockDetector struct {
	mu        sync.Mutex
	results   []Result
	fallback  Result
	err       error
	calls     int
	encodings map[string][]float32
	onDetect  func(call int)
	closed    bool
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{
		fallback:  Result{Scale: DefaultScale},
		encodings: make(map[string][]float32),
	}
}

// SetFaces sets the faces returned by every Detect call that has no
// queued result.
func (m *MockDetector) SetFaces(faces []Face) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = Result{Faces: faces, Scale: DefaultScale}
}

// QueueResults sets results returned by successive Detect calls, in order.
// Once exhausted, Detect falls back to the faces set with SetFaces.
func (m *MockDetector) QueueResults(results ...Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, results...)
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// OnDetect registers a hook run at the start of each Detect call with the
// zero-based call index.
func (m *MockDetector) OnDetect(fn func(call int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDetect = fn
}

// SetEncoding makes Encode return embedding for the given image bytes.
func (m *MockDetector) SetEncoding(data []byte, embedding []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.encodings[string(data)] = embedding
}

// Detect returns the queued result, the configured faces, or the error.
func (m *MockDetector) Detect(frame *gocv.Mat) (Result, error) {
	m.mu.Lock()
	call := m.calls
	m.calls++
	hook := m.onDetect
	m.mu.Unlock()

	if hook != nil {
		hook(call)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return Result{Scale: DefaultScale}, m.err
	}
	if len(m.results) > 0 {
		r := m.results[0]
		m.results = m.results[1:]
		return r, nil
	}
	return m.fallback, nil
}

// Encode returns the embedding registered for data, or ErrNoFace.
func (m *MockDetector) Encode(data []byte) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.encodings[string(data)]
	if !ok {
		return nil, ErrNoFace
	}
	out := make([]float32, len(e))
	copy(out, e)
	return out, nil
}

// Calls returns how many times Detect was called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close marks the detector closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// FaceAt returns a Face with a square box of the given side at (x, y)
// in detection coordinates.
func FaceAt(x, y, side int, embedding []float32) Face {
	return Face{
		Box:       image.Rect(x, y, x+side, y+side),
		Embedding: embedding,
	}
}
