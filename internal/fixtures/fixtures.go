// Package fixtures provides deterministic embeddings and frames for tests.
package fixtures

import (
	"fmt"
	"math"
	"math/rand"

	"gocv.io/x/gocv"
)

// EmbeddingSize matches the dlib descriptor length.
const EmbeddingSize = 128

// Embedding returns a unit-length 128-d vector derived from seed.
// The same seed always yields the same vector.
func Embedding(seed int64) []float32 {
	r := rand.New(rand.NewSource(seed))
	v := make([]float32, EmbeddingSize)
	var norm float64
	for i := range v {
		x := r.NormFloat64()
		v[i] = float32(x)
		norm += x * x
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// Offset returns a copy of base moved by delta along the first axis, so its
// Euclidean distance from base is delta.
func Offset(base []float32, delta float32) []float32 {
	out := make([]float32, len(base))
	copy(out, base)
	if len(out) > 0 {
		out[0] += delta
	}
	return out
}

// Frame returns a solid grey BGR frame of the given size.
// The caller must Close it.
func Frame(width, height int) *gocv.Mat {
	mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	mat.SetTo(gocv.NewScalar(128, 128, 128, 0))
	return &mat
}

// Frames returns n frames of the given size.
func Frames(n, width, height int) []*gocv.Mat {
	frames := make([]*gocv.Mat, n)
	for i := range frames {
		frames[i] = Frame(width, height)
	}
	return frames
}

// CloseAll closes every frame.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}

// DecodeFrame decodes encoded image bytes into a frame.
func DecodeFrame(data []byte) (*gocv.Mat, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("decode frame: empty image")
	}
	return &mat, nil
}
