// Package detector finds faces in video frames and encodes them as embeddings.
package detector

import (
	"errors"
	"image"
	"math"

	"gocv.io/x/gocv"
)

// EmbeddingSize is the length of the descriptors produced by the dlib
// face recognition model.
const EmbeddingSize = 128

// DefaultScale is the factor applied to each frame dimension before detection.
const DefaultScale = 0.25

// ErrNoFace is returned by Encode when an enrollment image contains no face.
var ErrNoFace = errors.New("no face found in image")

// ErrInvalidImage is returned by Encode when an enrollment image cannot be decoded.
var ErrInvalidImage = errors.New("invalid enrollment image")

// Face is one detected face. Box is in the coordinate space of the frame
// the detection ran on, which may be downscaled.
type Face struct {
	Box       image.Rectangle `json:"box"`
	Embedding []float32       `json:"-"`
}

// Result holds the faces found in one frame, order-correspondent with their
// embeddings. Scale is the factor the frame was resized by before detection.
type Result struct {
	Faces []Face
	Scale float64
}

// Empty reports whether no faces were detected.
func (r Result) Empty() bool {
	return len(r.Faces) == 0
}

// OriginalBox returns face i's bounding box mapped onto the full-resolution frame.
func (r Result) OriginalBox(i int) image.Rectangle {
	return Rescale(r.Faces[i].Box, r.Scale)
}

// Detector defines the interface for face detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns the faces in it.
	// A frame without faces yields an empty Result, not an error.
	Detect(frame *gocv.Mat) (Result, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Encoder turns a single enrollment image into one embedding.
type Encoder interface {
	Encode(data []byte) ([]float32, error)
}

// Config holds configuration options for face detection.
type Config struct {
	// ModelsDir holds the dlib model files.
	ModelsDir string

	// Scale is the resize factor applied before detection (default 0.25).
	Scale float64

	// MaxEnrollSide bounds the longest side of enrollment images (default 1024).
	MaxEnrollSide int
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		ModelsDir:     "models",
		Scale:         DefaultScale,
		MaxEnrollSide: 1024,
	}
}

// Rescale maps a box detected on a frame resized by scale back onto the
// original frame. With the default scale of 0.25 every coordinate is
// multiplied by 4. A non-positive scale leaves the box unchanged.
func Rescale(box image.Rectangle, scale float64) image.Rectangle {
	if scale <= 0 || scale == 1 {
		return box
	}
	inv := 1 / scale
	return image.Rect(
		int(math.Round(float64(box.Min.X)*inv)),
		int(math.Round(float64(box.Min.Y)*inv)),
		int(math.Round(float64(box.Max.X)*inv)),
		int(math.Round(float64(box.Max.Y)*inv)),
	)
}

// largest returns the index of the face with the biggest box area, or -1.
func largest(boxes []image.Rectangle) int {
	best, bestArea := -1, -1
	for i, b := range boxes {
		if area := b.Dx() * b.Dy(); area > bestArea {
			best, bestArea = i, area
		}
	}
	return best
}
