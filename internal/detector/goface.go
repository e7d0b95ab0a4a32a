package detector

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Kagami/go-face"
	"gocv.io/x/gocv"
)

// ErrModelNotLoaded is returned when the detector is used after Close.
var ErrModelNotLoaded = errors.New("face recognition models not loaded")

// GoFaceDetector detects and encodes faces with dlib through go-face.
// The dlib recognizer is not safe for concurrent use, so calls are serialized.
type GoFaceDetector struct {
	rec    *face.Recognizer
	config Config
	id     string
	mu     sync.Mutex
}

// modelFiles are the dlib model files loaded from Config.ModelsDir.
var modelFiles = []string{
	"shape_predictor_5_face_landmarks.dat",
	"dlib_face_recognition_resnet_model_v1.dat",
	"mmod_human_face_detector.dat",
}

// NewGoFaceDetector loads the dlib models from config.ModelsDir.
// The directory must contain shape_predictor_5_face_landmarks.dat,
// dlib_face_recognition_resnet_model_v1.dat and mmod_human_face_detector.dat.
func NewGoFaceDetector(config Config) (*GoFaceDetector, error) {
	if config.Scale <= 0 || config.Scale > 1 {
		config.Scale = DefaultScale
	}
	if config.MaxEnrollSide <= 0 {
		config.MaxEnrollSide = DefaultConfig().MaxEnrollSide
	}

	rec, err := face.NewRecognizer(config.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load models from %s: %w", config.ModelsDir, err)
	}

	return &GoFaceDetector{rec: rec, config: config, id: encoderID(config)}, nil
}

// ID identifies the settings enrollment embeddings are computed with: the
// enrollment size limit plus the name and size of each model file. Galleries
// encoded under a different ID must not be reused.
func (d *GoFaceDetector) ID() string {
	return d.id
}

func encoderID(config Config) string {
	parts := []string{fmt.Sprintf("goface:max_side=%d", config.MaxEnrollSide)}
	for _, name := range modelFiles {
		size := int64(-1)
		if info, err := os.Stat(filepath.Join(config.ModelsDir, name)); err == nil {
			size = info.Size()
		}
		parts = append(parts, fmt.Sprintf("%s=%d", name, size))
	}
	return strings.Join(parts, ";")
}

// Detect downscales the frame by the configured factor and returns the faces
// found on it. Boxes are in downscaled coordinates; use Result.OriginalBox or
// Rescale to map them back.
func (d *GoFaceDetector) Detect(frame *gocv.Mat) (Result, error) {
	result := Result{Scale: d.config.Scale}
	if frame == nil || frame.Empty() {
		return result, nil
	}

	small := gocv.NewMat()
	defer small.Close()
	gocv.Resize(*frame, &small, image.Point{}, d.config.Scale, d.config.Scale, gocv.InterpolationLinear)

	buf, err := gocv.IMEncode(".jpg", small)
	if err != nil {
		return result, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	faces, err := d.recognize(buf.GetBytes())
	if err != nil {
		return result, err
	}

	result.Faces = make([]Face, len(faces))
	for i, f := range faces {
		result.Faces[i] = Face{
			Box:       f.Rectangle,
			Embedding: descriptorToEmbedding(f.Descriptor),
		}
	}
	return result, nil
}

// Encode normalizes an enrollment image and returns the embedding of its
// largest face. It returns ErrNoFace when no face is found.
func (d *GoFaceDetector) Encode(data []byte) ([]float32, error) {
	normalized, err := NormalizeImage(data, d.config.MaxEnrollSide)
	if err != nil {
		return nil, err
	}

	faces, err := d.recognize(normalized)
	if err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		return nil, ErrNoFace
	}

	boxes := make([]image.Rectangle, len(faces))
	for i, f := range faces {
		boxes[i] = f.Rectangle
	}
	return descriptorToEmbedding(faces[largest(boxes)].Descriptor), nil
}

func (d *GoFaceDetector) recognize(jpeg []byte) ([]face.Face, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.rec == nil {
		return nil, ErrModelNotLoaded
	}

	faces, err := d.rec.Recognize(jpeg)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}
	return faces, nil
}

// Close releases the dlib recognizer.
func (d *GoFaceDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.rec != nil {
		d.rec.Close()
		d.rec = nil
	}
	return nil
}

func descriptorToEmbedding(desc face.Descriptor) []float32 {
	out := make([]float32, len(desc))
	copy(out, desc[:])
	return out
}
