// Package capture provides camera capture functionality using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Default camera settings
const (
	DefaultFPS    = 5
	DefaultWidth  = 1280
	DefaultHeight = 720
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")

	// ErrDeviceUnavailable is returned when a camera device cannot be acquired,
	// either because it failed to open or because another handle holds it.
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrCapture is returned when a single frame read fails. It is transient;
	// the caller decides whether to retry.
	ErrCapture = errors.New("capture failed")
)

// Camera defines the interface for camera capture implementations.
//
// A Camera holds its device exclusively between Open and Close. Close is
// idempotent and must be safe to call on every exit path.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
	DeviceID() int
}

// Factory creates a Camera for a device index.
type Factory func(deviceID int) Camera

// cameraImpl manages video capture from a camera device using GoCV.
type cameraImpl struct {
	deviceID int
	capture  *gocv.VideoCapture
	mu       sync.Mutex
	running  bool
	fps      int
	width    int
	height   int
}

// NewCamera creates a new Camera with the given device ID.
// The default FPS is 5 for performance reasons.
func NewCamera(deviceID int) Camera {
	return &cameraImpl{
		deviceID: deviceID,
		fps:      DefaultFPS,
		width:    DefaultWidth,
		height:   DefaultHeight,
	}
}

// NewCameraWithSize creates a Camera that requests the given capture resolution.
func NewCameraWithSize(deviceID, width, height int) Camera {
	c := NewCamera(deviceID).(*cameraImpl)
	if width > 0 && height > 0 {
		c.width = width
		c.height = height
	}
	return c
}

// Open claims the device and opens it for capturing frames.
// A second Open on a device already held by another handle fails with
// ErrDeviceUnavailable.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	if err := claim(c.deviceID); err != nil {
		return err
	}

	capture, err := gocv.OpenVideoCapture(c.deviceID)
	if err != nil {
		release(c.deviceID)
		return fmt.Errorf("%w: device %d: %v", ErrDeviceUnavailable, c.deviceID, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		release(c.deviceID)
		return fmt.Errorf("%w: device %d could not be opened", ErrDeviceUnavailable, c.deviceID)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(c.width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(c.height))
	capture.Set(gocv.VideoCaptureFPS, float64(c.fps))

	c.capture = capture
	c.running = true

	return nil
}

// Close closes the camera and releases the device. Calling Close on a camera
// that is already closed is a no-op.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false
	release(c.deviceID)

	return err
}

// ReadFrame reads a single frame from the camera.
// The caller is responsible for closing the returned Mat.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		return nil, fmt.Errorf("%w: failed to read frame from camera", ErrCapture)
	}

	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("%w: captured frame is empty", ErrCapture)
	}

	return &mat, nil
}

// SetFPS sets the frames per second for capture.
// Values less than or equal to 0 are ignored.
func (c *cameraImpl) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fps = fps

	if c.capture != nil {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the current frames per second setting.
func (c *cameraImpl) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fps
}

// IsOpen returns true if the camera is currently open and running.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}

// DeviceID returns the device index this camera captures from.
func (c *cameraImpl) DeviceID() int {
	return c.deviceID
}
