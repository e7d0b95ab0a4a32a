package capture

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// MockCamera plays back pre-recorded frames for testing.
// It claims its device index like a real camera so exclusivity can be tested.
type MockCamera struct {
	deviceID  int
	frames    []*gocv.Mat
	index     int
	loop      bool
	mu        sync.Mutex
	running   bool
	openErr   error
	failNext  int
	reads     int
	releases  int
	closeCall int
}

// NewMockCamera creates a MockCamera on device 0.
func NewMockCamera(frames []*gocv.Mat, loop bool) *MockCamera {
	return NewMockCameraOnDevice(0, frames, loop)
}

// NewMockCameraOnDevice creates a MockCamera bound to the given device index.
func NewMockCameraOnDevice(deviceID int, frames []*gocv.Mat, loop bool) *MockCamera {
	return &MockCamera{
		deviceID: deviceID,
		frames:   frames,
		loop:     loop,
	}
}

func (c *MockCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}
	if c.openErr != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, c.openErr)
	}
	if err := claim(c.deviceID); err != nil {
		return err
	}
	c.running = true
	c.index = 0
	return nil
}

func (c *MockCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeCall++
	if !c.running {
		return nil
	}
	c.running = false
	c.releases++
	release(c.deviceID)
	return nil
}

func (c *MockCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil, ErrCameraNotOpen
	}
	c.reads++

	if c.failNext > 0 {
		c.failNext--
		return nil, fmt.Errorf("%w: scripted read failure", ErrCapture)
	}

	if len(c.frames) == 0 {
		return nil, fmt.Errorf("%w: no frames available", ErrCapture)
	}

	if c.index >= len(c.frames) {
		if c.loop {
			c.index = 0
		} else {
			return nil, fmt.Errorf("%w: no more frames", ErrCapture)
		}
	}

	// Clone the frame so the original isn't modified
	frame := c.frames[c.index].Clone()
	c.index++

	return &frame, nil
}

func (c *MockCamera) SetFPS(fps int) {}
func (c *MockCamera) FPS() int       { return 15 }
func (c *MockCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
func (c *MockCamera) DeviceID() int { return c.deviceID }

// SetFrames replaces the frame sequence
func (c *MockCamera) SetFrames(frames []*gocv.Mat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = frames
	c.index = 0
}

// SetOpenError makes the next Open calls fail with ErrDeviceUnavailable.
func (c *MockCamera) SetOpenError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openErr = err
}

// FailReads makes the next n reads fail with ErrCapture.
func (c *MockCamera) FailReads(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = n
}

// Reads returns the number of ReadFrame calls made while open.
func (c *MockCamera) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// Releases returns how many times the device was actually released.
func (c *MockCamera) Releases() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releases
}

// CloseCalls returns how many times Close was called.
func (c *MockCamera) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCall
}

// Reset restarts playback from the beginning
func (c *MockCamera) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = 0
}
