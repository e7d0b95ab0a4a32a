package capture

import (
	"errors"
	"testing"

	"gocv.io/x/gocv"
)

func TestMockCamera_Playback(t *testing.T) {
	frame1 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame1.Close()
	frame2 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame2.Close()

	cam := NewMockCameraOnDevice(90, []*gocv.Mat{&frame1, &frame2}, false)

	if err := cam.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer cam.Close()

	f1, err := cam.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	f1.Close()

	f2, err := cam.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	f2.Close()

	// Third read should fail (no loop)
	_, err = cam.ReadFrame()
	if !errors.Is(err, ErrCapture) {
		t.Errorf("ReadFrame() after last frame error = %v, want ErrCapture", err)
	}
}

func TestMockCamera_Loop(t *testing.T) {
	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	cam := NewMockCameraOnDevice(91, []*gocv.Mat{&frame}, true)
	cam.Open()
	defer cam.Close()

	for i := 0; i < 5; i++ {
		f, err := cam.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() iteration %d error = %v", i, err)
		}
		f.Close()
	}
}

func TestMockCamera_FailReads(t *testing.T) {
	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()

	cam := NewMockCameraOnDevice(92, []*gocv.Mat{&frame}, true)
	if err := cam.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer cam.Close()

	cam.FailReads(2)
	for i := 0; i < 2; i++ {
		if _, err := cam.ReadFrame(); !errors.Is(err, ErrCapture) {
			t.Fatalf("read %d error = %v, want ErrCapture", i, err)
		}
	}

	f, err := cam.ReadFrame()
	if err != nil {
		t.Fatalf("read after scripted failures error = %v", err)
	}
	f.Close()

	if got := cam.Reads(); got != 3 {
		t.Errorf("Reads() = %d, want 3", got)
	}
}

func TestMockCamera_CloseIsIdempotent(t *testing.T) {
	cam := NewMockCameraOnDevice(93, nil, false)
	if err := cam.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := cam.Close(); err != nil {
			t.Errorf("Close() call %d error = %v", i, err)
		}
	}

	if got := cam.Releases(); got != 1 {
		t.Errorf("Releases() = %d, want 1", got)
	}
	if got := cam.CloseCalls(); got != 3 {
		t.Errorf("CloseCalls() = %d, want 3", got)
	}
	if InUse(93) {
		t.Error("device still claimed after Close()")
	}
}

func TestMockCamera_DeviceExclusivity(t *testing.T) {
	first := NewMockCameraOnDevice(94, nil, false)
	second := NewMockCameraOnDevice(94, nil, false)

	if err := first.Open(); err != nil {
		t.Fatalf("first Open() error = %v", err)
	}

	if err := second.Open(); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("second Open() error = %v, want ErrDeviceUnavailable", err)
	}
	if second.IsOpen() {
		t.Error("second camera should not be open")
	}

	first.Close()

	if err := second.Open(); err != nil {
		t.Fatalf("Open() after release error = %v", err)
	}
	second.Close()
}

func TestMockCamera_OpenError(t *testing.T) {
	cam := NewMockCameraOnDevice(95, nil, false)
	cam.SetOpenError(errors.New("no such device"))

	if err := cam.Open(); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("Open() error = %v, want ErrDeviceUnavailable", err)
	}
	if InUse(95) {
		t.Error("failed Open() must not claim the device")
	}
}
