package main

import (
	"testing"

	"github.com/ayusman/memora/internal/capture"
	"github.com/ayusman/memora/internal/config"
)

func TestCameraFactory(t *testing.T) {
	tests := []struct {
		name    string
		fps     int
		wantFPS int
	}{
		{name: "configured rate", fps: 15, wantFPS: 15},
		{name: "zero keeps default", fps: 0, wantFPS: capture.DefaultFPS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			newCamera := cameraFactory(config.CameraConfig{Width: 640, Height: 480, FPS: tt.fps})
			cam := newCamera(3)

			if got := cam.FPS(); got != tt.wantFPS {
				t.Errorf("FPS() = %d, want %d", got, tt.wantFPS)
			}
			if got := cam.DeviceID(); got != 3 {
				t.Errorf("DeviceID() = %d, want 3", got)
			}
			if cam.IsOpen() {
				t.Error("camera should not be opened by the factory")
			}
		})
	}
}
