package capture

import (
	"fmt"
	"sync"
)

// devices tracks which device indexes currently have an open handle.
var devices = struct {
	mu   sync.Mutex
	held map[int]bool
}{held: make(map[int]bool)}

// claim marks a device as held. It fails with ErrDeviceUnavailable if
// another handle already holds it.
func claim(deviceID int) error {
	devices.mu.Lock()
	defer devices.mu.Unlock()

	if devices.held[deviceID] {
		return fmt.Errorf("%w: device %d is in use", ErrDeviceUnavailable, deviceID)
	}
	devices.held[deviceID] = true
	return nil
}

// release frees a device previously claimed.
func release(deviceID int) {
	devices.mu.Lock()
	defer devices.mu.Unlock()

	delete(devices.held, deviceID)
}

// InUse reports whether a handle is currently open for the device.
func InUse(deviceID int) bool {
	devices.mu.Lock()
	defer devices.mu.Unlock()

	return devices.held[deviceID]
}
