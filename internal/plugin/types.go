// Package plugin runs external executables that are notified about
// recognition events.
package plugin

import "encoding/json"

// EventRecognized is sent after a session matched an enrolled identity.
const EventRecognized = "recognized"

// Manifest describes a plugin's metadata and the events it handles.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"`
	Events       []string        `json:"events"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
	Config       json.RawMessage `json:"config,omitempty"`
}

// Handles reports whether the plugin subscribed to event.
func (m Manifest) Handles(event string) bool {
	for _, e := range m.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Request is written to the plugin's stdin as JSON.
type Request struct {
	Event    string          `json:"event"`
	Identity string          `json:"identity,omitempty"`
	Config   json.RawMessage `json:"config,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Response is read from the plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
