// Package main provides a plugin that appends each recognition to a
// JSON-lines log file.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Request represents the input from the plugin executor.
type Request struct {
	Event    string          `json:"event"`
	Identity string          `json:"identity"`
	Config   json.RawMessage `json:"config"`
	Payload  json.RawMessage `json:"payload"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type pluginConfig struct {
	File string `json:"file"`
}

type entry struct {
	Time     time.Time       `json:"time"`
	Event    string          `json:"event"`
	Identity string          `json:"identity"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

const defaultFile = "recognitions.log"

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	cfg := pluginConfig{File: defaultFile}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeErrorResponse(fmt.Sprintf("invalid config: %v", err))
			return
		}
		if cfg.File == "" {
			cfg.File = defaultFile
		}
	}

	if req.Identity == "" {
		writeErrorResponse("missing identity")
		return
	}

	if err := appendEntry(cfg.File, entry{
		Time:     time.Now().UTC(),
		Event:    req.Event,
		Identity: req.Identity,
		Payload:  req.Payload,
	}); err != nil {
		writeErrorResponse(fmt.Sprintf("write log: %v", err))
		return
	}

	writeSuccessResponse()
}

// appendEntry writes e as one line to path.
func appendEntry(path string, e entry) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(e)
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse() {
	json.NewEncoder(os.Stdout).Encode(Response{Success: true})
}
