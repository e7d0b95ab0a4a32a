package plugin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// scriptPlugin writes a shell script plugin into a temp dir.
func scriptPlugin(t *testing.T, name, script string, events ...string) *Plugin {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, name+".sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return &Plugin{
		Manifest: Manifest{
			Name:       name,
			Version:    "1.0.0",
			Executable: name + ".sh",
			Events:     events,
		},
		Path:       dir,
		Executable: path,
	}
}

func TestExecutor_Execute(t *testing.T) {
	plugin := scriptPlugin(t, "test-plugin", `cat <<'EOF'
{"success":true,"data":{"message":"hello world"}}
EOF
`)

	executor := NewExecutor(5 * time.Second)
	response, err := executor.Execute(context.Background(), plugin, &Request{Event: EventRecognized})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if !response.Success {
		t.Errorf("expected success=true, got false")
	}
	if response.Error != "" {
		t.Errorf("expected empty error, got %q", response.Error)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(response.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}
	if data["message"] != "hello world" {
		t.Errorf("expected message 'hello world', got %v", data["message"])
	}
}

func TestExecutor_Execute_ReadsStdin(t *testing.T) {
	plugin := scriptPlugin(t, "echo-plugin", `INPUT=$(cat)
echo "{\"success\":true,\"data\":{\"received\":$INPUT}}"
`)

	request := &Request{
		Event:    EventRecognized,
		Identity: "m-1",
		Config:   json.RawMessage(`{"setting":"enabled"}`),
		Payload:  json.RawMessage(`{"member":{"name":"Asha"}}`),
	}

	executor := NewExecutor(5 * time.Second)
	response, err := executor.Execute(context.Background(), plugin, request)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	var data struct {
		Received struct {
			Event    string `json:"event"`
			Identity string `json:"identity"`
			Payload  struct {
				Member struct {
					Name string `json:"name"`
				} `json:"member"`
			} `json:"payload"`
		} `json:"received"`
	}
	if err := json.Unmarshal(response.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}

	if data.Received.Event != EventRecognized {
		t.Errorf("expected event %q, got %q", EventRecognized, data.Received.Event)
	}
	if data.Received.Identity != "m-1" {
		t.Errorf("expected identity 'm-1', got %q", data.Received.Identity)
	}
	if data.Received.Payload.Member.Name != "Asha" {
		t.Errorf("expected member 'Asha', got %q", data.Received.Payload.Member.Name)
	}
}

func TestExecutor_RunsInPluginDir(t *testing.T) {
	plugin := scriptPlugin(t, "pwd-plugin", `cat >/dev/null
echo "{\"success\":true,\"data\":\"$(pwd)\"}"
`)

	response, err := NewExecutor(5*time.Second).Execute(context.Background(), plugin, &Request{})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	var dir string
	json.Unmarshal(response.Data, &dir)
	want, _ := filepath.EvalSymlinks(plugin.Path)
	got, _ := filepath.EvalSymlinks(dir)
	if got != want {
		t.Errorf("plugin ran in %q, want %q", got, want)
	}
}

func TestExecutor_Timeout(t *testing.T) {
	plugin := scriptPlugin(t, "slow-plugin", `sleep 10
echo '{"success":true}'
`)

	executor := NewExecutor(100 * time.Millisecond)
	_, err := executor.Execute(context.Background(), plugin, &Request{})
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout error, got: %v", err)
	}
}

func TestExecutor_Execute_Failures(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"InvalidJSON", "echo 'not valid json'\n"},
		{"NonZeroExit", "echo 'Error: something failed' >&2\nexit 1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plugin := scriptPlugin(t, "bad-plugin", tt.script)
			if _, err := NewExecutor(5*time.Second).Execute(context.Background(), plugin, &Request{}); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestExecutor_Execute_ErrorResponse(t *testing.T) {
	plugin := scriptPlugin(t, "error-plugin", `echo '{"success":false,"error":"something went wrong"}'
`)

	response, err := NewExecutor(5*time.Second).Execute(context.Background(), plugin, &Request{})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if response.Success {
		t.Errorf("expected success=false, got true")
	}
	if response.Error != "something went wrong" {
		t.Errorf("expected error 'something went wrong', got %q", response.Error)
	}
}

func TestNewExecutor(t *testing.T) {
	if got := NewExecutor(3 * time.Second).timeout; got != 3*time.Second {
		t.Errorf("timeout = %s, want 3s", got)
	}
	if got := NewExecutor(0).timeout; got != DefaultTimeout {
		t.Errorf("timeout = %s, want %s", got, DefaultTimeout)
	}
}
