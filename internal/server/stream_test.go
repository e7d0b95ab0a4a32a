package server

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type snapshotSource struct {
	mu   sync.Mutex
	data []byte
}

func (s *snapshotSource) set(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = b
}

func (s *snapshotSource) get() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// readPart reads one multipart frame and returns its body.
func readPart(t *testing.T, r *bufio.Reader) string {
	t.Helper()

	var length int
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("reading part header: %v", err)
		}
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Content-Length:") {
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Content-Length:")))
			if err != nil {
				t.Fatalf("bad Content-Length %q", line)
			}
			length = n
		}
		if line == "" && length > 0 {
			break
		}
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		t.Fatalf("reading part body: %v", err)
	}
	return string(body)
}

func TestStreamHandler_WritesChangedSnapshots(t *testing.T) {
	src := &snapshotSource{}
	h := NewStreamHandler(src.get)
	h.interval = 10 * time.Millisecond

	ts := httptest.NewServer(h)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src.set([]byte("first-jpeg"))

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream error = %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Fatalf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	if got := readPart(t, r); got != "first-jpeg" {
		t.Errorf("first part = %q", got)
	}

	src.set([]byte("second-jpeg"))
	if got := readPart(t, r); got != "second-jpeg" {
		t.Errorf("second part = %q, want the changed snapshot only", got)
	}
}

func TestStreamHandler_MethodNotAllowed(t *testing.T) {
	h := NewStreamHandler(func() []byte { return nil })

	req := httptest.NewRequest(http.MethodPost, "/api/recognize/stream", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}
