package server

import (
	"bytes"
	"fmt"
	"net/http"
	"time"
)

const streamPoll = 200 * time.Millisecond

// StreamHandler serves annotated match snapshots as MJPEG. A new part is
// written whenever the snapshot changes, so clients see each recognized
// face once.
type StreamHandler struct {
	source   func() []byte
	interval time.Duration
}

// NewStreamHandler creates a StreamHandler that polls source for JPEG data.
func NewStreamHandler(source func() []byte) *StreamHandler {
	return &StreamHandler{source: source, interval: streamPoll}
}

// ServeHTTP streams MJPEG frames until the client goes away.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flush(w)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last []byte
	for {
		if jpeg := h.source(); len(jpeg) > 0 && !bytes.Equal(jpeg, last) {
			if err := writePart(w, jpeg); err != nil {
				return
			}
			flush(w)
			last = jpeg
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func writePart(w http.ResponseWriter, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err := fmt.Fprint(w, "\r\n")
	return err
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
