// Package server provides the HTTP server for the Memora recognition service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ayusman/memora/internal/app"
	"github.com/ayusman/memora/internal/gallery"
	"github.com/ayusman/memora/internal/server/api"
	"github.com/ayusman/memora/internal/store"
)

// Event types published on /api/events.
const (
	EventSession = "session"
	EventGallery = "gallery"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	App       *app.App
	Hub       *EventHub
}

// Server represents the HTTP server for the Memora application.
type Server struct {
	config     Config
	router     *chi.Mux
	hub        *EventHub
	start      time.Time
	mu         sync.Mutex
	httpServer *http.Server
}

// New creates a new Server with the given configuration. When an App is
// configured, its session results are published to websocket clients.
func New(config Config) *Server {
	hub := config.Hub
	if hub == nil {
		hub = NewEventHub()
	}

	s := &Server{
		config: config,
		router: chi.NewRouter(),
		hub:    hub,
		start:  time.Now(),
	}

	if config.App != nil {
		config.App.OnResult(func(r app.SessionResult) {
			hub.Publish(EventSession, r)
		})
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/api/health", s.handleHealth)
	r.Handle("/api/events", s.hub)

	if s.config.App != nil {
		r.Post("/api/recognize", s.handleRecognize)
		r.Get("/api/recognize/snapshot", s.handleSnapshot)
		r.Handle("/api/recognize/stream", NewStreamHandler(s.config.App.LastSnapshot))
		r.Get("/api/gallery", s.handleGallery)
		r.Post("/api/gallery/rebuild", s.handleRebuild)
	}

	if s.config.Store != nil {
		var rebuilder api.Rebuilder
		if s.config.App != nil {
			rebuilder = notifyingRebuilder{app: s.config.App, hub: s.hub}
		}
		members := api.NewMemberHandler(s.config.Store, rebuilder)
		r.Route("/api/members", members.Routes)
		r.Get("/api/sessions", s.handleSessions)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		r.Handle("/*", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Hub returns the event hub.
func (s *Server) Hub() *EventHub {
	return s.hub
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.App != nil {
		g := s.config.App.Gallery().Snapshot()
		response["gallery_version"] = g.Version()
		response["gallery_entries"] = g.Len()
	}

	writeJSON(w, http.StatusOK, response)
}

type recognizeResponse struct {
	app.SessionResult
	Message string `json:"message,omitempty"`
}

// handleRecognize handles POST /api/recognize by running one session.
func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	result := s.config.App.RunSession(r.Context())

	status, message := recognizeStatus(result)
	writeJSON(w, status, recognizeResponse{SessionResult: result, Message: message})
}

// recognizeStatus maps a session outcome to an HTTP status.
func recognizeStatus(r app.SessionResult) (int, string) {
	switch {
	case r.Matched():
		return http.StatusOK, ""
	case r.TimedOut:
		return http.StatusNotFound, app.MsgNoFace
	case r.Error == app.MsgNoIdentities:
		return http.StatusPreconditionFailed, "No identities enrolled"
	case r.Error == app.MsgDeviceUnavailable:
		return http.StatusServiceUnavailable, "Camera unavailable"
	default:
		return http.StatusInternalServerError, "Recognition failed"
	}
}

// handleSnapshot returns the annotated frame of the last match.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	jpeg := s.config.App.LastSnapshot()
	if len(jpeg) == 0 {
		writeError(w, http.StatusNotFound, "No snapshot available")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	w.Write(jpeg)
}

type galleryResponse struct {
	Version     uint64    `json:"version"`
	Entries     int       `json:"entries"`
	Identities  []string  `json:"identities"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	BuiltAt     time.Time `json:"built_at"`
}

// handleGallery describes the active gallery snapshot.
func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	g := s.config.App.Gallery().Snapshot()
	identities := g.Identities()
	if identities == nil {
		identities = []string{}
	}
	writeJSON(w, http.StatusOK, galleryResponse{
		Version:     g.Version(),
		Entries:     g.Len(),
		Identities:  identities,
		Fingerprint: g.Fingerprint(),
		BuiltAt:     g.BuiltAt(),
	})
}

// handleRebuild rebuilds the gallery synchronously and returns the report.
func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	report, err := s.config.App.RebuildGallery(r.Context())
	switch {
	case errors.Is(err, app.ErrNoBuilder):
		writeError(w, http.StatusServiceUnavailable, "Gallery rebuild not available")
		return
	case errors.Is(err, gallery.ErrEmptyGallery):
		// An empty gallery is still published.
	case err != nil:
		log.Printf("gallery rebuild failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Gallery rebuild failed")
		return
	}

	s.hub.Publish(EventGallery, report)
	writeJSON(w, http.StatusOK, report)
}

// handleSessions lists recent recognition sessions.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	sessions, err := s.config.Store.Sessions().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	response := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		response = append(response, sessionResponse{
			ID:           sess.ID,
			State:        sess.State,
			Identity:     sess.Identity,
			Distance:     sess.Distance,
			Frames:       sess.Frames,
			TimedOut:     sess.TimedOut,
			Error:        sess.Error,
			HandoffError: sess.HandoffError,
			StartedAt:    sess.StartedAt.Format(time.RFC3339),
			EndedAt:      sess.EndedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": response})
}

type sessionResponse struct {
	ID           string  `json:"id"`
	State        string  `json:"state"`
	Identity     string  `json:"identity,omitempty"`
	Distance     float64 `json:"distance,omitempty"`
	Frames       int     `json:"frames"`
	TimedOut     bool    `json:"timed_out"`
	Error        string  `json:"error,omitempty"`
	HandoffError string  `json:"handoff_error,omitempty"`
	StartedAt    string  `json:"started_at"`
	EndedAt      string  `json:"ended_at"`
}

// notifyingRebuilder runs background rebuilds and publishes their outcome.
type notifyingRebuilder struct {
	app *app.App
	hub *EventHub
}

func (n notifyingRebuilder) RebuildInBackground() <-chan error {
	done := n.app.RebuildInBackground()
	out := make(chan error, 1)
	go func() {
		err := <-done
		g := n.app.Gallery().Snapshot()
		n.hub.Publish(EventGallery, map[string]any{
			"version": g.Version(),
			"entries": g.Len(),
		})
		out <- err
	}()
	return out
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// ListenAndServe starts the HTTP server on the given address and blocks
// until it stops.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	log.Printf("Starting web server on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	log.Println("Shutting down web server...")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}
