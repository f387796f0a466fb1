// Package server provides the HTTP presentation layer for drishti: health,
// the rendered surface as MJPEG and JPEG, the overlay websocket feed and the
// session log.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ayusman/drishti/internal/logging"
	"github.com/ayusman/drishti/internal/pipeline"
	"github.com/ayusman/drishti/internal/server/api"
	"github.com/ayusman/drishti/internal/store"
)

// FrameEncoder yields the current rendered surface as JPEG.
// render.MatSurface implements it.
type FrameEncoder interface {
	EncodeJPEG() ([]byte, error)
}

// PipelineStatus reports the state of the running pipeline.
type PipelineStatus interface {
	State() pipeline.State
	Stats() pipeline.Stats
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Surface   FrameEncoder
	Pipeline  PipelineStatus
	Overlays  *OverlayHub

	// StreamInterval is the delay between MJPEG parts. Zero means ~15 FPS.
	StreamInterval time.Duration

	Logger *log.Logger
}

// Server represents the HTTP server for the drishti application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	logger *log.Logger
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.StreamInterval <= 0 {
		config.StreamInterval = 66 * time.Millisecond
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.WithPrefix("server")
	}

	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Store != nil {
		sessions := api.NewSessionHandler(s.config.Store)
		s.mux.Handle("/api/sessions", sessions)
		s.mux.Handle("/api/sessions/", sessions)
	}

	if s.config.Surface != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Surface, s.config.StreamInterval))
		s.mux.Handle("/api/snapshot", NewSnapshotHandler(s.config.Surface))
	}

	if s.config.Overlays != nil {
		s.mux.Handle("/api/overlay", s.config.Overlays)
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type healthResponse struct {
	Status   string          `json:"status"`
	Uptime   string          `json:"uptime"`
	Pipeline string          `json:"pipeline"`
	Stats    *pipeline.Stats `json:"stats,omitempty"`
	Clients  int             `json:"overlay_clients"`
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := healthResponse{
		Status:   "ok",
		Uptime:   time.Since(s.start).String(),
		Pipeline: pipeline.StateIdle.String(),
	}
	if p := s.config.Pipeline; p != nil {
		response.Pipeline = p.State().String()
		stats := p.Stats()
		response.Stats = &stats
	}
	if s.config.Overlays != nil {
		response.Clients = s.config.Overlays.ClientCount()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("listening", "addr", addr)
	return http.ListenAndServe(addr, s)
}
