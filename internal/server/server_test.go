package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ayusman/drishti/internal/logging"
	"github.com/ayusman/drishti/internal/pipeline"
	"github.com/ayusman/drishti/internal/render"
)

// fakeSurface serves a fixed JPEG, or ErrEmptySurface until one is set.
type fakeSurface struct {
	mu    sync.Mutex
	data  []byte
	calls int
}

func newFakeSurface(t *testing.T, w, h int) *fakeSurface {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{G: 0xFF, A: 0xFF})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return &fakeSurface{data: buf.Bytes()}
}

func (s *fakeSurface) EncodeJPEG() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.data == nil {
		return nil, render.ErrEmptySurface
	}
	return s.data, nil
}

type fakePipeline struct {
	state pipeline.State
	stats pipeline.Stats
}

func (p fakePipeline) State() pipeline.State { return p.state }
func (p fakePipeline) Stats() pipeline.Stats { return p.stats }

func TestServer_Health(t *testing.T) {
	s := New(Config{Logger: logging.Discard()})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		contentType := rec.Header().Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", contentType)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}
		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
		if response["pipeline"] != "idle" {
			t.Errorf("expected pipeline 'idle' without a pipeline, got %v", response["pipeline"])
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_HealthReportsPipeline(t *testing.T) {
	s := New(Config{
		Pipeline: fakePipeline{state: pipeline.StateRunning, stats: pipeline.Stats{Iterations: 10, Rendered: 9, Failures: 1}},
		Overlays: NewOverlayHub(),
		Logger:   logging.Discard(),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var response healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Pipeline != "running" {
		t.Errorf("pipeline = %q, want running", response.Pipeline)
	}
	if response.Stats == nil || response.Stats.Rendered != 9 || response.Stats.Failures != 1 {
		t.Errorf("stats = %+v", response.Stats)
	}
}

func TestServer_NotFound(t *testing.T) {
	s := New(Config{Logger: logging.Discard()})

	for _, path := range []string{"/api/nonexistent", "/api/stream", "/api/overlay", "/api/sessions"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d when unconfigured, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

func TestServer_Snapshot(t *testing.T) {
	surface := newFakeSurface(t, 640, 480)
	s := New(Config{Surface: surface, Logger: logging.Discard()})

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantWidth  int
		wantHeight int
	}{
		{"full size", "", http.StatusOK, 640, 480},
		{"downscaled", "?width=320", http.StatusOK, 320, 240},
		{"wider than surface is unchanged", "?width=1280", http.StatusOK, 640, 480},
		{"invalid width", "?width=abc", http.StatusBadRequest, 0, 0},
		{"zero width", "?width=0", http.StatusBadRequest, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/snapshot"+tt.query, nil)
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
				t.Errorf("Content-Type = %q", ct)
			}
			cfg, err := jpeg.DecodeConfig(rec.Body)
			if err != nil {
				t.Fatalf("response is not a JPEG: %v", err)
			}
			if cfg.Width != tt.wantWidth || cfg.Height != tt.wantHeight {
				t.Errorf("size = %dx%d, want %dx%d", cfg.Width, cfg.Height, tt.wantWidth, tt.wantHeight)
			}
		})
	}
}

func TestServer_SnapshotBeforeFirstFrame(t *testing.T) {
	s := New(Config{Surface: &fakeSurface{}, Logger: logging.Discard()})

	req := httptest.NewRequest(http.MethodGet, "/api/snapshot", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestServer_StaticFiles(t *testing.T) {
	tmpDir := t.TempDir()

	testContent := "<html><body>Hello, World!</body></html>"
	if err := os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	s := New(Config{StaticDir: tmpDir, Logger: logging.Discard()})

	t.Run("serves index.html at root path", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if rec.Body.String() != testContent {
			t.Errorf("expected body %q, got %q", testContent, rec.Body.String())
		}
	})

	t.Run("returns 404 for non-existent static files", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/nonexistent.html", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}
