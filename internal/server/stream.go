package server

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"strconv"
	"time"

	"github.com/disintegration/gift"

	"github.com/ayusman/drishti/internal/render"
)

// StreamHandler serves the rendered surface as MJPEG.
type StreamHandler struct {
	surface  FrameEncoder
	interval time.Duration
}

// NewStreamHandler creates a new StreamHandler reading from surface.
func NewStreamHandler(surface FrameEncoder, interval time.Duration) *StreamHandler {
	return &StreamHandler{surface: surface, interval: interval}
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		data, err := h.surface.EncodeJPEG()
		if err == nil {
			fmt.Fprintf(w, "--frame\r\n")
			fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
			fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(data))
			if _, err := w.Write(data); err != nil {
				return
			}
			fmt.Fprintf(w, "\r\n")

			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// SnapshotHandler serves the current surface as a single JPEG.
type SnapshotHandler struct {
	surface FrameEncoder
}

// NewSnapshotHandler creates a new SnapshotHandler reading from surface.
func NewSnapshotHandler(surface FrameEncoder) *SnapshotHandler {
	return &SnapshotHandler{surface: surface}
}

// ServeHTTP handles GET /api/snapshot[?width=N]. A width smaller than the
// surface downscales the image, preserving aspect ratio.
func (h *SnapshotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	width := 0
	if v := r.URL.Query().Get("width"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid width", http.StatusBadRequest)
			return
		}
		width = n
	}

	data, err := h.surface.EncodeJPEG()
	if err != nil {
		if errors.Is(err, render.ErrEmptySurface) {
			http.Error(w, "No frame rendered yet", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "Failed to encode frame", http.StatusInternalServerError)
		return
	}

	if width > 0 {
		data, err = downscaleJPEG(data, width)
		if err != nil {
			http.Error(w, "Failed to scale frame", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(data)
}

// downscaleJPEG resizes data to width pixels wide. Images already at or
// below that width are returned unchanged.
func downscaleJPEG(data []byte, width int) ([]byte, error) {
	src, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if src.Bounds().Dx() <= width {
		return data, nil
	}

	g := gift.New(gift.Resize(width, 0, gift.LanczosResampling))
	dst := image.NewRGBA(g.Bounds(src.Bounds()))
	g.Draw(dst, src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
