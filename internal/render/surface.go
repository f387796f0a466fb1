// Package render draws frames and detection overlays onto a render surface.
package render

import (
	"errors"
	"image"
	"image/color"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/drishti/internal/capture"
)

// Surface is the drawable presentation target. Drawing is visible as soon
// as a call returns; there is no buffering beyond what the presenter adds.
type Surface interface {
	Size() (width, height int)
	Resize(width, height int)
	Clear()
	DrawFrame(frame *capture.Frame)
	StrokeRect(r image.Rectangle, c color.RGBA, thickness int)
	FillText(text string, at image.Point, c color.RGBA)
	DrawLine(from, to image.Point, c color.RGBA, thickness int)
	DrawPoint(at image.Point, radius int, c color.RGBA)
}

// ErrEmptySurface is returned when encoding a surface that has never been drawn.
var ErrEmptySurface = errors.New("surface is empty")

// MatSurface is a Surface backed by an OpenCV Mat. Readers such as the
// stream handler take snapshots concurrently with drawing.
type MatSurface struct {
	mu  sync.RWMutex
	mat gocv.Mat
}

// NewMatSurface creates a black surface of the given size.
func NewMatSurface(width, height int) *MatSurface {
	s := &MatSurface{mat: gocv.NewMat()}
	if width > 0 && height > 0 {
		s.mat = blank(width, height)
	}
	return s
}

func (s *MatSurface) Size() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mat.Cols(), s.mat.Rows()
}

func (s *MatSurface) Resize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mat.Close()
	s.mat = blank(width, height)
}

func (s *MatSurface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mat.SetTo(gocv.NewScalar(0, 0, 0, 0))
}

// DrawFrame copies the frame as background. A size mismatch is stretched to
// fit; the renderer resizes the surface first so this only happens when the
// surface is driven directly.
func (s *MatSurface) DrawFrame(frame *capture.Frame) {
	if frame.Empty() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if frame.Width() == s.mat.Cols() && frame.Height() == s.mat.Rows() {
		frame.Mat.CopyTo(&s.mat)
		return
	}
	gocv.Resize(frame.Mat, &s.mat, image.Pt(s.mat.Cols(), s.mat.Rows()), 0, 0, gocv.InterpolationLinear)
}

func (s *MatSurface) StrokeRect(r image.Rectangle, c color.RGBA, thickness int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gocv.Rectangle(&s.mat, r, c, thickness)
}

func (s *MatSurface) FillText(text string, at image.Point, c color.RGBA) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gocv.PutText(&s.mat, text, at, gocv.FontHersheySimplex, 0.5, c, 1)
}

func (s *MatSurface) DrawLine(from, to image.Point, c color.RGBA, thickness int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gocv.Line(&s.mat, from, to, c, thickness)
}

func (s *MatSurface) DrawPoint(at image.Point, radius int, c color.RGBA) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gocv.Circle(&s.mat, at, radius, c, -1)
}

// EncodeJPEG returns the current surface contents as JPEG.
func (s *MatSurface) EncodeJPEG() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.mat.Empty() {
		return nil, ErrEmptySurface
	}

	buf, err := gocv.IMEncode(".jpg", s.mat)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	src := buf.GetBytes()
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

// Snapshot returns a copy of the surface. The caller must Close it.
func (s *MatSurface) Snapshot() gocv.Mat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mat.Clone()
}

// Close releases the backing Mat.
func (s *MatSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mat.Close()
}

func blank(width, height int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), height, width, gocv.MatTypeCV8UC3)
}
