package capture

import (
	"time"

	"gocv.io/x/gocv"
)

// Frame is one decoded image from the camera stream. A Frame is never
// mutated after capture; whoever holds it must Close it exactly once.
type Frame struct {
	Mat       gocv.Mat
	Timestamp time.Time
}

// NewFrame wraps mat as a Frame captured at ts. The Frame takes ownership of mat.
func NewFrame(mat gocv.Mat, ts time.Time) *Frame {
	return &Frame{Mat: mat, Timestamp: ts}
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int {
	return f.Mat.Cols()
}

// Height returns the frame height in pixels.
func (f *Frame) Height() int {
	return f.Mat.Rows()
}

// Empty reports whether the frame has no decodable pixels.
func (f *Frame) Empty() bool {
	return f == nil || f.Mat.Empty()
}

// Clone returns an independent copy of the frame.
func (f *Frame) Clone() *Frame {
	return &Frame{Mat: f.Mat.Clone(), Timestamp: f.Timestamp}
}

// Close releases the underlying Mat.
func (f *Frame) Close() error {
	if f == nil {
		return nil
	}
	return f.Mat.Close()
}
