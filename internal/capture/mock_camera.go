package capture

import (
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MockCapture plays back pre-recorded frames as a VideoCapture.
type MockCapture struct {
	frames   []*gocv.Mat
	index    int
	loop     bool
	interval time.Duration
	mu       sync.Mutex
	closed   int
	props    map[gocv.VideoCaptureProperties]float64
}

// NewMockCapture returns a capture that yields frames in order, one per
// interval, restarting from the first frame when loop is set.
func NewMockCapture(frames []*gocv.Mat, loop bool, interval time.Duration) *MockCapture {
	return &MockCapture{
		frames:   frames,
		loop:     loop,
		interval: interval,
		props:    make(map[gocv.VideoCaptureProperties]float64),
	}
}

// Read copies the next frame into m. It returns false when no frame is left.
func (c *MockCapture) Read(m *gocv.Mat) bool {
	if c.interval > 0 {
		time.Sleep(c.interval)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed > 0 || len(c.frames) == 0 {
		return false
	}
	if c.index >= len(c.frames) {
		if !c.loop {
			return false
		}
		c.index = 0
	}

	c.frames[c.index].CopyTo(m)
	c.index++
	return true
}

// SetProperty records the property for inspection.
func (c *MockCapture) SetProperty(prop gocv.VideoCaptureProperties, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.props[prop] = value
}

// Property returns a property recorded by SetProperty.
func (c *MockCapture) Property(prop gocv.VideoCaptureProperties) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.props[prop]
}

// Close marks the capture closed.
func (c *MockCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

// CloseCount returns how many times Close was called.
func (c *MockCapture) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Opener returns a CaptureOpener that always hands out c and records the
// device it was asked to open.
func (c *MockCapture) Opener(opened *Device) CaptureOpener {
	return func(dev Device) (VideoCapture, error) {
		if opened != nil {
			*opened = dev
		}
		return c, nil
	}
}
