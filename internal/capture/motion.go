package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Motion gate constants
const (
	// GaussianBlurSize is the kernel size for Gaussian blur (21x21)
	GaussianBlurSize = 21
	// DiffThreshold is the per-pixel intensity change counted as motion
	DiffThreshold = 25
)

// MotionGate reports whether a frame differs enough from the previous one
// to be worth running inference on. It compares blurred grayscale frames.
type MotionGate struct {
	threshold float64
	prevGray  gocv.Mat
	primed    bool
	mu        sync.Mutex
}

// NewMotionGate creates a gate that opens when more than threshold percent
// of pixels changed between consecutive frames.
func NewMotionGate(threshold float64) *MotionGate {
	return &MotionGate{
		threshold: threshold,
		prevGray:  gocv.NewMat(),
	}
}

// Check compares frame against the previous frame and returns whether the
// gate is open along with the changed-pixel percentage. The first frame, and
// any frame whose size differs from the baseline, always opens the gate.
func (g *MotionGate) Check(frame *Frame) (bool, float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Mat.Channels() > 1 {
		gocv.CvtColor(frame.Mat, &gray, gocv.ColorBGRToGray)
	} else {
		frame.Mat.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: GaussianBlurSize, Y: GaussianBlurSize}, 0, 0, gocv.BorderDefault)

	if !g.primed || blurred.Rows() != g.prevGray.Rows() || blurred.Cols() != g.prevGray.Cols() {
		g.swapBaseline(blurred)
		return true, 100
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, g.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, DiffThreshold, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(thresh)) / float64(thresh.Rows()*thresh.Cols()) * 100.0
	g.swapBaseline(blurred)

	return changed > g.threshold, changed
}

// swapBaseline takes ownership of m as the new baseline.
func (g *MotionGate) swapBaseline(m gocv.Mat) {
	g.prevGray.Close()
	g.prevGray = m
	g.primed = true
}

// Reset forgets the baseline so the next frame opens the gate.
func (g *MotionGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prevGray.Close()
	g.prevGray = gocv.NewMat()
	g.primed = false
}

// Close releases the baseline frame. The gate may be used again afterwards.
func (g *MotionGate) Close() {
	g.Reset()
}
