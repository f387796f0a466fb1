package detector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gocv.io/x/gocv"
)

var (
	// ErrNotReady is returned by Detect while the model is still loading.
	// Callers skip the frame rather than treat it as a failure.
	ErrNotReady = errors.New("detector not ready")
	// ErrClosed is returned by Detect after Close.
	ErrClosed = errors.New("detector closed")
)

// Detector defines the interface for per-frame inference implementations.
// Implementations handle one Detect call at a time.
type Detector interface {
	// Open performs one-time model bootstrap. It is safe to call more than once.
	Open(ctx context.Context) error

	// Detect analyzes a video frame and returns the structured result for
	// the configured mode. The frame must not be modified.
	Detect(ctx context.Context, frame *gocv.Mat) (*Result, error)

	// Close releases any resources held by the detector. It is idempotent.
	Close() error
}

// Mode selects what the detector looks for.
type Mode int

const (
	// ModeHands detects hand landmarks.
	ModeHands Mode = iota
	// ModeObjects detects labeled bounding boxes.
	ModeObjects
)

// String returns the mode name used on the command line and on the wire.
func (m Mode) String() string {
	switch m {
	case ModeHands:
		return "hands"
	case ModeObjects:
		return "objects"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode parses "hands" or "objects".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "hands", "hand":
		return ModeHands, nil
	case "objects", "object":
		return ModeObjects, nil
	}
	return ModeHands, fmt.Errorf("unknown detection mode %q", s)
}

// RunningMode selects per-image or streaming inference semantics.
type RunningMode string

const (
	RunningModeImage RunningMode = "IMAGE"
	RunningModeVideo RunningMode = "VIDEO"
)

// Config holds configuration options for detection.
type Config struct {
	Mode Mode

	// MaxHands is the maximum number of hands to detect (default: 2).
	MaxHands int

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	// In object mode it is the score threshold.
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64

	// ModelAsset is the model file the service loads. Empty lets the service pick its default.
	ModelAsset string

	RunningMode RunningMode
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Mode:            ModeHands,
		MaxHands:        2,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
		RunningMode:     RunningModeImage,
	}
}
