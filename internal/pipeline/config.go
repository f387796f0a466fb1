package pipeline

import (
	"errors"
	"fmt"

	"github.com/ayusman/drishti/internal/capture"
	"github.com/ayusman/drishti/internal/detector"
)

// DefaultRefreshRate is the iteration ceiling in Hz, matching a typical
// display refresh.
const DefaultRefreshRate = 60

// ErrInvalidConfig is wrapped by Validate failures.
var ErrInvalidConfig = errors.New("invalid pipeline config")

// Config is fixed once the loop starts.
type Config struct {
	Mode           detector.Mode
	ScoreThreshold float64
	MaxHands       int

	Facing capture.Facing
	// DeviceID opens a specific device instead of selecting by Facing.
	DeviceID string

	// RefreshRate caps iterations per second.
	RefreshRate float64

	// Mirror flips frames horizontally before detection.
	Mirror bool

	// MotionThreshold is the changed-pixel percentage below which a frame
	// reuses the previous result instead of running detection. Zero disables
	// the gate.
	MotionThreshold float64
}

// DefaultConfig returns hands mode with rear camera preference.
func DefaultConfig() Config {
	return Config{
		Mode:           detector.ModeHands,
		ScoreThreshold: 0.5,
		MaxHands:       2,
		Facing:         capture.FacingEnvironment,
		RefreshRate:    DefaultRefreshRate,
	}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch c.Mode {
	case detector.ModeHands, detector.ModeObjects:
	default:
		return fmt.Errorf("%w: unknown mode %v", ErrInvalidConfig, c.Mode)
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return fmt.Errorf("%w: score threshold %v outside [0,1]", ErrInvalidConfig, c.ScoreThreshold)
	}
	if c.Mode == detector.ModeHands && c.MaxHands < 1 {
		return fmt.Errorf("%w: max hands must be at least 1", ErrInvalidConfig)
	}
	if c.RefreshRate <= 0 {
		return fmt.Errorf("%w: refresh rate must be positive", ErrInvalidConfig)
	}
	if c.MotionThreshold < 0 || c.MotionThreshold > 100 {
		return fmt.Errorf("%w: motion threshold %v outside [0,100]", ErrInvalidConfig, c.MotionThreshold)
	}
	return nil
}

// DetectorConfig derives the detector settings for this pipeline.
func (c Config) DetectorConfig() detector.Config {
	dc := detector.DefaultConfig()
	dc.Mode = c.Mode
	dc.MaxHands = c.MaxHands
	dc.MinConfidence = c.ScoreThreshold
	return dc
}
