package geometry

import "math"

// EngageRadiusRatio is the engagement radius as a fraction of surface width.
// The zone is tied to width only, even on non-square surfaces.
const EngageRadiusRatio = 0.10

// IsEngaged reports whether p lies strictly within EngageRadiusRatio*width
// of the surface center.
func IsEngaged(p Point, width, height int) bool {
	cx := float64(width) / 2
	cy := float64(height) / 2
	return math.Hypot(p.X-cx, p.Y-cy) < EngageRadiusRatio*float64(width)
}

// EngagedHands returns the indices of hands whose fingertip is engaged.
// State is recomputed from scratch on every call; there is no hysteresis,
// so a fingertip sitting on the boundary may flicker between frames.
func EngagedHands(hands []MappedHand, width, height int) []int {
	var engaged []int
	for i, h := range hands {
		if IsEngaged(h.Fingertip(), width, height) {
			engaged = append(engaged, i)
		}
	}
	return engaged
}

// IsHandEngaged reports whether index i appears in ov.Engaged.
func (ov Overlay) IsHandEngaged(i int) bool {
	for _, e := range ov.Engaged {
		if e == i {
			return true
		}
	}
	return false
}
