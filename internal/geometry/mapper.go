// Package geometry converts detector output into pixel space and evaluates
// interaction against the render surface.
package geometry

import (
	"math"

	"github.com/ayusman/drishti/internal/detector"
)

// Point is a pixel-space position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned pixel-space rectangle.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// MappedHand is a hand skeleton in pixel space.
type MappedHand struct {
	Points     [detector.NumLandmarks]Point `json:"points"`
	Handedness string                       `json:"handedness"`
	Score      float64                      `json:"score"`
}

// Fingertip returns the index fingertip in pixel space.
func (h MappedHand) Fingertip() Point {
	return h.Points[detector.IndexTip]
}

// MappedObject is a detection clipped to the surface.
type MappedObject struct {
	Box        Rect                `json:"box"`
	Label      string              `json:"label"`
	Score      float64             `json:"score"`
	Categories []detector.Category `json:"categories"`
}

// Overlay is everything the renderer draws on top of a frame.
type Overlay struct {
	Mode    string         `json:"mode"`
	Width   int            `json:"width"`
	Height  int            `json:"height"`
	Hands   []MappedHand   `json:"hands,omitempty"`
	Objects []MappedObject `json:"objects,omitempty"`
	Engaged []int          `json:"engaged,omitempty"`
}

// MapLandmarks scales normalized landmarks to a width x height surface.
// Coordinates outside [0,1] are clamped so every point lands on the surface.
func MapLandmarks(hands []detector.HandLandmarks, width, height int) []MappedHand {
	w, h := float64(width), float64(height)
	out := make([]MappedHand, len(hands))
	for i, hand := range hands {
		out[i].Handedness = hand.Handedness
		out[i].Score = hand.Score
		for j, p := range hand.Points {
			out[i].Points[j] = Point{X: clamp01(p.X) * w, Y: clamp01(p.Y) * h}
		}
	}
	return out
}

// MapObjects clips detection boxes to a width x height surface. The surface
// may have been resized since the detector saw the frame, so boxes that end
// up with no area, or that carry non-finite coordinates, are discarded.
func MapObjects(dets []detector.Detection, width, height int) []MappedObject {
	w, h := float64(width), float64(height)
	out := make([]MappedObject, 0, len(dets))
	for _, d := range dets {
		top, ok := d.Top()
		if !ok {
			continue
		}
		b := d.Box
		if !finite(b.OriginX, b.OriginY, b.Width, b.Height) {
			continue
		}

		x0 := math.Max(b.OriginX, 0)
		y0 := math.Max(b.OriginY, 0)
		x1 := math.Min(b.OriginX+b.Width, w)
		y1 := math.Min(b.OriginY+b.Height, h)
		if x1 <= x0 || y1 <= y0 {
			continue
		}

		out = append(out, MappedObject{
			Box:        Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0},
			Label:      top.Label,
			Score:      top.Score,
			Categories: d.Categories,
		})
	}
	return out
}

// Map interprets res according to its mode against the surface size.
func Map(res *detector.Result, width, height int) Overlay {
	ov := Overlay{Mode: res.Mode.String(), Width: width, Height: height}
	switch res.Mode {
	case detector.ModeHands:
		ov.Hands = MapLandmarks(res.Hands, width, height)
	case detector.ModeObjects:
		ov.Objects = MapObjects(res.Objects, width, height)
	}
	return ov
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
