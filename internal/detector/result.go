package detector

import (
	"sort"
	"time"
)

// Category is one (label, confidence) guess for a detection.
type Category struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// BoundingBox locates a detection in pixel space of the frame given to the detector.
type BoundingBox struct {
	OriginX float64 `json:"originX"`
	OriginY float64 `json:"originY"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// Detection is one detected object. Categories are ranked by descending score.
type Detection struct {
	Box        BoundingBox `json:"box"`
	Categories []Category  `json:"categories"`
}

// Top returns the best-ranked category. ok is false when there is none.
func (d Detection) Top() (Category, bool) {
	if len(d.Categories) == 0 {
		return Category{}, false
	}
	return d.Categories[0], true
}

// Result is the output of one Detect call. Exactly one of Hands or Objects
// is meaningful, depending on the detector's mode.
type Result struct {
	Mode      Mode            `json:"-"`
	Hands     []HandLandmarks `json:"hands,omitempty"`
	Objects   []Detection     `json:"objects,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// FilterObjects ranks each detection's categories and drops detections
// without categories or whose top score is below minScore.
func FilterObjects(dets []Detection, minScore float64) []Detection {
	out := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if len(d.Categories) == 0 {
			continue
		}
		cats := append([]Category(nil), d.Categories...)
		sort.SliceStable(cats, func(i, j int) bool { return cats[i].Score > cats[j].Score })
		if cats[0].Score < minScore {
			continue
		}
		d.Categories = cats
		out = append(out, d)
	}
	return out
}
