package app

import (
	"sort"

	"github.com/ayusman/drishti/internal/geometry"
	"github.com/ayusman/drishti/internal/store"
)

// engagementTracker turns per-frame engaged sets into enter and leave
// transitions. Hands are identified by their index in the overlay.
type engagementTracker struct {
	engaged map[int]geometry.Point
}

func newEngagementTracker() *engagementTracker {
	return &engagementTracker{engaged: make(map[int]geometry.Point)}
}

// Update compares ov against the previous overlay and returns the
// transitions, entries before leaves, each ordered by hand index.
func (t *engagementTracker) Update(ov geometry.Overlay) []store.Engagement {
	now := make(map[int]geometry.Point, len(ov.Engaged))
	for _, i := range ov.Engaged {
		if i >= 0 && i < len(ov.Hands) {
			now[i] = ov.Hands[i].Fingertip()
		}
	}

	var events []store.Engagement
	for _, i := range sortedKeys(now) {
		if _, was := t.engaged[i]; !was {
			p := now[i]
			events = append(events, store.Engagement{Hand: i, Kind: store.EngagementEnter, X: p.X, Y: p.Y})
		}
	}
	for _, i := range sortedKeys(t.engaged) {
		if _, still := now[i]; still {
			continue
		}
		// Report where the fingertip went, or where it was last engaged
		// if the hand is gone.
		p := t.engaged[i]
		if i < len(ov.Hands) {
			p = ov.Hands[i].Fingertip()
		}
		events = append(events, store.Engagement{Hand: i, Kind: store.EngagementLeave, X: p.X, Y: p.Y})
	}

	t.engaged = now
	return events
}

// Engaged reports whether any hand is currently engaged.
func (t *engagementTracker) Engaged() bool {
	return len(t.engaged) > 0
}

// Reset forgets all engaged hands.
func (t *engagementTracker) Reset() {
	t.engaged = make(map[int]geometry.Point)
}

func sortedKeys(m map[int]geometry.Point) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
