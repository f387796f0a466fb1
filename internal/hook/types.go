// Package hook runs external executables when a hand engages with or
// leaves the target region.
package hook

import (
	"encoding/json"
	"time"
)

// Event kinds delivered to hooks.
const (
	EventEnter = "enter"
	EventLeave = "leave"
)

// ManifestName is the file each hook directory must contain.
const ManifestName = "hook.json"

// Manifest describes a hook and the events it wants.
type Manifest struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Executable  string   `json:"executable"`
	// Events lists the event kinds to deliver. Empty means all.
	Events []string        `json:"events,omitempty"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Event is written to the hook's stdin as JSON.
type Event struct {
	Kind      string          `json:"kind"`
	SessionID string          `json:"session_id,omitempty"`
	Mode      string          `json:"mode"`
	Hand      int             `json:"hand"`
	X         float64         `json:"x"`
	Y         float64         `json:"y"`
	Width     int             `json:"width"`
	Height    int             `json:"height"`
	At        time.Time       `json:"at"`
	Config    json.RawMessage `json:"config,omitempty"`
}

// Response is read from the hook's stdout. A hook that prints nothing is
// treated as successful.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Hook is a discovered hook with its manifest and location.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Handles reports whether the hook subscribed to kind.
func (h *Hook) Handles(kind string) bool {
	if len(h.Manifest.Events) == 0 {
		return true
	}
	for _, k := range h.Manifest.Events {
		if k == kind {
			return true
		}
	}
	return false
}
