package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/drishti/internal/capture"
	"github.com/ayusman/drishti/internal/detector"
	"github.com/ayusman/drishti/internal/geometry"
	"github.com/ayusman/drishti/internal/hook"
	"github.com/ayusman/drishti/internal/logging"
	"github.com/ayusman/drishti/internal/pipeline"
	"github.com/ayusman/drishti/internal/render"
	"github.com/ayusman/drishti/internal/store"
)

// testRig records every capture and detector the app creates.
type testRig struct {
	mu        sync.Mutex
	frame     gocv.Mat
	captures  []*capture.MockCapture
	detectors []*detector.MockDetector
	hands     []detector.HandLandmarks
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	r := &testRig{
		frame: gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 480, 640, gocv.MatTypeCV8UC3),
	}
	t.Cleanup(func() { r.frame.Close() })
	return r
}

func (r *testRig) opener(dev capture.Device) (capture.VideoCapture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := capture.NewMockCapture([]*gocv.Mat{&r.frame}, true, 2*time.Millisecond)
	r.captures = append(r.captures, c)
	return c, nil
}

func (r *testRig) newDetector(cfg detector.Config) (detector.Detector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := detector.NewMockDetector()
	d.SetHands(r.hands)
	r.detectors = append(r.detectors, d)
	return d, nil
}

func (r *testRig) lastDetector() *detector.MockDetector {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.detectors[len(r.detectors)-1]
}

func newTestApp(t *testing.T, rig *testRig, dataDir string) *App {
	t.Helper()

	cfg := Config{Pipeline: pipeline.DefaultConfig(), DataDir: dataDir}
	cfg.Pipeline.RefreshRate = 200

	a, err := New(cfg, Options{
		Lister: capture.StaticLister{
			{ID: "/dev/video0", Label: "Integrated Front Camera", Index: 0},
			{ID: "/dev/video2", Label: "USB Camera", Index: 2},
		},
		Opener:      rig.opener,
		NewDetector: rig.newDetector,
		Surface:     render.NewRecorder(0, 0),
		Logger:      logging.Discard(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestApp_StartRendersAndRecordsSession(t *testing.T) {
	rig := newTestRig(t)
	rig.hands = []detector.HandLandmarks{detector.PointingAt(0.2, 0.2)}
	a := newTestApp(t, rig, t.TempDir())

	if a.State() != pipeline.StateIdle {
		t.Fatalf("state before Start = %s", a.State())
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if a.Device().ID != "/dev/video2" {
		t.Errorf("opened %q, want the non-front camera", a.Device().ID)
	}

	waitFor(t, "rendered frames", func() bool { return a.Stats().Rendered >= 3 })
	if a.State() != pipeline.StateRunning {
		t.Errorf("state = %s, want running", a.State())
	}

	sessions, err := a.Store().Sessions().List(0)
	if err != nil || len(sessions) != 1 {
		t.Fatalf("sessions = %v, err = %v", sessions, err)
	}
	if sessions[0].Mode != "hands" || sessions[0].Device != "/dev/video2" {
		t.Errorf("session = %+v", sessions[0])
	}
	if last, _ := a.Store().Settings().Get(store.SettingLastDevice); last != "/dev/video2" {
		t.Errorf("last device setting = %q", last)
	}

	a.Stop()

	if a.State() != pipeline.StateStopped {
		t.Errorf("state after Stop = %s", a.State())
	}
	if n := rig.captures[0].CloseCount(); n != 1 {
		t.Errorf("capture closed %d times, want 1", n)
	}
	if n := rig.lastDetector().CloseCount(); n != 1 {
		t.Errorf("detector closed %d times, want 1", n)
	}

	ended, err := a.Store().Sessions().GetByID(sessions[0].ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if ended.EndedAt == nil || ended.Rendered < 3 {
		t.Errorf("ended session = %+v", ended)
	}
}

func TestApp_EngagementEvents(t *testing.T) {
	rig := newTestRig(t)
	rig.hands = []detector.HandLandmarks{detector.PointingAt(0.5, 0.5)}
	a := newTestApp(t, rig, t.TempDir())

	var mu sync.Mutex
	var changes []bool
	a.OnEngagementChange(func(engaged bool) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, engaged)
	})

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "engagement", a.Engaged)

	rig.lastDetector().SetHands([]detector.HandLandmarks{detector.PointingAt(0.0, 0.0)})
	waitFor(t, "disengagement", func() bool { return !a.Engaged() })

	sessions, _ := a.Store().Sessions().List(0)
	events, err := a.Store().Engagements().ListBySession(sessions[0].ID)
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	if len(events) != 2 || events[0].Kind != store.EngagementEnter || events[1].Kind != store.EngagementLeave {
		t.Fatalf("events = %+v", events)
	}
	if events[0].X != 320 || events[0].Y != 240 {
		t.Errorf("enter at (%v,%v), want center", events[0].X, events[0].Y)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 2 || !changes[0] || changes[1] {
		t.Errorf("engagement changes = %v, want [true false]", changes)
	}
}

func TestApp_StartFailureLeavesAppIdle(t *testing.T) {
	rig := newTestRig(t)
	cfg := Config{Pipeline: pipeline.DefaultConfig(), DataDir: t.TempDir()}
	a, err := New(cfg, Options{
		Lister:      capture.StaticLister{},
		Opener:      rig.opener,
		NewDetector: rig.newDetector,
		Surface:     render.NewRecorder(0, 0),
		Logger:      logging.Discard(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	err = a.Start(context.Background())
	if !errors.Is(err, capture.ErrDeviceUnavailable) {
		t.Fatalf("Start = %v, want ErrDeviceUnavailable", err)
	}
	if a.IsRunning() {
		t.Error("app running after failed start")
	}
	if sessions, _ := a.Store().Sessions().List(0); len(sessions) != 0 {
		t.Errorf("failed start recorded %d sessions", len(sessions))
	}
}

func TestApp_ToggleBuildsFreshPipeline(t *testing.T) {
	rig := newTestRig(t)
	a := newTestApp(t, rig, "")

	ctx := context.Background()
	if err := a.Toggle(ctx); err != nil {
		t.Fatalf("Toggle on: %v", err)
	}
	if !a.IsRunning() {
		t.Fatal("not running after first toggle")
	}
	if err := a.Toggle(ctx); err != nil {
		t.Fatalf("Toggle off: %v", err)
	}
	if a.IsRunning() {
		t.Fatal("still running after second toggle")
	}
	if err := a.Toggle(ctx); err != nil {
		t.Fatalf("Toggle on again: %v", err)
	}
	waitFor(t, "second run renders", func() bool { return a.Stats().Rendered > 0 })

	rig.mu.Lock()
	captures, detectors := len(rig.captures), len(rig.detectors)
	rig.mu.Unlock()
	if captures != 2 || detectors != 2 {
		t.Errorf("created %d captures and %d detectors, want 2 each", captures, detectors)
	}
	if a.Store() != nil {
		t.Error("store opened without a data dir")
	}
}

func TestApp_HealthReflectsPipeline(t *testing.T) {
	rig := newTestRig(t)
	a := newTestApp(t, rig, "")

	ts := httptest.NewServer(a.Handler())
	defer ts.Close()

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "running", func() bool { return a.State() == pipeline.StateRunning })

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	resp2, err := http.Get(ts.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("GET sessions: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("sessions served without a store: %d", resp2.StatusCode)
	}
}

func TestApp_EngagementHooks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	hookDir := t.TempDir()
	dir := filepath.Join(hookDir, "record")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	manifest := `{"name":"record","executable":"run.sh","events":["enter"]}`
	if err := os.WriteFile(filepath.Join(dir, hook.ManifestName), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	script := "#!/bin/sh\ncat >> events.log\necho >> events.log\n"
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	rig := newTestRig(t)
	rig.hands = []detector.HandLandmarks{detector.PointingAt(0.5, 0.5)}

	cfg := Config{Pipeline: pipeline.DefaultConfig(), DataDir: t.TempDir(), HookDir: hookDir}
	cfg.Pipeline.RefreshRate = 200
	a, err := New(cfg, Options{
		Lister:      capture.StaticLister{{ID: "/dev/video0", Label: "Camera", Index: 0}},
		Opener:      rig.opener,
		NewDetector: rig.newDetector,
		Surface:     render.NewRecorder(0, 0),
		Logger:      logging.Discard(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "engagement", a.Engaged)
	rig.lastDetector().SetHands(nil)
	waitFor(t, "disengagement", func() bool { return !a.Engaged() })

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "events.log"))
	if err != nil {
		t.Fatalf("hook never ran: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("hook ran %d times, want 1 (enter only): %q", len(lines), data)
	}
	var ev hook.Event
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Kind != hook.EventEnter || ev.Mode != "hands" || ev.X != 320 || ev.Width != 640 || ev.SessionID == "" {
		t.Errorf("event = %+v", ev)
	}
}

func TestEngagementTracker(t *testing.T) {
	hand := func(x, y float64) geometry.MappedHand {
		var h geometry.MappedHand
		h.Points[detector.IndexTip] = geometry.Point{X: x, Y: y}
		return h
	}

	tr := newEngagementTracker()

	events := tr.Update(geometry.Overlay{Hands: []geometry.MappedHand{hand(320, 240), hand(10, 10)}, Engaged: []int{0}})
	if len(events) != 1 || events[0].Kind != store.EngagementEnter || events[0].Hand != 0 {
		t.Fatalf("first update = %+v", events)
	}
	if !tr.Engaged() {
		t.Error("tracker should be engaged")
	}

	if events := tr.Update(geometry.Overlay{Hands: []geometry.MappedHand{hand(321, 240)}, Engaged: []int{0}}); len(events) != 0 {
		t.Errorf("steady engagement produced %+v", events)
	}

	events = tr.Update(geometry.Overlay{Hands: []geometry.MappedHand{hand(400, 240), hand(320, 240)}, Engaged: []int{1}})
	if len(events) != 2 {
		t.Fatalf("swap produced %+v", events)
	}
	if events[0].Kind != store.EngagementEnter || events[0].Hand != 1 {
		t.Errorf("expected enter for hand 1 first, got %+v", events[0])
	}
	if events[1].Kind != store.EngagementLeave || events[1].Hand != 0 || events[1].X != 400 {
		t.Errorf("expected leave for hand 0 at its new position, got %+v", events[1])
	}

	events = tr.Update(geometry.Overlay{})
	if len(events) != 1 || events[0].Kind != store.EngagementLeave || events[0].X != 320 {
		t.Errorf("vanished hand leave = %+v", events)
	}
	if tr.Engaged() {
		t.Error("tracker still engaged with no hands")
	}
}
