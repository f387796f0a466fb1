// Package app wires capture, detection, rendering, storage and the HTTP
// presentation layer into the drishti application.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ayusman/drishti/internal/capture"
	"github.com/ayusman/drishti/internal/detector"
	"github.com/ayusman/drishti/internal/geometry"
	"github.com/ayusman/drishti/internal/hook"
	"github.com/ayusman/drishti/internal/logging"
	"github.com/ayusman/drishti/internal/pipeline"
	"github.com/ayusman/drishti/internal/render"
	"github.com/ayusman/drishti/internal/server"
	"github.com/ayusman/drishti/internal/store"
)

// DatabaseName is the sqlite file created under Config.DataDir.
const DatabaseName = "drishti.db"

const hookDrainTimeout = 2 * time.Second

// DetectorFactory builds a detector for one pipeline run.
type DetectorFactory func(cfg detector.Config) (detector.Detector, error)

// Config holds configuration options for the application.
type Config struct {
	Pipeline pipeline.Config

	// ModelAsset overrides the detector's default model.
	ModelAsset string

	// Capture resolution and rate requested from the device.
	Width  int
	Height int
	FPS    int

	// DataDir holds the session database. Empty disables persistence.
	DataDir   string
	StaticDir string

	// HookDir holds engagement hooks. Empty disables them.
	HookDir     string
	HookTimeout time.Duration
}

// Options injects collaborators, mainly for tests. Zero values select the
// production implementations.
type Options struct {
	Lister      capture.DeviceLister
	Opener      capture.CaptureOpener
	NewDetector DetectorFactory
	Surface     render.Surface
	Scheduler   pipeline.Scheduler
	Logger      *log.Logger
}

// App owns at most one pipeline at a time. A stopped pipeline cannot be
// restarted, so every Start builds a fresh source, detector and loop.
type App struct {
	config   Config
	opts     Options
	logger   *log.Logger
	store    *store.Store
	surface  render.Surface
	renderer *render.Renderer
	hub      *server.OverlayHub
	server   *server.Server
	hooks    *hook.Dispatcher

	mu     sync.RWMutex
	loop   *pipeline.Loop
	source *capture.Source

	// evMu guards engagement state touched from the loop goroutine.
	evMu      sync.Mutex
	session   *store.Session
	tracker   *engagementTracker
	engaged   bool
	listeners []func(engaged bool)
}

// New creates an App. It opens the session store when a data directory is
// configured but does not touch the camera until Start.
func New(config Config, opts Options) (*App, error) {
	if err := config.Pipeline.Validate(); err != nil {
		return nil, err
	}
	if opts.Lister == nil {
		opts.Lister = capture.SysfsLister{}
	}
	if opts.NewDetector == nil {
		opts.NewDetector = newDefaultDetector
	}
	if opts.Scheduler == nil {
		opts.Scheduler = pipeline.NewRateScheduler(config.Pipeline.RefreshRate)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.WithPrefix("app")
	}

	a := &App{
		config:  config,
		opts:    opts,
		logger:  logger,
		surface: opts.Surface,
		hub:     server.NewOverlayHub(),
		tracker: newEngagementTracker(),
	}
	if a.surface == nil {
		a.surface = render.NewMatSurface(0, 0)
	}
	a.renderer = render.NewRenderer(a.surface, render.DefaultStyle())

	if config.DataDir != "" {
		if err := os.MkdirAll(config.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		st, err := store.New(filepath.Join(config.DataDir, DatabaseName))
		if err != nil {
			return nil, err
		}
		a.store = st
	}

	if config.HookDir != "" {
		mgr := hook.NewManager(config.HookDir)
		if err := mgr.Discover(); err != nil {
			a.closeStore()
			return nil, fmt.Errorf("failed to load hooks: %w", err)
		}
		a.hooks = hook.NewDispatcher(mgr, hook.NewExecutor(config.HookTimeout), hook.DefaultQueueSize)
	}

	srvConfig := server.Config{
		StaticDir: config.StaticDir,
		Store:     a.store,
		Pipeline:  a,
		Overlays:  a.hub,
	}
	if enc, ok := a.surface.(server.FrameEncoder); ok {
		srvConfig.Surface = enc
	}
	a.server = server.New(srvConfig)

	return a, nil
}

// newDefaultDetector prefers MediaPipe and falls back to the mock detector
// so the rest of the pipeline still runs without a Python environment.
func newDefaultDetector(cfg detector.Config) (detector.Detector, error) {
	mp, err := detector.NewMediaPipeDetector(cfg)
	if err == nil {
		logging.WithPrefix("app").Info("using MediaPipe detection", "mode", cfg.Mode)
		return mp, nil
	}
	logging.WithPrefix("app").Warn("MediaPipe not available, using mock detector", "err", err)
	m := detector.NewMockDetector()
	if cfg.Mode == detector.ModeObjects {
		m.SetObjects(nil)
	}
	return m, nil
}

// Start builds and starts a pipeline. Starting a running app is a no-op.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.loop != nil && a.loop.State() != pipeline.StateStopped {
		return nil
	}

	dc := a.config.Pipeline.DetectorConfig()
	dc.ModelAsset = a.config.ModelAsset
	det, err := a.opts.NewDetector(dc)
	if err != nil {
		return fmt.Errorf("create detector: %w", err)
	}

	source := capture.NewSource(capture.Options{
		Lister: a.opts.Lister,
		Opener: a.opts.Opener,
		Width:  a.config.Width,
		Height: a.config.Height,
		FPS:    a.config.FPS,
		Mirror: a.config.Pipeline.Mirror,
		Logger: a.opts.Logger,
	})

	loop, err := pipeline.New(a.config.Pipeline, source, det, a.renderer, pipeline.Options{
		Scheduler: a.opts.Scheduler,
		Observer:  a,
		Logger:    a.opts.Logger,
	})
	if err != nil {
		det.Close()
		return err
	}

	// Overlays from the new loop wait on evMu until the session exists.
	a.evMu.Lock()
	a.tracker.Reset()
	if err := loop.Start(ctx); err != nil {
		a.evMu.Unlock()
		return err
	}
	a.session = a.beginSession(source.Device())
	a.evMu.Unlock()

	a.loop, a.source = loop, source
	a.logger.Info("pipeline started", "device", source.Device().ID, "label", source.Device().Label)
	return nil
}

func (a *App) beginSession(dev capture.Device) *store.Session {
	if a.store == nil {
		return nil
	}

	sess := &store.Session{Mode: a.config.Pipeline.Mode.String(), Device: dev.ID}
	if err := a.store.Sessions().Create(sess); err != nil {
		a.logger.Warn("failed to record session", "err", err)
		return nil
	}

	settings := a.store.Settings()
	if err := settings.Set(store.SettingLastDevice, dev.ID); err != nil {
		a.logger.Warn("failed to save setting", "key", store.SettingLastDevice, "err", err)
	}
	if err := settings.Set(store.SettingLastMode, sess.Mode); err != nil {
		a.logger.Warn("failed to save setting", "key", store.SettingLastMode, "err", err)
	}
	return sess
}

// Stop halts the pipeline and releases the camera and detector.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.loop == nil || a.loop.State() == pipeline.StateStopped {
		return
	}
	a.loop.Stop()
	stats := a.loop.Stats()

	a.evMu.Lock()
	sess := a.session
	a.session = nil
	a.tracker.Reset()
	changed := a.engaged
	a.engaged = false
	listeners := append([]func(bool){}, a.listeners...)
	a.evMu.Unlock()

	if sess != nil {
		if err := a.store.Sessions().End(sess.ID, time.Now(), int64(stats.Rendered), int64(stats.Failures)); err != nil {
			a.logger.Warn("failed to close session", "id", sess.ID, "err", err)
		}
	}
	if changed {
		for _, fn := range listeners {
			fn(false)
		}
	}

	a.logger.Info("pipeline stopped", "rendered", stats.Rendered, "failures", stats.Failures)
}

// Toggle starts a stopped app or stops a running one.
func (a *App) Toggle(ctx context.Context) error {
	if a.IsRunning() {
		a.Stop()
		return nil
	}
	return a.Start(ctx)
}

// IsRunning reports whether a pipeline is initializing or running.
func (a *App) IsRunning() bool {
	s := a.State()
	return s == pipeline.StateInitializing || s == pipeline.StateRunning
}

// State returns the current pipeline state, Idle before the first Start.
func (a *App) State() pipeline.State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.loop == nil {
		return pipeline.StateIdle
	}
	return a.loop.State()
}

// Stats returns the counters of the current or last pipeline.
func (a *App) Stats() pipeline.Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.loop == nil {
		return pipeline.Stats{}
	}
	return a.loop.Stats()
}

// Device returns the device opened by the current pipeline.
func (a *App) Device() capture.Device {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.source == nil {
		return capture.Device{}
	}
	return a.source.Device()
}

// Devices enumerates the available video inputs.
func (a *App) Devices() ([]capture.Device, error) {
	return a.opts.Lister.VideoInputs()
}

// OnOverlay implements pipeline.Observer. It fans the overlay out to
// websocket clients and records engagement transitions.
func (a *App) OnOverlay(ov geometry.Overlay) {
	a.hub.Publish(ov)

	a.evMu.Lock()
	events := a.tracker.Update(ov)
	engaged := a.tracker.Engaged()
	changed := engaged != a.engaged
	a.engaged = engaged
	sess := a.session
	listeners := a.listeners
	a.evMu.Unlock()

	now := time.Now()
	for i := range events {
		e := &events[i]
		e.At = now
		a.logger.Debug("engagement", "hand", e.Hand, "kind", e.Kind, "x", e.X, "y", e.Y)
		if sess != nil {
			e.SessionID = sess.ID
			if err := a.store.Engagements().Record(e); err != nil {
				a.logger.Warn("failed to record engagement", "err", err)
			}
		}
		if a.hooks != nil {
			a.hooks.Dispatch(hook.Event{
				Kind:      string(e.Kind),
				SessionID: e.SessionID,
				Mode:      ov.Mode,
				Hand:      e.Hand,
				X:         e.X,
				Y:         e.Y,
				Width:     ov.Width,
				Height:    ov.Height,
				At:        e.At,
			})
		}
	}

	if changed {
		for _, fn := range listeners {
			fn(engaged)
		}
	}
}

// OnDetectError implements pipeline.Observer.
func (a *App) OnDetectError(err error) {
	a.logger.Debug("detector error", "err", err)
}

// OnEngagementChange registers fn to be called whenever the app goes from
// no engaged hand to at least one, or back.
func (a *App) OnEngagementChange(fn func(engaged bool)) {
	a.evMu.Lock()
	defer a.evMu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// Engaged reports whether any hand is currently engaged.
func (a *App) Engaged() bool {
	a.evMu.Lock()
	defer a.evMu.Unlock()
	return a.engaged
}

// Handler returns the HTTP handler serving the API and stream.
func (a *App) Handler() http.Handler {
	return a.server
}

// ListenAndServe serves the HTTP API on addr.
func (a *App) ListenAndServe(addr string) error {
	return a.server.ListenAndServe(addr)
}

// Surface returns the render surface.
func (a *App) Surface() render.Surface {
	return a.surface
}

// Store returns the session store, or nil when persistence is disabled.
func (a *App) Store() *store.Store {
	return a.store
}

// Close stops the pipeline, waits briefly for queued hooks and releases
// the surface and store.
func (a *App) Close() error {
	a.Stop()

	if a.hooks != nil {
		ctx, cancel := context.WithTimeout(context.Background(), hookDrainTimeout)
		a.hooks.Close(ctx)
		cancel()
	}
	if c, ok := a.surface.(io.Closer); ok && a.opts.Surface == nil {
		c.Close()
	}
	return a.closeStore()
}

func (a *App) closeStore() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}
