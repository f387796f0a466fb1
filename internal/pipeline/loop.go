// Package pipeline runs the capture, detect and render cycle.
//
// A Loop moves through Idle, Initializing, Running and Stopped. Start opens
// the frame source and the detector; each iteration takes the freshest
// frame, runs detection off the loop goroutine, maps the result onto the
// surface and renders it. Stop is final: it releases the source and the
// detector synchronously, and any detection still in flight is discarded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/ayusman/drishti/internal/capture"
	"github.com/ayusman/drishti/internal/detector"
	"github.com/ayusman/drishti/internal/geometry"
	"github.com/ayusman/drishti/internal/logging"
	"github.com/ayusman/drishti/internal/render"
)

var (
	// ErrAlreadyStarted is returned by Start on a loop that has left Idle.
	ErrAlreadyStarted = errors.New("pipeline already started")
	// ErrStopped is returned by Start when Stop was called while opening.
	ErrStopped = errors.New("pipeline stopped")
)

// State is the loop lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateInitializing
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// FrameSource supplies frames. capture.Source implements it.
type FrameSource interface {
	Open(facing capture.Facing) error
	OpenDevice(id string) error
	CurrentFrame() (*capture.Frame, error)
	Close() error
}

// Observer is notified from the loop goroutine. Implementations must not
// block for long and must not call Stop.
type Observer interface {
	OnOverlay(ov geometry.Overlay)
	OnDetectError(err error)
}

// Stats counts iteration outcomes.
type Stats struct {
	Iterations uint64 `json:"iterations"`
	Rendered   uint64 `json:"rendered"`
	Skipped    uint64 `json:"skipped"`
	Failures   uint64 `json:"failures"`
	Reused     uint64 `json:"reused"`
}

// Options holds optional collaborators for New.
type Options struct {
	Scheduler Scheduler
	Observer  Observer
	Logger    *log.Logger
}

type outcome struct {
	res *detector.Result
	err error
}

// Loop is a single pipeline instance. It owns its source and detector from
// Start until Stop and is the only writer of its renderer's surface.
type Loop struct {
	cfg      Config
	source   FrameSource
	det      detector.Detector
	renderer *render.Renderer
	sched    Scheduler
	observer Observer
	logger   *log.Logger
	gate     *capture.MotionGate

	mu         sync.Mutex
	state      State
	sourceOpen bool
	detOpen    bool
	cancel     context.CancelFunc
	done       chan struct{}

	// last is only touched by the iterating goroutine.
	last *detector.Result

	iterations atomic.Uint64
	rendered   atomic.Uint64
	skipped    atomic.Uint64
	failures   atomic.Uint64
	reused     atomic.Uint64
}

// New creates an Idle loop.
func New(cfg Config, source FrameSource, det detector.Detector, renderer *render.Renderer, opts Options) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil || det == nil || renderer == nil {
		return nil, errors.New("pipeline: source, detector and renderer are required")
	}

	l := &Loop{
		cfg:      cfg,
		source:   source,
		det:      det,
		renderer: renderer,
		sched:    opts.Scheduler,
		observer: opts.Observer,
		logger:   opts.Logger,
	}
	if l.sched == nil {
		l.sched = NewRateScheduler(cfg.RefreshRate)
	}
	if l.logger == nil {
		l.logger = logging.WithPrefix("pipeline")
	}
	if cfg.MotionThreshold > 0 {
		l.gate = capture.NewMotionGate(cfg.MotionThreshold)
	}
	return l, nil
}

// Config returns the loop configuration.
func (l *Loop) Config() Config {
	return l.cfg
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Stats returns a snapshot of the iteration counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Iterations: l.iterations.Load(),
		Rendered:   l.rendered.Load(),
		Skipped:    l.skipped.Load(),
		Failures:   l.failures.Load(),
		Reused:     l.reused.Load(),
	}
}

// Start opens the frame source and then the detector, and begins iterating
// in a background goroutine. Open failures are returned and leave the loop
// Stopped with nothing held. Cancelling ctx ends iteration; Stop must still
// be called.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.state != StateIdle {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	l.state = StateInitializing
	l.mu.Unlock()

	l.logger.Info("starting", "mode", l.cfg.Mode, "facing", l.cfg.Facing, "device", l.cfg.DeviceID)

	var err error
	if l.cfg.DeviceID != "" {
		err = l.source.OpenDevice(l.cfg.DeviceID)
	} else {
		err = l.source.Open(l.cfg.Facing)
	}
	if err != nil {
		l.abort()
		return fmt.Errorf("open frame source: %w", err)
	}
	if !l.claim(&l.sourceOpen) {
		l.source.Close()
		return ErrStopped
	}

	if err := l.det.Open(ctx); err != nil {
		l.abort()
		return fmt.Errorf("open detector: %w", err)
	}
	if !l.claim(&l.detOpen) {
		l.det.Close()
		return ErrStopped
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	if l.state == StateStopped {
		l.mu.Unlock()
		cancel()
		return ErrStopped
	}
	l.cancel = cancel
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()

	go l.run(runCtx, done)
	return nil
}

// claim records an opened resource unless the loop was stopped meanwhile.
func (l *Loop) claim(flag *bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateStopped {
		return false
	}
	*flag = true
	return true
}

// abort stops the loop after a failed Start.
func (l *Loop) abort() {
	l.mu.Lock()
	l.state = StateStopped
	l.mu.Unlock()
	l.release()
}

// Stop ends the loop and releases the source and detector before
// returning. It is idempotent and the loop cannot be restarted.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.state == StateStopped {
		l.mu.Unlock()
		return
	}
	l.state = StateStopped
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	l.release()
	if done != nil {
		<-done
	}
	l.logger.Info("stopped", "rendered", l.rendered.Load(), "failures", l.failures.Load())
}

// release closes whatever is currently held, each at most once.
func (l *Loop) release() {
	l.mu.Lock()
	closeSource, closeDet := l.sourceOpen, l.detOpen
	l.sourceOpen, l.detOpen = false, false
	l.mu.Unlock()

	if closeDet {
		if err := l.det.Close(); err != nil {
			l.logger.Warn("close detector", "err", err)
		}
	}
	if closeSource {
		if err := l.source.Close(); err != nil {
			l.logger.Warn("close frame source", "err", err)
		}
	}
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		if l.gate != nil {
			l.gate.Close()
		}
	}()

	for {
		if err := l.sched.Wait(ctx); err != nil {
			return
		}
		if !l.iterate(ctx) {
			return
		}
	}
}

// iterate runs one cycle and reports whether the loop should continue.
// A failed cycle leaves the surface as it was.
func (l *Loop) iterate(ctx context.Context) bool {
	l.iterations.Add(1)

	frame, err := l.source.CurrentFrame()
	if err != nil {
		l.skipped.Add(1)
		if !errors.Is(err, capture.ErrNotReady) {
			l.logger.Debug("no frame", "err", err)
		}
		return ctx.Err() == nil
	}
	l.markRunning()

	if res, ok := l.reuse(frame); ok {
		l.reused.Add(1)
		l.present(frame, res)
		frame.Close()
		return true
	}

	ch := make(chan outcome, 1)
	go func() {
		res, err := l.det.Detect(ctx, &frame.Mat)
		ch <- outcome{res: res, err: err}
	}()

	var out outcome
	select {
	case out = <-ch:
	case <-ctx.Done():
		go func() {
			<-ch
			frame.Close()
		}()
		return false
	}
	defer frame.Close()

	switch {
	case out.err == nil && out.res != nil:
		l.last = out.res
		l.present(frame, out.res)
	case errors.Is(out.err, detector.ErrNotReady):
		l.skipped.Add(1)
	case ctx.Err() != nil:
		return false
	case out.err == nil:
		l.skipped.Add(1)
	default:
		l.failures.Add(1)
		l.logger.Warn("detection failed", "err", out.err)
		if l.observer != nil {
			l.observer.OnDetectError(out.err)
		}
	}
	return ctx.Err() == nil
}

// reuse returns the previous result when the motion gate sees a static scene.
func (l *Loop) reuse(frame *capture.Frame) (*detector.Result, bool) {
	if l.gate == nil {
		return nil, false
	}
	moving, _ := l.gate.Check(frame)
	if moving || l.last == nil {
		return nil, false
	}
	return l.last, true
}

func (l *Loop) markRunning() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateInitializing {
		l.state = StateRunning
		l.logger.Info("running")
	}
}

// present maps res onto the surface and renders it. Nothing is drawn once
// the loop is Stopped.
func (l *Loop) present(frame *capture.Frame, res *detector.Result) {
	l.mu.Lock()
	if l.state == StateStopped {
		l.mu.Unlock()
		return
	}

	interpreted := *res
	interpreted.Mode = l.cfg.Mode

	w, h := l.renderer.Fit(frame)
	ov := geometry.Map(&interpreted, w, h)
	if l.cfg.Mode == detector.ModeHands {
		ov.Engaged = geometry.EngagedHands(ov.Hands, w, h)
	}
	l.renderer.Render(frame, ov)
	l.rendered.Add(1)
	l.mu.Unlock()

	if l.observer != nil {
		l.observer.OnOverlay(ov)
	}
}
