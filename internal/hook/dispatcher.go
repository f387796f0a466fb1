package hook

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/ayusman/drishti/internal/logging"
)

// DefaultQueueSize is the number of events buffered before Dispatch drops.
const DefaultQueueSize = 32

// Dispatcher delivers events to subscribed hooks on a single background
// worker, in order. Dispatch never blocks the caller: when the queue is
// full the event is dropped.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
	logger   *log.Logger

	queue   chan Event
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
	runs    atomic.Uint64
}

// NewDispatcher starts a dispatcher over the hooks known to m.
func NewDispatcher(m *Manager, e *Executor, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		manager:  m,
		executor: e,
		logger:   logging.WithPrefix("hook"),
		queue:    make(chan Event, queueSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go d.work()
	return d
}

// Dispatch queues ev. It reports false when the event was dropped.
func (d *Dispatcher) Dispatch(ev Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	select {
	case d.queue <- ev:
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn("hook queue full, dropping event", "kind", ev.Kind, "hand", ev.Hand)
		return false
	}
}

func (d *Dispatcher) work() {
	defer close(d.done)
	for ev := range d.queue {
		for _, h := range d.manager.For(ev.Kind) {
			if d.ctx.Err() != nil {
				return
			}
			resp, err := d.executor.Execute(d.ctx, h, ev)
			d.runs.Add(1)
			switch {
			case err != nil:
				d.logger.Warn("hook failed", "hook", h.Manifest.Name, "kind", ev.Kind, "err", err)
			case !resp.Success:
				d.logger.Warn("hook reported failure", "hook", h.Manifest.Name, "kind", ev.Kind, "error", resp.Error)
			default:
				d.logger.Debug("hook ran", "hook", h.Manifest.Name, "kind", ev.Kind)
			}
		}
	}
}

// Close delivers the queued events and stops the worker. A hook still
// running when ctx ends is killed.
func (d *Dispatcher) Close(ctx context.Context) {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()

		select {
		case <-d.done:
		case <-ctx.Done():
			d.cancel()
			<-d.done
		}
		d.cancel()
	})
}

// Dropped returns the number of events dropped on a full queue.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Runs returns the number of hook executions attempted.
func (d *Dispatcher) Runs() uint64 {
	return d.runs.Load()
}
