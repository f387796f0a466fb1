// Package tray provides a system tray menu for starting and stopping the
// drishti pipeline.
package tray

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/getlantern/systray"

	"github.com/ayusman/drishti/internal/logging"
)

// Controller is the part of the application the tray drives.
type Controller interface {
	Toggle(ctx context.Context) error
	IsRunning() bool
	OnEngagementChange(fn func(engaged bool))
}

// Tray represents the system tray application.
type Tray struct {
	ctrl     Controller
	logger   *log.Logger
	onViewer func()
	onQuit   func()
	running  bool
	engaged  bool
	lastErr  error
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuStatus *systray.MenuItem
}

// New creates a Tray bound to ctrl. Engagement changes reported by ctrl
// update the status item.
func New(ctrl Controller) *Tray {
	t := &Tray{
		ctrl:    ctrl,
		logger:  logging.WithPrefix("tray"),
		running: ctrl.IsRunning(),
	}
	ctrl.OnEngagementChange(t.SetEngaged)
	return t
}

// OnViewer sets the callback for the "Open Viewer" menu item.
func (t *Tray) OnViewer(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onViewer = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray menu, making Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Drishti")
	systray.SetTooltip("Drishti camera overlay")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.running), "Start or stop the camera pipeline")
	systray.AddSeparator()
	t.menuStatus = systray.AddMenuItem(statusTitle(t.engaged), "Whether a fingertip is near the frame center")
	t.menuStatus.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuViewer := systray.AddMenuItem("Open Viewer...", "Open the live view in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Drishti")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuViewer.ClickedCh:
				t.handleViewer()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// handleToggle starts or stops the pipeline and refreshes the menu from
// the controller's resulting state.
func (t *Tray) handleToggle() {
	err := t.ctrl.Toggle(context.Background())
	if err != nil {
		t.logger.Error("toggle failed", "err", err)
	}
	running := t.ctrl.IsRunning()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = running
	t.lastErr = err
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(running))
	}
}

func (t *Tray) handleViewer() {
	t.mu.RLock()
	callback := t.onViewer
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetEngaged updates the engagement status item.
func (t *Tray) SetEngaged(engaged bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.engaged = engaged
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(statusTitle(engaged))
	}
}

// IsRunning returns the pipeline state as of the last toggle.
func (t *Tray) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

// IsEngaged returns the last reported engagement state.
func (t *Tray) IsEngaged() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.engaged
}

// LastError returns the error from the most recent toggle, if any.
func (t *Tray) LastError() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastErr
}

func toggleTitle(running bool) string {
	if running {
		return "● Running"
	}
	return "○ Stopped"
}

func statusTitle(engaged bool) string {
	if engaged {
		return "Engaged"
	}
	return "Not engaged"
}
