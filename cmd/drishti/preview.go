package main

import (
	"context"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/drishti/internal/app"
	"github.com/ayusman/drishti/internal/render"
)

// runPreview shows the rendered surface in a window until the window is
// closed, q or Esc is pressed, or ctx ends. It must run on the main
// goroutine.
func runPreview(ctx context.Context, a *app.App, serveErr <-chan error) error {
	ms, ok := a.Surface().(*render.MatSurface)
	if !ok {
		return fmt.Errorf("preview needs a mat surface, got %T", a.Surface())
	}

	window := gocv.NewWindow("Drishti")
	defer window.Close()

	shown := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-serveErr:
			return fmt.Errorf("server failed: %w", err)
		default:
		}

		img := ms.Snapshot()
		empty := img.Empty()
		if !empty {
			window.IMShow(img)
			shown = true
		}
		img.Close()

		switch window.WaitKey(16) {
		case 'q', 27:
			return nil
		}
		if shown && window.GetWindowProperty(gocv.WindowPropertyVisible) < 1 {
			return nil
		}
		if empty {
			time.Sleep(10 * time.Millisecond)
		}
	}
}
