package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/drishti/internal/app"
	"github.com/ayusman/drishti/internal/capture"
	"github.com/ayusman/drishti/internal/detector"
	"github.com/ayusman/drishti/internal/logging"
	"github.com/ayusman/drishti/internal/pipeline"
	"github.com/ayusman/drishti/internal/tray"
)

// runOptions mirrors the run command flags.
type runOptions struct {
	mode      string
	threshold float64
	maxHands  int
	facing    string
	device    string
	refresh   float64
	mirror    bool
	motion    float64
	model     string
	width     int
	height    int
	fps       int
	addr      string
	dataDir   string
	webDir    string
	hookDir   string
	hookWait  time.Duration
	gui       bool
	tray      bool
}

func newRunCmd() *cobra.Command {
	return newRunCmdWith(&runOptions{})
}

// newRunCmdWith binds the run flags to opts.
func newRunCmdWith(opts *runOptions) *cobra.Command {
	defaults := pipeline.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the camera pipeline and serve the live view",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.mode, "mode", "m", defaults.Mode.String(), "Detection mode (hands, objects)")
	f.Float64VarP(&opts.threshold, "threshold", "t", defaults.ScoreThreshold, "Minimum detection score")
	f.IntVar(&opts.maxHands, "max-hands", defaults.MaxHands, "Maximum number of hands to track")
	f.StringVar(&opts.facing, "facing", defaults.Facing.String(), "Preferred camera (environment, user)")
	f.StringVarP(&opts.device, "device", "d", "", "Open this device id instead of selecting by facing")
	f.Float64Var(&opts.refresh, "refresh", defaults.RefreshRate, "Maximum iterations per second")
	f.BoolVar(&opts.mirror, "mirror", false, "Mirror frames horizontally")
	f.Float64Var(&opts.motion, "motion", 0, "Skip detection when fewer than this percent of pixels changed (0 disables)")
	f.StringVar(&opts.model, "model", "", "Detector model asset path or URL")
	f.IntVar(&opts.width, "width", capture.DefaultWidth, "Requested capture width")
	f.IntVar(&opts.height, "height", capture.DefaultHeight, "Requested capture height")
	f.IntVar(&opts.fps, "fps", 0, "Requested capture frame rate (0 keeps the device default)")
	f.StringVarP(&opts.addr, "addr", "a", ":8080", "HTTP listen address, empty disables the server")
	f.StringVar(&opts.dataDir, "data-dir", defaultDataDir(), "Directory for the session database, empty disables it")
	f.StringVar(&opts.webDir, "web-dir", "", "Static viewer directory (searched for when empty)")
	f.StringVar(&opts.hookDir, "hook-dir", "", "Directory of engagement hooks, empty disables them")
	f.DurationVar(&opts.hookWait, "hook-timeout", 5*time.Second, "Maximum run time of one hook")
	f.BoolVarP(&opts.gui, "gui", "g", false, "Show a preview window")
	f.BoolVar(&opts.tray, "tray", false, "Show a system tray menu")

	return cmd
}

// appConfig validates the flags and converts them to an app.Config.
func (o *runOptions) appConfig() (app.Config, error) {
	if o.gui && o.tray {
		return app.Config{}, errors.New("--gui and --tray both need the main thread, pick one")
	}

	mode, err := detector.ParseMode(o.mode)
	if err != nil {
		return app.Config{}, err
	}
	facing, err := capture.ParseFacing(o.facing)
	if err != nil {
		return app.Config{}, err
	}

	pc := pipeline.Config{
		Mode:            mode,
		ScoreThreshold:  o.threshold,
		MaxHands:        o.maxHands,
		Facing:          facing,
		DeviceID:        o.device,
		RefreshRate:     o.refresh,
		Mirror:          o.mirror,
		MotionThreshold: o.motion,
	}
	if err := pc.Validate(); err != nil {
		return app.Config{}, err
	}

	webDir := o.webDir
	if webDir == "" {
		webDir = findWebDir()
	}

	return app.Config{
		Pipeline:    pc,
		ModelAsset:  o.model,
		Width:       o.width,
		Height:      o.height,
		FPS:         o.fps,
		DataDir:     o.dataDir,
		StaticDir:   webDir,
		HookDir:     o.hookDir,
		HookTimeout: o.hookWait,
	}, nil
}

func runApp(ctx context.Context, opts *runOptions) error {
	logger := logging.WithPrefix("drishti")

	cfg, err := opts.appConfig()
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.StaticDir != "" {
		logger.Info("serving static files", "dir", cfg.StaticDir)
	}

	serveErr := make(chan error, 1)
	if opts.addr != "" {
		go func() {
			if err := a.ListenAndServe(opts.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
	}

	if err := a.Start(ctx); err != nil {
		if !opts.tray {
			return fmt.Errorf("start pipeline: %w", err)
		}
		// The tray can retry once the camera is free.
		logger.Error("start pipeline", "err", err)
	}

	switch {
	case opts.gui:
		return runPreview(ctx, a, serveErr)
	case opts.tray:
		t := tray.New(a)
		t.OnViewer(func() { openBrowser(viewerURL(opts.addr)) })
		t.OnQuit(stop)
		go func() {
			select {
			case <-ctx.Done():
			case err := <-serveErr:
				logger.Error("server failed", "err", err)
			}
			t.Quit()
		}()
		t.Run()
		return nil
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	}
}

// viewerURL turns a listen address into a browsable URL.
func viewerURL(addr string) string {
	if addr == "" {
		return ""
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) {
	if url == "" {
		return
	}
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		logging.WithPrefix("drishti").Warn("failed to open browser", "url", url, "err", err)
	}
}

func defaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".drishti")
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.drishti/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	dataDir := defaultDataDir()
	if dataDir == "" {
		return ""
	}
	homeWebDir := filepath.Join(dataDir, "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
