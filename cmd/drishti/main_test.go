package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ayusman/drishti/internal/capture"
	"github.com/ayusman/drishti/internal/detector"
	"github.com/ayusman/drishti/internal/pipeline"
)

func parseRunFlags(t *testing.T, args ...string) *runOptions {
	t.Helper()
	o := &runOptions{}
	if err := newRunCmdWith(o).ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags(%v) error = %v", args, err)
	}
	o.webDir = t.TempDir()
	return o
}

func TestRunOptions_AppConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := parseRunFlags(t).appConfig()
		if err != nil {
			t.Fatalf("appConfig() error = %v", err)
		}
		want := pipeline.DefaultConfig()
		if cfg.Pipeline != want {
			t.Errorf("pipeline = %+v, want %+v", cfg.Pipeline, want)
		}
	})

	t.Run("objects on the front camera", func(t *testing.T) {
		cfg, err := parseRunFlags(t, "--mode", "objects", "--facing", "user", "--threshold", "0.3", "--mirror", "--motion", "2.5").appConfig()
		if err != nil {
			t.Fatalf("appConfig() error = %v", err)
		}
		p := cfg.Pipeline
		if p.Mode != detector.ModeObjects || p.Facing != capture.FacingUser || p.ScoreThreshold != 0.3 || !p.Mirror || p.MotionThreshold != 2.5 {
			t.Errorf("pipeline = %+v", p)
		}
	})

	tests := []struct {
		name string
		args []string
	}{
		{"unknown mode", []string{"--mode", "faces"}},
		{"unknown facing", []string{"--facing", "sideways"}},
		{"threshold above one", []string{"--threshold", "1.5"}},
		{"zero refresh", []string{"--refresh", "0"}},
		{"gui with tray", []string{"--gui", "--tray"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseRunFlags(t, tt.args...).appConfig(); err == nil {
				t.Errorf("appConfig(%v) succeeded, want error", tt.args)
			}
		})
	}

	t.Run("range errors wrap ErrInvalidConfig", func(t *testing.T) {
		_, err := parseRunFlags(t, "--max-hands", "0").appConfig()
		if !errors.Is(err, pipeline.ErrInvalidConfig) {
			t.Errorf("error = %v, want ErrInvalidConfig", err)
		}
	})
}

func TestDevicesCommand(t *testing.T) {
	root := t.TempDir()
	for name, label := range map[string]string{"video0": "Integrated Front Camera", "video2": "USB Camera"} {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		os.WriteFile(filepath.Join(dir, "name"), []byte(label+"\n"), 0644)
		os.WriteFile(filepath.Join(dir, "index"), []byte("0\n"), 0644)
	}

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"devices", "--sysfs-root", root, "--log-level", "error"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("output = %q", out.String())
	}
	if !strings.Contains(lines[0], "/dev/video0") || !strings.Contains(lines[0], "[user]") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.Contains(lines[1], "/dev/video2") || !strings.Contains(lines[1], "[environment]") {
		t.Errorf("line 1 = %q", lines[1])
	}
}

func TestDevicesCommand_None(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"devices", "--sysfs-root", filepath.Join(t.TempDir(), "absent")})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out.String(), "no video input devices") {
		t.Errorf("output = %q", out.String())
	}
}

func TestViewerURL(t *testing.T) {
	tests := map[string]string{
		":8080":          "http://localhost:8080/",
		"127.0.0.1:9000": "http://127.0.0.1:9000/",
		"":               "",
	}
	for addr, want := range tests {
		if got := viewerURL(addr); got != want {
			t.Errorf("viewerURL(%q) = %q, want %q", addr, got, want)
		}
	}
}
