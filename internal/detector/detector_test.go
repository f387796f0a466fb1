package detector

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMockDetector(t *testing.T) {
	ctx := context.Background()

	t.Run("returns empty hands by default", func(t *testing.T) {
		mock := NewMockDetector()

		res, err := mock.Detect(ctx, nil)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if res == nil || res.Hands != nil {
			t.Errorf("expected result with nil hands, got %+v", res)
		}
	})

	t.Run("returns configured hands", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetHands([]HandLandmarks{ThumbsUpLandmarks(), OpenPalmLandmarks()})

		res, err := mock.Detect(ctx, nil)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if len(res.Hands) != 2 {
			t.Errorf("expected 2 hands, got %d", len(res.Hands))
		}
		if res.Mode != ModeHands {
			t.Errorf("mode = %v, want hands", res.Mode)
		}
	})

	t.Run("returns configured objects", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetObjects([]Detection{{Categories: []Category{{Label: "cat", Score: 0.9}}}})

		res, _ := mock.Detect(ctx, nil)

		if res.Mode != ModeObjects || len(res.Objects) != 1 {
			t.Errorf("got %+v, want one object in objects mode", res)
		}
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockDetector()
		expectedErr := errors.New("detection failed")
		mock.SetError(expectedErr)

		res, err := mock.Detect(ctx, nil)

		if err != expectedErr {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if res != nil {
			t.Errorf("expected nil result when error is set, got %v", res)
		}
	})

	t.Run("script is consumed before defaults", func(t *testing.T) {
		mock := NewMockDetector()
		failure := errors.New("boom")
		mock.Script(Step{Err: failure}, Step{Result: &Result{Hands: []HandLandmarks{OpenPalmLandmarks()}}})

		if _, err := mock.Detect(ctx, nil); err != failure {
			t.Errorf("call 1 error = %v, want %v", err, failure)
		}
		res, err := mock.Detect(ctx, nil)
		if err != nil || len(res.Hands) != 1 {
			t.Errorf("call 2 = %+v, %v; want one hand", res, err)
		}
		res, err = mock.Detect(ctx, nil)
		if err != nil || len(res.Hands) != 0 {
			t.Errorf("call 3 = %+v, %v; want default empty result", res, err)
		}
		if mock.Calls() != 3 {
			t.Errorf("Calls() = %d, want 3", mock.Calls())
		}
	})

	t.Run("hold blocks until release", func(t *testing.T) {
		mock := NewMockDetector()
		release := mock.Hold()

		done := make(chan struct{})
		go func() {
			mock.Detect(ctx, nil)
			close(done)
		}()

		select {
		case <-mock.Entered():
		case <-time.After(time.Second):
			t.Fatal("Detect never started")
		}
		select {
		case <-done:
			t.Fatal("Detect returned while held")
		case <-time.After(20 * time.Millisecond):
		}

		release()
		release()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Detect did not return after release")
		}
	})

	t.Run("hold honors context", func(t *testing.T) {
		mock := NewMockDetector()
		defer mock.Hold()()

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := mock.Detect(cctx, nil); !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	})

	t.Run("Close counts calls", func(t *testing.T) {
		mock := NewMockDetector()

		if err := mock.Close(); err != nil {
			t.Errorf("expected Close to return nil, got %v", err)
		}
		mock.Close()
		if mock.CloseCount() != 2 {
			t.Errorf("CloseCount() = %d, want 2", mock.CloseCount())
		}
	})

	t.Run("implements Detector interface", func(t *testing.T) {
		var _ Detector = (*MockDetector)(nil)
		var _ Detector = (*MediaPipeDetector)(nil)
	})
}

func TestDecodeResponse(t *testing.T) {
	points := make([]string, NumLandmarks)
	for i := range points {
		points[i] = `{"x":0.5,"y":0.5,"z":0}`
	}
	hand := `{"points":[` + strings.Join(points, ",") + `],"handedness":"Left","score":0.9}`

	t.Run("hands truncated to max", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxHands = 1
		line := `{"hands":[` + hand + `,` + hand + `]}` + "\n"

		res, err := decodeResponse([]byte(line), cfg)
		if err != nil {
			t.Fatalf("decodeResponse() error = %v", err)
		}
		if len(res.Hands) != 1 {
			t.Fatalf("got %d hands, want 1", len(res.Hands))
		}
		if res.Hands[0].Handedness != "Left" || res.Hands[0].Fingertip().X != 0.5 {
			t.Errorf("unexpected hand %+v", res.Hands[0])
		}
	})

	t.Run("incomplete hands dropped", func(t *testing.T) {
		line := `{"hands":[{"points":[{"x":0.1,"y":0.1,"z":0}],"score":0.9}]}`
		res, err := decodeResponse([]byte(line), DefaultConfig())
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Hands) != 0 {
			t.Errorf("got %d hands, want 0", len(res.Hands))
		}
	})

	t.Run("objects filtered and ranked", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Mode = ModeObjects
		line := `{"detections":[
			{"box":{"originX":10,"originY":20,"width":30,"height":40},"categories":[{"label":"dog","score":0.6},{"label":"cat","score":0.87}]},
			{"box":{"originX":0,"originY":0,"width":5,"height":5},"categories":[{"label":"cup","score":0.2}]},
			{"box":{"originX":0,"originY":0,"width":5,"height":5},"categories":[]}
		]}`

		res, err := decodeResponse([]byte(line), cfg)
		if err != nil {
			t.Fatalf("decodeResponse() error = %v", err)
		}
		if len(res.Objects) != 1 {
			t.Fatalf("got %d objects, want 1", len(res.Objects))
		}
		top, _ := res.Objects[0].Top()
		if top.Label != "cat" {
			t.Errorf("top label = %q, want cat", top.Label)
		}
		if res.Objects[0].Box.OriginY != 20 {
			t.Errorf("box = %+v", res.Objects[0].Box)
		}
	})

	t.Run("not ready", func(t *testing.T) {
		_, err := decodeResponse([]byte(`{"error":"not_ready"}`), DefaultConfig())
		if !errors.Is(err, ErrNotReady) {
			t.Errorf("error = %v, want ErrNotReady", err)
		}
	})

	t.Run("service error", func(t *testing.T) {
		_, err := decodeResponse([]byte(`{"error":"model crashed"}`), DefaultConfig())
		if err == nil || !strings.Contains(err.Error(), "model crashed") {
			t.Errorf("error = %v, want service error", err)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		if _, err := decodeResponse([]byte(`{`), DefaultConfig()); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"hands", ModeHands, false},
		{"Objects", ModeObjects, false},
		{"faces", ModeHands, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseMode(%q) = %v, %v", tt.in, got, err)
			}
		})
	}
}

func TestServiceArgs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeObjects
	cfg.ModelAsset = "efficientdet_lite0_uint8.tflite"

	args := strings.Join(serviceArgs(cfg), " ")
	for _, want := range []string{"--mode objects", "--min-detection-confidence 0.5", "--running-mode IMAGE", "--model efficientdet_lite0_uint8.tflite"} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
}

func TestHandConnections(t *testing.T) {
	if len(HandConnections) != 21 {
		t.Errorf("got %d connections, want 21", len(HandConnections))
	}

	touched := make(map[int]bool)
	for _, c := range HandConnections {
		for _, idx := range c {
			if idx < 0 || idx >= NumLandmarks {
				t.Fatalf("connection %v out of range", c)
			}
			touched[idx] = true
		}
	}
	if len(touched) != NumLandmarks {
		t.Errorf("connections touch %d landmarks, want %d", len(touched), NumLandmarks)
	}
}

func TestPointingAt(t *testing.T) {
	hand := PointingAt(0.5, 0.5)
	tip := hand.Fingertip()
	if tip.X != 0.5 || tip.Y != 0.5 {
		t.Errorf("fingertip = %+v, want (0.5, 0.5)", tip)
	}
}

func TestPresets(t *testing.T) {
	thumbs := ThumbsUpLandmarks()
	if thumbs.Points[ThumbTip].Y >= thumbs.Points[ThumbMCP].Y {
		t.Error("thumb tip should be above thumb MCP (lower Y value)")
	}

	palm := OpenPalmLandmarks()
	if palm.Points[IndexMCP].Y-palm.Points[IndexTip].Y < 0.2 {
		t.Error("index finger should be extended in open palm")
	}
}
