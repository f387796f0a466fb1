package capture

import (
	"testing"
	"time"

	"gocv.io/x/gocv"
)

func solidFrame(rows, cols int, v float64) *Frame {
	mat := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC3)
	mat.SetTo(gocv.NewScalar(v, v, v, 0))
	return NewFrame(mat, time.Now())
}

func TestMotionGate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	black := solidFrame(480, 640, 0)
	defer black.Close()
	black2 := solidFrame(480, 640, 0)
	defer black2.Close()
	white := solidFrame(480, 640, 255)
	defer white.Close()

	gate := NewMotionGate(1.0)
	defer gate.Close()

	if open, _ := gate.Check(black); !open {
		t.Error("first frame should open the gate")
	}
	if open, changed := gate.Check(black2); open {
		t.Errorf("identical frames should keep the gate closed, changed = %f", changed)
	}
	open, changed := gate.Check(white)
	if !open {
		t.Errorf("black to white should open the gate, changed = %f", changed)
	}
	if changed < 50.0 {
		t.Errorf("changed = %f, expected > 50%%", changed)
	}
}

func TestMotionGate_ResolutionChangeOpens(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	small := solidFrame(240, 320, 0)
	defer small.Close()
	large := solidFrame(480, 640, 0)
	defer large.Close()

	gate := NewMotionGate(1.0)
	defer gate.Close()

	gate.Check(small)
	if open, _ := gate.Check(large); !open {
		t.Error("a resolution change should open the gate")
	}
}

func TestMotionGate_Reset(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := solidFrame(48, 64, 0)
	defer frame.Close()

	gate := NewMotionGate(1.0)
	defer gate.Close()

	gate.Check(frame)
	gate.Reset()
	if open, _ := gate.Check(frame); !open {
		t.Error("first frame after Reset should open the gate")
	}
}

func TestMotionGate_EmptyFrame(t *testing.T) {
	gate := NewMotionGate(1.0)
	defer gate.Close()

	if open, _ := gate.Check(nil); open {
		t.Error("nil frame should not open the gate")
	}
}

func TestMotionGate_CloseMultiple(t *testing.T) {
	gate := NewMotionGate(1.0)
	gate.Close()
	gate.Close()
}
