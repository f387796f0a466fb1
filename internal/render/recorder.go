package render

import (
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/ayusman/drishti/internal/capture"
)

// OpKind names a recorded drawing primitive.
type OpKind string

const (
	OpClear OpKind = "clear"
	OpFrame OpKind = "frame"
	OpRect  OpKind = "rect"
	OpText  OpKind = "text"
	OpLine  OpKind = "line"
	OpPoint OpKind = "point"
)

// Op is one drawing call as seen by a Recorder.
type Op struct {
	Kind      OpKind
	Rect      image.Rectangle
	From, To  image.Point
	Text      string
	Color     color.RGBA
	Thickness int
	FrameAt   time.Time
}

// Recorder is a Surface that remembers what is currently drawn on it
// instead of rasterizing. Clear forgets everything drawn before it, so
// Ops always describes the visible surface.
type Recorder struct {
	mu      sync.Mutex
	width   int
	height  int
	ops     []Op
	resizes int
	clears  int
}

// NewRecorder creates a Recorder of the given size.
func NewRecorder(width, height int) *Recorder {
	return &Recorder{width: width, height: height}
}

func (r *Recorder) Size() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.height
}

func (r *Recorder) Resize(width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.width, r.height = width, height
	r.ops = nil
	r.resizes++
}

func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = []Op{{Kind: OpClear}}
	r.clears++
}

func (r *Recorder) DrawFrame(frame *capture.Frame) {
	r.record(Op{Kind: OpFrame, FrameAt: frame.Timestamp})
}

func (r *Recorder) StrokeRect(rect image.Rectangle, c color.RGBA, thickness int) {
	r.record(Op{Kind: OpRect, Rect: rect, Color: c, Thickness: thickness})
}

func (r *Recorder) FillText(text string, at image.Point, c color.RGBA) {
	r.record(Op{Kind: OpText, Text: text, From: at, Color: c})
}

func (r *Recorder) DrawLine(from, to image.Point, c color.RGBA, thickness int) {
	r.record(Op{Kind: OpLine, From: from, To: to, Color: c, Thickness: thickness})
}

func (r *Recorder) DrawPoint(at image.Point, radius int, c color.RGBA) {
	r.record(Op{Kind: OpPoint, From: at, Color: c, Thickness: radius})
}

func (r *Recorder) record(op Op) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

// Ops returns a copy of the visible drawing operations.
func (r *Recorder) Ops() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Op(nil), r.ops...)
}

// OpsOf returns the visible operations of one kind.
func (r *Recorder) OpsOf(kind OpKind) []Op {
	var out []Op
	for _, op := range r.Ops() {
		if op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

// Resizes returns how many times the surface was resized.
func (r *Recorder) Resizes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resizes
}

// Clears returns how many times the surface was cleared.
func (r *Recorder) Clears() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clears
}
