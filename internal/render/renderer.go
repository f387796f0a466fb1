package render

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/ayusman/drishti/internal/capture"
	"github.com/ayusman/drishti/internal/detector"
	"github.com/ayusman/drishti/internal/geometry"
)

// Label placement relative to the box top edge.
const (
	labelTopMargin = 10
	labelAbove     = 5
	labelBelow     = 20
)

// Style holds overlay colors and stroke sizes.
type Style struct {
	Connector      color.RGBA
	Landmark       color.RGBA
	Engaged        color.RGBA
	Box            color.RGBA
	Label          color.RGBA
	LineWidth      int
	LandmarkRadius int
}

// DefaultStyle returns green connectors and boxes with red landmarks.
func DefaultStyle() Style {
	return Style{
		Connector:      color.RGBA{R: 0x00, G: 0xFF, B: 0x00, A: 0xFF},
		Landmark:       color.RGBA{R: 0xFF, G: 0x00, B: 0x00, A: 0xFF},
		Engaged:        color.RGBA{R: 0xFF, G: 0xD7, B: 0x00, A: 0xFF},
		Box:            color.RGBA{R: 0x00, G: 0xFF, B: 0x00, A: 0xFF},
		Label:          color.RGBA{R: 0x00, G: 0xFF, B: 0x00, A: 0xFF},
		LineWidth:      2,
		LandmarkRadius: 3,
	}
}

// Renderer is the only writer of its Surface.
type Renderer struct {
	surface Surface
	style   Style
}

// NewRenderer creates a Renderer drawing on s.
func NewRenderer(s Surface, style Style) *Renderer {
	return &Renderer{surface: s, style: style}
}

// Surface returns the surface being drawn on.
func (r *Renderer) Surface() Surface {
	return r.surface
}

// Fit resizes the surface to the frame resolution if they differ and
// returns the resulting surface size. Resizing only on change avoids
// reallocating, and stretching, on every frame.
func (r *Renderer) Fit(frame *capture.Frame) (int, int) {
	w, h := r.surface.Size()
	if fw, fh := frame.Width(), frame.Height(); fw != w || fh != h {
		r.surface.Resize(fw, fh)
		return fw, fh
	}
	return w, h
}

// Render redraws the surface with frame as background and ov on top.
func (r *Renderer) Render(frame *capture.Frame, ov geometry.Overlay) {
	r.Fit(frame)
	r.surface.Clear()
	r.surface.DrawFrame(frame)

	for i, hand := range ov.Hands {
		r.drawHand(hand, ov.IsHandEngaged(i))
	}
	for _, obj := range ov.Objects {
		r.drawObject(obj)
	}
}

func (r *Renderer) drawHand(hand geometry.MappedHand, engaged bool) {
	connector, landmark := r.style.Connector, r.style.Landmark
	if engaged {
		connector, landmark = r.style.Engaged, r.style.Engaged
	}

	for _, c := range detector.HandConnections {
		r.surface.DrawLine(pixel(hand.Points[c[0]]), pixel(hand.Points[c[1]]), connector, r.style.LineWidth)
	}
	for _, p := range hand.Points {
		r.surface.DrawPoint(pixel(p), r.style.LandmarkRadius, landmark)
	}
}

func (r *Renderer) drawObject(obj geometry.MappedObject) {
	b := obj.Box
	rect := image.Rect(round(b.X), round(b.Y), round(b.X+b.W), round(b.Y+b.H))
	r.surface.StrokeRect(rect, r.style.Box, r.style.LineWidth)
	r.surface.FillText(LabelText(obj.Label, obj.Score), LabelOrigin(b), r.style.Label)
}

// LabelText formats a detection label as "name (87.34%)".
func LabelText(label string, score float64) string {
	return fmt.Sprintf("%s (%.2f%%)", label, score*100)
}

// LabelOrigin places the label just above the box, or below the top edge
// when the box is too close to the surface top for the text to fit.
func LabelOrigin(box geometry.Rect) image.Point {
	x := round(box.X)
	if box.Y > labelTopMargin {
		return image.Pt(x, round(box.Y-labelAbove))
	}
	return image.Pt(x, round(box.Y+labelBelow))
}

func pixel(p geometry.Point) image.Point {
	return image.Pt(round(p.X), round(p.Y))
}

func round(v float64) int {
	return int(math.Round(v))
}
