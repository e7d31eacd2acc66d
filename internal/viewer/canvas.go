package viewer

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/talgya/infall/internal/engine"
	"github.com/talgya/infall/internal/render"
)

// cellAspect is the height/width ratio of a terminal cell.
const cellAspect = 2.0

// maxTail caps the stretch streak drawn either side of a body.
const maxTail = 8

// Cell is one glyph to draw. Level runs from 0 (dimmest, most redshifted)
// to 3 (full brightness).
type Cell struct {
	X, Y  int
	Glyph rune
	Level int
}

// Viewport maps the display x–z plane onto a grid. Center is in display
// units; Extent is the distance from the center to the nearest grid edge.
type Viewport struct {
	Width, Height int
	Center        mgl64.Vec2
	Extent        float64
}

// HoleView frames the horizon and every visible body.
func HoleView(f *engine.Frame, width, height int) Viewport {
	extent := f.Horizon.Outer
	for _, s := range f.Snapshots {
		if s.Visible {
			extent = math.Max(extent, math.Hypot(s.Position.X(), s.Position.Z()))
		}
	}
	return Viewport{Width: width, Height: height, Extent: extent * 1.1}
}

// ObjectView frames the visible bodies only, centered on their mean
// position. Falls back to HoleView when nothing is visible.
func ObjectView(f *engine.Frame, width, height int) Viewport {
	var sum mgl64.Vec2
	n := 0
	for _, s := range f.Snapshots {
		if s.Visible {
			sum = sum.Add(mgl64.Vec2{s.Position.X(), s.Position.Z()})
			n++
		}
	}
	if n == 0 {
		return HoleView(f, width, height)
	}
	center := sum.Mul(1 / float64(n))

	extent := 0.0
	for _, s := range f.Snapshots {
		if s.Visible {
			d := mgl64.Vec2{s.Position.X(), s.Position.Z()}.Sub(center).Len()
			extent = math.Max(extent, d)
		}
	}
	if extent == 0 {
		extent = f.Horizon.Radius * 0.01
	}
	return Viewport{Width: width, Height: height, Center: center, Extent: extent * 1.5}
}

// scale returns rows per display unit.
func (vp Viewport) scale() float64 {
	half := math.Min(float64(vp.Width)/(2*cellAspect), float64(vp.Height)/2)
	return half / vp.Extent
}

// Cell returns the grid position of a display-space point and whether it
// lies on the grid.
func (vp Viewport) Cell(p mgl64.Vec3) (int, int, bool) {
	s := vp.scale()
	x := int(math.Round(float64(vp.Width)/2 + (p.X()-vp.Center.X())*s*cellAspect))
	y := int(math.Round(float64(vp.Height)/2 - (p.Z()-vp.Center.Y())*s))
	return x, y, x >= 0 && y >= 0 && x < vp.Width && y < vp.Height
}

// Project converts a frame into glyphs: the horizon ring, then each visible
// body with a streak along its stretch axis.
func Project(f *engine.Frame, vp Viewport) []Cell {
	if vp.Width <= 0 || vp.Height <= 0 || !(vp.Extent > 0) {
		return nil
	}
	var cells []Cell
	cells = appendRing(cells, f.Horizon, vp)
	for _, s := range f.Snapshots {
		if s.Visible {
			cells = appendBody(cells, s, vp)
		}
	}
	return cells
}

func appendRing(cells []Cell, h render.Horizon, vp Viewport) []Cell {
	if !(h.Radius > 0) {
		return cells
	}
	rows := h.Radius * vp.scale()
	steps := int(math.Max(16, 2*math.Pi*rows*cellAspect*2))
	seen := make(map[[2]int]bool, steps)
	for i := 0; i < steps; i++ {
		a := 2 * math.Pi * float64(i) / float64(steps)
		x, y, ok := vp.Cell(mgl64.Vec3{h.Radius * math.Cos(a), 0, h.Radius * math.Sin(a)})
		if !ok || seen[[2]int{x, y}] {
			continue
		}
		seen[[2]int{x, y}] = true
		cells = append(cells, Cell{X: x, Y: y, Glyph: '·', Level: 1})
	}
	return cells
}

func appendBody(cells []Cell, s render.Snapshot, vp Viewport) []Cell {
	level := Level(s.Opacity)
	x, y, ok := vp.Cell(s.Position)
	if ok {
		cells = append(cells, Cell{X: x, Y: y, Glyph: Glyph(s.Opacity), Level: level})
	}

	tail := int(math.Min(maxTail, math.Floor(math.Log2(math.Max(1, s.Scale.Z())))))
	if tail == 0 {
		return cells
	}
	axis := s.Orientation.Rotate(mgl64.Vec3{0, 0, 1})
	step := 1 / vp.scale()
	for k := 1; k <= tail; k++ {
		for _, sign := range []float64{1, -1} {
			p := s.Position.Add(axis.Mul(sign * float64(k) * step))
			if tx, ty, ok := vp.Cell(p); ok && (tx != x || ty != y) {
				cells = append(cells, Cell{X: tx, Y: ty, Glyph: '░', Level: level})
			}
		}
	}
	return cells
}

// Glyph picks a block shade for an opacity.
func Glyph(opacity float64) rune {
	switch {
	case opacity >= 0.75:
		return '█'
	case opacity >= 0.5:
		return '▓'
	case opacity >= 0.25:
		return '▒'
	default:
		return '░'
	}
}

// Level maps opacity onto the four brightness levels.
func Level(opacity float64) int {
	return int(math.Min(3, math.Max(0, math.Floor(opacity*4))))
}
