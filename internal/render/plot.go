package render

import (
	"image"
	"image/color"
	"io"
	"math"

	"github.com/fogleman/gg"

	"flow-field/internal/flowfield"
	"flow-field/internal/grid"
)

// PlotOptions controls the arrow diagram.
type PlotOptions struct {
	CellSize int          // Pixels per cell edge (default 16)
	Path     []grid.Point // Optional trace to highlight
}

const defaultPlotCell = 16

var (
	plotBackground = color.RGBA{12, 12, 28, 255}
	plotGridLine   = color.RGBA{30, 30, 45, 255}
	plotObstacle   = color.RGBA{70, 70, 90, 255}
	plotUnset      = color.RGBA{90, 30, 30, 255}
	plotArrow      = color.RGBA{120, 200, 255, 255}
	plotGoal       = color.RGBA{80, 255, 120, 255}
	plotStart      = color.RGBA{255, 200, 60, 255}
	plotPath       = color.RGBA{255, 120, 200, 255}
)

// Plot draws the field as an arrow per cell. Pixel x follows the y axis of the
// grid and pixel y follows the x axis, matching PackRGBA.
func Plot(f *flowfield.Field, m *grid.Map, opts PlotOptions) (image.Image, error) {
	if err := checkSizes(f, m); err != nil {
		return nil, err
	}
	dc := newPlotContext(f, m, opts)
	return dc.Image(), nil
}

// WritePlotPNG encodes Plot as PNG.
func WritePlotPNG(w io.Writer, f *flowfield.Field, m *grid.Map, opts PlotOptions) error {
	if err := checkSizes(f, m); err != nil {
		return err
	}
	return newPlotContext(f, m, opts).EncodePNG(w)
}

func newPlotContext(f *flowfield.Field, m *grid.Map, opts PlotOptions) *gg.Context {
	cell := opts.CellSize
	if cell <= 0 {
		cell = defaultPlotCell
	}
	n := f.Size()
	px := float64(cell)
	dc := gg.NewContext(n*cell, n*cell)

	dc.SetColor(plotBackground)
	dc.DrawRectangle(0, 0, float64(n*cell), float64(n*cell))
	dc.Fill()

	drawPlotGrid(dc, n, px)

	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			left := float64(y) * px
			top := float64(x) * px
			cx := left + px/2
			cy := top + px/2

			flags := m.Flags(x, y)
			d := f.Direction(x, y)

			switch {
			case flags.Has(grid.FlagObstacle):
				dc.SetColor(plotObstacle)
				dc.DrawRectangle(left+1, top+1, px-2, px-2)
				dc.Fill()
			case d == flowfield.Arrived:
				dc.SetColor(plotGoal)
				dc.DrawCircle(cx, cy, px*0.3)
				dc.Fill()
			case d.IsUnset():
				dc.SetColor(plotUnset)
				dc.DrawRectangle(left+px*0.35, top+px*0.35, px*0.3, px*0.3)
				dc.Fill()
			default:
				dx, dy, ok := flowfield.Decode(d)
				if ok {
					// Grid step (row, col) becomes screen (col, row)
					drawArrow(dc, cx, cy, float64(dy), float64(dx), px*0.4)
				}
			}

			if flags.Has(grid.FlagStart) {
				dc.SetColor(plotStart)
				dc.SetLineWidth(2)
				dc.DrawCircle(cx, cy, px*0.42)
				dc.Stroke()
			}
		}
	}

	if len(opts.Path) > 1 {
		dc.SetColor(plotPath)
		dc.SetLineWidth(math.Max(2, px/6))
		for i, p := range opts.Path {
			sx := float64(p.Y)*px + px/2
			sy := float64(p.X)*px + px/2
			if i == 0 {
				dc.MoveTo(sx, sy)
			} else {
				dc.LineTo(sx, sy)
			}
		}
		dc.Stroke()
	}

	return dc
}

func drawPlotGrid(dc *gg.Context, n int, px float64) {
	dc.SetColor(plotGridLine)
	dc.SetLineWidth(1)
	extent := float64(n) * px
	for i := 0; i <= n; i++ {
		v := float64(i) * px
		dc.DrawLine(v, 0, v, extent)
		dc.Stroke()
		dc.DrawLine(0, v, extent, v)
		dc.Stroke()
	}
}

// drawArrow draws a line from the cell centre along (sx, sy) with a two-stroke head.
func drawArrow(dc *gg.Context, cx, cy, sx, sy, length float64) {
	norm := math.Hypot(sx, sy)
	if norm == 0 {
		return
	}
	ux, uy := sx/norm, sy/norm

	tailX, tailY := cx-ux*length*0.6, cy-uy*length*0.6
	tipX, tipY := cx+ux*length, cy+uy*length

	dc.SetColor(plotArrow)
	dc.SetLineWidth(math.Max(1, length/6))
	dc.DrawLine(tailX, tailY, tipX, tipY)
	dc.Stroke()

	head := length * 0.45
	angle := math.Atan2(uy, ux)
	for _, side := range []float64{-1, 1} {
		a := angle + math.Pi + side*math.Pi/6
		dc.DrawLine(tipX, tipY, tipX+math.Cos(a)*head, tipY+math.Sin(a)*head)
		dc.Stroke()
	}
}
