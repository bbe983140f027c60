package web

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/sweeney/tec-monitor/internal/session"
)

const (
	plotWidth  = 8 * vg.Inch
	plotHeight = 6 * vg.Inch
)

var (
	colorSetPoint = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
	colorTemp1    = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	colorTemp2    = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	colorOutput   = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}
)

// renderPlot draws the history window as a PNG: temperatures and set-point
// on top, output below, sharing the time axis.
func renderPlot(w io.Writer, s session.Series, width, height vg.Length) error {
	times := make([]float64, s.Len())
	for i, t := range s.Times {
		times[i] = float64(t.UnixMicro()) / 1e6
	}

	temps := plot.New()
	temps.Title.Text = "Temperature"
	temps.Y.Label.Text = "°C"
	temps.X.Tick.Marker = plot.TimeTicks{Format: "15:04:05"}
	temps.Legend.Top = true
	for _, l := range []struct {
		name  string
		ys    []float64
		color color.Color
	}{
		{"set-point", s.SetPoints, colorSetPoint},
		{"sensor 1", s.Temperature1, colorTemp1},
		{"sensor 2", s.Temperature2, colorTemp2},
	} {
		if err := addLine(temps, l.name, times, l.ys, l.color); err != nil {
			return err
		}
	}

	out := plot.New()
	out.Title.Text = "Output"
	out.Y.Label.Text = "%"
	out.X.Label.Text = "time"
	out.X.Tick.Marker = plot.TimeTicks{Format: "15:04:05"}
	if err := addLine(out, "output", times, s.Output, colorOutput); err != nil {
		return err
	}
	out.Add(plotter.NewGrid())

	img := vgimg.New(width, height)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      2,
		Cols:      1,
		PadTop:    vg.Points(4),
		PadBottom: vg.Points(4),
		PadLeft:   vg.Points(4),
		PadRight:  vg.Points(4),
		PadY:      vg.Points(8),
	}
	plots := [][]*plot.Plot{{temps}, {out}}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

func addLine(p *plot.Plot, name string, xs, ys []float64, c color.Color) error {
	pts := make(plotter.XYs, len(xs))
	for i := range xs {
		pts[i].X = xs[i]
		pts[i].Y = ys[i]
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("plot %s: %w", name, err)
	}
	line.Color = c
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add(name, line)
	return nil
}
