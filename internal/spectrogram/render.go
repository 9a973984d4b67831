package spectrogram

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
)

// Renderer turns a computed analysis into an image
type Renderer interface {
	Render(a *Analysis) ([]byte, error)
}

// PNGRenderer draws a two-panel PNG: the spectrogram heatmap on top and the
// average spectrum below, both over 0..MaxFreq
type PNGRenderer struct {
	Width         int
	HeatmapHeight int
	PlotHeight    int
}

// NewPNGRenderer creates a renderer with the default geometry
func NewPNGRenderer() *PNGRenderer {
	return &PNGRenderer{Width: 800, HeatmapHeight: 320, PlotHeight: 200}
}

const (
	panelGap = 16
	margin   = 8
)

var (
	background = color.RGBA{255, 255, 255, 255}
	axisColor  = color.RGBA{96, 96, 96, 255}
	gridColor  = color.RGBA{224, 224, 224, 255}
	lineColor  = color.RGBA{31, 119, 180, 255}
)

// viridisStops samples the viridis colormap at evenly spaced positions
var viridisStops = []color.RGBA{
	{68, 1, 84, 255},
	{72, 40, 120, 255},
	{62, 74, 137, 255},
	{49, 104, 142, 255},
	{38, 130, 142, 255},
	{31, 158, 137, 255},
	{53, 183, 121, 255},
	{109, 205, 89, 255},
	{180, 222, 44, 255},
	{253, 231, 37, 255},
}

// Render implements Renderer
func (r *PNGRenderer) Render(a *Analysis) ([]byte, error) {
	if a == nil || len(a.DB) == 0 || a.Frames == 0 {
		return nil, fmt.Errorf("nothing to render")
	}

	if r.Width <= 2*margin || r.HeatmapHeight <= 0 || r.PlotHeight <= 0 {
		return nil, fmt.Errorf("invalid render geometry %dx%d+%d", r.Width, r.HeatmapHeight, r.PlotHeight)
	}

	height := 2*margin + r.HeatmapHeight + panelGap + r.PlotHeight
	img := image.NewRGBA(image.Rect(0, 0, r.Width, height))
	fill(img, img.Bounds(), background)

	heat := image.Rect(margin, margin, r.Width-margin, margin+r.HeatmapHeight)
	plot := image.Rect(margin, heat.Max.Y+panelGap, r.Width-margin, heat.Max.Y+panelGap+r.PlotHeight)

	r.drawHeatmap(img, heat, a)
	r.drawSpectrum(img, plot, a)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// drawHeatmap maps frames to columns and bins to rows, low frequencies at the
// bottom
func (r *PNGRenderer) drawHeatmap(img *image.RGBA, rect image.Rectangle, a *Analysis) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range a.DB {
		for _, v := range row {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	span := hi - lo

	w, h := rect.Dx(), rect.Dy()
	bins := len(a.DB)

	for px := 0; px < w; px++ {
		frame := px * a.Frames / w
		for py := 0; py < h; py++ {
			bin := (h - 1 - py) * bins / h
			v := 0.0
			if span > 0 {
				v = (a.DB[bin][frame] - lo) / span
			}
			img.SetRGBA(rect.Min.X+px, rect.Min.Y+py, viridis(v))
		}
	}
}

// drawSpectrum plots the average spectrum in dB against frequency
func (r *PNGRenderer) drawSpectrum(img *image.RGBA, rect image.Rectangle, a *Analysis) {
	// Horizontal grid every 20 dB over the fixed 80 dB range
	for db := 0.0; db >= -topDB; db -= 20 {
		y := rect.Min.Y + int((-db/topDB)*float64(rect.Dy()-1))
		line(img, rect.Min.X, y, rect.Max.X-1, y, gridColor)
	}

	line(img, rect.Min.X, rect.Min.Y, rect.Min.X, rect.Max.Y-1, axisColor)
	line(img, rect.Min.X, rect.Max.Y-1, rect.Max.X-1, rect.Max.Y-1, axisColor)

	avg := a.AverageSpectrum
	if len(avg) < 2 {
		return
	}

	maxFreq := a.Freqs[len(a.Freqs)-1]
	if maxFreq <= 0 {
		return
	}

	point := func(i int) (int, int) {
		x := rect.Min.X + int(a.Freqs[i]/maxFreq*float64(rect.Dx()-1))
		v := math.Max(-topDB, math.Min(0, avg[i]))
		y := rect.Min.Y + int((-v/topDB)*float64(rect.Dy()-1))
		return x, y
	}

	x0, y0 := point(0)
	for i := 1; i < len(avg); i++ {
		x1, y1 := point(i)
		line(img, x0, y0, x1, y1, lineColor)
		x0, y0 = x1, y1
	}
}

// viridis maps v in [0, 1] onto the palette with linear interpolation
func viridis(v float64) color.RGBA {
	if math.IsNaN(v) || v <= 0 {
		return viridisStops[0]
	}
	if v >= 1 {
		return viridisStops[len(viridisStops)-1]
	}

	pos := v * float64(len(viridisStops)-1)
	i := int(pos)
	frac := pos - float64(i)
	a, b := viridisStops[i], viridisStops[i+1]

	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*frac))
	}
	return color.RGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), 255}
}

func fill(img *image.RGBA, rect image.Rectangle, c color.RGBA) {
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

// line draws with Bresenham's algorithm
func line(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}

	err := dx + dy
	for {
		img.SetRGBA(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
