// Package export renders runs as standalone SVG charts.
package export

import (
	"fmt"
	"html"
	"math"
	"strings"

	"github.com/san-kum/stockflow/internal/analysis"
	"github.com/san-kum/stockflow/internal/sim"
)

// Palette cycles through these stroke colors, one per series.
var Palette = []string{"#00ffff", "#ff00ff", "#ffcc00", "#00ff88", "#ff6b6b", "#0088ff", "#ffffff"}

const margin = 48.0

type bounds struct{ minX, maxX, minY, maxY float64 }

func (b *bounds) pad() {
	if b.maxX == b.minX {
		b.maxX = b.minX + 1
	}
	rangeY := b.maxY - b.minY
	if rangeY == 0 {
		rangeY = math.Max(1, math.Abs(b.maxY))
	}
	b.minY -= rangeY * 0.05
	b.maxY += rangeY * 0.05
}

func (b bounds) project(x, y float64, width, height int) (float64, float64) {
	w := float64(width) - 2*margin
	h := float64(height) - 2*margin
	px := margin + (x-b.minX)/(b.maxX-b.minX)*w
	py := margin + h - (y-b.minY)/(b.maxY-b.minY)*h
	return px, py
}

func header(sb *strings.Builder, width, height int, title string) {
	fmt.Fprintf(sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<text x="%.0f" y="24" fill="#cccccc" font-family="monospace" font-size="14">%s</text>
`, width, height, width, height, margin, html.EscapeString(title))
}

func axes(sb *strings.Builder, b bounds, width, height int) {
	x0, y0 := b.project(b.minX, b.minY, width, height)
	x1, y1 := b.project(b.maxX, b.maxY, width, height)
	fmt.Fprintf(sb, `<path fill="none" stroke="#444466" d="M%.1f,%.1f L%.1f,%.1f L%.1f,%.1f"/>
`, x0, y1, x0, y0, x1, y0)
	fmt.Fprintf(sb, `<g fill="#888899" font-family="monospace" font-size="10">
<text x="%.1f" y="%.1f">%g</text>
<text x="%.1f" y="%.1f" text-anchor="end">%g</text>
<text x="%.1f" y="%.1f" text-anchor="end">%.4g</text>
<text x="%.1f" y="%.1f" text-anchor="end">%.4g</text>
</g>
`, x0, y0+14, b.minX, x1, y0+14, b.maxX, x0-4, y0, b.minY, x0-4, y1+8, b.maxY)
}

func path(sb *strings.Builder, b bounds, xs, ys []float64, width, height int, color string) {
	sb.WriteString(`<path fill="none" stroke="` + color + `" stroke-width="1.5" d="`)
	for i := range xs {
		x, y := b.project(xs[i], ys[i], width, height)
		if i == 0 {
			fmt.Fprintf(sb, "M%.1f,%.1f", x, y)
		} else {
			fmt.Fprintf(sb, " L%.1f,%.1f", x, y)
		}
	}
	sb.WriteString("\"/>\n")
}

// SeriesChart plots the given columns of r against time. With no columns
// every recorded column is drawn.
func SeriesChart(r *sim.Result, columns []string, width, height int, title string) (string, error) {
	if r.Len() < 2 {
		return "", fmt.Errorf("export: need at least two snapshots, have %d", r.Len())
	}
	if len(columns) == 0 {
		columns = r.Columns()
	}

	series := make([][]float64, len(columns))
	b := bounds{minX: r.Times[0], maxX: r.Times[r.Len()-1], minY: math.Inf(1), maxY: math.Inf(-1)}
	for i, key := range columns {
		col, err := r.Column(key)
		if err != nil {
			return "", err
		}
		series[i] = col
		for _, v := range col {
			b.minY, b.maxY = math.Min(b.minY, v), math.Max(b.maxY, v)
		}
	}
	b.pad()

	var sb strings.Builder
	header(&sb, width, height, title)
	axes(&sb, b, width, height)
	for i, col := range series {
		color := Palette[i%len(Palette)]
		path(&sb, b, r.Times, col, width, height, color)
		fmt.Fprintf(&sb, `<text x="%.0f" y="%.0f" fill="%s" font-family="monospace" font-size="11" text-anchor="end">%s</text>
`, float64(width)-margin, margin+float64(i)*14, color, html.EscapeString(columns[i]))
	}
	sb.WriteString("</svg>\n")
	return sb.String(), nil
}

// PhaseChart draws a phase portrait as a single trajectory.
func PhaseChart(p *analysis.PhasePortrait, width, height int, color string) (string, error) {
	if p == nil || len(p.Points) < 2 {
		return "", fmt.Errorf("export: phase portrait needs at least two points")
	}
	xs := make([]float64, len(p.Points))
	ys := make([]float64, len(p.Points))
	b := bounds{minX: math.Inf(1), maxX: math.Inf(-1), minY: math.Inf(1), maxY: math.Inf(-1)}
	for i, pt := range p.Points {
		xs[i], ys[i] = pt.X, pt.Y
		b.minX, b.maxX = math.Min(b.minX, pt.X), math.Max(b.maxX, pt.X)
		b.minY, b.maxY = math.Min(b.minY, pt.Y), math.Max(b.maxY, pt.Y)
	}
	b.pad()

	var sb strings.Builder
	header(&sb, width, height, p.YLabel+" vs "+p.XLabel)
	axes(&sb, b, width, height)
	path(&sb, b, xs, ys, width, height, color)
	sb.WriteString("</svg>\n")
	return sb.String(), nil
}
