package analysis

import (
	"fmt"
	"strings"
)

type Point struct{ X, Y float64 }

// PhasePortrait pairs two recorded columns sample by sample.
type PhasePortrait struct {
	XLabel, YLabel string
	Points         []Point
}

func NewPhasePortrait(xLabel string, xs []float64, yLabel string, ys []float64) (*PhasePortrait, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("analysis: %s has %d samples but %s has %d", xLabel, len(xs), yLabel, len(ys))
	}
	p := &PhasePortrait{XLabel: xLabel, YLabel: yLabel, Points: make([]Point, len(xs))}
	for i := range xs {
		p.Points[i] = Point{X: xs[i], Y: ys[i]}
	}
	return p, nil
}

// ASCII renders the trajectory on a width by height character grid.
func (p *PhasePortrait) ASCII(width, height int) string {
	if p == nil || len(p.Points) == 0 || width < 2 || height < 2 {
		return ""
	}

	minX, maxX := p.Points[0].X, p.Points[0].X
	minY, maxY := p.Points[0].Y, p.Points[0].Y
	for _, pt := range p.Points {
		minX, maxX = min(minX, pt.X), max(maxX, pt.X)
		minY, maxY = min(minY, pt.Y), max(maxY, pt.Y)
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	minY -= rangeY * 0.1
	rangeX *= 1.2
	rangeY *= 1.2

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}

	for i, pt := range p.Points {
		col := int((pt.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((pt.Y-minY)/rangeY*float64(height-1))
		mark := '•'
		if i == 0 {
			mark = 'o'
		}
		if row >= 0 && row < height && col >= 0 && col < width {
			canvas[row][col] = mark
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s vs %s\n", p.YLabel, p.XLabel)
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}
