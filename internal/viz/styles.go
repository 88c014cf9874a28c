package viz

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/stockflow/internal/sim"
)

// Styles is the set of lipgloss styles derived from a theme.
type Styles struct {
	Title    lipgloss.Style
	Label    lipgloss.Style
	Value    lipgloss.Style
	Selected lipgloss.Style
	Subtle   lipgloss.Style
	Graph    lipgloss.Style
	Panel    lipgloss.Style

	high, mid, low lipgloss.Style
	theme          Theme
}

func NewStyles(t Theme) Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(t.Secondary).MarginBottom(1),
		Label:    lipgloss.NewStyle().Foreground(t.Muted).Width(28),
		Value:    lipgloss.NewStyle().Foreground(t.Text),
		Selected: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Subtle:   lipgloss.NewStyle().Foreground(t.Muted),
		Graph:    lipgloss.NewStyle().Foreground(t.Secondary).Padding(1, 0),
		Panel:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Muted).Padding(0, 1),
		high:     lipgloss.NewStyle().Foreground(t.Success),
		mid:      lipgloss.NewStyle().Foreground(t.Warning),
		low:      lipgloss.NewStyle().Foreground(t.Error),
		theme:    t,
	}
}

// Status renders a run status in its theme color.
func (s Styles) Status(st sim.Status) string {
	label := strings.ToUpper(st.String())
	switch st {
	case sim.Completed:
		return s.high.Bold(true).Render(label)
	case sim.Failed:
		return s.low.Bold(true).Render(label)
	case sim.Running:
		return s.Selected.Render(label)
	}
	return s.mid.Render(label)
}

func (s Styles) ProgressBar(fraction float64, width int) string {
	filled := int(fraction * float64(width))
	filled = max(0, min(width, filled))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	switch {
	case fraction > 0.8:
		return s.high.Render(bar)
	case fraction > 0.4:
		return s.mid.Render(bar)
	}
	return s.low.Render(bar)
}

var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline squeezes values into width block characters. Values are
// sampled, not averaged.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return strings.Repeat("─", max(width, 0))
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo, hi = min(lo, v), max(hi, v)
	}
	rng := hi - lo
	if rng == 0 {
		rng = 1
	}

	n := min(width, len(values))
	var b strings.Builder
	for i := 0; i < n; i++ {
		v := values[i*len(values)/n]
		idx := int((v - lo) * float64(len(sparkChars)-1) / rng)
		b.WriteRune(sparkChars[max(0, min(len(sparkChars)-1, idx))])
	}
	return b.String()
}

// Summary renders the final row of a result as a labelled table with a
// sparkline per column.
func (s Styles) Summary(name string, r *sim.Result) string {
	var b strings.Builder
	b.WriteString(s.Title.Render(name) + "\n")
	fmt.Fprintf(&b, "%s %s  %s\n", s.Label.Render("status"), s.Status(r.Status), s.Subtle.Render(fmt.Sprintf("%d steps, %d snapshots", r.StepsTaken, r.Len())))
	if r.Underflows > 0 {
		fmt.Fprintf(&b, "%s %s\n", s.Label.Render("underflows"), s.mid.Render(fmt.Sprint(r.Underflows)))
	}
	last := r.Last()
	for _, key := range r.Columns() {
		col, _ := r.Column(key)
		fmt.Fprintf(&b, "%s %s  %s\n", s.Label.Render(key), s.Value.Render(fmt.Sprintf("%14.4f", last[key])), s.Subtle.Render(Sparkline(col, 24)))
	}
	return s.Panel.Render(strings.TrimRight(b.String(), "\n"))
}
