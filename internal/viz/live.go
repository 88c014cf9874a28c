package viz

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/sim"
)

const historyCapacity = 600

type frameMsg struct {
	time   float64
	step   int
	values []float64
}

type doneMsg struct {
	result *sim.Result
	err    error
}

// gate blocks the stepping goroutine while the view is paused.
type gate struct {
	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

func (g *gate) toggle() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		close(g.resume)
	} else {
		g.resume = make(chan struct{})
	}
	g.paused = !g.paused
	return g.paused
}

func (g *gate) wait(ctx context.Context) {
	g.mu.Lock()
	ch := g.resume
	paused := g.paused
	g.mu.Unlock()
	if !paused {
		return
	}
	select {
	case <-ch:
	case <-ctx.Done():
	}
}

// Live follows a driver in a Bubble Tea program. Register it with
// sim.WithObserver before calling Run.
type Live struct {
	name    string
	outputs []sim.Output
	pace    time.Duration
	theme   Theme

	ctx     context.Context
	gate    *gate
	program *tea.Program
}

// NewLive prepares a view for the given outputs. pace is slept after every
// saved frame so fast runs stay watchable.
func NewLive(name string, outputs []sim.Output, pace time.Duration, theme Theme) *Live {
	return &Live{name: name, outputs: outputs, pace: pace, theme: theme, ctx: context.Background(), gate: &gate{}}
}

func (l *Live) OnStep(s *sim.State) {
	l.gate.wait(l.ctx)
	if s.Frame == nil || l.program == nil {
		return
	}
	var values []float64
	for _, o := range l.outputs {
		v, err := s.Frame.Value(o.Name)
		if err != nil {
			v = dynamo.Zeros(o.Shape)
		}
		values = append(values, v.Data...)
	}
	l.program.Send(frameMsg{time: s.Time, step: s.Step, values: values})
	if l.pace > 0 {
		select {
		case <-time.After(l.pace):
		case <-l.ctx.Done():
		}
	}
}

// Run drives d inside the view. Quitting the view cancels the run; the
// driver's result and error are returned either way.
func (l *Live) Run(ctx context.Context, d *sim.Driver) (*sim.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	l.ctx = ctx

	var columns []string
	for _, o := range l.outputs {
		for i := 0; i < o.Shape.Size(); i++ {
			columns = append(columns, dynamo.ElementName(o.Name, o.Shape, i))
		}
	}
	m := newModel(l.name, columns, d.Config().Steps(), l.theme, l.gate)
	l.program = tea.NewProgram(m)

	done := make(chan doneMsg, 1)
	go func() {
		r, err := d.Run(ctx)
		done <- doneMsg{r, err}
		l.program.Send(doneMsg{r, err})
	}()

	if _, err := l.program.Run(); err != nil {
		cancel()
		<-done
		return nil, err
	}
	cancel()
	res := <-done
	return res.result, res.err
}

type model struct {
	name     string
	columns  []string
	steps    int
	gate     *gate
	styles   Styles
	selected int

	step    int
	time    float64
	history [][]float64
	status  sim.Status
	paused  bool
	err     error
}

func newModel(name string, columns []string, steps int, theme Theme, g *gate) model {
	return model{
		name:    name,
		columns: columns,
		steps:   steps,
		gate:    g,
		styles:  NewStyles(theme),
		history: make([][]float64, len(columns)),
		status:  sim.Running,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			if !m.status.Terminal() {
				m.paused = m.gate.toggle()
			}
		case "tab", "down", "j":
			if len(m.columns) > 0 {
				m.selected = (m.selected + 1) % len(m.columns)
			}
		case "shift+tab", "up", "k":
			if len(m.columns) > 0 {
				m.selected = (m.selected + len(m.columns) - 1) % len(m.columns)
			}
		case "t":
			m.styles = NewStyles(m.styles.theme.next())
		}
	case frameMsg:
		m.step, m.time = msg.step, msg.time
		for i, v := range msg.values {
			if i >= len(m.history) {
				break
			}
			h := append(m.history[i], v)
			if len(h) > historyCapacity {
				h = h[len(h)-historyCapacity:]
			}
			m.history[i] = h
		}
	case doneMsg:
		m.err = msg.err
		if msg.result != nil {
			m.status = msg.result.Status
		} else {
			m.status = sim.Failed
		}
		m.paused = false
	}
	return m, nil
}

func (m model) View() string {
	st := m.styles
	var s strings.Builder
	s.WriteString(st.Title.Render(strings.ToUpper(m.name)) + "\n")

	status := st.Status(m.status)
	if m.paused {
		status = st.Selected.Render("PAUSED")
	}
	fraction := 0.0
	if m.steps > 0 {
		fraction = float64(m.step) / float64(m.steps)
	}
	fmt.Fprintf(&s, "%s  %s  t=%.3f  step %d/%d\n", status, st.ProgressBar(fraction, 30), m.time, m.step, m.steps)
	if m.err != nil {
		s.WriteString(st.Subtle.Render(m.err.Error()) + "\n")
	}

	if len(m.columns) > 0 {
		sel := m.history[m.selected]
		if len(sel) > 1 {
			chart := asciigraph.Plot(sel, asciigraph.Height(10), asciigraph.Width(60), asciigraph.Caption(m.columns[m.selected]))
			s.WriteString(st.Graph.Render(chart) + "\n")
		}
	}

	var rows strings.Builder
	for i, key := range m.columns {
		val := "-"
		if h := m.history[i]; len(h) > 0 {
			val = fmt.Sprintf("%14.4f", h[len(h)-1])
		}
		if i == m.selected {
			rows.WriteString(st.Selected.Render(fmt.Sprintf("> %-26s %s", key, val)) + "\n")
		} else {
			rows.WriteString("  " + st.Label.Render(key) + st.Value.Render(val) + "\n")
		}
	}
	s.WriteString(st.Panel.Render(strings.TrimRight(rows.String(), "\n")) + "\n")
	s.WriteString(st.Subtle.Render("SP:Pause  Tab/↑↓:Column  T:Theme  Q:Quit"))
	return lipgloss.NewStyle().Padding(1, 2).Render(s.String())
}
