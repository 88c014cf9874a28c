// Package metrics derives scalar figures from runs, either after the fact
// from a result table or incrementally as a run observer.
package metrics

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/stockflow/internal/sim"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Metric accumulates over the states a driver reports.
type Metric interface {
	Name() string
	Observe(s *sim.State)
	Value() float64
	Reset()
}

// Collector fans driver notifications out to several metrics.
type Collector struct {
	metrics []Metric
}

func NewCollector(ms ...Metric) *Collector {
	return &Collector{metrics: ms}
}

func (c *Collector) OnStep(s *sim.State) {
	for _, m := range c.metrics {
		m.Observe(s)
	}
}

func (c *Collector) Values() map[string]float64 {
	out := make(map[string]float64, len(c.metrics))
	for _, m := range c.metrics {
		out[m.Name()] = m.Value()
	}
	return out
}

// Peak tracks the largest element of one variable across saved frames.
type Peak struct {
	variable string
	max      float64
	seen     bool
}

func NewPeak(variable string) *Peak {
	return &Peak{variable: variable}
}

func (p *Peak) Name() string { return p.variable + ".peak" }

func (p *Peak) Observe(s *sim.State) {
	if s.Frame == nil {
		return
	}
	v, err := s.Frame.Value(p.variable)
	if err != nil || len(v.Data) == 0 {
		return
	}
	m := floats.Max(v.Data)
	if !p.seen || m > p.max {
		p.max = m
		p.seen = true
	}
}

func (p *Peak) Value() float64 {
	if !p.seen {
		return math.NaN()
	}
	return p.max
}

func (p *Peak) Reset() {
	p.max = 0
	p.seen = false
}

// Stability is the fraction of steps whose state stays within threshold.
type Stability struct {
	threshold  float64
	violations int
	samples    int
}

func NewStability(threshold float64) *Stability {
	return &Stability{threshold: threshold}
}

func (s *Stability) Name() string { return "stability" }

func (s *Stability) Observe(st *sim.State) {
	s.samples++
	for _, val := range st.X {
		if math.Abs(val) > s.threshold {
			s.violations++
			break
		}
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}

// Summary describes one recorded column.
type Summary struct {
	Column string
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	First  float64
	Final  float64
}

// Summarize computes a Summary for every column of r, in column order.
func Summarize(r *sim.Result) ([]Summary, error) {
	if r.Len() == 0 {
		return nil, fmt.Errorf("metrics: result has no snapshots")
	}
	cols := r.Columns()
	out := make([]Summary, 0, len(cols))
	for _, key := range cols {
		data, err := r.Column(key)
		if err != nil {
			return nil, err
		}
		out = append(out, Summary{
			Column: key,
			Mean:   stat.Mean(data, nil),
			StdDev: stat.StdDev(data, nil),
			Min:    floats.Min(data),
			Max:    floats.Max(data),
			First:  data[0],
			Final:  data[len(data)-1],
		})
	}
	return out, nil
}

// Flatten turns summaries into "column.stat" entries for run metadata.
func Flatten(ss []Summary) map[string]float64 {
	out := make(map[string]float64, len(ss)*4)
	for _, s := range ss {
		out[s.Column+".mean"] = s.Mean
		out[s.Column+".min"] = s.Min
		out[s.Column+".max"] = s.Max
		out[s.Column+".final"] = s.Final
	}
	return out
}

// Compare reports the largest absolute difference per shared column after
// interpolating b onto a's saved times.
func Compare(a, b *sim.Result) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, key := range a.Columns() {
		av, err := a.Column(key)
		if err != nil {
			return nil, err
		}
		if _, err := b.Column(key); err != nil || len(av) == 0 {
			continue
		}
		diffs := make([]float64, len(av))
		for i, t := range a.Times {
			bv, err := b.At(key, t)
			if err != nil {
				return nil, err
			}
			diffs[i] = math.Abs(av[i] - bv)
		}
		out[key] = floats.Max(diffs)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("metrics: results share no columns")
	}
	return out, nil
}

// SortedKeys lists map keys alphabetically for stable printing.
func SortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
