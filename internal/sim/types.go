package sim

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/graph"
)

// Status is the lifecycle state of one run.
type Status int

const (
	Configured Status = iota
	Initializing
	Running
	Completed
	Failed
)

func (s Status) String() string {
	switch s {
	case Configured:
		return "configured"
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool { return s == Completed || s == Failed }

// State is the simulation state after an accepted step. Frame is only set
// on save steps.
type State struct {
	Time  float64
	Step  int
	X     dynamo.State
	Frame *graph.Frame
}

type Observer interface {
	OnStep(s *State)
}

type ObserverFunc func(s *State)

func (f ObserverFunc) OnStep(s *State) { f(s) }

// Output is one recorded variable and the shape its columns expand from.
type Output struct {
	Name  string
	Shape dynamo.Shape
}

// maxDiagnostics bounds the underflow warnings kept on a Result.
const maxDiagnostics = 1000

// Result is the time-indexed table of a run, one column per output element.
type Result struct {
	Status     Status
	Err        error
	Integrator string
	Config     dynamo.RunConfig
	Outputs    []Output
	Times      []float64
	StepsTaken int
	Final      *State

	Diagnostics []dynamo.UnderflowWarning
	Underflows  int

	columns []string
	index   map[string]int
	data    [][]float64
}

func newResult(cfg dynamo.RunConfig, integrator string, outputs []Output) *Result {
	r := &Result{
		Status:     Configured,
		Integrator: integrator,
		Config:     cfg,
		Outputs:    outputs,
		index:      make(map[string]int),
	}
	for _, o := range outputs {
		for i := 0; i < o.Shape.Size(); i++ {
			key := dynamo.ElementName(o.Name, o.Shape, i)
			r.index[key] = len(r.columns)
			r.columns = append(r.columns, key)
		}
	}
	r.data = make([][]float64, len(r.columns))
	return r
}

func (r *Result) record(f *graph.Frame) error {
	values := make([]dynamo.Array, len(r.Outputs))
	for j, o := range r.Outputs {
		v, err := f.Value(o.Name)
		if err != nil {
			return err
		}
		if i := dynamo.State(v.Data).NonFinite(); i >= 0 {
			return &dynamo.DivergenceError{Variable: dynamo.ElementName(o.Name, o.Shape, i), Value: v.Data[i]}
		}
		values[j] = v
	}
	col := 0
	for _, v := range values {
		for _, x := range v.Data {
			r.data[col] = append(r.data[col], x)
			col++
		}
	}
	r.Times = append(r.Times, f.Time)
	return nil
}

func (r *Result) warn(w dynamo.UnderflowWarning) {
	r.Underflows++
	if len(r.Diagnostics) < maxDiagnostics {
		r.Diagnostics = append(r.Diagnostics, w)
	}
}

// NewTable rebuilds a result from stored columns. Series falls back to
// column keys for variables whose shapes are unknown.
func NewTable(times []float64, columns []string, data [][]float64) (*Result, error) {
	if len(columns) != len(data) {
		return nil, fmt.Errorf("%d columns but %d data series", len(columns), len(data))
	}
	r := &Result{Status: Completed, Times: times, index: make(map[string]int, len(columns))}
	for i, key := range columns {
		if len(data[i]) != len(times) {
			return nil, fmt.Errorf("column %s has %d values for %d times", key, len(data[i]), len(times))
		}
		r.index[key] = i
	}
	r.columns = append([]string(nil), columns...)
	r.data = data
	return r, nil
}

// Len is the number of saved snapshots.
func (r *Result) Len() int { return len(r.Times) }

// Columns lists the column keys in output order, e.g. "pop[north,female]".
func (r *Result) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

func (r *Result) Column(key string) ([]float64, error) {
	i, ok := r.index[key]
	if !ok {
		return nil, fmt.Errorf("%w: no recorded column %s", dynamo.ErrUnknownVariable, key)
	}
	return r.data[i], nil
}

// Series returns the recorded values of one element of a variable.
func (r *Result) Series(name string, labels ...string) ([]float64, error) {
	for _, o := range r.Outputs {
		if o.Name != name {
			continue
		}
		off, err := o.Shape.Offset(labels...)
		if err != nil {
			return nil, err
		}
		return r.Column(dynamo.ElementName(name, o.Shape, off))
	}
	key := name
	if len(labels) > 0 {
		key += "[" + strings.Join(labels, ",") + "]"
	}
	return r.Column(key)
}

// At interpolates a recorded element linearly between saved times.
func (r *Result) At(name string, t float64, labels ...string) (float64, error) {
	s, err := r.Series(name, labels...)
	if err != nil {
		return 0, err
	}
	n := len(r.Times)
	if n == 0 || t < r.Times[0]-1e-9 || t > r.Times[n-1]+1e-9 {
		return 0, fmt.Errorf("time %g outside recorded range", t)
	}
	i := sort.SearchFloat64s(r.Times, t)
	if i < n && math.Abs(r.Times[i]-t) <= 1e-9 {
		return s[i], nil
	}
	if i == 0 {
		return s[0], nil
	}
	if i >= n {
		return s[n-1], nil
	}
	t0, t1 := r.Times[i-1], r.Times[i]
	return s[i-1] + (s[i]-s[i-1])*(t-t0)/(t1-t0), nil
}

// Row returns every column at snapshot i.
func (r *Result) Row(i int) []float64 {
	row := make([]float64, len(r.data))
	for c := range r.data {
		row[c] = r.data[c][i]
	}
	return row
}

// Last returns the final recorded value of each column keyed by column name.
func (r *Result) Last() map[string]float64 {
	out := make(map[string]float64, len(r.columns))
	if len(r.Times) == 0 {
		return out
	}
	for i, key := range r.columns {
		out[key] = r.data[i][len(r.data[i])-1]
	}
	return out
}
