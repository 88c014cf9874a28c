// Package lookup evaluates tabulated nonlinear relationships.
//
// A [Table] is an immutable sequence of breakpoints sorted by x. Queries
// interpolate linearly between the bracketing breakpoints and clamp to the
// boundary y outside the table's domain; tables never extrapolate. Tables are
// safe for concurrent reads.
package lookup

import (
	"math"
	"sort"

	"github.com/san-kum/stockflow/internal/dynamo"
)

// Point is one (x, y) breakpoint.
type Point struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

type Table struct {
	name string
	xs   []float64
	ys   []float64
}

// New validates and copies the breakpoints. The name only labels errors.
func New(name string, points []Point) (*Table, error) {
	if len(points) < 2 {
		return nil, &dynamo.TableError{Table: name, Reason: "at least 2 breakpoints required"}
	}

	t := &Table{
		name: name,
		xs:   make([]float64, len(points)),
		ys:   make([]float64, len(points)),
	}
	for i, p := range points {
		if math.IsNaN(p.X) || math.IsInf(p.X, 0) || math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
			return nil, &dynamo.TableError{Table: name, Reason: "breakpoints must be finite"}
		}
		if i > 0 && !(p.X > points[i-1].X) {
			return nil, &dynamo.TableError{Table: name, Reason: "x values must be strictly increasing"}
		}
		t.xs[i] = p.X
		t.ys[i] = p.Y
	}
	return t, nil
}

// FromPairs builds a table from flat x and y slices of equal length.
func FromPairs(name string, xs, ys []float64) (*Table, error) {
	if len(xs) != len(ys) {
		return nil, &dynamo.TableError{Table: name, Reason: "x and y counts differ"}
	}
	points := make([]Point, len(xs))
	for i := range xs {
		points[i] = Point{X: xs[i], Y: ys[i]}
	}
	return New(name, points)
}

func (t *Table) Name() string { return t.name }

func (t *Table) Len() int { return len(t.xs) }

// Domain returns the first and last breakpoint x.
func (t *Table) Domain() (float64, float64) {
	return t.xs[0], t.xs[len(t.xs)-1]
}

func (t *Table) Points() []Point {
	points := make([]Point, len(t.xs))
	for i := range t.xs {
		points[i] = Point{X: t.xs[i], Y: t.ys[i]}
	}
	return points
}

// Eval interpolates y at x, clamping outside the domain.
func (t *Table) Eval(x float64) float64 {
	n := len(t.xs)
	if math.IsNaN(x) {
		return math.NaN()
	}
	if x <= t.xs[0] {
		return t.ys[0]
	}
	if x >= t.xs[n-1] {
		return t.ys[n-1]
	}

	// First index with xs[i] >= x; 1 <= i <= n-1 here.
	i := sort.SearchFloat64s(t.xs, x)
	if t.xs[i] == x {
		return t.ys[i]
	}

	x0, x1 := t.xs[i-1], t.xs[i]
	y0, y1 := t.ys[i-1], t.ys[i]
	frac := (x - x0) / (x1 - x0)
	return y0 + frac*(y1-y0)
}

// EvalArray applies Eval to every element of a.
func (t *Table) EvalArray(a dynamo.Array) dynamo.Array {
	return a.Map(t.Eval)
}
