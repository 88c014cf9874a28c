package expr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/lookup"
)

var (
	region = dynamo.NewDimension("region", "north", "south")
	gender = dynamo.NewDimension("gender", "female", "male")
)

type mapEnv struct {
	values map[string]dynamo.Array
	tables map[string]*lookup.Table
	t, dt  float64
}

func (m *mapEnv) Value(name string) (dynamo.Array, error) {
	v, ok := m.values[name]
	if !ok {
		return dynamo.Array{}, fmt.Errorf("%w: %s", dynamo.ErrUnknownVariable, name)
	}
	return v, nil
}

func (m *mapEnv) Table(name string) (*lookup.Table, error) {
	t, ok := m.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", dynamo.ErrUnknownVariable, name)
	}
	return t, nil
}

func (m *mapEnv) Time() float64        { return m.t }
func (m *mapEnv) TimeStep() float64    { return m.dt }
func (m *mapEnv) InitialTime() float64 { return 0 }
func (m *mapEnv) FinalTime() float64   { return 100 }

func (m *mapEnv) Shape(name string) (dynamo.Shape, error) {
	v, err := m.Value(name)
	return v.Shape, err
}

func (m *mapEnv) IsTable(name string) bool {
	_, ok := m.tables[name]
	return ok
}

func newEnv(t *testing.T) *mapEnv {
	t.Helper()
	tbl, err := lookup.New("effect", []lookup.Point{{X: 0, Y: 0}, {X: 10, Y: 100}})
	require.NoError(t, err)
	return &mapEnv{
		values: map[string]dynamo.Array{
			"a":                    dynamo.Scalar(2),
			"b":                    dynamo.Scalar(5),
			"pop":                  {Shape: dynamo.Shape{region, gender}, Data: []float64{1, 2, 3, 4}},
			"by_region":            {Shape: dynamo.Shape{region}, Data: []float64{10, 20}},
			"Population by Gender": {Shape: dynamo.Shape{region, gender}, Data: []float64{5, 6, 7, 8}},
		},
		tables: map[string]*lookup.Table{"effect": tbl},
		t:      3,
		dt:     0.5,
	}
}

func evalString(t *testing.T, env Env, src string) dynamo.Array {
	t.Helper()
	e, err := Parse(src)
	require.NoError(t, err, src)
	v, err := e.Eval(env)
	require.NoError(t, err, src)
	return v
}

func TestParse_Precedence(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"1 + 2 * 3", "(1 + (2 * 3))"},
		{"(1 + 2) * 3", "((1 + 2) * 3)"},
		{"2 ^ 3 ^ 2", "(2 ^ (3 ^ 2))"},
		{"-2 ^ 2", "-(2 ^ 2)"},
		{"a - b - 1", "((a - b) - 1)"},
		{"a < b and b > 1 or not a", "(((a < b) and (b > 1)) or not a)"},
		{"pop[north, male] / 2", "(pop[north,male] / 2)"},
		{"\"Population by Gender\"[south]", "\"Population by Gender\"[south]"},
		{"min(a, b)", "MIN(a, b)"},
		{"time * 2", "(TIME() * 2)"},
		{"1.5e-3 + .5", "(0.0015 + 0.5)"},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			e, err := Parse(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.String())
		})
	}
}

func TestParse_Errors(t *testing.T) {
	for _, src := range []string{"", "1 +", "(a", "a b", "f(1,", "pop[", "a $ b", "\"unterminated", "1 ) 2"} {
		t.Run(src, func(t *testing.T) {
			_, err := Parse(src)
			require.Error(t, err)
			var syn *SyntaxError
			assert.True(t, errors.As(err, &syn), "want *SyntaxError, got %T", err)
		})
	}
}

func TestRefs(t *testing.T) {
	e, err := Parse("effect(a / b) + pop[north] * a + TIME + DELAY1(b, 3)")
	require.NoError(t, err)
	assert.Equal(t, []string{"effect", "a", "b", "pop"}, e.Refs())
}

func TestEval_Arithmetic(t *testing.T) {
	env := newEnv(t)

	tests := []struct {
		src  string
		want float64
	}{
		{"a + b * 2", 12},
		{"b / a", 2.5},
		{"a ^ 3", 8},
		{"-a + 1", -1},
		{"a < b", 1},
		{"a >= b", 0},
		{"a = 2 and b <> 2", 1},
		{"not (a = 2) or 0", 0},
		{"MIN(a, b) + MAX(a, b)", 7},
		{"ABS(-3) + SQRT(16) + INTEGER(2.7)", 9},
		{"MODULO(7, 3)", 1},
		{"ZIDZ(a, 0) + XIDZ(a, 0, 9)", 9},
		{"IF_THEN_ELSE(a > 1, 10, 20)", 10},
		{"effect(a)", 20},
		{"effect(50)", 100},
		{"TIME + TIME_STEP", 3.5},
		{"FINAL_TIME - INITIAL_TIME", 100},
		{"SUM(pop)", 10},
		{"MEAN(by_region)", 15},
		{"LN(EXP(2))", 2},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			v := evalString(t, env, tt.src)
			require.True(t, v.IsScalar())
			assert.InDelta(t, tt.want, v.Value(), 1e-12)
		})
	}
}

func TestEval_TimeFunctions(t *testing.T) {
	env := newEnv(t)

	tests := []struct {
		src  string
		t    float64
		want float64
	}{
		{"STEP(5, 3)", 2.5, 0},
		{"STEP(5, 3)", 3, 5},
		{"RAMP(2, 1, 4)", 0.5, 0},
		{"RAMP(2, 1, 4)", 3, 4},
		{"RAMP(2, 1, 4)", 10, 6},
		{"RAMP(2, 1)", 10, 18},
		{"PULSE(3, 1)", 2.5, 0},
		{"PULSE(3, 1)", 3, 1},
		{"PULSE(3, 1)", 3.5, 1},
		{"PULSE(3, 1)", 4, 0},
		{"PULSE(3, 0)", 3, 1},
		{"PULSE(3, 0)", 3.5, 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s@%g", tt.src, tt.t), func(t *testing.T) {
			env.t = tt.t
			v := evalString(t, env, tt.src)
			assert.InDelta(t, tt.want, v.Value(), 1e-12)
		})
	}
}

func TestEval_Broadcasting(t *testing.T) {
	env := newEnv(t)

	v := evalString(t, env, "pop * a")
	assert.Equal(t, []float64{2, 4, 6, 8}, v.Data)
	assert.True(t, v.Shape.Equal(dynamo.Shape{region, gender}))

	v = evalString(t, env, "pop[male] + by_region")
	assert.Equal(t, []float64{12, 24}, v.Data)

	v = evalString(t, env, "\"Population by Gender\"[south, female]")
	assert.True(t, v.IsScalar())
	assert.Equal(t, 7.0, v.Value())

	v = evalString(t, env, "IF_THEN_ELSE(by_region > 15, 1, 0)")
	assert.Equal(t, []float64{0, 1}, v.Data)

	v = evalString(t, env, "effect(by_region / 4)")
	assert.Equal(t, []float64{25, 50}, v.Data)
}

func TestEval_Errors(t *testing.T) {
	env := newEnv(t)

	tests := []struct {
		src    string
		target error
	}{
		{"pop + by_region", dynamo.ErrDimensionMismatch},
		{"missing + 1", dynamo.ErrUnknownVariable},
		{"pop[east]", dynamo.ErrUnknownVariable},
		{"nolookup(1)", dynamo.ErrUnknownVariable},
		{"DELAY1(a, 2)", ErrNotLowered},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			e, err := Parse(tt.src)
			require.NoError(t, err)
			_, err = e.Eval(env)
			assert.ErrorIs(t, err, tt.target)
		})
	}

	e := MustParse("MIN(a)")
	_, err := e.Eval(env)
	assert.Error(t, err)
}

func TestInfer(t *testing.T) {
	env := newEnv(t)

	tests := []struct {
		src  string
		want dynamo.Shape
	}{
		{"a + 1", nil},
		{"pop * 2", dynamo.Shape{region, gender}},
		{"pop[female]", dynamo.Shape{region}},
		{"SUM(pop)", nil},
		{"effect(by_region)", dynamo.Shape{region}},
		{"DELAY3(by_region, a)", dynamo.Shape{region}},
		{"IF_THEN_ELSE(a, pop, 0)", dynamo.Shape{region, gender}},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			s, err := Infer(MustParse(tt.src).Root, env)
			require.NoError(t, err)
			assert.True(t, s.Equal(tt.want), "got %s want %s", s, tt.want)
		})
	}

	_, err := Infer(MustParse("pop + by_region").Root, env)
	assert.ErrorIs(t, err, dynamo.ErrDimensionMismatch)

	_, err = Infer(MustParse("DELAY1I(a, 2)").Root, env)
	assert.Error(t, err)

	_, err = Infer(MustParse("effect + 1").Root, env)
	assert.Error(t, err)
}

func TestRewrite(t *testing.T) {
	e := MustParse("1 + DELAY1(a, 3) * 2")
	out, err := Rewrite(e.Root, func(n Node) (Node, error) {
		if c, ok := n.(*Call); ok && IsDelay(c.Func) {
			return &Ref{Name: "hidden"}, nil
		}
		return n, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "(1 + (hidden * 2))", out.String())
	// The original tree is untouched.
	assert.Equal(t, "(1 + (DELAY1(a, 3) * 2))", e.String())

	spec, ok := LookupDelay("SMOOTH3I")
	require.True(t, ok)
	assert.Equal(t, 3, spec.Order)
	assert.Equal(t, 3, spec.Args())
}
