package expr

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/lookup"
)

// ErrNotLowered is returned when a delay call reaches evaluation.
var ErrNotLowered = errors.New("expr: delay call must be lowered before evaluation")

// Env resolves names and simulation clock values during evaluation.
type Env interface {
	Value(name string) (dynamo.Array, error)
	Table(name string) (*lookup.Table, error)
	Time() float64
	TimeStep() float64
	InitialTime() float64
	FinalTime() float64
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

var binaryOps = map[string]func(x, y float64) float64{
	"+":   func(x, y float64) float64 { return x + y },
	"-":   func(x, y float64) float64 { return x - y },
	"*":   func(x, y float64) float64 { return x * y },
	"/":   func(x, y float64) float64 { return x / y },
	"^":   math.Pow,
	"=":   func(x, y float64) float64 { return b2f(x == y) },
	"<>":  func(x, y float64) float64 { return b2f(x != y) },
	"<":   func(x, y float64) float64 { return b2f(x < y) },
	"<=":  func(x, y float64) float64 { return b2f(x <= y) },
	">":   func(x, y float64) float64 { return b2f(x > y) },
	">=":  func(x, y float64) float64 { return b2f(x >= y) },
	"and": func(x, y float64) float64 { return b2f(x != 0 && y != 0) },
	"or":  func(x, y float64) float64 { return b2f(x != 0 || y != 0) },
}

// Eval evaluates the equation against env.
func (e *Expr) Eval(env Env) (dynamo.Array, error) {
	return Eval(e.Root, env)
}

func Eval(n Node, env Env) (dynamo.Array, error) {
	switch v := n.(type) {
	case *Number:
		return dynamo.Scalar(v.Value), nil
	case *Ref:
		a, err := env.Value(v.Name)
		if err != nil {
			return dynamo.Array{}, err
		}
		return SelectSubs(a, v.Name, v.Subs)
	case *Unary:
		x, err := Eval(v.X, env)
		if err != nil {
			return dynamo.Array{}, err
		}
		if v.Op == "not" {
			return x.Map(func(f float64) float64 { return b2f(f == 0) }), nil
		}
		return x.Map(func(f float64) float64 { return -f }), nil
	case *Binary:
		l, err := Eval(v.L, env)
		if err != nil {
			return dynamo.Array{}, err
		}
		r, err := Eval(v.R, env)
		if err != nil {
			return dynamo.Array{}, err
		}
		op, ok := binaryOps[v.Op]
		if !ok {
			return dynamo.Array{}, fmt.Errorf("expr: unknown operator %q", v.Op)
		}
		return dynamo.Binary(l, r, op)
	case *Call:
		return evalCall(v, env)
	}
	return dynamo.Array{}, fmt.Errorf("expr: unknown node %T", n)
}

// SelectSubs applies element selectors to a, each dropping the first axis
// that contains the label.
func SelectSubs(a dynamo.Array, name string, subs []string) (dynamo.Array, error) {
	for _, sub := range subs {
		axis, idx := -1, -1
		for i, d := range a.Shape {
			if j := d.Index(sub); j >= 0 {
				axis, idx = i, j
				break
			}
		}
		if axis < 0 {
			return dynamo.Array{}, fmt.Errorf("%w: %s has no element %q", dynamo.ErrUnknownVariable, name, sub)
		}
		a = a.Select(axis, idx)
	}
	return a, nil
}

func evalArgs(c *Call, env Env) ([]dynamo.Array, error) {
	args := make([]dynamo.Array, len(c.Args))
	for i, a := range c.Args {
		v, err := Eval(a, env)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func evalCall(c *Call, env Env) (dynamo.Array, error) {
	if IsDelay(c.Func) {
		return dynamo.Array{}, fmt.Errorf("%w: %s", ErrNotLowered, c.Func)
	}
	if err := checkArity(c); err != nil {
		return dynamo.Array{}, err
	}

	switch c.Func {
	case "TIME":
		return dynamo.Scalar(env.Time()), nil
	case "TIME_STEP":
		return dynamo.Scalar(env.TimeStep()), nil
	case "INITIAL_TIME":
		return dynamo.Scalar(env.InitialTime()), nil
	case "FINAL_TIME":
		return dynamo.Scalar(env.FinalTime()), nil
	}

	args, err := evalArgs(c, env)
	if err != nil {
		return dynamo.Array{}, err
	}

	if !isBuiltin(c.Func) {
		tbl, err := env.Table(c.Func)
		if err != nil {
			return dynamo.Array{}, err
		}
		return tbl.EvalArray(args[0]), nil
	}

	t, dt := env.Time(), env.TimeStep()
	switch c.Func {
	case "MIN":
		return dynamo.Binary(args[0], args[1], math.Min)
	case "MAX":
		return dynamo.Binary(args[0], args[1], math.Max)
	case "ABS":
		return args[0].Map(math.Abs), nil
	case "EXP":
		return args[0].Map(math.Exp), nil
	case "LN":
		return args[0].Map(math.Log), nil
	case "SQRT":
		return args[0].Map(math.Sqrt), nil
	case "INTEGER":
		return args[0].Map(math.Trunc), nil
	case "MODULO":
		return dynamo.Binary(args[0], args[1], math.Mod)
	case "POWER":
		return dynamo.Binary(args[0], args[1], math.Pow)
	case "ZIDZ":
		return dynamo.Binary(args[0], args[1], func(a, b float64) float64 {
			if b == 0 {
				return 0
			}
			return a / b
		})
	case "XIDZ":
		return ternary(args[0], args[1], args[2], func(a, b, x float64) float64 {
			if b == 0 {
				return x
			}
			return a / b
		})
	case "IF_THEN_ELSE":
		return ternary(args[0], args[1], args[2], func(c, a, b float64) float64 {
			if c != 0 {
				return a
			}
			return b
		})
	case "STEP":
		// Half a step of slack keeps t == start robust to float accumulation.
		return dynamo.Binary(args[0], args[1], func(height, start float64) float64 {
			if t+dt/2 > start {
				return height
			}
			return 0
		})
	case "RAMP":
		end := dynamo.Scalar(math.Inf(1))
		if len(args) == 3 {
			end = args[2]
		}
		return ternary(args[0], args[1], end, func(slope, start, stop float64) float64 {
			switch {
			case t <= start:
				return 0
			case t >= stop:
				return slope * (stop - start)
			}
			return slope * (t - start)
		})
	case "PULSE":
		return dynamo.Binary(args[0], args[1], func(start, width float64) float64 {
			if width <= 0 {
				width = dt
			}
			return b2f(t+dt/2 > start && t+dt/2 < start+width)
		})
	case "SUM":
		return dynamo.Scalar(args[0].Sum()), nil
	case "MEAN":
		if args[0].Len() == 0 {
			return dynamo.Scalar(0), nil
		}
		return dynamo.Scalar(args[0].Sum() / float64(args[0].Len())), nil
	}
	return dynamo.Array{}, fmt.Errorf("expr: unhandled builtin %s", c.Func)
}

func ternary(a, b, c dynamo.Array, fn func(x, y, z float64) float64) (dynamo.Array, error) {
	shape, err := dynamo.BroadcastShape(a.Shape, b.Shape)
	if err != nil {
		return dynamo.Array{}, err
	}
	shape, err = dynamo.BroadcastShape(shape, c.Shape)
	if err != nil {
		return dynamo.Array{}, err
	}
	if a, err = dynamo.Broadcast(a, shape); err != nil {
		return dynamo.Array{}, err
	}
	if b, err = dynamo.Broadcast(b, shape); err != nil {
		return dynamo.Array{}, err
	}
	if c, err = dynamo.Broadcast(c, shape); err != nil {
		return dynamo.Array{}, err
	}
	out := dynamo.Zeros(shape)
	for i := range out.Data {
		out.Data[i] = fn(a.Data[i], b.Data[i], c.Data[i])
	}
	return out, nil
}

func checkArity(c *Call) error {
	if spec, ok := delays[c.Func]; ok {
		if len(c.Args) != spec.Args() {
			return fmt.Errorf("expr: %s takes %d arguments, got %d", c.Func, spec.Args(), len(c.Args))
		}
		return nil
	}
	b, ok := builtins[c.Func]
	if !ok {
		if len(c.Args) != 1 {
			return fmt.Errorf("expr: lookup %s takes 1 argument, got %d", c.Func, len(c.Args))
		}
		return nil
	}
	if len(c.Args) < b.minArgs || len(c.Args) > b.maxArgs {
		if b.minArgs == b.maxArgs {
			return fmt.Errorf("expr: %s takes %d arguments, got %d", c.Func, b.minArgs, len(c.Args))
		}
		return fmt.Errorf("expr: %s takes %d to %d arguments, got %d", c.Func, b.minArgs, b.maxArgs, len(c.Args))
	}
	return nil
}
