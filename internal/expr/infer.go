package expr

import (
	"fmt"

	"github.com/san-kum/stockflow/internal/dynamo"
)

// ShapeEnv answers static questions about names during shape inference.
type ShapeEnv interface {
	Shape(name string) (dynamo.Shape, error)
	IsTable(name string) bool
}

// Infer computes the dimension signature of n without evaluating it and
// checks call arity and broadcasting along the way.
func Infer(n Node, env ShapeEnv) (dynamo.Shape, error) {
	switch v := n.(type) {
	case *Number:
		return nil, nil
	case *Ref:
		if env.IsTable(v.Name) {
			return nil, fmt.Errorf("lookup %s must be applied as %s(x)", v.Name, v.Name)
		}
		s, err := env.Shape(v.Name)
		if err != nil {
			return nil, err
		}
		probe, err := SelectSubs(dynamo.Zeros(s), v.Name, v.Subs)
		if err != nil {
			return nil, err
		}
		return probe.Shape, nil
	case *Unary:
		return Infer(v.X, env)
	case *Binary:
		l, err := Infer(v.L, env)
		if err != nil {
			return nil, err
		}
		r, err := Infer(v.R, env)
		if err != nil {
			return nil, err
		}
		s, err := dynamo.BroadcastShape(l, r)
		if err != nil {
			return nil, &dynamo.DimensionError{Op: fmt.Sprintf("%q", v.Op), Left: l, Right: r}
		}
		return s, nil
	case *Call:
		return inferCall(v, env)
	}
	return nil, fmt.Errorf("expr: unknown node %T", n)
}

func inferCall(c *Call, env ShapeEnv) (dynamo.Shape, error) {
	if err := checkArity(c); err != nil {
		return nil, err
	}

	shapes := make([]dynamo.Shape, len(c.Args))
	for i, a := range c.Args {
		s, err := Infer(a, env)
		if err != nil {
			return nil, err
		}
		shapes[i] = s
	}

	if !isBuiltin(c.Func) && !IsDelay(c.Func) {
		if !env.IsTable(c.Func) {
			return nil, fmt.Errorf("%w: no function or lookup named %q", dynamo.ErrUnknownVariable, c.Func)
		}
		return shapes[0], nil
	}

	switch c.Func {
	case "TIME", "TIME_STEP", "INITIAL_TIME", "FINAL_TIME", "SUM", "MEAN":
		return nil, nil
	}

	var out dynamo.Shape
	for i, s := range shapes {
		merged, err := dynamo.BroadcastShape(out, s)
		if err != nil {
			return nil, &dynamo.DimensionError{Op: fmt.Sprintf("argument %d of %s", i+1, c.Func), Left: out, Right: s}
		}
		out = merged
	}
	return out, nil
}
