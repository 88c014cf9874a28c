package graph

import (
	"fmt"
	"strings"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/lookup"
)

type Kind int

const (
	Stock Kind = iota
	Flow
	Auxiliary
	Constant
	Lookup
	Data
)

var kindNames = map[Kind]string{
	Stock:     "stock",
	Flow:      "flow",
	Auxiliary: "auxiliary",
	Constant:  "constant",
	Lookup:    "lookup",
	Data:      "data",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind accepts the lower-case kind names plus "aux" and "rate".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stock", "level":
		return Stock, nil
	case "flow", "rate":
		return Flow, nil
	case "auxiliary", "aux":
		return Auxiliary, nil
	case "constant", "const":
		return Constant, nil
	case "lookup", "table":
		return Lookup, nil
	case "data":
		return Data, nil
	}
	return 0, fmt.Errorf("unknown variable kind %q", s)
}

// Variable is the declarative definition of one model variable.
type Variable struct {
	Name string
	Kind Kind
	Dims []string

	// Equation defines flows, auxiliaries and constants.
	Equation string

	// Initial, Inflows, Outflows and NonNegative apply to stocks.
	Initial     string
	Inflows     []string
	Outflows    []string
	NonNegative bool

	// Points are the breakpoints of a lookup.
	Points []lookup.Point

	// Series holds time-keyed points of a data variable, keyed by the
	// comma-joined element labels ("" for a scalar).
	Series map[string][]lookup.Point

	Units string
	Doc   string
}

// Definition is a complete model ready to be built.
type Definition struct {
	Dimensions []dynamo.Dimension
	Variables  []Variable
}

// Variable returns a pointer into d for in-place edits.
func (d *Definition) Variable(name string) (*Variable, bool) {
	for i := range d.Variables {
		if d.Variables[i].Name == name {
			return &d.Variables[i], true
		}
	}
	return nil, false
}

// SetEquation overrides a constant or auxiliary equation, or a stock's initial value.
func (d *Definition) SetEquation(name, equation string) error {
	v, ok := d.Variable(name)
	if !ok {
		return fmt.Errorf("%w: %s", dynamo.ErrUnknownVariable, name)
	}
	switch v.Kind {
	case Stock:
		v.Initial = equation
	case Constant, Auxiliary, Flow:
		v.Equation = equation
	default:
		return fmt.Errorf("cannot override %s %s with an equation", v.Kind, name)
	}
	return nil
}

// Clone deep-copies the variable list so overrides do not leak between runs.
func (d Definition) Clone() Definition {
	out := Definition{
		Dimensions: make([]dynamo.Dimension, len(d.Dimensions)),
		Variables:  make([]Variable, len(d.Variables)),
	}
	copy(out.Dimensions, d.Dimensions)
	for i, v := range d.Variables {
		c := v
		c.Dims = append([]string(nil), v.Dims...)
		c.Inflows = append([]string(nil), v.Inflows...)
		c.Outflows = append([]string(nil), v.Outflows...)
		c.Points = append([]lookup.Point(nil), v.Points...)
		if v.Series != nil {
			c.Series = make(map[string][]lookup.Point, len(v.Series))
			for k, pts := range v.Series {
				c.Series[k] = append([]lookup.Point(nil), pts...)
			}
		}
		out.Variables[i] = c
	}
	return out
}

// SeriesKey joins element labels the way Variable.Series is keyed.
func SeriesKey(labels ...string) string {
	return strings.Join(labels, ",")
}
