package expr

import (
	"strings"

	"github.com/san-kum/stockflow/internal/delay"
)

type builtin struct {
	minArgs, maxArgs int
}

var builtins = map[string]builtin{
	"TIME":         {0, 0},
	"TIME_STEP":    {0, 0},
	"INITIAL_TIME": {0, 0},
	"FINAL_TIME":   {0, 0},
	"MIN":          {2, 2},
	"MAX":          {2, 2},
	"ABS":          {1, 1},
	"EXP":          {1, 1},
	"LN":           {1, 1},
	"SQRT":         {1, 1},
	"INTEGER":      {1, 1},
	"MODULO":       {2, 2},
	"POWER":        {2, 2},
	"IF_THEN_ELSE": {3, 3},
	"ZIDZ":         {2, 2},
	"XIDZ":         {3, 3},
	"STEP":         {2, 2},
	"RAMP":         {2, 3},
	"PULSE":        {2, 2},
	"SUM":          {1, 1},
	"MEAN":         {1, 1},
}

func isBuiltin(fn string) bool {
	_, ok := builtins[fn]
	return ok
}

// IsReserved reports whether name would parse as a built-in rather than a
// variable reference.
func IsReserved(name string) bool {
	return isNullary(strings.ToUpper(name))
}

func isNullary(fn string) bool {
	b, ok := builtins[fn]
	return ok && b.maxArgs == 0
}

// DelaySpec describes a delay call: the operator configuration it implies and
// whether it carries an explicit initial value as its third argument.
type DelaySpec struct {
	Kind     delay.Kind
	Order    int
	WithInit bool
}

var delays = map[string]DelaySpec{
	"DELAY1":   {Kind: delay.Material, Order: 1},
	"DELAY1I":  {Kind: delay.Material, Order: 1, WithInit: true},
	"DELAY3":   {Kind: delay.Material, Order: 3},
	"DELAY3I":  {Kind: delay.Material, Order: 3, WithInit: true},
	"SMOOTH":   {Kind: delay.Smooth, Order: 1},
	"SMOOTHI":  {Kind: delay.Smooth, Order: 1, WithInit: true},
	"SMOOTH3":  {Kind: delay.Smooth, Order: 3},
	"SMOOTH3I": {Kind: delay.Smooth, Order: 3, WithInit: true},
}

// IsDelay reports whether fn names a delay or smoothing operator.
func IsDelay(fn string) bool {
	_, ok := delays[fn]
	return ok
}

func LookupDelay(fn string) (DelaySpec, bool) {
	spec, ok := delays[fn]
	return spec, ok
}

func (s DelaySpec) Args() int {
	if s.WithInit {
		return 3
	}
	return 2
}
