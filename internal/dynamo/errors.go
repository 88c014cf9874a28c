package dynamo

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors for model building and simulation.
var (
	// ErrInvalidTable indicates a lookup table with too few or unsorted breakpoints.
	ErrInvalidTable = errors.New("dynamo: invalid lookup table")

	// ErrInvalidDelayConfig indicates a delay with a non-positive time or unsupported order.
	ErrInvalidDelayConfig = errors.New("dynamo: invalid delay configuration")

	// ErrCyclicDependency indicates a same-step cycle among non-stock variables.
	ErrCyclicDependency = errors.New("dynamo: cyclic dependency")

	// ErrDimensionMismatch indicates incompatible subscript signatures.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch")

	// ErrUninitializedReference indicates an initial value that needs its own result.
	ErrUninitializedReference = errors.New("dynamo: uninitialized reference")

	// ErrStockUnderflow marks a stock clamped at zero. It is a warning, never fatal.
	ErrStockUnderflow = errors.New("dynamo: stock underflow")

	// ErrNumericDivergence indicates a non-finite value or one beyond the sanity bound.
	ErrNumericDivergence = errors.New("dynamo: numeric divergence")

	// ErrUnknownVariable indicates a reference to an undeclared variable or element.
	ErrUnknownVariable = errors.New("dynamo: unknown variable")

	// ErrInvalidConfig indicates run parameters that fail validation.
	ErrInvalidConfig = errors.New("dynamo: invalid run configuration")

	// ErrCanceled indicates the simulation was interrupted at a step boundary.
	ErrCanceled = errors.New("dynamo: simulation canceled by context")
)

// TableError reports why a breakpoint sequence was rejected.
type TableError struct {
	Table  string
	Reason string
}

func (e *TableError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("%v: %s", ErrInvalidTable, e.Reason)
	}
	return fmt.Sprintf("%v %q: %s", ErrInvalidTable, e.Table, e.Reason)
}

func (e *TableError) Unwrap() error { return ErrInvalidTable }

// DelayConfigError reports a rejected delay operator configuration.
type DelayConfigError struct {
	Time   float64
	Order  int
	Reason string
}

func (e *DelayConfigError) Error() string {
	return fmt.Sprintf("%v: %s (time=%g, order=%d)", ErrInvalidDelayConfig, e.Reason, e.Time, e.Order)
}

func (e *DelayConfigError) Unwrap() error { return ErrInvalidDelayConfig }

// CycleError names the variables of a same-step dependency cycle in order.
// The first variable is repeated at the end.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCyclicDependency, strings.Join(e.Cycle, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCyclicDependency }

// DimensionError reports an operation between incompatible signatures.
type DimensionError struct {
	Variable string
	Op       string
	Left     Shape
	Right    Shape
}

func (e *DimensionError) Error() string {
	msg := fmt.Sprintf("%v: %s between %s and %s", ErrDimensionMismatch, e.Op, e.Left, e.Right)
	if e.Variable != "" {
		msg = fmt.Sprintf("%s: %s", e.Variable, msg)
	}
	return msg
}

func (e *DimensionError) Unwrap() error { return ErrDimensionMismatch }

// UninitializedError names the initialization chain that loops back on itself.
type UninitializedError struct {
	Variable string
	Chain    []string
}

func (e *UninitializedError) Error() string {
	return fmt.Sprintf("%v: initial value of %s depends on itself via %s",
		ErrUninitializedReference, e.Variable, strings.Join(e.Chain, " -> "))
}

func (e *UninitializedError) Unwrap() error { return ErrUninitializedReference }

// UnderflowWarning records a stock element clamped to zero after a step.
type UnderflowWarning struct {
	Time     float64
	Step     int
	Variable string
	Value    float64
}

func (w UnderflowWarning) Error() string {
	return fmt.Sprintf("%v: %s = %g at t=%.4f clamped to 0", ErrStockUnderflow, w.Variable, w.Value, w.Time)
}

func (w UnderflowWarning) Unwrap() error { return ErrStockUnderflow }

// DivergenceError reports the first element that left the finite, bounded range.
type DivergenceError struct {
	Variable string
	Value    float64
	Bound    float64
}

func (e *DivergenceError) Error() string {
	if e.Bound > 0 {
		return fmt.Sprintf("%v: %s = %g exceeds bound %g", ErrNumericDivergence, e.Variable, e.Value, e.Bound)
	}
	return fmt.Sprintf("%v: %s = %g", ErrNumericDivergence, e.Variable, e.Value)
}

func (e *DivergenceError) Unwrap() error { return ErrNumericDivergence }

// SimulationError wraps an error with simulation context.
type SimulationError struct {
	Step    int
	Time    float64
	State   State
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %v", e.Step, e.Time, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
