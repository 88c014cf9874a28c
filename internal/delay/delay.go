// Package delay implements the exponential delay and smoothing operators
// (DELAY1, DELAY1I, DELAY3, DELAY3I, SMOOTH, SMOOTHI, SMOOTH3, SMOOTH3I).
//
// Every operator is a cascade of first-order sub-stocks with stage time T/n.
// A material delay conserves what flows through it: stage i drains at
// level/(T/n) into stage i+1 and the output is the last stage's outflow. A
// smoothing operator is an information delay: each stage adjusts toward the
// previous one and the output is the last stage's level.
//
// Operators expose their levels so that an integrator can advance them as part
// of a larger state vector; [Operator.Step] is the self-contained Euler form.
package delay

import (
	"fmt"
	"math"

	"github.com/san-kum/stockflow/internal/dynamo"
)

type Kind int

const (
	Material Kind = iota
	Smooth
)

func (k Kind) String() string {
	switch k {
	case Material:
		return "material"
	case Smooth:
		return "smooth"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// InitMode selects how an explicit initial value seeds the sub-stocks.
type InitMode int

const (
	// InitThroughput treats the initial value as the operator's initial output.
	InitThroughput InitMode = iota
	// InitLevel treats the initial value as the total content of the pipeline.
	InitLevel
)

func (m InitMode) String() string {
	if m == InitLevel {
		return "level"
	}
	return "throughput"
}

// ParseInitMode accepts "throughput" (the default for "") or "level".
func ParseInitMode(s string) (InitMode, error) {
	switch s {
	case "", "throughput":
		return InitThroughput, nil
	case "level":
		return InitLevel, nil
	}
	return 0, fmt.Errorf("%w: unknown delay init mode %q", dynamo.ErrInvalidDelayConfig, s)
}

type Config struct {
	Kind  Kind
	Order int
	Time  float64
	Init  InitMode
}

func (c Config) Validate() error {
	if c.Order != 1 && c.Order != 3 {
		return &dynamo.DelayConfigError{Time: c.Time, Order: c.Order, Reason: "order must be 1 or 3"}
	}
	if !(c.Time > 0) || math.IsInf(c.Time, 0) {
		return &dynamo.DelayConfigError{Time: c.Time, Order: c.Order, Reason: "delay time must be positive and finite"}
	}
	if c.Kind != Material && c.Kind != Smooth {
		return &dynamo.DelayConfigError{Time: c.Time, Order: c.Order, Reason: "unknown delay kind"}
	}
	return nil
}

// Operator owns the sub-stock levels of one delay instance.
type Operator struct {
	cfg       Config
	stageTime float64
	levels    []float64
	scratch   []float64
}

// New validates cfg and seeds the operator with initial.
func New(cfg Config, initial float64) (*Operator, error) {
	o := &Operator{}
	if err := o.configure(cfg, initial); err != nil {
		return nil, err
	}
	return o, nil
}

// Initialize re-seeds the operator with a new time constant and order,
// keeping its kind and init mode.
func (o *Operator) Initialize(initial, T float64, order int) error {
	cfg := o.cfg
	cfg.Time = T
	cfg.Order = order
	return o.configure(cfg, initial)
}

func (o *Operator) configure(cfg Config, initial float64) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if math.IsNaN(initial) || math.IsInf(initial, 0) {
		return &dynamo.DelayConfigError{Time: cfg.Time, Order: cfg.Order, Reason: "initial value must be finite"}
	}
	o.cfg = cfg
	o.stageTime = cfg.Time / float64(cfg.Order)
	o.levels = make([]float64, cfg.Order)
	o.scratch = make([]float64, cfg.Order)
	Seed(cfg, initial, o.levels)
	return nil
}

// Seed writes the initial sub-stock levels for cfg into dst.
func Seed(cfg Config, initial float64, dst []float64) {
	stage := cfg.Time / float64(cfg.Order)
	for i := range dst {
		switch {
		case cfg.Kind == Smooth:
			dst[i] = initial
		case cfg.Init == InitLevel:
			dst[i] = initial / float64(cfg.Order)
		default:
			dst[i] = initial * stage
		}
	}
}

func (o *Operator) Config() Config { return o.cfg }

func (o *Operator) StateLen() int { return o.cfg.Order }

func (o *Operator) Levels() []float64 {
	out := make([]float64, len(o.levels))
	copy(out, o.levels)
	return out
}

func (o *Operator) SetLevels(src []float64) {
	copy(o.levels, src)
}

// Output is the current output of the operator.
func (o *Operator) Output() float64 {
	return OutputAt(o.cfg, o.levels)
}

// Step advances the operator by dt with explicit Euler and returns the new output.
func (o *Operator) Step(input, dt float64) float64 {
	Derive(o.cfg, o.levels, input, o.scratch)
	for i := range o.levels {
		o.levels[i] += dt * o.scratch[i]
	}
	return o.Output()
}

// OutputAt computes the output of an operator configured as cfg whose
// sub-stocks hold levels.
func OutputAt(cfg Config, levels []float64) float64 {
	last := levels[len(levels)-1]
	if cfg.Kind == Smooth {
		return last
	}
	return last / (cfg.Time / float64(cfg.Order))
}

// Derive writes d(level)/dt for each stage into dst.
func Derive(cfg Config, levels []float64, input float64, dst []float64) {
	stage := cfg.Time / float64(cfg.Order)
	in := input
	for i, level := range levels {
		if cfg.Kind == Smooth {
			dst[i] = (in - level) / stage
			in = level
			continue
		}
		out := level / stage
		dst[i] = in - out
		in = out
	}
}
