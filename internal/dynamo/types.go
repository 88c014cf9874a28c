package dynamo

import (
	"fmt"
	"math"
)

// State is the flat vector of integrated quantities: every stock element
// followed by every delay sub-stock level.
type State []float64

// NonFinite returns the index of the first NaN or infinite element, or -1.
func (s State) NonFinite() int {
	for i, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return i
		}
	}
	return -1
}

// System evaluates the time derivative of the state vector.
type System interface {
	Derive(x State, t float64) (State, error)
	StateDim() int
}

// Integrator advances a System by one fixed step.
type Integrator interface {
	Name() string
	Step(sys System, x State, t, dt float64) (State, error)
}

// RunConfig holds the run parameters accepted in the Configured state.
type RunConfig struct {
	Start        float64
	Stop         float64
	Dt           float64
	SaveInterval float64
	Outputs      []string
	// MaxAbs is the sanity bound on state magnitudes; zero disables it.
	MaxAbs float64
	// Workers bounds per-layer parallel evaluation; values below 2 evaluate serially.
	Workers int
}

func DefaultRunConfig() RunConfig {
	return RunConfig{
		Start:        0,
		Stop:         100,
		Dt:           0.25,
		SaveInterval: 1,
		MaxAbs:       1e15,
		Workers:      1,
	}
}

// stepTolerance absorbs float rounding when comparing multiples of dt.
const stepTolerance = 1e-9

// Validate checks the run parameters before initialization.
func (c RunConfig) Validate() error {
	if c.Dt <= 0 || math.IsNaN(c.Dt) || math.IsInf(c.Dt, 0) {
		return fmt.Errorf("%w: dt must be positive, got %g", ErrInvalidConfig, c.Dt)
	}
	if !(c.Stop > c.Start) {
		return fmt.Errorf("%w: stop time %g must be after start time %g", ErrInvalidConfig, c.Stop, c.Start)
	}
	if c.SaveInterval < c.Dt-stepTolerance {
		return fmt.Errorf("%w: save interval %g smaller than dt %g", ErrInvalidConfig, c.SaveInterval, c.Dt)
	}
	ratio := c.SaveInterval / c.Dt
	if math.Abs(ratio-math.Round(ratio)) > stepTolerance*math.Max(1, ratio) {
		return fmt.Errorf("%w: dt %g does not evenly divide save interval %g", ErrInvalidConfig, c.Dt, c.SaveInterval)
	}
	if c.MaxAbs < 0 {
		return fmt.Errorf("%w: max_abs must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Steps is the number of integration steps needed to reach Stop.
func (c RunConfig) Steps() int {
	n := (c.Stop - c.Start) / c.Dt
	return int(math.Ceil(n - stepTolerance))
}

// SaveEvery is the number of steps between recorded snapshots.
func (c RunConfig) SaveEvery() int {
	every := int(math.Round(c.SaveInterval / c.Dt))
	if every < 1 {
		every = 1
	}
	return every
}

// TimeAt avoids accumulating rounding error over long runs.
func (c RunConfig) TimeAt(step int) float64 {
	t := c.Start + float64(step)*c.Dt
	if t > c.Stop {
		return c.Stop
	}
	return t
}
