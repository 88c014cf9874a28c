// Package sim drives a model graph through time: it owns the run state
// machine, the step loop, non-negativity clamping, divergence checks and the
// recorded output table.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/graph"
	"github.com/sirupsen/logrus"
)

type Driver struct {
	g         *graph.Graph
	integ     dynamo.Integrator
	cfg       dynamo.RunConfig
	outputs   []Output
	slots     []graph.Slot
	observers []Observer
	log       logrus.FieldLogger

	mu     sync.Mutex
	status Status
}

type Option func(*Driver)

func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Driver) {
		if l != nil {
			d.log = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(d *Driver) { d.observers = append(d.observers, o) }
}

// New validates the run parameters and output list. The driver starts in
// the Configured state.
func New(g *graph.Graph, integ dynamo.Integrator, cfg dynamo.RunConfig, opts ...Option) (*Driver, error) {
	if g == nil || integ == nil {
		return nil, fmt.Errorf("%w: graph and integrator are required", dynamo.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	names := cfg.Outputs
	if len(names) == 0 {
		names = g.Outputs()
	}
	outputs := make([]Output, 0, len(names))
	seen := make(map[string]bool)
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		kind, ok := g.Kind(name)
		if !ok {
			return nil, fmt.Errorf("%w: output %s", dynamo.ErrUnknownVariable, name)
		}
		if kind == graph.Lookup {
			return nil, fmt.Errorf("%w: lookup %s cannot be an output", dynamo.ErrInvalidConfig, name)
		}
		shape, _ := g.Shape(name)
		outputs = append(outputs, Output{Name: name, Shape: shape})
	}

	d := &Driver{
		g:       g,
		integ:   integ,
		cfg:     cfg,
		outputs: outputs,
		slots:   g.Stocks(),
		log:     logrus.StandardLogger(),
		status:  Configured,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Run is shorthand for New followed by Driver.Run.
func Run(ctx context.Context, g *graph.Graph, integ dynamo.Integrator, cfg dynamo.RunConfig, opts ...Option) (*Result, error) {
	d, err := New(g, integ, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return d.Run(ctx)
}

func (d *Driver) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *Driver) Outputs() []Output { return d.outputs }

func (d *Driver) Config() dynamo.RunConfig { return d.cfg }

// AddObserver registers o for a driver that has not started yet.
func (d *Driver) AddObserver(o Observer) error {
	if s := d.Status(); s != Configured {
		return fmt.Errorf("%w: driver already %s", dynamo.ErrInvalidConfig, s)
	}
	d.observers = append(d.observers, o)
	return nil
}

func (d *Driver) setStatus(r *Result, s Status) {
	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
	r.Status = s
}

// Run initializes the graph and steps it to the stop time. On failure the
// returned Result is marked Failed, keeps every snapshot recorded so far and
// carries the error, which is also returned.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	if s := d.Status(); s != Configured {
		return nil, fmt.Errorf("%w: driver already %s", dynamo.ErrInvalidConfig, s)
	}

	cfg := d.cfg
	r := newResult(cfg, d.integ.Name(), d.outputs)
	log := d.log.WithFields(logrus.Fields{"integrator": d.integ.Name(), "dt": cfg.Dt})

	d.setStatus(r, Initializing)
	x, err := d.g.Initialize(graph.Clock{Start: cfg.Start, Stop: cfg.Stop, Dt: cfg.Dt})
	if err != nil {
		return d.fail(r, log, err)
	}
	if err := d.checkBounds(x); err != nil {
		return d.fail(r, log, &dynamo.SimulationError{Step: 0, Time: cfg.Start, State: x, Wrapped: err})
	}
	frame, err := d.g.Eval(x, cfg.Start)
	if err == nil {
		err = r.record(frame)
	}
	if err != nil {
		return d.fail(r, log, &dynamo.SimulationError{Step: 0, Time: cfg.Start, State: x, Wrapped: err})
	}
	r.Final = &State{Time: cfg.Start, X: x, Frame: frame}

	d.setStatus(r, Running)
	steps := cfg.Steps()
	every := cfg.SaveEvery()
	log.WithFields(logrus.Fields{"steps": steps, "state_dim": len(x)}).Info("simulation started")
	d.notify(r.Final)

	for step := 1; step <= steps; step++ {
		t := cfg.TimeAt(step - 1)
		select {
		case <-ctx.Done():
			err := fmt.Errorf("%w: %v", dynamo.ErrCanceled, ctx.Err())
			return d.fail(r, log, &dynamo.SimulationError{Step: step - 1, Time: t, State: x, Wrapped: err})
		default:
		}

		next, err := d.advance(r, x, step, t, cfg.TimeAt(step)-t)
		if err != nil {
			return d.fail(r, log, &dynamo.SimulationError{Step: step, Time: t, State: x, Wrapped: err})
		}
		x = next
		d.g.Sync(x)
		r.StepsTaken = step

		state := &State{Time: cfg.TimeAt(step), Step: step, X: x}
		if step%every == 0 || step == steps {
			f, err := d.g.Eval(x, state.Time)
			if err == nil {
				err = r.record(f)
			}
			if err != nil {
				return d.fail(r, log, &dynamo.SimulationError{Step: step, Time: state.Time, State: x, Wrapped: err})
			}
			state.Frame = f
		}
		r.Final = state
		d.notify(state)
	}

	d.setStatus(r, Completed)
	log.WithFields(logrus.Fields{"steps": r.StepsTaken, "snapshots": r.Len(), "underflows": r.Underflows}).Info("simulation completed")
	return r, nil
}

// advance takes one integration step, then clamps non-negative stocks and
// checks the new state for divergence.
func (d *Driver) advance(r *Result, x dynamo.State, step int, t, dt float64) (dynamo.State, error) {
	next, err := d.integ.Step(d.g, x, t, dt)
	if err != nil {
		return nil, err
	}
	if err := d.checkBounds(next); err != nil {
		return nil, err
	}
	for _, slot := range d.slots {
		if !slot.NonNegative {
			continue
		}
		for i := 0; i < slot.Shape.Size(); i++ {
			v := next[slot.Offset+i]
			if v >= 0 {
				continue
			}
			w := dynamo.UnderflowWarning{
				Time:     t + dt,
				Step:     step,
				Variable: dynamo.ElementName(slot.Name, slot.Shape, i),
				Value:    v,
			}
			r.warn(w)
			d.log.WithFields(logrus.Fields{"variable": w.Variable, "time": w.Time, "step": step}).Warn(w.Error())
			next[slot.Offset+i] = 0
		}
	}
	return next, nil
}

func (d *Driver) checkBounds(x dynamo.State) error {
	if i := x.NonFinite(); i >= 0 {
		return &dynamo.DivergenceError{Variable: d.g.StateName(i), Value: x[i]}
	}
	bound := d.cfg.MaxAbs
	for i, v := range x {
		if bound > 0 && math.Abs(v) > bound {
			return &dynamo.DivergenceError{Variable: d.g.StateName(i), Value: v, Bound: bound}
		}
	}
	return nil
}

func (d *Driver) fail(r *Result, log logrus.FieldLogger, err error) (*Result, error) {
	d.setStatus(r, Failed)
	r.Err = err
	entry := log.WithError(err).WithField("steps", r.StepsTaken)
	if errors.Is(err, dynamo.ErrCanceled) {
		entry.Warn("simulation canceled")
	} else {
		entry.Error("simulation failed")
	}
	return r, err
}

func (d *Driver) notify(s *State) {
	for _, o := range d.observers {
		o.OnStep(s)
	}
}
