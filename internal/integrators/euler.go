// Package integrators advances a dynamo.System by one fixed time step.
package integrators

import (
	"fmt"
	"sort"
	"strings"

	"github.com/san-kum/stockflow/internal/dynamo"
)

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Name() string { return "euler" }

func (e *Euler) Step(sys dynamo.System, x dynamo.State, t, dt float64) (dynamo.State, error) {
	dx, err := sys.Derive(x, t)
	if err != nil {
		return nil, err
	}
	result := make(dynamo.State, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result, nil
}

// Heun is the explicit trapezoidal second-order method.
type Heun struct {
	k1, scratch dynamo.State
}

func NewHeun() *Heun {
	return &Heun{}
}

func (h *Heun) Name() string { return "rk2" }

func (h *Heun) Step(sys dynamo.System, x dynamo.State, t, dt float64) (dynamo.State, error) {
	n := len(x)
	if len(h.k1) != n {
		h.k1 = make(dynamo.State, n)
		h.scratch = make(dynamo.State, n)
	}
	k1, err := sys.Derive(x, t)
	if err != nil {
		return nil, err
	}
	copy(h.k1, k1)
	for i := 0; i < n; i++ {
		h.scratch[i] = x[i] + dt*h.k1[i]
	}
	k2, err := sys.Derive(h.scratch, t+dt)
	if err != nil {
		return nil, err
	}
	result := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		result[i] = x[i] + 0.5*dt*(h.k1[i]+k2[i])
	}
	return result, nil
}

var constructors = map[string]func() dynamo.Integrator{
	"euler": func() dynamo.Integrator { return NewEuler() },
	"rk2":   func() dynamo.Integrator { return NewHeun() },
	"rk4":   func() dynamo.Integrator { return NewRK4() },
	"rk45":  func() dynamo.Integrator { return NewRK45() },
}

// New returns a fresh integrator by name. Integrators keep scratch buffers,
// so each run needs its own.
func New(name string) (dynamo.Integrator, error) {
	ctor, ok := constructors[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: unknown integrator %q (have %s)", dynamo.ErrInvalidConfig, name, strings.Join(Names(), ", "))
	}
	return ctor(), nil
}

func Names() []string {
	names := make([]string, 0, len(constructors))
	for n := range constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
