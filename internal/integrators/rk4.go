package integrators

import "github.com/san-kum/stockflow/internal/dynamo"

type RK4 struct {
	k1, k2, k3, k4 dynamo.State
	scratch        dynamo.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) Name() string { return "rk4" }

func (r *RK4) ensureScratch(n int) {
	if len(r.k1) != n {
		r.k1 = make(dynamo.State, n)
		r.k2 = make(dynamo.State, n)
		r.k3 = make(dynamo.State, n)
		r.k4 = make(dynamo.State, n)
		r.scratch = make(dynamo.State, n)
	}
}

// stage evaluates the system at x + h*k into dst.
func (r *RK4) stage(sys dynamo.System, x, k dynamo.State, h, t float64, dst dynamo.State) error {
	for i := range x {
		r.scratch[i] = x[i] + h*k[i]
	}
	d, err := sys.Derive(r.scratch, t)
	if err != nil {
		return err
	}
	copy(dst, d)
	return nil
}

func (r *RK4) Step(sys dynamo.System, x dynamo.State, t, dt float64) (dynamo.State, error) {
	n := len(x)
	r.ensureScratch(n)

	k1, err := sys.Derive(x, t)
	if err != nil {
		return nil, err
	}
	copy(r.k1, k1)

	if err := r.stage(sys, x, r.k1, dt*0.5, t+dt*0.5, r.k2); err != nil {
		return nil, err
	}
	if err := r.stage(sys, x, r.k2, dt*0.5, t+dt*0.5, r.k3); err != nil {
		return nil, err
	}
	if err := r.stage(sys, x, r.k3, dt, t+dt, r.k4); err != nil {
		return nil, err
	}

	result := make(dynamo.State, n)
	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		result[i] = x[i] + dt6*(r.k1[i]+2*r.k2[i]+2*r.k3[i]+r.k4[i])
	}
	return result, nil
}
