package integrators

import (
	"math"

	"github.com/san-kum/stockflow/internal/dynamo"
)

// Dormand-Prince coefficients
var (
	a2 = 1.0 / 5.0
	a3 = 3.0 / 10.0
	a4 = 4.0 / 5.0
	a5 = 8.0 / 9.0

	b21 = 1.0 / 5.0
	b31 = 3.0 / 40.0
	b32 = 9.0 / 40.0
	b41 = 44.0 / 45.0
	b42 = -56.0 / 15.0
	b43 = 32.0 / 9.0
	b51 = 19372.0 / 6561.0
	b52 = -25360.0 / 2187.0
	b53 = 64448.0 / 6561.0
	b54 = -212.0 / 729.0
	b61 = 9017.0 / 3168.0
	b62 = -355.0 / 33.0
	b63 = 46732.0 / 5247.0
	b64 = 49.0 / 176.0
	b65 = -5103.0 / 18656.0

	c1 = 35.0 / 384.0
	c3 = 500.0 / 1113.0
	c4 = 125.0 / 192.0
	c5 = -2187.0 / 6784.0
	c6 = 11.0 / 84.0

	dc1 = c1 - 5179.0/57600.0
	dc3 = c3 - 7571.0/16695.0
	dc4 = c4 - 393.0/640.0
	dc5 = c5 - -92097.0/339200.0
	dc6 = c6 - 187.0/2100.0
	dc7 = -1.0 / 40.0
)

// RK45 takes fixed Dormand-Prince 5(4) steps. The embedded fourth-order
// estimate is kept as a local error measure and as a step-size hint.
type RK45 struct {
	safety   float64
	minScale float64
	maxScale float64
	tol      float64

	k       [7]dynamo.State
	scratch dynamo.State
	lastErr float64
}

func NewRK45() *RK45 {
	return &RK45{
		safety:   0.9,
		minScale: 0.2,
		maxScale: 10.0,
		tol:      1e-6,
	}
}

func (r *RK45) Name() string { return "rk45" }

// LastError is the scaled local error estimate of the previous step.
func (r *RK45) LastError() float64 { return r.lastErr }

func (r *RK45) Step(sys dynamo.System, x dynamo.State, t, dt float64) (dynamo.State, error) {
	newX, _, err := r.StepAdaptive(sys, x, t, dt, r.tol)
	return newX, err
}

func (r *RK45) ensureScratch(n int) {
	if len(r.scratch) != n {
		for i := range r.k {
			r.k[i] = make(dynamo.State, n)
		}
		r.scratch = make(dynamo.State, n)
	}
}

// derive evaluates sys at x + dt*sum(coef[j]*k[j]) into k[into].
func (r *RK45) derive(sys dynamo.System, x dynamo.State, t, dt float64, into int, coef ...float64) error {
	for i := range x {
		acc := 0.0
		for j, c := range coef {
			acc += c * r.k[j][i]
		}
		r.scratch[i] = x[i] + dt*acc
	}
	d, err := sys.Derive(r.scratch, t)
	if err != nil {
		return err
	}
	copy(r.k[into], d)
	return nil
}

// StepAdaptive advances one step and also returns the step size that would
// keep the next local error near tol.
func (r *RK45) StepAdaptive(sys dynamo.System, x dynamo.State, t, dt, tol float64) (dynamo.State, float64, error) {
	n := len(x)
	r.ensureScratch(n)

	k1, err := sys.Derive(x, t)
	if err != nil {
		return nil, 0, err
	}
	copy(r.k[0], k1)

	stages := []struct {
		at   float64
		coef []float64
	}{
		{a2, []float64{b21}},
		{a3, []float64{b31, b32}},
		{a4, []float64{b41, b42, b43}},
		{a5, []float64{b51, b52, b53, b54}},
		{1, []float64{b61, b62, b63, b64, b65}},
	}
	for s, st := range stages {
		if err := r.derive(sys, x, t+st.at*dt, dt, s+1, st.coef...); err != nil {
			return nil, 0, err
		}
	}

	k := r.k
	xNew := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		xNew[i] = x[i] + dt*(c1*k[0][i]+c3*k[2][i]+c4*k[3][i]+c5*k[4][i]+c6*k[5][i])
	}

	k7, err := sys.Derive(xNew, t+dt)
	if err != nil {
		return nil, 0, err
	}
	copy(r.k[6], k7)

	errMax := 0.0
	for i := 0; i < n; i++ {
		errEst := dt * (dc1*k[0][i] + dc3*k[2][i] + dc4*k[3][i] + dc5*k[4][i] + dc6*k[5][i] + dc7*k[6][i])
		scale := math.Abs(x[i]) + math.Abs(dt*k[0][i]) + 1e-10
		errMax = math.Max(errMax, math.Abs(errEst)/scale)
	}
	r.lastErr = errMax

	errRatio := errMax / tol

	var dtNew float64
	switch {
	case errRatio > 1:
		dtNew = dt * math.Max(r.minScale, r.safety*math.Pow(errRatio, -0.25))
	case errRatio > 0:
		dtNew = dt * math.Min(r.maxScale, r.safety*math.Pow(errRatio, -0.2))
	default:
		dtNew = dt * r.maxScale
	}

	return xNew, dtNew, nil
}
