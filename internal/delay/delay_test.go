package delay

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/stockflow/internal/dynamo"
)

func TestOperator_SteadyState(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"DELAY1", Config{Kind: Material, Order: 1, Time: 5}},
		{"DELAY3", Config{Kind: Material, Order: 3, Time: 5}},
		{"SMOOTH", Config{Kind: Smooth, Order: 1, Time: 5}},
		{"SMOOTH3", Config{Kind: Smooth, Order: 3, Time: 5}},
	}

	const input = 42.0
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := New(tt.cfg, 0)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}

			var out float64
			for i := 0; i < 4000; i++ {
				out = op.Step(input, 0.05)
			}
			if math.Abs(out-input) > 1e-6*input {
				t.Errorf("output = %v, want %v at steady state", out, input)
			}
		})
	}
}

func TestOperator_FirstOrderResponse(t *testing.T) {
	// After one time constant a first-order response covers 1-1/e of a step.
	op, err := New(Config{Kind: Smooth, Order: 1, Time: 2}, 0)
	if err != nil {
		t.Fatal(err)
	}
	dt := 0.001
	var out float64
	for i := 0; i < 2000; i++ {
		out = op.Step(1, dt)
	}
	want := 1 - math.Exp(-1)
	if math.Abs(out-want) > 1e-3 {
		t.Errorf("output after T = %v, want %v", out, want)
	}
}

func TestOperator_InitialValue(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		initial    float64
		wantOutput float64
		wantLevels []float64
	}{
		{"material throughput", Config{Kind: Material, Order: 3, Time: 6}, 10, 10, []float64{20, 20, 20}},
		{"material level", Config{Kind: Material, Order: 3, Time: 6, Init: InitLevel}, 30, 5, []float64{10, 10, 10}},
		{"material first order", Config{Kind: Material, Order: 1, Time: 4}, 2, 2, []float64{8}},
		{"smooth", Config{Kind: Smooth, Order: 3, Time: 6}, 7, 7, []float64{7, 7, 7}},
		{"smooth level mode", Config{Kind: Smooth, Order: 1, Time: 6, Init: InitLevel}, 7, 7, []float64{7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := New(tt.cfg, tt.initial)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if got := op.Output(); math.Abs(got-tt.wantOutput) > 1e-12 {
				t.Errorf("Output() = %v, want %v", got, tt.wantOutput)
			}
			levels := op.Levels()
			for i := range tt.wantLevels {
				if math.Abs(levels[i]-tt.wantLevels[i]) > 1e-12 {
					t.Errorf("level %d = %v, want %v", i, levels[i], tt.wantLevels[i])
				}
			}
		})
	}
}

func TestOperator_SeededEquilibriumHolds(t *testing.T) {
	op, err := New(Config{Kind: Material, Order: 3, Time: 9}, 4)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		if out := op.Step(4, 0.5); math.Abs(out-4) > 1e-12 {
			t.Fatalf("step %d: output drifted to %v", i, out)
		}
	}
}

func TestOperator_MaterialConservesFlow(t *testing.T) {
	op, err := New(Config{Kind: Material, Order: 3, Time: 3}, 0)
	if err != nil {
		t.Fatal(err)
	}
	dt := 0.125
	in, out := 0.0, 0.0
	for i := 0; i < 200; i++ {
		input := 0.0
		if i < 40 {
			input = 10
		}
		out += dt * op.Output()
		op.Step(input, dt)
		in += dt * input
	}
	held := 0.0
	for _, l := range op.Levels() {
		held += l
	}
	if math.Abs(in-(out+held)) > 1e-9 {
		t.Errorf("inflow %v != outflow %v + content %v", in, out, held)
	}
}

func TestOperator_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		initial float64
	}{
		{"zero time", Config{Kind: Material, Order: 1, Time: 0}, 0},
		{"negative time", Config{Kind: Smooth, Order: 1, Time: -2}, 0},
		{"nan time", Config{Kind: Smooth, Order: 1, Time: math.NaN()}, 0},
		{"inf time", Config{Kind: Smooth, Order: 3, Time: math.Inf(1)}, 0},
		{"order 2", Config{Kind: Material, Order: 2, Time: 1}, 0},
		{"order 0", Config{Kind: Material, Order: 0, Time: 1}, 0},
		{"bad kind", Config{Kind: Kind(9), Order: 1, Time: 1}, 0},
		{"nan initial", Config{Kind: Material, Order: 1, Time: 1}, math.NaN()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, tt.initial)
			if !errors.Is(err, dynamo.ErrInvalidDelayConfig) {
				t.Errorf("expected ErrInvalidDelayConfig, got %v", err)
			}
			var dErr *dynamo.DelayConfigError
			if !errors.As(err, &dErr) {
				t.Errorf("expected *DelayConfigError, got %T", err)
			}
		})
	}
}

func TestOperator_Initialize(t *testing.T) {
	op, err := New(Config{Kind: Material, Order: 1, Time: 1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := op.Initialize(2, 6, 3); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if op.StateLen() != 3 || op.Output() != 2 {
		t.Errorf("after Initialize: len=%d output=%v", op.StateLen(), op.Output())
	}
	if err := op.Initialize(2, 0, 3); !errors.Is(err, dynamo.ErrInvalidDelayConfig) {
		t.Errorf("expected ErrInvalidDelayConfig, got %v", err)
	}
}

func TestParseInitMode(t *testing.T) {
	for in, want := range map[string]InitMode{"": InitThroughput, "throughput": InitThroughput, "level": InitLevel} {
		got, err := ParseInitMode(in)
		if err != nil || got != want {
			t.Errorf("ParseInitMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseInitMode("pipeline"); !errors.Is(err, dynamo.ErrInvalidDelayConfig) {
		t.Errorf("expected error for unknown mode, got %v", err)
	}
}

func TestBank_Independence(t *testing.T) {
	b := NewBank()
	a, _ := New(Config{Kind: Material, Order: 3, Time: 3}, 1)
	c, _ := New(Config{Kind: Smooth, Order: 1, Time: 2}, 5)
	b.Add(a)
	b.Add(c)

	if b.Len() != 2 || b.StateLen() != 4 || b.Offset(1) != 3 {
		t.Fatalf("layout: len=%d state=%d offset=%d", b.Len(), b.StateLen(), b.Offset(1))
	}

	levels := make([]float64, b.StateLen())
	b.Pack(levels)

	outs := make([]float64, 2)
	b.Outputs(levels, outs)
	if outs[0] != 1 || outs[1] != 5 {
		t.Errorf("Outputs = %v, want [1 5]", outs)
	}

	// Only the second operator sees a changed input.
	deriv := make([]float64, b.StateLen())
	b.Derivatives(levels, []float64{1, 9}, deriv)
	for i := 0; i < 3; i++ {
		if deriv[i] != 0 {
			t.Errorf("first operator derivative %d = %v, want 0", i, deriv[i])
		}
	}
	if deriv[3] != 2 {
		t.Errorf("second operator derivative = %v, want 2", deriv[3])
	}

	levels[3] = 8
	b.Unpack(levels)
	if c.Output() != 8 || a.Output() != 1 {
		t.Errorf("Unpack leaked between operators: a=%v c=%v", a.Output(), c.Output())
	}
}
