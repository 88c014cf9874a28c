package dynamo

import (
	"errors"
	"math"
	"testing"
)

func TestStateNonFinite(t *testing.T) {
	tests := []struct {
		name  string
		state State
		want  int
	}{
		{"empty", State{}, -1},
		{"finite", State{1.0, -2.0, 0}, -1},
		{"NaN", State{1.0, math.NaN()}, 1},
		{"+Inf first", State{math.Inf(1), math.NaN()}, 0},
		{"-Inf", State{0, 0, math.Inf(-1)}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.NonFinite(); got != tt.want {
				t.Errorf("NonFinite() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDefaultRunConfig(t *testing.T) {
	cfg := DefaultRunConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultRunConfig invalid: %v", err)
	}
	if cfg.SaveEvery() != 4 {
		t.Errorf("SaveEvery() = %d, want 4", cfg.SaveEvery())
	}
}

func TestRunConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  RunConfig
		ok   bool
	}{
		{"valid", RunConfig{Start: 0, Stop: 10, Dt: 0.25, SaveInterval: 1}, true},
		{"save equals dt", RunConfig{Start: 0, Stop: 10, Dt: 0.5, SaveInterval: 0.5}, true},
		{"tenth step", RunConfig{Start: 1900, Stop: 2100, Dt: 0.1, SaveInterval: 1}, true},
		{"zero dt", RunConfig{Start: 0, Stop: 10, Dt: 0, SaveInterval: 1}, false},
		{"negative dt", RunConfig{Start: 0, Stop: 10, Dt: -1, SaveInterval: 1}, false},
		{"stop before start", RunConfig{Start: 10, Stop: 0, Dt: 1, SaveInterval: 1}, false},
		{"save not multiple", RunConfig{Start: 0, Stop: 10, Dt: 0.3, SaveInterval: 1}, false},
		{"save below dt", RunConfig{Start: 0, Stop: 10, Dt: 1, SaveInterval: 0.5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
			}
		})
	}
}

func TestRunConfig_Steps(t *testing.T) {
	cfg := RunConfig{Start: 0, Stop: 10, Dt: 0.25, SaveInterval: 1}
	if cfg.Steps() != 40 {
		t.Errorf("Steps() = %d, want 40", cfg.Steps())
	}
	if cfg.TimeAt(40) != 10 {
		t.Errorf("TimeAt(40) = %v, want 10", cfg.TimeAt(40))
	}

	cfg = RunConfig{Start: 0, Stop: 1, Dt: 0.3, SaveInterval: 0.3}
	if cfg.Steps() != 4 {
		t.Errorf("Steps() = %d, want 4", cfg.Steps())
	}
	if cfg.TimeAt(4) != 1 {
		t.Errorf("TimeAt(4) should clamp to stop, got %v", cfg.TimeAt(4))
	}
}

func TestSimulationError(t *testing.T) {
	err := &SimulationError{Time: 1.5, Step: 150, Wrapped: &DivergenceError{Variable: "x", Value: math.Inf(1)}}
	if !errors.Is(err, ErrNumericDivergence) {
		t.Error("SimulationError should unwrap to ErrNumericDivergence")
	}
	expected := "step 150 (t=1.5000): dynamo: numeric divergence: x = +Inf"
	if err.Error() != expected {
		t.Errorf("SimulationError.Error() = %q, want %q", err.Error(), expected)
	}
}

func TestCycleError(t *testing.T) {
	err := &CycleError{Cycle: []string{"a", "b", "a"}}
	if !errors.Is(err, ErrCyclicDependency) {
		t.Error("CycleError should match ErrCyclicDependency")
	}
	if err.Error() != "dynamo: cyclic dependency: a -> b -> a" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestParallelFor(t *testing.T) {
	for _, workers := range []int{1, 2, 4, 16} {
		hits := make([]int, 100)
		ParallelFor(len(hits), 3, workers, func(start, end int) {
			for i := start; i < end; i++ {
				hits[i]++
			}
		})
		for i, h := range hits {
			if h != 1 {
				t.Fatalf("workers=%d: index %d visited %d times", workers, i, h)
			}
		}
	}
}
