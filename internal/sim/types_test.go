package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/stockflow/internal/dynamo"
)

func TestStatusString(t *testing.T) {
	tests := []struct {
		status   Status
		want     string
		terminal bool
	}{
		{Configured, "configured", false},
		{Initializing, "initializing", false},
		{Running, "running", false},
		{Completed, "completed", true},
		{Failed, "failed", true},
		{Status(9), "status(9)", false},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s Terminal() = %v, want %v", tt.want, got, tt.terminal)
		}
	}
}

func tableResult(t *testing.T) *Result {
	t.Helper()
	r, err := NewTable(
		[]float64{0, 1, 2},
		[]string{"s", "pop[north]", "pop[south]"},
		[][]float64{{0, 10, 30}, {1, 2, 3}, {4, 5, 6}},
	)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestResultQueries(t *testing.T) {
	r := tableResult(t)

	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	south, err := r.Series("pop", "south")
	if err != nil {
		t.Fatal(err)
	}
	if south[2] != 6 {
		t.Errorf("pop[south] at t=2 = %g, want 6", south[2])
	}

	tests := []struct {
		t    float64
		want float64
	}{
		{0, 0},
		{0.5, 5},
		{1, 10},
		{1.75, 25},
		{2, 30},
	}
	for _, tt := range tests {
		got, err := r.At("s", tt.t)
		if err != nil {
			t.Fatalf("At(%g): %v", tt.t, err)
		}
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("At(%g) = %g, want %g", tt.t, got, tt.want)
		}
	}

	if _, err := r.At("s", 2.5); err == nil {
		t.Error("expected error outside the recorded range")
	}
	if _, err := r.Column("missing"); !errors.Is(err, dynamo.ErrUnknownVariable) {
		t.Errorf("Column(missing) error = %v", err)
	}

	row := r.Row(1)
	if len(row) != 3 || row[0] != 10 || row[2] != 5 {
		t.Errorf("Row(1) = %v", row)
	}
	if last := r.Last(); last["pop[north]"] != 3 {
		t.Errorf("Last() = %v", last)
	}
}

func TestNewTableRejectsRaggedColumns(t *testing.T) {
	if _, err := NewTable([]float64{0, 1}, []string{"a"}, [][]float64{{1}}); err == nil {
		t.Error("expected error for short column")
	}
	if _, err := NewTable([]float64{0}, []string{"a", "b"}, [][]float64{{1}}); err == nil {
		t.Error("expected error for column count mismatch")
	}
}

func TestResultColumnsFollowShape(t *testing.T) {
	shape := dynamo.Shape{dynamo.NewDimension("region", "north", "south"), dynamo.NewDimension("gender", "f", "m")}
	r := newResult(dynamo.DefaultRunConfig(), "euler", []Output{{Name: "s"}, {Name: "pop", Shape: shape}})
	want := []string{"s", "pop[north,f]", "pop[north,m]", "pop[south,f]", "pop[south,m]"}
	got := r.Columns()
	if len(got) != len(want) {
		t.Fatalf("Columns() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDiagnosticsAreBounded(t *testing.T) {
	r := newResult(dynamo.DefaultRunConfig(), "euler", nil)
	for i := 0; i < maxDiagnostics+5; i++ {
		r.warn(dynamo.UnderflowWarning{Step: i, Variable: "s", Value: -1})
	}
	if len(r.Diagnostics) != maxDiagnostics || r.Underflows != maxDiagnostics+5 {
		t.Errorf("kept %d diagnostics of %d", len(r.Diagnostics), r.Underflows)
	}
}
