package analysis

import (
	"math"
	"strings"
	"testing"
)

func sampled(n int, dt float64, f func(t float64) float64) ([]float64, []float64) {
	times := make([]float64, n)
	data := make([]float64, n)
	for i := range times {
		times[i] = float64(i) * dt
		data[i] = f(times[i])
	}
	return times, data
}

func TestPowerSpectrumPeak(t *testing.T) {
	_, data := sampled(64, 1, func(t float64) float64 { return 5 + math.Sin(2*math.Pi*t/8) })
	ps := PowerSpectrum(data)
	if len(ps) != 32 {
		t.Fatalf("expected 32 bins, got %d", len(ps))
	}
	if ps[0] > 1e-9 {
		t.Errorf("mean not removed: bin 0 = %g", ps[0])
	}
	for k, v := range ps {
		if k != 8 && v > ps[8] {
			t.Errorf("bin %d (%g) exceeds bin 8 (%g)", k, v, ps[8])
		}
	}
}

func TestDominantPeriod(t *testing.T) {
	tests := []struct {
		name   string
		period float64
	}{
		{"period 8", 8},
		{"period 16", 16},
		{"period 4", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			times, data := sampled(128, 0.5, func(x float64) float64 { return math.Cos(2 * math.Pi * x / tt.period) })
			got, ok := DominantPeriod(times, data)
			if !ok {
				t.Fatal("expected a period")
			}
			if math.Abs(got-tt.period) > 1e-9 {
				t.Errorf("expected period %g, got %g", tt.period, got)
			}
		})
	}
}

func TestDominantPeriodFlat(t *testing.T) {
	times, data := sampled(32, 1, func(float64) float64 { return 3 })
	if _, ok := DominantPeriod(times, data); ok {
		t.Error("constant series should have no period")
	}
	if _, ok := DominantPeriod(times[:2], data[:2]); ok {
		t.Error("short series should have no period")
	}
}

func TestFFTPadsToPowerOfTwo(t *testing.T) {
	if got := len(FFT(make([]float64, 5))); got != 8 {
		t.Errorf("expected 8 bins, got %d", got)
	}
}

func TestSteadyState(t *testing.T) {
	times, data := sampled(101, 1, func(t float64) float64 { return 100 * (1 - math.Exp(-t/5)) })

	at, ok := SteadyState(times, data, 1e-3, 10)
	if !ok {
		t.Fatal("expected settling")
	}
	// |data(t) - data(100)| <= 0.1 once 100 e^{-t/5} <= 0.1, near t = 34.5.
	if at < 34 || at > 36 {
		t.Errorf("settled at %g", at)
	}

	if _, ok := SteadyState(times, data, 1e-3, 80); ok {
		t.Error("window longer than the settled span should not report steady state")
	}

	growing := make([]float64, len(times))
	copy(growing, times)
	if _, ok := SteadyState(times, growing, 1e-3, 1); ok {
		t.Error("ramp should not settle")
	}
}

func TestCrossings(t *testing.T) {
	times := []float64{0, 1, 2, 3, 4}
	data := []float64{0, 10, 10, 0, 5}
	got := Crossings(times, data, 5)

	want := []Crossing{{0.5, true}, {2.5, false}, {4, true}}
	if len(got) != len(want) {
		t.Fatalf("expected %d crossings, got %v", len(want), got)
	}
	for i := range want {
		if math.Abs(got[i].Time-want[i].Time) > 1e-12 || got[i].Rising != want[i].Rising {
			t.Errorf("crossing %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestPhasePortrait(t *testing.T) {
	if _, err := NewPhasePortrait("a", []float64{1}, "b", nil); err == nil {
		t.Error("expected length mismatch error")
	}

	p, err := NewPhasePortrait("x", []float64{0, 1, 2}, "y", []float64{0, 1, 4})
	if err != nil {
		t.Fatal(err)
	}
	out := p.ASCII(20, 5)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected title plus 5 rows, got %d lines", len(lines))
	}
	if lines[0] != "y vs x" {
		t.Errorf("unexpected title %q", lines[0])
	}
	if !strings.Contains(out, "o") || strings.Count(out, "•") != 2 {
		t.Errorf("expected start marker and two points:\n%s", out)
	}
}
