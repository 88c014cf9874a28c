package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/stockflow/internal/delay"
	"github.com/san-kum/stockflow/internal/graph"
	"github.com/san-kum/stockflow/internal/integrators"
	"github.com/san-kum/stockflow/internal/sim"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Run.Integrator != "rk4" {
		t.Errorf("expected integrator rk4, got %s", cfg.Run.Integrator)
	}
	if err := cfg.RunConfig().Validate(); err != nil {
		t.Errorf("default run config invalid: %v", err)
	}
	mode, err := cfg.DelayInit()
	if err != nil || mode != delay.InitThroughput {
		t.Errorf("DelayInit() = %v, %v", mode, err)
	}
}

const doc = `
name: shop
run:
  stop: 20
  dt: 0.5
  delay_init: level
model:
  dimensions:
    - name: store
      elements: [east, west]
  variables:
    - name: stock
      kind: stock
      dims: [store]
      initial: "10"
      outflows: [sales]
      non_negative: true
    - name: sales
      kind: flow
      dims: [store]
      equation: stock * demand(TIME)
    - name: demand
      kind: lookup
      points: [[0, 0.1], [20, 0.2]]
    - name: price
      kind: data
      series:
        "": [[0, 1], [20, 2]]
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "shop" || cfg.Run.Stop != 20 || cfg.Run.Dt != 0.5 {
		t.Errorf("run section not decoded: %+v", cfg.Run)
	}
	if cfg.Run.SaveInterval != 1 || cfg.Run.Integrator != "rk4" {
		t.Errorf("defaults not kept: %+v", cfg.Run)
	}
	if mode, _ := cfg.DelayInit(); mode != delay.InitLevel {
		t.Errorf("delay_init = %v", mode)
	}

	def, err := cfg.Definition()
	if err != nil {
		t.Fatal(err)
	}
	if len(def.Dimensions) != 1 || len(def.Variables) != 4 {
		t.Fatalf("definition = %+v", def)
	}
	stock := def.Variables[0]
	if stock.Kind != graph.Stock || !stock.NonNegative || stock.Dims[0] != "store" {
		t.Errorf("stock = %+v", stock)
	}
	if pts := def.Variables[2].Points; len(pts) != 2 || pts[1].X != 20 || pts[1].Y != 0.2 {
		t.Errorf("lookup points = %+v", pts)
	}
	if _, ok := def.Variables[3].Series[""]; !ok {
		t.Errorf("inline series missing: %+v", def.Variables[3].Series)
	}

	if _, err := cfg.Build(); err != nil {
		t.Errorf("Build: %v", err)
	}
}

func TestDefinitionErrors(t *testing.T) {
	tests := []struct {
		name string
		v    VariableConfig
	}{
		{"bad kind", VariableConfig{Name: "a", Kind: "widget"}},
		{"short point", VariableConfig{Name: "t", Kind: "lookup", Points: [][]float64{{1}}}},
		{"data without source", VariableConfig{Name: "d", Kind: "data"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Model.Variables = []VariableConfig{tt.v}
			if _, err := cfg.Definition(); err == nil {
				t.Error("expected error")
			}
		})
	}

	cfg := DefaultConfig()
	cfg.Run.DelayInit = "sideways"
	if _, err := cfg.Build(); err == nil {
		t.Error("expected error for unknown delay_init")
	}
}

func TestLoadResolvesDataRelativeToFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "data"), 0755); err != nil {
		t.Fatal(err)
	}
	csv := "Time,0,10\n\"Population[north]\",100,150\n\"Population[south]\",80,60\n"
	if err := os.WriteFile(filepath.Join(dir, "data", "pop.csv"), []byte(csv), 0644); err != nil {
		t.Fatal(err)
	}
	model := `
run: {stop: 10, dt: 1}
model:
  data: ["data/*.csv"]
  dimensions: [{name: region, elements: [north, south]}]
  variables:
    - {name: Population, kind: data, dims: [region]}
    - {name: total, kind: auxiliary, equation: SUM(Population)}
`
	path := filepath.Join(dir, "model.yaml")
	if err := os.WriteFile(path, []byte(model), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	g, err := cfg.Build()
	if err != nil {
		t.Fatal(err)
	}
	integ, _ := integrators.New(cfg.Run.Integrator)
	r, err := sim.Run(context.Background(), g, integ, cfg.RunConfig())
	if err != nil {
		t.Fatal(err)
	}
	total, err := r.At("total", 5)
	if err != nil {
		t.Fatal(err)
	}
	if total != 195 {
		t.Errorf("total at t=5 = %g, want 195", total)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := GetPreset("inventory", "shock")
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Name != cfg.Name || len(loaded.Model.Variables) != len(cfg.Model.Variables) {
		t.Errorf("round trip lost data: %s, %d variables", loaded.Name, len(loaded.Model.Variables))
	}
	if loaded.Model.Variables[8].Points[1][1] != 0.5 {
		t.Errorf("lookup points lost: %v", loaded.Model.Variables[8].Points)
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("decay", "fast")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Model.Variables[2].Equation != "0.3" {
		t.Errorf("expected rate 0.3, got %s", cfg.Model.Variables[2].Equation)
	}

	cfg.Model.Variables[2].Equation = "9"
	if again := GetPreset("decay", "fast"); again.Model.Variables[2].Equation != "0.3" {
		t.Error("GetPreset must return a copy")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if cfg := GetPreset("decay", "nonexistent"); cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}
	if cfg := GetPreset("nonexistent", "slow"); cfg != nil {
		t.Error("expected nil for nonexistent model")
	}
}

func TestListPresets(t *testing.T) {
	if presets := ListPresets("population"); len(presets) != 2 || presets[0] != "baseline" {
		t.Errorf("ListPresets(population) = %v", presets)
	}
	if presets := ListPresets("nonexistent"); presets != nil {
		t.Error("expected nil for nonexistent model")
	}
	if models := ListModels(); len(models) != 3 {
		t.Errorf("ListModels() = %v", models)
	}
}

func TestEveryPresetRuns(t *testing.T) {
	logger, _ := test.NewNullLogger()
	for _, model := range ListModels() {
		for _, name := range ListPresets(model) {
			t.Run(model+"/"+name, func(t *testing.T) {
				cfg := GetPreset(model, name)
				g, err := cfg.Build(graph.WithLogger(logger))
				if err != nil {
					t.Fatalf("build: %v", err)
				}
				integ, err := integrators.New(cfg.Run.Integrator)
				if err != nil {
					t.Fatal(err)
				}
				r, err := sim.Run(context.Background(), g, integ, cfg.RunConfig(), sim.WithLogger(logger))
				if err != nil {
					t.Fatalf("run: %v", err)
				}
				if r.Status != sim.Completed || r.Len() == 0 {
					t.Errorf("status %s with %d snapshots", r.Status, r.Len())
				}
			})
		}
	}
}

func TestInventorySteadyStateHolds(t *testing.T) {
	cfg := GetPreset("inventory", "steady")
	g, err := cfg.Build()
	if err != nil {
		t.Fatal(err)
	}
	integ, _ := integrators.New(cfg.Run.Integrator)
	r, err := sim.Run(context.Background(), g, integ, cfg.RunConfig())
	if err != nil {
		t.Fatal(err)
	}
	inv, _ := r.Series("inventory")
	for i, v := range inv {
		if v < 399.999 || v > 400.001 {
			t.Fatalf("inventory drifted to %g at t=%g", v, r.Times[i])
		}
	}
}
