package config

import "sort"

func run(stop, dt, save float64, integrator string) RunConfig {
	rc := DefaultConfig().Run
	rc.Stop = stop
	rc.Dt = dt
	rc.SaveInterval = save
	rc.Integrator = integrator
	return rc
}

// decayModel is a single stock draining at a fixed fraction per time unit.
func decayModel(initial, rate string) ModelConfig {
	return ModelConfig{Variables: []VariableConfig{
		{Name: "stock", Kind: "stock", Initial: initial, Outflows: []string{"drain"}, NonNegative: true},
		{Name: "drain", Kind: "flow", Equation: "stock * rate"},
		{Name: "rate", Kind: "constant", Equation: rate},
	}}
}

// populationModel ages newborns into adults through a third-order delay and
// lets crowding raise mortality through a lookup.
func populationModel(capacity string) ModelConfig {
	return ModelConfig{
		Dimensions: []DimensionConfig{
			{Name: "region", Elements: []string{"Africa", "AsiaPacific", "WestEU"}},
			{Name: "gender", Elements: []string{"female", "male"}},
		},
		Variables: []VariableConfig{
			{Name: "initial children", Kind: "constant", Dims: []string{"region", "gender"}, Equation: "120, 125, 300, 310, 40, 42", Units: "million"},
			{Name: "initial adults", Kind: "constant", Dims: []string{"region", "gender"}, Equation: "180, 175, 900, 880, 150, 145", Units: "million"},
			{Name: "fertility", Kind: "constant", Dims: []string{"region", "gender"}, Equation: "0.035, 0.035, 0.016, 0.016, 0.01, 0.01", Units: "1/year"},
			{Name: "base mortality", Kind: "constant", Dims: []string{"region", "gender"}, Equation: "0.012, 0.012, 0.008, 0.008, 0.01, 0.01", Units: "1/year"},
			{Name: "maturation time", Kind: "constant", Equation: "18", Units: "year"},
			{Name: "capacity", Kind: "constant", Equation: capacity, Units: "million"},
			{Name: "crowding effect", Kind: "lookup", Points: [][]float64{{0, 0.8}, {0.5, 0.9}, {1, 1}, {1.5, 1.6}, {2, 3}}},
			{Name: "children", Kind: "stock", Dims: []string{"region", "gender"}, Initial: `"initial children"`,
				Inflows: []string{"births"}, Outflows: []string{"maturing"}, NonNegative: true, Units: "million"},
			{Name: "adults", Kind: "stock", Dims: []string{"region", "gender"}, Initial: `"initial adults"`,
				Inflows: []string{"maturing"}, Outflows: []string{"deaths"}, NonNegative: true, Units: "million"},
			{Name: "births", Kind: "flow", Dims: []string{"region", "gender"}, Equation: "adults * fertility"},
			{Name: "maturing", Kind: "flow", Dims: []string{"region", "gender"}, Equation: `DELAY3(births, "maturation time")`},
			{Name: "total population", Kind: "auxiliary", Equation: "SUM(children + adults)"},
			{Name: "crowding", Kind: "auxiliary", Equation: `"total population" / capacity`},
			{Name: "mortality", Kind: "auxiliary", Dims: []string{"region", "gender"}, Equation: `"base mortality" * "crowding effect"(crowding)`},
			{Name: "deaths", Kind: "flow", Dims: []string{"region", "gender"}, Equation: "adults * mortality"},
		},
	}
}

// inventoryModel is a stock-managed supply line with a production lead
// time, demand forecasting and a shipment fulfilment lookup.
func inventoryModel(shock string) ModelConfig {
	return ModelConfig{Variables: []VariableConfig{
		{Name: "demand", Kind: "auxiliary", Equation: "100 + STEP(" + shock + ", 10)", Units: "widget/week"},
		{Name: "expected demand", Kind: "auxiliary", Equation: `SMOOTH(demand, "forecast time")`},
		{Name: "forecast time", Kind: "constant", Equation: "4", Units: "week"},
		{Name: "coverage", Kind: "constant", Equation: "4", Units: "week"},
		{Name: "adjust time", Kind: "constant", Equation: "8", Units: "week"},
		{Name: "lead time", Kind: "constant", Equation: "6", Units: "week"},
		{Name: "desired inventory", Kind: "auxiliary", Equation: `"expected demand" * coverage`},
		{Name: "production start", Kind: "auxiliary",
			Equation: `MAX(0, "expected demand" + ("desired inventory" - inventory) / "adjust time")`},
		{Name: "fulfilment", Kind: "lookup", Points: [][]float64{{0, 0}, {0.25, 0.5}, {0.5, 0.8}, {1, 1}, {2, 1}}},
		{Name: "inventory", Kind: "stock", Initial: `"desired inventory"`,
			Inflows: []string{"arrivals"}, Outflows: []string{"shipments"}, NonNegative: true, Units: "widget"},
		{Name: "arrivals", Kind: "flow", Equation: `DELAY3("production start", "lead time")`},
		{Name: "shipments", Kind: "flow", Equation: `demand * fulfilment(inventory / "desired inventory")`},
	}}
}

// Presets holds built-in models and their variants.
var Presets = map[string]map[string]*Config{
	"decay": {
		"slow":  {Name: "decay/slow", Run: run(50, 0.25, 1, "rk4"), Model: decayModel("100", "0.05")},
		"fast":  {Name: "decay/fast", Run: run(50, 0.25, 1, "rk4"), Model: decayModel("100", "0.3")},
		"euler": {Name: "decay/euler", Run: run(50, 0.25, 1, "euler"), Model: decayModel("100", "0.1")},
	},
	"population": {
		"baseline": {Name: "population/baseline", Run: run(100, 0.25, 1, "rk4"), Model: populationModel("6000")},
		"crowded":  {Name: "population/crowded", Run: run(100, 0.25, 1, "rk4"), Model: populationModel("2500")},
	},
	"inventory": {
		"steady": {Name: "inventory/steady", Run: run(60, 0.125, 1, "rk4"), Model: inventoryModel("0")},
		"shock":  {Name: "inventory/shock", Run: run(60, 0.125, 1, "rk4"), Model: inventoryModel("20")},
	},
}

// GetPreset returns a copy of a built-in configuration, or nil.
func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ListModels() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
