// Package automation runs batches of experiments described in YAML:
// scenario files with named variants, parameter sweeps and randomized
// perturbation trials.
package automation

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/san-kum/stockflow/internal/config"
	"github.com/san-kum/stockflow/internal/experiment"
	"github.com/san-kum/stockflow/internal/graph"
	"github.com/san-kum/stockflow/internal/sim"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Scenario runs one base model under several variants.
type Scenario struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Model       string    `yaml:"model"`
	Integrator  string    `yaml:"integrator"`
	Stop        float64   `yaml:"stop"`
	Dt          float64   `yaml:"dt"`
	Workers     int       `yaml:"workers"`
	Variants    []Variant `yaml:"variants"`

	dir string
}

// Variant replaces equations of the base model.
type Variant struct {
	Name      string            `yaml:"name"`
	Overrides map[string]string `yaml:"overrides"`
	SaveAs    string            `yaml:"save_as"`
}

// VariantResult pairs a variant with its run.
type VariantResult struct {
	Variant Variant
	Result  *sim.Result
}

// LoadScenario loads a scenario from a YAML file. Relative model paths are
// resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	scenario.dir = filepath.Dir(path)
	return &scenario, scenario.Validate()
}

func (s *Scenario) Validate() error {
	if s.Model == "" {
		return fmt.Errorf("scenario %q: model is required", s.Name)
	}
	if len(s.Variants) == 0 {
		return fmt.Errorf("scenario %q: no variants", s.Name)
	}
	seen := make(map[string]bool, len(s.Variants))
	for i, v := range s.Variants {
		if v.Name == "" {
			return fmt.Errorf("scenario %q: variant %d has no name", s.Name, i+1)
		}
		if seen[v.Name] {
			return fmt.Errorf("scenario %q: duplicate variant %q", s.Name, v.Name)
		}
		seen[v.Name] = true
	}
	return nil
}

func (s *Scenario) base(registry *experiment.Registry) (*config.Config, error) {
	ref := s.Model
	if ext := filepath.Ext(ref); (ext == ".yaml" || ext == ".yml") && !filepath.IsAbs(ref) && s.dir != "" {
		ref = filepath.Join(s.dir, ref)
	}
	cfg, err := registry.Resolve(ref)
	if err != nil {
		return nil, err
	}
	if s.Stop > 0 {
		cfg.Run.Stop = s.Stop
	}
	if s.Dt > 0 {
		cfg.Run.Dt = s.Dt
	}
	return cfg, nil
}

// RunScenario executes every variant concurrently, each on its own graph.
// Results come back in variant order; a variant that fails at runtime is
// reported through its Result.
func RunScenario(ctx context.Context, scenario *Scenario, registry *experiment.Registry, log logrus.FieldLogger) ([]VariantResult, error) {
	base, err := scenario.base(registry)
	if err != nil {
		return nil, err
	}

	workers := scenario.Workers
	if workers < 1 {
		workers = 1
	}
	ens := sim.NewEnsemble(workers)
	for _, v := range scenario.Variants {
		exp := experiment.New(experiment.Config{
			Name:       scenario.Name + "/" + v.Name,
			Model:      base.Clone(),
			Overrides:  v.Overrides,
			Integrator: scenario.Integrator,
			Logger:     log,
		})
		ens.Add(v.Name, exp.Build)
	}

	log.WithFields(logrus.Fields{"scenario": scenario.Name, "variants": ens.Len(), "workers": workers}).Info("running scenario")
	results, err := ens.Run(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]VariantResult, len(results))
	for i, r := range results {
		out[i] = VariantResult{Variant: scenario.Variants[i], Result: r}
	}
	return out, nil
}

// ParameterSweep varies one constant evenly over [ParamMin, ParamMax].
type ParameterSweep struct {
	Model      string
	Integrator string
	ParamName  string
	ParamMin   float64
	ParamMax   float64
	NumSteps   int
	Workers    int
}

// SweepResult holds the final recorded values for one parameter value.
type SweepResult struct {
	ParamValue float64
	Final      map[string]float64
	Status     sim.Status
	Err        error
}

// RunSweep executes a parameter sweep.
func RunSweep(ctx context.Context, sweep *ParameterSweep, registry *experiment.Registry, log logrus.FieldLogger) ([]SweepResult, error) {
	if sweep.NumSteps < 2 {
		return nil, fmt.Errorf("sweep needs at least 2 steps, got %d", sweep.NumSteps)
	}
	base, err := registry.Resolve(sweep.Model)
	if err != nil {
		return nil, err
	}
	if err := requireConstant(base, sweep.ParamName); err != nil {
		return nil, err
	}

	values := make([]float64, sweep.NumSteps)
	paramStep := (sweep.ParamMax - sweep.ParamMin) / float64(sweep.NumSteps-1)
	for i := range values {
		values[i] = sweep.ParamMin + float64(i)*paramStep
	}

	ens := sim.NewEnsemble(max(1, sweep.Workers))
	for _, v := range values {
		exp := experiment.New(experiment.Config{
			Name:       fmt.Sprintf("%s=%g", sweep.ParamName, v),
			Model:      base.Clone(),
			Overrides:  map[string]string{sweep.ParamName: strconv.FormatFloat(v, 'g', -1, 64)},
			Integrator: sweep.Integrator,
			Logger:     log,
		})
		ens.Add(exp.Name(), exp.Build)
	}

	log.WithFields(logrus.Fields{"param": sweep.ParamName, "steps": sweep.NumSteps}).Info("running sweep")
	results, err := ens.Run(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]SweepResult, len(results))
	for i, r := range results {
		out[i] = SweepResult{ParamValue: values[i], Final: r.Last(), Status: r.Status, Err: r.Err}
	}
	return out, nil
}

func requireConstant(cfg *config.Config, name string) error {
	def, err := cfg.Definition()
	if err != nil {
		return err
	}
	v, ok := def.Variable(name)
	if !ok {
		return fmt.Errorf("model %s has no variable %s", cfg.Name, name)
	}
	if v.Kind != graph.Constant {
		return fmt.Errorf("%s is a %s, only constants can be swept", name, v.Kind)
	}
	if len(v.Dims) > 0 {
		return fmt.Errorf("%s is subscripted, only scalar constants can be swept", name)
	}
	return nil
}

// MonteCarloConfig perturbs scalar constants uniformly by up to
// Perturbation times their base value.
type MonteCarloConfig struct {
	Model        string
	Integrator   string
	Params       []string
	Perturbation float64
	NumTrials    int
	Workers      int
	Seed         int64
}

// MonteCarloResult holds one trial.
type MonteCarloResult struct {
	TrialID int
	Params  map[string]float64
	Final   map[string]float64
	Stable  bool // completed without divergence
}

// RunMonteCarlo executes trials with random perturbations of the chosen
// constants. Trials are reproducible for a non-zero seed.
func RunMonteCarlo(ctx context.Context, cfg *MonteCarloConfig, registry *experiment.Registry, log logrus.FieldLogger) ([]MonteCarloResult, error) {
	if cfg.NumTrials < 1 {
		return nil, fmt.Errorf("monte carlo needs at least one trial")
	}
	base, err := registry.Resolve(cfg.Model)
	if err != nil {
		return nil, err
	}

	def, err := base.Definition()
	if err != nil {
		return nil, err
	}
	baseValues := make(map[string]float64, len(cfg.Params))
	for _, p := range cfg.Params {
		if err := requireConstant(base, p); err != nil {
			return nil, err
		}
		v, _ := def.Variable(p)
		f, err := strconv.ParseFloat(v.Equation, 64)
		if err != nil {
			return nil, fmt.Errorf("constant %s is not a literal number: %q", p, v.Equation)
		}
		baseValues[p] = f
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	trials := make([]map[string]float64, cfg.NumTrials)
	ens := sim.NewEnsemble(max(1, cfg.Workers))
	for trial := range trials {
		params := make(map[string]float64, len(cfg.Params))
		overrides := make(map[string]string, len(cfg.Params))
		for _, p := range cfg.Params {
			v := baseValues[p] * (1 + (rng.Float64()-0.5)*2*cfg.Perturbation)
			params[p] = v
			overrides[p] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		trials[trial] = params
		exp := experiment.New(experiment.Config{
			Name:       fmt.Sprintf("trial-%d", trial),
			Model:      base.Clone(),
			Overrides:  overrides,
			Integrator: cfg.Integrator,
			Logger:     log,
		})
		ens.Add(exp.Name(), exp.Build)
	}

	log.WithFields(logrus.Fields{"trials": cfg.NumTrials, "seed": seed}).Info("running monte carlo")
	results, err := ens.Run(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]MonteCarloResult, len(results))
	for i, r := range results {
		out[i] = MonteCarloResult{
			TrialID: i,
			Params:  trials[i],
			Final:   r.Last(),
			Stable:  r.Status == sim.Completed,
		}
	}
	return out, nil
}

// MonteCarloStats counts stable and unstable trials.
func MonteCarloStats(results []MonteCarloResult) (stableCount int, unstableCount int) {
	for _, r := range results {
		if r.Stable {
			stableCount++
		} else {
			unstableCount++
		}
	}
	return
}
