package experiment

import (
	"context"
	"fmt"
	"sort"

	"github.com/san-kum/stockflow/internal/config"
	"github.com/san-kum/stockflow/internal/graph"
	"github.com/san-kum/stockflow/internal/integrators"
	"github.com/san-kum/stockflow/internal/sim"
	"github.com/sirupsen/logrus"
)

// Config describes one run of a model document, optionally with some
// equations replaced.
type Config struct {
	Name       string
	Model      *config.Config
	Overrides  map[string]string
	Integrator string // replaces Model.Run.Integrator when set
	Logger     logrus.FieldLogger
	Observers  []sim.Observer
}

type Experiment struct {
	cfg    Config
	graph  *graph.Graph
	driver *sim.Driver
}

func New(cfg Config) *Experiment {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Experiment{cfg: cfg}
}

// Setup builds a fresh graph and driver. Calling it again discards the
// previous ones, so each call yields an independent run.
func (e *Experiment) Setup() error {
	if e.cfg.Model == nil {
		return fmt.Errorf("experiment %s: no model", e.cfg.Name)
	}
	def, err := e.cfg.Model.Definition()
	if err != nil {
		return fmt.Errorf("experiment %s: %w", e.cfg.Name, err)
	}
	def = def.Clone()

	names := make([]string, 0, len(e.cfg.Overrides))
	for name := range e.cfg.Overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := def.SetEquation(name, e.cfg.Overrides[name]); err != nil {
			return fmt.Errorf("experiment %s: override: %w", e.cfg.Name, err)
		}
	}

	opts, err := e.cfg.Model.GraphOptions()
	if err != nil {
		return fmt.Errorf("experiment %s: %w", e.cfg.Name, err)
	}
	log := e.cfg.Logger.WithField("experiment", e.cfg.Name)
	g, err := graph.Build(def, append(opts, graph.WithLogger(log))...)
	if err != nil {
		return fmt.Errorf("experiment %s: %w", e.cfg.Name, err)
	}

	name := e.cfg.Integrator
	if name == "" {
		name = e.cfg.Model.Run.Integrator
	}
	integ, err := integrators.New(name)
	if err != nil {
		return fmt.Errorf("experiment %s: %w", e.cfg.Name, err)
	}

	simOpts := []sim.Option{sim.WithLogger(log)}
	for _, o := range e.cfg.Observers {
		simOpts = append(simOpts, sim.WithObserver(o))
	}
	d, err := sim.New(g, integ, e.cfg.Model.RunConfig(), simOpts...)
	if err != nil {
		return fmt.Errorf("experiment %s: %w", e.cfg.Name, err)
	}
	e.graph, e.driver = g, d
	return nil
}

// Build sets the experiment up and hands back its driver, matching the
// shape sim.Ensemble expects.
func (e *Experiment) Build() (*sim.Driver, error) {
	if err := e.Setup(); err != nil {
		return nil, err
	}
	return e.driver, nil
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.driver == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	return e.driver.Run(ctx)
}

func (e *Experiment) Name() string { return e.cfg.Name }

// Graph returns the graph built by the last Setup.
func (e *Experiment) Graph() *graph.Graph { return e.graph }

// Driver returns the driver built by the last Setup.
func (e *Experiment) Driver() *sim.Driver { return e.driver }
