package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/san-kum/stockflow/internal/data"
	"github.com/san-kum/stockflow/internal/delay"
	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/graph"
	"github.com/san-kum/stockflow/internal/lookup"
	"gopkg.in/yaml.v3"
)

const (
	DefaultIntegrator = "rk4"
	DefaultDelayInit  = "throughput"
)

type Config struct {
	Name  string      `yaml:"name,omitempty"`
	Run   RunConfig   `yaml:"run"`
	Model ModelConfig `yaml:"model"`

	// baseDir anchors relative data globs; set by Load.
	baseDir string
}

type RunConfig struct {
	Start        float64  `yaml:"start"`
	Stop         float64  `yaml:"stop"`
	Dt           float64  `yaml:"dt"`
	SaveInterval float64  `yaml:"save_interval"`
	Integrator   string   `yaml:"integrator"`
	Outputs      []string `yaml:"outputs,omitempty"`
	MaxAbs       float64  `yaml:"max_abs"`
	Workers      int      `yaml:"workers"`
	DelayInit    string   `yaml:"delay_init"`
}

type ModelConfig struct {
	Dimensions []DimensionConfig `yaml:"dimensions,omitempty"`
	Variables  []VariableConfig  `yaml:"variables"`
	Data       []string          `yaml:"data,omitempty"`
}

type DimensionConfig struct {
	Name     string   `yaml:"name"`
	Elements []string `yaml:"elements"`
}

type VariableConfig struct {
	Name        string                 `yaml:"name"`
	Kind        string                 `yaml:"kind"`
	Dims        []string               `yaml:"dims,omitempty"`
	Equation    string                 `yaml:"equation,omitempty"`
	Initial     string                 `yaml:"initial,omitempty"`
	Inflows     []string               `yaml:"inflows,omitempty"`
	Outflows    []string               `yaml:"outflows,omitempty"`
	NonNegative bool                   `yaml:"non_negative,omitempty"`
	Points      [][]float64            `yaml:"points,omitempty"`
	Series      map[string][][]float64 `yaml:"series,omitempty"`
	Units       string                 `yaml:"units,omitempty"`
	Doc         string                 `yaml:"doc,omitempty"`
}

func DefaultConfig() *Config {
	rc := dynamo.DefaultRunConfig()
	return &Config{
		Run: RunConfig{
			Start:        rc.Start,
			Stop:         rc.Stop,
			Dt:           rc.Dt,
			SaveInterval: rc.SaveInterval,
			Integrator:   DefaultIntegrator,
			MaxAbs:       rc.MaxAbs,
			Workers:      rc.Workers,
			DelayInit:    DefaultDelayInit,
		},
	}
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.baseDir = filepath.Dir(path)
	return cfg, nil
}

// Parse decodes a document over DefaultConfig.
func Parse(raw []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0644)
}

// Clone deep-copies cfg through its YAML form.
func (c *Config) Clone() *Config {
	raw, err := yaml.Marshal(c)
	if err != nil {
		panic(fmt.Sprintf("config: clone: %v", err))
	}
	out := &Config{}
	if err := yaml.Unmarshal(raw, out); err != nil {
		panic(fmt.Sprintf("config: clone: %v", err))
	}
	out.baseDir = c.baseDir
	return out
}

// SetBaseDir anchors relative data globs for configs not read by Load.
func (c *Config) SetBaseDir(dir string) { c.baseDir = dir }

func (c *Config) RunConfig() dynamo.RunConfig {
	return dynamo.RunConfig{
		Start:        c.Run.Start,
		Stop:         c.Run.Stop,
		Dt:           c.Run.Dt,
		SaveInterval: c.Run.SaveInterval,
		Outputs:      append([]string(nil), c.Run.Outputs...),
		MaxAbs:       c.Run.MaxAbs,
		Workers:      c.Run.Workers,
	}
}

func (c *Config) DelayInit() (delay.InitMode, error) {
	return delay.ParseInitMode(c.Run.DelayInit)
}

// Definition converts the model section and merges external data series
// into data variables that have no inline series.
func (c *Config) Definition() (graph.Definition, error) {
	var def graph.Definition
	for _, d := range c.Model.Dimensions {
		def.Dimensions = append(def.Dimensions, dynamo.NewDimension(d.Name, d.Elements...))
	}

	var set data.Set
	if len(c.Model.Data) > 0 {
		var err error
		if set, err = data.Load(c.baseDir, c.Model.Data); err != nil {
			return graph.Definition{}, err
		}
	}

	for _, vc := range c.Model.Variables {
		kind, err := graph.ParseKind(vc.Kind)
		if err != nil {
			return graph.Definition{}, fmt.Errorf("variable %s: %w", vc.Name, err)
		}
		v := graph.Variable{
			Name:        vc.Name,
			Kind:        kind,
			Dims:        vc.Dims,
			Equation:    vc.Equation,
			Initial:     vc.Initial,
			Inflows:     vc.Inflows,
			Outflows:    vc.Outflows,
			NonNegative: vc.NonNegative,
			Units:       vc.Units,
			Doc:         vc.Doc,
		}
		if v.Points, err = toPoints(vc.Name, vc.Points); err != nil {
			return graph.Definition{}, err
		}
		if len(vc.Series) > 0 {
			v.Series = make(map[string][]lookup.Point, len(vc.Series))
			for key, pts := range vc.Series {
				if v.Series[key], err = toPoints(vc.Name, pts); err != nil {
					return graph.Definition{}, err
				}
			}
		} else if kind == graph.Data {
			series, ok := set[vc.Name]
			if !ok {
				return graph.Definition{}, fmt.Errorf("data variable %s has no inline series and no matching data file row", vc.Name)
			}
			v.Series = series
		}
		def.Variables = append(def.Variables, v)
	}
	return def, nil
}

func toPoints(name string, raw [][]float64) ([]lookup.Point, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	pts := make([]lookup.Point, len(raw))
	for i, p := range raw {
		if len(p) != 2 {
			return nil, fmt.Errorf("variable %s: point %d has %d values, want [x, y]", name, i, len(p))
		}
		pts[i] = lookup.Point{X: p[0], Y: p[1]}
	}
	return pts, nil
}

// GraphOptions returns the build options the run section implies.
func (c *Config) GraphOptions() ([]graph.Option, error) {
	mode, err := c.DelayInit()
	if err != nil {
		return nil, err
	}
	return []graph.Option{graph.WithWorkers(c.Run.Workers), graph.WithDelayInit(mode)}, nil
}

// Build converts the document into a graph with the run's worker count and
// delay initialization mode.
func (c *Config) Build(opts ...graph.Option) (*graph.Graph, error) {
	def, err := c.Definition()
	if err != nil {
		return nil, err
	}
	all, err := c.GraphOptions()
	if err != nil {
		return nil, err
	}
	return graph.Build(def, append(all, opts...)...)
}
