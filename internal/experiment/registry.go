package experiment

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/san-kum/stockflow/internal/config"
	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/integrators"
)

// Registry resolves model references: built-in presets as "model/preset"
// (or just "model" for its first preset) and YAML documents by path.
type Registry struct {
	models map[string]func() *config.Config
}

func NewRegistry() *Registry {
	r := &Registry{models: make(map[string]func() *config.Config)}
	for _, model := range config.ListModels() {
		for _, preset := range config.ListPresets(model) {
			r.Register(model+"/"+preset, func() *config.Config { return config.GetPreset(model, preset) })
		}
	}
	return r
}

func (r *Registry) Register(name string, fn func() *config.Config) {
	r.models[name] = fn
}

func (r *Registry) GetModel(name string) (*config.Config, error) {
	if fn, ok := r.models[name]; ok {
		return fn(), nil
	}
	if !strings.Contains(name, "/") {
		if presets := config.ListPresets(name); len(presets) > 0 {
			if fn, ok := r.models[name+"/"+presets[0]]; ok {
				return fn(), nil
			}
		}
	}
	return nil, fmt.Errorf("unknown model: %s", name)
}

// Resolve loads ref as a file when it names a YAML document, and as a
// registered model otherwise.
func (r *Registry) Resolve(ref string) (*config.Config, error) {
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".yaml", ".yml":
		return config.Load(ref)
	}
	return r.GetModel(ref)
}

func (r *Registry) GetIntegrator(name string) (dynamo.Integrator, error) {
	return integrators.New(name)
}

func (r *Registry) ListModels() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
