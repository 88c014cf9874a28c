package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/sim"
)

// Recorder exports run progress and saved output values as Prometheus
// metrics. It is a sim.Observer; call Finish once the run returns.
type Recorder struct {
	model   string
	outputs []sim.Output

	time   *prometheus.GaugeVec
	steps  *prometheus.CounterVec
	values *prometheus.GaugeVec
	runs   *prometheus.CounterVec
}

// NewRecorder registers the collectors on reg. Collectors already
// registered by an earlier Recorder are reused.
func NewRecorder(reg prometheus.Registerer, model string, outputs []sim.Output) (*Recorder, error) {
	r := &Recorder{
		model:   model,
		outputs: outputs,
		time: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "stockflow",
			Name:      "simulation_time",
			Help:      "Model time of the last accepted step.",
		}, []string{"model"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stockflow",
			Name:      "steps_total",
			Help:      "Accepted integration steps.",
		}, []string{"model"}),
		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "stockflow",
			Name:      "variable_value",
			Help:      "Last saved value of an output element.",
		}, []string{"model", "variable"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stockflow",
			Name:      "runs_total",
			Help:      "Finished runs by terminal status.",
		}, []string{"model", "status"}),
	}
	var err error
	if r.time, err = register(reg, r.time); err != nil {
		return nil, err
	}
	if r.steps, err = register(reg, r.steps); err != nil {
		return nil, err
	}
	if r.values, err = register(reg, r.values); err != nil {
		return nil, err
	}
	if r.runs, err = register(reg, r.runs); err != nil {
		return nil, err
	}
	return r, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (r *Recorder) OnStep(s *sim.State) {
	r.time.WithLabelValues(r.model).Set(s.Time)
	if s.Step > 0 {
		r.steps.WithLabelValues(r.model).Inc()
	}
	if s.Frame == nil {
		return
	}
	for _, o := range r.outputs {
		v, err := s.Frame.Value(o.Name)
		if err != nil {
			continue
		}
		for i, x := range v.Data {
			r.values.WithLabelValues(r.model, dynamo.ElementName(o.Name, o.Shape, i)).Set(x)
		}
	}
}

func (r *Recorder) Finish(res *sim.Result) {
	r.runs.WithLabelValues(r.model, res.Status.String()).Inc()
}
