package sim

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Job builds one independent run. Each job must build its own graph.
type Job struct {
	Name  string
	Build func() (*Driver, error)
}

// Ensemble runs independent jobs concurrently with a bound on parallelism.
type Ensemble struct {
	limit int
	jobs  []Job
}

func NewEnsemble(limit int) *Ensemble {
	if limit < 1 {
		limit = 1
	}
	return &Ensemble{limit: limit}
}

func (e *Ensemble) Add(name string, build func() (*Driver, error)) {
	e.jobs = append(e.jobs, Job{Name: name, Build: build})
}

func (e *Ensemble) Len() int { return len(e.jobs) }

// Run returns one result per job in the order added. A job that fails to
// build aborts the batch; a run that fails at runtime is reported through
// its Result without stopping the others.
func (e *Ensemble) Run(ctx context.Context) ([]*Result, error) {
	results := make([]*Result, len(e.jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)
	for i, job := range e.jobs {
		g.Go(func() error {
			d, err := job.Build()
			if err != nil {
				return fmt.Errorf("%s: %w", job.Name, err)
			}
			results[i], _ = d.Run(gctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
