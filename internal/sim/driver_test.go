package sim_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/san-kum/stockflow/internal/dynamo"
	"github.com/san-kum/stockflow/internal/graph"
	"github.com/san-kum/stockflow/internal/integrators"
	"github.com/san-kum/stockflow/internal/sim"
)

func shipping() graph.Definition {
	return graph.Definition{Variables: []graph.Variable{
		{Name: "orders", Kind: graph.Auxiliary, Equation: "10 + STEP(10, 5)"},
		{Name: "shipments", Kind: graph.Flow, Equation: "DELAY1(orders, 4)"},
		{Name: "delivered", Kind: graph.Stock, Initial: "0", Inflows: []string{"shipments"}},
	}}
}

var _ = Describe("Driver", func() {
	var (
		logger *logrus.Logger
		hook   *test.Hook
		cfg    dynamo.RunConfig
	)

	BeforeEach(func() {
		logger, hook = test.NewNullLogger()
		logger.SetLevel(logrus.DebugLevel)
		cfg = dynamo.DefaultRunConfig()
		cfg.Stop = 40
		cfg.Dt = 0.25
		cfg.SaveInterval = 1
	})

	newDriver := func(def graph.Definition, opts ...sim.Option) *sim.Driver {
		g, err := graph.Build(def, graph.WithLogger(logger))
		Expect(err).NotTo(HaveOccurred())
		d, err := sim.New(g, integrators.NewRK4(), cfg, append([]sim.Option{sim.WithLogger(logger)}, opts...)...)
		Expect(err).NotTo(HaveOccurred())
		return d
	}

	Describe("state machine", func() {
		It("moves from Configured through Running to Completed", func() {
			var seen []sim.Status
			var d *sim.Driver
			d = newDriver(shipping(), sim.WithObserver(sim.ObserverFunc(func(*sim.State) {
				if n := len(seen); n == 0 || seen[n-1] != d.Status() {
					seen = append(seen, d.Status())
				}
			})))
			Expect(d.Status()).To(Equal(sim.Configured))

			r, err := d.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(Equal([]sim.Status{sim.Running}))
			Expect(d.Status()).To(Equal(sim.Completed))
			Expect(r.Status).To(Equal(sim.Completed))
			Expect(r.Status.Terminal()).To(BeTrue())
		})

		It("fails during initialization on a bad delay time", func() {
			def := graph.Definition{Variables: []graph.Variable{
				{Name: "lag", Kind: graph.Constant, Equation: "0"},
				{Name: "out", Kind: graph.Auxiliary, Equation: "SMOOTH(1, lag)"},
			}}
			r, err := newDriver(def).Run(context.Background())
			Expect(errors.Is(err, dynamo.ErrInvalidDelayConfig)).To(BeTrue())
			Expect(r.Status).To(Equal(sim.Failed))
			Expect(r.Len()).To(BeZero())
		})

		It("stops at the first step boundary after cancellation", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			r, err := newDriver(shipping()).Run(ctx)
			Expect(err).To(MatchError(dynamo.ErrCanceled))
			Expect(r.Status).To(Equal(sim.Failed))
			Expect(r.StepsTaken).To(BeZero())
			Expect(r.Times).To(Equal([]float64{0}))

			var warned bool
			for _, e := range hook.AllEntries() {
				if e.Message == "simulation canceled" && e.Level == logrus.WarnLevel {
					warned = true
				}
			}
			Expect(warned).To(BeTrue())
		})
	})

	Describe("model checks", func() {
		It("rejects a two-auxiliary cycle before any step", func() {
			def := graph.Definition{Variables: []graph.Variable{
				{Name: "a", Kind: graph.Auxiliary, Equation: "b"},
				{Name: "b", Kind: graph.Auxiliary, Equation: "a"},
			}}
			_, err := graph.Build(def)
			var ce *dynamo.CycleError
			Expect(errors.As(err, &ce)).To(BeTrue())
			Expect(ce.Cycle).To(HaveLen(3))
			Expect(err).To(MatchError(dynamo.ErrCyclicDependency))
		})
	})

	Describe("delays", func() {
		It("holds a DELAY1 at steady state", func() {
			def := graph.Definition{Variables: []graph.Variable{
				{Name: "out", Kind: graph.Auxiliary, Equation: "DELAY1(7, 3)"},
			}}
			r, err := newDriver(def).Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			series, err := r.Series("out")
			Expect(err).NotTo(HaveOccurred())
			for _, v := range series {
				Expect(v).To(BeNumerically("~", 7, 1e-12))
			}
		})

		It("passes a step through a first-order delay", func() {
			r, err := newDriver(shipping()).Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			before, err := r.At("shipments", 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(before).To(BeNumerically("~", 10, 1e-9))

			after, err := r.At("shipments", 40)
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(BeNumerically("~", 20, 1e-2))

			mid, err := r.At("shipments", 9)
			Expect(err).NotTo(HaveOccurred())
			Expect(mid).To(BeNumerically(">", 10))
			Expect(mid).To(BeNumerically("<", 20))
		})
	})

	Describe("ensembles", func() {
		It("runs independent graphs concurrently and keeps job order", func() {
			e := sim.NewEnsemble(3)
			for _, rate := range []string{"0.1", "0.2", "0.3", "0.4"} {
				def := graph.Definition{Variables: []graph.Variable{
					{Name: "S", Kind: graph.Stock, Initial: "100", Outflows: []string{"out"}},
					{Name: "out", Kind: graph.Flow, Equation: "S * " + rate},
				}}
				e.Add(rate, func() (*sim.Driver, error) {
					g, err := graph.Build(def, graph.WithLogger(logger))
					if err != nil {
						return nil, err
					}
					return sim.New(g, integrators.NewRK4(), cfg, sim.WithLogger(logger))
				})
			}
			Expect(e.Len()).To(Equal(4))

			results, err := e.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(4))

			prev := 101.0
			for _, r := range results {
				Expect(r.Status).To(Equal(sim.Completed))
				final := r.Last()["S"]
				Expect(final).To(BeNumerically("<", prev))
				prev = final
			}
		})

		It("reports build failures", func() {
			e := sim.NewEnsemble(2)
			e.Add("broken", func() (*sim.Driver, error) { return nil, dynamo.ErrInvalidConfig })
			_, err := e.Run(context.Background())
			Expect(err).To(MatchError(ContainSubstring("broken")))
			Expect(errors.Is(err, dynamo.ErrInvalidConfig)).To(BeTrue())
		})
	})
})
