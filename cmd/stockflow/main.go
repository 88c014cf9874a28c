package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/san-kum/stockflow/internal/config"
	"github.com/san-kum/stockflow/internal/experiment"
	"github.com/san-kum/stockflow/internal/metrics"
	"github.com/san-kum/stockflow/internal/sim"
	"github.com/san-kum/stockflow/internal/viz"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	dataDir     string
	logLevel    string
	metricsAddr string
	themeName   string

	// run section overrides
	start      float64
	stop       float64
	dt         float64
	saveEvery  float64
	integrator string
	workers    int
	outputs    []string
	delayInit  string
	preset     string
	overrides  map[string]string
	noSave     bool

	// run inspection
	columns []string
	outFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "stockflow",
		Short:         "stock-and-flow simulation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid log level: %s", logLevel)
			}
			logrus.SetLevel(level)
			if metricsAddr != "" {
				serveMetrics(metricsAddr)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".stockflow", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	rootCmd.PersistentFlags().StringVar(&themeName, "theme", "cyberpunk", "color theme ("+strings.Join(viz.ThemeNames(), ", ")+")")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "run a preset (model/preset) or a YAML model file",
		Args:  cobra.ExactArgs(1),
		RunE:  runSimulation,
	}
	addRunFlags(runCmd)
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	validateCmd := &cobra.Command{
		Use:   "validate [model]",
		Short: "build the model graph and print its evaluation order",
		Args:  cobra.ExactArgs(1),
		RunE:  validateModel,
	}
	addRunFlags(validateCmd)

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list built-in models and their presets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot stored run columns in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringSliceVar(&columns, "column", nil, "columns to plot (default: first six)")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "print run metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run series to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default stdout)")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run series to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default stdout)")

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "render run series as an SVG chart",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	exportSVGCmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default <run_id>.svg)")
	exportSVGCmd.Flags().StringSliceVar(&columns, "column", nil, "columns to draw (default: all)")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "oscillation and settling analysis of stored columns",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().StringSliceVar(&columns, "column", nil, "columns to analyze (default: all)")
	analyzeCmd.Flags().Float64Var(&steadyTol, "tol", 1e-3, "relative tolerance for steady state")

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id] [x_column] [y_column]",
		Short: "plot one stored column against another",
		Args:  cobra.ExactArgs(3),
		RunE:  phasePlot,
	}
	phaseCmd.Flags().StringVarP(&outFile, "output", "o", "", "also write an SVG to this file")

	compareCmd := &cobra.Command{
		Use:   "compare [model] [integrator1] [integrator2] ...",
		Short: "compare integrators on the same model",
		Args:  cobra.MinimumNArgs(2),
		RunE:  compareIntegrators,
	}
	addRunFlags(compareCmd)

	liveCmd := &cobra.Command{
		Use:   "live [model]",
		Short: "run with a live terminal view",
		Args:  cobra.ExactArgs(1),
		RunE:  runLive,
	}
	addRunFlags(liveCmd)
	liveCmd.Flags().DurationVar(&pace, "pace", 0, "pause after each saved step, e.g. 20ms")
	liveCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	watchCmd := &cobra.Command{
		Use:   "watch [model.yaml]",
		Short: "re-run a model file whenever it changes",
		Args:  cobra.ExactArgs(1),
		RunE:  watchModel,
	}
	addRunFlags(watchCmd)

	scenarioCmd := &cobra.Command{
		Use:   "scenario [scenario.yaml]",
		Short: "run the variants of a scenario file concurrently",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
	scenarioCmd.Flags().StringSliceVar(&columns, "column", nil, "final values to report (default: all)")
	scenarioCmd.Flags().BoolVar(&saveAll, "save-all", false, "store every variant, not only those with save_as")

	sweepCmd := &cobra.Command{
		Use:   "sweep [model]",
		Short: "vary one constant and report final values",
		Args:  cobra.ExactArgs(1),
		RunE:  runSweep,
	}
	sweepCmd.Flags().StringVar(&sweepParam, "param", "", "constant to vary")
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 0, "first value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 1, "last value")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 5, "number of values")
	sweepCmd.Flags().IntVar(&workers, "workers", 4, "concurrent runs")
	sweepCmd.Flags().StringVar(&integrator, "integrator", "", "integrator (default: model's)")
	sweepCmd.Flags().StringSliceVar(&columns, "column", nil, "final values to report (default: all)")
	_ = sweepCmd.MarkFlagRequired("param")

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo [model]",
		Short: "perturb constants randomly and count stable runs",
		Args:  cobra.ExactArgs(1),
		RunE:  runMonteCarlo,
	}
	monteCarloCmd.Flags().StringSliceVar(&mcParams, "param", nil, "constants to perturb")
	monteCarloCmd.Flags().Float64Var(&mcPerturb, "perturb", 0.1, "relative perturbation")
	monteCarloCmd.Flags().IntVar(&mcTrials, "trials", 20, "number of trials")
	monteCarloCmd.Flags().Int64Var(&mcSeed, "seed", 0, "random seed (0: time based)")
	monteCarloCmd.Flags().IntVar(&workers, "workers", 4, "concurrent runs")
	monteCarloCmd.Flags().StringVar(&integrator, "integrator", "", "integrator (default: model's)")
	monteCarloCmd.Flags().StringSliceVar(&columns, "column", nil, "final values to report (default: all)")
	_ = monteCarloCmd.MarkFlagRequired("param")

	rootCmd.AddCommand(runCmd, validateCmd, presetsCmd, listCmd, plotCmd, exportCmd, exportCSVCmd, exportJSONCmd,
		exportSVGCmd, analyzeCmd, phaseCmd, compareCmd, liveCmd, watchCmd, scenarioCmd, sweepCmd, monteCarloCmd)

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stopSignals()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stopSignals()
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&start, "start", 0, "start time")
	cmd.Flags().Float64Var(&stop, "stop", 100, "stop time")
	cmd.Flags().Float64Var(&dt, "dt", 0.25, "time step")
	cmd.Flags().Float64Var(&saveEvery, "save", 1, "save interval")
	cmd.Flags().StringVar(&integrator, "integrator", config.DefaultIntegrator, "integrator (euler, rk2, rk4, rk45)")
	cmd.Flags().IntVar(&workers, "workers", 1, "workers per topological layer")
	cmd.Flags().StringSliceVar(&outputs, "outputs", nil, "variables to record (default: all)")
	cmd.Flags().StringVar(&delayInit, "delay-init", config.DefaultDelayInit, "delay initialization (throughput, level)")
	cmd.Flags().StringVar(&preset, "preset", "", "preset of the named model")
	cmd.Flags().StringToStringVar(&overrides, "set", nil, "override an equation, e.g. --set rate=0.2")
}

// loadModel resolves a model reference and applies the flags the user set
// explicitly; values from the document win over flag defaults.
func loadModel(cmd *cobra.Command, ref string) (*config.Config, error) {
	if preset != "" {
		ref = ref + "/" + preset
	}
	cfg, err := experiment.NewRegistry().Resolve(ref)
	if err != nil {
		if preset != "" {
			return nil, fmt.Errorf("%w (available: %v)", err, config.ListPresets(strings.SplitN(ref, "/", 2)[0]))
		}
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = ref
	}

	flags := cmd.Flags()
	if flags.Changed("start") {
		cfg.Run.Start = start
	}
	if flags.Changed("stop") {
		cfg.Run.Stop = stop
	}
	if flags.Changed("dt") {
		cfg.Run.Dt = dt
	}
	if flags.Changed("save") {
		cfg.Run.SaveInterval = saveEvery
	}
	if flags.Changed("integrator") {
		cfg.Run.Integrator = integrator
	}
	if flags.Changed("workers") {
		cfg.Run.Workers = workers
	}
	if flags.Changed("outputs") {
		cfg.Run.Outputs = outputs
	}
	if flags.Changed("delay-init") {
		cfg.Run.DelayInit = delayInit
	}
	return cfg, nil
}

// newExperiment wires a loaded model to the process-wide observers.
func newExperiment(cfg *config.Config, observers ...sim.Observer) *experiment.Experiment {
	return experiment.New(experiment.Config{
		Name:      cfg.Name,
		Model:     cfg,
		Overrides: overrides,
		Logger:    logrus.StandardLogger(),
		Observers: observers,
	})
}

// attachRecorder registers a Prometheus observer when --metrics-addr is set.
func attachRecorder(d *sim.Driver, model string) (*metrics.Recorder, error) {
	if metricsAddr == "" {
		return nil, nil
	}
	rec, err := metrics.NewRecorder(prometheus.DefaultRegisterer, model, d.Outputs())
	if err != nil {
		return nil, err
	}
	return rec, d.AddObserver(rec)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("metrics server stopped")
		}
	}()
	logrus.WithField("addr", addr).Info("serving metrics")
}

func styles() viz.Styles {
	return viz.NewStyles(viz.GetTheme(themeName))
}
