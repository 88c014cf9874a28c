package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/san-kum/stockflow/internal/config"
	"github.com/san-kum/stockflow/internal/graph"
	"github.com/san-kum/stockflow/internal/metrics"
	"github.com/san-kum/stockflow/internal/sim"
	"github.com/san-kum/stockflow/internal/storage"
	"github.com/san-kum/stockflow/internal/viz"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var pace time.Duration

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadModel(cmd, args[0])
	if err != nil {
		return err
	}

	exp := newExperiment(cfg)
	if err := exp.Setup(); err != nil {
		return err
	}
	rec, err := attachRecorder(exp.Driver(), cfg.Name)
	if err != nil {
		return err
	}

	logrus.WithField("model", cfg.Name).Info("running simulation")
	began := time.Now()
	result, runErr := exp.Run(cmd.Context())
	elapsed := time.Since(began)
	if result == nil {
		return runErr
	}
	if rec != nil {
		rec.Finish(result)
	}

	fmt.Println(styles().Summary(cfg.Name, result))
	fmt.Printf("completed in %v\n", elapsed)
	for _, w := range result.Diagnostics {
		fmt.Printf("warning: %v\n", w)
	}

	if !noSave && result.Len() > 0 {
		id, err := saveResult(cfg.Name, result)
		if err != nil {
			return err
		}
		fmt.Printf("run id: %s\n", id)
	}
	return runErr
}

func saveResult(model string, result *sim.Result) (string, error) {
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return "", err
	}
	var stats map[string]float64
	if ss, err := metrics.Summarize(result); err == nil {
		stats = metrics.Flatten(ss)
	}
	return st.Save(model, result, stats)
}

func validateModel(cmd *cobra.Command, args []string) error {
	cfg, err := loadModel(cmd, args[0])
	if err != nil {
		return err
	}
	exp := newExperiment(cfg)
	if err := exp.Setup(); err != nil {
		return err
	}
	g := exp.Graph()

	fmt.Printf("model: %s\n", cfg.Name)
	fmt.Printf("state: %d stock elements, %d delay levels\n\n", g.StockLen(), g.DelayLen())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STOCK\tELEMENTS\tOFFSET\tNON-NEGATIVE")
	for _, s := range g.Stocks() {
		fmt.Fprintf(w, "%s\t%d\t%d\t%v\n", s.Name, s.Shape.Size(), s.Offset, s.NonNegative)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if delays := g.Delays(); len(delays) > 0 {
		fmt.Printf("\ndelays: %s\n", strings.Join(delays, ", "))
	}
	fmt.Println("\nevaluation layers:")
	for i, layer := range g.Layers() {
		fmt.Printf("  %d: %s\n", i, strings.Join(layer, ", "))
	}
	fmt.Printf("\ninitialization order: %s\n", strings.Join(g.InitOrder(), ", "))

	if _, err := g.Initialize(graph.Clock{Start: cfg.Run.Start, Stop: cfg.Run.Stop, Dt: cfg.Run.Dt}); err != nil {
		return fmt.Errorf("initialization: %w", err)
	}
	fmt.Println("\nok")
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	models := config.ListModels()
	if len(args) == 1 {
		if config.ListPresets(args[0]) == nil {
			fmt.Printf("no presets for model: %s\n", args[0])
			return nil
		}
		models = args
	}
	for _, model := range models {
		fmt.Printf("presets for %s:\n", model)
		for _, p := range config.ListPresets(model) {
			fmt.Printf("  %s/%s\n", model, p)
		}
	}
	return nil
}

func compareIntegrators(cmd *cobra.Command, args []string) error {
	cfg, err := loadModel(cmd, args[0])
	if err != nil {
		return err
	}

	var (
		baseline *sim.Result
		names    = args[1:]
	)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INTEGRATOR\tSTATUS\tTIME\tMAX |DIFF| VS "+strings.ToUpper(names[0])+"\tWORST COLUMN")
	for _, name := range names {
		run := cfg.Clone()
		run.Run.Integrator = name
		exp := newExperiment(run)
		if err := exp.Setup(); err != nil {
			return err
		}
		began := time.Now()
		result, _ := exp.Run(cmd.Context())
		elapsed := time.Since(began)

		diff, worst := 0.0, "-"
		if baseline == nil {
			baseline = result
		} else if d, err := metrics.Compare(baseline, result); err == nil {
			for _, key := range metrics.SortedKeys(d) {
				if d[key] > diff {
					diff, worst = d[key], key
				}
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%v\t%.3e\t%s\n", name, result.Status, elapsed.Round(time.Microsecond), diff, worst)
	}
	return w.Flush()
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadModel(cmd, args[0])
	if err != nil {
		return err
	}

	// The live view owns the terminal; keep log lines out of it.
	restore := redirectLogs(filepath.Join(os.TempDir(), "stockflow.log"))
	defer restore()

	exp := newExperiment(cfg)
	if err := exp.Setup(); err != nil {
		return err
	}
	d := exp.Driver()
	live := viz.NewLive(cfg.Name, d.Outputs(), pace, viz.GetTheme(themeName))
	if err := d.AddObserver(live); err != nil {
		return err
	}
	rec, err := attachRecorder(d, cfg.Name)
	if err != nil {
		return err
	}

	result, runErr := live.Run(cmd.Context(), d)
	if result == nil {
		return runErr
	}
	if rec != nil {
		rec.Finish(result)
	}
	fmt.Println(styles().Summary(cfg.Name, result))
	if !noSave && result.Len() > 0 {
		id, err := saveResult(cfg.Name, result)
		if err != nil {
			return err
		}
		fmt.Printf("run id: %s\n", id)
	}
	return runErr
}

// redirectLogs appends standard logger output to path until the returned
// func puts the previous output back and closes the file.
func redirectLogs(path string) func() {
	logger := logrus.StandardLogger()
	prev := logger.Out
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logger.WithError(err).Warn("cannot open log file, logging to the terminal")
		return func() {}
	}
	logger.SetOutput(f)
	return func() {
		logger.SetOutput(prev)
		f.Close()
	}
}

const watchDebounce = 200 * time.Millisecond

// watchModel re-runs a model file after each burst of writes. Editors that
// save by rename are handled by watching the directory.
func watchModel(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}

	rerun := func() {
		cfg, err := loadModel(cmd, path)
		if err == nil {
			err = runOnce(cmd.Context(), cfg)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		fmt.Printf("\nwatching %s (ctrl+c to stop)\n", path)
	}
	rerun()

	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			logrus.WithField("op", ev.Op.String()).Debug("model file changed")
			timer.Reset(watchDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logrus.WithError(err).Warn("watch error")
		case <-timer.C:
			rerun()
		}
	}
}

func runOnce(ctx context.Context, cfg *config.Config) error {
	exp := newExperiment(cfg)
	if err := exp.Setup(); err != nil {
		return err
	}
	result, err := exp.Run(ctx)
	if result != nil {
		fmt.Println(styles().Summary(cfg.Name, result))
	}
	return err
}
