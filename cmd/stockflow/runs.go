package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/stockflow/internal/analysis"
	"github.com/san-kum/stockflow/internal/export"
	"github.com/san-kum/stockflow/internal/metrics"
	"github.com/san-kum/stockflow/internal/sim"
	"github.com/san-kum/stockflow/internal/storage"
	"github.com/spf13/cobra"
)

var steadyTol float64

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tTIME\tSPAN\tDT\tINTEG\tSTATUS")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%g..%g\t%g\t%s\t%s\n",
			run.ID,
			run.Model,
			run.Timestamp.Local().Format("2006-01-02 15:04:05"),
			run.Start,
			run.Stop,
			run.Dt,
			run.Integrator,
			run.Status,
		)
	}

	return w.Flush()
}

func loadRun(runID string) (*storage.RunMetadata, *sim.Result, error) {
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	result, err := st.LoadResult(runID)
	if err != nil {
		return nil, nil, err
	}
	if result.Len() == 0 {
		return nil, nil, fmt.Errorf("run %s has no data", runID)
	}
	return meta, result, nil
}

// selectColumns returns the requested columns, or up to limit recorded ones.
func selectColumns(r *sim.Result, limit int) []string {
	if len(columns) > 0 {
		return columns
	}
	all := r.Columns()
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, result, err := loadRun(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s\n", meta.Model)
	fmt.Printf("samples: %d\n\n", result.Len())

	for _, key := range selectColumns(result, 6) {
		data, err := result.Column(key)
		if err != nil {
			return err
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("%s  (t = %g .. %g)", key, result.Times[0], result.Times[result.Len()-1])),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func exportCSV(cmd *cobra.Command, args []string) error {
	_, result, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if outFile == "" {
		return storage.WriteCSV(os.Stdout, result)
	}
	if err := storage.ExportCSV(outFile, result); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", outFile)
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, result, err := loadRun(args[0])
	if err != nil {
		return err
	}
	result.Integrator = meta.Integrator
	result.StepsTaken = meta.Steps
	result.Underflows = meta.Underflows
	result.Config.Start, result.Config.Stop, result.Config.Dt = meta.Start, meta.Stop, meta.Dt
	if outFile == "" {
		return storage.WriteJSON(os.Stdout, meta.Model, result, meta.Metrics)
	}
	if err := storage.ExportJSON(outFile, meta.Model, result, meta.Metrics); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", outFile)
	return nil
}

func exportSVG(cmd *cobra.Command, args []string) error {
	meta, result, err := loadRun(args[0])
	if err != nil {
		return err
	}
	svg, err := export.SeriesChart(result, selectColumns(result, 0), 960, 540, meta.Model)
	if err != nil {
		return err
	}
	path := outFile
	if path == "" {
		path = meta.ID + ".svg"
	}
	if err := os.WriteFile(path, []byte(svg), 0644); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	meta, result, err := loadRun(args[0])
	if err != nil {
		return err
	}
	summaries, err := metrics.Summarize(result)
	if err != nil {
		return err
	}
	byColumn := make(map[string]metrics.Summary, len(summaries))
	for _, s := range summaries {
		byColumn[s.Column] = s
	}

	fmt.Printf("analysis: %s\n", meta.ID)
	fmt.Printf("model: %s\n\n", meta.Model)

	span := result.Times[result.Len()-1] - result.Times[0]
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COLUMN\tMEAN\tSTDDEV\tMIN\tMAX\tFINAL\tPERIOD\tMEAN CROSSINGS\tSETTLED AT")
	for _, key := range selectColumns(result, 0) {
		data, err := result.Column(key)
		if err != nil {
			return err
		}
		s := byColumn[key]
		period := "-"
		if p, ok := analysis.DominantPeriod(result.Times, data); ok && s.StdDev > 1e-9 {
			period = fmt.Sprintf("%.3g", p)
		}
		settled := "-"
		if t, ok := analysis.SteadyState(result.Times, data, steadyTol, span/10); ok {
			settled = fmt.Sprintf("%g", t)
		}
		crossings := len(analysis.Crossings(result.Times, data, s.Mean))
		fmt.Fprintf(w, "%s\t%.4g\t%.4g\t%.4g\t%.4g\t%.4g\t%s\t%d\t%s\n", key, s.Mean, s.StdDev, s.Min, s.Max, s.Final, period, crossings, settled)
	}
	return w.Flush()
}

func phasePlot(cmd *cobra.Command, args []string) error {
	_, result, err := loadRun(args[0])
	if err != nil {
		return err
	}
	xs, err := result.Column(args[1])
	if err != nil {
		return err
	}
	ys, err := result.Column(args[2])
	if err != nil {
		return err
	}
	p, err := analysis.NewPhasePortrait(args[1], xs, args[2], ys)
	if err != nil {
		return err
	}
	fmt.Print(p.ASCII(80, 24))

	if outFile != "" {
		svg, err := export.PhaseChart(p, 600, 600, export.Palette[0])
		if err != nil {
			return err
		}
		if err := os.WriteFile(outFile, []byte(svg), 0644); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", outFile)
	}
	return nil
}
