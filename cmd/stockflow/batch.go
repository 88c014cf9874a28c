package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/san-kum/stockflow/internal/automation"
	"github.com/san-kum/stockflow/internal/experiment"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	saveAll bool

	sweepParam string
	sweepMin   float64
	sweepMax   float64
	sweepSteps int

	mcParams  []string
	mcPerturb float64
	mcTrials  int
	mcSeed    int64
)

// finalColumns picks the reported columns from the first result's keys.
func finalColumns(final map[string]float64) []string {
	if len(columns) > 0 {
		return columns
	}
	keys := make([]string, 0, len(final))
	for k := range final {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	if sc.Description != "" {
		fmt.Println(sc.Description)
	}

	results, err := automation.RunScenario(cmd.Context(), sc, experiment.NewRegistry(), logrus.StandardLogger())
	if err != nil {
		return err
	}

	cols := finalColumns(results[0].Result.Last())
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VARIANT\tSTATUS\t"+strings.Join(cols, "\t")+"\tRUN ID")
	for _, vr := range results {
		last := vr.Result.Last()
		row := []string{vr.Variant.Name, vr.Result.Status.String()}
		for _, c := range cols {
			row = append(row, fmt.Sprintf("%.4g", last[c]))
		}
		id := "-"
		if (saveAll || vr.Variant.SaveAs != "") && vr.Result.Len() > 0 {
			name := vr.Variant.SaveAs
			if name == "" {
				name = sc.Name + "/" + vr.Variant.Name
			}
			if id, err = saveResult(name, vr.Result); err != nil {
				return err
			}
		}
		fmt.Fprintln(w, strings.Join(append(row, id), "\t"))
	}
	return w.Flush()
}

func runSweep(cmd *cobra.Command, args []string) error {
	sweep := &automation.ParameterSweep{
		Model:      args[0],
		Integrator: integrator,
		ParamName:  sweepParam,
		ParamMin:   sweepMin,
		ParamMax:   sweepMax,
		NumSteps:   sweepSteps,
		Workers:    workers,
	}
	results, err := automation.RunSweep(cmd.Context(), sweep, experiment.NewRegistry(), logrus.StandardLogger())
	if err != nil {
		return err
	}

	cols := finalColumns(results[0].Final)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(sweepParam)+"\tSTATUS\t"+strings.Join(cols, "\t"))
	for _, r := range results {
		row := []string{fmt.Sprintf("%g", r.ParamValue), r.Status.String()}
		for _, c := range cols {
			row = append(row, fmt.Sprintf("%.4g", r.Final[c]))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
		if r.Err != nil {
			logrus.WithError(r.Err).WithField("value", r.ParamValue).Warn("sweep run failed")
		}
	}
	return w.Flush()
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	cfg := &automation.MonteCarloConfig{
		Model:        args[0],
		Integrator:   integrator,
		Params:       mcParams,
		Perturbation: mcPerturb,
		NumTrials:    mcTrials,
		Workers:      workers,
		Seed:         mcSeed,
	}
	results, err := automation.RunMonteCarlo(cmd.Context(), cfg, experiment.NewRegistry(), logrus.StandardLogger())
	if err != nil {
		return err
	}

	cols := finalColumns(results[0].Final)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TRIAL\t"+strings.Join(mcParams, "\t")+"\tSTABLE\t"+strings.Join(cols, "\t"))
	for _, r := range results {
		row := []string{fmt.Sprint(r.TrialID)}
		for _, p := range mcParams {
			row = append(row, fmt.Sprintf("%.4g", r.Params[p]))
		}
		row = append(row, fmt.Sprint(r.Stable))
		for _, c := range cols {
			row = append(row, fmt.Sprintf("%.4g", r.Final[c]))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	stable, unstable := automation.MonteCarloStats(results)
	fmt.Printf("\nstable: %d  unstable: %d\n", stable, unstable)
	return nil
}
