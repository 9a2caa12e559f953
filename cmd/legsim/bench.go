package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/legsim/benchmarks"
)

type benchFlags struct {
	csv        bool
	json       bool
	quick      bool
	noValidate bool
}

func (a *app) benchCmd() *cobra.Command {
	var f benchFlags

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run the built-in microbenchmarks on the core.",
		Long: `bench runs short hand-assembled programs that each stress one pipeline or
cache behavior, checks them against the sequential reference emulator and
prints cycle and hazard counts.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runBench(cmd, f)
		},
	}

	cmd.Flags().BoolVar(&f.csv, "csv", false, "output results in CSV format")
	cmd.Flags().BoolVar(&f.json, "json", false, "output a JSON report")
	cmd.Flags().BoolVar(&f.quick, "quick", false, "run only the core benchmarks")
	cmd.Flags().BoolVar(&f.noValidate, "no-validate", false, "skip the reference emulator check")
	cmd.MarkFlagsMutuallyExclusive("csv", "json")

	return cmd
}

func (a *app) runBench(cmd *cobra.Command, f benchFlags) error {
	cfg, err := a.resolveConfig(cmd)
	if err != nil {
		return err
	}

	h := benchmarks.NewHarness(benchmarks.HarnessConfig{
		Sim:      cfg,
		Validate: !f.noValidate,
		Output:   a.stdout,
	})

	if f.quick {
		h.AddBenchmarks(benchmarks.GetCoreBenchmarks())
	} else {
		h.AddBenchmarks(benchmarks.GetMicrobenchmarks())
	}

	results := h.RunAll()

	switch {
	case f.csv:
		h.PrintCSV(results)
	case f.json:
		if err := h.PrintJSON(results); err != nil {
			return err
		}
	default:
		h.PrintResults(results)
	}

	summary := h.Summarize(results)
	if summary.Passed != summary.TotalBenchmarks {
		return fmt.Errorf("%d of %d benchmarks failed",
			summary.TotalBenchmarks-summary.Passed, summary.TotalBenchmarks)
	}

	return nil
}
