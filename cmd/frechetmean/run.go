package main

import (
	"fmt"
	"io"

	"github.com/cwbudde/frechetmean/internal/opt"
	"github.com/cwbudde/frechetmean/internal/runner"
	"github.com/cwbudde/frechetmean/internal/store"
	"github.com/spf13/cobra"
)

var (
	runDataDir string
	runOutDir  string
	runConfig  = runner.DefaultConfig()
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Estimate the DTW mean of a dataset",
	Long: `Loads every .tsv file of a dataset, runs the selected optimizer on the
Frechet function and stores the best estimate, the per-epoch trace and a row
in the timestamped results table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r := runner.New(runDataDir, runOutDir)
		result, err := r.Run(cmd.Context(), runConfig, "", nil)
		if err != nil {
			return err
		}
		printRunSummary(cmd.OutOrStdout(), result)
		return nil
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runDataDir, "data-dir", "./data", "Directory containing one subdirectory per dataset")
	f.StringVar(&runOutDir, "out-dir", "./results", "Base directory for stored runs")

	c := &runConfig
	f.StringVar(&c.Dataset, "dataset", "", "Dataset name (required)")
	f.BoolVar(&c.DropLabel, "drop-label", false, "Drop the first column of every row (class label)")
	f.StringVar(&c.Method, "method", c.Method, fmt.Sprintf("Optimizer: %v", opt.Methods()))
	f.IntVar(&c.BatchSize, "batch-size", c.BatchSize, "Samples per subgradient step")
	f.IntVar(&c.NCoverage, "coverage", c.NCoverage, "Samples visited per epoch (0 = dataset size)")
	f.IntVar(&c.NEpochs, "epochs", c.NEpochs, "Maximum number of epochs")
	f.Float64Var(&c.DConverged, "converged", c.DConverged, "Relative objective change that stops the run")
	f.Uint64Var(&c.Seed, "seed", c.Seed, "Random seed")
	f.StringVar(&c.Init, "init", c.Init, "Initial estimate: random, medoid, mean")
	f.StringVar(&c.WarmStart, "warm-start", "", "Start from the best estimate of a stored run ID")
	f.IntVar(&c.Window, "window", c.Window, "Sakoe-Chiba window for DTW (-1 = none)")
	f.IntVar(&c.MayflyIters, "mayfly-iters", c.MayflyIters, "Mayfly iterations")
	f.IntVar(&c.MayflyPop, "mayfly-pop", c.MayflyPop, "Mayfly population size")
	f.BoolVar(&c.TraceEstimates, "trace-estimates", false, "Include the current estimate in every trace entry")

	runCmd.MarkFlagRequired("dataset")
	rootCmd.AddCommand(runCmd)
}

func printRunSummary(w io.Writer, r *store.RunResult) {
	fmt.Fprintf(w, "Run %s: %s on %s, cost %.6g -> %.6g after %d epochs (%.2fs)\n",
		r.RunID, r.Config.Method, r.Config.Dataset, r.InitialCost, r.BestCost, r.Epochs, r.Elapsed)
}
