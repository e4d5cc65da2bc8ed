// Package runner wires dataset loading, initialization, the optimizers and
// result persistence into a single run. It is shared by the run command and
// the job server.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"

	"github.com/cwbudde/frechetmean/internal/frechet"
	"github.com/cwbudde/frechetmean/internal/opt"
	"github.com/cwbudde/frechetmean/internal/series"
	"github.com/cwbudde/frechetmean/internal/store"
	"gonum.org/v1/gonum/mat"
)

// InitWarm marks a run that started from a stored estimate.
const InitWarm = "warm"

// Config describes one run. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	Dataset        string  `json:"dataset"`
	DropLabel      bool    `json:"dropLabel,omitempty"`
	Method         string  `json:"method"`
	BatchSize      int     `json:"batchSize"`
	NCoverage      int     `json:"nCoverage"` // 0 = dataset size
	NEpochs        int     `json:"nEpochs"`
	DConverged     float64 `json:"dConverged"`
	Seed           uint64  `json:"seed"`
	Init           string  `json:"init"`
	WarmStart      string  `json:"warmStart,omitempty"`
	Window         int     `json:"window"` // -1 = none
	MayflyIters    int     `json:"mayflyIters,omitempty"`
	MayflyPop      int     `json:"mayflyPop,omitempty"`
	TraceEstimates bool    `json:"traceEstimates,omitempty"`
}

// DefaultConfig returns the settings used when a caller leaves them out.
func DefaultConfig() Config {
	mf := opt.DefaultMayflyConfig()
	return Config{
		Method:      opt.MethodAdam,
		BatchSize:   1,
		NEpochs:     100,
		DConverged:  1e-4,
		Seed:        42,
		Init:        string(series.InitMedoid),
		Window:      -1,
		MayflyIters: mf.MaxIters,
		MayflyPop:   mf.PopSize,
	}
}

// Validate rejects configurations that cannot start. Dataset names must be
// plain directory names so that requests cannot escape the data directory.
func (c Config) Validate() error {
	if c.Dataset == "" {
		return fmt.Errorf("dataset is required")
	}
	if c.Dataset == "." || c.Dataset == ".." || strings.ContainsAny(c.Dataset, `/\`) {
		return fmt.Errorf("invalid dataset name: %q", c.Dataset)
	}
	if c.Window < -1 {
		return fmt.Errorf("window must be -1 or non-negative, got %d", c.Window)
	}
	if c.WarmStart == "" {
		switch series.InitStrategy(c.Init) {
		case series.InitRandom, series.InitMedoid, series.InitMean:
		default:
			return fmt.Errorf("unknown init strategy: %s", c.Init)
		}
	}
	_, err := opt.New(c.optConfig(0, nil))
	return err
}

func (c Config) optConfig(nCoverage int, hook opt.EpochHook) opt.Config {
	return opt.Config{
		Method: c.Method,
		Schedule: opt.Schedule{
			BatchSize:  c.BatchSize,
			NCoverage:  nCoverage,
			NEpochs:    c.NEpochs,
			DConverged: c.DConverged,
		},
		Mayfly:  opt.MayflyConfig{MaxIters: c.MayflyIters, PopSize: c.MayflyPop},
		OnEpoch: hook,
	}
}

// Progress reports the state of a run. Epoch 0 is sent once with the cost of
// the starting estimate before the optimizer begins.
type Progress struct {
	Epoch    int
	Steps    int // total update steps so far
	Cost     float64
	BestCost float64
}

// ProgressFunc receives progress reports on the goroutine executing Run.
type ProgressFunc func(Progress)

// Runner executes runs against a data directory and persists them under an
// output directory.
type Runner struct {
	DataDir string
	OutDir  string
}

// New creates a runner.
func New(dataDir, outDir string) *Runner {
	return &Runner{DataDir: dataDir, OutDir: outDir}
}

// Run loads the dataset, picks the starting estimate, optimizes and saves the
// result, its trace and a results table row. runID may be empty, in which
// case a fresh one is generated. ctx is checked before and after the
// optimization; a cancelled run is not saved.
func (r *Runner) Run(ctx context.Context, cfg Config, runID string, progress ProgressFunc) (*store.RunResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if runID == "" {
		runID = store.NewRunID()
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))

	data, err := series.LoadDir(r.DataDir, cfg.Dataset, series.LoadOptions{
		DropLabel: cfg.DropLabel,
		Delimiter: '\t',
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	points, dims := data.Shape()

	fsStore, err := store.NewFSStore(r.OutDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create result store: %w", err)
	}

	oracle := &frechet.Oracle{Window: cfg.Window}

	initName := cfg.Init
	var z0 *mat.Dense
	if cfg.WarmStart != "" {
		prev, err := fsStore.LoadResult(cfg.WarmStart)
		if err != nil {
			return nil, fmt.Errorf("failed to load warm start: %w", err)
		}
		if err := prev.IsCompatible(cfg.Dataset, points, dims); err != nil {
			return nil, fmt.Errorf("warm start %s: %w", cfg.WarmStart, err)
		}
		z0 = prev.Estimate()
		initName = InitWarm
		slog.Info("Warm start", "from", cfg.WarmStart, "cost", prev.BestCost)
	} else {
		z0, err = series.Initial(series.InitStrategy(cfg.Init), data, oracle.Cost, rng)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize estimate: %w", err)
		}
	}

	nCoverage := cfg.NCoverage
	if nCoverage == 0 {
		nCoverage = data.Len()
	}

	f0 := oracle.Cost(z0, data)

	var tw *store.TraceWriter
	totalSteps := 0
	bestCost := f0
	hook := func(epoch, steps int, cost float64, z *mat.Dense) {
		totalSteps += steps
		if cost < bestCost {
			bestCost = cost
		}

		entry := store.TraceEntry{
			Epoch:     epoch,
			Steps:     totalSteps,
			Cost:      cost,
			Timestamp: time.Now(),
		}
		if cfg.TraceEstimates {
			entry.Estimate = series.Flatten(z)
		}
		if err := tw.Write(entry); err != nil {
			slog.Warn("Failed to write trace entry", "runID", runID, "epoch", epoch, "error", err)
		}

		if progress != nil {
			progress(Progress{Epoch: epoch, Steps: totalSteps, Cost: cost, BestCost: bestCost})
		}
	}

	optimizer, err := opt.New(cfg.optConfig(nCoverage, hook))
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tw, err = store.NewTraceWriter(r.OutDir, runID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace writer: %w", err)
	}
	defer func() {
		if err := tw.Close(); err != nil {
			slog.Warn("Failed to close trace", "runID", runID, "error", err)
		}
	}()

	slog.Info("Starting run",
		"runID", runID,
		"dataset", cfg.Dataset,
		"samples", data.Len(),
		"length", points,
		"method", cfg.Method,
		"init", initName,
		"initial_cost", f0,
	)
	if progress != nil {
		progress(Progress{Cost: f0, BestCost: f0})
	}

	problem := opt.Problem{
		Data:        data,
		Objective:   oracle.Cost,
		Subgradient: oracle.Subgradient,
	}

	start := time.Now()
	res := optimizer.Run(problem, z0, []float64{f0}, rng)
	elapsed := time.Since(start)

	if err := ctx.Err(); err != nil {
		slog.Info("Run cancelled", "runID", runID, "epochs", res.Epochs)
		return nil, err
	}

	runConfig := store.RunConfig{
		Dataset:    cfg.Dataset,
		Method:     cfg.Method,
		BatchSize:  cfg.BatchSize,
		NCoverage:  nCoverage,
		NEpochs:    cfg.NEpochs,
		DConverged: cfg.DConverged,
		Seed:       cfg.Seed,
		Init:       initName,
		Window:     cfg.Window,
		DropLabel:  cfg.DropLabel,
	}
	result := store.NewRunResult(runID, runConfig, res.Best, data.Len(), res.Trace, res.Epochs, res.Steps, elapsed)

	if err := fsStore.SaveResult(result); err != nil {
		return nil, fmt.Errorf("failed to save result: %w", err)
	}

	table := store.NewResultsTable(filepath.Join(r.OutDir, "results"))
	if _, err := table.Append(result); err != nil {
		return nil, fmt.Errorf("failed to update results table: %w", err)
	}

	slog.Info("Run complete",
		"runID", runID,
		"elapsed", elapsed,
		"epochs", res.Epochs,
		"steps", res.Steps,
		"initial_cost", result.InitialCost,
		"best_cost", result.BestCost,
	)

	return result, nil
}
