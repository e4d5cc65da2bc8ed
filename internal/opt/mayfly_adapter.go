package opt

import (
	"log/slog"
	mrand "math/rand"
	"math/rand/v2"

	"github.com/cwbudde/frechetmean/internal/series"
	"github.com/cwbudde/mayfly"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// MayflyAdapter searches for the mean with the gradient-free Mayfly
// algorithm. Every coordinate of the flattened estimate is bounded by the
// smallest and largest value in the dataset. It never calls the subgradient.
type MayflyAdapter struct {
	config  MayflyConfig
	onEpoch EpochHook
}

// MayflyConfig holds the population settings.
type MayflyConfig struct {
	MaxIters int // Iterations of the swarm (default: 100)
	PopSize  int // Population size, at least 20 (default: 30)
}

// DefaultMayflyConfig returns the settings used by the CLI.
func DefaultMayflyConfig() MayflyConfig {
	return MayflyConfig{MaxIters: 100, PopSize: 30}
}

// NewMayfly creates a new Mayfly optimizer adapter
func NewMayfly(config MayflyConfig) *MayflyAdapter {
	d := DefaultMayflyConfig()
	if config.MaxIters <= 0 {
		config.MaxIters = d.MaxIters
	}
	if config.PopSize < 20 {
		config.PopSize = d.PopSize
	}
	return &MayflyAdapter{config: config}
}

// OnEpoch registers a hook called once with the final swarm result.
func (m *MayflyAdapter) OnEpoch(hook EpochHook) *MayflyAdapter {
	m.onEpoch = hook
	return m
}

// Run executes the Mayfly optimization using the external library. The trace
// gains a single entry, the cost of the swarm's best position. If that is
// worse than the starting point, z0 stays the best estimate.
func (m *MayflyAdapter) Run(p Problem, z0 *mat.Dense, trace []float64, rng *rand.Rand) *Result {
	rows, cols := z0.Dims()
	lower, upper := p.Data.Bounds()

	eval := func(x []float64) float64 {
		return p.Objective(series.Unflatten(x, rows, cols), p.Data)
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = eval
	config.ProblemSize = rows * cols
	config.MaxIterations = m.config.MaxIters
	config.NPop = m.config.PopSize
	config.LowerBound = lower
	config.UpperBound = upper
	config.Rand = mrand.New(mrand.NewSource(rng.Int64()))

	trace = append([]float64(nil), trace...)
	best := mat.DenseCopyOf(z0)

	result, err := mayfly.Optimize(config)
	if err != nil {
		slog.Error("Mayfly optimization failed", "error", err)
		trace = append(trace, trace[len(trace)-1])
		return &Result{Best: best, Trace: trace, Epochs: 1}
	}

	cost := result.GlobalBest.Cost
	trace = append(trace, cost)
	candidate := series.Unflatten(result.GlobalBest.Position, rows, cols)
	if cost <= floats.Min(trace) {
		best = candidate
	}

	slog.Info("Mayfly optimization complete",
		"iterations", m.config.MaxIters,
		"population", m.config.PopSize,
		"initial_cost", trace[len(trace)-2],
		"best_cost", cost,
	)

	if m.onEpoch != nil {
		m.onEpoch(1, m.config.MaxIters, cost, mat.DenseCopyOf(candidate))
	}

	return &Result{Best: best, Trace: trace, Epochs: 1, Steps: m.config.MaxIters}
}
