package opt

import (
	"math/rand/v2"

	"github.com/cwbudde/frechetmean/internal/series"
	"gonum.org/v1/gonum/mat"
)

// ObjectiveFunc evaluates the total alignment cost of estimate z over the
// whole dataset.
type ObjectiveFunc func(z *mat.Dense, data series.Dataset) float64

// SubgradientFunc returns a subgradient shaped like z for the batch
// data[perm[start]], ..., data[perm[start+batchSize-1]]. It must not keep
// state between calls.
type SubgradientFunc func(data series.Dataset, z *mat.Dense, start, batchSize int, perm []int) *mat.Dense

// Problem bundles the dataset with the two collaborators an optimizer drives.
type Problem struct {
	Data        series.Dataset
	Objective   ObjectiveFunc
	Subgradient SubgradientFunc
}

// EpochHook observes the end of an epoch: the epoch index (1-based), the
// number of update steps it executed, its objective value and the estimate.
// z is a copy; changing it does not affect the optimizer.
type EpochHook func(epoch, steps int, cost float64, z *mat.Dense)

// Result is the outcome of an optimization run.
type Result struct {
	// Best is the estimate whose objective equals the minimum of Trace.
	Best *mat.Dense

	// Trace holds the caller's initial objective value followed by one value
	// per executed epoch.
	Trace []float64

	// Epochs is the number of epochs actually executed.
	Epochs int

	// Steps is the total number of update steps across all epochs.
	Steps int
}

// BestCost returns the smallest value in the trace.
func (r *Result) BestCost() float64 {
	best := r.Trace[0]
	for _, f := range r.Trace[1:] {
		if f < best {
			best = f
		}
	}
	return best
}

// Optimizer defines an algorithm that searches for a Frechet mean.
type Optimizer interface {
	// Run starts from z0 (which is not modified) and extends trace, whose
	// first element must be the objective value of z0. rng drives every
	// random choice, so equal seeds give equal results.
	Run(p Problem, z0 *mat.Dense, trace []float64, rng *rand.Rand) *Result
}
