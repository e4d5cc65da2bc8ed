package opt

import (
	"errors"
	"log/slog"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Schedule describes the minibatch and epoch budget of a descent run.
type Schedule struct {
	// BatchSize is the number of series consumed per update step.
	BatchSize int

	// NCoverage is the number of samples to visit per epoch. Steps continue
	// until at least this many samples were visited or no full batch is left.
	NCoverage int

	// NEpochs is the maximum number of epochs.
	NEpochs int

	// DConverged is the relative objective change below which the run stops.
	DConverged float64
}

// Validate rejects schedules that cannot make progress. The optimizers
// themselves do not call it.
func (s Schedule) Validate() error {
	if s.BatchSize <= 0 {
		return errors.New("batch size must be positive")
	}
	if s.NCoverage < 0 {
		return errors.New("coverage cannot be negative")
	}
	if s.NEpochs < 0 {
		return errors.New("epochs cannot be negative")
	}
	return nil
}

// StepsPerEpoch returns the most update steps one epoch can execute on a
// dataset of n series.
func (s Schedule) StepsPerEpoch(n int) int {
	if s.BatchSize <= 0 {
		return 0
	}
	byCoverage := (s.NCoverage + s.BatchSize - 1) / s.BatchSize
	return min(byCoverage, n/s.BatchSize)
}

// updateRule applies one parameter update to z given subgradient g.
type updateRule interface {
	step(z *mat.Dense, g *mat.Dense)
}

// descend runs the shuffled minibatch schedule shared by the gradient-based
// optimizers and keeps the best estimate seen at the end of any epoch.
func descend(p Problem, s Schedule, rule updateRule, z0 *mat.Dense, trace []float64, rng *rand.Rand, hook EpochHook, name string) *Result {
	n := p.Data.Len()
	z := mat.DenseCopyOf(z0)
	best := mat.DenseCopyOf(z0)
	trace = append(make([]float64, 0, len(trace)+max(s.NEpochs, 0)), trace...)

	tracker := NewConvergenceTracker(DefaultConvergenceConfig(s.DConverged))
	for _, f := range trace {
		tracker.Update(f)
	}

	slog.Info("Starting descent",
		"method", name,
		"series", n,
		"batch_size", s.BatchSize,
		"coverage", s.NCoverage,
		"max_epochs", s.NEpochs,
		"initial_cost", trace[len(trace)-1],
	)

	res := &Result{}
	for k := 0; k < s.NEpochs; k++ {
		perm := rng.Perm(n)

		steps, visited := 0, 0
		for i := 0; i < n; i += s.BatchSize {
			if visited >= s.NCoverage {
				break
			}
			// A partial trailing batch is dropped.
			if n-i < s.BatchSize {
				break
			}

			g := p.Subgradient(p.Data, z, i, s.BatchSize, perm)
			rule.step(z, g)

			steps++
			visited += s.BatchSize
		}

		cost := p.Objective(z, p.Data)
		trace = append(trace, cost)
		res.Epochs++
		res.Steps += steps

		converged := tracker.Update(cost)
		if tracker.IsMin(cost) {
			best.Copy(z)
		}

		slog.Debug("Epoch complete",
			"epoch", k+1,
			"steps", steps,
			"cost", cost,
			"best_cost", tracker.MinCost(),
		)

		if hook != nil {
			hook(k+1, steps, cost, mat.DenseCopyOf(z))
		}

		if converged {
			break
		}
	}

	slog.Info("Descent complete",
		"method", name,
		"epochs", res.Epochs,
		"steps", res.Steps,
		"best_cost", tracker.MinCost(),
	)

	res.Best = best
	res.Trace = trace
	return res
}
