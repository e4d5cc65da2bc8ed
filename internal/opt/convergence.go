package opt

import (
	"log/slog"
	"math"
)

// ConvergenceConfig defines parameters for detecting optimization convergence
type ConvergenceConfig struct {
	// Enabled controls whether convergence detection is active
	Enabled bool

	// Patience is the number of consecutive epochs whose relative change must
	// stay below Threshold before stopping. 1 stops at the first such epoch.
	Patience int

	// Threshold is the relative change below which an epoch counts as stale.
	// Relative change = |newCost - prevCost| / prevCost
	Threshold float64
}

// DefaultConvergenceConfig stops at the first epoch whose relative change
// falls below threshold.
func DefaultConvergenceConfig(threshold float64) ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  1,
		Threshold: threshold,
	}
}

// DisabledConvergenceConfig returns a config with convergence detection disabled
func DisabledConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled: false,
	}
}

// ConvergenceTracker tracks the objective trace, its running minimum and
// whether the run has converged.
type ConvergenceTracker struct {
	config      ConvergenceConfig
	costHistory []float64
	minCost     float64 // NaN once any NaN has been recorded
	staleCount  int     // Consecutive epochs below threshold
}

// NewConvergenceTracker creates a new convergence tracker with the given config
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{
		config:      config,
		costHistory: []float64{},
		minCost:     math.Inf(1),
	}
}

// Update records a new cost value and returns true if convergence is detected.
//
// The relative change divides by the previous cost without guarding it: a
// zero previous cost gives Inf or NaN, neither of which is below the
// threshold, so the run continues.
func (c *ConvergenceTracker) Update(cost float64) bool {
	c.costHistory = append(c.costHistory, cost)

	switch {
	case math.IsNaN(cost):
		c.minCost = math.NaN()
	case cost < c.minCost:
		c.minCost = cost
	}

	if !c.config.Enabled || len(c.costHistory) == 1 {
		return false
	}

	prev := c.costHistory[len(c.costHistory)-2]
	relativeChange := math.Abs((cost - prev) / prev)

	if !(relativeChange < c.config.Threshold) {
		c.staleCount = 0
		return false
	}

	c.staleCount++
	slog.Debug("Relative change below threshold",
		"cost", cost,
		"prev_cost", prev,
		"relative_change", relativeChange,
		"stale_count", c.staleCount,
		"patience", c.config.Patience,
	)

	if c.staleCount >= c.config.Patience {
		slog.Info("Convergence detected - stopping early",
			"stale_count", c.staleCount,
			"threshold", c.config.Threshold,
			"best_cost", c.minCost,
		)
		return true
	}
	return false
}

// IsMin reports whether cost equals the minimum of every value recorded so
// far. Once a NaN has been recorded nothing compares equal to the minimum.
func (c *ConvergenceTracker) IsMin(cost float64) bool {
	return cost == c.minCost
}

// MinCost returns the minimum cost seen so far (NaN if any cost was NaN).
func (c *ConvergenceTracker) MinCost() float64 {
	return c.minCost
}

// History returns the full cost history
func (c *ConvergenceTracker) History() []float64 {
	return append([]float64{}, c.costHistory...) // Return copy
}

// StaleCount returns the current number of consecutive stale epochs
func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}

// Reset clears the tracker's state
func (c *ConvergenceTracker) Reset() {
	c.costHistory = []float64{}
	c.minCost = math.Inf(1)
	c.staleCount = 0
}
