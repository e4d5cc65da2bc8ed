package opt

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// SSG is plain stochastic subgradient descent, θ ← θ − η_t·g, with a step
// size that decays linearly from Eta0 to Eta1 over the run's step budget.
// It shares batching, convergence and best-estimate tracking with Adam.
type SSG struct {
	config   SSGConfig
	schedule Schedule
	onEpoch  EpochHook
}

// SSGConfig holds the step-size schedule. Zero fields take the defaults.
type SSGConfig struct {
	Eta0 float64 // Initial step size (default: 0.05)
	Eta1 float64 // Final step size (default: 0.005)
}

// DefaultSSGConfig returns the default linear decay from 0.05 to 0.005.
func DefaultSSGConfig() SSGConfig {
	return SSGConfig{Eta0: 0.05, Eta1: 0.005}
}

// NewSSG creates a stochastic subgradient optimizer for the given schedule.
func NewSSG(config SSGConfig, schedule Schedule) *SSG {
	d := DefaultSSGConfig()
	if config.Eta0 == 0 {
		config.Eta0 = d.Eta0
	}
	if config.Eta1 == 0 {
		config.Eta1 = d.Eta1
	}
	return &SSG{config: config, schedule: schedule}
}

// OnEpoch registers a hook called at the end of every epoch.
func (o *SSG) OnEpoch(hook EpochHook) *SSG {
	o.onEpoch = hook
	return o
}

// Run executes SSG descent from z0. See Optimizer.
func (o *SSG) Run(p Problem, z0 *mat.Dense, trace []float64, rng *rand.Rand) *Result {
	state := &ssgState{
		config: o.config,
		total:  max(o.schedule.NEpochs, 0) * o.schedule.StepsPerEpoch(p.Data.Len()),
	}
	return descend(p, o.schedule, state, z0, trace, rng, o.onEpoch, "ssg")
}

type ssgState struct {
	config SSGConfig
	t      int
	total  int
}

// eta returns the step size for the current (1-based) step.
func (s *ssgState) eta() float64 {
	if s.total <= 1 {
		return s.config.Eta0
	}
	frac := float64(min(s.t-1, s.total-1)) / float64(s.total-1)
	return s.config.Eta0 - (s.config.Eta0-s.config.Eta1)*frac
}

func (s *ssgState) step(z *mat.Dense, g *mat.Dense) {
	s.t++
	var d mat.Dense
	d.Scale(-s.eta(), g)
	z.Add(z, &d)
}
