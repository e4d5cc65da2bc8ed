package opt

import (
	"math"
	"math/rand/v2"

	"github.com/cwbudde/frechetmean/internal/series"
	"gonum.org/v1/gonum/mat"
)

// Adam minimizes the Frechet function by stochastic subgradient descent with
// Adam step sizes (Kingma & Ba, "Adam: A Method for Stochastic Optimization").
//
// Update rule for step t (counted globally across epochs):
//
//	m_t   = β1·m_{t-1} + (1−β1)·g
//	v_t   = β2·v_{t-1} + (1−β2)·g²
//	m̂     = m_t / (1−β1^t)
//	v̂     = v_t / (1−β2^t)
//	θ     = θ − α·m̂ / (√v̂ + ε)
//
// Moments start at zero and are never reset between epochs.
type Adam struct {
	config   AdamConfig
	schedule Schedule
	onEpoch  EpochHook
}

// AdamConfig holds the Adam hyperparameters. Zero fields take the defaults.
type AdamConfig struct {
	Alpha float64 // Step size (default: 0.001)
	Beta1 float64 // First-moment decay (default: 0.9)
	Beta2 float64 // Second-moment decay (default: 0.999)
	Eps   float64 // Numerical stability term (default: 1e-8)
}

// DefaultAdamConfig returns the hyperparameters from the Adam paper.
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		Alpha: 0.001,
		Beta1: 0.9,
		Beta2: 0.999,
		Eps:   1e-8,
	}
}

func (c AdamConfig) withDefaults() AdamConfig {
	d := DefaultAdamConfig()
	if c.Alpha == 0 {
		c.Alpha = d.Alpha
	}
	if c.Beta1 == 0 {
		c.Beta1 = d.Beta1
	}
	if c.Beta2 == 0 {
		c.Beta2 = d.Beta2
	}
	if c.Eps == 0 {
		c.Eps = d.Eps
	}
	return c
}

// NewAdam creates an Adam optimizer for the given schedule.
func NewAdam(config AdamConfig, schedule Schedule) *Adam {
	return &Adam{
		config:   config.withDefaults(),
		schedule: schedule,
	}
}

// OnEpoch registers a hook called at the end of every epoch.
func (a *Adam) OnEpoch(hook EpochHook) *Adam {
	a.onEpoch = hook
	return a
}

// Run executes Adam descent from z0. See Optimizer.
func (a *Adam) Run(p Problem, z0 *mat.Dense, trace []float64, rng *rand.Rand) *Result {
	state := newAdamState(a.config, z0)
	return descend(p, a.schedule, state, z0, trace, rng, a.onEpoch, "adam")
}

// RunAdam is the single-call form of Adam with default hyperparameters. It
// returns the best estimate and the extended objective trace.
func RunAdam(data series.Dataset, z0 *mat.Dense, trace []float64, batchSize, nCoverage, nEpochs int,
	dConverged float64, rng *rand.Rand, objective ObjectiveFunc, subgradient SubgradientFunc) (*mat.Dense, []float64) {
	schedule := Schedule{
		BatchSize:  batchSize,
		NCoverage:  nCoverage,
		NEpochs:    nEpochs,
		DConverged: dConverged,
	}
	p := Problem{Data: data, Objective: objective, Subgradient: subgradient}
	res := NewAdam(DefaultAdamConfig(), schedule).Run(p, z0, trace, rng)
	return res.Best, res.Trace
}

// adamState holds the moment estimates and the global step counter.
type adamState struct {
	config AdamConfig
	t      int
	m, v   *mat.Dense
	tmp    mat.Dense
}

func newAdamState(config AdamConfig, like mat.Matrix) *adamState {
	r, c := like.Dims()
	return &adamState{
		config: config,
		m:      mat.NewDense(r, c, nil),
		v:      mat.NewDense(r, c, nil),
	}
}

func (s *adamState) step(z *mat.Dense, g *mat.Dense) {
	s.t++
	b1, b2 := s.config.Beta1, s.config.Beta2

	s.m.Scale(b1, s.m)
	s.tmp.Scale(1-b1, g)
	s.m.Add(s.m, &s.tmp)

	s.tmp.MulElem(g, g)
	s.tmp.Scale(1-b2, &s.tmp)
	s.v.Scale(b2, s.v)
	s.v.Add(s.v, &s.tmp)

	bc1 := 1 - math.Pow(b1, float64(s.t))
	bc2 := 1 - math.Pow(b2, float64(s.t))

	rows, cols := z.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			mHat := s.m.At(i, j) / bc1
			vHat := s.v.At(i, j) / bc2
			z.Set(i, j, z.At(i, j)-s.config.Alpha*mHat/(math.Sqrt(vHat)+s.config.Eps))
		}
	}
}
