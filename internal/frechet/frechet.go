// Package frechet evaluates the DTW Frechet function of a candidate mean and
// its minibatch subgradients.
//
// For a dataset X = (x_1, ..., x_N) the Frechet function is
//
//	F(z) = 1/N Σ_i dtw(z, x_i)²
//
// Along a fixed optimal warping path p between z and x, dtw(z, x)² is the
// smooth function Σ_{(t,s)∈p} ‖z_t − x_s‖², whose gradient with respect to z
// is 2(V⊙z − W·x): V_t counts how many points of x are aligned with z_t and
// (W·x)_t sums them. That gradient is a valid subgradient of dtw(·, x)².
package frechet

import (
	"log/slog"
	"math"

	"github.com/cwbudde/frechetmean/internal/dtw"
	"github.com/cwbudde/frechetmean/internal/series"
	"gonum.org/v1/gonum/mat"
)

// Oracle evaluates costs and subgradients under a fixed set of DTW options.
// Its methods match the function types the optimizers consume.
type Oracle struct {
	// Window is the Sakoe–Chiba band passed to DTW. -1 disables it.
	Window int
}

// NewOracle returns an oracle with an unconstrained warping window.
func NewOracle() *Oracle {
	return &Oracle{Window: -1}
}

// Cost returns F(z) over the whole dataset. Alignment failures yield NaN so
// that they propagate through the optimizer trace.
func (o *Oracle) Cost(z *mat.Dense, data series.Dataset) float64 {
	opts := dtw.DefaultOptions()
	opts.Window = o.Window

	var sum float64
	for i, x := range data {
		d, _, err := dtw.DTW(z, x, &opts)
		if err != nil {
			slog.Debug("DTW failed", "index", i, "error", err)
			return math.NaN()
		}
		sum += d * d
	}
	return sum / float64(data.Len())
}

// Subgradient returns the averaged subgradient of dtw(z, x)² over the batch
// data[perm[start]], ..., data[perm[start+batchSize-1]]. It reads its inputs
// only and allocates a new matrix shaped like z.
func (o *Oracle) Subgradient(data series.Dataset, z *mat.Dense, start, batchSize int, perm []int) *mat.Dense {
	opts := dtw.PathOptions()
	opts.Window = o.Window

	rows, cols := z.Dims()
	g := mat.NewDense(rows, cols, nil)

	for k := start; k < start+batchSize; k++ {
		x := data[perm[k]]
		_, path, err := dtw.DTW(z, x, &opts)
		if err != nil {
			slog.Debug("DTW path failed", "index", perm[k], "error", err)
			fillNaN(g)
			return g
		}
		for _, c := range path {
			for j := 0; j < cols; j++ {
				g.Set(c.I, j, g.At(c.I, j)+z.At(c.I, j)-x.At(c.J, j))
			}
		}
	}

	g.Scale(2/float64(batchSize), g)
	return g
}

// Cost is Oracle.Cost without a warping window.
func Cost(z *mat.Dense, data series.Dataset) float64 {
	return NewOracle().Cost(z, data)
}

// Subgradient is Oracle.Subgradient without a warping window.
func Subgradient(data series.Dataset, z *mat.Dense, start, batchSize int, perm []int) *mat.Dense {
	return NewOracle().Subgradient(data, z, start, batchSize, perm)
}

func fillNaN(m *mat.Dense) {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Set(i, j, math.NaN())
		}
	}
}
