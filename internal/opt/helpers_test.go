package opt

import (
	"math/rand/v2"

	"github.com/cwbudde/frechetmean/internal/series"
	"gonum.org/v1/gonum/mat"
)

func col(values ...float64) *mat.Dense {
	return mat.NewDense(len(values), 1, values)
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// scriptedObjective returns the given values in order, one per call, and
// repeats the last one when exhausted.
func scriptedObjective(values ...float64) ObjectiveFunc {
	calls := 0
	return func(_ *mat.Dense, _ series.Dataset) float64 {
		v := values[min(calls, len(values)-1)]
		calls++
		return v
	}
}

// constantSubgradient returns a matrix filled with value and counts calls.
func constantSubgradient(value float64, calls *int) SubgradientFunc {
	return func(_ series.Dataset, z *mat.Dense, _, _ int, _ []int) *mat.Dense {
		*calls++
		r, c := z.Dims()
		g := mat.NewDense(r, c, nil)
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				g.Set(i, j, value)
			}
		}
		return g
	}
}

// toyDataset returns n univariate series of length 4 with distinct values.
func toyDataset(n int) series.Dataset {
	data := make(series.Dataset, n)
	for i := range data {
		base := float64(i) * 0.3
		data[i] = col(base, base+1, base-0.5, base+0.25)
	}
	return data
}
