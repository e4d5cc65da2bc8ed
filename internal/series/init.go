package series

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// InitStrategy selects how the starting mean estimate is chosen.
type InitStrategy string

const (
	// InitRandom picks one dataset element uniformly at random.
	InitRandom InitStrategy = "random"
	// InitMedoid picks the dataset element with the lowest cost.
	InitMedoid InitStrategy = "medoid"
	// InitMean takes the pointwise (Euclidean) mean of all elements.
	InitMean InitStrategy = "mean"
)

// CostFunc scores a candidate estimate against the dataset.
type CostFunc func(z *mat.Dense, data Dataset) float64

// Initial returns a fresh copy of the starting estimate for the given
// strategy. cost is only used by InitMedoid, rng only by InitRandom.
func Initial(strategy InitStrategy, data Dataset, cost CostFunc, rng *rand.Rand) (*mat.Dense, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}

	switch strategy {
	case InitRandom:
		return mat.DenseCopyOf(data[rng.IntN(data.Len())]), nil
	case InitMedoid:
		best, bestCost := 0, cost(data[0], data)
		for i := 1; i < data.Len(); i++ {
			if c := cost(data[i], data); c < bestCost {
				best, bestCost = i, c
			}
		}
		return mat.DenseCopyOf(data[best]), nil
	case InitMean:
		t, dim := data.Shape()
		z := mat.NewDense(t, dim, nil)
		for _, s := range data {
			z.Add(z, s)
		}
		z.Scale(1/float64(data.Len()), z)
		return z, nil
	default:
		return nil, fmt.Errorf("unknown init strategy: %s", strategy)
	}
}
