package series

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrEmptyDataset is returned when a dataset holds no series.
var ErrEmptyDataset = errors.New("series: dataset is empty")

// Dataset is an ordered collection of time series. Every element is a T×D
// matrix: one row per time point, one column per channel.
type Dataset []*mat.Dense

// Len returns the number of series.
func (d Dataset) Len() int {
	return len(d)
}

// Shape returns the per-series shape (points, dimensions) taken from the
// first element. An empty dataset has shape (0, 0).
func (d Dataset) Shape() (int, int) {
	if len(d) == 0 {
		return 0, 0
	}
	return d[0].Dims()
}

// Validate checks that the dataset is non-empty and that every series has
// the same shape.
func (d Dataset) Validate() error {
	if len(d) == 0 {
		return ErrEmptyDataset
	}
	t, dim := d.Shape()
	for i, s := range d {
		r, c := s.Dims()
		if r != t || c != dim {
			return &ShapeError{Index: i, Want: [2]int{t, dim}, Got: [2]int{r, c}}
		}
	}
	return nil
}

// ShapeError reports a series whose shape differs from the first one.
type ShapeError struct {
	Index int
	Want  [2]int
	Got   [2]int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("series: element %d has shape %dx%d, expected %dx%d",
		e.Index, e.Got[0], e.Got[1], e.Want[0], e.Want[1])
}

// Flatten copies m into a row-major slice.
func Flatten(m mat.Matrix) []float64 {
	r, c := m.Dims()
	out := make([]float64, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out[i*c+j] = m.At(i, j)
		}
	}
	return out
}

// Unflatten builds a rows×cols matrix from a copy of data.
func Unflatten(data []float64, rows, cols int) *mat.Dense {
	return mat.NewDense(rows, cols, append([]float64(nil), data...))
}

// Bounds returns the smallest and largest value found in any series.
func (d Dataset) Bounds() (lo, hi float64) {
	for i, s := range d {
		raw := Flatten(s)
		mn, mx := floats.Min(raw), floats.Max(raw)
		if i == 0 || mn < lo {
			lo = mn
		}
		if i == 0 || mx > hi {
			hi = mx
		}
	}
	return lo, hi
}
