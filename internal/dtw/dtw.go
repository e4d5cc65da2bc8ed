package dtw

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Algorithm Outline (Full-Matrix):
//  1. Let n, m be the row counts of a and b. Allocate (n+1)x(m+1) matrix D.
//  2. Initialize D[0][0] = 0, D[i][0] = D[0][j] = +∞.
//  3. For i = 1..n, j = 1..m (and |i-j| ≤ Window, if constrained):
//     cost    = ‖a[i-1] − b[j-1]‖²
//     D[i][j] = cost + min(D[i-1][j-1], D[i-1][j] + SlopePenalty, D[i][j-1] + SlopePenalty)
//  4. distance = √D[n][m].
//  5. If ReturnPath, backtrack from (n,m) to (1,1) following the cheapest
//     predecessor (diagonal wins ties).
//
// Errors:
//   - ErrEmptyInput       : either input has no rows.
//   - ErrDimensionMismatch: inputs have a different number of columns.
//   - ErrBadInput         : Window < -1 or SlopePenalty < 0.
//   - ErrPathNeedsMatrix  : ReturnPath with MemoryMode != FullMatrix.
//   - ErrNoPath           : ReturnPath but the window makes (n,m) unreachable.

var (
	// ErrEmptyInput indicates one or both inputs are empty.
	ErrEmptyInput = errors.New("dtw: input series must be non-empty")

	// ErrDimensionMismatch indicates the inputs have different point dimensions.
	ErrDimensionMismatch = errors.New("dtw: input series must have the same number of columns")

	// ErrBadInput indicates invalid options.
	ErrBadInput = errors.New("dtw: invalid options")

	// ErrPathNeedsMatrix indicates that path recovery requires FullMatrix mode.
	ErrPathNeedsMatrix = errors.New("dtw: ReturnPath requires MemoryMode=FullMatrix")

	// ErrNoPath indicates that no warping path satisfies the window constraint.
	ErrNoPath = errors.New("dtw: no admissible warping path")
)

// DTW computes the DTW distance between a and b and, if requested, the
// optimal warping path as 0-based (row of a, row of b) pairs ordered from
// (0,0) to (n-1,m-1). A nil opts means DefaultOptions.
func DTW(a, b mat.Matrix, opts *Options) (distance float64, path []Coord, err error) {
	n, da := a.Dims()
	m, db := b.Dims()
	if n == 0 || m == 0 {
		return 0, nil, ErrEmptyInput
	}
	if da != db {
		return 0, nil, ErrDimensionMismatch
	}

	o := DefaultOptions()
	if opts != nil {
		o = *opts
	}
	if o.Window < -1 || o.SlopePenalty < 0 {
		return 0, nil, ErrBadInput
	}
	if o.ReturnPath && o.MemoryMode != FullMatrix {
		return 0, nil, ErrPathNeedsMatrix
	}

	inf := math.Inf(1)
	rows := 2
	if o.MemoryMode == FullMatrix {
		rows = n + 1
	}
	dp := make([][]float64, rows)
	for i := range dp {
		dp[i] = make([]float64, m+1)
	}
	for j := 1; j <= m; j++ {
		dp[0][j] = inf
	}

	row := func(i int) []float64 {
		if o.MemoryMode == FullMatrix {
			return dp[i]
		}
		return dp[i%2]
	}

	for i := 1; i <= n; i++ {
		curr, prev := row(i), row(i-1)
		curr[0] = inf
		for j := 1; j <= m; j++ {
			if o.Window >= 0 && abs(i-j) > o.Window {
				curr[j] = inf
				continue
			}
			best := min3(prev[j-1], prev[j]+o.SlopePenalty, curr[j-1]+o.SlopePenalty)
			curr[j] = pointCost(a, b, i-1, j-1, da) + best
		}
	}

	total := row(n)[m]
	distance = math.Sqrt(total)

	if o.ReturnPath {
		if math.IsInf(total, 1) {
			return distance, nil, ErrNoPath
		}
		path = backtrack(dp, n, m, o.SlopePenalty)
	}

	return distance, path, nil
}

// Distance is DTW with default options, discarding errors as NaN.
func Distance(a, b mat.Matrix) float64 {
	d, _, err := DTW(a, b, nil)
	if err != nil {
		return math.NaN()
	}
	return d
}

func backtrack(dp [][]float64, n, m int, penalty float64) []Coord {
	path := make([]Coord, 0, n+m-1)
	i, j := n, m
	path = append(path, Coord{I: i - 1, J: j - 1})
	for i > 1 || j > 1 {
		switch {
		case i == 1:
			j--
		case j == 1:
			i--
		default:
			diag := dp[i-1][j-1]
			up := dp[i-1][j] + penalty
			left := dp[i][j-1] + penalty
			switch {
			case diag <= up && diag <= left:
				i--
				j--
			case up <= left:
				i--
			default:
				j--
			}
		}
		path = append(path, Coord{I: i - 1, J: j - 1})
	}

	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}
	return path
}

// pointCost is the squared Euclidean distance between a[i] and b[j].
func pointCost(a, b mat.Matrix, i, j, dim int) float64 {
	var sum float64
	for k := 0; k < dim; k++ {
		d := a.At(i, k) - b.At(j, k)
		sum += d * d
	}
	return sum
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func min3(a, b, c float64) float64 {
	if a < b {
		if a < c {
			return a
		}
		return c
	}
	if b < c {
		return b
	}
	return c
}
