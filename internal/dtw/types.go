package dtw

// MemoryMode controls how DTW stores its accumulated-cost matrix.
//
//   - FullMatrix keeps the whole (n+1)x(m+1) matrix. Required for path recovery.
//   - TwoRows keeps only the previous and current row. O(m) memory, distance only.
type MemoryMode int

const (
	// FullMatrix stores all rows and supports ReturnPath.
	FullMatrix MemoryMode = iota

	// TwoRows stores two rows and cannot recover the warping path.
	TwoRows
)

// Options configures a DTW computation.
//
// Fields:
//   - Window      : Sakoe–Chiba band |i-j| ≤ Window. -1 disables the band.
//   - SlopePenalty: extra cost added to every non-diagonal step.
//   - ReturnPath  : backtrack and return the optimal warping path.
//     Requires MemoryMode=FullMatrix.
//   - MemoryMode  : FullMatrix or TwoRows.
type Options struct {
	Window       int
	SlopePenalty float64
	ReturnPath   bool
	MemoryMode   MemoryMode
}

// DefaultOptions returns unconstrained DTW without path recovery.
func DefaultOptions() Options {
	return Options{
		Window:     -1,
		MemoryMode: TwoRows,
	}
}

// PathOptions returns unconstrained DTW that also yields the warping path.
func PathOptions() Options {
	return Options{
		Window:     -1,
		ReturnPath: true,
		MemoryMode: FullMatrix,
	}
}

// Coord is one aligned pair on a warping path: row I of the first series
// matched with row J of the second.
type Coord struct {
	I, J int
}
