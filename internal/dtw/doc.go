// Package dtw computes Dynamic Time Warping distances between multivariate
// time series stored as gonum matrices (one row per time point).
//
// The local cost between two points is their squared Euclidean distance and
// the reported distance is the square root of the minimal accumulated cost,
// so DTW(a, b)² equals the sum of squared point distances along the optimal
// warping path. That form is what Frechet-mean solvers differentiate.
//
// Usage:
//
//	opts := dtw.PathOptions()
//	opts.Window = 10 // Sakoe–Chiba band ±10
//
//	dist, path, err := dtw.DTW(a, b, &opts)
//
// Complexity:
//
//   - Time:   O(N·M), or O(N·W) with a window
//   - Memory: O(N·M) (FullMatrix) or O(M) (TwoRows)
package dtw
