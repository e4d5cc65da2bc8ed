package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cwbudde/frechetmean/internal/series"
	"gonum.org/v1/gonum/mat"
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// estimateRows reshapes a flattened estimate into one row per time point.
func estimateRows(best []float64, points, dims int) [][]float64 {
	z := series.Unflatten(best, points, dims)
	rows := make([][]float64, points)
	for i := range rows {
		rows[i] = mat.Row(nil, i, z)
	}
	return rows
}
