package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

// RunConfig holds the settings of one optimization run.
type RunConfig struct {
	Dataset    string  `json:"dataset"`
	Method     string  `json:"method"` // adam, ssg, mayfly
	BatchSize  int     `json:"batchSize"`
	NCoverage  int     `json:"nCoverage"`
	NEpochs    int     `json:"nEpochs"`
	DConverged float64 `json:"dConverged"`
	Seed       uint64  `json:"seed"`
	Init       string  `json:"init"` // random, medoid, mean, warm
	Window     int     `json:"window"`
	DropLabel  bool    `json:"dropLabel,omitempty"`
}

// RunResult is the persisted outcome of a run.
//
// The best estimate is stored flattened in row-major order together with its
// shape so it can be restored as a matrix (see Estimate) and used to warm
// start a later run on the same dataset.
type RunResult struct {
	// RunID is the unique identifier for this run
	RunID string `json:"runId"`

	// Config is the run configuration
	Config RunConfig `json:"config"`

	// Best holds the flattened best estimate
	Best []float64 `json:"best"`

	// Points and Dims give the shape of the best estimate
	Points int `json:"points"`
	Dims   int `json:"dims"`

	// NSamples is the number of series in the dataset
	NSamples int `json:"nSamples"`

	// InitialCost is the objective value of the starting estimate
	InitialCost float64 `json:"initialCost"`

	// BestCost is the minimum of Trace
	BestCost float64 `json:"bestCost"`

	// Trace holds the initial objective value and one value per epoch
	Trace []float64 `json:"trace"`

	// Epochs and Steps count executed epochs and update steps
	Epochs int `json:"epochs"`
	Steps  int `json:"steps"`

	// Elapsed is the wall time of the optimization in seconds
	Elapsed float64 `json:"elapsed"`

	// Timestamp records when the run finished
	Timestamp time.Time `json:"timestamp"`
}

// RunInfo contains metadata about a run without the estimate or trace.
type RunInfo struct {
	RunID     string    `json:"runId"`
	Dataset   string    `json:"dataset"`
	Method    string    `json:"method"`
	BestCost  float64   `json:"bestCost"`
	Epochs    int       `json:"epochs"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRunID returns a fresh random run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// NewRunResult creates a result from the outcome of an optimization.
func NewRunResult(runID string, config RunConfig, best mat.Matrix, nSamples int, trace []float64, epochs, steps int, elapsed time.Duration) *RunResult {
	points, dims := best.Dims()
	flat := make([]float64, 0, points*dims)
	for i := 0; i < points; i++ {
		for j := 0; j < dims; j++ {
			flat = append(flat, best.At(i, j))
		}
	}

	bestCost := trace[0]
	for _, f := range trace[1:] {
		if f < bestCost {
			bestCost = f
		}
	}

	return &RunResult{
		RunID:       runID,
		Config:      config,
		Best:        flat,
		Points:      points,
		Dims:        dims,
		NSamples:    nSamples,
		InitialCost: trace[0],
		BestCost:    bestCost,
		Trace:       append([]float64(nil), trace...),
		Epochs:      epochs,
		Steps:       steps,
		Elapsed:     elapsed.Seconds(),
		Timestamp:   time.Now(),
	}
}

// Estimate returns the best estimate as a Points×Dims matrix.
func (r *RunResult) Estimate() *mat.Dense {
	return mat.NewDense(r.Points, r.Dims, append([]float64(nil), r.Best...))
}

// ToInfo converts a full RunResult to RunInfo (metadata only).
func (r *RunResult) ToInfo() RunInfo {
	return RunInfo{
		RunID:     r.RunID,
		Dataset:   r.Config.Dataset,
		Method:    r.Config.Method,
		BestCost:  r.BestCost,
		Epochs:    r.Epochs,
		Timestamp: r.Timestamp,
	}
}

// Validate checks if the result has valid data.
// Returns an error if any required field is missing or invalid.
func (r *RunResult) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if _, err := uuid.Parse(r.RunID); err != nil {
		return &ValidationError{Field: "RunID", Reason: "must be a UUID"}
	}
	if len(r.Best) == 0 {
		return &ValidationError{Field: "Best", Reason: "cannot be empty"}
	}
	if r.Points <= 0 || r.Dims <= 0 {
		return &ValidationError{Field: "Points/Dims", Reason: "must be positive"}
	}
	if len(r.Best) != r.Points*r.Dims {
		return &ValidationError{
			Field:  "Best",
			Reason: fmt.Sprintf("length mismatch: expected %d values for shape %dx%d", r.Points*r.Dims, r.Points, r.Dims),
		}
	}
	if len(r.Trace) == 0 {
		return &ValidationError{Field: "Trace", Reason: "cannot be empty"}
	}
	if len(r.Trace) != r.Epochs+1 {
		return &ValidationError{
			Field:  "Trace",
			Reason: fmt.Sprintf("length mismatch: expected %d entries for %d epochs", r.Epochs+1, r.Epochs),
		}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if r.Config.Dataset == "" {
		return &ValidationError{Field: "Config.Dataset", Reason: "cannot be empty"}
	}
	if r.Config.Method == "" {
		return &ValidationError{Field: "Config.Method", Reason: "cannot be empty"}
	}
	return nil
}

// ValidationError represents a result validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks whether this result can warm start a run on the given
// dataset and series shape.
func (r *RunResult) IsCompatible(dataset string, points, dims int) error {
	if r.Config.Dataset != dataset {
		return &CompatibilityError{
			Field:    "Dataset",
			Expected: r.Config.Dataset,
			Actual:   dataset,
		}
	}
	if r.Points != points || r.Dims != dims {
		return &CompatibilityError{
			Field:    "Shape",
			Expected: fmt.Sprintf("%dx%d", r.Points, r.Dims),
			Actual:   fmt.Sprintf("%dx%d", points, dims),
		}
	}
	return nil
}

// CompatibilityError represents a warm start compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
