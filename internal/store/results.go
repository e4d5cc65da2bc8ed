package store

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/go-gota/gota/dataframe"
	gseries "github.com/go-gota/gota/series"
)

const (
	resultsPrefix     = "results_"
	resultsTimeLayout = "20060102-150405"
)

// resultColumns is the column order of the results table.
var resultColumns = []string{
	"run_id", "timestamp", "dataset", "method", "init",
	"n_samples", "points", "dims",
	"batch_size", "n_coverage", "n_epochs", "d_converged", "seed",
	"initial_cost", "best_cost", "epochs", "steps", "elapsed",
}

// ResultsTable accumulates one row per run in timestamped CSV files.
//
// Every Append reads the most recent results_*.csv, adds the new row and
// writes the merged table to a new file named after the current time, so
// older tables stay around as snapshots.
type ResultsTable struct {
	dir string
	now func() time.Time
}

// NewResultsTable creates a results table rooted at dir.
func NewResultsTable(dir string) *ResultsTable {
	return &ResultsTable{dir: dir, now: time.Now}
}

// Latest returns the path of the most recent results table, or "" if none
// exists yet. File names embed the timestamp, so the lexically largest wins.
func (rt *ResultsTable) Latest() (string, error) {
	matches, err := filepath.Glob(filepath.Join(rt.dir, resultsPrefix+"*.csv"))
	if err != nil {
		return "", fmt.Errorf("failed to glob results tables: %w", err)
	}
	if len(matches) == 0 {
		return "", nil
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// Append adds a row for the given result and returns the path of the newly
// written table.
func (rt *ResultsTable) Append(result *RunResult) (string, error) {
	if result == nil {
		return "", fmt.Errorf("result cannot be nil")
	}
	if err := os.MkdirAll(rt.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create results directory: %w", err)
	}

	df := dataframe.LoadRecords(
		[][]string{resultColumns, resultRecord(result)},
		dataframe.DetectTypes(false),
		dataframe.DefaultType(gseries.String),
	)
	if df.Err != nil {
		return "", fmt.Errorf("failed to build result row: %w", df.Err)
	}

	latest, err := rt.Latest()
	if err != nil {
		return "", err
	}
	if latest != "" {
		prev, err := readTable(latest)
		if err != nil {
			return "", err
		}
		merged := prev.RBind(df)
		if merged.Err != nil {
			slog.Warn("Results table has incompatible columns, starting a new one",
				"path", latest, "error", merged.Err)
		} else {
			df = merged
		}
	}

	var buf bytes.Buffer
	if err := df.WriteCSV(&buf); err != nil {
		return "", fmt.Errorf("failed to encode results table: %w", err)
	}

	path := filepath.Join(rt.dir, resultsPrefix+rt.now().Format(resultsTimeLayout)+".csv")
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return "", err
	}

	slog.Info("Results table written", "path", path, "rows", df.Nrow())
	return path, nil
}

// Read loads the most recent results table. The returned frame is empty if
// no table exists yet.
func (rt *ResultsTable) Read() (dataframe.DataFrame, error) {
	latest, err := rt.Latest()
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	if latest == "" {
		return dataframe.DataFrame{}, nil
	}
	return readTable(latest)
}

func readTable(path string) (dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("failed to open results table: %w", err)
	}
	defer f.Close()

	df := dataframe.ReadCSV(f,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(gseries.String),
	)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("failed to parse results table %s: %w", path, df.Err)
	}
	return df, nil
}

func resultRecord(r *RunResult) []string {
	c := r.Config
	return []string{
		r.RunID,
		r.Timestamp.UTC().Format(time.RFC3339),
		c.Dataset,
		c.Method,
		c.Init,
		strconv.Itoa(r.NSamples),
		strconv.Itoa(r.Points),
		strconv.Itoa(r.Dims),
		strconv.Itoa(c.BatchSize),
		strconv.Itoa(c.NCoverage),
		strconv.Itoa(c.NEpochs),
		formatFloat(c.DConverged),
		strconv.FormatUint(c.Seed, 10),
		formatFloat(r.InitialCost),
		formatFloat(r.BestCost),
		strconv.Itoa(r.Epochs),
		strconv.Itoa(r.Steps),
		formatFloat(r.Elapsed),
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
