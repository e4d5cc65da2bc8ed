package series

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-gota/gota/dataframe"
	gseries "github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/mat"
)

// ErrNoFiles is returned when a dataset directory contains no .tsv files.
var ErrNoFiles = errors.New("series: no .tsv files found")

// LoadOptions controls how delimited files are turned into a Dataset.
type LoadOptions struct {
	// DropLabel removes the first column of every row (UCR-style class label).
	DropLabel bool

	// Delimiter separates values on a line. Defaults to a tab.
	Delimiter rune
}

// DefaultLoadOptions keeps every column and splits on tabs.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{Delimiter: '\t'}
}

// LoadDir reads every *.tsv file in dataDir/name, merges them in file name
// order (train and test together) and returns one univariate series per row.
func LoadDir(dataDir, name string, opts LoadOptions) (Dataset, error) {
	dir := filepath.Join(dataDir, name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tsv") {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoFiles)
	}
	sort.Strings(files)

	var merged dataframe.DataFrame
	for i, path := range files {
		df, err := readFrame(path, opts)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			merged = df
			continue
		}
		merged = merged.RBind(df)
		if merged.Err != nil {
			return nil, fmt.Errorf("failed to merge %s: %w", path, merged.Err)
		}
	}

	if opts.DropLabel {
		merged = merged.Drop(0)
		if merged.Err != nil {
			return nil, fmt.Errorf("failed to drop label column: %w", merged.Err)
		}
	}

	data := FromFrame(merged)
	slog.Info("Loaded dataset", "name", name, "files", len(files), "series", data.Len(), "points", merged.Ncol())
	return data, nil
}

func readFrame(path string, opts LoadOptions) (dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	delim := opts.Delimiter
	if delim == 0 {
		delim = '\t'
	}

	df := dataframe.ReadCSV(f,
		dataframe.HasHeader(false),
		dataframe.WithDelimiter(delim),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(gseries.Float),
	)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("failed to parse %s: %w", path, df.Err)
	}
	return df, nil
}

// FromFrame converts each row of df into a T×1 series, T being the column
// count. Cells that do not parse as numbers become NaN.
func FromFrame(df dataframe.DataFrame) Dataset {
	rows, cols := df.Dims()
	data := make(Dataset, rows)
	for i := 0; i < rows; i++ {
		values := make([]float64, cols)
		for j := 0; j < cols; j++ {
			values[j] = df.Elem(i, j).Float()
		}
		data[i] = mat.NewDense(cols, 1, values)
	}
	return data
}
