package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const traceFile = "trace.jsonl"

// TraceEntry is one line of trace.jsonl: the state after an epoch.
type TraceEntry struct {
	Epoch     int       `json:"epoch"`
	Steps     int       `json:"steps"` // cumulative over the run
	Cost      float64   `json:"cost"`
	Timestamp time.Time `json:"timestamp"`

	// Estimate is the flattened estimate, present only when requested.
	Estimate []float64 `json:"estimate,omitempty"`
}

func tracePath(baseDir, runID string) string {
	return filepath.Join(runDir(baseDir, runID), traceFile)
}

// TraceWriter appends epochs to a run's trace. Every Write reaches the file
// before it returns, so a trace can be read while its run is in progress.
type TraceWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

// NewTraceWriter opens <baseDir>/runs/<runID>/trace.jsonl, truncating it
// unless append is set.
func NewTraceWriter(baseDir, runID string, append bool) (*TraceWriter, error) {
	path := tracePath(baseDir, runID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	buf := bufio.NewWriter(file)
	return &TraceWriter{file: file, buf: buf, enc: json.NewEncoder(buf)}, nil
}

// Write encodes entry as one line and hands it to the operating system.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.enc.Encode(entry); err != nil {
		// Encode writes nothing on marshal errors, so the file stays line-aligned.
		return fmt.Errorf("failed to encode epoch %d: %w", entry.Epoch, err)
	}
	if err := tw.buf.Flush(); err != nil {
		return fmt.Errorf("failed to write epoch %d: %w", entry.Epoch, err)
	}
	return nil
}

// Sync commits the written entries to stable storage.
func (tw *TraceWriter) Sync() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}
	return nil
}

// Close syncs and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	syncErr := tw.file.Sync()
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	if syncErr != nil {
		return fmt.Errorf("failed to sync trace file: %w", syncErr)
	}
	return nil
}

// Path returns the trace file location.
func (tw *TraceWriter) Path() string {
	return tw.file.Name()
}

// TraceReader decodes a run's trace entry by entry.
type TraceReader struct {
	file *os.File
	dec  *json.Decoder
}

// NewTraceReader opens the trace of runID. A missing trace is a
// *NotFoundError.
func NewTraceReader(baseDir, runID string) (*TraceReader, error) {
	file, err := os.Open(tracePath(baseDir, runID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, &NotFoundError{RunID: runID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	return &TraceReader{file: file, dec: json.NewDecoder(bufio.NewReader(file))}, nil
}

// Read returns the next entry, or io.EOF at the end of the trace. A final
// line that is cut short is treated as the end, since it belongs to an
// epoch still being written.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	var entry TraceEntry
	switch err := tr.dec.Decode(&entry); {
	case err == nil:
		return &entry, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("failed to decode trace entry: %w", err)
	}
}

// ReadAll returns the remaining entries.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry
	for {
		entry, err := tr.Read()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
}

// Close releases the trace file.
func (tr *TraceReader) Close() error {
	return tr.file.Close()
}

// ReadTrace loads the whole trace of runID.
func ReadTrace(baseDir, runID string) ([]TraceEntry, error) {
	tr, err := NewTraceReader(baseDir, runID)
	if err != nil {
		return nil, err
	}
	defer tr.Close()
	return tr.ReadAll()
}
