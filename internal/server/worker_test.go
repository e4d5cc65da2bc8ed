package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/frechetmean/internal/runner"
	"github.com/cwbudde/frechetmean/internal/store"
)

// newTestRunner writes a small UCR-style dataset named Toy and returns a
// runner reading from and writing to temporary directories.
func newTestRunner(t *testing.T) *runner.Runner {
	t.Helper()

	base := t.TempDir()
	dir := filepath.Join(base, "data", "Toy")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create dataset dir: %v", err)
	}
	train := "1\t0\t1\t2\t1\t0\n1\t0\t0\t1\t2\t1\n2\t1\t2\t3\t2\t1\n"
	test := "2\t0\t1\t1\t2\t0\n"
	if err := os.WriteFile(filepath.Join(dir, "Toy_TRAIN.tsv"), []byte(train), 0644); err != nil {
		t.Fatalf("Failed to write train file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Toy_TEST.tsv"), []byte(test), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	return runner.New(filepath.Join(base, "data"), filepath.Join(base, "results"))
}

func toyConfig() JobConfig {
	config := DefaultJobConfig()
	config.Dataset = "Toy"
	config.DropLabel = true
	config.BatchSize = 2
	config.NEpochs = 5
	config.DConverged = 1e-12
	config.Seed = 42
	return config
}

func TestRunJob_Success(t *testing.T) {
	r := newTestRunner(t)
	jm := NewJobManager()
	job := jm.CreateJob(toyConfig())

	if err := runJob(context.Background(), jm, r, job.ID); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCompleted {
		t.Errorf("Job should be completed, got %s", updated.State)
	}
	if updated.Points != 5 || updated.Dims != 1 {
		t.Errorf("Expected 5x1 estimate, got %dx%d", updated.Points, updated.Dims)
	}
	if len(updated.Best) != 5 {
		t.Errorf("Expected 5 estimate values, got %d", len(updated.Best))
	}
	if updated.BestCost > updated.InitialCost {
		t.Errorf("Best cost %f is worse than the initial cost %f", updated.BestCost, updated.InitialCost)
	}
	if updated.Epochs == 0 || updated.Steps == 0 {
		t.Errorf("Expected progress counters, got %d epochs and %d steps", updated.Epochs, updated.Steps)
	}
	if updated.EndTime == nil {
		t.Error("EndTime should be set")
	}

	resultStore, err := store.NewFSStore(r.OutDir)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	result, err := resultStore.LoadResult(job.ID)
	if err != nil {
		t.Fatalf("Result should be stored under the job ID: %v", err)
	}
	if result.BestCost != updated.BestCost {
		t.Errorf("Stored best cost %f differs from job %f", result.BestCost, updated.BestCost)
	}
}

func TestRunJob_BroadcastsFinalState(t *testing.T) {
	r := newTestRunner(t)
	jm := NewJobManager()
	job := jm.CreateJob(toyConfig())

	if err := runJob(context.Background(), jm, r, job.ID); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	ch := jm.broadcaster.Subscribe(job.ID)
	defer jm.broadcaster.Unsubscribe(job.ID, ch)

	event := <-ch
	if event.State != StateCompleted {
		t.Errorf("Last event should report completion, got %s", event.State)
	}
}

func TestRunJob_MissingDataset(t *testing.T) {
	r := newTestRunner(t)
	jm := NewJobManager()
	config := toyConfig()
	config.Dataset = "Nope"
	job := jm.CreateJob(config)

	if err := runJob(context.Background(), jm, r, job.ID); err == nil {
		t.Error("runJob should fail for a missing dataset")
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateFailed {
		t.Errorf("Job should be failed, got %s", updated.State)
	}
	if updated.Error == "" {
		t.Error("Error message should be set")
	}
}

func TestRunJob_Cancellation(t *testing.T) {
	r := newTestRunner(t)
	jm := NewJobManager()
	job := jm.CreateJob(toyConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runJob(ctx, jm, r, job.ID)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCancelled {
		t.Errorf("Job should be cancelled, got %s", updated.State)
	}
}

func TestRunJob_NotFound(t *testing.T) {
	if err := runJob(context.Background(), NewJobManager(), newTestRunner(t), "nonexistent"); err == nil {
		t.Error("runJob should fail for an unknown job")
	}
}
