package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/frechetmean/internal/runner"
)

// progressInterval throttles SSE progress broadcasts.
const progressInterval = 500 * time.Millisecond

// runJob executes a job in the background through r. The job ID is used as
// the run ID, so the stored result and trace can be found by it.
func runJob(ctx context.Context, jm *JobManager, r *runner.Runner, jobID string) error {
	defer jm.releaseCancel(jobID)

	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}

	slog.Info("Starting job", "job_id", jobID, "dataset", job.Config.Dataset, "method", job.Config.Method)

	progressDone := make(chan struct{})
	monitorExited := make(chan struct{})
	go func() {
		defer close(monitorExited)
		monitorProgress(ctx, jm, jobID, progressDone)
	}()

	result, err := r.Run(ctx, job.Config, jobID, func(p runner.Progress) {
		jm.UpdateJob(jobID, func(j *Job) {
			if p.Epoch == 0 {
				j.InitialCost = p.Cost
			}
			j.Epochs = p.Epoch
			j.Steps = p.Steps
			j.LastCost = p.Cost
			j.BestCost = p.BestCost
		})
	})
	close(progressDone)
	<-monitorExited

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			markJobCancelled(jm, jobID)
		} else {
			markJobFailed(jm, jobID, err)
		}
		broadcastState(jm, jobID)
		return err
	}

	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Best = result.Best
		j.Points = result.Points
		j.Dims = result.Dims
		j.InitialCost = result.InitialCost
		j.BestCost = result.BestCost
		j.LastCost = result.Trace[len(result.Trace)-1]
		j.Epochs = result.Epochs
		j.Steps = result.Steps
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", endTime.Sub(job.StartTime),
		"initial_cost", result.InitialCost,
		"best_cost", result.BestCost,
	)

	broadcastState(jm, jobID)
	return nil
}

// monitorProgress periodically broadcasts progress events during optimization
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, done chan struct{}) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !broadcastState(jm, jobID) {
				return
			}
		}
	}
}

// broadcastState sends the current state of a job to its subscribers. It
// reports false if the job no longer exists.
func broadcastState(jm *JobManager, jobID string) bool {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return false
	}
	jm.broadcaster.Broadcast(newProgressEvent(job))
	return true
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
}
