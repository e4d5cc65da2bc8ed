package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cwbudde/frechetmean/internal/runner"
	"github.com/cwbudde/frechetmean/internal/server"
)

// withServer points the status command at a test server for one test.
func withServer(t *testing.T, handler http.Handler) {
	t.Helper()

	ts := httptest.NewServer(handler)
	original := serverURL
	serverURL = ts.URL
	t.Cleanup(func() {
		serverURL = original
		cancelJob = false
		ts.Close()
	})
}

func fakeJob() server.Job {
	config := runner.DefaultConfig()
	config.Dataset = "Coffee"
	return server.Job{
		ID:          "job-1",
		State:       server.StateRunning,
		Config:      config,
		InitialCost: 4,
		BestCost:    3,
		Epochs:      2,
	}
}

func TestStatusCommand_List(t *testing.T) {
	withServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/jobs" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode([]server.Job{fakeJob()})
	}))
	out := captureOutput(statusCmd)

	if err := runStatus(statusCmd, nil); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	for _, want := range []string{"Found 1 job(s)", "job-1", "Coffee", "adam", "4 -> 3 (epoch 2)"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Output missing %q:\n%s", want, out.String())
		}
	}
}

func TestStatusCommand_ListEmpty(t *testing.T) {
	withServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	}))
	out := captureOutput(statusCmd)

	if err := runStatus(statusCmd, nil); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(out.String(), "No jobs found") {
		t.Errorf("Unexpected output: %q", out.String())
	}
}

func TestStatusCommand_Detail(t *testing.T) {
	withServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/jobs/job-1/status" {
			http.NotFound(w, r)
			return
		}
		job := fakeJob()
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":          job.ID,
			"state":       job.State,
			"config":      job.Config,
			"initialCost": job.InitialCost,
			"bestCost":    job.BestCost,
			"epochs":      job.Epochs,
			"steps":       8,
			"elapsed":     1.5,
		})
	}))
	out := captureOutput(statusCmd)

	if err := runStatus(statusCmd, []string{"job-1"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	for _, want := range []string{"Job: job-1", "State: running", "Dataset: Coffee", "Epoch: 2 (8 steps)", "Improvement: 1 (25.0%)", "Elapsed: 1.5s"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Output missing %q:\n%s", want, out.String())
		}
	}
}

func TestStatusCommand_NotFound(t *testing.T) {
	withServer(t, http.NotFoundHandler())
	captureOutput(statusCmd)

	err := runStatus(statusCmd, []string{"missing"})
	if err == nil || !strings.Contains(err.Error(), "job not found") {
		t.Errorf("Expected job not found error, got %v", err)
	}
}

func TestStatusCommand_Cancel(t *testing.T) {
	var cancelled bool
	withServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/api/v1/jobs/job-1/cancel" {
			cancelled = true
			w.WriteHeader(http.StatusAccepted)
			return
		}
		http.NotFound(w, r)
	}))
	out := captureOutput(statusCmd)
	cancelJob = true

	if err := runStatus(statusCmd, []string{"job-1"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !cancelled {
		t.Error("Expected a cancel request")
	}
	if !strings.Contains(out.String(), "Cancellation requested") {
		t.Errorf("Unexpected output: %q", out.String())
	}
}

func TestStatusCommand_CancelWithoutID(t *testing.T) {
	cancelJob = true
	t.Cleanup(func() { cancelJob = false })

	if err := runStatus(statusCmd, nil); err == nil {
		t.Error("Expected error when cancelling without a job ID")
	}
}
