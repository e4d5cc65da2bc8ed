package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/frechetmean/internal/store"
)

// waitForJob polls until the job reaches a terminal state.
func waitForJob(t *testing.T, jm *JobManager, id string) *Job {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, exists := jm.GetJob(id)
		if !exists {
			t.Fatalf("Job %s disappeared", id)
		}
		if job.Done() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Job %s did not finish", id)
	return nil
}

func TestServer_CreateJob(t *testing.T) {
	s := NewServer(":0", newTestRunner(t))

	body, _ := json.Marshal(toyConfig())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.handleCreateJob(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var job Job
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}
	if job.State != StatePending {
		t.Errorf("Expected pending state in the response, got %s", job.State)
	}

	finished := waitForJob(t, s.jobManager, job.ID)
	if finished.State != StateCompleted {
		t.Errorf("Expected completed job, got %s (%s)", finished.State, finished.Error)
	}
}

func TestServer_CreateJob_Defaults(t *testing.T) {
	s := NewServer(":0", newTestRunner(t))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs",
		strings.NewReader(`{"dataset": "Toy", "dropLabel": true, "nEpochs": 2}`))
	w := httptest.NewRecorder()

	s.handleCreateJob(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var job Job
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	defaults := DefaultJobConfig()
	if job.Config.Method != defaults.Method || job.Config.BatchSize != defaults.BatchSize {
		t.Errorf("Omitted fields should take defaults, got %+v", job.Config)
	}
	if job.Config.NEpochs != 2 {
		t.Errorf("Expected 2 epochs, got %d", job.Config.NEpochs)
	}

	waitForJob(t, s.jobManager, job.ID)
}

func TestServer_CreateJob_BadRequest(t *testing.T) {
	s := NewServer(":0", newTestRunner(t))

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"dataset":`},
		{"missing dataset", `{}`},
		{"path traversal", `{"dataset": "../secret"}`},
		{"unknown method", `{"dataset": "Toy", "method": "newton"}`},
		{"bad batch size", `{"dataset": "Toy", "batchSize": 0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			s.handleCreateJob(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
		})
	}

	if n := len(s.jobManager.ListJobs()); n != 0 {
		t.Errorf("Rejected requests should not create jobs, got %d", n)
	}
}

func TestServer_ListJobs(t *testing.T) {
	s := NewServer(":0", newTestRunner(t))

	s.jobManager.CreateJob(toyConfig())
	s.jobManager.CreateJob(toyConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	w := httptest.NewRecorder()

	s.handleListJobs(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var jobs []*Job
	if err := json.NewDecoder(w.Body).Decode(&jobs); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if len(jobs) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(jobs))
	}
}

func TestServer_GetJobStatus(t *testing.T) {
	s := NewServer(":0", newTestRunner(t))

	job := s.jobManager.CreateJob(toyConfig())

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s/status", job.ID), nil)
	w := httptest.NewRecorder()

	s.handleGetJobStatus(w, req, job.ID)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response["id"] != job.ID {
		t.Error("Response should contain job ID")
	}
	if response["state"] != string(StatePending) {
		t.Errorf("Expected pending state, got %v", response["state"])
	}
	if _, ok := response["elapsed"]; !ok {
		t.Error("Response should contain elapsed time")
	}
}

func TestServer_GetJobStatus_NotFound(t *testing.T) {
	s := NewServer(":0", newTestRunner(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/nonexistent/status", nil)
	w := httptest.NewRecorder()

	s.handleGetJobStatus(w, req, "nonexistent")

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_Routing(t *testing.T) {
	s := NewServer(":0", newTestRunner(t))
	handler := s.Handler()
	job := s.jobManager.CreateJob(toyConfig())

	tests := []struct {
		method string
		path   string
		code   int
	}{
		{http.MethodGet, "/api/v1/jobs", http.StatusOK},
		{http.MethodPut, "/api/v1/jobs", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/jobs/", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/jobs/" + job.ID, http.StatusOK},
		{http.MethodGet, "/api/v1/jobs/" + job.ID + "/status", http.StatusOK},
		{http.MethodGet, "/api/v1/jobs/" + job.ID + "/estimate", http.StatusNotFound},
		{http.MethodGet, "/api/v1/jobs/" + job.ID + "/unknown", http.StatusNotFound},
		{http.MethodGet, "/api/v1/jobs/" + job.ID + "/cancel", http.StatusMethodNotAllowed},
		{http.MethodOptions, "/api/v1/jobs", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.code {
				t.Errorf("Expected status %d, got %d", tt.code, w.Code)
			}
			if w.Header().Get("Access-Control-Allow-Origin") != "*" {
				t.Error("Expected CORS header")
			}
		})
	}
}

func TestServer_GetEstimate(t *testing.T) {
	s := NewServer(":0", newTestRunner(t))

	job := s.jobManager.CreateJob(toyConfig())
	s.jobManager.UpdateJob(job.ID, func(j *Job) {
		j.State = StateCompleted
		j.Best = []float64{1, 2, 3, 4, 5, 6}
		j.Points = 3
		j.Dims = 2
		j.BestCost = 0.25
	})

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s/estimate", job.ID), nil)
	w := httptest.NewRecorder()

	s.handleGetEstimate(w, req, job.ID)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Points   int         `json:"points"`
		Dims     int         `json:"dims"`
		BestCost float64     `json:"bestCost"`
		Estimate [][]float64 `json:"estimate"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.Points != 3 || response.Dims != 2 {
		t.Errorf("Expected 3x2, got %dx%d", response.Points, response.Dims)
	}
	want := [][]float64{{1, 2}, {3, 4}, {5, 6}}
	for i := range want {
		for k := range want[i] {
			if response.Estimate[i][k] != want[i][k] {
				t.Errorf("estimate[%d][%d] = %f, expected %f", i, k, response.Estimate[i][k], want[i][k])
			}
		}
	}
}

func TestServer_GetEstimate_NoResults(t *testing.T) {
	s := NewServer(":0", newTestRunner(t))
	job := s.jobManager.CreateJob(toyConfig())

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s/estimate", job.ID), nil)
	w := httptest.NewRecorder()

	s.handleGetEstimate(w, req, job.ID)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_GetTrace(t *testing.T) {
	r := newTestRunner(t)
	s := NewServer(":0", r)
	job := s.jobManager.CreateJob(toyConfig())

	// No trace before the job runs
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s/trace", job.ID), nil)
	w := httptest.NewRecorder()
	s.handleGetTrace(w, req, job.ID)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 before the run, got %d", w.Code)
	}

	if err := runJob(context.Background(), s.jobManager, r, job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}
	finished, _ := s.jobManager.GetJob(job.ID)

	w = httptest.NewRecorder()
	s.handleGetTrace(w, req, job.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var entries []store.TraceEntry
	if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(entries) != finished.Epochs {
		t.Errorf("Expected %d trace entries, got %d", finished.Epochs, len(entries))
	}
}

func TestServer_CancelJob(t *testing.T) {
	s := NewServer(":0", newTestRunner(t))
	job := s.jobManager.CreateJob(toyConfig())

	ctx, cancel := context.WithCancel(context.Background())
	s.jobManager.SetCancel(job.ID, cancel)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/jobs/%s/cancel", job.ID), nil)
	w := httptest.NewRecorder()
	s.handleCancelJob(w, req, job.ID)

	if w.Code != http.StatusAccepted {
		t.Errorf("Expected status 202, got %d", w.Code)
	}
	if ctx.Err() == nil {
		t.Error("Job context should be cancelled")
	}

	s.jobManager.UpdateJob(job.ID, func(j *Job) { j.State = StateCancelled })
	w = httptest.NewRecorder()
	s.handleCancelJob(w, req, job.ID)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for a finished job, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	s.handleCancelJob(w, req, "nonexistent")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_DeleteJob(t *testing.T) {
	s := NewServer(":0", newTestRunner(t))
	handler := s.Handler()
	job := s.jobManager.CreateJob(toyConfig())

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+job.ID, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for a pending job, got %d", w.Code)
	}

	s.jobManager.UpdateJob(job.ID, func(j *Job) { j.State = StateCompleted })
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after deletion, got %d", w.Code)
	}
}

func TestServer_Shutdown(t *testing.T) {
	s := NewServer(":0", newTestRunner(t))
	job := s.jobManager.CreateJob(toyConfig())

	ctx, cancel := context.WithCancel(context.Background())
	s.jobManager.SetCancel(job.ID, cancel)

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if ctx.Err() == nil {
		t.Error("Shutdown should cancel running jobs")
	}
	if s.ctx.Err() == nil {
		t.Error("Shutdown should cancel the server context")
	}
}

func TestServer_JobStream_SSE(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping SSE test in short mode")
	}

	s := NewServer(":0", newTestRunner(t))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	body, _ := json.Marshal(toyConfig())
	resp, err := http.Post(ts.URL+"/api/v1/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}
	var job Job
	json.NewDecoder(resp.Body).Decode(&job)
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/jobs/"+job.ID+"/stream", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to open stream: %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Error("Expected text/event-stream content type")
	}

	// The stream ends once the job reaches a terminal state.
	var last ProgressEvent
	events := 0
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &last); err != nil {
			t.Fatalf("Failed to parse event %q: %v", line, err)
		}
		events++
	}

	if events == 0 {
		t.Fatal("Expected SSE events")
	}
	if last.JobID != job.ID {
		t.Errorf("Expected events for %s, got %s", job.ID, last.JobID)
	}
	if last.State != StateCompleted {
		t.Errorf("Expected the last event to report completion, got %s", last.State)
	}
}

func TestServer_JobStream_NotFound(t *testing.T) {
	s := NewServer(":0", newTestRunner(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/nonexistent/stream", nil)
	w := httptest.NewRecorder()

	s.handleJobStream(w, req, "nonexistent")

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestEventBroadcaster(t *testing.T) {
	eb := NewEventBroadcaster()

	ch := eb.Subscribe("job1")
	defer eb.Unsubscribe("job1", ch)

	event := ProgressEvent{
		JobID:     "job1",
		State:     StateRunning,
		Epoch:     10,
		Steps:     40,
		Cost:      101.5,
		BestCost:  100.5,
		Timestamp: time.Now(),
	}
	eb.Broadcast(event)

	select {
	case received := <-ch:
		if received.JobID != "job1" {
			t.Errorf("Expected jobID job1, got %s", received.JobID)
		}
		if received.Epoch != 10 {
			t.Errorf("Expected epoch 10, got %d", received.Epoch)
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for event")
	}

	eb.CleanupJob("job1")
}

func TestEventBroadcaster_ReplaysLastEvent(t *testing.T) {
	eb := NewEventBroadcaster()
	eb.Broadcast(ProgressEvent{JobID: "job1", State: StateCompleted, Epoch: 3})

	ch := eb.Subscribe("job1")
	defer eb.Unsubscribe("job1", ch)

	select {
	case received := <-ch:
		if received.Epoch != 3 || received.State != StateCompleted {
			t.Errorf("Expected the cached event, got %+v", received)
		}
	case <-time.After(1 * time.Second):
		t.Error("Late subscribers should receive the last event")
	}
}

func TestEventBroadcaster_SlowSubscriberKeepsTerminalEvent(t *testing.T) {
	eb := NewEventBroadcaster()

	ch := eb.Subscribe("job1")
	defer eb.Unsubscribe("job1", ch)

	for epoch := 1; epoch <= 3*subscriberBuffer; epoch++ {
		eb.Broadcast(ProgressEvent{JobID: "job1", State: StateRunning, Epoch: epoch})
	}
	eb.Broadcast(ProgressEvent{JobID: "job1", State: StateCompleted, Epoch: 3 * subscriberBuffer})

	var last ProgressEvent
	for i := 0; i < subscriberBuffer; i++ {
		select {
		case last = <-ch:
		case <-time.After(time.Second):
			t.Fatalf("Expected a full buffer, got %d events", i)
		}
	}
	if last.State != StateCompleted {
		t.Errorf("Expected the terminal event to survive, got %+v", last)
	}
}

func TestEventBroadcaster_UnsubscribeAfterCleanup(t *testing.T) {
	eb := NewEventBroadcaster()
	ch := eb.Subscribe("job1")

	eb.CleanupJob("job1")
	if _, open := <-ch; open {
		t.Error("Expected CleanupJob to close the subscriber")
	}

	// Must not close the channel twice.
	eb.Unsubscribe("job1", ch)
}
