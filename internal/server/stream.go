package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	subscriberBuffer = 10
	keepAlive        = 30 * time.Second
)

// ProgressEvent is the SSE payload describing a job after an epoch or a
// state change.
type ProgressEvent struct {
	JobID     string    `json:"jobId"`
	State     JobState  `json:"state"`
	Epoch     int       `json:"epoch"`
	Steps     int       `json:"steps"`
	Cost      float64   `json:"cost"`
	BestCost  float64   `json:"bestCost"`
	Timestamp time.Time `json:"timestamp"`
}

func newProgressEvent(job *Job) ProgressEvent {
	return ProgressEvent{
		JobID:     job.ID,
		State:     job.State,
		Epoch:     job.Epochs,
		Steps:     job.Steps,
		Cost:      job.LastCost,
		BestCost:  job.BestCost,
		Timestamp: time.Now(),
	}
}

type subscribers map[chan ProgressEvent]struct{}

// EventBroadcaster fans job events out to stream subscribers and remembers
// the latest event per job for late subscribers.
type EventBroadcaster struct {
	mu     sync.Mutex
	subs   map[string]subscribers
	latest map[string]ProgressEvent
}

func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		subs:   make(map[string]subscribers),
		latest: make(map[string]ProgressEvent),
	}
}

// Subscribe returns a channel of events for jobID, primed with the latest
// event if one was broadcast.
func (eb *EventBroadcaster) Subscribe(jobID string) chan ProgressEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan ProgressEvent, subscriberBuffer)
	if ev, ok := eb.latest[jobID]; ok {
		ch <- ev
	}
	if eb.subs[jobID] == nil {
		eb.subs[jobID] = make(subscribers)
	}
	eb.subs[jobID][ch] = struct{}{}
	return ch
}

// Unsubscribe closes ch. It is a no-op once CleanupJob has run for jobID.
func (eb *EventBroadcaster) Unsubscribe(jobID string, ch chan ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	set := eb.subs[jobID]
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(eb.subs, jobID)
	}
}

// Broadcast never blocks. A subscriber that has fallen behind loses its
// oldest pending event, so the newest one (possibly terminal) always lands.
func (eb *EventBroadcaster) Broadcast(event ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.latest[event.JobID] = event
	for ch := range eb.subs[event.JobID] {
		for {
			select {
			case ch <- event:
			default:
				select {
				case <-ch:
					slog.Debug("Dropped stale event for slow subscriber", "jobID", event.JobID)
				default:
				}
				continue
			}
			break
		}
	}
}

// CleanupJob closes every subscriber of jobID and forgets its latest event.
func (eb *EventBroadcaster) CleanupJob(jobID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for ch := range eb.subs[jobID] {
		close(ch)
	}
	delete(eb.subs, jobID)
	delete(eb.latest, jobID)
}

// handleJobStream serves GET /api/v1/jobs/:id/stream. The stream opens with
// the job's current state and closes after a terminal event.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")

	events := s.jobManager.broadcaster.Subscribe(jobID)
	defer s.jobManager.broadcaster.Unsubscribe(jobID, events)

	send := func(ev ProgressEvent) bool {
		if err := writeSSEEvent(w, ev); err != nil {
			slog.Warn("Stream write failed", "jobID", jobID, "error", err)
			return false
		}
		flusher.Flush()
		return !ev.State.terminal()
	}

	if !send(newProgressEvent(job)) {
		return
	}

	ping := time.NewTicker(keepAlive)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open || !send(ev) {
				return
			}
		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent frames ev as an SSE message named after the job state.
func writeSSEEvent(w http.ResponseWriter, ev ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.State, data)
	return err
}
