// Package notify carries fire-and-forget job events to observers.
package notify

import (
	"sync"
	"time"

	"github.com/cuivienor/hls-ladder/internal/model"
)

// EventType classifies job events
type EventType string

const (
	EventJobDiscovered EventType = "job_discovered"
	EventStatusChanged EventType = "status_changed"
	EventMilestone     EventType = "milestone"
	EventError         EventType = "error"
)

// Event is a sequenced job notification
type Event struct {
	Seq       int64           `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Type      EventType       `json:"type"`
	JobID     string          `json:"job_id"`
	Status    model.JobStatus `json:"status,omitempty"`
	Progress  int             `json:"progress,omitempty"`
	Quality   model.Quality   `json:"quality,omitempty"`
	Percent   int             `json:"percent,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// Notifier receives job events. Implementations must not block.
type Notifier interface {
	Notify(event Event)
}

// Nop discards events
type Nop struct{}

// Notify implements Notifier
func (Nop) Notify(Event) {}

// Discovered builds a job_discovered event
func Discovered(job *model.Job) Event {
	return Event{Type: EventJobDiscovered, JobID: job.ID, Status: job.Status, Message: job.Filename}
}

// StatusChanged builds a status_changed event
func StatusChanged(jobID string, status model.JobStatus, progress int) Event {
	return Event{Type: EventStatusChanged, JobID: jobID, Status: status, Progress: progress}
}

// Milestone builds a milestone event
func Milestone(jobID string, quality model.Quality, percent int) Event {
	return Event{Type: EventMilestone, JobID: jobID, Quality: quality, Percent: percent}
}

// Failure builds an error event
func Failure(jobID, message string) Event {
	return Event{Type: EventError, JobID: jobID, Message: message}
}

// Bus stores recent events and provides incremental reads
type Bus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewBus creates a bounded in-memory event buffer
func NewBus(maxEvents int) *Bus {
	if maxEvents <= 0 {
		maxEvents = 500
	}
	return &Bus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Notify implements Notifier
func (b *Bus) Notify(event Event) {
	b.Publish(event)
}

// Publish appends one event and assigns sequence and timestamp
func (b *Bus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}
	return event
}

// Since returns events with sequence strictly greater than seq
func (b *Bus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Recorder keeps every event in memory, for tests
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Notify implements Notifier
func (r *Recorder) Notify(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of one type
func (r *Recorder) OfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
