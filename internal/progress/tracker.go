// Package progress tracks live encode progress for running jobs and
// estimates their remaining time.
package progress

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuivienor/hls-ladder/internal/model"
)

// Snapshot is an immutable view of a running job's progress. Readers always
// see a complete snapshot: writers publish a new copy instead of mutating.
type Snapshot struct {
	JobID     string        `json:"job_id"`
	Quality   model.Quality `json:"quality,omitempty"`
	Percent   float64       `json:"percent"`
	Duration  float64       `json:"duration"` // media seconds, 0 when unknown
	StartedAt time.Time     `json:"started_at"`
	ETA       string        `json:"eta"`
	Milestone int           `json:"-"` // highest multiple of 10 reported for the current quality
}

// Tracker holds one snapshot per running job
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]*atomic.Pointer[Snapshot]
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]*atomic.Pointer[Snapshot])}
}

// Start begins tracking a job whose source lasts duration seconds
func (t *Tracker) Start(jobID string, startedAt time.Time, duration float64) {
	p := &atomic.Pointer[Snapshot]{}
	p.Store(&Snapshot{JobID: jobID, Duration: duration, StartedAt: startedAt, ETA: UnknownETA})

	t.mu.Lock()
	t.jobs[jobID] = p
	t.mu.Unlock()
}

func (t *Tracker) slot(jobID string) *atomic.Pointer[Snapshot] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.jobs[jobID]
}

// update applies fn to the current snapshot until the swap wins
func (t *Tracker) update(jobID string, fn func(s *Snapshot)) (Snapshot, Snapshot, bool) {
	p := t.slot(jobID)
	if p == nil {
		return Snapshot{}, Snapshot{}, false
	}
	for {
		old := p.Load()
		next := *old
		fn(&next)
		if p.CompareAndSwap(old, &next) {
			return *old, next, true
		}
	}
}

// BeginQuality resets percent and milestones for the next rendition
func (t *Tracker) BeginQuality(jobID string, quality model.Quality) {
	t.update(jobID, func(s *Snapshot) {
		s.Quality = quality
		s.Percent = 0
		s.Milestone = 0
	})
}

// Observe feeds one diagnostic line. It returns the updated snapshot and
// every multiple of 10 percent crossed for the first time, in ascending order.
func (t *Tracker) Observe(jobID, line string) (Snapshot, []int, bool) {
	elapsed, ok := ParseElapsed(line)
	if !ok {
		return Snapshot{}, nil, false
	}

	var crossed []int
	_, next, found := t.update(jobID, func(s *Snapshot) {
		crossed = crossed[:0]
		if s.Duration <= 0 {
			return
		}
		s.Percent = min(100, elapsed/s.Duration*100)
		reached := int(s.Percent) / 10 * 10
		for m := s.Milestone + 10; m <= reached; m += 10 {
			crossed = append(crossed, m)
		}
		s.Milestone = max(s.Milestone, reached)
	})
	if !found {
		return Snapshot{}, nil, false
	}
	return next, crossed, true
}

// SetETA stores a freshly computed estimate
func (t *Tracker) SetETA(jobID, eta string) {
	t.update(jobID, func(s *Snapshot) {
		s.ETA = eta
	})
}

// Get returns the current snapshot for a job
func (t *Tracker) Get(jobID string) (Snapshot, bool) {
	p := t.slot(jobID)
	if p == nil {
		return Snapshot{}, false
	}
	return *p.Load(), true
}

// Clear stops tracking a job
func (t *Tracker) Clear(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, jobID)
}

// Active returns the ids of tracked jobs
func (t *Tracker) Active() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.jobs))
	for id := range t.jobs {
		ids = append(ids, id)
	}
	return ids
}
