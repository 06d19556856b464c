package progress

import (
	"context"
	"sync"
	"time"

	"github.com/cuivienor/hls-ladder/internal/logging"
)

const (
	DefaultPollInterval   = 5 * time.Second
	DefaultReportInterval = 30 * time.Second
)

// Reporter periodically refreshes and logs the ETA of one running job
type Reporter struct {
	tracker        *Tracker
	jobID          string
	logger         *logging.Logger
	pollInterval   time.Duration
	reportInterval time.Duration
	now            func() time.Time
}

// NewReporter creates a reporter for jobID. Zero intervals use the defaults.
func NewReporter(tracker *Tracker, jobID string, logger *logging.Logger, poll, report time.Duration) *Reporter {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if report <= 0 {
		report = DefaultReportInterval
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Reporter{
		tracker:        tracker,
		jobID:          jobID,
		logger:         logger,
		pollInterval:   poll,
		reportInterval: report,
		now:            time.Now,
	}
}

// Start runs the reporter in the background. The returned stop function
// cancels it and waits for it to exit; calling it more than once is safe.
func (r *Reporter) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		r.run(ctx)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func (r *Reporter) run(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	lastReport := r.now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.now().Sub(lastReport) < r.reportInterval {
				continue
			}
			lastReport = r.now()
			r.Report()
		}
	}
}

// Report computes the ETA from wall time since the job started and the
// current percent, stores it in the snapshot and logs a progress line.
// It does nothing until some progress has been observed.
func (r *Reporter) Report() (Snapshot, bool) {
	snap, ok := r.tracker.Get(r.jobID)
	if !ok || snap.Quality == "" || snap.Percent <= 0 {
		return Snapshot{}, false
	}

	eta := ETA(r.now().Sub(snap.StartedAt), snap.Percent)
	r.tracker.SetETA(r.jobID, eta)
	snap.ETA = eta

	r.logger.Info("LIVE_PROGRESS: %s | %s | %.1f%% | ETA %s", r.jobID, snap.Quality, snap.Percent, eta)
	return snap, true
}
