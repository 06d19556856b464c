// Package service is the application layer shared by the HTTP API, the CLI
// and the TUI. It owns the queue controller, the executor and the event bus.
package service

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/cuivienor/hls-ladder/internal/config"
	"github.com/cuivienor/hls-ladder/internal/db"
	"github.com/cuivienor/hls-ladder/internal/executor"
	"github.com/cuivienor/hls-ladder/internal/logging"
	"github.com/cuivienor/hls-ladder/internal/model"
	"github.com/cuivienor/hls-ladder/internal/notify"
	"github.com/cuivienor/hls-ladder/internal/progress"
	"github.com/cuivienor/hls-ladder/internal/queue"
	"github.com/cuivienor/hls-ladder/internal/scanner"
	"github.com/cuivienor/hls-ladder/internal/transcode"
)

// Options overrides the external tools, mainly for tests
type Options struct {
	Encoder transcode.Encoder
	Prober  transcode.Prober
	Logger  *logging.Logger
}

// SubmitResult is the outcome of a submission
type SubmitResult struct {
	JobID    string `json:"job_id"`
	Started  bool   `json:"started"`
	Position int    `json:"position,omitempty"`
}

// ResetResult is the outcome of a reset-stuck pass
type ResetResult struct {
	Reset   []string `json:"reset"`
	Started string   `json:"started,omitempty"`
}

// JobView is a job with its quality tasks and live progress
type JobView struct {
	Job           model.Job           `json:"job"`
	Tasks         []model.QualityTask `json:"tasks"`
	QueuePosition int                 `json:"queue_position,omitempty"`
	Live          *progress.Snapshot  `json:"live,omitempty"`
}

// QueueItem is a queue entry joined with its job's file name
type QueueItem struct {
	model.QueueEntry
	Filename string `json:"filename"`
}

// Stats summarises job counts by status
type Stats struct {
	Total    int                     `json:"total"`
	ByStatus map[model.JobStatus]int `json:"by_status"`
	Active   string                  `json:"active,omitempty"`
	Queued   int                     `json:"queued"`
	// CompletionRate is the percentage of jobs that are DONE, to one decimal
	CompletionRate float64 `json:"completion_rate"`
}

// Service coordinates scanning, admission and execution
type Service struct {
	cfg      *config.Config
	repo     db.Repository
	queue    *queue.Controller
	executor *executor.Executor
	tracker  *progress.Tracker
	scanner  *scanner.Scanner
	bus      *notify.Bus
	logger   *logging.Logger
}

// New wires a service over repo
func New(cfg *config.Config, repo db.Repository, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	encoder := opts.Encoder
	if encoder == nil {
		encoder = transcode.NewHLSEncoder(cfg.FFmpegPath)
	}
	prober := opts.Prober
	if prober == nil {
		prober = transcode.NewFFprobe(cfg.FFprobePath)
	}

	bus := notify.NewBus(cfg.EventBuffer())
	tracker := progress.NewTracker()
	controller := queue.NewController(repo, bus, logger)

	return &Service{
		cfg:     cfg,
		repo:    repo,
		queue:   controller,
		tracker: tracker,
		bus:     bus,
		logger:  logger,
		executor: executor.New(executor.Deps{
			Config:   cfg,
			Repo:     repo,
			Queue:    controller,
			Tracker:  tracker,
			Encoder:  encoder,
			Prober:   prober,
			Notifier: bus,
			Logger:   logger,
		}),
		scanner: scanner.New(scanner.Config{
			InputDir:   cfg.InputRoot(),
			Extensions: cfg.Formats(),
		}, repo, prober, bus, logger),
	}
}

// Run recovers from any previous crash and then executes jobs until ctx is
// cancelled
func (s *Service) Run(ctx context.Context) error {
	if _, err := s.Resume(ctx); err != nil {
		return fmt.Errorf("failed to resume: %w", err)
	}
	s.executor.Run(ctx)
	return nil
}

// Resume resets jobs orphaned by a previous process and starts the queue
// head. At startup nothing is live, so every IN_PROGRESS job is an orphan.
func (s *Service) Resume(ctx context.Context) (*ResetResult, error) {
	return s.ResetStuck(ctx)
}

// Submit starts a job if the slot is free, otherwise queues it
func (s *Service) Submit(ctx context.Context, jobID string) (*SubmitResult, error) {
	adm, err := s.queue.Submit(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if adm.Started {
		s.executor.Dispatch(jobID)
	}
	return &SubmitResult{JobID: jobID, Started: adm.Started, Position: adm.Position}, nil
}

// Cancel removes a queued job from the queue
func (s *Service) Cancel(ctx context.Context, jobID string) error {
	return s.queue.Cancel(ctx, jobID)
}

// Delete removes a job that is not running together with its output folder
func (s *Service) Delete(ctx context.Context, jobID string) error {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("%w: %s", model.ErrNotFound, jobID)
	}

	if err := s.queue.Remove(ctx, jobID); err != nil {
		return err
	}
	s.tracker.Clear(jobID)

	folder := filepath.Join(s.cfg.OutputRoot(), job.OutputFolderName())
	if err := os.RemoveAll(folder); err != nil {
		s.logger.Warn("failed to remove output folder %s: %v", folder, err)
	}
	return nil
}

// Scan registers jobs for new source files
func (s *Service) Scan(ctx context.Context) (*scanner.ScanResult, error) {
	return s.scanner.Scan(ctx)
}

// ResetStuck forces IN_PROGRESS jobs that are not actually executing to
// ERROR and starts the queue head if the slot became free
func (s *Service) ResetStuck(ctx context.Context) (*ResetResult, error) {
	ids, next, err := s.queue.ResetStuck(ctx)
	for _, id := range ids {
		s.tracker.Clear(id)
	}
	if err != nil {
		return nil, err
	}
	if next != "" {
		s.executor.Dispatch(next)
	}
	if ids == nil {
		ids = []string{}
	}
	return &ResetResult{Reset: ids, Started: next}, nil
}

// Status returns a job with its tasks, queue position and live progress
func (s *Service) Status(ctx context.Context, jobID string) (*JobView, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, jobID)
	}

	tasks, err := s.repo.ListQualityTasks(ctx, jobID)
	if err != nil {
		return nil, err
	}
	pos, err := s.repo.QueuePosition(ctx, jobID)
	if err != nil {
		return nil, err
	}

	view := &JobView{Job: *job, Tasks: tasks, QueuePosition: pos}
	if snap, ok := s.tracker.Get(jobID); ok {
		view.Live = &snap
	}
	return view, nil
}

// List returns jobs, newest first
func (s *Service) List(ctx context.Context, opts db.ListOptions) ([]model.Job, error) {
	return s.repo.ListJobs(ctx, opts)
}

// Queue returns the waiting jobs in admission order
func (s *Service) Queue(ctx context.Context) ([]QueueItem, error) {
	entries, err := s.repo.ListQueue(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]QueueItem, 0, len(entries))
	for _, e := range entries {
		item := QueueItem{QueueEntry: e}
		if job, err := s.repo.GetJob(ctx, e.JobID); err == nil && job != nil {
			item.Filename = job.Filename
		}
		items = append(items, item)
	}
	return items, nil
}

// Stats returns job counts by status
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.repo.CountJobsByStatus(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{ByStatus: make(map[model.JobStatus]int, len(model.AllJobStatuses))}
	for _, status := range model.AllJobStatuses {
		stats.ByStatus[status] = counts[status]
		stats.Total += counts[status]
	}
	stats.Queued = counts[model.JobStatusQueued]
	stats.CompletionRate = completionRate(counts[model.JobStatusDone], stats.Total)

	active, err := s.repo.GetActiveJob(ctx)
	if err != nil {
		return nil, err
	}
	if active != nil {
		stats.Active = active.ID
	}
	return stats, nil
}

func completionRate(done, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(done)/float64(total)*1000) / 10
}

// Events returns notifications newer than seq
func (s *Service) Events(seq int64) []notify.Event {
	return s.bus.Since(seq)
}

// Live returns the progress snapshot of a running job
func (s *Service) Live(jobID string) (progress.Snapshot, bool) {
	return s.tracker.Get(jobID)
}

// OutputRoot is where HLS folders are written
func (s *Service) OutputRoot() string {
	return s.cfg.OutputRoot()
}
