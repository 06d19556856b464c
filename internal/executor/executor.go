// Package executor drives admitted jobs through probing, per-quality
// encoding and manifest writing on a dedicated worker goroutine.
package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/cuivienor/hls-ladder/internal/config"
	"github.com/cuivienor/hls-ladder/internal/db"
	"github.com/cuivienor/hls-ladder/internal/logging"
	"github.com/cuivienor/hls-ladder/internal/model"
	"github.com/cuivienor/hls-ladder/internal/notify"
	"github.com/cuivienor/hls-ladder/internal/planner"
	"github.com/cuivienor/hls-ladder/internal/progress"
	"github.com/cuivienor/hls-ladder/internal/queue"
	"github.com/cuivienor/hls-ladder/internal/transcode"
	"github.com/google/uuid"
)

// dispatchBuffer bounds pending dispatches; admission keeps it at one in practice
const dispatchBuffer = 16

// taskProgressSpan is the share of overall progress covered by the quality loop
const taskProgressSpan = 90

// Deps holds the collaborators of an Executor
type Deps struct {
	Config   *config.Config
	Repo     db.Repository
	Queue    *queue.Controller
	Tracker  *progress.Tracker
	Encoder  transcode.Encoder
	Prober   transcode.Prober
	Notifier notify.Notifier
	Logger   *logging.Logger
}

// Executor runs one admitted job at a time
type Executor struct {
	cfg      *config.Config
	repo     db.Repository
	queue    *queue.Controller
	tracker  *progress.Tracker
	encoder  transcode.Encoder
	prober   transcode.Prober
	notifier notify.Notifier
	logger   *logging.Logger
	workerID string
	now      func() time.Time

	work chan string

	mu     sync.Mutex
	active string
}

// New creates an executor with a fresh worker id
func New(d Deps) *Executor {
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Tracker == nil {
		d.Tracker = progress.NewTracker()
	}
	return &Executor{
		cfg:      d.Config,
		repo:     d.Repo,
		queue:    d.Queue,
		tracker:  d.Tracker,
		encoder:  d.Encoder,
		prober:   d.Prober,
		notifier: d.Notifier,
		logger:   d.Logger,
		workerID: uuid.NewString(),
		now:      time.Now,
		work:     make(chan string, dispatchBuffer),
	}
}

// WorkerID identifies this executor in job records
func (e *Executor) WorkerID() string {
	return e.workerID
}

// Active returns the id of the job currently executing, or ""
func (e *Executor) Active() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

func (e *Executor) setActive(jobID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = jobID
}

// Dispatch hands an admitted job to the worker goroutine
func (e *Executor) Dispatch(jobID string) {
	select {
	case e.work <- jobID:
	default:
		e.queue.Forget(jobID)
		e.logger.Error("dispatch buffer full, dropping %s; reset-stuck will recover it", jobID)
	}
}

// Run processes dispatched jobs until ctx is cancelled
func (e *Executor) Run(ctx context.Context) {
	e.logger.Info("executor %s started", e.workerID)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("executor %s stopped", e.workerID)
			return
		case jobID := <-e.work:
			e.drain(ctx, jobID)
		}
	}
}

// drain runs jobID and every job the controller admits after it
func (e *Executor) drain(ctx context.Context, jobID string) {
	for jobID != "" {
		jobID = e.Execute(ctx, jobID)
	}
}

type outcome struct {
	status  model.JobStatus
	message string
	folder  string
}

// Execute runs one admitted job to a terminal state, releases the slot and
// returns the id of the next admitted job, if any
func (e *Executor) Execute(ctx context.Context, jobID string) string {
	e.setActive(jobID)
	defer e.setActive("")

	log, closeLog := e.jobLogger(jobID)
	defer closeLog()

	out := e.runSafely(ctx, jobID, log)
	return e.finish(ctx, jobID, out, log)
}

func (e *Executor) runSafely(ctx context.Context, jobID string, log *logging.Logger) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while converting %s: %v\n%s", jobID, r, debug.Stack())
			out = outcome{status: model.JobStatusError, message: fmt.Sprintf("unexpected failure: %v", r), folder: out.folder}
		}
	}()
	return e.run(ctx, jobID, log, &out)
}

func (e *Executor) run(ctx context.Context, jobID string, log *logging.Logger, out *outcome) outcome {
	fail := func(format string, args ...interface{}) outcome {
		return outcome{status: model.JobStatusError, message: fmt.Sprintf(format, args...), folder: out.folder}
	}

	job, err := e.repo.GetJob(ctx, jobID)
	if err != nil {
		return fail("failed to load job: %v", err)
	}
	if job == nil {
		return fail("job %s not found", jobID)
	}
	out.folder = filepath.Join(e.cfg.OutputRoot(), job.OutputFolderName())

	log.Info("CONVERSION_START: %s (%s)", job.ID, job.SourcePath)
	if err := e.repo.MarkJobStarted(ctx, job.ID, e.workerID); err != nil {
		return fail("failed to record job start: %v", err)
	}
	e.notifier.Notify(notify.StatusChanged(job.ID, model.JobStatusInProgress, 0))

	duration := e.probe(ctx, job, log)

	qualities := planner.SelectTargetQualities(job.Resolution)
	tasks, err := e.repo.ReplaceQualityTasks(ctx, job.ID, qualities)
	if err != nil {
		return fail("failed to create quality tasks: %v", err)
	}
	log.Info("QUALITY_PLAN: %s -> %v", job.ID, qualities)

	startedAt := e.now()
	if job.StartedAt != nil {
		startedAt = *job.StartedAt
	}
	e.tracker.Start(job.ID, startedAt, duration)
	reporter := progress.NewReporter(e.tracker, job.ID, log, e.cfg.Progress.PollInterval, e.cfg.Progress.ReportInterval)
	stopReporter := reporter.Start(ctx)
	defer stopReporter()

	var completed []model.Quality
	var failures []string
	for i := range tasks {
		task := &tasks[i]
		e.runTask(ctx, job, task, out.folder, duration, log)

		if task.Status == model.TaskStatusDone {
			completed = append(completed, task.Quality)
		} else {
			failures = append(failures, fmt.Sprintf("%s: %s", task.Quality, task.ErrorMessage))
		}

		pct := (i + 1) * taskProgressSpan / len(tasks)
		if err := e.repo.UpdateJobProgress(ctx, job.ID, pct); err != nil {
			log.Error("failed to update progress for %s: %v", job.ID, err)
		}
		log.Info("PROGRESS_UPDATE: %s %d%%", job.ID, pct)
		e.notifier.Notify(notify.StatusChanged(job.ID, model.JobStatusInProgress, pct))
	}
	stopReporter()

	if len(completed) == 0 {
		return fail("all quality conversions failed: %s", strings.Join(failures, "; "))
	}

	master, err := transcode.WriteMasterPlaylist(out.folder, completed)
	if err != nil {
		return fail("failed to write master playlist: %v", err)
	}
	log.Info("MASTER_PLAYLIST: %s lists %v", master, completed)
	if len(failures) > 0 {
		log.Warn("PARTIAL_SUCCESS: %s skipped %s", job.ID, strings.Join(failures, "; "))
	}

	return outcome{status: model.JobStatusDone, folder: out.folder}
}

// probe returns the source duration in seconds, filling in the job's
// resolution when it is still unknown. Failures fall back to unknown values.
func (e *Executor) probe(ctx context.Context, job *model.Job, log *logging.Logger) float64 {
	info, err := e.prober.Probe(ctx, job.SourcePath)
	if err != nil {
		log.Warn("probe failed for %s, continuing with unknown resolution: %v", job.ID, err)
		return 0
	}

	if job.Resolution == "" && info.Resolution() != "" {
		job.Resolution = info.Resolution()
		if err := e.repo.UpdateJobResolution(ctx, job.ID, job.Resolution); err != nil {
			log.Error("failed to store resolution for %s: %v", job.ID, err)
		}
	}
	return info.Duration
}

func (e *Executor) runTask(ctx context.Context, job *model.Job, task *model.QualityTask, folder string, duration float64, log *logging.Logger) {
	task.Status = model.TaskStatusInProgress
	task.Progress = 0
	e.saveTask(ctx, task, log)

	e.tracker.BeginQuality(job.ID, task.Quality)
	log.Info("QUALITY_START: %s %s", job.ID, task.Quality)

	var result transcode.EncodeResult
	profile, ok := task.Quality.Profile()
	if !ok {
		result = transcode.EncodeResult{Message: fmt.Sprintf("no encoding profile for %s", task.Quality)}
	} else {
		result = e.encode(ctx, job.ID, transcode.EncodeRequest{
			SourcePath:      job.SourcePath,
			OutputDir:       filepath.Join(folder, string(task.Quality)),
			Profile:         profile,
			SegmentDuration: e.cfg.SegmentSeconds(),
		}, log)
	}

	completedAt := e.now().UTC()
	task.CompletedAt = &completedAt
	if result.Succeeded {
		task.Status = model.TaskStatusDone
		task.Progress = 100
		task.OutputPath = result.PlaylistPath
		task.SegmentCount = result.SegmentCount
		task.Duration = duration
		log.Info("QUALITY_COMPLETE: %s %s (%d segments)", job.ID, task.Quality, result.SegmentCount)
	} else {
		task.Status = model.TaskStatusError
		task.ErrorMessage = result.Message
		encErr := &model.EncodeError{Quality: task.Quality, Message: result.Message}
		log.Error("QUALITY_FAILED: %s %v", job.ID, encErr)
		e.notifier.Notify(notify.Failure(job.ID, encErr.Error()))
	}
	e.saveTask(ctx, task, log)
}

func (e *Executor) saveTask(ctx context.Context, task *model.QualityTask, log *logging.Logger) {
	if err := e.repo.UpdateQualityTask(ctx, task); err != nil {
		log.Error("%v", &model.PersistenceError{Op: "update quality task " + string(task.Quality), Err: err})
	}
}

// encode runs one session, feeding every diagnostic line to the tracker and
// the raw tool log
func (e *Executor) encode(ctx context.Context, jobID string, req transcode.EncodeRequest, log *logging.Logger) transcode.EncodeResult {
	raw := e.toolLog(jobID, "ffmpeg-"+string(req.Profile.Quality))
	defer raw.Close()

	session, err := e.encoder.Start(ctx, req)
	if err != nil {
		return transcode.EncodeResult{Message: err.Error()}
	}

	for line := range session.Lines() {
		fmt.Fprintln(raw, line)
		snap, milestones, ok := e.tracker.Observe(jobID, line)
		if !ok {
			continue
		}
		for _, m := range milestones {
			log.Info("MILESTONE: %s %s %d%%", jobID, snap.Quality, m)
			e.notifier.Notify(notify.Milestone(jobID, snap.Quality, m))
		}
	}
	return session.Wait()
}

// finish cleans up, writes the terminal state and releases the slot. It
// runs for every execution, including ones that panicked.
func (e *Executor) finish(ctx context.Context, jobID string, out outcome, log *logging.Logger) string {
	// terminal writes must land even when shutting down
	wctx := context.WithoutCancel(ctx)

	if out.folder != "" {
		if n, err := transcode.CleanupTempFiles(out.folder); err != nil {
			log.Warn("temp file cleanup failed for %s: %v", jobID, err)
		} else if n > 0 {
			log.Info("removed %d temporary files for %s", n, jobID)
		}
	}
	e.tracker.Clear(jobID)

	if out.status == model.JobStatusDone {
		log.Info("CONVERSION_COMPLETE: %s", jobID)
	} else {
		log.Error("CONVERSION_FAILED: %s: %s", jobID, out.message)
		e.notifier.Notify(notify.Failure(jobID, out.message))
	}

	if ctx.Err() != nil {
		// shutting down: keep the queue for the next start
		if err := e.queue.Complete(wctx, jobID, out.status, out.message); err != nil {
			log.Error("failed to complete %s: %v", jobID, err)
		}
		return ""
	}

	next, err := e.queue.Finish(wctx, jobID, out.status, out.message)
	if err != nil {
		log.Error("failed to advance queue after %s: %v", jobID, err)
		return ""
	}
	return next
}

// jobLogger opens the per-job log file, mirrored to the service log
func (e *Executor) jobLogger(jobID string) (*logging.Logger, func()) {
	if err := e.cfg.EnsureJobLogDir(jobID); err != nil {
		e.logger.Warn("failed to create log directory for %s: %v", jobID, err)
		return e.logger, func() {}
	}
	l, err := logging.NewForJob(e.cfg.JobLogPath(jobID), false, e.logger)
	if err != nil {
		e.logger.Warn("failed to open job log for %s: %v", jobID, err)
		return e.logger, func() {}
	}
	return l, func() { l.Close() }
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// toolLog opens the raw log for one tool invocation
func (e *Executor) toolLog(jobID, tool string) io.WriteCloser {
	path := e.cfg.ToolLogPath(jobID, tool)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nopWriteCloser{io.Discard}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nopWriteCloser{io.Discard}
	}
	return f
}
