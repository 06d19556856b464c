// Package queue implements admission control for the single execution slot
// and the FIFO queue of waiting jobs.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuivienor/hls-ladder/internal/db"
	"github.com/cuivienor/hls-ladder/internal/logging"
	"github.com/cuivienor/hls-ladder/internal/model"
	"github.com/cuivienor/hls-ladder/internal/notify"
)

// ResetMessage is recorded on jobs forced to ERROR by ResetStuck
const ResetMessage = "reset after interrupted conversion"

// Admission describes the outcome of Submit
type Admission struct {
	Started  bool
	Position int
}

// Controller serialises every operation that affects the execution slot or
// queue order. Each operation is one store transaction taken under mu, so a
// completion, a submission and the reconciler never interleave.
type Controller struct {
	mu sync.Mutex
	// live is the job this process admitted and has not completed yet
	live     string
	repo     db.Repository
	notifier notify.Notifier
	logger   *logging.Logger
	now      func() time.Time
}

// NewController creates a controller over repo
func NewController(repo db.Repository, notifier notify.Notifier, logger *logging.Logger) *Controller {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Controller{repo: repo, notifier: notifier, logger: logger, now: time.Now}
}

// Enqueue appends a NEW or ERROR job to the queue and returns its position
func (c *Controller) Enqueue(ctx context.Context, jobID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enqueueLocked(ctx, jobID)
}

func (c *Controller) enqueueLocked(ctx context.Context, jobID string) (int, error) {
	pos, err := c.repo.EnqueueJob(ctx, jobID)
	if err != nil {
		return 0, err
	}
	c.logger.Info("QUEUED: %s at position %d", jobID, pos)
	c.notifier.Notify(notify.StatusChanged(jobID, model.JobStatusQueued, 0))
	return pos, nil
}

// TryAdmit claims the execution slot for jobID if it is free
func (c *Controller) TryAdmit(ctx context.Context, jobID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.admitLocked(ctx, jobID)
}

func (c *Controller) admitLocked(ctx context.Context, jobID string) (bool, error) {
	ok, err := c.repo.AdmitJob(ctx, jobID, c.now().UTC())
	if err != nil {
		if errors.Is(err, model.ErrAdmissionConflict) {
			return false, nil
		}
		return false, err
	}
	if ok {
		c.live = jobID
		c.logger.Info("ADMITTED: %s", jobID)
		c.notifier.Notify(notify.StatusChanged(jobID, model.JobStatusInProgress, 0))
	}
	return ok, nil
}

// Live returns the job admitted by this controller that has not completed,
// or "" when the slot is free or held by another process
func (c *Controller) Live() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// Forget stops protecting jobID from ResetStuck. Used when an admitted job
// could not be handed to the executor.
func (c *Controller) Forget(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live == jobID {
		c.live = ""
	}
}

// Submit starts jobID immediately when the slot is free, otherwise queues it
func (c *Controller) Submit(ctx context.Context, jobID string) (Admission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	job, err := c.repo.GetJob(ctx, jobID)
	if err != nil {
		return Admission{}, err
	}
	if job == nil {
		return Admission{}, fmt.Errorf("%w: %s", model.ErrNotFound, jobID)
	}
	if job.Status == model.JobStatusQueued {
		return Admission{}, fmt.Errorf("%w: %s", model.ErrAlreadyQueued, jobID)
	}
	if !job.Status.CanSubmit() {
		return Admission{}, fmt.Errorf("%w: job %s is %s", model.ErrInvalidTransition, jobID, job.Status)
	}

	started, err := c.admitLocked(ctx, jobID)
	if err != nil {
		return Admission{}, err
	}
	if started {
		return Admission{Started: true}, nil
	}

	pos, err := c.enqueueLocked(ctx, jobID)
	if err != nil {
		return Admission{}, err
	}
	return Admission{Position: pos}, nil
}

// Cancel removes a QUEUED job from the queue and reverts it to NEW
func (c *Controller) Cancel(ctx context.Context, jobID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.repo.CancelQueuedJob(ctx, jobID); err != nil {
		return err
	}
	c.logger.Info("CANCELLED: %s", jobID)
	c.notifier.Notify(notify.StatusChanged(jobID, model.JobStatusNew, 0))
	return nil
}

// Remove deletes a job that is not running, keeping queue positions dense
func (c *Controller) Remove(ctx context.Context, jobID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.repo.DeleteJob(ctx, jobID); err != nil {
		return err
	}
	c.logger.Info("DELETED: %s", jobID)
	return nil
}

// ReleaseAndAdvance detaches the finished job from the queue, admits the
// queue head and returns its id, or "" when nothing was admitted
func (c *Controller) ReleaseAndAdvance(ctx context.Context, finishedID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releaseAndAdvanceLocked(ctx, finishedID)
}

func (c *Controller) releaseAndAdvanceLocked(ctx context.Context, finishedID string) (string, error) {
	if finishedID != "" {
		if _, err := c.repo.RemoveQueueEntry(ctx, finishedID); err != nil {
			c.logger.Error("failed to remove queue entry for %s: %v", finishedID, err)
		}
	}
	return c.advanceLocked(ctx)
}

// Advance admits the queue head if the slot is free
func (c *Controller) Advance(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.advanceLocked(ctx)
}

func (c *Controller) advanceLocked(ctx context.Context) (string, error) {
	for {
		head, err := c.repo.NextQueued(ctx)
		if err != nil {
			return "", err
		}
		if head == nil {
			return "", nil
		}

		ok, err := c.admitLocked(ctx, head.JobID)
		if errors.Is(err, model.ErrInvalidTransition) || errors.Is(err, model.ErrNotFound) {
			// a stale entry must not block the jobs behind it
			c.logger.Warn("dropping stale queue entry %s: %v", head.JobID, err)
			if _, err := c.repo.RemoveQueueEntry(ctx, head.JobID); err != nil {
				return "", err
			}
			continue
		}
		if err != nil {
			return "", err
		}
		if !ok {
			return "", nil
		}
		return head.JobID, nil
	}
}

// Finish writes the terminal status of the running job and then releases the
// slot to the next queued job, whose id is returned. The release happens even
// when the terminal write fails.
func (c *Controller) Finish(ctx context.Context, jobID string, status model.JobStatus, message string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.completeLocked(ctx, jobID, status, message)
	return c.releaseAndAdvanceLocked(ctx, jobID)
}

// Complete writes the terminal status and frees the slot without admitting
// the next job. Used on shutdown so waiting jobs keep their positions.
func (c *Controller) Complete(ctx context.Context, jobID string, status model.JobStatus, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.completeLocked(ctx, jobID, status, message)
	_, err := c.repo.RemoveQueueEntry(ctx, jobID)
	return err
}

func (c *Controller) completeLocked(ctx context.Context, jobID string, status model.JobStatus, message string) {
	if c.live == jobID {
		c.live = ""
	}
	if err := c.repo.FinishJob(ctx, jobID, status, message); err != nil {
		c.logger.Error("failed to write terminal state for %s: %v", jobID, err)
		status = model.JobStatusError
		if fallbackErr := c.repo.UpdateJobStatus(ctx, jobID, model.JobStatusError, message); fallbackErr != nil {
			c.logger.Error("failed to mark %s as ERROR: %v", jobID, fallbackErr)
		}
	}
	c.notifier.Notify(notify.StatusChanged(jobID, status, 100))
}

// ResetStuck forces every IN_PROGRESS job other than the live one to ERROR
// with progress 0, then admits the queue head if the slot became free. It
// returns the reset job ids and the id of the admitted job, if any.
func (c *Controller) ResetStuck(ctx context.Context) ([]string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.repo.ResetStuckJobs(ctx, c.live, ResetMessage)
	if err != nil {
		return nil, "", err
	}
	for _, id := range ids {
		c.logger.Warn("RESET_STUCK: %s forced to ERROR", id)
		c.notifier.Notify(notify.StatusChanged(id, model.JobStatusError, 0))
	}

	next, err := c.advanceLocked(ctx)
	if err != nil {
		return ids, "", err
	}
	return ids, next, nil
}
