package db

import (
	"context"
	"time"

	"github.com/cuivienor/hls-ladder/internal/model"
)

// Repository defines persistence operations for conversion jobs
type Repository interface {
	// Jobs
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	FindJobBySource(ctx context.Context, filename, subdirectory string) (*model.Job, error)
	GetActiveJob(ctx context.Context) (*model.Job, error)
	ListJobs(ctx context.Context, opts ListOptions) ([]model.Job, error)
	CountJobsByStatus(ctx context.Context) (map[model.JobStatus]int, error)
	UpdateJobResolution(ctx context.Context, id, resolution string) error
	UpdateJobProgress(ctx context.Context, id string, progress int) error
	UpdateJobStatus(ctx context.Context, id string, status model.JobStatus, errorMsg string) error
	MarkJobStarted(ctx context.Context, id, workerID string) error
	FinishJob(ctx context.Context, id string, status model.JobStatus, errorMsg string) error
	DeleteJob(ctx context.Context, id string) error
	ResetStuckJobs(ctx context.Context, exceptID, message string) ([]string, error)

	// Quality tasks
	ReplaceQualityTasks(ctx context.Context, jobID string, qualities []model.Quality) ([]model.QualityTask, error)
	ListQualityTasks(ctx context.Context, jobID string) ([]model.QualityTask, error)
	UpdateQualityTask(ctx context.Context, task *model.QualityTask) error

	// Queue
	EnqueueJob(ctx context.Context, jobID string) (int, error)
	CancelQueuedJob(ctx context.Context, jobID string) error
	AdmitJob(ctx context.Context, jobID string, now time.Time) (bool, error)
	RemoveQueueEntry(ctx context.Context, jobID string) (bool, error)
	NextQueued(ctx context.Context) (*model.QueueEntry, error)
	ListQueue(ctx context.Context) ([]model.QueueEntry, error)
	QueuePosition(ctx context.Context, jobID string) (int, error)
}

// ListOptions configures job listing
type ListOptions struct {
	Status *model.JobStatus
	Limit  int
	Offset int
}
