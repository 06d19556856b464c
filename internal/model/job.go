package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of a conversion job
type JobStatus string

const (
	JobStatusNew        JobStatus = "NEW"
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusDone       JobStatus = "DONE"
	JobStatusError      JobStatus = "ERROR"
)

// AllJobStatuses lists every job status in lifecycle order
var AllJobStatuses = []JobStatus{
	JobStatusNew,
	JobStatusQueued,
	JobStatusInProgress,
	JobStatusDone,
	JobStatusError,
}

// Valid reports whether s is a known status
func (s JobStatus) Valid() bool {
	for _, known := range AllJobStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal returns true for statuses a finished execution ends in
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// CanSubmit returns true if a job in this status may be queued or started
func (s JobStatus) CanSubmit() bool {
	return s == JobStatusNew || s == JobStatusError
}

// transitions lists the allowed next statuses for each status.
// IN_PROGRESS -> ERROR also covers the reconciler.
var transitions = map[JobStatus][]JobStatus{
	JobStatusNew:        {JobStatusQueued, JobStatusInProgress},
	JobStatusError:      {JobStatusQueued, JobStatusInProgress},
	JobStatusQueued:     {JobStatusInProgress, JobStatusNew},
	JobStatusInProgress: {JobStatusDone, JobStatusError},
	JobStatusDone:       nil,
}

// CanTransition reports whether a job may move from one status to another
func CanTransition(from, to JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidTransition wrapped with context when
// the move is not allowed
func ValidateTransition(jobID string, from, to JobStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: job %s cannot move from %s to %s", ErrInvalidTransition, jobID, from, to)
}

// Job represents one media file to be converted into an HLS quality ladder
type Job struct {
	ID           string     `json:"id"`
	Filename     string     `json:"filename"`
	Subdirectory string     `json:"subdirectory,omitempty"` // relative folder under the input root, empty for the root
	SourcePath   string     `json:"source_path"`
	FileSize     int64      `json:"file_size"`
	Resolution   string     `json:"resolution,omitempty"` // "WxH", empty until probed
	Status       JobStatus  `json:"status"`
	Progress     int        `json:"progress"`
	WorkerID     string     `json:"worker_id,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// IsActive returns true if the job is queued or running
func (j *Job) IsActive() bool {
	return j.Status == JobStatusQueued || j.Status == JobStatusInProgress
}

// Duration returns the wall time of the last execution, or zero if not completed
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// OutputFolderName returns the folder holding the job's renditions
func (j *Job) OutputFolderName() string {
	if j.Subdirectory == "" {
		return j.ID
	}
	clean := strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(j.Subdirectory)
	return j.ID + "_" + clean
}

// Dimensions parses Resolution into width and height
func (j *Job) Dimensions() (width, height int, ok bool) {
	return ParseResolution(j.Resolution)
}

// ParseResolution parses a "WxH" string. Zero or negative sizes are rejected.
func ParseResolution(res string) (width, height int, ok bool) {
	w, h, found := strings.Cut(strings.TrimSpace(res), "x")
	if !found {
		return 0, 0, false
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return 0, 0, false
	}
	height, err = strconv.Atoi(h)
	if err != nil || height <= 0 {
		return 0, 0, false
	}
	return width, height, true
}

// FormatResolution renders width and height as "WxH"
func FormatResolution(width, height int) string {
	return fmt.Sprintf("%dx%d", width, height)
}

// TaskStatus represents the state of a single quality rendition
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusDone       TaskStatus = "DONE"
	TaskStatusError      TaskStatus = "ERROR"
)

// QualityTask is one target rendition of a job
type QualityTask struct {
	ID           int64      `json:"id"`
	JobID        string     `json:"job_id"`
	Quality      Quality    `json:"quality"`
	Position     int        `json:"position"` // plan order, starting at 0
	Status       TaskStatus `json:"status"`
	Progress     int        `json:"progress"`
	OutputPath   string     `json:"output_path,omitempty"`
	SegmentCount int        `json:"segment_count"`
	Duration     float64    `json:"duration"` // seconds
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// QueueEntry is a job's position in the admission queue. Positions start at 1.
type QueueEntry struct {
	JobID     string    `json:"job_id"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}
