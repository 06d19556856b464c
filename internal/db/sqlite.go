package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"path"
	"strings"
	"time"

	"github.com/cuivienor/hls-ladder/internal/model"
	"github.com/mattn/go-sqlite3"
)

// maxIDAttempts bounds the collision-retry loop when assigning job ids
const maxIDAttempts = 100

// SQLiteRepository implements Repository using SQLite
type SQLiteRepository struct {
	db    *DB
	newID func() string
}

// NewSQLiteRepository creates a new SQLite repository
func NewSQLiteRepository(db *DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, newID: randomJobID}
}

// randomJobID returns "MOV" followed by 5 or 6 digits
func randomJobID() string {
	return fmt.Sprintf("MOV%d", 10000+rand.IntN(990000))
}

const jobColumns = `id, filename, subdirectory, source_path, file_size, resolution, status,
	progress, worker_id, error_message, created_at, started_at, completed_at`

// CreateJob inserts a NEW job, assigning a collision-checked id when job.ID is empty
func (r *SQLiteRepository) CreateJob(ctx context.Context, job *model.Job) error {
	if job.Status == "" {
		job.Status = model.JobStatusNew
	}
	now := time.Now().UTC()

	return r.withTx(ctx, func(tx *sql.Tx) error {
		if job.ID == "" {
			id, err := r.freeID(ctx, tx)
			if err != nil {
				return err
			}
			job.ID = id
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO jobs (id, filename, subdirectory, source_path, file_size, resolution, status, progress, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			job.ID,
			job.Filename,
			job.Subdirectory,
			job.SourcePath,
			job.FileSize,
			nullString(job.Resolution),
			job.Status,
			job.Progress,
			formatTime(now),
		)
		if err != nil {
			if isConstraintError(err) && strings.Contains(err.Error(), "jobs.filename") {
				return fmt.Errorf("%w: %s", model.ErrAlreadyRegistered, path.Join(job.Subdirectory, job.Filename))
			}
			return fmt.Errorf("failed to insert job: %w", err)
		}
		job.CreatedAt = now.Truncate(time.Second)
		return nil
	})
}

func (r *SQLiteRepository) freeID(ctx context.Context, tx *sql.Tx) (string, error) {
	for range maxIDAttempts {
		id := r.newID()
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE id = ?`, id).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("failed to check job id: %w", err)
		}
		if exists == 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("failed to allocate a free job id after %d attempts", maxIDAttempts)
}

// GetJob retrieves a job by ID
func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*model.Job, error) {
	row := r.db.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// FindJobBySource retrieves the job for a (filename, subdirectory) pair
func (r *SQLiteRepository) FindJobBySource(ctx context.Context, filename, subdirectory string) (*model.Job, error) {
	row := r.db.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE filename = ? AND subdirectory = ?`,
		filename, subdirectory)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find job by source: %w", err)
	}
	return job, nil
}

// GetActiveJob returns the single IN_PROGRESS job, if any
func (r *SQLiteRepository) GetActiveJob(ctx context.Context) (*model.Job, error) {
	row := r.db.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ?`, model.JobStatusInProgress)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active job: %w", err)
	}
	return job, nil
}

// ListJobs lists jobs ordered by creation time
func (r *SQLiteRepository) ListJobs(ctx context.Context, opts ListOptions) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []interface{}

	if opts.Status != nil {
		query += ` WHERE status = ?`
		args = append(args, *opts.Status)
	}
	query += ` ORDER BY created_at, id`

	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := r.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// CountJobsByStatus returns the number of jobs in each status
func (r *SQLiteRepository) CountJobsByStatus(ctx context.Context) (map[model.JobStatus]int, error) {
	rows, err := r.db.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.JobStatus]int, len(model.AllJobStatuses))
	for _, s := range model.AllJobStatuses {
		counts[s] = 0
	}
	for rows.Next() {
		var status model.JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// UpdateJobResolution stores the probed source resolution
func (r *SQLiteRepository) UpdateJobResolution(ctx context.Context, id, resolution string) error {
	_, err := r.db.db.ExecContext(ctx,
		`UPDATE jobs SET resolution = ? WHERE id = ?`, nullString(resolution), id)
	if err != nil {
		return fmt.Errorf("failed to update job resolution: %w", err)
	}
	return nil
}

// UpdateJobProgress updates a job's overall progress percentage
func (r *SQLiteRepository) UpdateJobProgress(ctx context.Context, id string, progress int) error {
	_, err := r.db.db.ExecContext(ctx,
		`UPDATE jobs SET progress = ? WHERE id = ?`, clampPercent(progress), id)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

// UpdateJobStatus moves a job to status after validating the transition
func (r *SQLiteRepository) UpdateJobStatus(ctx context.Context, id string, status model.JobStatus, errorMsg string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		current, err := jobStatusTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := model.ValidateTransition(id, current, status); err != nil {
			return err
		}

		var completedAt interface{}
		if status.IsTerminal() {
			completedAt = formatTime(time.Now().UTC())
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, error_message = ?, completed_at = COALESCE(?, completed_at)
			WHERE id = ?
		`, status, nullString(errorMsg), completedAt, id)
		if err != nil {
			return fmt.Errorf("failed to update job status: %w", err)
		}
		return nil
	})
}

// MarkJobStarted records the executing worker and resets progress for an admitted job
func (r *SQLiteRepository) MarkJobStarted(ctx context.Context, id, workerID string) error {
	result, err := r.db.db.ExecContext(ctx, `
		UPDATE jobs SET worker_id = ?, progress = 0, error_message = NULL, completed_at = NULL
		WHERE id = ? AND status = ?
	`, workerID, id, model.JobStatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to mark job started: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: job %s is not in progress", model.ErrInvalidTransition, id)
	}
	return nil
}

// FinishJob writes the terminal status of an IN_PROGRESS job with progress 100
func (r *SQLiteRepository) FinishJob(ctx context.Context, id string, status model.JobStatus, errorMsg string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		current, err := jobStatusTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := model.ValidateTransition(id, current, status); err != nil {
			return err
		}
		if !status.IsTerminal() {
			return fmt.Errorf("%w: %s is not a terminal status", model.ErrInvalidTransition, status)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, progress = 100, error_message = ?, completed_at = ?
			WHERE id = ?
		`, status, nullString(errorMsg), formatTime(time.Now().UTC()), id)
		if err != nil {
			return fmt.Errorf("failed to finish job: %w", err)
		}
		return nil
	})
}

// DeleteJob removes a job with its tasks and queue entry. Running jobs are rejected.
func (r *SQLiteRepository) DeleteJob(ctx context.Context, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		current, err := jobStatusTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == model.JobStatusInProgress {
			return fmt.Errorf("%w: job %s is in progress", model.ErrInvalidTransition, id)
		}
		if _, err := removeEntryTx(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete job: %w", err)
		}
		return nil
	})
}

// ResetStuckJobs forces every IN_PROGRESS job except exceptID to ERROR with progress 0
func (r *SQLiteRepository) ResetStuckJobs(ctx context.Context, exceptID, message string) ([]string, error) {
	var ids []string
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM jobs WHERE status = ? AND id != ?`, model.JobStatusInProgress, exceptID)
		if err != nil {
			return fmt.Errorf("failed to find stuck jobs: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan stuck job: %w", err)
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		now := formatTime(time.Now().UTC())
		for _, id := range ids {
			_, err := tx.ExecContext(ctx, `
				UPDATE jobs SET status = ?, progress = 0, error_message = ?, completed_at = ?
				WHERE id = ?
			`, model.JobStatusError, message, now, id)
			if err != nil {
				return fmt.Errorf("failed to reset job %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// withTx runs fn inside a transaction, committing only when fn succeeds
func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func jobStatusTx(ctx context.Context, tx *sql.Tx, id string) (model.JobStatus, error) {
	var status model.JobStatus
	err := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read job status: %w", err)
	}
	return status, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var job model.Job
	var resolution, workerID, errorMsg sql.NullString
	var createdAt string
	var startedAt, completedAt sql.NullString

	err := row.Scan(
		&job.ID,
		&job.Filename,
		&job.Subdirectory,
		&job.SourcePath,
		&job.FileSize,
		&resolution,
		&job.Status,
		&job.Progress,
		&workerID,
		&errorMsg,
		&createdAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Resolution = resolution.String
	job.WorkerID = workerID.String
	job.ErrorMessage = errorMsg.String
	job.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	job.StartedAt = parseNullTime(startedAt)
	job.CompletedAt = parseNullTime(completedAt)

	return &job, nil
}

func isConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func clampPercent(p int) int {
	return max(0, min(100, p))
}
