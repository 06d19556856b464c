package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cuivienor/hls-ladder/internal/model"
)

// EnqueueJob appends a NEW or ERROR job to the end of the queue and marks it QUEUED
func (r *SQLiteRepository) EnqueueJob(ctx context.Context, jobID string) (int, error) {
	var position int
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		current, err := jobStatusTx(ctx, tx, jobID)
		if err != nil {
			return err
		}

		existing, err := entryPositionTx(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if existing > 0 {
			return fmt.Errorf("%w: %s at position %d", model.ErrAlreadyQueued, jobID, existing)
		}
		if err := model.ValidateTransition(jobID, current, model.JobStatusQueued); err != nil {
			return err
		}

		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position), 0) + 1 FROM queue_entries`).Scan(&position); err != nil {
			return fmt.Errorf("failed to compute queue position: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO queue_entries (job_id, position, created_at) VALUES (?, ?, ?)`,
			jobID, position, formatTime(time.Now().UTC()))
		if err != nil {
			return fmt.Errorf("failed to insert queue entry: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, progress = 0 WHERE id = ?`, model.JobStatusQueued, jobID)
		if err != nil {
			return fmt.Errorf("failed to mark job queued: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return position, nil
}

// CancelQueuedJob removes a QUEUED job from the queue and reverts it to NEW
func (r *SQLiteRepository) CancelQueuedJob(ctx context.Context, jobID string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		current, err := jobStatusTx(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if current != model.JobStatusQueued {
			return fmt.Errorf("%w: %s is %s", model.ErrNotQueued, jobID, current)
		}

		if _, err := removeEntryTx(ctx, tx, jobID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, progress = 0 WHERE id = ?`, model.JobStatusNew, jobID)
		if err != nil {
			return fmt.Errorf("failed to revert job status: %w", err)
		}
		return nil
	})
}

// AdmitJob claims the single execution slot for jobID. It returns false
// without changes when another job is already IN_PROGRESS.
func (r *SQLiteRepository) AdmitJob(ctx context.Context, jobID string, now time.Time) (bool, error) {
	admitted := false
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var active int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM jobs WHERE status = ?`, model.JobStatusInProgress).Scan(&active); err != nil {
			return fmt.Errorf("failed to check active job: %w", err)
		}
		if active > 0 {
			return nil
		}

		current, err := jobStatusTx(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if err := model.ValidateTransition(jobID, current, model.JobStatusInProgress); err != nil {
			return err
		}

		if _, err := removeEntryTx(ctx, tx, jobID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, progress = 0, started_at = ?, completed_at = NULL, error_message = NULL
			WHERE id = ?
		`, model.JobStatusInProgress, formatTime(now), jobID)
		if err != nil {
			if isConstraintError(err) {
				return fmt.Errorf("%w: admitting %s", model.ErrAdmissionConflict, jobID)
			}
			return fmt.Errorf("failed to admit job: %w", err)
		}
		admitted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return admitted, nil
}

// RemoveQueueEntry deletes a job's queue entry, if any, renumbering the rest
func (r *SQLiteRepository) RemoveQueueEntry(ctx context.Context, jobID string) (bool, error) {
	removed := false
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		removed, err = removeEntryTx(ctx, tx, jobID)
		return err
	})
	return removed, err
}

// NextQueued returns the entry at the head of the queue, or nil if empty
func (r *SQLiteRepository) NextQueued(ctx context.Context) (*model.QueueEntry, error) {
	var entry model.QueueEntry
	var createdAt string
	err := r.db.db.QueryRowContext(ctx, `
		SELECT job_id, position, created_at FROM queue_entries ORDER BY position LIMIT 1
	`).Scan(&entry.JobID, &entry.Position, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read queue head: %w", err)
	}
	entry.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &entry, nil
}

// ListQueue returns all queue entries ordered by position
func (r *SQLiteRepository) ListQueue(ctx context.Context) ([]model.QueueEntry, error) {
	rows, err := r.db.db.QueryContext(ctx,
		`SELECT job_id, position, created_at FROM queue_entries ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	defer rows.Close()

	var entries []model.QueueEntry
	for rows.Next() {
		var entry model.QueueEntry
		var createdAt string
		if err := rows.Scan(&entry.JobID, &entry.Position, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entry.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// QueuePosition returns the job's queue position, or 0 when it is not queued
func (r *SQLiteRepository) QueuePosition(ctx context.Context, jobID string) (int, error) {
	var position int
	err := r.db.db.QueryRowContext(ctx,
		`SELECT position FROM queue_entries WHERE job_id = ?`, jobID).Scan(&position)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get queue position: %w", err)
	}
	return position, nil
}

func entryPositionTx(ctx context.Context, tx *sql.Tx, jobID string) (int, error) {
	var position int
	err := tx.QueryRowContext(ctx,
		`SELECT position FROM queue_entries WHERE job_id = ?`, jobID).Scan(&position)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read queue entry: %w", err)
	}
	return position, nil
}

// removeEntryTx deletes the entry and closes the gap so positions stay 1..n
func removeEntryTx(ctx context.Context, tx *sql.Tx, jobID string) (bool, error) {
	position, err := entryPositionTx(ctx, tx, jobID)
	if err != nil {
		return false, err
	}
	if position == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM queue_entries WHERE job_id = ?`, jobID); err != nil {
		return false, fmt.Errorf("failed to delete queue entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE queue_entries SET position = position - 1 WHERE position > ?`, position); err != nil {
		return false, fmt.Errorf("failed to renumber queue: %w", err)
	}
	return true, nil
}
