package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cuivienor/hls-ladder/internal/model"
)

// ReplaceQualityTasks discards the job's previous task set and creates one
// PENDING task per quality, in plan order
func (r *SQLiteRepository) ReplaceQualityTasks(ctx context.Context, jobID string, qualities []model.Quality) ([]model.QualityTask, error) {
	now := time.Now().UTC()
	tasks := make([]model.QualityTask, 0, len(qualities))

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM quality_tasks WHERE job_id = ?`, jobID); err != nil {
			return fmt.Errorf("failed to clear quality tasks: %w", err)
		}

		for i, q := range qualities {
			result, err := tx.ExecContext(ctx, `
				INSERT INTO quality_tasks (job_id, quality, position, status, progress, created_at)
				VALUES (?, ?, ?, ?, 0, ?)
			`, jobID, q, i, model.TaskStatusPending, formatTime(now))
			if err != nil {
				return fmt.Errorf("failed to insert quality task: %w", err)
			}
			id, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to get last insert id: %w", err)
			}
			tasks = append(tasks, model.QualityTask{
				ID:        id,
				JobID:     jobID,
				Quality:   q,
				Position:  i,
				Status:    model.TaskStatusPending,
				CreatedAt: now.Truncate(time.Second),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListQualityTasks lists a job's tasks in plan order
func (r *SQLiteRepository) ListQualityTasks(ctx context.Context, jobID string) ([]model.QualityTask, error) {
	rows, err := r.db.db.QueryContext(ctx, `
		SELECT id, job_id, quality, position, status, progress, output_path, segment_count,
			duration, error_message, created_at, completed_at
		FROM quality_tasks
		WHERE job_id = ?
		ORDER BY position
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quality tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.QualityTask
	for rows.Next() {
		var task model.QualityTask
		var outputPath, errorMsg, completedAt sql.NullString
		var createdAt string

		if err := rows.Scan(
			&task.ID,
			&task.JobID,
			&task.Quality,
			&task.Position,
			&task.Status,
			&task.Progress,
			&outputPath,
			&task.SegmentCount,
			&task.Duration,
			&errorMsg,
			&createdAt,
			&completedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan quality task: %w", err)
		}

		task.OutputPath = outputPath.String
		task.ErrorMessage = errorMsg.String
		task.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		task.CompletedAt = parseNullTime(completedAt)
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// UpdateQualityTask persists the mutable fields of a task
func (r *SQLiteRepository) UpdateQualityTask(ctx context.Context, task *model.QualityTask) error {
	var completedAt interface{}
	if task.CompletedAt != nil {
		completedAt = formatTime(*task.CompletedAt)
	}

	_, err := r.db.db.ExecContext(ctx, `
		UPDATE quality_tasks
		SET status = ?, progress = ?, output_path = ?, segment_count = ?, duration = ?,
			error_message = ?, completed_at = ?
		WHERE id = ?
	`,
		task.Status,
		clampPercent(task.Progress),
		nullString(task.OutputPath),
		task.SegmentCount,
		task.Duration,
		nullString(task.ErrorMessage),
		completedAt,
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update quality task: %w", err)
	}
	return nil
}
