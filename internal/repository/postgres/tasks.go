package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ignite/adpilot/internal/scaling"
)

// TaskRepo stores scaling task progress records.
type TaskRepo struct{ db *sql.DB }

// NewTaskRepo creates a Postgres-backed task repository.
func NewTaskRepo(db *sql.DB) *TaskRepo { return &TaskRepo{db: db} }

// CreateTask inserts a fresh task record.
func (r *TaskRepo) CreateTask(ctx context.Context, task *scaling.Task) error {
	errsJSON, err := json.Marshal(task.Errors)
	if err != nil {
		return fmt.Errorf("encode task errors: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scaling_tasks
			(id, type, config_id, status, total_operations, completed_operations,
			 successful_operations, failed_operations, current_group_id,
			 current_group_name, errors, last_error, created_at, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, task.ID, task.Type, task.ConfigID, task.Status,
		task.TotalOperations, task.CompletedOperations,
		task.SuccessfulOperations, task.FailedOperations,
		task.CurrentGroupID, task.CurrentGroupName,
		errsJSON, task.LastError, task.CreatedAt, task.StartedAt, task.FinishedAt)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// UpdateTask persists the task's current progress. Called after every
// operation, so the row always reflects the live run.
func (r *TaskRepo) UpdateTask(ctx context.Context, task *scaling.Task) error {
	errsJSON, err := json.Marshal(task.Errors)
	if err != nil {
		return fmt.Errorf("encode task errors: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE scaling_tasks
		SET status = $1, total_operations = $2, completed_operations = $3,
		    successful_operations = $4, failed_operations = $5,
		    current_group_id = $6, current_group_name = $7,
		    errors = $8, last_error = $9, started_at = $10, finished_at = $11
		WHERE id = $12
	`, task.Status, task.TotalOperations, task.CompletedOperations,
		task.SuccessfulOperations, task.FailedOperations,
		task.CurrentGroupID, task.CurrentGroupName,
		errsJSON, task.LastError, task.StartedAt, task.FinishedAt, task.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTask loads one task by id.
func (r *TaskRepo) GetTask(ctx context.Context, id string) (*scaling.Task, error) {
	task := &scaling.Task{}
	var errsJSON []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, type, config_id, status, total_operations, completed_operations,
		       successful_operations, failed_operations, current_group_id,
		       COALESCE(current_group_name,''), errors, COALESCE(last_error,''),
		       created_at, started_at, finished_at
		FROM scaling_tasks
		WHERE id = $1
	`, id).Scan(
		&task.ID, &task.Type, &task.ConfigID, &task.Status,
		&task.TotalOperations, &task.CompletedOperations,
		&task.SuccessfulOperations, &task.FailedOperations,
		&task.CurrentGroupID, &task.CurrentGroupName,
		&errsJSON, &task.LastError,
		&task.CreatedAt, &task.StartedAt, &task.FinishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if len(errsJSON) > 0 {
		if err := json.Unmarshal(errsJSON, &task.Errors); err != nil {
			return nil, fmt.Errorf("decode task errors: %w", err)
		}
	}
	return task, nil
}

// ListRecentTasks returns the newest tasks first.
func (r *TaskRepo) ListRecentTasks(ctx context.Context, limit int) ([]scaling.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, config_id, status, total_operations, completed_operations,
		       successful_operations, failed_operations, COALESCE(last_error,''),
		       created_at, started_at, finished_at
		FROM scaling_tasks
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []scaling.Task
	for rows.Next() {
		var task scaling.Task
		if err := rows.Scan(
			&task.ID, &task.Type, &task.ConfigID, &task.Status,
			&task.TotalOperations, &task.CompletedOperations,
			&task.SuccessfulOperations, &task.FailedOperations,
			&task.LastError, &task.CreatedAt, &task.StartedAt, &task.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, task)
	}
	return out, rows.Err()
}
