package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/adpilot/internal/scaling"
)

// ProcessRepo persists task liveness state; it is the authority the task
// registry caches in front of.
type ProcessRepo struct{ db *sql.DB }

// NewProcessRepo creates a Postgres-backed process state repository.
func NewProcessRepo(db *sql.DB) *ProcessRepo { return &ProcessRepo{db: db} }

var _ scaling.ProcessStore = (*ProcessRepo)(nil)

// UpsertProcess writes the task's status row. An empty type in the incoming
// state keeps the persisted type, so a cancellation issued by a process that
// never registered the task cannot blank it.
func (r *ProcessRepo) UpsertProcess(ctx context.Context, state scaling.ProcessState) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scaling_processes (task_id, type, status, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (task_id) DO UPDATE
		SET status = EXCLUDED.status,
		    updated_at = EXCLUDED.updated_at,
		    type = CASE WHEN EXCLUDED.type = '' THEN scaling_processes.type
		                ELSE EXCLUDED.type END
	`, state.TaskID, state.Type, state.Status, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert process: %w", err)
	}
	return nil
}

// ProcessStatus returns the persisted status for a task.
func (r *ProcessRepo) ProcessStatus(ctx context.Context, taskID string) (scaling.TaskStatus, bool, error) {
	var status scaling.TaskStatus
	err := r.db.QueryRowContext(ctx,
		`SELECT status FROM scaling_processes WHERE task_id = $1`, taskID,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("process status: %w", err)
	}
	return status, true, nil
}

// ListProcesses returns every process row in one of the given statuses.
func (r *ProcessRepo) ListProcesses(ctx context.Context, statuses ...scaling.TaskStatus) ([]scaling.ProcessState, error) {
	vals := make([]string, len(statuses))
	for i, s := range statuses {
		vals[i] = string(s)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT task_id, type, status, updated_at
		FROM scaling_processes
		WHERE status = ANY($1)
		ORDER BY updated_at
	`, pq.Array(vals))
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	defer rows.Close()

	var out []scaling.ProcessState
	for rows.Next() {
		var state scaling.ProcessState
		if err := rows.Scan(&state.TaskID, &state.Type, &state.Status, &state.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan process: %w", err)
		}
		out = append(out, state)
	}
	return out, rows.Err()
}
