package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/adpilot/internal/scaling"
)

// LogRepo stores the append-only per-operation scaling log.
type LogRepo struct{ db *sql.DB }

// NewLogRepo creates a Postgres-backed scaling log repository.
func NewLogRepo(db *sql.DB) *LogRepo { return &LogRepo{db: db} }

// InsertScalingLog appends one duplication log row and fills in its id.
func (r *LogRepo) InsertScalingLog(ctx context.Context, entry *scaling.Log) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO scaling_logs
			(task_id, config_id, account_id, source_group_id, source_group_name,
			 new_group_id, new_group_name, copy_index, success, error,
			 total_banners, duplicated_banners, positive_banner_ids,
			 negative_banner_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`, entry.TaskID, entry.ConfigID, entry.AccountID,
		entry.SourceGroupID, entry.SourceGroupName,
		entry.NewGroupID, entry.NewGroupName, entry.CopyIndex,
		entry.Success, entry.Error,
		entry.TotalBanners, entry.DuplicatedBanners,
		pq.Array(entry.PositiveBannerIDs), pq.Array(entry.NegativeBannerIDs),
		entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("insert scaling log: %w", err)
	}
	return nil
}

// ListTaskLogs returns a task's log rows in operation order.
func (r *LogRepo) ListTaskLogs(ctx context.Context, taskID string) ([]scaling.Log, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, task_id, config_id, account_id, source_group_id,
		       COALESCE(source_group_name,''), new_group_id,
		       COALESCE(new_group_name,''), copy_index, success,
		       COALESCE(error,''), total_banners, duplicated_banners,
		       positive_banner_ids, negative_banner_ids, created_at
		FROM scaling_logs
		WHERE task_id = $1
		ORDER BY id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task logs: %w", err)
	}
	defer rows.Close()

	var out []scaling.Log
	for rows.Next() {
		var (
			entry    scaling.Log
			positive pq.Int64Array
			negative pq.Int64Array
		)
		if err := rows.Scan(
			&entry.ID, &entry.TaskID, &entry.ConfigID, &entry.AccountID,
			&entry.SourceGroupID, &entry.SourceGroupName,
			&entry.NewGroupID, &entry.NewGroupName, &entry.CopyIndex,
			&entry.Success, &entry.Error,
			&entry.TotalBanners, &entry.DuplicatedBanners,
			&positive, &negative, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan scaling log: %w", err)
		}
		entry.PositiveBannerIDs = []int64(positive)
		entry.NegativeBannerIDs = []int64(negative)
		out = append(out, entry)
	}
	return out, rows.Err()
}

var _ scaling.LogStore = (*LogRepo)(nil)
