package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/adpilot/internal/audit"
)

// ActionRepo stores the banner action audit trail.
type ActionRepo struct{ db *sql.DB }

// NewActionRepo creates a Postgres-backed banner action repository.
func NewActionRepo(db *sql.DB) *ActionRepo { return &ActionRepo{db: db} }

// InsertBannerAction appends one audit row and fills in its id.
func (r *ActionRepo) InsertBannerAction(ctx context.Context, action *audit.BannerAction) error {
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}
	var revenue interface{}
	if action.Snapshot.Revenue != nil {
		revenue = *action.Snapshot.Revenue
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO banner_actions
			(account_id, campaign_id, ad_group_id, banner_id, action, reason,
			 spent, clicks, shows, goals, revenue, dry_run, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`, action.AccountID, action.CampaignID, action.AdGroupID, action.BannerID,
		action.Action, action.Reason,
		action.Snapshot.Spent, action.Snapshot.Clicks,
		action.Snapshot.Shows, action.Snapshot.Goals, revenue,
		action.DryRun, action.CreatedAt).Scan(&action.ID)
	if err != nil {
		return fmt.Errorf("insert banner action: %w", err)
	}
	return nil
}

// RecentBannerActions returns an account's audit rows since the cutoff,
// newest first.
func (r *ActionRepo) RecentBannerActions(ctx context.Context, accountID int64, since time.Time) ([]audit.BannerAction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, campaign_id, ad_group_id, banner_id, action,
		       COALESCE(reason,''), spent, clicks, shows, goals, revenue,
		       dry_run, created_at
		FROM banner_actions
		WHERE account_id = $1 AND created_at >= $2
		ORDER BY created_at DESC, id DESC
	`, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("list banner actions: %w", err)
	}
	defer rows.Close()

	var out []audit.BannerAction
	for rows.Next() {
		var (
			action  audit.BannerAction
			revenue sql.NullFloat64
		)
		if err := rows.Scan(
			&action.ID, &action.AccountID, &action.CampaignID,
			&action.AdGroupID, &action.BannerID, &action.Action,
			&action.Reason, &action.Snapshot.Spent, &action.Snapshot.Clicks,
			&action.Snapshot.Shows, &action.Snapshot.Goals, &revenue,
			&action.DryRun, &action.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan banner action: %w", err)
		}
		if revenue.Valid {
			action.Snapshot.Revenue = &revenue.Float64
		}
		out = append(out, action)
	}
	return out, rows.Err()
}
