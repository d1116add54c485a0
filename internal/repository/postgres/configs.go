package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/adpilot/internal/platform"
	"github.com/ignite/adpilot/internal/scaling"
)

// ConfigRepo stores scaling automation configs.
type ConfigRepo struct{ db *sql.DB }

// NewConfigRepo creates a Postgres-backed scaling config repository.
func NewConfigRepo(db *sql.DB) *ConfigRepo { return &ConfigRepo{db: db} }

const configColumns = `
	id, name, enabled, scheduled_enabled, COALESCE(schedule_time,''),
	account_ids, conditions, duplicates_count, new_budget,
	COALESCE(new_name_template,''), lookback_days,
	auto_activate, activate_positive_banners,
	duplicate_negative_banners, activate_negative_banners,
	use_leadstech_roi`

func scanConfig(scan func(dest ...interface{}) error) (scaling.Config, error) {
	var (
		cfg      scaling.Config
		accounts pq.Int64Array
		condJSON []byte
		budget   sql.NullFloat64
	)
	err := scan(
		&cfg.ID, &cfg.Name, &cfg.Enabled, &cfg.ScheduledEnabled, &cfg.ScheduleTime,
		&accounts, &condJSON, &cfg.DuplicatesCount, &budget,
		&cfg.NewNameTemplate, &cfg.LookbackDays,
		&cfg.AutoActivate, &cfg.ActivatePositiveBanners,
		&cfg.DuplicateNegativeBanners, &cfg.ActivateNegativeBanners,
		&cfg.UseLeadstechROI,
	)
	if err != nil {
		return cfg, err
	}
	cfg.AccountIDs = []int64(accounts)
	if budget.Valid {
		cfg.NewBudget = &budget.Float64
	}
	if len(condJSON) > 0 {
		if err := json.Unmarshal(condJSON, &cfg.Conditions); err != nil {
			return cfg, fmt.Errorf("decode config %d conditions: %w", cfg.ID, err)
		}
	}
	return cfg, nil
}

// GetConfig loads one config by id.
func (r *ConfigRepo) GetConfig(ctx context.Context, id int64) (*scaling.Config, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+configColumns+` FROM scaling_configs WHERE id = $1`, id)
	cfg, err := scanConfig(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get config: %w", err)
	}
	return &cfg, nil
}

// ListEnabledConfigs returns every enabled config.
func (r *ConfigRepo) ListEnabledConfigs(ctx context.Context) ([]scaling.Config, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+configColumns+` FROM scaling_configs WHERE enabled = true ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}
	defer rows.Close()

	var out []scaling.Config
	for rows.Next() {
		cfg, err := scanConfig(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan config: %w", err)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// ListScheduledConfigs returns enabled configs with daily scheduling on.
func (r *ConfigRepo) ListScheduledConfigs(ctx context.Context) ([]scaling.Config, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+configColumns+` FROM scaling_configs
		 WHERE enabled = true AND scheduled_enabled = true ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list scheduled configs: %w", err)
	}
	defer rows.Close()

	var out []scaling.Config
	for rows.Next() {
		cfg, err := scanConfig(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan config: %w", err)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// AccountRepo stores advertiser accounts and their platform tokens.
type AccountRepo struct{ db *sql.DB }

// NewAccountRepo creates a Postgres-backed account repository.
func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{db: db} }

// ListAccounts returns every account the engine operates on.
func (r *AccountRepo) ListAccounts(ctx context.Context) ([]platform.Account, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, access_token FROM accounts ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []platform.Account
	for rows.Next() {
		var a platform.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.AccessToken); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
