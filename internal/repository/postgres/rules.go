// Package postgres implements the engine's persistence against PostgreSQL.
// Repositories are thin: one struct per aggregate over *sql.DB, condition
// sets and error lists stored as jsonb, id arrays as bigint[].
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/adpilot/internal/rules"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// RuleRepo stores the banner disable rules.
type RuleRepo struct{ db *sql.DB }

// NewRuleRepo creates a Postgres-backed rule repository.
func NewRuleRepo(db *sql.DB) *RuleRepo { return &RuleRepo{db: db} }

// ListRules returns every rule ordered by priority descending, ties by id.
func (r *RuleRepo) ListRules(ctx context.Context) ([]rules.Rule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, enabled, priority, conditions, account_ids,
		       COALESCE(roi_sub_field,''), created_at, updated_at
		FROM disable_rules
		ORDER BY priority DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []rules.Rule
	for rows.Next() {
		var (
			rule     rules.Rule
			condJSON []byte
			accounts pq.Int64Array
		)
		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Enabled, &rule.Priority,
			&condJSON, &accounts, &rule.ROISubField,
			&rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		if len(condJSON) > 0 {
			if err := json.Unmarshal(condJSON, &rule.Conditions); err != nil {
				return nil, fmt.Errorf("decode rule %d conditions: %w", rule.ID, err)
			}
		}
		rule.AccountIDs = []int64(accounts)
		out = append(out, rule)
	}
	return out, rows.Err()
}

// CreateRule inserts a rule and fills in its id.
func (r *RuleRepo) CreateRule(ctx context.Context, rule *rules.Rule) error {
	condJSON, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("encode conditions: %w", err)
	}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO disable_rules (name, enabled, priority, conditions, account_ids, roi_sub_field, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id
	`, rule.Name, rule.Enabled, rule.Priority, condJSON,
		pq.Array(rule.AccountIDs), rule.ROISubField).Scan(&rule.ID)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

// UpdateRule replaces a rule's mutable fields.
func (r *RuleRepo) UpdateRule(ctx context.Context, rule *rules.Rule) error {
	condJSON, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("encode conditions: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE disable_rules
		SET name = $1, enabled = $2, priority = $3, conditions = $4,
		    account_ids = $5, roi_sub_field = $6, updated_at = NOW()
		WHERE id = $7
	`, rule.Name, rule.Enabled, rule.Priority, condJSON,
		pq.Array(rule.AccountIDs), rule.ROISubField, rule.ID)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRule removes a rule.
func (r *RuleRepo) DeleteRule(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM disable_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
