// Package audit defines the append-only record of banner state changes.
// Rows are written once at decision time and never mutated.
package audit

import (
	"time"

	"github.com/ignite/adpilot/internal/metrics"
)

// Action is the state change applied to a banner.
type Action string

const (
	ActionDisabled Action = "disabled"
	ActionEnabled  Action = "enabled"
)

// BannerAction captures one enable/disable decision: the metrics that drove
// it, the triggering reason, and whether it was a dry run (decision computed
// and recorded, no remote mutation issued).
type BannerAction struct {
	ID         int64
	AccountID  int64
	CampaignID int64
	AdGroupID  int64
	BannerID   int64
	Action     Action
	Reason     string
	Snapshot   metrics.Snapshot
	DryRun     bool
	CreatedAt  time.Time
}
