package scaling

import (
	"context"
	"fmt"

	"github.com/ignite/adpilot/internal/metrics"
	"github.com/ignite/adpilot/internal/pkg/logger"
	"github.com/ignite/adpilot/internal/platform"
	"github.com/ignite/adpilot/internal/revenue"
	"github.com/ignite/adpilot/internal/rules"
)

// BannerClassification is the per-banner verdict inside a qualifying ad group.
type BannerClassification struct {
	Banner   platform.Banner
	Positive bool
	Snapshot metrics.Snapshot
}

// GroupPlan is one ad group selected for duplication together with the
// classification of its banners.
type GroupPlan struct {
	Account         platform.Account
	Group           platform.AdGroup
	Classifications []BannerClassification
	PositiveIDs     []int64
	NegativeIDs     []int64
}

// ClassifyError records a failure confined to one account or ad group.
// Classification continues with the remaining work.
type ClassifyError struct {
	AccountID int64
	GroupID   int64
	Err       string
}

// ClassificationResult is the outcome of one classification pass.
type ClassificationResult struct {
	Plans           []GroupPlan
	TotalBanners    int
	PositiveBanners int
	NegativeBanners int
	Errors          []ClassifyError
}

// Classifier decides which ad groups qualify for duplication under a scaling
// config and labels every banner inside them positive or negative.
type Classifier struct {
	client  platform.Client
	stats   *platform.StatsFetcher
	revenue revenue.Provider
}

// NewClassifier creates a classifier. The revenue provider may be nil when no
// config uses attribution-based ROI.
func NewClassifier(client platform.Client, stats *platform.StatsFetcher, rev revenue.Provider) *Classifier {
	return &Classifier{client: client, stats: stats, revenue: rev}
}

// Classify runs the classification pass for one config across the accounts in
// its scope. Account-level failures (bad token) and group-level failures are
// recorded and skipped; the only hard error is context cancellation.
func (c *Classifier) Classify(ctx context.Context, cfg Config, accounts []platform.Account, window platform.Window) (*ClassificationResult, error) {
	result := &ClassificationResult{}

	for _, account := range accounts {
		if !cfg.CoversAccount(account.ID) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		groups, err := c.client.FetchAdGroups(ctx, account.AccessToken, window)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Errors = append(result.Errors, ClassifyError{
				AccountID: account.ID,
				Err:       fmt.Sprintf("failed to fetch ad groups: %v", err),
			})
			logger.Warn("classification: account skipped", "account_id", account.ID, "error", err.Error())
			continue
		}

		for _, group := range groups {
			plan, cerr := c.classifyGroup(ctx, cfg, account, group, window)
			if cerr != nil {
				if ctx.Err() != nil {
					return result, ctx.Err()
				}
				result.Errors = append(result.Errors, *cerr)
				continue
			}
			if plan == nil {
				continue
			}
			result.Plans = append(result.Plans, *plan)
			result.TotalBanners += len(plan.Classifications)
			result.PositiveBanners += len(plan.PositiveIDs)
			result.NegativeBanners += len(plan.NegativeIDs)
		}
	}

	logger.Info("classification finished",
		"config_id", cfg.ID,
		"qualifying_groups", len(result.Plans),
		"banners", result.TotalBanners,
		"positive", result.PositiveBanners,
		"negative", result.NegativeBanners,
		"errors", len(result.Errors))
	return result, nil
}

// classifyGroup returns a plan for a qualifying group, nil for a group that
// does not qualify, or a ClassifyError for a group that could not be judged.
func (c *Classifier) classifyGroup(ctx context.Context, cfg Config, account platform.Account, group platform.AdGroup, window platform.Window) (*GroupPlan, *ClassifyError) {
	banners, err := c.client.FetchBanners(ctx, account.AccessToken, group.ID)
	if err != nil {
		return nil, &ClassifyError{AccountID: account.ID, GroupID: group.ID,
			Err: fmt.Sprintf("failed to fetch banners: %v", err)}
	}
	// A group with no banners cannot qualify.
	if len(banners) == 0 {
		return nil, nil
	}

	bannerIDs := make([]int64, len(banners))
	for i, b := range banners {
		bannerIDs[i] = b.ID
	}

	bannerStats, failedIDs, err := c.stats.Fetch(ctx, account.AccessToken, bannerIDs, window)
	if err != nil {
		return nil, &ClassifyError{AccountID: account.ID, GroupID: group.ID, Err: err.Error()}
	}
	if len(failedIDs) > 0 {
		logger.Warn("classification: stats missing for some banners",
			"account_id", account.ID, "group_id", group.ID, "failed", len(failedIDs))
	}

	var joined map[int64]revenue.Entry
	if cfg.UseLeadstechROI {
		if c.revenue == nil {
			return nil, &ClassifyError{AccountID: account.ID, GroupID: group.ID,
				Err: "config requires revenue join but no provider is configured"}
		}
		joined, err = c.revenue.ROIForBanners(ctx, []int64{account.ID}, bannerIDs, window)
		if err != nil {
			// Without the join every spend would collapse to the ROI sentinel
			// and misclassify the whole group; skip it instead.
			return nil, &ClassifyError{AccountID: account.ID, GroupID: group.ID,
				Err: fmt.Sprintf("revenue join failed: %v", err)}
		}
	}

	groupSnap := group.Stats.Snapshot()
	if cfg.UseLeadstechROI {
		if rev, ok := sumRevenue(joined, bannerIDs); ok {
			groupSnap = groupSnap.WithRevenue(rev)
		}
	}

	if !rules.AllMatch(cfg.Conditions, groupSnap) {
		return nil, nil
	}

	plan := &GroupPlan{Account: account, Group: group}
	for _, banner := range banners {
		snap := bannerStats[banner.ID].Snapshot()
		if entry, ok := joined[banner.ID]; ok {
			snap = snap.WithRevenue(entry.Revenue)
		}

		positive := c.isPositive(cfg, banner, snap)
		plan.Classifications = append(plan.Classifications, BannerClassification{
			Banner: banner, Positive: positive, Snapshot: snap,
		})
		if positive {
			plan.PositiveIDs = append(plan.PositiveIDs, banner.ID)
		} else {
			plan.NegativeIDs = append(plan.NegativeIDs, banner.ID)
		}
	}
	return plan, nil
}

// isPositive applies the config's condition set at banner granularity. A
// config without conditions falls back to "currently active".
func (c *Classifier) isPositive(cfg Config, banner platform.Banner, snap metrics.Snapshot) bool {
	if len(cfg.Conditions) == 0 {
		return banner.Status == platform.StatusActive
	}
	return rules.AllMatch(cfg.Conditions, snap)
}

func sumRevenue(entries map[int64]revenue.Entry, ids []int64) (float64, bool) {
	var total float64
	found := false
	for _, id := range ids {
		if e, ok := entries[id]; ok {
			total += e.Revenue
			found = true
		}
	}
	return total, found
}
