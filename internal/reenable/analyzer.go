// Package reenable restores banners whose disable reason no longer holds.
// Two strategies exist: re-checking the disable rules against fresh metrics,
// and re-checking attribution ROI against a recovery threshold.
package reenable

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/adpilot/internal/audit"
	"github.com/ignite/adpilot/internal/metrics"
	"github.com/ignite/adpilot/internal/notify"
	"github.com/ignite/adpilot/internal/pkg/logger"
	"github.com/ignite/adpilot/internal/platform"
	"github.com/ignite/adpilot/internal/revenue"
	"github.com/ignite/adpilot/internal/rules"
)

// RuleStore loads the disable rules.
type RuleStore interface {
	ListRules(ctx context.Context) ([]rules.Rule, error)
}

// ActionStore reads and appends the banner action audit trail.
type ActionStore interface {
	RecentBannerActions(ctx context.Context, accountID int64, since time.Time) ([]audit.BannerAction, error)
	InsertBannerAction(ctx context.Context, action *audit.BannerAction) error
}

// RunError is a failure confined to one account or banner.
type RunError struct {
	AccountID int64
	BannerID  int64
	Err       string
}

// Summary aggregates one re-enable pass.
type Summary struct {
	AccountsChecked int
	Candidates      int
	BannersEnabled  int
	Errors          []RunError
}

// Analyzer decides which previously disabled banners come back.
type Analyzer struct {
	client   platform.Client
	stats    *platform.StatsFetcher
	revenue  revenue.Provider
	rules    RuleStore
	actions  ActionStore
	notifier notify.Notifier
	dryRun   bool
}

// NewAnalyzer creates a re-enable analyzer. With dryRun set, decisions are
// computed and recorded but no remote mutation is issued.
func NewAnalyzer(client platform.Client, stats *platform.StatsFetcher, rev revenue.Provider, ruleStore RuleStore, actions ActionStore, notifier notify.Notifier, dryRun bool) *Analyzer {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Analyzer{
		client:   client,
		stats:    stats,
		revenue:  rev,
		rules:    ruleStore,
		actions:  actions,
		notifier: notifier,
		dryRun:   dryRun,
	}
}

// ReenableByRules re-evaluates the disable rules for every banner whose
// latest audit action is a real (non-dry-run) disable since the cutoff.
// Banners that no longer match any rule are reactivated top down: campaign,
// then ad group, then banner, so the banner is never left active inside a
// blocked parent. A parent failure aborts that banner's chain.
func (a *Analyzer) ReenableByRules(ctx context.Context, accounts []platform.Account, window platform.Window, since time.Time) (*Summary, error) {
	ruleSet, err := a.rules.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load disable rules: %w", err)
	}

	summary := &Summary{}
	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.AccountsChecked++
		a.rulesPassForAccount(ctx, account, ruleSet, window, since, summary)
	}

	logger.Info("re-enable by rules finished",
		"accounts", summary.AccountsChecked,
		"candidates", summary.Candidates,
		"banners_enabled", summary.BannersEnabled,
		"errors", len(summary.Errors),
		"dry_run", a.dryRun)

	if summary.BannersEnabled > 0 {
		a.notifier.Send(ctx, fmt.Sprintf("Re-enable pass restored %d of %d disabled banners",
			summary.BannersEnabled, summary.Candidates))
	}
	return summary, nil
}

func (a *Analyzer) rulesPassForAccount(ctx context.Context, account platform.Account, ruleSet []rules.Rule, window platform.Window, since time.Time, summary *Summary) {
	actions, err := a.actions.RecentBannerActions(ctx, account.ID, since)
	if err != nil {
		summary.Errors = append(summary.Errors, RunError{
			AccountID: account.ID,
			Err:       fmt.Sprintf("failed to load banner actions: %v", err),
		})
		return
	}

	candidates := latestDisables(actions)
	if len(candidates) == 0 {
		return
	}
	summary.Candidates += len(candidates)

	bannerIDs := make([]int64, 0, len(candidates))
	for id := range candidates {
		bannerIDs = append(bannerIDs, id)
	}

	bannerStats, failedIDs, err := a.stats.Fetch(ctx, account.AccessToken, bannerIDs, window)
	if err != nil {
		summary.Errors = append(summary.Errors, RunError{
			AccountID: account.ID,
			Err:       fmt.Sprintf("failed to fetch banner stats: %v", err),
		})
		return
	}
	failed := make(map[int64]bool, len(failedIDs))
	for _, id := range failedIDs {
		failed[id] = true
	}

	needROI := false
	for _, r := range ruleSet {
		if r.Enabled && r.AppliesTo(account.ID) && rules.UsesMetric(r.Conditions, metrics.MetricROI) {
			needROI = true
			break
		}
	}
	var joined map[int64]revenue.Entry
	if needROI && a.revenue != nil {
		joined, err = a.revenue.ROIForBanners(ctx, []int64{account.ID}, bannerIDs, window)
		if err != nil {
			// Fresh metrics without the join would read as the sentinel ROI
			// and keep every spender disabled; skip the account instead of
			// deciding on bad data.
			summary.Errors = append(summary.Errors, RunError{
				AccountID: account.ID,
				Err:       fmt.Sprintf("revenue join failed: %v", err),
			})
			return
		}
	}

	enabledGroups := make(map[int64]bool)
	enabledCampaigns := make(map[int64]bool)

	for _, id := range bannerIDs {
		if failed[id] {
			continue
		}
		disable := candidates[id]

		snap := bannerStats[id].Snapshot()
		if entry, ok := joined[id]; ok {
			snap = snap.WithRevenue(entry.Revenue)
		}

		// Still matching a rule means the disable reason still holds.
		if rules.MatchForAccount(snap, ruleSet, account.ID) != nil {
			continue
		}

		reason := fmt.Sprintf("no disable rule matches anymore (was: %s)", disable.Reason)
		if err := a.enableChain(ctx, account, disable, snap, reason, enabledCampaigns, enabledGroups); err != nil {
			summary.Errors = append(summary.Errors, RunError{
				AccountID: account.ID, BannerID: id, Err: err.Error(),
			})
			continue
		}
		summary.BannersEnabled++
	}
}

// latestDisables reduces the audit trail to banners whose most recent real
// action is a disable. Dry-run rows never changed remote state and are
// ignored.
func latestDisables(actions []audit.BannerAction) map[int64]audit.BannerAction {
	latest := make(map[int64]audit.BannerAction)
	for _, action := range actions {
		if action.DryRun {
			continue
		}
		if prev, ok := latest[action.BannerID]; ok && !action.CreatedAt.After(prev.CreatedAt) {
			continue
		}
		latest[action.BannerID] = action
	}

	out := make(map[int64]audit.BannerAction)
	for id, action := range latest {
		if action.Action == audit.ActionDisabled {
			out[id] = action
		}
	}
	return out
}

// enableChain activates the banner's campaign and ad group before the banner
// itself. Parents already activated in this pass are not touched again.
func (a *Analyzer) enableChain(ctx context.Context, account platform.Account, disable audit.BannerAction, snap metrics.Snapshot, reason string, enabledCampaigns, enabledGroups map[int64]bool) error {
	logger.Info("re-enabling banner",
		"account_id", account.ID,
		"banner_id", disable.BannerID,
		"reason", reason,
		"dry_run", a.dryRun)

	if !a.dryRun {
		if disable.CampaignID != 0 && !enabledCampaigns[disable.CampaignID] {
			if err := a.client.SetCampaignStatus(ctx, account.AccessToken, disable.CampaignID, platform.StatusActive); err != nil {
				return fmt.Errorf("failed to activate campaign %d: %w", disable.CampaignID, err)
			}
			enabledCampaigns[disable.CampaignID] = true
		}
		if disable.AdGroupID != 0 && !enabledGroups[disable.AdGroupID] {
			if err := a.client.SetAdGroupStatus(ctx, account.AccessToken, disable.AdGroupID, platform.StatusActive); err != nil {
				return fmt.Errorf("failed to activate ad group %d: %w", disable.AdGroupID, err)
			}
			enabledGroups[disable.AdGroupID] = true
		}
		if err := a.client.SetBannerStatus(ctx, account.AccessToken, disable.BannerID, platform.StatusActive); err != nil {
			return fmt.Errorf("failed to activate banner %d: %w", disable.BannerID, err)
		}
	}

	action := &audit.BannerAction{
		AccountID:  account.ID,
		CampaignID: disable.CampaignID,
		AdGroupID:  disable.AdGroupID,
		BannerID:   disable.BannerID,
		Action:     audit.ActionEnabled,
		Reason:     reason,
		Snapshot:   snap,
		DryRun:     a.dryRun,
	}
	if err := a.actions.InsertBannerAction(ctx, action); err != nil {
		logger.Error("failed to record banner action",
			"banner_id", disable.BannerID, "error", err.Error())
	}
	return nil
}

// ReenableByROI restores disabled banners whose attribution ROI has climbed
// back to the threshold. Banners without an attribution entry are left
// untouched; absence of data is not recovery.
func (a *Analyzer) ReenableByROI(ctx context.Context, accounts []platform.Account, window platform.Window, threshold float64) (*Summary, error) {
	if a.revenue == nil {
		return nil, fmt.Errorf("roi re-enable requires a revenue provider")
	}

	summary := &Summary{}
	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.AccountsChecked++
		a.roiPassForAccount(ctx, account, window, threshold, summary)
	}

	logger.Info("re-enable by roi finished",
		"accounts", summary.AccountsChecked,
		"candidates", summary.Candidates,
		"banners_enabled", summary.BannersEnabled,
		"threshold", threshold,
		"errors", len(summary.Errors),
		"dry_run", a.dryRun)

	if summary.BannersEnabled > 0 {
		a.notifier.Send(ctx, fmt.Sprintf("ROI re-enable pass restored %d of %d disabled banners",
			summary.BannersEnabled, summary.Candidates))
	}
	return summary, nil
}

func (a *Analyzer) roiPassForAccount(ctx context.Context, account platform.Account, window platform.Window, threshold float64, summary *Summary) {
	disabled, err := a.client.FetchDisabledBanners(ctx, account.AccessToken)
	if err != nil {
		summary.Errors = append(summary.Errors, RunError{
			AccountID: account.ID,
			Err:       fmt.Sprintf("failed to fetch disabled banners: %v", err),
		})
		return
	}
	if len(disabled) == 0 {
		return
	}
	summary.Candidates += len(disabled)

	bannerIDs := make([]int64, len(disabled))
	for i, b := range disabled {
		bannerIDs[i] = b.ID
	}

	joined, err := a.revenue.ROIForBanners(ctx, []int64{account.ID}, bannerIDs, window)
	if err != nil {
		summary.Errors = append(summary.Errors, RunError{
			AccountID: account.ID,
			Err:       fmt.Sprintf("revenue join failed: %v", err),
		})
		return
	}

	for _, banner := range disabled {
		entry, ok := joined[banner.ID]
		if !ok || entry.ROIPercent < threshold {
			continue
		}

		reason := fmt.Sprintf("attribution roi %.2f recovered above %.2f", entry.ROIPercent, threshold)
		logger.Info("re-enabling banner",
			"account_id", account.ID,
			"banner_id", banner.ID,
			"reason", reason,
			"dry_run", a.dryRun)

		if !a.dryRun {
			if err := a.client.SetBannerStatus(ctx, account.AccessToken, banner.ID, platform.StatusActive); err != nil {
				summary.Errors = append(summary.Errors, RunError{
					AccountID: account.ID, BannerID: banner.ID,
					Err: fmt.Sprintf("failed to activate banner: %v", err),
				})
				continue
			}
		}

		action := &audit.BannerAction{
			AccountID:  account.ID,
			CampaignID: banner.CampaignID,
			AdGroupID:  banner.AdGroupID,
			BannerID:   banner.ID,
			Action:     audit.ActionEnabled,
			Reason:     reason,
			Snapshot:   metrics.Snapshot{Spent: entry.Spent}.WithRevenue(entry.Revenue),
			DryRun:     a.dryRun,
		}
		if err := a.actions.InsertBannerAction(ctx, action); err != nil {
			logger.Error("failed to record banner action",
				"banner_id", banner.ID, "error", err.Error())
		}
		summary.BannersEnabled++
	}
}
