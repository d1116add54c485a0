// Package suppression implements the rule-driven banner disable engine. It
// evaluates every active banner against the disable rules and blocks the
// ones whose metrics fully satisfy a rule, leaving an audit row per action.
package suppression

import (
	"context"
	"fmt"

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

// ActionStore persists audit rows for banner state changes.
type ActionStore interface {
	InsertBannerAction(ctx context.Context, action *audit.BannerAction) error
}

// RunError is a failure confined to one account or ad group; the run
// continues past it.
type RunError struct {
	AccountID int64
	GroupID   int64
	Err       string
}

// Summary aggregates one suppression pass.
type Summary struct {
	AccountsChecked int
	BannersChecked  int
	BannersDisabled int
	Errors          []RunError
}

// Engine evaluates disable rules against live banners.
type Engine struct {
	client   platform.Client
	stats    *platform.StatsFetcher
	revenue  revenue.Provider
	rules    RuleStore
	actions  ActionStore
	notifier notify.Notifier
	dryRun   bool
}

// NewEngine creates a suppression engine. With dryRun set, decisions are
// computed and recorded but no remote mutation is issued.
func NewEngine(client platform.Client, stats *platform.StatsFetcher, rev revenue.Provider, ruleStore RuleStore, actions ActionStore, notifier notify.Notifier, dryRun bool) *Engine {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Engine{
		client:   client,
		stats:    stats,
		revenue:  rev,
		rules:    ruleStore,
		actions:  actions,
		notifier: notifier,
		dryRun:   dryRun,
	}
}

// Run executes one suppression pass over the accounts. Account and group
// failures are recorded in the summary and skipped; the only hard errors are
// a rule-store failure and context cancellation.
func (e *Engine) Run(ctx context.Context, accounts []platform.Account, window platform.Window) (*Summary, error) {
	ruleSet, err := e.rules.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load disable rules: %w", err)
	}

	summary := &Summary{}
	if len(ruleSet) == 0 {
		logger.Info("suppression: no rules configured, nothing to do")
		return summary, nil
	}

	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.AccountsChecked++
		e.runAccount(ctx, account, ruleSet, window, summary)
	}

	logger.Info("suppression pass finished",
		"accounts", summary.AccountsChecked,
		"banners_checked", summary.BannersChecked,
		"banners_disabled", summary.BannersDisabled,
		"errors", len(summary.Errors),
		"dry_run", e.dryRun)

	if summary.BannersDisabled > 0 {
		e.notifier.Send(ctx, fmt.Sprintf("Suppression pass disabled %d of %d banners across %d accounts",
			summary.BannersDisabled, summary.BannersChecked, summary.AccountsChecked))
	}
	return summary, nil
}

func (e *Engine) runAccount(ctx context.Context, account platform.Account, ruleSet []rules.Rule, window platform.Window, summary *Summary) {
	scoped := make([]rules.Rule, 0, len(ruleSet))
	for _, r := range ruleSet {
		if r.Enabled && r.AppliesTo(account.ID) {
			scoped = append(scoped, r)
		}
	}
	if len(scoped) == 0 {
		return
	}

	groups, err := e.client.FetchAdGroups(ctx, account.AccessToken, window)
	if err != nil {
		summary.Errors = append(summary.Errors, RunError{
			AccountID: account.ID,
			Err:       fmt.Sprintf("failed to fetch ad groups: %v", err),
		})
		logger.Warn("suppression: account skipped", "account_id", account.ID, "error", err.Error())
		return
	}

	needROI := false
	for _, r := range scoped {
		if rules.UsesMetric(r.Conditions, metrics.MetricROI) {
			needROI = true
			break
		}
	}

	for _, group := range groups {
		if rerr := e.runGroup(ctx, account, group, scoped, needROI, window, summary); rerr != nil {
			summary.Errors = append(summary.Errors, *rerr)
		}
	}
}

func (e *Engine) runGroup(ctx context.Context, account platform.Account, group platform.AdGroup, scoped []rules.Rule, needROI bool, window platform.Window, summary *Summary) *RunError {
	banners, err := e.client.FetchBanners(ctx, account.AccessToken, group.ID)
	if err != nil {
		return &RunError{AccountID: account.ID, GroupID: group.ID,
			Err: fmt.Sprintf("failed to fetch banners: %v", err)}
	}

	var active []platform.Banner
	for _, b := range banners {
		if b.Status == platform.StatusActive {
			active = append(active, b)
		}
	}
	if len(active) == 0 {
		return nil
	}

	bannerIDs := make([]int64, len(active))
	for i, b := range active {
		bannerIDs[i] = b.ID
	}

	bannerStats, failedIDs, err := e.stats.Fetch(ctx, account.AccessToken, bannerIDs, window)
	if err != nil {
		return &RunError{AccountID: account.ID, GroupID: group.ID, Err: err.Error()}
	}
	failed := make(map[int64]bool, len(failedIDs))
	for _, id := range failedIDs {
		failed[id] = true
	}

	var joined map[int64]revenue.Entry
	if needROI {
		if e.revenue == nil {
			return &RunError{AccountID: account.ID, GroupID: group.ID,
				Err: "rules use roi but no revenue provider is configured"}
		}
		joined, err = e.revenue.ROIForBanners(ctx, []int64{account.ID}, bannerIDs, window)
		if err != nil {
			// Without the join, any spend collapses to the ROI sentinel and
			// roi rules would disable indiscriminately; skip the group.
			return &RunError{AccountID: account.ID, GroupID: group.ID,
				Err: fmt.Sprintf("revenue join failed: %v", err)}
		}
	}

	for _, banner := range active {
		// A banner whose stats never arrived cannot be judged.
		if failed[banner.ID] {
			continue
		}
		summary.BannersChecked++

		snap := bannerStats[banner.ID].Snapshot()
		if entry, ok := joined[banner.ID]; ok {
			snap = snap.WithRevenue(entry.Revenue)
		}

		matched := rules.Match(snap, scoped)
		if matched == nil {
			continue
		}
		if err := e.disable(ctx, account, banner, matched, snap); err != nil {
			summary.Errors = append(summary.Errors, RunError{
				AccountID: account.ID, GroupID: group.ID,
				Err: fmt.Sprintf("failed to disable banner %d: %v", banner.ID, err),
			})
			continue
		}
		summary.BannersDisabled++
	}
	return nil
}

func (e *Engine) disable(ctx context.Context, account platform.Account, banner platform.Banner, matched *rules.Rule, snap metrics.Snapshot) error {
	reason := rules.MatchReason(matched, snap)
	logger.Info("disabling banner",
		"account_id", account.ID,
		"banner_id", banner.ID,
		"rule_id", matched.ID,
		"reason", reason,
		"dry_run", e.dryRun)

	if !e.dryRun {
		if err := e.client.SetBannerStatus(ctx, account.AccessToken, banner.ID, platform.StatusBlocked); err != nil {
			return err
		}
	}

	action := &audit.BannerAction{
		AccountID:  account.ID,
		CampaignID: banner.CampaignID,
		AdGroupID:  banner.AdGroupID,
		BannerID:   banner.ID,
		Action:     audit.ActionDisabled,
		Reason:     reason,
		Snapshot:   snap,
		DryRun:     e.dryRun,
	}
	if err := e.actions.InsertBannerAction(ctx, action); err != nil {
		// The remote mutation already happened; losing the audit row is worth
		// a loud log line but must not fail the pass.
		logger.Error("failed to record banner action",
			"banner_id", banner.ID, "error", err.Error())
	}
	return nil
}
