package reenable

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adpilot/internal/audit"
	"github.com/ignite/adpilot/internal/platform"
	"github.com/ignite/adpilot/internal/platform/platformtest"
	"github.com/ignite/adpilot/internal/revenue"
	"github.com/ignite/adpilot/internal/rules"
)

type memRuleStore struct {
	rules []rules.Rule
	err   error
}

func (s *memRuleStore) ListRules(ctx context.Context) ([]rules.Rule, error) {
	return s.rules, s.err
}

type memActionStore struct {
	mu      sync.Mutex
	actions []audit.BannerAction
	err     error
}

func (s *memActionStore) RecentBannerActions(ctx context.Context, accountID int64, since time.Time) ([]audit.BannerAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []audit.BannerAction
	for _, a := range s.actions {
		if a.AccountID == accountID && !a.CreatedAt.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memActionStore) InsertBannerAction(ctx context.Context, action *audit.BannerAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := *action
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	s.actions = append(s.actions, a)
	return nil
}

func (s *memActionStore) byAction(kind audit.Action) []audit.BannerAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.BannerAction
	for _, a := range s.actions {
		if a.Action == kind {
			out = append(out, a)
		}
	}
	return out
}

type memNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *memNotifier) Send(ctx context.Context, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
}

type fakeRevenue struct {
	entries map[int64]revenue.Entry
	err     error
}

func (f *fakeRevenue) ROIForBanners(ctx context.Context, accountIDs, bannerIDs []int64, window platform.Window) (map[int64]revenue.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

func newAnalyzer(client *platformtest.FakeClient, rev revenue.Provider, ruleStore *memRuleStore, actions *memActionStore, dryRun bool) *Analyzer {
	cfg := platform.DefaultStatsFetcherConfig()
	cfg.BatchDelay = 0
	cfg.RetryDelay = 0
	return NewAnalyzer(client, platform.NewStatsFetcher(client, cfg), rev, ruleStore, actions, nil, dryRun)
}

func spendRule(threshold float64) rules.Rule {
	return rules.Rule{
		ID: 1, Name: "high spend", Enabled: true,
		Conditions: []rules.Condition{
			{Metric: "spent", Operator: rules.OpGreaterOrEqual, Value: threshold},
		},
	}
}

func disabledAction(accountID, bannerID int64, at time.Time) audit.BannerAction {
	return audit.BannerAction{
		AccountID:  accountID,
		CampaignID: 5,
		AdGroupID:  10,
		BannerID:   bannerID,
		Action:     audit.ActionDisabled,
		Reason:     `rule "high spend": spent >= 100.00 (actual 150.00)`,
		CreatedAt:  at,
	}
}

func TestReenableByRulesRestoresRecoveredBanner(t *testing.T) {
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	client := &platformtest.FakeClient{
		BannerStats: map[int64]platform.Stats{100: {Spent: 10}},
	}
	actions := &memActionStore{actions: []audit.BannerAction{disabledAction(1, 100, yesterday)}}
	ruleStore := &memRuleStore{rules: []rules.Rule{spendRule(100)}}
	analyzer := newAnalyzer(client, nil, ruleStore, actions, false)

	summary, err := analyzer.ReenableByRules(context.Background(),
		[]platform.Account{{ID: 1, AccessToken: "tok"}}, platform.LastDays(3), yesterday.Add(-time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Candidates)
	assert.Equal(t, 1, summary.BannersEnabled)
	assert.Empty(t, summary.Errors)

	// The whole chain comes back, parents first.
	require.Len(t, client.StatusCalls, 3)
	assert.Equal(t, "campaign", client.StatusCalls[0].Kind)
	assert.Equal(t, "ad_group", client.StatusCalls[1].Kind)
	assert.Equal(t, "banner", client.StatusCalls[2].Kind)
	for _, call := range client.StatusCalls {
		assert.Equal(t, platform.StatusActive, call.Status)
	}

	enabled := actions.byAction(audit.ActionEnabled)
	require.Len(t, enabled, 1)
	assert.Equal(t, int64(100), enabled[0].BannerID)
	assert.Contains(t, enabled[0].Reason, "no disable rule matches anymore")
}

func TestReenableByRulesKeepsStillMatchingBanner(t *testing.T) {
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	client := &platformtest.FakeClient{
		BannerStats: map[int64]platform.Stats{100: {Spent: 150}},
	}
	actions := &memActionStore{actions: []audit.BannerAction{disabledAction(1, 100, yesterday)}}
	ruleStore := &memRuleStore{rules: []rules.Rule{spendRule(100)}}
	analyzer := newAnalyzer(client, nil, ruleStore, actions, false)

	summary, err := analyzer.ReenableByRules(context.Background(),
		[]platform.Account{{ID: 1, AccessToken: "tok"}}, platform.LastDays(3), yesterday.Add(-time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Candidates)
	assert.Equal(t, 0, summary.BannersEnabled)
	assert.Empty(t, client.StatusCalls)
	assert.Empty(t, actions.byAction(audit.ActionEnabled))
}

func TestReenableByRulesIsIdempotent(t *testing.T) {
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	since := yesterday.Add(-time.Hour)
	client := &platformtest.FakeClient{
		BannerStats: map[int64]platform.Stats{100: {Spent: 10}},
	}
	actions := &memActionStore{actions: []audit.BannerAction{disabledAction(1, 100, yesterday)}}
	ruleStore := &memRuleStore{rules: []rules.Rule{spendRule(100)}}
	analyzer := newAnalyzer(client, nil, ruleStore, actions, false)

	accounts := []platform.Account{{ID: 1, AccessToken: "tok"}}
	_, err := analyzer.ReenableByRules(context.Background(), accounts, platform.LastDays(3), since)
	require.NoError(t, err)
	require.Len(t, client.StatusCalls, 3)

	// The enabled audit row is now the banner's latest action; a second pass
	// finds no candidates and touches nothing.
	summary, err := analyzer.ReenableByRules(context.Background(), accounts, platform.LastDays(3), since)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Candidates)
	assert.Len(t, client.StatusCalls, 3)
}

func TestReenableByRulesDryRun(t *testing.T) {
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	client := &platformtest.FakeClient{
		BannerStats: map[int64]platform.Stats{100: {Spent: 10}},
	}
	actions := &memActionStore{actions: []audit.BannerAction{disabledAction(1, 100, yesterday)}}
	ruleStore := &memRuleStore{rules: []rules.Rule{spendRule(100)}}
	analyzer := newAnalyzer(client, nil, ruleStore, actions, true)

	summary, err := analyzer.ReenableByRules(context.Background(),
		[]platform.Account{{ID: 1, AccessToken: "tok"}}, platform.LastDays(3), yesterday.Add(-time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.BannersEnabled)
	assert.Empty(t, client.StatusCalls)

	enabled := actions.byAction(audit.ActionEnabled)
	require.Len(t, enabled, 1)
	assert.True(t, enabled[0].DryRun)
}

func TestReenableByRulesDryRunDisablesAreNotCandidates(t *testing.T) {
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	dryDisable := disabledAction(1, 100, yesterday)
	dryDisable.DryRun = true

	client := &platformtest.FakeClient{
		BannerStats: map[int64]platform.Stats{100: {Spent: 10}},
	}
	actions := &memActionStore{actions: []audit.BannerAction{dryDisable}}
	ruleStore := &memRuleStore{rules: []rules.Rule{spendRule(100)}}
	analyzer := newAnalyzer(client, nil, ruleStore, actions, false)

	summary, err := analyzer.ReenableByRules(context.Background(),
		[]platform.Account{{ID: 1, AccessToken: "tok"}}, platform.LastDays(3), yesterday.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Candidates)
	assert.Empty(t, client.StatusCalls)
}

func TestReenableByRulesParentFailureAbortsChain(t *testing.T) {
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	client := &platformtest.FakeClient{
		BannerStats: map[int64]platform.Stats{100: {Spent: 10}},
		Errs: map[string]error{
			"SetAdGroupStatus": &platform.APIError{StatusCode: 500, Body: "upstream error"},
		},
	}
	actions := &memActionStore{actions: []audit.BannerAction{disabledAction(1, 100, yesterday)}}
	ruleStore := &memRuleStore{rules: []rules.Rule{spendRule(100)}}
	analyzer := newAnalyzer(client, nil, ruleStore, actions, false)

	summary, err := analyzer.ReenableByRules(context.Background(),
		[]platform.Account{{ID: 1, AccessToken: "tok"}}, platform.LastDays(3), yesterday.Add(-time.Hour))
	require.NoError(t, err)

	// The banner must not go live inside a blocked parent.
	assert.Equal(t, 0, summary.BannersEnabled)
	assert.Empty(t, client.StatusCallsFor("banner"))
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0].Err, "failed to activate ad group")
	assert.Empty(t, actions.byAction(audit.ActionEnabled))
}

func TestReenableByROI(t *testing.T) {
	client := &platformtest.FakeClient{
		Disabled: []platform.Banner{
			{ID: 100, AdGroupID: 10, CampaignID: 5, Status: platform.StatusBlocked},
			{ID: 101, AdGroupID: 10, CampaignID: 5, Status: platform.StatusBlocked},
			{ID: 102, AdGroupID: 10, CampaignID: 5, Status: platform.StatusBlocked},
		},
	}
	rev := &fakeRevenue{entries: map[int64]revenue.Entry{
		100: {ROIPercent: 12, Revenue: 60, Spent: 50},
		101: {ROIPercent: -40, Revenue: 30, Spent: 50},
		// Banner 102 has no attribution entry and stays down.
	}}
	actions := &memActionStore{}
	analyzer := newAnalyzer(client, rev, &memRuleStore{}, actions, false)

	summary, err := analyzer.ReenableByROI(context.Background(),
		[]platform.Account{{ID: 1, AccessToken: "tok"}}, platform.LastDays(3), 10)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Candidates)
	assert.Equal(t, 1, summary.BannersEnabled)

	calls := client.StatusCallsFor("banner")
	require.Len(t, calls, 1)
	assert.Equal(t, int64(100), calls[0].ID)
	assert.Equal(t, platform.StatusActive, calls[0].Status)

	enabled := actions.byAction(audit.ActionEnabled)
	require.Len(t, enabled, 1)
	assert.Contains(t, enabled[0].Reason, "recovered above 10.00")
}

func TestReenableByROISendsSummary(t *testing.T) {
	client := &platformtest.FakeClient{
		Disabled: []platform.Banner{
			{ID: 100, AdGroupID: 10, CampaignID: 5, Status: platform.StatusBlocked},
		},
	}
	rev := &fakeRevenue{entries: map[int64]revenue.Entry{
		100: {ROIPercent: 40, Revenue: 70, Spent: 50},
	}}
	notifier := &memNotifier{}
	cfg := platform.DefaultStatsFetcherConfig()
	cfg.BatchDelay = 0
	cfg.RetryDelay = 0
	analyzer := NewAnalyzer(client, platform.NewStatsFetcher(client, cfg), rev,
		&memRuleStore{}, &memActionStore{}, notifier, false)

	summary, err := analyzer.ReenableByROI(context.Background(),
		[]platform.Account{{ID: 1, AccessToken: "tok"}}, platform.LastDays(3), 20)
	require.NoError(t, err)
	require.Equal(t, 1, summary.BannersEnabled)

	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "restored 1 of 1")
}

func TestReenableByROIJoinFailure(t *testing.T) {
	client := &platformtest.FakeClient{
		Disabled: []platform.Banner{{ID: 100, Status: platform.StatusBlocked}},
	}
	rev := &fakeRevenue{err: errors.New("attribution unavailable")}
	analyzer := newAnalyzer(client, rev, &memRuleStore{}, &memActionStore{}, false)

	summary, err := analyzer.ReenableByROI(context.Background(),
		[]platform.Account{{ID: 1, AccessToken: "tok"}}, platform.LastDays(3), 0)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.BannersEnabled)
	assert.Empty(t, client.StatusCalls)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0].Err, "revenue join failed")
}

func TestReenableByROIRequiresProvider(t *testing.T) {
	analyzer := newAnalyzer(&platformtest.FakeClient{}, nil, &memRuleStore{}, &memActionStore{}, false)

	_, err := analyzer.ReenableByROI(context.Background(), nil, platform.LastDays(3), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a revenue provider")
}
