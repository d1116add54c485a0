package suppression

import (
	"context"
	"errors"
	"sync"
	"testing"

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
}

func (s *memActionStore) InsertBannerAction(ctx context.Context, action *audit.BannerAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, *action)
	return nil
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

func newEngine(client *platformtest.FakeClient, rev revenue.Provider, ruleStore *memRuleStore, actions *memActionStore, dryRun bool) *Engine {
	cfg := platform.DefaultStatsFetcherConfig()
	cfg.BatchDelay = 0
	cfg.RetryDelay = 0
	return NewEngine(client, platform.NewStatsFetcher(client, cfg), rev, ruleStore, actions, nil, dryRun)
}

func spendRule(id int64, priority int, threshold float64) rules.Rule {
	return rules.Rule{
		ID: id, Name: "high spend", Enabled: true, Priority: priority,
		Conditions: []rules.Condition{
			{Metric: "spent", Operator: rules.OpGreaterOrEqual, Value: threshold},
			{Metric: "goals", Operator: rules.OpEquals, Value: 0},
		},
	}
}

func TestEngineDisablesMatchingBanners(t *testing.T) {
	client := &platformtest.FakeClient{
		AdGroups: []platform.AdGroup{{ID: 10}},
		Banners: map[int64][]platform.Banner{
			10: {
				{ID: 100, AdGroupID: 10, CampaignID: 5, Status: platform.StatusActive},
				{ID: 101, AdGroupID: 10, CampaignID: 5, Status: platform.StatusActive},
			},
		},
		BannerStats: map[int64]platform.Stats{
			100: {Spent: 120},           // burns money with no conversions
			101: {Spent: 120, Goals: 3}, // converting, left alone
		},
	}
	ruleStore := &memRuleStore{rules: []rules.Rule{spendRule(1, 0, 100)}}
	actions := &memActionStore{}
	engine := newEngine(client, nil, ruleStore, actions, false)

	summary, err := engine.Run(context.Background(), []platform.Account{{ID: 1, AccessToken: "tok"}}, platform.LastDays(3))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.BannersChecked)
	assert.Equal(t, 1, summary.BannersDisabled)
	assert.Empty(t, summary.Errors)

	calls := client.StatusCallsFor("banner")
	require.Len(t, calls, 1)
	assert.Equal(t, int64(100), calls[0].ID)
	assert.Equal(t, platform.StatusBlocked, calls[0].Status)

	require.Len(t, actions.actions, 1)
	action := actions.actions[0]
	assert.Equal(t, int64(100), action.BannerID)
	assert.Equal(t, int64(10), action.AdGroupID)
	assert.Equal(t, int64(5), action.CampaignID)
	assert.Equal(t, audit.ActionDisabled, action.Action)
	assert.Equal(t, `rule "high spend": spent >= 100.00 (actual 120.00); goals = 0.00 (actual 0.00)`, action.Reason)
	assert.False(t, action.DryRun)
}

func TestEngineDryRun(t *testing.T) {
	client := &platformtest.FakeClient{
		AdGroups:    []platform.AdGroup{{ID: 10}},
		Banners:     map[int64][]platform.Banner{10: {{ID: 100, AdGroupID: 10, Status: platform.StatusActive}}},
		BannerStats: map[int64]platform.Stats{100: {Spent: 500}},
	}
	ruleStore := &memRuleStore{rules: []rules.Rule{spendRule(1, 0, 100)}}
	actions := &memActionStore{}
	engine := newEngine(client, nil, ruleStore, actions, true)

	summary, err := engine.Run(context.Background(), []platform.Account{{ID: 1, AccessToken: "tok"}}, platform.LastDays(3))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.BannersDisabled)

	// Decision recorded, nothing mutated remotely.
	assert.Empty(t, client.StatusCalls)
	require.Len(t, actions.actions, 1)
	assert.True(t, actions.actions[0].DryRun)
}

func TestEngineSkipsBlockedBanners(t *testing.T) {
	client := &platformtest.FakeClient{
		AdGroups: []platform.AdGroup{{ID: 10}},
		Banners: map[int64][]platform.Banner{
			10: {{ID: 100, AdGroupID: 10, Status: platform.StatusBlocked}},
		},
		BannerStats: map[int64]platform.Stats{100: {Spent: 500}},
	}
	ruleStore := &memRuleStore{rules: []rules.Rule{spendRule(1, 0, 100)}}
	actions := &memActionStore{}
	engine := newEngine(client, nil, ruleStore, actions, false)

	summary, err := engine.Run(context.Background(), []platform.Account{{ID: 1, AccessToken: "tok"}}, platform.LastDays(3))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.BannersChecked)
	assert.Empty(t, actions.actions)
}

func TestEngineAccountScope(t *testing.T) {
	rule := spendRule(1, 0, 100)
	rule.AccountIDs = []int64{2}

	client := &platformtest.FakeClient{
		AdGroups:    []platform.AdGroup{{ID: 10}},
		Banners:     map[int64][]platform.Banner{10: {{ID: 100, AdGroupID: 10, Status: platform.StatusActive}}},
		BannerStats: map[int64]platform.Stats{100: {Spent: 500}},
	}
	ruleStore := &memRuleStore{rules: []rules.Rule{rule}}
	actions := &memActionStore{}
	engine := newEngine(client, nil, ruleStore, actions, false)

	// Account 1 is outside the rule's scope; no rules apply, no work done.
	summary, err := engine.Run(context.Background(), []platform.Account{{ID: 1, AccessToken: "tok"}}, platform.LastDays(3))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.BannersDisabled)
	assert.Empty(t, client.StatusCalls)
}

func TestEngineBadTokenSkipsAccountOnly(t *testing.T) {
	client := &platformtest.FakeClient{
		AdGroups:       []platform.AdGroup{{ID: 10}},
		Banners:        map[int64][]platform.Banner{10: {{ID: 100, AdGroupID: 10, Status: platform.StatusActive}}},
		BannerStats:    map[int64]platform.Stats{100: {Spent: 500}},
		AuthFailTokens: map[string]bool{"expired": true},
	}
	ruleStore := &memRuleStore{rules: []rules.Rule{spendRule(1, 0, 100)}}
	actions := &memActionStore{}
	engine := newEngine(client, nil, ruleStore, actions, false)

	accounts := []platform.Account{
		{ID: 1, AccessToken: "expired"},
		{ID: 2, AccessToken: "tok"},
	}
	summary, err := engine.Run(context.Background(), accounts, platform.LastDays(3))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.AccountsChecked)
	assert.Equal(t, 1, summary.BannersDisabled)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, int64(1), summary.Errors[0].AccountID)
}

func TestEngineROIRuleWithRevenueJoin(t *testing.T) {
	roiRule := rules.Rule{
		ID: 1, Name: "negative roi", Enabled: true,
		Conditions: []rules.Condition{
			{Metric: "roi", Operator: rules.OpLessThan, Value: 0},
			{Metric: "spent", Operator: rules.OpGreaterThan, Value: 10},
		},
	}

	client := &platformtest.FakeClient{
		AdGroups: []platform.AdGroup{{ID: 10}},
		Banners: map[int64][]platform.Banner{
			10: {
				{ID: 100, AdGroupID: 10, Status: platform.StatusActive},
				{ID: 101, AdGroupID: 10, Status: platform.StatusActive},
			},
		},
		BannerStats: map[int64]platform.Stats{
			100: {Spent: 50},
			101: {Spent: 50},
		},
	}
	rev := &fakeRevenue{entries: map[int64]revenue.Entry{
		100: {Revenue: 20}, // joined, loses money
		101: {Revenue: 80}, // joined, profitable
	}}
	ruleStore := &memRuleStore{rules: []rules.Rule{roiRule}}
	actions := &memActionStore{}
	engine := newEngine(client, rev, ruleStore, actions, false)

	summary, err := engine.Run(context.Background(), []platform.Account{{ID: 1, AccessToken: "tok"}}, platform.LastDays(3))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.BannersDisabled)

	calls := client.StatusCallsFor("banner")
	require.Len(t, calls, 1)
	assert.Equal(t, int64(100), calls[0].ID)
}

func TestEngineROIRuleDisablesUnjoinedSpenders(t *testing.T) {
	roiRule := rules.Rule{
		ID: 1, Name: "negative roi", Enabled: true,
		Conditions: []rules.Condition{{Metric: "roi", Operator: rules.OpLessThan, Value: -50}},
	}

	client := &platformtest.FakeClient{
		AdGroups:    []platform.AdGroup{{ID: 10}},
		Banners:     map[int64][]platform.Banner{10: {{ID: 100, AdGroupID: 10, Status: platform.StatusActive}}},
		BannerStats: map[int64]platform.Stats{100: {Spent: 50}},
	}
	// The join succeeds but carries no entry for the banner: spend without
	// revenue data reads as the sentinel ROI and the rule fires.
	rev := &fakeRevenue{entries: map[int64]revenue.Entry{}}
	ruleStore := &memRuleStore{rules: []rules.Rule{roiRule}}
	actions := &memActionStore{}
	engine := newEngine(client, rev, ruleStore, actions, false)

	summary, err := engine.Run(context.Background(), []platform.Account{{ID: 1, AccessToken: "tok"}}, platform.LastDays(3))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.BannersDisabled)
}

func TestEngineRevenueJoinFailureSkipsGroup(t *testing.T) {
	roiRule := rules.Rule{
		ID: 1, Name: "negative roi", Enabled: true,
		Conditions: []rules.Condition{{Metric: "roi", Operator: rules.OpLessThan, Value: 0}},
	}

	client := &platformtest.FakeClient{
		AdGroups:    []platform.AdGroup{{ID: 10}},
		Banners:     map[int64][]platform.Banner{10: {{ID: 100, AdGroupID: 10, Status: platform.StatusActive}}},
		BannerStats: map[int64]platform.Stats{100: {Spent: 50}},
	}
	rev := &fakeRevenue{err: errors.New("attribution unavailable")}
	ruleStore := &memRuleStore{rules: []rules.Rule{roiRule}}
	actions := &memActionStore{}
	engine := newEngine(client, rev, ruleStore, actions, false)

	summary, err := engine.Run(context.Background(), []platform.Account{{ID: 1, AccessToken: "tok"}}, platform.LastDays(3))
	require.NoError(t, err)

	// No disables on unjoinable data.
	assert.Equal(t, 0, summary.BannersDisabled)
	assert.Empty(t, client.StatusCalls)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0].Err, "revenue join failed")
}

func TestEngineRuleStoreFailure(t *testing.T) {
	client := &platformtest.FakeClient{}
	ruleStore := &memRuleStore{err: errors.New("db down")}
	engine := newEngine(client, nil, ruleStore, &memActionStore{}, false)

	_, err := engine.Run(context.Background(), []platform.Account{{ID: 1, AccessToken: "tok"}}, platform.LastDays(3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load disable rules")
}

func TestEngineNoRules(t *testing.T) {
	client := &platformtest.FakeClient{
		AdGroups: []platform.AdGroup{{ID: 10}},
	}
	engine := newEngine(client, nil, &memRuleStore{}, &memActionStore{}, false)

	summary, err := engine.Run(context.Background(), []platform.Account{{ID: 1, AccessToken: "tok"}}, platform.LastDays(3))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.AccountsChecked)
}
