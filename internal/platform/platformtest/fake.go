// Package platformtest provides an in-memory fake of the platform client for
// engine tests.
package platformtest

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/ignite/adpilot/internal/platform"
)

// StatusCall records one status mutation issued against the fake.
type StatusCall struct {
	Kind   string // "banner", "ad_group", "campaign"
	ID     int64
	Status platform.Status
}

// FakeClient is a configurable in-memory platform.Client.
// Zero value is usable; populate the maps as needed per test.
type FakeClient struct {
	mu sync.Mutex

	Campaigns   []platform.Campaign
	AdGroups    []platform.AdGroup
	Banners     map[int64][]platform.Banner // keyed by ad group id
	BannerStats map[int64]platform.Stats
	Disabled    []platform.Banner

	// AuthFailTokens forces a 401 for every call with that token.
	AuthFailTokens map[string]bool

	// Errs forces an error for a method name ("DuplicateAdGroup", ...).
	Errs map[string]error

	// FailDuplicateGroups forces DuplicateAdGroup to fail for these group ids.
	FailDuplicateGroups map[int64]bool

	// RateLimitStatsCalls makes the first N FetchBannerStats calls return 429.
	RateLimitStatsCalls int

	StatusCalls    []StatusCall
	DeleteCalls    []int64
	DuplicateCalls []int64
	StatsCalls     int

	nextID int64
}

var _ platform.Client = (*FakeClient)(nil)

func (f *FakeClient) checkCall(method, token string) error {
	if f.AuthFailTokens[token] {
		return &platform.APIError{StatusCode: http.StatusUnauthorized, Body: "invalid token"}
	}
	if err := f.Errs[method]; err != nil {
		return err
	}
	return nil
}

func (f *FakeClient) FetchCampaigns(ctx context.Context, token string) ([]platform.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkCall("FetchCampaigns", token); err != nil {
		return nil, err
	}
	return append([]platform.Campaign(nil), f.Campaigns...), nil
}

func (f *FakeClient) FetchAdGroups(ctx context.Context, token string, window platform.Window) ([]platform.AdGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkCall("FetchAdGroups", token); err != nil {
		return nil, err
	}
	return append([]platform.AdGroup(nil), f.AdGroups...), nil
}

func (f *FakeClient) FetchBanners(ctx context.Context, token string, adGroupID int64) ([]platform.Banner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkCall("FetchBanners", token); err != nil {
		return nil, err
	}
	return append([]platform.Banner(nil), f.Banners[adGroupID]...), nil
}

func (f *FakeClient) FetchBannerStats(ctx context.Context, token string, bannerIDs []int64, window platform.Window) (map[int64]platform.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StatsCalls++
	if f.RateLimitStatsCalls > 0 {
		f.RateLimitStatsCalls--
		return nil, &platform.APIError{StatusCode: http.StatusTooManyRequests, Body: "rate limited"}
	}
	if err := f.checkCall("FetchBannerStats", token); err != nil {
		return nil, err
	}
	out := make(map[int64]platform.Stats, len(bannerIDs))
	for _, id := range bannerIDs {
		if s, ok := f.BannerStats[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

func (f *FakeClient) FetchDisabledBanners(ctx context.Context, token string) ([]platform.Banner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkCall("FetchDisabledBanners", token); err != nil {
		return nil, err
	}
	return append([]platform.Banner(nil), f.Disabled...), nil
}

// DuplicateAdGroup clones the group's banners into a fresh copy. Copies get
// deterministic ids derived from the source so tests can assert on them.
func (f *FakeClient) DuplicateAdGroup(ctx context.Context, token string, adGroupID int64, newName string, newBudget *float64) (*platform.DuplicateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DuplicateCalls = append(f.DuplicateCalls, adGroupID)
	if err := f.checkCall("DuplicateAdGroup", token); err != nil {
		return nil, err
	}
	if f.FailDuplicateGroups[adGroupID] {
		return nil, &platform.APIError{StatusCode: http.StatusBadRequest, Body: fmt.Sprintf("group %d cannot be duplicated", adGroupID)}
	}

	f.nextID++
	result := &platform.DuplicateResult{
		NewID:   adGroupID*1000 + f.nextID,
		NewName: newName,
	}
	if newName == "" {
		result.NewName = fmt.Sprintf("copy-of-%d", adGroupID)
	}
	for _, b := range f.Banners[adGroupID] {
		f.nextID++
		result.Banners = append(result.Banners, platform.DuplicatedBanner{
			ID:       b.ID*1000 + f.nextID,
			SourceID: b.ID,
			Status:   platform.StatusBlocked,
		})
	}
	return result, nil
}

func (f *FakeClient) DeleteBanner(ctx context.Context, token string, bannerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkCall("DeleteBanner", token); err != nil {
		return err
	}
	f.DeleteCalls = append(f.DeleteCalls, bannerID)
	return nil
}

func (f *FakeClient) SetBannerStatus(ctx context.Context, token string, bannerID int64, status platform.Status) error {
	return f.recordStatus("SetBannerStatus", token, StatusCall{Kind: "banner", ID: bannerID, Status: status})
}

func (f *FakeClient) SetAdGroupStatus(ctx context.Context, token string, adGroupID int64, status platform.Status) error {
	return f.recordStatus("SetAdGroupStatus", token, StatusCall{Kind: "ad_group", ID: adGroupID, Status: status})
}

func (f *FakeClient) SetCampaignStatus(ctx context.Context, token string, campaignID int64, status platform.Status) error {
	return f.recordStatus("SetCampaignStatus", token, StatusCall{Kind: "campaign", ID: campaignID, Status: status})
}

func (f *FakeClient) recordStatus(method, token string, call StatusCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkCall(method, token); err != nil {
		return err
	}
	f.StatusCalls = append(f.StatusCalls, call)
	return nil
}

// StatusCallsFor returns the recorded mutations of one kind.
func (f *FakeClient) StatusCallsFor(kind string) []StatusCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []StatusCall
	for _, c := range f.StatusCalls {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}
