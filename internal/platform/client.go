package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/adpilot/internal/pkg/httpretry"
)

// Client is the ad-platform collaborator the engine consumes. Every call
// takes the account access token because one engine run spans many accounts.
type Client interface {
	FetchCampaigns(ctx context.Context, token string) ([]Campaign, error)
	FetchAdGroups(ctx context.Context, token string, window Window) ([]AdGroup, error)
	FetchBanners(ctx context.Context, token string, adGroupID int64) ([]Banner, error)
	FetchBannerStats(ctx context.Context, token string, bannerIDs []int64, window Window) (map[int64]Stats, error)
	FetchDisabledBanners(ctx context.Context, token string) ([]Banner, error)
	DuplicateAdGroup(ctx context.Context, token string, adGroupID int64, newName string, newBudget *float64) (*DuplicateResult, error)
	DeleteBanner(ctx context.Context, token string, bannerID int64) error
	SetBannerStatus(ctx context.Context, token string, bannerID int64, status Status) error
	SetAdGroupStatus(ctx context.Context, token string, adGroupID int64, status Status) error
	SetCampaignStatus(ctx context.Context, token string, campaignID int64, status Status) error
}

// HTTPClient implements Client against the platform's REST API.
type HTTPClient struct {
	baseURL    string
	httpClient httpretry.HTTPDoer
}

// NewHTTPClient creates a platform client. Transient failures are retried by
// the underlying httpretry client; permanent failures surface as *APIError.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 3),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing).
func (c *HTTPClient) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// doRequest performs an authenticated request and decodes the response into out.
func (c *HTTPClient) doRequest(ctx context.Context, method, endpoint, token string, query url.Values, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	reqURL := c.baseURL + endpoint
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

type statsPayload struct {
	Spent       float64 `json:"spent"`
	Clicks      int64   `json:"clicks"`
	Shows       int64   `json:"shows"`
	Goals       int64   `json:"goals"`
	NativeGoals int64   `json:"vk_goals"`
}

func (p statsPayload) toStats() Stats {
	return Stats{Spent: p.Spent, Clicks: p.Clicks, Shows: p.Shows, Goals: p.Goals, NativeGoals: p.NativeGoals}
}

func windowQuery(window Window) url.Values {
	q := url.Values{}
	q.Set("date_from", window.From.Format("2006-01-02"))
	q.Set("date_to", window.To.Format("2006-01-02"))
	return q
}

// FetchCampaigns returns all campaigns in the account.
func (c *HTTPClient) FetchCampaigns(ctx context.Context, token string) ([]Campaign, error) {
	var payload struct {
		Items []struct {
			ID     int64  `json:"id"`
			Name   string `json:"name"`
			Status Status `json:"status"`
		} `json:"items"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/api/v2/campaigns.json", token, nil, nil, &payload); err != nil {
		return nil, err
	}
	campaigns := make([]Campaign, 0, len(payload.Items))
	for _, it := range payload.Items {
		campaigns = append(campaigns, Campaign{ID: it.ID, Name: it.Name, Status: it.Status})
	}
	return campaigns, nil
}

// FetchAdGroups returns all ad groups with their aggregate stats for the window.
func (c *HTTPClient) FetchAdGroups(ctx context.Context, token string, window Window) ([]AdGroup, error) {
	var payload struct {
		Items []struct {
			ID         int64        `json:"id"`
			CampaignID int64        `json:"campaign_id"`
			Name       string       `json:"name"`
			Status     Status       `json:"status"`
			Stats      statsPayload `json:"stats"`
		} `json:"items"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/api/v2/ad_groups.json", token, windowQuery(window), nil, &payload); err != nil {
		return nil, err
	}
	groups := make([]AdGroup, 0, len(payload.Items))
	for _, it := range payload.Items {
		groups = append(groups, AdGroup{
			ID:         it.ID,
			CampaignID: it.CampaignID,
			Name:       it.Name,
			Status:     it.Status,
			Stats:      it.Stats.toStats(),
		})
	}
	return groups, nil
}

// FetchBanners returns the banners of one ad group.
func (c *HTTPClient) FetchBanners(ctx context.Context, token string, adGroupID int64) ([]Banner, error) {
	q := url.Values{}
	q.Set("ad_group_id", strconv.FormatInt(adGroupID, 10))
	return c.fetchBannerList(ctx, token, q)
}

// FetchDisabledBanners returns every currently blocked banner in the account.
func (c *HTTPClient) FetchDisabledBanners(ctx context.Context, token string) ([]Banner, error) {
	q := url.Values{}
	q.Set("status", string(StatusBlocked))
	return c.fetchBannerList(ctx, token, q)
}

func (c *HTTPClient) fetchBannerList(ctx context.Context, token string, q url.Values) ([]Banner, error) {
	var payload struct {
		Items []struct {
			ID         int64  `json:"id"`
			AdGroupID  int64  `json:"ad_group_id"`
			CampaignID int64  `json:"campaign_id"`
			Name       string `json:"name"`
			Status     Status `json:"status"`
		} `json:"items"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/api/v2/banners.json", token, q, nil, &payload); err != nil {
		return nil, err
	}
	banners := make([]Banner, 0, len(payload.Items))
	for _, it := range payload.Items {
		banners = append(banners, Banner{
			ID:         it.ID,
			AdGroupID:  it.AdGroupID,
			CampaignID: it.CampaignID,
			Name:       it.Name,
			Status:     it.Status,
		})
	}
	return banners, nil
}

// FetchBannerStats returns per-banner stats for the given ids and window.
func (c *HTTPClient) FetchBannerStats(ctx context.Context, token string, bannerIDs []int64, window Window) (map[int64]Stats, error) {
	ids := make([]string, 0, len(bannerIDs))
	for _, id := range bannerIDs {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	q := windowQuery(window)
	q.Set("ids", strings.Join(ids, ","))

	var payload struct {
		Items []struct {
			ID    int64        `json:"id"`
			Stats statsPayload `json:"stats"`
		} `json:"items"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/api/v2/statistics/banners/day.json", token, q, nil, &payload); err != nil {
		return nil, err
	}
	stats := make(map[int64]Stats, len(payload.Items))
	for _, it := range payload.Items {
		stats[it.ID] = it.Stats.toStats()
	}
	return stats, nil
}

// DuplicateAdGroup clones an ad group with all its banners. newName and
// newBudget are applied when set; banners in the copy start blocked.
func (c *HTTPClient) DuplicateAdGroup(ctx context.Context, token string, adGroupID int64, newName string, newBudget *float64) (*DuplicateResult, error) {
	body := map[string]interface{}{}
	if newName != "" {
		body["name"] = newName
	}
	if newBudget != nil {
		body["budget"] = *newBudget
	}

	var payload struct {
		ID      int64  `json:"id"`
		Name    string `json:"name"`
		Banners []struct {
			ID       int64  `json:"id"`
			SourceID int64  `json:"source_id"`
			Status   Status `json:"status"`
		} `json:"banners"`
	}
	endpoint := fmt.Sprintf("/api/v2/ad_groups/%d/duplicate.json", adGroupID)
	if err := c.doRequest(ctx, http.MethodPost, endpoint, token, nil, body, &payload); err != nil {
		return nil, err
	}

	result := &DuplicateResult{NewID: payload.ID, NewName: payload.Name}
	for _, b := range payload.Banners {
		result.Banners = append(result.Banners, DuplicatedBanner{ID: b.ID, SourceID: b.SourceID, Status: b.Status})
	}
	return result, nil
}

// DeleteBanner removes a banner from an ad group.
func (c *HTTPClient) DeleteBanner(ctx context.Context, token string, bannerID int64) error {
	endpoint := fmt.Sprintf("/api/v2/banners/%d.json", bannerID)
	return c.doRequest(ctx, http.MethodDelete, endpoint, token, nil, nil, nil)
}

// SetBannerStatus enables or disables one banner.
func (c *HTTPClient) SetBannerStatus(ctx context.Context, token string, bannerID int64, status Status) error {
	endpoint := fmt.Sprintf("/api/v2/banners/%d.json", bannerID)
	return c.doRequest(ctx, http.MethodPost, endpoint, token, nil, map[string]interface{}{"status": status}, nil)
}

// SetAdGroupStatus enables or disables one ad group.
func (c *HTTPClient) SetAdGroupStatus(ctx context.Context, token string, adGroupID int64, status Status) error {
	endpoint := fmt.Sprintf("/api/v2/ad_groups/%d.json", adGroupID)
	return c.doRequest(ctx, http.MethodPost, endpoint, token, nil, map[string]interface{}{"status": status}, nil)
}

// SetCampaignStatus enables or disables one campaign.
func (c *HTTPClient) SetCampaignStatus(ctx context.Context, token string, campaignID int64, status Status) error {
	endpoint := fmt.Sprintf("/api/v2/campaigns/%d.json", campaignID)
	return c.doRequest(ctx, http.MethodPost, endpoint, token, nil, map[string]interface{}{"status": status}, nil)
}
