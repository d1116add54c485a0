package revenue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/adpilot/internal/pkg/httpretry"
	"github.com/ignite/adpilot/internal/platform"
)

// LeadstechClient is the Leadstech attribution API client.
type LeadstechClient struct {
	baseURL    string
	apiKey     string
	httpClient httpretry.HTTPDoer
}

// LeadstechConfig holds Leadstech API settings.
type LeadstechConfig struct {
	BaseURL string
	APIKey  string
}

// NewLeadstechClient creates a new Leadstech API client.
func NewLeadstechClient(cfg LeadstechConfig) *LeadstechClient {
	return &LeadstechClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: 120 * time.Second, // attribution reports can take minutes to assemble
		}, 3),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing).
func (c *LeadstechClient) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// ROIForBanners fetches attribution entries for the given banners. Banners
// without attribution are simply absent from the result map.
func (c *LeadstechClient) ROIForBanners(ctx context.Context, accountIDs []int64, bannerIDs []int64, window platform.Window) (map[int64]Entry, error) {
	reqBody := map[string]interface{}{
		"account_ids": accountIDs,
		"banner_ids":  bannerIDs,
		"date_from":   window.From.Format("2006-01-02"),
		"date_to":     window.To.Format("2006-01-02"),
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/roi/banners", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("leadstech API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var payload struct {
		Items map[string]Entry `json:"items"` // keyed by banner id as string
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	entries := make(map[int64]Entry, len(payload.Items))
	for idStr, entry := range payload.Items {
		var id int64
		if _, err := fmt.Sscan(idStr, &id); err != nil {
			continue
		}
		entries[id] = entry
	}
	return entries, nil
}
