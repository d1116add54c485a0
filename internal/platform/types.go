// Package platform defines the ad-platform collaborator: the typed models,
// the client interface the engine consumes, and a batched stats fetcher that
// respects the platform's request-rate ceiling.
package platform

import (
	"time"

	"github.com/ignite/adpilot/internal/metrics"
)

// Status is the enable/disable state of a campaign, ad group or banner.
type Status string

const (
	StatusActive  Status = "active"
	StatusBlocked Status = "blocked"
)

// Account is one advertiser account the engine operates on.
type Account struct {
	ID          int64
	Name        string
	AccessToken string
}

// Window is the analysis period for statistics fetches.
type Window struct {
	From time.Time
	To   time.Time
}

// LastDays returns a window covering the past n whole days up to now.
func LastDays(n int) Window {
	now := time.Now().UTC()
	return Window{From: now.AddDate(0, 0, -n), To: now}
}

// Stats is the raw aggregate counters the platform reports for one unit.
// Some stats endpoints omit the goals counter and report conversions only
// under the platform-native key; NativeGoals carries that value.
type Stats struct {
	Spent       float64
	Clicks      int64
	Shows       int64
	Goals       int64
	NativeGoals int64
}

// Snapshot converts platform stats into the engine's metric snapshot,
// normalizing the goals counter to the native field when the primary one
// is missing.
func (s Stats) Snapshot() metrics.Snapshot {
	goals := s.Goals
	if goals == 0 && s.NativeGoals > 0 {
		goals = s.NativeGoals
	}
	return metrics.Snapshot{
		Spent:  s.Spent,
		Clicks: float64(s.Clicks),
		Shows:  float64(s.Shows),
		Goals:  float64(goals),
	}
}

// Campaign is the top-level container of ad groups.
type Campaign struct {
	ID     int64
	Name   string
	Status Status
}

// AdGroup is a container of banners with its own aggregate stats.
type AdGroup struct {
	ID         int64
	CampaignID int64
	Name       string
	Status     Status
	Stats      Stats
}

// Banner is the leaf-level creative unit.
type Banner struct {
	ID         int64
	AdGroupID  int64
	CampaignID int64
	Name       string
	Status     Status
}

// DuplicatedBanner maps a banner in a duplicated ad group back to its source.
type DuplicatedBanner struct {
	ID       int64
	SourceID int64
	Status   Status
}

// DuplicateResult describes the copy produced by DuplicateAdGroup.
type DuplicateResult struct {
	NewID   int64
	NewName string
	Banners []DuplicatedBanner
}
