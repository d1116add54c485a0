// Package revenue provides the revenue-attribution collaborator used to
// compute ROI. Attribution data lives outside the ad platform and is joined
// by banner id.
package revenue

import (
	"context"

	"github.com/ignite/adpilot/internal/platform"
)

// Entry is the attribution record for one banner over a window.
type Entry struct {
	ROIPercent float64 `json:"roi_percent"`
	Revenue    float64 `json:"revenue"`
	Spent      float64 `json:"spent"`
}

// Provider returns attribution entries keyed by banner id. A missing entry
// means "no revenue data for this banner", never "zero ROI"; callers must
// distinguish the two.
type Provider interface {
	ROIForBanners(ctx context.Context, accountIDs []int64, bannerIDs []int64, window platform.Window) (map[int64]Entry, error)
}
