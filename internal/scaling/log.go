package scaling

import "time"

// Log is the persisted record of one duplication operation (one copy of one
// ad group). Rows are append-only.
type Log struct {
	ID                int64
	TaskID            string
	ConfigID          int64
	AccountID         int64
	SourceGroupID     int64
	SourceGroupName   string
	NewGroupID        int64
	NewGroupName      string
	CopyIndex         int
	Success           bool
	Error             string
	TotalBanners      int
	DuplicatedBanners int
	PositiveBannerIDs []int64
	NegativeBannerIDs []int64
	CreatedAt         time.Time
}
