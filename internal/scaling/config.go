package scaling

import (
	"fmt"
	"strings"
	"time"

	"github.com/ignite/adpilot/internal/rules"
)

// Config drives one scaling automation: which ad groups qualify for
// duplication, how many copies to produce, and what happens to positive and
// negative banners inside each copy.
type Config struct {
	ID               int64
	Name             string
	Enabled          bool
	ScheduledEnabled bool
	ScheduleTime     string // "HH:MM", daily
	AccountIDs       []int64
	Conditions       []rules.Condition
	DuplicatesCount  int
	NewBudget        *float64
	NewNameTemplate  string
	LookbackDays     int

	// Per-class toggles for banners in the copy. A class that is not
	// duplicated has no activation to speak of.
	AutoActivate             bool
	ActivatePositiveBanners  bool
	DuplicateNegativeBanners bool
	ActivateNegativeBanners  bool

	UseLeadstechROI bool
}

// Validate rejects configurations the orchestrator must not run.
func (c *Config) Validate() error {
	if c.DuplicatesCount < 1 || c.DuplicatesCount > 100 {
		return fmt.Errorf("duplicates_count %d out of range [1,100]", c.DuplicatesCount)
	}
	if c.ScheduledEnabled {
		if _, err := time.Parse("15:04", c.ScheduleTime); err != nil {
			return fmt.Errorf("invalid schedule_time %q: %w", c.ScheduleTime, err)
		}
	}
	return nil
}

// CoversAccount reports whether the config's account scope includes the account.
func (c *Config) CoversAccount(accountID int64) bool {
	if len(c.AccountIDs) == 0 {
		return true
	}
	for _, id := range c.AccountIDs {
		if id == accountID {
			return true
		}
	}
	return false
}

// ResolveNameTemplate expands the new-name template for a copy. The only
// supported placeholder is {date}, resolved to the current date. An empty
// template keeps the platform's default copy naming.
func ResolveNameTemplate(tmpl string, now time.Time) string {
	if tmpl == "" {
		return ""
	}
	return strings.ReplaceAll(tmpl, "{date}", now.Format("2006-01-02"))
}
