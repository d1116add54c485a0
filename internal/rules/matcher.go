package rules

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ignite/adpilot/internal/metrics"
	"github.com/ignite/adpilot/internal/pkg/logger"
)

// SortRules orders rules by priority descending, ties broken by ascending id.
// The matcher always sorts explicitly instead of trusting store ordering.
func SortRules(rs []Rule) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Priority != rs[j].Priority {
			return rs[i].Priority > rs[j].Priority
		}
		return rs[i].ID < rs[j].ID
	})
}

// Match returns the first rule fully satisfied by the snapshot, or nil.
// Disabled rules and rules without conditions are skipped; a rule with no
// conditions would otherwise match every unit it is scoped to.
func Match(snap metrics.Snapshot, rs []Rule) *Rule {
	ordered := make([]Rule, len(rs))
	copy(ordered, rs)
	SortRules(ordered)

	for i := range ordered {
		r := &ordered[i]
		if !r.Enabled {
			continue
		}
		if len(r.Conditions) == 0 {
			logger.Warn("skipping rule with no conditions", "rule_id", r.ID, "rule_name", r.Name)
			continue
		}
		if AllMatch(r.Conditions, snap) {
			return r
		}
	}
	return nil
}

// MatchForAccount is Match restricted to rules whose scope covers the account.
func MatchForAccount(snap metrics.Snapshot, rs []Rule, accountID int64) *Rule {
	scoped := make([]Rule, 0, len(rs))
	for _, r := range rs {
		if r.AppliesTo(accountID) {
			scoped = append(scoped, r)
		}
	}
	return Match(snap, scoped)
}

// MatchReason renders a human-readable explanation of why the rule matched,
// one clause per condition with the actual computed value. Used verbatim in
// audit rows and notifications.
func MatchReason(r *Rule, snap metrics.Snapshot) string {
	clauses := make([]string, 0, len(r.Conditions))
	for _, c := range r.Conditions {
		value, _ := snap.Value(c.Metric)
		clauses = append(clauses, fmt.Sprintf("%s %s %s (actual %s)",
			c.Metric, c.Operator.Symbol(), formatMetricValue(c.Value), formatMetricValue(value)))
	}
	return fmt.Sprintf("rule %q: %s", r.Name, strings.Join(clauses, "; "))
}

func formatMetricValue(v float64) string {
	if math.IsInf(v, 1) {
		return "∞"
	}
	return fmt.Sprintf("%.2f", v)
}
