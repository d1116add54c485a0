// Package metrics defines the per-unit performance snapshot the rule engine
// evaluates. Derived metrics are computed on demand from the raw counters so
// a snapshot can never carry an inconsistent precomputed value.
package metrics

import "math"

// Metric names accepted in rule conditions.
const (
	MetricSpent       = "spent"
	MetricClicks      = "clicks"
	MetricShows       = "shows"
	MetricGoals       = "goals"
	MetricCTR         = "ctr"
	MetricCPC         = "cpc"
	MetricCostPerGoal = "cost_per_goal"
	MetricROI         = "roi"
)

// ROINoRevenueData is the ROI reported for a unit that has spend but no
// revenue attribution entry. The magnitude makes any sane "roi less than X"
// disable rule match. It deliberately conflates "certainly bad" with
// "unknown"; changing it would silently change which rules fire, so it is
// kept as-is.
const ROINoRevenueData = -100000000

// Snapshot holds the raw counters for one ad unit (banner or ad group)
// over an analysis window. Revenue is nil when no revenue-attribution entry
// exists for the unit, which is different from zero revenue.
type Snapshot struct {
	Spent   float64
	Clicks  float64
	Shows   float64
	Goals   float64
	Revenue *float64
}

// WithRevenue returns a copy of the snapshot with the revenue join applied.
func (s Snapshot) WithRevenue(revenue float64) Snapshot {
	s.Revenue = &revenue
	return s
}

// CTR is the click-through rate in percent. Zero shows yields zero, not NaN.
func (s Snapshot) CTR() float64 {
	if s.Shows == 0 {
		return 0
	}
	return s.Clicks / s.Shows * 100
}

// CPC is the cost per click. Zero clicks yields +Inf so that
// "cpc < threshold" can never match a unit that got no clicks.
func (s Snapshot) CPC() float64 {
	if s.Clicks == 0 {
		return math.Inf(1)
	}
	return s.Spent / s.Clicks
}

// CostPerGoal is the cost per conversion. Zero goals yields +Inf; the
// condition evaluator gives +Inf special treatment for this metric.
func (s Snapshot) CostPerGoal() float64 {
	if s.Goals == 0 {
		return math.Inf(1)
	}
	return s.Spent / s.Goals
}

// ROI is the return on investment in percent.
// No revenue join and no spend: 0. No revenue join with spend:
// ROINoRevenueData. With a join, zero spend also yields 0 to avoid a
// division by zero.
func (s Snapshot) ROI() float64 {
	if s.Revenue == nil {
		if s.Spent > 0 {
			return ROINoRevenueData
		}
		return 0
	}
	if s.Spent == 0 {
		return 0
	}
	return (*s.Revenue - s.Spent) / s.Spent * 100
}

// Value looks up a metric by its condition name. The second return is false
// for unknown metric names, which the evaluator treats as a non-match.
func (s Snapshot) Value(metric string) (float64, bool) {
	switch metric {
	case MetricSpent:
		return s.Spent, true
	case MetricClicks:
		return s.Clicks, true
	case MetricShows:
		return s.Shows, true
	case MetricGoals:
		return s.Goals, true
	case MetricCTR:
		return s.CTR(), true
	case MetricCPC:
		return s.CPC(), true
	case MetricCostPerGoal:
		return s.CostPerGoal(), true
	case MetricROI:
		return s.ROI(), true
	}
	return 0, false
}

// Sum merges two snapshots of the same window. Revenue joins are summed when
// either side has one; a unit with any attribution data is considered joined.
func Sum(a, b Snapshot) Snapshot {
	out := Snapshot{
		Spent:  a.Spent + b.Spent,
		Clicks: a.Clicks + b.Clicks,
		Shows:  a.Shows + b.Shows,
		Goals:  a.Goals + b.Goals,
	}
	if a.Revenue != nil || b.Revenue != nil {
		var rev float64
		if a.Revenue != nil {
			rev += *a.Revenue
		}
		if b.Revenue != nil {
			rev += *b.Revenue
		}
		out.Revenue = &rev
	}
	return out
}
