package rules

import (
	"math"

	"github.com/ignite/adpilot/internal/metrics"
)

// Evaluate reports whether the snapshot satisfies a single condition.
//
// Two deliberate asymmetries:
//   - cost_per_goal at +Inf (zero goals) satisfies not_equals only. Any other
//     operator against infinite cost is a non-match, so a "cost_per_goal > X"
//     rule cannot fire on a unit with literally zero activity; that case is
//     governed by an explicit "goals = 0" condition instead.
//   - unknown metric names and unknown operators evaluate to false. Failing
//     closed means a data bug can never disable or duplicate anything.
func Evaluate(c Condition, snap metrics.Snapshot) bool {
	value, ok := snap.Value(c.Metric)
	if !ok {
		return false
	}

	if c.Metric == metrics.MetricCostPerGoal && math.IsInf(value, 1) {
		return c.Operator == OpNotEquals
	}

	switch c.Operator {
	case OpEquals:
		return value == c.Value
	case OpNotEquals:
		return value != c.Value
	case OpGreaterThan:
		return value > c.Value
	case OpLessThan:
		return value < c.Value
	case OpGreaterOrEqual:
		return value >= c.Value
	case OpLessOrEqual:
		return value <= c.Value
	}
	return false
}

// AllMatch reports whether every condition in the set holds, short-circuiting
// on the first failure. An empty set matches vacuously; callers that must not
// treat empty sets as blanket matches (the rule matcher) guard separately.
func AllMatch(conds []Condition, snap metrics.Snapshot) bool {
	for _, c := range conds {
		if !Evaluate(c, snap) {
			return false
		}
	}
	return true
}
