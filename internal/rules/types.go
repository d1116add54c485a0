// Package rules implements condition evaluation and first-match-wins rule
// matching over metric snapshots.
package rules

import "time"

// Operator compares a metric value against a condition threshold.
type Operator string

const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "not_equals"
	OpGreaterThan    Operator = "greater_than"
	OpLessThan       Operator = "less_than"
	OpGreaterOrEqual Operator = "greater_or_equal"
	OpLessOrEqual    Operator = "less_or_equal"
)

// Symbol returns the operator's display form used in match reasons.
func (o Operator) Symbol() string {
	switch o {
	case OpEquals:
		return "="
	case OpNotEquals:
		return "!="
	case OpGreaterThan:
		return ">"
	case OpLessThan:
		return "<"
	case OpGreaterOrEqual:
		return ">="
	case OpLessOrEqual:
		return "<="
	}
	return string(o)
}

// Condition is a single metric comparison. Conditions within a rule are
// ANDed. Order is presentation-only and has no effect on evaluation.
type Condition struct {
	Metric   string   `json:"metric"`
	Operator Operator `json:"operator"`
	Value    float64  `json:"value"`
	Order    int      `json:"order"`
}

// Rule is a prioritized set of conditions, optionally scoped to specific
// accounts. Rules are read-only to the engine; the admin API owns their
// lifecycle.
type Rule struct {
	ID          int64
	Name        string
	Enabled     bool
	Priority    int
	Conditions  []Condition
	AccountIDs  []int64 // empty means all accounts
	ROISubField string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AppliesTo reports whether the rule's account scope covers the account.
func (r *Rule) AppliesTo(accountID int64) bool {
	if len(r.AccountIDs) == 0 {
		return true
	}
	for _, id := range r.AccountIDs {
		if id == accountID {
			return true
		}
	}
	return false
}

// UsesMetric reports whether any condition references the metric. The
// classification and suppression engines use this to decide whether a
// revenue join is needed before evaluation.
func UsesMetric(conds []Condition, metric string) bool {
	for _, c := range conds {
		if c.Metric == metric {
			return true
		}
	}
	return false
}
