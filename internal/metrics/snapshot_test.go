package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshot_CTR(t *testing.T) {
	tests := []struct {
		name     string
		snap     Snapshot
		expected float64
	}{
		{"normal", Snapshot{Clicks: 5, Shows: 1000}, 0.5},
		{"zero shows", Snapshot{Clicks: 5, Shows: 0}, 0},
		{"zero everything", Snapshot{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, tt.snap.CTR(), 1e-9)
		})
	}
}

func TestSnapshot_CPC(t *testing.T) {
	snap := Snapshot{Spent: 50, Clicks: 10}
	assert.InDelta(t, 5.0, snap.CPC(), 1e-9)

	noClicks := Snapshot{Spent: 50}
	assert.True(t, math.IsInf(noClicks.CPC(), 1), "cpc with zero clicks must be +Inf")
}

func TestSnapshot_CostPerGoal(t *testing.T) {
	snap := Snapshot{Spent: 120, Goals: 4}
	assert.InDelta(t, 30.0, snap.CostPerGoal(), 1e-9)

	noGoals := Snapshot{Spent: 120}
	assert.True(t, math.IsInf(noGoals.CostPerGoal(), 1), "cost_per_goal with zero goals must be +Inf")
}

func TestSnapshot_ROI(t *testing.T) {
	t.Run("with revenue join", func(t *testing.T) {
		snap := Snapshot{Spent: 100}.WithRevenue(150)
		assert.InDelta(t, 50.0, snap.ROI(), 1e-9)
	})

	t.Run("spend without revenue join resolves to sentinel", func(t *testing.T) {
		snap := Snapshot{Spent: 80}
		assert.Equal(t, float64(ROINoRevenueData), snap.ROI())
	})

	t.Run("no spend and no join", func(t *testing.T) {
		assert.Equal(t, 0.0, Snapshot{}.ROI())
	})

	t.Run("revenue join with zero spend", func(t *testing.T) {
		snap := Snapshot{}.WithRevenue(42)
		assert.Equal(t, 0.0, snap.ROI())
	})

	t.Run("negative roi", func(t *testing.T) {
		snap := Snapshot{Spent: 200}.WithRevenue(100)
		assert.InDelta(t, -50.0, snap.ROI(), 1e-9)
	})
}

func TestSnapshot_Value(t *testing.T) {
	snap := Snapshot{Spent: 120, Clicks: 40, Shows: 2000, Goals: 0}

	for metric, expected := range map[string]float64{
		MetricSpent:  120,
		MetricClicks: 40,
		MetricShows:  2000,
		MetricGoals:  0,
		MetricCTR:    2.0,
		MetricCPC:    3.0,
	} {
		v, ok := snap.Value(metric)
		assert.True(t, ok, metric)
		assert.InDelta(t, expected, v, 1e-9, metric)
	}

	cpg, ok := snap.Value(MetricCostPerGoal)
	assert.True(t, ok)
	assert.True(t, math.IsInf(cpg, 1))

	_, ok = snap.Value("bounce_rate")
	assert.False(t, ok, "unknown metric names must be rejected")
}

func TestSum(t *testing.T) {
	a := Snapshot{Spent: 10, Clicks: 1, Shows: 100, Goals: 1}
	b := Snapshot{Spent: 20, Clicks: 3, Shows: 300, Goals: 0}.WithRevenue(15)

	sum := Sum(a, b)
	assert.Equal(t, 30.0, sum.Spent)
	assert.Equal(t, 4.0, sum.Clicks)
	assert.Equal(t, 400.0, sum.Shows)
	assert.Equal(t, 1.0, sum.Goals)
	if assert.NotNil(t, sum.Revenue) {
		assert.Equal(t, 15.0, *sum.Revenue)
	}

	noJoin := Sum(a, Snapshot{Spent: 5})
	assert.Nil(t, noJoin.Revenue, "summing unjoined snapshots must not fabricate a join")
}
