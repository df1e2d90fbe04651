package planner

import (
	"testing"

	"github.com/acticloud/heatspreader/pkg/types"
	"github.com/stretchr/testify/assert"
)

func allAvailable(string, string) bool { return true }

func unavailable(clouds ...string) AvailabilityFunc {
	set := make(map[string]bool, len(clouds))
	for _, c := range clouds {
		set[c] = true
	}
	return func(_, cloud string) bool { return !set[cloud] }
}

func TestFailoverShare(t *testing.T) {
	tests := []struct {
		name    string
		weights map[string]float64
		avail   AvailabilityFunc
		want    float64
	}{
		{
			name:    "all available has no failover share",
			weights: map[string]float64{"c1": 0.6, "c2": 0.4},
			avail:   allAvailable,
			want:    0,
		},
		{
			name:    "one unavailable redistributes over the rest",
			weights: map[string]float64{"c1": 0.6, "c2": 0.2, "c3": 0.2},
			avail:   unavailable("c3"),
			want:    0.1,
		},
		{
			name:    "all unavailable yields zero",
			weights: map[string]float64{"c1": 0.5, "c2": 0.5},
			avail:   unavailable("c1", "c2"),
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stack := &types.MulticloudStack{StackName: "s", Weights: tt.weights}
			assert.InDelta(t, tt.want, FailoverShare(stack, tt.avail), 1e-9)
		})
	}
}

// Scenario A: even split, all healthy, current 0.
func TestDesiredCounts_ScenarioA(t *testing.T) {
	stack := &types.MulticloudStack{
		StackName:  "s",
		Count:      4,
		Weights:    map[string]float64{"c1": 0.5, "c2": 0.5},
		CloudOrder: []string{"c1", "c2"},
	}

	desired := DesiredCounts(stack, allAvailable)
	assert.Equal(t, 2, desired["c1"])
	assert.Equal(t, 2, desired["c2"])
}

// Scenario B: rounding with slack.
func TestDesiredCounts_ScenarioB(t *testing.T) {
	stack := &types.MulticloudStack{
		StackName:  "s",
		Count:      5,
		Weights:    map[string]float64{"c1": 0.0, "c2": 0.2, "c3": 0.3},
		CloudOrder: []string{"c1", "c2", "c3"},
	}

	desired := DesiredCounts(stack, allAvailable)
	assert.Equal(t, 0, desired["c1"])
	assert.Equal(t, 1, desired["c2"])
	assert.Equal(t, 2, desired["c3"])
}

// Scenario C: failover redistribution.
func TestDesiredCounts_ScenarioC(t *testing.T) {
	stack := &types.MulticloudStack{
		StackName:  "s",
		Count:      10,
		Weights:    map[string]float64{"c1": 0.6, "c2": 0.2, "c3": 0.2},
		CloudOrder: []string{"c1", "c2", "c3"},
	}

	desired := DesiredCounts(stack, unavailable("c3"))
	assert.Equal(t, 7, desired["c1"])
	assert.Equal(t, 3, desired["c2"])
	assert.Equal(t, 0, desired["c3"])
}

func TestDiff_ScenarioA(t *testing.T) {
	stack := &types.MulticloudStack{
		StackName:  "s",
		Count:      4,
		Weights:    map[string]float64{"c1": 0.5, "c2": 0.5},
		CloudOrder: []string{"c1", "c2"},
	}
	current := map[string]int{"c1": 0, "c2": 0}

	plan := Diff(stack, current, allAvailable)
	assert.Equal(t, types.CountChange{Current: 0, Desired: 2}, plan.ScaleUp["c1"])
	assert.Equal(t, types.CountChange{Current: 0, Desired: 2}, plan.ScaleUp["c2"])
	assert.Empty(t, plan.ScaleDown)
}

func TestDiff_ScenarioC(t *testing.T) {
	stack := &types.MulticloudStack{
		StackName:  "s",
		Count:      10,
		Weights:    map[string]float64{"c1": 0.6, "c2": 0.2, "c3": 0.2},
		CloudOrder: []string{"c1", "c2", "c3"},
	}
	current := map[string]int{"c1": 0, "c2": 0, "c3": 0}

	plan := Diff(stack, current, unavailable("c3"))
	assert.Equal(t, types.CountChange{Current: 0, Desired: 7}, plan.ScaleUp["c1"])
	assert.Equal(t, types.CountChange{Current: 0, Desired: 3}, plan.ScaleUp["c2"])
	_, c3InUp := plan.ScaleUp["c3"]
	_, c3InDown := plan.ScaleDown["c3"]
	assert.False(t, c3InUp)
	assert.False(t, c3InDown)
}

// Scenario D: unknown current count is omitted from the plan entirely.
func TestDiff_ScenarioD_UnknownCurrentCount(t *testing.T) {
	stack := &types.MulticloudStack{
		StackName:  "s",
		Count:      4,
		Weights:    map[string]float64{"c1": 1.0},
		CloudOrder: []string{"c1"},
	}
	current := map[string]int{"c1": Unknown}

	plan := Diff(stack, current, allAvailable)
	assert.Empty(t, plan.ScaleUp)
	assert.Empty(t, plan.ScaleDown)
}

// Scenario E: every weighted cloud unavailable yields an empty plan, not
// a scaleDown to zero.
func TestDiff_ScenarioE_AllUnavailable(t *testing.T) {
	stack := &types.MulticloudStack{
		StackName:  "s",
		Count:      4,
		Weights:    map[string]float64{"c1": 0.5, "c2": 0.5},
		CloudOrder: []string{"c1", "c2"},
	}
	current := map[string]int{"c1": 2, "c2": 2}

	plan := Diff(stack, current, unavailable("c1", "c2"))
	assert.Empty(t, plan.ScaleUp)
	assert.Empty(t, plan.ScaleDown)
}

// A cloud never appears in both scaleUp and scaleDown for the same plan.
func TestDiff_NeverBothUpAndDown(t *testing.T) {
	stack := &types.MulticloudStack{
		StackName:  "s",
		Count:      7,
		Weights:    map[string]float64{"c1": 0.3, "c2": 0.3, "c3": 0.4},
		CloudOrder: []string{"c1", "c2", "c3"},
	}

	for current := 0; current <= 10; current++ {
		counts := map[string]int{"c1": current, "c2": current, "c3": current}
		plan := Diff(stack, counts, allAvailable)
		for cloud := range plan.ScaleUp {
			_, inDown := plan.ScaleDown[cloud]
			assert.False(t, inDown, "cloud %s in both scaleUp and scaleDown at current=%d", cloud, current)
		}
	}
}

// Applying a plan and re-diffing with the applied counts yields an
// empty plan (idempotence), given stable health.
func TestDiff_IdempotentAfterApply(t *testing.T) {
	stack := &types.MulticloudStack{
		StackName:  "s",
		Count:      10,
		Weights:    map[string]float64{"c1": 0.6, "c2": 0.2, "c3": 0.2},
		CloudOrder: []string{"c1", "c2", "c3"},
	}
	current := map[string]int{"c1": 0, "c2": 0, "c3": 0}
	avail := unavailable("c3")

	plan := Diff(stack, current, avail)
	applied := map[string]int{"c1": current["c1"], "c2": current["c2"], "c3": current["c3"]}
	for cloud, change := range plan.ScaleUp {
		applied[cloud] = change.Desired
	}
	for cloud, change := range plan.ScaleDown {
		applied[cloud] = change.Desired
	}

	next := Diff(stack, applied, avail)
	assert.Empty(t, next.ScaleUp)
	assert.Empty(t, next.ScaleDown)
}

func TestRoundHalfEven(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.1231, 0.123},
		{0.1239, 0.124},
		{0.5, 0.5},
		{0.7001, 0.7},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, roundHalfEven(tt.in, 3), 1e-9)
	}
}
