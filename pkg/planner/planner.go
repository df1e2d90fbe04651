// Package planner computes the weighted per-cloud instance counts for a
// multicloud stack and diffs them against observed counts to produce an
// UpdatePlan. Every function here is pure and deterministic: given the
// same stack, current counts, and availability, it always returns the
// same plan. All health side-effects live in the reconciler, not here.
package planner

import (
	"math"

	"github.com/acticloud/heatspreader/pkg/types"
)

// Unknown is a sentinel for "current count could not be determined this
// tick" (health not OK, or the value couldn't be parsed). It is distinct
// from any valid count including zero.
const Unknown = -1

// AvailabilityFunc reports whether stackName is reachable on cloudName.
type AvailabilityFunc func(stackName, cloudName string) bool

// FailoverShare returns the per-healthy-cloud weight addend derived from
// the sum of weights of currently unavailable clouds. It is 0 when no
// cloud in the stack's weight map is currently available.
func FailoverShare(stack *types.MulticloudStack, available AvailabilityFunc) float64 {
	var unavailableWeight float64
	healthyCount := 0

	for cloud, weight := range stack.Weights {
		if !available(stack.StackName, cloud) {
			unavailableWeight += weight
			continue
		}
		healthyCount++
	}

	if healthyCount == 0 {
		return 0
	}
	return unavailableWeight / float64(healthyCount)
}

// DesiredCounts computes the desired instance count per cloud. Unavailable
// clouds get a desired count of zero. Available clouds get
// the configured weight plus the failover share, rounded half-to-even
// at 3 decimals, then multiplied by the stack's total count and rounded
// up (ceiling keeps aggregate capacity at or above what was requested
// for most weight splits).
func DesiredCounts(stack *types.MulticloudStack, available AvailabilityFunc) map[string]int {
	failoverShare := FailoverShare(stack, available)

	desired := make(map[string]int, len(stack.Weights))
	for cloud, weight := range stack.Weights {
		if !available(stack.StackName, cloud) {
			desired[cloud] = 0
			continue
		}

		effective := roundHalfEven(weight+failoverShare, 3)
		desired[cloud] = int(math.Ceil(float64(stack.Count) * effective))
	}

	return desired
}

// Diff computes the UpdatePlan for a stack given a snapshot of current
// per-cloud counts. currentCounts should use planner.Unknown
// for clouds whose count could not be observed this tick. Processing
// order follows stack.Clouds(), which is stable but otherwise
// unspecified; it has no bearing on the resulting plan's contents.
func Diff(stack *types.MulticloudStack, currentCounts map[string]int, available AvailabilityFunc) types.UpdatePlan {
	desired := DesiredCounts(stack, available)
	plan := types.NewUpdatePlan()

	for _, cloud := range stack.Clouds() {
		if !available(stack.StackName, cloud) {
			continue
		}

		current, ok := currentCounts[cloud]
		if !ok || current == Unknown {
			continue
		}

		want := desired[cloud]
		switch {
		case want == current:
			// satisfied, no action
		case current < want:
			plan.ScaleUp[cloud] = types.CountChange{Current: current, Desired: want}
		default:
			plan.ScaleDown[cloud] = types.CountChange{Current: current, Desired: want}
		}
	}

	return plan
}

// roundHalfEven rounds f to the given number of decimal places using
// round-half-to-even (banker's rounding), which is what keeps a stable
// tick's plan stable under floating point drift between ticks.
func roundHalfEven(f float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	scaled := f * scale

	floor := math.Floor(scaled)
	diff := scaled - floor

	switch {
	case diff < 0.5:
		return floor / scale
	case diff > 0.5:
		return (floor + 1) / scale
	default:
		// Exactly halfway: round to even.
		if math.Mod(floor, 2) == 0 {
			return floor / scale
		}
		return (floor + 1) / scale
	}
}
