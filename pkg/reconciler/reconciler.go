// Package reconciler drives one multicloud stack's observed per-cloud
// instance counts toward the weighted targets the planner computes. Every
// call into a cloud driver is funneled through stackAction, which
// classifies the outcome into the health registry the same way regardless
// of which driver method was called.
package reconciler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/acticloud/heatspreader/pkg/driver"
	"github.com/acticloud/heatspreader/pkg/health"
	"github.com/acticloud/heatspreader/pkg/log"
	"github.com/acticloud/heatspreader/pkg/metrics"
	"github.com/acticloud/heatspreader/pkg/planner"
	"github.com/acticloud/heatspreader/pkg/types"
)

// Drivers maps a configured cloud name to the driver bound to it.
type Drivers map[string]driver.CloudStackDriver

// Reconciler reconciles one stack at a time. It holds no per-stack state
// between calls; every Reconcile call re-derives the plan from a fresh
// snapshot of observed counts.
type Reconciler struct {
	drivers Drivers
	health  *health.Registry
}

// New returns a Reconciler bound to the given per-cloud drivers and health
// registry. Reconcile only ever touches clouds present in drivers; any
// cloud named in a stack's weights but absent here is logged and skipped.
func New(drivers Drivers, registry *health.Registry) *Reconciler {
	return &Reconciler{drivers: drivers, health: registry}
}

// stackAction runs fn against cloudName's driver and classifies the
// outcome into the health registry: success marks both the cloud and the
// stack on it healthy, a classified failure marks the narrowest thing
// that failed, and an unrecognized error is treated the same as an
// unreachable cloud since it gives no evidence otherwise.
func stackAction[T any](r *Reconciler, ctx context.Context, stack *types.MulticloudStack, cloudName string, fn func(context.Context, driver.CloudStackDriver) (T, error)) (T, error) {
	var zero T

	d, ok := r.drivers[cloudName]
	if !ok {
		log.WithStack(stack.StackName).Error().Str("cloud_name", cloudName).Msg("cloud_not_in_config")
		return zero, fmt.Errorf("cloud %q not configured", cloudName)
	}

	value, err := fn(ctx, d)
	_log := log.WithStack(stack.StackName)

	if err == nil {
		healthy := health.CloudHealthy
		r.health.Cloud(cloudName, &healthy)
		stackHealthy := health.StackHealthy
		r.health.Stack(stack.StackName, cloudName, &stackHealthy)
		metrics.CloudHealthGauge.WithLabelValues(cloudName).Set(1)
		return value, nil
	}

	kind := driver.ClassifyKind(err)
	metrics.DriverErrorsTotal.WithLabelValues(cloudName, kindLabel(kind)).Inc()

	switch kind {
	case driver.KindNotFound:
		_log.Warn().Str("cloud_name", cloudName).Msg("stack_not_found")
		status := health.StackNotFound
		r.health.Stack(stack.StackName, cloudName, &status)
	case driver.KindMissingCountParameter:
		_log.Error().Str("cloud_name", cloudName).Str("count_parameter", stack.CountParameter).Msg("stack_missing_count_parameter")
		status := health.StackMissingCountParameter
		r.health.Stack(stack.StackName, cloudName, &status)
	default:
		_log.Error().Str("cloud_name", cloudName).Err(err).Msg("cloud_connection_failed")
		status := health.CloudUnreachable
		r.health.Cloud(cloudName, &status)
		metrics.CloudHealthGauge.WithLabelValues(cloudName).Set(0)
	}

	return zero, err
}

func kindLabel(k driver.Kind) string {
	switch k {
	case driver.KindNotFound:
		return "not_found"
	case driver.KindUnreachable:
		return "unreachable"
	case driver.KindMissingCountParameter:
		return "missing_count_parameter"
	default:
		return "other"
	}
}

func (r *Reconciler) getCurrentCount(ctx context.Context, stack *types.MulticloudStack, cloudName string) (int, error) {
	return stackAction(r, ctx, stack, cloudName, func(ctx context.Context, d driver.CloudStackDriver) (int, error) {
		params, err := d.Get(ctx, stack.StackName)
		if err != nil {
			return 0, err
		}

		raw, ok := params[stack.CountParameter]
		if !ok {
			return 0, driver.MissingCountParameter(stack.CountParameter)
		}

		count, err := strconv.Atoi(raw)
		if err != nil {
			return 0, driver.Unreachable(fmt.Errorf("parsing count parameter %q: %w", stack.CountParameter, err))
		}
		return count, nil
	})
}

// gatherCounts fetches the current instance count of stack on every cloud
// it is weighted for. A cloud whose count could not be determined this
// tick gets planner.Unknown rather than being omitted, so the planner can
// distinguish "not observed" from "observed as zero".
func (r *Reconciler) gatherCounts(ctx context.Context, stack *types.MulticloudStack) map[string]int {
	counts := make(map[string]int, len(stack.Weights))

	for _, cloudName := range stack.Clouds() {
		if ctx.Err() != nil {
			break
		}

		count, err := r.getCurrentCount(ctx, stack, cloudName)
		if err != nil {
			counts[cloudName] = planner.Unknown
			continue
		}
		counts[cloudName] = count
	}

	return counts
}

func (r *Reconciler) scaleStack(ctx context.Context, stack *types.MulticloudStack, cloudName string, desired int) error {
	_, err := stackAction(r, ctx, stack, cloudName, func(ctx context.Context, d driver.CloudStackDriver) (struct{}, error) {
		params := map[string]string{stack.CountParameter: strconv.Itoa(desired)}
		return struct{}{}, d.Update(ctx, stack.StackName, params)
	})
	return err
}

// Reconcile gathers stack's current per-cloud counts, diffs them against
// the weighted desired counts, and applies the resulting plan: every
// scale-up first, then every scale-down. It returns the first context
// cancellation error it observes; driver errors are logged and reflected
// in the health registry, not returned, since one cloud's failure must
// not stop the others from being reconciled.
func (r *Reconciler) Reconcile(ctx context.Context, stack *types.MulticloudStack) error {
	currentCounts := r.gatherCounts(ctx, stack)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	plan := planner.Diff(stack, currentCounts, r.health.Available)

	_log := log.WithStack(stack.StackName)
	for _, cloudName := range stack.Clouds() {
		current, ok := currentCounts[cloudName]
		if !ok {
			continue
		}
		if _, upping := plan.ScaleUp[cloudName]; upping {
			continue
		}
		if _, downing := plan.ScaleDown[cloudName]; downing {
			continue
		}
		_log.Debug().Str("cloud_name", cloudName).Int("count_current", current).Msg("satisfied")
	}

	if plan.IsEmpty() {
		return nil
	}

	for _, cloudName := range stack.Clouds() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		change, ok := plan.ScaleUp[cloudName]
		if !ok {
			continue
		}

		_log.Info().Str("cloud_name", cloudName).
			Int("count_current", change.Current).
			Int("count_desired", change.Desired).
			Msg("scale_up")

		if err := r.scaleStack(ctx, stack, cloudName, change.Desired); err != nil {
			continue
		}
		metrics.ScaleActionsTotal.WithLabelValues(cloudName, "up").Inc()
	}

	// Scale-down intentionally runs after every scale-up has been issued,
	// not after they have finished: a scale-up may still be in progress
	// on the cloud side when the next tick starts.
	for _, cloudName := range stack.Clouds() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		change, ok := plan.ScaleDown[cloudName]
		if !ok {
			continue
		}

		_log.Info().Str("cloud_name", cloudName).
			Int("count_current", change.Current).
			Int("count_desired", change.Desired).
			Msg("scale_down")

		if err := r.scaleStack(ctx, stack, cloudName, change.Desired); err != nil {
			continue
		}
		metrics.ScaleActionsTotal.WithLabelValues(cloudName, "down").Inc()
	}

	return nil
}
