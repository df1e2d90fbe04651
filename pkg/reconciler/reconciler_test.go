package reconciler

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/acticloud/heatspreader/pkg/driver"
	"github.com/acticloud/heatspreader/pkg/health"
	"github.com/acticloud/heatspreader/pkg/metrics"
	"github.com/acticloud/heatspreader/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDriver is an in-memory driver.CloudStackDriver: it holds one
// integer parameter per stack and can be told to fail every Get or every
// Update with a fixed error.
type fakeDriver struct {
	mu         sync.Mutex
	params     map[string]map[string]string
	getCalls   int
	updateErr  error
	getErr     error
	missingKey bool
	onGet      func()
}

func newFakeDriver(counts map[string]int, parameter string) *fakeDriver {
	params := make(map[string]map[string]string, len(counts))
	for stack, count := range counts {
		params[stack] = map[string]string{parameter: strconv.Itoa(count)}
	}
	return &fakeDriver{params: params}
}

func (f *fakeDriver) Get(ctx context.Context, stackName string) (map[string]string, error) {
	f.mu.Lock()
	f.getCalls++
	hook := f.onGet
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if f.getErr != nil {
		return nil, f.getErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.params[stackName]
	if !ok {
		return nil, driver.NotFound(nil)
	}
	if f.missingKey {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out, nil
}

func (f *fakeDriver) Update(ctx context.Context, stackName string, update map[string]string) error {
	if f.updateErr != nil {
		return f.updateErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.params[stackName]
	if !ok {
		return driver.NotFound(nil)
	}
	for k, v := range update {
		p[k] = v
	}
	return nil
}

func newReconciler(drivers Drivers) (*Reconciler, *health.Registry) {
	registry := health.New()
	return New(drivers, registry), registry
}

func TestReconcile_ScaleUp(t *testing.T) {
	c1 := newFakeDriver(map[string]int{"s1": 0}, "count")
	c2 := newFakeDriver(map[string]int{"s1": 0}, "count")
	rec, registry := newReconciler(Drivers{"c1": c1, "c2": c2})

	stack := &types.MulticloudStack{
		StackName:      "s1",
		Count:          4,
		CountParameter: "count",
		Weights:        map[string]float64{"c1": 0.5, "c2": 0.5},
		CloudOrder:     []string{"c1", "c2"},
	}

	err := rec.Reconcile(context.Background(), stack)
	require.NoError(t, err)

	assert.Equal(t, "2", c1.params["s1"]["count"])
	assert.Equal(t, "2", c2.params["s1"]["count"])
	assert.True(t, registry.Available("s1", "c1"))
	assert.True(t, registry.Available("s1", "c2"))
}

func TestReconcile_Idempotent(t *testing.T) {
	c1 := newFakeDriver(map[string]int{"s1": 2}, "count")
	rec, _ := newReconciler(Drivers{"c1": c1})

	stack := &types.MulticloudStack{
		StackName:      "s1",
		Count:          4,
		CountParameter: "count",
		Weights:        map[string]float64{"c1": 0.5},
		CloudOrder:     []string{"c1"},
	}

	require.NoError(t, rec.Reconcile(context.Background(), stack))
	assert.Equal(t, 1, c1.getCalls)
	assert.Equal(t, "2", c1.params["s1"]["count"], "desired is ceil(4*0.5)=2, already satisfied, no update issued")
}

func TestReconcile_NotFoundMarksStackHealth(t *testing.T) {
	c1 := newFakeDriver(map[string]int{}, "count")
	rec, registry := newReconciler(Drivers{"c1": c1})

	stack := &types.MulticloudStack{
		StackName:      "missing-stack",
		Count:          2,
		CountParameter: "count",
		Weights:        map[string]float64{"c1": 1.0},
		CloudOrder:     []string{"c1"},
	}

	require.NoError(t, rec.Reconcile(context.Background(), stack))
	assert.Equal(t, health.StackNotFound, registry.Stack("missing-stack", "c1", nil))
	assert.False(t, registry.Available("missing-stack", "c1"))
}

func TestReconcile_MissingCountParameterMarksStackHealth(t *testing.T) {
	c1 := newFakeDriver(map[string]int{"s1": 0}, "count")
	c1.missingKey = true
	rec, registry := newReconciler(Drivers{"c1": c1})

	stack := &types.MulticloudStack{
		StackName:      "s1",
		Count:          2,
		CountParameter: "count",
		Weights:        map[string]float64{"c1": 1.0},
		CloudOrder:     []string{"c1"},
	}

	require.NoError(t, rec.Reconcile(context.Background(), stack))
	assert.Equal(t, health.StackMissingCountParameter, registry.Stack("s1", "c1", nil))
}

func TestReconcile_CloudNotConfiguredSkipped(t *testing.T) {
	rec, registry := newReconciler(Drivers{})

	stack := &types.MulticloudStack{
		StackName:      "s1",
		Count:          2,
		CountParameter: "count",
		Weights:        map[string]float64{"unknown-cloud": 1.0},
		CloudOrder:     []string{"unknown-cloud"},
	}

	require.NoError(t, rec.Reconcile(context.Background(), stack))
	// CloudNotConfigured must not alter health status at all.
	assert.Equal(t, health.CloudNotChecked, registry.Cloud("unknown-cloud", nil))
}

// Scenario F: a context cancelled mid-gather stops the reconciler before
// any Update is issued.
func TestReconcile_CancelledMidGather(t *testing.T) {
	c1 := newFakeDriver(map[string]int{"s1": 0}, "count")
	c2 := newFakeDriver(map[string]int{"s1": 0}, "count")
	c3 := newFakeDriver(map[string]int{"s1": 0}, "count")

	ctx, cancel := context.WithCancel(context.Background())
	c2.onGet = func() { cancel() }

	rec, _ := newReconciler(Drivers{"c1": c1, "c2": c2, "c3": c3})

	stack := &types.MulticloudStack{
		StackName:      "s1",
		Count:          9,
		CountParameter: "count",
		Weights:        map[string]float64{"c1": 0.33, "c2": 0.33, "c3": 0.34},
		CloudOrder:     []string{"c1", "c2", "c3"},
	}

	err := rec.Reconcile(ctx, stack)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "0", c3.params["s1"]["count"], "no Update may reach c3 once the context is cancelled")
}

func TestReconcile_CloudHealthGaugeTracksSuccessAndFailure(t *testing.T) {
	c1 := newFakeDriver(map[string]int{"s1": 0}, "count")
	rec, _ := newReconciler(Drivers{"c1": c1})

	stack := &types.MulticloudStack{
		StackName:      "s1",
		Count:          2,
		CountParameter: "count",
		Weights:        map[string]float64{"c1": 1.0},
		CloudOrder:     []string{"c1"},
	}

	require.NoError(t, rec.Reconcile(context.Background(), stack))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CloudHealthGauge.WithLabelValues("c1")))

	c1.getErr = driver.Unreachable(nil)
	require.NoError(t, rec.Reconcile(context.Background(), stack))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.CloudHealthGauge.WithLabelValues("c1")))
}
