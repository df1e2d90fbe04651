package scheduler

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/acticloud/heatspreader/pkg/driver"
	"github.com/acticloud/heatspreader/pkg/health"
	"github.com/acticloud/heatspreader/pkg/reconciler"
	"github.com/acticloud/heatspreader/pkg/store/memstore"
	"github.com/acticloud/heatspreader/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	count int
}

func (f *fakeDriver) Get(ctx context.Context, stackName string) (map[string]string, error) {
	return map[string]string{"count": strconv.Itoa(f.count)}, nil
}

func (f *fakeDriver) Update(ctx context.Context, stackName string, params map[string]string) error {
	if v, ok := params["count"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		f.count = n
	}
	return nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *memstore.Store) {
	t.Helper()

	st := memstore.New()
	require.NoError(t, st.Create(context.Background(), &types.MulticloudStack{
		StackName:      "s1",
		Count:          4,
		CountParameter: "count",
		Weights:        map[string]float64{"c1": 1.0},
		CloudOrder:     []string{"c1"},
	}))

	rec := reconciler.New(reconciler.Drivers{"c1": &fakeDriver{}}, health.New())
	sched := New(st, rec, Config{UpdateFrequency: 5 * time.Millisecond, DriverTimeout: time.Second})
	return sched, st
}

func TestScheduler_RunThenStop(t *testing.T) {
	sched, _ := newTestScheduler(t)

	done := make(chan error, 1)
	go func() { done <- sched.Run(context.Background()) }()

	// let it tick at least once
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateRunning, sched.State())

	sched.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop in time")
	}
	assert.Equal(t, StateStopped, sched.State())
}

func TestScheduler_ForceStop(t *testing.T) {
	sched, _ := newTestScheduler(t)

	done := make(chan error, 1)
	go func() { done <- sched.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	sched.ForceStop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not force stop in time")
	}
	assert.Equal(t, StateForceStopped, sched.State())
}

func TestScheduler_RunTwiceErrors(t *testing.T) {
	sched, _ := newTestScheduler(t)

	done := make(chan error, 1)
	go func() { done <- sched.Run(context.Background()) }()
	time.Sleep(10 * time.Millisecond)

	err := sched.Run(context.Background())
	assert.Error(t, err)

	sched.Stop()
	<-done
}

func TestScheduler_StopIsNoopWhenIdle(t *testing.T) {
	sched, _ := newTestScheduler(t)
	sched.Stop()
	assert.Equal(t, StateIdle, sched.State())
}

func TestMaxCloudCalls(t *testing.T) {
	assert.Equal(t, 1, maxCloudCalls(nil))
	assert.Equal(t, 2, maxCloudCalls(map[string]float64{"c1": 1.0}))
	assert.Equal(t, 6, maxCloudCalls(map[string]float64{"c1": 0.3, "c2": 0.3, "c3": 0.4}))
}

var _ driver.CloudStackDriver = (*fakeDriver)(nil)
