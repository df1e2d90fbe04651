package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_CloudLazyCreate(t *testing.T) {
	r := New()
	assert.Equal(t, CloudNotChecked, r.Cloud("c1", nil))
}

func TestRegistry_CloudUpsert(t *testing.T) {
	r := New()
	healthy := CloudHealthy
	assert.Equal(t, CloudHealthy, r.Cloud("c1", &healthy))
	assert.Equal(t, CloudHealthy, r.Cloud("c1", nil))

	unreachable := CloudUnreachable
	assert.Equal(t, CloudUnreachable, r.Cloud("c1", &unreachable))
}

func TestRegistry_StackUpsert(t *testing.T) {
	r := New()
	assert.Equal(t, StackNotChecked, r.Stack("s1", "c1", nil))

	healthy := StackHealthy
	assert.Equal(t, StackHealthy, r.Stack("s1", "c1", &healthy))

	// a different cloud for the same stack is tracked independently
	assert.Equal(t, StackNotChecked, r.Stack("s1", "c2", nil))
}

func TestRegistry_Available(t *testing.T) {
	r := New()
	assert.False(t, r.Available("s1", "c1"))

	healthyCloud := CloudHealthy
	r.Cloud("c1", &healthyCloud)
	assert.False(t, r.Available("s1", "c1"), "cloud healthy but stack not yet checked")

	healthyStack := StackHealthy
	r.Stack("s1", "c1", &healthyStack)
	assert.True(t, r.Available("s1", "c1"))

	notFound := StackNotFound
	r.Stack("s1", "c1", &notFound)
	assert.False(t, r.Available("s1", "c1"))
}

func TestRegistry_AvailableRequiresBothCloudAndStackHealthy(t *testing.T) {
	r := New()
	healthyStack := StackHealthy
	r.Stack("s1", "c1", &healthyStack)
	// cloud was never marked healthy
	assert.False(t, r.Available("s1", "c1"))
}
