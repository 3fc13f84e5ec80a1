package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dustinevan/rcmd/internal/job"
)

func testLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()
	log, err := zap.NewDevelopment()
	require.NoError(t, err)
	return log.Sugar()
}

func TestPoolForCreatesOnFirstUse(t *testing.T) {
	r := New(context.Background(), testLogger(t))
	assert.False(t, r.Has("alice"))

	p := r.PoolFor("alice")
	require.NotNil(t, p)
	assert.True(t, r.Has("alice"))
}

func TestPoolForReturnsSamePoolForSamePrincipal(t *testing.T) {
	r := New(context.Background(), testLogger(t))
	first := r.PoolFor("alice")
	second := r.PoolFor("alice")
	assert.Same(t, first, second)
}

func TestPoolForIsolatesPrincipals(t *testing.T) {
	r := New(context.Background(), testLogger(t))
	alice := r.PoolFor("alice")
	bob := r.PoolFor("bob")
	assert.NotSame(t, alice, bob)
}

// TestConcurrentFirstRequestsShareOnePool exercises the double-checked
// lock in PoolFor: many goroutines racing to create the same principal's
// pool must all observe the same instance.
func TestConcurrentFirstRequestsShareOnePool(t *testing.T) {
	r := New(context.Background(), testLogger(t))

	const n = 10
	pools := make([]*job.Pool, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			pools[i] = r.PoolFor("racer")
		}()
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Same(t, pools[0], pools[i])
	}
}
