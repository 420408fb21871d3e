package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(t *testing.T, op string, args any) Key {
	t.Helper()
	k, err := NewKey(op, args)
	require.NoError(t, err)
	return k
}

func value(v any) ComputeFunc {
	return func(context.Context) (any, error) { return v, nil }
}

func counting(n *atomic.Int32, v any) ComputeFunc {
	return func(context.Context) (any, error) {
		n.Add(1)
		return v, nil
	}
}

func TestNewKeyCanonical(t *testing.T) {
	type pageArgs struct {
		Page     int `json:"page"`
		PageSize int `json:"page_size"`
	}
	a := key(t, "list_customers", pageArgs{Page: 1, PageSize: 100})
	b := key(t, "list_customers", pageArgs{PageSize: 100, Page: 1})
	assert.Equal(t, a, b)

	m1 := key(t, "aggregate", map[string]any{"b": 1, "a": "x"})
	m2 := key(t, "aggregate", map[string]any{"a": "x", "b": 1})
	assert.Equal(t, m1, m2)

	assert.NotEqual(t, a, key(t, "list_customers", pageArgs{Page: 2, PageSize: 100}))
}

func TestGetOrComputeHit(t *testing.T) {
	c := New(10)
	ctx := context.Background()
	var calls atomic.Int32
	k := key(t, "op", "a")

	v, hit, err := c.GetOrCompute(ctx, k, 1, counting(&calls, 42))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 42, v)

	v, hit, err = c.GetOrCompute(ctx, k, 1, counting(&calls, 43))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 42, v)
	assert.Equal(t, int32(1), calls.Load())

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestLRUEvictsLeastRecentlyAccessed(t *testing.T) {
	const capacity = 3
	c := New(capacity)
	ctx := context.Background()

	keys := make([]Key, capacity+1)
	for i := range keys {
		keys[i] = key(t, "op", i)
	}
	for i := 0; i < capacity; i++ {
		_, _, err := c.GetOrCompute(ctx, keys[i], 1, value(i))
		require.NoError(t, err)
	}

	// touch key 0 so key 1 becomes the oldest access
	_, hit, _ := c.GetOrCompute(ctx, keys[0], 1, value(-1))
	require.True(t, hit)

	_, _, err := c.GetOrCompute(ctx, keys[capacity], 1, value(capacity))
	require.NoError(t, err)
	assert.Equal(t, capacity, c.Len())
	assert.Equal(t, int64(1), c.Stats().Evictions)

	var calls atomic.Int32
	_, hit, _ = c.GetOrCompute(ctx, keys[1], 1, counting(&calls, 1))
	assert.False(t, hit)
	assert.Equal(t, int32(1), calls.Load(), "evicted key must be recomputed")

	_, hit, _ = c.GetOrCompute(ctx, keys[capacity], 1, value(-1))
	assert.True(t, hit)
}

func TestStaleGenerationIsEvicted(t *testing.T) {
	c := New(10)
	ctx := context.Background()
	k := key(t, "op", "stale")

	_, _, err := c.GetOrCompute(ctx, k, 1, value("old"))
	require.NoError(t, err)

	v, hit, err := c.GetOrCompute(ctx, k, 2, value("new"))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "new", v)
	assert.Equal(t, int64(1), c.Stats().StaleEvictions)

	_, gen, ok := c.Peek(k)
	require.True(t, ok)
	assert.Equal(t, uint64(2), gen)
}

func TestOlderGenerationResultNotStored(t *testing.T) {
	c := New(10)
	ctx := context.Background()
	c.Advance(5)

	k := key(t, "op", "late")
	v, hit, err := c.GetOrCompute(ctx, k, 4, value("late"))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "late", v)
	assert.Equal(t, 0, c.Len())
}

func TestSweepRemovesStaleEntries(t *testing.T) {
	c := New(10)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, _, err := c.GetOrCompute(ctx, key(t, "op", i), 1, value(i))
		require.NoError(t, err)
	}
	_, _, err := c.GetOrCompute(ctx, key(t, "op", "fresh"), 2, value("fresh"))
	require.NoError(t, err)

	assert.Equal(t, 4, c.Sweep())
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(0), c.Stats().Evictions)
}

func TestConcurrentMissesCoalesce(t *testing.T) {
	c := New(10)
	ctx := context.Background()
	k := key(t, "op", "storm")

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "done", nil
	}

	const callers = 16
	var wg sync.WaitGroup
	results := make([]any, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := c.GetOrCompute(ctx, k, 1, compute)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, "done", v)
	}
}

func TestCancelledComputationNotCached(t *testing.T) {
	c := New(10)
	k := key(t, "op", "cancel")

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()

	_, _, err := c.GetOrCompute(ctx, k, 1, func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)

	require.Eventually(t, func() bool {
		_, _, ok := c.Peek(k)
		return !ok
	}, time.Second, time.Millisecond)
	assert.Equal(t, 0, c.Len())
}

func TestWaiterRetriesWhenLeaderCancelled(t *testing.T) {
	c := New(10)
	k := key(t, "op", "retry")

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderStarted := make(chan struct{})
	var calls atomic.Int32

	compute := func(ctx context.Context) (any, error) {
		if calls.Add(1) == 1 {
			close(leaderStarted)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return "second", nil
	}

	leaderDone := make(chan error, 1)
	go func() {
		_, _, err := c.GetOrCompute(leaderCtx, k, 1, compute)
		leaderDone <- err
	}()
	<-leaderStarted

	waiterDone := make(chan any, 1)
	go func() {
		v, _, err := c.GetOrCompute(context.Background(), k, 1, compute)
		assert.NoError(t, err)
		waiterDone <- v
	}()

	time.Sleep(20 * time.Millisecond)
	cancelLeader()

	assert.ErrorIs(t, <-leaderDone, context.Canceled)
	select {
	case v := <-waiterDone:
		assert.Equal(t, "second", v)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter did not retry after leader cancellation")
	}
}

func TestFailedComputationNotCached(t *testing.T) {
	c := New(10)
	k := key(t, "op", "fail")
	boom := errors.New("boom")

	_, _, err := c.GetOrCompute(context.Background(), k, 1, func(context.Context) (any, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	v, hit, err := c.GetOrCompute(context.Background(), k, 1, value("ok"))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "ok", v)
}

func TestPanickingComputationReturnsError(t *testing.T) {
	c := New(10)
	k := key(t, "op", "panic")

	_, _, err := c.GetOrCompute(context.Background(), k, 1, func(context.Context) (any, error) {
		var rows []int
		return rows[-1+len(rows)], nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrComputePanic)
	var pe *PanicError
	require.True(t, errors.As(err, &pe))
	assert.NotEmpty(t, pe.Stack)
	assert.Equal(t, 0, c.Len())

	v, _, err := c.GetOrCompute(context.Background(), k, 1, value("recovered"))
	require.NoError(t, err)
	assert.Equal(t, "recovered", v)
}

func TestDefaultCapacity(t *testing.T) {
	c := New(0)
	assert.Equal(t, DefaultCapacity, c.Stats().Capacity)
	assert.Equal(t, "op", fmt.Sprint(Key{Operation: "op"}))
}
