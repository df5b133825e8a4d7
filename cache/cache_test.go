package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_PutGet(t *testing.T) {
	c := New(10, time.Minute)

	c.Put("fp1", "script", "hello")

	v, ok := c.Get("fp1", "script")
	require.True(t, ok)
	assert.Equal(t, "hello", v)

	_, ok = c.Get("fp1", "analysis")
	assert.False(t, ok, "different stage must be a different key")

	_, ok = c.Get("fp2", "script")
	assert.False(t, ok, "different fingerprint must be a different key")
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New(10, 50*time.Millisecond)

	current := time.Now()
	c.now = func() time.Time { return current }

	c.Put("fp1", "script", "hello")
	_, ok := c.Get("fp1", "script")
	require.True(t, ok)

	current = current.Add(60 * time.Millisecond)
	_, ok = c.Get("fp1", "script")
	assert.False(t, ok, "entry must expire after TTL")
	assert.Equal(t, 0, c.Len())
}

func TestCache_LRUEviction(t *testing.T) {
	c := New(2, time.Minute)

	c.Put("fp1", "script", 1)
	c.Put("fp2", "script", 2)

	// Touch fp1 so fp2 becomes least recently used.
	_, ok := c.Get("fp1", "script")
	require.True(t, ok)

	c.Put("fp3", "script", 3)

	_, ok = c.Get("fp2", "script")
	assert.False(t, ok, "least recently used entry must be evicted")
	_, ok = c.Get("fp1", "script")
	assert.True(t, ok)
	_, ok = c.Get("fp3", "script")
	assert.True(t, ok)
}

func TestCache_GetOrCompute_SingleFlight(t *testing.T) {
	c := New(10, time.Minute)

	var calls int32
	compute := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return "generated", nil
	}

	var wg sync.WaitGroup
	results := make([]any, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrCompute(context.Background(), "fp1", "script", compute)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "concurrent callers must share one computation")
	for _, v := range results {
		assert.Equal(t, "generated", v)
	}
}

func TestCache_GetOrCompute_CacheHitSkipsCompute(t *testing.T) {
	c := New(10, time.Minute)

	var calls int32
	compute := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "generated", nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrCompute(context.Background(), "fp1", "script", compute)
		require.NoError(t, err)
		assert.Equal(t, "generated", v)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCache_GetOrCompute_ErrorsNotCached(t *testing.T) {
	c := New(10, time.Minute)

	boom := errors.New("boom")
	var calls int32

	_, err := c.GetOrCompute(context.Background(), "fp1", "script", func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	v, err := c.GetOrCompute(context.Background(), "fp1", "script", func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", v)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCache_GetOrCompute_WaiterHonorsContext(t *testing.T) {
	c := New(10, time.Minute)

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _ = c.GetOrCompute(context.Background(), "fp1", "script", func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return "slow", nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.GetOrCompute(ctx, "fp1", "script", func(ctx context.Context) (any, error) {
		return "other", nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

func TestCache_Defaults(t *testing.T) {
	c := New(0, 0)
	assert.Equal(t, DefaultMaxEntries, c.maxEntries)
	assert.Equal(t, DefaultTTL, c.ttl)
}
