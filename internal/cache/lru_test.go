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

func TestLRUCacheGetSet(t *testing.T) {
	c := NewLRUCache[string](2, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")

	value, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", value)

	// "b" is now least recently used.
	c.Set("c", "3")
	_, ok = c.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Size())
}

func TestLRUCacheExpiry(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	c.Set("b", 2)

	now = now.Add(2 * time.Minute)
	_, ok := c.Get("a")
	assert.False(t, ok)

	assert.Equal(t, 1, c.CleanExpired())
	assert.Equal(t, 0, c.Size())
}

func TestLRUCacheDeleteAndClear(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Size())
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestGetOrLoad(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	calls := 0
	load := func(context.Context) (int, error) {
		calls++
		return 42, nil
	}

	value, err := c.GetOrLoad(context.Background(), "k", load)
	require.NoError(t, err)
	assert.Equal(t, 42, value)

	value, err = c.GetOrLoad(context.Background(), "k", load)
	require.NoError(t, err)
	assert.Equal(t, 42, value)
	assert.Equal(t, 1, calls)
}

func TestGetOrLoadDoesNotCacheErrors(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)

	_, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) { return 0, errors.New("db down") })
	require.Error(t, err)
	assert.Equal(t, 0, c.Size())
}

func TestGetOrLoadSkipsWriteBackAfterInvalidation(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)

	value, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) {
		// a write lands while the load is in flight
		c.Clear()
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, value)

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestGetOrLoadDeduplicatesConcurrentLoads(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	var calls int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return 7, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, 7, value)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(5))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
}

func TestGetOrLoadSurvivesCancelledLeader(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	started := make(chan struct{})
	release := make(chan struct{})
	var loadErr error

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderDone := make(chan error, 1)
	go func() {
		_, err := c.GetOrLoad(leaderCtx, "k", func(ctx context.Context) (int, error) {
			close(started)
			select {
			case <-release:
				return 9, nil
			case <-ctx.Done():
				loadErr = ctx.Err()
				return 0, ctx.Err()
			}
		})
		leaderDone <- err
	}()
	<-started

	followerDone := make(chan struct{})
	var value int
	var err error
	go func() {
		defer close(followerDone)
		value, err = c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) {
			return 0, errors.New("shared load should be reused")
		})
	}()

	// let the follower join the flight, then abandon the leader
	time.Sleep(50 * time.Millisecond)
	cancelLeader()
	assert.ErrorIs(t, <-leaderDone, context.Canceled)

	close(release)
	<-followerDone

	require.NoError(t, err)
	assert.Equal(t, 9, value)
	assert.NoError(t, loadErr)

	cached, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 9, cached)
}

func TestGetOrLoadKeepsContextValues(t *testing.T) {
	type traceKey struct{}
	c := NewLRUCache[string](10, time.Minute)
	ctx := context.WithValue(context.Background(), traceKey{}, "trace-1")

	value, err := c.GetOrLoad(ctx, "k", func(ctx context.Context) (string, error) {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return ctx.Value(traceKey{}).(string), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "trace-1", value)
}

func TestManagerCleanNow(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("a", 1)

	m := NewManager()
	m.Register(c)

	assert.Equal(t, 0, m.CleanNow())
	now = now.Add(time.Hour)
	assert.Equal(t, 1, m.CleanNow())

	m.StartCleanup(time.Millisecond)
	m.Stop()
}
