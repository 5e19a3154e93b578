package querycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/supercurriculum-admin/internal/models"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

func constant(v interface{}) FetchFunc {
	return func(ctx context.Context) (interface{}, error) { return v, nil }
}

func gated(v interface{}, release <-chan struct{}) FetchFunc {
	return func(ctx context.Context) (interface{}, error) {
		<-release
		return v, nil
	}
}

func loading(c *Cache, key Key) func() bool {
	return func() bool {
		e, ok := c.Get(key)
		return ok && e.IsLoading
	}
}

func TestListKeyComparesFiltersByValue(t *testing.T) {
	a := ListKey(models.ResourceActivities, models.Filter{"subject_id": "s1", "skill_id": ""})
	b := ListKey(models.ResourceActivities, models.Filter{"subject_id": " s1 "})
	c := ListKey(models.ResourceActivities, models.Filter{"subject_id": "s2"})
	d := ListKey(models.ResourceSubjects, models.Filter{"subject_id": "s1"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
}

func TestQueryIndependentEntriesPerFilter(t *testing.T) {
	cache := New(Options{})
	ctx := context.Background()
	k1 := ListKey(models.ResourceActivities, models.Filter{"subject_id": "s1"})
	k2 := ListKey(models.ResourceActivities, models.Filter{"subject_id": "s2"})

	e1, err := cache.Query(ctx, k1, constant("biology"))
	require.NoError(t, err)
	e2, err := cache.Query(ctx, k2, constant("physics"))
	require.NoError(t, err)

	assert.Equal(t, "biology", e1.Value)
	assert.Equal(t, "physics", e2.Value)
	again, _ := cache.Get(k1)
	assert.Equal(t, "biology", again.Value)
}

func TestQuerySharesSingleInFlightFetch(t *testing.T) {
	cache := New(Options{})
	key := ListKey(models.ResourceSubjects, nil)
	release := make(chan struct{})
	var calls int32
	fetch := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "subjects", nil
	}

	var wg sync.WaitGroup
	results := make([]Entry, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := cache.Query(context.Background(), key, fetch)
			assert.NoError(t, err)
			results[i] = e
		}(i)
	}
	require.Eventually(t, loading(cache, key), waitFor, tick)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, e := range results {
		assert.Equal(t, "subjects", e.Value)
	}
}

func TestQueryStaleWhileRevalidate(t *testing.T) {
	cache := New(Options{})
	key := ListKey(models.ResourceTests, nil)
	cache.Set(key, "old")
	require.Equal(t, 1, cache.InvalidateType(models.ResourceTests))

	release := make(chan struct{})
	entry, err := cache.Query(context.Background(), key, gated("new", release))
	require.NoError(t, err)
	assert.Equal(t, "old", entry.Value)
	assert.True(t, entry.Stale)
	assert.True(t, entry.IsLoading)

	close(release)
	require.Eventually(t, func() bool {
		e, _ := cache.Get(key)
		return e.Value == "new" && !e.Stale && !e.IsLoading
	}, waitFor, tick)
}

func TestQueryLastIssuedFetchWins(t *testing.T) {
	cache := New(Options{})
	key := ListKey(models.ResourceActivities, models.Filter{"stage": "KS3"})
	releaseA := make(chan struct{})

	done := make(chan Entry, 1)
	go func() {
		e, err := cache.Query(context.Background(), key, gated("A", releaseA))
		assert.NoError(t, err)
		done <- e
	}()
	require.Eventually(t, loading(cache, key), waitFor, tick)

	res := <-cache.Refetch(context.Background(), key, constant("B"))
	require.NoError(t, res.Err)
	current, _ := cache.Get(key)
	require.Equal(t, "B", current.Value)

	close(releaseA)
	shown := <-done
	assert.Equal(t, "B", shown.Value)

	require.Eventually(t, func() bool { return !loading(cache, key)() }, waitFor, tick)
	final, _ := cache.Get(key)
	assert.Equal(t, "B", final.Value)
}

func TestRefetchOrderDecidesWinner(t *testing.T) {
	for i := 0; i < 200; i++ {
		cache := New(Options{})
		key := ListKey(models.ResourceActivities, nil)
		releaseA := make(chan struct{})
		releaseB := make(chan struct{})

		a := cache.Refetch(context.Background(), key, gated("A", releaseA))
		b := cache.Refetch(context.Background(), key, gated("B", releaseB))

		close(releaseB)
		require.NoError(t, (<-b).Err)
		close(releaseA)
		require.NoError(t, (<-a).Err)

		e, _ := cache.Get(key)
		require.Equal(t, "B", e.Value, "run %d", i)
	}
}

func TestKeyScopesPrincipals(t *testing.T) {
	cache := New(Options{})
	base := ListKey(models.ResourceUsers, nil)
	alice := base.For("alice")
	bob := base.For("bob")
	assert.NotEqual(t, alice, bob)
	assert.Equal(t, base.String()+"@alice", alice.String())

	_, err := cache.Query(context.Background(), alice, constant("alice's users"))
	require.NoError(t, err)
	_, ok := cache.Get(bob)
	assert.False(t, ok)

	cache.Set(bob, "bob's users")
	assert.Equal(t, 2, cache.InvalidateType(models.ResourceUsers))
	for _, k := range []Key{alice, bob} {
		e, _ := cache.Get(k)
		assert.True(t, e.Stale, k.String())
	}
}

func TestQueryFailureKeepsPreviousValue(t *testing.T) {
	cache := New(Options{})
	key := ItemKey(models.ResourceSubjects, "s1")
	cache.Set(key, "physics")
	cache.Invalidate(key)

	boom := errors.New("backend down")
	entry, err := cache.Query(context.Background(), key, func(ctx context.Context) (interface{}, error) {
		return nil, boom
	})
	require.NoError(t, err)
	assert.Equal(t, "physics", entry.Value)

	require.Eventually(t, func() bool {
		e, _ := cache.Get(key)
		return e.IsError && !e.IsLoading
	}, waitFor, tick)
	e, _ := cache.Get(key)
	assert.Equal(t, "physics", e.Value)
	assert.ErrorIs(t, e.Err, boom)
}

func TestQueryFailureWithoutValueSurfacesError(t *testing.T) {
	cache := New(Options{})
	key := ListKey(models.ResourceUsers, nil)
	boom := errors.New("forbidden")

	entry, err := cache.Query(context.Background(), key, func(ctx context.Context) (interface{}, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	assert.True(t, entry.IsError)
	assert.False(t, entry.HasValue)

	var calls int32
	again, err := cache.Query(context.Background(), key, func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "users", nil
	})
	require.ErrorIs(t, err, boom)
	assert.True(t, again.IsError)
	assert.Zero(t, atomic.LoadInt32(&calls))

	cache.Invalidate(key)
	recovered, err := cache.Query(context.Background(), key, func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "users", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "users", recovered.Value)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestInvalidateTypeMarksOnlyThatNamespace(t *testing.T) {
	cache := New(Options{})
	ctx := context.Background()
	k1 := ListKey(models.ResourceActivities, models.Filter{"subject_id": "s1"})
	k2 := ListKey(models.ResourceActivities, models.Filter{"subject_id": "s2"})
	other := ListKey(models.ResourceSubjects, nil)
	cache.Set(k1, 1)
	cache.Set(k2, 2)
	cache.Set(other, 3)

	assert.Equal(t, 2, cache.InvalidateType(models.ResourceActivities))

	for _, k := range []Key{k1, k2} {
		e, _ := cache.Get(k)
		assert.True(t, e.Stale, k.String())
	}
	e, _ := cache.Get(other)
	assert.False(t, e.Stale)

	var calls int32
	_, err := cache.Query(ctx, k1, func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return 10, nil
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, waitFor, tick)
}

func TestInvalidationDuringFetchKeepsEntryStale(t *testing.T) {
	cache := New(Options{})
	key := ListKey(models.ResourceInterventions, nil)
	release := make(chan struct{})

	done := make(chan Entry, 1)
	go func() {
		e, _ := cache.Query(context.Background(), key, gated("pre-mutation", release))
		done <- e
	}()
	require.Eventually(t, loading(cache, key), waitFor, tick)

	cache.InvalidateType(models.ResourceInterventions)
	close(release)
	e := <-done
	assert.Equal(t, "pre-mutation", e.Value)
	assert.True(t, e.Stale)
}

func TestQueryAbandonedByCallerStillPopulates(t *testing.T) {
	cache := New(Options{})
	key := ListKey(models.ResourceYearGroups, nil)
	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := cache.Query(ctx, key, gated("years", release))
		errCh <- err
	}()
	require.Eventually(t, loading(cache, key), waitFor, tick)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		e, _ := cache.Get(key)
		return e.Value == "years"
	}, waitFor, tick)
}

func TestSubscribeReceivesInvalidations(t *testing.T) {
	cache := New(Options{})
	key := ListKey(models.ResourceSubjects, nil)
	cache.Set(key, "x")

	ch, cancel := cache.Subscribe(key)
	defer cancel()

	cache.InvalidateType(models.ResourceSubjects)
	select {
	case got := <-ch:
		assert.Equal(t, key, got)
	case <-time.After(waitFor):
		t.Fatal("expected notification")
	}

	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestStaleTimeAgesEntries(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	cache := New(Options{StaleTime: time.Minute, Now: func() time.Time { return now }})
	key := ListKey(models.ResourceTests, nil)
	cache.Set(key, "fresh")

	e, _ := cache.Get(key)
	assert.False(t, e.Stale)

	now = now.Add(2 * time.Minute)
	e, _ = cache.Get(key)
	assert.True(t, e.Stale)
}

func TestStatsCountsHitsAndMisses(t *testing.T) {
	cache := New(Options{})
	key := ListKey(models.ResourceSubjects, nil)
	_, err := cache.Query(context.Background(), key, constant(1))
	require.NoError(t, err)
	_, err = cache.Query(context.Background(), key, constant(1))
	require.NoError(t, err)

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRatio, 0.0001)
}
