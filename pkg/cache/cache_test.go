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

	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/metrics"
)

func constFetcher(calls *atomic.Int32, payload string) Fetcher {
	return func(ctx context.Context) ([]byte, []string, error) {
		calls.Add(1)
		return []byte(payload), nil, nil
	}
}

func TestGetCachesFreshEntries(t *testing.T) {
	c := New(WithMetrics(metrics.New()))
	var calls atomic.Int32

	for i := 0; i < 3; i++ {
		data, err := c.Get(context.Background(), KeyUnreadCount, []string{TagUnreadCount}, constFetcher(&calls, `{"unreadCount":1}`))
		require.NoError(t, err)
		assert.Equal(t, `{"unreadCount":1}`, string(data))
	}
	assert.Equal(t, int32(1), calls.Load())

	e, ok := c.Peek(KeyUnreadCount)
	require.True(t, ok)
	assert.False(t, e.Stale)
	assert.Equal(t, []string{TagUnreadCount}, e.Tags)
}

func TestGetRefetchesStaleEntries(t *testing.T) {
	c := New()
	var calls atomic.Int32
	fetch := constFetcher(&calls, "x")

	_, err := c.Get(context.Background(), KeyUnreadCount, []string{TagUnreadCount}, fetch)
	require.NoError(t, err)

	keys := c.Invalidate(TagUnreadCount)
	assert.Equal(t, []string{KeyUnreadCount}, keys)

	e, ok := c.Peek(KeyUnreadCount)
	require.True(t, ok)
	assert.True(t, e.Stale)
	assert.Equal(t, "x", string(e.Data), "stale entries keep their payload")

	_, err = c.Get(context.Background(), KeyUnreadCount, []string{TagUnreadCount}, fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	e, _ = c.Peek(KeyUnreadCount)
	assert.False(t, e.Stale)
}

func TestFetchErrorIsNotCached(t *testing.T) {
	c := New()
	boom := errors.New("boom")

	_, err := c.Get(context.Background(), "k", nil, func(context.Context) ([]byte, []string, error) { return nil, nil, boom })
	assert.ErrorIs(t, err, boom)

	_, ok := c.Peek("k")
	assert.False(t, ok)
}

func TestInvalidateByTagOnlyTouchesTaggedEntries(t *testing.T) {
	c := New()
	var calls atomic.Int32
	ctx := context.Background()

	_, _ = c.Get(ctx, KeyUnreadCount, []string{TagNotification, TagUnreadCount}, constFetcher(&calls, "count"))
	_, _ = c.Get(ctx, ListKey(1, 10, false), []string{TagNotification, TagList, NotificationTag("a")}, constFetcher(&calls, "page1"))
	_, _ = c.Get(ctx, ListKey(2, 10, false), []string{TagNotification, TagList, NotificationTag("b")}, constFetcher(&calls, "page2"))

	listBefore, _ := c.Peek(ListKey(1, 10, false))

	assert.Equal(t, []string{KeyUnreadCount}, c.Invalidate(TagUnreadCount))

	listAfter, _ := c.Peek(ListKey(1, 10, false))
	assert.False(t, listAfter.Stale)
	assert.Equal(t, listBefore.UpdatedAt, listAfter.UpdatedAt)

	assert.Equal(t, []string{ListKey(1, 10, false)}, c.Invalidate(NotificationTag("a")))

	all := c.Invalidate(TagNotification)
	assert.Len(t, all, 3)
	assert.Nil(t, c.Invalidate("unknown"))
	assert.Nil(t, c.Invalidate())
}

func TestInvalidationDuringFetchStoresStale(t *testing.T) {
	c := New()
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		data, err := c.Get(context.Background(), KeyUnreadCount, []string{TagUnreadCount}, func(context.Context) ([]byte, []string, error) {
			close(started)
			<-release
			return []byte("old"), nil, nil
		})
		assert.NoError(t, err)
		assert.Equal(t, "old", string(data))
	}()

	<-started
	c.Invalidate(TagUnreadCount)
	close(release)
	<-done

	e, ok := c.Peek(KeyUnreadCount)
	require.True(t, ok)
	assert.True(t, e.Stale, "a fetch that raced an invalidation must not be stored fresh")

	var calls atomic.Int32
	data, err := c.Get(context.Background(), KeyUnreadCount, []string{TagUnreadCount}, constFetcher(&calls, "new"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
	assert.Equal(t, int32(1), calls.Load())
}

func TestReadAfterInvalidationDoesNotJoinOlderFetch(t *testing.T) {
	c := New()
	ctx := context.Background()
	tags := []string{TagUnreadCount}

	var server atomic.Int32
	server.Store(1)
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(context.Context) ([]byte, []string, error) {
		n := calls.Add(1)
		v := server.Load()
		if n == 2 {
			close(started)
			<-release
		}
		return []byte{byte('0' + v)}, nil, nil
	}

	_, err := c.Get(ctx, KeyUnreadCount, tags, fetch)
	require.NoError(t, err)
	c.Invalidate(TagUnreadCount)

	first := make(chan string, 1)
	go func() {
		data, err := c.Get(ctx, KeyUnreadCount, tags, fetch)
		assert.NoError(t, err)
		first <- string(data)
	}()
	<-started

	server.Store(2)
	c.Invalidate(TagUnreadCount)

	data, err := c.Get(ctx, KeyUnreadCount, tags, fetch)
	require.NoError(t, err)
	assert.Equal(t, "2", string(data), "a read after invalidation fetches on its own")
	assert.Equal(t, int32(3), calls.Load())

	close(release)
	assert.Equal(t, "1", <-first)

	e, ok := c.Peek(KeyUnreadCount)
	require.True(t, ok)
	assert.Equal(t, "2", string(e.Data), "the older fetch does not overwrite the newer payload")
	assert.False(t, e.Stale)
}

func TestConcurrentGetsShareOneFetch(t *testing.T) {
	c := New()
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := c.Get(context.Background(), "k", nil, func(context.Context) ([]byte, []string, error) {
				calls.Add(1)
				<-release
				return []byte("v"), nil, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, "v", string(data))
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestReturnedBytesAreCopies(t *testing.T) {
	c := New()
	var calls atomic.Int32
	data, err := c.Get(context.Background(), "k", nil, constFetcher(&calls, "abc"))
	require.NoError(t, err)
	data[0] = 'z'

	e, _ := c.Peek("k")
	assert.Equal(t, "abc", string(e.Data))
}

func TestSubscribersReceiveInvalidatedKeys(t *testing.T) {
	c := New()
	var calls atomic.Int32
	_, _ = c.Get(context.Background(), KeyUnreadCount, []string{TagUnreadCount}, constFetcher(&calls, "1"))
	_, _ = c.Get(context.Background(), "other", []string{"Other"}, constFetcher(&calls, "2"))

	var got [][]string
	unsubscribe := c.Subscribe(func(keys []string) { got = append(got, keys) })

	c.Invalidate(TagUnreadCount)
	c.InvalidateKeys("other", "missing")
	c.Invalidate("nothing-tagged")
	unsubscribe()
	unsubscribe()
	c.Invalidate(TagUnreadCount)

	assert.Equal(t, [][]string{{KeyUnreadCount}, {"other"}}, got)
}

func TestResetDropsEntriesAndInFlightFetches(t *testing.T) {
	c := New()
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_, _ = c.Get(context.Background(), "k", nil, func(context.Context) ([]byte, []string, error) {
			close(started)
			<-release
			return []byte("v"), nil, nil
		})
	}()

	<-started
	c.Reset()
	close(release)
	<-done

	_, ok := c.Peek("k")
	assert.False(t, ok)
	assert.Empty(t, c.Keys())
}

func TestGetHonoursContext(t *testing.T) {
	c := New()
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Get(ctx, "k", nil, func(context.Context) ([]byte, []string, error) {
		<-release
		return []byte("v"), nil, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "list?page=1&limit=20&unread=true", ListKey(1, 20, true))
	assert.True(t, IsListKey(ListKey(1, 20, false)))
	assert.False(t, IsListKey(KeyUnreadCount))
	assert.Equal(t, "Notification:abc", NotificationTag("abc"))
	assert.Equal(t, "Notification:<id>", metricTag(NotificationTag("abc")))
	assert.Equal(t, TagList, metricTag(TagList))
}

func TestFetcherTagsAreAttached(t *testing.T) {
	c := New()
	_, err := c.Get(context.Background(), ListKey(1, 20, false), []string{TagList}, func(context.Context) ([]byte, []string, error) {
		return []byte("page"), []string{NotificationTag("n1")}, nil
	})
	require.NoError(t, err)

	e, ok := c.Peek(ListKey(1, 20, false))
	require.True(t, ok)
	assert.Equal(t, []string{TagList, NotificationTag("n1")}, e.Tags)
	assert.Equal(t, []string{ListKey(1, 20, false)}, c.Invalidate(NotificationTag("n1")))
}
