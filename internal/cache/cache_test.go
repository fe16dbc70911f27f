package cache

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMissing = errors.New("missing")

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	return New(context.Background(), Options{
		NotFound: func(err error) bool { return errors.Is(err, errMissing) },
	})
}

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "/wishlist/w1", WishlistKey("w1"))
	assert.Equal(t, "/products", Key("/products", nil))
	q := url.Values{"page": {"2"}, "category": {"books"}}
	assert.Equal(t, "/products?category=books&page=2", Key("/products", q))
}

func TestReadReturnsImmediatelyThenRevalidates(t *testing.T) {
	c := newTestCache(t)
	release := make(chan struct{})
	c.Register(KeyCart, func(ctx context.Context, key string) (any, error) {
		<-release
		return "fresh", nil
	})

	first := c.Read(KeyCart)
	assert.False(t, first.HasValue)
	assert.Equal(t, StatusPending, first.Status)
	assert.True(t, first.Fetching)

	close(release)
	c.Wait()

	got := c.Peek(KeyCart)
	assert.Equal(t, "fresh", got.Value)
	assert.Equal(t, StatusSuccess, got.Status)
	assert.False(t, got.Fetching)
}

func TestReadDedupesInFlightAndRecentFetches(t *testing.T) {
	now := time.Unix(1000, 0)
	var mu sync.Mutex
	c := New(context.Background(), Options{
		DedupeInterval: time.Second,
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		},
	})
	var calls atomic.Int32
	release := make(chan struct{})
	c.Register(KeyCart, func(ctx context.Context, key string) (any, error) {
		calls.Add(1)
		<-release
		return 1, nil
	})

	c.Read(KeyCart)
	c.Read(KeyCart)
	close(release)
	c.Wait()
	assert.Equal(t, int32(1), calls.Load())

	c.Read(KeyCart)
	c.Wait()
	assert.Equal(t, int32(1), calls.Load(), "within dedupe interval")

	mu.Lock()
	now = now.Add(2 * time.Second)
	mu.Unlock()
	c.Read(KeyCart)
	c.Wait()
	assert.Equal(t, int32(2), calls.Load())
}

func TestWriteSupersedesInFlightFetch(t *testing.T) {
	c := newTestCache(t)
	release := make(chan struct{})
	c.Register(KeyCart, func(ctx context.Context, key string) (any, error) {
		<-release
		return "from-server", nil
	})

	c.Read(KeyCart)
	c.Write(KeyCart, "from-mutation", WriteOptions{})
	close(release)
	c.Wait()

	assert.Equal(t, "from-mutation", c.Peek(KeyCart).Value)
}

func TestNewerFetchWinsOverOlderFetch(t *testing.T) {
	c := newTestCache(t)
	slow := make(chan struct{})
	var n atomic.Int32
	c.Register(KeyCart, func(ctx context.Context, key string) (any, error) {
		if n.Add(1) == 1 {
			<-slow
			return "old", nil
		}
		return "new", nil
	})

	c.Read(KeyCart)
	require.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, time.Millisecond)
	_, err := c.Refresh(context.Background(), KeyCart)
	require.NoError(t, err)
	close(slow)
	c.Wait()

	assert.Equal(t, "new", c.Peek(KeyCart).Value)
}

func TestWriteWithRevalidateFetches(t *testing.T) {
	c := newTestCache(t)
	c.Register(KeyCart, func(ctx context.Context, key string) (any, error) {
		return "server", nil
	})

	c.Write(KeyCart, "local", WriteOptions{Revalidate: true})
	assert.Equal(t, "local", c.Peek(KeyCart).Value)
	c.Wait()
	assert.Equal(t, "server", c.Peek(KeyCart).Value)
}

func TestNotFoundResolvesAsEmpty(t *testing.T) {
	c := newTestCache(t)
	c.Register(KeyCart, func(ctx context.Context, key string) (any, error) {
		return nil, errMissing
	})

	e, err := c.Refresh(context.Background(), KeyCart)
	require.NoError(t, err)
	assert.True(t, e.HasValue)
	assert.Nil(t, e.Value)
	assert.Equal(t, StatusSuccess, e.Status)
	assert.NoError(t, e.Err)
}

func TestFetchErrorKeepsLastValue(t *testing.T) {
	c := newTestCache(t)
	boom := errors.New("boom")
	c.Register(KeyCart, func(ctx context.Context, key string) (any, error) {
		return nil, boom
	})
	c.Write(KeyCart, "cached", WriteOptions{})

	e, err := c.Refresh(context.Background(), KeyCart)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "cached", e.Value)
	assert.Equal(t, StatusError, e.Status)
	assert.ErrorIs(t, e.Err, boom)
}

func TestRefreshWithoutFetcher(t *testing.T) {
	c := newTestCache(t)
	_, err := c.Refresh(context.Background(), "/nope")
	require.ErrorIs(t, err, ErrNoFetcher)
}

func TestPrefixFetcherLongestWins(t *testing.T) {
	c := newTestCache(t)
	c.RegisterPrefix("/wishlist", func(ctx context.Context, key string) (any, error) {
		return "short:" + key, nil
	})
	c.RegisterPrefix("/wishlist/", func(ctx context.Context, key string) (any, error) {
		return "long:" + key, nil
	})

	e, err := c.Refresh(context.Background(), WishlistKey("w1"))
	require.NoError(t, err)
	assert.Equal(t, "long:/wishlist/w1", e.Value)
}

func TestSubscribersNotifiedOutsideLock(t *testing.T) {
	c := newTestCache(t)
	var seen []any
	var unsub func()
	unsub = c.Subscribe(KeyCart, func(e Entry) {
		// Calling back into the cache must not deadlock.
		seen = append(seen, c.Peek(KeyCart).Value)
	})

	c.Write(KeyCart, 1, WriteOptions{})
	c.Write(KeyCart, 2, WriteOptions{})
	unsub()
	c.Write(KeyCart, 3, WriteOptions{})

	assert.Equal(t, []any{1, 2}, seen)
}

func TestInvalidateAllDropsEntriesAndDiscardsInFlight(t *testing.T) {
	c := newTestCache(t)
	release := make(chan struct{})
	c.Register(KeyCart, func(ctx context.Context, key string) (any, error) {
		<-release
		return "late", nil
	})
	c.Write(KeyWishlists, []string{"w"}, WriteOptions{})

	var notified []Entry
	c.Subscribe(KeyWishlists, func(e Entry) { notified = append(notified, e) })

	c.Read(KeyCart)
	c.InvalidateAll()
	close(release)
	c.Wait()

	assert.Empty(t, c.Keys())
	assert.False(t, c.Peek(KeyCart).HasValue)
	require.Len(t, notified, 1)
	assert.False(t, notified[0].HasValue)
}

func TestValueHelper(t *testing.T) {
	v, ok := Value[string](Entry{Value: "x", HasValue: true})
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	_, ok = Value[string](Entry{HasValue: true})
	assert.False(t, ok)
	_, ok = Value[int](Entry{Value: "x", HasValue: true})
	assert.False(t, ok)
}
