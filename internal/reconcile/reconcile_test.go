package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/storefront/internal/api"
	"github.com/five82/storefront/internal/cache"
	"github.com/five82/storefront/internal/cart"
	"github.com/five82/storefront/internal/prefs"
	"github.com/five82/storefront/internal/wishlist"
)

func item(id string, qty int) api.CartItem {
	return api.CartItem{ProductID: api.ProductRef{ID: id}, Quantity: qty}
}

func refs(ids ...string) []api.ProductRef {
	out := make([]api.ProductRef, len(ids))
	for i, id := range ids {
		out[i] = api.ProductRef{ID: id}
	}
	return out
}

func TestDedupCartItemsKeepsFirst(t *testing.T) {
	in := []api.CartItem{item("a", 1), item("b", 2), item("a", 9), item("b", 8), item("c", 3)}
	got := DedupCartItems(in)
	assert.Equal(t, []api.CartItem{item("a", 1), item("b", 2), item("c", 3)}, got)
	assert.Equal(t, got, DedupCartItems(got), "idempotent")
	assert.Nil(t, DedupCartItems(nil))
}

func TestDedupProductIDsKeepsFirst(t *testing.T) {
	first := api.ProductRef{ID: "p", Product: &api.Product{ID: "p", Name: "first"}}
	second := api.ProductRef{ID: "p", Product: &api.Product{ID: "p", Name: "second"}}
	got := DedupProductIDs([]api.ProductRef{first, {ID: "q"}, second})
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Product.Name)
}

func TestCartPrecedence(t *testing.T) {
	fromCache := &api.Cart{Items: []api.CartItem{item("cached", 1)}}
	fromStore := &api.Cart{Items: []api.CartItem{item("stored", 1), item("stored", 4)}}
	cached := cache.Entry{Key: cache.KeyCart, Value: fromCache, HasValue: true, Status: cache.StatusSuccess}

	t.Run("cache before store is populated", func(t *testing.T) {
		v := Cart(cart.Snapshot{}, cached)
		assert.Equal(t, SourceCache, v.Source)
		assert.Equal(t, fromCache, v.Value)
	})

	t.Run("store wins once populated", func(t *testing.T) {
		v := Cart(cart.Snapshot{Cart: fromStore, UpdatedAt: time.Now()}, cached)
		assert.Equal(t, SourceStore, v.Source)
		assert.Equal(t, []api.CartItem{item("stored", 1)}, v.Value.Items)
		assert.Len(t, fromStore.Items, 2, "input not modified")
	})

	t.Run("empty store cart is authoritative", func(t *testing.T) {
		v := Cart(cart.Snapshot{UpdatedAt: time.Now()}, cached)
		assert.Equal(t, SourceStore, v.Source)
		assert.Nil(t, v.Value)
	})

	t.Run("error keeps value", func(t *testing.T) {
		boom := errors.New("boom")
		errored := cached
		errored.Status, errored.Err = cache.StatusError, boom
		v := Cart(cart.Snapshot{}, errored)
		assert.Equal(t, fromCache, v.Value)
		assert.ErrorIs(t, v.Err, boom)
	})

	t.Run("nothing yet", func(t *testing.T) {
		v := Cart(cart.Snapshot{Loading: true}, cache.Entry{})
		assert.Equal(t, SourceNone, v.Source)
		assert.True(t, v.Loading)
	})
}

func TestWishlistsPrecedence(t *testing.T) {
	cached := cache.Entry{Value: []api.Wishlist{{ID: "c"}}, HasValue: true}
	store := wishlist.Snapshot{Loaded: true, Wishlists: []api.Wishlist{{ID: "s", ProductIDs: refs("p", "p", "q")}}}

	v := Wishlists(wishlist.Snapshot{}, cached)
	assert.Equal(t, SourceCache, v.Source)
	assert.Equal(t, "c", v.Value[0].ID)

	v = Wishlists(store, cached)
	assert.Equal(t, SourceStore, v.Source)
	assert.Equal(t, refs("p", "q"), v.Value[0].ProductIDs)

	one := Wishlist(store, "s", cache.Entry{})
	assert.Equal(t, SourceStore, one.Source)
	assert.Equal(t, refs("p", "q"), one.Value.ProductIDs)

	fallback := Wishlist(store, "other", cache.Entry{Value: api.Wishlist{ID: "other"}, HasValue: true})
	assert.Equal(t, SourceCache, fallback.Source)
}

type cartBackend struct{ next *api.Cart }

func (b *cartBackend) GetCart(context.Context) (*api.Cart, error) { return b.next, nil }
func (b *cartBackend) AddToCart(context.Context, string, int) (*api.Cart, error) {
	return b.next, nil
}
func (b *cartBackend) UpdateCartItem(context.Context, string, int) (*api.Cart, error) {
	return b.next, nil
}
func (b *cartBackend) RemoveFromCart(context.Context, string) (*api.Cart, error) {
	return b.next, nil
}

type wishlistBackend struct {
	wishlist.Backend
	lists []api.Wishlist
}

func (b *wishlistBackend) GetWishlists(context.Context) ([]api.Wishlist, error) {
	return b.lists, nil
}

func (b *wishlistBackend) DeleteWishlist(context.Context, string) error { return nil }

func TestBindPushesStoreValuesWithoutRevalidating(t *testing.T) {
	ctx := context.Background()
	c := cache.New(ctx, cache.Options{})
	fetches := 0
	c.Register(cache.KeyCart, func(context.Context, string) (any, error) {
		fetches++
		return nil, nil
	})

	cb := &cartBackend{next: &api.Cart{Items: []api.CartItem{item("a", 2)}}}
	carts := cart.New(cb)
	wb := &wishlistBackend{lists: []api.Wishlist{{ID: "w1", ProductIDs: refs("p")}}}
	wishlists := wishlist.New(wb, prefs.NewMemoryKV())

	var cacheSeen []*api.Cart
	c.Subscribe(cache.KeyCart, func(e cache.Entry) {
		v, _ := cache.Value[*api.Cart](e)
		cacheSeen = append(cacheSeen, v)
	})

	unbind := Bind(carts, wishlists, c)

	_, err := carts.AddToCart(ctx, "a", 2)
	require.NoError(t, err)
	_, err = wishlists.FetchWishlists(ctx)
	require.NoError(t, err)
	c.Wait()

	got, ok := cache.Value[*api.Cart](c.Peek(cache.KeyCart))
	require.True(t, ok)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.Zero(t, fetches)
	assert.Len(t, cacheSeen, 1)

	lists, ok := cache.Value[[]api.Wishlist](c.Peek(cache.KeyWishlists))
	require.True(t, ok)
	assert.Len(t, lists, 1)
	one, ok := cache.Value[api.Wishlist](c.Peek(cache.WishlistKey("w1")))
	require.True(t, ok)
	assert.Equal(t, "w1", one.ID)

	unbind()
	cb.next = &api.Cart{Items: []api.CartItem{item("a", 5)}}
	_, err = carts.UpdateCartItem(ctx, "a", 5)
	require.NoError(t, err)
	got, _ = cache.Value[*api.Cart](c.Peek(cache.KeyCart))
	assert.Equal(t, 2, got.Items[0].Quantity)
}

func TestBindPushesClearedCart(t *testing.T) {
	ctx := context.Background()
	c := cache.New(ctx, cache.Options{})
	carts := cart.New(&cartBackend{next: &api.Cart{Items: []api.CartItem{item("a", 1)}}})
	wishlists := wishlist.New(&wishlistBackend{}, prefs.NewMemoryKV())
	defer Bind(carts, wishlists, c)()

	_, err := carts.AddToCart(ctx, "a", 1)
	require.NoError(t, err)
	got, ok := cache.Value[*api.Cart](c.Peek(cache.KeyCart))
	require.True(t, ok)
	require.Len(t, got.Items, 1)

	carts.ClearCart()
	entry := c.Peek(cache.KeyCart)
	assert.True(t, entry.HasValue)
	got, _ = cache.Value[*api.Cart](entry)
	assert.Nil(t, got)
	assert.Nil(t, Cart(carts.Snapshot(), entry).Value)
}

func TestBindEmptiesDeletedWishlistKey(t *testing.T) {
	ctx := context.Background()
	c := cache.New(ctx, cache.Options{})
	wb := &wishlistBackend{lists: []api.Wishlist{
		{ID: "w1", ProductIDs: refs("p")},
		{ID: "w2", ProductIDs: refs("q")},
	}}
	wishlists := wishlist.New(wb, prefs.NewMemoryKV())
	defer Bind(cart.New(&cartBackend{}), wishlists, c)()

	_, err := wishlists.FetchWishlists(ctx)
	require.NoError(t, err)
	_, ok := cache.Value[api.Wishlist](c.Peek(cache.WishlistKey("w2")))
	require.True(t, ok)

	require.NoError(t, wishlists.DeleteWishlist(ctx, "w2"))
	_, ok = cache.Value[api.Wishlist](c.Peek(cache.WishlistKey("w2")))
	assert.False(t, ok)
	_, ok = cache.Value[api.Wishlist](c.Peek(cache.WishlistKey("w1")))
	assert.True(t, ok)
	lists, _ := cache.Value[[]api.Wishlist](c.Peek(cache.KeyWishlists))
	assert.Len(t, lists, 1)

	wishlists.ClearWishlists(ctx)
	_, ok = cache.Value[api.Wishlist](c.Peek(cache.WishlistKey("w1")))
	assert.False(t, ok)
}

// replaySource hands its subscriber to the test so snapshots can be
// delivered in any order.
type replaySource[S any] struct{ fn func(S) }

func (r *replaySource[S]) Subscribe(fn func(S)) func() {
	r.fn = fn
	return func() { r.fn = nil }
}

func TestBindIgnoresOlderSnapshotDeliveredLate(t *testing.T) {
	c := cache.New(context.Background(), cache.Options{})
	carts := &replaySource[cart.Snapshot]{}
	lists := &replaySource[wishlist.Snapshot]{}
	defer Bind(carts, lists, c)()

	older := cart.Snapshot{Cart: &api.Cart{Items: []api.CartItem{item("a", 1)}}, Revision: 1}
	newer := cart.Snapshot{Cart: &api.Cart{Items: []api.CartItem{item("a", 5)}}, Revision: 2}
	carts.fn(newer)
	carts.fn(older)

	got, ok := cache.Value[*api.Cart](c.Peek(cache.KeyCart))
	require.True(t, ok)
	assert.Equal(t, 5, got.Items[0].Quantity)

	lists.fn(wishlist.Snapshot{Loaded: true, Wishlists: []api.Wishlist{{ID: "new"}}, Revision: 4})
	lists.fn(wishlist.Snapshot{Loaded: true, Wishlists: []api.Wishlist{{ID: "old"}}, Revision: 3})
	ws, _ := cache.Value[[]api.Wishlist](c.Peek(cache.KeyWishlists))
	require.Len(t, ws, 1)
	assert.Equal(t, "new", ws[0].ID)
	_, ok = cache.Value[api.Wishlist](c.Peek(cache.WishlistKey("old")))
	assert.False(t, ok)
}
