// Package reconcile merges domain store state with resource cache entries
// for display.
//
// The store value wins once the store has been populated because it
// reflects the latest confirmed mutation. The cache value covers the time
// before the first store fetch completes. Errors never clear a value.
package reconcile

import (
	"github.com/five82/storefront/internal/api"
	"github.com/five82/storefront/internal/cache"
	"github.com/five82/storefront/internal/cart"
	"github.com/five82/storefront/internal/wishlist"
)

// Source names where a view value came from.
type Source int

const (
	SourceNone Source = iota
	SourceStore
	SourceCache
)

func (s Source) String() string {
	switch s {
	case SourceStore:
		return "store"
	case SourceCache:
		return "cache"
	default:
		return "none"
	}
}

// View is what a surface renders.
type View[T any] struct {
	Value   T
	Source  Source
	Loading bool
	// Err is the most recent error from either side, shown next to the
	// value rather than instead of it.
	Err error
}

// Cart resolves the cart to display. Lines are deduplicated by product.
func Cart(store cart.Snapshot, entry cache.Entry) View[*api.Cart] {
	v := View[*api.Cart]{
		Loading: store.Loading || entry.Fetching,
		Err:     firstErr(store.Err, entry.Err),
	}
	switch {
	case !store.UpdatedAt.IsZero():
		v.Value, v.Source = store.Cart, SourceStore
	case entry.HasValue:
		c, _ := cache.Value[*api.Cart](entry)
		v.Value, v.Source = c, SourceCache
	}
	if v.Value != nil {
		c := v.Value.Clone()
		c.Items = DedupCartItems(c.Items)
		v.Value = c
	}
	return v
}

// Wishlists resolves the wishlist collection to display. Product ids are
// deduplicated within each wishlist.
func Wishlists(store wishlist.Snapshot, entry cache.Entry) View[[]api.Wishlist] {
	v := View[[]api.Wishlist]{
		Loading: store.Loading || entry.Fetching,
		Err:     firstErr(store.Err, entry.Err),
	}
	switch {
	case store.Loaded:
		v.Value, v.Source = store.Wishlists, SourceStore
	case entry.HasValue:
		lists, _ := cache.Value[[]api.Wishlist](entry)
		v.Value, v.Source = lists, SourceCache
	}
	if v.Value != nil {
		out := make([]api.Wishlist, len(v.Value))
		for i, w := range v.Value {
			w = w.Clone()
			w.ProductIDs = DedupProductIDs(w.ProductIDs)
			out[i] = w
		}
		v.Value = out
	}
	return v
}

// Wishlist resolves one wishlist by id.
func Wishlist(store wishlist.Snapshot, id string, entry cache.Entry) View[api.Wishlist] {
	v := View[api.Wishlist]{
		Loading: store.Loading || entry.Fetching,
		Err:     firstErr(store.Err, entry.Err),
	}
	found := false
	if store.Loaded {
		for _, w := range store.Wishlists {
			if w.ID == id {
				v.Value, v.Source, found = w.Clone(), SourceStore, true
				break
			}
		}
	}
	if !found {
		if w, ok := cache.Value[api.Wishlist](entry); ok {
			v.Value, v.Source = w.Clone(), SourceCache
		}
	}
	v.Value.ProductIDs = DedupProductIDs(v.Value.ProductIDs)
	return v
}

// DedupCartItems keeps the first line per product id.
func DedupCartItems(items []api.CartItem) []api.CartItem {
	if items == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]api.CartItem, 0, len(items))
	for _, item := range items {
		if _, dup := seen[item.ProductID.ID]; dup {
			continue
		}
		seen[item.ProductID.ID] = struct{}{}
		out = append(out, item)
	}
	return out
}

// DedupProductIDs keeps the first reference per product id.
func DedupProductIDs(refs []api.ProductRef) []api.ProductRef {
	if refs == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(refs))
	out := make([]api.ProductRef, 0, len(refs))
	for _, ref := range refs {
		if _, dup := seen[ref.ID]; dup {
			continue
		}
		seen[ref.ID] = struct{}{}
		out = append(out, ref)
	}
	return out
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
