package reconcile

import (
	"sync"

	"github.com/five82/storefront/internal/cache"
	"github.com/five82/storefront/internal/cart"
	"github.com/five82/storefront/internal/wishlist"
)

// CartSource publishes cart store changes.
type CartSource interface {
	Subscribe(fn func(cart.Snapshot)) func()
}

// WishlistSource publishes wishlist store changes.
type WishlistSource interface {
	Subscribe(fn func(wishlist.Snapshot)) func()
}

// CacheWriter receives store values.
type CacheWriter interface {
	Write(key string, value any, opts cache.WriteOptions)
}

// Bind pushes every newly applied store value into the cache without
// revalidation, so cache-only surfaces see mutations with no extra round
// trip. A cleared store pushes an empty value, and a wishlist that left the
// collection has its key emptied. Snapshots delivered out of order are
// ordered by revision, so an older value never overwrites a newer one. The
// returned func stops the pushes.
func Bind(carts CartSource, wishlists WishlistSource, c CacheWriter) func() {
	noPush := cache.WriteOptions{Revalidate: false}

	var (
		cartMu   sync.Mutex
		cartSeen uint64
	)
	unbindCart := carts.Subscribe(func(s cart.Snapshot) {
		cartMu.Lock()
		defer cartMu.Unlock()
		if s.Revision <= cartSeen {
			return
		}
		cartSeen = s.Revision
		c.Write(cache.KeyCart, s.Cart, noPush)
	})

	var (
		listMu   sync.Mutex
		listSeen uint64
		pushed   = make(map[string]struct{})
	)
	unbindWishlists := wishlists.Subscribe(func(s wishlist.Snapshot) {
		listMu.Lock()
		defer listMu.Unlock()
		if s.Revision <= listSeen {
			return
		}
		listSeen = s.Revision

		current := make(map[string]struct{}, len(s.Wishlists))
		c.Write(cache.KeyWishlists, s.Wishlists, noPush)
		for _, w := range s.Wishlists {
			current[w.ID] = struct{}{}
			c.Write(cache.WishlistKey(w.ID), w, noPush)
		}
		for id := range pushed {
			if _, ok := current[id]; !ok {
				c.Write(cache.WishlistKey(id), nil, noPush)
			}
		}
		pushed = current
	})

	return func() {
		unbindCart()
		unbindWishlists()
	}
}
