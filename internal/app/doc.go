// Package app is the composition root of the storefront client.
//
// New builds one instance of every process-wide component and wires them:
//
//	config ──> prefs KV (file | memory | redis) ──> session ──> api.Client
//	                                                               │
//	         cache (fetchers: /cart, /wishlist, /wishlist/{id}) <──┤
//	         cart.Store, wishlist.Store <──────────────────────────┘
//	         reconcile.Bind(stores ──> cache, no revalidation)
//
// Run adds the log file, the optional /metrics listener, the background
// poller and finally the TUI, which blocks until the user quits.
//
// The poller refreshes both stores every poll interval. Consecutive failures
// double the delay up to 30s; one success resets it.
//
// Session flows live here because they span several components:
//
//   - Login/Register store the tokens, then refresh the cart or wishlists
//     when the backend reports that guest data was merged
//   - Logout calls the backend best effort, clears both stores, discards the
//     guest session id, invalidates the cache and forgets the tokens
//   - MoveWishlistToCart runs the wishlist compound operation, then
//     refreshes the cart and raises the sidebar trigger
package app
