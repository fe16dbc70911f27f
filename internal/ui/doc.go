// Package ui provides the storefront terminal interface, built on Bubble Tea.
//
// # Views
//
//   - Cart: the reconciled cart with optimistic quantity editing
//   - Wishlists: wishlist tabs, the active list and its products
//   - Logs: tail of the structured log file
//
// # Data Flow
//
// A tick reads the cart and wishlist store snapshots plus the matching cache
// entries and reconciles them (reconcile.Cart, reconcile.Wishlists). The
// store wins once it has loaded; until then the last cached response is
// shown. Reading the cache also revalidates it in the background.
//
// # Quantity Editing
//
// Each cart line gets a throttle.QuantityControl. The first +/- opens a
// window and schedules a dispatch; further presses inside the window only
// move the displayed value. When the window closes one update, or one
// removal when the quantity fell below one, carries the latest value:
//
//	+ + + ──> display 4,5,6 ──(window)──> UpdateCartItem(6)
//	- -   ──> display 1,0   ──(window)──> RemoveFromCart
//
// A failed dispatch reverts the line to the confirmed server quantity and
// shows the backend message.
//
// # Key Bindings
//
//   - c / w / l: Cart, Wishlists, Logs; tab cycles
//   - j/k, g/G: move selection
//   - + / -: change quantity, d: remove line
//   - [ / ]: switch active wishlist
//   - a: add product to cart, m: move wishlist to cart
//   - x: remove from wishlist, s: share or revoke
//   - r: refresh, L: sign out, T: cycle theme
//   - h or ?: help, e or ctrl+c: quit
package ui
