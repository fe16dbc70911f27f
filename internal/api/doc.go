// Package api provides an HTTP client for the storefront REST backend.
//
// # Overview
//
// The backend is the source of truth for carts, wishlists and accounts. This
// package only moves JSON between the client and the backend; it keeps no
// state besides the token refresh coordination described below.
//
// # Identity
//
// Every request carries:
//
//   - X-Session-Id: the guest session id, so guest carts can later be merged
//     into an account
//   - Authorization: Bearer <access token>, when signed in
//
// Both values come from an Identity, normally *session.Session.
//
// # Token Refresh
//
// When a request that is not itself an auth call returns 401, the client
// refreshes the access token and retries the request exactly once:
//
//	request ──401──> refreshOnce ──> singleflight "refresh" ──> POST /auth/refresh-token
//	                     │                                              │
//	                     └────────── retry with new token <─────────────┘
//
// Concurrent 401s share one in-flight refresh (golang.org/x/sync/singleflight),
// and a caller whose rejected token was already replaced skips the refresh
// entirely. A second 401 after the retry, or a failed refresh, is returned to
// the caller unchanged.
//
// # Errors
//
//   - *Error: non-2xx response (Status, backend message, decoded details)
//   - ErrNetwork: transport failure; the message says the server could not
//     be reached
//   - IsNotFound: 404 or a "not found" message; stores treat it as empty
//
// # Endpoints
//
//	GET    /cart                          current cart
//	POST   /cart                          add line (productId, quantity)
//	PUT    /cart/items/{productId}        set quantity
//	DELETE /cart/items/{productId}        remove line
//	GET    /wishlist                      all wishlists
//	GET    /wishlist/{id}                 one wishlist
//	POST   /wishlist                      create (name)
//	POST   /wishlist/items                add product (productId, wishlistId?)
//	DELETE /wishlist/{id}/items/{pid}     remove product
//	PUT    /wishlist/{id}                 rename / set default
//	DELETE /wishlist/{id}                 delete
//	POST   /wishlist/{id}/share           share, returns token
//	DELETE /wishlist/{id}/share           revoke share
//	GET    /wishlist/shared/{token}       view a shared wishlist
//	POST   /wishlist/add-to-cart          move products into the cart
//	POST   /auth/login | /auth/register   token pair + merge flags
//	POST   /auth/refresh-token            new token pair
//	POST   /auth/logout                   best-effort invalidation
package api
