package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// GetWishlists retrieves every wishlist owned by the current user or guest.
// The backend may answer with a single wishlist object instead of a list.
func (c *Client) GetWishlists(ctx context.Context) ([]Wishlist, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/wishlist", nil, &raw); err != nil {
		return nil, err
	}
	return decodeWishlists(raw)
}

func decodeWishlists(raw json.RawMessage) ([]Wishlist, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []Wishlist{}, nil
	}
	if trimmed[0] == '[' {
		var list []Wishlist
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if list == nil {
			list = []Wishlist{}
		}
		return list, nil
	}
	var single Wishlist
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return []Wishlist{single}, nil
}

// GetWishlist retrieves one wishlist by id.
func (c *Client) GetWishlist(ctx context.Context, id string) (*Wishlist, error) {
	if id == "" {
		return nil, fmt.Errorf("wishlist id required")
	}
	return c.wishlistCall(ctx, http.MethodGet, "/wishlist/"+url.PathEscape(id), nil)
}

// CreateWishlist creates a named wishlist.
func (c *Client) CreateWishlist(ctx context.Context, name string) (*Wishlist, error) {
	return c.wishlistCall(ctx, http.MethodPost, "/wishlist", map[string]string{"name": name})
}

// AddToWishlist adds productID to wishlistID. An empty wishlistID lets the
// backend pick (or create) the default wishlist.
func (c *Client) AddToWishlist(ctx context.Context, productID, wishlistID string) (*Wishlist, error) {
	if productID == "" {
		return nil, fmt.Errorf("product id required")
	}
	body := map[string]string{"productId": productID}
	if wishlistID != "" {
		body["wishlistId"] = wishlistID
	}
	return c.wishlistCall(ctx, http.MethodPost, "/wishlist/items", body)
}

// RemoveFromWishlist removes productID from wishlistID.
func (c *Client) RemoveFromWishlist(ctx context.Context, wishlistID, productID string) (*Wishlist, error) {
	if wishlistID == "" || productID == "" {
		return nil, fmt.Errorf("wishlist id and product id required")
	}
	path := "/wishlist/" + url.PathEscape(wishlistID) + "/items/" + url.PathEscape(productID)
	return c.wishlistCall(ctx, http.MethodDelete, path, nil)
}

// UpdateWishlist renames or re-flags a wishlist.
func (c *Client) UpdateWishlist(ctx context.Context, id string, patch WishlistPatch) (*Wishlist, error) {
	if id == "" {
		return nil, fmt.Errorf("wishlist id required")
	}
	return c.wishlistCall(ctx, http.MethodPut, "/wishlist/"+url.PathEscape(id), patch)
}

// DeleteWishlist removes a wishlist entirely.
func (c *Client) DeleteWishlist(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("wishlist id required")
	}
	return c.do(ctx, http.MethodDelete, "/wishlist/"+url.PathEscape(id), nil, nil)
}

// ShareWishlist publishes a wishlist and returns its share token.
func (c *Client) ShareWishlist(ctx context.Context, id string) (*ShareResult, error) {
	if id == "" {
		return nil, fmt.Errorf("wishlist id required")
	}
	var result ShareResult
	if err := c.do(ctx, http.MethodPost, "/wishlist/"+url.PathEscape(id)+"/share", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RevokeWishlistShare unpublishes a wishlist.
func (c *Client) RevokeWishlistShare(ctx context.Context, id string) (*Wishlist, error) {
	if id == "" {
		return nil, fmt.Errorf("wishlist id required")
	}
	return c.wishlistCall(ctx, http.MethodDelete, "/wishlist/"+url.PathEscape(id)+"/share", nil)
}

// ViewSharedWishlist fetches a wishlist by its public share token.
func (c *Client) ViewSharedWishlist(ctx context.Context, token string) (*Wishlist, error) {
	if token == "" {
		return nil, fmt.Errorf("share token required")
	}
	return c.wishlistCall(ctx, http.MethodGet, "/wishlist/shared/"+url.PathEscape(token), nil)
}

// AddWishlistToCart moves the given products (all when productIDs is empty)
// from a wishlist into the cart.
func (c *Client) AddWishlistToCart(ctx context.Context, wishlistID string, productIDs []string) (*MoveToCartResult, error) {
	if wishlistID == "" {
		return nil, fmt.Errorf("wishlist id required")
	}
	body := map[string]any{"wishlistId": wishlistID}
	if len(productIDs) > 0 {
		body["productIds"] = productIDs
	}
	var result MoveToCartResult
	if err := c.do(ctx, http.MethodPost, "/wishlist/add-to-cart", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) wishlistCall(ctx context.Context, method, path string, body any) (*Wishlist, error) {
	var w Wishlist
	if err := c.do(ctx, method, path, body, &w); err != nil {
		return nil, err
	}
	return &w, nil
}
