package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// GetCart retrieves the current cart. A missing cart surfaces as an *Error
// with status 404; callers decide whether that means "empty".
func (c *Client) GetCart(ctx context.Context) (*Cart, error) {
	var cart Cart
	if err := c.do(ctx, http.MethodGet, "/cart", nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// AddToCart adds quantity of productID, creating the cart if needed, and
// returns the full updated cart.
func (c *Client) AddToCart(ctx context.Context, productID string, quantity int) (*Cart, error) {
	if productID == "" {
		return nil, fmt.Errorf("product id required")
	}
	body := map[string]any{"productId": productID, "quantity": quantity}
	var cart Cart
	if err := c.do(ctx, http.MethodPost, "/cart", body, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// UpdateCartItem sets the quantity of productID and returns the full cart.
func (c *Client) UpdateCartItem(ctx context.Context, productID string, quantity int) (*Cart, error) {
	if productID == "" {
		return nil, fmt.Errorf("product id required")
	}
	body := map[string]any{"quantity": quantity}
	var cart Cart
	if err := c.do(ctx, http.MethodPut, "/cart/items/"+url.PathEscape(productID), body, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// RemoveFromCart deletes the line for productID and returns the full cart.
func (c *Client) RemoveFromCart(ctx context.Context, productID string) (*Cart, error) {
	if productID == "" {
		return nil, fmt.Errorf("product id required")
	}
	var cart Cart
	if err := c.do(ctx, http.MethodDelete, "/cart/items/"+url.PathEscape(productID), nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}
