package api

import (
	"context"
	"net/http"
)

// Login exchanges credentials for a token pair. The response flags whether
// guest cart or wishlist state was merged into the account.
func (c *Client) Login(ctx context.Context, creds Credentials) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", creds, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, reg Registration) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", reg, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout asks the backend to invalidate the refresh token. Callers treat
// failures as best effort.
func (c *Client) Logout(ctx context.Context) error {
	var body any
	if c.identity != nil && c.identity.RefreshToken() != "" {
		body = map[string]string{"refreshToken": c.identity.RefreshToken()}
	}
	return c.send(ctx, http.MethodPost, "/auth/logout", body, nil, false)
}
