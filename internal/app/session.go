package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/five82/storefront/internal/api"
)

// Login signs in and pulls any guest cart or wishlist the backend merged
// into the account.
func (a *App) Login(ctx context.Context, creds api.Credentials) (*api.AuthResponse, error) {
	resp, err := a.Client.Login(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := a.afterAuth(ctx, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Register creates an account and signs in.
func (a *App) Register(ctx context.Context, reg api.Registration) (*api.AuthResponse, error) {
	resp, err := a.Client.Register(ctx, reg)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	if err := a.afterAuth(ctx, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (a *App) afterAuth(ctx context.Context, resp *api.AuthResponse) error {
	if err := a.Session.SetAuth(resp.User, resp.AccessToken, resp.RefreshToken); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	a.Logger.Info("signed in",
		slog.String("user_id", resp.User.ID),
		slog.Bool("cart_converted", resp.CartConverted),
		slog.Bool("wishlist_converted", resp.WishlistConverted),
	)
	if resp.CartConverted {
		if _, err := a.Carts.FetchCart(ctx); err != nil {
			a.Logger.Warn("refresh merged cart", slog.String("error", err.Error()))
		}
	}
	if resp.WishlistConverted {
		if _, err := a.Wishlists.FetchWishlists(ctx); err != nil {
			a.Logger.Warn("refresh merged wishlists", slog.String("error", err.Error()))
		}
	}
	return nil
}

// Logout ends the session. The server call is best effort; local state is
// always cleared: both stores, the guest session id, every cache entry and
// finally the credentials.
func (a *App) Logout(ctx context.Context) error {
	if err := a.Client.Logout(ctx); err != nil {
		a.Logger.Warn("server logout failed", slog.String("error", err.Error()))
	}
	a.Carts.ClearCart()
	a.Wishlists.ClearWishlists(ctx)
	a.Session.ClearGuestSessionID()
	a.Cache.InvalidateAll()
	a.Session.ClearAuth()
	a.Logger.Info("signed out")
	return nil
}

// MoveWishlistToCart moves every product of a wishlist into the cart, then
// refreshes the cart and raises the sidebar trigger.
func (a *App) MoveWishlistToCart(ctx context.Context, wishlistID string) (*api.MoveToCartResult, error) {
	res, err := a.Wishlists.AddToCart(ctx, wishlistID, nil)
	if err != nil {
		return nil, err
	}
	if _, err := a.Carts.FetchCart(ctx); err != nil {
		return res, fmt.Errorf("refresh cart after move: %w", err)
	}
	a.Carts.TriggerSidebarOpen()
	return res, nil
}
