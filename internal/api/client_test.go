package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIdentity struct {
	mu      sync.Mutex
	access  string
	refresh string
	guest   string
	sets    int
}

func (f *fakeIdentity) AccessToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.access
}

func (f *fakeIdentity) RefreshToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refresh
}

func (f *fakeIdentity) GuestSessionID() string { return f.guest }

func (f *fakeIdentity) SetTokens(access, refresh string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access, f.refresh = access, refresh
	f.sets++
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, h http.Handler, id Identity) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	c, err := NewClient(server.URL+"/api/v1", WithIdentity(id))
	require.NoError(t, err)
	return c
}

func TestParseBaseURL_DefaultsAndNormalizes(t *testing.T) {
	u, err := parseBaseURL("")
	require.NoError(t, err)
	assert.Equal(t, "http", u.Scheme)
	assert.Equal(t, "localhost:3000", u.Host)
	assert.Equal(t, "/api/v1", u.Path)

	u, err = parseBaseURL("shop.example.com:8080/api/v2/?x=1#frag")
	require.NoError(t, err)
	assert.Equal(t, "http://shop.example.com:8080/api/v2", u.String())

	_, err = parseBaseURL("http://")
	require.Error(t, err)
}

func TestClient_SendsIdentityHeaders(t *testing.T) {
	var got http.Header
	var gotBody map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		assert.Equal(t, "/api/v1/cart", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeJSON(w, http.StatusOK, Cart{Items: []CartItem{{ProductID: ProductRef{ID: "p1"}, Quantity: 2}}})
	}), &fakeIdentity{access: "tok", guest: "guest-123"})

	cart, err := c.AddToCart(context.Background(), "p1", 2)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)

	assert.Equal(t, "Bearer tok", got.Get("Authorization"))
	assert.Equal(t, "guest-123", got.Get("X-Session-Id"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(got.Get("User-Agent"), "storefront/"))
	assert.Equal(t, "p1", gotBody["productId"])
	assert.EqualValues(t, 2, gotBody["quantity"])
}

func TestClient_GuestOmitsAuthorization(t *testing.T) {
	var auth string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, Cart{})
	}), &fakeIdentity{guest: "g"})

	_, err := c.GetCart(context.Background())
	require.NoError(t, err)
	assert.Empty(t, auth)
}

func TestClient_CartAndWishlistRoutes(t *testing.T) {
	type call struct{ method, path string }
	var calls []call
	var mu sync.Mutex
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, call{r.Method, r.URL.Path})
		mu.Unlock()
		switch {
		case r.URL.Path == "/api/v1/wishlist" && r.Method == http.MethodGet:
			writeJSON(w, http.StatusOK, []Wishlist{{ID: "w1"}})
		case r.URL.Path == "/api/v1/wishlist/add-to-cart":
			writeJSON(w, http.StatusOK, MoveToCartResult{ItemsAdded: 2, ItemsSkipped: 1})
		case strings.HasSuffix(r.URL.Path, "/share") && r.Method == http.MethodPost:
			writeJSON(w, http.StatusOK, ShareResult{ShareToken: "abc"})
		case strings.HasPrefix(r.URL.Path, "/api/v1/wishlist"):
			if r.Method == http.MethodDelete && r.URL.Path == "/api/v1/wishlist/w1" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			writeJSON(w, http.StatusOK, Wishlist{ID: "w1"})
		default:
			writeJSON(w, http.StatusOK, Cart{})
		}
	}), &fakeIdentity{})

	ctx := context.Background()
	_, err := c.UpdateCartItem(ctx, "p 1", 3)
	require.NoError(t, err)
	_, err = c.RemoveFromCart(ctx, "p2")
	require.NoError(t, err)
	_, err = c.GetWishlists(ctx)
	require.NoError(t, err)
	_, err = c.AddToWishlist(ctx, "p1", "")
	require.NoError(t, err)
	_, err = c.RemoveFromWishlist(ctx, "w1", "p1")
	require.NoError(t, err)
	name := "Gifts"
	_, err = c.UpdateWishlist(ctx, "w1", WishlistPatch{Name: &name})
	require.NoError(t, err)
	share, err := c.ShareWishlist(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "abc", share.ShareToken)
	_, err = c.RevokeWishlistShare(ctx, "w1")
	require.NoError(t, err)
	result, err := c.AddWishlistToCart(ctx, "w1", []string{"p1", "p2"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.ItemsAdded)
	assert.Equal(t, 1, result.ItemsSkipped)
	require.NoError(t, c.DeleteWishlist(ctx, "w1"))

	assert.Equal(t, []call{
		{http.MethodPut, "/api/v1/cart/items/p 1"},
		{http.MethodDelete, "/api/v1/cart/items/p2"},
		{http.MethodGet, "/api/v1/wishlist"},
		{http.MethodPost, "/api/v1/wishlist/items"},
		{http.MethodDelete, "/api/v1/wishlist/w1/items/p1"},
		{http.MethodPut, "/api/v1/wishlist/w1"},
		{http.MethodPost, "/api/v1/wishlist/w1/share"},
		{http.MethodDelete, "/api/v1/wishlist/w1/share"},
		{http.MethodPost, "/api/v1/wishlist/add-to-cart"},
		{http.MethodDelete, "/api/v1/wishlist/w1"},
	}, calls)
}

func TestClient_ErrorClassification(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/cart":
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Cart not found"})
		case "/api/v1/wishlist":
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Wishlist limit reached"})
		default:
			http.Error(w, "bad gateway", http.StatusBadGateway)
		}
	}), &fakeIdentity{})

	ctx := context.Background()

	_, err := c.GetCart(ctx)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsNetwork(err))

	_, err = c.CreateWishlist(ctx, "x")
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	assert.Equal(t, "Wishlist limit reached", err.Error())
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)

	_, err = c.GetWishlist(ctx, "w1")
	require.Error(t, err)
	assert.Equal(t, "HTTP error! status: 502", err.Error())
}

func TestClient_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	c, err := NewClient(addr, WithTimeout(time.Second))
	require.NoError(t, err)

	_, err = c.GetCart(context.Background())
	require.Error(t, err)
	assert.True(t, IsNetwork(err))
	assert.Contains(t, err.Error(), "unable to connect")
}

func TestClient_DecodeError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{not-json"))
	}), &fakeIdentity{})

	_, err := c.GetCart(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestClient_RefreshIsSingleFlight(t *testing.T) {
	const callers = 3
	var refreshes, retried atomic.Int32
	var arrived sync.WaitGroup
	arrived.Add(callers)

	id := &fakeIdentity{access: "stale", refresh: "r1"}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/refresh-token":
			refreshes.Add(1)
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "r1", body["refreshToken"])
			// Hold the refresh open so every 401 joins it.
			time.Sleep(100 * time.Millisecond)
			writeJSON(w, http.StatusOK, TokenPair{AccessToken: "fresh", RefreshToken: "r2"})
		case "/api/v1/cart":
			if r.Header.Get("Authorization") == "Bearer fresh" {
				retried.Add(1)
				writeJSON(w, http.StatusOK, Cart{Total: 10})
				return
			}
			arrived.Done()
			arrived.Wait()
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Token expired"})
		}
	}), id)

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.GetCart(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, refreshes.Load())
	assert.EqualValues(t, callers, retried.Load())
	assert.Equal(t, "fresh", id.AccessToken())
	assert.Equal(t, "r2", id.RefreshToken())
	assert.Equal(t, 1, id.sets)
}

func TestClient_SecondUnauthorizedIsNotRetried(t *testing.T) {
	var cartCalls, refreshes atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/refresh-token":
			refreshes.Add(1)
			writeJSON(w, http.StatusOK, TokenPair{AccessToken: "fresh", RefreshToken: "r2"})
		default:
			cartCalls.Add(1)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}
	}), &fakeIdentity{access: "stale", refresh: "r1"})

	_, err := c.GetCart(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.EqualValues(t, 2, cartCalls.Load())
	assert.EqualValues(t, 1, refreshes.Load())
}

func TestClient_RefreshFailurePropagatesUnauthorized(t *testing.T) {
	var cartCalls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/refresh-token":
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid refresh token"})
		default:
			cartCalls.Add(1)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Token expired"})
		}
	}), &fakeIdentity{access: "stale", refresh: "bad"})

	_, err := c.GetCart(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, "Token expired", err.Error())
	assert.EqualValues(t, 1, cartCalls.Load())
}

func TestClient_AuthEndpointsNeverRefresh(t *testing.T) {
	var refreshes atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/auth/refresh-token" {
			refreshes.Add(1)
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
	}), &fakeIdentity{access: "a", refresh: "r"})

	_, err := c.Login(context.Background(), Credentials{Email: "a@b.c", Password: "secret1"})
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.EqualValues(t, 0, refreshes.Load())
}

func TestClient_LogoutSendsRefreshToken(t *testing.T) {
	var body string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusNoContent)
	}), &fakeIdentity{access: "a", refresh: "r9"})

	require.NoError(t, c.Logout(context.Background()))
	assert.JSONEq(t, `{"refreshToken":"r9"}`, body)
}

func TestGetWishlists_AcceptsSingleObject(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Wishlist{ID: "only", Name: "Default", IsDefault: true})
	}), &fakeIdentity{})

	lists, err := c.GetWishlists(context.Background())
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, "only", lists[0].ID)
}

func TestProductRef_DecodesIDOrDocument(t *testing.T) {
	var items []CartItem
	payload := `[
		{"productId": "p1", "quantity": 1, "unitPrice": 5},
		{"productId": {"_id": "p2", "name": "Lamp", "price": 12.5, "stock": 3}, "quantity": 2}
	]`
	require.NoError(t, json.Unmarshal([]byte(payload), &items))

	assert.Equal(t, "p1", items[0].ProductID.ID)
	assert.Nil(t, items[0].ProductID.Product)
	assert.Equal(t, 5.0, items[0].LineTotal())

	assert.Equal(t, "p2", items[1].ProductID.ID)
	require.NotNil(t, items[1].ProductID.Product)
	assert.Equal(t, 3, items[1].Stock())
	assert.Equal(t, 25.0, items[1].LineTotal())
}

func TestUserMessage(t *testing.T) {
	assert.Empty(t, UserMessage(nil))
	wrapped := fmt.Errorf("add cart: %w", &Error{Status: 400, Message: "Insufficient stock"})
	assert.Equal(t, "Insufficient stock", UserMessage(wrapped))
	assert.Equal(t, "unable to connect to server", UserMessage(newNetworkError(io.EOF)))
	assert.Equal(t, "boom", UserMessage(errors.New("boom")))
}
