package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ProductRef identifies a product. The backend sends either a bare id or a
// populated product document; both decode into ProductRef.
type ProductRef struct {
	ID      string
	Product *Product
}

// UnmarshalJSON accepts "id" or {"_id": "id", ...}.
func (p *ProductRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = ProductRef{}
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*p = ProductRef{ID: id}
		return nil
	}
	var product Product
	if err := json.Unmarshal(data, &product); err != nil {
		return fmt.Errorf("decode product ref: %w", err)
	}
	*p = ProductRef{ID: product.ID, Product: &product}
	return nil
}

// MarshalJSON writes the populated document when present, else the id.
func (p ProductRef) MarshalJSON() ([]byte, error) {
	if p.Product != nil {
		return json.Marshal(p.Product)
	}
	return json.Marshal(p.ID)
}

// Product mirrors the product document embedded in cart and wishlist payloads.
type Product struct {
	ID       string   `json:"_id"`
	Name     string   `json:"name"`
	Price    float64  `json:"price"`
	Stock    int      `json:"stock"`
	Category string   `json:"category,omitempty"`
	Images   []string `json:"images,omitempty"`
}

// CartItem is one line of the cart.
type CartItem struct {
	ProductID ProductRef `json:"productId"`
	Quantity  int        `json:"quantity"`
	UnitPrice float64    `json:"unitPrice,omitempty"`
	Price     float64    `json:"price,omitempty"`
	Subtotal  float64    `json:"subtotal,omitempty"`
}

// EffectiveUnitPrice prefers the snapshot unit price over the list price.
func (i CartItem) EffectiveUnitPrice() float64 {
	if i.UnitPrice != 0 {
		return i.UnitPrice
	}
	if i.Price != 0 {
		return i.Price
	}
	if i.ProductID.Product != nil {
		return i.ProductID.Product.Price
	}
	return 0
}

// LineTotal prefers the backend subtotal, else unit price times quantity.
func (i CartItem) LineTotal() float64 {
	if i.Subtotal != 0 {
		return i.Subtotal
	}
	return i.EffectiveUnitPrice() * float64(i.Quantity)
}

// Stock returns the known stock for the line, zero when not populated.
func (i CartItem) Stock() int {
	if i.ProductID.Product == nil {
		return 0
	}
	return i.ProductID.Product.Stock
}

// Cart mirrors the cart resource.
type Cart struct {
	ID       string     `json:"_id,omitempty"`
	Items    []CartItem `json:"items"`
	Subtotal float64    `json:"subtotal,omitempty"`
	Total    float64    `json:"total,omitempty"`
}

// Clone returns a deep copy of the item slice.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	dup := *c
	if c.Items != nil {
		dup.Items = make([]CartItem, len(c.Items))
		copy(dup.Items, c.Items)
	}
	return &dup
}

// Item returns the first line referencing productID.
func (c *Cart) Item(productID string) (CartItem, bool) {
	if c == nil {
		return CartItem{}, false
	}
	for _, item := range c.Items {
		if item.ProductID.ID == productID {
			return item, true
		}
	}
	return CartItem{}, false
}

// Wishlist mirrors one named wishlist.
type Wishlist struct {
	ID         string       `json:"_id"`
	Name       string       `json:"name"`
	ProductIDs []ProductRef `json:"productIds"`
	IsDefault  bool         `json:"isDefault"`
	IsShared   bool         `json:"isShared"`
	ShareToken string       `json:"shareToken,omitempty"`
}

// Clone returns a deep copy of the product slice.
func (w Wishlist) Clone() Wishlist {
	if w.ProductIDs != nil {
		ids := make([]ProductRef, len(w.ProductIDs))
		copy(ids, w.ProductIDs)
		w.ProductIDs = ids
	}
	return w
}

// Has reports whether productID is a member of w.
func (w Wishlist) Has(productID string) bool {
	for _, ref := range w.ProductIDs {
		if ref.ID == productID {
			return true
		}
	}
	return false
}

// WishlistPatch is the body of PUT /wishlist/{id}. Nil fields are left alone.
type WishlistPatch struct {
	Name      *string `json:"name,omitempty"`
	IsDefault *bool   `json:"isDefault,omitempty"`
}

// ShareResult is returned by POST /wishlist/{id}/share.
type ShareResult struct {
	ShareToken string `json:"shareToken"`
	ShareURL   string `json:"shareUrl,omitempty"`
}

// MoveToCartResult reports how many wishlist products reached the cart.
type MoveToCartResult struct {
	ItemsAdded   int   `json:"itemsAdded"`
	ItemsSkipped int   `json:"itemsSkipped"`
	Cart         *Cart `json:"cart,omitempty"`
}

// User is the authenticated profile.
type User struct {
	ID    string `json:"_id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Credentials are posted to /auth/login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is posted to /auth/register.
type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	User              User   `json:"user"`
	AccessToken       string `json:"accessToken"`
	RefreshToken      string `json:"refreshToken"`
	CartConverted     bool   `json:"cartConverted"`
	WishlistConverted bool   `json:"wishlistConverted"`
}

// TokenPair is returned by /auth/refresh-token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
