// Package cart holds the process-wide cart state. The backend stays the
// source of truth: every successful mutation replaces the local cart with
// the cart the backend returned.
package cart

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/five82/storefront/internal/api"
	"github.com/five82/storefront/internal/metrics"
)

// Backend is the part of the REST client the store needs.
type Backend interface {
	GetCart(ctx context.Context) (*api.Cart, error)
	AddToCart(ctx context.Context, productID string, quantity int) (*api.Cart, error)
	UpdateCartItem(ctx context.Context, productID string, quantity int) (*api.Cart, error)
	RemoveFromCart(ctx context.Context, productID string) (*api.Cart, error)
}

// Snapshot is a copy of the store state handed to readers and subscribers.
type Snapshot struct {
	Cart              *api.Cart
	Loading           bool
	Err               error
	ShouldOpenSidebar bool
	UpdatedAt         time.Time
	// Revision increases each time Cart is replaced or cleared. Zero means
	// the store has never held a value.
	Revision uint64
}

// Option configures a Store.
type Option func(*Store)

// WithMetrics records store operations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the cart domain store. Every network operation takes a sequence
// number when issued; a response is applied only if no later-issued
// operation has been applied already, so the most recent action wins even
// when responses arrive out of order.
type Store struct {
	backend Backend
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	state    Snapshot
	issued   uint64
	applied  uint64
	inflight int
	subs     map[uint64]func(Snapshot)
	nextSub  uint64
}

// New creates an empty store.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
		subs:    make(map[uint64]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Cart returns a copy of the current cart, nil when there is none.
func (s *Store) Cart() *api.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Cart.Clone()
}

// Subscribe calls fn after every state change. The returned func removes
// the subscription.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// FetchCart loads the cart. A missing cart is stored as nil without error.
// Other failures keep the previous cart.
func (s *Store) FetchCart(ctx context.Context) (*api.Cart, error) {
	seq := s.begin()
	c, err := s.backend.GetCart(ctx)
	if err != nil && api.IsNotFound(err) {
		c, err = nil, nil
	}
	return s.finish("fetch", seq, c, err)
}

// AddToCart adds quantity of productID. Quantities below one add a single
// unit. On success the sidebar trigger is raised.
func (s *Store) AddToCart(ctx context.Context, productID string, quantity int) (*api.Cart, error) {
	if quantity < 1 {
		quantity = 1
	}
	seq := s.begin()
	c, err := s.backend.AddToCart(ctx, productID, quantity)
	c, err = s.finish("add", seq, c, err)
	if err == nil {
		s.TriggerSidebarOpen()
	}
	return c, err
}

// UpdateCartItem sets the quantity of productID. A quantity below one
// removes the line instead.
func (s *Store) UpdateCartItem(ctx context.Context, productID string, quantity int) (*api.Cart, error) {
	if quantity < 1 {
		return s.RemoveFromCart(ctx, productID)
	}
	seq := s.begin()
	c, err := s.backend.UpdateCartItem(ctx, productID, quantity)
	return s.finish("update", seq, c, err)
}

// RemoveFromCart removes the line for productID.
func (s *Store) RemoveFromCart(ctx context.Context, productID string) (*api.Cart, error) {
	seq := s.begin()
	c, err := s.backend.RemoveFromCart(ctx, productID)
	return s.finish("remove", seq, c, err)
}

// ClearCart resets the store without a network call. Responses to
// operations issued before the clear are discarded.
func (s *Store) ClearCart() {
	s.mu.Lock()
	s.issued++
	s.applied = s.issued
	s.state = Snapshot{Loading: s.inflight > 0, UpdatedAt: s.now(), Revision: s.state.Revision + 1}
	snap, subs := s.snapshotLocked(), s.subscribersLocked()
	s.mu.Unlock()
	notify(subs, snap)
}

// TriggerSidebarOpen asks cart surfaces to reveal themselves.
func (s *Store) TriggerSidebarOpen() {
	s.setSidebar(true)
}

// ClearSidebarTrigger acknowledges the sidebar trigger.
func (s *Store) ClearSidebarTrigger() {
	s.setSidebar(false)
}

func (s *Store) setSidebar(open bool) {
	s.mu.Lock()
	if s.state.ShouldOpenSidebar == open {
		s.mu.Unlock()
		return
	}
	s.state.ShouldOpenSidebar = open
	snap, subs := s.snapshotLocked(), s.subscribersLocked()
	s.mu.Unlock()
	notify(subs, snap)
}

// ItemCount is the sum of quantities across distinct products.
func (s *Store) ItemCount() int {
	return ItemCount(s.Cart())
}

// UniqueItemCount is the number of distinct products with quantity >= 1.
func (s *Store) UniqueItemCount() int {
	return UniqueItemCount(s.Cart())
}

// Total is the cart total; see Total.
func (s *Store) Total() float64 {
	return Total(s.Cart())
}

// ItemCount sums quantities, counting each product once.
func ItemCount(c *api.Cart) int {
	n := 0
	for _, item := range distinct(c) {
		n += item.Quantity
	}
	return n
}

// UniqueItemCount counts distinct products with a positive quantity.
func UniqueItemCount(c *api.Cart) int {
	n := 0
	for _, item := range distinct(c) {
		if item.Quantity >= 1 {
			n++
		}
	}
	return n
}

// Total prefers the backend total, then the backend subtotal, then the sum
// of line totals.
func Total(c *api.Cart) float64 {
	if c == nil {
		return 0
	}
	if c.Total > 0 {
		return c.Total
	}
	if c.Subtotal > 0 {
		return c.Subtotal
	}
	var sum float64
	for _, item := range distinct(c) {
		sum += item.LineTotal()
	}
	return sum
}

// distinct keeps the first line per product.
func distinct(c *api.Cart) []api.CartItem {
	if c == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(c.Items))
	out := make([]api.CartItem, 0, len(c.Items))
	for _, item := range c.Items {
		if _, ok := seen[item.ProductID.ID]; ok {
			continue
		}
		seen[item.ProductID.ID] = struct{}{}
		out = append(out, item)
	}
	return out
}

func (s *Store) begin() uint64 {
	s.mu.Lock()
	s.issued++
	seq := s.issued
	s.inflight++
	s.state.Loading = true
	snap, subs := s.snapshotLocked(), s.subscribersLocked()
	s.mu.Unlock()
	notify(subs, snap)
	return seq
}

func (s *Store) finish(op string, seq uint64, c *api.Cart, err error) (*api.Cart, error) {
	s.metrics.StoreOp("cart", op, err)

	s.mu.Lock()
	s.inflight--
	s.state.Loading = s.inflight > 0
	stale := seq < s.applied
	switch {
	case stale:
		s.logger.Debug("discarding superseded cart response", slog.String("op", op), slog.Uint64("seq", seq))
	case err != nil:
		s.state.Err = err
	default:
		s.applied = seq
		s.state.Cart = c.Clone()
		s.state.Err = nil
		s.state.UpdatedAt = s.now()
		s.state.Revision++
	}
	snap, subs := s.snapshotLocked(), s.subscribersLocked()
	s.mu.Unlock()
	notify(subs, snap)

	if err != nil {
		s.logger.Warn("cart operation failed", slog.String("op", op), slog.String("error", err.Error()))
		return nil, fmt.Errorf("%s cart: %w", op, err)
	}
	return c, nil
}

func (s *Store) snapshotLocked() Snapshot {
	snap := s.state
	snap.Cart = s.state.Cart.Clone()
	return snap
}

func (s *Store) subscribersLocked() []func(Snapshot) {
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]func(Snapshot), 0, len(ids))
	for _, id := range ids {
		out = append(out, s.subs[id])
	}
	return out
}

func notify(subs []func(Snapshot), snap Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}
