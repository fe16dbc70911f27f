// Package wishlist holds the process-wide collection of the user's named
// wishlists and the active wishlist selection.
package wishlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/five82/storefront/internal/api"
	"github.com/five82/storefront/internal/metrics"
	"github.com/five82/storefront/internal/prefs"
)

// MaxProducts is the most products one wishlist may hold.
const MaxProducts = 50

// ErrWishlistFull is returned when adding to a wishlist at MaxProducts.
var ErrWishlistFull = errors.New("wishlist is full")

// Backend is the part of the REST client the store needs.
type Backend interface {
	GetWishlists(ctx context.Context) ([]api.Wishlist, error)
	GetWishlist(ctx context.Context, id string) (*api.Wishlist, error)
	AddToWishlist(ctx context.Context, productID, wishlistID string) (*api.Wishlist, error)
	RemoveFromWishlist(ctx context.Context, wishlistID, productID string) (*api.Wishlist, error)
	CreateWishlist(ctx context.Context, name string) (*api.Wishlist, error)
	UpdateWishlist(ctx context.Context, id string, patch api.WishlistPatch) (*api.Wishlist, error)
	DeleteWishlist(ctx context.Context, id string) error
	ShareWishlist(ctx context.Context, id string) (*api.ShareResult, error)
	RevokeWishlistShare(ctx context.Context, id string) (*api.Wishlist, error)
	AddWishlistToCart(ctx context.Context, wishlistID string, productIDs []string) (*api.MoveToCartResult, error)
}

// Snapshot is a copy of the store state.
type Snapshot struct {
	Wishlists []api.Wishlist
	ActiveID  string
	Loaded    bool
	Loading   bool
	Err       error
	UpdatedAt time.Time
	// Revision increases each time the collection is replaced or cleared.
	Revision uint64
}

// Active returns the active wishlist.
func (s Snapshot) Active() (api.Wishlist, bool) {
	return find(s.Wishlists, s.ActiveID)
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

// Store is the wishlist domain store.
type Store struct {
	backend Backend
	kv      prefs.KV
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	state    Snapshot
	epoch    uint64
	inflight int
	subs     map[uint64]func(Snapshot)
	nextSub  uint64
}

// New creates an empty store. kv persists the active wishlist id.
func New(backend Backend, kv prefs.KV, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		kv:      kv,
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

// Wishlists returns a copy of the loaded wishlists.
func (s *Store) Wishlists() []api.Wishlist {
	return s.Snapshot().Wishlists
}

// ActiveID returns the active wishlist id, empty when none.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ActiveID
}

// Active returns the active wishlist.
func (s *Store) Active() (api.Wishlist, bool) {
	return s.Snapshot().Active()
}

// Subscribe calls fn after every state change.
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

// FetchWishlists loads every wishlist and repairs the active selection. A
// not-found response yields an empty collection.
func (s *Store) FetchWishlists(ctx context.Context) ([]api.Wishlist, error) {
	epoch := s.begin()
	lists, err := s.backend.GetWishlists(ctx)
	if err != nil && api.IsNotFound(err) {
		lists, err = nil, nil
	}
	if err != nil {
		return nil, s.fail("fetch", epoch, err)
	}

	persisted, _, kvErr := s.kv.Get(ctx, prefs.KeyActiveWishlistID)
	if kvErr != nil {
		s.logger.Warn("read active wishlist id", slog.String("error", kvErr.Error()))
	}

	var chosen string
	applied := s.apply("fetch", epoch, func(st *Snapshot) {
		st.Wishlists = cloneAll(lists)
		st.Loaded = true
		st.ActiveID = ChooseActive(st.Wishlists, st.ActiveID, persisted)
		chosen = st.ActiveID
	})
	if applied && chosen != persisted {
		s.persistActive(ctx, chosen)
	}
	return cloneAll(lists), nil
}

// FetchWishlist reloads one wishlist and replaces it by identity.
func (s *Store) FetchWishlist(ctx context.Context, id string) (*api.Wishlist, error) {
	epoch := s.begin()
	w, err := s.backend.GetWishlist(ctx, id)
	if err != nil {
		return nil, s.fail("fetch_one", epoch, err)
	}
	s.apply("fetch_one", epoch, func(st *Snapshot) { st.Wishlists = upsert(st.Wishlists, *w) })
	return w, nil
}

// SetActiveWishlistID selects and persists the active wishlist. An empty id
// clears the selection.
func (s *Store) SetActiveWishlistID(ctx context.Context, id string) error {
	s.mu.Lock()
	s.state.ActiveID = id
	snap, subs := s.snapshotLocked(), s.subscribersLocked()
	s.mu.Unlock()
	notify(subs, snap)

	if id == "" {
		if err := s.kv.Remove(ctx, prefs.KeyActiveWishlistID); err != nil {
			return fmt.Errorf("clear active wishlist: %w", err)
		}
		return nil
	}
	if err := s.kv.Set(ctx, prefs.KeyActiveWishlistID, id); err != nil {
		return fmt.Errorf("persist active wishlist: %w", err)
	}
	return nil
}

// AddToWishlist adds productID to wishlistID. With an empty wishlistID the
// backend chooses the default wishlist. A wishlist already holding
// MaxProducts products is rejected before any network call.
func (s *Store) AddToWishlist(ctx context.Context, productID, wishlistID string) (*api.Wishlist, error) {
	if err := s.checkCapacity(productID, wishlistID); err != nil {
		s.metrics.StoreOp("wishlist", "add", err)
		return nil, err
	}
	epoch := s.begin()
	w, err := s.backend.AddToWishlist(ctx, productID, wishlistID)
	if err != nil {
		return nil, s.fail("add", epoch, err)
	}
	s.apply("add", epoch, func(st *Snapshot) { st.Wishlists = upsert(st.Wishlists, *w) })
	return w, nil
}

// RemoveFromWishlist removes productID from wishlistID.
func (s *Store) RemoveFromWishlist(ctx context.Context, wishlistID, productID string) (*api.Wishlist, error) {
	epoch := s.begin()
	w, err := s.backend.RemoveFromWishlist(ctx, wishlistID, productID)
	if err != nil {
		return nil, s.fail("remove", epoch, err)
	}
	s.apply("remove", epoch, func(st *Snapshot) { st.Wishlists = upsert(st.Wishlists, *w) })
	return w, nil
}

// CreateWishlist creates a named wishlist and appends it.
func (s *Store) CreateWishlist(ctx context.Context, name string) (*api.Wishlist, error) {
	epoch := s.begin()
	w, err := s.backend.CreateWishlist(ctx, name)
	if err != nil {
		return nil, s.fail("create", epoch, err)
	}
	s.apply("create", epoch, func(st *Snapshot) {
		st.Wishlists = upsert(st.Wishlists, *w)
		if st.ActiveID == "" {
			st.ActiveID = w.ID
		}
	})
	return w, nil
}

// UpdateWishlist applies patch and replaces the wishlist by identity. When
// the patch makes a wishlist default, the others lose the flag.
func (s *Store) UpdateWishlist(ctx context.Context, id string, patch api.WishlistPatch) (*api.Wishlist, error) {
	epoch := s.begin()
	w, err := s.backend.UpdateWishlist(ctx, id, patch)
	if err != nil {
		return nil, s.fail("update", epoch, err)
	}
	s.apply("update", epoch, func(st *Snapshot) {
		st.Wishlists = upsert(st.Wishlists, *w)
		if w.IsDefault {
			for i := range st.Wishlists {
				if st.Wishlists[i].ID != w.ID {
					st.Wishlists[i].IsDefault = false
				}
			}
		}
	})
	return w, nil
}

// DeleteWishlist deletes a wishlist. If it was active the selection falls
// back to the default wishlist, then the first one.
func (s *Store) DeleteWishlist(ctx context.Context, id string) error {
	epoch := s.begin()
	if err := s.backend.DeleteWishlist(ctx, id); err != nil {
		return s.fail("delete", epoch, err)
	}
	var (
		changed bool
		chosen  string
	)
	s.apply("delete", epoch, func(st *Snapshot) {
		st.Wishlists = remove(st.Wishlists, id)
		if st.ActiveID == id {
			st.ActiveID = ChooseActive(st.Wishlists, "", "")
			changed = true
		}
		chosen = st.ActiveID
	})
	if changed {
		s.persistActive(ctx, chosen)
	}
	return nil
}

// ShareWishlist publishes a wishlist and records its share token.
func (s *Store) ShareWishlist(ctx context.Context, id string) (*api.ShareResult, error) {
	epoch := s.begin()
	res, err := s.backend.ShareWishlist(ctx, id)
	if err != nil {
		return nil, s.fail("share", epoch, err)
	}
	s.apply("share", epoch, func(st *Snapshot) {
		for i := range st.Wishlists {
			if st.Wishlists[i].ID == id {
				st.Wishlists[i].IsShared = true
				st.Wishlists[i].ShareToken = res.ShareToken
			}
		}
	})
	return res, nil
}

// RevokeShare unpublishes a wishlist.
func (s *Store) RevokeShare(ctx context.Context, id string) error {
	epoch := s.begin()
	w, err := s.backend.RevokeWishlistShare(ctx, id)
	if err != nil {
		return s.fail("revoke_share", epoch, err)
	}
	s.apply("revoke_share", epoch, func(st *Snapshot) {
		if w != nil && w.ID != "" {
			st.Wishlists = upsert(st.Wishlists, *w)
			return
		}
		for i := range st.Wishlists {
			if st.Wishlists[i].ID == id {
				st.Wishlists[i].IsShared = false
				st.Wishlists[i].ShareToken = ""
			}
		}
	})
	return nil
}

// AddToCart moves products (all when productIDs is empty) from a wishlist
// into the cart. The caller owns refreshing the cart afterwards.
func (s *Store) AddToCart(ctx context.Context, wishlistID string, productIDs []string) (*api.MoveToCartResult, error) {
	epoch := s.begin()
	res, err := s.backend.AddWishlistToCart(ctx, wishlistID, productIDs)
	if err != nil {
		return nil, s.fail("add_to_cart", epoch, err)
	}
	s.apply("add_to_cart", epoch, func(*Snapshot) {})
	s.logger.Info("moved wishlist products to cart",
		slog.String("wishlist_id", wishlistID),
		slog.Int("added", res.ItemsAdded),
		slog.Int("skipped", res.ItemsSkipped),
	)
	return res, nil
}

// ClearWishlists resets the store locally and forgets the persisted active
// id. Responses to operations issued before the clear are discarded.
func (s *Store) ClearWishlists(ctx context.Context) {
	s.mu.Lock()
	s.epoch++
	s.state = Snapshot{Loading: s.inflight > 0, UpdatedAt: s.now(), Revision: s.state.Revision + 1}
	snap, subs := s.snapshotLocked(), s.subscribersLocked()
	s.mu.Unlock()
	notify(subs, snap)

	if err := s.kv.Remove(ctx, prefs.KeyActiveWishlistID); err != nil {
		s.logger.Warn("clear active wishlist id", slog.String("error", err.Error()))
	}
}

// Contains reports whether productID is in any loaded wishlist.
func (s *Store) Contains(productID string) bool {
	return Contains(s.Wishlists(), productID)
}

// UniqueProductCount counts distinct products across all wishlists.
func (s *Store) UniqueProductCount() int {
	return UniqueProductCount(s.Wishlists())
}

// Contains reports whether productID is in any of lists.
func Contains(lists []api.Wishlist, productID string) bool {
	for _, w := range lists {
		if w.Has(productID) {
			return true
		}
	}
	return false
}

// UniqueProductCount is the size of the union of product ids in lists.
func UniqueProductCount(lists []api.Wishlist) int {
	seen := make(map[string]struct{})
	for _, w := range lists {
		for _, ref := range w.ProductIDs {
			seen[ref.ID] = struct{}{}
		}
	}
	return len(seen)
}

// ChooseActive picks the active wishlist: current if it still exists, then
// persisted if it still exists, then the default wishlist, then the first.
// It returns "" for an empty collection.
func ChooseActive(lists []api.Wishlist, current, persisted string) string {
	for _, id := range []string{current, persisted} {
		if id == "" {
			continue
		}
		if _, ok := find(lists, id); ok {
			return id
		}
	}
	for _, w := range lists {
		if w.IsDefault {
			return w.ID
		}
	}
	if len(lists) > 0 {
		return lists[0].ID
	}
	return ""
}

func (s *Store) checkCapacity(productID, wishlistID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		target api.Wishlist
		ok     bool
	)
	if wishlistID != "" {
		target, ok = find(s.state.Wishlists, wishlistID)
	} else {
		for _, w := range s.state.Wishlists {
			if w.IsDefault {
				target, ok = w, true
				break
			}
		}
	}
	if !ok || target.Has(productID) {
		return nil
	}
	if len(target.ProductIDs) >= MaxProducts {
		return fmt.Errorf("add to %q: %w", target.Name, ErrWishlistFull)
	}
	return nil
}

func (s *Store) persistActive(ctx context.Context, id string) {
	var err error
	if id == "" {
		err = s.kv.Remove(ctx, prefs.KeyActiveWishlistID)
	} else {
		err = s.kv.Set(ctx, prefs.KeyActiveWishlistID, id)
	}
	if err != nil {
		s.logger.Warn("persist active wishlist id", slog.String("error", err.Error()))
	}
}

func (s *Store) begin() uint64 {
	s.mu.Lock()
	s.inflight++
	s.state.Loading = true
	epoch := s.epoch
	snap, subs := s.snapshotLocked(), s.subscribersLocked()
	s.mu.Unlock()
	notify(subs, snap)
	return epoch
}

// apply runs mutate if no clear happened since epoch and reports whether it
// did.
func (s *Store) apply(op string, epoch uint64, mutate func(*Snapshot)) bool {
	s.metrics.StoreOp("wishlist", op, nil)

	s.mu.Lock()
	s.inflight--
	s.state.Loading = s.inflight > 0
	current := epoch == s.epoch
	if current {
		mutate(&s.state)
		s.state.Err = nil
		s.state.UpdatedAt = s.now()
		s.state.Revision++
	} else {
		s.logger.Debug("discarding wishlist response issued before clear", slog.String("op", op))
	}
	snap, subs := s.snapshotLocked(), s.subscribersLocked()
	s.mu.Unlock()
	notify(subs, snap)
	return current
}

func (s *Store) fail(op string, epoch uint64, err error) error {
	s.metrics.StoreOp("wishlist", op, err)

	s.mu.Lock()
	s.inflight--
	s.state.Loading = s.inflight > 0
	if epoch == s.epoch {
		s.state.Err = err
	}
	snap, subs := s.snapshotLocked(), s.subscribersLocked()
	s.mu.Unlock()
	notify(subs, snap)

	s.logger.Warn("wishlist operation failed", slog.String("op", op), slog.String("error", err.Error()))
	return fmt.Errorf("%s wishlist: %w", op, err)
}

func (s *Store) snapshotLocked() Snapshot {
	snap := s.state
	snap.Wishlists = cloneAll(s.state.Wishlists)
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

func find(lists []api.Wishlist, id string) (api.Wishlist, bool) {
	for _, w := range lists {
		if w.ID == id {
			return w, true
		}
	}
	return api.Wishlist{}, false
}

func upsert(lists []api.Wishlist, w api.Wishlist) []api.Wishlist {
	for i := range lists {
		if lists[i].ID == w.ID {
			lists[i] = w.Clone()
			return lists
		}
	}
	return append(lists, w.Clone())
}

func remove(lists []api.Wishlist, id string) []api.Wishlist {
	out := lists[:0]
	for _, w := range lists {
		if w.ID != id {
			out = append(out, w)
		}
	}
	return out
}

func cloneAll(lists []api.Wishlist) []api.Wishlist {
	if lists == nil {
		return nil
	}
	out := make([]api.Wishlist, len(lists))
	for i, w := range lists {
		out[i] = w.Clone()
	}
	return out
}
