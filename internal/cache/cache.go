package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/five82/storefront/internal/metrics"
)

// Status is the last fetch status of an entry.
type Status int

const (
	// StatusPending means no fetch has resolved yet.
	StatusPending Status = iota
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "pending"
	}
}

// Well-known keys.
const (
	KeyCart      = "/cart"
	KeyWishlists = "/wishlist"
)

// WishlistKey is the key of a single wishlist resource.
func WishlistKey(id string) string {
	return KeyWishlists + "/" + id
}

// Key builds a logical key from a resource path and query parameters.
// Parameters are sorted so equal queries map to one key.
func Key(path string, query url.Values) string {
	if len(query) == 0 {
		return path
	}
	return path + "?" + query.Encode()
}

// ErrNoFetcher is returned by Refresh when no fetcher serves the key.
var ErrNoFetcher = errors.New("no fetcher registered")

// Entry is a snapshot of one cached resource.
type Entry struct {
	Key string
	// Value is the last resolved value. It stays in place when a later fetch
	// fails. A nil Value with HasValue set means "resolved as empty".
	Value     any
	HasValue  bool
	Status    Status
	Err       error
	Fetching  bool
	UpdatedAt time.Time
}

// Value returns the entry value as T.
func Value[T any](e Entry) (T, bool) {
	var zero T
	if !e.HasValue || e.Value == nil {
		return zero, false
	}
	v, ok := e.Value.(T)
	return v, ok
}

// Fetcher loads the value for key from the network.
type Fetcher func(ctx context.Context, key string) (any, error)

// WriteOptions controls Write.
type WriteOptions struct {
	// Revalidate starts a background fetch after the write.
	Revalidate bool
}

// Options configure a Cache.
type Options struct {
	// NotFound classifies fetch errors that mean "no such resource". Those
	// resolve as an empty value instead of an error.
	NotFound func(error) bool
	// DedupeInterval suppresses Read-triggered revalidation when the last
	// fetch started less than this long ago. Zero uses 2s.
	DedupeInterval time.Duration
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	Now            func() time.Time
}

const defaultDedupeInterval = 2 * time.Second

type entry struct {
	Entry
	// issued is the newest generation handed to a fetch or write for the
	// key. A fetch result applies only when its gen still equals issued.
	issued     uint64
	fetchGen   uint64
	fetchStart time.Time
}

type prefixFetcher struct {
	prefix string
	fetch  Fetcher
}

// Cache is a keyed store of last-known-good server responses with
// stale-while-revalidate reads. It is safe for concurrent use.
type Cache struct {
	ctx  context.Context
	opts Options

	mu       sync.Mutex
	seq      uint64
	entries  map[string]*entry
	fetchers map[string]Fetcher
	prefixes []prefixFetcher
	subs     map[string]map[uint64]func(Entry)
	nextSub  uint64

	wg sync.WaitGroup
}

// New creates a cache whose background fetches run under ctx.
func New(ctx context.Context, opts Options) *Cache {
	if opts.DedupeInterval <= 0 {
		opts.DedupeInterval = defaultDedupeInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NotFound == nil {
		opts.NotFound = func(error) bool { return false }
	}
	return &Cache{
		ctx:      ctx,
		opts:     opts,
		entries:  make(map[string]*entry),
		fetchers: make(map[string]Fetcher),
		subs:     make(map[string]map[uint64]func(Entry)),
	}
}

// Register serves key with fetch.
func (c *Cache) Register(key string, fetch Fetcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchers[key] = fetch
}

// RegisterPrefix serves every key starting with prefix that has no exact
// fetcher. Longer prefixes win.
func (c *Cache) RegisterPrefix(prefix string, fetch Fetcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefixes = append(c.prefixes, prefixFetcher{prefix: prefix, fetch: fetch})
	sort.SliceStable(c.prefixes, func(i, j int) bool {
		return len(c.prefixes[i].prefix) > len(c.prefixes[j].prefix)
	})
}

func (c *Cache) fetcherLocked(key string) Fetcher {
	if f, ok := c.fetchers[key]; ok {
		return f
	}
	for _, p := range c.prefixes {
		if strings.HasPrefix(key, p.prefix) {
			return p.fetch
		}
	}
	return nil
}

// Read returns the cached entry immediately and revalidates it in the
// background unless a fetch is already in flight or started recently.
func (c *Cache) Read(key string) Entry {
	c.mu.Lock()
	e := c.entryLocked(key)
	c.opts.Metrics.CacheRead(e.HasValue)
	now := c.opts.Now()
	if e.fetchGen == 0 && (e.fetchStart.IsZero() || now.Sub(e.fetchStart) >= c.opts.DedupeInterval) {
		if fetch := c.fetcherLocked(key); fetch != nil {
			c.startFetchLocked(key, e, fetch)
		}
	}
	snap := e.Entry
	c.mu.Unlock()
	return snap
}

// Peek returns the cached entry without triggering a fetch.
func (c *Cache) Peek(key string) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.Entry
	}
	return Entry{Key: key}
}

// Refresh fetches key synchronously and returns the resulting entry. A
// not-found result is not an error.
func (c *Cache) Refresh(ctx context.Context, key string) (Entry, error) {
	c.mu.Lock()
	fetch := c.fetcherLocked(key)
	if fetch == nil {
		c.mu.Unlock()
		return Entry{Key: key}, fmt.Errorf("refresh %s: %w", key, ErrNoFetcher)
	}
	e := c.entryLocked(key)
	gen := c.beginFetchLocked(e)
	c.mu.Unlock()

	value, err := fetch(ctx, key)
	snap := c.complete(key, gen, value, err)
	if err != nil && !c.opts.NotFound(err) {
		return snap, err
	}
	return snap, nil
}

// Write injects value for key, superseding any fetch in flight, and
// notifies subscribers.
func (c *Cache) Write(key string, value any, opts WriteOptions) {
	c.mu.Lock()
	e := c.entryLocked(key)
	c.seq++
	e.issued = c.seq
	e.Value = value
	e.HasValue = true
	e.Status = StatusSuccess
	e.Err = nil
	e.UpdatedAt = c.opts.Now()
	if opts.Revalidate {
		if fetch := c.fetcherLocked(key); fetch != nil {
			c.startFetchLocked(key, e, fetch)
		}
	}
	snap := e.Entry
	subs := c.subscribersLocked(key)
	c.mu.Unlock()

	notify(subs, snap)
}

// InvalidateAll drops every entry. Results of fetches already in flight are
// discarded. Subscribers are told their key is now absent.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	// Bumping seq makes every outstanding fetch gen stale.
	c.seq++
	type pending struct {
		subs []func(Entry)
		snap Entry
	}
	var out []pending
	for key := range c.subs {
		out = append(out, pending{subs: c.subscribersLocked(key), snap: Entry{Key: key}})
	}
	c.mu.Unlock()

	for _, p := range out {
		notify(p.subs, p.snap)
	}
	c.opts.Logger.Debug("resource cache invalidated")
}

// Subscribe calls fn after every change to key. The returned func removes
// the subscription.
func (c *Cache) Subscribe(key string, fn func(Entry)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	id := c.nextSub
	if c.subs[key] == nil {
		c.subs[key] = make(map[uint64]func(Entry))
	}
	c.subs[key][id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs[key], id)
		if len(c.subs[key]) == 0 {
			delete(c.subs, key)
		}
	}
}

// Keys lists cached keys in sorted order.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Wait blocks until every background fetch has finished.
func (c *Cache) Wait() {
	c.wg.Wait()
}

func (c *Cache) entryLocked(key string) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{Entry: Entry{Key: key, Status: StatusPending}}
		c.entries[key] = e
	}
	return e
}

func (c *Cache) beginFetchLocked(e *entry) uint64 {
	c.seq++
	gen := c.seq
	e.issued = gen
	e.fetchGen = gen
	e.fetchStart = c.opts.Now()
	e.Fetching = true
	return gen
}

func (c *Cache) startFetchLocked(key string, e *entry, fetch Fetcher) {
	gen := c.beginFetchLocked(e)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		value, err := fetch(c.ctx, key)
		c.complete(key, gen, value, err)
	}()
}

// complete applies a fetch result if gen is still the newest issued for key.
func (c *Cache) complete(key string, gen uint64, value any, err error) Entry {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		c.opts.Metrics.CacheFetch("stale")
		return Entry{Key: key}
	}
	if e.fetchGen == gen {
		e.fetchGen = 0
		e.Fetching = false
	}
	if gen != e.issued {
		snap := e.Entry
		c.mu.Unlock()
		c.opts.Metrics.CacheFetch("stale")
		return snap
	}

	outcome := "success"
	switch {
	case err == nil:
		e.Value = value
		e.HasValue = true
		e.Status = StatusSuccess
		e.Err = nil
	case c.opts.NotFound(err):
		outcome = "empty"
		e.Value = nil
		e.HasValue = true
		e.Status = StatusSuccess
		e.Err = nil
	default:
		outcome = "error"
		e.Status = StatusError
		e.Err = err
		c.opts.Logger.Warn("resource fetch failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	e.UpdatedAt = c.opts.Now()
	snap := e.Entry
	subs := c.subscribersLocked(key)
	c.mu.Unlock()

	c.opts.Metrics.CacheFetch(outcome)
	notify(subs, snap)
	return snap
}

func (c *Cache) subscribersLocked(key string) []func(Entry) {
	subs := c.subs[key]
	if len(subs) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]func(Entry), 0, len(ids))
	for _, id := range ids {
		out = append(out, subs[id])
	}
	return out
}

func notify(subs []func(Entry), snap Entry) {
	for _, fn := range subs {
		fn(snap)
	}
}
