package prefs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
)

// KV is the small persistence port used for values that must survive a
// restart: the active wishlist id, the guest session id and auth tokens.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Well-known keys.
const (
	KeyActiveWishlistID = "active_wishlist_id"
	KeyGuestSessionID   = "guest_session_id"
	KeyAccessToken      = "auth_token"
	KeyRefreshToken     = "refresh_token"
	KeyUser             = "auth_user"
)

// MemoryKV keeps values in process memory. Useful for tests and for
// ephemeral sessions.
type MemoryKV struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryKV returns an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: make(map[string]string)}
}

// Get implements KV.
func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set implements KV.
func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}

// Remove implements KV.
func (m *MemoryKV) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

const defaultStatePath = "~/.local/state/storefront/state.toml"

// FileKV stores values as a flat TOML table. Every call re-reads the file so
// that two clients sharing a home directory observe each other's writes.
type FileKV struct {
	mu   sync.Mutex
	path string
}

// NewFileKV resolves path (empty uses ~/.local/state/storefront/state.toml).
func NewFileKV(path string) (*FileKV, error) {
	if strings.TrimSpace(path) == "" {
		path = defaultStatePath
	}
	resolved, err := ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("resolve state path: %w", err)
	}
	return &FileKV{path: resolved}, nil
}

// Path returns the resolved backing file.
func (f *FileKV) Path() string {
	return f.path
}

// Get implements KV.
func (f *FileKV) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

// Set implements KV.
func (f *FileKV) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.load()
	if err != nil {
		return err
	}
	values[key] = value
	return f.store(values)
}

// Remove implements KV.
func (f *FileKV) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return f.store(values)
}

func (f *FileKV) load() (map[string]string, error) {
	values := make(map[string]string)
	file, err := os.Open(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, nil
		}
		return nil, fmt.Errorf("open state: %w", err)
	}
	defer func() { _ = file.Close() }()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	if err := toml.Unmarshal(bytes, &values); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	return values, nil
}

func (f *FileKV) store(values map[string]string) error {
	bytes, err := toml.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return writeAtomic(f.path, bytes)
}
