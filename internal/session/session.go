// Package session holds the caller identity: auth tokens, the signed-in user
// and the guest session id. Values are persisted through a prefs.KV so they
// survive a restart.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/five82/storefront/internal/api"
	"github.com/five82/storefront/internal/prefs"
)

// Session implements api.Identity.
type Session struct {
	mu      sync.RWMutex
	kv      prefs.KV
	logger  *slog.Logger
	access  string
	refresh string
	user    *api.User
	guestID string
}

var _ api.Identity = (*Session)(nil)

// Load restores a session from kv. Missing values are not an error.
func Load(ctx context.Context, kv prefs.KV, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Session{kv: kv, logger: logger}

	var err error
	if s.access, _, err = kv.Get(ctx, prefs.KeyAccessToken); err != nil {
		return nil, fmt.Errorf("load access token: %w", err)
	}
	if s.refresh, _, err = kv.Get(ctx, prefs.KeyRefreshToken); err != nil {
		return nil, fmt.Errorf("load refresh token: %w", err)
	}
	if s.guestID, _, err = kv.Get(ctx, prefs.KeyGuestSessionID); err != nil {
		return nil, fmt.Errorf("load guest session: %w", err)
	}
	raw, ok, err := kv.Get(ctx, prefs.KeyUser)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if ok && raw != "" {
		var u api.User
		if err := json.Unmarshal([]byte(raw), &u); err == nil {
			s.user = &u
		} else {
			logger.Warn("discarding unreadable stored user", slog.String("error", err.Error()))
		}
	}
	return s, nil
}

// AccessToken implements api.Identity.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

// RefreshToken implements api.Identity.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

// GuestSessionID returns the guest id, generating and persisting one on first
// use. If persistence fails the id still lives for the process lifetime.
func (s *Session) GuestSessionID() string {
	s.mu.RLock()
	id := s.guestID
	s.mu.RUnlock()
	if id != "" {
		return id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.guestID != "" {
		return s.guestID
	}
	s.guestID = uuid.NewString()
	if err := s.kv.Set(context.Background(), prefs.KeyGuestSessionID, s.guestID); err != nil {
		s.logger.Warn("persist guest session id", slog.String("error", err.Error()))
	}
	return s.guestID
}

// ClearGuestSessionID discards the guest id so the next request starts a
// new guest session.
func (s *Session) ClearGuestSessionID() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guestID = ""
	if err := s.kv.Remove(context.Background(), prefs.KeyGuestSessionID); err != nil {
		s.logger.Warn("remove guest session id", slog.String("error", err.Error()))
	}
}

// SetTokens implements api.Identity. An empty refresh token keeps the
// current one.
func (s *Session) SetTokens(access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setTokensLocked(access, refresh)
}

func (s *Session) setTokensLocked(access, refresh string) error {
	ctx := context.Background()
	s.access = access
	if refresh != "" {
		s.refresh = refresh
	}
	if err := s.kv.Set(ctx, prefs.KeyAccessToken, s.access); err != nil {
		return fmt.Errorf("persist access token: %w", err)
	}
	if err := s.kv.Set(ctx, prefs.KeyRefreshToken, s.refresh); err != nil {
		return fmt.Errorf("persist refresh token: %w", err)
	}
	return nil
}

// SetAuth records a successful login or registration.
func (s *Session) SetAuth(user api.User, access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := user
	s.user = &u
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := s.kv.Set(context.Background(), prefs.KeyUser, string(raw)); err != nil {
		return fmt.Errorf("persist user: %w", err)
	}
	return s.setTokensLocked(access, refresh)
}

// ClearAuth forgets the user and both tokens.
func (s *Session) ClearAuth() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.access = ""
	s.refresh = ""
	ctx := context.Background()
	for _, key := range []string{prefs.KeyAccessToken, prefs.KeyRefreshToken, prefs.KeyUser} {
		if err := s.kv.Remove(ctx, key); err != nil {
			s.logger.Warn("remove auth value", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
}

// User returns the signed-in user, if any.
func (s *Session) User() (api.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return api.User{}, false
	}
	return *s.user, true
}

// IsAuthenticated reports whether a user and access token are present.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.access != ""
}

// Claims is the subset of the access token the UI displays.
type Claims struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
}

// Expired reports whether the token expiry has passed at now.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

type accessClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Claims decodes the access token without verifying its signature; the
// backend remains the only verifier.
func (s *Session) Claims() (Claims, error) {
	token := s.AccessToken()
	if token == "" {
		return Claims{}, fmt.Errorf("no access token")
	}
	var parsed accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &parsed); err != nil {
		return Claims{}, fmt.Errorf("parse access token: %w", err)
	}
	c := Claims{Subject: parsed.Subject, Role: parsed.Role}
	if parsed.ExpiresAt != nil {
		c.ExpiresAt = parsed.ExpiresAt.Time
	}
	return c, nil
}
