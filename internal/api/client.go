package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/five82/storefront/internal/metrics"
)

// Identity supplies the per-request credentials and receives refreshed
// tokens. It is implemented by *session.Session.
type Identity interface {
	AccessToken() string
	RefreshToken() string
	GuestSessionID() string
	SetTokens(access, refresh string) error
}

// Client talks to the storefront REST API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	identity  Identity
	metrics   *metrics.Metrics
	logger    *slog.Logger

	refreshGroup singleflight.Group
}

const (
	defaultBaseURL   = "http://localhost:3000/api/v1"
	defaultUserAgent = "storefront/0.1"
	requestTimeout   = 10 * time.Second
	maxBodyBytes     = 4 << 20

	headerSessionID = "X-Session-Id"
)

var errNoRefreshToken = errors.New("no refresh token")

// Option customises a Client.
type Option func(*Client)

// WithIdentity attaches bearer token and guest session headers.
func WithIdentity(id Identity) Option {
	return func(c *Client) { c.identity = id }
}

// WithMetrics records request and refresh metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// NewClient builds a Client for the API rooted at baseURL
// (for example http://localhost:3000/api/v1).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL: base,
		http: &http.Client{
			Timeout: requestTimeout,
		},
		userAgent: defaultUserAgent,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	return c.send(ctx, method, path, body, dest, true)
}

// send performs one request. A 401 on a non-auth endpoint triggers a shared
// token refresh followed by exactly one retry.
func (c *Client) send(ctx context.Context, method, path string, body, dest any, allowRefresh bool) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	token := c.accessToken()
	resp, err := c.roundTrip(ctx, method, path, payload, token)
	if err != nil {
		return err
	}

	if resp.status == http.StatusUnauthorized && allowRefresh && !isAuthEndpoint(path) {
		if refreshErr := c.refreshOnce(ctx, token); refreshErr == nil {
			resp, err = c.roundTrip(ctx, method, path, payload, c.accessToken())
			if err != nil {
				return err
			}
		} else {
			c.logger.Warn("token refresh failed",
				slog.String("path", path),
				slog.String("error", refreshErr.Error()))
		}
	}

	return resp.decode(dest)
}

// refreshOnce refreshes the access token unless another caller already
// replaced the token that was rejected. Concurrent callers share one
// in-flight refresh.
func (c *Client) refreshOnce(ctx context.Context, rejected string) error {
	if current := c.accessToken(); current != "" && current != rejected {
		return nil
	}
	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		// Detached so one caller's cancellation does not fail every waiter.
		return nil, c.refreshTokens(context.WithoutCancel(ctx))
	})
	return err
}

func (c *Client) refreshTokens(ctx context.Context) error {
	if c.identity == nil || c.identity.RefreshToken() == "" {
		c.metrics.TokenRefresh("skipped")
		return errNoRefreshToken
	}
	var pair TokenPair
	body := map[string]string{"refreshToken": c.identity.RefreshToken()}
	if err := c.send(ctx, http.MethodPost, "/auth/refresh-token", body, &pair, false); err != nil {
		c.metrics.TokenRefresh("failure")
		return fmt.Errorf("refresh token: %w", err)
	}
	if pair.AccessToken == "" {
		c.metrics.TokenRefresh("failure")
		return fmt.Errorf("refresh token: empty access token")
	}
	if err := c.identity.SetTokens(pair.AccessToken, pair.RefreshToken); err != nil {
		c.metrics.TokenRefresh("failure")
		return fmt.Errorf("store refreshed tokens: %w", err)
	}
	c.metrics.TokenRefresh("success")
	c.logger.Debug("access token refreshed")
	return nil
}

type response struct {
	status      int
	contentType string
	body        []byte
	path        string
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, token string) (response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return response{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.identity != nil {
		if sid := c.identity.GuestSessionID(); sid != "" {
			req.Header.Set(headerSessionID, sid)
		}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveAPI(method, 0, time.Since(start))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return response{}, ctxErr
		}
		c.logger.Debug("request failed", slog.String("method", method), slog.String("path", path), slog.String("error", err.Error()))
		return response{}, newNetworkError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	c.metrics.ObserveAPI(method, resp.StatusCode, time.Since(start))
	if err != nil {
		return response{}, newNetworkError(fmt.Errorf("read body: %w", err))
	}
	c.logger.Debug("request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)))

	return response{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        body,
		path:        path,
	}, nil
}

func (r response) decode(dest any) error {
	ok := r.status >= 200 && r.status < 300
	isJSON := strings.Contains(r.contentType, "application/json")

	if !ok {
		apiErr := &Error{Status: r.status}
		if isJSON && len(bytes.TrimSpace(r.body)) > 0 {
			var details map[string]any
			if err := json.Unmarshal(r.body, &details); err == nil {
				apiErr.Details = details
				apiErr.Message = messageFrom(details)
			}
		}
		if apiErr.Message == "" && isJSON {
			apiErr.Message = "An error occurred"
		}
		return apiErr
	}
	if dest == nil || len(bytes.TrimSpace(r.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.body, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func messageFrom(details map[string]any) string {
	for _, key := range []string{"error", "message"} {
		if s, ok := details[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func (c *Client) accessToken() string {
	if c.identity == nil {
		return ""
	}
	return c.identity.AccessToken()
}

func (c *Client) endpoint(path string) string {
	u := *c.baseURL
	rel, err := url.Parse(path)
	if err != nil {
		u.Path = strings.TrimRight(u.Path, "/") + path
		return u.String()
	}
	u.Path = strings.TrimRight(u.Path, "/") + rel.Path
	u.RawPath = strings.TrimRight(c.baseURL.EscapedPath(), "/") + rel.EscapedPath()
	u.RawQuery = rel.RawQuery
	return u.String()
}

func isAuthEndpoint(path string) bool {
	for _, p := range []string{"/auth/login", "/auth/register", "/auth/refresh-token"} {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse api url %q: missing host", raw)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
