package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/five82/storefront/internal/api"
	"github.com/five82/storefront/internal/cache"
	"github.com/five82/storefront/internal/cart"
	"github.com/five82/storefront/internal/config"
	"github.com/five82/storefront/internal/logfile"
	"github.com/five82/storefront/internal/metrics"
	"github.com/five82/storefront/internal/prefs"
	"github.com/five82/storefront/internal/reconcile"
	"github.com/five82/storefront/internal/session"
	"github.com/five82/storefront/internal/ui"
	"github.com/five82/storefront/internal/wishlist"
)

// Options configure the storefront application.
type Options struct {
	ConfigPath string
	PrefsPath  string        // empty uses default ~/.config/storefront/prefs.toml
	PollEvery  time.Duration // zero uses the configured poll interval
}

// App is the composition root: one instance of every process-wide
// component, wired together.
type App struct {
	Config    config.Config
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	KV        prefs.KV
	Session   *session.Session
	Client    *api.Client
	Cache     *cache.Cache
	Carts     *cart.Store
	Wishlists *wishlist.Store

	unbind  func()
	closers []func() error
}

// Run boots the storefront TUI until the context is cancelled or the user
// quits.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser, err := logfile.Open(cfg.LogFile, cfg.SlogLevel())
	if err != nil {
		return err
	}
	defer logCloser.Close()

	userPrefs, _ := prefs.Load(opts.PrefsPath)

	a, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown", slog.String("error", err.Error()))
		}
	}()

	if cfg.MetricsAddr != "" {
		a.Metrics.Serve(ctx, cfg.MetricsAddr, logger)
	}

	interval := cfg.PollInterval
	if opts.PollEvery > 0 {
		interval = opts.PollEvery
	}

	// Populate the stores before the first frame. The cache keeps serving
	// the previous values when this fails.
	if err := a.Refresh(ctx); err != nil {
		logger.Warn("initial refresh failed", slog.String("error", err.Error()))
	}
	StartPoller(ctx, a, interval, logger)

	logger.Info("storefront started",
		slog.String("api_url", cfg.APIURL),
		slog.String("prefs_backend", cfg.PrefsBackend),
		slog.Bool("authenticated", a.Session.IsAuthenticated()),
	)

	return ui.Run(ui.Options{
		Context:          ctx,
		Carts:            a.Carts,
		Wishlists:        a.Wishlists,
		Cache:            a.Cache,
		Session:          a.Session,
		Actions:          a,
		Metrics:          a.Metrics,
		Logger:           logger,
		LogPath:          cfg.LogFile,
		ThrottleInterval: cfg.ThrottleInterval,
		ThemeName:        userPrefs.Theme,
		StartView:        userPrefs.StartView,
		PrefsPath:        opts.PrefsPath,
	})
}

// New builds every component from cfg. Close releases what New opened.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}

	kv, closeKV, err := openKV(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.KV = kv
	if closeKV != nil {
		a.closers = append(a.closers, closeKV)
	}

	a.Session, err = session.Load(ctx, kv, logger.With(slog.String("component", "session")))
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("load session: %w", err)
	}

	a.Client, err = api.NewClient(cfg.APIURL,
		api.WithIdentity(a.Session),
		api.WithMetrics(a.Metrics),
		api.WithLogger(logger.With(slog.String("component", "api"))),
		api.WithTimeout(cfg.RequestTimeout),
	)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("init api client: %w", err)
	}

	a.Cache = cache.New(ctx, cache.Options{
		NotFound: api.IsNotFound,
		Metrics:  a.Metrics,
		Logger:   logger.With(slog.String("component", "cache")),
	})
	registerFetchers(a.Cache, a.Client)

	a.Carts = cart.New(a.Client,
		cart.WithMetrics(a.Metrics),
		cart.WithLogger(logger.With(slog.String("component", "cart"))),
	)
	a.Wishlists = wishlist.New(a.Client, kv,
		wishlist.WithMetrics(a.Metrics),
		wishlist.WithLogger(logger.With(slog.String("component", "wishlist"))),
	)
	a.unbind = reconcile.Bind(a.Carts, a.Wishlists, a.Cache)
	return a, nil
}

func registerFetchers(c *cache.Cache, client *api.Client) {
	c.Register(cache.KeyCart, func(ctx context.Context, _ string) (any, error) {
		return client.GetCart(ctx)
	})
	c.Register(cache.KeyWishlists, func(ctx context.Context, _ string) (any, error) {
		return client.GetWishlists(ctx)
	})
	c.RegisterPrefix(cache.KeyWishlists+"/", func(ctx context.Context, key string) (any, error) {
		w, err := client.GetWishlist(ctx, key[len(cache.KeyWishlists)+1:])
		if err != nil {
			return nil, err
		}
		return *w, nil
	})
}

func openKV(ctx context.Context, cfg config.Config) (prefs.KV, func() error, error) {
	switch cfg.PrefsBackend {
	case "memory":
		return prefs.NewMemoryKV(), nil, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		return prefs.NewRedisKV(client, cfg.RedisNamespace), client.Close, nil
	default:
		kv, err := prefs.NewFileKV(cfg.StatePath)
		if err != nil {
			return nil, nil, err
		}
		return kv, nil, nil
	}
}

// Refresh reloads the cart and wishlists. Failures are logged; the stores
// keep their previous values.
func (a *App) Refresh(ctx context.Context) error {
	_, cartErr := a.Carts.FetchCart(ctx)
	_, wishErr := a.Wishlists.FetchWishlists(ctx)
	return errors.Join(cartErr, wishErr)
}

// Close stops the store to cache binding, waits for background cache
// fetches and closes backing connections.
func (a *App) Close() error {
	if a.unbind != nil {
		a.unbind()
		a.unbind = nil
	}
	if a.Cache != nil {
		a.Cache.Wait()
	}
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
