package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/five82/storefront/internal/api"
	"github.com/five82/storefront/internal/app"
	"github.com/five82/storefront/internal/cart"
	"github.com/five82/storefront/internal/config"
	"github.com/five82/storefront/internal/logfile"
)

const passwordEnv = "STOREFRONT_PASSWORD"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := ""
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "":
		err = runTUI(ctx, args)
	case "login":
		err = runLogin(ctx, args, stdout)
	case "logout":
		err = runLogout(ctx, args, stdout)
	case "status":
		err = runStatus(ctx, args, stdout)
	default:
		err = fmt.Errorf("unknown command %q (want login, logout or status)", cmd)
	}
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		fmt.Fprintf(stderr, "storefront: %v\n", err)
		return 1
	}
	return 0
}

func runTUI(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("storefront", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file path (optional)")
	prefsPath := fs.String("prefs", "", "preferences file path (optional)")
	pollSeconds := fs.Int("poll", 0, "background refresh interval in seconds (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := app.Options{ConfigPath: *configPath, PrefsPath: *prefsPath}
	if poll := *pollSeconds; poll > 0 {
		opts.PollEvery = time.Duration(poll) * time.Second
	}
	return app.Run(ctx, opts)
}

// open builds the application for a one-shot command.
func open(ctx context.Context, configPath string) (*app.App, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, logCloser, err := logfile.Open(cfg.LogFile, cfg.SlogLevel())
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = logCloser.Close()
		return nil, nil, err
	}
	return a, func() {
		_ = a.Close()
		_ = logCloser.Close()
	}, nil
}

func runLogin(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file path (optional)")
	email := fs.String("email", "", "account email (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	password := os.Getenv(passwordEnv)
	if *email == "" || password == "" {
		return fmt.Errorf("login needs -email and %s", passwordEnv)
	}

	a, closeApp, err := open(ctx, *configPath)
	if err != nil {
		return err
	}
	defer closeApp()

	resp, err := a.Login(ctx, api.Credentials{Email: *email, Password: password})
	if err != nil {
		return fmt.Errorf("login: %s", api.UserMessage(err))
	}
	fmt.Fprintf(stdout, "signed in as %s\n", resp.User.Email)
	if resp.CartConverted {
		fmt.Fprintf(stdout, "guest cart merged: %d item(s)\n", a.Carts.ItemCount())
	}
	return nil
}

func runLogout(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("logout", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file path (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, closeApp, err := open(ctx, *configPath)
	if err != nil {
		return err
	}
	defer closeApp()

	if err := a.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	fmt.Fprintln(stdout, "signed out")
	return nil
}

func runStatus(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file path (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, closeApp, err := open(ctx, *configPath)
	if err != nil {
		return err
	}
	defer closeApp()

	refreshErr := a.Refresh(ctx)

	who := "guest"
	if u, ok := a.Session.User(); ok && a.Session.IsAuthenticated() {
		who = u.Email
	}
	c := a.Carts.Cart()
	fmt.Fprintf(stdout, "user:      %s\n", who)
	if claims, err := a.Session.Claims(); err == nil && !claims.ExpiresAt.IsZero() {
		state := "valid"
		if claims.Expired(time.Now()) {
			state = "expired, refreshed on next request"
		}
		fmt.Fprintf(stdout, "token:     %s until %s\n", state, claims.ExpiresAt.Local().Format(time.DateTime))
	}
	fmt.Fprintf(stdout, "cart:      %d item(s), %d line(s), $%.2f\n", cart.ItemCount(c), cart.UniqueItemCount(c), cart.Total(c))
	fmt.Fprintf(stdout, "wishlists: %d, %d saved product(s)\n", len(a.Wishlists.Wishlists()), a.Wishlists.UniqueProductCount())
	fmt.Fprintf(stdout, "cached:    %s\n", strings.Join(a.Cache.Keys(), ", "))
	if refreshErr != nil {
		return fmt.Errorf("refresh: %s", api.UserMessage(refreshErr))
	}
	return nil
}
