// Package prefs persists client-side state: the UI preferences file and the
// KV port used for tokens, the guest session id and the active wishlist.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultPrefsPath = "~/.config/storefront/prefs.toml"
	defaultTheme     = "Nightfox"
	defaultStartView = "cart"
)

// Prefs is the UI preferences file.
type Prefs struct {
	Theme string `toml:"theme"`
	// StartView is "cart" or "wishlist".
	StartView string `toml:"start_view"`
}

// DefaultPath is used when no path is configured.
func DefaultPath() string { return defaultPrefsPath }

func (p *Prefs) normalize() {
	p.Theme = strings.TrimSpace(p.Theme)
	if p.Theme == "" {
		p.Theme = defaultTheme
	}
	p.StartView = strings.ToLower(strings.TrimSpace(p.StartView))
	if p.StartView != "cart" && p.StartView != "wishlist" {
		p.StartView = defaultStartView
	}
}

// Load reads preferences from path. A missing, unreadable or malformed
// file yields the defaults; preferences never block startup.
func Load(path string) (Prefs, error) {
	var p Prefs
	if resolved, err := resolvePath(path); err == nil {
		if raw, err := os.ReadFile(resolved); err == nil {
			if toml.Unmarshal(raw, &p) != nil {
				p = Prefs{}
			}
		}
	}
	p.normalize()
	return p, nil
}

// Save writes p to path through a temp file and rename so a crash never
// leaves a half-written file behind.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	raw, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}
	return writeAtomic(resolved, raw)
}

func writeAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", target, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("replace %s: %w", target, err)
	}
	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		path = defaultPrefsPath
	}
	return ExpandPath(path)
}

// ExpandPath turns "~/x" into an absolute path under the home directory.
func ExpandPath(path string) (string, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	if rest, ok := strings.CutPrefix(p, "~"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("home dir: %w", err)
		}
		p = filepath.Join(home, rest)
	}
	return filepath.Abs(p)
}
