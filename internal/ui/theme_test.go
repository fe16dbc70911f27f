package ui

import (
	"testing"
)

func TestThemeNames(t *testing.T) {
	names := ThemeNames()
	if len(names) != 3 {
		t.Fatalf("ThemeNames() returned %d names, want 3", len(names))
	}
	if names[0] != "Nightfox" {
		t.Fatalf("ThemeNames()[0] = %q, want Nightfox", names[0])
	}
}

func TestNextTheme(t *testing.T) {
	tests := map[string]string{
		"Nightfox": "Kanagawa",
		"Kanagawa": "Slate",
		"Slate":    "Nightfox",
		"Unknown":  "Nightfox",
	}
	for in, want := range tests {
		if got := NextTheme(in); got != want {
			t.Fatalf("NextTheme(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetTheme_FallsBackToNightfox(t *testing.T) {
	if got := GetTheme("Slate").Name; got != "Slate" {
		t.Fatalf("GetTheme(Slate).Name = %q", got)
	}
	if got := GetTheme("Dracula").Name; got != "Nightfox" {
		t.Fatalf("GetTheme(Dracula).Name = %q, want Nightfox", got)
	}
}

func TestEveryThemeColorsQuantityStates(t *testing.T) {
	states := []string{"idle", "pending", "dispatched", "reconciled", "reverted", "shared", "loading", "error"}
	for _, name := range ThemeNames() {
		th := GetTheme(name)
		for _, s := range states {
			if th.StatusColors[s] == "" {
				t.Fatalf("%s: no color for %q", name, s)
			}
		}
	}
}

func TestStatusColor(t *testing.T) {
	th := GetTheme("Nightfox")
	if got := th.StatusColor("  Reverted "); got != th.StatusColors["reverted"] {
		t.Fatalf("StatusColor = %q, want %q", got, th.StatusColors["reverted"])
	}
	if got := th.StatusColor("unknown"); got != th.Text {
		t.Fatalf("StatusColor unknown = %q, want %q", got, th.Text)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("wireless headphones", 8); got != "wireles…" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("mug", 8); got != "mug" {
		t.Fatalf("truncate short = %q", got)
	}
	if got := truncate("mug", 0); got != "" {
		t.Fatalf("truncate zero = %q", got)
	}
}
