package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the application.
type keyMap struct {
	// Global
	Quit       key.Binding
	Help       key.Binding
	CycleTheme key.Binding
	Tab        key.Binding
	ShiftTab   key.Binding
	Refresh    key.Binding
	Logout     key.Binding

	// View switching
	ViewCart      key.Binding
	ViewWishlists key.Binding
	ViewLogs      key.Binding

	// Navigation
	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding

	// Cart actions
	Increment key.Binding
	Decrement key.Binding
	Remove    key.Binding

	// Wishlist actions
	PrevList   key.Binding
	NextList   key.Binding
	AddToCart  key.Binding
	MoveToCart key.Binding
	Unsave     key.Binding
	Share      key.Binding
	NewList    key.Binding
	SetDefault key.Binding
	DeleteList key.Binding
	Confirm    key.Binding
	Cancel     key.Binding

	// Logs actions
	ToggleFollow key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "e"),
			key.WithHelp("e", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("h", "?"),
			key.WithHelp("h/?", "Toggle help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "Cycle theme"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "Cycle views"),
		),
		ShiftTab: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "Cycle views (reverse)"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Refresh from server"),
		),
		Logout: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "Sign out"),
		),

		ViewCart: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "Cart"),
		),
		ViewWishlists: key.NewBinding(
			key.WithKeys("w"),
			key.WithHelp("w", "Wishlists"),
		),
		ViewLogs: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "Logs"),
		),

		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "Move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "Move down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "Go to top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "Go to bottom"),
		),

		Increment: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "Increase quantity"),
		),
		Decrement: key.NewBinding(
			key.WithKeys("-", "_"),
			key.WithHelp("-", "Decrease quantity"),
		),
		Remove: key.NewBinding(
			key.WithKeys("d", "delete"),
			key.WithHelp("d", "Remove line"),
		),

		PrevList: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "Previous wishlist"),
		),
		NextList: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "Next wishlist"),
		),
		AddToCart: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "Add product to cart"),
		),
		MoveToCart: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "Move wishlist to cart"),
		),
		Unsave: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "Remove from wishlist"),
		),
		Share: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "Share / revoke"),
		),
		NewList: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "New wishlist"),
		),
		SetDefault: key.NewBinding(
			key.WithKeys("*"),
			key.WithHelp("*", "Make default"),
		),
		DeleteList: key.NewBinding(
			key.WithKeys("D"),
			key.WithHelp("D", "Delete wishlist"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Confirm"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Cancel"),
		),

		ToggleFollow: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("Space", "Toggle follow mode"),
		),
	}
}

// ShortHelp returns key bindings for the short help view.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Quit}
}

// FullHelp returns key bindings for the full help view, one group per
// help section.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.ViewCart, k.ViewWishlists, k.ViewLogs, k.Up, k.Down, k.Top, k.Bottom},
		{k.Increment, k.Decrement, k.Remove},
		{k.PrevList, k.NextList, k.AddToCart, k.MoveToCart, k.Unsave, k.Share, k.NewList, k.SetDefault, k.DeleteList},
		{k.ToggleFollow},
		{k.Refresh, k.Logout, k.CycleTheme, k.Help, k.Quit},
	}
}

var helpTitles = []string{"Navigation", "Cart", "Wishlists", "Logs", "General"}
