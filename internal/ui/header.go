package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/storefront/internal/api"
	"github.com/five82/storefront/internal/cart"
	"github.com/five82/storefront/internal/wishlist"
)

// renderHeader renders the status bar: brand, identity, cart and wishlist
// badges.
func (m Model) renderHeader() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)

	parts := []string{bg.Render("storefront", styles.Brand)}

	if u, ok := m.currentUser(); ok {
		name := u.Name
		if name == "" {
			name = u.Email
		}
		parts = append(parts, bg.Render("● "+truncate(name, 32), styles.SuccessText))
	} else {
		parts = append(parts, bg.Render("● guest", styles.MutedText))
	}

	c := m.cartView.Value
	cartStyle := styles.MutedText
	if cart.ItemCount(c) > 0 {
		cartStyle = styles.AccentText
	}
	parts = append(parts,
		bg.Pair("Cart:", fmt.Sprintf("%d", cart.ItemCount(c)), styles.MutedText, cartStyle),
		bg.Pair("Total:", formatMoney(cart.Total(c)), styles.MutedText, styles.Text),
	)

	saved := wishlist.UniqueProductCount(m.listsView.Value)
	savedStyle := styles.MutedText
	if saved > 0 {
		savedStyle = styles.InfoText
	}
	parts = append(parts, bg.Pair("Saved:", fmt.Sprintf("%d", saved), styles.MutedText, savedStyle))

	switch {
	case m.cartView.Err != nil && m.cartView.Value == nil:
		parts = append(parts, bg.Render("cart unavailable", styles.DangerText))
	case m.cartView.Loading || m.listsView.Loading:
		parts = append(parts, bg.Render("syncing…", styles.WarningText))
	}

	return styles.Header.Width(m.width).Render(bg.Join(parts, "  "))
}

// renderCommandBar renders the view tabs and the current notice.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles().WithBackground(m.theme.Background)
	bg := NewBgStyle(m.theme.Background)

	tabs := make([]string, 0, len(viewOrder))
	for _, v := range viewOrder {
		label := fmt.Sprintf("<%s> %s", viewKey(v), v)
		style := styles.MutedText
		if v == m.currentView {
			style = styles.AccentText.Bold(true)
		}
		tabs = append(tabs, bg.Render(label, style))
	}
	line := bg.Join(tabs, "  ") + bg.Spaces(2) + bg.Render("<h> Help", styles.FaintText)

	if m.notice.text != "" {
		style := styles.SuccessText
		if m.notice.err {
			style = styles.DangerText
		}
		line += bg.Spaces(3) + bg.Render(truncate(m.notice.text, max(m.width/2, 20)), style)
	}

	return lipgloss.NewStyle().
		Background(lipgloss.Color(m.theme.Background)).
		Width(m.width).
		Render(line)
}

func viewKey(v View) string {
	switch v {
	case ViewWishlists:
		return "w"
	case ViewLogs:
		return "l"
	default:
		return "c"
	}
}

func (m Model) currentUser() (api.User, bool) {
	if m.identity == nil || !m.identity.IsAuthenticated() {
		return api.User{}, false
	}
	return m.identity.User()
}
