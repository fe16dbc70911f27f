package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/storefront/internal/api"
)

func (m Model) activeProducts() []api.ProductRef {
	return m.active.Value.ProductIDs
}

func (m Model) selectedProduct() (api.ProductRef, bool) {
	refs := m.activeProducts()
	if m.productRow < 0 || m.productRow >= len(refs) {
		return api.ProductRef{}, false
	}
	return refs[m.productRow], true
}

// handleWishlistKey processes keyboard input for the wishlist view.
func (m Model) handleWishlistKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if row, ok := moveRow(msg, m.keys, m.productRow, len(m.activeProducts())); ok {
		m.productRow = row
		return m, nil
	}
	if m.wishlists == nil {
		return m, nil
	}

	activeID := m.active.Value.ID
	switch {
	case key.Matches(msg, m.keys.PrevList):
		return m.switchList(-1)
	case key.Matches(msg, m.keys.NextList):
		return m.switchList(1)

	case key.Matches(msg, m.keys.AddToCart):
		ref, ok := m.selectedProduct()
		if !ok || m.carts == nil {
			return m, nil
		}
		if !m.actionGate.Allow() {
			m.metrics.ThrottleDropped()
			return m, nil
		}
		return m, addToCartCmd(m.ctx, m.carts, ref.ID)

	case key.Matches(msg, m.keys.MoveToCart):
		if activeID == "" || m.actions == nil || len(m.activeProducts()) == 0 {
			return m, nil
		}
		if !m.actionGate.Allow() {
			m.metrics.ThrottleDropped()
			return m, nil
		}
		return m, moveToCartCmd(m.ctx, m.actions, activeID)

	case key.Matches(msg, m.keys.Unsave):
		ref, ok := m.selectedProduct()
		if !ok {
			return m, nil
		}
		return m, unsaveCmd(m.ctx, m.wishlists, activeID, ref.ID)

	case key.Matches(msg, m.keys.Share):
		if activeID == "" {
			return m, nil
		}
		return m, shareCmd(m.ctx, m.wishlists, m.active.Value)

	case key.Matches(msg, m.keys.NewList):
		m.naming = true
		m.nameInput.SetValue("")
		return m, m.nameInput.Focus()

	case key.Matches(msg, m.keys.SetDefault):
		if activeID == "" || m.active.Value.IsDefault {
			return m, nil
		}
		ctx, store := m.ctx, m.wishlists
		return m, func() tea.Msg {
			isDefault := true
			_, err := store.UpdateWishlist(ctx, activeID, api.WishlistPatch{IsDefault: &isDefault})
			return actionMsg{name: "Set default", text: "Default wishlist updated", err: err}
		}

	case key.Matches(msg, m.keys.DeleteList):
		if activeID == "" {
			return m, nil
		}
		m.productRow = 0
		ctx, store := m.ctx, m.wishlists
		return m, func() tea.Msg {
			err := store.DeleteWishlist(ctx, activeID)
			return actionMsg{name: "Delete wishlist", text: "Wishlist deleted", err: err}
		}
	}
	return m, nil
}

// handleNameInput feeds keys to the wishlist name prompt.
func (m Model) handleNameInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.naming = false
		m.nameInput.Blur()
		return m, nil
	case key.Matches(msg, m.keys.Confirm):
		name := strings.TrimSpace(m.nameInput.Value())
		m.naming = false
		m.nameInput.Blur()
		if name == "" || m.wishlists == nil {
			return m, nil
		}
		ctx, store := m.ctx, m.wishlists
		return m, func() tea.Msg {
			_, err := store.CreateWishlist(ctx, name)
			return actionMsg{name: "Create wishlist", text: "Created " + name, err: err}
		}
	}
	var cmd tea.Cmd
	m.nameInput, cmd = m.nameInput.Update(msg)
	return m, cmd
}

// switchList makes the neighbouring wishlist active.
func (m Model) switchList(step int) (tea.Model, tea.Cmd) {
	lists := m.listsView.Value
	if len(lists) < 2 {
		return m, nil
	}
	idx := 0
	for i, w := range lists {
		if w.ID == m.active.Value.ID {
			idx = i
			break
		}
	}
	next := lists[(idx+step+len(lists))%len(lists)]
	m.active.Value = next
	m.productRow = 0
	ctx, store := m.ctx, m.wishlists
	return m, func() tea.Msg {
		err := store.SetActiveWishlistID(ctx, next.ID)
		return actionMsg{name: "Switch wishlist", err: err}
	}
}

func addToCartCmd(ctx context.Context, carts CartStore, productID string) tea.Cmd {
	return func() tea.Msg {
		_, err := carts.AddToCart(ctx, productID, 1)
		return actionMsg{name: "Add to cart", text: "Added to cart", err: err}
	}
}

func moveToCartCmd(ctx context.Context, actions Actions, wishlistID string) tea.Cmd {
	return func() tea.Msg {
		res, err := actions.MoveWishlistToCart(ctx, wishlistID)
		if err != nil {
			return actionMsg{name: "Move to cart", err: err}
		}
		text := fmt.Sprintf("Moved %d item(s) to cart", res.ItemsAdded)
		if res.ItemsSkipped > 0 {
			text += fmt.Sprintf(", %d skipped", res.ItemsSkipped)
		}
		return actionMsg{name: "Move to cart", text: text}
	}
}

func unsaveCmd(ctx context.Context, store WishlistStore, wishlistID, productID string) tea.Cmd {
	return func() tea.Msg {
		_, err := store.RemoveFromWishlist(ctx, wishlistID, productID)
		return actionMsg{name: "Remove", text: "Removed from wishlist", err: err}
	}
}

// shareCmd shares w, or revokes the share when it is already shared.
func shareCmd(ctx context.Context, store WishlistStore, w api.Wishlist) tea.Cmd {
	return func() tea.Msg {
		if w.IsShared {
			err := store.RevokeShare(ctx, w.ID)
			return actionMsg{name: "Revoke share", text: "Sharing stopped", err: err}
		}
		res, err := store.ShareWishlist(ctx, w.ID)
		if err != nil {
			return actionMsg{name: "Share", err: err}
		}
		text := "Shared: " + res.ShareToken
		if res.ShareURL != "" {
			text = "Shared: " + res.ShareURL
		}
		return actionMsg{name: "Share", text: text}
	}
}

// renderWishlists renders the wishlist tabs and the active list.
func (m Model) renderWishlists() string {
	height := m.contentHeight()
	title := "Wishlists"
	if name := m.active.Value.Name; name != "" {
		title = "Wishlist: " + name
	}
	return m.renderTitledBox(title, m.wishlistBody(m.width-2, height-2), m.width, height, m.currentView == ViewWishlists)
}

func (m Model) wishlistBody(width, height int) string {
	styles := m.theme.Styles().WithBackground(m.theme.FocusBg)
	lists := m.listsView.Value

	if len(lists) == 0 && !m.naming {
		switch {
		case m.listsView.Loading:
			return styles.MutedText.Render("Loading wishlists…")
		case m.listsView.Err != nil:
			return styles.DangerText.Render(api.UserMessage(m.listsView.Err))
		default:
			return styles.MutedText.Render("No wishlists yet.")
		}
	}

	bg := NewBgStyle(m.theme.FocusBg)
	var prompt []string
	if m.naming {
		prompt = []string{m.nameInput.View(), ""}
	}
	tabs := make([]string, 0, len(lists))
	for _, w := range lists {
		label := fmt.Sprintf("%s (%d)", w.Name, len(w.ProductIDs))
		if w.IsDefault {
			label = "★ " + label
		}
		style := styles.MutedText
		if w.ID == m.active.Value.ID {
			style = styles.AccentText.Bold(true)
		}
		tabs = append(tabs, bg.Render(label, style))
	}
	lines := append(prompt, bg.Join(tabs, " │ "))

	if m.active.Value.IsShared {
		badge := m.theme.Styles().StatusStyle("shared").Render("shared")
		lines = append(lines, badge+bg.Space()+bg.Render(m.active.Value.ShareToken, styles.FaintText))
	}
	lines = append(lines, "")

	refs := m.activeProducts()
	if len(refs) == 0 {
		lines = append(lines, styles.MutedText.Render("This wishlist is empty."))
		return strings.Join(lines, "\n")
	}

	bodyRows := max(height-len(lines), 1)
	start := 0
	if m.productRow >= bodyRows {
		start = m.productRow - bodyRows + 1
	}
	nameWidth := max(width-28, 12)
	for i := start; i < len(refs) && i < start+bodyRows; i++ {
		lines = append(lines, m.productLine(refs[i], i == m.productRow, nameWidth, width))
	}
	return strings.Join(lines, "\n")
}

func (m Model) productLine(ref api.ProductRef, selected bool, nameWidth, width int) string {
	name, price, stock := ref.ID, "", ""
	if p := ref.Product; p != nil {
		if p.Name != "" {
			name = p.Name
		}
		price = formatMoney(p.Price)
		if p.Stock <= 0 {
			stock = "out of stock"
		}
	}
	marker := " "
	if _, inCart := m.cartView.Value.Item(ref.ID); inCart {
		marker = "•"
	}
	text := fmt.Sprintf("%s %-*s %9s  %s", marker, nameWidth, truncate(name, nameWidth), price, stock)

	styles := m.theme.Styles()
	if selected {
		return styles.Selected.Width(width).Render(text)
	}
	if stock != "" {
		return styles.FaintText.Render(text)
	}
	return styles.Text.Render(text)
}
