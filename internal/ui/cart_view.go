package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/storefront/internal/api"
	"github.com/five82/storefront/internal/cart"
	"github.com/five82/storefront/internal/throttle"
)

func (m Model) cartItems() []api.CartItem {
	if m.cartView.Value == nil {
		return nil
	}
	return m.cartView.Value.Items
}

func (m Model) selectedCartItem() (api.CartItem, bool) {
	items := m.cartItems()
	if m.cartRow < 0 || m.cartRow >= len(items) {
		return api.CartItem{}, false
	}
	return items[m.cartRow], true
}

// control returns the quantity editor for item, creating it on first use.
func (m Model) control(item api.CartItem) *throttle.QuantityControl {
	id := item.ProductID.ID
	if qc, ok := m.controls[id]; ok {
		return qc
	}
	qc := throttle.NewQuantityControl(id, item.Quantity, item.Stock(), m.carts, throttle.NewGate(m.interval), m.metrics)
	m.controls[id] = qc
	return qc
}

// syncControls feeds confirmed quantities into the editors and drops
// editors whose line is gone and that have nothing in flight.
func (m Model) syncControls() {
	present := make(map[string]api.CartItem, len(m.cartItems()))
	for _, item := range m.cartItems() {
		present[item.ProductID.ID] = item
	}
	for id, qc := range m.controls {
		item, ok := present[id]
		if ok {
			qc.Sync(item.Quantity, item.Stock())
			continue
		}
		switch qc.State() {
		case throttle.PendingThrottle, throttle.Dispatched:
		default:
			delete(m.controls, id)
		}
	}
}

// handleCartKey processes keyboard input for the cart view.
func (m Model) handleCartKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if row, ok := moveRow(msg, m.keys, m.cartRow, len(m.cartItems())); ok {
		m.cartRow = row
		return m, nil
	}

	item, ok := m.selectedCartItem()
	if !ok || m.carts == nil {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Increment):
		return m, m.stepQuantity(item, 1)
	case key.Matches(msg, m.keys.Decrement):
		return m, m.stepQuantity(item, -1)
	case key.Matches(msg, m.keys.Remove):
		delete(m.controls, item.ProductID.ID)
		return m, removeLineCmd(m.ctx, m.carts, item.ProductID.ID)
	}
	return m, nil
}

// stepQuantity applies delta to the displayed quantity. The first change
// in a window schedules the dispatch; later changes ride along with it.
func (m Model) stepQuantity(item api.CartItem, delta int) tea.Cmd {
	qc := m.control(item)
	if !qc.Step(delta) {
		return nil
	}
	return dispatchAfter(qc)
}

func dispatchAfter(qc *throttle.QuantityControl) tea.Cmd {
	id := qc.ProductID()
	d := qc.Delay()
	if d <= 0 {
		return func() tea.Msg { return dispatchMsg{productID: id} }
	}
	return tea.Tick(d, func(time.Time) tea.Msg { return dispatchMsg{productID: id} })
}

func dispatchCmd(ctx context.Context, qc *throttle.QuantityControl) tea.Cmd {
	return func() tea.Msg {
		_, err := qc.Dispatch(ctx)
		return dispatchedMsg{productID: qc.ProductID(), err: err}
	}
}

func removeLineCmd(ctx context.Context, carts CartStore, productID string) tea.Cmd {
	return func() tea.Msg {
		_, err := carts.RemoveFromCart(ctx, productID)
		return actionMsg{name: "Remove", text: "Removed from cart", err: err}
	}
}

// displayQuantity is the optimistic quantity for item.
func (m Model) displayQuantity(item api.CartItem) (int, throttle.State) {
	if qc, ok := m.controls[item.ProductID.ID]; ok {
		return qc.Display(), qc.State()
	}
	return item.Quantity, throttle.Idle
}

// renderCart renders the cart lines and totals.
func (m Model) renderCart() string {
	height := m.contentHeight()
	title := fmt.Sprintf("Cart (%d)", cart.UniqueItemCount(m.cartView.Value))
	return m.renderTitledBox(title, m.cartBody(m.width-2, height-2), m.width, height, m.currentView == ViewCart)
}

func (m Model) cartBody(width, height int) string {
	styles := m.theme.Styles().WithBackground(m.theme.FocusBg)
	items := m.cartItems()

	if len(items) == 0 {
		switch {
		case m.cartView.Loading && m.cartView.Value == nil:
			return styles.MutedText.Render("Loading cart…")
		case m.cartView.Err != nil && m.cartView.Value == nil:
			return styles.DangerText.Render(api.UserMessage(m.cartView.Err))
		default:
			return styles.MutedText.Render("Your cart is empty.")
		}
	}

	nameWidth := max(width-40, 12)
	header := fmt.Sprintf("  %-*s %8s %5s %10s  %s", nameWidth, "PRODUCT", "PRICE", "QTY", "TOTAL", "STATE")
	lines := []string{styles.FaintText.Render(truncate(header, width))}

	bodyRows := max(height-3, 1)
	start := 0
	if m.cartRow >= bodyRows {
		start = m.cartRow - bodyRows + 1
	}
	for i := start; i < len(items) && i < start+bodyRows; i++ {
		lines = append(lines, m.cartLine(items[i], i == m.cartRow, nameWidth, width))
	}

	lines = append(lines, "",
		styles.Text.Render(fmt.Sprintf("Items: %d   Total: %s", cart.ItemCount(m.cartView.Value), formatMoney(cart.Total(m.cartView.Value)))))
	if m.cartView.Err != nil {
		lines = append(lines, styles.WarningText.Render(truncate("Last sync failed: "+api.UserMessage(m.cartView.Err), width)))
	}
	return strings.Join(lines, "\n")
}

func (m Model) cartLine(item api.CartItem, selected bool, nameWidth, width int) string {
	qty, state := m.displayQuantity(item)
	name := item.ProductID.ID
	if p := item.ProductID.Product; p != nil && p.Name != "" {
		name = p.Name
	}
	unit := item.EffectiveUnitPrice()
	text := fmt.Sprintf("  %-*s %8s %5d %10s  ",
		nameWidth, truncate(name, nameWidth), formatMoney(unit), qty, formatMoney(unit*float64(qty)))

	styles := m.theme.Styles()
	if selected {
		return styles.Selected.Width(width).Render(text + state.String())
	}
	badge := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.StatusColor(state.String())))
	return styles.Text.Render(text) + badge.Render(state.String())
}
