package ui

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/storefront/internal/api"
	"github.com/five82/storefront/internal/cache"
	"github.com/five82/storefront/internal/cart"
	"github.com/five82/storefront/internal/metrics"
	"github.com/five82/storefront/internal/prefs"
	"github.com/five82/storefront/internal/reconcile"
	"github.com/five82/storefront/internal/throttle"
	"github.com/five82/storefront/internal/wishlist"
)

// View represents the current active view.
type View int

const (
	ViewCart View = iota
	ViewWishlists
	ViewLogs
)

var viewOrder = []View{ViewCart, ViewWishlists, ViewLogs}

func (v View) String() string {
	switch v {
	case ViewWishlists:
		return "Wishlists"
	case ViewLogs:
		return "Logs"
	default:
		return "Cart"
	}
}

// prefName is the start_view preference value for v.
func (v View) prefName() string {
	if v == ViewWishlists {
		return "wishlist"
	}
	return "cart"
}

func viewFromPref(name string) View {
	if strings.EqualFold(strings.TrimSpace(name), "wishlist") {
		return ViewWishlists
	}
	return ViewCart
}

// CartStore is the cart state the UI reads and mutates.
type CartStore interface {
	throttle.Mutator
	Snapshot() cart.Snapshot
	AddToCart(ctx context.Context, productID string, quantity int) (*api.Cart, error)
	ClearSidebarTrigger()
}

// WishlistStore is the wishlist state the UI reads and mutates.
type WishlistStore interface {
	Snapshot() wishlist.Snapshot
	FetchWishlists(ctx context.Context) ([]api.Wishlist, error)
	SetActiveWishlistID(ctx context.Context, id string) error
	RemoveFromWishlist(ctx context.Context, wishlistID, productID string) (*api.Wishlist, error)
	ShareWishlist(ctx context.Context, id string) (*api.ShareResult, error)
	RevokeShare(ctx context.Context, id string) error
	CreateWishlist(ctx context.Context, name string) (*api.Wishlist, error)
	UpdateWishlist(ctx context.Context, id string, patch api.WishlistPatch) (*api.Wishlist, error)
	DeleteWishlist(ctx context.Context, id string) error
}

// ResourceCache serves cached server responses.
type ResourceCache interface {
	Read(key string) cache.Entry
}

// Identity reports who is signed in.
type Identity interface {
	User() (api.User, bool)
	IsAuthenticated() bool
}

// Actions are flows that span more than one store.
type Actions interface {
	Logout(ctx context.Context) error
	MoveWishlistToCart(ctx context.Context, wishlistID string) (*api.MoveToCartResult, error)
}

// CartRefresher is implemented by cart stores that can reload from the
// server; the refresh key uses it when present.
type CartRefresher interface {
	FetchCart(ctx context.Context) (*api.Cart, error)
}

// Options configures the UI.
type Options struct {
	Context   context.Context
	Carts     CartStore
	Wishlists WishlistStore
	Cache     ResourceCache
	Session   Identity
	Actions   Actions
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	LogPath   string
	// ThrottleInterval spaces quantity updates per cart line.
	ThrottleInterval time.Duration
	PollTick         time.Duration
	ThemeName        string
	StartView        string
	PrefsPath        string
}

const (
	defaultPollTick = time.Second
	noticeTTL       = 5 * time.Second
	logTailLines    = 500
)

// Model is the root application state for Bubble Tea.
type Model struct {
	ctx       context.Context
	carts     CartStore
	wishlists WishlistStore
	cache     ResourceCache
	identity  Identity
	actions   Actions
	metrics   *metrics.Metrics
	logger    *slog.Logger
	logPath   string
	prefsPath string
	pollTick  time.Duration
	interval  time.Duration

	// UI state
	theme       Theme
	keys        keyMap
	currentView View
	startView   View
	width       int
	height      int
	ready       bool
	showHelp    bool
	now         func() time.Time

	// Data state
	cartSnap  cart.Snapshot
	listsSnap wishlist.Snapshot
	cartView  reconcile.View[*api.Cart]
	listsView reconcile.View[[]api.Wishlist]
	active    reconcile.View[api.Wishlist]

	// Cart state
	cartRow  int
	controls map[string]*throttle.QuantityControl

	// Wishlist state
	productRow int
	actionGate *throttle.Gate
	// naming is set while the new wishlist name is being typed.
	naming    bool
	nameInput textinput.Model

	// Log state
	logViewport viewport.Model
	logLines    []string
	follow      bool

	notice notice
}

type notice struct {
	text string
	err  bool
	at   time.Time
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pollTick := opts.PollTick
	if pollTick <= 0 {
		pollTick = defaultPollTick
	}
	themeName := opts.ThemeName
	if themeName == "" {
		themeName = themeOrder[0]
	}
	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}
	start := viewFromPref(opts.StartView)

	input := textinput.New()
	input.Placeholder = "New wishlist name"
	input.CharLimit = 64

	return Model{
		ctx:         ctx,
		carts:       opts.Carts,
		wishlists:   opts.Wishlists,
		cache:       opts.Cache,
		identity:    opts.Session,
		actions:     opts.Actions,
		metrics:     opts.Metrics,
		logger:      logger.With(slog.String("component", "ui")),
		logPath:     opts.LogPath,
		prefsPath:   prefsPath,
		pollTick:    pollTick,
		interval:    opts.ThrottleInterval,
		theme:       GetTheme(themeName),
		keys:        DefaultKeyMap(),
		currentView: start,
		startView:   start,
		now:         time.Now,
		controls:    make(map[string]*throttle.QuantityControl),
		actionGate:  throttle.NewGate(opts.ThrottleInterval),
		follow:      true,
		nameInput:   input,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tea.EnterAltScreen,
		tickCmd(m.pollTick),
		m.fetchSnapshot(),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.logViewport = viewport.New(m.width-2, m.contentHeight()-2)
		}
		m.ready = true
		m.resizeLogViewport()
		return m, nil

	case tickMsg:
		return m.handleTick()

	case snapshotMsg:
		m.applySnapshot(msg)
		return m, nil

	case dispatchMsg:
		qc, ok := m.controls[msg.productID]
		if !ok {
			return m, nil
		}
		return m, dispatchCmd(m.ctx, qc)

	case dispatchedMsg:
		if msg.err != nil {
			m.setNotice("Update failed: "+api.UserMessage(msg.err), true)
		}
		return m, m.fetchSnapshot()

	case actionMsg:
		if msg.err != nil {
			m.logger.Warn("action failed", slog.String("action", msg.name), slog.String("error", msg.err.Error()))
			m.setNotice(msg.name+" failed: "+api.UserMessage(msg.err), true)
		} else if msg.text != "" {
			m.setNotice(msg.text, false)
		}
		return m, m.fetchSnapshot()

	case logLinesMsg:
		m.handleLogLines(msg)
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")
	b.WriteString(m.renderContent())
	return b.String()
}

func (m Model) renderContent() string {
	switch m.currentView {
	case ViewWishlists:
		return m.renderWishlists()
	case ViewLogs:
		return m.renderLogs()
	default:
		return m.renderCart()
	}
}

// contentHeight is the space left under the two header lines.
func (m Model) contentHeight() int {
	return max(m.height-2, 3)
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	if m.naming {
		return m.handleNameInput(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		if m.prefsPath != "" {
			p := prefs.Prefs{Theme: m.theme.Name, StartView: m.startView.prefName()}
			if err := prefs.Save(m.prefsPath, p); err != nil {
				m.logger.Warn("save prefs", slog.String("error", err.Error()))
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.Tab):
		return m.switchView(m.cycleView(1))

	case key.Matches(msg, m.keys.ShiftTab):
		return m.switchView(m.cycleView(-1))

	case key.Matches(msg, m.keys.ViewCart):
		return m.switchView(ViewCart)

	case key.Matches(msg, m.keys.ViewWishlists):
		return m.switchView(ViewWishlists)

	case key.Matches(msg, m.keys.ViewLogs):
		return m.switchView(ViewLogs)

	case key.Matches(msg, m.keys.Refresh):
		return m, m.refreshCmd()

	case key.Matches(msg, m.keys.Logout):
		if m.identity == nil || !m.identity.IsAuthenticated() || m.actions == nil {
			return m, nil
		}
		m.setNotice("Signing out...", false)
		return m, logoutCmd(m.ctx, m.actions)
	}

	switch m.currentView {
	case ViewCart:
		return m.handleCartKey(msg)
	case ViewWishlists:
		return m.handleWishlistKey(msg)
	case ViewLogs:
		return m.handleLogsKey(msg)
	}
	return m, nil
}

func (m Model) cycleView(step int) View {
	for i, v := range viewOrder {
		if v == m.currentView {
			return viewOrder[(i+step+len(viewOrder))%len(viewOrder)]
		}
	}
	return ViewCart
}

func (m Model) switchView(v View) (tea.Model, tea.Cmd) {
	m.currentView = v
	if v == ViewLogs {
		return m, m.refreshLogs()
	}
	return m, nil
}

// handleTick processes the polling tick.
func (m Model) handleTick() (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{m.fetchSnapshot()}
	if m.currentView == ViewLogs && m.follow {
		if cmd := m.refreshLogs(); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	if !m.notice.at.IsZero() && m.now().Sub(m.notice.at) > noticeTTL {
		m.notice = notice{}
	}
	cmds = append(cmds, tickCmd(m.pollTick))
	return m, tea.Batch(cmds...)
}

// applySnapshot reconciles store state with the cache and adopts the
// result.
func (m *Model) applySnapshot(msg snapshotMsg) {
	m.cartSnap = msg.cart
	m.listsSnap = msg.lists
	m.cartView = reconcile.Cart(msg.cart, msg.cartEntry)
	m.listsView = reconcile.Wishlists(msg.lists, msg.listsEntry)
	m.active = reconcile.View[api.Wishlist]{}
	if id := wishlist.ChooseActive(m.listsView.Value, msg.lists.ActiveID, ""); id != "" {
		entry := msg.activeEntry
		if id != msg.lists.ActiveID {
			entry = cache.Entry{}
		}
		m.active = reconcile.Wishlist(msg.lists, id, entry)
		if m.active.Value.ID == "" {
			// Not in the store and not cached individually yet.
			for _, w := range m.listsView.Value {
				if w.ID == id {
					m.active.Value = w
					break
				}
			}
		}
	}

	m.syncControls()
	m.cartRow = clampRow(m.cartRow, len(m.cartItems()))
	m.productRow = clampRow(m.productRow, len(m.activeProducts()))

	if msg.cart.ShouldOpenSidebar {
		m.currentView = ViewCart
		if m.carts != nil {
			m.carts.ClearSidebarTrigger()
		}
	}
}

func (m *Model) setNotice(text string, isErr bool) {
	m.notice = notice{text: text, err: isErr, at: m.now()}
}

func clampRow(row, n int) int {
	if n == 0 || row < 0 {
		return 0
	}
	if row >= n {
		return n - 1
	}
	return row
}

func moveRow(msg tea.KeyMsg, keys keyMap, row, n int) (int, bool) {
	if n == 0 {
		return 0, false
	}
	switch {
	case key.Matches(msg, keys.Down):
		return min(row+1, n-1), true
	case key.Matches(msg, keys.Up):
		return max(row-1, 0), true
	case key.Matches(msg, keys.Top):
		return 0, true
	case key.Matches(msg, keys.Bottom):
		return n - 1, true
	}
	return row, false
}

// Messages

type tickMsg time.Time

type snapshotMsg struct {
	cart       cart.Snapshot
	cartEntry  cache.Entry
	lists      wishlist.Snapshot
	listsEntry cache.Entry
	// activeEntry is the cache entry of lists.ActiveID, if any.
	activeEntry cache.Entry
}

// dispatchMsg fires when a quantity window for productID elapses.
type dispatchMsg struct{ productID string }

type dispatchedMsg struct {
	productID string
	err       error
}

type actionMsg struct {
	name string
	text string
	err  error
}

type logLinesMsg struct {
	lines []string
	err   error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) fetchSnapshot() tea.Cmd {
	carts, lists, c := m.carts, m.wishlists, m.cache
	return func() tea.Msg {
		var msg snapshotMsg
		if carts != nil {
			msg.cart = carts.Snapshot()
		}
		if lists != nil {
			msg.lists = lists.Snapshot()
		}
		if c != nil {
			msg.cartEntry = c.Read(cache.KeyCart)
			msg.listsEntry = c.Read(cache.KeyWishlists)
			if id := msg.lists.ActiveID; id != "" {
				msg.activeEntry = c.Read(cache.WishlistKey(id))
			}
		}
		return msg
	}
}

func (m Model) refreshCmd() tea.Cmd {
	ctx, carts, lists := m.ctx, m.carts, m.wishlists
	return func() tea.Msg {
		var err error
		if r, ok := carts.(CartRefresher); ok {
			_, err = r.FetchCart(ctx)
		}
		if lists != nil && err == nil {
			_, err = lists.FetchWishlists(ctx)
		}
		return actionMsg{name: "Refresh", text: "Refreshed", err: err}
	}
}

func logoutCmd(ctx context.Context, actions Actions) tea.Cmd {
	return func() tea.Msg {
		err := actions.Logout(ctx)
		return actionMsg{name: "Sign out", text: "Signed out", err: err}
	}
}

// Run starts the Bubble Tea program.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	_, err := p.Run()
	return err
}
