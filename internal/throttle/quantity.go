package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/five82/storefront/internal/api"
	"github.com/five82/storefront/internal/metrics"
)

// UnknownStockLimit caps quantities when stock is not known.
const UnknownStockLimit = 999

// State of a QuantityControl.
type State int

const (
	Idle State = iota
	PendingThrottle
	Dispatched
	Reconciled
	RevertedOnError
)

func (s State) String() string {
	switch s {
	case PendingThrottle:
		return "pending"
	case Dispatched:
		return "dispatched"
	case Reconciled:
		return "reconciled"
	case RevertedOnError:
		return "reverted"
	default:
		return "idle"
	}
}

// Mutator performs the cart calls. *cart.Store satisfies it.
type Mutator interface {
	UpdateCartItem(ctx context.Context, productID string, quantity int) (*api.Cart, error)
	RemoveFromCart(ctx context.Context, productID string) (*api.Cart, error)
}

// Display is the quantity to show: the pending value while an interaction
// is unconfirmed, else the server value.
func Display(server, pending int, pendingSince time.Time) int {
	if pendingSince.IsZero() {
		return server
	}
	return pending
}

// Clamp bounds qty to [0, stock], using UnknownStockLimit when stock is
// not positive.
func Clamp(qty, stock int) int {
	limit := stock
	if limit <= 0 {
		limit = UnknownStockLimit
	}
	switch {
	case qty < 0:
		return 0
	case qty > limit:
		return limit
	default:
		return qty
	}
}

// QuantityControl is the optimistic editor for one cart line.
type QuantityControl struct {
	productID string
	mutator   Mutator
	gate      *Gate
	metrics   *metrics.Metrics

	mu           sync.Mutex
	server       int
	stock        int
	pending      int
	pendingSince time.Time
	state        State
	err          error
}

// NewQuantityControl edits productID, starting from the server quantity.
func NewQuantityControl(productID string, server, stock int, m Mutator, gate *Gate, mtr *metrics.Metrics) *QuantityControl {
	if gate == nil {
		gate = NewGate(DefaultInterval)
	}
	return &QuantityControl{
		productID: productID,
		mutator:   m,
		gate:      gate,
		metrics:   mtr,
		server:    server,
		stock:     stock,
	}
}

// ProductID returns the edited product.
func (q *QuantityControl) ProductID() string { return q.productID }

// Sync adopts a new server value, e.g. after a cart refresh. It is ignored
// while an interaction is unconfirmed.
func (q *QuantityControl) Sync(server, stock int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stock = stock
	if q.state == PendingThrottle || q.state == Dispatched {
		return
	}
	q.server = server
}

// Change records a user interaction. The displayed value updates at once.
// It returns true when this interaction opened a new window; the caller
// must then call Dispatch once the window elapses (see Delay). False means
// the interaction was folded into the call already scheduled.
func (q *QuantityControl) Change(qty int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = Clamp(qty, q.stock)
	q.pendingSince = q.gate.now()
	q.err = nil
	if q.state == PendingThrottle {
		q.metrics.ThrottleDropped()
		return false
	}
	q.state = PendingThrottle
	q.gate.Allow()
	return true
}

// Step changes the displayed value by delta.
func (q *QuantityControl) Step(delta int) bool {
	return q.Change(q.Display() + delta)
}

// Delay is how long the caller waits before Dispatch.
func (q *QuantityControl) Delay() time.Duration {
	return q.gate.Remaining()
}

// Dispatch sends the pending value: a removal when it is below one, else
// an update. On failure the display reverts to the server value.
func (q *QuantityControl) Dispatch(ctx context.Context) (*api.Cart, error) {
	q.mu.Lock()
	if q.state != PendingThrottle {
		q.mu.Unlock()
		return nil, nil
	}
	qty := q.pending
	q.state = Dispatched
	q.mu.Unlock()

	var (
		c   *api.Cart
		err error
	)
	if qty < 1 {
		c, err = q.mutator.RemoveFromCart(ctx, q.productID)
	} else {
		c, err = q.mutator.UpdateCartItem(ctx, q.productID, qty)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err != nil {
		q.err = err
		if q.state == Dispatched {
			q.state = RevertedOnError
			q.pendingSince = time.Time{}
		}
		return nil, fmt.Errorf("set quantity of %s to %d: %w", q.productID, qty, err)
	}
	if item, ok := c.Item(q.productID); ok {
		q.server = item.Quantity
		if s := item.Stock(); s > 0 {
			q.stock = s
		}
	} else {
		q.server = 0
	}
	if q.state == Dispatched {
		q.state = Reconciled
		q.pendingSince = time.Time{}
	}
	return c, nil
}

// Display returns the quantity to show.
func (q *QuantityControl) Display() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Display(q.server, q.pending, q.pendingSince)
}

// State returns the current state.
func (q *QuantityControl) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Err returns the error of the last failed dispatch.
func (q *QuantityControl) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// Server returns the last confirmed quantity.
func (q *QuantityControl) Server() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.server
}
