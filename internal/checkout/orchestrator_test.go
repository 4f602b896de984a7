package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianphil/ecommerce-app/internal/cart"
	"github.com/brianphil/ecommerce-app/internal/inventory"
	"github.com/brianphil/ecommerce-app/internal/notify"
	"github.com/brianphil/ecommerce-app/internal/orders"
)

type memStore struct {
	mu     sync.Mutex
	orders map[string]*orders.Order
}

func newMemStore() *memStore { return &memStore{orders: map[string]*orders.Order{}} }

func (s *memStore) Create(ctx context.Context, o *orders.Order, jobs []notify.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *memStore) Get(ctx context.Context, orderID string) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, orders.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *memStore) ListByCustomer(ctx context.Context, customerID string) ([]orders.Order, error) {
	return nil, nil
}

func (s *memStore) RecordTransition(ctx context.Context, o *orders.Order, tr orders.Transition, effect inventory.Effect, jobs []notify.Job) error {
	return nil
}

type noopEnqueuer struct{}

func (noopEnqueuer) Enqueue(ctx context.Context, jobs []notify.Job) {}

func newOrchestrator(ledger inventory.Ledger, store *memStore, timeout time.Duration) *Orchestrator {
	return &Orchestrator{
		Ledger:  ledger,
		Machine: orders.NewMachine(store, noopEnqueuer{}, nil),
		Timeout: timeout,
	}
}

func snapshot(items ...orders.LineItem) cart.Snapshot {
	return cart.Snapshot{
		CustomerID: "cust-1",
		Contact:    orders.Contact{Phone: "+254700000001", Email: "jane@example.com"},
		Items:      items,
		CapturedAt: time.Now().UTC(),
	}
}

func TestCheckoutValidation(t *testing.T) {
	ctx := context.Background()
	oc := newOrchestrator(inventory.NewMem(), newMemStore(), 0)

	snap := snapshot(orders.LineItem{ProductID: "p1", Qty: 1, PriceCents: 100})
	snap.CustomerID = ""
	_, err := oc.Checkout(ctx, snap)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = oc.Checkout(ctx, snapshot())
	require.ErrorIs(t, err, cart.ErrEmptyCart)
}

func TestCheckoutSuccess(t *testing.T) {
	ctx := context.Background()
	ledger := inventory.NewMem()
	ledger.SetStock("p1", 10)
	ledger.SetStock("p2", 10)
	store := newMemStore()
	oc := newOrchestrator(ledger, store, 0)

	o, err := oc.Checkout(ctx, snapshot(
		orders.LineItem{ProductID: "p1", Name: "Widget", Qty: 2, PriceCents: 1250},
		orders.LineItem{ProductID: "p2", Name: "Gadget", Qty: 1, PriceCents: 499},
	))
	require.NoError(t, err)
	require.NotNil(t, o)

	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, 2999, o.TotalCents)
	assert.NotEmpty(t, o.ID)
	assert.Regexp(t, `^ORD-\d+-[0-9A-F]{8}$`, o.Number)

	assert.Equal(t, 8, ledger.Stock("p1"))
	assert.Equal(t, 9, ledger.Stock("p2"))

	stored, err := store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, stored.Status)
}

func TestCheckoutInsufficientStock(t *testing.T) {
	ctx := context.Background()
	ledger := inventory.NewMem()
	ledger.SetStock("p1", 2)
	oc := newOrchestrator(ledger, newMemStore(), 0)

	_, err := oc.Checkout(ctx, snapshot(orders.LineItem{ProductID: "p1", Qty: 3, PriceCents: 100}))
	require.True(t, inventory.IsInsufficientStock(err))
	assert.Equal(t, 2, ledger.Stock("p1"))
}

func TestCheckoutRollsBackPartialReservations(t *testing.T) {
	ctx := context.Background()
	ledger := inventory.NewMem()
	ledger.SetStock("p1", 10)
	ledger.SetStock("p2", 1)
	oc := newOrchestrator(ledger, newMemStore(), 0)

	_, err := oc.Checkout(ctx, snapshot(
		orders.LineItem{ProductID: "p1", Qty: 4, PriceCents: 100},
		orders.LineItem{ProductID: "p2", Qty: 2, PriceCents: 100},
	))
	require.True(t, inventory.IsInsufficientStock(err))

	// The successful p1 reservation was released.
	assert.Equal(t, 10, ledger.Stock("p1"))
	assert.Equal(t, 1, ledger.Stock("p2"))
}

func TestCheckoutConcurrentContention(t *testing.T) {
	ctx := context.Background()
	ledger := inventory.NewMem()
	ledger.SetStock("p1", 5)
	oc := newOrchestrator(ledger, newMemStore(), 0)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = oc.Checkout(ctx, snapshot(orders.LineItem{ProductID: "p1", Qty: 3, PriceCents: 100}))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range results {
		if err == nil {
			ok++
		} else {
			require.True(t, inventory.IsInsufficientStock(err), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok, "exactly one checkout wins the last units")
	assert.Equal(t, 2, ledger.Stock("p1"))
}

// slowLedger delays Reserve until the context dies.
type slowLedger struct {
	inventory.Ledger
}

func (s slowLedger) Reserve(ctx context.Context, orderID, productID string, qty int) (inventory.Reservation, error) {
	select {
	case <-ctx.Done():
		return inventory.Reservation{}, ctx.Err()
	case <-time.After(time.Second):
		return s.Ledger.Reserve(ctx, orderID, productID, qty)
	}
}

func TestCheckoutTimeout(t *testing.T) {
	ctx := context.Background()
	mem := inventory.NewMem()
	mem.SetStock("p1", 10)
	oc := newOrchestrator(slowLedger{mem}, newMemStore(), 20*time.Millisecond)

	_, err := oc.Checkout(ctx, snapshot(orders.LineItem{ProductID: "p1", Qty: 1, PriceCents: 100}))
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 10, mem.Stock("p1"))
}
