package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brianphil/ecommerce-app/internal/cart"
	"github.com/brianphil/ecommerce-app/internal/inventory"
	"github.com/brianphil/ecommerce-app/internal/metrics"
	"github.com/brianphil/ecommerce-app/internal/orders"
)

var (
	ErrInvalidArgument = errors.New("invalid checkout request")
	// ErrTimeout means the checkout gave up before completing; every
	// reservation it had taken was released, so the caller can simply retry.
	ErrTimeout = errors.New("checkout timed out")
)

// Orchestrator turns a cart snapshot into a durable PENDING order. Either the
// whole checkout succeeds or no stock is held afterwards; partial orders are
// never visible.
type Orchestrator struct {
	Ledger  inventory.Ledger
	Machine *orders.Machine
	Timeout time.Duration
}

func (oc *Orchestrator) Checkout(ctx context.Context, snap cart.Snapshot) (*orders.Order, error) {
	if snap.CustomerID == "" {
		return nil, fail("invalid", fmt.Errorf("%w: missing customer id", ErrInvalidArgument))
	}
	if len(snap.Items) == 0 {
		return nil, fail("empty_cart", cart.ErrEmptyCart)
	}
	if oc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, oc.Timeout)
		defer cancel()
	}

	orderID := uuid.NewString()
	var held []inventory.Reservation
	// Compensating rollback for a partially reserved cart. Runs on its own
	// context: the request context may already be dead.
	release := func() {
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, res := range held {
			_ = oc.Ledger.Release(rctx, res)
		}
	}

	for _, it := range snap.Items {
		res, err := oc.Ledger.Reserve(ctx, orderID, it.ProductID, it.Qty)
		if err != nil {
			release()
			if ctx.Err() != nil {
				return nil, fail("timeout", fmt.Errorf("%w: %v", ErrTimeout, ctx.Err()))
			}
			if inventory.IsInsufficientStock(err) {
				return nil, fail("insufficient_stock", err)
			}
			return nil, fail("error", err)
		}
		held = append(held, res)
	}

	now := time.Now().UTC()
	o := &orders.Order{
		ID:         orderID,
		Number:     orders.NewOrderNumber(),
		CustomerID: snap.CustomerID,
		Contact:    snap.Contact,
		Status:     orders.StatusPending,
		Items:      append([]orders.LineItem(nil), snap.Items...),
		TotalCents: orders.SumCents(snap.Items),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := oc.Machine.Create(ctx, o); err != nil {
		release()
		if ctx.Err() != nil {
			return nil, fail("timeout", fmt.Errorf("%w: %v", ErrTimeout, ctx.Err()))
		}
		return nil, fail("error", err)
	}

	metrics.Checkouts.WithLabelValues("ok").Inc()
	return o, nil
}

func fail(result string, err error) error {
	metrics.Checkouts.WithLabelValues(result).Inc()
	return err
}
