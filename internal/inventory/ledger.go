package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Reservation is a provisional hold on stock. It can be made permanent with
// Commit or undone with Release; after Commit only a restock (cancellation of
// a confirmed order) returns the quantity to the shelf.
type Reservation struct {
	ID        string
	OrderID   string
	ProductID string
	Qty       int
	CreatedAt time.Time
}

const (
	resReserved  = "RESERVED"
	resReleased  = "RELEASED"
	resCommitted = "COMMITTED"
	resRestocked = "RESTOCKED"
)

// Ledger holds per-product stock counts. It is the only shared resource
// mutated by more than one concurrent actor per key, so both implementations
// make reserve/release atomic per product.
type Ledger interface {
	Reserve(ctx context.Context, orderID, productID string, qty int) (Reservation, error)
	Release(ctx context.Context, res Reservation) error
	Commit(ctx context.Context, res Reservation) error

	// Order-scoped variants used by the state machine's side effects.
	CommitOrder(ctx context.Context, orderID string) error
	ReleaseOrder(ctx context.Context, orderID string) error
	RestockOrder(ctx context.Context, orderID string) error
}

// Effect is an order-scoped stock side effect tied to a lifecycle transition.
// Stores apply it atomically with the transition they record, so a failed
// write never leaves reservations in a state the order does not reflect.
type Effect int

const (
	EffectNone Effect = iota
	// EffectCommit finalizes the order's reservations; the decrement is permanent.
	EffectCommit
	// EffectRelease returns reserved stock to the shelf.
	EffectRelease
	// EffectRestock returns committed stock to the shelf.
	EffectRestock
)

// ApplyEffect runs an effect through the ledger interface. Postgres stores
// apply effects inside their own transaction instead, via ApplyEffectTx.
func ApplyEffect(ctx context.Context, l Ledger, effect Effect, orderID string) error {
	switch effect {
	case EffectCommit:
		return l.CommitOrder(ctx, orderID)
	case EffectRelease:
		return l.ReleaseOrder(ctx, orderID)
	case EffectRestock:
		return l.RestockOrder(ctx, orderID)
	}
	return nil
}

var (
	ErrInvalidArgument = errors.New("quantity must be positive")
	ErrConflict        = errors.New("reservation conflict, retry")
	ErrNotFound        = errors.New("product not found")
)

type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func IsInsufficientStock(err error) bool {
	var e *InsufficientStockError
	return errors.As(err, &e)
}
