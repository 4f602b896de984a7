package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/brianphil/ecommerce-app/internal/orders"
)

var ErrEmptyCart = errors.New("cart is empty")

// Snapshot is the frozen cart: line items with prices fixed at capture time.
// It is immutable once built and owned by the order created from it.
type Snapshot struct {
	CustomerID string
	Contact    orders.Contact
	Items      []orders.LineItem
	CapturedAt time.Time
}

// LineSource is the mutable cart being frozen; external storage, read once.
type LineSource interface {
	Lines(ctx context.Context, customerID string) ([]Line, error)
}

// Catalog resolves products so the snapshot captures current prices.
type Catalog interface {
	ProductsByID(ctx context.Context, ids []string) (map[string]orders.Product, error)
}

type Builder struct {
	Lines   LineSource
	Catalog Catalog
}

// Snapshot freezes the customer's cart. Line order is stable (sorted by
// product id) so the resulting order items are deterministic.
func (b *Builder) Snapshot(ctx context.Context, customerID string, contact orders.Contact) (Snapshot, error) {
	lines, err := b.Lines.Lines(ctx, customerID)
	if err != nil {
		return Snapshot{}, err
	}
	if len(lines) == 0 {
		return Snapshot{}, ErrEmptyCart
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	ids := make([]string, 0, len(lines))
	for _, ln := range lines {
		ids = append(ids, ln.ProductID)
	}
	products, err := b.Catalog.ProductsByID(ctx, ids)
	if err != nil {
		return Snapshot{}, err
	}

	items := make([]orders.LineItem, 0, len(lines))
	for _, ln := range lines {
		p, ok := products[ln.ProductID]
		if !ok {
			return Snapshot{}, fmt.Errorf("product not found: %s", ln.ProductID)
		}
		if ln.Qty <= 0 {
			return Snapshot{}, fmt.Errorf("invalid qty for product %s", ln.ProductID)
		}
		items = append(items, orders.LineItem{
			ProductID:  p.ID,
			Name:       p.Name,
			Qty:        ln.Qty,
			PriceCents: p.PriceCents,
		})
	}

	return Snapshot{
		CustomerID: customerID,
		Contact:    contact,
		Items:      items,
		CapturedAt: time.Now().UTC(),
	}, nil
}
