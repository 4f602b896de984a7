package cart

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianphil/ecommerce-app/internal/orders"
)

type staticLines map[string][]Line

func (s staticLines) Lines(ctx context.Context, customerID string) ([]Line, error) {
	return s[customerID], nil
}

type staticCatalog map[string]orders.Product

func (c staticCatalog) ProductsByID(ctx context.Context, ids []string) (map[string]orders.Product, error) {
	out := make(map[string]orders.Product, len(ids))
	for _, id := range ids {
		if p, ok := c[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func testCatalog() staticCatalog {
	return staticCatalog{
		"p1": {ID: "p1", Name: "Widget", PriceCents: 1250},
		"p2": {ID: "p2", Name: "Gadget", PriceCents: 499},
	}
}

func TestSnapshotFreezesCart(t *testing.T) {
	b := &Builder{
		Lines:   staticLines{"cust-1": {{ProductID: "p2", Qty: 1}, {ProductID: "p1", Qty: 2}}},
		Catalog: testCatalog(),
	}
	contact := orders.Contact{Phone: "+254700000001", Email: "jane@example.com"}

	snap, err := b.Snapshot(context.Background(), "cust-1", contact)
	require.NoError(t, err)

	assert.Equal(t, "cust-1", snap.CustomerID)
	assert.Equal(t, contact, snap.Contact)
	assert.False(t, snap.CapturedAt.IsZero())

	// Items are sorted by product id with catalog prices frozen in.
	require.Len(t, snap.Items, 2)
	assert.Equal(t, orders.LineItem{ProductID: "p1", Name: "Widget", Qty: 2, PriceCents: 1250}, snap.Items[0])
	assert.Equal(t, orders.LineItem{ProductID: "p2", Name: "Gadget", Qty: 1, PriceCents: 499}, snap.Items[1])
	assert.Equal(t, 2999, orders.SumCents(snap.Items))
}

func TestSnapshotEmptyCart(t *testing.T) {
	b := &Builder{Lines: staticLines{}, Catalog: testCatalog()}
	_, err := b.Snapshot(context.Background(), "cust-1", orders.Contact{})
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestSnapshotUnknownProduct(t *testing.T) {
	b := &Builder{
		Lines:   staticLines{"cust-1": {{ProductID: "ghost", Qty: 1}}},
		Catalog: testCatalog(),
	}
	_, err := b.Snapshot(context.Background(), "cust-1", orders.Contact{})
	require.EqualError(t, err, "product not found: ghost")
}

func TestSnapshotInvalidQty(t *testing.T) {
	b := &Builder{
		Lines:   staticLines{"cust-1": {{ProductID: "p1", Qty: 0}}},
		Catalog: testCatalog(),
	}
	_, err := b.Snapshot(context.Background(), "cust-1", orders.Contact{})
	require.EqualError(t, err, "invalid qty for product p1")
}
