package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// casRetries bounds the optimistic update loop before giving up with ErrConflict.
const casRetries = 4

type memProduct struct {
	stock   int
	version int
}

type memRes struct {
	res    Reservation
	status string
}

// Mem is an in-memory ledger used by tests and local mode. Unlike the
// postgres ledger it takes the optimistic route: reads are unlocked and the
// write revalidates the product's version counter, retrying on mismatch.
type Mem struct {
	mu       sync.RWMutex
	products map[string]*memProduct
	res      map[string]*memRes
}

func NewMem() *Mem {
	return &Mem{
		products: make(map[string]*memProduct),
		res:      make(map[string]*memRes),
	}
}

// SetStock seeds or replaces a product's available quantity.
func (m *Mem) SetStock(productID string, stock int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		m.products[productID] = &memProduct{stock: stock}
		return
	}
	p.stock = stock
	p.version++
}

// Stock reports the currently available quantity.
func (m *Mem) Stock(productID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.products[productID]; ok {
		return p.stock
	}
	return 0
}

func (m *Mem) Reserve(ctx context.Context, orderID, productID string, qty int) (Reservation, error) {
	if qty <= 0 {
		return Reservation{}, ErrInvalidArgument
	}

	for attempt := 0; attempt < casRetries; attempt++ {
		m.mu.RLock()
		p, ok := m.products[productID]
		if !ok {
			m.mu.RUnlock()
			return Reservation{}, ErrNotFound
		}
		stock, version := p.stock, p.version
		m.mu.RUnlock()

		if stock < qty {
			return Reservation{}, &InsufficientStockError{ProductID: productID, Requested: qty, Available: stock}
		}

		m.mu.Lock()
		if p.version != version {
			m.mu.Unlock()
			continue
		}
		p.stock -= qty
		p.version++
		res := Reservation{
			ID:        uuid.NewString(),
			OrderID:   orderID,
			ProductID: productID,
			Qty:       qty,
			CreatedAt: time.Now().UTC(),
		}
		m.res[res.ID] = &memRes{res: res, status: resReserved}
		m.mu.Unlock()
		return res, nil
	}
	return Reservation{}, ErrConflict
}

func (m *Mem) Release(ctx context.Context, res Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.res[res.ID]
	if !ok || r.status != resReserved {
		return nil
	}
	r.status = resReleased
	m.restore(r.res)
	return nil
}

func (m *Mem) Commit(ctx context.Context, res Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.res[res.ID]; ok && r.status == resReserved {
		r.status = resCommitted
	}
	return nil
}

func (m *Mem) CommitOrder(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.res {
		if r.res.OrderID == orderID && r.status == resReserved {
			r.status = resCommitted
		}
	}
	return nil
}

func (m *Mem) ReleaseOrder(ctx context.Context, orderID string) error {
	return m.returnStock(orderID, resReserved, resReleased)
}

func (m *Mem) RestockOrder(ctx context.Context, orderID string) error {
	return m.returnStock(orderID, resCommitted, resRestocked)
}

func (m *Mem) returnStock(orderID, fromStatus, toStatus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.res {
		if r.res.OrderID == orderID && r.status == fromStatus {
			r.status = toStatus
			m.restore(r.res)
		}
	}
	return nil
}

// restore requires m.mu held for writing.
func (m *Mem) restore(res Reservation) {
	p, ok := m.products[res.ProductID]
	if !ok {
		return
	}
	p.stock += res.Qty
	p.version++
}
