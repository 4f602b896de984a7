package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Product struct {
	ID         string    `json:"id"`
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	Stock      int       `json:"stock"`
	PriceCents int       `json:"price_cents"`
	LowStockAt int       `json:"low_stock_at"`
	Version    int       `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Contact is the customer's reachable endpoints, snapshotted onto the order
// at creation so later profile edits don't change where notifications go.
type Contact struct {
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// LineItem is immutable after order creation; the price is the catalog price
// at capture time, never re-priced.
type LineItem struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	Qty        int    `json:"qty"`
	PriceCents int    `json:"price_cents"`
}

func (li LineItem) SubtotalCents() int { return li.PriceCents * li.Qty }

func SumCents(items []LineItem) int {
	total := 0
	for _, it := range items {
		total += it.SubtotalCents()
	}
	return total
}

type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorSystem   Actor = "system"
	ActorAdmin    Actor = "admin"
)

type Transition struct {
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	Actor      Actor     `json:"actor"`
	Note       string    `json:"note,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Order struct {
	ID             string       `json:"id"`
	Number         string       `json:"number"`
	CustomerID     string       `json:"customer_id"`
	Contact        Contact      `json:"contact"`
	Status         Status       `json:"status"`
	Items          []LineItem   `json:"items,omitempty"`
	TotalCents     int          `json:"total_cents"`
	TrackingNumber string       `json:"tracking_number,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	History        []Transition `json:"history,omitempty"`
}

// NewOrderNumber builds the customer-facing order reference, e.g.
// ORD-1724400000-9F3A21BC. The uuid primary key stays internal.
func NewOrderNumber() string {
	return fmt.Sprintf("ORD-%d-%s", time.Now().Unix(),
		strings.ToUpper(uuid.NewString()[:8]))
}
