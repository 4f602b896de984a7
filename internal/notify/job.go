package notify

import (
	"time"

	"github.com/google/uuid"
)

// TopicNotifications carries job references, keyed by order id so one order's
// jobs land in a single partition and keep their enqueue order.
const TopicNotifications = "order.notifications"

type EventKind string

const (
	KindOrderPlaced     EventKind = "order.placed"
	KindOrderConfirmed  EventKind = "order.confirmed"
	KindOrderProcessing EventKind = "order.processing"
	KindOrderShipped    EventKind = "order.shipped"
	KindOrderDelivered  EventKind = "order.delivered"
	KindOrderCancelled  EventKind = "order.cancelled"

	// KindAdminNewOrder is the back-office copy of an order placement, sent to
	// the configured admin address.
	KindAdminNewOrder EventKind = "admin.new_order"
)

type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

type State string

const (
	StatePending   State = "pending"
	StateDelivered State = "delivered"
	StateFailed    State = "failed"
	StateAbandoned State = "abandoned"
)

func (s State) Terminal() bool { return s != StatePending }

// Payload is everything the renderer needs; captured when the job is created
// so delivery never reads the order again.
type Payload struct {
	OrderNumber    string `json:"order_number"`
	CustomerID     string `json:"customer_id"`
	Status         string `json:"status"`
	TotalCents     int    `json:"total_cents"`
	TrackingNumber string `json:"tracking_number,omitempty"`
}

type Job struct {
	ID          string
	OrderID     string
	Seq         int64
	Kind        EventKind
	Channel     Channel
	Recipient   string
	Payload     Payload
	Attempts    int
	LastAttempt time.Time
	State       State
	CreatedAt   time.Time
}

func NewJob(orderID string, kind EventKind, ch Channel, recipient string, p Payload) Job {
	return Job{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Kind:      kind,
		Channel:   ch,
		Recipient: recipient,
		Payload:   p,
		State:     StatePending,
		CreatedAt: time.Now().UTC(),
	}
}

// JobRef is the kafka message body: just enough to look the job up in the
// durable store, which remains the source of truth.
type JobRef struct {
	JobID   string `json:"job_id"`
	OrderID string `json:"order_id"`
}
