package orders

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/brianphil/ecommerce-app/internal/inventory"
	"github.com/brianphil/ecommerce-app/internal/notify"
)

var ErrNotFound = errors.New("order not found")

// Store persists orders. Create and RecordTransition must write the order
// mutation, its history entry, the stock effect and the notification jobs in
// one transaction: a job always exists for a recorded transition (outbox),
// and a failed write never strands reservations in a state the order does
// not reflect.
type Store interface {
	Create(ctx context.Context, o *Order, jobs []notify.Job) error
	Get(ctx context.Context, orderID string) (*Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
	RecordTransition(ctx context.Context, o *Order, tr Transition, effect inventory.Effect, jobs []notify.Job) error
}

// Enqueuer hands freshly persisted jobs to the dispatcher. Best effort: a
// dropped hand-off is repaired by the dispatcher's recovery scan.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobs []notify.Job)
}

type TransitionRequest struct {
	To             Status
	Actor          Actor
	Note           string
	TrackingNumber string
}

// Machine owns the order lifecycle. Each order id has one logical owner: a
// keyed mutex serializes concurrent transition requests so they apply one at
// a time, in arrival order.
type Machine struct {
	store    Store
	enq      Enqueuer
	channels []notify.Channel

	// AdminEmail, when set, receives a back-office copy of every placed order.
	AdminEmail string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewMachine(store Store, enq Enqueuer, channels []notify.Channel) *Machine {
	if len(channels) == 0 {
		channels = []notify.Channel{notify.ChannelSMS, notify.ChannelEmail}
	}
	return &Machine{
		store:    store,
		enq:      enq,
		channels: channels,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (m *Machine) lockOrder(orderID string) func() {
	m.mu.Lock()
	l, ok := m.locks[orderID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[orderID] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// evictLock drops a terminal order's mutex so the map stays bounded by live
// orders. A straggler still holding the old mutex can only observe the
// terminal state and no-op or fail validation; the store's row lock guards
// the write path.
func (m *Machine) evictLock(orderID string) {
	m.mu.Lock()
	delete(m.locks, orderID)
	m.mu.Unlock()
}

// Create persists a new PENDING order together with its order-placed jobs.
// Reservations were already taken by the orchestrator.
func (m *Machine) Create(ctx context.Context, o *Order) error {
	jobs := m.jobsFor(o, notify.KindOrderPlaced)
	if err := m.store.Create(ctx, o, jobs); err != nil {
		return err
	}
	m.enq.Enqueue(ctx, jobs)
	return nil
}

func (m *Machine) Get(ctx context.Context, orderID string) (*Order, error) {
	return m.store.Get(ctx, orderID)
}

func (m *Machine) ListByCustomer(ctx context.Context, customerID string) ([]Order, error) {
	return m.store.ListByCustomer(ctx, customerID)
}

// Transition applies one lifecycle step. Requesting the order's current
// status is a no-op success (duplicate webhook protection); an illegal target
// fails with InvalidTransitionError and changes nothing.
func (m *Machine) Transition(ctx context.Context, orderID string, req TransitionRequest) (*Order, error) {
	if !req.To.Valid() {
		return nil, &InvalidTransitionError{To: req.To}
	}
	unlock := m.lockOrder(orderID)
	defer unlock()

	o, err := m.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status.Terminal() {
		// Already finished; late requests must not re-grow the lock map.
		defer m.evictLock(orderID)
	}
	if o.Status == req.To {
		return o, nil
	}
	if !CanTransition(o.Status, req.To) {
		return nil, &InvalidTransitionError{From: o.Status, To: req.To}
	}

	// The stock effect rides in the same store transaction as the status and
	// history writes: either all of it lands or none of it does.
	effect := effectFor(o.Status, req.To)

	tr := Transition{
		From:       o.Status,
		To:         req.To,
		Actor:      req.Actor,
		Note:       req.Note,
		OccurredAt: time.Now().UTC(),
	}
	o.Status = req.To
	o.UpdatedAt = tr.OccurredAt
	if req.To == StatusShipped && req.TrackingNumber != "" {
		o.TrackingNumber = req.TrackingNumber
	}

	jobs := m.jobsFor(o, kindFor(req.To))
	if err := m.store.RecordTransition(ctx, o, tr, effect, jobs); err != nil {
		return nil, err
	}
	o.History = append(o.History, tr)
	if o.Status.Terminal() {
		m.evictLock(orderID)
	}
	m.enq.Enqueue(ctx, jobs)
	return o, nil
}

func effectFor(from, to Status) inventory.Effect {
	switch {
	case from == StatusPending && to == StatusConfirmed:
		return inventory.EffectCommit
	case from == StatusPending && to == StatusCancelled:
		return inventory.EffectRelease
	case to == StatusCancelled:
		// CONFIRMED or PROCESSING: the decrement was final, restock it.
		return inventory.EffectRestock
	}
	return inventory.EffectNone
}

func (m *Machine) jobsFor(o *Order, kind notify.EventKind) []notify.Job {
	payload := notify.Payload{
		OrderNumber:    o.Number,
		CustomerID:     o.CustomerID,
		Status:         string(o.Status),
		TotalCents:     o.TotalCents,
		TrackingNumber: o.TrackingNumber,
	}
	jobs := make([]notify.Job, 0, len(m.channels))
	for _, ch := range m.channels {
		recipient := o.Contact.Email
		if ch == notify.ChannelSMS {
			recipient = o.Contact.Phone
		}
		if recipient == "" {
			continue
		}
		jobs = append(jobs, notify.NewJob(o.ID, kind, ch, recipient, payload))
	}
	if kind == notify.KindOrderPlaced && m.AdminEmail != "" {
		jobs = append(jobs, notify.NewJob(o.ID, notify.KindAdminNewOrder, notify.ChannelEmail, m.AdminEmail, payload))
	}
	return jobs
}

func kindFor(to Status) notify.EventKind {
	switch to {
	case StatusConfirmed:
		return notify.KindOrderConfirmed
	case StatusProcessing:
		return notify.KindOrderProcessing
	case StatusShipped:
		return notify.KindOrderShipped
	case StatusDelivered:
		return notify.KindOrderDelivered
	case StatusCancelled:
		return notify.KindOrderCancelled
	default:
		return notify.KindOrderPlaced
	}
}
