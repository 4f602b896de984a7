package notify

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"log"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/brianphil/ecommerce-app/internal/metrics"
)

// Store is the durable job table. A job's terminal state is persisted before
// it leaves the active set, so a restarted dispatcher never re-delivers.
type Store interface {
	Get(ctx context.Context, id string) (Job, error)
	RecordAttempt(ctx context.Context, id string, attempts int, at time.Time) error
	MarkTerminal(ctx context.Context, id string, state State) error
	// ListActive returns non-terminal jobs in enqueue order.
	ListActive(ctx context.Context) ([]Job, error)
}

type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Workers     int
}

// Dispatcher drains notification jobs through per-channel senders. Jobs are
// sharded by order id onto workers, so one order's jobs run strictly in
// enqueue order (retries included) while different orders proceed in parallel.
type Dispatcher struct {
	store   Store
	senders map[Channel]Sender
	cfg     Config
	shards  []chan Job
	wg      sync.WaitGroup
}

func NewDispatcher(store Store, senders map[Channel]Sender, cfg Config) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	d := &Dispatcher{store: store, senders: senders, cfg: cfg}
	d.shards = make([]chan Job, cfg.Workers)
	for i := range d.shards {
		d.shards[i] = make(chan Job, 256)
	}
	return d
}

func (d *Dispatcher) Start(ctx context.Context) {
	for _, ch := range d.shards {
		d.wg.Add(1)
		go func(ch chan Job) {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j, ok := <-ch:
					if !ok {
						return
					}
					d.process(ctx, j)
				}
			}
		}(ch)
	}
}

// Close stops the workers after the queued jobs of each shard are handled.
// Callers must stop submitting first.
func (d *Dispatcher) Close() {
	for _, ch := range d.shards {
		close(ch)
	}
	d.wg.Wait()
}

func (d *Dispatcher) Submit(j Job) {
	d.shards[shardFor(j.OrderID, len(d.shards))] <- j
}

func shardFor(orderID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(orderID))
	return int(h.Sum32() % uint32(n))
}

// Recover re-submits every non-terminal job, in enqueue order. Run once on
// startup before consuming live traffic.
func (d *Dispatcher) Recover(ctx context.Context) error {
	jobs, err := d.store.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		d.Submit(j)
	}
	if len(jobs) > 0 {
		log.Printf("recovered %d pending notification jobs", len(jobs))
	}
	return nil
}

// HandleMessage is the kafka consumer handler: resolve the job reference
// against the store and hand it to its shard.
func (d *Dispatcher) HandleMessage(ctx context.Context, m kafkago.Message) error {
	var ref JobRef
	if err := json.Unmarshal(m.Value, &ref); err != nil {
		log.Printf("drop malformed job ref offset=%d: %v", m.Offset, err)
		return nil
	}
	j, err := d.store.Get(ctx, ref.JobID)
	if err != nil {
		return err
	}
	if j.State.Terminal() {
		return nil
	}
	d.Submit(j)
	return nil
}

func (d *Dispatcher) process(ctx context.Context, j Job) {
	// Reload: the submitted copy may be stale (recovery overlap, redelivery).
	if cur, err := d.store.Get(ctx, j.ID); err == nil {
		j = cur
	}
	if j.State.Terminal() {
		return
	}

	sender, ok := d.senders[j.Channel]
	if !ok {
		log.Printf("job %s: no sender for channel %s", j.ID, j.Channel)
		d.finish(ctx, j, StateFailed)
		return
	}
	msg := Render(j)

	for j.Attempts < d.cfg.MaxAttempts {
		if j.Attempts > 0 && !d.wait(ctx, d.backoff(j.Attempts)) {
			return // shutting down; job stays pending for the next recovery scan
		}
		j.Attempts++
		if err := d.store.RecordAttempt(ctx, j.ID, j.Attempts, time.Now().UTC()); err != nil {
			log.Printf("job %s: record attempt: %v", j.ID, err)
		}

		err := sender.Send(ctx, j.Recipient, msg)
		if err == nil {
			d.finish(ctx, j, StateDelivered)
			return
		}
		if IsPermanent(err) {
			log.Printf("job %s %s/%s: permanent failure: %v", j.ID, j.Kind, j.Channel, err)
			d.finish(ctx, j, StateFailed)
			return
		}
		log.Printf("job %s %s/%s: attempt %d/%d failed: %v",
			j.ID, j.Kind, j.Channel, j.Attempts, d.cfg.MaxAttempts, err)
	}

	log.Printf("ALERT job %s %s/%s abandoned after %d attempts (order %s)",
		j.ID, j.Kind, j.Channel, j.Attempts, j.OrderID)
	d.finish(ctx, j, StateAbandoned)
}

func (d *Dispatcher) finish(ctx context.Context, j Job, state State) {
	if err := d.store.MarkTerminal(ctx, j.ID, state); err != nil {
		log.Printf("job %s: mark %s: %v", j.ID, state, err)
		return
	}
	switch state {
	case StateDelivered:
		metrics.NotificationsDelivered.WithLabelValues(string(j.Channel)).Inc()
	case StateFailed:
		metrics.NotificationsFailed.WithLabelValues(string(j.Channel)).Inc()
	case StateAbandoned:
		metrics.NotificationsAbandoned.WithLabelValues(string(j.Channel)).Inc()
	}
}

// backoff returns the delay before the next attempt after n failures:
// base * 2^(n-1), capped at MaxDelay.
func (d *Dispatcher) backoff(n int) time.Duration {
	delay := d.cfg.BaseDelay
	for i := 1; i < n; i++ {
		delay *= 2
		if delay >= d.cfg.MaxDelay {
			return d.cfg.MaxDelay
		}
	}
	if delay > d.cfg.MaxDelay {
		return d.cfg.MaxDelay
	}
	return delay
}

func (d *Dispatcher) wait(ctx context.Context, delay time.Duration) bool {
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
