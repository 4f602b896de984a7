package kafka

import (
	"context"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler must return nil only when the message was accepted and its offset
// may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

// Consumer reads one message at a time and commits manually. Partition order
// is preserved; any fan-out happens downstream of the handler.
type Consumer struct {
	r *kafka.Reader
}

func NewConsumer(brokers []string, group, topic string) *Consumer {
	return &Consumer{r: kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})}
}

const (
	handlerAttempts = 3
	handlerDelay    = 200 * time.Millisecond
)

func (c *Consumer) Run(ctx context.Context, h Handler) error {
	defer c.r.Close()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := handleWithRetry(ctx, h, m, handlerAttempts, handlerDelay); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// Advance anyway: the referenced job row is still pending and the
			// dispatcher's periodic rescan re-submits it.
			log.Printf("giving up on offset %d after %d attempts: %v", m.Offset, handlerAttempts, err)
		}
		if err := c.r.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("commit offset=%d: %v", m.Offset, err)
		}
	}
}

// handleWithRetry runs the handler against one message, retrying in place so
// a transient store hiccup does not skip the message until the next rescan.
func handleWithRetry(ctx context.Context, h Handler, m kafka.Message, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = h(ctx, m); err == nil {
			return nil
		}
		log.Printf("handler error topic=%s offset=%d attempt=%d: %v", m.Topic, m.Offset, i+1, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
