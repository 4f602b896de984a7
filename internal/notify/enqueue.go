package notify

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/brianphil/ecommerce-app/internal/kafka"
)

// KafkaEnqueuer publishes job references keyed by order id. The jobs
// themselves were already written durably by the transition's transaction;
// losing a reference only delays the job until the next recovery scan.
type KafkaEnqueuer struct {
	Producer *kafkax.Producer
}

func (e *KafkaEnqueuer) Enqueue(ctx context.Context, jobs []Job) {
	for _, j := range jobs {
		e.Producer.Publish(
			[]byte(j.OrderID),
			kafkax.MustMarshal(JobRef{JobID: j.ID, OrderID: j.OrderID}),
			kafkago.Header{Key: "x-event-kind", Value: []byte(j.Kind)},
		)
	}
}
