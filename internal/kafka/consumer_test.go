package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleWithRetryEventuallySucceeds(t *testing.T) {
	calls := 0
	h := func(ctx context.Context, m kafka.Message) error {
		calls++
		if calls < 3 {
			return errors.New("store busy")
		}
		return nil
	}
	err := handleWithRetry(context.Background(), h, kafka.Message{}, 5, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestHandleWithRetryExhausts(t *testing.T) {
	calls := 0
	boom := errors.New("store down")
	h := func(ctx context.Context, m kafka.Message) error {
		calls++
		return boom
	}
	err := handleWithRetry(context.Background(), h, kafka.Message{}, 3, time.Millisecond)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestHandleWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	h := func(ctx context.Context, m kafka.Message) error {
		calls++
		cancel()
		return errors.New("store down")
	}
	err := handleWithRetry(ctx, h, kafka.Message{}, 10, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "no further attempts after shutdown")
}
