package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusConfirmed},
		{StatusPending, StatusCancelled},
		{StatusConfirmed, StatusProcessing},
		{StatusConfirmed, StatusCancelled},
		{StatusProcessing, StatusShipped},
		{StatusProcessing, StatusCancelled},
		{StatusShipped, StatusDelivered},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	denied := []struct{ from, to Status }{
		{StatusPending, StatusProcessing},
		{StatusPending, StatusShipped},
		{StatusConfirmed, StatusShipped},
		{StatusConfirmed, StatusDelivered},
		{StatusShipped, StatusCancelled},
		{StatusShipped, StatusProcessing},
		{StatusDelivered, StatusProcessing},
		{StatusDelivered, StatusCancelled},
		{StatusCancelled, StatusPending},
		{StatusCancelled, StatusConfirmed},
	}
	for _, tc := range denied {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be denied", tc.from, tc.to)
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	for _, s := range []Status{StatusPending, StatusConfirmed, StatusProcessing, StatusShipped} {
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.False(t, Status("REFUNDED").Valid())
	assert.False(t, Status("").Valid())
}

func TestSumCents(t *testing.T) {
	items := []LineItem{
		{ProductID: "a", Qty: 2, PriceCents: 1250},
		{ProductID: "b", Qty: 1, PriceCents: 499},
	}
	assert.Equal(t, 2999, SumCents(items))
	assert.Equal(t, 0, SumCents(nil))
}
