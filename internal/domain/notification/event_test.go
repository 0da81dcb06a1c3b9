package notification

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEvent() *Event {
	s := Subject{OrderID: uuid.New(), BuyerID: uuid.New(), SellerID: uuid.New()}
	return NewEvent(EntityOrder, s.OrderID, s, 2, "pending", "confirmed", "user:x", time.Now().UTC())
}

func TestNewEvent(t *testing.T) {
	e := newTestEvent()
	assert.NotEqual(t, uuid.Nil, e.EventID)
	assert.Equal(t, StatusPending, e.Status)
	assert.Equal(t, DefaultMaxAttempts, e.MaxAttempts)
	assert.Equal(t, int64(2), e.Version)
	assert.True(t, e.CanRetry())
}

func TestEvent_MarkDelivered(t *testing.T) {
	e := newTestEvent()
	require.NoError(t, e.MarkDelivered(time.Now().UTC()))
	assert.Equal(t, StatusDelivered, e.Status)
	assert.Equal(t, 1, e.Attempts)
	assert.NotNil(t, e.DeliveredAt)
	assert.True(t, e.IsTerminal())
	assert.ErrorIs(t, e.MarkDelivered(time.Now().UTC()), ErrInvalidTransition)
	assert.ErrorIs(t, e.MarkFailed("late"), ErrInvalidTransition)
}

func TestEvent_MarkFailedUntilDead(t *testing.T) {
	e := newTestEvent()
	e.MaxAttempts = 2

	require.NoError(t, e.MarkFailed("broker down"))
	assert.Equal(t, StatusFailed, e.Status)
	require.NotNil(t, e.LastError)
	assert.Equal(t, "broker down", *e.LastError)
	assert.True(t, e.CanRetry())

	require.NoError(t, e.MarkFailed("broker down"))
	assert.Equal(t, StatusDead, e.Status)
	assert.False(t, e.CanRetry())
	assert.True(t, e.IsTerminal())
}

func TestEvent_RetryThenDeliver(t *testing.T) {
	e := newTestEvent()
	require.NoError(t, e.MarkFailed("timeout"))
	require.NoError(t, e.MarkDelivered(time.Now().UTC()))
	assert.Equal(t, 2, e.Attempts)
	assert.Nil(t, e.LastError)
}

func TestTracker_ApplyIfNewer(t *testing.T) {
	tr := NewTracker(0)
	id := uuid.New()

	assert.True(t, tr.ShouldApply(EntityOrder, id, 2))
	assert.False(t, tr.ShouldApply(EntityOrder, id, 2))
	assert.False(t, tr.ShouldApply(EntityOrder, id, 1))
	assert.True(t, tr.ShouldApply(EntityOrder, id, 4))
	assert.False(t, tr.ShouldApply(EntityOrder, id, 3))

	// versions are tracked per aggregate, not per order
	assert.True(t, tr.ShouldApply(EntityEscrow, id, 1))
	assert.True(t, tr.ShouldApply(EntityDispute, id, 1))
}

func TestTracker_BoundedCapacity(t *testing.T) {
	tr := NewTracker(2)
	first, second, third := uuid.New(), uuid.New(), uuid.New()

	assert.True(t, tr.ShouldApply(EntityOrder, first, 5))
	assert.True(t, tr.ShouldApply(EntityOrder, second, 5))
	// touching first makes second the eviction candidate
	assert.False(t, tr.ShouldApply(EntityOrder, first, 5))
	assert.True(t, tr.ShouldApply(EntityOrder, third, 5))
	assert.Equal(t, 2, tr.Len())

	assert.False(t, tr.ShouldApply(EntityOrder, first, 4))
	// second was forgotten, so its replay is accepted again
	assert.True(t, tr.ShouldApply(EntityOrder, second, 5))
	assert.Equal(t, 2, tr.Len())
}
