package order

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petmarket/escrow-hub/internal/apperr"
)

func newDraft() Draft {
	return Draft{
		BuyerID:       uuid.New(),
		SellerID:      uuid.New(),
		ProductID:     uuid.New(),
		Quantity:      2,
		UnitPrice:     100000,
		ShippingFee:   20000,
		PaymentMethod: PaymentCard,
		Shipping:      Shipping{Name: "Mai", Phone: "0900", Address: "12 Le Loi"},
	}
}

func TestNewComputesFinalPrice(t *testing.T) {
	o, err := New(newDraft(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(220000), o.FinalPrice)
	assert.Equal(t, int64(220000), o.TotalPrice)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
}

func TestNewRejectsBadDraft(t *testing.T) {
	cases := map[string]func(*Draft){
		"zero quantity":   func(d *Draft) { d.Quantity = 0 },
		"zero price":      func(d *Draft) { d.UnitPrice = 0 },
		"negative fee":    func(d *Draft) { d.ShippingFee = -1 },
		"self purchase":   func(d *Draft) { d.SellerID = d.BuyerID },
		"unknown method":  func(d *Draft) { d.PaymentMethod = "barter" },
		"missing address": func(d *Draft) { d.Shipping.Address = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			d := newDraft()
			mutate(&d)
			_, err := New(d, time.Now().UTC())
			assert.ErrorIs(t, err, apperr.ErrInvalidInput)
		})
	}
}

func TestAdvanceHappyPath(t *testing.T) {
	now := time.Now().UTC()
	o, err := New(newDraft(), now)
	require.NoError(t, err)

	require.NoError(t, o.Advance(StatusConfirmed, "", "", "", now))
	require.NoError(t, o.Advance(StatusProcessing, "", "", "packing", now))
	require.NoError(t, o.Advance(StatusShipped, "VN123", "GHN", "", now))
	require.NoError(t, o.Advance(StatusDelivered, "", "", "", now))

	assert.Equal(t, StatusDelivered, o.Status)
	assert.Equal(t, "VN123", o.TrackingNumber)
	assert.Equal(t, "GHN", o.ShippingCarrier)
	assert.NotNil(t, o.ConfirmedAt)
	assert.NotNil(t, o.ProcessingAt)
	assert.NotNil(t, o.ShippedAt)
	assert.NotNil(t, o.DeliveredAt)
	assert.True(t, o.IsTerminal())
}

func TestAdvanceRejectsSkipsAndBackwards(t *testing.T) {
	now := time.Now().UTC()
	o, _ := New(newDraft(), now)

	err := o.Advance(StatusShipped, "VN1", "", "", now)
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
	e, _ := apperr.As(err)
	assert.Equal(t, "pending", e.Metadata["current"])
	assert.Equal(t, "shipped", e.Metadata["requested"])

	require.NoError(t, o.Advance(StatusConfirmed, "", "", "", now))
	assert.ErrorIs(t, o.Advance(StatusPending, "", "", "", now), apperr.ErrInvalidTransition)
	assert.ErrorIs(t, o.Advance(StatusConfirmed, "", "", "", now), apperr.ErrInvalidTransition)
	assert.ErrorIs(t, o.Advance(StatusCancelled, "", "", "", now), apperr.ErrInvalidTransition)
}

func TestShippingNeedsTracking(t *testing.T) {
	now := time.Now().UTC()
	o, _ := New(newDraft(), now)
	require.NoError(t, o.Advance(StatusConfirmed, "", "", "", now))
	require.NoError(t, o.Advance(StatusProcessing, "", "", "", now))

	assert.ErrorIs(t, o.Advance(StatusShipped, "", "", "", now), apperr.ErrInvalidInput)
	assert.Equal(t, StatusProcessing, o.Status)

	require.NoError(t, o.RecordTracking("VN9", "VNPost", now))
	require.NoError(t, o.Advance(StatusShipped, "", "", "", now))
	assert.Equal(t, "VN9", o.TrackingNumber)
}

func TestRecordTrackingOnlyBeforeShipping(t *testing.T) {
	now := time.Now().UTC()
	o, _ := New(newDraft(), now)
	assert.ErrorIs(t, o.RecordTracking("VN1", "", now), apperr.ErrInvalidTransition)
	require.NoError(t, o.Advance(StatusConfirmed, "", "", "", now))
	assert.ErrorIs(t, o.RecordTracking(" ", "", now), apperr.ErrInvalidInput)
}

func TestCancel(t *testing.T) {
	now := time.Now().UTC()
	for _, upto := range []Status{StatusPending, StatusConfirmed, StatusProcessing} {
		o, _ := New(newDraft(), now)
		for _, s := range []Status{StatusConfirmed, StatusProcessing} {
			if o.Status == upto {
				break
			}
			require.NoError(t, o.Advance(s, "", "", "", now))
		}
		require.NoError(t, o.Cancel(o.BuyerID, "changed mind", now), upto)
		assert.Equal(t, StatusCancelled, o.Status)
		require.NotNil(t, o.CancelledBy)
		assert.Equal(t, o.BuyerID, *o.CancelledBy)
		assert.ErrorIs(t, o.Cancel(o.BuyerID, "", now), apperr.ErrInvalidTransition)
	}

	o, _ := New(newDraft(), now)
	require.NoError(t, o.Advance(StatusConfirmed, "", "", "", now))
	require.NoError(t, o.Advance(StatusProcessing, "", "", "", now))
	require.NoError(t, o.Advance(StatusShipped, "T1", "", "", now))
	assert.ErrorIs(t, o.Cancel(o.BuyerID, "", now), apperr.ErrInvalidTransition)
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	all := []Status{StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled}
	for _, terminal := range []Status{StatusDelivered, StatusCancelled} {
		o := &Order{Status: terminal}
		for _, s := range all {
			assert.False(t, o.CanTransitionTo(s), "%s -> %s", terminal, s)
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	o, _ := New(newDraft(), time.Now().UTC())
	c := o.Clone()
	c.Status = StatusConfirmed
	assert.Equal(t, StatusPending, o.Status)
}
