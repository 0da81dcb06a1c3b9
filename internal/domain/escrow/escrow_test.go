package escrow

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petmarket/escrow-hub/internal/apperr"
)

var fivePercent = &PercentFee{Rate: decimal.RequireFromString("0.05")}

func captured(t *testing.T) *Account {
	t.Helper()
	a := NewAccount(uuid.New(), 220000, time.Now().UTC())
	require.NoError(t, a.Capture(220000, "pay_1", fivePercent, time.Now().UTC()))
	return a
}

func TestCaptureSplitsFunds(t *testing.T) {
	a := captured(t)
	assert.Equal(t, StatusEscrowed, a.Status)
	assert.Equal(t, int64(220000), a.HeldAmount)
	assert.Equal(t, int64(11000), a.PlatformFee)
	assert.Equal(t, int64(209000), a.SellerPayout)
	assert.NotNil(t, a.CapturedAt)
	assert.True(t, a.IsCaptureReplay(220000, "pay_1"))
	assert.False(t, a.IsCaptureReplay(220000, "pay_2"))
}

func TestCaptureRejectsMismatchAndReplay(t *testing.T) {
	a := NewAccount(uuid.New(), 220000, time.Now().UTC())
	err := a.Capture(200000, "pay_1", fivePercent, time.Now().UTC())
	assert.ErrorIs(t, err, apperr.ErrAmountMismatch)
	assert.Equal(t, StatusNone, a.Status)

	a = captured(t)
	assert.ErrorIs(t, a.Capture(220000, "pay_1", fivePercent, time.Now().UTC()), apperr.ErrInvalidTransition)
}

func TestCaptureWithBrokenFeePolicyFailsIntegrity(t *testing.T) {
	a := NewAccount(uuid.New(), 1000, time.Now().UTC())
	err := a.Capture(1000, "pay", &PercentFee{Rate: decimal.RequireFromString("1.5")}, time.Now().UTC())
	assert.ErrorIs(t, err, apperr.ErrLedgerIntegrity)
}

func TestReleaseFromEscrowed(t *testing.T) {
	a := captured(t)
	require.NoError(t, a.Release(TriggerBuyerConfirmed, nil, time.Now().UTC()))
	assert.Equal(t, StatusReleased, a.Status)
	assert.Equal(t, a.HeldAmount, a.SellerPayout+a.PlatformFee)
	assert.Equal(t, TriggerBuyerConfirmed, a.ReleaseTrigger)

	assert.ErrorIs(t, a.Release(TriggerAdmin, nil, time.Now().UTC()), apperr.ErrInvalidTransition)
	assert.ErrorIs(t, a.Refund(TriggerAdmin, nil, fivePercent, time.Now().UTC()), apperr.ErrInvalidTransition)
}

func TestFrozenAccountBlocksMovement(t *testing.T) {
	a := captured(t)
	disputeID := uuid.New()
	require.NoError(t, a.Freeze(disputeID, time.Now().UTC()))
	require.NoError(t, a.Freeze(disputeID, time.Now().UTC()))
	assert.Equal(t, StatusDisputed, a.Status)

	assert.ErrorIs(t, a.Release(TriggerAdmin, nil, time.Now().UTC()), apperr.ErrDisputeBlocking)
	assert.ErrorIs(t, a.Refund(TriggerAdmin, nil, fivePercent, time.Now().UTC()), apperr.ErrDisputeBlocking)
	assert.ErrorIs(t, a.Freeze(uuid.New(), time.Now().UTC()), apperr.ErrInvalidTransition)
}

func TestResolutionFromAnotherDisputeFailsIntegrity(t *testing.T) {
	a := captured(t)
	require.NoError(t, a.Freeze(uuid.New(), time.Now().UTC()))

	err := a.Refund(TriggerDisputeResolution, &Resolution{DisputeID: uuid.New(), Outcome: OutcomeRefund}, fivePercent, time.Now().UTC())
	require.ErrorIs(t, err, apperr.ErrLedgerIntegrity)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, a.OrderID.String(), e.Metadata["orderId"])
	assert.Equal(t, StatusDisputed, a.Status)
}

func TestReleaseToSellerResolution(t *testing.T) {
	a := captured(t)
	disputeID := uuid.New()
	require.NoError(t, a.Freeze(disputeID, time.Now().UTC()))

	wrong := &Resolution{DisputeID: disputeID, Outcome: OutcomeRefund}
	assert.ErrorIs(t, a.Release(TriggerDisputeResolution, wrong, time.Now().UTC()), apperr.ErrInvalidTransition)

	res := &Resolution{DisputeID: disputeID, Outcome: OutcomeRelease}
	require.NoError(t, a.Release(TriggerDisputeResolution, res, time.Now().UTC()))
	assert.Equal(t, StatusReleased, a.Status)
	assert.Nil(t, a.DisputeID)
}

func TestFullRefundResolution(t *testing.T) {
	a := captured(t)
	disputeID := uuid.New()
	require.NoError(t, a.Freeze(disputeID, time.Now().UTC()))
	res := &Resolution{DisputeID: disputeID, Outcome: OutcomeRefund}
	require.NoError(t, a.Refund(TriggerDisputeResolution, res, fivePercent, time.Now().UTC()))
	assert.Equal(t, StatusRefunded, a.Status)
	assert.Equal(t, int64(220000), a.RefundAmount)
	assert.Zero(t, a.SellerPayout)
	assert.Zero(t, a.PlatformFee)
}

func TestPartialRefundResolution(t *testing.T) {
	a := captured(t)
	disputeID := uuid.New()
	require.NoError(t, a.Freeze(disputeID, time.Now().UTC()))

	for _, amount := range []int64{0, -5, 220000, 300000} {
		res := &Resolution{DisputeID: disputeID, Outcome: OutcomePartialRefund, Amount: amount}
		assert.ErrorIs(t, a.Refund(TriggerDisputeResolution, res, fivePercent, time.Now().UTC()), apperr.ErrInvalidResolutionAmount, amount)
		assert.Equal(t, StatusDisputed, a.Status)
	}

	res := &Resolution{DisputeID: disputeID, Outcome: OutcomePartialRefund, Amount: 50000}
	require.NoError(t, a.Refund(TriggerDisputeResolution, res, fivePercent, time.Now().UTC()))
	assert.Equal(t, StatusRefunded, a.Status)
	assert.Equal(t, int64(50000), a.RefundAmount)
	assert.Equal(t, int64(8500), a.PlatformFee)
	assert.Equal(t, int64(161500), a.SellerPayout)
	assert.Equal(t, a.TotalPrice, a.RefundAmount+a.PlatformFee+a.SellerPayout)
}

func TestResolutionFromOtherDisputeIsRejected(t *testing.T) {
	a := captured(t)
	require.NoError(t, a.Freeze(uuid.New(), time.Now().UTC()))
	res := &Resolution{DisputeID: uuid.New(), Outcome: OutcomeRelease}
	assert.ErrorIs(t, a.Release(TriggerDisputeResolution, res, time.Now().UTC()), apperr.ErrLedgerIntegrity)
}

func TestUnfreezeRestoresSplit(t *testing.T) {
	a := captured(t)
	fee, payout := a.PlatformFee, a.SellerPayout
	require.NoError(t, a.Freeze(uuid.New(), time.Now().UTC()))
	require.NoError(t, a.Unfreeze(time.Now().UTC()))
	assert.Equal(t, StatusEscrowed, a.Status)
	assert.Nil(t, a.DisputeID)
	assert.Equal(t, fee, a.PlatformFee)
	assert.Equal(t, payout, a.SellerPayout)
	assert.ErrorIs(t, a.Unfreeze(time.Now().UTC()), apperr.ErrInvalidTransition)
}

func TestRefundFromEscrowedIsFull(t *testing.T) {
	a := captured(t)
	require.NoError(t, a.Refund(TriggerOrderCancelled, nil, fivePercent, time.Now().UTC()))
	assert.Equal(t, a.HeldAmount, a.RefundAmount)
	assert.ErrorIs(t, a.Release(TriggerAdmin, nil, time.Now().UTC()), apperr.ErrInvalidTransition)
}

func TestUncapturedAccountCannotMove(t *testing.T) {
	a := NewAccount(uuid.New(), 1000, time.Now().UTC())
	assert.ErrorIs(t, a.Release(TriggerAdmin, nil, time.Now().UTC()), apperr.ErrInvalidTransition)
	assert.ErrorIs(t, a.Refund(TriggerOrderCancelled, nil, FlatFee(0), time.Now().UTC()), apperr.ErrInvalidTransition)
	assert.ErrorIs(t, a.Freeze(uuid.New(), time.Now().UTC()), apperr.ErrInvalidTransition)
}

func TestVerify(t *testing.T) {
	a := captured(t)
	require.NoError(t, a.Verify())
	a.SellerPayout += 1
	assert.ErrorIs(t, a.Verify(), apperr.ErrLedgerIntegrity)

	b := captured(t)
	b.RefundAmount = 1
	assert.ErrorIs(t, b.Verify(), apperr.ErrLedgerIntegrity)
}
