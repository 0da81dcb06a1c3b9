package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petmarket/escrow-hub/internal/apperr"
	"github.com/petmarket/escrow-hub/internal/domain/dispute"
	"github.com/petmarket/escrow-hub/internal/domain/escrow"
	"github.com/petmarket/escrow-hub/internal/domain/notification"
	"github.com/petmarket/escrow-hub/internal/domain/order"
	"github.com/petmarket/escrow-hub/internal/domain/review"
	"github.com/petmarket/escrow-hub/internal/ledger"
	"github.com/petmarket/escrow-hub/internal/ledger/ledgertest"
)

func seedOrder(t *testing.T, s *Store) (*order.Order, *escrow.Account) {
	t.Helper()
	now := time.Now().UTC()
	o, err := order.New(order.Draft{
		BuyerID: uuid.New(), SellerID: uuid.New(), ProductID: uuid.New(),
		Quantity: 1, UnitPrice: 1000, PaymentMethod: order.PaymentCard,
		Shipping: order.Shipping{Address: "1 Main St"},
	}, now)
	require.NoError(t, err)
	a := escrow.NewAccount(o.OrderID, o.TotalPrice, now)
	cs := &ledger.ChangeSet{}
	cs.PutOrder(o)
	cs.PutEscrow(a)
	require.NoError(t, s.Commit(context.Background(), cs))
	return o, a
}

func TestCommitInsertAndRead(t *testing.T) {
	s := NewStore()
	o, a := seedOrder(t, s)

	got, err := s.GetOrder(context.Background(), o.OrderID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.Version)

	acc, err := s.GetEscrowByOrder(context.Background(), o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, a.AccountID, acc.AccountID)

	missing, err := s.GetOrder(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestReadsReturnCopies(t *testing.T) {
	s := NewStore()
	o, _ := seedOrder(t, s)
	got, _ := s.GetOrder(context.Background(), o.OrderID)
	got.Status = order.StatusCancelled
	again, _ := s.GetOrder(context.Background(), o.OrderID)
	assert.Equal(t, order.StatusPending, again.Status)
}

func TestCommitDetectsStaleVersion(t *testing.T) {
	s := NewStore()
	o, _ := seedOrder(t, s)
	ctx := context.Background()

	first, _ := s.GetOrder(ctx, o.OrderID)
	second, _ := s.GetOrder(ctx, o.OrderID)

	cs := &ledger.ChangeSet{}
	require.NoError(t, first.Advance(order.StatusConfirmed, "", "", "", time.Now().UTC()))
	cs.PutOrder(first)
	require.NoError(t, s.Commit(ctx, cs))

	cs = &ledger.ChangeSet{}
	require.NoError(t, second.Cancel(second.BuyerID, "", time.Now().UTC()))
	cs.PutOrder(second)
	assert.ErrorIs(t, s.Commit(ctx, cs), apperr.ErrConflict)

	got, _ := s.GetOrder(ctx, o.OrderID)
	assert.Equal(t, order.StatusConfirmed, got.Status)
	assert.Equal(t, int64(2), got.Version)
}

func TestCommitIsAllOrNothing(t *testing.T) {
	s := NewStore()
	o, _ := seedOrder(t, s)
	ctx := context.Background()

	cur, _ := s.GetOrder(ctx, o.OrderID)
	require.NoError(t, cur.Advance(order.StatusConfirmed, "", "", "", time.Now().UTC()))
	stale, _ := s.GetEscrowByOrder(ctx, o.OrderID)
	stale.Version = 7

	cs := &ledger.ChangeSet{}
	cs.PutOrder(cur)
	cs.PutEscrow(stale)
	cs.Emit(notification.NewEvent(notification.EntityOrder, o.OrderID, notification.Subject{OrderID: o.OrderID}, cur.Version, "pending", "confirmed", "x", time.Now().UTC()))
	assert.ErrorIs(t, s.Commit(ctx, cs), apperr.ErrConflict)

	got, _ := s.GetOrder(ctx, o.OrderID)
	assert.Equal(t, order.StatusPending, got.Status)
	events, _ := s.ListPendingEvents(ctx, 10)
	assert.Empty(t, events)
}

func TestCommitRejectsDuplicateInsert(t *testing.T) {
	s := NewStore()
	o, _ := seedOrder(t, s)
	dup := o.Clone()
	dup.Version = 0
	cs := &ledger.ChangeSet{}
	cs.PutOrder(dup)
	assert.ErrorIs(t, s.Commit(context.Background(), cs), apperr.ErrConflict)
}

func TestSingleActiveDisputePerOrder(t *testing.T) {
	s := NewStore()
	o, a := seedOrder(t, s)
	ctx := context.Background()
	claim := dispute.Claim{OrderID: o.OrderID, EscrowAccountID: a.AccountID, InitiatorID: o.BuyerID,
		InitiatorRole: dispute.PartyBuyer, Type: dispute.TypeDamaged, Reason: "broken"}

	d1, err := dispute.Open(claim, escrow.StatusEscrowed, nil, time.Now().UTC())
	require.NoError(t, err)
	cs := &ledger.ChangeSet{}
	cs.PutDispute(d1)
	require.NoError(t, s.Commit(ctx, cs))

	d2, err := dispute.Open(claim, escrow.StatusEscrowed, nil, time.Now().UTC())
	require.NoError(t, err)
	cs = &ledger.ChangeSet{}
	cs.PutDispute(d2)
	assert.ErrorIs(t, s.Commit(ctx, cs), apperr.ErrConflict)

	// cancelling the first in the same commit frees the slot
	cur, _ := s.GetDispute(ctx, d1.DisputeID)
	require.NoError(t, cur.Cancel(time.Now().UTC()))
	cs = &ledger.ChangeSet{}
	cs.PutDispute(cur)
	cs.PutDispute(d2)
	require.NoError(t, s.Commit(ctx, cs))

	active, err := s.GetActiveDispute(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, d2.DisputeID, active.DisputeID)
	all, _ := s.ListDisputes(ctx, o.OrderID)
	assert.Len(t, all, 2)
}

func TestDuplicateReviewRejected(t *testing.T) {
	s := NewStore()
	o, _ := seedOrder(t, s)
	o.Status = order.StatusDelivered
	ctx := context.Background()

	r1, err := review.Create(o, nil, 5, "", nil, time.Now().UTC())
	require.NoError(t, err)
	cs := &ledger.ChangeSet{}
	cs.PutReview(r1)
	require.NoError(t, s.Commit(ctx, cs))

	r2, _ := review.Create(o, nil, 3, "", nil, time.Now().UTC())
	cs = &ledger.ChangeSet{}
	cs.PutReview(r2)
	assert.ErrorIs(t, s.Commit(ctx, cs), apperr.ErrDuplicateReview)

	got, _ := s.GetReviewByOrder(ctx, o.OrderID)
	assert.Equal(t, r1.ReviewID, got.ReviewID)
}

func TestMessagesNeedDispute(t *testing.T) {
	s := NewStore()
	cs := &ledger.ChangeSet{}
	cs.AddMessage(&dispute.Message{MessageID: uuid.New(), DisputeID: uuid.New(), Body: "hi"})
	assert.ErrorIs(t, s.Commit(context.Background(), cs), apperr.ErrNotFound)
}

func TestListReleasable(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	o, _ := seedOrder(t, s)
	cur, _ := s.GetOrder(ctx, o.OrderID)
	acc, _ := s.GetEscrowByOrder(ctx, o.OrderID)
	for _, st := range []order.Status{order.StatusConfirmed, order.StatusProcessing, order.StatusShipped, order.StatusDelivered} {
		require.NoError(t, cur.Advance(st, "T1", "", "", now.Add(-time.Hour)))
	}
	require.NoError(t, acc.Capture(acc.TotalPrice, "p", escrow.FlatFee(0), now))
	cs := &ledger.ChangeSet{}
	cs.PutOrder(cur)
	cs.PutEscrow(acc)
	require.NoError(t, s.Commit(ctx, cs))

	seedOrder(t, s)

	ids, err := s.ListReleasable(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{o.OrderID}, ids)

	ids, _ = s.ListReleasable(ctx, now.Add(-2*time.Hour), 10)
	assert.Empty(t, ids)
}

func TestOutbox(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	o, _ := seedOrder(t, s)
	e := notification.NewEvent(notification.EntityOrder, o.OrderID, notification.Subject{OrderID: o.OrderID}, 1, "", "pending", "x", time.Now().UTC())
	cs := &ledger.ChangeSet{}
	cs.Emit(e)
	require.NoError(t, s.Commit(ctx, cs))

	pending, err := s.ListPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, pending[0].MarkDelivered(time.Now().UTC()))
	require.NoError(t, s.UpdateEvent(ctx, pending[0]))
	pending, _ = s.ListPendingEvents(ctx, 10)
	assert.Empty(t, pending)

	assert.ErrorIs(t, s.UpdateEvent(ctx, notification.NewEvent("order", uuid.New(), notification.Subject{}, 1, "", "", "", time.Now().UTC())), apperr.ErrNotFound)
}

func TestListOrdersFilters(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	o1, _ := seedOrder(t, s)
	seedOrder(t, s)

	all, err := s.ListOrders(ctx, ledger.OrderFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, _ := s.ListOrders(ctx, ledger.OrderFilter{ParticipantID: &o1.SellerID}, 10, 0)
	require.Len(t, mine, 1)
	assert.Equal(t, o1.OrderID, mine[0].OrderID)

	paged, _ := s.ListOrders(ctx, ledger.OrderFilter{}, 1, 5)
	assert.Empty(t, paged)
}

func TestMarshalRoundTrip(t *testing.T) {
	s := NewStore()
	o, _ := seedOrder(t, s)
	data, err := s.Marshal()
	require.NoError(t, err)

	restored := NewStore()
	require.NoError(t, restored.Unmarshal(data))
	got, _ := restored.GetOrder(context.Background(), o.OrderID)
	require.NotNil(t, got)
	assert.Equal(t, o.FinalPrice, got.FinalPrice)
	acc, _ := restored.GetEscrowByOrder(context.Background(), o.OrderID)
	require.NotNil(t, acc)
}

func TestCommitHonoursCancelledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Commit(ctx, &ledger.ChangeSet{}), context.Canceled)
}

func TestStoreContract(t *testing.T) {
	ledgertest.Run(t, func(*testing.T) ledger.Store { return NewStore() })
}
