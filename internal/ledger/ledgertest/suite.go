// Package ledgertest holds behaviour checks shared by every ledger.Store
// driver. Drivers call Run from their own tests with a constructor that
// returns an empty store.
package ledgertest

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
	"github.com/petmarket/escrow-hub/internal/domain/incident"
	"github.com/petmarket/escrow-hub/internal/domain/notification"
	"github.com/petmarket/escrow-hub/internal/domain/order"
	"github.com/petmarket/escrow-hub/internal/domain/product"
	"github.com/petmarket/escrow-hub/internal/domain/review"
	"github.com/petmarket/escrow-hub/internal/ledger"
)

// Run executes the shared checks against stores produced by open.
func Run(t *testing.T, open func(t *testing.T) ledger.Store) {
	cases := map[string]func(t *testing.T, s ledger.Store){
		"insert and read":            insertAndRead,
		"stale version conflicts":    staleVersionConflicts,
		"all or nothing":             allOrNothing,
		"duplicate insert conflicts": duplicateInsertConflicts,
		"stock cannot go negative":   stockCannotGoNegative,
		"one active dispute":         oneActiveDispute,
		"duplicate review":           duplicateReview,
		"message thread":             messageThread,
		"releasable orders":          releasableOrders,
		"order filters":              orderFilters,
		"outbox":                     outbox,
		"incidents":                  incidents,
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Seed commits a product, an order for it and the order's empty escrow account.
func Seed(t *testing.T, s ledger.Store) (*order.Order, *escrow.Account) {
	t.Helper()
	ts := now()
	p, err := product.New(uuid.New(), "Corgi puppy", 1000, 5, ts)
	require.NoError(t, err)
	o, err := order.New(order.Draft{
		BuyerID:       uuid.New(),
		SellerID:      p.SellerID,
		ProductID:     p.ProductID,
		Quantity:      1,
		UnitPrice:     p.UnitPrice,
		PaymentMethod: order.PaymentCard,
		Shipping:      order.Shipping{Name: "An", Phone: "0900000000", Address: "1 Main St"},
	}, ts)
	require.NoError(t, err)
	require.NoError(t, p.Reserve(1, ts))
	a := escrow.NewAccount(o.OrderID, o.TotalPrice, ts)

	cs := &ledger.ChangeSet{}
	cs.PutProduct(p)
	cs.PutOrder(o)
	cs.PutEscrow(a)
	require.NoError(t, s.Commit(context.Background(), cs))
	return o, a
}

func insertAndRead(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	o, a := Seed(t, s)

	got, err := s.GetOrder(ctx, o.OrderID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, o.TotalPrice, got.TotalPrice)
	assert.Equal(t, o.Shipping, got.Shipping)
	assert.Equal(t, order.StatusPending, got.Status)
	assert.Nil(t, got.CancelledBy)
	assert.True(t, o.CreatedAt.Equal(got.CreatedAt))

	p, err := s.GetProduct(ctx, o.ProductID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 4, p.Stock)

	acc, err := s.GetEscrowByOrder(ctx, o.OrderID)
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, a.AccountID, acc.AccountID)
	assert.Equal(t, escrow.StatusNone, acc.Status)

	missing, err := s.GetOrder(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
	none, err := s.GetDispute(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, none)
	noReview, err := s.GetReviewByOrder(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Nil(t, noReview)
}

func staleVersionConflicts(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	o, _ := Seed(t, s)

	first, _ := s.GetOrder(ctx, o.OrderID)
	second, _ := s.GetOrder(ctx, o.OrderID)

	require.NoError(t, first.Advance(order.StatusConfirmed, "", "", "", now()))
	cs := &ledger.ChangeSet{}
	cs.PutOrder(first)
	require.NoError(t, s.Commit(ctx, cs))

	require.NoError(t, second.Cancel(second.BuyerID, "changed my mind", now()))
	cs = &ledger.ChangeSet{}
	cs.PutOrder(second)
	assert.ErrorIs(t, s.Commit(ctx, cs), apperr.ErrConflict)

	got, _ := s.GetOrder(ctx, o.OrderID)
	assert.Equal(t, order.StatusConfirmed, got.Status)
	assert.Equal(t, int64(2), got.Version)
	require.NotNil(t, got.ConfirmedAt)
}

func allOrNothing(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	o, _ := Seed(t, s)

	cur, _ := s.GetOrder(ctx, o.OrderID)
	require.NoError(t, cur.Advance(order.StatusConfirmed, "", "", "", now()))
	stale, _ := s.GetEscrowByOrder(ctx, o.OrderID)
	stale.Version = 7

	cs := &ledger.ChangeSet{}
	cs.PutOrder(cur)
	cs.PutEscrow(stale)
	cs.Emit(notification.NewEvent(notification.EntityOrder, o.OrderID, notification.Subject{OrderID: o.OrderID},
		cur.Version, "pending", "confirmed", "user:x", now()))
	assert.ErrorIs(t, s.Commit(ctx, cs), apperr.ErrConflict)

	got, _ := s.GetOrder(ctx, o.OrderID)
	assert.Equal(t, order.StatusPending, got.Status)
	events, err := s.ListPendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func duplicateInsertConflicts(t *testing.T, s ledger.Store) {
	o, _ := Seed(t, s)
	dup := o.Clone()
	dup.Version = 0
	cs := &ledger.ChangeSet{}
	cs.PutOrder(dup)
	assert.ErrorIs(t, s.Commit(context.Background(), cs), apperr.ErrConflict)
}

func stockCannotGoNegative(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	o, _ := Seed(t, s)
	p, _ := s.GetProduct(ctx, o.ProductID)
	p.Stock = -1
	cs := &ledger.ChangeSet{}
	cs.PutProduct(p)
	assert.ErrorIs(t, s.Commit(ctx, cs), apperr.ErrInsufficientStock)
}

func escrowed(t *testing.T, s ledger.Store) (*order.Order, *escrow.Account) {
	t.Helper()
	ctx := context.Background()
	o, _ := Seed(t, s)
	cur, _ := s.GetOrder(ctx, o.OrderID)
	acc, _ := s.GetEscrowByOrder(ctx, o.OrderID)
	require.NoError(t, acc.Capture(acc.TotalPrice, "pay-1", escrow.FlatFee(0), now()))
	cur.MarkPaid(now())
	cs := &ledger.ChangeSet{}
	cs.PutOrder(cur)
	cs.PutEscrow(acc)
	require.NoError(t, s.Commit(ctx, cs))
	return cur, acc
}

func oneActiveDispute(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	o, a := escrowed(t, s)
	claim := dispute.Claim{
		OrderID:         o.OrderID,
		EscrowAccountID: a.AccountID,
		InitiatorID:     o.BuyerID,
		InitiatorRole:   dispute.PartyBuyer,
		Type:            dispute.TypeDamaged,
		Reason:          "crate arrived broken",
		EvidenceURLs:    []string{"https://img.example/1.jpg"},
	}

	d1, err := dispute.Open(claim, escrow.StatusEscrowed, nil, now())
	require.NoError(t, err)
	cs := &ledger.ChangeSet{}
	cs.PutDispute(d1)
	require.NoError(t, s.Commit(ctx, cs))

	d2, err := dispute.Open(claim, escrow.StatusEscrowed, nil, now())
	require.NoError(t, err)
	cs = &ledger.ChangeSet{}
	cs.PutDispute(d2)
	assert.ErrorIs(t, s.Commit(ctx, cs), apperr.ErrConflict)

	// cancelling the first in the same commit frees the slot
	cur, _ := s.GetDispute(ctx, d1.DisputeID)
	require.NoError(t, cur.Cancel(now()))
	cs = &ledger.ChangeSet{}
	cs.PutDispute(cur)
	cs.PutDispute(d2)
	require.NoError(t, s.Commit(ctx, cs))

	active, err := s.GetActiveDispute(ctx, o.OrderID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, d2.DisputeID, active.DisputeID)
	assert.Equal(t, []string{"https://img.example/1.jpg"}, active.EvidenceURLs)

	all, err := s.ListDisputes(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func duplicateReview(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	o, _ := Seed(t, s)
	o.Status = order.StatusDelivered

	r1, err := review.Create(o, nil, 5, "healthy and happy", []string{"a.jpg"}, now())
	require.NoError(t, err)
	cs := &ledger.ChangeSet{}
	cs.PutReview(r1)
	require.NoError(t, s.Commit(ctx, cs))

	r2, err := review.Create(o, nil, 3, "", nil, now())
	require.NoError(t, err)
	cs = &ledger.ChangeSet{}
	cs.PutReview(r2)
	assert.ErrorIs(t, s.Commit(ctx, cs), apperr.ErrDuplicateReview)

	got, err := s.GetReviewByOrder(ctx, o.OrderID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, r1.ReviewID, got.ReviewID)
	assert.Equal(t, 5, got.Rating)

	byID, err := s.GetReview(ctx, r1.ReviewID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, []string{"a.jpg"}, byID.Images)
}

func messageThread(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	o, a := escrowed(t, s)
	d, err := dispute.Open(dispute.Claim{
		OrderID: o.OrderID, EscrowAccountID: a.AccountID, InitiatorID: o.SellerID,
		InitiatorRole: dispute.PartySeller, Type: dispute.TypeBuyerUnresponsive, Reason: "no answer",
	}, escrow.StatusEscrowed, nil, now())
	require.NoError(t, err)

	cs := &ledger.ChangeSet{}
	cs.PutDispute(d)
	for _, body := range []string{"first", "second", "third"} {
		m, err := d.NewMessage(o.SellerID, dispute.PartySeller, body, nil, now())
		require.NoError(t, err)
		cs.AddMessage(m)
	}
	require.NoError(t, s.Commit(ctx, cs))

	msgs, err := s.ListDisputeMessages(ctx, d.DisputeID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Body)
	assert.Equal(t, "third", msgs[2].Body)

	orphan := &ledger.ChangeSet{}
	orphan.AddMessage(&dispute.Message{MessageID: uuid.New(), DisputeID: uuid.New(), SenderID: o.BuyerID,
		SenderRole: dispute.PartyBuyer, Body: "hello", CreatedAt: now()})
	assert.ErrorIs(t, s.Commit(ctx, orphan), apperr.ErrNotFound)
}

func releasableOrders(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	ts := now()

	o, _ := escrowed(t, s)
	cur, _ := s.GetOrder(ctx, o.OrderID)
	for _, st := range []order.Status{order.StatusConfirmed, order.StatusProcessing, order.StatusShipped, order.StatusDelivered} {
		require.NoError(t, cur.Advance(st, "VN1", "", "", ts.Add(-time.Hour)))
	}
	cs := &ledger.ChangeSet{}
	cs.PutOrder(cur)
	require.NoError(t, s.Commit(ctx, cs))

	Seed(t, s)

	ids, err := s.ListReleasable(ctx, ts, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{o.OrderID}, ids)

	ids, err = s.ListReleasable(ctx, ts.Add(-2*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func orderFilters(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	o1, _ := Seed(t, s)
	o2, _ := Seed(t, s)

	all, err := s.ListOrders(ctx, ledger.OrderFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := s.ListOrders(ctx, ledger.OrderFilter{ParticipantID: &o1.SellerID}, 10, 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, o1.OrderID, mine[0].OrderID)

	bought, err := s.ListOrders(ctx, ledger.OrderFilter{BuyerID: &o2.BuyerID}, 10, 0)
	require.NoError(t, err)
	require.Len(t, bought, 1)
	assert.Equal(t, o2.OrderID, bought[0].OrderID)

	cancelled := order.StatusCancelled
	none, err := s.ListOrders(ctx, ledger.OrderFilter{Status: &cancelled}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	paged, err := s.ListOrders(ctx, ledger.OrderFilter{}, 1, 5)
	require.NoError(t, err)
	assert.Empty(t, paged)
}

func outbox(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	o, _ := Seed(t, s)
	subject := notification.Subject{OrderID: o.OrderID, BuyerID: o.BuyerID, SellerID: o.SellerID}

	cs := &ledger.ChangeSet{}
	first := notification.NewEvent(notification.EntityOrder, o.OrderID, subject, 1, "", "pending", "user:b", now())
	second := notification.NewEvent(notification.EntityOrder, o.OrderID, subject, 2, "pending", "confirmed", "user:s", now())
	cs.Emit(first)
	cs.Emit(second)
	require.NoError(t, s.Commit(ctx, cs))

	pending, err := s.ListPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.EventID, pending[0].EventID)
	assert.Equal(t, o.BuyerID, pending[0].BuyerID)
	assert.Equal(t, notification.StatusPending, pending[0].Status)

	require.NoError(t, pending[0].MarkFailed("sink down"))
	require.NoError(t, s.UpdateEvent(ctx, pending[0]))
	require.NoError(t, pending[1].MarkDelivered(now()))
	require.NoError(t, s.UpdateEvent(ctx, pending[1]))

	pending, err = s.ListPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, notification.StatusFailed, pending[0].Status)
	assert.Equal(t, 1, pending[0].Attempts)
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "sink down", *pending[0].LastError)

	unknown := notification.NewEvent(notification.EntityOrder, uuid.New(), notification.Subject{}, 1, "", "pending", "user:x", now())
	assert.ErrorIs(t, s.UpdateEvent(ctx, unknown), apperr.ErrNotFound)
}

func incidents(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	orderID := uuid.New()
	older := incident.New(string(apperr.CodeLedgerIntegrity), orderID, "release_escrow", "system:1", "split mismatch",
		map[string]string{"status": "escrowed"}, now().Add(-time.Minute))
	newer := incident.New(string(apperr.CodeLedgerIntegrity), orderID, "capture_payment", "system:1", "fee exceeds total",
		nil, now())
	newer.Signature = []byte{1, 2, 3}

	for _, in := range []*incident.Incident{older, newer} {
		cs := &ledger.ChangeSet{}
		cs.Record(in)
		require.NoError(t, s.Commit(ctx, cs))
	}

	got, err := s.ListIncidents(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.IncidentID, got[0].IncidentID)
	assert.Equal(t, []byte{1, 2, 3}, got[0].Signature)
	assert.Equal(t, "escrowed", got[1].Detail["status"])

	page, err := s.ListIncidents(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, older.IncidentID, page[0].IncidentID)
}
