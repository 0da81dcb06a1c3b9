package fulfillment

import (
	"time"

	"github.com/petmarket/escrow-hub/internal/domain/dispute"
	"github.com/petmarket/escrow-hub/internal/domain/escrow"
	"github.com/petmarket/escrow-hub/internal/domain/notification"
	"github.com/petmarket/escrow-hub/internal/domain/order"
	"github.com/petmarket/escrow-hub/internal/domain/review"
	"github.com/petmarket/escrow-hub/internal/domain/user"
	"github.com/petmarket/escrow-hub/internal/ledger"
)

// The put helpers stage a write and its change event. Events carry the
// post-commit version so consumers can discard stale or replayed deliveries.

func putOrder(cs *ledger.ChangeSet, o *order.Order, old order.Status, actor user.Actor, now time.Time) {
	cs.PutOrder(o)
	cs.Emit(notification.NewEvent(notification.EntityOrder, o.OrderID, subjectOf(o),
		o.Version, string(old), string(o.Status), actor.String(), now))
}

func putEscrow(cs *ledger.ChangeSet, o *order.Order, a *escrow.Account, old escrow.Status, actor user.Actor, now time.Time) {
	cs.PutEscrow(a)
	cs.Emit(notification.NewEvent(notification.EntityEscrow, a.AccountID, subjectOf(o),
		a.Version, string(old), string(a.Status), actor.String(), now))
}

func putDispute(cs *ledger.ChangeSet, o *order.Order, d *dispute.Dispute, old dispute.Status, actor user.Actor, now time.Time) {
	cs.PutDispute(d)
	cs.Emit(notification.NewEvent(notification.EntityDispute, d.DisputeID, subjectOf(o),
		d.Version, string(old), string(d.Status), actor.String(), now))
}

const (
	reviewPublished = "published"
	reviewResponded = "responded"
)

func putReview(cs *ledger.ChangeSet, o *order.Order, r *review.Review, old, status string, actor user.Actor, now time.Time) {
	cs.PutReview(r)
	cs.Emit(notification.NewEvent(notification.EntityReview, r.ReviewID, subjectOf(o),
		r.Version, old, status, actor.String(), now))
}

func addMessage(cs *ledger.ChangeSet, o *order.Order, m *dispute.Message, actor user.Actor, now time.Time) {
	cs.AddMessage(m)
	cs.Emit(notification.NewEvent(notification.EntityDisputeMessage, m.MessageID, subjectOf(o),
		1, "", "posted", actor.String(), now))
}
