package fulfillment

import (
	"github.com/petmarket/escrow-hub/internal/apperr"
	"github.com/petmarket/escrow-hub/internal/domain/dispute"
	"github.com/petmarket/escrow-hub/internal/domain/order"
	"github.com/petmarket/escrow-hub/internal/domain/user"
)

// Operation names a coordinator entry point for authorization and tracing.
type Operation string

const (
	OpCreateProduct      Operation = "create_product"
	OpCreateOrder        Operation = "create_order"
	OpCapturePayment     Operation = "capture_payment"
	OpAdvanceOrder       Operation = "advance_order"
	OpRecordTracking     Operation = "record_tracking"
	OpCancelOrder        Operation = "cancel_order"
	OpConfirmReceipt     Operation = "confirm_receipt"
	OpReleaseEscrow      Operation = "release_escrow"
	OpAutoRelease        Operation = "auto_release"
	OpViewOrder          Operation = "view_order"
	OpOpenDispute        Operation = "open_dispute"
	OpBeginReview        Operation = "begin_review"
	OpResolveDispute     Operation = "resolve_dispute"
	OpCancelDispute      Operation = "cancel_dispute"
	OpCloseDispute       Operation = "close_dispute"
	OpPostDisputeMessage Operation = "post_dispute_message"
	OpViewDispute        Operation = "view_dispute"
	OpCreateReview       Operation = "create_review"
	OpRespondToReview    Operation = "respond_to_review"
	OpListIncidents      Operation = "list_incidents"
)

type relation uint8

const (
	relMember relation = 1 << iota
	relBuyer
	relSeller
	relInitiator
	relAdmin
	relSystem
)

// policy lists the relations that may perform each operation.
var policy = map[Operation]relation{
	OpCreateProduct:      relMember | relAdmin,
	OpCreateOrder:        relMember | relAdmin,
	OpCapturePayment:     relSystem,
	OpAdvanceOrder:       relSeller,
	OpRecordTracking:     relSeller,
	OpCancelOrder:        relBuyer | relSeller | relAdmin | relSystem,
	OpConfirmReceipt:     relBuyer,
	OpReleaseEscrow:      relAdmin | relSystem,
	OpAutoRelease:        relSystem,
	OpViewOrder:          relBuyer | relSeller | relAdmin | relSystem,
	OpOpenDispute:        relBuyer | relSeller,
	OpBeginReview:        relAdmin,
	OpResolveDispute:     relAdmin,
	OpCancelDispute:      relInitiator | relAdmin,
	OpCloseDispute:       relAdmin,
	OpPostDisputeMessage: relBuyer | relSeller | relAdmin,
	OpViewDispute:        relBuyer | relSeller | relAdmin,
	OpCreateReview:       relBuyer,
	OpRespondToReview:    relSeller,
	OpListIncidents:      relAdmin,
}

func relationsOf(actor user.Actor, o *order.Order, d *dispute.Dispute) relation {
	var r relation
	switch actor.Role {
	case user.RoleAdmin:
		r |= relAdmin
	case user.RoleSystem:
		r |= relSystem
	case user.RoleMember:
		r |= relMember
	}
	if actor.IsSystem() {
		return r
	}
	if o != nil {
		if o.BuyerID == actor.UserID {
			r |= relBuyer
		}
		if o.SellerID == actor.UserID {
			r |= relSeller
		}
	}
	if d != nil && d.InitiatorID == actor.UserID {
		r |= relInitiator
	}
	return r
}

// authorize checks the actor's relation to the order and dispute against
// the policy for op.
func authorize(actor user.Actor, op Operation, o *order.Order, d *dispute.Dispute) error {
	allowed, ok := policy[op]
	if !ok || relationsOf(actor, o, d)&allowed == 0 {
		return apperr.WithMetadata(apperr.CodeForbidden, "actor is not permitted to "+string(op), map[string]string{
			"operation": string(op),
			"actor":     actor.String(),
		})
	}
	return nil
}

// partyOf maps the actor to its side of the order for dispute records.
func partyOf(actor user.Actor, o *order.Order) dispute.Party {
	switch {
	case o.BuyerID == actor.UserID:
		return dispute.PartyBuyer
	case o.SellerID == actor.UserID:
		return dispute.PartySeller
	case actor.IsAdmin():
		return dispute.PartyAdmin
	}
	return ""
}
