package fulfillment

import (
	"context"

	"github.com/google/uuid"

	"github.com/petmarket/escrow-hub/internal/apperr"
	"github.com/petmarket/escrow-hub/internal/domain/dispute"
	"github.com/petmarket/escrow-hub/internal/domain/escrow"
	"github.com/petmarket/escrow-hub/internal/domain/order"
	"github.com/petmarket/escrow-hub/internal/domain/user"
	"github.com/petmarket/escrow-hub/internal/ledger"
)

type OpenDisputeInput struct {
	OrderID      uuid.UUID    `json:"orderId"`
	Type         dispute.Type `json:"disputeType"`
	Reason       string       `json:"reason"`
	Description  string       `json:"description"`
	EvidenceURLs []string     `json:"evidenceUrls"`
}

// DisputeView is a dispute alongside the escrow it froze.
type DisputeView struct {
	Dispute *dispute.Dispute `json:"dispute"`
	Escrow  *escrow.Account  `json:"escrow"`
	Order   *order.Order     `json:"order"`
}

// OpenDispute files a dispute and freezes the escrow in the same commit.
func (s *Service) OpenDispute(ctx context.Context, actor user.Actor, in OpenDisputeInput) (*DisputeView, error) {
	var view *DisputeView
	err := s.transact(ctx, OpOpenDispute, actor, in.OrderID, false, func(ctx context.Context) (*ledger.ChangeSet, error) {
		o, acc, err := s.loadOrder(ctx, in.OrderID)
		if err != nil {
			return nil, err
		}
		if err := authorize(actor, OpOpenDispute, o, nil); err != nil {
			return nil, err
		}
		active, err := s.store.GetActiveDispute(ctx, o.OrderID)
		if err != nil {
			return nil, err
		}
		now := s.now()
		d, err := dispute.Open(dispute.Claim{
			OrderID:         o.OrderID,
			EscrowAccountID: acc.AccountID,
			InitiatorID:     actor.UserID,
			InitiatorRole:   partyOf(actor, o),
			Type:            in.Type,
			Reason:          in.Reason,
			Description:     in.Description,
			EvidenceURLs:    in.EvidenceURLs,
		}, acc.Status, active, now)
		if err != nil {
			return nil, err
		}
		old := acc.Status
		if err := acc.Freeze(d.DisputeID, now); err != nil {
			return nil, err
		}
		cs := &ledger.ChangeSet{}
		putDispute(cs, o, d, "", actor, now)
		putEscrow(cs, o, acc, old, actor, now)
		view = &DisputeView{Dispute: d, Escrow: acc, Order: o}
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// loadDispute reads a dispute with its order and escrow.
func (s *Service) loadDispute(ctx context.Context, disputeID uuid.UUID) (*DisputeView, error) {
	d, err := s.store.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, apperr.NotFound("dispute")
	}
	o, acc, err := s.loadOrder(ctx, d.OrderID)
	if err != nil {
		return nil, err
	}
	return &DisputeView{Dispute: d, Escrow: acc, Order: o}, nil
}

// BeginReview assigns the acting admin to the dispute.
func (s *Service) BeginReview(ctx context.Context, actor user.Actor, disputeID uuid.UUID) (*DisputeView, error) {
	var view *DisputeView
	err := s.transact(ctx, OpBeginReview, actor, s.orderOfDispute(ctx, disputeID), false, func(ctx context.Context) (*ledger.ChangeSet, error) {
		v, err := s.loadDispute(ctx, disputeID)
		if err != nil {
			return nil, err
		}
		if err := authorize(actor, OpBeginReview, v.Order, v.Dispute); err != nil {
			return nil, err
		}
		view = v
		now := s.now()
		old := v.Dispute.Status
		if err := v.Dispute.BeginReview(actor.UserID, now); err != nil {
			return nil, err
		}
		if v.Dispute.Status == old {
			return nil, nil
		}
		cs := &ledger.ChangeSet{}
		putDispute(cs, v.Order, v.Dispute, old, actor, now)
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

type ResolveInput struct {
	DisputeID      uuid.UUID              `json:"disputeId"`
	ResolutionType dispute.ResolutionType `json:"resolutionType"`
	Resolution     string                 `json:"resolution"`
	Amount         int64                  `json:"resolutionAmount"`
}

// ResolveDispute records the verdict and moves the frozen funds in one
// commit. Repeating an identical verdict returns the current state.
func (s *Service) ResolveDispute(ctx context.Context, actor user.Actor, in ResolveInput) (*DisputeView, error) {
	var view *DisputeView
	err := s.transact(ctx, OpResolveDispute, actor, s.orderOfDispute(ctx, in.DisputeID), false, func(ctx context.Context) (*ledger.ChangeSet, error) {
		v, err := s.loadDispute(ctx, in.DisputeID)
		if err != nil {
			return nil, err
		}
		if err := authorize(actor, OpResolveDispute, v.Order, v.Dispute); err != nil {
			return nil, err
		}
		view = v
		d, o, acc := v.Dispute, v.Order, v.Escrow
		now := s.now()
		oldDispute, oldEscrow, oldPayment := d.Status, acc.Status, o.PaymentStatus
		replay, err := d.Resolve(actor.UserID, dispute.Verdict{
			Type:   in.ResolutionType,
			Text:   in.Resolution,
			Amount: in.Amount,
		}, o.TotalPrice, now)
		if err != nil {
			return nil, err
		}
		if replay {
			return nil, nil
		}

		res := d.EscrowResolution()
		switch {
		case res == nil:
			err = acc.Unfreeze(now)
		case res.Outcome == escrow.OutcomeRelease:
			err = acc.Release(escrow.TriggerDisputeResolution, res, now)
		default:
			if err = acc.Refund(escrow.TriggerDisputeResolution, res, s.fees, now); err == nil {
				o.MarkRefunded(res.Outcome == escrow.OutcomePartialRefund, now)
			}
		}
		if err != nil {
			return nil, err
		}

		cs := &ledger.ChangeSet{}
		putDispute(cs, o, d, oldDispute, actor, now)
		putEscrow(cs, o, acc, oldEscrow, actor, now)
		if o.PaymentStatus != oldPayment {
			putOrder(cs, o, o.Status, actor, now)
		}
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// CancelDispute withdraws an active dispute and unfreezes the escrow.
func (s *Service) CancelDispute(ctx context.Context, actor user.Actor, disputeID uuid.UUID) (*DisputeView, error) {
	var view *DisputeView
	err := s.transact(ctx, OpCancelDispute, actor, s.orderOfDispute(ctx, disputeID), false, func(ctx context.Context) (*ledger.ChangeSet, error) {
		v, err := s.loadDispute(ctx, disputeID)
		if err != nil {
			return nil, err
		}
		if err := authorize(actor, OpCancelDispute, v.Order, v.Dispute); err != nil {
			return nil, err
		}
		view = v
		now := s.now()
		oldDispute, oldEscrow := v.Dispute.Status, v.Escrow.Status
		if err := v.Dispute.Cancel(now); err != nil {
			return nil, err
		}
		if err := v.Escrow.Unfreeze(now); err != nil {
			return nil, err
		}
		cs := &ledger.ChangeSet{}
		putDispute(cs, v.Order, v.Dispute, oldDispute, actor, now)
		putEscrow(cs, v.Order, v.Escrow, oldEscrow, actor, now)
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// CloseDispute archives a resolved dispute.
func (s *Service) CloseDispute(ctx context.Context, actor user.Actor, disputeID uuid.UUID) (*DisputeView, error) {
	var view *DisputeView
	err := s.transact(ctx, OpCloseDispute, actor, s.orderOfDispute(ctx, disputeID), false, func(ctx context.Context) (*ledger.ChangeSet, error) {
		v, err := s.loadDispute(ctx, disputeID)
		if err != nil {
			return nil, err
		}
		if err := authorize(actor, OpCloseDispute, v.Order, v.Dispute); err != nil {
			return nil, err
		}
		view = v
		now := s.now()
		old := v.Dispute.Status
		if err := v.Dispute.Close(now); err != nil {
			return nil, err
		}
		cs := &ledger.ChangeSet{}
		putDispute(cs, v.Order, v.Dispute, old, actor, now)
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// GetDispute returns a dispute visible to its parties and admins.
func (s *Service) GetDispute(ctx context.Context, actor user.Actor, disputeID uuid.UUID) (*DisputeView, error) {
	v, err := s.loadDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, OpViewDispute, v.Order, v.Dispute); err != nil {
		return nil, err
	}
	return v, nil
}

type MessageInput struct {
	DisputeID   uuid.UUID `json:"disputeId"`
	Body        string    `json:"message"`
	Attachments []string  `json:"attachments"`
}

// PostMessage appends to the dispute thread.
func (s *Service) PostMessage(ctx context.Context, actor user.Actor, in MessageInput) (*dispute.Message, error) {
	var posted *dispute.Message
	err := s.transact(ctx, OpPostDisputeMessage, actor, s.orderOfDispute(ctx, in.DisputeID), false, func(ctx context.Context) (*ledger.ChangeSet, error) {
		v, err := s.loadDispute(ctx, in.DisputeID)
		if err != nil {
			return nil, err
		}
		if err := authorize(actor, OpPostDisputeMessage, v.Order, v.Dispute); err != nil {
			return nil, err
		}
		now := s.now()
		m, err := v.Dispute.NewMessage(actor.UserID, partyOf(actor, v.Order), in.Body, in.Attachments, now)
		if err != nil {
			return nil, err
		}
		cs := &ledger.ChangeSet{}
		addMessage(cs, v.Order, m, actor, now)
		posted = m
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return posted, nil
}

// ListMessages returns the dispute thread oldest first.
func (s *Service) ListMessages(ctx context.Context, actor user.Actor, disputeID uuid.UUID) ([]*dispute.Message, error) {
	v, err := s.loadDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, OpViewDispute, v.Order, v.Dispute); err != nil {
		return nil, err
	}
	return s.store.ListDisputeMessages(ctx, disputeID)
}
