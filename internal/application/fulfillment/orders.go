package fulfillment

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/petmarket/escrow-hub/internal/apperr"
	"github.com/petmarket/escrow-hub/internal/domain/escrow"
	"github.com/petmarket/escrow-hub/internal/domain/order"
	"github.com/petmarket/escrow-hub/internal/domain/product"
	"github.com/petmarket/escrow-hub/internal/domain/user"
	"github.com/petmarket/escrow-hub/internal/ledger"
)

type CreateProductInput struct {
	Name      string `json:"name"`
	UnitPrice int64  `json:"unitPrice"`
	Stock     int    `json:"stock"`
}

// CreateProduct lists a new product owned by the actor.
func (s *Service) CreateProduct(ctx context.Context, actor user.Actor, in CreateProductInput) (*product.Product, error) {
	if err := authorize(actor, OpCreateProduct, nil, nil); err != nil {
		return nil, err
	}
	var created *product.Product
	err := s.transact(ctx, OpCreateProduct, actor, uuid.Nil, false, func(ctx context.Context) (*ledger.ChangeSet, error) {
		p, err := product.New(actor.UserID, in.Name, in.UnitPrice, in.Stock, s.now())
		if err != nil {
			return nil, err
		}
		cs := &ledger.ChangeSet{}
		cs.PutProduct(p)
		created = p
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

type CreateOrderInput struct {
	ProductID     uuid.UUID           `json:"productId"`
	Quantity      int                 `json:"quantity"`
	ShippingFee   int64               `json:"shippingFee"`
	PaymentMethod order.PaymentMethod `json:"paymentMethod"`
	Shipping      order.Shipping      `json:"shipping"`
	Note          string              `json:"note"`
}

// CreateOrder prices the order from the listing, reserves stock and opens
// an empty escrow account in one commit.
func (s *Service) CreateOrder(ctx context.Context, actor user.Actor, in CreateOrderInput) (*OrderView, error) {
	if err := authorize(actor, OpCreateOrder, nil, nil); err != nil {
		return nil, err
	}
	var view *OrderView
	err := s.transact(ctx, OpCreateOrder, actor, uuid.Nil, false, func(ctx context.Context) (*ledger.ChangeSet, error) {
		p, err := s.store.GetProduct(ctx, in.ProductID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, apperr.NotFound("product")
		}
		now := s.now()
		o, err := order.New(order.Draft{
			BuyerID:       actor.UserID,
			SellerID:      p.SellerID,
			ProductID:     p.ProductID,
			Quantity:      in.Quantity,
			UnitPrice:     p.UnitPrice,
			ShippingFee:   in.ShippingFee,
			PaymentMethod: in.PaymentMethod,
			Shipping:      in.Shipping,
			Note:          in.Note,
		}, now)
		if err != nil {
			return nil, err
		}
		if err := p.Reserve(in.Quantity, now); err != nil {
			return nil, err
		}
		acc := escrow.NewAccount(o.OrderID, o.TotalPrice, now)

		cs := &ledger.ChangeSet{}
		cs.PutProduct(p)
		putOrder(cs, o, "", actor, now)
		cs.PutEscrow(acc)
		view = &OrderView{Order: o, Escrow: acc}
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

type CaptureInput struct {
	OrderID   uuid.UUID `json:"orderId"`
	Amount    int64     `json:"amount"`
	Reference string    `json:"reference"`
}

// CapturePayment moves a captured payment into escrow. Replaying the same
// capture signal is a no-op.
func (s *Service) CapturePayment(ctx context.Context, actor user.Actor, in CaptureInput) (*OrderView, error) {
	if err := authorize(actor, OpCapturePayment, nil, nil); err != nil {
		return nil, err
	}
	var view *OrderView
	err := s.transact(ctx, OpCapturePayment, actor, in.OrderID, false, func(ctx context.Context) (*ledger.ChangeSet, error) {
		o, acc, err := s.loadOrder(ctx, in.OrderID)
		if err != nil {
			return nil, err
		}
		view = &OrderView{Order: o, Escrow: acc}
		if acc.IsCaptureReplay(in.Amount, in.Reference) {
			return nil, nil
		}
		if o.Status == order.StatusCancelled {
			return nil, apperr.InvalidTransition("order", string(o.Status), "payment_captured")
		}
		now := s.now()
		old := acc.Status
		if err := acc.Capture(in.Amount, in.Reference, s.fees, now); err != nil {
			return nil, err
		}
		o.MarkPaid(now)

		cs := &ledger.ChangeSet{}
		putOrder(cs, o, o.Status, actor, now)
		putEscrow(cs, o, acc, old, actor, now)
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

type AdvanceInput struct {
	OrderID         uuid.UUID    `json:"orderId"`
	Status          order.Status `json:"status"`
	TrackingNumber  string       `json:"trackingNumber"`
	Carrier         string       `json:"carrier"`
	Note            string       `json:"note"`
	ExpectedVersion int64        `json:"expectedVersion"`
}

// AdvanceOrder moves the order one step along its fulfillment path.
// Reaching delivered schedules the automatic escrow release.
func (s *Service) AdvanceOrder(ctx context.Context, actor user.Actor, in AdvanceInput) (*OrderView, error) {
	var view *OrderView
	err := s.transact(ctx, OpAdvanceOrder, actor, in.OrderID, in.ExpectedVersion != 0, func(ctx context.Context) (*ledger.ChangeSet, error) {
		o, acc, err := s.loadOrder(ctx, in.OrderID)
		if err != nil {
			return nil, err
		}
		if err := authorize(actor, OpAdvanceOrder, o, nil); err != nil {
			return nil, err
		}
		if err := checkPinned("order", o.OrderID, in.ExpectedVersion, o.Version); err != nil {
			return nil, err
		}
		now := s.now()
		old := o.Status
		if err := o.Advance(in.Status, in.TrackingNumber, in.Carrier, in.Note, now); err != nil {
			return nil, err
		}
		cs := &ledger.ChangeSet{}
		putOrder(cs, o, old, actor, now)
		view = &OrderView{Order: o, Escrow: acc}
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	if view.Order.Status == order.StatusDelivered {
		s.scheduleRelease(ctx, view.Order)
	}
	return view, nil
}

func (s *Service) scheduleRelease(ctx context.Context, o *order.Order) {
	if s.scheduler == nil || o.DeliveredAt == nil {
		return
	}
	releaseAt := o.DeliveredAt.Add(s.cfg.ReleaseCooldown)
	if err := s.scheduler.ScheduleRelease(ctx, o.OrderID, releaseAt); err != nil {
		s.logger.Warn().Err(err).
			Str("order_id", o.OrderID.String()).
			Time("release_at", releaseAt).
			Msg("failed to schedule escrow release, sweep will pick it up")
	}
}

type TrackingInput struct {
	OrderID         uuid.UUID `json:"orderId"`
	TrackingNumber  string    `json:"trackingNumber"`
	Carrier         string    `json:"carrier"`
	ExpectedVersion int64     `json:"expectedVersion"`
}

// RecordTracking stores the carrier tracking number before shipment.
func (s *Service) RecordTracking(ctx context.Context, actor user.Actor, in TrackingInput) (*order.Order, error) {
	var updated *order.Order
	err := s.transact(ctx, OpRecordTracking, actor, in.OrderID, in.ExpectedVersion != 0, func(ctx context.Context) (*ledger.ChangeSet, error) {
		o, err := s.store.GetOrder(ctx, in.OrderID)
		if err != nil {
			return nil, err
		}
		if o == nil {
			return nil, apperr.NotFound("order")
		}
		if err := authorize(actor, OpRecordTracking, o, nil); err != nil {
			return nil, err
		}
		if err := checkPinned("order", o.OrderID, in.ExpectedVersion, o.Version); err != nil {
			return nil, err
		}
		now := s.now()
		if err := o.RecordTracking(in.TrackingNumber, in.Carrier, now); err != nil {
			return nil, err
		}
		cs := &ledger.ChangeSet{}
		putOrder(cs, o, o.Status, actor, now)
		updated = o
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

type CancelInput struct {
	OrderID         uuid.UUID `json:"orderId"`
	Reason          string    `json:"reason"`
	ExpectedVersion int64     `json:"expectedVersion"`
}

// CancelOrder cancels a pre-shipped order. Any active dispute is withdrawn
// and held funds are refunded in full within the same commit.
func (s *Service) CancelOrder(ctx context.Context, actor user.Actor, in CancelInput) (*OrderView, error) {
	var view *OrderView
	err := s.transact(ctx, OpCancelOrder, actor, in.OrderID, in.ExpectedVersion != 0, func(ctx context.Context) (*ledger.ChangeSet, error) {
		o, acc, err := s.loadOrder(ctx, in.OrderID)
		if err != nil {
			return nil, err
		}
		if err := authorize(actor, OpCancelOrder, o, nil); err != nil {
			return nil, err
		}
		if err := checkPinned("order", o.OrderID, in.ExpectedVersion, o.Version); err != nil {
			return nil, err
		}
		active, err := s.store.GetActiveDispute(ctx, o.OrderID)
		if err != nil {
			return nil, err
		}

		now := s.now()
		oldOrder, oldEscrow := o.Status, acc.Status
		if err := o.Cancel(actor.UserID, in.Reason, now); err != nil {
			return nil, err
		}
		cs := &ledger.ChangeSet{}
		if active != nil {
			oldDispute := active.Status
			if err := active.Cancel(now); err != nil {
				return nil, err
			}
			if err := acc.Unfreeze(now); err != nil {
				return nil, err
			}
			putDispute(cs, o, active, oldDispute, actor, now)
		}
		if acc.Status == escrow.StatusEscrowed {
			if err := acc.Refund(escrow.TriggerOrderCancelled, nil, s.fees, now); err != nil {
				return nil, err
			}
			o.MarkRefunded(false, now)
		}
		putOrder(cs, o, oldOrder, actor, now)
		if acc.Status != oldEscrow {
			putEscrow(cs, o, acc, oldEscrow, actor, now)
		}
		view = &OrderView{Order: o, Escrow: acc}
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// ConfirmReceipt releases escrow to the seller once the buyer accepts a
// delivered order.
func (s *Service) ConfirmReceipt(ctx context.Context, actor user.Actor, orderID uuid.UUID) (*OrderView, error) {
	var view *OrderView
	err := s.transact(ctx, OpConfirmReceipt, actor, orderID, false, func(ctx context.Context) (*ledger.ChangeSet, error) {
		o, acc, err := s.loadOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if err := authorize(actor, OpConfirmReceipt, o, nil); err != nil {
			return nil, err
		}
		if o.Status != order.StatusDelivered {
			return nil, apperr.WithMetadata(apperr.CodeOrderNotDelivered, "order has not been delivered", map[string]string{
				"orderId": o.OrderID.String(),
				"status":  string(o.Status),
			})
		}
		view = &OrderView{Order: o, Escrow: acc}
		if acc.Status == escrow.StatusReleased && acc.ReleaseTrigger == escrow.TriggerBuyerConfirmed {
			return nil, nil
		}
		now := s.now()
		old := acc.Status
		if err := acc.Release(escrow.TriggerBuyerConfirmed, nil, now); err != nil {
			return nil, err
		}
		cs := &ledger.ChangeSet{}
		putEscrow(cs, o, acc, old, actor, now)
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// ReleaseEscrow is the admin override that pays the seller outside the
// normal confirmation path. A frozen account still blocks it.
func (s *Service) ReleaseEscrow(ctx context.Context, actor user.Actor, orderID uuid.UUID) (*OrderView, error) {
	var view *OrderView
	err := s.transact(ctx, OpReleaseEscrow, actor, orderID, false, func(ctx context.Context) (*ledger.ChangeSet, error) {
		o, acc, err := s.loadOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if err := authorize(actor, OpReleaseEscrow, o, nil); err != nil {
			return nil, err
		}
		now := s.now()
		old := acc.Status
		if err := acc.Release(escrow.TriggerAdmin, nil, now); err != nil {
			return nil, err
		}
		cs := &ledger.ChangeSet{}
		putEscrow(cs, o, acc, old, actor, now)
		view = &OrderView{Order: o, Escrow: acc}
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// ReleaseIfDue releases escrow for a delivered order whose cooldown has
// elapsed. It reports false without error when there is nothing to do, and
// fails with DISPUTE_BLOCKING while a dispute holds the funds.
func (s *Service) ReleaseIfDue(ctx context.Context, orderID uuid.UUID) (bool, error) {
	actor := user.System()
	released := false
	err := s.transact(ctx, OpAutoRelease, actor, orderID, false, func(ctx context.Context) (*ledger.ChangeSet, error) {
		released = false
		o, acc, err := s.loadOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if o.Status != order.StatusDelivered || o.DeliveredAt == nil || acc.IsTerminal() || acc.Status == escrow.StatusNone {
			return nil, nil
		}
		now := s.now()
		if now.Before(o.DeliveredAt.Add(s.cfg.ReleaseCooldown)) {
			return nil, nil
		}
		old := acc.Status
		if err := acc.Release(escrow.TriggerCooldownElapsed, nil, now); err != nil {
			return nil, err
		}
		cs := &ledger.ChangeSet{}
		putEscrow(cs, o, acc, old, actor, now)
		released = true
		return cs, nil
	})
	if err != nil {
		return false, err
	}
	return released, nil
}

// ProcessDueReleases sweeps delivered orders past their cooldown and
// releases their escrow. Frozen accounts are skipped.
func (s *Service) ProcessDueReleases(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	cutoff := s.now().Add(-s.cfg.ReleaseCooldown)
	ids, err := s.store.ListReleasable(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return released, ctx.Err()
		}
		ok, err := s.ReleaseIfDue(ctx, id)
		if err != nil {
			if !errors.Is(err, apperr.ErrDisputeBlocking) {
				s.logger.Error().Err(err).Str("order_id", id.String()).Msg("auto release failed")
			}
			continue
		}
		if ok {
			released++
		}
	}
	if released > 0 {
		s.logger.Info().Int("released", released).Msg("released escrow for delivered orders")
	}
	return released, nil
}

// GetOrder returns the order with its escrow, disputes and review.
func (s *Service) GetOrder(ctx context.Context, actor user.Actor, orderID uuid.UUID) (*OrderView, error) {
	o, acc, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, OpViewOrder, o, nil); err != nil {
		return nil, err
	}
	disputes, err := s.store.ListDisputes(ctx, orderID)
	if err != nil {
		return nil, err
	}
	rv, err := s.store.GetReviewByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderView{Order: o, Escrow: acc, Disputes: disputes, Review: rv}, nil
}

// ListOrdersInput selects which side of the marketplace to list. Admins
// may list every order; members only see orders they take part in.
type ListOrdersInput struct {
	As     string
	Status *order.Status
	Limit  int
	Offset int
}

func (s *Service) ListOrders(ctx context.Context, actor user.Actor, in ListOrdersInput) ([]*order.Order, error) {
	var filter ledger.OrderFilter
	filter.Status = in.Status
	id := actor.UserID
	switch in.As {
	case "buyer":
		filter.BuyerID = &id
	case "seller":
		filter.SellerID = &id
	case "", "participant":
		if !actor.IsAdmin() {
			filter.ParticipantID = &id
		}
	default:
		return nil, apperr.InvalidInput("as must be buyer, seller or participant")
	}
	return s.store.ListOrders(ctx, filter, in.Limit, in.Offset)
}
