package order

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/petmarket/escrow-hub/internal/apperr"
)

// Status represents order fulfillment status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// PaymentMethod is the buyer's chosen way to pay.
type PaymentMethod string

const (
	PaymentCOD          PaymentMethod = "cod"
	PaymentCard         PaymentMethod = "card"
	PaymentEWallet      PaymentMethod = "e_wallet"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
)

// PaymentStatus tracks the money side of the order.
type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentPaid              PaymentStatus = "paid"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
)

// Shipping holds the delivery destination.
type Shipping struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// Order is a purchase of Quantity units of one product.
type Order struct {
	OrderID         uuid.UUID     `json:"orderId"`
	BuyerID         uuid.UUID     `json:"buyerId"`
	SellerID        uuid.UUID     `json:"sellerId"`
	ProductID       uuid.UUID     `json:"productId"`
	Quantity        int           `json:"quantity"`
	UnitPrice       int64         `json:"unitPrice"`
	ShippingFee     int64         `json:"shippingFee"`
	TotalPrice      int64         `json:"totalPrice"`
	FinalPrice      int64         `json:"finalPrice"`
	Status          Status        `json:"status"`
	PaymentMethod   PaymentMethod `json:"paymentMethod"`
	PaymentStatus   PaymentStatus `json:"paymentStatus"`
	Shipping        Shipping      `json:"shipping"`
	ShippingCarrier string        `json:"shippingCarrier,omitempty"`
	TrackingNumber  string        `json:"trackingNumber,omitempty"`
	Note            string        `json:"note,omitempty"`
	StatusNote      string        `json:"statusNote,omitempty"`
	CancelReason    string        `json:"cancelReason,omitempty"`
	CancelledBy     *uuid.UUID    `json:"cancelledBy,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	ConfirmedAt     *time.Time    `json:"confirmedAt,omitempty"`
	ProcessingAt    *time.Time    `json:"processingAt,omitempty"`
	ShippedAt       *time.Time    `json:"shippedAt,omitempty"`
	DeliveredAt     *time.Time    `json:"deliveredAt,omitempty"`
	CancelledAt     *time.Time    `json:"cancelledAt,omitempty"`
	UpdatedAt       time.Time     `json:"updatedAt"`
	Version         int64         `json:"version"`
}

// Draft carries the buyer-supplied fields of a new order.
type Draft struct {
	BuyerID       uuid.UUID
	SellerID      uuid.UUID
	ProductID     uuid.UUID
	Quantity      int
	UnitPrice     int64
	ShippingFee   int64
	PaymentMethod PaymentMethod
	Shipping      Shipping
	Note          string
}

// New validates a draft and prices the order.
func New(d Draft, now time.Time) (*Order, error) {
	if d.Quantity <= 0 {
		return nil, apperr.InvalidInput("quantity must be positive")
	}
	if d.UnitPrice <= 0 {
		return nil, apperr.InvalidInput("unit_price must be positive")
	}
	if d.ShippingFee < 0 {
		return nil, apperr.InvalidInput("shipping_fee must not be negative")
	}
	if d.BuyerID == d.SellerID {
		return nil, apperr.InvalidInput("buyer cannot purchase own listing")
	}
	if !ValidPaymentMethod(d.PaymentMethod) {
		return nil, apperr.InvalidInput("unsupported payment_method")
	}
	if strings.TrimSpace(d.Shipping.Address) == "" {
		return nil, apperr.InvalidInput("shipping address is required")
	}
	total := int64(d.Quantity)*d.UnitPrice + d.ShippingFee
	return &Order{
		OrderID:       uuid.New(),
		BuyerID:       d.BuyerID,
		SellerID:      d.SellerID,
		ProductID:     d.ProductID,
		Quantity:      d.Quantity,
		UnitPrice:     d.UnitPrice,
		ShippingFee:   d.ShippingFee,
		TotalPrice:    total,
		FinalPrice:    total,
		Status:        StatusPending,
		PaymentMethod: d.PaymentMethod,
		PaymentStatus: PaymentPending,
		Shipping:      d.Shipping,
		Note:          strings.TrimSpace(d.Note),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func ValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case PaymentCOD, PaymentCard, PaymentEWallet, PaymentBankTransfer:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

// CanTransitionTo validates an order status transition.
func (o *Order) CanTransitionTo(target Status) bool {
	for _, s := range transitions[o.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is defined.
func (o *Order) IsTerminal() bool {
	return o.Status == StatusDelivered || o.Status == StatusCancelled
}

// IsPreShipped reports whether the order can still be cancelled.
func (o *Order) IsPreShipped() bool {
	return o.Status == StatusPending || o.Status == StatusConfirmed || o.Status == StatusProcessing
}

// Advance moves the order to its single forward successor.
// Shipping requires a tracking number, recorded earlier or supplied here.
func (o *Order) Advance(next Status, tracking, carrier, note string, now time.Time) error {
	if next == StatusCancelled || !o.CanTransitionTo(next) {
		return apperr.InvalidTransition("order", string(o.Status), string(next))
	}
	tracking = strings.TrimSpace(tracking)
	if next == StatusShipped {
		if tracking == "" && o.TrackingNumber == "" {
			return apperr.InvalidInput("tracking_number is required to ship")
		}
	}
	if tracking != "" {
		o.TrackingNumber = tracking
	}
	if c := strings.TrimSpace(carrier); c != "" {
		o.ShippingCarrier = c
	}
	o.Status = next
	o.StatusNote = strings.TrimSpace(note)
	t := now
	switch next {
	case StatusConfirmed:
		o.ConfirmedAt = &t
	case StatusProcessing:
		o.ProcessingAt = &t
	case StatusShipped:
		o.ShippedAt = &t
	case StatusDelivered:
		o.DeliveredAt = &t
	}
	o.UpdatedAt = now
	return nil
}

// RecordTracking stores a tracking number ahead of shipment.
func (o *Order) RecordTracking(tracking, carrier string, now time.Time) error {
	tracking = strings.TrimSpace(tracking)
	if tracking == "" {
		return apperr.InvalidInput("tracking_number is required")
	}
	if o.Status != StatusConfirmed && o.Status != StatusProcessing {
		return apperr.InvalidTransition("order", string(o.Status), "tracking_recorded")
	}
	o.TrackingNumber = tracking
	if c := strings.TrimSpace(carrier); c != "" {
		o.ShippingCarrier = c
	}
	o.UpdatedAt = now
	return nil
}

// Cancel terminalizes a pre-shipped order.
func (o *Order) Cancel(by uuid.UUID, reason string, now time.Time) error {
	if !o.CanTransitionTo(StatusCancelled) {
		return apperr.InvalidTransition("order", string(o.Status), string(StatusCancelled))
	}
	o.Status = StatusCancelled
	o.CancelReason = strings.TrimSpace(reason)
	o.CancelledBy = &by
	t := now
	o.CancelledAt = &t
	o.UpdatedAt = now
	return nil
}

// MarkPaid records a captured payment.
func (o *Order) MarkPaid(now time.Time) {
	o.PaymentStatus = PaymentPaid
	o.UpdatedAt = now
}

// MarkRefunded records a full or partial refund.
func (o *Order) MarkRefunded(partial bool, now time.Time) {
	if partial {
		o.PaymentStatus = PaymentPartiallyRefunded
	} else {
		o.PaymentStatus = PaymentRefunded
	}
	o.UpdatedAt = now
}

// Clone returns an independent copy.
func (o *Order) Clone() *Order {
	c := *o
	return &c
}
