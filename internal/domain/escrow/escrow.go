package escrow

import (
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/petmarket/escrow-hub/internal/apperr"
)

// Status represents escrow account status.
type Status string

const (
	StatusNone     Status = "none"
	StatusEscrowed Status = "escrowed"
	StatusReleased Status = "released"
	StatusRefunded Status = "refunded"
	StatusDisputed Status = "disputed"
)

// Trigger names what caused a fund movement.
type Trigger string

const (
	TriggerBuyerConfirmed    Trigger = "buyer_confirmed"
	TriggerCooldownElapsed   Trigger = "cooldown_elapsed"
	TriggerAdmin             Trigger = "admin"
	TriggerOrderCancelled    Trigger = "order_cancelled"
	TriggerDisputeResolution Trigger = "dispute_resolution"
)

// Outcome is the fund movement a dispute resolution demands.
type Outcome string

const (
	OutcomeRelease       Outcome = "release"
	OutcomeRefund        Outcome = "refund"
	OutcomePartialRefund Outcome = "partial_refund"
)

// Resolution authorizes moving funds out of a frozen account.
type Resolution struct {
	DisputeID uuid.UUID
	Outcome   Outcome
	Amount    int64
}

// Account holds the funds of exactly one order.
type Account struct {
	AccountID        uuid.UUID  `json:"accountId"`
	OrderID          uuid.UUID  `json:"orderId"`
	Status           Status     `json:"status"`
	TotalPrice       int64      `json:"totalPrice"`
	HeldAmount       int64      `json:"heldAmount"`
	PlatformFee      int64      `json:"platformFee"`
	SellerPayout     int64      `json:"sellerPayout"`
	RefundAmount     int64      `json:"refundAmount"`
	PaymentReference string     `json:"paymentReference,omitempty"`
	DisputeID        *uuid.UUID `json:"disputeId,omitempty"`
	ReleaseTrigger   Trigger    `json:"releaseTrigger,omitempty"`
	CapturedAt       *time.Time `json:"capturedAt,omitempty"`
	ReleasedAt       *time.Time `json:"releasedAt,omitempty"`
	RefundedAt       *time.Time `json:"refundedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	Version          int64      `json:"version"`
}

// NewAccount opens an empty account alongside its order.
func NewAccount(orderID uuid.UUID, totalPrice int64, now time.Time) *Account {
	return &Account{
		AccountID:  uuid.New(),
		OrderID:    orderID,
		Status:     StatusNone,
		TotalPrice: totalPrice,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

var transitions = map[Status][]Status{
	StatusNone:     {StatusEscrowed},
	StatusEscrowed: {StatusReleased, StatusRefunded, StatusDisputed},
	StatusDisputed: {StatusEscrowed, StatusReleased, StatusRefunded},
	StatusReleased: {},
	StatusRefunded: {},
}

// CanTransitionTo validates an escrow status transition.
func (a *Account) CanTransitionTo(target Status) bool {
	for _, s := range transitions[a.Status] {
		if s == target {
			return true
		}
	}
	return false
}

func (a *Account) IsTerminal() bool {
	return a.Status == StatusReleased || a.Status == StatusRefunded
}

// IsCaptureReplay reports whether a capture signal was already applied.
func (a *Account) IsCaptureReplay(amount int64, reference string) bool {
	return a.Status != StatusNone && a.PaymentReference == reference && a.HeldAmount == amount
}

// Capture takes custody of the captured payment and splits it per the fee policy.
func (a *Account) Capture(amount int64, reference string, fees FeePolicy, now time.Time) error {
	if a.Status != StatusNone {
		return apperr.InvalidTransition("escrow", string(a.Status), string(StatusEscrowed))
	}
	if amount != a.TotalPrice {
		return apperr.WithMetadata(apperr.CodeAmountMismatch, "captured amount does not match order total", map[string]string{
			"expected": strconv.FormatInt(a.TotalPrice, 10),
			"captured": strconv.FormatInt(amount, 10),
		})
	}
	fee, err := a.fee(fees, amount)
	if err != nil {
		return err
	}
	a.Status = StatusEscrowed
	a.HeldAmount = amount
	a.PlatformFee = fee
	a.SellerPayout = amount - fee
	a.PaymentReference = reference
	t := now
	a.CapturedAt = &t
	a.UpdatedAt = now
	return a.Verify()
}

// Freeze blocks fund movement while a dispute is active.
func (a *Account) Freeze(disputeID uuid.UUID, now time.Time) error {
	if a.Status == StatusDisputed && a.DisputeID != nil && *a.DisputeID == disputeID {
		return nil
	}
	if a.Status != StatusEscrowed {
		return apperr.InvalidTransition("escrow", string(a.Status), string(StatusDisputed))
	}
	a.Status = StatusDisputed
	id := disputeID
	a.DisputeID = &id
	a.UpdatedAt = now
	return nil
}

// Unfreeze restores normal flow after a dispute is withdrawn or dismissed.
func (a *Account) Unfreeze(now time.Time) error {
	if a.Status != StatusDisputed {
		return apperr.InvalidTransition("escrow", string(a.Status), string(StatusEscrowed))
	}
	a.Status = StatusEscrowed
	a.DisputeID = nil
	a.UpdatedAt = now
	return a.Verify()
}

// Release pays the seller. A frozen account needs a release_to_seller resolution.
func (a *Account) Release(trigger Trigger, res *Resolution, now time.Time) error {
	switch a.Status {
	case StatusEscrowed:
		if res != nil {
			return apperr.InvalidTransition("escrow", string(a.Status), string(StatusReleased))
		}
	case StatusDisputed:
		if res == nil {
			return a.blocking()
		}
		if err := a.checkResolution(res); err != nil {
			return err
		}
		if res.Outcome != OutcomeRelease {
			return apperr.InvalidTransition("escrow", string(a.Status), string(StatusReleased))
		}
	default:
		return apperr.InvalidTransition("escrow", string(a.Status), string(StatusReleased))
	}
	a.Status = StatusReleased
	a.RefundAmount = 0
	a.ReleaseTrigger = trigger
	a.DisputeID = nil
	t := now
	a.ReleasedAt = &t
	a.UpdatedAt = now
	return a.Verify()
}

// Refund returns funds to the buyer. A full refund is legal from escrowed;
// a frozen account needs a refund or partial_refund resolution.
func (a *Account) Refund(trigger Trigger, res *Resolution, fees FeePolicy, now time.Time) error {
	switch a.Status {
	case StatusEscrowed:
		if res != nil {
			return apperr.InvalidTransition("escrow", string(a.Status), string(StatusRefunded))
		}
		a.refundFull()
	case StatusDisputed:
		if res == nil {
			return a.blocking()
		}
		if err := a.checkResolution(res); err != nil {
			return err
		}
		switch res.Outcome {
		case OutcomeRefund:
			a.refundFull()
		case OutcomePartialRefund:
			if res.Amount <= 0 || res.Amount >= a.TotalPrice {
				return apperr.WithMetadata(apperr.CodeInvalidResolutionAmount, "partial refund must be between 0 and total price", map[string]string{
					"amount":     strconv.FormatInt(res.Amount, 10),
					"totalPrice": strconv.FormatInt(a.TotalPrice, 10),
				})
			}
			remaining := a.HeldAmount - res.Amount
			fee, err := a.fee(fees, remaining)
			if err != nil {
				return err
			}
			a.RefundAmount = res.Amount
			a.PlatformFee = fee
			a.SellerPayout = remaining - fee
		default:
			return apperr.InvalidTransition("escrow", string(a.Status), string(StatusRefunded))
		}
	default:
		return apperr.InvalidTransition("escrow", string(a.Status), string(StatusRefunded))
	}
	a.Status = StatusRefunded
	a.ReleaseTrigger = trigger
	a.DisputeID = nil
	t := now
	a.RefundedAt = &t
	a.UpdatedAt = now
	return a.Verify()
}

func (a *Account) refundFull() {
	a.RefundAmount = a.HeldAmount
	a.PlatformFee = 0
	a.SellerPayout = 0
}

func (a *Account) blocking() error {
	meta := map[string]string{"orderId": a.OrderID.String()}
	if a.DisputeID != nil {
		meta["disputeId"] = a.DisputeID.String()
	}
	return apperr.WithMetadata(apperr.CodeDisputeBlocking, "escrow is frozen by an unresolved dispute", meta)
}

// fee asks the policy for the fee on amount. A non-finite result breaks the
// fund split and is reported as an integrity failure.
func (a *Account) fee(fees FeePolicy, amount int64) (int64, error) {
	fee, err := fees.Fee(amount)
	switch {
	case errors.Is(err, ErrNonFiniteFee):
		return 0, apperr.Integrity("fee policy produced a non-finite fee", map[string]string{
			"accountId": a.AccountID.String(),
			"orderId":   a.OrderID.String(),
			"amount":    strconv.FormatInt(amount, 10),
		})
	case err != nil:
		return 0, apperr.Wrap(apperr.CodeInternal, "fee policy failed", err)
	}
	return fee, nil
}

func (a *Account) checkResolution(res *Resolution) error {
	if a.DisputeID != nil && *a.DisputeID != res.DisputeID {
		return apperr.Integrity("resolution does not belong to the freezing dispute", map[string]string{
			"accountId": a.AccountID.String(),
			"orderId":   a.OrderID.String(),
			"disputeId": res.DisputeID.String(),
		})
	}
	return nil
}

// Verify checks the fund-conservation invariants for the current status.
func (a *Account) Verify() error {
	fail := func(msg string) error {
		return apperr.Integrity(msg, map[string]string{
			"accountId":    a.AccountID.String(),
			"orderId":      a.OrderID.String(),
			"status":       string(a.Status),
			"heldAmount":   strconv.FormatInt(a.HeldAmount, 10),
			"platformFee":  strconv.FormatInt(a.PlatformFee, 10),
			"sellerPayout": strconv.FormatInt(a.SellerPayout, 10),
			"refundAmount": strconv.FormatInt(a.RefundAmount, 10),
		})
	}
	if a.HeldAmount < 0 || a.PlatformFee < 0 || a.SellerPayout < 0 || a.RefundAmount < 0 {
		return fail("escrow amounts must not be negative")
	}
	sum := a.SellerPayout + a.PlatformFee + a.RefundAmount
	if sum > a.TotalPrice {
		return fail("escrow split exceeds order total")
	}
	switch a.Status {
	case StatusNone:
		if sum != 0 || a.HeldAmount != 0 {
			return fail("uncaptured escrow holds funds")
		}
	case StatusEscrowed, StatusDisputed, StatusReleased:
		if a.RefundAmount != 0 || a.SellerPayout+a.PlatformFee != a.HeldAmount {
			return fail("payout and fee must equal held amount")
		}
	case StatusRefunded:
		if sum != a.HeldAmount {
			return fail("refund split must equal held amount")
		}
	}
	return nil
}

func (a *Account) Clone() *Account {
	c := *a
	return &c
}
