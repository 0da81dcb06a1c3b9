package dispute

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/petmarket/escrow-hub/internal/apperr"
	"github.com/petmarket/escrow-hub/internal/domain/escrow"
)

// Status represents dispute lifecycle status.
type Status string

const (
	StatusOpen        Status = "open"
	StatusUnderReview Status = "under_review"
	StatusResolved    Status = "resolved"
	StatusClosed      Status = "closed"
	StatusCancelled   Status = "cancelled"
)

// Type classifies the claim.
type Type string

const (
	TypeProductNotReceived Type = "product_not_received"
	TypeNotAsDescribed     Type = "not_as_described"
	TypeDamaged            Type = "damaged"
	TypeWrongItem          Type = "wrong_item"
	TypeSellerNotShipping  Type = "seller_not_shipping"
	TypeBuyerUnresponsive  Type = "buyer_unresponsive"
	TypeOther              Type = "other"
)

// ResolutionType is the admin's verdict.
type ResolutionType string

const (
	ResolutionRefundBuyer     ResolutionType = "refund_buyer"
	ResolutionReleaseToSeller ResolutionType = "release_to_seller"
	ResolutionPartialRefund   ResolutionType = "partial_refund"
	ResolutionNoAction        ResolutionType = "no_action"
)

// Party is the side of the order an initiator stands on.
type Party string

const (
	PartyBuyer  Party = "buyer"
	PartySeller Party = "seller"
	PartyAdmin  Party = "admin"
)

// Dispute is a claim against one order's escrow.
type Dispute struct {
	DisputeID        uuid.UUID      `json:"disputeId"`
	OrderID          uuid.UUID      `json:"orderId"`
	EscrowAccountID  uuid.UUID      `json:"escrowAccountId"`
	InitiatorID      uuid.UUID      `json:"initiatorId"`
	InitiatorRole    Party          `json:"initiatorRole"`
	Type             Type           `json:"disputeType"`
	Reason           string         `json:"reason"`
	Description      string         `json:"description,omitempty"`
	EvidenceURLs     []string       `json:"evidenceUrls,omitempty"`
	Status           Status         `json:"status"`
	AssignedAdmin    *uuid.UUID     `json:"assignedAdmin,omitempty"`
	Resolution       string         `json:"resolution,omitempty"`
	ResolutionType   ResolutionType `json:"resolutionType,omitempty"`
	ResolutionAmount int64          `json:"resolutionAmount,omitempty"`
	ResolvedBy       *uuid.UUID     `json:"resolvedBy,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	ReviewStartedAt  *time.Time     `json:"reviewStartedAt,omitempty"`
	ResolvedAt       *time.Time     `json:"resolvedAt,omitempty"`
	ClosedAt         *time.Time     `json:"closedAt,omitempty"`
	CancelledAt      *time.Time     `json:"cancelledAt,omitempty"`
	UpdatedAt        time.Time      `json:"updatedAt"`
	Version          int64          `json:"version"`
}

// Claim carries the initiator-supplied fields of a new dispute.
type Claim struct {
	OrderID         uuid.UUID
	EscrowAccountID uuid.UUID
	InitiatorID     uuid.UUID
	InitiatorRole   Party
	Type            Type
	Reason          string
	Description     string
	EvidenceURLs    []string
}

func ValidType(t Type) bool {
	switch t {
	case TypeProductNotReceived, TypeNotAsDescribed, TypeDamaged, TypeWrongItem,
		TypeSellerNotShipping, TypeBuyerUnresponsive, TypeOther:
		return true
	}
	return false
}

func ValidResolutionType(t ResolutionType) bool {
	switch t {
	case ResolutionRefundBuyer, ResolutionReleaseToSeller, ResolutionPartialRefund, ResolutionNoAction:
		return true
	}
	return false
}

// Open files a dispute. Funds must be escrowed and no other dispute may be active.
func Open(c Claim, escrowStatus escrow.Status, active *Dispute, now time.Time) (*Dispute, error) {
	if c.InitiatorRole != PartyBuyer && c.InitiatorRole != PartySeller {
		return nil, apperr.Forbidden("only the buyer or seller can open a dispute")
	}
	if !ValidType(c.Type) {
		return nil, apperr.InvalidInput("unsupported dispute_type")
	}
	reason := strings.TrimSpace(c.Reason)
	if reason == "" {
		return nil, apperr.InvalidInput("reason is required")
	}
	if active != nil && active.IsActive() {
		err := apperr.InvalidTransition("dispute", string(active.Status), string(StatusOpen))
		err.Metadata["disputeId"] = active.DisputeID.String()
		return nil, err
	}
	if escrowStatus != escrow.StatusEscrowed {
		return nil, apperr.InvalidTransition("escrow", string(escrowStatus), string(escrow.StatusDisputed))
	}
	return &Dispute{
		DisputeID:       uuid.New(),
		OrderID:         c.OrderID,
		EscrowAccountID: c.EscrowAccountID,
		InitiatorID:     c.InitiatorID,
		InitiatorRole:   c.InitiatorRole,
		Type:            c.Type,
		Reason:          reason,
		Description:     strings.TrimSpace(c.Description),
		EvidenceURLs:    append([]string(nil), c.EvidenceURLs...),
		Status:          StatusOpen,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

var transitions = map[Status][]Status{
	StatusOpen:        {StatusUnderReview, StatusResolved, StatusCancelled},
	StatusUnderReview: {StatusResolved, StatusCancelled},
	StatusResolved:    {StatusClosed},
	StatusClosed:      {},
	StatusCancelled:   {},
}

// CanTransitionTo validates a dispute status transition.
func (d *Dispute) CanTransitionTo(target Status) bool {
	for _, s := range transitions[d.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// IsActive reports whether the dispute still freezes the escrow.
func (d *Dispute) IsActive() bool {
	return d.Status == StatusOpen || d.Status == StatusUnderReview
}

// BeginReview assigns an admin. Repeating it with the same admin is a no-op.
func (d *Dispute) BeginReview(admin uuid.UUID, now time.Time) error {
	if d.Status == StatusUnderReview && d.AssignedAdmin != nil && *d.AssignedAdmin == admin {
		return nil
	}
	if d.Status != StatusOpen {
		return apperr.InvalidTransition("dispute", string(d.Status), string(StatusUnderReview))
	}
	d.Status = StatusUnderReview
	a := admin
	d.AssignedAdmin = &a
	t := now
	d.ReviewStartedAt = &t
	d.UpdatedAt = now
	return nil
}

// Verdict is an admin resolution request.
type Verdict struct {
	Type   ResolutionType
	Text   string
	Amount int64
}

func (v Verdict) validate(totalPrice int64) error {
	if !ValidResolutionType(v.Type) {
		return apperr.InvalidInput("unsupported resolution_type")
	}
	if v.Type == ResolutionPartialRefund {
		if v.Amount <= 0 || v.Amount >= totalPrice {
			return apperr.WithMetadata(apperr.CodeInvalidResolutionAmount, "partial refund must be between 0 and total price", map[string]string{
				"amount":     strconv.FormatInt(v.Amount, 10),
				"totalPrice": strconv.FormatInt(totalPrice, 10),
			})
		}
		return nil
	}
	if v.Amount != 0 {
		return apperr.WithMetadata(apperr.CodeInvalidResolutionAmount, "resolution_amount is only allowed for partial_refund", map[string]string{
			"amount": strconv.FormatInt(v.Amount, 10),
		})
	}
	return nil
}

// Matches reports whether a resolved dispute already carries this verdict.
func (d *Dispute) Matches(v Verdict) bool {
	return d.ResolutionType == v.Type &&
		d.ResolutionAmount == v.Amount &&
		d.Resolution == strings.TrimSpace(v.Text)
}

// Resolve records the admin verdict. It reports replay=true without changes
// when the dispute was already resolved with an identical verdict.
func (d *Dispute) Resolve(admin uuid.UUID, v Verdict, totalPrice int64, now time.Time) (replay bool, err error) {
	if err := v.validate(totalPrice); err != nil {
		return false, err
	}
	if d.Status == StatusResolved || d.Status == StatusClosed {
		if d.Matches(v) {
			return true, nil
		}
		return false, apperr.InvalidTransition("dispute", string(d.Status), string(StatusResolved))
	}
	if !d.CanTransitionTo(StatusResolved) {
		return false, apperr.InvalidTransition("dispute", string(d.Status), string(StatusResolved))
	}
	if d.Status == StatusOpen {
		a := admin
		d.AssignedAdmin = &a
		t := now
		d.ReviewStartedAt = &t
	}
	d.Status = StatusResolved
	d.ResolutionType = v.Type
	d.ResolutionAmount = v.Amount
	d.Resolution = strings.TrimSpace(v.Text)
	by := admin
	d.ResolvedBy = &by
	t := now
	d.ResolvedAt = &t
	d.UpdatedAt = now
	return false, nil
}

// EscrowResolution maps the verdict to the fund movement it authorizes.
// A no_action verdict authorizes none and returns nil.
func (d *Dispute) EscrowResolution() *escrow.Resolution {
	var outcome escrow.Outcome
	switch d.ResolutionType {
	case ResolutionRefundBuyer:
		outcome = escrow.OutcomeRefund
	case ResolutionReleaseToSeller:
		outcome = escrow.OutcomeRelease
	case ResolutionPartialRefund:
		outcome = escrow.OutcomePartialRefund
	default:
		return nil
	}
	return &escrow.Resolution{DisputeID: d.DisputeID, Outcome: outcome, Amount: d.ResolutionAmount}
}

// Cancel withdraws an active dispute.
func (d *Dispute) Cancel(now time.Time) error {
	if !d.CanTransitionTo(StatusCancelled) {
		return apperr.InvalidTransition("dispute", string(d.Status), string(StatusCancelled))
	}
	d.Status = StatusCancelled
	t := now
	d.CancelledAt = &t
	d.UpdatedAt = now
	return nil
}

// Close archives a resolved dispute.
func (d *Dispute) Close(now time.Time) error {
	if !d.CanTransitionTo(StatusClosed) {
		return apperr.InvalidTransition("dispute", string(d.Status), string(StatusClosed))
	}
	d.Status = StatusClosed
	t := now
	d.ClosedAt = &t
	d.UpdatedAt = now
	return nil
}

func (d *Dispute) Clone() *Dispute {
	c := *d
	c.EvidenceURLs = append([]string(nil), d.EvidenceURLs...)
	return &c
}
