package ledger

import (
	"github.com/petmarket/escrow-hub/internal/domain/dispute"
	"github.com/petmarket/escrow-hub/internal/domain/escrow"
	"github.com/petmarket/escrow-hub/internal/domain/incident"
	"github.com/petmarket/escrow-hub/internal/domain/notification"
	"github.com/petmarket/escrow-hub/internal/domain/order"
	"github.com/petmarket/escrow-hub/internal/domain/product"
	"github.com/petmarket/escrow-hub/internal/domain/review"
)

// Expected == 0 means the record must not exist yet.

type ProductWrite struct {
	Product  *product.Product `json:"product"`
	Expected int64            `json:"expected"`
}

type OrderWrite struct {
	Order    *order.Order `json:"order"`
	Expected int64        `json:"expected"`
}

type EscrowWrite struct {
	Account  *escrow.Account `json:"account"`
	Expected int64           `json:"expected"`
}

type DisputeWrite struct {
	Dispute  *dispute.Dispute `json:"dispute"`
	Expected int64            `json:"expected"`
}

type ReviewWrite struct {
	Review   *review.Review `json:"review"`
	Expected int64          `json:"expected"`
}

// ChangeSet is one logical transaction across aggregates.
type ChangeSet struct {
	Products  []ProductWrite        `json:"products,omitempty"`
	Orders    []OrderWrite          `json:"orders,omitempty"`
	Escrows   []EscrowWrite         `json:"escrows,omitempty"`
	Disputes  []DisputeWrite        `json:"disputes,omitempty"`
	Reviews   []ReviewWrite         `json:"reviews,omitempty"`
	Messages  []*dispute.Message    `json:"messages,omitempty"`
	Events    []*notification.Event `json:"events,omitempty"`
	Incidents []*incident.Incident  `json:"incidents,omitempty"`
}

// Put* stage a write conditioned on the record's current version and bump it.

func (cs *ChangeSet) PutProduct(p *product.Product) {
	cs.Products = append(cs.Products, ProductWrite{Product: p, Expected: p.Version})
	p.Version++
}

func (cs *ChangeSet) PutOrder(o *order.Order) {
	cs.Orders = append(cs.Orders, OrderWrite{Order: o, Expected: o.Version})
	o.Version++
}

func (cs *ChangeSet) PutEscrow(a *escrow.Account) {
	cs.Escrows = append(cs.Escrows, EscrowWrite{Account: a, Expected: a.Version})
	a.Version++
}

func (cs *ChangeSet) PutDispute(d *dispute.Dispute) {
	cs.Disputes = append(cs.Disputes, DisputeWrite{Dispute: d, Expected: d.Version})
	d.Version++
}

func (cs *ChangeSet) PutReview(r *review.Review) {
	cs.Reviews = append(cs.Reviews, ReviewWrite{Review: r, Expected: r.Version})
	r.Version++
}

func (cs *ChangeSet) AddMessage(m *dispute.Message) {
	cs.Messages = append(cs.Messages, m)
}

func (cs *ChangeSet) Emit(e *notification.Event) {
	cs.Events = append(cs.Events, e)
}

func (cs *ChangeSet) Record(in *incident.Incident) {
	cs.Incidents = append(cs.Incidents, in)
}

func (cs *ChangeSet) IsEmpty() bool {
	return len(cs.Products) == 0 && len(cs.Orders) == 0 && len(cs.Escrows) == 0 &&
		len(cs.Disputes) == 0 && len(cs.Reviews) == 0 && len(cs.Messages) == 0 &&
		len(cs.Events) == 0 && len(cs.Incidents) == 0
}
