// Package memory is an in-process ledger used by tests, single-node
// development and as the replicated state of the raft driver.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

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

// Store implements ledger.Store in memory. Reads return copies.
type Store struct {
	mu            sync.RWMutex
	products      map[uuid.UUID]*product.Product
	orders        map[uuid.UUID]*order.Order
	escrows       map[uuid.UUID]*escrow.Account
	disputes      map[uuid.UUID]*dispute.Dispute
	messages      map[uuid.UUID][]*dispute.Message
	reviews       map[uuid.UUID]*review.Review
	reviewByOrder map[uuid.UUID]uuid.UUID
	events        []*notification.Event
	eventIndex    map[uuid.UUID]int
	incidents     []*incident.Incident
}

var _ ledger.Store = (*Store)(nil)

func NewStore() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.products = make(map[uuid.UUID]*product.Product)
	s.orders = make(map[uuid.UUID]*order.Order)
	s.escrows = make(map[uuid.UUID]*escrow.Account)
	s.disputes = make(map[uuid.UUID]*dispute.Dispute)
	s.messages = make(map[uuid.UUID][]*dispute.Message)
	s.reviews = make(map[uuid.UUID]*review.Review)
	s.reviewByOrder = make(map[uuid.UUID]uuid.UUID)
	s.events = nil
	s.eventIndex = make(map[uuid.UUID]int)
	s.incidents = nil
}

func (s *Store) GetProduct(_ context.Context, productID uuid.UUID) (*product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (s *Store) GetOrder(_ context.Context, orderID uuid.UUID) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, nil
	}
	return o.Clone(), nil
}

func (s *Store) ListOrders(_ context.Context, filter ledger.OrderFilter, limit, offset int) ([]*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*order.Order
	for _, o := range s.orders {
		if filter.ParticipantID != nil && o.BuyerID != *filter.ParticipantID && o.SellerID != *filter.ParticipantID {
			continue
		}
		if filter.BuyerID != nil && o.BuyerID != *filter.BuyerID {
			continue
		}
		if filter.SellerID != nil && o.SellerID != *filter.SellerID {
			continue
		}
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OrderID.String() < out[j].OrderID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, limit, offset), nil
}

func (s *Store) GetEscrowByOrder(_ context.Context, orderID uuid.UUID) (*escrow.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.escrows[orderID]
	if !ok {
		return nil, nil
	}
	return a.Clone(), nil
}

func (s *Store) GetDispute(_ context.Context, disputeID uuid.UUID) (*dispute.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.disputes[disputeID]
	if !ok {
		return nil, nil
	}
	return d.Clone(), nil
}

func (s *Store) GetActiveDispute(_ context.Context, orderID uuid.UUID) (*dispute.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.disputes {
		if d.OrderID == orderID && d.IsActive() {
			return d.Clone(), nil
		}
	}
	return nil, nil
}

func (s *Store) ListDisputes(_ context.Context, orderID uuid.UUID) ([]*dispute.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*dispute.Dispute
	for _, d := range s.disputes {
		if d.OrderID == orderID {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListDisputeMessages(_ context.Context, disputeID uuid.UUID) ([]*dispute.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[disputeID]
	out := make([]*dispute.Message, 0, len(msgs))
	for _, m := range msgs {
		c := *m
		out = append(out, &c)
	}
	return out, nil
}

func (s *Store) GetReview(_ context.Context, reviewID uuid.UUID) (*review.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reviews[reviewID]
	if !ok {
		return nil, nil
	}
	return r.Clone(), nil
}

func (s *Store) GetReviewByOrder(_ context.Context, orderID uuid.UUID) (*review.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.reviewByOrder[orderID]
	if !ok {
		return nil, nil
	}
	return s.reviews[id].Clone(), nil
}

func (s *Store) ListReleasable(_ context.Context, deliveredBefore time.Time, limit int) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []*order.Order
	for _, o := range s.orders {
		if o.Status != order.StatusDelivered || o.DeliveredAt == nil || !o.DeliveredAt.Before(deliveredBefore) {
			continue
		}
		if a, ok := s.escrows[o.OrderID]; ok && a.Status == escrow.StatusEscrowed {
			due = append(due, o)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].DeliveredAt.Before(*due[j].DeliveredAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	ids := make([]uuid.UUID, 0, len(due))
	for _, o := range due {
		ids = append(ids, o.OrderID)
	}
	return ids, nil
}

func (s *Store) ListIncidents(_ context.Context, limit, offset int) ([]*incident.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*incident.Incident, 0, len(s.incidents))
	for i := len(s.incidents) - 1; i >= 0; i-- {
		c := *s.incidents[i]
		out = append(out, &c)
	}
	return page(out, limit, offset), nil
}

func (s *Store) ListPendingEvents(_ context.Context, limit int) ([]*notification.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*notification.Event
	for _, e := range s.events {
		if !e.CanRetry() {
			continue
		}
		out = append(out, e.Clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) UpdateEvent(ctx context.Context, event *notification.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.eventIndex[event.EventID]
	if !ok {
		return apperr.NotFound("event")
	}
	cur := s.events[idx]
	cur.Status = event.Status
	cur.Attempts = event.Attempts
	cur.LastError = event.LastError
	cur.DeliveredAt = event.DeliveredAt
	return nil
}

// Commit validates every precondition before applying any write.
func (s *Store) Commit(ctx context.Context, cs *ledger.ChangeSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.validate(cs); err != nil {
		return err
	}
	s.apply(cs)
	return nil
}

func (s *Store) validate(cs *ledger.ChangeSet) error {
	for _, w := range cs.Products {
		var current int64
		if cur, ok := s.products[w.Product.ProductID]; ok {
			current = cur.Version
		}
		if err := checkVersion("product", w.Product.ProductID, current, w.Expected); err != nil {
			return err
		}
		if w.Product.Stock < 0 {
			return apperr.ErrInsufficientStock
		}
	}
	for _, w := range cs.Orders {
		var current int64
		if cur, ok := s.orders[w.Order.OrderID]; ok {
			current = cur.Version
		}
		if err := checkVersion("order", w.Order.OrderID, current, w.Expected); err != nil {
			return err
		}
	}
	for _, w := range cs.Escrows {
		var current int64
		cur, ok := s.escrows[w.Account.OrderID]
		if ok {
			current = cur.Version
		}
		if err := checkVersion("escrow", w.Account.AccountID, current, w.Expected); err != nil {
			return err
		}
		if ok && cur.AccountID != w.Account.AccountID {
			return apperr.Conflict("escrow", w.Account.AccountID.String())
		}
	}
	pending := make(map[uuid.UUID]*dispute.Dispute, len(cs.Disputes))
	for _, w := range cs.Disputes {
		var current int64
		if cur, ok := s.disputes[w.Dispute.DisputeID]; ok {
			current = cur.Version
		}
		if err := checkVersion("dispute", w.Dispute.DisputeID, current, w.Expected); err != nil {
			return err
		}
		pending[w.Dispute.DisputeID] = w.Dispute
	}
	for _, d := range pending {
		if !d.IsActive() {
			continue
		}
		for id, other := range s.disputes {
			if id == d.DisputeID || other.OrderID != d.OrderID {
				continue
			}
			if next, staged := pending[id]; staged {
				other = next
			}
			if other.IsActive() {
				return apperr.Conflict("dispute", d.DisputeID.String())
			}
		}
	}
	for _, w := range cs.Reviews {
		var current int64
		if cur, ok := s.reviews[w.Review.ReviewID]; ok {
			current = cur.Version
		}
		if err := checkVersion("review", w.Review.ReviewID, current, w.Expected); err != nil {
			return err
		}
		if current == 0 {
			if _, dup := s.reviewByOrder[w.Review.OrderID]; dup {
				return apperr.ErrDuplicateReview
			}
		}
	}
	for _, m := range cs.Messages {
		if _, ok := s.disputes[m.DisputeID]; !ok {
			if _, staged := pending[m.DisputeID]; !staged {
				return apperr.NotFound("dispute")
			}
		}
	}
	return nil
}

func (s *Store) apply(cs *ledger.ChangeSet) {
	for _, w := range cs.Products {
		c := *w.Product
		s.products[c.ProductID] = &c
	}
	for _, w := range cs.Orders {
		s.orders[w.Order.OrderID] = w.Order.Clone()
	}
	for _, w := range cs.Escrows {
		s.escrows[w.Account.OrderID] = w.Account.Clone()
	}
	for _, w := range cs.Disputes {
		s.disputes[w.Dispute.DisputeID] = w.Dispute.Clone()
	}
	for _, w := range cs.Reviews {
		s.reviews[w.Review.ReviewID] = w.Review.Clone()
		s.reviewByOrder[w.Review.OrderID] = w.Review.ReviewID
	}
	for _, m := range cs.Messages {
		c := *m
		s.messages[m.DisputeID] = append(s.messages[m.DisputeID], &c)
	}
	for _, e := range cs.Events {
		s.eventIndex[e.EventID] = len(s.events)
		s.events = append(s.events, e.Clone())
	}
	for _, in := range cs.Incidents {
		c := *in
		s.incidents = append(s.incidents, &c)
	}
}

// checkVersion compares against the stored version; 0 means absent.
func checkVersion(entity string, id uuid.UUID, current, expected int64) error {
	if current != expected {
		return apperr.Conflict(entity, id.String())
	}
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

type snapshot struct {
	Products  []*product.Product    `json:"products"`
	Orders    []*order.Order        `json:"orders"`
	Escrows   []*escrow.Account     `json:"escrows"`
	Disputes  []*dispute.Dispute    `json:"disputes"`
	Messages  []*dispute.Message    `json:"messages"`
	Reviews   []*review.Review      `json:"reviews"`
	Events    []*notification.Event `json:"events"`
	Incidents []*incident.Incident  `json:"incidents"`
}

// Marshal serializes the whole ledger.
func (s *Store) Marshal() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := snapshot{Events: s.events, Incidents: s.incidents}
	for _, p := range s.products {
		snap.Products = append(snap.Products, p)
	}
	for _, o := range s.orders {
		snap.Orders = append(snap.Orders, o)
	}
	for _, a := range s.escrows {
		snap.Escrows = append(snap.Escrows, a)
	}
	for _, d := range s.disputes {
		snap.Disputes = append(snap.Disputes, d)
	}
	for _, msgs := range s.messages {
		snap.Messages = append(snap.Messages, msgs...)
	}
	for _, r := range s.reviews {
		snap.Reviews = append(snap.Reviews, r)
	}
	sort.SliceStable(snap.Messages, func(i, j int) bool { return snap.Messages[i].CreatedAt.Before(snap.Messages[j].CreatedAt) })
	return json.Marshal(snap)
}

// Unmarshal replaces the ledger with a snapshot produced by Marshal.
func (s *Store) Unmarshal(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	for _, p := range snap.Products {
		s.products[p.ProductID] = p
	}
	for _, o := range snap.Orders {
		s.orders[o.OrderID] = o
	}
	for _, a := range snap.Escrows {
		s.escrows[a.OrderID] = a
	}
	for _, d := range snap.Disputes {
		s.disputes[d.DisputeID] = d
	}
	for _, m := range snap.Messages {
		s.messages[m.DisputeID] = append(s.messages[m.DisputeID], m)
	}
	for _, r := range snap.Reviews {
		s.reviews[r.ReviewID] = r
		s.reviewByOrder[r.OrderID] = r.ReviewID
	}
	for i, e := range snap.Events {
		s.eventIndex[e.EventID] = i
	}
	s.events = snap.Events
	s.incidents = snap.Incidents
	return nil
}
