package raftledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/petmarket/escrow-hub/internal/domain/dispute"
	"github.com/petmarket/escrow-hub/internal/domain/escrow"
	"github.com/petmarket/escrow-hub/internal/domain/incident"
	"github.com/petmarket/escrow-hub/internal/domain/notification"
	"github.com/petmarket/escrow-hub/internal/domain/order"
	"github.com/petmarket/escrow-hub/internal/domain/product"
	"github.com/petmarket/escrow-hub/internal/domain/review"
	"github.com/petmarket/escrow-hub/internal/ledger"
)

// Store serves reads from the node's local replica and sends writes
// through the Raft log. Followers reject writes with ErrNotLeader; reads
// on a follower may trail the leader.
type Store struct {
	node *Node
}

var _ ledger.Store = (*Store)(nil)

func NewStore(node *Node) *Store {
	return &Store{node: node}
}

func (s *Store) Node() *Node { return s.node }

func (s *Store) Commit(ctx context.Context, cs *ledger.ChangeSet) error {
	if cs == nil || cs.IsEmpty() {
		return nil
	}
	return s.node.apply(ctx, command{Op: opCommit, ChangeSet: cs, IssuedAt: time.Now().UTC()})
}

func (s *Store) UpdateEvent(ctx context.Context, event *notification.Event) error {
	return s.node.apply(ctx, command{Op: opUpdateEvent, Event: event, IssuedAt: time.Now().UTC()})
}

func (s *Store) ListPendingEvents(ctx context.Context, limit int) ([]*notification.Event, error) {
	return s.node.state.ListPendingEvents(ctx, limit)
}

func (s *Store) GetProduct(ctx context.Context, productID uuid.UUID) (*product.Product, error) {
	return s.node.state.GetProduct(ctx, productID)
}

func (s *Store) GetOrder(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	return s.node.state.GetOrder(ctx, orderID)
}

func (s *Store) ListOrders(ctx context.Context, filter ledger.OrderFilter, limit, offset int) ([]*order.Order, error) {
	return s.node.state.ListOrders(ctx, filter, limit, offset)
}

func (s *Store) GetEscrowByOrder(ctx context.Context, orderID uuid.UUID) (*escrow.Account, error) {
	return s.node.state.GetEscrowByOrder(ctx, orderID)
}

func (s *Store) GetDispute(ctx context.Context, disputeID uuid.UUID) (*dispute.Dispute, error) {
	return s.node.state.GetDispute(ctx, disputeID)
}

func (s *Store) GetActiveDispute(ctx context.Context, orderID uuid.UUID) (*dispute.Dispute, error) {
	return s.node.state.GetActiveDispute(ctx, orderID)
}

func (s *Store) ListDisputes(ctx context.Context, orderID uuid.UUID) ([]*dispute.Dispute, error) {
	return s.node.state.ListDisputes(ctx, orderID)
}

func (s *Store) ListDisputeMessages(ctx context.Context, disputeID uuid.UUID) ([]*dispute.Message, error) {
	return s.node.state.ListDisputeMessages(ctx, disputeID)
}

func (s *Store) GetReview(ctx context.Context, reviewID uuid.UUID) (*review.Review, error) {
	return s.node.state.GetReview(ctx, reviewID)
}

func (s *Store) GetReviewByOrder(ctx context.Context, orderID uuid.UUID) (*review.Review, error) {
	return s.node.state.GetReviewByOrder(ctx, orderID)
}

func (s *Store) ListReleasable(ctx context.Context, deliveredBefore time.Time, limit int) ([]uuid.UUID, error) {
	return s.node.state.ListReleasable(ctx, deliveredBefore, limit)
}

func (s *Store) ListIncidents(ctx context.Context, limit, offset int) ([]*incident.Incident, error) {
	return s.node.state.ListIncidents(ctx, limit, offset)
}
