// Package ledger defines the durable store that owns all fulfillment state.
// Every write goes through Commit with per-record version preconditions so
// concurrent read-modify-write cycles are detected instead of lost.
package ledger

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
)

// OrderFilter narrows order listings. ParticipantID matches buyer or seller.
type OrderFilter struct {
	ParticipantID *uuid.UUID
	BuyerID       *uuid.UUID
	SellerID      *uuid.UUID
	Status        *order.Status
}

// Reader loads aggregates. Single-record getters return nil, nil when absent.
type Reader interface {
	GetProduct(ctx context.Context, productID uuid.UUID) (*product.Product, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*order.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter, limit, offset int) ([]*order.Order, error)
	GetEscrowByOrder(ctx context.Context, orderID uuid.UUID) (*escrow.Account, error)
	GetDispute(ctx context.Context, disputeID uuid.UUID) (*dispute.Dispute, error)
	GetActiveDispute(ctx context.Context, orderID uuid.UUID) (*dispute.Dispute, error)
	ListDisputes(ctx context.Context, orderID uuid.UUID) ([]*dispute.Dispute, error)
	ListDisputeMessages(ctx context.Context, disputeID uuid.UUID) ([]*dispute.Message, error)
	GetReview(ctx context.Context, reviewID uuid.UUID) (*review.Review, error)
	GetReviewByOrder(ctx context.Context, orderID uuid.UUID) (*review.Review, error)
	// ListReleasable returns ids of delivered orders whose escrow is still
	// held and whose delivery happened before the cutoff.
	ListReleasable(ctx context.Context, deliveredBefore time.Time, limit int) ([]uuid.UUID, error)
	ListIncidents(ctx context.Context, limit, offset int) ([]*incident.Incident, error)
}

// Outbox exposes queued change events to the dispatcher.
type Outbox interface {
	ListPendingEvents(ctx context.Context, limit int) ([]*notification.Event, error)
	// UpdateEvent persists delivery status, attempts and last error only.
	UpdateEvent(ctx context.Context, event *notification.Event) error
}

// Store is the single source of truth.
type Store interface {
	Reader
	Outbox
	// Commit applies every write in cs atomically or none of them.
	// A stale expected version fails with apperr CONFLICT.
	Commit(ctx context.Context, cs *ChangeSet) error
}
