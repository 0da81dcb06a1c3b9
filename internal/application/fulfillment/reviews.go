package fulfillment

import (
	"context"

	"github.com/google/uuid"

	"github.com/petmarket/escrow-hub/internal/apperr"
	"github.com/petmarket/escrow-hub/internal/domain/incident"
	"github.com/petmarket/escrow-hub/internal/domain/review"
	"github.com/petmarket/escrow-hub/internal/domain/user"
	"github.com/petmarket/escrow-hub/internal/ledger"
)

type CreateReviewInput struct {
	OrderID uuid.UUID `json:"orderId"`
	Rating  int       `json:"rating"`
	Comment string    `json:"comment"`
	Images  []string  `json:"images"`
}

// CreateReview publishes the buyer's single review of a delivered order.
func (s *Service) CreateReview(ctx context.Context, actor user.Actor, in CreateReviewInput) (*review.Review, error) {
	var created *review.Review
	err := s.transact(ctx, OpCreateReview, actor, in.OrderID, false, func(ctx context.Context) (*ledger.ChangeSet, error) {
		o, err := s.store.GetOrder(ctx, in.OrderID)
		if err != nil {
			return nil, err
		}
		if o == nil {
			return nil, apperr.NotFound("order")
		}
		if err := authorize(actor, OpCreateReview, o, nil); err != nil {
			return nil, err
		}
		existing, err := s.store.GetReviewByOrder(ctx, o.OrderID)
		if err != nil {
			return nil, err
		}
		now := s.now()
		r, err := review.Create(o, existing, in.Rating, in.Comment, in.Images, now)
		if err != nil {
			return nil, err
		}
		cs := &ledger.ChangeSet{}
		putReview(cs, o, r, "", reviewPublished, actor, now)
		created = r
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// RespondToReview stores the seller's one reply to a review.
func (s *Service) RespondToReview(ctx context.Context, actor user.Actor, reviewID uuid.UUID, text string) (*review.Review, error) {
	var updated *review.Review
	err := s.transact(ctx, OpRespondToReview, actor, s.orderOfReview(ctx, reviewID), false, func(ctx context.Context) (*ledger.ChangeSet, error) {
		r, err := s.store.GetReview(ctx, reviewID)
		if err != nil {
			return nil, err
		}
		if r == nil {
			return nil, apperr.NotFound("review")
		}
		o, err := s.store.GetOrder(ctx, r.OrderID)
		if err != nil {
			return nil, err
		}
		if o == nil {
			return nil, apperr.NotFound("order")
		}
		if err := authorize(actor, OpRespondToReview, o, nil); err != nil {
			return nil, err
		}
		now := s.now()
		if err := r.Respond(text, now); err != nil {
			return nil, err
		}
		cs := &ledger.ChangeSet{}
		putReview(cs, o, r, reviewPublished, reviewResponded, actor, now)
		updated = r
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListIncidents returns recorded integrity failures, newest first.
func (s *Service) ListIncidents(ctx context.Context, actor user.Actor, limit, offset int) ([]*incident.Incident, error) {
	if err := authorize(actor, OpListIncidents, nil, nil); err != nil {
		return nil, err
	}
	return s.store.ListIncidents(ctx, limit, offset)
}

// VerifyIncident checks an incident signature against the configured key.
func (s *Service) VerifyIncident(in *incident.Incident) (bool, error) {
	if len(s.cfg.IncidentSigningKey) == 0 || len(in.Signature) == 0 {
		return false, nil
	}
	return incident.VerifySignature(in, s.cfg.IncidentSigningKey)
}
