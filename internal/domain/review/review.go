package review

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/petmarket/escrow-hub/internal/apperr"
	"github.com/petmarket/escrow-hub/internal/domain/order"
)

// Review is one buyer rating of a delivered order.
type Review struct {
	ReviewID       uuid.UUID  `json:"reviewId"`
	OrderID        uuid.UUID  `json:"orderId"`
	BuyerID        uuid.UUID  `json:"buyerId"`
	SellerID       uuid.UUID  `json:"sellerId"`
	ProductID      uuid.UUID  `json:"productId"`
	Rating         int        `json:"rating"`
	Comment        string     `json:"comment,omitempty"`
	Images         []string   `json:"images,omitempty"`
	SellerResponse string     `json:"sellerResponse,omitempty"`
	RespondedAt    *time.Time `json:"respondedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	Version        int64      `json:"version"`
}

// Create applies the review gate: the order must be delivered and not yet reviewed.
func Create(o *order.Order, existing *Review, rating int, comment string, images []string, now time.Time) (*Review, error) {
	if o.Status != order.StatusDelivered {
		return nil, apperr.WithMetadata(apperr.CodeOrderNotDelivered, "order has not been delivered", map[string]string{
			"orderId": o.OrderID.String(),
			"status":  string(o.Status),
		})
	}
	if existing != nil {
		return nil, apperr.WithMetadata(apperr.CodeDuplicateReview, "order already reviewed", map[string]string{
			"reviewId": existing.ReviewID.String(),
		})
	}
	if rating < 1 || rating > 5 {
		return nil, apperr.InvalidInput("rating must be between 1 and 5")
	}
	return &Review{
		ReviewID:  uuid.New(),
		OrderID:   o.OrderID,
		BuyerID:   o.BuyerID,
		SellerID:  o.SellerID,
		ProductID: o.ProductID,
		Rating:    rating,
		Comment:   strings.TrimSpace(comment),
		Images:    append([]string(nil), images...),
		CreatedAt: now,
	}, nil
}

// Respond records the seller's single reply.
func (r *Review) Respond(text string, now time.Time) error {
	if r.RespondedAt != nil {
		return apperr.InvalidTransition("review", "responded", "responded")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return apperr.InvalidInput("response is required")
	}
	r.SellerResponse = text
	t := now
	r.RespondedAt = &t
	return nil
}

func (r *Review) Clone() *Review {
	c := *r
	c.Images = append([]string(nil), r.Images...)
	return &c
}
