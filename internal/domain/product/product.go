package product

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/petmarket/escrow-hub/internal/apperr"
)

// Product is a seller listing with available stock.
type Product struct {
	ProductID uuid.UUID `json:"productId"`
	SellerID  uuid.UUID `json:"sellerId"`
	Name      string    `json:"name"`
	UnitPrice int64     `json:"unitPrice"`
	Stock     int       `json:"stock"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Version   int64     `json:"version"`
}

// New validates and builds a listing.
func New(sellerID uuid.UUID, name string, unitPrice int64, stock int, now time.Time) (*Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.InvalidInput("name is required")
	}
	if unitPrice <= 0 {
		return nil, apperr.InvalidInput("unit_price must be positive")
	}
	if stock < 0 {
		return nil, apperr.InvalidInput("stock must not be negative")
	}
	return &Product{
		ProductID: uuid.New(),
		SellerID:  sellerID,
		Name:      name,
		UnitPrice: unitPrice,
		Stock:     stock,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Reserve decrements stock for an order of qty units.
func (p *Product) Reserve(qty int, now time.Time) error {
	if qty <= 0 {
		return apperr.InvalidInput("quantity must be positive")
	}
	if p.Stock < qty {
		return apperr.WithMetadata(apperr.CodeInsufficientStock, "insufficient stock", map[string]string{
			"productId": p.ProductID.String(),
		})
	}
	p.Stock -= qty
	p.UpdatedAt = now
	return nil
}
