package postgres

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/petmarket/escrow-hub/internal/domain/dispute"
	"github.com/petmarket/escrow-hub/internal/domain/escrow"
	"github.com/petmarket/escrow-hub/internal/domain/order"
	"github.com/petmarket/escrow-hub/internal/domain/product"
	"github.com/petmarket/escrow-hub/internal/domain/review"
	"github.com/petmarket/escrow-hub/internal/ledger"
)

func (s *LedgerStore) GetProduct(ctx context.Context, productID uuid.UUID) (*product.Product, error) {
	row := s.pool.QueryRow(ctx, productsTable.sel+` WHERE product_id=$1`, productID)
	var p product.Product
	if err := row.Scan(&p.ProductID, &p.SellerID, &p.Name, &p.UnitPrice, &p.Stock, &p.CreatedAt, &p.UpdatedAt, &p.Version); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (s *LedgerStore) GetOrder(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, ordersTable.sel+` WHERE order_id=$1`, orderID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return o, err
}

func (s *LedgerStore) ListOrders(ctx context.Context, filter ledger.OrderFilter, limit, offset int) ([]*order.Order, error) {
	query := ordersTable.sel + ` WHERE 1=1`
	args := []any{}
	if filter.ParticipantID != nil {
		args = append(args, *filter.ParticipantID)
		n := strconv.Itoa(len(args))
		query += " AND (buyer_id=$" + n + " OR seller_id=$" + n + ")"
	}
	if filter.BuyerID != nil {
		args = append(args, *filter.BuyerID)
		query += " AND buyer_id=$" + strconv.Itoa(len(args))
	}
	if filter.SellerID != nil {
		args = append(args, *filter.SellerID)
		query += " AND seller_id=$" + strconv.Itoa(len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += " AND status=$" + strconv.Itoa(len(args))
	}
	query += " ORDER BY created_at DESC, order_id LIMIT NULLIF($" + strconv.Itoa(len(args)+1) + "::int, 0) OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *LedgerStore) GetEscrowByOrder(ctx context.Context, orderID uuid.UUID) (*escrow.Account, error) {
	row := s.pool.QueryRow(ctx, escrowTable.sel+` WHERE order_id=$1`, orderID)
	var a escrow.Account
	if err := row.Scan(&a.AccountID, &a.OrderID, &a.Status, &a.TotalPrice, &a.HeldAmount, &a.PlatformFee, &a.SellerPayout,
		&a.RefundAmount, &a.PaymentReference, &a.DisputeID, &a.ReleaseTrigger, &a.CapturedAt,
		&a.ReleasedAt, &a.RefundedAt, &a.CreatedAt, &a.UpdatedAt, &a.Version); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (s *LedgerStore) GetDispute(ctx context.Context, disputeID uuid.UUID) (*dispute.Dispute, error) {
	d, err := scanDispute(s.pool.QueryRow(ctx, disputesTable.sel+` WHERE dispute_id=$1`, disputeID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (s *LedgerStore) GetActiveDispute(ctx context.Context, orderID uuid.UUID) (*dispute.Dispute, error) {
	d, err := scanDispute(s.pool.QueryRow(ctx, disputesTable.sel+`
		WHERE order_id=$1 AND status IN ('open','under_review')
	`, orderID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (s *LedgerStore) ListDisputes(ctx context.Context, orderID uuid.UUID) ([]*dispute.Dispute, error) {
	rows, err := s.pool.Query(ctx, disputesTable.sel+` WHERE order_id=$1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*dispute.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *LedgerStore) ListDisputeMessages(ctx context.Context, disputeID uuid.UUID) ([]*dispute.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM dispute_messages WHERE dispute_id=$1 ORDER BY id
	`, disputeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*dispute.Message{}
	for rows.Next() {
		var m dispute.Message
		if err := rows.Scan(&m.MessageID, &m.DisputeID, &m.SenderID, &m.SenderRole, &m.Body, &m.Attachments, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *LedgerStore) GetReview(ctx context.Context, reviewID uuid.UUID) (*review.Review, error) {
	r, err := scanReview(s.pool.QueryRow(ctx, reviewsTable.sel+` WHERE review_id=$1`, reviewID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func (s *LedgerStore) GetReviewByOrder(ctx context.Context, orderID uuid.UUID) (*review.Review, error) {
	r, err := scanReview(s.pool.QueryRow(ctx, reviewsTable.sel+` WHERE order_id=$1`, orderID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func (s *LedgerStore) ListReleasable(ctx context.Context, deliveredBefore time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT o.order_id
		FROM orders o JOIN escrow_accounts e ON e.order_id = o.order_id
		WHERE o.status='delivered' AND o.delivered_at < $1 AND e.status='escrowed'
		ORDER BY o.delivered_at LIMIT NULLIF($2::int, 0)
	`, deliveredBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var o order.Order
	if err := row.Scan(&o.OrderID, &o.BuyerID, &o.SellerID, &o.ProductID, &o.Quantity, &o.UnitPrice, &o.ShippingFee,
		&o.TotalPrice, &o.FinalPrice, &o.Status, &o.PaymentMethod, &o.PaymentStatus,
		&o.Shipping.Name, &o.Shipping.Phone, &o.Shipping.Address, &o.ShippingCarrier, &o.TrackingNumber,
		&o.Note, &o.StatusNote, &o.CancelReason, &o.CancelledBy, &o.CreatedAt, &o.ConfirmedAt,
		&o.ProcessingAt, &o.ShippedAt, &o.DeliveredAt, &o.CancelledAt, &o.UpdatedAt, &o.Version); err != nil {
		return nil, err
	}
	return &o, nil
}

func scanDispute(row pgx.Row) (*dispute.Dispute, error) {
	var d dispute.Dispute
	if err := row.Scan(&d.DisputeID, &d.OrderID, &d.EscrowAccountID, &d.InitiatorID, &d.InitiatorRole, &d.Type,
		&d.Reason, &d.Description, &d.EvidenceURLs, &d.Status, &d.AssignedAdmin, &d.Resolution,
		&d.ResolutionType, &d.ResolutionAmount, &d.ResolvedBy, &d.CreatedAt, &d.ReviewStartedAt,
		&d.ResolvedAt, &d.ClosedAt, &d.CancelledAt, &d.UpdatedAt, &d.Version); err != nil {
		return nil, err
	}
	return &d, nil
}

func scanReview(row pgx.Row) (*review.Review, error) {
	var r review.Review
	if err := row.Scan(&r.ReviewID, &r.OrderID, &r.BuyerID, &r.SellerID, &r.ProductID, &r.Rating, &r.Comment, &r.Images,
		&r.SellerResponse, &r.RespondedAt, &r.CreatedAt, &r.Version); err != nil {
		return nil, err
	}
	return &r, nil
}
