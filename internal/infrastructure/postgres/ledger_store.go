package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/petmarket/escrow-hub/internal/apperr"
	"github.com/petmarket/escrow-hub/internal/domain/dispute"
	"github.com/petmarket/escrow-hub/internal/domain/escrow"
	"github.com/petmarket/escrow-hub/internal/domain/incident"
	"github.com/petmarket/escrow-hub/internal/domain/notification"
	"github.com/petmarket/escrow-hub/internal/domain/order"
	"github.com/petmarket/escrow-hub/internal/ledger"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// LedgerStore implements ledger.Store on PostgreSQL.
type LedgerStore struct {
	pool *pgxpool.Pool
}

var _ ledger.Store = (*LedgerStore)(nil)

func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Commit writes the change set in one transaction. Updates are guarded by
// the expected version so a concurrent writer surfaces as CONFLICT.
func (s *LedgerStore) Commit(ctx context.Context, cs *ledger.ChangeSet) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, w := range cs.Products {
		p := w.Product
		if err := put(ctx, tx, productsTable, "product", p.ProductID, w.Expected,
			p.ProductID, p.SellerID, p.Name, p.UnitPrice, p.Stock, p.CreatedAt, p.UpdatedAt, p.Version); err != nil {
			return err
		}
	}
	for _, w := range cs.Orders {
		if err := put(ctx, tx, ordersTable, "order", w.Order.OrderID, w.Expected, orderArgs(w.Order)...); err != nil {
			return err
		}
	}
	for _, w := range cs.Escrows {
		if err := put(ctx, tx, escrowTable, "escrow", w.Account.AccountID, w.Expected, escrowArgs(w.Account)...); err != nil {
			return err
		}
	}
	for _, w := range cs.Disputes {
		if err := put(ctx, tx, disputesTable, "dispute", w.Dispute.DisputeID, w.Expected, disputeArgs(w.Dispute)...); err != nil {
			return err
		}
	}
	for _, w := range cs.Reviews {
		r := w.Review
		if err := put(ctx, tx, reviewsTable, "review", r.ReviewID, w.Expected,
			r.ReviewID, r.OrderID, r.BuyerID, r.SellerID, r.ProductID, r.Rating, r.Comment, textArray(r.Images),
			r.SellerResponse, r.RespondedAt, r.CreatedAt, r.Version); err != nil {
			return err
		}
	}
	for _, m := range cs.Messages {
		_, err := tx.Exec(ctx, `INSERT INTO dispute_messages (`+messageColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			m.MessageID, m.DisputeID, m.SenderID, m.SenderRole, m.Body, textArray(m.Attachments), m.CreatedAt)
		if err != nil {
			return mapWriteError("dispute_message", m.MessageID, err)
		}
	}
	for _, e := range cs.Events {
		_, err := tx.Exec(ctx, `INSERT INTO change_events (`+eventColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
			e.EventID, e.EntityType, e.EntityID, e.OrderID, e.BuyerID, e.SellerID, e.Version, e.OldStatus, e.NewStatus,
			e.Actor, e.OccurredAt, e.Status, e.Attempts, e.MaxAttempts, e.LastError, e.DeliveredAt)
		if err != nil {
			return err
		}
	}
	for _, in := range cs.Incidents {
		detail, err := json.Marshal(in.Detail)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `INSERT INTO incidents (`+incidentColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			in.IncidentID, in.Code, in.OrderID, in.Operation, in.Actor, in.Message, detail, in.OccurredAt, in.Signature)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// put inserts when expected is 0 and otherwise updates the row only if it
// still carries the expected version.
func put(ctx context.Context, q querier, t table, entity string, id uuid.UUID, expected int64, args ...any) error {
	if expected == 0 {
		_, err := q.Exec(ctx, t.insert, args...)
		return mapWriteError(entity, id, err)
	}
	tag, err := q.Exec(ctx, t.update, append(args, expected)...)
	if err != nil {
		return mapWriteError(entity, id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict(entity, id.String())
	}
	return nil
}

func mapWriteError(entity string, id uuid.UUID, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		switch pgErr.ConstraintName {
		case "reviews_order_key":
			return apperr.ErrDuplicateReview
		case "disputes_one_active_per_order":
			return apperr.Conflict("dispute", id.String())
		}
		return apperr.Conflict(entity, id.String())
	case pgCheckViolation:
		if pgErr.ConstraintName == "products_stock_check" {
			return apperr.ErrInsufficientStock
		}
		return apperr.Wrap(apperr.CodeInvalidInput, entity+" rejected by constraint", err)
	case pgForeignKeyViolation:
		return apperr.Wrap(apperr.CodeNotFound, entity+" references a missing record", err)
	}
	return err
}

func orderArgs(o *order.Order) []any {
	return []any{
		o.OrderID, o.BuyerID, o.SellerID, o.ProductID, o.Quantity, o.UnitPrice, o.ShippingFee,
		o.TotalPrice, o.FinalPrice, o.Status, o.PaymentMethod, o.PaymentStatus,
		o.Shipping.Name, o.Shipping.Phone, o.Shipping.Address, o.ShippingCarrier, o.TrackingNumber,
		o.Note, o.StatusNote, o.CancelReason, o.CancelledBy, o.CreatedAt, o.ConfirmedAt,
		o.ProcessingAt, o.ShippedAt, o.DeliveredAt, o.CancelledAt, o.UpdatedAt, o.Version,
	}
}

func escrowArgs(a *escrow.Account) []any {
	return []any{
		a.AccountID, a.OrderID, a.Status, a.TotalPrice, a.HeldAmount, a.PlatformFee, a.SellerPayout,
		a.RefundAmount, a.PaymentReference, a.DisputeID, a.ReleaseTrigger, a.CapturedAt,
		a.ReleasedAt, a.RefundedAt, a.CreatedAt, a.UpdatedAt, a.Version,
	}
}

func disputeArgs(d *dispute.Dispute) []any {
	return []any{
		d.DisputeID, d.OrderID, d.EscrowAccountID, d.InitiatorID, d.InitiatorRole, d.Type,
		d.Reason, d.Description, textArray(d.EvidenceURLs), d.Status, d.AssignedAdmin, d.Resolution,
		d.ResolutionType, d.ResolutionAmount, d.ResolvedBy, d.CreatedAt, d.ReviewStartedAt,
		d.ResolvedAt, d.ClosedAt, d.CancelledAt, d.UpdatedAt, d.Version,
	}
}

func (s *LedgerStore) ListPendingEvents(ctx context.Context, limit int) ([]*notification.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM change_events WHERE delivery_status IN ('PENDING','FAILED')
		ORDER BY seq LIMIT NULLIF($1::int, 0)
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*notification.Event
	for rows.Next() {
		var e notification.Event
		if err := rows.Scan(&e.EventID, &e.EntityType, &e.EntityID, &e.OrderID, &e.BuyerID, &e.SellerID, &e.Version,
			&e.OldStatus, &e.NewStatus, &e.Actor, &e.OccurredAt, &e.Status, &e.Attempts, &e.MaxAttempts,
			&e.LastError, &e.DeliveredAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *LedgerStore) UpdateEvent(ctx context.Context, e *notification.Event) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE change_events SET delivery_status=$1, attempts=$2, last_error=$3, delivered_at=$4
		WHERE event_id=$5
	`, e.Status, e.Attempts, e.LastError, e.DeliveredAt, e.EventID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("event")
	}
	return nil
}

func (s *LedgerStore) ListIncidents(ctx context.Context, limit, offset int) ([]*incident.Incident, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents ORDER BY seq DESC LIMIT NULLIF($1::int, 0) OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*incident.Incident
	for rows.Next() {
		var in incident.Incident
		var detail []byte
		if err := rows.Scan(&in.IncidentID, &in.Code, &in.OrderID, &in.Operation, &in.Actor, &in.Message,
			&detail, &in.OccurredAt, &in.Signature); err != nil {
			return nil, err
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &in.Detail); err != nil {
				return nil, err
			}
		}
		out = append(out, &in)
	}
	return out, rows.Err()
}
