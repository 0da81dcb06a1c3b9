// Package sqlite provides a single-file ledger for edge deployments and
// local development. Aggregates are stored as JSON documents next to the
// handful of columns the ledger queries or constrains on.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/petmarket/escrow-hub/internal/apperr"
	"github.com/petmarket/escrow-hub/internal/domain/dispute"
	"github.com/petmarket/escrow-hub/internal/domain/escrow"
	"github.com/petmarket/escrow-hub/internal/domain/incident"
	"github.com/petmarket/escrow-hub/internal/domain/notification"
	"github.com/petmarket/escrow-hub/internal/domain/order"
	"github.com/petmarket/escrow-hub/internal/domain/product"
	"github.com/petmarket/escrow-hub/internal/domain/review"
	"github.com/petmarket/escrow-hub/internal/infrastructure/sqlite/migrations"
	"github.com/petmarket/escrow-hub/internal/ledger"
)

// Store implements ledger.Store on SQLite.
type Store struct {
	db *sql.DB
}

var _ ledger.Store = (*Store)(nil)

// Open opens the database at path and applies the embedded schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer at a time; commits serialize on the connection
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func limitArg(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// docTable describes a versioned document table: key column, indexed
// columns, then version and doc.
type docTable struct {
	entity string
	insert string
	update string
}

func newDocTable(entity, name, key string, cols ...string) docTable {
	all := append(append([]string{key}, cols...), "version", "doc")
	ph := strings.TrimSuffix(strings.Repeat("?, ", len(all)), ", ")
	sets := make([]string, 0, len(all)-1)
	for _, c := range all[1:] {
		sets = append(sets, c+" = ?")
	}
	return docTable{
		entity: entity,
		insert: "INSERT INTO " + name + " (" + strings.Join(all, ", ") + ") VALUES (" + ph + ")",
		update: "UPDATE " + name + " SET " + strings.Join(sets, ", ") + " WHERE " + key + " = ? AND version = ?",
	}
}

var (
	productDocs = newDocTable("product", "products", "product_id", "stock")
	orderDocs   = newDocTable("order", "orders", "order_id", "buyer_id", "seller_id", "status", "created_at", "delivered_at")
	escrowDocs  = newDocTable("escrow", "escrow_accounts", "account_id", "order_id", "status")
	disputeDocs = newDocTable("dispute", "disputes", "dispute_id", "order_id", "status", "created_at")
	reviewDocs  = newDocTable("review", "reviews", "review_id", "order_id")
)

// put inserts when expected is 0, otherwise updates only a row that still
// carries the expected version.
func put(ctx context.Context, tx *sql.Tx, t docTable, id uuid.UUID, expected, version int64, doc any, cols ...any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if expected == 0 {
		args := append(append([]any{id.String()}, cols...), version, string(raw))
		_, err := tx.ExecContext(ctx, t.insert, args...)
		return mapWriteError(t.entity, id, err)
	}
	args := append(append(cols, version, string(raw)), id.String(), expected)
	res, err := tx.ExecContext(ctx, t.update, args...)
	if err != nil {
		return mapWriteError(t.entity, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.Conflict(t.entity, id.String())
	}
	return nil
}

func mapWriteError(entity string, id uuid.UUID, err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch sqliteErr.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
		switch {
		case strings.Contains(msg, "reviews.order_id"):
			return apperr.ErrDuplicateReview
		case strings.Contains(msg, "disputes.order_id"):
			return apperr.Conflict("dispute", id.String())
		}
		return apperr.Conflict(entity, id.String())
	case sqlite3lib.SQLITE_CONSTRAINT_CHECK:
		return apperr.ErrInsufficientStock
	case sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
		return apperr.Wrap(apperr.CodeNotFound, entity+" references a missing record", err)
	}
	return err
}

// Commit applies the change set inside one transaction.
func (s *Store) Commit(ctx context.Context, cs *ledger.ChangeSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, w := range cs.Products {
		p := w.Product
		if err := put(ctx, tx, productDocs, p.ProductID, w.Expected, p.Version, p, p.Stock); err != nil {
			return err
		}
	}
	for _, w := range cs.Orders {
		o := w.Order
		if err := put(ctx, tx, orderDocs, o.OrderID, w.Expected, o.Version, o,
			o.BuyerID.String(), o.SellerID.String(), string(o.Status), toMillis(o.CreatedAt), nullMillis(o.DeliveredAt)); err != nil {
			return err
		}
	}
	for _, w := range cs.Escrows {
		a := w.Account
		if err := put(ctx, tx, escrowDocs, a.AccountID, w.Expected, a.Version, a, a.OrderID.String(), string(a.Status)); err != nil {
			return err
		}
	}
	for _, w := range cs.Disputes {
		d := w.Dispute
		if err := put(ctx, tx, disputeDocs, d.DisputeID, w.Expected, d.Version, d,
			d.OrderID.String(), string(d.Status), toMillis(d.CreatedAt)); err != nil {
			return err
		}
	}
	for _, w := range cs.Reviews {
		r := w.Review
		if err := put(ctx, tx, reviewDocs, r.ReviewID, w.Expected, r.Version, r, r.OrderID.String()); err != nil {
			return err
		}
	}
	for _, m := range cs.Messages {
		raw, err := json.Marshal(m)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO dispute_messages (message_id, dispute_id, doc) VALUES (?, ?, ?)`,
			m.MessageID.String(), m.DisputeID.String(), string(raw))
		if err != nil {
			return mapWriteError("dispute", m.DisputeID, err)
		}
	}
	for _, e := range cs.Events {
		raw, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO change_events (event_id, delivery_status, doc) VALUES (?, ?, ?)`,
			e.EventID.String(), string(e.Status), string(raw)); err != nil {
			return err
		}
	}
	for _, in := range cs.Incidents {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO incidents (incident_id, doc) VALUES (?, ?)`,
			in.IncidentID.String(), string(raw)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// getDoc decodes a single document; a missing row yields nil, nil.
func getDoc[T any](ctx context.Context, q queryer, query string, args ...any) (*T, error) {
	var raw string
	if err := q.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &v, nil
}

func listDocs[T any](ctx context.Context, q queryer, query string, args ...any) ([]*T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*T{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, productID uuid.UUID) (*product.Product, error) {
	return getDoc[product.Product](ctx, s.db, `SELECT doc FROM products WHERE product_id = ?`, productID.String())
}

func (s *Store) GetOrder(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	return getDoc[order.Order](ctx, s.db, `SELECT doc FROM orders WHERE order_id = ?`, orderID.String())
}

func (s *Store) ListOrders(ctx context.Context, filter ledger.OrderFilter, limit, offset int) ([]*order.Order, error) {
	query := `SELECT doc FROM orders WHERE 1 = 1`
	var args []any
	if filter.ParticipantID != nil {
		query += ` AND (buyer_id = ? OR seller_id = ?)`
		args = append(args, filter.ParticipantID.String(), filter.ParticipantID.String())
	}
	if filter.BuyerID != nil {
		query += ` AND buyer_id = ?`
		args = append(args, filter.BuyerID.String())
	}
	if filter.SellerID != nil {
		query += ` AND seller_id = ?`
		args = append(args, filter.SellerID.String())
	}
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}
	query += ` ORDER BY created_at DESC, order_id LIMIT ? OFFSET ?`
	args = append(args, limitArg(limit), offset)
	return listDocs[order.Order](ctx, s.db, query, args...)
}

func (s *Store) GetEscrowByOrder(ctx context.Context, orderID uuid.UUID) (*escrow.Account, error) {
	return getDoc[escrow.Account](ctx, s.db, `SELECT doc FROM escrow_accounts WHERE order_id = ?`, orderID.String())
}

func (s *Store) GetDispute(ctx context.Context, disputeID uuid.UUID) (*dispute.Dispute, error) {
	return getDoc[dispute.Dispute](ctx, s.db, `SELECT doc FROM disputes WHERE dispute_id = ?`, disputeID.String())
}

func (s *Store) GetActiveDispute(ctx context.Context, orderID uuid.UUID) (*dispute.Dispute, error) {
	return getDoc[dispute.Dispute](ctx, s.db,
		`SELECT doc FROM disputes WHERE order_id = ? AND status IN ('open', 'under_review')`, orderID.String())
}

func (s *Store) ListDisputes(ctx context.Context, orderID uuid.UUID) ([]*dispute.Dispute, error) {
	return listDocs[dispute.Dispute](ctx, s.db,
		`SELECT doc FROM disputes WHERE order_id = ? ORDER BY created_at, dispute_id`, orderID.String())
}

func (s *Store) ListDisputeMessages(ctx context.Context, disputeID uuid.UUID) ([]*dispute.Message, error) {
	return listDocs[dispute.Message](ctx, s.db,
		`SELECT doc FROM dispute_messages WHERE dispute_id = ? ORDER BY seq`, disputeID.String())
}

func (s *Store) GetReview(ctx context.Context, reviewID uuid.UUID) (*review.Review, error) {
	return getDoc[review.Review](ctx, s.db, `SELECT doc FROM reviews WHERE review_id = ?`, reviewID.String())
}

func (s *Store) GetReviewByOrder(ctx context.Context, orderID uuid.UUID) (*review.Review, error) {
	return getDoc[review.Review](ctx, s.db, `SELECT doc FROM reviews WHERE order_id = ?`, orderID.String())
}

func (s *Store) ListReleasable(ctx context.Context, deliveredBefore time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.order_id
		  FROM orders o JOIN escrow_accounts e ON e.order_id = o.order_id
		 WHERE o.status = 'delivered' AND o.delivered_at < ? AND e.status = 'escrowed'
		 ORDER BY o.delivered_at
		 LIMIT ?`, toMillis(deliveredBefore), limitArg(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) ListIncidents(ctx context.Context, limit, offset int) ([]*incident.Incident, error) {
	return listDocs[incident.Incident](ctx, s.db,
		`SELECT doc FROM incidents ORDER BY seq DESC LIMIT ? OFFSET ?`, limitArg(limit), offset)
}

func (s *Store) ListPendingEvents(ctx context.Context, limit int) ([]*notification.Event, error) {
	return listDocs[notification.Event](ctx, s.db,
		`SELECT doc FROM change_events WHERE delivery_status IN ('PENDING', 'FAILED') ORDER BY seq LIMIT ?`, limitArg(limit))
}

// UpdateEvent rewrites the delivery fields of a stored event.
func (s *Store) UpdateEvent(ctx context.Context, event *notification.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := getDoc[notification.Event](ctx, tx, `SELECT doc FROM change_events WHERE event_id = ?`, event.EventID.String())
	if err != nil {
		return err
	}
	if cur == nil {
		return apperr.NotFound("event")
	}
	cur.Status = event.Status
	cur.Attempts = event.Attempts
	cur.LastError = event.LastError
	cur.DeliveredAt = event.DeliveredAt
	raw, err := json.Marshal(cur)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE change_events SET delivery_status = ?, doc = ? WHERE event_id = ?`,
		string(cur.Status), string(raw), event.EventID.String()); err != nil {
		return err
	}
	return tx.Commit()
}
