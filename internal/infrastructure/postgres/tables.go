package postgres

import (
	"strconv"
	"strings"
)

// table holds the column layout of a versioned aggregate table. The first
// column is the primary key and the last one is the version.
type table struct {
	name   string
	cols   []string
	insert string
	update string
	sel    string
}

func newTable(name string, cols ...string) table {
	t := table{name: name, cols: cols}

	ph := make([]string, len(cols))
	for i := range cols {
		ph[i] = "$" + strconv.Itoa(i+1)
	}
	t.insert = "INSERT INTO " + name + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(ph, ", ") + ")"

	sets := make([]string, 0, len(cols)-1)
	for i := 1; i < len(cols); i++ {
		sets = append(sets, cols[i]+"=$"+strconv.Itoa(i+1))
	}
	t.update = "UPDATE " + name + " SET " + strings.Join(sets, ", ") +
		" WHERE " + cols[0] + "=$1 AND version=$" + strconv.Itoa(len(cols)+1)

	t.sel = "SELECT " + strings.Join(cols, ", ") + " FROM " + name
	return t
}

// columns returns the column list qualified with alias.
func (t table) columns(alias string) string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = alias + "." + c
	}
	return strings.Join(out, ", ")
}

var (
	productsTable = newTable("products",
		"product_id", "seller_id", "name", "unit_price", "stock", "created_at", "updated_at", "version")

	ordersTable = newTable("orders",
		"order_id", "buyer_id", "seller_id", "product_id", "quantity", "unit_price", "shipping_fee",
		"total_price", "final_price", "status", "payment_method", "payment_status",
		"shipping_name", "shipping_phone", "shipping_address", "shipping_carrier", "tracking_number",
		"note", "status_note", "cancel_reason", "cancelled_by", "created_at", "confirmed_at",
		"processing_at", "shipped_at", "delivered_at", "cancelled_at", "updated_at", "version")

	escrowTable = newTable("escrow_accounts",
		"account_id", "order_id", "status", "total_price", "held_amount", "platform_fee", "seller_payout",
		"refund_amount", "payment_reference", "dispute_id", "release_trigger", "captured_at",
		"released_at", "refunded_at", "created_at", "updated_at", "version")

	disputesTable = newTable("disputes",
		"dispute_id", "order_id", "escrow_account_id", "initiator_id", "initiator_role", "dispute_type",
		"reason", "description", "evidence_urls", "status", "assigned_admin", "resolution",
		"resolution_type", "resolution_amount", "resolved_by", "created_at", "review_started_at",
		"resolved_at", "closed_at", "cancelled_at", "updated_at", "version")

	reviewsTable = newTable("reviews",
		"review_id", "order_id", "buyer_id", "seller_id", "product_id", "rating", "comment", "images",
		"seller_response", "responded_at", "created_at", "version")
)

const (
	messageColumns  = "message_id, dispute_id, sender_id, sender_role, body, attachments, created_at"
	eventColumns    = "event_id, entity_type, entity_id, order_id, buyer_id, seller_id, version, old_status, new_status, actor, occurred_at, delivery_status, attempts, max_attempts, last_error, delivered_at"
	incidentColumns = "incident_id, code, order_id, operation, actor, message, detail, occurred_at, signature"
)

func textArray(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
