package incident

import (
	"time"

	"github.com/google/uuid"
)

// Incident is a persisted record of an aborted transaction that violated a
// ledger invariant. Admins review these; they are never deleted.
type Incident struct {
	IncidentID uuid.UUID         `json:"incidentId"`
	Code       string            `json:"code"`
	OrderID    uuid.UUID         `json:"orderId"`
	Operation  string            `json:"operation"`
	Actor      string            `json:"actor"`
	Message    string            `json:"message"`
	Detail     map[string]string `json:"detail,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
	Signature  []byte            `json:"signature,omitempty"`
}

func New(code string, orderID uuid.UUID, operation, actor, message string, detail map[string]string, now time.Time) *Incident {
	d := make(map[string]string, len(detail))
	for k, v := range detail {
		d[k] = v
	}
	return &Incident{
		IncidentID: uuid.New(),
		Code:       code,
		OrderID:    orderID,
		Operation:  operation,
		Actor:      actor,
		Message:    message,
		Detail:     d,
		OccurredAt: now,
	}
}
