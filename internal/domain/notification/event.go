package notification

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// EntityType names the aggregate a change event describes.
type EntityType string

const (
	EntityOrder          EntityType = "order"
	EntityEscrow         EntityType = "escrow"
	EntityDispute        EntityType = "dispute"
	EntityDisputeMessage EntityType = "dispute_message"
	EntityReview         EntityType = "review"
	EntityIncident       EntityType = "incident"
)

// Status represents the delivery status of a change event.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
	StatusDead      Status = "DEAD"
)

const DefaultMaxAttempts = 5

var (
	ErrInvalidTransition = errors.New("invalid delivery status transition")
	ErrClientNotFound    = errors.New("SSE client not found")
	ErrChannelFull       = errors.New("SSE message channel full")
)

// Event is a committed state transition queued for at-least-once delivery.
// Consumers apply it only if Version is newer than what they hold for the entity.
type Event struct {
	EventID     uuid.UUID  `json:"eventId"`
	EntityType  EntityType `json:"entityType"`
	EntityID    uuid.UUID  `json:"entityId"`
	OrderID     uuid.UUID  `json:"orderId"`
	BuyerID     uuid.UUID  `json:"buyerId"`
	SellerID    uuid.UUID  `json:"sellerId"`
	Version     int64      `json:"version"`
	OldStatus   string     `json:"oldStatus,omitempty"`
	NewStatus   string     `json:"newStatus"`
	Actor       string     `json:"actor"`
	OccurredAt  time.Time  `json:"occurredAt"`
	Status      Status     `json:"deliveryStatus"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"maxAttempts"`
	LastError   *string    `json:"lastError,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
}

// Subject identifies the order parties an event concerns.
type Subject struct {
	OrderID  uuid.UUID
	BuyerID  uuid.UUID
	SellerID uuid.UUID
}

// NewEvent creates a pending change event.
func NewEvent(entityType EntityType, entityID uuid.UUID, subject Subject, version int64, oldStatus, newStatus, actor string, now time.Time) *Event {
	return &Event{
		EventID:     uuid.New(),
		EntityType:  entityType,
		EntityID:    entityID,
		OrderID:     subject.OrderID,
		BuyerID:     subject.BuyerID,
		SellerID:    subject.SellerID,
		Version:     version,
		OldStatus:   oldStatus,
		NewStatus:   newStatus,
		Actor:       actor,
		OccurredAt:  now,
		Status:      StatusPending,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// CanTransitionTo checks if a transition to the target status is valid.
func (e *Event) CanTransitionTo(target Status) bool {
	transitions := map[Status][]Status{
		StatusPending:   {StatusDelivered, StatusFailed, StatusDead},
		StatusFailed:    {StatusDelivered, StatusFailed, StatusDead},
		StatusDelivered: {},
		StatusDead:      {},
	}
	for _, s := range transitions[e.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// MarkDelivered marks the event as delivered to every sink.
func (e *Event) MarkDelivered(now time.Time) error {
	if !e.CanTransitionTo(StatusDelivered) {
		return ErrInvalidTransition
	}
	e.Status = StatusDelivered
	e.Attempts++
	e.LastError = nil
	t := now
	e.DeliveredAt = &t
	return nil
}

// MarkFailed records a failed attempt; the event goes dead once attempts are exhausted.
func (e *Event) MarkFailed(errMsg string) error {
	if !e.CanTransitionTo(StatusFailed) {
		return ErrInvalidTransition
	}
	e.Attempts++
	e.LastError = &errMsg
	if e.MaxAttempts > 0 && e.Attempts >= e.MaxAttempts {
		e.Status = StatusDead
		return nil
	}
	e.Status = StatusFailed
	return nil
}

// CanRetry reports whether the dispatcher should pick the event up again.
func (e *Event) CanRetry() bool {
	return e.Status == StatusPending || e.Status == StatusFailed
}

func (e *Event) IsTerminal() bool {
	return e.Status == StatusDelivered || e.Status == StatusDead
}

func (e *Event) Clone() *Event {
	c := *e
	return &c
}
