package dispute

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/petmarket/escrow-hub/internal/apperr"
)

// Message is an immutable entry in a dispute thread.
type Message struct {
	MessageID   uuid.UUID `json:"messageId"`
	DisputeID   uuid.UUID `json:"disputeId"`
	SenderID    uuid.UUID `json:"senderId"`
	SenderRole  Party     `json:"senderRole"`
	Body        string    `json:"body"`
	Attachments []string  `json:"attachments,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewMessage appends to the thread while the dispute is still open for discussion.
func (d *Dispute) NewMessage(sender uuid.UUID, role Party, body string, attachments []string, now time.Time) (*Message, error) {
	if d.Status == StatusClosed || d.Status == StatusCancelled {
		return nil, apperr.InvalidTransition("dispute", string(d.Status), "message_posted")
	}
	body = strings.TrimSpace(body)
	if body == "" && len(attachments) == 0 {
		return nil, apperr.InvalidInput("message body is required")
	}
	return &Message{
		MessageID:   uuid.New(),
		DisputeID:   d.DisputeID,
		SenderID:    sender,
		SenderRole:  role,
		Body:        body,
		Attachments: append([]string(nil), attachments...),
		CreatedAt:   now,
	}, nil
}
