package notification

import (
	"encoding/json"
	"time"
)

const sseBuffer = 100

// AdminGroup is the SSE group every admin connection joins.
const AdminGroup = "role:ADMIN"

// SSEClient is one open event stream.
type SSEClient struct {
	ClientID    string
	UserID      *string
	Groups      []string
	ConnectedAt time.Time
	MessageChan chan *SSEMessage
}

func NewSSEClient(clientID string, userID *string, groups []string) *SSEClient {
	return &SSEClient{
		ClientID:    clientID,
		UserID:      userID,
		Groups:      groups,
		ConnectedAt: time.Now().UTC(),
		MessageChan: make(chan *SSEMessage, sseBuffer),
	}
}

// Close closes the client's message channel. Only the hub calls it.
func (c *SSEClient) Close() {
	close(c.MessageChan)
}

// SSEMessage is one frame on the stream. ID is the change event id so a
// reconnecting client can tell which frames it already applied.
type SSEMessage struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// MessageFor renders a change event as an SSE frame named after its entity type.
func MessageFor(e *Event) (*SSEMessage, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return &SSEMessage{
		ID:        e.EventID.String(),
		Event:     string(e.EntityType),
		Data:      data,
		Timestamp: e.OccurredAt,
	}, nil
}
