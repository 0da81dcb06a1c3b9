package notification

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_sink.go -package=mocks . Sink,SSEHub

import (
	"context"
)

// Sink receives committed change events. Implementations must tolerate
// redelivery of the same event.
type Sink interface {
	Name() string
	Publish(ctx context.Context, event *Event) error
}

// SSEHub defines the interface for managing SSE connections
type SSEHub interface {
	Register(client *SSEClient)
	Unregister(clientID string)
	GetClientCount() int

	BroadcastToAll(message *SSEMessage)
	BroadcastToUser(userID string, message *SSEMessage)
	BroadcastToGroup(group string, message *SSEMessage)
}
