package sse

import (
	"context"

	"github.com/google/uuid"

	"github.com/petmarket/escrow-hub/internal/domain/notification"
)

// Sink pushes change events to the order's buyer and seller, and to admins
// for dispute and incident events. Stale or repeated versions are dropped.
type Sink struct {
	hub     notification.SSEHub
	tracker *notification.Tracker
}

func NewSink(hub notification.SSEHub) *Sink {
	return &Sink{hub: hub, tracker: notification.NewTracker(notification.DefaultTrackerCapacity)}
}

func (s *Sink) Name() string { return "sse" }

func (s *Sink) Publish(_ context.Context, e *notification.Event) error {
	if !s.tracker.ShouldApply(e.EntityType, e.EntityID, e.Version) {
		return nil
	}
	msg, err := notification.MessageFor(e)
	if err != nil {
		return err
	}
	for _, id := range []uuid.UUID{e.BuyerID, e.SellerID} {
		if id != uuid.Nil {
			s.hub.BroadcastToUser(id.String(), msg)
		}
	}
	switch e.EntityType {
	case notification.EntityDispute, notification.EntityDisputeMessage, notification.EntityIncident:
		s.hub.BroadcastToGroup(notification.AdminGroup, msg)
	}
	return nil
}
