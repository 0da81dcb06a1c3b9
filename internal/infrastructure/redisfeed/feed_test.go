package redisfeed

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/petmarket/escrow-hub/internal/domain/notification"
	"github.com/petmarket/escrow-hub/internal/domain/notification/mocks"
)

func TestRelayDecodesAndForwards(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := mocks.NewMockSink(ctrl)
	s := NewSubscriber(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "escrow-events", local, zerolog.Nop())

	subject := notification.Subject{OrderID: uuid.New(), BuyerID: uuid.New(), SellerID: uuid.New()}
	e := notification.NewEvent(notification.EntityReview, uuid.New(), subject, 1, "", "published", "user:x", time.Now().UTC())
	payload, err := json.Marshal(e)
	require.NoError(t, err)

	local.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, got *notification.Event) error {
			assert.Equal(t, e.EventID, got.EventID)
			assert.Equal(t, subject.BuyerID, got.BuyerID)
			assert.Equal(t, "published", got.NewStatus)
			return nil
		})
	s.relay(context.Background(), string(payload))
}

func TestRelayDropsMalformedPayload(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := mocks.NewMockSink(ctrl)
	s := NewSubscriber(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "escrow-events", local, zerolog.Nop())

	s.relay(context.Background(), "{not json")
}

func TestConnectRejectsBadURL(t *testing.T) {
	_, err := Connect(context.Background(), "redis://:bad@host:notaport")
	assert.Error(t, err)
}
