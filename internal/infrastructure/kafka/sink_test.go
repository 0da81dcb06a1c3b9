package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petmarket/escrow-hub/internal/domain/notification"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestNewSinkValidates(t *testing.T) {
	_, err := NewSink(nil, "events")
	assert.Error(t, err)
	_, err = NewSink([]string{"localhost:9092"}, "")
	assert.Error(t, err)

	s, err := NewSink([]string{"localhost:9092"}, "escrow.events")
	require.NoError(t, err)
	assert.Equal(t, "kafka", s.Name())
}

func TestPublishKeysByOrder(t *testing.T) {
	w := &recordingWriter{}
	s := &Sink{writer: w}
	subject := notification.Subject{OrderID: uuid.New(), BuyerID: uuid.New(), SellerID: uuid.New()}
	e := notification.NewEvent(notification.EntityEscrow, uuid.New(), subject, 2, "none", "escrowed", "system:x", time.Now().UTC())

	require.NoError(t, s.Publish(context.Background(), e))
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, subject.OrderID.String(), string(msg.Key))
	assert.Equal(t, "event_id", msg.Headers[0].Key)
	assert.Equal(t, e.EventID.String(), string(msg.Headers[0].Value))

	var got notification.Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "escrowed", got.NewStatus)
	assert.Equal(t, int64(2), got.Version)
}

func TestPublishPropagatesWriterError(t *testing.T) {
	s := &Sink{writer: &recordingWriter{err: errors.New("leader not available")}}
	e := notification.NewEvent(notification.EntityOrder, uuid.New(), notification.Subject{}, 1, "", "pending", "user:x", time.Now().UTC())
	assert.EqualError(t, s.Publish(context.Background(), e), "leader not available")
}
