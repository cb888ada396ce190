package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"kwetu-store/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	queue     []kafka.Message
	committed []kafka.Message
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.queue) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestEventPublisherKeysByOrder(t *testing.T) {
	w := &fakeWriter{}
	producer := &Producer{writer: w, logger: nopLogger()}
	publisher := NewEventPublisher(producer)

	event := &models.OrderPlacedEvent{
		BaseEvent:   models.NewBaseEvent(models.EventTypeOrderPlaced),
		OrderID:     "3f2a9c1e-0000-0000-0000-000000000000",
		OrderNumber: "3F2A9C1E",
		TotalAmount: decimal.RequireFromString("25.50"),
		PaidAmount:  decimal.RequireFromString("12.75"),
	}
	require.NoError(t, publisher.PublishOrderPlaced(context.Background(), event))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "order-"+event.OrderID, string(w.msgs[0].Key))

	var decoded models.OrderPlacedEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, models.EventTypeOrderPlaced, decoded.EventType)
	assert.True(t, event.PaidAmount.Equal(decoded.PaidAmount))
}

func TestProducerWrapsWriteError(t *testing.T) {
	producer := &Producer{writer: &fakeWriter{err: errors.New("broker down")}, logger: nopLogger()}
	err := producer.PublishEvent(context.Background(), "k", map[string]string{"a": "b"})
	assert.ErrorContains(t, err, "broker down")
}

func TestEventHandlerRoutesByType(t *testing.T) {
	handler := NewEventHandler()

	var got *models.PasswordResetRequestedEvent
	handler.OnPasswordResetRequested(func(_ context.Context, e *models.PasswordResetRequestedEvent) error {
		got = e
		return nil
	})

	event := models.PasswordResetRequestedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypePasswordResetRequested),
		UserID:    "u1",
		Email:     "a@example.com",
		Token:     "tok",
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	require.NoError(t, handler.HandleMessage(context.Background(), kafka.Message{Value: payload}))
	require.NotNil(t, got)
	assert.Equal(t, "tok", got.Token)

	// Unregistered and unknown types are ignored.
	unknown, _ := json.Marshal(models.NewBaseEvent("SOMETHING_ELSE"))
	assert.NoError(t, handler.HandleMessage(context.Background(), kafka.Message{Value: unknown}))

	assert.Error(t, handler.HandleMessage(context.Background(), kafka.Message{Value: []byte("{")}))
}

func TestConsumerCommitsOnlyHandledMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		queue: []kafka.Message{
			{Offset: 1, Value: []byte("ok")},
			{Offset: 2, Value: []byte("bad")},
			{Offset: 3, Value: []byte("ok")},
		},
		cancel: cancel,
	}
	consumer := &Consumer{reader: reader, topic: "store-events", logger: nopLogger()}

	err := consumer.StartConsuming(ctx, func(_ context.Context, msg kafka.Message) error {
		if string(msg.Value) == "bad" {
			return errors.New("cannot handle")
		}
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, reader.committed, 2)
	assert.Equal(t, int64(1), reader.committed[0].Offset)
	assert.Equal(t, int64(3), reader.committed[1].Offset)
}

func nopLogger() *zap.Logger { return zap.NewNop() }
