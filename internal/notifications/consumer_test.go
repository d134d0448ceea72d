package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

type stubWriter struct {
	createFn func(ctx context.Context, n *models.Notification) (bool, error)
	created  []*models.Notification
}

func (s *stubWriter) Create(ctx context.Context, n *models.Notification) (bool, error) {
	if s.createFn != nil {
		return s.createFn(ctx, n)
	}
	s.created = append(s.created, n)
	return true, nil
}

type stubTracker struct {
	seen    map[uuid.UUID]bool
	deleted []uuid.UUID
	err     error
}

func newStubTracker() *stubTracker {
	return &stubTracker{seen: map[uuid.UUID]bool{}}
}

func (s *stubTracker) CheckAndMarkProcessed(_ context.Context, _ string, eventID uuid.UUID) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if s.seen[eventID] {
		return true, nil
	}
	s.seen[eventID] = true
	return false, nil
}

func (s *stubTracker) Delete(_ context.Context, _ string, eventID uuid.UUID) error {
	delete(s.seen, eventID)
	s.deleted = append(s.deleted, eventID)
	return nil
}

type noopReceiver struct{}

func (noopReceiver) Receive(context.Context, func(context.Context, *pubsub.Message)) error {
	return nil
}

func newTestConsumer(t *testing.T, writer *stubWriter, tracker *stubTracker) *Consumer {
	t.Helper()
	c, err := NewConsumer(writer, noopReceiver{}, tracker, logger.New(logger.Options{ServiceName: "notifications-test", Output: io.Discard}))
	require.NoError(t, err)
	return c
}

func buildMessage(t *testing.T, eventType enums.OutboxEventType, eventID uuid.UUID, data any) *pubsub.Message {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	body, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	require.NoError(t, err)
	return &pubsub.Message{
		ID:         uuid.NewString(),
		Data:       body,
		Attributes: map[string]string{"event_type": string(eventType)},
	}
}

func TestConsumerNotifiesOnShipment(t *testing.T) {
	writer := &stubWriter{}
	consumer := newTestConsumer(t, writer, newStubTracker())
	customer, order, eventID := uuid.New(), uuid.New(), uuid.New()

	result := consumer.process(context.Background(), buildMessage(t, enums.EventOrderStatusChanged, eventID, payloads.OrderStatusChangedEvent{
		OrderID:     order,
		OrderNumber: "ORD-20260105-ABC123",
		CustomerID:  customer,
		FromStatus:  string(enums.OrderStatusInProduction),
		ToStatus:    string(enums.OrderStatusShipped),
	}))

	require.True(t, result.ack)
	require.Len(t, writer.created, 1)
	n := writer.created[0]
	require.Equal(t, customer, n.CustomerID)
	require.Equal(t, eventID, n.EventID)
	require.Equal(t, enums.NotificationTypeOrderUpdate, n.Type)
	require.Equal(t, "Order shipped", n.Title)
	require.Contains(t, n.Message, "ORD-20260105-ABC123")
	require.Equal(t, "/orders/"+order.String(), *n.Link)
}

func TestConsumerMentionsRefundOnCancellation(t *testing.T) {
	writer := &stubWriter{}
	consumer := newTestConsumer(t, writer, newStubTracker())

	consumer.process(context.Background(), buildMessage(t, enums.EventOrderStatusChanged, uuid.New(), payloads.OrderStatusChangedEvent{
		OrderID:     uuid.New(),
		OrderNumber: "ORD-1",
		CustomerID:  uuid.New(),
		ToStatus:    string(enums.OrderStatusCancelled),
		RefundDue:   true,
	}))

	require.Len(t, writer.created, 1)
	require.Equal(t, enums.NotificationTypeCancellationUpdate, writer.created[0].Type)
	require.Contains(t, writer.created[0].Message, "refund")
}

func TestConsumerNotifiesRejectedCancellation(t *testing.T) {
	writer := &stubWriter{}
	consumer := newTestConsumer(t, writer, newStubTracker())
	customer := uuid.New()

	consumer.process(context.Background(), buildMessage(t, enums.EventCancellationRejected, uuid.New(), payloads.CancellationRejectedEvent{
		RequestID:  uuid.New(),
		OrderID:    uuid.New(),
		CustomerID: customer,
		AdminNotes: "already in production",
	}))

	require.Len(t, writer.created, 1)
	require.Equal(t, customer, writer.created[0].CustomerID)
	require.Contains(t, writer.created[0].Message, "already in production")
}

func TestConsumerSkipsReplayedEvent(t *testing.T) {
	writer := &stubWriter{}
	consumer := newTestConsumer(t, writer, newStubTracker())
	msg := buildMessage(t, enums.EventOrderCreated, uuid.New(), payloads.OrderCreatedEvent{
		OrderID:     uuid.New(),
		OrderNumber: "ORD-1",
		CustomerID:  uuid.New(),
	})

	require.True(t, consumer.process(context.Background(), msg).ack)
	require.True(t, consumer.process(context.Background(), msg).ack)
	require.Len(t, writer.created, 1)
}

func TestConsumerAcksUnhandledEvents(t *testing.T) {
	writer := &stubWriter{}
	tracker := newStubTracker()
	consumer := newTestConsumer(t, writer, tracker)

	result := consumer.process(context.Background(), buildMessage(t, enums.EventPaymentInitiated, uuid.New(), payloads.PaymentInitiatedEvent{}))
	require.True(t, result.ack)
	require.Empty(t, writer.created)
	require.Empty(t, tracker.seen)

	result = consumer.process(context.Background(), buildMessage(t, enums.EventOrderStatusChanged, uuid.New(), payloads.OrderStatusChangedEvent{
		OrderID:    uuid.New(),
		CustomerID: uuid.New(),
		ToStatus:   string(enums.OrderStatusPendingPayment),
	}))
	require.True(t, result.ack)
	require.Empty(t, writer.created)
}

func TestConsumerNacksAndForgetsOnInsertFailure(t *testing.T) {
	writer := &stubWriter{createFn: func(context.Context, *models.Notification) (bool, error) {
		return false, errors.New("connection refused")
	}}
	tracker := newStubTracker()
	consumer := newTestConsumer(t, writer, tracker)
	eventID := uuid.New()

	result := consumer.process(context.Background(), buildMessage(t, enums.EventOrderCreated, eventID, payloads.OrderCreatedEvent{
		OrderID:    uuid.New(),
		CustomerID: uuid.New(),
	}))

	require.True(t, result.nack)
	require.Equal(t, []uuid.UUID{eventID}, tracker.deleted)
}

func TestConsumerNacksWhenTrackerUnavailable(t *testing.T) {
	tracker := newStubTracker()
	tracker.err = errors.New("redis down")
	consumer := newTestConsumer(t, &stubWriter{}, tracker)

	result := consumer.process(context.Background(), buildMessage(t, enums.EventOrderCreated, uuid.New(), payloads.OrderCreatedEvent{
		OrderID:    uuid.New(),
		CustomerID: uuid.New(),
	}))
	require.True(t, result.nack)
}

func TestConsumerAcksMalformedEnvelope(t *testing.T) {
	consumer := newTestConsumer(t, &stubWriter{}, newStubTracker())
	msg := &pubsub.Message{
		ID:         "m-1",
		Data:       []byte("{not json"),
		Attributes: map[string]string{"event_type": string(enums.EventOrderCreated)},
	}
	require.True(t, consumer.process(context.Background(), msg).ack)
}
