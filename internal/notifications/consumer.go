package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox/payloads"
)

// ConsumerName scopes the processed-event marks in Redis.
const ConsumerName = "order-notifications"

type notificationWriter interface {
	Create(ctx context.Context, notification *models.Notification) (bool, error)
}

type processedTracker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Receiver is satisfied by *pubsub.Subscriber.
type Receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Consumer turns order lifecycle events into customer inbox entries.
type Consumer struct {
	repo         notificationWriter
	subscription Receiver
	idempotency  processedTracker
	logg         *logger.Logger
}

func NewConsumer(repo notificationWriter, subscription Receiver, tracker processedTracker, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("order events subscription required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		idempotency:  tracker,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if !handled(eventType) {
		c.logg.Debug(logCtx, "skipping event without customer notification")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, ConsumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	notification, err := buildNotification(eventType, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return processResult{ack: true}
	}
	if notification == nil {
		return processResult{ack: true}
	}
	notification.EventID = eventID

	logCtx = c.logg.WithUserID(logCtx, notification.CustomerID.String())
	created, err := c.repo.Create(ctx, notification)
	if err != nil {
		c.logg.Error(logCtx, "notification insert failed", err)
		_ = c.idempotency.Delete(ctx, ConsumerName, eventID)
		return processResult{nack: true}
	}
	if !created {
		c.logg.Info(logCtx, "notification already stored for event")
		return processResult{ack: true}
	}
	c.logg.Info(logCtx, "customer notified")
	return processResult{ack: true}
}

func handled(eventType enums.OutboxEventType) bool {
	switch eventType {
	case enums.EventOrderCreated, enums.EventOrderStatusChanged, enums.EventCancellationRejected:
		return true
	default:
		return false
	}
}

// buildNotification returns nil when the event carries nothing worth telling
// the customer about.
func buildNotification(eventType enums.OutboxEventType, data json.RawMessage) (*models.Notification, error) {
	switch eventType {
	case enums.EventOrderCreated:
		var payload payloads.OrderCreatedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		if payload.CustomerID == uuid.Nil {
			return nil, fmt.Errorf("customer id missing")
		}
		return orderNotification(payload.CustomerID, payload.OrderID, enums.NotificationTypeOrderUpdate,
			"Order placed",
			fmt.Sprintf("Order %s was created. Complete the payment to start processing.", payload.OrderNumber)), nil

	case enums.EventOrderStatusChanged:
		var payload payloads.OrderStatusChangedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		if payload.CustomerID == uuid.Nil {
			return nil, fmt.Errorf("customer id missing")
		}
		title, message, kind, ok := statusCopy(payload)
		if !ok {
			return nil, nil
		}
		return orderNotification(payload.CustomerID, payload.OrderID, kind, title, message), nil

	case enums.EventCancellationRejected:
		var payload payloads.CancellationRejectedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		if payload.CustomerID == uuid.Nil {
			return nil, fmt.Errorf("customer id missing")
		}
		return orderNotification(payload.CustomerID, payload.OrderID, enums.NotificationTypeCancellationUpdate,
			"Cancellation request rejected",
			fmt.Sprintf("Your cancellation request was rejected. Reason: %s", payload.AdminNotes)), nil
	}
	return nil, nil
}

func statusCopy(payload payloads.OrderStatusChangedEvent) (title, message string, kind enums.NotificationType, ok bool) {
	number := payload.OrderNumber
	switch enums.OrderStatus(payload.ToStatus) {
	case enums.OrderStatusPaid:
		return "Payment received", fmt.Sprintf("Order %s is fully paid.", number), enums.NotificationTypePaymentUpdate, true
	case enums.OrderStatusPartiallyPaid:
		return "Down payment received", fmt.Sprintf("Order %s is partially paid. Pay the remaining balance to continue.", number), enums.NotificationTypePaymentUpdate, true
	case enums.OrderStatusProcessing, enums.OrderStatusDesignApproval, enums.OrderStatusInProduction:
		return "Order in progress", fmt.Sprintf("Order %s moved to %s.", number, payload.ToStatus), enums.NotificationTypeOrderUpdate, true
	case enums.OrderStatusShipped:
		return "Order shipped", fmt.Sprintf("Order %s is on its way.", number), enums.NotificationTypeOrderUpdate, true
	case enums.OrderStatusDelivered:
		return "Order delivered", fmt.Sprintf("Order %s was delivered.", number), enums.NotificationTypeOrderUpdate, true
	case enums.OrderStatusCompleted:
		return "Order completed", fmt.Sprintf("Order %s is complete.", number), enums.NotificationTypeOrderUpdate, true
	case enums.OrderStatusCancelled:
		message := fmt.Sprintf("Order %s was cancelled.", number)
		if payload.RefundDue {
			message += " A refund is being processed."
		}
		return "Order cancelled", message, enums.NotificationTypeCancellationUpdate, true
	case enums.OrderStatusFailed:
		return "Payment failed", fmt.Sprintf("Payment for order %s failed.", number), enums.NotificationTypePaymentUpdate, true
	case enums.OrderStatusRefunded:
		return "Order refunded", fmt.Sprintf("Order %s was refunded.", number), enums.NotificationTypePaymentUpdate, true
	default:
		return "", "", "", false
	}
}

func orderNotification(customerID, orderID uuid.UUID, kind enums.NotificationType, title, message string) *models.Notification {
	link := fmt.Sprintf("/orders/%s", orderID)
	id := orderID
	return &models.Notification{
		CustomerID: customerID,
		OrderID:    &id,
		Type:       kind,
		Title:      title,
		Message:    message,
		Link:       &link,
	}
}
