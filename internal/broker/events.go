package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"kwetu-store/internal/models"
	"kwetu-store/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher sends an encoded event under a partition key.
type Publisher interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer Publisher
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer Publisher) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderPlaced publishes OrderPlaced event
func (ep *EventPublisher) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	return ep.producer.PublishEvent(ctx, "order-"+event.OrderID, event)
}

// PublishOrderStatusChanged publishes OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, "order-"+event.OrderID, event)
}

// PublishPasswordResetRequested publishes PasswordResetRequested event
func (ep *EventPublisher) PublishPasswordResetRequested(ctx context.Context, event *models.PasswordResetRequestedEvent) error {
	return ep.producer.PublishEvent(ctx, "user-"+event.UserID, event)
}

// PublishAdminRoleGranted publishes AdminRoleGranted event
func (ep *EventPublisher) PublishAdminRoleGranted(ctx context.Context, event *models.AdminRoleGrantedEvent) error {
	return ep.producer.PublishEvent(ctx, "user-"+event.UserID, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onOrderPlaced            func(context.Context, *models.OrderPlacedEvent) error
	onOrderStatusChanged     func(context.Context, *models.OrderStatusChangedEvent) error
	onPasswordResetRequested func(context.Context, *models.PasswordResetRequestedEvent) error
	onAdminRoleGranted       func(context.Context, *models.AdminRoleGrantedEvent) error
	logger                   *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.Component("events")}
}

// OnOrderPlaced registers a handler for OrderPlaced events
func (eh *EventHandler) OnOrderPlaced(handler func(context.Context, *models.OrderPlacedEvent) error) {
	eh.onOrderPlaced = handler
}

// OnOrderStatusChanged registers a handler for OrderStatusChanged events
func (eh *EventHandler) OnOrderStatusChanged(handler func(context.Context, *models.OrderStatusChangedEvent) error) {
	eh.onOrderStatusChanged = handler
}

// OnPasswordResetRequested registers a handler for PasswordResetRequested events
func (eh *EventHandler) OnPasswordResetRequested(handler func(context.Context, *models.PasswordResetRequestedEvent) error) {
	eh.onPasswordResetRequested = handler
}

// OnAdminRoleGranted registers a handler for AdminRoleGranted events
func (eh *EventHandler) OnAdminRoleGranted(handler func(context.Context, *models.AdminRoleGrantedEvent) error) {
	eh.onAdminRoleGranted = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOrderPlaced:
		if eh.onOrderPlaced != nil {
			var event models.OrderPlacedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderPlaced event: %w", err)
			}
			return eh.onOrderPlaced(ctx, &event)
		}

	case models.EventTypeOrderStatusChanged:
		if eh.onOrderStatusChanged != nil {
			var event models.OrderStatusChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderStatusChanged event: %w", err)
			}
			return eh.onOrderStatusChanged(ctx, &event)
		}

	case models.EventTypePasswordResetRequested:
		if eh.onPasswordResetRequested != nil {
			var event models.PasswordResetRequestedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PasswordResetRequested event: %w", err)
			}
			return eh.onPasswordResetRequested(ctx, &event)
		}

	case models.EventTypeAdminRoleGranted:
		if eh.onAdminRoleGranted != nil {
			var event models.AdminRoleGrantedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal AdminRoleGranted event: %w", err)
			}
			return eh.onAdminRoleGranted(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
