package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"booking-payment-service/internal/models"
	"booking-payment-service/internal/util"

	"github.com/segmentio/kafka-go"
)

// EventPublisher publishes the typed notification payloads. Publishing is
// best-effort from the caller's perspective: a failure here must never block
// or reverse a booking state transition.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishReservationConfirmed publishes a ReservationConfirmed event
func (ep *EventPublisher) PublishReservationConfirmed(ctx context.Context, event *models.ReservationConfirmedEvent) error {
	util.NotificationsPublishedTotal.WithLabelValues(event.EventType).Inc()
	key := fmt.Sprintf("booking-%d", event.BookingID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishBookingConfirmed publishes a BookingConfirmed event
func (ep *EventPublisher) PublishBookingConfirmed(ctx context.Context, event *models.BookingConfirmedEvent) error {
	util.NotificationsPublishedTotal.WithLabelValues(event.EventType).Inc()
	key := fmt.Sprintf("booking-%d", event.BookingID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishPaymentFailed publishes a PaymentFailed event
func (ep *EventPublisher) PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	util.NotificationsPublishedTotal.WithLabelValues(event.EventType).Inc()
	key := fmt.Sprintf("booking-%d", event.BookingID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes incoming notification events to registered callbacks
type EventHandler struct {
	onReservationConfirmed func(context.Context, *models.ReservationConfirmedEvent) error
	onBookingConfirmed     func(context.Context, *models.BookingConfirmedEvent) error
	onPaymentFailed        func(context.Context, *models.PaymentFailedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnReservationConfirmed registers a handler for ReservationConfirmed events
func (eh *EventHandler) OnReservationConfirmed(handler func(context.Context, *models.ReservationConfirmedEvent) error) {
	eh.onReservationConfirmed = handler
}

// OnBookingConfirmed registers a handler for BookingConfirmed events
func (eh *EventHandler) OnBookingConfirmed(handler func(context.Context, *models.BookingConfirmedEvent) error) {
	eh.onBookingConfirmed = handler
}

// OnPaymentFailed registers a handler for PaymentFailed events
func (eh *EventHandler) OnPaymentFailed(handler func(context.Context, *models.PaymentFailedEvent) error) {
	eh.onPaymentFailed = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeReservationConfirmed:
		if eh.onReservationConfirmed != nil {
			var event models.ReservationConfirmedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ReservationConfirmed event: %w", err)
			}
			return eh.onReservationConfirmed(ctx, &event)
		}

	case models.EventTypeBookingConfirmed:
		if eh.onBookingConfirmed != nil {
			var event models.BookingConfirmedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal BookingConfirmed event: %w", err)
			}
			return eh.onBookingConfirmed(ctx, &event)
		}

	case models.EventTypePaymentFailed:
		if eh.onPaymentFailed != nil {
			var event models.PaymentFailedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentFailed event: %w", err)
			}
			return eh.onPaymentFailed(ctx, &event)
		}
	}

	return nil
}
