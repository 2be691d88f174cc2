package worker

import (
	"context"
	"time"

	"booking-payment-service/internal/models"
	"booking-payment-service/internal/util"

	"go.uber.org/zap"
)

// ExpiryStore is the slice of the store the sweeper needs.
type ExpiryStore interface {
	ExpirePendingBookings(ctx context.Context, now time.Time) ([]int64, error)
	AppendActivity(ctx context.Context, bookingID int64, action string, details []byte) error
}

// ExpirySweeper periodically moves PENDING bookings whose payment window has
// passed unpaid to EXPIRED.
type ExpirySweeper struct {
	store    ExpiryStore
	interval time.Duration
	logger   *zap.Logger
}

// NewExpirySweeper creates a new expiry sweeper
func NewExpirySweeper(store ExpiryStore, interval time.Duration) *ExpirySweeper {
	return &ExpirySweeper{
		store:    store,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// Start runs the sweep loop until the context is cancelled.
func (e *ExpirySweeper) Start(ctx context.Context) error {
	e.logger.Info("Starting expiry sweeper", zap.Duration("interval", e.interval))

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Expiry sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			e.sweep(ctx)
		}
	}
}

func (e *ExpirySweeper) sweep(ctx context.Context) {
	ids, err := e.store.ExpirePendingBookings(ctx, time.Now())
	if err != nil {
		e.logger.Error("Expiry sweep failed", zap.Error(err))
		return
	}
	if len(ids) == 0 {
		return
	}

	util.BookingsExpiredTotal.Add(float64(len(ids)))
	e.logger.Info("Expired unpaid bookings", zap.Int("count", len(ids)))

	for _, id := range ids {
		if err := e.store.AppendActivity(ctx, id, models.ActionBookingExpired, nil); err != nil {
			e.logger.Error("Failed to append expiry activity",
				zap.Int64("booking_id", id),
				zap.Error(err))
		}
	}
}
