package store

import (
	"context"

	"booking-payment-service/internal/models"
)

// AppendActivity writes one append-only audit entry for a booking.
func (s *Store) AppendActivity(ctx context.Context, bookingID int64, action string, details []byte) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO activity_log (booking_id, action, details) VALUES ($1, $2, $3)",
		bookingID, action, details)
	return err
}

// GetActivityByBookingID retrieves the audit trail for a booking, oldest first.
func (s *Store) GetActivityByBookingID(ctx context.Context, bookingID int64) ([]models.ActivityLogEntry, error) {
	var entries []models.ActivityLogEntry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM activity_log WHERE booking_id = $1 ORDER BY id", bookingID)
	return entries, err
}
