package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"booking-payment-service/internal/models"

	"github.com/shopspring/decimal"
)

// CreateBooking inserts a new WAITLISTED booking.
func (s *Store) CreateBooking(ctx context.Context, b *models.Booking) error {
	query := `
		INSERT INTO bookings (reference, guest_name, guest_email, check_in, check_out, nights, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, b, query,
		b.Reference, b.GuestName, b.GuestEmail, b.CheckIn, b.CheckOut, b.Nights, b.Status)
}

// GetBookingByID retrieves a booking by internal id.
func (s *Store) GetBookingByID(ctx context.Context, id int64) (*models.Booking, error) {
	var b models.Booking
	err := s.db.GetContext(ctx, &b, "SELECT * FROM bookings WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBookingByReference retrieves a booking by its external identifier.
func (s *Store) GetBookingByReference(ctx context.Context, ref string) (*models.Booking, error) {
	var b models.Booking
	err := s.db.GetContext(ctx, &b, "SELECT * FROM bookings WHERE reference = $1", ref)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("booking %s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ApprovalParams locks the payment obligation when a booking is approved.
type ApprovalParams struct {
	RequiresReservation bool
	PaymentToken        string
	PaymentAmount       decimal.NullDecimal
	ReservationAmount   decimal.NullDecimal
	RemainingAmount     decimal.NullDecimal
	ExpiresAt           time.Time
}

// ApproveBooking moves WAITLISTED -> PENDING and locks amount/token. The
// update is conditional on the current status so two approvers cannot both
// succeed.
func (s *Store) ApproveBooking(ctx context.Context, id int64, p ApprovalParams) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = $1,
		    requires_reservation = $2,
		    payment_token = $3,
		    payment_amount = $4,
		    reservation_amount = $5,
		    reservation_token = CASE WHEN $2 THEN $3 ELSE reservation_token END,
		    remaining_amount = $6,
		    remaining_token = CASE WHEN $2 THEN $3 ELSE remaining_token END,
		    expires_at = $7,
		    updated_at = NOW()
		WHERE id = $8 AND status = $9`,
		models.BookingStatusPending,
		p.RequiresReservation,
		p.PaymentToken,
		p.PaymentAmount,
		p.ReservationAmount,
		p.RemainingAmount,
		p.ExpiresAt,
		id,
		models.BookingStatusWaitlisted)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// RecordPaymentReference stores the claimed transaction hash for the open
// payment slot before verification runs. Conditional on the status observed
// at submission time; a lost race surfaces as ErrStatusChanged rather than a
// silent overwrite.
func (s *Store) RecordPaymentReference(ctx context.Context, id int64, phase models.PaymentPhase, expectedStatus, txHash string, chainID int64) error {
	var column string
	switch phase {
	case models.PhaseFull:
		column = "tx_hash"
	case models.PhaseReservation:
		column = "reservation_tx_hash"
	case models.PhaseRemaining:
		column = "remaining_tx_hash"
	default:
		return fmt.Errorf("unknown payment phase %d", phase)
	}

	query := fmt.Sprintf(`
		UPDATE bookings
		SET %s = $1, chain_id = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`, column)

	res, err := s.db.ExecContext(ctx, query, txHash, chainID, id, expectedStatus)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// ConfirmParams describes the atomic commit of a verified payment.
type ConfirmParams struct {
	BookingID      int64
	Phase          models.PaymentPhase
	ExpectedStatus string
	NewStatus      string
	TxHash         string
	Meta           models.PaymentMeta
	ActivityAction string
	ActivityDetail []byte
}

// ConfirmPayment performs the post-verification state transition in one
// transaction: the conditional booking update, the consumed-hash insert, and
// the activity-log append. The WHERE clause re-checks the pre-state so two
// concurrent verifications for the same booking/phase cannot both commit,
// and the unique constraint on payment_tx_refs rejects a hash that another
// booking consumed first (returned as ErrTxHashUsed, fail closed).
func (s *Store) ConfirmPayment(ctx context.Context, p ConfirmParams) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var query string
	switch p.Phase {
	case models.PhaseFull:
		query = `
			UPDATE bookings
			SET status = $1, confirmed_at = NOW(),
			    block_number = $2, sender_address = $3, gas_used = $4, gas_fee_usd = $5,
			    updated_at = NOW()
			WHERE id = $6 AND status = $7 AND tx_hash = $8`
	case models.PhaseReservation:
		query = `
			UPDATE bookings
			SET status = $1, reservation_paid = TRUE,
			    block_number = $2, sender_address = $3, gas_used = $4, gas_fee_usd = $5,
			    updated_at = NOW()
			WHERE id = $6 AND status = $7 AND reservation_tx_hash = $8 AND reservation_paid = FALSE`
	case models.PhaseRemaining:
		query = `
			UPDATE bookings
			SET status = $1, remaining_paid = TRUE, confirmed_at = NOW(),
			    block_number = $2, sender_address = $3, gas_used = $4, gas_fee_usd = $5,
			    updated_at = NOW()
			WHERE id = $6 AND status = $7 AND remaining_tx_hash = $8 AND remaining_paid = FALSE`
	default:
		return fmt.Errorf("unknown payment phase %d", p.Phase)
	}

	res, err := tx.ExecContext(ctx, query,
		p.NewStatus,
		p.Meta.BlockNumber, p.Meta.SenderAddress, p.Meta.GasUsed, p.Meta.GasFeeUSD,
		p.BookingID, p.ExpectedStatus, p.TxHash)
	if err != nil {
		return err
	}
	if err := requireOneRow(res); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO payment_tx_refs (tx_hash, booking_id, phase) VALUES ($1, $2, $3)",
		p.TxHash, p.BookingID, p.Phase.String())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("tx %s: %w", p.TxHash, ErrTxHashUsed)
		}
		return err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO activity_log (booking_id, action, details) VALUES ($1, $2, $3)",
		p.BookingID, p.ActivityAction, p.ActivityDetail)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// MarkVerificationFailed moves a booking to FAILED and appends the failure
// context in one transaction. Conditional on the pre-state: if the booking
// moved on concurrently the failure is stale and dropped.
func (s *Store) MarkVerificationFailed(ctx context.Context, id int64, expectedStatus string, detail []byte) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE bookings SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		models.BookingStatusFailed, id, expectedStatus)
	if err != nil {
		return err
	}
	if err := requireOneRow(res); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO activity_log (booking_id, action, details) VALUES ($1, $2, $3)",
		id, models.ActionPaymentFailed, detail)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// IsTransactionUsed reports whether a hash is already bound to any booking
// in a terminal used state: a confirmed full payment, a paid reservation, or
// a paid remaining payment. The consumed-refs table is included so a hash
// committed mid-flight is caught as well.
func (s *Store) IsTransactionUsed(ctx context.Context, txHash string) (bool, error) {
	var used bool
	err := s.db.GetContext(ctx, &used, `
		SELECT EXISTS(
			SELECT 1 FROM bookings
			WHERE (tx_hash = $1 AND status = $2)
			   OR (reservation_tx_hash = $1 AND reservation_paid)
			   OR (remaining_tx_hash = $1 AND remaining_paid)
		) OR EXISTS(
			SELECT 1 FROM payment_tx_refs WHERE tx_hash = $1
		)`, txHash, models.BookingStatusConfirmed)
	return used, err
}

// ExpirePendingBookings moves PENDING bookings past their payment window to
// EXPIRED, skipping any with a submitted (possibly still verifying) hash.
// Returns the ids of the expired bookings.
func (s *Store) ExpirePendingBookings(ctx context.Context, now time.Time) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, `
		UPDATE bookings
		SET status = $1, updated_at = NOW()
		WHERE status = $2
		  AND expires_at IS NOT NULL AND expires_at < $3
		  AND tx_hash IS NULL AND reservation_tx_hash IS NULL
		RETURNING id`,
		models.BookingStatusExpired, models.BookingStatusPending, now)
	return ids, err
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStatusChanged
	}
	return nil
}
