package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Booking is the central entity: a guest stay with a stablecoin payment
// obligation. Full-payment bookings use the payment_* columns; bookings
// that require a reservation split use the reservation_* and remaining_*
// columns. At most one payment slot is open at a time, determined by Status.
type Booking struct {
	ID                  int64     `db:"id" json:"id"`
	Reference           string    `db:"reference" json:"reference"`
	GuestName           string    `db:"guest_name" json:"guest_name"`
	GuestEmail          string    `db:"guest_email" json:"guest_email"`
	CheckIn             time.Time `db:"check_in" json:"check_in"`
	CheckOut            time.Time `db:"check_out" json:"check_out"`
	Nights              int       `db:"nights" json:"nights"`
	Status              string    `db:"status" json:"status"`
	RequiresReservation bool      `db:"requires_reservation" json:"requires_reservation"`

	// Full-payment slot.
	PaymentToken  sql.NullString      `db:"payment_token" json:"payment_token,omitempty"`
	PaymentAmount decimal.NullDecimal `db:"payment_amount" json:"payment_amount,omitempty"`
	TxHash        sql.NullString      `db:"tx_hash" json:"tx_hash,omitempty"`
	ChainID       sql.NullInt64       `db:"chain_id" json:"chain_id,omitempty"`

	// Reservation slot. ReservationPaid is monotonic: once true, never reset.
	ReservationAmount decimal.NullDecimal `db:"reservation_amount" json:"reservation_amount,omitempty"`
	ReservationToken  sql.NullString      `db:"reservation_token" json:"reservation_token,omitempty"`
	ReservationTxHash sql.NullString      `db:"reservation_tx_hash" json:"reservation_tx_hash,omitempty"`
	ReservationPaid   bool                `db:"reservation_paid" json:"reservation_paid"`

	// Remaining slot. RemainingPaid is monotonic as well.
	RemainingAmount decimal.NullDecimal `db:"remaining_amount" json:"remaining_amount,omitempty"`
	RemainingToken  sql.NullString      `db:"remaining_token" json:"remaining_token,omitempty"`
	RemainingTxHash sql.NullString      `db:"remaining_tx_hash" json:"remaining_tx_hash,omitempty"`
	RemainingPaid   bool                `db:"remaining_paid" json:"remaining_paid"`

	ExpiresAt sql.NullTime `db:"expires_at" json:"expires_at,omitempty"`

	// Audit fields, written on successful verification.
	ConfirmedAt   sql.NullTime        `db:"confirmed_at" json:"confirmed_at,omitempty"`
	BlockNumber   sql.NullInt64       `db:"block_number" json:"block_number,omitempty"`
	SenderAddress sql.NullString      `db:"sender_address" json:"sender_address,omitempty"`
	GasUsed       sql.NullInt64       `db:"gas_used" json:"gas_used,omitempty"`
	GasFeeUSD     decimal.NullDecimal `db:"gas_fee_usd" json:"gas_fee_usd,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Booking statuses
const (
	BookingStatusWaitlisted = "WAITLISTED"
	BookingStatusPending    = "PENDING"
	BookingStatusReserved   = "RESERVED"
	BookingStatusConfirmed  = "CONFIRMED"
	BookingStatusCancelled  = "CANCELLED"
	BookingStatusExpired    = "EXPIRED"
	BookingStatusFailed     = "FAILED"
)

// PaymentPhase identifies which payment obligation a verification resolves.
// It replaces the pair of booleans (requires_reservation, is_remaining)
// everywhere past the submission boundary.
type PaymentPhase int

const (
	PhaseFull PaymentPhase = iota
	PhaseReservation
	PhaseRemaining
)

func (p PaymentPhase) String() string {
	switch p {
	case PhaseFull:
		return "full"
	case PhaseReservation:
		return "reservation"
	case PhaseRemaining:
		return "remaining"
	default:
		return "unknown"
	}
}

// PaymentMeta carries the on-chain audit metadata persisted alongside a
// successful verification.
type PaymentMeta struct {
	BlockNumber   uint64
	SenderAddress string
	GasUsed       uint64
	GasFeeUSD     decimal.Decimal
}

// ActivityLogEntry is an append-only audit record for a booking. Entries
// are created on every state transition and on every terminal failure;
// they are never mutated or deleted.
type ActivityLogEntry struct {
	ID        int64     `db:"id" json:"id"`
	BookingID int64     `db:"booking_id" json:"booking_id"`
	Action    string    `db:"action" json:"action"`
	Details   []byte    `db:"details" json:"details"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Activity actions
const (
	ActionBookingCreated       = "booking_created"
	ActionBookingApproved      = "booking_approved"
	ActionBookingExpired       = "booking_expired"
	ActionPaymentSubmitted     = "payment_submitted"
	ActionReservationConfirmed = "reservation_confirmed"
	ActionBookingConfirmed     = "booking_confirmed"
	ActionPaymentFailed        = "payment_failed"
)
