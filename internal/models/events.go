package models

import "time"

// Event types
const (
	EventTypeReservationConfirmed = "RESERVATION_CONFIRMED"
	EventTypeBookingConfirmed     = "BOOKING_CONFIRMED"
	EventTypePaymentFailed        = "PAYMENT_FAILED"
)

// BaseEvent contains common fields for all notification events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// ReservationConfirmedEvent published when a reservation-phase payment verifies
type ReservationConfirmedEvent struct {
	BaseEvent
	BookingID        int64  `json:"booking_id"`
	BookingReference string `json:"booking_reference"`
	GuestEmail       string `json:"guest_email"`
	Amount           string `json:"amount"`
	Token            string `json:"token"`
	ChainID          int64  `json:"chain_id"`
	TxHash           string `json:"tx_hash"`
}

// BookingConfirmedEvent published when a full or remaining payment verifies
// and the booking reaches CONFIRMED
type BookingConfirmedEvent struct {
	BaseEvent
	BookingID        int64  `json:"booking_id"`
	BookingReference string `json:"booking_reference"`
	GuestEmail       string `json:"guest_email"`
	Amount           string `json:"amount"`
	Token            string `json:"token"`
	ChainID          int64  `json:"chain_id"`
	TxHash           string `json:"tx_hash"`
	BlockNumber      uint64 `json:"block_number"`
}

// PaymentFailedEvent published when verification fails terminally
type PaymentFailedEvent struct {
	BaseEvent
	BookingID        int64  `json:"booking_id"`
	BookingReference string `json:"booking_reference"`
	GuestEmail       string `json:"guest_email"`
	Phase            string `json:"phase"`
	TxHash           string `json:"tx_hash"`
	ChainID          int64  `json:"chain_id"`
	Reason           string `json:"reason"`
	Details          string `json:"details,omitempty"`
}
