package service

import (
	"fmt"

	"booking-payment-service/internal/models"
)

// VerifyOutcome is the result of an on-chain verification attempt.
type VerifyOutcome int

const (
	OutcomeConfirmed VerifyOutcome = iota
	OutcomeFailed
)

// DeterminePhase maps a booking plus the submission's remaining-payment flag
// onto the closed payment-phase variant. Priority order: an explicit
// remaining submission wins, then an unpaid reservation obligation, then the
// full payment.
func DeterminePhase(b *models.Booking, isRemainingPayment bool) models.PaymentPhase {
	switch {
	case isRemainingPayment:
		return models.PhaseRemaining
	case b.RequiresReservation && !b.ReservationPaid:
		return models.PhaseReservation
	default:
		return models.PhaseFull
	}
}

// GuardSubmission decides whether a verification for the given phase may run
// against the booking's current state. Violations are rejected synchronously,
// before any chain call.
//
// Reservation and full payments require PENDING; remaining payments require
// RESERVED. A FAILED booking may be re-entered by a fresh submission as long
// as the relevant paid flag is still false.
func GuardSubmission(b *models.Booking, phase models.PaymentPhase) error {
	switch phase {
	case models.PhaseRemaining:
		if !b.ReservationPaid {
			return reject(ReasonPhaseOrderViolation, "remaining payment requires a paid reservation for booking %s", b.Reference)
		}
		if b.RemainingPaid || b.Status == models.BookingStatusConfirmed {
			return reject(ReasonStatusConflict, "remaining payment already verified for booking %s", b.Reference)
		}
		if b.Status != models.BookingStatusReserved && b.Status != models.BookingStatusFailed {
			return reject(ReasonStatusConflict, "remaining payment requires status %s, booking %s is %s",
				models.BookingStatusReserved, b.Reference, b.Status)
		}

	case models.PhaseReservation:
		if b.ReservationPaid {
			return reject(ReasonStatusConflict, "reservation already verified for booking %s", b.Reference)
		}
		if b.Status != models.BookingStatusPending && b.Status != models.BookingStatusFailed {
			return reject(ReasonStatusConflict, "reservation payment requires status %s, booking %s is %s",
				models.BookingStatusPending, b.Reference, b.Status)
		}

	case models.PhaseFull:
		if b.Status == models.BookingStatusConfirmed {
			return reject(ReasonStatusConflict, "booking %s is already confirmed", b.Reference)
		}
		if b.RequiresReservation && b.ReservationPaid && b.RemainingPaid {
			// Both slots settled; treat as fully confirmed regardless of status.
			return reject(ReasonStatusConflict, "booking %s has all payment obligations settled", b.Reference)
		}
		if b.Status != models.BookingStatusPending && b.Status != models.BookingStatusFailed {
			return reject(ReasonStatusConflict, "full payment requires status %s, booking %s is %s",
				models.BookingStatusPending, b.Reference, b.Status)
		}

	default:
		return reject(ReasonStatusConflict, "unknown payment phase %d", phase)
	}

	return nil
}

// NextStatus is the pure transition function of the booking payment
// lifecycle: given the current status, the phase being verified, and the
// verification outcome, it returns the post-verification status.
func NextStatus(current string, phase models.PaymentPhase, outcome VerifyOutcome) (string, error) {
	if outcome == OutcomeFailed {
		switch current {
		case models.BookingStatusPending, models.BookingStatusReserved, models.BookingStatusFailed:
			return models.BookingStatusFailed, nil
		}
		return "", fmt.Errorf("no failure transition from status %s", current)
	}

	switch phase {
	case models.PhaseFull:
		if current == models.BookingStatusPending || current == models.BookingStatusFailed {
			return models.BookingStatusConfirmed, nil
		}
	case models.PhaseReservation:
		if current == models.BookingStatusPending || current == models.BookingStatusFailed {
			return models.BookingStatusReserved, nil
		}
	case models.PhaseRemaining:
		if current == models.BookingStatusReserved || current == models.BookingStatusFailed {
			return models.BookingStatusConfirmed, nil
		}
	}

	return "", fmt.Errorf("no confirm transition from status %s for %s phase", current, phase)
}
