package service

import (
	"errors"
	"fmt"
)

// RejectReason classifies synchronous submission rejections. These are
// returned to the caller before any chain interaction happens.
type RejectReason string

const (
	ReasonMalformedTxHash     RejectReason = "malformed_tx_hash"
	ReasonBookingNotFound     RejectReason = "booking_not_found"
	ReasonTxAlreadyUsed       RejectReason = "tx_already_used"
	ReasonStatusConflict      RejectReason = "status_conflict"
	ReasonPhaseOrderViolation RejectReason = "phase_order_violation"
	ReasonPaymentNotLocked    RejectReason = "payment_not_locked"
	ReasonUnknownChain        RejectReason = "unknown_chain"
	ReasonUnknownToken        RejectReason = "unknown_token"
	ReasonAmountPrecision     RejectReason = "amount_precision"
	ReasonQueueFull           RejectReason = "verification_queue_full"
)

// SubmissionError is a rejected submission with a machine-readable reason.
type SubmissionError struct {
	Reason  RejectReason
	Message string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func reject(reason RejectReason, format string, args ...interface{}) *SubmissionError {
	return &SubmissionError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// RejectionReason extracts the reject reason from an error chain.
func RejectionReason(err error) (RejectReason, bool) {
	var se *SubmissionError
	if errors.As(err, &se) {
		return se.Reason, true
	}
	return "", false
}

// Terminal verification failure reasons, persisted with the FAILED booking
// and emitted in payment-failed notifications. These are never retried.
const (
	FailureTransactionReverted = "TransactionReverted"
	FailureNoTransferEvent     = "NoTransferEvent"
	FailureWrongRecipient      = "WrongRecipient"
	FailureAmountMismatch      = "AmountMismatch"
	FailureVerificationTimeout = "VerificationTimeout"
	FailureUnknownChain        = "UnknownChain"
	FailurePaymentNotLocked    = "PaymentNotLocked"
	FailureTxAlreadyUsed       = "TxAlreadyUsed"
)
