package service

import (
	"context"
	"time"

	"booking-payment-service/internal/models"
	"booking-payment-service/internal/store"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// BookingStore is the persistence contract the services depend on.
// *store.Store is the production implementation.
type BookingStore interface {
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBookingByID(ctx context.Context, id int64) (*models.Booking, error)
	GetBookingByReference(ctx context.Context, ref string) (*models.Booking, error)
	ApproveBooking(ctx context.Context, id int64, p store.ApprovalParams) error
	RecordPaymentReference(ctx context.Context, id int64, phase models.PaymentPhase, expectedStatus, txHash string, chainID int64) error
	ConfirmPayment(ctx context.Context, p store.ConfirmParams) error
	MarkVerificationFailed(ctx context.Context, id int64, expectedStatus string, detail []byte) error
	IsTransactionUsed(ctx context.Context, txHash string) (bool, error)
	AppendActivity(ctx context.Context, bookingID int64, action string, details []byte) error
	GetActivityByBookingID(ctx context.Context, bookingID int64) ([]models.ActivityLogEntry, error)
}

// ChainReader is the read-only blockchain access the reconciler needs.
// *chain.Client is the production implementation.
type ChainReader interface {
	Receipt(ctx context.Context, chainID int64, txHash common.Hash) (*types.Receipt, error)
	Transaction(ctx context.Context, chainID int64, txHash common.Hash) (*types.Transaction, bool, error)
}

// NotificationPublisher dispatches the typed per-event payloads. Failures
// are logged by callers and never roll back a state change.
type NotificationPublisher interface {
	PublishReservationConfirmed(ctx context.Context, event *models.ReservationConfirmedEvent) error
	PublishBookingConfirmed(ctx context.Context, event *models.BookingConfirmedEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
}

// TxCache is the best-effort Redis layer: consumed-hash fast path and
// per-booking verification locks. Correctness never depends on it; the
// database constraints are authoritative.
type TxCache interface {
	IsTransactionUsed(ctx context.Context, txHash string) (bool, error)
	MarkTransactionUsed(ctx context.Context, txHash, bookingRef string) error
	AcquireVerificationLock(ctx context.Context, bookingID int64, phase, owner string, ttl time.Duration) (bool, error)
	ReleaseVerificationLock(ctx context.Context, bookingID int64, phase, owner string) error
}

// VerificationJob is one scheduled background verification. ExpectedStatus
// is the booking status observed at submission time; the commit re-checks it.
type VerificationJob struct {
	BookingID        int64
	BookingReference string
	GuestEmail       string
	TxHash           string
	ChainID          int64
	Phase            models.PaymentPhase
	ExpectedStatus   string
}

// VerificationScheduler hands a job to the background worker pool.
type VerificationScheduler interface {
	Schedule(job VerificationJob) error
}
