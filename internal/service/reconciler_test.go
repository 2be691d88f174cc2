package service

import (
	"context"
	"database/sql"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"booking-payment-service/internal/chain"
	"booking-payment-service/internal/models"
	"booking-payment-service/internal/store"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTxHash   = "0x1111111111111111111111111111111111111111111111111111111111111111"
	testUSDC     = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	testTreasury = "0x52908400098527886E0F7030069857D2E4169EE7"
	testSender   = "0x9999999999999999999999999999999999999999"
)

// fakeBookingStore keeps a single booking in memory and applies the same
// conditional-update semantics the database enforces.
type fakeBookingStore struct {
	mu      sync.Mutex
	booking *models.Booking

	txUsed         bool
	confirmErr     error
	confirmCalls   int
	failedCalls    int
	lastFailDetail []byte
	lastApproval   store.ApprovalParams
	recordedHashes []string
	activities     []string
}

func (f *fakeBookingStore) CreateBooking(ctx context.Context, b *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b.ID = 1
	copied := *b
	f.booking = &copied
	return nil
}

func (f *fakeBookingStore) GetBookingByID(ctx context.Context, id int64) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.booking == nil || f.booking.ID != id {
		return nil, store.ErrNotFound
	}
	copied := *f.booking
	return &copied, nil
}

func (f *fakeBookingStore) GetBookingByReference(ctx context.Context, ref string) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.booking == nil || f.booking.Reference != ref {
		return nil, store.ErrNotFound
	}
	copied := *f.booking
	return &copied, nil
}

func (f *fakeBookingStore) ApproveBooking(ctx context.Context, id int64, p store.ApprovalParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.booking.Status != models.BookingStatusWaitlisted {
		return store.ErrStatusChanged
	}
	f.lastApproval = p
	f.booking.Status = models.BookingStatusPending
	f.booking.RequiresReservation = p.RequiresReservation
	f.booking.PaymentToken = sql.NullString{String: p.PaymentToken, Valid: true}
	f.booking.PaymentAmount = p.PaymentAmount
	f.booking.ReservationAmount = p.ReservationAmount
	f.booking.RemainingAmount = p.RemainingAmount
	f.booking.ExpiresAt = sql.NullTime{Time: p.ExpiresAt, Valid: true}
	return nil
}

func (f *fakeBookingStore) RecordPaymentReference(ctx context.Context, id int64, phase models.PaymentPhase, expectedStatus, txHash string, chainID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.booking.Status != expectedStatus {
		return store.ErrStatusChanged
	}
	f.recordedHashes = append(f.recordedHashes, txHash)
	return nil
}

func (f *fakeBookingStore) ConfirmPayment(ctx context.Context, p store.ConfirmParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmCalls++
	if f.confirmErr != nil {
		return f.confirmErr
	}
	if f.booking.Status != p.ExpectedStatus {
		return store.ErrStatusChanged
	}
	f.booking.Status = p.NewStatus
	switch p.Phase {
	case models.PhaseReservation:
		f.booking.ReservationPaid = true
	case models.PhaseRemaining:
		f.booking.RemainingPaid = true
	}
	return nil
}

func (f *fakeBookingStore) MarkVerificationFailed(ctx context.Context, id int64, expectedStatus string, detail []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failedCalls++
	f.lastFailDetail = detail
	if f.booking.Status != expectedStatus {
		return store.ErrStatusChanged
	}
	f.booking.Status = models.BookingStatusFailed
	return nil
}

func (f *fakeBookingStore) IsTransactionUsed(ctx context.Context, txHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txUsed, nil
}

func (f *fakeBookingStore) AppendActivity(ctx context.Context, bookingID int64, action string, details []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities = append(f.activities, action)
	return nil
}

func (f *fakeBookingStore) GetActivityByBookingID(ctx context.Context, bookingID int64) ([]models.ActivityLogEntry, error) {
	return nil, nil
}

// fakeChainReader serves a scripted sequence of receipt results; results
// beyond the script repeat the last entry.
type fakeChainReader struct {
	mu       sync.Mutex
	receipts []receiptResult
	calls    int
}

type receiptResult struct {
	receipt *types.Receipt
	err     error
}

func (f *fakeChainReader) Receipt(ctx context.Context, chainID int64, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx >= len(f.receipts) {
		idx = len(f.receipts) - 1
	}
	r := f.receipts[idx]
	return r.receipt, r.err
}

func (f *fakeChainReader) Transaction(ctx context.Context, chainID int64, txHash common.Hash) (*types.Transaction, bool, error) {
	return nil, false, errors.New("not found")
}

type fakePublisher struct {
	mu                   sync.Mutex
	reservationConfirmed int
	bookingConfirmed     int
	paymentFailed        int
	lastFailReason       string
}

func (f *fakePublisher) PublishReservationConfirmed(ctx context.Context, event *models.ReservationConfirmedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reservationConfirmed++
	return nil
}

func (f *fakePublisher) PublishBookingConfirmed(ctx context.Context, event *models.BookingConfirmedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookingConfirmed++
	return nil
}

func (f *fakePublisher) PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paymentFailed++
	f.lastFailReason = event.Reason
	return nil
}

func addressTopic(hexAddr string) common.Hash {
	return common.BytesToHash(common.HexToAddress(hexAddr).Bytes())
}

func transferReceipt(baseUnits int64) *types.Receipt {
	return &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		TxHash:            common.HexToHash(testTxHash),
		BlockNumber:       big.NewInt(12345678),
		GasUsed:           52000,
		EffectiveGasPrice: big.NewInt(1_000_000_000),
		Logs: []*types.Log{{
			Address: common.HexToAddress(testUSDC),
			Topics: []common.Hash{
				chain.TransferEventTopic,
				addressTopic(testSender),
				addressTopic(testTreasury),
			},
			Data: common.BigToHash(big.NewInt(baseUnits)).Bytes(),
		}},
	}
}

func pendingFullBooking() *models.Booking {
	return &models.Booking{
		ID:            1,
		Reference:     "bk-verify",
		GuestEmail:    "guest@example.com",
		Status:        models.BookingStatusPending,
		PaymentToken:  ns("USDC"),
		PaymentAmount: nd("30.00"),
	}
}

func fullPaymentJob(b *models.Booking) VerificationJob {
	return VerificationJob{
		BookingID:        b.ID,
		BookingReference: b.Reference,
		GuestEmail:       b.GuestEmail,
		TxHash:           testTxHash,
		ChainID:          testChainID,
		Phase:            models.PhaseFull,
		ExpectedStatus:   b.Status,
	}
}

func newTestReconciler(t *testing.T, bookings *fakeBookingStore, reader *fakeChainReader, pub *fakePublisher, maxRetries int) *Reconciler {
	t.Helper()
	resolver := NewResolver(testRegistry(t))
	return NewReconciler(bookings, reader, resolver, nil, pub, maxRetries, time.Millisecond)
}

func TestVerifyRetriesThenConfirms(t *testing.T) {
	bookings := &fakeBookingStore{booking: pendingFullBooking()}
	reader := &fakeChainReader{receipts: []receiptResult{
		{err: errors.New("not found")},
		{err: errors.New("not found")},
		{err: errors.New("not found")},
		{receipt: transferReceipt(30000000)},
	}}
	pub := &fakePublisher{}

	r := newTestReconciler(t, bookings, reader, pub, 10)
	err := r.Verify(context.Background(), fullPaymentJob(bookings.booking))
	require.NoError(t, err)

	assert.Equal(t, 4, reader.calls)
	assert.Equal(t, 1, bookings.confirmCalls)
	assert.Equal(t, models.BookingStatusConfirmed, bookings.booking.Status)
	assert.Equal(t, 1, pub.bookingConfirmed)
	assert.Zero(t, pub.paymentFailed)
}

func TestVerifyTimesOutAfterRetryBudget(t *testing.T) {
	bookings := &fakeBookingStore{booking: pendingFullBooking()}
	reader := &fakeChainReader{receipts: []receiptResult{{err: errors.New("not found")}}}
	pub := &fakePublisher{}

	r := newTestReconciler(t, bookings, reader, pub, 3)
	err := r.Verify(context.Background(), fullPaymentJob(bookings.booking))
	require.NoError(t, err)

	assert.Equal(t, 3, reader.calls)
	assert.Zero(t, bookings.confirmCalls)
	assert.Equal(t, 1, bookings.failedCalls)
	assert.Equal(t, models.BookingStatusFailed, bookings.booking.Status)
	assert.Equal(t, 1, pub.paymentFailed)
	assert.Equal(t, FailureVerificationTimeout, pub.lastFailReason)
}

func TestVerifyAmountMismatchFailsWithoutRetry(t *testing.T) {
	bookings := &fakeBookingStore{booking: pendingFullBooking()}
	reader := &fakeChainReader{receipts: []receiptResult{{receipt: transferReceipt(29999999)}}}
	pub := &fakePublisher{}

	r := newTestReconciler(t, bookings, reader, pub, 10)
	err := r.Verify(context.Background(), fullPaymentJob(bookings.booking))
	require.NoError(t, err)

	// A mined receipt is final: one fetch, no retries, terminal failure.
	assert.Equal(t, 1, reader.calls)
	assert.Equal(t, models.BookingStatusFailed, bookings.booking.Status)
	assert.Equal(t, FailureAmountMismatch, pub.lastFailReason)
}

func TestVerifyRevertedTransactionFails(t *testing.T) {
	receipt := transferReceipt(30000000)
	receipt.Status = types.ReceiptStatusFailed

	bookings := &fakeBookingStore{booking: pendingFullBooking()}
	reader := &fakeChainReader{receipts: []receiptResult{{receipt: receipt}}}
	pub := &fakePublisher{}

	r := newTestReconciler(t, bookings, reader, pub, 10)
	err := r.Verify(context.Background(), fullPaymentJob(bookings.booking))
	require.NoError(t, err)

	assert.Equal(t, models.BookingStatusFailed, bookings.booking.Status)
	assert.Equal(t, FailureTransactionReverted, pub.lastFailReason)
}

func TestVerifyAlreadyConfirmedIsNoOp(t *testing.T) {
	b := pendingFullBooking()
	job := fullPaymentJob(b)
	b.Status = models.BookingStatusConfirmed

	bookings := &fakeBookingStore{booking: b}
	reader := &fakeChainReader{receipts: []receiptResult{{receipt: transferReceipt(30000000)}}}
	pub := &fakePublisher{}

	r := newTestReconciler(t, bookings, reader, pub, 10)
	err := r.Verify(context.Background(), job)
	require.NoError(t, err)

	assert.Zero(t, bookings.confirmCalls)
	assert.Zero(t, bookings.failedCalls)
	assert.Zero(t, pub.bookingConfirmed)
	assert.Zero(t, pub.paymentFailed)
	assert.Equal(t, models.BookingStatusConfirmed, bookings.booking.Status)
}

func TestVerifyConsumedHashFailsClosed(t *testing.T) {
	bookings := &fakeBookingStore{booking: pendingFullBooking(), confirmErr: store.ErrTxHashUsed}
	reader := &fakeChainReader{receipts: []receiptResult{{receipt: transferReceipt(30000000)}}}
	pub := &fakePublisher{}

	r := newTestReconciler(t, bookings, reader, pub, 10)
	err := r.Verify(context.Background(), fullPaymentJob(bookings.booking))
	require.NoError(t, err)

	assert.Equal(t, 1, bookings.confirmCalls)
	assert.Equal(t, models.BookingStatusFailed, bookings.booking.Status)
	assert.Equal(t, 1, pub.paymentFailed)
	assert.Equal(t, FailureTxAlreadyUsed, pub.lastFailReason)
	assert.Zero(t, pub.bookingConfirmed)
}

func TestVerifyDropsLostCommitRace(t *testing.T) {
	bookings := &fakeBookingStore{booking: pendingFullBooking(), confirmErr: store.ErrStatusChanged}
	reader := &fakeChainReader{receipts: []receiptResult{{receipt: transferReceipt(30000000)}}}
	pub := &fakePublisher{}

	r := newTestReconciler(t, bookings, reader, pub, 10)
	err := r.Verify(context.Background(), fullPaymentJob(bookings.booking))
	require.NoError(t, err)

	// Losing the conditional update means another worker committed first;
	// the stale result is dropped without a failure record or notification.
	assert.Zero(t, bookings.failedCalls)
	assert.Zero(t, pub.bookingConfirmed)
	assert.Zero(t, pub.paymentFailed)
}

func TestVerifyReservationPhaseConfirmsToReserved(t *testing.T) {
	b := &models.Booking{
		ID:                  2,
		Reference:           "bk-resv",
		GuestEmail:          "guest@example.com",
		Status:              models.BookingStatusPending,
		RequiresReservation: true,
		ReservationAmount:   nd("9.90"),
		ReservationToken:    ns("USDC"),
	}
	bookings := &fakeBookingStore{booking: b}
	reader := &fakeChainReader{receipts: []receiptResult{{receipt: transferReceipt(9900000)}}}
	pub := &fakePublisher{}

	job := VerificationJob{
		BookingID:        b.ID,
		BookingReference: b.Reference,
		GuestEmail:       b.GuestEmail,
		TxHash:           testTxHash,
		ChainID:          testChainID,
		Phase:            models.PhaseReservation,
		ExpectedStatus:   models.BookingStatusPending,
	}

	r := newTestReconciler(t, bookings, reader, pub, 10)
	err := r.Verify(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, models.BookingStatusReserved, bookings.booking.Status)
	assert.True(t, bookings.booking.ReservationPaid)
	assert.Equal(t, 1, pub.reservationConfirmed)
	assert.Zero(t, pub.bookingConfirmed)
}

func TestVerifyUnknownChainIsTerminal(t *testing.T) {
	bookings := &fakeBookingStore{booking: pendingFullBooking()}
	reader := &fakeChainReader{receipts: []receiptResult{{err: chain.ErrUnknownChain}}}
	pub := &fakePublisher{}

	r := newTestReconciler(t, bookings, reader, pub, 10)
	err := r.Verify(context.Background(), fullPaymentJob(bookings.booking))
	require.NoError(t, err)

	// Misconfiguration is not retryable; one fetch and a terminal failure.
	assert.Equal(t, 1, reader.calls)
	assert.Equal(t, models.BookingStatusFailed, bookings.booking.Status)
	assert.Equal(t, FailureUnknownChain, pub.lastFailReason)
}
