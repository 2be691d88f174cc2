package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"booking-payment-service/internal/chain"
	"booking-payment-service/internal/models"
	"booking-payment-service/internal/store"
	"booking-payment-service/internal/util"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reconciler drives one background verification to a terminal answer: the
// booking's payment obligation is satisfied, or it is not. It owns the
// receipt retry loop, the atomic state commit, and the side-effect dispatch.
type Reconciler struct {
	store     BookingStore
	chain     ChainReader
	resolver  *Resolver
	cache     TxCache
	publisher NotificationPublisher
	logger    *zap.Logger

	maxRetries int
	retryDelay time.Duration
}

// NewReconciler creates a new reconciler. maxRetries bounds the receipt
// polling loop; retryDelay is the fixed (not backed-off) wait between polls.
func NewReconciler(
	bookings BookingStore,
	reader ChainReader,
	resolver *Resolver,
	cache TxCache,
	publisher NotificationPublisher,
	maxRetries int,
	retryDelay time.Duration,
) *Reconciler {
	return &Reconciler{
		store:      bookings,
		chain:      reader,
		resolver:   resolver,
		cache:      cache,
		publisher:  publisher,
		logger:     util.GetLogger(),
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// Verify runs the bounded verification loop for one submitted payment.
//
// Only "receipt not available" is retried. Everything the chain can tell us
// about a mined transaction is final: a reverted execution, a missing or
// misdirected transfer, or a wrong amount moves the booking to FAILED and
// stops. Exhausting the retry budget is itself terminal
// (VerificationTimeout).
func (r *Reconciler) Verify(ctx context.Context, job VerificationJob) error {
	ctx, span := util.StartSpan(ctx, "Reconciler.Verify")
	defer span.End()

	log := r.logger.With(
		zap.String("booking", job.BookingReference),
		zap.String("phase", job.Phase.String()),
		zap.String("tx_hash", job.TxHash),
		zap.Int64("chain_id", job.ChainID),
	)

	if r.cache != nil {
		owner := uuid.New().String()
		ttl := time.Duration(r.maxRetries)*r.retryDelay + time.Minute
		acquired, err := r.cache.AcquireVerificationLock(ctx, job.BookingID, job.Phase.String(), owner, ttl)
		if err != nil {
			// The conditional update is the real guard; the lock only
			// avoids redundant RPC work.
			log.Warn("Verification lock unavailable, proceeding", zap.Error(err))
		} else if !acquired {
			log.Info("Verification already in progress, skipping")
			return nil
		} else {
			defer func() {
				if err := r.cache.ReleaseVerificationLock(context.Background(), job.BookingID, job.Phase.String(), owner); err != nil {
					log.Warn("Failed to release verification lock", zap.Error(err))
				}
			}()
		}
	}

	receipt, err := r.awaitReceipt(ctx, job, log)
	if err != nil {
		var term *terminalFailure
		if errors.As(err, &term) {
			return r.fail(ctx, job, term.reason, term.detail)
		}
		return err
	}

	booking, err := r.store.GetBookingByID(ctx, job.BookingID)
	if err != nil {
		return fmt.Errorf("failed to reload booking %d: %w", job.BookingID, err)
	}

	if err := GuardSubmission(booking, job.Phase); err != nil {
		// Another verification settled this phase while we were polling.
		log.Info("Booking state moved on during verification, nothing to do",
			zap.String("status", booking.Status))
		return nil
	}

	exp, err := r.resolver.Resolve(booking, job.Phase, job.ChainID)
	if err != nil {
		if reason, ok := RejectionReason(err); ok {
			return r.fail(ctx, job, failureForRejection(reason), err.Error())
		}
		return err
	}
	if exp.AlreadyVerified {
		log.Info("Payment already verified, no-op")
		return nil
	}

	match, err := chain.MatchTransfer(receipt, exp.TokenAddress, exp.Treasury, exp.BaseUnits)
	if err != nil {
		return r.fail(ctx, job, failureForMatch(err), err.Error())
	}

	newStatus, err := NextStatus(booking.Status, job.Phase, OutcomeConfirmed)
	if err != nil {
		log.Info("No confirm transition available, nothing to do", zap.String("status", booking.Status))
		return nil
	}

	meta := models.PaymentMeta{
		BlockNumber:   receipt.BlockNumber.Uint64(),
		SenderAddress: match.From.Hex(),
		GasUsed:       receipt.GasUsed,
		GasFeeUSD:     r.gasFeeUSD(ctx, job, receipt),
	}

	detail, _ := json.Marshal(map[string]interface{}{
		"phase":        job.Phase.String(),
		"tx_hash":      job.TxHash,
		"chain_id":     job.ChainID,
		"amount":       exp.Amount.String(),
		"token":        exp.TokenSymbol,
		"block_number": meta.BlockNumber,
		"sender":       meta.SenderAddress,
	})

	action := models.ActionBookingConfirmed
	if job.Phase == models.PhaseReservation {
		action = models.ActionReservationConfirmed
	}

	err = r.store.ConfirmPayment(ctx, store.ConfirmParams{
		BookingID:      job.BookingID,
		Phase:          job.Phase,
		ExpectedStatus: booking.Status,
		NewStatus:      newStatus,
		TxHash:         job.TxHash,
		Meta:           meta,
		ActivityAction: action,
		ActivityDetail: detail,
	})
	switch {
	case errors.Is(err, store.ErrTxHashUsed):
		// Another booking consumed this hash first; fail closed rather
		// than double-credit.
		return r.fail(ctx, job, FailureTxAlreadyUsed, err.Error())
	case errors.Is(err, store.ErrStatusChanged):
		log.Info("Lost verification commit race, dropping duplicate result")
		return nil
	case err != nil:
		return fmt.Errorf("failed to commit verified payment: %w", err)
	}

	if r.cache != nil {
		if err := r.cache.MarkTransactionUsed(ctx, job.TxHash, job.BookingReference); err != nil {
			log.Warn("Failed to cache consumed tx hash", zap.Error(err))
		}
	}

	util.VerificationsConfirmedTotal.WithLabelValues(job.Phase.String()).Inc()
	log.Info("Payment verified",
		zap.String("new_status", newStatus),
		zap.Uint64("block_number", meta.BlockNumber),
		zap.String("amount", exp.Amount.String()),
		zap.String("token", exp.TokenSymbol))

	r.notifyConfirmed(ctx, job, exp, meta, newStatus, log)
	return nil
}

// terminalFailure carries a non-retryable failure out of the receipt loop.
type terminalFailure struct {
	reason string
	detail string
}

func (t *terminalFailure) Error() string { return fmt.Sprintf("%s: %s", t.reason, t.detail) }

// awaitReceipt polls for the transaction receipt within the retry budget.
// Every fetch error is treated as transient: nodes answer "not yet indexed"
// and "does not exist" identically, so a single null result proves nothing.
func (r *Reconciler) awaitReceipt(ctx context.Context, job VerificationJob, log *zap.Logger) (*types.Receipt, error) {
	txHash := common.HexToHash(job.TxHash)

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		receipt, err := r.chain.Receipt(ctx, job.ChainID, txHash)
		if err == nil {
			util.VerificationAttempts.Observe(float64(attempt))
			return receipt, nil
		}
		if errors.Is(err, chain.ErrUnknownChain) {
			return nil, &terminalFailure{reason: FailureUnknownChain, detail: err.Error()}
		}

		log.Debug("Receipt not available yet",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", r.maxRetries),
			zap.Error(err))

		if attempt == r.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retryDelay):
		}
	}

	util.VerificationAttempts.Observe(float64(r.maxRetries))
	return nil, &terminalFailure{
		reason: FailureVerificationTimeout,
		detail: fmt.Sprintf("receipt for %s not found after %d attempts", job.TxHash, r.maxRetries),
	}
}

// fail records a terminal verification failure: FAILED status, persisted
// context, and a best-effort payment-failed notification.
func (r *Reconciler) fail(ctx context.Context, job VerificationJob, reason, detail string) error {
	util.VerificationsFailedTotal.WithLabelValues(reason).Inc()

	log := r.logger.With(
		zap.String("booking", job.BookingReference),
		zap.String("phase", job.Phase.String()),
		zap.String("reason", reason),
	)
	log.Warn("Payment verification failed", zap.String("detail", detail))

	payload, _ := json.Marshal(map[string]interface{}{
		"phase":    job.Phase.String(),
		"tx_hash":  job.TxHash,
		"chain_id": job.ChainID,
		"reason":   reason,
		"detail":   detail,
	})

	err := r.store.MarkVerificationFailed(ctx, job.BookingID, job.ExpectedStatus, payload)
	if errors.Is(err, store.ErrStatusChanged) {
		log.Info("Booking moved on concurrently, dropping stale failure")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to persist verification failure: %w", err)
	}

	event := &models.PaymentFailedEvent{
		BaseEvent:        newBaseEvent(models.EventTypePaymentFailed),
		BookingID:        job.BookingID,
		BookingReference: job.BookingReference,
		GuestEmail:       job.GuestEmail,
		Phase:            job.Phase.String(),
		TxHash:           job.TxHash,
		ChainID:          job.ChainID,
		Reason:           reason,
		Details:          detail,
	}
	if err := r.publisher.PublishPaymentFailed(ctx, event); err != nil {
		log.Error("Failed to publish PaymentFailed notification", zap.Error(err))
	}

	return nil
}

func (r *Reconciler) notifyConfirmed(ctx context.Context, job VerificationJob, exp *Expectation, meta models.PaymentMeta, newStatus string, log *zap.Logger) {
	if job.Phase == models.PhaseReservation {
		event := &models.ReservationConfirmedEvent{
			BaseEvent:        newBaseEvent(models.EventTypeReservationConfirmed),
			BookingID:        job.BookingID,
			BookingReference: job.BookingReference,
			GuestEmail:       job.GuestEmail,
			Amount:           exp.Amount.String(),
			Token:            exp.TokenSymbol,
			ChainID:          job.ChainID,
			TxHash:           job.TxHash,
		}
		if err := r.publisher.PublishReservationConfirmed(ctx, event); err != nil {
			log.Error("Failed to publish ReservationConfirmed notification", zap.Error(err))
		}
		return
	}

	event := &models.BookingConfirmedEvent{
		BaseEvent:        newBaseEvent(models.EventTypeBookingConfirmed),
		BookingID:        job.BookingID,
		BookingReference: job.BookingReference,
		GuestEmail:       job.GuestEmail,
		Amount:           exp.Amount.String(),
		Token:            exp.TokenSymbol,
		ChainID:          job.ChainID,
		TxHash:           job.TxHash,
		BlockNumber:      meta.BlockNumber,
	}
	if err := r.publisher.PublishBookingConfirmed(ctx, event); err != nil {
		log.Error("Failed to publish BookingConfirmed notification", zap.Error(err))
	}
}

// gasFeeUSD computes gas_used * effective_gas_price priced in USD using the
// configured native-token price. Best effort: a zero value is stored when
// the price data is unavailable.
func (r *Reconciler) gasFeeUSD(ctx context.Context, job VerificationJob, receipt *types.Receipt) decimal.Decimal {
	chainCfg, ok := r.resolver.registry.Chain(job.ChainID)
	if !ok || chainCfg.NativeUSDPrice.IsZero() {
		return decimal.Zero
	}

	gasPrice := receipt.EffectiveGasPrice
	if gasPrice == nil {
		// Pre-EIP-1559 chains omit the effective gas price from receipts.
		tx, _, err := r.chain.Transaction(ctx, job.ChainID, receipt.TxHash)
		if err != nil {
			return decimal.Zero
		}
		gasPrice = tx.GasPrice()
	}

	feeWei := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(receipt.GasUsed))
	feeNative := decimal.NewFromBigInt(feeWei, -18)
	return feeNative.Mul(chainCfg.NativeUSDPrice).Round(4)
}

func failureForMatch(err error) string {
	switch {
	case errors.Is(err, chain.ErrTransactionReverted):
		return FailureTransactionReverted
	case errors.Is(err, chain.ErrNoTransferEvent):
		return FailureNoTransferEvent
	case errors.Is(err, chain.ErrWrongRecipient):
		return FailureWrongRecipient
	case errors.Is(err, chain.ErrAmountMismatch):
		return FailureAmountMismatch
	default:
		return FailureNoTransferEvent
	}
}

func failureForRejection(reason RejectReason) string {
	switch reason {
	case ReasonUnknownChain:
		return FailureUnknownChain
	case ReasonPaymentNotLocked:
		return FailurePaymentNotLocked
	default:
		return string(reason)
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
