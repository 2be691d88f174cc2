package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"booking-payment-service/config"
	"booking-payment-service/internal/models"
	"booking-payment-service/internal/store"
	"booking-payment-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// txHashPattern: 0x-prefixed 32-byte hex, the only accepted reference format.
var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// BookingService handles the booking lifecycle around the reconciliation
// core: intake, approval (payment locking), payment submission, and reads.
type BookingService struct {
	store     BookingStore
	cache     TxCache
	resolver  *Resolver
	scheduler VerificationScheduler
	policy    config.BusinessConfig
	logger    *zap.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(
	bookings BookingStore,
	cache TxCache,
	resolver *Resolver,
	scheduler VerificationScheduler,
	policy config.BusinessConfig,
) *BookingService {
	return &BookingService{
		store:     bookings,
		cache:     cache,
		resolver:  resolver,
		scheduler: scheduler,
		policy:    policy,
		logger:    util.GetLogger(),
	}
}

// CreateBookingRequest represents a booking application
type CreateBookingRequest struct {
	GuestName  string    `json:"guest_name" binding:"required"`
	GuestEmail string    `json:"guest_email" binding:"required,email"`
	CheckIn    time.Time `json:"check_in" binding:"required"`
	CheckOut   time.Time `json:"check_out" binding:"required"`
}

// CreateBooking registers a new application in WAITLISTED state.
func (s *BookingService) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.CreateBooking")
	defer span.End()

	if !req.CheckOut.After(req.CheckIn) {
		return nil, reject(ReasonStatusConflict, "check-out must be after check-in")
	}
	nights := int(req.CheckOut.Sub(req.CheckIn).Hours() / 24)
	if nights < 1 {
		nights = 1
	}

	b := &models.Booking{
		Reference:  fmt.Sprintf("bk-%s", uuid.New().String()[:8]),
		GuestName:  req.GuestName,
		GuestEmail: req.GuestEmail,
		CheckIn:    req.CheckIn,
		CheckOut:   req.CheckOut,
		Nights:     nights,
		Status:     models.BookingStatusWaitlisted,
	}

	if err := s.store.CreateBooking(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	util.BookingsCreatedTotal.Inc()
	s.logger.Info("Booking created",
		zap.String("reference", b.Reference),
		zap.Int("nights", b.Nights))

	detail, _ := json.Marshal(map[string]interface{}{"nights": nights})
	if err := s.store.AppendActivity(ctx, b.ID, models.ActionBookingCreated, detail); err != nil {
		s.logger.Error("Failed to append activity", zap.Error(err))
	}

	return b, nil
}

// ApproveBookingRequest locks the payment obligation for a booking
type ApproveBookingRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Token  string          `json:"token" binding:"required"`
}

// Approve moves WAITLISTED -> PENDING and locks amount, token, and whether
// the booking takes the two-phase reservation flow. Stays longer than the
// configured night threshold are split into a reservation plus remainder.
func (s *BookingService) Approve(ctx context.Context, ref string, req *ApproveBookingRequest) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.Approve")
	defer span.End()

	b, err := s.store.GetBookingByReference(ctx, ref)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, reject(ReasonBookingNotFound, "booking %s not found", ref)
		}
		return nil, err
	}
	if b.Status != models.BookingStatusWaitlisted {
		return nil, reject(ReasonStatusConflict, "booking %s is %s, only %s bookings can be approved",
			ref, b.Status, models.BookingStatusWaitlisted)
	}
	if req.Amount.Sign() <= 0 {
		return nil, reject(ReasonPaymentNotLocked, "approval amount must be positive")
	}

	params := store.ApprovalParams{
		RequiresReservation: b.Nights > s.policy.ReservationNightsOver,
		PaymentToken:        req.Token,
		ExpiresAt:           time.Now().Add(s.policy.PaymentWindow),
	}
	if params.RequiresReservation {
		reservation := req.Amount.
			Mul(decimal.NewFromInt(int64(s.policy.ReservationPercent))).
			Div(decimal.NewFromInt(100)).
			Round(2)
		params.ReservationAmount = decimal.NewNullDecimal(reservation)
		params.RemainingAmount = decimal.NewNullDecimal(req.Amount.Sub(reservation))
	} else {
		params.PaymentAmount = decimal.NewNullDecimal(req.Amount)
	}

	if err := s.store.ApproveBooking(ctx, b.ID, params); err != nil {
		if errors.Is(err, store.ErrStatusChanged) {
			return nil, reject(ReasonStatusConflict, "booking %s was approved concurrently", ref)
		}
		return nil, fmt.Errorf("failed to approve booking: %w", err)
	}

	util.BookingsApprovedTotal.Inc()
	s.logger.Info("Booking approved",
		zap.String("reference", ref),
		zap.Bool("requires_reservation", params.RequiresReservation),
		zap.String("amount", req.Amount.String()),
		zap.String("token", req.Token))

	detail, _ := json.Marshal(map[string]interface{}{
		"amount":               req.Amount.String(),
		"token":                req.Token,
		"requires_reservation": params.RequiresReservation,
	})
	if err := s.store.AppendActivity(ctx, b.ID, models.ActionBookingApproved, detail); err != nil {
		s.logger.Error("Failed to append activity", zap.Error(err))
	}

	return s.store.GetBookingByReference(ctx, ref)
}

// SubmitPaymentRequest is a claimed on-chain payment for a booking
type SubmitPaymentRequest struct {
	TxHash             string `json:"tx_hash" binding:"required"`
	ChainID            int64  `json:"chain_id" binding:"required"`
	Token              string `json:"token"`
	IsRemainingPayment bool   `json:"is_remaining_payment"`
}

// SubmitPaymentResponse reports acceptance of a submission. Verification
// itself is asynchronous; its outcome is observable via the status read.
type SubmitPaymentResponse struct {
	Accepted bool   `json:"accepted"`
	Status   string `json:"status"`
	Phase    string `json:"phase"`
}

// SubmitPayment validates a payment submission, records the claimed
// reference, and schedules background verification. All rejections here are
// synchronous and happen before any chain call.
func (s *BookingService) SubmitPayment(ctx context.Context, ref string, req *SubmitPaymentRequest) (*SubmitPaymentResponse, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.SubmitPayment")
	defer span.End()

	resp, err := s.submitPayment(ctx, ref, req)
	if err != nil {
		if reason, ok := RejectionReason(err); ok {
			util.PaymentSubmissionsRejected.WithLabelValues(string(reason)).Inc()
		}
		return nil, err
	}

	util.PaymentSubmissionsAccepted.WithLabelValues(resp.Phase).Inc()
	return resp, nil
}

func (s *BookingService) submitPayment(ctx context.Context, ref string, req *SubmitPaymentRequest) (*SubmitPaymentResponse, error) {
	if !txHashPattern.MatchString(req.TxHash) {
		return nil, reject(ReasonMalformedTxHash, "transaction hash must be 0x-prefixed 64-char hex")
	}

	b, err := s.store.GetBookingByReference(ctx, ref)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, reject(ReasonBookingNotFound, "booking %s not found", ref)
		}
		return nil, err
	}

	phase := DeterminePhase(b, req.IsRemainingPayment)
	if err := GuardSubmission(b, phase); err != nil {
		return nil, err
	}

	// Resolve now so a missing payment lock or an unconfigured chain/token
	// rejects the submission instead of failing in the background.
	exp, err := s.resolver.Resolve(b, phase, req.ChainID)
	if err != nil {
		return nil, err
	}
	if exp.AlreadyVerified {
		return nil, reject(ReasonStatusConflict, "%s payment already verified for booking %s", phase, ref)
	}
	if req.Token != "" && req.Token != exp.TokenSymbol {
		s.logger.Warn("Declared token differs from locked token",
			zap.String("reference", ref),
			zap.String("declared", req.Token),
			zap.String("locked", exp.TokenSymbol))
	}

	if used, err := s.cacheUsed(ctx, req.TxHash); err == nil && used {
		return nil, reject(ReasonTxAlreadyUsed, "transaction %s already consumed", req.TxHash)
	}
	used, err := s.store.IsTransactionUsed(ctx, req.TxHash)
	if err != nil {
		return nil, fmt.Errorf("failed to check transaction reuse: %w", err)
	}
	if used {
		return nil, reject(ReasonTxAlreadyUsed, "transaction %s already consumed", req.TxHash)
	}

	if err := s.store.RecordPaymentReference(ctx, b.ID, phase, b.Status, req.TxHash, req.ChainID); err != nil {
		if errors.Is(err, store.ErrStatusChanged) {
			return nil, reject(ReasonStatusConflict, "booking %s changed state during submission", ref)
		}
		return nil, fmt.Errorf("failed to record payment reference: %w", err)
	}

	detail, _ := json.Marshal(map[string]interface{}{
		"phase":    phase.String(),
		"tx_hash":  req.TxHash,
		"chain_id": req.ChainID,
		"amount":   exp.Amount.String(),
		"token":    exp.TokenSymbol,
	})
	if err := s.store.AppendActivity(ctx, b.ID, models.ActionPaymentSubmitted, detail); err != nil {
		s.logger.Error("Failed to append activity", zap.Error(err))
	}

	job := VerificationJob{
		BookingID:        b.ID,
		BookingReference: b.Reference,
		GuestEmail:       b.GuestEmail,
		TxHash:           req.TxHash,
		ChainID:          req.ChainID,
		Phase:            phase,
		ExpectedStatus:   b.Status,
	}
	if err := s.scheduler.Schedule(job); err != nil {
		s.logger.Error("Failed to schedule verification",
			zap.String("reference", ref),
			zap.Error(err))
		return nil, reject(ReasonQueueFull, "verification queue is full, retry submission")
	}

	s.logger.Info("Payment submitted",
		zap.String("reference", ref),
		zap.String("phase", phase.String()),
		zap.String("tx_hash", req.TxHash),
		zap.Int64("chain_id", req.ChainID))

	return &SubmitPaymentResponse{
		Accepted: true,
		Status:   b.Status,
		Phase:    phase.String(),
	}, nil
}

func (s *BookingService) cacheUsed(ctx context.Context, txHash string) (bool, error) {
	if s.cache == nil {
		return false, nil
	}
	return s.cache.IsTransactionUsed(ctx, txHash)
}

// PaymentStatusResponse is the externally visible payment outcome
type PaymentStatusResponse struct {
	Reference           string     `json:"reference"`
	Status              string     `json:"status"`
	RequiresReservation bool       `json:"requires_reservation"`
	PaymentAmount       string     `json:"payment_amount,omitempty"`
	PaymentToken        string     `json:"payment_token,omitempty"`
	TxHash              string     `json:"tx_hash,omitempty"`
	ChainID             int64      `json:"chain_id,omitempty"`
	ReservationAmount   string     `json:"reservation_amount,omitempty"`
	ReservationTxHash   string     `json:"reservation_tx_hash,omitempty"`
	ReservationPaid     bool       `json:"reservation_paid"`
	RemainingAmount     string     `json:"remaining_amount,omitempty"`
	RemainingTxHash     string     `json:"remaining_tx_hash,omitempty"`
	RemainingPaid       bool       `json:"remaining_paid"`
	ExpiresAt           *time.Time `json:"expires_at,omitempty"`
	ConfirmedAt         *time.Time `json:"confirmed_at,omitempty"`
}

// GetPaymentStatus is a pure read of the booking's payment state.
func (s *BookingService) GetPaymentStatus(ctx context.Context, ref string) (*PaymentStatusResponse, error) {
	b, err := s.store.GetBookingByReference(ctx, ref)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, reject(ReasonBookingNotFound, "booking %s not found", ref)
		}
		return nil, err
	}

	resp := &PaymentStatusResponse{
		Reference:           b.Reference,
		Status:              b.Status,
		RequiresReservation: b.RequiresReservation,
		PaymentToken:        nullString(b.PaymentToken),
		TxHash:              nullString(b.TxHash),
		ReservationTxHash:   nullString(b.ReservationTxHash),
		ReservationPaid:     b.ReservationPaid,
		RemainingTxHash:     nullString(b.RemainingTxHash),
		RemainingPaid:       b.RemainingPaid,
	}
	if b.PaymentAmount.Valid {
		resp.PaymentAmount = b.PaymentAmount.Decimal.String()
	}
	if b.ReservationAmount.Valid {
		resp.ReservationAmount = b.ReservationAmount.Decimal.String()
	}
	if b.RemainingAmount.Valid {
		resp.RemainingAmount = b.RemainingAmount.Decimal.String()
	}
	if b.ChainID.Valid {
		resp.ChainID = b.ChainID.Int64
	}
	if b.ExpiresAt.Valid {
		resp.ExpiresAt = &b.ExpiresAt.Time
	}
	if b.ConfirmedAt.Valid {
		resp.ConfirmedAt = &b.ConfirmedAt.Time
	}
	return resp, nil
}

// GetActivity returns the booking's audit trail.
func (s *BookingService) GetActivity(ctx context.Context, ref string) ([]models.ActivityLogEntry, error) {
	b, err := s.store.GetBookingByReference(ctx, ref)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, reject(ReasonBookingNotFound, "booking %s not found", ref)
		}
		return nil, err
	}
	return s.store.GetActivityByBookingID(ctx, b.ID)
}
