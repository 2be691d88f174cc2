package service

import (
	"database/sql"
	"math/big"

	"booking-payment-service/config"
	"booking-payment-service/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// DefaultToken is the fallback stablecoin symbol when a reservation booking
// was locked without an explicit token.
const DefaultToken = "USDC"

// Expectation is what a qualifying on-chain transfer must look like for one
// booking/phase: the exact amount in base units, the token contract it must
// be emitted by, and the treasury it must land in.
type Expectation struct {
	Amount        decimal.Decimal
	TokenSymbol   string
	TokenAddress  common.Address
	TokenDecimals uint8
	BaseUnits     *big.Int
	Treasury      common.Address

	// AlreadyVerified marks the no-op result: the relevant paid flag or
	// terminal status is already set, so verification has nothing to do.
	AlreadyVerified bool
}

// Resolver computes the expected amount and token contract metadata for a
// booking payment phase from the locked booking fields and the static chain
// registry.
type Resolver struct {
	registry *config.ChainRegistry
}

func NewResolver(registry *config.ChainRegistry) *Resolver {
	return &Resolver{registry: registry}
}

// Resolve determines the payment expectation for the given phase. The
// amounts and tokens must have been locked by the approval workflow; their
// absence is a PaymentNotLocked rejection, not a chain failure.
func (r *Resolver) Resolve(b *models.Booking, phase models.PaymentPhase, chainID int64) (*Expectation, error) {
	var amount decimal.NullDecimal
	var symbol string

	switch phase {
	case models.PhaseReservation:
		if b.ReservationPaid {
			return &Expectation{AlreadyVerified: true}, nil
		}
		amount = b.ReservationAmount
		symbol = firstNonEmpty(nullString(b.ReservationToken), nullString(b.PaymentToken), DefaultToken)

	case models.PhaseRemaining:
		if !b.ReservationPaid {
			return nil, reject(ReasonPhaseOrderViolation, "remaining payment requires a paid reservation for booking %s", b.Reference)
		}
		if b.RemainingPaid {
			return &Expectation{AlreadyVerified: true}, nil
		}
		amount = b.RemainingAmount
		symbol = nullString(b.RemainingToken)

	case models.PhaseFull:
		if b.Status == models.BookingStatusConfirmed {
			return &Expectation{AlreadyVerified: true}, nil
		}
		amount = b.PaymentAmount
		symbol = nullString(b.PaymentToken)

	default:
		return nil, reject(ReasonStatusConflict, "unknown payment phase %d", phase)
	}

	if !amount.Valid || symbol == "" {
		return nil, reject(ReasonPaymentNotLocked, "booking %s has no locked %s payment amount/token", b.Reference, phase)
	}

	if _, ok := r.registry.Chain(chainID); !ok {
		return nil, reject(ReasonUnknownChain, "chain %d is not configured", chainID)
	}
	token, ok := r.registry.Token(chainID, symbol)
	if !ok {
		return nil, reject(ReasonUnknownToken, "token %s is not configured on chain %d", symbol, chainID)
	}
	treasury, _ := r.registry.Treasury(chainID)

	base, err := BaseUnits(amount.Decimal, token.Decimals)
	if err != nil {
		return nil, err
	}

	return &Expectation{
		Amount:        amount.Decimal,
		TokenSymbol:   symbol,
		TokenAddress:  common.HexToAddress(token.Address),
		TokenDecimals: token.Decimals,
		BaseUnits:     base,
		Treasury:      treasury,
	}, nil
}

// BaseUnits scales a human-unit amount to the token's integer base units.
// The scaled value must be exactly integral: an amount carrying more
// precision than the token supports can never be matched exactly on chain.
func BaseUnits(amount decimal.Decimal, decimals uint8) (*big.Int, error) {
	shifted := amount.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return nil, reject(ReasonAmountPrecision, "amount %s does not scale to an integer at %d decimals", amount, decimals)
	}
	return shifted.BigInt(), nil
}

func nullString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
