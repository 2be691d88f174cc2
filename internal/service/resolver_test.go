package service

import (
	"database/sql"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"booking-payment-service/config"
	"booking-payment-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChainID = int64(8453)

func testRegistry(t *testing.T) *config.ChainRegistry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chains.json")
	body := `{
		"8453": {
			"name": "base",
			"rpc_url": "https://mainnet.base.org",
			"treasury": "0x52908400098527886E0F7030069857D2E4169EE7",
			"native_usd_price": "2500",
			"tokens": {
				"USDC": {"address": "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", "decimals": 6},
				"DAI":  {"address": "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb", "decimals": 18}
			}
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	reg, err := config.LoadChainRegistry(path)
	require.NoError(t, err)
	return reg
}

func ns(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestResolveFullPayment(t *testing.T) {
	r := NewResolver(testRegistry(t))

	b := &models.Booking{
		Reference:     "bk-full",
		Status:        models.BookingStatusPending,
		PaymentToken:  ns("USDC"),
		PaymentAmount: nd("30.00"),
	}

	exp, err := r.Resolve(b, models.PhaseFull, testChainID)
	require.NoError(t, err)
	assert.False(t, exp.AlreadyVerified)
	assert.Equal(t, "USDC", exp.TokenSymbol)
	assert.Equal(t, uint8(6), exp.TokenDecimals)
	assert.Zero(t, exp.BaseUnits.Cmp(big.NewInt(30000000)))
	assert.Equal(t, "0x52908400098527886E0F7030069857D2E4169EE7", exp.Treasury.Hex())
}

func TestResolveReservationTokenFallbacks(t *testing.T) {
	r := NewResolver(testRegistry(t))

	base := func() *models.Booking {
		return &models.Booking{
			Reference:           "bk-res",
			Status:              models.BookingStatusPending,
			RequiresReservation: true,
			ReservationAmount:   nd("9.90"),
		}
	}

	t.Run("explicit reservation token", func(t *testing.T) {
		b := base()
		b.ReservationToken = ns("DAI")
		exp, err := r.Resolve(b, models.PhaseReservation, testChainID)
		require.NoError(t, err)
		assert.Equal(t, "DAI", exp.TokenSymbol)
	})

	t.Run("falls back to payment token", func(t *testing.T) {
		b := base()
		b.PaymentToken = ns("DAI")
		exp, err := r.Resolve(b, models.PhaseReservation, testChainID)
		require.NoError(t, err)
		assert.Equal(t, "DAI", exp.TokenSymbol)
	})

	t.Run("falls back to USDC", func(t *testing.T) {
		exp, err := r.Resolve(base(), models.PhaseReservation, testChainID)
		require.NoError(t, err)
		assert.Equal(t, "USDC", exp.TokenSymbol)
		assert.Zero(t, exp.BaseUnits.Cmp(big.NewInt(9900000)))
	})
}

func TestResolveRemainingRequiresReservationPaid(t *testing.T) {
	r := NewResolver(testRegistry(t))

	b := &models.Booking{
		Reference:           "bk-rem",
		Status:              models.BookingStatusReserved,
		RequiresReservation: true,
		RemainingAmount:     nd("23.10"),
		RemainingToken:      ns("USDC"),
	}

	_, err := r.Resolve(b, models.PhaseRemaining, testChainID)
	reason, ok := RejectionReason(err)
	require.True(t, ok)
	assert.Equal(t, ReasonPhaseOrderViolation, reason)

	b.ReservationPaid = true
	exp, err := r.Resolve(b, models.PhaseRemaining, testChainID)
	require.NoError(t, err)
	assert.Zero(t, exp.BaseUnits.Cmp(big.NewInt(23100000)))
}

func TestResolveAlreadyVerified(t *testing.T) {
	r := NewResolver(testRegistry(t))

	t.Run("reservation paid", func(t *testing.T) {
		b := &models.Booking{RequiresReservation: true, ReservationPaid: true}
		exp, err := r.Resolve(b, models.PhaseReservation, testChainID)
		require.NoError(t, err)
		assert.True(t, exp.AlreadyVerified)
	})

	t.Run("remaining paid", func(t *testing.T) {
		b := &models.Booking{RequiresReservation: true, ReservationPaid: true, RemainingPaid: true}
		exp, err := r.Resolve(b, models.PhaseRemaining, testChainID)
		require.NoError(t, err)
		assert.True(t, exp.AlreadyVerified)
	})

	t.Run("booking confirmed", func(t *testing.T) {
		b := &models.Booking{Status: models.BookingStatusConfirmed}
		exp, err := r.Resolve(b, models.PhaseFull, testChainID)
		require.NoError(t, err)
		assert.True(t, exp.AlreadyVerified)
	})
}

func TestResolvePaymentNotLocked(t *testing.T) {
	r := NewResolver(testRegistry(t))

	b := &models.Booking{Reference: "bk-unlocked", Status: models.BookingStatusPending}
	_, err := r.Resolve(b, models.PhaseFull, testChainID)
	reason, ok := RejectionReason(err)
	require.True(t, ok)
	assert.Equal(t, ReasonPaymentNotLocked, reason)
}

func TestResolveUnknownChainAndToken(t *testing.T) {
	r := NewResolver(testRegistry(t))

	b := &models.Booking{
		Reference:     "bk-chain",
		Status:        models.BookingStatusPending,
		PaymentToken:  ns("USDC"),
		PaymentAmount: nd("30.00"),
	}

	_, err := r.Resolve(b, models.PhaseFull, 999)
	reason, ok := RejectionReason(err)
	require.True(t, ok)
	assert.Equal(t, ReasonUnknownChain, reason)

	b.PaymentToken = ns("FRAX")
	_, err = r.Resolve(b, models.PhaseFull, testChainID)
	reason, ok = RejectionReason(err)
	require.True(t, ok)
	assert.Equal(t, ReasonUnknownToken, reason)
}

func TestBaseUnits(t *testing.T) {
	got, err := BaseUnits(decimal.RequireFromString("30.00"), 6)
	require.NoError(t, err)
	assert.Zero(t, got.Cmp(big.NewInt(30000000)))

	got, err = BaseUnits(decimal.RequireFromString("0.000001"), 6)
	require.NoError(t, err)
	assert.Zero(t, got.Cmp(big.NewInt(1)))

	// More precision than the token carries can never match on chain.
	_, err = BaseUnits(decimal.RequireFromString("0.0000001"), 6)
	reason, ok := RejectionReason(err)
	require.True(t, ok)
	assert.Equal(t, ReasonAmountPrecision, reason)
}
