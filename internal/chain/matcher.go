package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// TransferEventTopic is the canonical ERC-20 Transfer(address,address,uint256)
// event signature hash.
var TransferEventTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Terminal matching failures. None of these are retryable: the transaction
// is mined and its content will not change.
var (
	ErrTransactionReverted = errors.New("transaction reverted on chain")
	ErrNoTransferEvent     = errors.New("no transfer event from expected token contract")
	ErrWrongRecipient      = errors.New("transfer recipient is not the treasury")
	ErrAmountMismatch      = errors.New("transferred amount does not match expected amount")
)

// TransferMatch is the one qualifying transfer found in a receipt.
type TransferMatch struct {
	From     common.Address
	To       common.Address
	Amount   *big.Int
	LogIndex uint
}

// MatchTransfer validates a receipt against the expected payment: a
// successful execution containing a Transfer event emitted by tokenContract
// whose recipient is the treasury and whose value equals wantBaseUnits
// exactly. Stablecoins carry fixed decimal precision, so equality is strict
// integer equality in base units; an off-by-one is a mismatch, never rounded
// away.
//
// Address comparisons are byte-level on parsed addresses, which makes the
// hex-case question moot.
func MatchTransfer(receipt *types.Receipt, tokenContract, treasury common.Address, wantBaseUnits *big.Int) (*TransferMatch, error) {
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: tx %s", ErrTransactionReverted, receipt.TxHash.Hex())
	}

	matched := false
	for _, lg := range receipt.Logs {
		if lg.Address != tokenContract {
			continue
		}
		if len(lg.Topics) < 3 || lg.Topics[0] != TransferEventTopic {
			continue
		}
		matched = true

		to := common.BytesToAddress(lg.Topics[2].Bytes())
		if to != treasury {
			continue
		}

		got := new(big.Int).SetBytes(lg.Data)
		if got.Cmp(wantBaseUnits) != 0 {
			return nil, fmt.Errorf("%w: got %s base units, want %s", ErrAmountMismatch, got, wantBaseUnits)
		}

		return &TransferMatch{
			From:     common.BytesToAddress(lg.Topics[1].Bytes()),
			To:       to,
			Amount:   got,
			LogIndex: lg.Index,
		}, nil
	}

	if matched {
		return nil, fmt.Errorf("%w: tx %s", ErrWrongRecipient, receipt.TxHash.Hex())
	}
	return nil, fmt.Errorf("%w: tx %s", ErrNoTransferEvent, receipt.TxHash.Hex())
}
