package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"booking-payment-service/config"
	"booking-payment-service/internal/util"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// ErrUnknownChain means the chain id has no configured RPC endpoint. This is
// a validation failure, not a transient one: retrying will never help.
var ErrUnknownChain = errors.New("unknown chain id")

// Client is a read-only accessor to the configured blockchain nodes. One
// ethclient per chain, dialed at startup, shared for the process lifetime.
// All methods are side-effect-free and safe to call repeatedly.
//
// RPC failures and "not found" results are both surfaced as plain errors:
// some networks answer "not yet indexed" and "does not exist" identically,
// so callers must treat every non-configuration error as transient and lean
// on their retry budget rather than fast-failing on a single null result.
type Client struct {
	clients map[int64]*ethclient.Client
	logger  *zap.Logger
}

// NewClient dials every chain in the registry.
func NewClient(ctx context.Context, registry *config.ChainRegistry) (*Client, error) {
	clients := make(map[int64]*ethclient.Client)
	for _, chainID := range registry.ChainIDs() {
		cfg, _ := registry.Chain(chainID)
		ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			for _, c := range clients {
				c.Close()
			}
			return nil, fmt.Errorf("failed to dial chain %d (%s): %w", chainID, cfg.Name, err)
		}
		clients[chainID] = ec
	}

	return &Client{
		clients: clients,
		logger:  util.GetLogger(),
	}, nil
}

// Close releases all RPC connections.
func (c *Client) Close() {
	for _, ec := range c.clients {
		ec.Close()
	}
}

func (c *Client) client(chainID int64) (*ethclient.Client, error) {
	ec, ok := c.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChain, chainID)
	}
	return ec, nil
}

// Receipt fetches the receipt for a mined transaction. A nil receipt is
// never returned without an error.
func (c *Client) Receipt(ctx context.Context, chainID int64, txHash common.Hash) (*types.Receipt, error) {
	ec, err := c.client(chainID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	receipt, err := ec.TransactionReceipt(ctx, txHash)
	util.ChainRPCLatency.WithLabelValues("eth_getTransactionReceipt").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("receipt fetch for %s on chain %d: %w", txHash.Hex(), chainID, err)
	}
	return receipt, nil
}

// Transaction fetches the transaction body. Used for gas-price fallback on
// chains whose receipts omit the effective gas price.
func (c *Client) Transaction(ctx context.Context, chainID int64, txHash common.Hash) (*types.Transaction, bool, error) {
	ec, err := c.client(chainID)
	if err != nil {
		return nil, false, err
	}

	start := time.Now()
	tx, pending, err := ec.TransactionByHash(ctx, txHash)
	util.ChainRPCLatency.WithLabelValues("eth_getTransactionByHash").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, false, fmt.Errorf("transaction fetch for %s on chain %d: %w", txHash.Hex(), chainID, err)
	}
	return tx, pending, nil
}

// BlockNumber returns the current head block of a chain.
func (c *Client) BlockNumber(ctx context.Context, chainID int64) (uint64, error) {
	ec, err := c.client(chainID)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	n, err := ec.BlockNumber(ctx)
	util.ChainRPCLatency.WithLabelValues("eth_blockNumber").Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("block number fetch on chain %d: %w", chainID, err)
	}
	return n, nil
}
