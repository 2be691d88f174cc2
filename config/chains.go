package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Token describes one stablecoin contract on a chain.
type Token struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
}

// Chain describes one supported network: where to reach it, where payments
// must land, and which tokens are accepted.
type Chain struct {
	Name           string           `json:"name"`
	RPCURL         string           `json:"rpc_url"`
	Treasury       string           `json:"treasury"`
	NativeUSDPrice decimal.Decimal  `json:"native_usd_price"`
	Tokens         map[string]Token `json:"tokens"`
}

// ChainRegistry is the static per-process chain/token configuration. Loaded
// once at startup, validated, and read-only thereafter.
type ChainRegistry struct {
	chains map[int64]Chain
}

// LoadChainRegistry reads and validates the chain configuration file.
// Validation failures here are startup-fatal for the caller: a malformed
// treasury or token address must never reach the verification path.
func LoadChainRegistry(path string) (*ChainRegistry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain config %s: %w", path, err)
	}

	var file map[string]Chain
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse chain config %s: %w", path, err)
	}

	if len(file) == 0 {
		return nil, fmt.Errorf("chain config %s defines no chains", path)
	}

	chains := make(map[int64]Chain, len(file))
	for key, chain := range file {
		chainID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id %q in chain config", key)
		}
		if chain.RPCURL == "" {
			return nil, fmt.Errorf("chain %d: missing rpc_url", chainID)
		}
		if !common.IsHexAddress(chain.Treasury) {
			return nil, fmt.Errorf("chain %d: malformed treasury address %q", chainID, chain.Treasury)
		}
		if len(chain.Tokens) == 0 {
			return nil, fmt.Errorf("chain %d: no tokens configured", chainID)
		}
		for symbol, token := range chain.Tokens {
			if !common.IsHexAddress(token.Address) {
				return nil, fmt.Errorf("chain %d: token %s has malformed address %q", chainID, symbol, token.Address)
			}
			if token.Decimals == 0 || token.Decimals > 36 {
				return nil, fmt.Errorf("chain %d: token %s has invalid decimals %d", chainID, symbol, token.Decimals)
			}
		}
		chains[chainID] = chain
	}

	return &ChainRegistry{chains: chains}, nil
}

// Chain returns the configuration for a chain id.
func (r *ChainRegistry) Chain(chainID int64) (Chain, bool) {
	c, ok := r.chains[chainID]
	return c, ok
}

// Token returns the contract metadata for a token symbol on a chain.
func (r *ChainRegistry) Token(chainID int64, symbol string) (Token, bool) {
	c, ok := r.chains[chainID]
	if !ok {
		return Token{}, false
	}
	t, ok := c.Tokens[symbol]
	return t, ok
}

// Treasury returns the treasury address for a chain.
func (r *ChainRegistry) Treasury(chainID int64) (common.Address, bool) {
	c, ok := r.chains[chainID]
	if !ok {
		return common.Address{}, false
	}
	return common.HexToAddress(c.Treasury), true
}

// ChainIDs lists the configured chain ids.
func (r *ChainRegistry) ChainIDs() []int64 {
	ids := make([]int64, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	return ids
}
