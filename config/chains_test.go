package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeChainConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chains.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadChainRegistry(t *testing.T) {
	path := writeChainConfig(t, `{
		"8453": {
			"name": "base",
			"rpc_url": "https://mainnet.base.org",
			"treasury": "0x52908400098527886E0F7030069857D2E4169EE7",
			"native_usd_price": "2500",
			"tokens": {
				"USDC": {"address": "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", "decimals": 6}
			}
		}
	}`)

	reg, err := LoadChainRegistry(path)
	require.NoError(t, err)

	chain, ok := reg.Chain(8453)
	require.True(t, ok)
	assert.Equal(t, "base", chain.Name)

	token, ok := reg.Token(8453, "USDC")
	require.True(t, ok)
	assert.Equal(t, uint8(6), token.Decimals)

	treasury, ok := reg.Treasury(8453)
	require.True(t, ok)
	assert.Equal(t, "0x52908400098527886E0F7030069857D2E4169EE7", treasury.Hex())

	_, ok = reg.Token(8453, "DAI")
	assert.False(t, ok)
	_, ok = reg.Chain(1)
	assert.False(t, ok)
}

func TestLoadChainRegistryRejectsMalformedTreasury(t *testing.T) {
	path := writeChainConfig(t, `{
		"8453": {
			"rpc_url": "https://mainnet.base.org",
			"treasury": "not-an-address",
			"tokens": {"USDC": {"address": "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", "decimals": 6}}
		}
	}`)

	_, err := LoadChainRegistry(path)
	assert.ErrorContains(t, err, "malformed treasury address")
}

func TestLoadChainRegistryRejectsEmptyTokens(t *testing.T) {
	path := writeChainConfig(t, `{
		"8453": {
			"rpc_url": "https://mainnet.base.org",
			"treasury": "0x52908400098527886E0F7030069857D2E4169EE7",
			"tokens": {}
		}
	}`)

	_, err := LoadChainRegistry(path)
	assert.ErrorContains(t, err, "no tokens configured")
}

func TestLoadChainRegistryRejectsEmptyFile(t *testing.T) {
	path := writeChainConfig(t, `{}`)

	_, err := LoadChainRegistry(path)
	assert.ErrorContains(t, err, "defines no chains")
}
