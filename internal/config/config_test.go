package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("WALLET_RPC_URL", "")
	t.Setenv("PRIVATE_KEY", "0xabc")

	cfg := Load()

	// explicitly empty value wins over the default
	assert.Equal(t, "", cfg.WalletRPCURL)
	assert.Equal(t, "abc", cfg.PrivateKey)
	assert.Equal(t, 100*time.Millisecond, cfg.ProviderPollInterval)
	assert.Equal(t, 10*time.Second, cfg.ProviderDetectTimeout)
	assert.Equal(t, uint64(11155111), cfg.TargetChainID)
	assert.Equal(t, "http://localhost:8545", cfg.FHEMockChains[31337])
	assert.Equal(t, 10000, cfg.SessionMax)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTTL)
	assert.False(t, cfg.IndexerEnabled())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"missing wallet url", func(c *Config) { c.WalletRPCURL = "" }, true},
		{"timeout below interval", func(c *Config) { c.ProviderDetectTimeout = time.Millisecond }, true},
		{"bad acl address", func(c *Config) { c.FHEACLAddress = "nope" }, true},
		{"no target chain", func(c *Config) { c.TargetChainID = 0 }, true},
		{"unbounded sessions", func(c *Config) { c.SessionMax = 0 }, true},
		{"sessions never expire", func(c *Config) { c.SessionIdleTTL = 0 }, true},
		{"indexer without batch size", func(c *Config) {
			c.DatabaseURL = "postgres://localhost/gallery"
			c.IndexerBlockBatchSize = 0
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("WALLET_RPC_URL", "http://localhost:8545")
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseMockChains(t *testing.T) {
	chains := ParseMockChains(" 31337=http://localhost:8545 , bad, 0=http://zero, 1337 = http://127.0.0.1:8546")
	require.Len(t, chains, 2)
	assert.Equal(t, "http://localhost:8545", chains[31337])
	assert.Equal(t, "http://127.0.0.1:8546", chains[1337])
}
