package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Config struct {
	// Wallet endpoint the provider locator dials
	WalletRPCURL string

	// Provider detection polling
	ProviderPollInterval  time.Duration
	ProviderDetectTimeout time.Duration

	// Hex private key used for signing ( empty means read-only )
	PrivateKey string

	// Expected network and whether to switch to it automatically
	TargetChainID      uint64
	ForceTargetNetwork bool

	// Per-chain deployment table
	ABIDir        string
	AddressesFile string

	// FHE client settings
	FHERelayerURL        string
	FHEMockChains        map[uint64]string
	FHEACLAddress        string
	FHEDecryptionAddress string

	// HTTP API
	APIPort          int
	SessionCacheSize int
	SessionMax       int
	SessionIdleTTL   time.Duration

	// Optional event indexer ( enabled when DatabaseURL is set )
	DatabaseURL           string
	IndexerStartBlock     uint64
	IndexerPollInterval   time.Duration
	IndexerBlockBatchSize uint64

	// Optional IPFS node for content refs
	IPFSAPIURL string

	LogLevel string
}

// Load returns the configuration from the environment
// Call godotenv.Load() first to pick up a .env file
func Load() *Config {
	return &Config{
		WalletRPCURL:          getEnv("WALLET_RPC_URL", "http://localhost:8545"),
		ProviderPollInterval:  time.Duration(getEnvAsInt("PROVIDER_POLL_INTERVAL_MS", 100)) * time.Millisecond,
		ProviderDetectTimeout: time.Duration(getEnvAsInt("PROVIDER_DETECT_TIMEOUT_MS", 10000)) * time.Millisecond,

		PrivateKey: strings.TrimPrefix(getEnv("PRIVATE_KEY", ""), "0x"),

		// Sepolia
		TargetChainID:      uint64(getEnvAsInt("TARGET_CHAIN_ID", 11155111)),
		ForceTargetNetwork: getEnvAsBool("FORCE_TARGET_NETWORK", false),

		ABIDir:        getEnv("ABI_DIR", "./abi"),
		AddressesFile: getEnv("ADDRESSES_FILE", "AuroraExhibitAddresses.json"),

		FHERelayerURL:        getEnv("FHE_RELAYER_URL", "https://relayer.testnet.zama.cloud"),
		FHEMockChains:        ParseMockChains(getEnv("FHE_MOCK_CHAINS", "31337=http://localhost:8545")),
		FHEACLAddress:        getEnv("FHE_ACL_ADDRESS", ""),
		FHEDecryptionAddress: getEnv("FHE_DECRYPTION_ADDRESS", ""),

		APIPort:          getEnvAsInt("API_PORT", 8080),
		SessionCacheSize: getEnvAsInt("SESSION_CACHE_SIZE", 256),
		SessionMax:       getEnvAsInt("SESSION_MAX", 10000),
		SessionIdleTTL:   time.Duration(getEnvAsInt("SESSION_IDLE_TTL_MIN", 30)) * time.Minute,

		DatabaseURL:           getEnv("DATABASE_URL", ""),
		IndexerStartBlock:     uint64(getEnvAsInt("INDEXER_START_BLOCK", 0)),
		IndexerPollInterval:   time.Duration(getEnvAsInt("INDEXER_POLL_INTERVAL_SEC", 12)) * time.Second,
		IndexerBlockBatchSize: uint64(getEnvAsInt("INDEXER_BLOCK_BATCH_SIZE", 1000)),

		IPFSAPIURL: getEnv("IPFS_API_URL", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.WalletRPCURL == "" {
		return fmt.Errorf("WALLET_RPC_URL is required")
	}
	if c.ProviderPollInterval <= 0 {
		return fmt.Errorf("PROVIDER_POLL_INTERVAL_MS must be positive")
	}
	if c.ProviderDetectTimeout < c.ProviderPollInterval {
		return fmt.Errorf("PROVIDER_DETECT_TIMEOUT_MS must be at least the poll interval")
	}
	if c.TargetChainID == 0 {
		return fmt.Errorf("TARGET_CHAIN_ID is required")
	}
	if c.FHEACLAddress != "" && !common.IsHexAddress(c.FHEACLAddress) {
		return fmt.Errorf("invalid FHE_ACL_ADDRESS: %s", c.FHEACLAddress)
	}
	if c.FHEDecryptionAddress != "" && !common.IsHexAddress(c.FHEDecryptionAddress) {
		return fmt.Errorf("invalid FHE_DECRYPTION_ADDRESS: %s", c.FHEDecryptionAddress)
	}
	if c.SessionCacheSize <= 0 {
		return fmt.Errorf("SESSION_CACHE_SIZE must be positive")
	}
	if c.SessionMax <= 0 {
		return fmt.Errorf("SESSION_MAX must be positive")
	}
	if c.SessionIdleTTL <= 0 {
		return fmt.Errorf("SESSION_IDLE_TTL_MIN must be positive")
	}
	if c.DatabaseURL != "" && c.IndexerBlockBatchSize == 0 {
		return fmt.Errorf("INDEXER_BLOCK_BATCH_SIZE must be positive")
	}
	return nil
}

// IndexerEnabled reports whether a database was configured
func (c *Config) IndexerEnabled() bool {
	return c.DatabaseURL != ""
}

// ParseMockChains parses "31337=http://localhost:8545,1337=http://..." into a table
// Malformed entries are skipped
func ParseMockChains(raw string) map[uint64]string {
	chains := make(map[uint64]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, url, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		chainID, err := strconv.ParseUint(strings.TrimSpace(id), 10, 64)
		if err != nil || chainID == 0 {
			continue
		}
		chains[chainID] = strings.TrimSpace(url)
	}
	return chains
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// Helper: get int from env
func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

// Helper: get bool from env
func getEnvAsBool(key string, defaultVal bool) bool {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}
