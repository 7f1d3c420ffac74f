package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DBPath   string `envconfig:"NFTSTAKE_DB_PATH" default:"./data/nftstake.sqlite"`
	Port     int    `envconfig:"NFTSTAKE_PORT" default:"8080"`
	LogLevel string `envconfig:"NFTSTAKE_LOG_LEVEL" default:"info"`
	LogDir   string `envconfig:"NFTSTAKE_LOG_DIR" default:"./logs"`

	// Custody mnemonic file. Derives the custody signing key and the admin
	// wallet used for emergency gateway operations.
	MnemonicFile string `envconfig:"NFTSTAKE_MNEMONIC_FILE"`

	EthereumRPCURL string `envconfig:"NFTSTAKE_ETHEREUM_RPC_URL"`
	BSCRPCURL      string `envconfig:"NFTSTAKE_BSC_RPC_URL"`

	// Staking contract addresses per EVM chain.
	EthereumStakingContract string `envconfig:"NFTSTAKE_ETHEREUM_STAKING_CONTRACT"`
	BSCStakingContract      string `envconfig:"NFTSTAKE_BSC_STAKING_CONTRACT"`

	// NFT indexer APIs backing ownership checks on custodial chains.
	SolanaIndexerURL  string `envconfig:"NFTSTAKE_SOLANA_INDEXER_URL"`
	BitcoinIndexerURL string `envconfig:"NFTSTAKE_BITCOIN_INDEXER_URL"`

	MigrationBatchSize int `envconfig:"NFTSTAKE_MIGRATION_BATCH_SIZE" default:"10"`
}

// Load reads configuration from .env file (if present) then from environment variables.
// Environment variables override .env values.
func Load() (*Config, error) {
	// godotenv does NOT override already-set env vars, so real environment
	// variables take precedence over .env values.
	envFiles := []string{".env"}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				slog.Warn("failed to load .env file", "file", f, "error", err)
			} else {
				slog.Info("loaded .env file", "file", f)
			}
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port must be 1-65535, got %d", ErrInvalidConfig, c.Port)
	}
	if c.MigrationBatchSize < 1 || c.MigrationBatchSize > MigrationMaxBatchSize {
		return fmt.Errorf("%w: migration batch size must be 1-%d, got %d",
			ErrInvalidConfig, MigrationMaxBatchSize, c.MigrationBatchSize)
	}
	return nil
}
