package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

const (
	LedgerSolana = "solana"
	LedgerMemory = "memory"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// NATS configuration; empty disables the entry event feed
	NATSURL string

	// Solana configuration
	SolanaRPCURL string // may be a comma-separated list
	ProgramID    string
	Commitment   rpc.CommitmentType

	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration

	// Wallet configuration
	KeypairPath  string
	TrustDBPath  string
	WalletOrigin string

	// Ledger selects the record backend: "solana" or "memory"
	Ledger string
}

// Load reads configuration from environment variables and validates all fields.
// Returns an error if any configuration is invalid.
func Load() (*Config, error) {
	cfg, errs := read()
	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}
	return cfg, nil
}

// Read parses environment variables without validating the result, so callers
// can apply overrides first. Only malformed values are reported.
func Read() (*Config, error) {
	cfg, errs := read()
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration parsing failed: %v", errs)
	}
	return cfg, nil
}

func read() (*Config, []error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// NATS configuration
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Solana configuration
	cfg.SolanaRPCURL = getEnvOrDefault("SOLANA_RPC_URL", rpc.DevNet_RPC)
	// No default: the program must be a deployment with the PDA record layout.
	cfg.ProgramID = os.Getenv("PROGRAM_ID")
	cfg.Commitment = rpc.CommitmentType(getEnvOrDefault("COMMITMENT", string(rpc.CommitmentConfirmed)))

	timeout, err := parseDuration("CONFIRM_TIMEOUT", "60s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmTimeout = timeout
	}

	poll, err := parseDuration("CONFIRM_POLL_INTERVAL", "500ms")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmPollInterval = poll
	}

	// Wallet configuration
	keypair, err := expandHome(getEnvOrDefault("KEYPAIR_PATH", "~/.config/solana/id.json"))
	if err != nil {
		errs = append(errs, fmt.Errorf("KEYPAIR_PATH: %w", err))
	}
	cfg.KeypairPath = keypair

	trustDB, err := expandHome(getEnvOrDefault("TRUST_DB_PATH", "~/.config/moonportal/trust.db"))
	if err != nil {
		errs = append(errs, fmt.Errorf("TRUST_DB_PATH: %w", err))
	}
	cfg.TrustDBPath = trustDB
	cfg.WalletOrigin = getEnvOrDefault("WALLET_ORIGIN", "moonportal")

	cfg.Ledger = getEnvOrDefault("LEDGER", LedgerSolana)

	return cfg, errs
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	switch c.Ledger {
	case LedgerMemory:
	case LedgerSolana:
		if strings.TrimSpace(c.SolanaRPCURL) == "" {
			errs = append(errs, fmt.Errorf("SolanaRPCURL is required for the solana ledger"))
		}
		if c.ProgramID == "" {
			errs = append(errs, fmt.Errorf("ProgramID is required for the solana ledger (set PROGRAM_ID)"))
		} else if _, err := solana.PublicKeyFromBase58(c.ProgramID); err != nil {
			errs = append(errs, fmt.Errorf("ProgramID %q is not a valid public key: %w", c.ProgramID, err))
		}
	default:
		errs = append(errs, fmt.Errorf("Ledger must be %q or %q, got %q", LedgerSolana, LedgerMemory, c.Ledger))
	}

	switch c.Commitment {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		errs = append(errs, fmt.Errorf("Commitment must be processed, confirmed or finalized, got %q", c.Commitment))
	}

	if c.ConfirmTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ConfirmTimeout must be positive"))
	}

	if c.ConfirmPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("ConfirmPollInterval must be positive"))
	}

	if c.ConfirmPollInterval > c.ConfirmTimeout {
		errs = append(errs, fmt.Errorf("ConfirmPollInterval cannot be greater than ConfirmTimeout"))
	}

	if c.KeypairPath == "" {
		errs = append(errs, fmt.Errorf("KeypairPath is required"))
	}

	if c.WalletOrigin == "" {
		errs = append(errs, fmt.Errorf("WalletOrigin is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// expandHome resolves a leading ~ to the user's home directory.
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
