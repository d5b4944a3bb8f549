package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	for _, key := range []string{
		"SERVER_ADDR", "LOG_LEVEL", "NATS_URL", "SOLANA_RPC_URL", "PROGRAM_ID",
		"COMMITMENT", "CONFIRM_TIMEOUT", "CONFIRM_POLL_INTERVAL", "KEYPAIR_PATH",
		"TRUST_DB_PATH", "WALLET_ORIGIN", "LEDGER",
	} {
		t.Setenv(key, "")
	}
}

const testProgramID = "11111111111111111111111111111111"

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", "/home/moon")
	t.Setenv("PROGRAM_ID", testProgramID)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, rpc.DevNet_RPC, cfg.SolanaRPCURL)
	assert.Equal(t, testProgramID, cfg.ProgramID)
	assert.Equal(t, rpc.CommitmentConfirmed, cfg.Commitment)
	assert.Equal(t, 60*time.Second, cfg.ConfirmTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.ConfirmPollInterval)
	assert.Equal(t, filepath.Join("/home/moon", ".config/solana/id.json"), cfg.KeypairPath)
	assert.Equal(t, filepath.Join("/home/moon", ".config/moonportal/trust.db"), cfg.TrustDBPath)
	assert.Equal(t, "moonportal", cfg.WalletOrigin)
	assert.Equal(t, LedgerSolana, cfg.Ledger)
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("NATS_URL", "nats://nats.example.com:4222")
	t.Setenv("SOLANA_RPC_URL", "https://a.example.com,https://b.example.com")
	t.Setenv("COMMITMENT", "finalized")
	t.Setenv("CONFIRM_TIMEOUT", "2m")
	t.Setenv("CONFIRM_POLL_INTERVAL", "1s")
	t.Setenv("KEYPAIR_PATH", "/keys/id.json")
	t.Setenv("LEDGER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "nats://nats.example.com:4222", cfg.NATSURL)
	assert.Equal(t, "https://a.example.com,https://b.example.com", cfg.SolanaRPCURL)
	assert.Equal(t, rpc.CommitmentFinalized, cfg.Commitment)
	assert.Equal(t, 2*time.Minute, cfg.ConfirmTimeout)
	assert.Equal(t, time.Second, cfg.ConfirmPollInterval)
	assert.Equal(t, "/keys/id.json", cfg.KeypairPath)
	assert.Equal(t, LedgerMemory, cfg.Ledger)
}

func TestLoad_AggregatesErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIRM_TIMEOUT", "soon")
	t.Setenv("PROGRAM_ID", "not-a-key")
	t.Setenv("COMMITMENT", "recent")

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "CONFIRM_TIMEOUT: invalid duration")
	assert.Contains(t, err.Error(), "not a valid public key")
	assert.Contains(t, err.Error(), "Commitment must be")
}

func TestLoad_RequiresProgramIDForSolana(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "ProgramID is required for the solana ledger")

	t.Setenv("LEDGER", LedgerMemory)
	cfg, err = Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.ProgramID)
}

func TestRead_SkipsValidation(t *testing.T) {
	clearEnv(t)

	cfg, err := Read()
	require.NoError(t, err)
	assert.Equal(t, LedgerSolana, cfg.Ledger)
	assert.Empty(t, cfg.ProgramID)
	assert.Error(t, cfg.Validate())

	t.Setenv("CONFIRM_TIMEOUT", "soon")
	_, err = Read()
	assert.ErrorContains(t, err, "CONFIRM_TIMEOUT: invalid duration")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			SolanaRPCURL:        rpc.DevNet_RPC,
			ProgramID:           testProgramID,
			Commitment:          rpc.CommitmentConfirmed,
			ConfirmTimeout:      time.Minute,
			ConfirmPollInterval: time.Second,
			KeypairPath:         "/keys/id.json",
			WalletOrigin:        "moonportal",
			Ledger:              LedgerSolana,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid"},
		{name: "memory ledger ignores program", mutate: func(c *Config) { c.Ledger = LedgerMemory; c.ProgramID = "" }},
		{name: "solana ledger needs program", mutate: func(c *Config) { c.ProgramID = "" }, wantErr: "ProgramID is required"},
		{name: "unknown ledger", mutate: func(c *Config) { c.Ledger = "postgres" }, wantErr: "Ledger must be"},
		{name: "missing rpc", mutate: func(c *Config) { c.SolanaRPCURL = " " }, wantErr: "SolanaRPCURL is required"},
		{name: "poll exceeds timeout", mutate: func(c *Config) { c.ConfirmPollInterval = 2 * time.Minute }, wantErr: "cannot be greater than ConfirmTimeout"},
		{name: "zero timeout", mutate: func(c *Config) { c.ConfirmTimeout = 0 }, wantErr: "ConfirmTimeout must be positive"},
		{name: "missing keypair", mutate: func(c *Config) { c.KeypairPath = "" }, wantErr: "KeypairPath is required"},
		{name: "missing origin", mutate: func(c *Config) { c.WalletOrigin = "" }, wantErr: "WalletOrigin is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMustLoad_Panics(t *testing.T) {
	clearEnv(t)
	t.Setenv("LEDGER", "postgres")

	assert.Panics(t, func() {
		MustLoad()
	})
}

func TestMustLoad_Success(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROGRAM_ID", testProgramID)

	assert.NotPanics(t, func() {
		cfg := MustLoad()
		assert.NotNil(t, cfg)
	})
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/moon")

	got, err := expandHome("~/x/y")
	require.NoError(t, err)
	assert.Equal(t, "/home/moon/x/y", got)

	got, err = expandHome("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)
}
