package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/brojonat/moonportal/service/config"
	"github.com/brojonat/moonportal/service/metrics"
	natspkg "github.com/brojonat/moonportal/service/nats"
	"github.com/brojonat/moonportal/service/record"
	"github.com/brojonat/moonportal/service/session"
	"github.com/brojonat/moonportal/service/solana"
	"github.com/brojonat/moonportal/service/sync"
	"github.com/brojonat/moonportal/service/wallet"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/urfave/cli/v2"
)

// stack is everything a command needs to drive the portal locally.
type stack struct {
	cfg        *config.Config
	logger     *slog.Logger
	metrics    *metrics.Metrics
	wallet     *wallet.KeypairWallet
	controller *sync.Controller

	closers []func() error
}

// Close releases the trust database and the NATS connection.
func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("failed to close resource", "error", err)
		}
	}
}

// loadConfig reads the environment and applies any global flags on top.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Read()
	if err != nil {
		return nil, err
	}

	if v := c.String("rpc-url"); v != "" {
		cfg.SolanaRPCURL = v
	}
	if v := c.String("program-id"); v != "" {
		cfg.ProgramID = v
	}
	if v := c.String("commitment"); v != "" {
		cfg.Commitment = rpc.CommitmentType(v)
	}
	if v := c.Duration("confirm-timeout"); v > 0 {
		cfg.ConfirmTimeout = v
	}
	if v := c.String("keypair"); v != "" {
		cfg.KeypairPath = v
	}
	if v := c.String("trust-db"); v != "" {
		cfg.TrustDBPath = v
	}
	if v := c.String("origin"); v != "" {
		cfg.WalletOrigin = v
	}
	if v := c.String("ledger"); v != "" {
		cfg.Ledger = v
	}
	if v := c.String("nats-url"); v != "" {
		cfg.NATSURL = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildStack wires config, wallet, ledger and controller for one command.
// The controller is not running yet.
func buildStack(c *cli.Context) (*stack, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	s := &stack{cfg: cfg, logger: setupLogger(cfg.LogLevel)}
	s.metrics = metrics.NewMetrics(nil)

	if err := os.MkdirAll(filepath.Dir(cfg.TrustDBPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create trust database directory: %w", err)
	}
	trust, err := wallet.OpenBoltTrustStore(cfg.TrustDBPath)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, trust.Close)

	var approver wallet.Approver = newTerminalApprover(os.Stdin, os.Stderr)
	if c.Bool("yes") {
		approver = wallet.AutoApprove
	}
	s.wallet = wallet.NewKeypairWallet(cfg.KeypairPath, cfg.WalletOrigin, trust, approver, s.logger)

	ledger, err := s.ledger()
	if err != nil {
		s.Close()
		return nil, err
	}

	var publisher natspkg.Publisher
	if cfg.NATSURL != "" {
		pub, err := natspkg.NewPublisher(cfg.NATSURL, s.metrics, s.logger)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create NATS publisher: %w", err)
		}
		publisher = pub
		s.closers = append(s.closers, pub.Close)
	}

	records := record.NewClient(ledger, publisher, s.metrics, s.logger)
	store := session.NewStore(s.wallet, s.logger)
	s.controller = sync.NewController(store, records, s.metrics, s.logger)

	return s, nil
}

func (s *stack) ledger() (record.Ledger, error) {
	if s.cfg.Ledger == config.LedgerMemory {
		s.logger.Info("using in-memory ledger; records will not persist")
		return record.NewMemoryLedger(), nil
	}

	endpoint, err := solana.SelectRandomEndpoint(solana.ParseEndpoints(s.cfg.SolanaRPCURL))
	if err != nil {
		return nil, err
	}
	programID, err := solanago.PublicKeyFromBase58(s.cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid program ID: %w", err)
	}

	label := solana.EndpointLabel(endpoint)
	s.logger.Debug("using solana ledger", "endpoint", label, "program_id", s.cfg.ProgramID)

	return solana.NewProgram(solana.NewRPCClient(endpoint), s.wallet, solana.ProgramConfig{
		ProgramID:           programID,
		Commitment:          s.cfg.Commitment,
		ConfirmTimeout:      s.cfg.ConfirmTimeout,
		ConfirmPollInterval: s.cfg.ConfirmPollInterval,
	}, label, s.metrics, s.logger), nil
}

// run starts the controller loop and attempts a silent restore. The returned
// function stops the loop and waits for it to exit.
func (s *stack) run(ctx context.Context) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.controller.Run(ctx)
	}()

	stop := func() {
		cancel()
		<-done
	}

	if err := s.controller.Start(ctx); err != nil {
		stop()
		return nil, err
	}
	return stop, nil
}
