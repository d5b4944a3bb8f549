package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "moonportal",
		Usage: "Keep a list of moon links in your Solana portal account",
		Description: `A command-line client for the moon portal program.

Local commands drive the wallet and the on-chain record directly. Use serve to
expose the same controller over HTTP and remote to talk to a running server.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			statusCommand(),
			connectCommand(),
			disconnectCommand(),
			initCommand(),
			refreshCommand(),
			submitCommand(),
			serveCommand(),
			watchCommand(),
			remoteCommands(),
		},
		// Global flags available to all commands
		Flags: newGlobalFlags(),
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newGlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "rpc-url",
			Usage:   "Solana RPC URL, or a comma-separated list to spread load",
			EnvVars: []string{"SOLANA_RPC_URL"},
		},
		&cli.StringFlag{
			Name:    "program-id",
			Usage:   "Portal program ID (PDA-based deployment; required for the solana ledger)",
			EnvVars: []string{"PROGRAM_ID"},
		},
		&cli.StringFlag{
			Name:    "commitment",
			Usage:   "Commitment for reads and confirmations (processed, confirmed, finalized)",
			EnvVars: []string{"COMMITMENT"},
		},
		&cli.DurationFlag{
			Name:    "confirm-timeout",
			Usage:   "How long to wait for a transaction to confirm",
			EnvVars: []string{"CONFIRM_TIMEOUT"},
		},
		&cli.StringFlag{
			Name:    "keypair",
			Usage:   "Path to the wallet keypair file",
			EnvVars: []string{"KEYPAIR_PATH"},
		},
		&cli.StringFlag{
			Name:    "trust-db",
			Usage:   "Path to the wallet trust database",
			EnvVars: []string{"TRUST_DB_PATH"},
		},
		&cli.StringFlag{
			Name:    "origin",
			Usage:   "Origin name the wallet trusts",
			EnvVars: []string{"WALLET_ORIGIN"},
		},
		&cli.StringFlag{
			Name:    "ledger",
			Usage:   "Record backend: solana or memory",
			EnvVars: []string{"LEDGER"},
		},
		&cli.StringFlag{
			Name:    "nats-url",
			Usage:   "NATS URL for entry events (empty disables publishing)",
			EnvVars: []string{"NATS_URL"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			EnvVars: []string{"LOG_LEVEL"},
		},
		&cli.BoolFlag{
			Name:  "yes",
			Usage: "Approve wallet connection prompts without asking",
		},
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
