package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/moonportal/service/server"
	"github.com/urfave/cli/v2"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the portal controller over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "Address to listen on",
				EnvVars: []string{"SERVER_ADDR"},
			},
		},
		Action: func(c *cli.Context) error {
			s, err := buildStack(c)
			if err != nil {
				return err
			}
			defer s.Close()

			addr := s.cfg.ServerAddr
			if v := c.String("addr"); v != "" {
				addr = v
			}

			s.logger.Info("starting moonportal server",
				"addr", addr,
				"ledger", s.cfg.Ledger,
				"origin", s.cfg.WalletOrigin,
				"log_level", s.cfg.LogLevel,
			)

			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			stop, err := s.run(ctx)
			if err != nil {
				return fmt.Errorf("failed to start controller: %w", err)
			}
			defer stop()

			httpServer := server.New(addr, s.controller, s.metrics, s.logger)

			// Start server in goroutine
			serverErrors := make(chan error, 1)
			go func() {
				serverErrors <- httpServer.Start()
			}()

			// Wait for shutdown signal or server error
			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-serverErrors:
				s.logger.Error("server error", "error", err)
				return err
			case sig := <-shutdown:
				s.logger.Info("shutdown signal received", "signal", sig.String())

				// Graceful shutdown with timeout
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer shutdownCancel()

				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					s.logger.Error("failed to shutdown server gracefully", "error", err)
					return err
				}

				s.logger.Info("server shutdown complete")
			}
			return nil
		},
	}
}
