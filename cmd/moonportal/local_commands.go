package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/moonportal/service/sync"
	"github.com/urfave/cli/v2"
)

// localAction runs against a controller that has settled after its silent restore.
type localAction func(ctx context.Context, c *cli.Context, s *stack) error

func localFlags() []cli.Flag {
	return append(outputFlags(), &cli.DurationFlag{
		Name:  "timeout",
		Value: 2 * time.Minute,
		Usage: "How long to wait for the portal to settle",
	})
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the wallet session and your portal entries",
		Flags: localFlags(),
		Action: func(c *cli.Context) error {
			return runLocal(c, nil)
		},
	}
}

func connectCommand() *cli.Command {
	return &cli.Command{
		Name:  "connect",
		Usage: "Connect the wallet, asking for approval the first time",
		Flags: localFlags(),
		Action: func(c *cli.Context) error {
			return runLocal(c, func(ctx context.Context, _ *cli.Context, s *stack) error {
				return s.controller.Connect(ctx)
			})
		},
	}
}

func disconnectCommand() *cli.Command {
	return &cli.Command{
		Name:  "disconnect",
		Usage: "Disconnect the wallet and forget the approval",
		Flags: append(localFlags(), &cli.BoolFlag{
			Name:  "keep-trust",
			Usage: "Keep the approval so the next command reconnects silently",
		}),
		Action: func(c *cli.Context) error {
			return runLocal(c, func(ctx context.Context, c *cli.Context, s *stack) error {
				if err := s.controller.Disconnect(ctx); err != nil {
					return err
				}
				if c.Bool("keep-trust") {
					return nil
				}
				if err := s.wallet.Revoke(); err != nil {
					return fmt.Errorf("failed to revoke wallet trust: %w", err)
				}
				return nil
			})
		},
	}
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Create your portal account (one-time initialization)",
		Flags: localFlags(),
		Action: func(c *cli.Context) error {
			return runLocal(c, func(ctx context.Context, _ *cli.Context, s *stack) error {
				return s.controller.Initialize(ctx)
			})
		},
	}
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Reload your portal entries",
		Flags: localFlags(),
		Action: func(c *cli.Context) error {
			return runLocal(c, func(ctx context.Context, _ *cli.Context, s *stack) error {
				return s.controller.Refresh(ctx)
			})
		},
	}
}

func submitCommand() *cli.Command {
	return &cli.Command{
		Name:      "submit",
		Usage:     "Add a link to your portal",
		ArgsUsage: "LINK",
		Flags:     localFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one LINK argument")
			}
			link := c.Args().First()
			return runLocal(c, func(ctx context.Context, _ *cli.Context, s *stack) error {
				if err := s.controller.SetDraft(ctx, link); err != nil {
					return err
				}
				return s.controller.Submit(ctx)
			})
		},
	}
}

// runLocal builds the stack, waits for the silent restore to settle, runs
// action and prints the settled view.
func runLocal(c *cli.Context, action localAction) error {
	printer, err := newViewPrinter(c)
	if err != nil {
		return err
	}

	s, err := buildStack(c)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, c.Duration("timeout"))
	defer cancelTimeout()

	stop, err := s.run(ctx)
	if err != nil {
		return err
	}
	defer stop()

	v, err := awaitSettled(ctx, s.controller)
	if err != nil {
		return err
	}

	var actionErr error
	if action != nil {
		actionErr = action(ctx, c, s)
		v, err = awaitSettled(ctx, s.controller)
		if err != nil {
			return err
		}
	}

	if err := printer.Print(v); err != nil {
		return err
	}
	if actionErr != nil {
		return fmt.Errorf("%s: %w", c.Command.Name, actionErr)
	}
	return nil
}

// awaitSettled blocks until the controller has nothing in flight.
func awaitSettled(ctx context.Context, ctrl *sync.Controller) (sync.View, error) {
	return awaitView(ctx, ctrl, func(v sync.View) bool { return !v.Busy })
}

// awaitView blocks until the controller emits a view that matches. Views are
// coalesced, so only the latest one is checked.
func awaitView(ctx context.Context, ctrl *sync.Controller, match func(sync.View) bool) (sync.View, error) {
	latest := make(chan sync.View, 1)
	unsubscribe := ctrl.Subscribe(func(v sync.View) {
		select {
		case <-latest:
		default:
		}
		latest <- v
	})
	defer unsubscribe()

	v, err := ctrl.View(ctx)
	if err != nil {
		return v, err
	}
	for !match(v) {
		select {
		case <-ctx.Done():
			return v, fmt.Errorf("portal did not settle: %w", ctx.Err())
		case v = <-latest:
		}
	}
	return v, nil
}
