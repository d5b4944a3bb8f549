package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brojonat/moonportal/client"
	"github.com/urfave/cli/v2"
)

type remoteAction func(ctx context.Context, cl *client.Client) (*client.View, error)

func remoteCommands() *cli.Command {
	return &cli.Command{
		Name:  "remote",
		Usage: "Drive a running moonportal server over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Value:   "http://localhost:8080",
				Usage:   "HTTP server URL",
				EnvVars: []string{"MOONPORTAL_SERVER_URL"},
			},
		},
		Subcommands: []*cli.Command{
			remoteCommand("view", "Show the server's current view", "", nil),
			remoteCommand("connect", "Ask the server's wallet to connect", "", func(ctx context.Context, cl *client.Client) (*client.View, error) {
				return cl.Connect(ctx)
			}),
			remoteCommand("disconnect", "Disconnect the server's wallet", "", func(ctx context.Context, cl *client.Client) (*client.View, error) {
				return cl.Disconnect(ctx)
			}),
			remoteCommand("init", "Create the portal account (one-time initialization)", "", func(ctx context.Context, cl *client.Client) (*client.View, error) {
				return cl.Initialize(ctx)
			}),
			remoteCommand("refresh", "Reload the portal entries", "", func(ctx context.Context, cl *client.Client) (*client.View, error) {
				return cl.Refresh(ctx)
			}),
			remoteSubmitCommand(),
		},
	}
}

func remoteFlags() []cli.Flag {
	return append(outputFlags(),
		&cli.BoolFlag{
			Name:  "no-wait",
			Usage: "Print the view as soon as the request is accepted",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Value: 2 * time.Minute,
			Usage: "How long to wait for the portal to settle",
		},
	)
}

func remoteCommand(name, usage, argsUsage string, action remoteAction) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: argsUsage,
		Flags:     remoteFlags(),
		Action: func(c *cli.Context) error {
			return runRemote(c, action)
		},
	}
}

func remoteSubmitCommand() *cli.Command {
	cmd := remoteCommand("submit", "Add a link to the portal", "[LINK]", nil)
	cmd.Description = "Without LINK, the server's current draft is submitted."
	cmd.Action = func(c *cli.Context) error {
		link := c.Args().First()
		return runRemote(c, func(ctx context.Context, cl *client.Client) (*client.View, error) {
			return cl.Submit(ctx, link)
		})
	}
	return cmd
}

// runRemote performs action, then follows the view stream until the
// server has nothing in flight.
func runRemote(c *cli.Context, action remoteAction) error {
	printer, err := newViewPrinter(c)
	if err != nil {
		return err
	}

	logger := setupLogger(c.String("log-level"))
	cl := client.NewClient(c.String("server"), nil, logger)

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	var v *client.View
	if action != nil {
		v, err = action(ctx, cl)
	} else {
		v, err = cl.View(ctx)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", c.Command.Name, err)
	}

	if !c.Bool("no-wait") && !client.Settled(v) {
		v, err = cl.Await(ctx, client.Settled)
		if err != nil {
			return fmt.Errorf("failed to await settled view: %w", err)
		}
	}

	return printer.Print(v.View)
}
