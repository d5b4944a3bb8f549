package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	natspkg "github.com/brojonat/moonportal/service/nats"
	"github.com/fatih/color"
	"github.com/itchyny/gojq"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Stream accepted portal entries from NATS",
		ArgsUsage: "[OWNER]",
		Description: `Subscribe to entry events published when a portal accepts a link.
Without OWNER, entries from every portal are shown.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nats-url",
				Value:   "nats://localhost:4222",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "Only show events for which this jq expression is truthy",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Replay retained events before following new ones",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output events as JSON lines",
			},
		},
		Action: func(c *cli.Context) error {
			subject := natspkg.StreamSubjects
			if c.NArg() > 0 {
				subject = natspkg.Subject(c.Args().First())
			}

			var filter *gojq.Code
			if expr := c.String("jq"); expr != "" {
				code, err := compileJQ(expr)
				if err != nil {
					return err
				}
				filter = code
			}

			return watchEntries(c, c.String("nats-url"), subject, filter, c.Bool("all"), c.Bool("json"))
		},
	}
}

func watchEntries(c *cli.Context, natsURL, subject string, filter *gojq.Code, replay, jsonOutput bool) error {
	nc, err := natspkg.Connect(natsURL, "moonportal-watch")
	if err != nil {
		return err
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	out := c.App.Writer
	if !jsonOutput {
		fmt.Fprintf(out, "📡 Subscribing to: %s\n", subject)
		fmt.Fprintf(out, "   NATS: %s\n", natsURL)
		fmt.Fprintf(out, "\nWaiting for entries... (Ctrl-C to exit)\n\n")
	}

	deliver := jetstream.DeliverNewPolicy
	if replay {
		deliver = jetstream.DeliverAllPolicy
	}

	cons, err := js.CreateOrUpdateConsumer(c.Context, natspkg.StreamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: deliver,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	msgChan := make(chan jetstream.Msg, 10)
	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		select {
		case msgChan <- msg:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}
	defer consumeCtx.Stop()

	count := 0
	for {
		select {
		case <-ctx.Done():
			if !jsonOutput {
				fmt.Fprintf(out, "\nReceived %d entries\n", count)
			}
			return nil
		case msg := <-msgChan:
			var event natspkg.EntryEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
				_ = msg.Ack()
				continue
			}
			_ = msg.Ack()

			if filter != nil && !matchEvent(ctx, filter, &event) {
				continue
			}
			count++

			if jsonOutput {
				data, _ := json.Marshal(event)
				fmt.Fprintln(out, string(data))
				continue
			}
			printEntryEvent(c, count, &event)
		}
	}
}

// matchEvent reports whether the first result of filter on event is truthy.
func matchEvent(ctx context.Context, filter *gojq.Code, event *natspkg.EntryEvent) bool {
	data, err := json.Marshal(event)
	if err != nil {
		return false
	}
	var input interface{}
	if err := json.Unmarshal(data, &input); err != nil {
		return false
	}
	v, ok := filter.RunWithContext(ctx, input).Next()
	if !ok {
		return false
	}
	if _, isErr := v.(error); isErr {
		return false
	}
	return isTruthy(v)
}

func printEntryEvent(c *cli.Context, n int, event *natspkg.EntryEvent) {
	out := c.App.Writer
	bold := color.New(color.Bold)
	faint := color.New(color.Faint)

	_, _ = bold.Fprintf(out, "🌕 Entry #%d\n", n)
	fmt.Fprintf(out, "Link:      %s\n", event.Link)
	fmt.Fprintf(out, "Owner:     %s\n", event.Owner)
	if event.Record != "" {
		fmt.Fprintf(out, "Record:    %s\n", event.Record)
	}
	_, _ = faint.Fprintf(out, "Published: %s\n\n", event.PublishedAt.Local().Format("2006-01-02 15:04:05"))
}
