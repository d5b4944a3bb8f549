package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/brojonat/moonportal/service/presenter"
	"github.com/brojonat/moonportal/service/sync"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output the view as JSON",
		},
		&cli.StringFlag{
			Name:  "jq",
			Usage: "jq expression applied to the JSON view (implies --json)",
		},
	}
}

// viewPrinter writes a view the way the output flags ask for.
type viewPrinter struct {
	out  io.Writer
	json bool
	code *gojq.Code
}

func newViewPrinter(c *cli.Context) (*viewPrinter, error) {
	p := &viewPrinter{out: c.App.Writer, json: c.Bool("json")}
	if filter := c.String("jq"); filter != "" {
		code, err := compileJQ(filter)
		if err != nil {
			return nil, err
		}
		p.code = code
		p.json = true
	}
	return p, nil
}

func compileJQ(filter string) (*gojq.Code, error) {
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("invalid jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}
	return code, nil
}

// Print writes v. Non-JSON output goes through the terminal presenter.
func (p *viewPrinter) Print(v sync.View) error {
	if !p.json {
		presenter.New(p.out).Render(v)
		return nil
	}

	if p.code == nil {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal view: %w", err)
		}
		fmt.Fprintln(p.out, string(data))
		return nil
	}

	results, err := runJQ(p.code, v)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Fprintln(p.out, r)
	}
	return nil
}

// runJQ applies code to the JSON form of v and returns each result encoded as JSON.
func runJQ(code *gojq.Code, v sync.View) ([]string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal view: %w", err)
	}
	var input interface{}
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("failed to decode view: %w", err)
	}

	var out []string
	iter := code.Run(input)
	for {
		result, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := result.(error); isErr {
			return nil, fmt.Errorf("jq filter error: %w", err)
		}
		encoded, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to encode jq result: %w", err)
		}
		out = append(out, string(encoded))
	}
	return out, nil
}

// isTruthy checks if a jq result value is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	// Everything else (numbers, strings, objects, arrays) is truthy
	return true
}
