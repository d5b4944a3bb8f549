package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/brojonat/moonportal/service/wallet"
	"golang.org/x/term"
)

// terminalApprover asks on the terminal before a wallet is connected for the first time.
type terminalApprover struct {
	in         io.Reader
	out        io.Writer
	isTerminal func() bool
}

func newTerminalApprover(in *os.File, out io.Writer) *terminalApprover {
	return &terminalApprover{
		in:         in,
		out:        out,
		isTerminal: func() bool { return term.IsTerminal(int(in.Fd())) },
	}
}

func (a *terminalApprover) Approve(ctx context.Context, req wallet.ApprovalRequest) (bool, error) {
	if !a.isTerminal() {
		return false, fmt.Errorf("%w: no terminal to confirm the connection (use --yes)", wallet.ErrUserRejected)
	}

	fmt.Fprintf(a.out, "Allow %q to connect to wallet %s? [y/N] ", req.Origin, req.PublicKey)

	answer := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(a.in).ReadString('\n')
		answer <- line
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(a.out)
		return false, ctx.Err()
	case line := <-answer:
		return parseApproval(line), nil
	}
}

// parseApproval accepts y and yes in any case.
func parseApproval(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
