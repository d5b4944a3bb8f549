// Package presenter renders a sync.View as terminal text. It only reads views.
package presenter

import (
	"fmt"
	"io"
	"strconv"

	"github.com/brojonat/moonportal/service/sync"
	"github.com/fatih/color"
	"github.com/gosuri/uitable"
)

const (
	banner  = "🌕🌕🌕 Moon Portal 🌕🌕🌕"
	tagline = "Everything related to the moon."
)

// Printer writes views to an output stream.
type Printer struct {
	Out io.Writer

	// ShowIdentity prints the connected wallet under the banner.
	ShowIdentity bool
}

// New creates a Printer that writes to out.
func New(out io.Writer) *Printer {
	return &Printer{Out: out, ShowIdentity: true}
}

// Render writes a complete view.
func (p *Printer) Render(v sync.View) {
	p.header(v)

	switch v.Mode {
	case sync.ModeDisconnected:
		p.hint("Not connected. Run `moonportal connect` to connect to your wallet.")
	case sync.ModeConnectingWallet:
		p.faint("Connecting to wallet...")
	case sync.ModeAccountUnknown:
		p.faint("Loading your portal...")
	case sync.ModeUninitialized:
		p.hint("No portal account yet. Run `moonportal init` to do the one-time initialization.")
	case sync.ModeInitializing:
		p.faint("Creating your portal account...")
	case sync.ModeReady:
		p.entries(v)
	case sync.ModeFetchError:
		p.hint("Could not load your portal. Run `moonportal refresh` to try again.")
	}

	p.errorLine(v)
}

func (p *Printer) header(v sync.View) {
	t := color.New(color.Bold)
	s := color.New(color.Faint)

	_, _ = t.Fprintln(p.Out, banner)
	_, _ = s.Fprintln(p.Out, tagline)
	if p.ShowIdentity && !v.Identity.IsZero() {
		_, _ = s.Fprintf(p.Out, "wallet %s\n", v.Identity)
	}
	_, _ = fmt.Fprintln(p.Out)
}

func (p *Printer) entries(v sync.View) {
	title := color.New(color.Bold, color.Underline)
	c := color.New(color.Faint)

	_, _ = title.Fprint(p.Out, "Links")
	switch n := len(v.Entries); n {
	case 1:
		_, _ = c.Fprintf(p.Out, " - %d entry\n", n)
	default:
		_, _ = c.Fprintf(p.Out, " - %d entries\n", n)
	}

	if len(v.Entries) == 0 {
		_, _ = color.New(color.Faint, color.Italic).Fprint(p.Out, " none\n")
	} else {
		tbl := uitable.New()
		tbl.Separator = "  "
		tbl.MaxColWidth = 100
		tbl.Wrap = true

		pendingFrom := len(v.Entries) - v.Pending
		y := color.New(color.FgHiYellow, color.Italic)
		for i, link := range v.Entries {
			marker := ""
			if i >= pendingFrom {
				marker = y.Sprint("pending")
			}
			tbl.AddRow(strconv.Itoa(i+1), link, marker)
		}
		_, _ = fmt.Fprintln(p.Out, tbl)
	}

	if v.Draft != "" {
		_, _ = c.Fprintf(p.Out, "draft: %s\n", v.Draft)
	}
	if v.Busy {
		_, _ = c.Fprintln(p.Out, "syncing...")
	}
}

func (p *Printer) hint(msg string) {
	_, _ = color.New(color.FgCyan).Fprintln(p.Out, msg)
}

func (p *Printer) faint(msg string) {
	_, _ = color.New(color.Faint, color.Italic).Fprintln(p.Out, msg)
}

func (p *Printer) errorLine(v sync.View) {
	msg := sync.DescribeError(v)
	if msg == "" {
		return
	}
	_, _ = fmt.Fprintln(p.Out)
	_, _ = color.New(color.FgRed, color.Bold).Fprintf(p.Out, "%s: %s\n", v.LastError, msg)
}
