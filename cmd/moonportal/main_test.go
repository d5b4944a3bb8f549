package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/brojonat/moonportal/service/config"
	"github.com/brojonat/moonportal/service/metrics"
	"github.com/brojonat/moonportal/service/record"
	"github.com/brojonat/moonportal/service/session"
	"github.com/brojonat/moonportal/service/sync"
	"github.com/brojonat/moonportal/service/wallet"
	"github.com/fatih/color"
	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func init() {
	color.NoColor = true
}

func TestParseApproval(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"  yes  ", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"yep\n", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseApproval(tt.input), "input %q", tt.input)
	}
}

func TestTerminalApprover(t *testing.T) {
	req := wallet.ApprovalRequest{Origin: "moonportal", PublicKey: "Pub111"}

	t.Run("approves on yes", func(t *testing.T) {
		var out bytes.Buffer
		a := &terminalApprover{in: strings.NewReader("yes\n"), out: &out, isTerminal: func() bool { return true }}
		ok, err := a.Approve(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Contains(t, out.String(), `"moonportal"`)
		assert.Contains(t, out.String(), "Pub111")
	})

	t.Run("refuses without a terminal", func(t *testing.T) {
		a := &terminalApprover{in: strings.NewReader("yes\n"), out: io.Discard, isTerminal: func() bool { return false }}
		ok, err := a.Approve(context.Background(), req)
		assert.False(t, ok)
		assert.ErrorIs(t, err, wallet.ErrUserRejected)
	})

	t.Run("gives up when cancelled", func(t *testing.T) {
		blocked, _ := io.Pipe()
		a := &terminalApprover{in: blocked, out: io.Discard, isTerminal: func() bool { return true }}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		ok, err := a.Approve(ctx, req)
		assert.False(t, ok)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestJQ(t *testing.T) {
	v := sync.View{
		Mode:     sync.ModeReady,
		Identity: "Owner111",
		Entries:  []string{"https://a", "https://b"},
		Pending:  1,
	}

	tests := []struct {
		name   string
		filter string
		want   []string
	}{
		{name: "mode", filter: ".mode", want: []string{`"Connected/Ready"`}},
		{name: "entries", filter: ".entries[]", want: []string{`"https://a"`, `"https://b"`}},
		{name: "pending count", filter: ".pending", want: []string{"1"}},
		{name: "select", filter: `.entries | map(select(startswith("https://b")))`, want: []string{`["https://b"]`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := compileJQ(tt.filter)
			require.NoError(t, err)
			got, err := runJQ(code, v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("invalid filter", func(t *testing.T) {
		_, err := compileJQ(".entries[")
		assert.ErrorContains(t, err, "invalid jq filter")
	})

	t.Run("runtime error", func(t *testing.T) {
		code, err := compileJQ(".mode | keys")
		require.NoError(t, err)
		_, err = runJQ(code, v)
		assert.ErrorContains(t, err, "jq filter error")
	})
}

func TestIsTruthy(t *testing.T) {
	assert.False(t, isTruthy(nil))
	assert.False(t, isTruthy(false))
	assert.True(t, isTruthy(true))
	assert.True(t, isTruthy(0))
	assert.True(t, isTruthy(""))
	assert.True(t, isTruthy(map[string]interface{}{}))
}

func TestViewPrinter(t *testing.T) {
	v := sync.View{Mode: sync.ModeUninitialized, Identity: "Owner111", Entries: []string{}}

	t.Run("presenter", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, (&viewPrinter{out: &out}).Print(v))
		assert.Contains(t, out.String(), "Moon Portal")
		assert.Contains(t, out.String(), "moonportal init")
	})

	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, (&viewPrinter{out: &out, json: true}).Print(v))
		assert.Contains(t, out.String(), `"mode": "Connected/Uninitialized"`)
	})
}

// runWithFlags runs fn as the action of a command under an app carrying the
// global flags.
func runWithFlags(t *testing.T, args []string, fn func(c *cli.Context) error) {
	t.Helper()
	app := &cli.App{
		Name:  "moonportal",
		Flags: newGlobalFlags(),
		Commands: []*cli.Command{{
			Name:   "check",
			Action: fn,
		}},
	}
	require.NoError(t, app.Run(append([]string{"moonportal"}, append(args, "check")...)))
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("LEDGER", config.LedgerSolana)
	t.Setenv("KEYPAIR_PATH", "/env/id.json")
	t.Setenv("WALLET_ORIGIN", "from-env")

	var cfg *config.Config
	runWithFlags(t, []string{"--ledger", "memory", "--keypair", "/flag/id.json", "--confirm-timeout", "5s"}, func(c *cli.Context) error {
		var err error
		cfg, err = loadConfig(c)
		return err
	})

	require.NotNil(t, cfg)
	assert.Equal(t, config.LedgerMemory, cfg.Ledger)
	assert.Equal(t, "/flag/id.json", cfg.KeypairPath)
	assert.Equal(t, "from-env", cfg.WalletOrigin)
	assert.Equal(t, 5*time.Second, cfg.ConfirmTimeout)
}

func TestLoadConfig_ProgramIDRequiredForSolana(t *testing.T) {
	t.Setenv("LEDGER", config.LedgerSolana)
	t.Setenv("PROGRAM_ID", "")

	load := func(args ...string) error {
		app := &cli.App{
			Name:  "moonportal",
			Flags: newGlobalFlags(),
			Action: func(c *cli.Context) error {
				_, err := loadConfig(c)
				return err
			},
		}
		return app.Run(append([]string{"moonportal"}, args...))
	}

	assert.ErrorContains(t, load(), "ProgramID is required")
	assert.NoError(t, load("--program-id", "11111111111111111111111111111111"))
	assert.NoError(t, load("--ledger", "memory"))
}

func TestLoadConfig_RejectsBadCommitment(t *testing.T) {
	app := &cli.App{
		Name:  "moonportal",
		Flags: newGlobalFlags(),
		Action: func(c *cli.Context) error {
			_, err := loadConfig(c)
			return err
		},
	}
	err := app.Run([]string{"moonportal", "--commitment", "eventually"})
	assert.ErrorContains(t, err, "Commitment")
}

// newMemoryStack wires a stack over the in-memory ledger with an auto-approving wallet.
func newMemoryStack(t *testing.T) (*stack, *record.MemoryLedger) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewMetrics(prometheus.NewRegistry())
	w := wallet.NewKeypairWalletFromKey(solana.NewWallet().PrivateKey, "test", wallet.NewMemoryTrustStore(), wallet.AutoApprove, logger)
	ledger := record.NewMemoryLedger()

	s := &stack{
		cfg:     &config.Config{Ledger: config.LedgerMemory},
		logger:  logger,
		metrics: m,
		wallet:  w,
	}
	s.controller = sync.NewController(session.NewStore(w, logger), record.NewClient(ledger, nil, m, logger), m, logger)
	return s, ledger
}

func TestLocalFlow(t *testing.T) {
	s, ledger := newMemoryStack(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stop, err := s.run(ctx)
	require.NoError(t, err)
	defer stop()

	// Nothing is trusted yet, so the silent restore leaves us disconnected.
	v, err := awaitSettled(ctx, s.controller)
	require.NoError(t, err)
	assert.Equal(t, sync.ModeDisconnected, v.Mode)

	require.NoError(t, s.controller.Connect(ctx))
	v, err = awaitSettled(ctx, s.controller)
	require.NoError(t, err)
	assert.Equal(t, sync.ModeUninitialized, v.Mode)

	require.NoError(t, s.controller.Initialize(ctx))
	v, err = awaitSettled(ctx, s.controller)
	require.NoError(t, err)
	assert.Equal(t, sync.ModeReady, v.Mode)

	require.NoError(t, s.controller.SetDraft(ctx, "https://moon.example/1"))
	require.NoError(t, s.controller.Submit(ctx))
	v, err = awaitSettled(ctx, s.controller)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://moon.example/1"}, v.Entries)
	assert.Zero(t, v.Pending)

	creates, appends := ledger.Counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 1, appends)
}

func TestLocalFlow_SubmitRejected(t *testing.T) {
	s, ledger := newMemoryStack(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stop, err := s.run(ctx)
	require.NoError(t, err)
	defer stop()

	// Connect is rejected until the silent restore settles.
	_, err = awaitSettled(ctx, s.controller)
	require.NoError(t, err)

	require.NoError(t, s.controller.Connect(ctx))
	_, err = awaitView(ctx, s.controller, func(v sync.View) bool { return v.Mode == sync.ModeUninitialized })
	require.NoError(t, err)
	require.NoError(t, s.controller.Initialize(ctx))
	_, err = awaitView(ctx, s.controller, func(v sync.View) bool { return v.Mode == sync.ModeReady && !v.Busy })
	require.NoError(t, err)

	ledger.SetAppendError(errors.New("remote refused"))
	require.NoError(t, s.controller.SetDraft(ctx, "https://moon.example/2"))
	require.NoError(t, s.controller.Submit(ctx))

	v, err := awaitSettled(ctx, s.controller)
	require.NoError(t, err)
	assert.Empty(t, v.Entries)
	assert.Equal(t, sync.KindSubmitFailed, v.LastError)
}

func TestAwaitView_Timeout(t *testing.T) {
	s, _ := newMemoryStack(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stop, err := s.run(ctx)
	require.NoError(t, err)
	defer stop()

	short, shortCancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer shortCancel()
	_, err = awaitView(short, s.controller, func(v sync.View) bool { return v.Mode == sync.ModeReady })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
