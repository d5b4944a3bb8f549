package solana

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/brojonat/moonportal/service/metrics"
	"github.com/brojonat/moonportal/service/record"
	"github.com/brojonat/moonportal/service/wallet"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ProgramConfig describes the deployed link portal program and how long to wait on it.
type ProgramConfig struct {
	ProgramID           solana.PublicKey
	Commitment          rpc.CommitmentType // commitment both reads and confirmations use
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration
}

// Program implements record.Ledger against the on-chain link portal program.
// Each owner's record lives at a PDA derived from the owner key.
type Program struct {
	rpc      RPCClient
	signer   wallet.Signer
	cfg      ProgramConfig
	endpoint string // RPC endpoint label for metrics
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewProgram creates an on-chain ledger. If metrics is nil, no metrics will be recorded.
func NewProgram(rpcClient RPCClient, signer wallet.Signer, cfg ProgramConfig, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Program {
	if cfg.Commitment == "" {
		cfg.Commitment = rpc.CommitmentConfirmed
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if cfg.ConfirmPollInterval <= 0 {
		cfg.ConfirmPollInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Program{
		rpc:      rpcClient,
		signer:   signer,
		cfg:      cfg,
		endpoint: endpoint,
		metrics:  m,
		logger:   logger,
	}
}

func (p *Program) addresses(owner wallet.Identity) (ownerPK, recordPK solana.PublicKey, err error) {
	ownerPK, err = owner.PublicKey()
	if err != nil {
		return ownerPK, recordPK, err
	}
	recordPK, err = RecordAddress(p.cfg.ProgramID, ownerPK)
	return ownerPK, recordPK, err
}

// observe records metrics for one RPC call.
func (p *Program) observe(method string, start time.Time, err error) {
	if p.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordRPCCall(method, status, p.endpoint, time.Since(start).Seconds())
}

// FetchRecord reads and decodes the owner's record account.
func (p *Program) FetchRecord(ctx context.Context, owner wallet.Identity) (*record.Snapshot, error) {
	_, recordPK, err := p.addresses(owner)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := p.rpc.GetAccountInfoWithOpts(ctx, recordPK, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: p.cfg.Commitment,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		p.observe("GetAccountInfo", start, nil)
		return nil, record.ErrNotFound
	}
	p.observe("GetAccountInfo", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", recordPK, err)
	}
	if out == nil || out.Value == nil {
		return nil, record.ErrNotFound
	}
	if !out.Value.Owner.Equals(p.cfg.ProgramID) {
		return nil, fmt.Errorf("account %s is owned by %s, not the program", recordPK, out.Value.Owner)
	}
	if out.Value.Data == nil {
		return nil, fmt.Errorf("account %s has no data", recordPK)
	}

	acct, err := decodeBaseAccount(out.Value.Data.GetBinary())
	if err != nil {
		return nil, err
	}

	entries := make([]record.Entry, len(acct.LinkList))
	for i, item := range acct.LinkList {
		entries[i] = record.Entry{
			Link:      item.Link,
			Submitter: wallet.Identity(item.UserAddress.String()),
		}
	}

	p.logger.DebugContext(ctx, "decoded record account",
		"record", recordPK.String(),
		"total", acct.TotalLinks,
		"entries", len(entries),
	)

	return &record.Snapshot{
		Owner:   owner,
		Address: recordPK.String(),
		Entries: entries,
	}, nil
}

// CreateRecord allocates the owner's record account.
func (p *Program) CreateRecord(ctx context.Context, owner wallet.Identity) error {
	ownerPK, recordPK, err := p.addresses(owner)
	if err != nil {
		return err
	}

	// A record that is already visible is reported without spending a transaction.
	if _, err := p.FetchRecord(ctx, owner); err == nil {
		return record.ErrAlreadyInitialized
	}

	ix := solana.NewInstruction(p.cfg.ProgramID, solana.AccountMetaSlice{
		solana.Meta(recordPK).WRITE(),
		solana.Meta(ownerPK).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
	}, initializeData())

	err = p.submit(ctx, "initialize", owner, ownerPK, ix)
	if err != nil && isAlreadyInUse(err) {
		return record.ErrAlreadyInitialized
	}
	return err
}

// AppendEntry appends a link to the owner's record and waits for confirmation.
func (p *Program) AppendEntry(ctx context.Context, owner wallet.Identity, payload string) error {
	ownerPK, recordPK, err := p.addresses(owner)
	if err != nil {
		return err
	}

	data, err := addLinkData(payload)
	if err != nil {
		return err
	}

	ix := solana.NewInstruction(p.cfg.ProgramID, solana.AccountMetaSlice{
		solana.Meta(recordPK).WRITE(),
		solana.Meta(ownerPK).WRITE().SIGNER(),
	}, data)

	return p.submit(ctx, "add_link", owner, ownerPK, ix)
}

// submit builds, signs, sends and confirms a single-instruction transaction.
func (p *Program) submit(ctx context.Context, name string, owner wallet.Identity, payer solana.PublicKey, ix solana.Instruction) error {
	start := time.Now()
	bh, err := p.rpc.GetLatestBlockhash(ctx, p.cfg.Commitment)
	p.observe("GetLatestBlockhash", start, err)
	if err != nil {
		return fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	if bh == nil || bh.Value == nil {
		return fmt.Errorf("latest blockhash missing from response")
	}

	tx, err := solana.NewTransaction([]solana.Instruction{ix}, bh.Value.Blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return fmt.Errorf("failed to build %s transaction: %w", name, err)
	}

	if err := p.signer.SignTransaction(ctx, owner, tx); err != nil {
		return fmt.Errorf("failed to sign %s transaction: %w", name, err)
	}

	start = time.Now()
	sig, err := p.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: p.cfg.Commitment,
	})
	p.observe("SendTransaction", start, err)
	if err != nil {
		return fmt.Errorf("failed to send %s transaction: %w", name, err)
	}

	p.logger.InfoContext(ctx, "sent transaction",
		"instruction", name,
		"signature", sig.String(),
		"owner", owner.String(),
	)

	return p.awaitConfirmation(ctx, name, sig)
}

// awaitConfirmation polls the signature status until it reaches the configured
// commitment, fails on chain, or the confirm timeout elapses.
func (p *Program) awaitConfirmation(ctx context.Context, name string, sig solana.Signature) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(p.cfg.ConfirmPollInterval)
	defer ticker.Stop()

	finish := func(status string) {
		if p.metrics != nil {
			metrics.Timer(start, func(d float64) { p.metrics.RecordConfirmation(name, status, d) })()
		}
	}

	for {
		callStart := time.Now()
		out, err := p.rpc.GetSignatureStatuses(ctx, false, sig)
		p.observe("GetSignatureStatuses", callStart, err)

		if err != nil {
			// Status reads are idempotent; keep polling until the deadline.
			p.logger.WarnContext(ctx, "failed to get signature status",
				"signature", sig.String(),
				"error", err,
			)
		} else if out != nil && len(out.Value) > 0 && out.Value[0] != nil {
			status := out.Value[0]
			if status.Err != nil {
				finish("failed")
				return fmt.Errorf("%s transaction %s failed: %v", name, sig, status.Err)
			}
			if commitmentReached(status.ConfirmationStatus, p.cfg.Commitment) {
				finish("confirmed")
				p.logger.InfoContext(ctx, "transaction confirmed",
					"instruction", name,
					"signature", sig.String(),
					"status", string(status.ConfirmationStatus),
				)
				return nil
			}
		}

		select {
		case <-ctx.Done():
			finish("timeout")
			return fmt.Errorf("%s transaction %s not confirmed: %w", name, sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

func commitmentReached(got rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	rank := map[string]int{
		string(rpc.ConfirmationStatusProcessed): 1,
		string(rpc.ConfirmationStatusConfirmed): 2,
		string(rpc.ConfirmationStatusFinalized): 3,
	}
	g, ok := rank[string(got)]
	if !ok {
		return false
	}
	w, ok := rank[string(want)]
	if !ok {
		w = rank[string(rpc.ConfirmationStatusConfirmed)]
	}
	return g >= w
}

// isAlreadyInUse detects the system program's refusal to allocate an existing account.
func isAlreadyInUse(err error) bool {
	return strings.Contains(err.Error(), "already in use")
}
