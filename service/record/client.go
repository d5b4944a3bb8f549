package record

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/brojonat/moonportal/service/metrics"
	natspkg "github.com/brojonat/moonportal/service/nats"
	"github.com/brojonat/moonportal/service/wallet"
)

// MaxPayloadLen bounds a single entry so the append instruction fits in one
// Solana transaction (1232 bytes including signatures and account keys).
const MaxPayloadLen = 512

// Client mediates all reads and writes against the remote record for an identity.
// Mutations are never retried: a failed or unconfirmed submission is reported once.
type Client struct {
	ledger    Ledger
	publisher natspkg.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewClient creates a remote record client.
// publisher and m are optional.
func NewClient(ledger Ledger, publisher natspkg.Publisher, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		ledger:    ledger,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// Fetch reads the owner's record. A missing record is reported as StateNotFound
// with a nil Err.
func (c *Client) Fetch(ctx context.Context, owner wallet.Identity) FetchResult {
	start := time.Now()
	snap, err := c.ledger.FetchRecord(ctx, owner)

	var result FetchResult
	switch {
	case err == nil && snap != nil:
		entries := make([]Entry, len(snap.Entries))
		copy(entries, snap.Entries)
		result = FetchResult{State: StateReady, Entries: entries, Address: snap.Address}
	case errors.Is(err, ErrNotFound):
		result = FetchResult{State: StateNotFound}
	case err == nil:
		result = FetchResult{State: StateFetchFailed, Err: fmt.Errorf("%w: ledger returned no snapshot", ErrFetchFailed)}
	default:
		result = FetchResult{State: StateFetchFailed, Err: fmt.Errorf("%w: %w", ErrFetchFailed, err)}
	}

	c.record("fetch", result.State.String(), start)
	if result.Err != nil {
		c.logger.WarnContext(ctx, "failed to fetch record", "owner", owner.String(), "error", result.Err)
	} else {
		c.logger.DebugContext(ctx, "fetched record",
			"owner", owner.String(),
			"state", result.State.String(),
			"entries", len(result.Entries),
		)
	}
	return result
}

// Initialize allocates the owner's record. ErrAlreadyInitialized passes through;
// every other failure wraps ErrSubmitFailed. Callers must re-fetch on success.
func (c *Client) Initialize(ctx context.Context, owner wallet.Identity) error {
	start := time.Now()
	err := c.ledger.CreateRecord(ctx, owner)

	switch {
	case err == nil:
		c.record("initialize", "success", start)
		c.logger.InfoContext(ctx, "created record", "owner", owner.String())
		return nil
	case errors.Is(err, ErrAlreadyInitialized):
		c.record("initialize", "already_initialized", start)
		return ErrAlreadyInitialized
	default:
		c.record("initialize", "error", start)
		c.logger.ErrorContext(ctx, "failed to create record", "owner", owner.String(), "error", err)
		if errors.Is(err, ErrSubmitFailed) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}
}

// SubmitEntry appends payload to the owner's record. Success means the remote
// accepted and confirmed the change.
func (c *Client) SubmitEntry(ctx context.Context, owner wallet.Identity, payload string) error {
	start := time.Now()
	if err := ValidatePayload(payload); err != nil {
		c.record("submit", "invalid", start)
		return fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}

	if err := c.ledger.AppendEntry(ctx, owner, payload); err != nil {
		c.record("submit", "error", start)
		c.logger.ErrorContext(ctx, "failed to submit entry", "owner", owner.String(), "error", err)
		if errors.Is(err, ErrSubmitFailed) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}

	c.record("submit", "success", start)
	c.logger.InfoContext(ctx, "entry accepted", "owner", owner.String(), "link", payload)

	if c.publisher != nil {
		event := natspkg.NewEntryEvent(owner.String(), "", payload)
		if err := c.publisher.PublishEntry(ctx, event); err != nil {
			c.logger.WarnContext(ctx, "failed to publish entry event", "owner", owner.String(), "error", err)
		}
	}
	return nil
}

func (c *Client) record(operation, outcome string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordOperation(operation, outcome, time.Since(start).Seconds())
	}
}

// ValidatePayload checks that payload can be submitted as an entry.
func ValidatePayload(payload string) error {
	if strings.TrimSpace(payload) == "" {
		return errors.New("empty input")
	}
	if len(payload) > MaxPayloadLen {
		return fmt.Errorf("entry too long: maximum length is %d bytes", MaxPayloadLen)
	}
	for _, r := range payload {
		if unicode.IsControl(r) {
			return errors.New("invalid characters in entry: control characters not allowed")
		}
	}
	return nil
}
