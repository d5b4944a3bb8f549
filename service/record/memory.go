package record

import (
	"context"
	"sync"

	"github.com/brojonat/moonportal/service/wallet"
)

// MemoryLedger is an in-process Ledger. It enforces the same rules as the
// on-chain program: one record per owner, append-only entries.
type MemoryLedger struct {
	mu        sync.Mutex
	records   map[wallet.Identity][]Entry
	fetchErr  error
	createErr error
	appendErr error
	creates   int
	appends   int
}

// NewMemoryLedger returns an empty ledger with no records.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[wallet.Identity][]Entry)}
}

// FetchRecord returns a copy of owner's entries, or ErrNotFound if owner has no record.
func (l *MemoryLedger) FetchRecord(ctx context.Context, owner wallet.Identity) (*Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fetchErr != nil {
		return nil, l.fetchErr
	}
	entries, ok := l.records[owner]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return &Snapshot{Owner: owner, Address: "memory:" + owner.String(), Entries: out}, nil
}

// CreateRecord creates an empty record for owner. A second call returns
// ErrAlreadyInitialized.
func (l *MemoryLedger) CreateRecord(ctx context.Context, owner wallet.Identity) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.creates++
	if l.createErr != nil {
		return l.createErr
	}
	if _, ok := l.records[owner]; ok {
		return ErrAlreadyInitialized
	}
	l.records[owner] = []Entry{}
	return nil
}

// AppendEntry adds payload to owner's record, signed by owner.
func (l *MemoryLedger) AppendEntry(ctx context.Context, owner wallet.Identity, payload string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.appends++
	if l.appendErr != nil {
		return l.appendErr
	}
	entries, ok := l.records[owner]
	if !ok {
		return ErrNotFound
	}
	l.records[owner] = append(entries, Entry{Link: payload, Submitter: owner})
	return nil
}

// SetFetchError makes every FetchRecord fail with err (nil clears it).
func (l *MemoryLedger) SetFetchError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fetchErr = err
}

// SetCreateError makes every CreateRecord fail with err (nil clears it).
func (l *MemoryLedger) SetCreateError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.createErr = err
}

// SetAppendError makes every AppendEntry fail with err (nil clears it).
func (l *MemoryLedger) SetAppendError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendErr = err
}

// Counts reports how many create and append attempts reached the ledger.
func (l *MemoryLedger) Counts() (creates, appends int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.creates, l.appends
}
