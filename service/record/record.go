package record

import (
	"context"
	"errors"

	"github.com/brojonat/moonportal/service/wallet"
)

var (
	// ErrNotFound means no record has been allocated for the owner yet. It is an
	// expected outcome, not a failure.
	ErrNotFound = errors.New("record not found")

	// ErrFetchFailed covers every read failure other than ErrNotFound.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrAlreadyInitialized is returned when creating a record that already exists.
	ErrAlreadyInitialized = errors.New("record already initialized")

	// ErrSubmitFailed covers rejected or unconfirmed mutations.
	ErrSubmitFailed = errors.New("submit failed")
)

// Entry is a single accepted item in a record.
type Entry struct {
	Link      string          `json:"link"`
	Submitter wallet.Identity `json:"submitter"`
}

// Snapshot is the remote state of one owner's record.
type Snapshot struct {
	Owner   wallet.Identity `json:"owner"`
	Address string          `json:"address"`
	Entries []Entry         `json:"entries"`
}

// Ledger is the remote record capability.
type Ledger interface {
	// FetchRecord returns ErrNotFound when the owner has no record.
	FetchRecord(ctx context.Context, owner wallet.Identity) (*Snapshot, error)

	// CreateRecord allocates the owner's record. It returns ErrAlreadyInitialized
	// if the record exists. No state is returned; callers re-fetch.
	CreateRecord(ctx context.Context, owner wallet.Identity) error

	// AppendEntry appends payload to the owner's record. It returns only once the
	// remote has accepted the change.
	AppendEntry(ctx context.Context, owner wallet.Identity, payload string) error
}

// State is the outcome of a fetch.
type State int

const (
	StateFetchFailed State = iota
	StateNotFound
	StateReady
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateNotFound:
		return "not_found"
	default:
		return "fetch_failed"
	}
}

// FetchResult is what Client.Fetch reports. Err is set only for StateFetchFailed.
type FetchResult struct {
	State   State
	Entries []Entry
	Address string
	Err     error
}
