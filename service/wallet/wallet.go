package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrProviderUnavailable means no wallet could be reached at all.
	ErrProviderUnavailable = errors.New("wallet provider unavailable")

	// ErrUserRejected means the wallet refused the connection, either because the
	// user declined or because a silent connect found no pre-authorized trust.
	ErrUserRejected = errors.New("user rejected the request")

	// ErrNotConnected is returned by signing operations before a session is approved.
	ErrNotConnected = errors.New("wallet not connected")
)

// Identity is the public identifier of a connected wallet (a base58 public key).
// The zero value means no session.
type Identity string

// IsZero reports whether the identity is absent.
func (i Identity) IsZero() bool {
	return i == ""
}

func (i Identity) String() string {
	return string(i)
}

// PublicKey parses the identity as a Solana public key.
func (i Identity) PublicKey() (solana.PublicKey, error) {
	if i.IsZero() {
		return solana.PublicKey{}, fmt.Errorf("empty identity")
	}
	pk, err := solana.PublicKeyFromBase58(string(i))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid identity %q: %w", string(i), err)
	}
	return pk, nil
}

// ConnectOptions controls how a provider handles a connect request.
type ConnectOptions struct {
	// OnlyIfTrusted makes the connect non-interactive: it succeeds only if the
	// wallet already trusts this application.
	OnlyIfTrusted bool
}

// Provider is the wallet capability consumed by the session layer.
type Provider interface {
	// IsAvailable reports whether a wallet is present at all.
	IsAvailable() bool

	// Connect requests a session. It fails with ErrUserRejected or ErrProviderUnavailable.
	Connect(ctx context.Context, opts ConnectOptions) (Identity, error)
}

// Signer signs transactions on behalf of a connected identity.
type Signer interface {
	SignTransaction(ctx context.Context, owner Identity, tx *solana.Transaction) error
}
