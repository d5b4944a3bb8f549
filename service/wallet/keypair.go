package wallet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// KeypairWallet is a local wallet backed by a Solana keygen file. It plays the
// role a browser extension wallet plays for a web client: it holds the key,
// remembers which origins it trusts, and signs transactions for approved sessions.
type KeypairWallet struct {
	origin   string
	loadKey  func() (solana.PrivateKey, error)
	trust    TrustStore
	approver Approver
	logger   *slog.Logger

	mu        sync.Mutex
	key       solana.PrivateKey
	connected bool
}

// NewKeypairWallet creates a wallet that loads its key from a solana-keygen JSON file.
// The file is read lazily so a missing file surfaces as an unavailable provider
// rather than a startup failure.
func NewKeypairWallet(path, origin string, trust TrustStore, approver Approver, logger *slog.Logger) *KeypairWallet {
	return newKeypairWallet(func() (solana.PrivateKey, error) {
		return solana.PrivateKeyFromSolanaKeygenFile(path)
	}, origin, trust, approver, logger)
}

// NewKeypairWalletFromKey creates a wallet around an in-memory key.
func NewKeypairWalletFromKey(key solana.PrivateKey, origin string, trust TrustStore, approver Approver, logger *slog.Logger) *KeypairWallet {
	return newKeypairWallet(func() (solana.PrivateKey, error) {
		return key, nil
	}, origin, trust, approver, logger)
}

func newKeypairWallet(load func() (solana.PrivateKey, error), origin string, trust TrustStore, approver Approver, logger *slog.Logger) *KeypairWallet {
	if trust == nil {
		trust = NewMemoryTrustStore()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &KeypairWallet{
		origin:   origin,
		loadKey:  load,
		trust:    trust,
		approver: approver,
		logger:   logger,
	}
}

func (w *KeypairWallet) privateKey() (solana.PrivateKey, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.key) > 0 {
		return w.key, nil
	}
	key, err := w.loadKey()
	if err != nil {
		return nil, err
	}
	if len(key) != 64 {
		return nil, fmt.Errorf("invalid keypair length %d", len(key))
	}
	w.key = key
	return key, nil
}

// IsAvailable reports whether the keypair can be loaded.
func (w *KeypairWallet) IsAvailable() bool {
	_, err := w.privateKey()
	if err != nil {
		w.logger.Debug("keypair wallet unavailable", "error", err)
		return false
	}
	return true
}

// Connect opens a session for the configured origin.
func (w *KeypairWallet) Connect(ctx context.Context, opts ConnectOptions) (Identity, error) {
	key, err := w.privateKey()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	pub := key.PublicKey().String()

	trusted, err := w.trust.IsTrusted(w.origin, pub)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if opts.OnlyIfTrusted {
		if !trusted {
			w.logger.DebugContext(ctx, "silent connect refused, origin not trusted",
				"origin", w.origin,
				"public_key", pub,
			)
			return "", ErrUserRejected
		}
		w.setConnected(true)
		return Identity(pub), nil
	}

	if !trusted {
		if w.approver == nil {
			return "", fmt.Errorf("%w: no approver configured", ErrProviderUnavailable)
		}
		ok, err := w.approver.Approve(ctx, ApprovalRequest{Origin: w.origin, PublicKey: pub})
		if err != nil {
			if errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrUserRejected) {
				return "", err
			}
			return "", fmt.Errorf("%w: %v", ErrUserRejected, err)
		}
		if !ok {
			return "", ErrUserRejected
		}
		if err := w.trust.Trust(w.origin, pub); err != nil {
			// The session is still approved; only the next silent restore is affected.
			w.logger.WarnContext(ctx, "failed to persist trust", "origin", w.origin, "error", err)
		}
	}

	w.setConnected(true)
	w.logger.InfoContext(ctx, "wallet connected", "origin", w.origin, "public_key", pub)
	return Identity(pub), nil
}

// Disconnect ends the in-memory session. Trust is kept.
func (w *KeypairWallet) Disconnect() {
	w.setConnected(false)
}

// Revoke removes the trust relationship so the next silent restore fails.
func (w *KeypairWallet) Revoke() error {
	key, err := w.privateKey()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	w.setConnected(false)
	return w.trust.Revoke(w.origin, key.PublicKey().String())
}

func (w *KeypairWallet) setConnected(v bool) {
	w.mu.Lock()
	w.connected = v
	w.mu.Unlock()
}

// SignTransaction signs tx as owner. The wallet must be connected and hold owner's key.
func (w *KeypairWallet) SignTransaction(ctx context.Context, owner Identity, tx *solana.Transaction) error {
	w.mu.Lock()
	connected := w.connected
	w.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	key, err := w.privateKey()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	pub := key.PublicKey()
	if pub.String() != owner.String() {
		return fmt.Errorf("wallet holds %s, cannot sign for %s", pub, owner)
	}

	_, err = tx.Sign(func(k solana.PublicKey) *solana.PrivateKey {
		if k.Equals(pub) {
			return &key
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	return nil
}
