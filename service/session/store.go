package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/brojonat/moonportal/service/wallet"
)

// Store tracks the current wallet identity and publishes changes to subscribers.
// At most one identity is active at a time.
type Store struct {
	provider wallet.Provider
	logger   *slog.Logger

	mu       sync.Mutex
	identity wallet.Identity
	nextID   int
	subs     map[int]func(wallet.Identity)
}

// NewStore creates a Store over the given wallet provider.
func NewStore(provider wallet.Provider, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		provider: provider,
		logger:   logger,
		subs:     make(map[int]func(wallet.Identity)),
	}
}

// Identity returns the current identity, or the zero Identity when disconnected.
func (s *Store) Identity() wallet.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Subscribe registers fn to be called on every identity change. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func(wallet.Identity)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// TryRestoreSilently reconnects without prompting. It only succeeds if the wallet
// already trusts this application; any failure leaves the identity absent.
func (s *Store) TryRestoreSilently(ctx context.Context) (wallet.Identity, error) {
	if id := s.Identity(); !id.IsZero() {
		return id, nil
	}
	if s.provider == nil || !s.provider.IsAvailable() {
		s.logger.InfoContext(ctx, "no wallet provider found")
		return "", wallet.ErrProviderUnavailable
	}

	id, err := s.provider.Connect(ctx, wallet.ConnectOptions{OnlyIfTrusted: true})
	if err != nil {
		s.logger.DebugContext(ctx, "silent restore failed", "error", err)
		return "", err
	}

	s.logger.InfoContext(ctx, "restored wallet session", "identity", id.String())
	s.set(id)
	return id, nil
}

// ConnectInteractively prompts the user via the wallet. Connecting while already
// connected returns the existing identity without prompting again.
func (s *Store) ConnectInteractively(ctx context.Context) (wallet.Identity, error) {
	if id := s.Identity(); !id.IsZero() {
		return id, nil
	}
	if s.provider == nil || !s.provider.IsAvailable() {
		return "", wallet.ErrProviderUnavailable
	}

	id, err := s.provider.Connect(ctx, wallet.ConnectOptions{OnlyIfTrusted: false})
	if err != nil {
		s.logger.InfoContext(ctx, "interactive connect failed", "error", err)
		return "", err
	}
	if id.IsZero() {
		return "", fmt.Errorf("%w: provider returned empty identity", wallet.ErrProviderUnavailable)
	}

	s.logger.InfoContext(ctx, "connected wallet", "identity", id.String())
	s.set(id)
	return id, nil
}

// Disconnect resets the identity to absent. Providers that keep their own
// session state are told to drop it.
func (s *Store) Disconnect() {
	if d, ok := s.provider.(interface{ Disconnect() }); ok {
		d.Disconnect()
	}
	s.set("")
}

// set updates the identity and notifies subscribers if it changed.
// Subscribers are called outside the lock.
func (s *Store) set(id wallet.Identity) {
	s.mu.Lock()
	if s.identity == id {
		s.mu.Unlock()
		return
	}
	s.identity = id
	subs := make([]func(wallet.Identity), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(id)
	}
}
