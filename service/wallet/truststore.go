package wallet

import (
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// TrustStore records which public keys an origin has been allowed to connect
// without prompting.
type TrustStore interface {
	IsTrusted(origin, publicKey string) (bool, error)
	Trust(origin, publicKey string) error
	Revoke(origin, publicKey string) error
	Close() error
}

var trustedBucket = []byte("trusted_origins")

// BoltTrustStore persists trust relationships in a bbolt file.
type BoltTrustStore struct {
	db *bolt.DB
}

// OpenBoltTrustStore opens (or creates) the trust database at path.
func OpenBoltTrustStore(path string) (*BoltTrustStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open trust store %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(trustedBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize trust store: %w", err)
	}

	return &BoltTrustStore{db: db}, nil
}

func trustKey(origin, publicKey string) []byte {
	return []byte(origin + "|" + publicKey)
}

func (s *BoltTrustStore) IsTrusted(origin, publicKey string) (bool, error) {
	var trusted bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(trustedBucket)
		if b == nil {
			return nil
		}
		trusted = b.Get(trustKey(origin, publicKey)) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to read trust store: %w", err)
	}
	return trusted, nil
}

func (s *BoltTrustStore) Trust(origin, publicKey string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(trustedBucket)
		if err != nil {
			return err
		}
		return b.Put(trustKey(origin, publicKey), []byte(time.Now().UTC().Format(time.RFC3339)))
	})
	if err != nil {
		return fmt.Errorf("failed to write trust store: %w", err)
	}
	return nil
}

func (s *BoltTrustStore) Revoke(origin, publicKey string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(trustedBucket)
		if b == nil {
			return nil
		}
		return b.Delete(trustKey(origin, publicKey))
	})
	if err != nil {
		return fmt.Errorf("failed to revoke trust: %w", err)
	}
	return nil
}

func (s *BoltTrustStore) Close() error {
	return s.db.Close()
}

// MemoryTrustStore is a process-local TrustStore.
type MemoryTrustStore struct {
	mu      sync.Mutex
	trusted map[string]struct{}
}

func NewMemoryTrustStore() *MemoryTrustStore {
	return &MemoryTrustStore{trusted: make(map[string]struct{})}
}

func (s *MemoryTrustStore) IsTrusted(origin, publicKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.trusted[string(trustKey(origin, publicKey))]
	return ok, nil
}

func (s *MemoryTrustStore) Trust(origin, publicKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trusted[string(trustKey(origin, publicKey))] = struct{}{}
	return nil
}

func (s *MemoryTrustStore) Revoke(origin, publicKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trusted, string(trustKey(origin, publicKey)))
	return nil
}

func (s *MemoryTrustStore) Close() error {
	return nil
}
