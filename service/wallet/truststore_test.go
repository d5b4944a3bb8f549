package wallet

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltTrustStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trust.db")

	store, err := OpenBoltTrustStore(path)
	require.NoError(t, err)

	ok, err := store.IsTrusted("moonportal", "pk1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Trust("moonportal", "pk1"))
	require.NoError(t, store.Close())

	// Trust survives a reopen.
	store, err = OpenBoltTrustStore(path)
	require.NoError(t, err)
	defer store.Close()

	ok, err = store.IsTrusted("moonportal", "pk1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.IsTrusted("other-origin", "pk1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Revoke("moonportal", "pk1"))
	ok, err = store.IsTrusted("moonportal", "pk1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryTrustStore(t *testing.T) {
	store := NewMemoryTrustStore()

	require.NoError(t, store.Trust("o", "k"))
	ok, _ := store.IsTrusted("o", "k")
	assert.True(t, ok)

	require.NoError(t, store.Revoke("o", "k"))
	ok, _ = store.IsTrusted("o", "k")
	assert.False(t, ok)
}
