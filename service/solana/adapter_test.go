package solana

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectRandomEndpoint(t *testing.T) {
	t.Run("successful selection from multiple endpoints", func(t *testing.T) {
		endpoints := []string{
			"https://api.devnet.solana.com",
			"https://devnet.helius-rpc.com",
			"https://rpc.ankr.com/solana_devnet",
		}

		selected, err := SelectRandomEndpoint(endpoints)
		require.NoError(t, err)
		assert.Contains(t, endpoints, selected)
	})

	t.Run("successful selection from single endpoint", func(t *testing.T) {
		endpoints := []string{"https://api.devnet.solana.com"}

		selected, err := SelectRandomEndpoint(endpoints)
		require.NoError(t, err)
		assert.Equal(t, endpoints[0], selected)
	})

	t.Run("error on empty slice", func(t *testing.T) {
		_, err := SelectRandomEndpoint([]string{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no RPC endpoints configured")
	})

	t.Run("error on nil slice", func(t *testing.T) {
		_, err := SelectRandomEndpoint(nil)
		assert.Error(t, err)
	})
}

func TestParseEndpoints(t *testing.T) {
	assert.Equal(t, []string{"https://a", "https://b"}, ParseEndpoints(" https://a, ,https://b "))
	assert.Nil(t, ParseEndpoints(""))
}

func TestEndpointLabel(t *testing.T) {
	assert.Equal(t, "devnet", EndpointLabel("https://api.devnet.solana.com"))
	assert.Equal(t, "mainnet", EndpointLabel("https://api.mainnet-beta.solana.com"))
	assert.Equal(t, "devnet.helius-rpc.com", EndpointLabel("https://devnet.helius-rpc.com/?api-key=SECRET"))
	assert.Equal(t, "unknown", EndpointLabel("not a url"))
}
