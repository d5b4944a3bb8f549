package solana

import (
	"crypto/sha256"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeBaseAccount(t *testing.T, acct *baseAccount) []byte {
	t.Helper()
	body, err := bin.MarshalBorsh(acct)
	require.NoError(t, err)
	return append(append([]byte(nil), baseAccountDiscriminator[:]...), body...)
}

func TestAnchorDiscriminator(t *testing.T) {
	sum := sha256.Sum256([]byte("global:initialize"))
	assert.Equal(t, sum[:8], initializeDiscriminator[:])
	assert.NotEqual(t, initializeDiscriminator, addLinkDiscriminator)
}

func TestDecodeBaseAccount(t *testing.T) {
	user := solana.NewWallet().PublicKey()
	data := encodeBaseAccount(t, &baseAccount{
		TotalLinks: 2,
		LinkList: []linkItem{
			{Link: "https://media.giphy.com/media/MolTU2s7zDKhi/giphy.gif", UserAddress: user},
			{Link: "https://media.giphy.com/media/LMomqSiRZF3zi/giphy.gif", UserAddress: user},
		},
	})

	acct, err := decodeBaseAccount(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), acct.TotalLinks)
	require.Len(t, acct.LinkList, 2)
	assert.Equal(t, "https://media.giphy.com/media/LMomqSiRZF3zi/giphy.gif", acct.LinkList[1].Link)
	assert.True(t, user.Equals(acct.LinkList[0].UserAddress))
}

func TestDecodeBaseAccount_Malformed(t *testing.T) {
	_, err := decodeBaseAccount([]byte{1, 2, 3})
	assert.ErrorContains(t, err, "too short")

	_, err = decodeBaseAccount(make([]byte, 16))
	assert.ErrorContains(t, err, "discriminator")

	truncated := encodeBaseAccount(t, &baseAccount{TotalLinks: 1, LinkList: []linkItem{{Link: "https://x"}}})
	_, err = decodeBaseAccount(truncated[:len(truncated)-10])
	assert.Error(t, err)
}

func TestAddLinkData(t *testing.T) {
	data, err := addLinkData("https://x")
	require.NoError(t, err)
	assert.Equal(t, addLinkDiscriminator[:], data[:8])

	var args addLinkArgs
	require.NoError(t, bin.NewBorshDecoder(data[8:]).Decode(&args))
	assert.Equal(t, "https://x", args.Link)
}

func TestRecordAddress_PerOwner(t *testing.T) {
	program := solana.NewWallet().PublicKey()
	a := solana.NewWallet().PublicKey()
	b := solana.NewWallet().PublicKey()

	addrA1, err := RecordAddress(program, a)
	require.NoError(t, err)
	addrA2, err := RecordAddress(program, a)
	require.NoError(t, err)
	addrB, err := RecordAddress(program, b)
	require.NoError(t, err)

	assert.True(t, addrA1.Equals(addrA2), "derivation must be stable across sessions")
	assert.False(t, addrA1.Equals(addrB))
}
