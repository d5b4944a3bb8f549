package solana

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Seed prefix of the per-owner record PDA.
const recordSeed = "base_account"

var (
	baseAccountDiscriminator = anchorDiscriminator("account", "BaseAccount")
	initializeDiscriminator  = anchorDiscriminator("global", "initialize")
	addLinkDiscriminator     = anchorDiscriminator("global", "add_link")
)

// anchorDiscriminator is the 8-byte prefix Anchor puts on accounts and instructions.
func anchorDiscriminator(namespace, name string) [8]byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// baseAccount mirrors the program's on-chain account, after the discriminator.
type baseAccount struct {
	TotalLinks uint64
	LinkList   []linkItem
}

type linkItem struct {
	Link        string
	UserAddress solana.PublicKey
}

type addLinkArgs struct {
	Link string
}

func decodeBaseAccount(data []byte) (*baseAccount, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("account data too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:8], baseAccountDiscriminator[:]) {
		return nil, fmt.Errorf("unexpected account discriminator %x", data[:8])
	}

	var acct baseAccount
	if err := bin.NewBorshDecoder(data[8:]).Decode(&acct); err != nil {
		return nil, fmt.Errorf("failed to decode base account: %w", err)
	}
	return &acct, nil
}

func initializeData() []byte {
	return append([]byte(nil), initializeDiscriminator[:]...)
}

func addLinkData(link string) ([]byte, error) {
	args, err := bin.MarshalBorsh(&addLinkArgs{Link: link})
	if err != nil {
		return nil, fmt.Errorf("failed to encode add_link args: %w", err)
	}
	return append(append([]byte(nil), addLinkDiscriminator[:]...), args...), nil
}

// RecordAddress derives the record account owned by owner under programID.
func RecordAddress(programID, owner solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(recordSeed), owner.Bytes()}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive record address: %w", err)
	}
	return addr, nil
}
