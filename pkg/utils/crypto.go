package utils

import (
	"encoding/binary"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// GenerateID generates a random unique ID
func GenerateID() string {
	return uuid.NewString()
}

// IsValidAddress checks if a string is a valid hex address
func IsValidAddress(address string) bool {
	return common.IsHexAddress(address)
}

// NormalizeAddress normalizes an address to lowercase with 0x prefix
func NormalizeAddress(address string) string {
	if address == "" {
		return ""
	}
	if !strings.HasPrefix(address, "0x") {
		address = "0x" + address
	}
	return strings.ToLower(address)
}

// SettlementDigest computes the keccak256 digest anchoring one settlement
// operation. The encoding is canonical: fixed-width big-endian integers and
// normalized addresses, so the same transition always yields the same digest.
func SettlementDigest(escrowID uint64, operation, signer string, gross, net, fee uint64, nonce uint64) string {
	var buf []byte

	id := make([]byte, 8)
	binary.BigEndian.PutUint64(id, escrowID)
	buf = append(buf, id...)
	buf = append(buf, []byte(operation)...)
	buf = append(buf, []byte(NormalizeAddress(signer))...)

	for _, v := range []uint64{gross, net, fee, nonce} {
		word := make([]byte, 8)
		binary.BigEndian.PutUint64(word, v)
		buf = append(buf, word...)
	}

	return crypto.Keccak256Hash(buf).Hex()
}

// EscrowVaultAccount derives the deterministic vault account label for an
// escrow, mirroring the seed scheme "vault" + escrow id.
func EscrowVaultAccount(escrowID uint64) string {
	id := make([]byte, 8)
	binary.BigEndian.PutUint64(id, escrowID)
	hash := crypto.Keccak256Hash(append([]byte("vault"), id...))
	return hash.Hex()
}
