package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscrowVaultAccount(t *testing.T) {
	a := EscrowVaultAccount(1)
	b := EscrowVaultAccount(1)
	c := EscrowVaultAccount(2)

	assert.Equal(t, a, b, "Vault account derivation must be deterministic")
	assert.NotEqual(t, a, c, "Distinct escrows must derive distinct vault accounts")
	assert.Len(t, a, 66)
	assert.Equal(t, "0x", a[:2])
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "0xabcdef1234567890abcdef1234567890abcdef12",
		NormalizeAddress("0xABCDEF1234567890ABCDEF1234567890ABCDEF12"))
	assert.Equal(t, "0xabcdef1234567890abcdef1234567890abcdef12",
		NormalizeAddress("ABCDEF1234567890ABCDEF1234567890ABCDEF12"))
	assert.Equal(t, "", NormalizeAddress(""))
}
