package anchor

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/escrowd/internal/config"
	"github.com/smartdevs17/escrowd/pkg/utils"
)

func TestNewAnchor(t *testing.T) {
	utils.InitLogger("error", "text", "stdout", "")

	t.Run("local mode", func(t *testing.T) {
		anc, err := New(&config.ChainConfig{Mode: "local"})
		require.NoError(t, err)
		assert.Equal(t, "local", anc.Stats().Mode)
	})

	t.Run("default mode", func(t *testing.T) {
		anc, err := New(&config.ChainConfig{})
		require.NoError(t, err)
		assert.Equal(t, "local", anc.Stats().Mode)
	})

	t.Run("rpc mode", func(t *testing.T) {
		anc, err := New(&config.ChainConfig{Mode: "rpc", NodeURL: "http://localhost:4444"})
		require.NoError(t, err)
		assert.Equal(t, "rpc", anc.Stats().Mode)
		anc.Close()
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := New(&config.ChainConfig{Mode: "testnet"})
		require.Error(t, err)
		assert.True(t, utils.IsCode(err, utils.ErrCodeConfiguration))
	})
}

func TestLocalAnchorSubmit(t *testing.T) {
	utils.InitLogger("error", "text", "stdout", "")

	anc := NewLocalAnchor()
	ctx := context.Background()

	sub := &Submission{
		EscrowID:    1,
		Operation:   "initialize",
		Signer:      "0x1111111111111111111111111111111111111111",
		GrossAmount: 1000,
		NetAmount:   1000,
	}

	receipt, err := anc.Submit(ctx, sub)
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.TxHash)
	assert.True(t, strings.HasPrefix(receipt.TxHash, "0x"))
	assert.Len(t, receipt.TxHash, 66, "keccak256 digest is 32 bytes hex")
	assert.False(t, receipt.AnchoredAt.IsZero())

	// identical submissions still yield distinct identifiers
	second, err := anc.Submit(ctx, sub)
	require.NoError(t, err)
	assert.NotEqual(t, receipt.TxHash, second.TxHash)

	stats := anc.Stats()
	assert.Equal(t, uint64(2), stats.TotalSubmissions)
	assert.False(t, stats.LastSubmissionAt.IsZero())

	t.Logf("✓ Local anchor produced %s", receipt.TxHash)
}

func TestLocalAnchorContextCancelled(t *testing.T) {
	anc := NewLocalAnchor()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := anc.Submit(ctx, &Submission{EscrowID: 1, Operation: "release"})
	require.Error(t, err)
}

func TestLocalAnchorHealth(t *testing.T) {
	anc := NewLocalAnchor()

	assert.True(t, anc.IsHealthy())
	assert.NoError(t, anc.HealthCheck(context.Background()))
	assert.NoError(t, anc.Close())
	assert.False(t, anc.Stats().LastHealthCheck.IsZero())
}

func TestSettlementDigestDeterminism(t *testing.T) {
	a := utils.SettlementDigest(1, "release", "0x1111111111111111111111111111111111111111", 500, 450, 50, 7)
	b := utils.SettlementDigest(1, "release", "0x1111111111111111111111111111111111111111", 500, 450, 50, 7)
	c := utils.SettlementDigest(1, "release", "0x1111111111111111111111111111111111111111", 500, 450, 50, 8)

	assert.Equal(t, a, b, "Same inputs must digest identically")
	assert.NotEqual(t, a, c, "Nonce must change the digest")
}
