package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/escrowd/internal/anchor"
	"github.com/smartdevs17/escrowd/internal/config"
	"github.com/smartdevs17/escrowd/internal/models"
	"github.com/smartdevs17/escrowd/internal/storage"
	"github.com/smartdevs17/escrowd/internal/vault"
	"github.com/smartdevs17/escrowd/pkg/utils"
)

const (
	testInitiator = "0x1111111111111111111111111111111111111111"
	testRecipient = "0x2222222222222222222222222222222222222222"
	testArbiter   = "0x3333333333333333333333333333333333333333"
	testOutsider  = "0x4444444444444444444444444444444444444444"
	testFeeWallet = "0x00000000000000000000000000000000000000fe"
	testBurnAddr  = "0x000000000000000000000000000000000000dead"
)

func newTestEngine(t *testing.T) (*SettlementEngine, storage.Storage) {
	t.Helper()

	utils.InitLogger("error", "text", "stdout", "")

	cfg := &config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "escrowd_test.db"),
		MaxConnections:   5,
		MaxIdleTime:      time.Minute,
	}

	store, err := storage.NewStorage(cfg)
	require.NoError(t, err, "Failed to create storage")
	require.NoError(t, store.Connect(), "Failed to connect to storage")
	require.NoError(t, store.Migrate(), "Failed to migrate storage")
	t.Cleanup(func() { store.Close() })

	fees := &config.FeeConfig{
		FeePercent:  10,
		FeeWallet:   testFeeWallet,
		BurnAddress: testBurnAddr,
	}

	eng := NewEngine(store, vault.New(store), anchor.NewLocalAnchor(), nil, nil, fees)
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(func() { eng.Stop() })

	return eng, store
}

func newTestEscrow(t *testing.T, eng *SettlementEngine, id, amount uint64) *Settlement {
	t.Helper()

	settlement, err := eng.Initialize(context.Background(), &InitializeRequest{
		EscrowID:  id,
		Initiator: testInitiator,
		Recipient: testRecipient,
		Arbiter:   testArbiter,
		Amount:    amount,
		DealType:  models.DealTypeNative,
		Decimals:  9,
	})
	require.NoError(t, err, "Failed to initialize escrow")
	return settlement
}

func TestInitialize(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	settlement := newTestEscrow(t, eng, 1, 1_000_000)

	assert.Equal(t, models.StatusFunded, settlement.Escrow.Status)
	assert.Equal(t, uint64(1_000_000), settlement.Escrow.Amount)
	assert.Equal(t, uint64(0), settlement.Escrow.ReleasedAmount)
	assert.NotNil(t, settlement.Escrow.FundedAt)
	assert.Equal(t, models.OpInitialize, settlement.Receipt.Operation)
	assert.NotEmpty(t, settlement.Receipt.TxHash)

	balance, err := store.GetVaultBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), balance, "Vault should hold the full deposit")

	entries, err := store.GetLedgerEntries(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "Funding writes a debit and a credit")

	t.Logf("✓ Escrow initialized and funded with tx %s", settlement.Receipt.TxHash)
}

func TestInitializeDuplicate(t *testing.T) {
	eng, _ := newTestEngine(t)

	newTestEscrow(t, eng, 7, 500)

	_, err := eng.Initialize(context.Background(), &InitializeRequest{
		EscrowID:  7,
		Initiator: testInitiator,
		Recipient: testRecipient,
		Arbiter:   testArbiter,
		Amount:    500,
		DealType:  models.DealTypeNative,
	})
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeDuplicateEscrow))
}

func TestInitializeValidation(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *InitializeRequest
	}{
		{"zero amount", &InitializeRequest{
			EscrowID: 10, Initiator: testInitiator, Recipient: testRecipient,
			Arbiter: testArbiter, Amount: 0, DealType: models.DealTypeNative,
		}},
		{"bad deal type", &InitializeRequest{
			EscrowID: 11, Initiator: testInitiator, Recipient: testRecipient,
			Arbiter: testArbiter, Amount: 100, DealType: "options",
		}},
		{"bad initiator address", &InitializeRequest{
			EscrowID: 12, Initiator: "not-an-address", Recipient: testRecipient,
			Arbiter: testArbiter, Amount: 100, DealType: models.DealTypeNative,
		}},
		{"token deal without token address", &InitializeRequest{
			EscrowID: 13, Initiator: testInitiator, Recipient: testRecipient,
			Arbiter: testArbiter, Amount: 100, DealType: models.DealTypeToken,
		}},
		{"initiator equals recipient", &InitializeRequest{
			EscrowID: 14, Initiator: testInitiator, Recipient: testInitiator,
			Arbiter: testArbiter, Amount: 100, DealType: models.DealTypeNative,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.Initialize(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, utils.IsCode(err, utils.ErrCodeValidation), "expected validation error, got %v", err)
		})
	}
}

func TestReleasePartial(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	newTestEscrow(t, eng, 2, 1000)

	settlement, err := eng.Release(ctx, 2, testArbiter, 50)
	require.NoError(t, err)

	// gross 500, fee 50 (10%), 25 to fee wallet, 25 burned, net 450
	assert.Equal(t, uint64(500), settlement.Receipt.GrossAmount)
	assert.Equal(t, uint64(450), settlement.Receipt.NetAmount)
	assert.Equal(t, uint64(25), settlement.Receipt.FeeAmount)
	assert.Equal(t, uint64(25), settlement.Receipt.BurnAmount)
	assert.Equal(t, uint8(50), settlement.Receipt.Percentage)
	assert.NotEmpty(t, settlement.Receipt.TxHash)

	assert.Equal(t, uint64(500), settlement.Escrow.ReleasedAmount)
	assert.Equal(t, models.StatusFunded, settlement.Escrow.Status, "Partial release keeps the escrow funded")
	assert.Equal(t, uint64(500), settlement.Escrow.Remaining())

	balance, err := store.GetVaultBalance(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), balance, "Vault balance should match the remaining amount")

	t.Logf("✓ Partial release settled: gross=500 net=450 fee=25 burn=25")
}

func TestReleaseSequenceToFull(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	newTestEscrow(t, eng, 3, 1000)

	first, err := eng.Release(ctx, 3, testInitiator, 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), first.Receipt.GrossAmount)

	// second release percentage applies to the remaining 500
	second, err := eng.Release(ctx, 3, testArbiter, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), second.Receipt.GrossAmount)
	assert.Equal(t, models.StatusReleased, second.Escrow.Status)
	assert.NotNil(t, second.Escrow.ClosedAt)
	assert.Equal(t, uint64(0), second.Escrow.Remaining())

	// terminal state rejects further operations
	_, err = eng.Release(ctx, 3, testArbiter, 10)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeInvalidStatus))

	_, err = eng.Cancel(ctx, 3, testInitiator)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeInvalidStatus))

	t.Logf("✓ Escrow fully released after two settlements")
}

func TestReleaseAuthorization(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	newTestEscrow(t, eng, 4, 1000)

	_, err := eng.Release(ctx, 4, testRecipient, 50)
	require.Error(t, err, "Recipient must not release")
	assert.True(t, utils.IsCode(err, utils.ErrCodeUnauthorized))

	_, err = eng.Release(ctx, 4, testOutsider, 50)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeUnauthorized))

	// initiator and arbiter may release
	_, err = eng.Release(ctx, 4, testInitiator, 10)
	assert.NoError(t, err)
	_, err = eng.Release(ctx, 4, testArbiter, 10)
	assert.NoError(t, err)
}

func TestReleasePercentageBounds(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	newTestEscrow(t, eng, 5, 1000)

	_, err := eng.Release(ctx, 5, testArbiter, 0)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeInvalidPercentage))

	_, err = eng.Release(ctx, 5, testArbiter, 101)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeInvalidPercentage))
}

func TestReleaseRoundsToZero(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	// 1% of 50 rounds down to 0 base units
	newTestEscrow(t, eng, 6, 50)

	_, err := eng.Release(ctx, 6, testArbiter, 1)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeNoFundsToRelease))
}

func TestCancel(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()

	newTestEscrow(t, eng, 8, 1000)

	_, err := eng.Release(ctx, 8, testArbiter, 30)
	require.NoError(t, err)

	settlement, err := eng.Cancel(ctx, 8, testInitiator)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCancelled, settlement.Escrow.Status)
	assert.NotNil(t, settlement.Escrow.ClosedAt)
	assert.Equal(t, models.OpCancel, settlement.Receipt.Operation)
	assert.Equal(t, uint64(700), settlement.Receipt.GrossAmount, "Refund should equal the vault balance")
	assert.NotEmpty(t, settlement.Receipt.TxHash)

	balance, err := store.GetVaultBalance(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), balance, "Vault should be empty after cancellation")

	t.Logf("✓ Escrow cancelled with refund of 700")
}

func TestCancelAuthorization(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	newTestEscrow(t, eng, 9, 1000)

	_, err := eng.Cancel(ctx, 9, testRecipient)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeUnauthorized))

	_, err = eng.Cancel(ctx, 9, testArbiter)
	assert.NoError(t, err, "Arbiter may cancel")
}

func TestQueries(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	newTestEscrow(t, eng, 20, 1000)
	newTestEscrow(t, eng, 21, 2000)
	_, err := eng.Release(ctx, 20, testArbiter, 40)
	require.NoError(t, err)

	t.Run("Get", func(t *testing.T) {
		escrow, err := eng.Get(ctx, 20)
		require.NoError(t, err)
		assert.Equal(t, uint64(400), escrow.ReleasedAmount)

		_, err = eng.Get(ctx, 999)
		require.Error(t, err)
		assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))
	})

	t.Run("Remaining", func(t *testing.T) {
		remaining, err := eng.Remaining(ctx, 20)
		require.NoError(t, err)
		assert.Equal(t, uint64(600), remaining)
	})

	t.Run("List", func(t *testing.T) {
		escrows, total, err := eng.List(ctx, models.EscrowFilter{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, escrows, 2)

		status := models.StatusFunded
		escrows, _, err = eng.List(ctx, models.EscrowFilter{Status: &status, Limit: 10})
		require.NoError(t, err)
		assert.Len(t, escrows, 2)
	})

	t.Run("Receipts", func(t *testing.T) {
		receipts, err := eng.Receipts(ctx, 20)
		require.NoError(t, err)
		require.Len(t, receipts, 2)
		assert.Equal(t, models.OpInitialize, receipts[0].Operation)
		assert.Equal(t, models.OpRelease, receipts[1].Operation)
	})

	t.Run("Ledger", func(t *testing.T) {
		entries, err := eng.Ledger(ctx, 20)
		require.NoError(t, err)

		var credits, debits uint64
		for _, entry := range entries {
			switch entry.Direction {
			case models.DirectionCredit:
				credits += entry.Amount
			case models.DirectionDebit:
				debits += entry.Amount
			}
		}
		assert.Equal(t, credits, debits, "Ledger must balance")
	})
}

func TestStats(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	newTestEscrow(t, eng, 30, 1000)
	_, err := eng.Release(ctx, 30, testArbiter, 100)
	require.NoError(t, err)

	stats := eng.GetStats()
	assert.Equal(t, int64(1), stats.EscrowsOpened)
	assert.Equal(t, int64(1), stats.Releases)
	assert.Equal(t, int64(1), stats.EscrowsReleased)
	assert.Equal(t, uint64(50), stats.TotalFeesTaken)
	assert.Equal(t, uint64(50), stats.TotalBurned)
	assert.NotNil(t, stats.LastOperation)

	health := eng.GetHealth()
	assert.True(t, health.Healthy)
	assert.True(t, health.Running)
	assert.True(t, health.AnchorHealthy)
}

func TestReceiptHashesAreUnique(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	newTestEscrow(t, eng, 40, 10_000)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		settlement, err := eng.Release(ctx, 40, testArbiter, 10)
		require.NoError(t, err)
		require.NotEmpty(t, settlement.Receipt.TxHash)
		assert.False(t, seen[settlement.Receipt.TxHash], "tx hash repeated")
		seen[settlement.Receipt.TxHash] = true
	}
}
