package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/escrowd/internal/models"
	"github.com/smartdevs17/escrowd/pkg/utils"
)

func newTestStorage(t *testing.T) Storage {
	t.Helper()

	utils.InitLogger("error", "text", "stdout", "")

	store := NewSQLiteStorage(&StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "test.db"),
		MaxConnections:   5,
		MaxIdleTime:      time.Minute,
	})

	require.NoError(t, store.Connect(), "Failed to connect to storage")
	require.NoError(t, store.Migrate(), "Failed to migrate storage")
	require.NoError(t, store.Ping(), "Failed to ping storage")
	t.Cleanup(func() { store.Close() })

	return store
}

func testEscrow(id uint64) *models.Escrow {
	now := time.Now()
	return &models.Escrow{
		ID:          id,
		Initiator:   "0x1111111111111111111111111111111111111111",
		Recipient:   "0x2222222222222222222222222222222222222222",
		Arbiter:     "0x3333333333333333333333333333333333333333",
		Amount:      1000,
		DealType:    models.DealTypeNative,
		Status:      models.StatusFunded,
		FeeWallet:   "0x00000000000000000000000000000000000000fe",
		BurnAddress: "0x000000000000000000000000000000000000dead",
		CreatedAt:   now,
		UpdatedAt:   now,
		FundedAt:    &now,
	}
}

func TestEscrowOperations(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	escrow := testEscrow(1)
	require.NoError(t, store.SaveEscrow(ctx, escrow))

	loaded, err := store.GetEscrow(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, escrow.Initiator, loaded.Initiator)
	assert.Equal(t, escrow.Amount, loaded.Amount)
	assert.Equal(t, models.StatusFunded, loaded.Status)
	assert.NotNil(t, loaded.FundedAt)
	assert.Nil(t, loaded.ClosedAt)

	missing, err := store.GetEscrow(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, missing, "Missing escrow returns nil, not an error")

	// duplicate primary key is rejected
	err = store.SaveEscrow(ctx, escrow)
	require.Error(t, err)

	now := time.Now()
	loaded.ReleasedAmount = 400
	loaded.Status = models.StatusReleased
	loaded.UpdatedAt = now
	loaded.ClosedAt = &now
	require.NoError(t, store.UpdateEscrow(ctx, loaded))

	updated, err := store.GetEscrow(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(400), updated.ReleasedAmount)
	assert.Equal(t, models.StatusReleased, updated.Status)
	assert.NotNil(t, updated.ClosedAt)

	unknown := testEscrow(77)
	err = store.UpdateEscrow(ctx, unknown)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))

	t.Logf("✓ Escrow CRUD operations successful")
}

func TestEscrowFilters(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	first := testEscrow(1)
	require.NoError(t, store.SaveEscrow(ctx, first))

	second := testEscrow(2)
	second.Status = models.StatusCancelled
	second.DealType = models.DealTypeToken
	second.TokenAddress = "0x5555555555555555555555555555555555555555"
	second.Initiator = "0x9999999999999999999999999999999999999999"
	require.NoError(t, store.SaveEscrow(ctx, second))

	t.Run("by status", func(t *testing.T) {
		status := models.StatusFunded
		escrows, err := store.GetEscrows(ctx, models.EscrowFilter{Status: &status})
		require.NoError(t, err)
		require.Len(t, escrows, 1)
		assert.Equal(t, uint64(1), escrows[0].ID)
	})

	t.Run("by deal type", func(t *testing.T) {
		dealType := models.DealTypeToken
		escrows, err := store.GetEscrows(ctx, models.EscrowFilter{DealType: &dealType})
		require.NoError(t, err)
		require.Len(t, escrows, 1)
		assert.Equal(t, "0x5555555555555555555555555555555555555555", escrows[0].TokenAddress)
	})

	t.Run("by participant", func(t *testing.T) {
		participant := "0x9999999999999999999999999999999999999999"
		escrows, err := store.GetEscrows(ctx, models.EscrowFilter{Participant: &participant})
		require.NoError(t, err)
		require.Len(t, escrows, 1)
		assert.Equal(t, uint64(2), escrows[0].ID)

		// arbiter address matches both
		arbiter := "0x3333333333333333333333333333333333333333"
		escrows, err = store.GetEscrows(ctx, models.EscrowFilter{Participant: &arbiter})
		require.NoError(t, err)
		assert.Len(t, escrows, 2)
	})

	t.Run("count and paging", func(t *testing.T) {
		count, err := store.GetEscrowCount(ctx, models.EscrowFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		escrows, err := store.GetEscrows(ctx, models.EscrowFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, escrows, 1)
	})
}

func TestCommitSettlement(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	escrow := testEscrow(5)
	receipt := &models.Receipt{
		ID:          utils.GenerateID(),
		EscrowID:    5,
		Operation:   models.OpInitialize,
		TxHash:      "0xabc123",
		GrossAmount: 1000,
		NetAmount:   1000,
		Signer:      escrow.Initiator,
		Anchored:    true,
		CreatedAt:   time.Now(),
	}
	entries := []*models.LedgerEntry{
		{
			ID: utils.GenerateID(), EscrowID: 5, Account: models.AccountInitiator,
			Direction: models.DirectionDebit, Amount: 1000, ReceiptID: receipt.ID, CreatedAt: time.Now(),
		},
		{
			ID: utils.GenerateID(), EscrowID: 5, Account: models.AccountVault,
			Direction: models.DirectionCredit, Amount: 1000, ReceiptID: receipt.ID, CreatedAt: time.Now(),
		},
	}

	require.NoError(t, store.CommitSettlement(ctx, escrow, receipt, entries))

	loaded, err := store.GetEscrow(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	byID, err := store.GetReceipt(ctx, receipt.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "0xabc123", byID.TxHash)

	byHash, err := store.GetReceiptByTxHash(ctx, "0xabc123")
	require.NoError(t, err)
	require.NotNil(t, byHash)
	assert.Equal(t, receipt.ID, byHash.ID)

	ledger, err := store.GetLedgerEntries(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, ledger, 2)

	balance, err := store.GetVaultBalance(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), balance)

	// the upsert path updates mutable fields on resettlement
	now := time.Now()
	escrow.ReleasedAmount = 1000
	escrow.Status = models.StatusReleased
	escrow.ClosedAt = &now
	second := &models.Receipt{
		ID: utils.GenerateID(), EscrowID: 5, Operation: models.OpRelease,
		TxHash: "0xdef456", Percentage: 100, GrossAmount: 1000, NetAmount: 900,
		FeeAmount: 50, BurnAmount: 50, Signer: escrow.Arbiter, Anchored: true, CreatedAt: now,
	}
	require.NoError(t, store.CommitSettlement(ctx, escrow, second, nil))

	final, err := store.GetEscrow(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReleased, final.Status)
	assert.Equal(t, uint64(1000), final.ReleasedAmount)

	receipts, err := store.GetReceipts(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, receipts, 2)

	t.Logf("✓ Settlement commit and upsert successful")
}

func TestCommitSettlementAtomicity(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	escrow := testEscrow(6)
	receipt := &models.Receipt{
		ID:        utils.GenerateID(),
		EscrowID:  6,
		Operation: models.OpInitialize,
		TxHash:    "0xdup",
		Signer:    escrow.Initiator,
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.CommitSettlement(ctx, escrow, receipt, nil))

	// second commit reuses the tx hash, violating the unique index; the
	// whole transaction must roll back
	conflicting := &models.Receipt{
		ID:        utils.GenerateID(),
		EscrowID:  6,
		Operation: models.OpRelease,
		TxHash:    "0xdup",
		Signer:    escrow.Arbiter,
		CreatedAt: time.Now(),
	}
	badEntries := []*models.LedgerEntry{{
		ID: utils.GenerateID(), EscrowID: 6, Account: models.AccountVault,
		Direction: models.DirectionDebit, Amount: 10, ReceiptID: conflicting.ID, CreatedAt: time.Now(),
	}}
	err := store.CommitSettlement(ctx, escrow, conflicting, badEntries)
	require.Error(t, err)

	entries, err := store.GetLedgerEntries(ctx, 6)
	require.NoError(t, err)
	assert.Empty(t, entries, "Rolled-back settlement must leave no ledger entries")
}

func TestNotificationPersistence(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	notification := &models.Notification{
		ID:        utils.GenerateID(),
		Type:      models.NotificationTypeWebhook,
		EscrowID:  1,
		Kind:      models.NotifyEscrowFunded,
		Title:     "Escrow 1: escrow funded",
		Message:   "funded",
		Data:      map[string]interface{}{"amount": float64(1000)},
		Target:    "https://example.com/hook",
		Status:    "pending",
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.SaveNotification(ctx, notification))

	pending, err := store.GetPendingNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, notification.ID, pending[0].ID)
	assert.Equal(t, float64(1000), pending[0].Data["amount"])

	require.NoError(t, store.UpdateNotificationStatus(ctx, notification.ID, "sent", nil))

	pending, err = store.GetPendingNotifications(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	err = store.UpdateNotificationStatus(ctx, "missing-id", "sent", nil)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))

	t.Logf("✓ Notification persistence successful")
}

func TestStorageStats(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	escrow := testEscrow(1)
	receipt := &models.Receipt{
		ID: utils.GenerateID(), EscrowID: 1, Operation: models.OpInitialize,
		TxHash: "0x1", Signer: escrow.Initiator, CreatedAt: time.Now(),
	}
	entries := []*models.LedgerEntry{{
		ID: utils.GenerateID(), EscrowID: 1, Account: models.AccountVault,
		Direction: models.DirectionCredit, Amount: 1000, ReceiptID: receipt.ID, CreatedAt: time.Now(),
	}}
	require.NoError(t, store.CommitSettlement(ctx, escrow, receipt, entries))

	stats, err := store.GetStorageStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalEscrows)
	assert.Equal(t, int64(1), stats.TotalReceipts)
	assert.Equal(t, int64(1), stats.TotalLedgerEntries)
	assert.Equal(t, int64(1), stats.EscrowsByStatus["funded"])
	assert.Equal(t, uint64(1000), stats.TotalVaultBalance)
	assert.NotNil(t, stats.OldestEscrow)

	health := store.GetHealth()
	assert.True(t, health.Healthy)
	assert.Equal(t, "sqlite", health.StorageType)
}
