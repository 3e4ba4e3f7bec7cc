package storage

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/escrowd/internal/metrics"
	"github.com/smartdevs17/escrowd/internal/models"
	"github.com/smartdevs17/escrowd/pkg/utils"
)

func TestStorageWithMetrics(t *testing.T) {
	manager := metrics.NewManager()
	store := NewStorageWithMetrics(newTestStorage(t), manager)
	ctx := context.Background()
	counters := manager.GetPrometheusMetrics().DatabaseOperationsTotal

	escrow := testEscrow(1)
	require.NoError(t, store.SaveEscrow(ctx, escrow))
	assert.Equal(t, 1.0,
		testutil.ToFloat64(counters.WithLabelValues("insert", "escrows", "success")))

	escrow.ReleasedAmount = 500
	require.NoError(t, store.UpdateEscrow(ctx, escrow))
	assert.Equal(t, 1.0,
		testutil.ToFloat64(counters.WithLabelValues("update", "escrows", "success")))

	settled := testEscrow(2)
	receipt := &models.Receipt{
		ID:          utils.GenerateID(),
		EscrowID:    2,
		Operation:   models.OpInitialize,
		TxHash:      "0xmetered",
		GrossAmount: 1000,
		NetAmount:   1000,
		Signer:      settled.Initiator,
		Anchored:    true,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, store.CommitSettlement(ctx, settled, receipt, nil))
	assert.Equal(t, 1.0,
		testutil.ToFloat64(counters.WithLabelValues("tx", "escrows", "success")))

	notification := &models.Notification{
		ID:        utils.GenerateID(),
		Type:      models.NotificationTypeLog,
		EscrowID:  2,
		Kind:      models.NotifyEscrowFunded,
		Status:    "pending",
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.SaveNotification(ctx, notification))
	assert.Equal(t, 1.0,
		testutil.ToFloat64(counters.WithLabelValues("upsert", "notifications", "success")))

	require.NoError(t, store.UpdateNotificationStatus(ctx, notification.ID, "sent", nil))
	assert.Equal(t, 1.0,
		testutil.ToFloat64(counters.WithLabelValues("update", "notifications", "success")))

	// failed writes land on the error label
	require.Error(t, store.SaveEscrow(ctx, testEscrow(1)))
	assert.Equal(t, 1.0,
		testutil.ToFloat64(counters.WithLabelValues("insert", "escrows", "error")))

	t.Logf("✓ Database operations recorded with success and error labels")
}

func TestStorageWithMetricsPassesThrough(t *testing.T) {
	store := NewStorageWithMetrics(newTestStorage(t), nil)
	ctx := context.Background()

	require.NoError(t, store.SaveEscrow(ctx, testEscrow(1)))

	loaded, err := store.GetEscrow(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, uint64(1000), loaded.Amount)
}
