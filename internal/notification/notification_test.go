package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/escrowd/internal/config"
	"github.com/smartdevs17/escrowd/internal/metrics"
	"github.com/smartdevs17/escrowd/internal/models"
	"github.com/smartdevs17/escrowd/internal/storage"
	"github.com/smartdevs17/escrowd/pkg/utils"
)

func newTestStore(t *testing.T) storage.Storage {
	t.Helper()

	utils.InitLogger("error", "text", "stdout", "")

	store := storage.NewSQLiteStorage(&storage.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "notification_test.db"),
		MaxConnections:   5,
		MaxIdleTime:      time.Minute,
	})
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	return store
}

func newTestManager(t *testing.T, store storage.Storage, channels []config.ChannelConfig) *NotificationManager {
	t.Helper()

	nm := NewNotificationManager(&config.NotificationConfig{
		Enabled:             true,
		QueueSize:           16,
		Workers:             1,
		RetryAttempts:       2,
		RetryDelay:          10 * time.Millisecond,
		NotificationTimeout: 5 * time.Second,
		Channels:            channels,
	}, store)

	require.NoError(t, nm.Start(context.Background()))
	t.Cleanup(func() { nm.Stop() })

	return nm
}

func testSettlement(id uint64) (*models.Escrow, *models.Receipt) {
	now := time.Now()
	escrow := &models.Escrow{
		ID:        id,
		Initiator: "0x1111111111111111111111111111111111111111",
		Recipient: "0x2222222222222222222222222222222222222222",
		Arbiter:   "0x3333333333333333333333333333333333333333",
		Amount:    1000,
		DealType:  models.DealTypeNative,
		Status:    models.StatusFunded,
		CreatedAt: now,
		UpdatedAt: now,
		FundedAt:  &now,
	}
	receipt := &models.Receipt{
		ID:          utils.GenerateID(),
		EscrowID:    id,
		Operation:   models.OpInitialize,
		TxHash:      "0xfeed",
		GrossAmount: 1000,
		NetAmount:   1000,
		Signer:      escrow.Initiator,
		Anchored:    true,
		CreatedAt:   now,
	}
	return escrow, receipt
}

func TestWebhookDelivery(t *testing.T) {
	var mu sync.Mutex
	var received []WebhookPayload
	var gotToken string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload WebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err == nil {
			mu.Lock()
			received = append(received, payload)
			gotToken = r.Header.Get("X-Auth-Token")
			mu.Unlock()
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	store := newTestStore(t)
	nm := newTestManager(t, store, []config.ChannelConfig{
		{Name: "hook", Type: "webhook", URL: ts.URL, Headers: map[string]string{"X-Auth-Token": "secret"}},
	})

	escrow, receipt := testSettlement(1)
	require.NoError(t, nm.NotifySettlement(context.Background(), models.NotifyEscrowFunded, escrow, receipt))

	require.Eventually(t, func() bool {
		return nm.GetStats().TotalSent == 1
	}, 5*time.Second, 20*time.Millisecond, "Webhook delivery never completed")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, models.NotifyEscrowFunded, received[0].Kind)
	assert.Equal(t, uint64(1), received[0].EscrowID)
	assert.Equal(t, "escrowd", received[0].Source)
	assert.Equal(t, receipt.TxHash, received[0].Data["tx_hash"])
	assert.Equal(t, "secret", gotToken)

	// delivered notification is no longer pending
	pending, err := store.GetPendingNotifications(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	t.Logf("✓ Webhook delivered with payload and channel headers")
}

func TestWebhookRetryThenFail(t *testing.T) {
	var mu sync.Mutex
	var attempts int

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	store := newTestStore(t)
	nm := newTestManager(t, store, []config.ChannelConfig{
		{Name: "hook", Type: "webhook", URL: ts.URL},
	})

	escrow, receipt := testSettlement(2)
	require.NoError(t, nm.NotifySettlement(context.Background(), models.NotifyEscrowCancelled, escrow, receipt))

	require.Eventually(t, func() bool {
		return nm.GetStats().TotalFailed == 1
	}, 5*time.Second, 20*time.Millisecond, "Delivery never failed out")

	mu.Lock()
	assert.Equal(t, 2, attempts, "Expected one retry before giving up")
	mu.Unlock()

	stats := nm.GetStats()
	assert.Equal(t, uint64(1), stats.TotalRetried)
	require.NotNil(t, stats.LastError)

	// failed notification must not be requeued on the next start
	require.Eventually(t, func() bool {
		pending, err := store.GetPendingNotifications(context.Background(), 10)
		return err == nil && len(pending) == 0
	}, 5*time.Second, 20*time.Millisecond)

	t.Logf("✓ Delivery retried %d times then marked failed", attempts)
}

func TestPendingRequeuedOnStart(t *testing.T) {
	var mu sync.Mutex
	var delivered int

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		delivered++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	store := newTestStore(t)

	// a notification left pending by a previous run
	leftover := &models.Notification{
		ID:        utils.GenerateID(),
		Type:      models.NotificationTypeWebhook,
		EscrowID:  3,
		Kind:      models.NotifyEscrowReleased,
		Title:     "Escrow 3: escrow released",
		Message:   "Operation release settled with tx 0xbeef",
		Target:    ts.URL,
		Status:    "pending",
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.SaveNotification(context.Background(), leftover))

	nm := newTestManager(t, store, []config.ChannelConfig{
		{Name: "hook", Type: "webhook", URL: ts.URL},
	})

	require.Eventually(t, func() bool {
		return nm.GetStats().TotalSent == 1
	}, 5*time.Second, 20*time.Millisecond, "Pending notification was not requeued")

	mu.Lock()
	assert.Equal(t, 1, delivered)
	mu.Unlock()

	pending, err := store.GetPendingNotifications(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	t.Logf("✓ Pending notification requeued and delivered on start")
}

func TestDeliveryMetrics(t *testing.T) {
	manager := metrics.NewManager()

	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okServer.Close()
	failServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failServer.Close()

	store := newTestStore(t)
	nm := newTestManager(t, store, []config.ChannelConfig{
		{Name: "good", Type: "webhook", URL: okServer.URL},
		{Name: "bad", Type: "webhook", URL: failServer.URL},
	})
	nm.SetMetricsManager(manager)

	escrow, receipt := testSettlement(4)
	require.NoError(t, nm.NotifySettlement(context.Background(), models.NotifyEscrowFunded, escrow, receipt))

	require.Eventually(t, func() bool {
		stats := nm.GetStats()
		return stats.TotalSent == 1 && stats.TotalFailed == 1
	}, 5*time.Second, 20*time.Millisecond)

	prometheusMetrics := manager.GetPrometheusMetrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(
		prometheusMetrics.NotificationsSentTotal.WithLabelValues("webhook", models.NotifyEscrowFunded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		prometheusMetrics.NotificationFailuresTotal.WithLabelValues("webhook", models.NotifyEscrowFunded)))

	t.Logf("✓ Deliveries recorded on sent and failure counters")
}

func TestLogChannelDelivery(t *testing.T) {
	store := newTestStore(t)
	nm := newTestManager(t, store, []config.ChannelConfig{
		{Name: "audit", Type: "log"},
	})

	escrow, receipt := testSettlement(5)
	require.NoError(t, nm.NotifySettlement(context.Background(), models.NotifyPartialRelease, escrow, receipt))

	require.Eventually(t, func() bool {
		return nm.GetStats().TotalSent == 1
	}, 5*time.Second, 20*time.Millisecond)
}
