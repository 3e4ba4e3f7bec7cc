package storage

import (
	"context"
	"time"

	"github.com/smartdevs17/escrowd/internal/metrics"
	"github.com/smartdevs17/escrowd/internal/models"
)

// StorageWithMetrics wraps a storage implementation with metrics
type StorageWithMetrics struct {
	Storage
	metricsManager *metrics.Manager
}

// NewStorageWithMetrics creates a storage wrapper with metrics
func NewStorageWithMetrics(store Storage, metricsManager *metrics.Manager) *StorageWithMetrics {
	return &StorageWithMetrics{
		Storage:        store,
		metricsManager: metricsManager,
	}
}

func (s *StorageWithMetrics) record(operation, table string, err error, start time.Time) {
	if s.metricsManager == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}

	s.metricsManager.GetPrometheusMetrics().RecordDatabaseOperation(
		operation,
		table,
		status,
		time.Since(start),
	)
}

// SaveEscrow saves an escrow and records metrics
func (s *StorageWithMetrics) SaveEscrow(ctx context.Context, escrow *models.Escrow) error {
	start := time.Now()
	err := s.Storage.SaveEscrow(ctx, escrow)
	s.record("insert", "escrows", err, start)
	return err
}

// UpdateEscrow updates an escrow and records metrics
func (s *StorageWithMetrics) UpdateEscrow(ctx context.Context, escrow *models.Escrow) error {
	start := time.Now()
	err := s.Storage.UpdateEscrow(ctx, escrow)
	s.record("update", "escrows", err, start)
	return err
}

// CommitSettlement commits a settlement transaction and records metrics
func (s *StorageWithMetrics) CommitSettlement(ctx context.Context, escrow *models.Escrow, receipt *models.Receipt, entries []*models.LedgerEntry) error {
	start := time.Now()
	err := s.Storage.CommitSettlement(ctx, escrow, receipt, entries)
	s.record("tx", "escrows", err, start)
	return err
}

// SaveNotification saves a notification and records metrics
func (s *StorageWithMetrics) SaveNotification(ctx context.Context, notification *models.Notification) error {
	start := time.Now()
	err := s.Storage.SaveNotification(ctx, notification)
	s.record("upsert", "notifications", err, start)
	return err
}

// UpdateNotificationStatus updates a notification status and records metrics
func (s *StorageWithMetrics) UpdateNotificationStatus(ctx context.Context, id string, status string, sendError *string) error {
	start := time.Now()
	err := s.Storage.UpdateNotificationStatus(ctx, id, status, sendError)
	s.record("update", "notifications", err, start)
	return err
}
