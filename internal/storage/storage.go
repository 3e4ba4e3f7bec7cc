// File: internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/smartdevs17/escrowd/internal/models"
)

// Storage defines the interface for escrow state persistence
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Escrow operations
	SaveEscrow(ctx context.Context, escrow *models.Escrow) error
	GetEscrow(ctx context.Context, id uint64) (*models.Escrow, error)
	GetEscrows(ctx context.Context, filter models.EscrowFilter) ([]*models.Escrow, error)
	GetEscrowCount(ctx context.Context, filter models.EscrowFilter) (int64, error)
	UpdateEscrow(ctx context.Context, escrow *models.Escrow) error

	// Settlement: escrow mutation, receipt and ledger entries committed in
	// one transaction
	CommitSettlement(ctx context.Context, escrow *models.Escrow, receipt *models.Receipt, entries []*models.LedgerEntry) error

	// Receipt operations
	GetReceipt(ctx context.Context, id string) (*models.Receipt, error)
	GetReceiptByTxHash(ctx context.Context, txHash string) (*models.Receipt, error)
	GetReceipts(ctx context.Context, escrowID uint64) ([]*models.Receipt, error)

	// Ledger operations
	GetLedgerEntries(ctx context.Context, escrowID uint64) ([]*models.LedgerEntry, error)
	GetVaultBalance(ctx context.Context, escrowID uint64) (uint64, error)

	// Notification operations
	SaveNotification(ctx context.Context, notification *models.Notification) error
	GetPendingNotifications(ctx context.Context, limit int) ([]*models.Notification, error)
	UpdateNotificationStatus(ctx context.Context, id string, status string, sendError *string) error

	// Statistics and monitoring
	GetStorageStats() (*StorageStats, error)

	// Maintenance operations
	Cleanup(ctx context.Context, retentionDays int) error

	// Health
	GetHealth() *StorageHealth
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalEscrows       int64      `json:"total_escrows"`
	EscrowsByStatus    map[string]int64 `json:"escrows_by_status"`
	TotalReceipts      int64      `json:"total_receipts"`
	TotalLedgerEntries int64      `json:"total_ledger_entries"`
	TotalNotifications int64      `json:"total_notifications"`
	TotalVaultBalance  uint64     `json:"total_vault_balance"`
	OldestEscrow       *time.Time `json:"oldest_escrow,omitempty"`
	LatestEscrow       *time.Time `json:"latest_escrow,omitempty"`
}

// StorageHealth reports storage backend health
type StorageHealth struct {
	StorageType string            `json:"storage_type"`
	Healthy     bool              `json:"healthy"`
	Details     map[string]string `json:"details,omitempty"`
	LastPing    time.Time         `json:"last_ping"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
	RetentionDays    int           `json:"retention_days"`
}
