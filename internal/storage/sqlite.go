// File: internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/smartdevs17/escrowd/internal/models"
	"github.com/smartdevs17/escrowd/pkg/utils"
)

// SQLiteStorage implements Storage interface using SQLite
type SQLiteStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *StorageConfig) *SQLiteStorage {
	return &SQLiteStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetSQLiteMigrations(),
	}
}

// Connect establishes database connection
func (s *SQLiteStorage) Connect() error {
	// Ensure directory exists
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable foreign keys", err.Error())
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("SQLite database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *SQLiteStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *SQLiteStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	s.logger.Info("Starting database migrations")

	for _, migration := range s.migrations {
		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Debug("Applying migration")

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}

	s.logger.Info("Database migrations completed")
	return nil
}

const escrowColumns = `id, initiator, recipient, arbiter, amount, released_amount,
	deal_type, token_address, decimals, status, fee_wallet, burn_address,
	created_at, updated_at, funded_at, closed_at`

// SaveEscrow saves a single escrow
func (s *SQLiteStorage) SaveEscrow(ctx context.Context, escrow *models.Escrow) error {
	query := `
		INSERT INTO escrows
		(` + escrowColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query, escrowArgs(escrow)...)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save escrow", err.Error())
	}

	return nil
}

func escrowArgs(escrow *models.Escrow) []interface{} {
	return []interface{}{
		escrow.ID, escrow.Initiator, escrow.Recipient, escrow.Arbiter,
		escrow.Amount, escrow.ReleasedAmount, string(escrow.DealType),
		escrow.TokenAddress, escrow.Decimals, string(escrow.Status),
		escrow.FeeWallet, escrow.BurnAddress,
		escrow.CreatedAt, escrow.UpdatedAt, escrow.FundedAt, escrow.ClosedAt,
	}
}

func scanEscrow(row interface{ Scan(...interface{}) error }) (*models.Escrow, error) {
	var escrow models.Escrow
	var dealType, status string
	var tokenAddress sql.NullString
	var fundedAt, closedAt sql.NullTime

	err := row.Scan(&escrow.ID, &escrow.Initiator, &escrow.Recipient, &escrow.Arbiter,
		&escrow.Amount, &escrow.ReleasedAmount, &dealType, &tokenAddress,
		&escrow.Decimals, &status, &escrow.FeeWallet, &escrow.BurnAddress,
		&escrow.CreatedAt, &escrow.UpdatedAt, &fundedAt, &closedAt)
	if err != nil {
		return nil, err
	}

	escrow.DealType = models.DealType(dealType)
	escrow.Status = models.EscrowStatus(status)
	if tokenAddress.Valid {
		escrow.TokenAddress = tokenAddress.String
	}
	if fundedAt.Valid {
		escrow.FundedAt = &fundedAt.Time
	}
	if closedAt.Valid {
		escrow.ClosedAt = &closedAt.Time
	}

	return &escrow, nil
}

// GetEscrow retrieves a single escrow by ID
func (s *SQLiteStorage) GetEscrow(ctx context.Context, id uint64) (*models.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE id = ?`

	escrow, err := scanEscrow(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get escrow", err.Error())
	}

	return escrow, nil
}

func buildEscrowFilter(filter models.EscrowFilter) (string, []interface{}) {
	clause := ""
	args := []interface{}{}

	if filter.Status != nil {
		clause += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	if filter.DealType != nil {
		clause += " AND deal_type = ?"
		args = append(args, string(*filter.DealType))
	}
	if filter.Participant != nil {
		clause += " AND (initiator = ? OR recipient = ? OR arbiter = ?)"
		p := utils.NormalizeAddress(*filter.Participant)
		args = append(args, p, p, p)
	}
	if filter.FromTime != nil {
		clause += " AND created_at >= ?"
		args = append(args, *filter.FromTime)
	}
	if filter.ToTime != nil {
		clause += " AND created_at <= ?"
		args = append(args, *filter.ToTime)
	}

	return clause, args
}

// GetEscrows retrieves escrows based on filter
func (s *SQLiteStorage) GetEscrows(ctx context.Context, filter models.EscrowFilter) ([]*models.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE 1=1`

	clause, args := buildEscrowFilter(filter)
	query += clause
	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query escrows", err.Error())
	}
	defer rows.Close()

	var escrows []*models.Escrow
	for rows.Next() {
		escrow, err := scanEscrow(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan escrow", err.Error())
		}
		escrows = append(escrows, escrow)
	}

	return escrows, nil
}

// GetEscrowCount returns the count of escrows matching filter
func (s *SQLiteStorage) GetEscrowCount(ctx context.Context, filter models.EscrowFilter) (int64, error) {
	query := "SELECT COUNT(*) FROM escrows WHERE 1=1"
	clause, args := buildEscrowFilter(filter)
	query += clause

	var count int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count escrows", err.Error())
	}

	return count, nil
}

// UpdateEscrow updates an existing escrow
func (s *SQLiteStorage) UpdateEscrow(ctx context.Context, escrow *models.Escrow) error {
	query := `
		UPDATE escrows SET
			released_amount = ?, status = ?, updated_at = ?, funded_at = ?, closed_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		escrow.ReleasedAmount, string(escrow.Status), escrow.UpdatedAt,
		escrow.FundedAt, escrow.ClosedAt, escrow.ID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update escrow", err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to get rows affected", err.Error())
	}

	if rowsAffected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Escrow not found", fmt.Sprintf("%d", escrow.ID))
	}

	return nil
}

// CommitSettlement writes the escrow state, its receipt and the ledger
// entries of one transition atomically
func (s *SQLiteStorage) CommitSettlement(ctx context.Context, escrow *models.Escrow, receipt *models.Receipt, entries []*models.LedgerEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin transaction", err.Error())
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO escrows (` + escrowColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			released_amount = excluded.released_amount,
			status = excluded.status,
			updated_at = excluded.updated_at,
			funded_at = excluded.funded_at,
			closed_at = excluded.closed_at
	`
	if _, err := tx.ExecContext(ctx, upsert, escrowArgs(escrow)...); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to upsert escrow", err.Error())
	}

	receiptQuery := `
		INSERT INTO receipts
		(id, escrow_id, operation, tx_hash, percentage, gross_amount, net_amount,
		 fee_amount, burn_amount, signer, anchored, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, receiptQuery,
		receipt.ID, receipt.EscrowID, string(receipt.Operation), receipt.TxHash,
		receipt.Percentage, receipt.GrossAmount, receipt.NetAmount,
		receipt.FeeAmount, receipt.BurnAmount, receipt.Signer,
		receipt.Anchored, receipt.CreatedAt); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save receipt", err.Error())
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ledger_entries (id, escrow_id, account, direction, amount, receipt_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to prepare statement", err.Error())
	}
	defer stmt.Close()

	for _, entry := range entries {
		if _, err := stmt.ExecContext(ctx,
			entry.ID, entry.EscrowID, string(entry.Account), string(entry.Direction),
			entry.Amount, entry.ReceiptID, entry.CreatedAt); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save ledger entry", err.Error())
		}
	}

	if err := tx.Commit(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to commit settlement", err.Error())
	}

	s.logger.WithFields(logrus.Fields{
		"escrow_id": escrow.ID,
		"operation": receipt.Operation,
		"entries":   len(entries),
	}).Debug("Settlement committed")
	return nil
}

const receiptColumns = `id, escrow_id, operation, tx_hash, percentage, gross_amount,
	net_amount, fee_amount, burn_amount, signer, anchored, created_at`

func scanReceipt(row interface{ Scan(...interface{}) error }) (*models.Receipt, error) {
	var receipt models.Receipt
	var operation string

	err := row.Scan(&receipt.ID, &receipt.EscrowID, &operation, &receipt.TxHash,
		&receipt.Percentage, &receipt.GrossAmount, &receipt.NetAmount,
		&receipt.FeeAmount, &receipt.BurnAmount, &receipt.Signer,
		&receipt.Anchored, &receipt.CreatedAt)
	if err != nil {
		return nil, err
	}

	receipt.Operation = models.Operation(operation)
	return &receipt, nil
}

// GetReceipt retrieves a receipt by ID
func (s *SQLiteStorage) GetReceipt(ctx context.Context, id string) (*models.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE id = ?`

	receipt, err := scanReceipt(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get receipt", err.Error())
	}

	return receipt, nil
}

// GetReceiptByTxHash retrieves a receipt by transaction hash
func (s *SQLiteStorage) GetReceiptByTxHash(ctx context.Context, txHash string) (*models.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE tx_hash = ?`

	receipt, err := scanReceipt(s.db.QueryRowContext(ctx, query, txHash))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get receipt by tx hash", err.Error())
	}

	return receipt, nil
}

// GetReceipts retrieves all receipts for an escrow
func (s *SQLiteStorage) GetReceipts(ctx context.Context, escrowID uint64) ([]*models.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE escrow_id = ? ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, escrowID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query receipts", err.Error())
	}
	defer rows.Close()

	var receipts []*models.Receipt
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan receipt", err.Error())
		}
		receipts = append(receipts, receipt)
	}

	return receipts, nil
}

// GetLedgerEntries retrieves all ledger entries for an escrow
func (s *SQLiteStorage) GetLedgerEntries(ctx context.Context, escrowID uint64) ([]*models.LedgerEntry, error) {
	query := `
		SELECT id, escrow_id, account, direction, amount, receipt_id, created_at
		FROM ledger_entries WHERE escrow_id = ? ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, escrowID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query ledger entries", err.Error())
	}
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		var account, direction string

		if err := rows.Scan(&entry.ID, &entry.EscrowID, &account, &direction,
			&entry.Amount, &entry.ReceiptID, &entry.CreatedAt); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan ledger entry", err.Error())
		}

		entry.Account = models.LedgerAccount(account)
		entry.Direction = models.EntryDirection(direction)
		entries = append(entries, &entry)
	}

	return entries, nil
}

// GetVaultBalance returns the vault balance for an escrow as credits minus
// debits of the vault account
func (s *SQLiteStorage) GetVaultBalance(ctx context.Context, escrowID uint64) (uint64, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN direction = 'credit' THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN direction = 'debit' THEN amount ELSE 0 END), 0)
		FROM ledger_entries WHERE escrow_id = ? AND account = 'vault'
	`

	var credits, debits uint64
	err := s.db.QueryRowContext(ctx, query, escrowID).Scan(&credits, &debits)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get vault balance", err.Error())
	}

	if debits > credits {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Vault ledger overdrawn",
			fmt.Sprintf("escrow %d: credits %d, debits %d", escrowID, credits, debits))
	}

	return credits - debits, nil
}

// SaveNotification saves a notification
func (s *SQLiteStorage) SaveNotification(ctx context.Context, notification *models.Notification) error {
	dataJSON, err := json.Marshal(notification.Data)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal notification data", err.Error())
	}

	query := `
		INSERT OR REPLACE INTO notifications
		(id, type, escrow_id, kind, title, message, data, target, status, attempts, created_at, sent_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		notification.ID, string(notification.Type), notification.EscrowID,
		notification.Kind, notification.Title, notification.Message,
		string(dataJSON), notification.Target, notification.Status,
		notification.Attempts, notification.CreatedAt, notification.SentAt, notification.Error)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save notification", err.Error())
	}

	return nil
}

// GetPendingNotifications retrieves pending notifications
func (s *SQLiteStorage) GetPendingNotifications(ctx context.Context, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, type, escrow_id, kind, title, message, data, target, status, attempts, created_at, sent_at, error
		FROM notifications WHERE status = 'pending' ORDER BY created_at ASC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query notifications", err.Error())
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		var n models.Notification
		var nType, dataJSON string
		var sentAt sql.NullTime
		var sendError sql.NullString

		if err := rows.Scan(&n.ID, &nType, &n.EscrowID, &n.Kind, &n.Title, &n.Message,
			&dataJSON, &n.Target, &n.Status, &n.Attempts, &n.CreatedAt, &sentAt, &sendError); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan notification", err.Error())
		}

		n.Type = models.NotificationType(nType)
		if dataJSON != "" {
			if err := json.Unmarshal([]byte(dataJSON), &n.Data); err != nil {
				return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to unmarshal notification data", err.Error())
			}
		}
		if sentAt.Valid {
			n.SentAt = &sentAt.Time
		}
		if sendError.Valid {
			n.Error = &sendError.String
		}

		notifications = append(notifications, &n)
	}

	return notifications, nil
}

// UpdateNotificationStatus updates a notification's delivery status
func (s *SQLiteStorage) UpdateNotificationStatus(ctx context.Context, id string, status string, sendError *string) error {
	query := `
		UPDATE notifications SET status = ?, attempts = attempts + 1, sent_at = ?, error = ?
		WHERE id = ?
	`

	var sentAt *time.Time
	if status == "sent" {
		now := time.Now()
		sentAt = &now
	}

	result, err := s.db.ExecContext(ctx, query, status, sentAt, sendError, id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update notification status", err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to get rows affected", err.Error())
	}

	if rowsAffected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Notification not found", id)
	}

	return nil
}

// GetStorageStats provides storage statistics
func (s *SQLiteStorage) GetStorageStats() (*StorageStats, error) {
	stats := &StorageStats{
		EscrowsByStatus: make(map[string]int64),
	}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM escrows").Scan(&stats.TotalEscrows); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count escrows", err.Error())
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM receipts").Scan(&stats.TotalReceipts); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count receipts", err.Error())
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM ledger_entries").Scan(&stats.TotalLedgerEntries); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count ledger entries", err.Error())
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM notifications").Scan(&stats.TotalNotifications); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count notifications", err.Error())
	}

	rows, err := s.db.Query("SELECT status, COUNT(*) FROM escrows GROUP BY status")
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count escrows by status", err.Error())
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan status count", err.Error())
		}
		stats.EscrowsByStatus[status] = count
	}

	balanceQuery := `
		SELECT
			COALESCE(SUM(CASE WHEN direction = 'credit' THEN amount ELSE 0 END), 0) -
			COALESCE(SUM(CASE WHEN direction = 'debit' THEN amount ELSE 0 END), 0)
		FROM ledger_entries WHERE account = 'vault'
	`
	var totalBalance int64
	if err := s.db.QueryRow(balanceQuery).Scan(&totalBalance); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to sum vault balances", err.Error())
	}
	if totalBalance > 0 {
		stats.TotalVaultBalance = uint64(totalBalance)
	}

	var oldest, latest sql.NullTime
	if err := s.db.QueryRow("SELECT MIN(created_at), MAX(created_at) FROM escrows").Scan(&oldest, &latest); err == nil {
		if oldest.Valid {
			stats.OldestEscrow = &oldest.Time
		}
		if latest.Valid {
			stats.LatestEscrow = &latest.Time
		}
	}

	return stats, nil
}

// Cleanup removes closed escrows and their history older than the retention
// window. A retention of zero disables cleanup.
func (s *SQLiteStorage) Cleanup(ctx context.Context, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin cleanup transaction", err.Error())
	}
	defer tx.Rollback()

	const closedFilter = `
		SELECT id FROM escrows
		WHERE status IN ('released', 'cancelled') AND closed_at < ?
	`

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM ledger_entries WHERE escrow_id IN ("+closedFilter+")", cutoff); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to clean ledger entries", err.Error())
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM receipts WHERE escrow_id IN ("+closedFilter+")", cutoff); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to clean receipts", err.Error())
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM notifications WHERE escrow_id IN ("+closedFilter+")", cutoff); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to clean notifications", err.Error())
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM escrows WHERE status IN ('released', 'cancelled') AND closed_at < ?", cutoff); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to clean escrows", err.Error())
	}

	if err := tx.Commit(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to commit cleanup", err.Error())
	}

	s.logger.WithField("cutoff", cutoff).Info("Storage cleanup completed")
	return nil
}

// GetHealth reports storage backend health
func (s *SQLiteStorage) GetHealth() *StorageHealth {
	return &StorageHealth{
		StorageType: "sqlite",
		Healthy:     s.Ping() == nil,
		Details:     map[string]string{"connection_string": s.config.ConnectionString},
		LastPing:    time.Now(),
	}
}
