// File: internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/escrowd/internal/models"
	"github.com/smartdevs17/escrowd/pkg/utils"
)

// PostgreSQLStorage implements Storage interface using PostgreSQL
type PostgreSQLStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *StorageConfig) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetPostgresMigrations(),
	}
}

// Connect establishes database connection
func (p *PostgreSQLStorage) Connect() error {
	db, err := sql.Open("postgres", p.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	db.SetMaxOpenConns(p.config.MaxConnections)
	db.SetMaxIdleConns(p.config.MaxConnections / 2)
	db.SetConnMaxLifetime(p.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	p.db = db
	p.logger.Info("PostgreSQL database connected")

	return nil
}

// Close closes the database connection
func (p *PostgreSQLStorage) Close() error {
	if p.db != nil {
		err := p.db.Close()
		p.db = nil
		p.logger.Info("PostgreSQL database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (p *PostgreSQLStorage) Ping() error {
	if p.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return p.db.Ping()
}

// Migrate runs database migrations
func (p *PostgreSQLStorage) Migrate() error {
	if p.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	p.logger.Info("Starting database migrations")

	for _, migration := range p.migrations {
		p.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Debug("Applying migration")

		if _, err := p.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}

	p.logger.Info("Database migrations completed")
	return nil
}

// SaveEscrow saves a single escrow
func (p *PostgreSQLStorage) SaveEscrow(ctx context.Context, escrow *models.Escrow) error {
	query := `
		INSERT INTO escrows
		(` + escrowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := p.db.ExecContext(ctx, query, escrowArgs(escrow)...)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save escrow", err.Error())
	}

	return nil
}

// GetEscrow retrieves a single escrow by ID
func (p *PostgreSQLStorage) GetEscrow(ctx context.Context, id uint64) (*models.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE id = $1`

	escrow, err := scanEscrow(p.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get escrow", err.Error())
	}

	return escrow, nil
}

func buildEscrowFilterPg(filter models.EscrowFilter, argIndex int) (string, []interface{}, int) {
	clause := ""
	args := []interface{}{}

	if filter.Status != nil {
		clause += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, string(*filter.Status))
		argIndex++
	}
	if filter.DealType != nil {
		clause += fmt.Sprintf(" AND deal_type = $%d", argIndex)
		args = append(args, string(*filter.DealType))
		argIndex++
	}
	if filter.Participant != nil {
		clause += fmt.Sprintf(" AND (initiator = $%d OR recipient = $%d OR arbiter = $%d)",
			argIndex, argIndex+1, argIndex+2)
		pAddr := utils.NormalizeAddress(*filter.Participant)
		args = append(args, pAddr, pAddr, pAddr)
		argIndex += 3
	}
	if filter.FromTime != nil {
		clause += fmt.Sprintf(" AND created_at >= $%d", argIndex)
		args = append(args, *filter.FromTime)
		argIndex++
	}
	if filter.ToTime != nil {
		clause += fmt.Sprintf(" AND created_at <= $%d", argIndex)
		args = append(args, *filter.ToTime)
		argIndex++
	}

	return clause, args, argIndex
}

// GetEscrows retrieves escrows based on filter
func (p *PostgreSQLStorage) GetEscrows(ctx context.Context, filter models.EscrowFilter) ([]*models.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE 1=1`

	clause, args, argIndex := buildEscrowFilterPg(filter, 1)
	query += clause
	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
		argIndex++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filter.Offset)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
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
func (p *PostgreSQLStorage) GetEscrowCount(ctx context.Context, filter models.EscrowFilter) (int64, error) {
	query := "SELECT COUNT(*) FROM escrows WHERE 1=1"
	clause, args, _ := buildEscrowFilterPg(filter, 1)
	query += clause

	var count int64
	err := p.db.QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count escrows", err.Error())
	}

	return count, nil
}

// UpdateEscrow updates an existing escrow
func (p *PostgreSQLStorage) UpdateEscrow(ctx context.Context, escrow *models.Escrow) error {
	query := `
		UPDATE escrows SET
			released_amount = $1, status = $2, updated_at = $3, funded_at = $4, closed_at = $5
		WHERE id = $6
	`

	result, err := p.db.ExecContext(ctx, query,
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
func (p *PostgreSQLStorage) CommitSettlement(ctx context.Context, escrow *models.Escrow, receipt *models.Receipt, entries []*models.LedgerEntry) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin transaction", err.Error())
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO escrows (` + escrowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT(id) DO UPDATE SET
			released_amount = EXCLUDED.released_amount,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			funded_at = EXCLUDED.funded_at,
			closed_at = EXCLUDED.closed_at
	`
	if _, err := tx.ExecContext(ctx, upsert, escrowArgs(escrow)...); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to upsert escrow", err.Error())
	}

	receiptQuery := `
		INSERT INTO receipts
		(id, escrow_id, operation, tx_hash, percentage, gross_amount, net_amount,
		 fee_amount, burn_amount, signer, anchored, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if _, err := tx.ExecContext(ctx, receiptQuery,
		receipt.ID, receipt.EscrowID, string(receipt.Operation), receipt.TxHash,
		receipt.Percentage, receipt.GrossAmount, receipt.NetAmount,
		receipt.FeeAmount, receipt.BurnAmount, receipt.Signer,
		receipt.Anchored, receipt.CreatedAt); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save receipt", err.Error())
	}

	entryQuery := `
		INSERT INTO ledger_entries (id, escrow_id, account, direction, amount, receipt_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, entryQuery,
			entry.ID, entry.EscrowID, string(entry.Account), string(entry.Direction),
			entry.Amount, entry.ReceiptID, entry.CreatedAt); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save ledger entry", err.Error())
		}
	}

	if err := tx.Commit(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to commit settlement", err.Error())
	}

	p.logger.WithFields(logrus.Fields{
		"escrow_id": escrow.ID,
		"operation": receipt.Operation,
		"entries":   len(entries),
	}).Debug("Settlement committed")
	return nil
}

// GetReceipt retrieves a receipt by ID
func (p *PostgreSQLStorage) GetReceipt(ctx context.Context, id string) (*models.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE id = $1`

	receipt, err := scanReceipt(p.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get receipt", err.Error())
	}

	return receipt, nil
}

// GetReceiptByTxHash retrieves a receipt by transaction hash
func (p *PostgreSQLStorage) GetReceiptByTxHash(ctx context.Context, txHash string) (*models.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE tx_hash = $1`

	receipt, err := scanReceipt(p.db.QueryRowContext(ctx, query, txHash))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get receipt by tx hash", err.Error())
	}

	return receipt, nil
}

// GetReceipts retrieves all receipts for an escrow
func (p *PostgreSQLStorage) GetReceipts(ctx context.Context, escrowID uint64) ([]*models.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE escrow_id = $1 ORDER BY created_at ASC`

	rows, err := p.db.QueryContext(ctx, query, escrowID)
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
func (p *PostgreSQLStorage) GetLedgerEntries(ctx context.Context, escrowID uint64) ([]*models.LedgerEntry, error) {
	query := `
		SELECT id, escrow_id, account, direction, amount, receipt_id, created_at
		FROM ledger_entries WHERE escrow_id = $1 ORDER BY created_at ASC
	`

	rows, err := p.db.QueryContext(ctx, query, escrowID)
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

// GetVaultBalance returns the vault balance for an escrow
func (p *PostgreSQLStorage) GetVaultBalance(ctx context.Context, escrowID uint64) (uint64, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN direction = 'credit' THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN direction = 'debit' THEN amount ELSE 0 END), 0)
		FROM ledger_entries WHERE escrow_id = $1 AND account = 'vault'
	`

	var credits, debits uint64
	err := p.db.QueryRowContext(ctx, query, escrowID).Scan(&credits, &debits)
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
func (p *PostgreSQLStorage) SaveNotification(ctx context.Context, notification *models.Notification) error {
	dataJSON, err := json.Marshal(notification.Data)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal notification data", err.Error())
	}

	query := `
		INSERT INTO notifications
		(id, type, escrow_id, kind, title, message, data, target, status, attempts, created_at, sent_at, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT(id) DO UPDATE SET
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			sent_at = EXCLUDED.sent_at,
			error = EXCLUDED.error
	`

	_, err = p.db.ExecContext(ctx, query,
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
func (p *PostgreSQLStorage) GetPendingNotifications(ctx context.Context, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, type, escrow_id, kind, title, message, data, target, status, attempts, created_at, sent_at, error
		FROM notifications WHERE status = 'pending' ORDER BY created_at ASC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
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
func (p *PostgreSQLStorage) UpdateNotificationStatus(ctx context.Context, id string, status string, sendError *string) error {
	query := `
		UPDATE notifications SET status = $1, attempts = attempts + 1, sent_at = $2, error = $3
		WHERE id = $4
	`

	var sentAt *time.Time
	if status == "sent" {
		now := time.Now()
		sentAt = &now
	}

	result, err := p.db.ExecContext(ctx, query, status, sentAt, sendError, id)
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
func (p *PostgreSQLStorage) GetStorageStats() (*StorageStats, error) {
	stats := &StorageStats{
		EscrowsByStatus: make(map[string]int64),
	}

	if err := p.db.QueryRow("SELECT COUNT(*) FROM escrows").Scan(&stats.TotalEscrows); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count escrows", err.Error())
	}
	if err := p.db.QueryRow("SELECT COUNT(*) FROM receipts").Scan(&stats.TotalReceipts); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count receipts", err.Error())
	}
	if err := p.db.QueryRow("SELECT COUNT(*) FROM ledger_entries").Scan(&stats.TotalLedgerEntries); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count ledger entries", err.Error())
	}
	if err := p.db.QueryRow("SELECT COUNT(*) FROM notifications").Scan(&stats.TotalNotifications); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count notifications", err.Error())
	}

	rows, err := p.db.Query("SELECT status, COUNT(*) FROM escrows GROUP BY status")
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
	if err := p.db.QueryRow(balanceQuery).Scan(&totalBalance); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to sum vault balances", err.Error())
	}
	if totalBalance > 0 {
		stats.TotalVaultBalance = uint64(totalBalance)
	}

	var oldest, latest sql.NullTime
	if err := p.db.QueryRow("SELECT MIN(created_at), MAX(created_at) FROM escrows").Scan(&oldest, &latest); err == nil {
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
// window
func (p *PostgreSQLStorage) Cleanup(ctx context.Context, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin cleanup transaction", err.Error())
	}
	defer tx.Rollback()

	const closedFilter = `
		SELECT id FROM escrows
		WHERE status IN ('released', 'cancelled') AND closed_at < $1
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
		"DELETE FROM escrows WHERE status IN ('released', 'cancelled') AND closed_at < $1", cutoff); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to clean escrows", err.Error())
	}

	if err := tx.Commit(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to commit cleanup", err.Error())
	}

	p.logger.WithField("cutoff", cutoff).Info("Storage cleanup completed")
	return nil
}

// GetHealth reports storage backend health
func (p *PostgreSQLStorage) GetHealth() *StorageHealth {
	return &StorageHealth{
		StorageType: "postgres",
		Healthy:     p.Ping() == nil,
		Details:     map[string]string{},
		LastPing:    time.Now(),
	}
}
