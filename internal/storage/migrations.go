package storage

import (
	"time"
)

// Migration represents a database migration
type Migration struct {
	ID          int       `db:"id"`
	Version     string    `db:"version"`
	Description string    `db:"description"`
	SQL         string    `db:"sql"`
	AppliedAt   time.Time `db:"applied_at"`
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create escrows table",
			SQL: `
				CREATE TABLE IF NOT EXISTS escrows (
					id INTEGER PRIMARY KEY,
					initiator TEXT NOT NULL,
					recipient TEXT NOT NULL,
					arbiter TEXT NOT NULL,
					amount INTEGER NOT NULL,
					released_amount INTEGER NOT NULL DEFAULT 0,
					deal_type TEXT NOT NULL,
					token_address TEXT,
					decimals INTEGER NOT NULL DEFAULT 18,
					status TEXT NOT NULL,
					fee_wallet TEXT NOT NULL,
					burn_address TEXT NOT NULL,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL,
					funded_at DATETIME,
					closed_at DATETIME
				);

				CREATE INDEX IF NOT EXISTS idx_escrows_status ON escrows(status);
				CREATE INDEX IF NOT EXISTS idx_escrows_initiator ON escrows(initiator);
				CREATE INDEX IF NOT EXISTS idx_escrows_recipient ON escrows(recipient);
				CREATE INDEX IF NOT EXISTS idx_escrows_created_at ON escrows(created_at);
			`,
		},
		{
			Version:     "002",
			Description: "Create receipts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS receipts (
					id TEXT PRIMARY KEY,
					escrow_id INTEGER NOT NULL,
					operation TEXT NOT NULL,
					tx_hash TEXT NOT NULL,
					percentage INTEGER NOT NULL DEFAULT 0,
					gross_amount INTEGER NOT NULL DEFAULT 0,
					net_amount INTEGER NOT NULL DEFAULT 0,
					fee_amount INTEGER NOT NULL DEFAULT 0,
					burn_amount INTEGER NOT NULL DEFAULT 0,
					signer TEXT NOT NULL,
					anchored BOOLEAN DEFAULT TRUE,
					created_at DATETIME NOT NULL,
					FOREIGN KEY (escrow_id) REFERENCES escrows (id)
				);

				CREATE INDEX IF NOT EXISTS idx_receipts_escrow_id ON receipts(escrow_id);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_receipts_tx_hash ON receipts(tx_hash);
				CREATE INDEX IF NOT EXISTS idx_receipts_operation ON receipts(operation);
			`,
		},
		{
			Version:     "003",
			Description: "Create ledger_entries table",
			SQL: `
				CREATE TABLE IF NOT EXISTS ledger_entries (
					id TEXT PRIMARY KEY,
					escrow_id INTEGER NOT NULL,
					account TEXT NOT NULL,
					direction TEXT NOT NULL,
					amount INTEGER NOT NULL,
					receipt_id TEXT NOT NULL,
					created_at DATETIME NOT NULL,
					FOREIGN KEY (escrow_id) REFERENCES escrows (id),
					FOREIGN KEY (receipt_id) REFERENCES receipts (id)
				);

				CREATE INDEX IF NOT EXISTS idx_ledger_escrow_id ON ledger_entries(escrow_id);
				CREATE INDEX IF NOT EXISTS idx_ledger_account ON ledger_entries(account);
				CREATE INDEX IF NOT EXISTS idx_ledger_receipt_id ON ledger_entries(receipt_id);
			`,
		},
		{
			Version:     "004",
			Description: "Create notifications table",
			SQL: `
				CREATE TABLE IF NOT EXISTS notifications (
					id TEXT PRIMARY KEY,
					type TEXT NOT NULL,
					escrow_id INTEGER NOT NULL,
					kind TEXT NOT NULL,
					title TEXT NOT NULL,
					message TEXT NOT NULL,
					data TEXT, -- JSON
					target TEXT NOT NULL,
					status TEXT DEFAULT 'pending',
					attempts INTEGER DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					sent_at DATETIME,
					error TEXT
				);

				CREATE INDEX IF NOT EXISTS idx_notifications_status ON notifications(status);
				CREATE INDEX IF NOT EXISTS idx_notifications_escrow_id ON notifications(escrow_id);
				CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications(created_at);
			`,
		},
		{
			Version:     "005",
			Description: "Create system_state table",
			SQL: `
				CREATE TABLE IF NOT EXISTS system_state (
					key TEXT PRIMARY KEY,
					value TEXT NOT NULL,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
		{
			Version:     "006",
			Description: "Create migrations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS migrations (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					version TEXT NOT NULL UNIQUE,
					description TEXT NOT NULL,
					applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create escrows table",
			SQL: `
				CREATE TABLE IF NOT EXISTS escrows (
					id BIGINT PRIMARY KEY,
					initiator TEXT NOT NULL,
					recipient TEXT NOT NULL,
					arbiter TEXT NOT NULL,
					amount BIGINT NOT NULL,
					released_amount BIGINT NOT NULL DEFAULT 0,
					deal_type TEXT NOT NULL,
					token_address TEXT,
					decimals INTEGER NOT NULL DEFAULT 18,
					status TEXT NOT NULL,
					fee_wallet TEXT NOT NULL,
					burn_address TEXT NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL,
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
					funded_at TIMESTAMP WITH TIME ZONE,
					closed_at TIMESTAMP WITH TIME ZONE
				);

				CREATE INDEX IF NOT EXISTS idx_escrows_status ON escrows(status);
				CREATE INDEX IF NOT EXISTS idx_escrows_initiator ON escrows(initiator);
				CREATE INDEX IF NOT EXISTS idx_escrows_recipient ON escrows(recipient);
				CREATE INDEX IF NOT EXISTS idx_escrows_created_at ON escrows(created_at);
			`,
		},
		{
			Version:     "002",
			Description: "Create receipts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS receipts (
					id TEXT PRIMARY KEY,
					escrow_id BIGINT NOT NULL,
					operation TEXT NOT NULL,
					tx_hash TEXT NOT NULL,
					percentage INTEGER NOT NULL DEFAULT 0,
					gross_amount BIGINT NOT NULL DEFAULT 0,
					net_amount BIGINT NOT NULL DEFAULT 0,
					fee_amount BIGINT NOT NULL DEFAULT 0,
					burn_amount BIGINT NOT NULL DEFAULT 0,
					signer TEXT NOT NULL,
					anchored BOOLEAN DEFAULT TRUE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL,
					CONSTRAINT fk_receipts_escrow FOREIGN KEY (escrow_id) REFERENCES escrows (id)
				);

				CREATE INDEX IF NOT EXISTS idx_receipts_escrow_id ON receipts(escrow_id);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_receipts_tx_hash ON receipts(tx_hash);
				CREATE INDEX IF NOT EXISTS idx_receipts_operation ON receipts(operation);
			`,
		},
		{
			Version:     "003",
			Description: "Create ledger_entries table",
			SQL: `
				CREATE TABLE IF NOT EXISTS ledger_entries (
					id TEXT PRIMARY KEY,
					escrow_id BIGINT NOT NULL,
					account TEXT NOT NULL,
					direction TEXT NOT NULL,
					amount BIGINT NOT NULL,
					receipt_id TEXT NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL,
					CONSTRAINT fk_ledger_escrow FOREIGN KEY (escrow_id) REFERENCES escrows (id),
					CONSTRAINT fk_ledger_receipt FOREIGN KEY (receipt_id) REFERENCES receipts (id)
				);

				CREATE INDEX IF NOT EXISTS idx_ledger_escrow_id ON ledger_entries(escrow_id);
				CREATE INDEX IF NOT EXISTS idx_ledger_account ON ledger_entries(account);
				CREATE INDEX IF NOT EXISTS idx_ledger_receipt_id ON ledger_entries(receipt_id);
			`,
		},
		{
			Version:     "004",
			Description: "Create notifications table",
			SQL: `
				CREATE TABLE IF NOT EXISTS notifications (
					id TEXT PRIMARY KEY,
					type TEXT NOT NULL,
					escrow_id BIGINT NOT NULL,
					kind TEXT NOT NULL,
					title TEXT NOT NULL,
					message TEXT NOT NULL,
					data JSONB,
					target TEXT NOT NULL,
					status TEXT DEFAULT 'pending',
					attempts INTEGER DEFAULT 0,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					sent_at TIMESTAMP WITH TIME ZONE,
					error TEXT
				);

				CREATE INDEX IF NOT EXISTS idx_notifications_status ON notifications(status);
				CREATE INDEX IF NOT EXISTS idx_notifications_escrow_id ON notifications(escrow_id);
				CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications(created_at);
			`,
		},
		{
			Version:     "005",
			Description: "Create system_state table",
			SQL: `
				CREATE TABLE IF NOT EXISTS system_state (
					key TEXT PRIMARY KEY,
					value TEXT NOT NULL,
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);
			`,
		},
		{
			Version:     "006",
			Description: "Create migrations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS migrations (
					id SERIAL PRIMARY KEY,
					version TEXT NOT NULL UNIQUE,
					description TEXT NOT NULL,
					applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);
			`,
		},
	}
}
