package models

import (
	"time"
)

// LedgerAccount names a party in the escrow flow of funds
type LedgerAccount string

const (
	AccountVault     LedgerAccount = "vault"
	AccountInitiator LedgerAccount = "initiator"
	AccountRecipient LedgerAccount = "recipient"
	AccountFeeWallet LedgerAccount = "fee_wallet"
	AccountBurn      LedgerAccount = "burn"
)

// EntryDirection is the side of a ledger entry
type EntryDirection string

const (
	DirectionCredit EntryDirection = "credit"
	DirectionDebit  EntryDirection = "debit"
)

// LedgerEntry records one movement of funds. Entries are written in balanced
// pairs inside the same storage transaction as the escrow mutation they
// belong to.
type LedgerEntry struct {
	ID        string         `json:"id" db:"id"`
	EscrowID  uint64         `json:"escrow_id" db:"escrow_id"`
	Account   LedgerAccount  `json:"account" db:"account"`
	Direction EntryDirection `json:"direction" db:"direction"`
	Amount    uint64         `json:"amount" db:"amount"`
	ReceiptID string         `json:"receipt_id" db:"receipt_id"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}
