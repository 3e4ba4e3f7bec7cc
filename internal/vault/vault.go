// File: internal/vault/vault.go
package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/escrowd/internal/models"
	"github.com/smartdevs17/escrowd/internal/storage"
	"github.com/smartdevs17/escrowd/pkg/utils"
)

// Vault tracks per-escrow balances through double-entry ledger rows. Every
// movement of funds is expressed as a balanced set of entries committed in
// the same storage transaction as the escrow mutation.
type Vault struct {
	storage storage.Storage
	logger  *logrus.Logger
}

// Split carries the amounts of one release, already divided between the
// recipient, the fee wallet and the burn account.
type Split struct {
	Gross uint64
	Net   uint64
	Fee   uint64
	Burn  uint64
}

// New creates a new vault backed by the given storage
func New(store storage.Storage) *Vault {
	return &Vault{
		storage: store,
		logger:  utils.GetLogger(),
	}
}

// Balance returns the current vault balance of an escrow
func (v *Vault) Balance(ctx context.Context, escrowID uint64) (uint64, error) {
	return v.storage.GetVaultBalance(ctx, escrowID)
}

// Deposit builds the entries funding an escrow vault: the full amount moves
// from the initiator into the vault.
func (v *Vault) Deposit(escrow *models.Escrow, receiptID string) []*models.LedgerEntry {
	now := time.Now()
	return []*models.LedgerEntry{
		newEntry(escrow.ID, models.AccountInitiator, models.DirectionDebit, escrow.Amount, receiptID, now),
		newEntry(escrow.ID, models.AccountVault, models.DirectionCredit, escrow.Amount, receiptID, now),
	}
}

// Withdraw builds the entries of one release: the gross amount leaves the
// vault, the net goes to the recipient and the fee halves go to the fee
// wallet and the burn account. Overdrafts are rejected.
func (v *Vault) Withdraw(ctx context.Context, escrow *models.Escrow, split Split, receiptID string) ([]*models.LedgerEntry, error) {
	balance, err := v.storage.GetVaultBalance(ctx, escrow.ID)
	if err != nil {
		return nil, err
	}
	if split.Gross > balance {
		return nil, utils.NewAppError(utils.ErrCodeInsufficientFunds,
			"Vault balance too low for release",
			fmt.Sprintf("escrow %d: balance %d, requested %d", escrow.ID, balance, split.Gross))
	}
	if split.Net+split.Fee+split.Burn != split.Gross {
		return nil, utils.NewAppError(utils.ErrCodeInternal,
			"Release split does not balance",
			fmt.Sprintf("gross %d != net %d + fee %d + burn %d", split.Gross, split.Net, split.Fee, split.Burn))
	}

	now := time.Now()
	entries := []*models.LedgerEntry{
		newEntry(escrow.ID, models.AccountVault, models.DirectionDebit, split.Gross, receiptID, now),
		newEntry(escrow.ID, models.AccountRecipient, models.DirectionCredit, split.Net, receiptID, now),
	}
	if split.Fee > 0 {
		entries = append(entries,
			newEntry(escrow.ID, models.AccountFeeWallet, models.DirectionCredit, split.Fee, receiptID, now))
	}
	if split.Burn > 0 {
		entries = append(entries,
			newEntry(escrow.ID, models.AccountBurn, models.DirectionCredit, split.Burn, receiptID, now))
	}

	return entries, nil
}

// Refund builds the entries returning the unreleased balance to the
// initiator on cancellation
func (v *Vault) Refund(ctx context.Context, escrow *models.Escrow, receiptID string) ([]*models.LedgerEntry, uint64, error) {
	balance, err := v.storage.GetVaultBalance(ctx, escrow.ID)
	if err != nil {
		return nil, 0, err
	}
	if balance == 0 {
		return nil, 0, nil
	}

	now := time.Now()
	entries := []*models.LedgerEntry{
		newEntry(escrow.ID, models.AccountVault, models.DirectionDebit, balance, receiptID, now),
		newEntry(escrow.ID, models.AccountInitiator, models.DirectionCredit, balance, receiptID, now),
	}
	return entries, balance, nil
}

func newEntry(escrowID uint64, account models.LedgerAccount, direction models.EntryDirection, amount uint64, receiptID string, at time.Time) *models.LedgerEntry {
	return &models.LedgerEntry{
		ID:        utils.GenerateID(),
		EscrowID:  escrowID,
		Account:   account,
		Direction: direction,
		Amount:    amount,
		ReceiptID: receiptID,
		CreatedAt: at,
	}
}
