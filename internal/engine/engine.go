// File: internal/engine/engine.go
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/escrowd/internal/anchor"
	"github.com/smartdevs17/escrowd/internal/config"
	"github.com/smartdevs17/escrowd/internal/metrics"
	"github.com/smartdevs17/escrowd/internal/models"
	"github.com/smartdevs17/escrowd/internal/notification"
	"github.com/smartdevs17/escrowd/internal/storage"
	"github.com/smartdevs17/escrowd/internal/vault"
	"github.com/smartdevs17/escrowd/pkg/utils"
)

// Engine defines the escrow settlement engine interface
type Engine interface {
	// Lifecycle management
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool

	// Settlement operations
	Initialize(ctx context.Context, req *InitializeRequest) (*Settlement, error)
	Release(ctx context.Context, escrowID uint64, signer string, percentage uint8) (*Settlement, error)
	Cancel(ctx context.Context, escrowID uint64, signer string) (*Settlement, error)

	// Queries
	Get(ctx context.Context, escrowID uint64) (*models.Escrow, error)
	List(ctx context.Context, filter models.EscrowFilter) ([]*models.Escrow, int64, error)
	Remaining(ctx context.Context, escrowID uint64) (uint64, error)
	Receipts(ctx context.Context, escrowID uint64) ([]*models.Receipt, error)
	Ledger(ctx context.Context, escrowID uint64) ([]*models.LedgerEntry, error)

	// Statistics and monitoring
	GetStats() *EngineStats
	GetHealth() *EngineHealth
}

// SettlementEngine implements the Engine interface
type SettlementEngine struct {
	// Dependencies
	storage  storage.Storage
	vault    *vault.Vault
	anchor   anchor.Anchor
	notifier notification.Notifier
	metrics  *metrics.Manager
	logger   *logrus.Logger

	// Configuration
	fees *config.FeeConfig

	// State management
	mu       sync.RWMutex
	running  bool
	escrowMu keyedMutex

	// Statistics
	stats   *EngineStats
	statsMu sync.RWMutex
}

// InitializeRequest carries the parameters of escrow creation. The caller
// chooses the escrow ID; duplicates are rejected.
type InitializeRequest struct {
	EscrowID     uint64          `json:"escrow_id"`
	Initiator    string          `json:"initiator"`
	Recipient    string          `json:"recipient"`
	Arbiter      string          `json:"arbiter"`
	Amount       uint64          `json:"amount"`
	DealType     models.DealType `json:"deal_type"`
	TokenAddress string          `json:"token_address,omitempty"`
	Decimals     int32           `json:"decimals"`
}

// Settlement is the result of one state transition: the escrow after the
// transition and the anchored receipt recording it.
type Settlement struct {
	Escrow  *models.Escrow  `json:"escrow"`
	Receipt *models.Receipt `json:"receipt"`
}

// EngineStats tracks engine operation counts
type EngineStats struct {
	EscrowsOpened    int64      `json:"escrows_opened"`
	Releases         int64      `json:"releases"`
	EscrowsReleased  int64      `json:"escrows_released"`
	EscrowsCancelled int64      `json:"escrows_cancelled"`
	FailedOperations int64      `json:"failed_operations"`
	TotalFeesTaken   uint64     `json:"total_fees_taken"`
	TotalBurned      uint64     `json:"total_burned"`
	LastOperation    *time.Time `json:"last_operation,omitempty"`
}

// EngineHealth represents engine health status
type EngineHealth struct {
	Healthy       bool      `json:"healthy"`
	Running       bool      `json:"running"`
	AnchorHealthy bool      `json:"anchor_healthy"`
	LastCheck     time.Time `json:"last_check"`
}

// NewEngine creates a new settlement engine
func NewEngine(store storage.Storage, vlt *vault.Vault, anc anchor.Anchor, notifier notification.Notifier, mgr *metrics.Manager, fees *config.FeeConfig) *SettlementEngine {
	return &SettlementEngine{
		storage:  store,
		vault:    vlt,
		anchor:   anc,
		notifier: notifier,
		metrics:  mgr,
		logger:   utils.GetLogger(),
		fees:     fees,
		stats:    &EngineStats{},
	}
}

// Start starts the settlement engine
func (e *SettlementEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Engine already running", "")
	}

	if err := e.storage.Ping(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Storage not reachable", err.Error())
	}

	e.running = true
	e.logger.WithFields(logrus.Fields{
		"fee_percent": e.fees.FeePercent,
		"fee_wallet":  e.fees.FeeWallet,
	}).Info("Settlement engine started")

	return nil
}

// Stop stops the settlement engine
func (e *SettlementEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}

	e.running = false
	e.logger.Info("Settlement engine stopped")
	return nil
}

// IsRunning returns whether the engine is running
func (e *SettlementEngine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Initialize creates a new escrow and funds its vault in a single
// transition. The escrow leaves this call already funded.
func (e *SettlementEngine) Initialize(ctx context.Context, req *InitializeRequest) (*Settlement, error) {
	start := time.Now()

	if err := e.validateInitialize(req); err != nil {
		e.recordFailure("initialize", start)
		return nil, err
	}

	unlock := e.escrowMu.Lock(req.EscrowID)
	defer unlock()

	existing, err := e.storage.GetEscrow(ctx, req.EscrowID)
	if err != nil {
		e.recordFailure("initialize", start)
		return nil, err
	}
	if existing != nil {
		e.recordFailure("initialize", start)
		return nil, utils.NewAppError(utils.ErrCodeDuplicateEscrow,
			"Escrow already exists", fmt.Sprintf("%d", req.EscrowID))
	}

	now := time.Now()
	escrow := &models.Escrow{
		ID:           req.EscrowID,
		Initiator:    utils.NormalizeAddress(req.Initiator),
		Recipient:    utils.NormalizeAddress(req.Recipient),
		Arbiter:      utils.NormalizeAddress(req.Arbiter),
		Amount:       req.Amount,
		DealType:     req.DealType,
		TokenAddress: utils.NormalizeAddress(req.TokenAddress),
		Decimals:     req.Decimals,
		Status:       models.StatusFunded,
		FeeWallet:    utils.NormalizeAddress(e.fees.FeeWallet),
		BurnAddress:  utils.NormalizeAddress(e.fees.BurnAddress),
		CreatedAt:    now,
		UpdatedAt:    now,
		FundedAt:     &now,
	}

	anchorReceipt, err := e.submitAnchor(ctx, &anchor.Submission{
		EscrowID:    escrow.ID,
		Operation:   string(models.OpInitialize),
		Signer:      escrow.Initiator,
		GrossAmount: escrow.Amount,
		NetAmount:   escrow.Amount,
	})
	if err != nil {
		e.recordFailure("initialize", start)
		return nil, err
	}

	receipt := &models.Receipt{
		ID:          utils.GenerateID(),
		EscrowID:    escrow.ID,
		Operation:   models.OpInitialize,
		TxHash:      anchorReceipt.TxHash,
		GrossAmount: escrow.Amount,
		NetAmount:   escrow.Amount,
		Signer:      escrow.Initiator,
		Anchored:    true,
		CreatedAt:   now,
	}

	entries := e.vault.Deposit(escrow, receipt.ID)

	if err := e.storage.CommitSettlement(ctx, escrow, receipt, entries); err != nil {
		e.recordFailure("initialize", start)
		return nil, err
	}

	e.statsMu.Lock()
	e.stats.EscrowsOpened++
	opAt := time.Now()
	e.stats.LastOperation = &opAt
	e.statsMu.Unlock()

	if e.metrics != nil {
		e.metrics.RecordEscrowOpened(string(escrow.DealType), escrow.Amount)
		e.metrics.RecordEngineOperation("initialize", true, time.Since(start))
	}

	e.notify(ctx, models.NotifyEscrowFunded, escrow, receipt)

	e.logger.WithFields(logrus.Fields{
		"escrow_id": escrow.ID,
		"amount":    escrow.Amount,
		"deal_type": escrow.DealType,
		"tx_hash":   receipt.TxHash,
	}).Info("Escrow initialized and funded")

	return &Settlement{Escrow: escrow, Receipt: receipt}, nil
}

// Release pays out a percentage of the remaining balance to the recipient.
// Only the initiator or the arbiter may sign. A total fee is taken from the
// gross amount, half to the fee wallet and half to the burn account.
func (e *SettlementEngine) Release(ctx context.Context, escrowID uint64, signer string, percentage uint8) (*Settlement, error) {
	start := time.Now()

	if percentage == 0 || percentage > 100 {
		e.recordFailure("release", start)
		return nil, utils.NewAppError(utils.ErrCodeInvalidPercentage,
			"Percentage must be between 1 and 100", fmt.Sprintf("%d", percentage))
	}

	unlock := e.escrowMu.Lock(escrowID)
	defer unlock()

	escrow, err := e.loadFunded(ctx, escrowID, signer, "release")
	if err != nil {
		e.recordFailure("release", start)
		return nil, err
	}

	remaining := escrow.Remaining()
	if remaining == 0 {
		e.recordFailure("release", start)
		return nil, utils.NewAppError(utils.ErrCodeNoFundsToRelease,
			"No funds left to release", fmt.Sprintf("escrow %d", escrowID))
	}

	gross := remaining * uint64(percentage) / 100
	if gross == 0 {
		e.recordFailure("release", start)
		return nil, utils.NewAppError(utils.ErrCodeNoFundsToRelease,
			"Release amount rounds to zero",
			fmt.Sprintf("remaining %d at %d%%", remaining, percentage))
	}

	fee := gross * uint64(e.fees.FeePercent) / 100
	half := fee / 2
	burn := fee - half
	net := gross - fee

	anchorReceipt, err := e.submitAnchor(ctx, &anchor.Submission{
		EscrowID:    escrow.ID,
		Operation:   string(models.OpRelease),
		Signer:      utils.NormalizeAddress(signer),
		GrossAmount: gross,
		NetAmount:   net,
		FeeAmount:   fee,
	})
	if err != nil {
		e.recordFailure("release", start)
		return nil, err
	}

	now := time.Now()
	receipt := &models.Receipt{
		ID:          utils.GenerateID(),
		EscrowID:    escrow.ID,
		Operation:   models.OpRelease,
		TxHash:      anchorReceipt.TxHash,
		Percentage:  percentage,
		GrossAmount: gross,
		NetAmount:   net,
		FeeAmount:   half,
		BurnAmount:  burn,
		Signer:      utils.NormalizeAddress(signer),
		Anchored:    true,
		CreatedAt:   now,
	}

	entries, err := e.vault.Withdraw(ctx, escrow, vault.Split{
		Gross: gross,
		Net:   net,
		Fee:   half,
		Burn:  burn,
	}, receipt.ID)
	if err != nil {
		e.recordFailure("release", start)
		return nil, err
	}

	escrow.ReleasedAmount += gross
	escrow.UpdatedAt = now
	fullyReleased := escrow.ReleasedAmount >= escrow.Amount
	if fullyReleased {
		escrow.Status = models.StatusReleased
		escrow.ClosedAt = &now
	}

	if err := e.storage.CommitSettlement(ctx, escrow, receipt, entries); err != nil {
		e.recordFailure("release", start)
		return nil, err
	}

	e.statsMu.Lock()
	e.stats.Releases++
	e.stats.TotalFeesTaken += half
	e.stats.TotalBurned += burn
	if fullyReleased {
		e.stats.EscrowsReleased++
	}
	opAt := time.Now()
	e.stats.LastOperation = &opAt
	e.statsMu.Unlock()

	if e.metrics != nil {
		e.metrics.RecordRelease(string(escrow.DealType), percentage, gross, half, burn)
		if fullyReleased {
			e.metrics.RecordEscrowClosed(string(escrow.DealType), string(models.StatusReleased))
		}
		e.metrics.RecordEngineOperation("release", true, time.Since(start))
	}

	kind := models.NotifyPartialRelease
	if fullyReleased {
		kind = models.NotifyEscrowReleased
	}
	e.notify(ctx, kind, escrow, receipt)

	e.logger.WithFields(logrus.Fields{
		"escrow_id":  escrow.ID,
		"percentage": percentage,
		"gross":      gross,
		"net":        net,
		"fee":        fee,
		"status":     escrow.Status,
		"tx_hash":    receipt.TxHash,
	}).Info("Funds released")

	return &Settlement{Escrow: escrow, Receipt: receipt}, nil
}

// Cancel refunds the unreleased balance to the initiator and closes the
// escrow. Only the initiator or the arbiter may sign; only funded escrows
// can be cancelled.
func (e *SettlementEngine) Cancel(ctx context.Context, escrowID uint64, signer string) (*Settlement, error) {
	start := time.Now()

	unlock := e.escrowMu.Lock(escrowID)
	defer unlock()

	escrow, err := e.loadFunded(ctx, escrowID, signer, "cancel")
	if err != nil {
		e.recordFailure("cancel", start)
		return nil, err
	}

	now := time.Now()
	receiptID := utils.GenerateID()

	entries, refund, err := e.vault.Refund(ctx, escrow, receiptID)
	if err != nil {
		e.recordFailure("cancel", start)
		return nil, err
	}

	anchorReceipt, err := e.submitAnchor(ctx, &anchor.Submission{
		EscrowID:    escrow.ID,
		Operation:   string(models.OpCancel),
		Signer:      utils.NormalizeAddress(signer),
		GrossAmount: refund,
		NetAmount:   refund,
	})
	if err != nil {
		e.recordFailure("cancel", start)
		return nil, err
	}

	receipt := &models.Receipt{
		ID:          receiptID,
		EscrowID:    escrow.ID,
		Operation:   models.OpCancel,
		TxHash:      anchorReceipt.TxHash,
		GrossAmount: refund,
		NetAmount:   refund,
		Signer:      utils.NormalizeAddress(signer),
		Anchored:    true,
		CreatedAt:   now,
	}

	escrow.Status = models.StatusCancelled
	escrow.UpdatedAt = now
	escrow.ClosedAt = &now

	if err := e.storage.CommitSettlement(ctx, escrow, receipt, entries); err != nil {
		e.recordFailure("cancel", start)
		return nil, err
	}

	e.statsMu.Lock()
	e.stats.EscrowsCancelled++
	opAt := time.Now()
	e.stats.LastOperation = &opAt
	e.statsMu.Unlock()

	if e.metrics != nil {
		e.metrics.RecordEscrowClosed(string(escrow.DealType), string(models.StatusCancelled))
		e.metrics.RecordEngineOperation("cancel", true, time.Since(start))
	}

	e.notify(ctx, models.NotifyEscrowCancelled, escrow, receipt)

	e.logger.WithFields(logrus.Fields{
		"escrow_id": escrow.ID,
		"refund":    refund,
		"tx_hash":   receipt.TxHash,
	}).Info("Escrow cancelled")

	return &Settlement{Escrow: escrow, Receipt: receipt}, nil
}

// Get retrieves an escrow by ID
func (e *SettlementEngine) Get(ctx context.Context, escrowID uint64) (*models.Escrow, error) {
	escrow, err := e.storage.GetEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if escrow == nil {
		return nil, utils.NewAppError(utils.ErrCodeNotFound,
			"Escrow not found", fmt.Sprintf("%d", escrowID))
	}
	return escrow, nil
}

// List retrieves escrows matching a filter with the total count
func (e *SettlementEngine) List(ctx context.Context, filter models.EscrowFilter) ([]*models.Escrow, int64, error) {
	escrows, err := e.storage.GetEscrows(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	count, err := e.storage.GetEscrowCount(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return escrows, count, nil
}

// Remaining returns the unreleased balance of an escrow
func (e *SettlementEngine) Remaining(ctx context.Context, escrowID uint64) (uint64, error) {
	escrow, err := e.Get(ctx, escrowID)
	if err != nil {
		return 0, err
	}
	return escrow.Remaining(), nil
}

// Receipts returns the settlement receipts of an escrow in order
func (e *SettlementEngine) Receipts(ctx context.Context, escrowID uint64) ([]*models.Receipt, error) {
	if _, err := e.Get(ctx, escrowID); err != nil {
		return nil, err
	}
	return e.storage.GetReceipts(ctx, escrowID)
}

// Ledger returns the ledger entries of an escrow in order
func (e *SettlementEngine) Ledger(ctx context.Context, escrowID uint64) ([]*models.LedgerEntry, error) {
	if _, err := e.Get(ctx, escrowID); err != nil {
		return nil, err
	}
	return e.storage.GetLedgerEntries(ctx, escrowID)
}

// GetStats returns engine statistics
func (e *SettlementEngine) GetStats() *EngineStats {
	e.statsMu.RLock()
	defer e.statsMu.RUnlock()
	stats := *e.stats
	return &stats
}

// GetHealth returns engine health status
func (e *SettlementEngine) GetHealth() *EngineHealth {
	anchorHealthy := e.anchor.IsHealthy()
	running := e.IsRunning()
	return &EngineHealth{
		Healthy:       running && anchorHealthy && e.storage.Ping() == nil,
		Running:       running,
		AnchorHealthy: anchorHealthy,
		LastCheck:     time.Now(),
	}
}

// validateInitialize checks the creation request
func (e *SettlementEngine) validateInitialize(req *InitializeRequest) error {
	if req.EscrowID == 0 {
		return utils.NewAppError(utils.ErrCodeValidation, "Escrow ID is required", "")
	}
	if req.Amount == 0 {
		return utils.NewAppError(utils.ErrCodeValidation, "Amount must be positive", "")
	}
	if !req.DealType.Valid() {
		return utils.NewAppError(utils.ErrCodeValidation, "Invalid deal type", string(req.DealType))
	}
	for name, addr := range map[string]string{
		"initiator": req.Initiator,
		"recipient": req.Recipient,
		"arbiter":   req.Arbiter,
	} {
		if !utils.IsValidAddress(addr) {
			return utils.NewAppError(utils.ErrCodeValidation,
				fmt.Sprintf("Invalid %s address", name), addr)
		}
	}
	if req.DealType == models.DealTypeToken && !utils.IsValidAddress(req.TokenAddress) {
		return utils.NewAppError(utils.ErrCodeValidation,
			"Token address required for token deals", req.TokenAddress)
	}
	if utils.NormalizeAddress(req.Initiator) == utils.NormalizeAddress(req.Recipient) {
		return utils.NewAppError(utils.ErrCodeValidation,
			"Initiator and recipient must differ", "")
	}
	return nil
}

// loadFunded loads an escrow and checks status and signer authorization
func (e *SettlementEngine) loadFunded(ctx context.Context, escrowID uint64, signer, operation string) (*models.Escrow, error) {
	escrow, err := e.storage.GetEscrow(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if escrow == nil {
		return nil, utils.NewAppError(utils.ErrCodeNotFound,
			"Escrow not found", fmt.Sprintf("%d", escrowID))
	}
	if escrow.Status != models.StatusFunded {
		return nil, utils.NewAppError(utils.ErrCodeInvalidStatus,
			fmt.Sprintf("Escrow must be funded to %s", operation), string(escrow.Status))
	}

	if !escrow.IsParty(utils.NormalizeAddress(signer)) {
		return nil, utils.NewAppError(utils.ErrCodeUnauthorized,
			"Signer is not the initiator or arbiter", signer)
	}

	return escrow, nil
}

func (e *SettlementEngine) submitAnchor(ctx context.Context, sub *anchor.Submission) (*anchor.Receipt, error) {
	start := time.Now()
	receipt, err := e.anchor.Submit(ctx, sub)
	if e.metrics != nil {
		e.metrics.RecordAnchorSubmission(err == nil, time.Since(start))
	}
	return receipt, err
}

func (e *SettlementEngine) notify(ctx context.Context, kind string, escrow *models.Escrow, receipt *models.Receipt) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.NotifySettlement(ctx, kind, escrow, receipt); err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"escrow_id": escrow.ID,
			"kind":      kind,
		}).Warn("Failed to queue notification")
	}
}

func (e *SettlementEngine) recordFailure(operation string, start time.Time) {
	e.statsMu.Lock()
	e.stats.FailedOperations++
	e.statsMu.Unlock()
	if e.metrics != nil {
		e.metrics.RecordEngineOperation(operation, false, time.Since(start))
	}
}

// keyedMutex serializes settlements per escrow ID
type keyedMutex struct {
	locks sync.Map
}

func (k *keyedMutex) Lock(id uint64) func() {
	value, _ := k.locks.LoadOrStore(id, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
