package models

import (
	"time"
)

// Operation names the escrow transition a receipt settles
type Operation string

const (
	OpInitialize Operation = "initialize"
	OpRelease    Operation = "release"
	OpCancel     Operation = "cancel"
)

// Receipt is the settlement record of one escrow state transition. TxHash is
// the transaction identifier returned by the anchor and is never empty for a
// committed transition.
type Receipt struct {
	ID          string    `json:"id" db:"id"`
	EscrowID    uint64    `json:"escrow_id" db:"escrow_id"`
	Operation   Operation `json:"operation" db:"operation"`
	TxHash      string    `json:"tx_hash" db:"tx_hash"`
	Percentage  uint8     `json:"percentage,omitempty" db:"percentage"`
	GrossAmount uint64    `json:"gross_amount" db:"gross_amount"`
	NetAmount   uint64    `json:"net_amount" db:"net_amount"`
	FeeAmount   uint64    `json:"fee_amount" db:"fee_amount"`
	BurnAmount  uint64    `json:"burn_amount" db:"burn_amount"`
	Signer      string    `json:"signer" db:"signer"`
	Anchored    bool      `json:"anchored" db:"anchored"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
