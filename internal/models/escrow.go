package models

import (
	"time"
)

// DealType identifies the asset an escrow settles in
type DealType string

const (
	DealTypeNative DealType = "native"
	DealTypeToken  DealType = "token"
)

// Valid reports whether the deal type is one of the supported values
func (d DealType) Valid() bool {
	return d == DealTypeNative || d == DealTypeToken
}

// EscrowStatus is the lifecycle state of an escrow
type EscrowStatus string

const (
	// StatusInitialized is transient: an escrow is funded in the same
	// operation that creates it, so persisted rows never carry it.
	StatusInitialized EscrowStatus = "initialized"
	StatusFunded      EscrowStatus = "funded"
	StatusReleased    EscrowStatus = "released"
	StatusCancelled   EscrowStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions
func (s EscrowStatus) Terminal() bool {
	return s == StatusReleased || s == StatusCancelled
}

// Escrow represents a one-way escrow payment
type Escrow struct {
	ID             uint64       `json:"id" db:"id"`
	Initiator      string       `json:"initiator" db:"initiator"`
	Recipient      string       `json:"recipient" db:"recipient"`
	Arbiter        string       `json:"arbiter" db:"arbiter"`
	Amount         uint64       `json:"amount" db:"amount"`
	ReleasedAmount uint64       `json:"released_amount" db:"released_amount"`
	DealType       DealType     `json:"deal_type" db:"deal_type"`
	TokenAddress   string       `json:"token_address,omitempty" db:"token_address"`
	Decimals       int32        `json:"decimals" db:"decimals"`
	Status         EscrowStatus `json:"status" db:"status"`
	FeeWallet      string       `json:"fee_wallet" db:"fee_wallet"`
	BurnAddress    string       `json:"burn_address" db:"burn_address"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`
	FundedAt       *time.Time   `json:"funded_at,omitempty" db:"funded_at"`
	ClosedAt       *time.Time   `json:"closed_at,omitempty" db:"closed_at"`
}

// Remaining returns the unreleased portion of the escrow amount
func (e *Escrow) Remaining() uint64 {
	if e.ReleasedAmount >= e.Amount {
		return 0
	}
	return e.Amount - e.ReleasedAmount
}

// IsParty reports whether addr is the initiator or the arbiter; only those
// two may release or cancel.
func (e *Escrow) IsParty(addr string) bool {
	return addr == e.Initiator || addr == e.Arbiter
}

// EscrowFilter for querying escrows
type EscrowFilter struct {
	Status      *EscrowStatus `json:"status,omitempty"`
	DealType    *DealType     `json:"deal_type,omitempty"`
	Participant *string       `json:"participant,omitempty"`
	FromTime    *time.Time    `json:"from_time,omitempty"`
	ToTime      *time.Time    `json:"to_time,omitempty"`
	Limit       int           `json:"limit,omitempty"`
	Offset      int           `json:"offset,omitempty"`
}
