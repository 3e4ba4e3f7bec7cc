// File: internal/anchor/anchor.go
package anchor

import (
	"context"
	"time"

	"github.com/smartdevs17/escrowd/internal/config"
	"github.com/smartdevs17/escrowd/pkg/utils"
)

// Submission describes one escrow transition to be anchored
type Submission struct {
	EscrowID    uint64
	Operation   string
	Signer      string
	GrossAmount uint64
	NetAmount   uint64
	FeeAmount   uint64
}

// Receipt is the anchor's acknowledgement of a submission. TxHash is the
// opaque transaction identifier; it is non-empty on success.
type Receipt struct {
	TxHash      string    `json:"tx_hash"`
	BlockNumber uint64    `json:"block_number,omitempty"`
	NetworkID   uint64    `json:"network_id,omitempty"`
	AnchoredAt  time.Time `json:"anchored_at"`
}

// Anchor records settlement receipts against an execution environment
type Anchor interface {
	// Submit anchors a settlement and returns its receipt. The call blocks
	// until the anchor acknowledges or ctx is done; failures propagate to
	// the caller.
	Submit(ctx context.Context, sub *Submission) (*Receipt, error)

	HealthCheck(ctx context.Context) error
	IsHealthy() bool
	Close() error
	Stats() AnchorStats
}

// AnchorStats holds anchor statistics
type AnchorStats struct {
	Mode             string    `json:"mode"`
	TotalSubmissions uint64    `json:"total_submissions"`
	FailedSubmissions uint64   `json:"failed_submissions"`
	CurrentURL       string    `json:"current_url,omitempty"`
	NetworkID        uint64    `json:"network_id,omitempty"`
	LatestBlock      uint64    `json:"latest_block,omitempty"`
	LastSubmissionAt time.Time `json:"last_submission_at"`
	LastHealthCheck  time.Time `json:"last_health_check"`
	IsHealthy        bool      `json:"is_healthy"`
}

// New creates an anchor for the configured mode
func New(cfg *config.ChainConfig) (Anchor, error) {
	switch cfg.Mode {
	case "local", "":
		return NewLocalAnchor(), nil
	case "rpc":
		return NewRPCAnchor(cfg), nil
	default:
		return nil, utils.NewAppError(utils.ErrCodeConfiguration,
			"Unknown anchor mode", cfg.Mode)
	}
}
