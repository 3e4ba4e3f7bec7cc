// File: internal/anchor/rpc.go
package anchor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/escrowd/internal/config"
	"github.com/smartdevs17/escrowd/pkg/utils"
)

// RPCAnchor stamps settlement receipts against a live EVM-compatible node:
// the receipt digest is bound to the node's network ID and chain head at
// submission time. Connection handling follows primary/backup failover with
// bounded retries.
type RPCAnchor struct {
	config          *config.ChainConfig
	primaryURL      string
	backupURLs      []string
	currentIndex    int
	client          *ethclient.Client
	mu              sync.RWMutex
	logger          *logrus.Logger
	stats           AnchorStats
	lastHealthCheck time.Time
	isHealthy       bool
	nonce           uint64
}

// NewRPCAnchor creates a new RPC anchor
func NewRPCAnchor(cfg *config.ChainConfig) *RPCAnchor {
	return &RPCAnchor{
		config:     cfg,
		primaryURL: cfg.NodeURL,
		backupURLs: cfg.BackupNodes,
		logger:     utils.GetLogger(),
		stats: AnchorStats{
			Mode:       "rpc",
			CurrentURL: cfg.NodeURL,
		},
	}
}

// Submit anchors a settlement against the configured node
func (a *RPCAnchor) Submit(ctx context.Context, sub *Submission) (*Receipt, error) {
	client, err := a.getClient(ctx)
	if err != nil {
		a.recordFailure()
		return nil, err
	}

	networkID, err := client.NetworkID(ctx)
	if err != nil {
		a.recordFailure()
		return nil, utils.NewAppError(utils.ErrCodeAnchor, "Failed to get network ID", err.Error())
	}

	blockNumber, err := client.BlockNumber(ctx)
	if err != nil {
		a.recordFailure()
		return nil, utils.NewAppError(utils.ErrCodeAnchor, "Failed to get chain head", err.Error())
	}

	a.mu.Lock()
	a.nonce++
	nonce := a.nonce
	a.stats.TotalSubmissions++
	a.stats.NetworkID = networkID.Uint64()
	a.stats.LatestBlock = blockNumber
	a.stats.LastSubmissionAt = time.Now()
	a.mu.Unlock()

	// The chain head folds into the nonce so receipts submitted at different
	// heights never collide.
	txHash := utils.SettlementDigest(sub.EscrowID, sub.Operation, sub.Signer,
		sub.GrossAmount, sub.NetAmount, sub.FeeAmount, nonce^blockNumber)

	a.logger.WithFields(logrus.Fields{
		"escrow_id":  sub.EscrowID,
		"operation":  sub.Operation,
		"tx_hash":    txHash,
		"network_id": networkID.Uint64(),
		"block":      blockNumber,
	}).Info("Settlement anchored")

	return &Receipt{
		TxHash:      txHash,
		BlockNumber: blockNumber,
		NetworkID:   networkID.Uint64(),
		AnchoredAt:  time.Now(),
	}, nil
}

// getClient returns the current client, connecting or reconnecting as needed
func (a *RPCAnchor) getClient(ctx context.Context) (*ethclient.Client, error) {
	a.mu.RLock()
	client := a.client
	lastCheck := a.lastHealthCheck
	a.mu.RUnlock()

	if client == nil {
		return a.connect(ctx)
	}

	// Revalidate a stale client before using it
	if time.Since(lastCheck) > time.Minute {
		if err := a.quickHealthCheck(ctx, client); err != nil {
			a.logger.WithError(err).Warn("Anchor client health check failed, reconnecting")
			return a.reconnect(ctx)
		}
		a.mu.Lock()
		a.lastHealthCheck = time.Now()
		a.mu.Unlock()
	}

	return client, nil
}

// connect establishes a new connection
func (a *RPCAnchor) connect(ctx context.Context) (*ethclient.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	urls := a.getAllURLs()

	for attempt := 0; attempt < a.config.RetryAttempts; attempt++ {
		for i, url := range urls {
			a.logger.WithFields(logrus.Fields{"url": url, "attempt": attempt + 1}).Info("Attempting anchor connection")

			client, err := a.dialWithTimeout(ctx, url)
			if err != nil {
				a.logger.WithFields(logrus.Fields{"url": url, "error": err}).Warn("Anchor connection failed")
				a.stats.FailedSubmissions++
				continue
			}

			if err := a.quickHealthCheck(ctx, client); err != nil {
				client.Close()
				a.logger.WithFields(logrus.Fields{"url": url, "error": err}).Warn("Health check failed after connection")
				continue
			}

			a.client = client
			a.currentIndex = i
			a.stats.CurrentURL = url
			a.isHealthy = true
			a.lastHealthCheck = time.Now()

			a.logger.WithField("url", url).Info("Connected to anchor node")
			return client, nil
		}

		if attempt < a.config.RetryAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(a.config.RetryDelay):
			}
		}
	}

	return nil, utils.NewAppError(utils.ErrCodeConnection, "Failed to connect to any anchor node",
		"All connection attempts exhausted")
}

// reconnect drops the current client and connects again
func (a *RPCAnchor) reconnect(ctx context.Context) (*ethclient.Client, error) {
	a.mu.Lock()
	if a.client != nil {
		a.client.Close()
		a.client = nil
	}
	a.mu.Unlock()

	return a.connect(ctx)
}

// dialWithTimeout creates a connection with timeout
func (a *RPCAnchor) dialWithTimeout(ctx context.Context, url string) (*ethclient.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, a.config.RequestTimeout)
	defer cancel()

	return ethclient.DialContext(dialCtx, url)
}

// quickHealthCheck performs a quick health check
func (a *RPCAnchor) quickHealthCheck(ctx context.Context, client *ethclient.Client) error {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := client.NetworkID(checkCtx)
	return err
}

// HealthCheck performs a comprehensive health check
func (a *RPCAnchor) HealthCheck(ctx context.Context) error {
	client, err := a.getClient(ctx)
	if err != nil {
		a.setHealthy(false)
		return err
	}

	networkID, err := client.NetworkID(ctx)
	if err != nil {
		a.setHealthy(false)
		return utils.NewAppError(utils.ErrCodeConnection, "Failed to get network ID", err.Error())
	}

	if a.config.NetworkID > 0 && networkID.Uint64() != uint64(a.config.NetworkID) {
		a.setHealthy(false)
		return utils.NewAppError(utils.ErrCodeConnection, "Network ID mismatch",
			fmt.Sprintf("expected %d, got %d", a.config.NetworkID, networkID.Uint64()))
	}

	blockNumber, err := client.BlockNumber(ctx)
	if err != nil {
		a.setHealthy(false)
		return utils.NewAppError(utils.ErrCodeConnection, "Failed to get latest block", err.Error())
	}

	a.mu.Lock()
	a.stats.NetworkID = networkID.Uint64()
	a.stats.LatestBlock = blockNumber
	a.stats.LastHealthCheck = time.Now()
	a.stats.IsHealthy = true
	a.lastHealthCheck = time.Now()
	a.isHealthy = true
	a.mu.Unlock()

	return nil
}

func (a *RPCAnchor) setHealthy(healthy bool) {
	a.mu.Lock()
	a.isHealthy = healthy
	a.stats.IsHealthy = healthy
	a.mu.Unlock()
}

func (a *RPCAnchor) recordFailure() {
	a.mu.Lock()
	a.stats.FailedSubmissions++
	a.mu.Unlock()
}

// IsHealthy reports whether the anchor is connected and healthy
func (a *RPCAnchor) IsHealthy() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.client != nil && a.isHealthy
}

// Close closes the connection
func (a *RPCAnchor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		a.client.Close()
		a.client = nil
	}

	a.isHealthy = false
	a.logger.Info("Anchor connection closed")
	return nil
}

// Stats returns anchor statistics
func (a *RPCAnchor) Stats() AnchorStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}

// getAllURLs returns all available URLs starting from current index
func (a *RPCAnchor) getAllURLs() []string {
	urls := []string{a.primaryURL}
	urls = append(urls, a.backupURLs...)

	if a.currentIndex > 0 && a.currentIndex < len(urls) {
		rotated := make([]string, len(urls))
		copy(rotated, urls[a.currentIndex:])
		copy(rotated[len(urls)-a.currentIndex:], urls[:a.currentIndex])
		return rotated
	}

	return urls
}
