// File: internal/notification/notification.go
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/escrowd/internal/config"
	"github.com/smartdevs17/escrowd/internal/metrics"
	"github.com/smartdevs17/escrowd/internal/models"
	"github.com/smartdevs17/escrowd/internal/storage"
	"github.com/smartdevs17/escrowd/pkg/utils"
)

// Notifier defines the notification interface
type Notifier interface {
	// Lifecycle management
	Start(ctx context.Context) error
	Stop() error
	IsHealthy() bool

	// Settlement notifications
	NotifySettlement(ctx context.Context, kind string, escrow *models.Escrow, receipt *models.Receipt) error

	// Channel management
	GetChannels() []*models.NotificationChannel

	// Statistics
	GetStats() *NotificationStats
}

// NotificationManager implements the Notifier interface. Notifications are
// persisted before delivery so a restart never drops a queued one, then
// dispatched by workers to every configured channel.
type NotificationManager struct {
	config         *config.NotificationConfig
	storage        storage.Storage
	logger         *logrus.Entry
	metricsManager *metrics.Manager

	mu       sync.RWMutex
	running  bool
	queue    chan *models.Notification
	stopChan chan struct{}
	wg       sync.WaitGroup

	webhookSender *WebhookSender

	stats   *NotificationStats
	statsMu sync.RWMutex
}

// NotificationStats provides notification statistics
type NotificationStats struct {
	TotalSent     uint64     `json:"total_sent"`
	TotalFailed   uint64     `json:"total_failed"`
	TotalRetried  uint64     `json:"total_retried"`
	QueueLength   int        `json:"queue_length"`
	LastError     *string    `json:"last_error,omitempty"`
	LastErrorTime *time.Time `json:"last_error_time,omitempty"`
}

// NewNotificationManager creates a new notification manager
func NewNotificationManager(cfg *config.NotificationConfig, store storage.Storage) *NotificationManager {
	return &NotificationManager{
		config:        cfg,
		storage:       store,
		logger:        utils.ComponentLogger("notification"),
		queue:         make(chan *models.Notification, cfg.QueueSize),
		stopChan:      make(chan struct{}),
		webhookSender: NewWebhookSender(cfg),
		stats:         &NotificationStats{},
	}
}

// SetMetricsManager attaches a metrics manager so worker-side deliveries
// are counted; delivery happens on internal workers, so the hook lives
// here rather than on the caller
func (nm *NotificationManager) SetMetricsManager(metricsManager *metrics.Manager) {
	nm.metricsManager = metricsManager
}

// Start starts the notification workers and requeues any notifications
// left pending by a previous run
func (nm *NotificationManager) Start(ctx context.Context) error {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if nm.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Notification manager already running", "")
	}
	if !nm.config.Enabled {
		nm.logger.Info("Notifications disabled")
		return nil
	}

	workers := nm.config.Workers
	if workers <= 0 {
		workers = 2
	}
	for i := 0; i < workers; i++ {
		nm.wg.Add(1)
		go nm.worker(i)
	}

	pending, err := nm.storage.GetPendingNotifications(ctx, nm.config.QueueSize)
	if err != nil {
		nm.logger.WithError(err).Warn("Failed to load pending notifications")
	} else {
		for _, n := range pending {
			select {
			case nm.queue <- n:
			default:
				nm.logger.WithField("notification_id", n.ID).Warn("Queue full, leaving notification pending")
			}
		}
		if len(pending) > 0 {
			nm.logger.WithField("count", len(pending)).Info("Requeued pending notifications")
		}
	}

	nm.running = true
	nm.logger.WithFields(logrus.Fields{
		"workers":  workers,
		"channels": len(nm.config.Channels),
	}).Info("Notification manager started")

	return nil
}

// Stop stops the notification manager and drains the workers
func (nm *NotificationManager) Stop() error {
	nm.mu.Lock()
	if !nm.running {
		nm.mu.Unlock()
		return nil
	}
	nm.running = false
	close(nm.stopChan)
	nm.mu.Unlock()

	nm.wg.Wait()
	nm.logger.Info("Notification manager stopped")
	return nil
}

// IsHealthy returns whether the manager is healthy
func (nm *NotificationManager) IsHealthy() bool {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	if !nm.config.Enabled {
		return true
	}
	return nm.running && len(nm.queue) < cap(nm.queue)
}

// NotifySettlement persists and queues one notification per configured
// channel for a settlement transition
func (nm *NotificationManager) NotifySettlement(ctx context.Context, kind string, escrow *models.Escrow, receipt *models.Receipt) error {
	if !nm.config.Enabled {
		return nil
	}

	data := map[string]interface{}{
		"escrow_id":       escrow.ID,
		"status":          string(escrow.Status),
		"deal_type":       string(escrow.DealType),
		"amount":          escrow.Amount,
		"released_amount": escrow.ReleasedAmount,
		"remaining":       escrow.Remaining(),
		"operation":       string(receipt.Operation),
		"tx_hash":         receipt.TxHash,
		"gross_amount":    receipt.GrossAmount,
		"net_amount":      receipt.NetAmount,
		"fee_amount":      receipt.FeeAmount,
		"burn_amount":     receipt.BurnAmount,
		"signer":          receipt.Signer,
	}

	title := fmt.Sprintf("Escrow %d: %s", escrow.ID, strings.ReplaceAll(kind, "_", " "))
	message := fmt.Sprintf("Operation %s settled with tx %s", receipt.Operation, receipt.TxHash)

	for _, channel := range nm.config.Channels {
		notification := &models.Notification{
			ID:        utils.GenerateID(),
			Type:      models.NotificationType(channel.Type),
			EscrowID:  escrow.ID,
			Kind:      kind,
			Title:     title,
			Message:   message,
			Data:      data,
			Target:    channel.URL,
			Status:    "pending",
			CreatedAt: time.Now(),
		}

		if err := nm.storage.SaveNotification(ctx, notification); err != nil {
			return err
		}

		select {
		case nm.queue <- notification:
		default:
			// stays pending in storage, picked up on next start
			nm.logger.WithField("notification_id", notification.ID).Warn("Notification queue full")
		}
	}

	return nil
}

// GetChannels returns the configured channels
func (nm *NotificationManager) GetChannels() []*models.NotificationChannel {
	channels := make([]*models.NotificationChannel, 0, len(nm.config.Channels))
	for _, c := range nm.config.Channels {
		channels = append(channels, &models.NotificationChannel{
			ID:     c.Name,
			Type:   models.NotificationType(c.Type),
			Name:   c.Name,
			Config: map[string]interface{}{"url": c.URL},
			Active: true,
		})
	}
	return channels
}

// GetStats returns notification statistics
func (nm *NotificationManager) GetStats() *NotificationStats {
	nm.statsMu.RLock()
	defer nm.statsMu.RUnlock()
	stats := *nm.stats
	stats.QueueLength = len(nm.queue)
	return &stats
}

func (nm *NotificationManager) worker(id int) {
	defer nm.wg.Done()

	logger := nm.logger.WithField("worker", id)
	logger.Debug("Notification worker started")

	for {
		select {
		case <-nm.stopChan:
			return
		case notification := <-nm.queue:
			nm.deliver(notification)
		}
	}
}

func (nm *NotificationManager) deliver(notification *models.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), nm.config.NotificationTimeout)
	defer cancel()

	var err error
	attempts := nm.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		err = nm.send(ctx, notification)
		if err == nil {
			break
		}
		if attempt < attempts {
			nm.statsMu.Lock()
			nm.stats.TotalRetried++
			nm.statsMu.Unlock()
			select {
			case <-nm.stopChan:
				return
			case <-time.After(nm.config.RetryDelay):
			}
		}
	}

	status := "sent"
	var sendErr *string
	if err != nil {
		status = "failed"
		msg := err.Error()
		sendErr = &msg

		nm.statsMu.Lock()
		nm.stats.TotalFailed++
		nm.stats.LastError = &msg
		now := time.Now()
		nm.stats.LastErrorTime = &now
		nm.statsMu.Unlock()

		nm.logger.WithError(err).WithFields(logrus.Fields{
			"notification_id": notification.ID,
			"type":            notification.Type,
		}).Warn("Notification delivery failed")

		if nm.metricsManager != nil {
			nm.metricsManager.RecordNotificationFailure(string(notification.Type), notification.Kind)
		}
	} else {
		nm.statsMu.Lock()
		nm.stats.TotalSent++
		nm.statsMu.Unlock()

		if nm.metricsManager != nil {
			nm.metricsManager.RecordNotificationSent(string(notification.Type), notification.Kind)
		}
	}

	updateCtx, updateCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer updateCancel()
	if err := nm.storage.UpdateNotificationStatus(updateCtx, notification.ID, status, sendErr); err != nil {
		nm.logger.WithError(err).Warn("Failed to update notification status")
	}
}

func (nm *NotificationManager) send(ctx context.Context, notification *models.Notification) error {
	switch notification.Type {
	case models.NotificationTypeWebhook:
		headers := nm.channelHeaders(notification.Target)
		return nm.webhookSender.Send(ctx, notification, headers)
	case models.NotificationTypeLog:
		nm.logger.WithFields(logrus.Fields{
			"escrow_id": notification.EscrowID,
			"kind":      notification.Kind,
			"data":      notification.Data,
		}).Info(notification.Message)
		return nil
	default:
		return utils.NewAppError(utils.ErrCodeValidation,
			"Unsupported notification type", string(notification.Type))
	}
}

func (nm *NotificationManager) channelHeaders(target string) map[string]string {
	for _, c := range nm.config.Channels {
		if c.URL == target {
			return c.Headers
		}
	}
	return nil
}
