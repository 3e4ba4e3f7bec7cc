// File: internal/notification/webhook.go
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/escrowd/internal/config"
	"github.com/smartdevs17/escrowd/internal/models"
	"github.com/smartdevs17/escrowd/pkg/utils"
)

// WebhookSender delivers settlement notifications over HTTP
type WebhookSender struct {
	config     *config.NotificationConfig
	logger     *logrus.Entry
	httpClient *http.Client
}

// WebhookPayload defines the webhook payload structure
type WebhookPayload struct {
	Kind      string                 `json:"kind"`
	EscrowID  uint64                 `json:"escrow_id"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
}

// NewWebhookSender creates a new webhook sender
func NewWebhookSender(cfg *config.NotificationConfig) *WebhookSender {
	timeout := cfg.NotificationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookSender{
		config: cfg,
		logger: utils.ComponentLogger("webhook_sender"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// Send posts one notification to its target URL
func (ws *WebhookSender) Send(ctx context.Context, notification *models.Notification, headers map[string]string) error {
	if notification.Target == "" {
		return utils.NewAppError(utils.ErrCodeValidation, "Webhook target URL is empty", notification.ID)
	}

	payload := &WebhookPayload{
		Kind:      notification.Kind,
		EscrowID:  notification.EscrowID,
		Title:     notification.Title,
		Message:   notification.Message,
		Data:      notification.Data,
		Timestamp: time.Now(),
		Source:    "escrowd",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal webhook payload", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, notification.Target, bytes.NewReader(body))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeExternal, "Failed to create webhook request", err.Error())
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "escrowd-webhook/1.0")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := ws.httpClient.Do(req)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeExternal, "Webhook request failed", err.Error())
	}
	defer resp.Body.Close()

	// drain so the connection can be reused
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return utils.NewAppError(utils.ErrCodeExternal,
			"Webhook returned non-success status",
			fmt.Sprintf("%s: %d", notification.Target, resp.StatusCode))
	}

	ws.logger.WithFields(logrus.Fields{
		"notification_id": notification.ID,
		"target":          notification.Target,
		"status_code":     resp.StatusCode,
		"duration":        time.Since(start),
	}).Debug("Webhook delivered")

	return nil
}
