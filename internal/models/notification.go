package models

import (
	"time"
)

// NotificationType defines the type of notification
type NotificationType string

const (
	NotificationTypeWebhook NotificationType = "webhook"
	NotificationTypeLog     NotificationType = "log"
)

// Escrow lifecycle notification kinds
const (
	NotifyEscrowFunded    = "escrow_funded"
	NotifyPartialRelease  = "escrow_partial_release"
	NotifyEscrowReleased  = "escrow_released"
	NotifyEscrowCancelled = "escrow_cancelled"
)

// Notification represents a notification to be sent
type Notification struct {
	ID        string                 `json:"id"`
	Type      NotificationType       `json:"type"`
	EscrowID  uint64                 `json:"escrow_id"`
	Kind      string                 `json:"kind"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Target    string                 `json:"target"` // webhook URL or log channel name
	Status    string                 `json:"status"` // pending, sent, failed
	Attempts  int                    `json:"attempts"`
	CreatedAt time.Time              `json:"created_at"`
	SentAt    *time.Time             `json:"sent_at,omitempty"`
	Error     *string                `json:"error,omitempty"`
}

// NotificationChannel defines a notification channel configuration
type NotificationChannel struct {
	ID     string                 `json:"id"`
	Type   NotificationType       `json:"type"`
	Name   string                 `json:"name"`
	Config map[string]interface{} `json:"config"`
	Active bool                   `json:"active"`
}
