package metrics

import (
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// Manager handles all application metrics
type Manager struct {
	prometheus *PrometheusMetrics
	logger     *logrus.Entry
	startTime  time.Time
}

// NewManager creates a new metrics manager
func NewManager() *Manager {
	return &Manager{
		prometheus: NewPrometheusMetrics(),
		logger:     logrus.WithField("component", "metrics"),
		startTime:  time.Now(),
	}
}

// GetPrometheusMetrics returns the Prometheus metrics instance
func (m *Manager) GetPrometheusMetrics() *PrometheusMetrics {
	return m.prometheus
}

// RecordEscrowOpened records a newly funded escrow
func (m *Manager) RecordEscrowOpened(dealType string, amount uint64) {
	m.prometheus.RecordEscrowOpened(dealType, amount)
}

// RecordEscrowClosed records an escrow reaching a terminal status
func (m *Manager) RecordEscrowClosed(dealType, status string) {
	m.prometheus.RecordEscrowClosed(dealType, status)
}

// RecordRelease records one release with its amounts
func (m *Manager) RecordRelease(dealType string, percentage uint8, gross, fee, burn uint64) {
	m.prometheus.RecordRelease(dealType, percentage, gross, fee, burn)
}

// RecordEngineOperation records an engine operation outcome
func (m *Manager) RecordEngineOperation(operation string, success bool, duration time.Duration) {
	m.prometheus.RecordEngineOperation(operation, success, duration)
}

// RecordAnchorSubmission records an anchor submission outcome
func (m *Manager) RecordAnchorSubmission(success bool, duration time.Duration) {
	m.prometheus.RecordAnchorSubmission(success, duration)
}

// RecordNotificationSent records a successful notification delivery
func (m *Manager) RecordNotificationSent(channel, kind string) {
	m.prometheus.RecordNotificationSent(channel, kind)
}

// RecordNotificationFailure records a failed notification delivery
func (m *Manager) RecordNotificationFailure(channel, kind string) {
	m.prometheus.RecordNotificationFailure(channel, kind)
}

// RecordHTTPRequest records HTTP request metrics
func (m *Manager) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.prometheus.RecordHTTPRequest(method, path, status, duration)
}

// UpdateVaultBalance updates the aggregate open vault balance
func (m *Manager) UpdateVaultBalance(total uint64) {
	m.prometheus.UpdateVaultBalance(total)
}

// UpdateComponentHealth updates component health status
func (m *Manager) UpdateComponentHealth(component string, healthy bool) {
	m.prometheus.UpdateComponentHealth(component, healthy)
}

// UpdateSystemMetrics updates system-level metrics like memory and goroutines
func (m *Manager) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.prometheus.UpdateMemoryUsage(memStats.Alloc)
	m.prometheus.UpdateGoroutineCount(runtime.NumGoroutine())
	m.prometheus.UpdateApplicationUptime(m.startTime)
}
