package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the escrow
// settlement service
type PrometheusMetrics struct {
	// Settlement metrics
	EscrowsOpenedTotal    *prometheus.CounterVec
	EscrowsClosedTotal    *prometheus.CounterVec
	AmountEscrowedTotal   *prometheus.CounterVec
	ReleasesTotal         *prometheus.CounterVec
	ReleasePercentage     prometheus.Histogram
	AmountReleasedTotal   *prometheus.CounterVec
	FeesCollectedTotal    prometheus.Counter
	AmountBurnedTotal     prometheus.Counter
	EngineOperationsTotal *prometheus.CounterVec
	EngineOperationTime   *prometheus.HistogramVec

	// Anchor metrics
	AnchorSubmissionsTotal *prometheus.CounterVec
	AnchorSubmissionTime   prometheus.Histogram

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec

	// Notification metrics
	NotificationsSentTotal    *prometheus.CounterVec
	NotificationFailuresTotal *prometheus.CounterVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	VaultBalanceTotal prometheus.Gauge
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates and registers all Prometheus metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		EscrowsOpenedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrowd_escrows_opened_total",
				Help: "Total number of escrows created and funded",
			},
			[]string{"deal_type"},
		),

		EscrowsClosedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrowd_escrows_closed_total",
				Help: "Total number of escrows closed",
			},
			[]string{"deal_type", "status"},
		),

		AmountEscrowedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrowd_amount_escrowed_total",
				Help: "Total amount deposited into escrow vaults in base units",
			},
			[]string{"deal_type"},
		),

		ReleasesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrowd_releases_total",
				Help: "Total number of fund releases",
			},
			[]string{"deal_type"},
		),

		ReleasePercentage: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "escrowd_release_percentage",
				Help:    "Percentage requested per release",
				Buckets: []float64{10, 25, 50, 75, 90, 100},
			},
		),

		AmountReleasedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrowd_amount_released_total",
				Help: "Total gross amount released in base units",
			},
			[]string{"deal_type"},
		),

		FeesCollectedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "escrowd_fees_collected_total",
				Help: "Total fees credited to the fee wallet in base units",
			},
		),

		AmountBurnedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "escrowd_amount_burned_total",
				Help: "Total fees credited to the burn account in base units",
			},
		),

		EngineOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrowd_engine_operations_total",
				Help: "Total settlement engine operations",
			},
			[]string{"operation", "status"},
		),

		EngineOperationTime: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "escrowd_engine_operation_duration_seconds",
				Help:    "Time spent per settlement engine operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		AnchorSubmissionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrowd_anchor_submissions_total",
				Help: "Total settlement anchor submissions",
			},
			[]string{"status"},
		),

		AnchorSubmissionTime: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "escrowd_anchor_submission_duration_seconds",
				Help:    "Time spent anchoring settlements",
				Buckets: prometheus.DefBuckets,
			},
		),

		DatabaseOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrowd_database_operations_total",
				Help: "Total database operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "escrowd_database_operation_duration_seconds",
				Help:    "Time spent on database operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		NotificationsSentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrowd_notifications_sent_total",
				Help: "Total notifications sent successfully",
			},
			[]string{"channel", "kind"},
		),

		NotificationFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrowd_notification_failures_total",
				Help: "Total notification delivery failures",
			},
			[]string{"channel", "kind"},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrowd_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "escrowd_http_request_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		VaultBalanceTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "escrowd_vault_balance_total",
				Help: "Total balance held across open escrow vaults in base units",
			},
		),

		ApplicationUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "escrowd_application_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "escrowd_component_health",
				Help: "Component health status (1 healthy, 0 unhealthy)",
			},
			[]string{"component"},
		),

		MemoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "escrowd_memory_usage_bytes",
				Help: "Current memory usage in bytes",
			},
		),

		GoroutineCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "escrowd_goroutines",
				Help: "Current number of goroutines",
			},
		),
	}
}

// RecordEscrowOpened records a newly funded escrow with its deposit
func (m *PrometheusMetrics) RecordEscrowOpened(dealType string, amount uint64) {
	m.EscrowsOpenedTotal.WithLabelValues(dealType).Inc()
	m.AmountEscrowedTotal.WithLabelValues(dealType).Add(float64(amount))
}

// RecordEscrowClosed records an escrow reaching a terminal status
func (m *PrometheusMetrics) RecordEscrowClosed(dealType, status string) {
	m.EscrowsClosedTotal.WithLabelValues(dealType, status).Inc()
}

// RecordRelease records one release with its amounts
func (m *PrometheusMetrics) RecordRelease(dealType string, percentage uint8, gross, fee, burn uint64) {
	m.ReleasesTotal.WithLabelValues(dealType).Inc()
	m.ReleasePercentage.Observe(float64(percentage))
	m.AmountReleasedTotal.WithLabelValues(dealType).Add(float64(gross))
	m.FeesCollectedTotal.Add(float64(fee))
	m.AmountBurnedTotal.Add(float64(burn))
}

// RecordEngineOperation records an engine operation with its outcome
func (m *PrometheusMetrics) RecordEngineOperation(operation string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.EngineOperationsTotal.WithLabelValues(operation, status).Inc()
	m.EngineOperationTime.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAnchorSubmission records one anchor submission
func (m *PrometheusMetrics) RecordAnchorSubmission(success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.AnchorSubmissionsTotal.WithLabelValues(status).Inc()
	m.AnchorSubmissionTime.Observe(duration.Seconds())
}

// RecordDatabaseOperation records a database operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordNotificationSent records a successful notification delivery
func (m *PrometheusMetrics) RecordNotificationSent(channel, kind string) {
	m.NotificationsSentTotal.WithLabelValues(channel, kind).Inc()
}

// RecordNotificationFailure records a failed notification delivery
func (m *PrometheusMetrics) RecordNotificationFailure(channel, kind string) {
	m.NotificationFailuresTotal.WithLabelValues(channel, kind).Inc()
}

// RecordHTTPRequest records HTTP request metrics
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateVaultBalance updates the aggregate open vault balance
func (m *PrometheusMetrics) UpdateVaultBalance(total uint64) {
	m.VaultBalanceTotal.Set(float64(total))
}

// UpdateApplicationUptime updates application uptime
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates component health status
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateMemoryUsage updates memory usage
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates goroutine count
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}
