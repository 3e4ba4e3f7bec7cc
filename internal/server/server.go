// File: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/escrowd/internal/anchor"
	"github.com/smartdevs17/escrowd/internal/config"
	"github.com/smartdevs17/escrowd/internal/engine"
	"github.com/smartdevs17/escrowd/internal/metrics"
	"github.com/smartdevs17/escrowd/internal/models"
	"github.com/smartdevs17/escrowd/internal/notification"
	"github.com/smartdevs17/escrowd/internal/storage"
	"github.com/smartdevs17/escrowd/pkg/utils"
)

// HTTPServer exposes the settlement engine over a JSON API
type HTTPServer struct {
	config         *config.ServerConfig
	server         *http.Server
	router         *mux.Router
	engine         engine.Engine
	storage        storage.Storage
	anchor         anchor.Anchor
	notification   notification.Notifier
	metricsManager *metrics.Manager
	logger         *logrus.Logger
	version        string
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(
	cfg *config.ServerConfig,
	eng engine.Engine,
	store storage.Storage,
	anc anchor.Anchor,
	notifier notification.Notifier,
	metricsManager *metrics.Manager,
	version string,
) (*HTTPServer, error) {

	server := &HTTPServer{
		config:         cfg,
		engine:         eng,
		storage:        store,
		anchor:         anc,
		notification:   notifier,
		metricsManager: metricsManager,
		logger:         utils.GetLogger(),
		version:        version,
	}

	server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server, nil
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	// Middleware
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.config.RateLimitPerSec > 0 {
		s.router.Use(s.rateLimitMiddleware())
	}
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	// API routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Health check endpoint
	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
		api.HandleFunc("/health/detailed", s.detailedHealthHandler).Methods("GET")
	}

	// Metrics endpoint
	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
		api.HandleFunc("/stats", s.statsHandler).Methods("GET")
	}

	// Escrow endpoints
	api.HandleFunc("/escrows", s.createEscrowHandler).Methods("POST")
	api.HandleFunc("/escrows", s.listEscrowsHandler).Methods("GET")
	api.HandleFunc("/escrows/{id}", s.getEscrowHandler).Methods("GET")
	api.HandleFunc("/escrows/{id}/remaining", s.remainingHandler).Methods("GET")
	api.HandleFunc("/escrows/{id}/release", s.releaseHandler).Methods("POST")
	api.HandleFunc("/escrows/{id}/cancel", s.cancelHandler).Methods("POST")
	api.HandleFunc("/escrows/{id}/receipts", s.receiptsHandler).Methods("GET")
	api.HandleFunc("/escrows/{id}/ledger", s.ledgerHandler).Methods("GET")

	// Notification endpoints
	api.HandleFunc("/notifications/channels", s.listChannelsHandler).Methods("GET")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	if s.metricsManager != nil {
		s.metricsManager.UpdateSystemMetrics()
		s.updateComponentHealthMetrics()
		go s.systemMetricsUpdater()
	}

	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// surface immediate binding errors
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// systemMetricsUpdater updates system metrics periodically
func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		s.metricsManager.UpdateSystemMetrics()
		s.updateComponentHealthMetrics()
	}
}

func (s *HTTPServer) updateComponentHealthMetrics() {
	if s.storage != nil {
		s.metricsManager.UpdateComponentHealth("storage", s.storage.GetHealth().Healthy)
		if stats, err := s.storage.GetStorageStats(); err == nil {
			s.metricsManager.UpdateVaultBalance(stats.TotalVaultBalance)
		}
	}
	if s.engine != nil {
		s.metricsManager.UpdateComponentHealth("engine", s.engine.GetHealth().Healthy)
	}
	if s.anchor != nil {
		s.metricsManager.UpdateComponentHealth("anchor", s.anchor.IsHealthy())
	}
	if s.notification != nil {
		s.metricsManager.UpdateComponentHealth("notification", s.notification.IsHealthy())
	}
}

// Health handlers

// healthHandler returns basic health status
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"version":   s.version,
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// detailedHealthHandler returns detailed health status
func (s *HTTPServer) detailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	engineHealth := s.engine.GetHealth()

	status := "healthy"
	code := http.StatusOK
	if !engineHealth.Healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	health := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now(),
		"version":   s.version,
		"components": map[string]interface{}{
			"storage":      s.storage.GetHealth(),
			"engine":       engineHealth,
			"anchor":       s.anchor.Stats(),
			"notification": s.notification.IsHealthy(),
		},
	}

	s.writeJSON(w, code, health)
}

// statsHandler returns application statistics
func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	storageStats, err := s.storage.GetStorageStats()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve storage stats", err)
		return
	}

	stats := map[string]interface{}{
		"timestamp":    time.Now(),
		"storage":      storageStats,
		"engine":       s.engine.GetStats(),
		"anchor":       s.anchor.Stats(),
		"notification": s.notification.GetStats(),
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// Escrow handlers

type createEscrowRequest struct {
	EscrowID     uint64 `json:"escrow_id"`
	Initiator    string `json:"initiator"`
	Recipient    string `json:"recipient"`
	Arbiter      string `json:"arbiter"`
	Amount       string `json:"amount"`
	DealType     string `json:"deal_type"`
	TokenAddress string `json:"token_address,omitempty"`
	Decimals     int32  `json:"decimals"`
}

type releaseRequest struct {
	Signer     string `json:"signer"`
	Percentage uint8  `json:"percentage"`
}

type cancelRequest struct {
	Signer string `json:"signer"`
}

// createEscrowHandler creates and funds a new escrow
func (s *HTTPServer) createEscrowHandler(w http.ResponseWriter, r *http.Request) {
	var req createEscrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := utils.ParseBaseUnits(req.Amount, req.Decimals)
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	settlement, err := s.engine.Initialize(r.Context(), &engine.InitializeRequest{
		EscrowID:     req.EscrowID,
		Initiator:    req.Initiator,
		Recipient:    req.Recipient,
		Arbiter:      req.Arbiter,
		Amount:       amount,
		DealType:     models.DealType(req.DealType),
		TokenAddress: req.TokenAddress,
		Decimals:     req.Decimals,
	})
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, s.settlementResponse(settlement))
}

// listEscrowsHandler lists escrows with optional filters
func (s *HTTPServer) listEscrowsHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEscrowFilter(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}

	escrows, total, err := s.engine.List(r.Context(), filter)
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	views := make([]map[string]interface{}, 0, len(escrows))
	for _, escrow := range escrows {
		views = append(views, s.escrowView(escrow))
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"escrows": views,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// getEscrowHandler returns a single escrow
func (s *HTTPServer) getEscrowHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.escrowID(w, r)
	if !ok {
		return
	}

	escrow, err := s.engine.Get(r.Context(), id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.escrowView(escrow))
}

// remainingHandler returns the unreleased balance of an escrow
func (s *HTTPServer) remainingHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.escrowID(w, r)
	if !ok {
		return
	}

	escrow, err := s.engine.Get(r.Context(), id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	remaining := escrow.Remaining()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"escrow_id":         escrow.ID,
		"remaining":         remaining,
		"remaining_display": utils.FormatBaseUnits(remaining, escrow.Decimals),
		"status":            escrow.Status,
	})
}

// releaseHandler releases a percentage of the remaining balance
func (s *HTTPServer) releaseHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.escrowID(w, r)
	if !ok {
		return
	}

	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	settlement, err := s.engine.Release(r.Context(), id, req.Signer, req.Percentage)
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.settlementResponse(settlement))
}

// cancelHandler cancels an escrow and refunds the initiator
func (s *HTTPServer) cancelHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.escrowID(w, r)
	if !ok {
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	settlement, err := s.engine.Cancel(r.Context(), id, req.Signer)
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.settlementResponse(settlement))
}

// receiptsHandler returns the settlement receipts of an escrow
func (s *HTTPServer) receiptsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.escrowID(w, r)
	if !ok {
		return
	}

	receipts, err := s.engine.Receipts(r.Context(), id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"escrow_id": id,
		"receipts":  receipts,
		"count":     len(receipts),
	})
}

// ledgerHandler returns the ledger entries of an escrow
func (s *HTTPServer) ledgerHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.escrowID(w, r)
	if !ok {
		return
	}

	entries, err := s.engine.Ledger(r.Context(), id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"escrow_id": id,
		"entries":   entries,
		"count":     len(entries),
	})
}

// listChannelsHandler returns configured notification channels
func (s *HTTPServer) listChannelsHandler(w http.ResponseWriter, r *http.Request) {
	channels := s.notification.GetChannels()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"channels": channels,
		"count":    len(channels),
	})
}

// Helpers

func (s *HTTPServer) escrowID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	vars := mux.Vars(r)
	id, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid escrow ID", err)
		return 0, false
	}
	return id, true
}

func parseEscrowFilter(r *http.Request) (models.EscrowFilter, error) {
	filter := models.EscrowFilter{Limit: 50}
	query := r.URL.Query()

	if v := query.Get("status"); v != "" {
		status := models.EscrowStatus(v)
		filter.Status = &status
	}
	if v := query.Get("deal_type"); v != "" {
		dealType := models.DealType(v)
		filter.DealType = &dealType
	}
	if v := query.Get("participant"); v != "" {
		filter.Participant = &v
	}
	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 500 {
			return filter, fmt.Errorf("limit must be between 1 and 500")
		}
		filter.Limit = limit
	}
	if v := query.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return filter, fmt.Errorf("offset must not be negative")
		}
		filter.Offset = offset
	}

	return filter, nil
}

// escrowView augments an escrow with display amounts
func (s *HTTPServer) escrowView(escrow *models.Escrow) map[string]interface{} {
	return map[string]interface{}{
		"escrow":            escrow,
		"vault_account":     utils.EscrowVaultAccount(escrow.ID),
		"amount_display":    utils.FormatBaseUnits(escrow.Amount, escrow.Decimals),
		"released_display":  utils.FormatBaseUnits(escrow.ReleasedAmount, escrow.Decimals),
		"remaining":         escrow.Remaining(),
		"remaining_display": utils.FormatBaseUnits(escrow.Remaining(), escrow.Decimals),
	}
}

func (s *HTTPServer) settlementResponse(settlement *engine.Settlement) map[string]interface{} {
	view := s.escrowView(settlement.Escrow)
	view["receipt"] = settlement.Receipt
	view["tx_hash"] = settlement.Receipt.TxHash
	return view
}

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now(),
	}

	if err != nil {
		errorResponse["details"] = err.Error()
		s.logger.WithFields(logrus.Fields{
			"status":  status,
			"message": message,
			"error":   err,
		}).Error("HTTP error")
	}

	s.writeJSON(w, status, errorResponse)
}

// writeAppError maps application error codes onto HTTP statuses
func (s *HTTPServer) writeAppError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch utils.ErrorCode(err) {
	case utils.ErrCodeValidation, utils.ErrCodeInvalidPercentage:
		status = http.StatusBadRequest
	case utils.ErrCodeNotFound:
		status = http.StatusNotFound
	case utils.ErrCodeUnauthorized:
		status = http.StatusForbidden
	case utils.ErrCodeDuplicateEscrow, utils.ErrCodeInvalidStatus:
		status = http.StatusConflict
	case utils.ErrCodeNoFundsToRelease, utils.ErrCodeInsufficientFunds:
		status = http.StatusUnprocessableEntity
	}

	response := map[string]interface{}{
		"error":     err.Error(),
		"code":      utils.ErrorCode(err),
		"status":    status,
		"timestamp": time.Now(),
	}

	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).Error("Request failed")
	}

	s.writeJSON(w, status, response)
}
