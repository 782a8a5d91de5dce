package web

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"

	"github.com/velikanghost/alioth-server-sub001/internal/logger"
	"github.com/velikanghost/alioth-server-sub001/internal/state"
	"github.com/velikanghost/alioth-server-sub001/internal/types"
	"github.com/velikanghost/alioth-server-sub001/internal/vaultmgr"
)

var webLogger = logger.GetForComponent("web_server")

// Store is the persistence surface the API serves from. All endpoints are
// reads except the vault preferences update.
type Store interface {
	GetTransaction(id string) (*types.Transaction, error)
	ListTransactionsByUser(user string, limit int) ([]types.Transaction, error)
	ListAllPositions(user string) ([]types.Position, error)
	GetOrCreateUserVault(user string) (*types.UserVault, error)
	UpdateVaultPreferences(user string, riskProfile types.RiskProfile, prefs types.VaultPreferences) error
	QuerySnapshots(filter types.SnapshotFilter) ([]types.APRSnapshot, error)
}

// Rates answers best-yield queries.
type Rates interface {
	GetBestAPRForToken(chainID uint64, tokenSymbol string) (*types.APRSnapshot, error)
}

// Previewer quotes withdrawals without executing them.
type Previewer interface {
	GetWithdrawalPreview(ctx context.Context, user string, chainID uint64, tokenAddress string, shares sdkmath.Int) (*vaultmgr.WithdrawalPreview, error)
}

// WebServer exposes the read-only JSON API over vault data.
type WebServer struct {
	router    *mux.Router
	port      string
	store     Store
	rates     Rates
	previewer Previewer
}

// NewWebServer creates a new web server instance.
func NewWebServer(port string, store Store, rates Rates, previewer Previewer) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:    mux.NewRouter(),
		port:      port,
		store:     store,
		rates:     rates,
		previewer: previewer,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/transactions/{id}", ws.handleGetTransaction).Methods("GET")
	api.HandleFunc("/users/{address}/transactions", ws.handleGetUserTransactions).Methods("GET")
	api.HandleFunc("/users/{address}/positions", ws.handleGetUserPositions).Methods("GET")
	api.HandleFunc("/users/{address}/vault", ws.handleGetUserVault).Methods("GET")
	api.HandleFunc("/users/{address}/preferences", ws.handleUpdatePreferences).Methods("PUT")
	api.HandleFunc("/users/{address}/withdraw-preview", ws.handleGetWithdrawPreview).Methods("GET")
	api.HandleFunc("/snapshots", ws.handleGetSnapshots).Methods("GET")
	api.HandleFunc("/rates/best", ws.handleGetBestRate).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbHealthy := true
	if err := state.TestDBConnection(); err != nil {
		dbHealthy = false
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !dbHealthy {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"gc_cycles":        memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "alioth-vault-server",
			"version": "1.0.0",
		},
		"database_healthy": dbHealthy,
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetTransaction returns one transaction by ID
func (ws *WebServer) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	tx, err := ws.store.GetTransaction(id)
	if err != nil {
		webLogger.Error().Err(err).Str("transaction", id).Msg("Failed to get transaction")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve transaction")
		return
	}
	if tx == nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Transaction not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, tx)
}

// handleGetUserTransactions returns a user's transaction history
func (ws *WebServer) handleGetUserTransactions(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 500 {
			limit = parsedLimit
		}
	}

	transactions, err := ws.store.ListTransactionsByUser(address, limit)
	if err != nil {
		webLogger.Error().Err(err).Str("user", address).Msg("Failed to list transactions")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve transactions")
		return
	}

	response := map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
		"limit":        limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetUserPositions returns a user's cached positions across chains
func (ws *WebServer) handleGetUserPositions(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	positions, err := ws.store.ListAllPositions(address)
	if err != nil {
		webLogger.Error().Err(err).Str("user", address).Msg("Failed to list positions")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve positions")
		return
	}

	response := map[string]interface{}{
		"positions": positions,
		"count":     len(positions),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetUserVault returns a user's vault record with preferences and stats
func (ws *WebServer) handleGetUserVault(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	vault, err := ws.store.GetOrCreateUserVault(address)
	if err != nil {
		webLogger.Error().Err(err).Str("user", address).Msg("Failed to get user vault")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve vault")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, vault)
}

// handleUpdatePreferences replaces a user's risk profile and agent preferences
func (ws *WebServer) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	var payload struct {
		RiskProfile types.RiskProfile      `json:"risk_profile"`
		Preferences types.VaultPreferences `json:"preferences"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	switch payload.RiskProfile {
	case types.RiskConservative, types.RiskModerate, types.RiskAggressive:
	default:
		ws.writeErrorResponse(w, http.StatusBadRequest, "Unknown risk profile")
		return
	}
	if payload.Preferences.MaxSlippagePct < 0 || payload.Preferences.MaxSlippagePct > 100 {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Slippage must be between 0 and 100 percent")
		return
	}

	// Ensure the vault exists before updating it.
	if _, err := ws.store.GetOrCreateUserVault(address); err != nil {
		webLogger.Error().Err(err).Str("user", address).Msg("Failed to load user vault")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to load vault")
		return
	}
	if err := ws.store.UpdateVaultPreferences(address, payload.RiskProfile, payload.Preferences); err != nil {
		webLogger.Error().Err(err).Str("user", address).Msg("Failed to update preferences")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to update preferences")
		return
	}

	vault, err := ws.store.GetOrCreateUserVault(address)
	if err != nil {
		webLogger.Error().Err(err).Str("user", address).Msg("Failed to re-read user vault")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Preferences updated but re-read failed")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, vault)
}

// handleGetWithdrawPreview quotes a withdrawal at several slippage tolerances
func (ws *WebServer) handleGetWithdrawPreview(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	query := r.URL.Query()

	chainID, err := strconv.ParseUint(query.Get("chainId"), 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid chainId")
		return
	}
	tokenAddress := query.Get("token")
	if tokenAddress == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Missing token")
		return
	}
	shares, ok := sdkmath.NewIntFromString(query.Get("shares"))
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid shares")
		return
	}

	preview, err := ws.previewer.GetWithdrawalPreview(r.Context(), address, chainID, tokenAddress, shares)
	if err != nil {
		if types.IsValidation(err) {
			ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		webLogger.Error().Err(err).Str("user", address).Msg("Withdrawal preview failed")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to build preview")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, preview)
}

// handleGetSnapshots returns filtered APR snapshot history
func (ws *WebServer) handleGetSnapshots(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := types.SnapshotFilter{
		Protocol:     query.Get("protocol"),
		TokenAddress: query.Get("token"),
		TokenSymbol:  query.Get("symbol"),
	}

	if chainStr := query.Get("chainId"); chainStr != "" {
		chainID, err := strconv.ParseUint(chainStr, 10, 64)
		if err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid chainId")
			return
		}
		filter.ChainID = chainID
	}
	if fromStr := query.Get("from"); fromStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid from timestamp")
			return
		}
		filter.From = from
	}
	if toStr := query.Get("to"); toStr != "" {
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid to timestamp")
			return
		}
		filter.To = to
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 1000 {
			filter.Limit = limit
		}
	}

	snapshots, err := ws.store.QuerySnapshots(filter)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to query snapshots")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve snapshots")
		return
	}

	response := map[string]interface{}{
		"snapshots": snapshots,
		"count":     len(snapshots),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetBestRate returns the freshest best-yield snapshot for a token
func (ws *WebServer) handleGetBestRate(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	chainID, err := strconv.ParseUint(query.Get("chainId"), 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid chainId")
		return
	}
	symbol := query.Get("symbol")
	if symbol == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Missing symbol")
		return
	}

	best, err := ws.rates.GetBestAPRForToken(chainID, symbol)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "No fresh rate data available")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, best)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
