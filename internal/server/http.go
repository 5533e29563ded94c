// Package server exposes the HTTP/JSON API: command submission for admin
// operations and manual injection, read queries against the projections,
// and the operational endpoints (health, metrics).
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"DCSLedger/internal/ingestion"
	"DCSLedger/internal/observability"
	"DCSLedger/internal/query"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const maxCommandBody = 1 << 20 // 1 MiB

// Deps holds everything the HTTP handlers need.
type Deps struct {
	Query     *query.Service
	Submitter *ingestion.Submitter
	Health    *observability.HealthChecker
	Metrics   *observability.Metrics
	Logger    zerolog.Logger
	StartTime time.Time
}

// HTTPServer serves the JSON API.
type HTTPServer struct {
	httpServer *http.Server
	router     *mux.Router
	deps       *Deps
}

func NewHTTPServer(addr string, deps *Deps) *HTTPServer {
	s := &HTTPServer{
		router: mux.NewRouter(),
		deps:   deps,
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Router exposes the handler for tests.
func (s *HTTPServer) Router() http.Handler {
	return s.router
}

func (s *HTTPServer) registerRoutes() {
	r := s.router

	r.HandleFunc("/healthz", s.deps.Health.LivenessHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.deps.Health.ReadinessHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(s.observeMiddleware)

	api.HandleFunc("/commands/{type}", s.handleSubmitCommand).Methods(http.MethodPost)

	api.HandleFunc("/products", s.handleListProducts).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", s.handleGetProduct).Methods(http.MethodGet)
	api.HandleFunc("/vaults", s.handleListVaults).Methods(http.MethodGet)
	api.HandleFunc("/vaults/{id}", s.handleGetVault).Methods(http.MethodGet)
	api.HandleFunc("/vaults/{id}/shares/{account}", s.handleGetShareBalance).Methods(http.MethodGet)
	api.HandleFunc("/vaults/{id}/operations", s.handleGetOperations).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/transfers", s.handleGetTransfers).Methods(http.MethodGet)

	api.HandleFunc("/admin/integrity", s.handleVerifyIntegrity).Methods(http.MethodGet)
	api.HandleFunc("/admin/status", s.handleStatus).Methods(http.MethodGet)
}

// Start runs the server until ctx is cancelled (blocking).
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.deps.Logger.Info().Msg("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.deps.Logger.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// --- command submission ---

type submitResponse struct {
	Sequence int64  `json:"sequence"`
	Status   string `json:"status"`
}

func (s *HTTPServer) handleSubmitCommand(w http.ResponseWriter, r *http.Request) {
	commandType := mux.Vars(r)["type"]

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
		return
	}

	cmd, err := ingestion.ParseRawCommand(ingestion.RawCommand{
		Subject:   "http",
		Data:      body,
		Timestamp: time.Now(),
	}, commandType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	seq, err := s.deps.Submitter.Submit(ctx, cmd)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			writeError(w, http.StatusServiceUnavailable, "engine busy")
			return
		}
		// The command was well-formed but the engine refused it.
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{Sequence: seq, Status: "applied"})
}

// --- queries ---

func (s *HTTPServer) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.deps.Query.ListProducts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"products": products})
}

func (s *HTTPServer) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	product, err := s.deps.Query.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if product == nil {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (s *HTTPServer) handleListVaults(w http.ResponseWriter, r *http.Request) {
	var productID *uuid.UUID
	if raw := r.URL.Query().Get("product"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid product filter")
			return
		}
		productID = &id
	}

	vaults, err := s.deps.Query.ListVaults(r.Context(), productID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"vaults": vaults})
}

func (s *HTTPServer) handleGetVault(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	v, err := s.deps.Query.GetVault(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if v == nil {
		writeError(w, http.StatusNotFound, "vault not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *HTTPServer) handleGetShareBalance(w http.ResponseWriter, r *http.Request) {
	vaultID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	account, ok := pathUUID(w, r, "account")
	if !ok {
		return
	}

	balance, err := s.deps.Query.GetShareBalance(r.Context(), vaultID, account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (s *HTTPServer) handleGetOperations(w http.ResponseWriter, r *http.Request) {
	vaultID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	limit, after, ok := pagination(w, r)
	if !ok {
		return
	}

	ops, err := s.deps.Query.GetOperations(r.Context(), vaultID, limit, after)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"operations": ops})
}

func (s *HTTPServer) handleGetTransfers(w http.ResponseWriter, r *http.Request) {
	account, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	limit, after, ok := pagination(w, r)
	if !ok {
		return
	}

	transfers, err := s.deps.Query.GetTransferHistory(r.Context(), account, limit, after)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transfers": transfers})
}

// --- admin ---

func (s *HTTPServer) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Query.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": int64(time.Since(s.deps.StartTime).Seconds()),
		"started_at":     s.deps.StartTime.UTC().Format(time.RFC3339),
	})
}

// --- middleware and helpers ---

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (s *HTTPServer) observeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tmpl
			}
		}

		if s.deps.Metrics != nil {
			s.deps.Metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(rec.status)).Inc()
			s.deps.Metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
			if rec.status >= 500 {
				s.deps.Metrics.QueryErrors.WithLabelValues(endpoint, strconv.Itoa(rec.status)).Inc()
			}
		}

		s.deps.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

func pagination(w http.ResponseWriter, r *http.Request) (int, *int64, bool) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be 1..1000")
			return 0, nil, false
		}
		limit = n
	}

	var after *int64
	if raw := r.URL.Query().Get("after"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "after must be a sequence number")
			return 0, nil, false
		}
		after = &n
	}

	return limit, after, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
