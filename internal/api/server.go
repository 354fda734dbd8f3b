package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"portfolioanalytics/internal/performance"
	"portfolioanalytics/internal/store"
	"portfolioanalytics/internal/utils"
)

// Server is the HTTP front of the performance service. It validates the
// loosely-typed request surface (timeframe strings, coerced booleans) and
// hands typed values to the core.
type Server struct {
	router  *mux.Router
	logger  *utils.AppLogger
	config  *utils.Config
	db      *sql.DB
	store   *store.Store
	service *performance.Service
	trigger performance.BackfillTrigger
}

func NewServer(logger *utils.AppLogger, config *utils.Config, db *sql.DB, st *store.Store, service *performance.Service, trigger performance.BackfillTrigger) *Server {
	server := &Server{
		router:  mux.NewRouter(),
		logger:  logger,
		config:  config,
		db:      db,
		store:   st,
		service: service,
		trigger: trigger,
	}
	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.logger.Debug("Setting up routes...")

	s.router.HandleFunc("/health", s.healthCheck).Methods("GET")

	apiRouter := s.router.PathPrefix("/api").Subrouter()
	portfolioRouter := apiRouter.PathPrefix("/portfolios/{id}").Subrouter()

	routes := []struct {
		path    string
		handler http.HandlerFunc
		methods []string
	}{
		{"/returns", s.GetInternalReturn, []string{"GET"}},
		{"/benchmark", s.GetBenchmarkComparison, []string{"GET"}},
		{"/history", s.GetHistoricalData, []string{"GET"}},
		{"/summary", s.GetPortfolioSummary, []string{"GET"}},
		{"/snapshots", s.EnsureSnapshots, []string{"POST"}},
		{"/transactions", s.GetTransactions, []string{"GET"}},
		{"/transactions", s.CreateTransaction, []string{"POST"}},
		{"/transactions/{txId}", s.DeleteTransaction, []string{"DELETE"}},
	}
	for _, route := range routes {
		portfolioRouter.HandleFunc(route.path, route.handler).Methods(route.methods...)
		s.logger.Debug("Registered route: %s /api/portfolios/{id}%s", route.methods[0], route.path)
	}

	// Add CORS middleware
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-User-ID")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// Add logging middleware
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			s.logger.Debug("Request completed: %s %s (%v)", r.Method, r.URL.Path, time.Since(start))
		})
	})

	s.logger.Info("Routes setup completed")
}

// Start begins listening for HTTP requests and blocks until shutdown.
func (s *Server) Start() error {
	s.logger.Info("Starting API server on port %s", s.config.Server.Port)

	srv := &http.Server{
		Addr:         ":" + s.config.Server.Port,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error: %v", err)
			errChan <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-stop:
		s.logger.Info("Shutdown signal received")
	}

	s.logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown failed: %v", err)
		return err
	}

	s.logger.Info("Server stopped gracefully")
	return nil
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// respondWithError sends an error response with the specified status code and message
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON sends a JSON response with the specified status code and payload
func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

// respondWithServiceError maps the core's error taxonomy onto HTTP codes:
// not-found 404, missing-data 422, backfill-conflict 409, anything else 500.
func (s *Server) respondWithServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, performance.ErrPortfolioNotFound):
		s.respondWithError(w, http.StatusNotFound, err.Error())
	case performance.IsMissingData(err):
		s.respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, performance.ErrSnapshotsExist):
		s.respondWithError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed: %v", err)
		s.respondWithError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.respondWithError(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	s.respondWithJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": "1.0.0",
	})
}
