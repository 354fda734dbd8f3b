package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"portfolioanalytics/internal/performance"
)

// requestIdentity pulls the already-authenticated caller identity and the
// portfolio id out of the request. Authentication itself happens upstream;
// this layer only forwards the tuple.
func (s *Server) requestIdentity(w http.ResponseWriter, r *http.Request) (portfolioID, userID int64, ok bool) {
	vars := mux.Vars(r)
	portfolioID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid portfolio ID")
		return 0, 0, false
	}

	userStr := r.Header.Get("X-User-ID")
	if userStr == "" {
		userStr = r.URL.Query().Get("user_id")
	}
	userID, err = strconv.ParseInt(userStr, 10, 64)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Missing or invalid user ID")
		return 0, 0, false
	}
	return portfolioID, userID, true
}

// GetInternalReturn handles GET /api/portfolios/{id}/returns?timeframe=
func (s *Server) GetInternalReturn(w http.ResponseWriter, r *http.Request) {
	portfolioID, userID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	tf, err := performance.ParseTimeframe(r.URL.Query().Get("timeframe"))
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.service.CalculateInternalReturn(r.Context(), portfolioID, userID, tf)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, result)
}

// GetBenchmarkComparison handles GET /api/portfolios/{id}/benchmark?ticker=&timeframe=&asOf=
func (s *Server) GetBenchmarkComparison(w http.ResponseWriter, r *http.Request) {
	portfolioID, userID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	tf, err := performance.ParseTimeframe(r.URL.Query().Get("timeframe"))
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	asOf, err := parseDateParam(r.URL.Query().Get("asOf"))
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	ticker := r.URL.Query().Get("ticker")
	if ticker == "" {
		s.respondWithError(w, http.StatusBadRequest, "benchmark ticker is required")
		return
	}

	result, err := s.service.GetBenchmarkComparison(r.Context(), portfolioID, userID, ticker, tf, asOf)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, result)
}

// GetHistoricalData handles GET /api/portfolios/{id}/history?ticker=&timeframe=
func (s *Server) GetHistoricalData(w http.ResponseWriter, r *http.Request) {
	portfolioID, userID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	tf, err := performance.ParseTimeframe(r.URL.Query().Get("timeframe"))
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	ticker := r.URL.Query().Get("ticker")
	if ticker == "" {
		s.respondWithError(w, http.StatusBadRequest, "benchmark ticker is required")
		return
	}

	result, err := s.service.GetHistoricalData(r.Context(), portfolioID, userID, ticker, tf)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, result)
}

// GetPortfolioSummary handles GET /api/portfolios/{id}/summary
func (s *Server) GetPortfolioSummary(w http.ResponseWriter, r *http.Request) {
	portfolioID, userID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	result, err := s.service.GetPortfolioSummary(r.Context(), portfolioID, userID)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, result)
}

// EnsureSnapshots handles POST /api/portfolios/{id}/snapshots?from=&force=
// It runs synchronously: the caller asked for snapshots and wants to know
// how many days were computed.
func (s *Server) EnsureSnapshots(w http.ResponseWriter, r *http.Request) {
	portfolioID, userID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	// Ownership is enforced here; the backfill itself is also reachable from
	// internal triggers that have no user attached.
	exists, err := s.store.PortfolioExists(r.Context(), portfolioID, userID)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	if !exists {
		s.respondWithServiceError(w, performance.ErrPortfolioNotFound)
		return
	}

	from, err := parseDateParam(r.URL.Query().Get("from"))
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	force := parseBoolParam(r.URL.Query().Get("force"))

	result, err := s.service.EnsureSnapshotsExist(r.Context(), portfolioID, from, force)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, result)
}
