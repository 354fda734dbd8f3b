package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"portfolioanalytics/internal/performance"
	"portfolioanalytics/internal/store"
)

// Ledger write path. Every mutation schedules a snapshot backfill from the
// affected date forward, asynchronously: the write response never waits on
// recomputation, so a reader may transiently see stale snapshots and fall
// back to the live return path.

// GetTransactions handles GET /api/portfolios/{id}/transactions
func (s *Server) GetTransactions(w http.ResponseWriter, r *http.Request) {
	portfolioID, userID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	exists, err := s.store.PortfolioExists(r.Context(), portfolioID, userID)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	if !exists {
		s.respondWithServiceError(w, performance.ErrPortfolioNotFound)
		return
	}

	txs, err := s.store.GetTransactions(r.Context(), portfolioID)
	if err != nil {
		s.logger.Error("Failed to fetch transactions: %v", err)
		s.respondWithError(w, http.StatusInternalServerError, "Failed to fetch transactions")
		return
	}
	s.respondWithJSON(w, http.StatusOK, txs)
}

// CreateTransaction handles POST /api/portfolios/{id}/transactions
func (s *Server) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	portfolioID, userID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}

	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	exists, err := s.store.PortfolioExists(r.Context(), portfolioID, userID)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	if !exists {
		s.respondWithServiceError(w, performance.ErrPortfolioNotFound)
		return
	}

	created, err := s.store.CreateTransaction(r.Context(), performance.Transaction{
		PortfolioID:   portfolioID,
		Ticker:        req.Ticker,
		Type:          req.Type,
		Quantity:      req.Quantity,
		Price:         req.Price,
		TransactionAt: req.TransactionAt,
	})
	if err != nil {
		s.logger.Error("Failed to create transaction: %v", err)
		s.respondWithError(w, http.StatusInternalServerError, "Failed to create transaction")
		return
	}

	if s.trigger != nil {
		s.trigger.TriggerBackfill(portfolioID, created.TransactionAt)
	}

	s.respondWithJSON(w, http.StatusCreated, created)
}

// DeleteTransaction handles DELETE /api/portfolios/{id}/transactions/{txId}.
// The row is soft-voided, never removed; an update is modeled as
// delete-plus-create by the clients.
func (s *Server) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	portfolioID, userID, ok := s.requestIdentity(w, r)
	if !ok {
		return
	}
	txID, err := strconv.ParseInt(mux.Vars(r)["txId"], 10, 64)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid transaction ID")
		return
	}

	exists, err := s.store.PortfolioExists(r.Context(), portfolioID, userID)
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}
	if !exists {
		s.respondWithServiceError(w, performance.ErrPortfolioNotFound)
		return
	}

	voidedAt, err := s.store.VoidTransaction(r.Context(), portfolioID, txID)
	if errors.Is(err, store.ErrTransactionNotFound) {
		s.respondWithError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.respondWithServiceError(w, err)
		return
	}

	if s.trigger != nil {
		s.trigger.TriggerBackfill(portfolioID, voidedAt)
	}

	s.respondWithJSON(w, http.StatusOK, map[string]string{"message": "Transaction voided"})
}
