package api

import (
	"fmt"
	"strings"
	"time"

	"portfolioanalytics/internal/performance"
)

// TransactionRequest represents the incoming ledger-write request
type TransactionRequest struct {
	Type          performance.TransactionType `json:"type"`
	Ticker        string                      `json:"ticker"`
	Quantity      float64                     `json:"quantity"`
	Price         float64                     `json:"price"`
	TransactionAt time.Time                   `json:"transaction_at"`
}

// Validate checks the request and normalizes the cash spellings: deposits
// and withdrawals are recorded against the cash ticker with price 1.
func (r *TransactionRequest) Validate() error {
	r.Ticker = strings.ToUpper(strings.TrimSpace(r.Ticker))
	r.Type = performance.TransactionType(strings.ToUpper(string(r.Type)))

	if !r.Type.Valid() {
		return fmt.Errorf("invalid transaction type: %s", r.Type)
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	if r.TransactionAt.IsZero() {
		return fmt.Errorf("transaction_at is required")
	}

	switch r.Type {
	case performance.Deposit, performance.Withdrawal:
		r.Ticker = performance.CashTicker
		if r.Price == 0 {
			r.Price = 1
		}
	default:
		if r.Ticker == "" {
			return fmt.Errorf("ticker is required for %s transactions", r.Type)
		}
	}
	if r.Price <= 0 {
		return fmt.Errorf("price must be positive")
	}
	return nil
}

// parseBoolParam coerces the loosely-typed query booleans the clients send.
func parseBoolParam(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// parseDateParam parses an optional ISO date query parameter.
func parseDateParam(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	d = performance.Day(d)
	return &d, nil
}
