package performance

import (
	"context"
	"time"
)

// CashTicker is the reserved symbol for the cash instrument. Deposits and
// withdrawals are recorded against it, and it is excluded from holdings.
const CashTicker = "CASH"

// TransactionType represents the type of transaction
type TransactionType string

const (
	Buy        TransactionType = "BUY"
	Sell       TransactionType = "SELL"
	Deposit    TransactionType = "DEPOSIT"
	Withdrawal TransactionType = "WITHDRAWAL"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case Buy, Sell, Deposit, Withdrawal:
		return true
	}
	return false
}

// Transaction is one entry of the append-only ledger. Rows are never mutated,
// only created or soft-voided.
type Transaction struct {
	ID            int64           `json:"id"`
	PortfolioID   int64           `json:"portfolio_id"`
	Ticker        string          `json:"ticker"`
	Type          TransactionType `json:"type"`
	Quantity      float64         `json:"quantity"`
	Price         float64         `json:"price"`
	TransactionAt time.Time       `json:"transaction_at"`
	CreatedAt     time.Time       `json:"created_at"`
}

// IsCash reports whether the transaction moves the cash instrument rather
// than an asset. DEPOSIT and WITHDRAWAL are cash by definition regardless of
// the recorded ticker.
func (t Transaction) IsCash() bool {
	return t.Ticker == CashTicker || t.Type == Deposit || t.Type == Withdrawal
}

// Amount is the gross money value of the transaction.
func (t Transaction) Amount() float64 {
	return t.Quantity * t.Price
}

// DailySnapshot is one materialized performance row per portfolio per
// calendar date. It is always re-derivable from the ledger and price history.
type DailySnapshot struct {
	PortfolioID    int64     `json:"portfolio_id"`
	Date           time.Time `json:"date"`
	TotalValue     float64   `json:"total_value"`
	CashBalance    float64   `json:"cash_balance"`
	DailyReturnPct float64   `json:"daily_return_pct"`
	NetCashFlow    float64   `json:"net_cash_flow"`
}

// CashFlow is a dated, signed money movement. Used by the XIRR solver;
// negative amounts are money invested, positive amounts money returned.
type CashFlow struct {
	Date   time.Time `json:"date"`
	Amount float64   `json:"amount"`
}

// PortfolioSummary is the current-state view of a portfolio.
type PortfolioSummary struct {
	PortfolioID    int64   `json:"portfolio_id"`
	TotalValue     float64 `json:"total_value"`
	CashBalance    float64 `json:"cash_balance"`
	StocksValue    float64 `json:"stocks_value"`
	CostBasis      float64 `json:"cost_basis"`
	UnrealizedGain float64 `json:"unrealized_gain"`
}

// Ledger reads the transaction list for a portfolio, oldest first, voided
// rows excluded.
type Ledger interface {
	GetTransactions(ctx context.Context, portfolioID int64) ([]Transaction, error)
}

// SnapshotStore persists daily snapshots. UpsertSnapshot must be atomic for
// a given (portfolio, date) pair: last write wins, never duplicate rows.
type SnapshotStore interface {
	GetSnapshots(ctx context.Context, portfolioID int64, from, to time.Time) ([]DailySnapshot, error)
	CountSnapshots(ctx context.Context, portfolioID int64, from, to time.Time) (int, error)
	UpsertSnapshot(ctx context.Context, snap DailySnapshot) error
	DeleteSnapshots(ctx context.Context, portfolioID int64, from, to time.Time) error
}

// PriceSource provides close prices. GetPriceTable returns an immutable
// table covering [from, to] for the given tickers; it is fetched once per
// computation so a calculation never sees a price change mid-flight.
type PriceSource interface {
	GetPriceTable(ctx context.Context, tickers []string, from, to time.Time) (PriceTable, error)
	GetLatestClose(ctx context.Context, ticker string) (float64, error)
}

// PortfolioReader answers existence and ownership checks.
type PortfolioReader interface {
	PortfolioExists(ctx context.Context, portfolioID, userID int64) (bool, error)
}

// BackfillTrigger schedules an asynchronous snapshot backfill. Implementations
// must return immediately; a ledger write never blocks on recomputation.
type BackfillTrigger interface {
	TriggerBackfill(portfolioID int64, from time.Time)
}

// Day normalizes a timestamp to its calendar date (midnight UTC). All
// snapshot and price-table keys use this form.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
