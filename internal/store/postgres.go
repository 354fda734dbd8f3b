package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"portfolioanalytics/internal/performance"
	"portfolioanalytics/internal/utils"
)

// ErrTransactionNotFound is returned when a ledger row does not exist or is
// already voided.
var ErrTransactionNotFound = errors.New("transaction not found")

// Store is the Postgres implementation of the core's collaborators: ledger
// reader, snapshot store, market data cache and portfolio reader.
type Store struct {
	db     *sql.DB
	logger utils.Logger
}

func New(db *sql.DB, logger utils.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Open connects to Postgres and verifies the connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// PortfolioExists checks existence and ownership in one query.
func (s *Store) PortfolioExists(ctx context.Context, portfolioID, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM portfolios WHERE id = $1 AND user_id = $2)
	`, portfolioID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check portfolio: %w", err)
	}
	return exists, nil
}

// ListPortfolioIDs returns every portfolio that has at least one transaction.
// The nightly snapshot sweep iterates this list.
func (s *Store) ListPortfolioIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT portfolio_id
		FROM portfolio_transactions
		WHERE NOT voided
		ORDER BY portfolio_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetTransactions returns the non-voided ledger for a portfolio, oldest
// first. Ties on the timestamp keep insertion order so replays are stable.
func (s *Store) GetTransactions(ctx context.Context, portfolioID int64) ([]performance.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, portfolio_id, ticker, type, quantity, price, transaction_at, created_at
		FROM portfolio_transactions
		WHERE portfolio_id = $1 AND NOT voided
		ORDER BY transaction_at ASC, id ASC
	`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	defer rows.Close()

	var txs []performance.Transaction
	for rows.Next() {
		var t performance.Transaction
		var typeStr string
		if err := rows.Scan(&t.ID, &t.PortfolioID, &t.Ticker, &typeStr, &t.Quantity, &t.Price, &t.TransactionAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Type = performance.TransactionType(typeStr)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// CreateTransaction appends a ledger row and returns it with generated
// fields filled in.
func (s *Store) CreateTransaction(ctx context.Context, t performance.Transaction) (performance.Transaction, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO portfolio_transactions (portfolio_id, ticker, type, quantity, price, transaction_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, t.PortfolioID, t.Ticker, string(t.Type), t.Quantity, t.Price, t.TransactionAt).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return performance.Transaction{}, fmt.Errorf("failed to insert transaction: %w", err)
	}
	return t, nil
}

// VoidTransaction soft-deletes a ledger row and returns its date, which is
// where the triggered backfill must restart from. The ledger is append-only;
// rows are never physically removed.
func (s *Store) VoidTransaction(ctx context.Context, portfolioID, transactionID int64) (time.Time, error) {
	var at time.Time
	err := s.db.QueryRowContext(ctx, `
		UPDATE portfolio_transactions
		SET voided = TRUE
		WHERE id = $1 AND portfolio_id = $2 AND NOT voided
		RETURNING transaction_at
	`, transactionID, portfolioID).Scan(&at)
	if err == sql.ErrNoRows {
		return time.Time{}, ErrTransactionNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to void transaction: %w", err)
	}
	return at, nil
}

// GetSnapshots returns snapshots in [from, to], oldest first.
func (s *Store) GetSnapshots(ctx context.Context, portfolioID int64, from, to time.Time) ([]performance.DailySnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT portfolio_id, date, total_value, cash_balance, daily_return_pct, net_cash_flow
		FROM daily_portfolio_snapshots
		WHERE portfolio_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date ASC
	`, portfolioID, performance.Day(from), performance.Day(to))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []performance.DailySnapshot
	for rows.Next() {
		var snap performance.DailySnapshot
		if err := rows.Scan(&snap.PortfolioID, &snap.Date, &snap.TotalValue, &snap.CashBalance, &snap.DailyReturnPct, &snap.NetCashFlow); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snap.Date = performance.Day(snap.Date)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *Store) CountSnapshots(ctx context.Context, portfolioID int64, from, to time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM daily_portfolio_snapshots
		WHERE portfolio_id = $1 AND date BETWEEN $2 AND $3
	`, portfolioID, performance.Day(from), performance.Day(to)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return count, nil
}

// UpsertSnapshot writes one snapshot row atomically, last write wins. The
// primary key on (portfolio_id, date) makes a racing duplicate impossible.
func (s *Store) UpsertSnapshot(ctx context.Context, snap performance.DailySnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_portfolio_snapshots
			(portfolio_id, date, total_value, cash_balance, daily_return_pct, net_cash_flow, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP)
		ON CONFLICT (portfolio_id, date) DO UPDATE SET
			total_value = EXCLUDED.total_value,
			cash_balance = EXCLUDED.cash_balance,
			daily_return_pct = EXCLUDED.daily_return_pct,
			net_cash_flow = EXCLUDED.net_cash_flow,
			computed_at = CURRENT_TIMESTAMP
	`, snap.PortfolioID, performance.Day(snap.Date), snap.TotalValue, snap.CashBalance, snap.DailyReturnPct, snap.NetCashFlow)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

func (s *Store) DeleteSnapshots(ctx context.Context, portfolioID int64, from, to time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM daily_portfolio_snapshots
		WHERE portfolio_id = $1 AND date BETWEEN $2 AND $3
	`, portfolioID, performance.Day(from), performance.Day(to))
	if err != nil {
		return fmt.Errorf("failed to delete snapshots: %w", err)
	}
	return nil
}

// GetPriceTable loads the market data cache for the given tickers and range
// into an immutable price table.
func (s *Store) GetPriceTable(ctx context.Context, tickers []string, from, to time.Time) (performance.PriceTable, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, date, close_price
		FROM market_data_daily
		WHERE ticker = ANY($1) AND date BETWEEN $2 AND $3
	`, pq.Array(tickers), performance.Day(from), performance.Day(to))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market data: %w", err)
	}
	defer rows.Close()

	table := performance.PriceTable{}
	for rows.Next() {
		var ticker string
		var date time.Time
		var close float64
		if err := rows.Scan(&ticker, &date, &close); err != nil {
			return nil, fmt.Errorf("failed to scan market data row: %w", err)
		}
		table.Add(ticker, date, close)
	}
	return table, rows.Err()
}

// GetLatestClose returns the newest cached close for a ticker.
func (s *Store) GetLatestClose(ctx context.Context, ticker string) (float64, error) {
	var close float64
	err := s.db.QueryRowContext(ctx, `
		SELECT close_price
		FROM market_data_daily
		WHERE ticker = $1
		ORDER BY date DESC
		LIMIT 1
	`, ticker).Scan(&close)
	if err == sql.ErrNoRows {
		return 0, &performance.MissingDataError{Ticker: ticker, Reason: "no cached close price"}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get latest close: %w", err)
	}
	return close, nil
}

// SaveClose upserts one cached close price. The ingestion collaborator owns
// this table; the core only reads it.
func (s *Store) SaveClose(ctx context.Context, ticker string, date time.Time, close float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_data_daily (ticker, date, close_price)
		VALUES ($1, $2, $3)
		ON CONFLICT (ticker, date) DO UPDATE SET close_price = EXCLUDED.close_price
	`, ticker, performance.Day(date), close)
	if err != nil {
		return fmt.Errorf("failed to save close price: %w", err)
	}
	return nil
}

// KnownTickers lists every non-cash ticker referenced by the ledger. The
// scheduled market data refresh uses it to know what to fetch.
func (s *Store) KnownTickers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ticker
		FROM portfolio_transactions
		WHERE ticker <> $1 AND NOT voided
		ORDER BY ticker
	`, performance.CashTicker)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}
