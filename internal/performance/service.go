package performance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"portfolioanalytics/internal/utils"
)

// Service computes and caches portfolio performance. All collaborators are
// injected; the service holds no database handles and no global state, which
// keeps every calculation deterministic under test.
type Service struct {
	ledger     Ledger
	snapshots  SnapshotStore
	prices     PriceSource
	portfolios PortfolioReader
	logger     utils.Logger
	now        func() time.Time

	mu            sync.Mutex
	backfillLocks map[int64]*sync.Mutex
}

func NewService(ledger Ledger, snapshots SnapshotStore, prices PriceSource, portfolios PortfolioReader, logger utils.Logger) *Service {
	return &Service{
		ledger:        ledger,
		snapshots:     snapshots,
		prices:        prices,
		portfolios:    portfolios,
		logger:        logger,
		now:           time.Now,
		backfillLocks: make(map[int64]*sync.Mutex),
	}
}

// SetClock overrides the service clock. Tests use it to pin "today".
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// backfillLock returns the mutex serializing snapshot writes for one
// portfolio. Snapshot days depend on the previous day's holdings, so two
// backfills for the same portfolio must never interleave; different
// portfolios run concurrently.
func (s *Service) backfillLock(portfolioID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.backfillLocks[portfolioID]
	if !ok {
		lock = &sync.Mutex{}
		s.backfillLocks[portfolioID] = lock
	}
	return lock
}

func (s *Service) checkOwnership(ctx context.Context, portfolioID, userID int64) error {
	ok, err := s.portfolios.PortfolioExists(ctx, portfolioID, userID)
	if err != nil {
		return fmt.Errorf("failed to check portfolio: %w", err)
	}
	if !ok {
		return ErrPortfolioNotFound
	}
	return nil
}

// InternalReturnResult is the response of CalculateInternalReturn.
type InternalReturnResult struct {
	Timeframe        Timeframe  `json:"timeframe"`
	StartDate        time.Time  `json:"start_date"`
	EndDate          time.Time  `json:"end_date"`
	ReturnPercentage float64    `json:"return_percentage"`
	CashFlows        []CashFlow `json:"cash_flows"`
	Warning          string     `json:"warning,omitempty"`
}

// CalculateInternalReturn computes the money-weighted (XIRR) return of the
// portfolio over the timeframe. The flow series is the external cash flows
// inside the window, bracketed by the portfolio value at the window start
// (money already invested) and the current portfolio value (money that would
// come back).
func (s *Service) CalculateInternalReturn(ctx context.Context, portfolioID, userID int64, tf Timeframe) (*InternalReturnResult, error) {
	if err := s.checkOwnership(ctx, portfolioID, userID); err != nil {
		return nil, err
	}

	txs, err := s.ledger.GetTransactions(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}

	end := Day(s.now())
	start := tf.StartDate(s.now(), earliestTxDate(txs))
	result := &InternalReturnResult{Timeframe: tf, StartDate: start, EndDate: end}

	if len(txs) == 0 {
		result.Warning = "portfolio has no transactions"
		return result, nil
	}

	prices, err := s.loadPrices(ctx, txs, nil, earliestTxDate(txs), end)
	if err != nil {
		return nil, err
	}

	var flows []CashFlow

	// Value already in the portfolio at window start counts as an initial
	// investment. For ALL the window starts at the first transaction, so the
	// opening value is zero and only real flows appear.
	openValue := portfolioValueAt(txs, prices, start.AddDate(0, 0, -1), s.logger)
	if openValue > 0 {
		flows = append(flows, CashFlow{Date: start, Amount: -openValue})
	}

	for _, f := range ExternalCashFlows(txs) {
		d := Day(f.Date)
		if !d.Before(start) && !d.After(end) {
			flows = append(flows, CashFlow{Date: d, Amount: f.Amount})
		}
	}

	if endValue := portfolioValueAt(txs, prices, end, s.logger); endValue > 0 {
		flows = append(flows, CashFlow{Date: end, Amount: endValue})
	}

	sortFlows(flows)
	result.CashFlows = flows

	if len(flows) < 2 {
		result.Warning = "not enough cash flows in the period to compute a rate"
		return result, nil
	}

	solved, err := XIRR(flows, 0)
	if err != nil {
		return nil, err
	}
	result.ReturnPercentage = solved.Rate * 100
	if !solved.Converged {
		result.Warning = fmt.Sprintf("rate did not converge after %d iterations, returning best-effort value", solved.Iterations)
	}
	return result, nil
}

// GetPortfolioSummary values the current holdings at the latest close and
// reports unrealized P/L against the average cost basis.
func (s *Service) GetPortfolioSummary(ctx context.Context, portfolioID, userID int64) (*PortfolioSummary, error) {
	if err := s.checkOwnership(ctx, portfolioID, userID); err != nil {
		return nil, err
	}

	txs, err := s.ledger.GetTransactions(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}

	holdings := HoldingsAsOf(txs, Day(s.now()))
	costBasis := averageCostBasis(txs)

	summary := &PortfolioSummary{
		PortfolioID: portfolioID,
		CashBalance: holdings.Cash,
	}
	for _, ticker := range holdings.Tickers() {
		price, err := s.prices.GetLatestClose(ctx, ticker)
		if err != nil {
			s.logger.Warn("summary: no latest close for %s: %v", ticker, err)
			continue
		}
		summary.StocksValue += holdings.Quantities[ticker] * price
	}
	summary.TotalValue = summary.StocksValue + summary.CashBalance
	summary.CostBasis = costBasis
	summary.UnrealizedGain = summary.StocksValue - costBasis
	return summary, nil
}

// loadPrices fetches one immutable price table covering the computation. The
// range is widened by the lookback window so the resolver can walk backward
// from the first requested date.
func (s *Service) loadPrices(ctx context.Context, txs []Transaction, extraTickers []string, from, to time.Time) (PriceTable, error) {
	seen := make(map[string]bool)
	var tickers []string
	for _, tx := range txs {
		if tx.IsCash() || seen[tx.Ticker] {
			continue
		}
		seen[tx.Ticker] = true
		tickers = append(tickers, tx.Ticker)
	}
	for _, t := range extraTickers {
		if t != "" && !seen[t] {
			seen[t] = true
			tickers = append(tickers, t)
		}
	}
	if len(tickers) == 0 {
		return PriceTable{}, nil
	}

	table, err := s.prices.GetPriceTable(ctx, tickers, Day(from).AddDate(0, 0, -PriceLookbackDays), Day(to))
	if err != nil {
		return nil, fmt.Errorf("failed to load price table: %w", err)
	}
	return table, nil
}

// portfolioValueAt values cash plus assets held at end of the given day,
// carrying the last known close forward for quote gaps.
func portfolioValueAt(txs []Transaction, prices PriceTable, endOf time.Time, logger utils.Logger) float64 {
	h := HoldingsAsOf(txs, endOf)
	value := h.Cash
	for _, ticker := range h.Tickers() {
		price, ok := prices.Close(ticker, endOf)
		if !ok {
			price, ok = prices.LastClose(ticker, endOf)
		}
		if !ok {
			logger.Warn("valuation %s: no price for %s", Day(endOf).Format("2006-01-02"), ticker)
			continue
		}
		value += h.Quantities[ticker] * price
	}
	return value
}

// assetsValueAt is portfolioValueAt without the cash balance.
func assetsValueAt(txs []Transaction, prices PriceTable, endOf time.Time, logger utils.Logger) float64 {
	h := HoldingsAsOf(txs, endOf)
	return portfolioValueAt(txs, prices, endOf, logger) - h.Cash
}

// averageCostBasis replays asset trades with average-cost accounting and
// returns the cost of the shares still held.
func averageCostBasis(txs []Transaction) float64 {
	cost := make(map[string]float64)
	qty := make(map[string]float64)
	for _, tx := range txs {
		if tx.IsCash() {
			continue
		}
		switch tx.Type {
		case Buy:
			cost[tx.Ticker] += tx.Amount()
			qty[tx.Ticker] += tx.Quantity
		case Sell:
			if qty[tx.Ticker] > 0 {
				avg := cost[tx.Ticker] / qty[tx.Ticker]
				cost[tx.Ticker] -= avg * tx.Quantity
			}
			qty[tx.Ticker] -= tx.Quantity
		}
	}
	var total float64
	for _, c := range cost {
		total += c
	}
	return total
}

func earliestTxDate(txs []Transaction) time.Time {
	var earliest time.Time
	for _, tx := range txs {
		if earliest.IsZero() || tx.TransactionAt.Before(earliest) {
			earliest = tx.TransactionAt
		}
	}
	return earliest
}

func sortFlows(flows []CashFlow) {
	sort.SliceStable(flows, func(i, j int) bool {
		return flows[i].Date.Before(flows[j].Date)
	})
}
