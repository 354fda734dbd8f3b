package performance

import (
	"context"
	"fmt"
	"time"

	"portfolioanalytics/internal/utils"
)

// BenchmarkComparison is the response of GetBenchmarkComparison.
type BenchmarkComparison struct {
	PortfolioReturn float64   `json:"portfolio_return"`
	BenchmarkReturn float64   `json:"benchmark_return"`
	Alpha           float64   `json:"alpha"`
	BenchmarkTicker string    `json:"benchmark_ticker"`
	Timeframe       Timeframe `json:"timeframe"`
	PeriodDays      int       `json:"period_days,omitempty"`
	Warning         string    `json:"warning,omitempty"`
}

// LinkReturns geometrically links a sequence of sub-period returns into a
// cumulative return. This is the time-weighted composition: external cash
// flow timing cannot move the result.
func LinkReturns(returns []float64) float64 {
	cumulative := 1.0
	for _, r := range returns {
		cumulative *= 1 + r
	}
	return cumulative - 1
}

// GetBenchmarkComparison computes the portfolio's return over the timeframe,
// the benchmark's price return over the same window, and their difference.
//
// The snapshot path is canonical: when daily snapshots cover the window the
// portfolio return is the geometric link of their daily returns. When no
// snapshots exist yet (for example right after a ledger write, while the
// auto-triggered backfill is still running) the live path approximates the
// asset-only return directly from the ledger; its result always carries a
// warning naming the method, because the two formulas can diverge.
func (s *Service) GetBenchmarkComparison(ctx context.Context, portfolioID, userID int64, benchmarkTicker string, tf Timeframe, asOf *time.Time) (*BenchmarkComparison, error) {
	if err := s.checkOwnership(ctx, portfolioID, userID); err != nil {
		return nil, err
	}
	if benchmarkTicker == "" || benchmarkTicker == CashTicker {
		return nil, &MissingDataError{Ticker: benchmarkTicker, Reason: "benchmark ticker is required"}
	}

	txs, err := s.ledger.GetTransactions(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}

	end := Day(s.now())
	if asOf != nil {
		end = Day(*asOf)
	}
	start := tf.StartDate(end, earliestTxDate(txs))

	prices, err := s.loadPrices(ctx, txs, []string{benchmarkTicker}, start, end)
	if err != nil {
		return nil, err
	}

	benchStart, err := prices.ResolveClose(benchmarkTicker, start)
	if err != nil {
		return nil, err
	}
	benchEnd, err := prices.ResolveClose(benchmarkTicker, end)
	if err != nil {
		return nil, err
	}
	benchReturn := benchEnd/benchStart - 1

	comparison := &BenchmarkComparison{
		BenchmarkReturn: benchReturn,
		BenchmarkTicker: benchmarkTicker,
		Timeframe:       tf,
		PeriodDays:      int(end.Sub(start).Hours() / 24),
	}

	snaps, err := s.snapshots.GetSnapshots(ctx, portfolioID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshots: %w", err)
	}

	if len(snaps) > 0 {
		returns := make([]float64, len(snaps))
		for i, snap := range snaps {
			returns[i] = snap.DailyReturnPct
		}
		comparison.PortfolioReturn = LinkReturns(returns)
	} else {
		portfolioReturn, warning := liveReturn(txs, prices, start, end, s.logger)
		comparison.PortfolioReturn = portfolioReturn
		comparison.Warning = warning
	}

	comparison.Alpha = comparison.PortfolioReturn - comparison.BenchmarkReturn
	return comparison, nil
}

// liveReturn approximates the window's asset-only return straight from the
// ledger. Net new stock money spent during the window is removed from the
// value change so purchases do not masquerade as gains. Return on zero
// invested capital is undefined, so the window is clamped to the first
// external deposit.
func liveReturn(txs []Transaction, prices PriceTable, start, end time.Time, logger utils.Logger) (float64, string) {
	const method = "computed from live ledger data, snapshot history unavailable"

	firstDeposit := FirstExternalDeposit(txs)
	if firstDeposit.IsZero() {
		return 0, "portfolio has no external deposits, return undefined; " + method
	}
	effectiveStart := start
	if d := Day(firstDeposit); d.After(effectiveStart) {
		effectiveStart = d
	}

	startAssets := assetsValueAt(txs, prices, effectiveStart.AddDate(0, 0, -1), logger)

	var netNewStock float64
	for _, tx := range txs {
		if tx.IsCash() {
			continue
		}
		d := Day(tx.TransactionAt)
		if d.Before(effectiveStart) || d.After(end) {
			continue
		}
		switch tx.Type {
		case Buy:
			netNewStock += tx.Amount()
		case Sell:
			netNewStock -= tx.Amount()
		}
	}

	endAssets := assetsValueAt(txs, prices, end, logger)

	denominator := startAssets + netNewStock
	if denominator <= 0 {
		return 0, "no invested capital in the period; " + method
	}
	return (endAssets - startAssets - netNewStock) / denominator, method
}
