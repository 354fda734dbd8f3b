package performance

import (
	"context"
	"fmt"
	"time"
)

// Windows of a year or more chart weekly points, shorter windows daily.
const weeklyGranularityDays = 365

// HistoricalPoint is one chart sample. Both series start at 100.
type HistoricalPoint struct {
	Date           time.Time `json:"date"`
	PortfolioValue float64   `json:"portfolio_value"`
	BenchmarkValue float64   `json:"benchmark_value"`
}

// HistoricalSeries is the response of GetHistoricalData.
type HistoricalSeries struct {
	Data      []HistoricalPoint `json:"data"`
	StartDate time.Time         `json:"start_date"`
	EndDate   time.Time         `json:"end_date"`
	Warning   string            `json:"warning,omitempty"`
}

// GetHistoricalData produces a base-100 normalized dual series of portfolio
// versus benchmark over the timeframe.
//
// Each portfolio step applies the same fixed-holdings technique as the daily
// snapshots: the holdings frozen at the previous point are valued at both
// points, and the resulting period return is multiplied into a running
// cumulative multiplier. Deposits and withdrawals therefore shift the
// holdings of later steps without ever bending the curve themselves. The
// benchmark's raw price series is normalized to the same base independently.
func (s *Service) GetHistoricalData(ctx context.Context, portfolioID, userID int64, benchmarkTicker string, tf Timeframe) (*HistoricalSeries, error) {
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
	start := tf.StartDate(s.now(), earliestTxDate(txs))
	series := &HistoricalSeries{StartDate: start, EndDate: end}

	if len(txs) == 0 {
		series.Warning = "portfolio has no transactions"
		return series, nil
	}

	points := chartDates(start, end)

	from := Day(earliestTxDate(txs))
	if start.Before(from) {
		from = start
	}
	prices, err := s.loadPrices(ctx, txs, []string{benchmarkTicker}, from, end)
	if err != nil {
		return nil, err
	}

	benchBase, err := prices.ResolveClose(benchmarkTicker, points[0])
	if err != nil {
		return nil, err
	}

	cumulative := 1.0
	for i, point := range points {
		if i > 0 {
			cumulative *= 1 + periodReturn(txs, prices, points[i-1], point)
		}

		benchPrice, ok := prices.Close(benchmarkTicker, point)
		if !ok {
			benchPrice, ok = prices.LastClose(benchmarkTicker, point)
			if !ok {
				benchPrice = benchBase
			}
			if series.Warning == "" {
				series.Warning = fmt.Sprintf("benchmark %s has quote gaps, carried last close forward", benchmarkTicker)
			}
		}

		series.Data = append(series.Data, HistoricalPoint{
			Date:           point,
			PortfolioValue: cumulative * 100,
			BenchmarkValue: benchPrice / benchBase * 100,
		})
	}

	return series, nil
}

// chartDates generates the sample dates for the window: daily for short
// windows, weekly once the window spans a year or more. The end date is
// always the final point.
func chartDates(start, end time.Time) []time.Time {
	start, end = Day(start), Day(end)
	step := 1
	if int(end.Sub(start).Hours()/24) >= weeklyGranularityDays {
		step = 7
	}

	var dates []time.Time
	for d := start; d.Before(end); d = d.AddDate(0, 0, step) {
		dates = append(dates, d)
	}
	return append(dates, end)
}

// periodReturn values the holdings frozen at the end of `from` at both ends
// of the step. Quote gaps carry the last close forward; a ticker with no
// price at all is excluded from both sides.
func periodReturn(txs []Transaction, prices PriceTable, from, to time.Time) float64 {
	h := HoldingsAsOf(txs, from)

	var startValue, endValue float64
	for _, ticker := range h.Tickers() {
		qty := h.Quantities[ticker]

		startPrice, ok := prices.Close(ticker, from)
		if !ok {
			startPrice, ok = prices.LastClose(ticker, from)
			if !ok {
				continue
			}
		}
		endPrice, ok := prices.Close(ticker, to)
		if !ok {
			endPrice, ok = prices.LastClose(ticker, to)
			if !ok {
				endPrice = startPrice
			}
		}

		startValue += qty * startPrice
		endValue += qty * endPrice
	}

	if startValue <= 0 {
		return 0
	}
	return endValue/startValue - 1
}
