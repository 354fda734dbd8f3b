package performance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolioanalytics/internal/utils"
)

func TestCalculateInternalReturn_TenPercentYear(t *testing.T) {
	txs := append([]Transaction{deposit(10000, at("2024-01-01T10:00:00Z"))},
		buyWithCash("AAPL", 100, 100, at("2024-01-01T14:30:00Z"))...)

	table := PriceTable{}
	table.Add("AAPL", day("2024-01-01"), 100)
	table.Add("AAPL", day("2024-12-31"), 110)

	svc, _ := newTestService(txs, table, "2025-01-01")

	result, err := svc.CalculateInternalReturn(context.Background(), 1, 7, TimeframeAll)
	require.NoError(t, err)
	assert.Empty(t, result.Warning)
	assert.InDelta(t, 10.0, result.ReturnPercentage, 0.1)

	require.Len(t, result.CashFlows, 2)
	assert.Equal(t, -10000.0, result.CashFlows[0].Amount)
	assert.Equal(t, 11000.0, result.CashFlows[1].Amount)
}

func TestCalculateInternalReturn_WindowedOpeningValueBracketsFlows(t *testing.T) {
	txs := append([]Transaction{deposit(10000, at("2024-01-01T10:00:00Z"))},
		buyWithCash("AAPL", 100, 100, at("2024-01-01T14:30:00Z"))...)

	table := PriceTable{}
	priceSeries(table, "AAPL", day("2024-01-01"), day("2024-06-30"), func(time.Time) float64 { return 100 })

	svc, _ := newTestService(txs, table, "2024-06-30")

	result, err := svc.CalculateInternalReturn(context.Background(), 1, 7, Timeframe1M)
	require.NoError(t, err)
	require.NotEmpty(t, result.CashFlows)

	// Value already invested before the window enters as an initial outflow.
	first := result.CashFlows[0]
	assert.Equal(t, result.StartDate, first.Date)
	assert.Negative(t, first.Amount)
	// Flat prices over the window mean a near-zero rate.
	assert.InDelta(t, 0.0, result.ReturnPercentage, 0.5)
}

func TestCalculateInternalReturn_NoTransactions(t *testing.T) {
	svc, _ := newTestService(nil, PriceTable{}, "2024-06-30")

	result, err := svc.CalculateInternalReturn(context.Background(), 1, 7, TimeframeAll)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Warning)
	assert.Equal(t, 0.0, result.ReturnPercentage)
}

func TestServiceRejectsUnknownPortfolio(t *testing.T) {
	svc := NewService(
		&memLedger{},
		newMemSnapshots(),
		&memPrices{table: PriceTable{}},
		&memPortfolios{missing: true},
		utils.NewAppLogger("error"),
	)

	_, err := svc.CalculateInternalReturn(context.Background(), 99, 7, TimeframeAll)
	assert.ErrorIs(t, err, ErrPortfolioNotFound)

	_, err = svc.GetBenchmarkComparison(context.Background(), 99, 7, "SPY", TimeframeAll, nil)
	assert.ErrorIs(t, err, ErrPortfolioNotFound)

	_, err = svc.GetHistoricalData(context.Background(), 99, 7, "SPY", TimeframeAll)
	assert.ErrorIs(t, err, ErrPortfolioNotFound)

	_, err = svc.GetPortfolioSummary(context.Background(), 99, 7)
	assert.ErrorIs(t, err, ErrPortfolioNotFound)
}

func TestGetPortfolioSummary(t *testing.T) {
	txs := append([]Transaction{deposit(10000, at("2024-01-01T10:00:00Z"))},
		buyWithCash("AAPL", 100, 100, at("2024-01-01T14:30:00Z"))...)

	table := PriceTable{}
	table.Add("AAPL", day("2024-01-01"), 100)
	table.Add("AAPL", day("2024-03-01"), 110)

	svc, _ := newTestService(txs, table, "2024-03-05")

	summary, err := svc.GetPortfolioSummary(context.Background(), 1, 7)
	require.NoError(t, err)
	assert.Equal(t, 0.0, summary.CashBalance)
	assert.Equal(t, 11000.0, summary.StocksValue)
	assert.Equal(t, 11000.0, summary.TotalValue)
	assert.Equal(t, 10000.0, summary.CostBasis)
	assert.Equal(t, 1000.0, summary.UnrealizedGain)
}

func TestAverageCostBasis_SellsReleaseAverageCost(t *testing.T) {
	txs := append(buyWithCash("AAPL", 100, 100, at("2024-01-01T14:30:00Z")),
		buyWithCash("AAPL", 100, 120, at("2024-02-01T14:30:00Z"))...)
	// Average cost is 110; selling 50 shares releases 5500 of basis.
	txs = append(txs, sellWithCash("AAPL", 50, 130, at("2024-03-01T14:30:00Z"))...)

	assert.InDelta(t, 16500.0, averageCostBasis(txs), 1e-9)
}
