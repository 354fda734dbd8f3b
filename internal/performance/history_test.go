package performance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHistoricalData_BothSeriesStartAtBase(t *testing.T) {
	txs := append([]Transaction{deposit(10000, at("2024-01-02T10:00:00Z"))},
		buyWithCash("AAPL", 100, 100, at("2024-01-02T14:30:00Z"))...)

	table := PriceTable{}
	priceSeries(table, "AAPL", day("2024-01-02"), day("2024-01-10"), func(d time.Time) float64 {
		return 100 + float64(int(d.Sub(day("2024-01-02")).Hours()/24))
	})
	priceSeries(table, "SPY", day("2024-01-02"), day("2024-01-10"), func(d time.Time) float64 {
		return 400 + 2*float64(int(d.Sub(day("2024-01-02")).Hours()/24))
	})

	svc, _ := newTestService(txs, table, "2024-01-10")

	series, err := svc.GetHistoricalData(context.Background(), 1, 7, "SPY", TimeframeAll)
	require.NoError(t, err)
	require.Len(t, series.Data, 9)

	assert.Equal(t, 100.0, series.Data[0].PortfolioValue)
	assert.Equal(t, 100.0, series.Data[0].BenchmarkValue)

	// A single position with no later flows telescopes to the price ratio.
	last := series.Data[len(series.Data)-1]
	assert.InDelta(t, 100*108.0/100.0, last.PortfolioValue, 1e-9)
	assert.InDelta(t, 100*416.0/400.0, last.BenchmarkValue, 1e-9)
}

func TestGetHistoricalData_DepositDoesNotBendCurve(t *testing.T) {
	txs := append([]Transaction{deposit(10000, at("2024-01-02T10:00:00Z"))},
		buyWithCash("AAPL", 100, 100, at("2024-01-02T14:30:00Z"))...)
	txs = append(txs, deposit(50000, at("2024-01-05T10:00:00Z")))

	table := PriceTable{}
	priceSeries(table, "AAPL", day("2024-01-02"), day("2024-01-08"), func(time.Time) float64 { return 100 })
	priceSeries(table, "SPY", day("2024-01-02"), day("2024-01-08"), func(time.Time) float64 { return 400 })

	svc, _ := newTestService(txs, table, "2024-01-08")

	series, err := svc.GetHistoricalData(context.Background(), 1, 7, "SPY", TimeframeAll)
	require.NoError(t, err)
	for _, point := range series.Data {
		assert.InDelta(t, 100.0, point.PortfolioValue, 1e-9,
			"flat prices must chart flat regardless of deposits on %s", point.Date.Format("2006-01-02"))
	}
}

func TestGetHistoricalData_EmptyPortfolio(t *testing.T) {
	svc, _ := newTestService(nil, PriceTable{}, "2024-01-08")

	series, err := svc.GetHistoricalData(context.Background(), 1, 7, "SPY", TimeframeAll)
	require.NoError(t, err)
	assert.Empty(t, series.Data)
	assert.NotEmpty(t, series.Warning)
}

func TestChartDates_DailyForShortWindows(t *testing.T) {
	dates := chartDates(day("2024-01-01"), day("2024-01-10"))
	require.Len(t, dates, 10)
	assert.Equal(t, day("2024-01-02"), dates[1])
	assert.Equal(t, day("2024-01-10"), dates[len(dates)-1])
}

func TestChartDates_WeeklyForYearPlusWindows(t *testing.T) {
	dates := chartDates(day("2024-01-01"), day("2025-01-05"))
	require.Greater(t, len(dates), 2)
	assert.Equal(t, day("2024-01-08"), dates[1], "year-plus windows sample weekly")
	assert.Equal(t, day("2025-01-05"), dates[len(dates)-1], "the end date is always the final point")
}
