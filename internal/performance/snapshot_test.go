package performance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolioanalytics/internal/utils"
)

func testLogger() utils.Logger {
	return utils.NewAppLogger("error")
}

func TestHoldingsAsOf(t *testing.T) {
	txs := append([]Transaction{deposit(10000, at("2024-01-02T10:00:00Z"))},
		buyWithCash("AAPL", 50, 100, at("2024-01-03T14:30:00Z"))...)
	txs = append(txs, sellWithCash("AAPL", 20, 110, at("2024-01-10T14:30:00Z"))...)

	h := HoldingsAsOf(txs, day("2024-01-02"))
	assert.Equal(t, 10000.0, h.Cash)
	assert.Empty(t, h.Tickers())

	h = HoldingsAsOf(txs, day("2024-01-03"))
	assert.Equal(t, 5000.0, h.Cash)
	assert.Equal(t, 50.0, h.Quantities["AAPL"])

	h = HoldingsAsOf(txs, day("2024-01-10"))
	assert.Equal(t, 7200.0, h.Cash)
	assert.Equal(t, 30.0, h.Quantities["AAPL"])
}

func TestComputeDailySnapshot_CashOnlyPortfolio(t *testing.T) {
	txs := []Transaction{deposit(10000, at("2024-01-02T10:00:00Z"))}

	snap, err := ComputeDailySnapshot(1, day("2024-01-05"), txs, PriceTable{}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.DailyReturnPct)
	assert.Equal(t, 10000.0, snap.TotalValue)
	assert.Equal(t, 10000.0, snap.CashBalance)
	assert.Equal(t, 0.0, snap.NetCashFlow)
}

func TestComputeDailySnapshot_FirstDayReturnIsZero(t *testing.T) {
	txs := append([]Transaction{deposit(10000, at("2024-01-02T10:00:00Z"))},
		buyWithCash("AAPL", 100, 100, at("2024-01-02T14:30:00Z"))...)

	table := PriceTable{}
	table.Add("AAPL", day("2024-01-02"), 100)

	snap, err := ComputeDailySnapshot(1, day("2024-01-02"), txs, table, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.DailyReturnPct, "no prior holdings means no return to measure")
	assert.Equal(t, 10000.0, snap.TotalValue)
	assert.Equal(t, 10000.0, snap.NetCashFlow, "the deposit is an external inflow on its own day")
}

func TestComputeDailySnapshot_TradeOnDayDoesNotDistortReturn(t *testing.T) {
	txs := append([]Transaction{deposit(30000, at("2024-01-02T10:00:00Z"))},
		buyWithCash("AAPL", 100, 100, at("2024-01-02T14:30:00Z"))...)
	// A large buy on the measured day itself.
	txs = append(txs, buyWithCash("AAPL", 100, 110, at("2024-01-03T14:30:00Z"))...)

	table := PriceTable{}
	table.Add("AAPL", day("2024-01-02"), 100)
	table.Add("AAPL", day("2024-01-03"), 110)

	snap, err := ComputeDailySnapshot(1, day("2024-01-03"), txs, table, testLogger())
	require.NoError(t, err)
	assert.InDelta(t, 0.10, snap.DailyReturnPct, 1e-9,
		"return is measured on the 100 shares held overnight, not the 200 held at close")

	// Display values do reflect the trade: 200 shares at 110 plus leftover cash.
	assert.Equal(t, 200.0*110+9000, snap.TotalValue)
	assert.Equal(t, 9000.0, snap.CashBalance)
}

func TestComputeDailySnapshot_DepositOnDayDoesNotDistortReturn(t *testing.T) {
	txs := append([]Transaction{deposit(10000, at("2024-01-02T10:00:00Z"))},
		buyWithCash("AAPL", 100, 100, at("2024-01-02T14:30:00Z"))...)
	txs = append(txs, deposit(50000, at("2024-01-03T09:00:00Z")))

	table := PriceTable{}
	table.Add("AAPL", day("2024-01-02"), 100)
	table.Add("AAPL", day("2024-01-03"), 105)

	snap, err := ComputeDailySnapshot(1, day("2024-01-03"), txs, table, testLogger())
	require.NoError(t, err)
	assert.InDelta(t, 0.05, snap.DailyReturnPct, 1e-9)
	assert.Equal(t, 50000.0, snap.NetCashFlow)
	assert.Equal(t, 50000.0, snap.CashBalance)
}

func TestComputeDailySnapshot_FutureDepositLeavesPastDaysUntouched(t *testing.T) {
	txs := append([]Transaction{deposit(10000, at("2024-01-02T10:00:00Z"))},
		buyWithCash("AAPL", 100, 100, at("2024-01-02T14:30:00Z"))...)

	table := PriceTable{}
	table.Add("AAPL", day("2024-01-02"), 100)
	table.Add("AAPL", day("2024-01-03"), 104)

	before, err := ComputeDailySnapshot(1, day("2024-01-03"), txs, table, testLogger())
	require.NoError(t, err)

	// A deposit recorded later, dated after the computed day.
	txs = append(txs, deposit(99999, at("2024-01-10T10:00:00Z")))
	after, err := ComputeDailySnapshot(1, day("2024-01-03"), txs, table, testLogger())
	require.NoError(t, err)

	assert.Equal(t, before, after, "snapshots before the insertion date must be reproducible byte for byte")
}

func TestComputeDailySnapshot_MissingCloseCarriesForward(t *testing.T) {
	txs := append([]Transaction{deposit(10000, at("2024-01-02T10:00:00Z"))},
		buyWithCash("AAPL", 100, 100, at("2024-01-02T14:30:00Z"))...)

	table := PriceTable{}
	table.Add("AAPL", day("2024-01-02"), 100)
	// No close on the 3rd at all: the last known price is carried, so the
	// day is flat rather than fatal.

	snap, err := ComputeDailySnapshot(1, day("2024-01-03"), txs, table, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.DailyReturnPct)
	assert.Equal(t, 100.0*100, snap.TotalValue)
}

func TestComputeDailySnapshot_NoPriceHistoryAtAllIsFatal(t *testing.T) {
	txs := append([]Transaction{deposit(10000, at("2024-01-02T10:00:00Z"))},
		buyWithCash("AAPL", 100, 100, at("2024-01-02T14:30:00Z"))...)

	_, err := ComputeDailySnapshot(1, day("2024-01-05"), txs, PriceTable{}, testLogger())
	require.Error(t, err)
	assert.True(t, IsMissingData(err))
}
