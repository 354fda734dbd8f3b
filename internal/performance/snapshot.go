package performance

import (
	"sort"
	"time"

	"portfolioanalytics/internal/utils"
)

// Holdings is the position state of a portfolio at a point in time: asset
// quantities by ticker, with the cash balance tracked separately.
type Holdings struct {
	Quantities map[string]float64
	Cash       float64
}

// Tickers returns the held tickers sorted, for deterministic valuation.
func (h Holdings) Tickers() []string {
	tickers := make([]string, 0, len(h.Quantities))
	for t, qty := range h.Quantities {
		if qty != 0 {
			tickers = append(tickers, t)
		}
	}
	sort.Strings(tickers)
	return tickers
}

// HoldingsAsOf replays the ledger up to and including the given calendar day.
// Asset quantities come from non-cash BUY/SELL rows; the cash balance comes
// from cash-instrument rows only, since every asset trade carries its own
// offsetting cash leg.
func HoldingsAsOf(txs []Transaction, endOf time.Time) Holdings {
	endOf = Day(endOf)
	h := Holdings{Quantities: make(map[string]float64)}
	for _, tx := range txs {
		if Day(tx.TransactionAt).After(endOf) {
			continue
		}
		if tx.IsCash() {
			switch tx.Type {
			case Buy, Deposit:
				h.Cash += tx.Amount()
			case Sell, Withdrawal:
				h.Cash -= tx.Amount()
			}
			continue
		}
		switch tx.Type {
		case Buy:
			h.Quantities[tx.Ticker] += tx.Quantity
		case Sell:
			h.Quantities[tx.Ticker] -= tx.Quantity
		}
	}
	return h
}

// ComputeDailySnapshot builds the materialized performance row for one
// portfolio-day.
//
// The daily return is computed on the holdings fixed as of end of D-1, valued
// at D-1's close (start of day) and D's close (end of day). Trades and cash
// flows executed on D cannot distort D's return; they only change tomorrow's
// starting holdings. The first day of a portfolio's life has no prior
// holdings, so its return is exactly 0.
//
// Missing prices are tolerated by carrying the last known close forward with
// a warning. The day is only fatal when the portfolio holds assets and not a
// single one of them has ever had a price.
func ComputeDailySnapshot(portfolioID int64, date time.Time, txs []Transaction, prices PriceTable, logger utils.Logger) (DailySnapshot, error) {
	date = Day(date)
	prevDay := date.AddDate(0, 0, -1)

	// Fixed holdings spanning D-1 -> D.
	sod := HoldingsAsOf(txs, prevDay)

	var sodValue, eodValue float64
	for _, ticker := range sod.Tickers() {
		qty := sod.Quantities[ticker]

		sodPrice, ok := prices.Close(ticker, prevDay)
		if !ok {
			// No close yet for a ticker we already hold; carry the last
			// known price so the valuation stays continuous.
			sodPrice, ok = prices.LastClose(ticker, prevDay)
			if !ok {
				logger.Warn("snapshot %s: no start price for %s, excluding from return", date.Format("2006-01-02"), ticker)
				continue
			}
		}

		eodPrice, ok := prices.Close(ticker, date)
		if !ok {
			eodPrice, ok = prices.LastClose(ticker, date)
			if !ok {
				eodPrice = sodPrice
			}
			logger.Warn("snapshot %s: no close for %s, carrying forward %.4f", date.Format("2006-01-02"), ticker, eodPrice)
		}

		sodValue += qty * sodPrice
		eodValue += qty * eodPrice
	}

	var dailyReturn float64
	if sodValue > 0 {
		dailyReturn = eodValue/sodValue - 1
	}

	// Display values include D's own transactions, independent of the return.
	current := HoldingsAsOf(txs, date)
	stocksValue := 0.0
	priced := 0
	for _, ticker := range current.Tickers() {
		price, ok := prices.Close(ticker, date)
		if !ok {
			price, ok = prices.LastClose(ticker, date)
		}
		if !ok {
			logger.Warn("snapshot %s: %s has no price at all, valued at 0", date.Format("2006-01-02"), ticker)
			continue
		}
		priced++
		stocksValue += current.Quantities[ticker] * price
	}

	if held := current.Tickers(); len(held) > 0 && priced == 0 {
		return DailySnapshot{}, &MissingDataError{
			Ticker: held[0],
			Reason: "no price history for any held ticker on or before " + date.Format("2006-01-02"),
		}
	}

	return DailySnapshot{
		PortfolioID:    portfolioID,
		Date:           date,
		TotalValue:     stocksValue + current.Cash,
		CashBalance:    current.Cash,
		DailyReturnPct: dailyReturn,
		NetCashFlow:    NetExternalFlowOn(txs, date),
	}, nil
}
