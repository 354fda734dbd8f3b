package performance

import (
	"fmt"
	"sort"
	"time"
)

// PriceLookbackDays is how far the resolver walks backward from the requested
// date before a price counts as missing. Seven calendar days covers weekends
// and any normal run of market holidays.
const PriceLookbackDays = 7

// PriceTable is an immutable ticker -> date -> close price map, fetched once
// per computation. Dates are normalized with Day.
type PriceTable map[string]map[time.Time]float64

// Add records a close price. Used when building tables from store rows or
// provider responses.
func (pt PriceTable) Add(ticker string, on time.Time, close float64) {
	if pt[ticker] == nil {
		pt[ticker] = make(map[time.Time]float64)
	}
	pt[ticker][Day(on)] = close
}

// Merge copies every price from other into pt.
func (pt PriceTable) Merge(other PriceTable) {
	for ticker, series := range other {
		for on, close := range series {
			pt.Add(ticker, on, close)
		}
	}
}

// Close resolves a close price for ticker on the given date: exact date
// first, then walking backward up to PriceLookbackDays calendar days. The
// second return is false when the window is exhausted; callers decide whether
// that is fatal or a carried-forward price is acceptable.
func (pt PriceTable) Close(ticker string, on time.Time) (float64, bool) {
	series := pt[ticker]
	if series == nil {
		return 0, false
	}
	on = Day(on)
	for i := 0; i <= PriceLookbackDays; i++ {
		if price, ok := series[on.AddDate(0, 0, -i)]; ok {
			return price, true
		}
	}
	return 0, false
}

// LastClose returns the most recent close at or before the given date with
// no lookback bound. This is the carried-forward fallback used to keep
// holdings valuation continuous across long quote gaps.
func (pt PriceTable) LastClose(ticker string, on time.Time) (float64, bool) {
	series := pt[ticker]
	if series == nil {
		return 0, false
	}
	on = Day(on)
	var (
		best  time.Time
		price float64
		found bool
	)
	for date, close := range series {
		if date.After(on) {
			continue
		}
		if !found || date.After(best) {
			best, price, found = date, close, true
		}
	}
	return price, found
}

// ResolveClose is Close with the missing case promoted to the error taxonomy.
func (pt PriceTable) ResolveClose(ticker string, on time.Time) (float64, error) {
	if price, ok := pt.Close(ticker, on); ok {
		return price, nil
	}
	return 0, &MissingDataError{
		Ticker: ticker,
		Reason: fmt.Sprintf("no close price within %d days of %s", PriceLookbackDays, Day(on).Format("2006-01-02")),
	}
}

// Tickers returns the tickers present in the table, sorted for deterministic
// iteration.
func (pt PriceTable) Tickers() []string {
	tickers := make([]string, 0, len(pt))
	for t := range pt {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}
