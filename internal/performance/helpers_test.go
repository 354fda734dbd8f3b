package performance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"portfolioanalytics/internal/utils"
)

// In-memory collaborators. The core only ever sees these interfaces, so the
// whole calculation pipeline runs deterministically without a database.

type memLedger struct {
	txs []Transaction
}

func (l *memLedger) GetTransactions(ctx context.Context, portfolioID int64) ([]Transaction, error) {
	return l.txs, nil
}

type memSnapshots struct {
	mu   sync.Mutex
	rows map[string]DailySnapshot
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{rows: make(map[string]DailySnapshot)}
}

func snapKey(portfolioID int64, date time.Time) string {
	return fmt.Sprintf("%d|%s", portfolioID, Day(date).Format("2006-01-02"))
}

func (m *memSnapshots) GetSnapshots(ctx context.Context, portfolioID int64, from, to time.Time) ([]DailySnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var snaps []DailySnapshot
	for _, snap := range m.rows {
		if snap.PortfolioID == portfolioID && !snap.Date.Before(Day(from)) && !snap.Date.After(Day(to)) {
			snaps = append(snaps, snap)
		}
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Date.Before(snaps[j].Date) })
	return snaps, nil
}

func (m *memSnapshots) CountSnapshots(ctx context.Context, portfolioID int64, from, to time.Time) (int, error) {
	snaps, _ := m.GetSnapshots(ctx, portfolioID, from, to)
	return len(snaps), nil
}

func (m *memSnapshots) UpsertSnapshot(ctx context.Context, snap DailySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[snapKey(snap.PortfolioID, snap.Date)] = snap
	return nil
}

func (m *memSnapshots) DeleteSnapshots(ctx context.Context, portfolioID int64, from, to time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, snap := range m.rows {
		if snap.PortfolioID == portfolioID && !snap.Date.Before(Day(from)) && !snap.Date.After(Day(to)) {
			delete(m.rows, key)
		}
	}
	return nil
}

type memPrices struct {
	table PriceTable
}

func (p *memPrices) GetPriceTable(ctx context.Context, tickers []string, from, to time.Time) (PriceTable, error) {
	// Returning the full table is fine: it is a superset of the request.
	return p.table, nil
}

func (p *memPrices) GetLatestClose(ctx context.Context, ticker string) (float64, error) {
	if close, ok := p.table.LastClose(ticker, Day(time.Now()).AddDate(10, 0, 0)); ok {
		return close, nil
	}
	return 0, &MissingDataError{Ticker: ticker, Reason: "no cached close price"}
}

type memPortfolios struct {
	missing bool
}

func (p *memPortfolios) PortfolioExists(ctx context.Context, portfolioID, userID int64) (bool, error) {
	return !p.missing, nil
}

func newTestService(txs []Transaction, table PriceTable, today string) (*Service, *memSnapshots) {
	snaps := newMemSnapshots()
	svc := NewService(
		&memLedger{txs: txs},
		snaps,
		&memPrices{table: table},
		&memPortfolios{},
		utils.NewAppLogger("error"),
	)
	now := day(today)
	svc.SetClock(func() time.Time { return now })
	return svc, snaps
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func tx(ticker string, typ TransactionType, qty, price float64, when time.Time) Transaction {
	return Transaction{
		PortfolioID:   1,
		Ticker:        ticker,
		Type:          typ,
		Quantity:      qty,
		Price:         price,
		TransactionAt: when,
	}
}

// deposit/buyWithCash build ledgers that respect the pairing invariant:
// every asset trade carries an offsetting cash leg at the same timestamp.

func deposit(amount float64, when time.Time) Transaction {
	return tx(CashTicker, Deposit, amount, 1, when)
}

func withdrawal(amount float64, when time.Time) Transaction {
	return tx(CashTicker, Withdrawal, amount, 1, when)
}

func buyWithCash(ticker string, qty, price float64, when time.Time) []Transaction {
	return []Transaction{
		tx(ticker, Buy, qty, price, when),
		tx(CashTicker, Sell, qty*price, 1, when),
	}
}

func sellWithCash(ticker string, qty, price float64, when time.Time) []Transaction {
	return []Transaction{
		tx(ticker, Sell, qty, price, when),
		tx(CashTicker, Buy, qty*price, 1, when),
	}
}

// priceSeries fills a table with one close per day over [from, to].
func priceSeries(table PriceTable, ticker string, from, to time.Time, price func(day time.Time) float64) {
	for d := Day(from); !d.After(Day(to)); d = d.AddDate(0, 0, 1) {
		table.Add(ticker, d, price(d))
	}
}
