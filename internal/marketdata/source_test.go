package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolioanalytics/internal/performance"
	"portfolioanalytics/internal/utils"
)

type fakeCache struct {
	table  performance.PriceTable
	latest map[string]float64
	saved  []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{table: performance.PriceTable{}, latest: make(map[string]float64)}
}

func (c *fakeCache) GetPriceTable(ctx context.Context, tickers []string, from, to time.Time) (performance.PriceTable, error) {
	return c.table, nil
}

func (c *fakeCache) GetLatestClose(ctx context.Context, ticker string) (float64, error) {
	if close, ok := c.latest[ticker]; ok {
		return close, nil
	}
	return 0, &performance.MissingDataError{Ticker: ticker, Reason: "not cached"}
}

func (c *fakeCache) SaveClose(ctx context.Context, ticker string, date time.Time, close float64) error {
	c.saved = append(c.saved, ticker)
	c.latest[ticker] = close
	return nil
}

type fakeProvider struct {
	aggs map[string][]Aggregate
	prev map[string]float64
	err  error
}

func (p *fakeProvider) GetAggregates(ctx context.Context, ticker string, from, to time.Time) ([]Aggregate, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.aggs[ticker], nil
}

func (p *fakeProvider) GetPreviousClose(ctx context.Context, ticker string) (float64, error) {
	if p.err != nil {
		return 0, p.err
	}
	close, ok := p.prev[ticker]
	if !ok {
		return 0, errors.New("no previous close")
	}
	return close, nil
}

func d(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func TestSource_CacheHitSkipsProvider(t *testing.T) {
	cache := newFakeCache()
	cache.table.Add("AAPL", d("2024-01-02"), 185.0)
	provider := &fakeProvider{err: errors.New("must not be called")}

	source := NewSource(cache, provider, utils.NewAppLogger("error"))
	table, err := source.GetPriceTable(context.Background(), []string{"AAPL"}, d("2024-01-01"), d("2024-01-05"))
	require.NoError(t, err)

	price, ok := table.Close("AAPL", d("2024-01-02"))
	require.True(t, ok)
	assert.Equal(t, 185.0, price)
	assert.Empty(t, cache.saved)
}

func TestSource_CacheMissFetchesAndPersists(t *testing.T) {
	cache := newFakeCache()
	provider := &fakeProvider{aggs: map[string][]Aggregate{
		"AAPL": {{Date: d("2024-01-02"), Close: 185.0}, {Date: d("2024-01-03"), Close: 186.5}},
	}}

	source := NewSource(cache, provider, utils.NewAppLogger("error"))
	table, err := source.GetPriceTable(context.Background(), []string{"AAPL"}, d("2024-01-01"), d("2024-01-05"))
	require.NoError(t, err)

	price, ok := table.Close("AAPL", d("2024-01-03"))
	require.True(t, ok)
	assert.Equal(t, 186.5, price)
	assert.Len(t, cache.saved, 2, "fetched bars are written back to the cache")
}

func TestSource_ProviderFailureDegradesToCache(t *testing.T) {
	cache := newFakeCache()
	cache.table.Add("AAPL", d("2024-01-02"), 185.0)
	provider := &fakeProvider{err: errors.New("rate limited")}

	source := NewSource(cache, provider, utils.NewAppLogger("error"))
	table, err := source.GetPriceTable(context.Background(), []string{"AAPL", "MSFT"}, d("2024-01-01"), d("2024-01-05"))
	require.NoError(t, err, "a provider outage is not fatal")

	_, ok := table.Close("MSFT", d("2024-01-02"))
	assert.False(t, ok)
}

func TestSource_LatestCloseFallsBackToProvider(t *testing.T) {
	cache := newFakeCache()
	provider := &fakeProvider{prev: map[string]float64{"AAPL": 190.25}}

	source := NewSource(cache, provider, utils.NewAppLogger("error"))
	close, err := source.GetLatestClose(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 190.25, close)
	assert.Contains(t, cache.saved, "AAPL")
}

func TestSource_LatestCloseWithoutProviderSurfacesCacheMiss(t *testing.T) {
	source := NewSource(newFakeCache(), nil, utils.NewAppLogger("error"))
	_, err := source.GetLatestClose(context.Background(), "AAPL")
	require.Error(t, err)
	assert.True(t, performance.IsMissingData(err))
}

func TestRefreshTickers(t *testing.T) {
	cache := newFakeCache()
	provider := &fakeProvider{aggs: map[string][]Aggregate{
		"AAPL": {{Date: d("2024-01-02"), Close: 185.0}},
		"MSFT": {{Date: d("2024-01-02"), Close: 405.0}},
	}}

	source := NewSource(cache, provider, utils.NewAppLogger("error"))
	source.RefreshTickers(context.Background(), []string{"AAPL", "MSFT"}, 14)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, cache.saved)
}
