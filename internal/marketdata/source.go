package marketdata

import (
	"context"
	"time"

	"portfolioanalytics/internal/performance"
	"portfolioanalytics/internal/utils"
)

// Cache is the slice of the store the price source needs: cached reads plus
// writes for provider results.
type Cache interface {
	GetPriceTable(ctx context.Context, tickers []string, from, to time.Time) (performance.PriceTable, error)
	GetLatestClose(ctx context.Context, ticker string) (float64, error)
	SaveClose(ctx context.Context, ticker string, date time.Time, close float64) error
}

// Provider is the remote price API.
type Provider interface {
	GetAggregates(ctx context.Context, ticker string, from, to time.Time) ([]Aggregate, error)
	GetPreviousClose(ctx context.Context, ticker string) (float64, error)
}

// Source implements performance.PriceSource on top of the local market data
// cache, pulling from the provider only for tickers with no cached rows in
// the requested window. Provider failures degrade to whatever the cache has;
// the core's resolver decides whether the remaining gaps are fatal.
type Source struct {
	cache    Cache
	provider Provider
	logger   utils.Logger
}

func NewSource(cache Cache, provider Provider, logger utils.Logger) *Source {
	return &Source{cache: cache, provider: provider, logger: logger}
}

func (s *Source) GetPriceTable(ctx context.Context, tickers []string, from, to time.Time) (performance.PriceTable, error) {
	table, err := s.cache.GetPriceTable(ctx, tickers, from, to)
	if err != nil {
		return nil, err
	}
	if s.provider == nil {
		return table, nil
	}

	for _, ticker := range tickers {
		if len(table[ticker]) > 0 {
			continue
		}
		aggs, err := s.provider.GetAggregates(ctx, ticker, from, to)
		if err != nil {
			s.logger.Warn("price refresh for %s failed, serving cache only: %v", ticker, err)
			continue
		}
		for _, agg := range aggs {
			table.Add(ticker, agg.Date, agg.Close)
			if err := s.cache.SaveClose(ctx, ticker, agg.Date, agg.Close); err != nil {
				s.logger.Warn("failed to cache close for %s: %v", ticker, err)
			}
		}
	}
	return table, nil
}

func (s *Source) GetLatestClose(ctx context.Context, ticker string) (float64, error) {
	close, err := s.cache.GetLatestClose(ctx, ticker)
	if err == nil {
		return close, nil
	}
	if s.provider == nil {
		return 0, err
	}

	close, perr := s.provider.GetPreviousClose(ctx, ticker)
	if perr != nil {
		// Surface the cache miss, the provider error is secondary.
		s.logger.Warn("previous close for %s unavailable from provider: %v", ticker, perr)
		return 0, err
	}
	if err := s.cache.SaveClose(ctx, ticker, performance.Day(time.Now()), close); err != nil {
		s.logger.Warn("failed to cache previous close for %s: %v", ticker, err)
	}
	return close, nil
}

// RefreshTickers pulls the recent daily bars for every ticker into the cache.
// The cron-driven market data refresh calls this for all ledger tickers.
func (s *Source) RefreshTickers(ctx context.Context, tickers []string, days int) {
	if s.provider == nil {
		return
	}
	to := performance.Day(time.Now())
	from := to.AddDate(0, 0, -days)
	for _, ticker := range tickers {
		aggs, err := s.provider.GetAggregates(ctx, ticker, from, to)
		if err != nil {
			s.logger.Warn("scheduled refresh for %s failed: %v", ticker, err)
			continue
		}
		for _, agg := range aggs {
			if err := s.cache.SaveClose(ctx, ticker, agg.Date, agg.Close); err != nil {
				s.logger.Warn("failed to cache close for %s: %v", ticker, err)
			}
		}
		s.logger.Debug("refreshed %d closes for %s", len(aggs), ticker)
	}
}
