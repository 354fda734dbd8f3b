package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"portfolioanalytics/internal/utils"
)

// Aggregate is one daily bar from the provider. Only the close is used.
type Aggregate struct {
	Date  time.Time
	Close float64
}

// Client talks to the external price provider. It exposes the two operations
// the core consumes: a daily aggregate range and the previous close.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     utils.Logger
}

func NewClient(cfg utils.MarketDataConfig, logger utils.Logger) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout()},
		logger:     logger,
	}
}

// aggregatesResponse mirrors the provider's aggregate payload. Timestamps are
// unix milliseconds.
type aggregatesResponse struct {
	Ticker  string `json:"ticker"`
	Status  string `json:"status"`
	Results []struct {
		Timestamp int64   `json:"t"`
		Close     float64 `json:"c"`
	} `json:"results"`
}

// GetAggregates fetches daily close bars for ticker over [from, to].
func (c *Client) GetAggregates(ctx context.Context, ticker string, from, to time.Time) ([]Aggregate, error) {
	endpoint := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/1/day/%s/%s",
		c.baseURL, url.PathEscape(ticker), from.Format("2006-01-02"), to.Format("2006-01-02"))

	var payload aggregatesResponse
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("failed to fetch aggregates for %s: %w", ticker, err)
	}

	aggs := make([]Aggregate, 0, len(payload.Results))
	for _, r := range payload.Results {
		aggs = append(aggs, Aggregate{
			Date:  time.UnixMilli(r.Timestamp).UTC(),
			Close: r.Close,
		})
	}
	c.logger.Debug("fetched %d daily bars for %s", len(aggs), ticker)
	return aggs, nil
}

type previousCloseResponse struct {
	Ticker  string `json:"ticker"`
	Results []struct {
		Close float64 `json:"c"`
	} `json:"results"`
}

// GetPreviousClose fetches the most recent daily close for ticker.
func (c *Client) GetPreviousClose(ctx context.Context, ticker string) (float64, error) {
	endpoint := fmt.Sprintf("%s/v2/aggs/ticker/%s/prev", c.baseURL, url.PathEscape(ticker))

	var payload previousCloseResponse
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return 0, fmt.Errorf("failed to fetch previous close for %s: %w", ticker, err)
	}
	if len(payload.Results) == 0 {
		return 0, fmt.Errorf("no previous close for %s", ticker)
	}
	return payload.Results[0].Close, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		q := req.URL.Query()
		q.Set("apiKey", c.apiKey)
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
