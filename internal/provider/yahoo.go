package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stock-sync/pkg/config"
	"github.com/stock-sync/pkg/models"
)

// Client fetches daily OHLCV bars from the Yahoo Finance chart API.
// Safe for concurrent use; calls are spaced out globally per client.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	symbolSuffix string
	userAgent    string
	logger       *logrus.Entry
	rateLimit    time.Duration

	rateMu   sync.Mutex
	lastCall time.Time
}

// chartResponse mirrors the v8 chart API payload
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol string `json:"symbol"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// NewClient creates a new provider client
func NewClient(cfg *config.ProviderConfig, logger *logrus.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:      cfg.BaseURL,
		symbolSuffix: cfg.SymbolSuffix,
		userAgent:    cfg.UserAgent,
		logger:       logger.WithField("component", "provider"),
		rateLimit:    cfg.MinInterval,
	}
}

// FetchDailyBars fetches daily bars for a symbol over the inclusive
// [start, end] date range, ordered by date ascending. An empty range at
// the provider (holidays, future dates, delisted symbol) returns an
// empty slice and no error.
func (c *Client) FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]models.DailyBar, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("invalid range: start %s after end %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	c.enforceRateLimit()

	providerSymbol := c.providerSymbol(symbol)

	// period2 is exclusive at the provider, extend by one day to make
	// the requested range inclusive.
	params := url.Values{}
	params.Add("period1", strconv.FormatInt(models.DateOnly(start).Unix(), 10))
	params.Add("period2", strconv.FormatInt(models.DateOnly(end).AddDate(0, 0, 1).Unix(), 10))
	params.Add("interval", "1d")
	params.Add("events", "history")

	fullURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(providerSymbol), params.Encode())

	c.logger.WithFields(logrus.Fields{
		"symbol": providerSymbol,
		"start":  start.Format("2006-01-02"),
		"end":    end.Format("2006-01-02"),
	}).Debug("Fetching daily bars")

	req, err := http.NewRequestWithContext(ctx, "GET", fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerSymbol)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status=429", ErrProviderRateLimited)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status=%d", ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status=%d, body=%s", ErrProviderUnavailable, resp.StatusCode, string(body))
	}

	var parsed chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrProviderUnavailable, err)
	}

	if parsed.Chart.Error != nil {
		if strings.EqualFold(parsed.Chart.Error.Code, "Not Found") {
			return nil, fmt.Errorf("%w: %s: %s", ErrProviderNotFound, providerSymbol, parsed.Chart.Error.Description)
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrProviderUnavailable, parsed.Chart.Error.Code, parsed.Chart.Error.Description)
	}

	if len(parsed.Chart.Result) == 0 {
		return []models.DailyBar{}, nil
	}

	result := parsed.Chart.Result[0]
	if len(result.Timestamp) == 0 || len(result.Indicators.Quote) == 0 {
		return []models.DailyBar{}, nil
	}

	quote := result.Indicators.Quote[0]
	rangeStart := models.DateOnly(start)
	rangeEnd := models.DateOnly(end)

	bars := make([]models.DailyBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		// The provider pads holiday rows with nulls; skip incomplete entries.
		if i >= len(quote.Open) || quote.Open[i] == nil ||
			i >= len(quote.High) || quote.High[i] == nil ||
			i >= len(quote.Low) || quote.Low[i] == nil ||
			i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}

		date := models.DateOnly(time.Unix(ts, 0).UTC())
		if date.Before(rangeStart) || date.After(rangeEnd) {
			continue
		}

		var volume int64
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			volume = *quote.Volume[i]
		}

		bar := models.DailyBar{
			Date:   date,
			Open:   *quote.Open[i],
			High:   *quote.High[i],
			Low:    *quote.Low[i],
			Close:  *quote.Close[i],
			Volume: volume,
		}
		if volume > 0 {
			turnover := bar.Open * float64(volume)
			bar.Turnover = &turnover
		}
		bars = append(bars, bar)
	}

	c.logger.WithFields(logrus.Fields{
		"symbol": providerSymbol,
		"count":  len(bars),
	}).Debug("Fetched daily bars")

	return bars, nil
}

// providerSymbol maps an exchange ticker to the provider's convention
func (c *Client) providerSymbol(symbol string) string {
	if c.symbolSuffix == "" || strings.Contains(symbol, ".") {
		return symbol
	}
	return symbol + c.symbolSuffix
}

// enforceRateLimit spaces out successive API calls
func (c *Client) enforceRateLimit() {
	c.rateMu.Lock()
	defer c.rateMu.Unlock()

	elapsed := time.Since(c.lastCall)
	if elapsed < c.rateLimit {
		time.Sleep(c.rateLimit - elapsed)
	}
	c.lastCall = time.Now()
}
