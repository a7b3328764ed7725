// Package ingest fetches raw trades and market metadata from the public
// Polymarket APIs. It owns retries, backoff, and request pacing; the core
// only ever sees parsed records.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"pmwatch/internal/config"
	"pmwatch/internal/domain"
)

type Client struct {
	log     zerolog.Logger
	cfg     config.IngestConfig
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(log zerolog.Logger, cfg config.IngestConfig) *Client {
	minInterval := cfg.MinInterval
	if minInterval <= 0 {
		minInterval = 100 * time.Millisecond
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		log:     log,
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

// RecentTrades returns the latest fills from the data-api. Limit is capped
// at 500, the API's own maximum.
func (c *Client) RecentTrades(ctx context.Context, limit, offset int) ([]domain.Trade, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	var raw []map[string]any
	if err := c.getJSON(ctx, c.cfg.DataBase+"/trades", params, &raw); err != nil {
		return nil, fmt.Errorf("fetch trades: %w", err)
	}

	trades := make([]domain.Trade, 0, len(raw))
	for _, item := range raw {
		trades = append(trades, parseTrade(item))
	}
	return trades, nil
}

// MarketByConditionID looks up one market on the gamma-api. A market the
// API does not know returns (nil, nil).
func (c *Client) MarketByConditionID(ctx context.Context, conditionID string) (*domain.Market, error) {
	params := url.Values{}
	params.Set("condition_ids", conditionID)
	params.Set("limit", "1")
	params.Set("offset", "0")

	var raw []map[string]any
	if err := c.getJSON(ctx, c.cfg.GammaBase+"/markets", params, &raw); err != nil {
		return nil, fmt.Errorf("fetch market %s: %w", conditionID, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return parseMarket(raw[0], conditionID), nil
}

func (c *Client) getJSON(ctx context.Context, base string, params url.Values, v any) error {
	u := base
	if len(params) > 0 {
		u = base + "?" + params.Encode()
	}

	maxRetries := c.cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		body, retryable, err := c.doOnce(ctx, u)
		if err == nil {
			return json.Unmarshal(body, v)
		}
		lastErr = err
		if !retryable || attempt == maxRetries {
			break
		}

		backoff := 500 * time.Millisecond << attempt
		c.log.Warn().Err(err).Str("url", base).Dur("backoff", backoff).Msg("request failed, retrying")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// doOnce runs a single GET. retryable marks rate-limit and server errors.
func (c *Client) doOnce(ctx context.Context, u string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		retryable = resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if retryable {
			if wait := retryAfter(resp); wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, false, ctx.Err()
				}
			}
		}
		return nil, retryable, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	return body, false, nil
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
