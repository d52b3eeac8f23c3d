// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

// Package feeds fetches the raw flare and CME feeds over HTTP.
//
// Every feed has its own circuit breaker so a failing upstream does not
// hold back the others. A shared token bucket limits the request rate
// across all feeds. Parsing is left to the parser package.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/heliotrack/internal/config"
	"github.com/tomtom215/heliotrack/internal/logging"
	"github.com/tomtom215/heliotrack/internal/metrics"
	"github.com/tomtom215/heliotrack/internal/parser"
)

const donkiDateLayout = "2006-01-02"

// ErrCircuitOpen is returned while a feed's breaker rejects requests.
var ErrCircuitOpen = errors.New("feed circuit breaker is open")

// StatusError reports a non-2xx response.
type StatusError struct {
	Feed parser.Feed
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s feed returned HTTP %d", e.Feed, e.Code)
}

// Client fetches upstream feeds.
type Client struct {
	http     *resty.Client
	limiter  *rate.Limiter
	breakers map[parser.Feed]*gobreaker.CircuitBreaker[[]byte]
	cfg      *config.FeedsConfig
}

// NewClient builds a client from cfg.
func NewClient(cfg *config.FeedsConfig) *Client {
	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(2 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetHeader("User-Agent", cfg.UserAgent).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		http:     httpClient,
		limiter:  rate.NewLimiter(limit, burst),
		breakers: make(map[parser.Feed]*gobreaker.CircuitBreaker[[]byte]),
		cfg:      cfg,
	}
	for _, feed := range []parser.Feed{
		parser.FeedPrimaryTable, parser.FeedDiscussion, parser.FeedCMECatalog, parser.FeedCMEBulletin,
	} {
		c.breakers[feed] = newBreaker(string(feed), cfg)
	}
	return c
}

// FetchPrimaryFlareTable returns the HTML document holding the event table.
func (c *Client) FetchPrimaryFlareTable(ctx context.Context) (string, error) {
	body, err := c.fetch(ctx, parser.FeedPrimaryTable, c.cfg.PrimaryTableURL, nil, "text/html")
	return string(body), err
}

// FetchFlareDiscussion returns the plain-text forecast discussion.
func (c *Client) FetchFlareDiscussion(ctx context.Context) (string, error) {
	body, err := c.fetch(ctx, parser.FeedDiscussion, c.cfg.DiscussionURL, nil, "text/plain")
	return string(body), err
}

// FetchCMECatalog returns the structured CME catalog for [from, to].
func (c *Client) FetchCMECatalog(ctx context.Context, from, to time.Time) ([]byte, error) {
	return c.fetch(ctx, parser.FeedCMECatalog, c.cfg.CMECatalogURL, dateRange(from, to), "application/json")
}

// FetchCMEBulletins returns the CME notification list for [from, to].
func (c *Client) FetchCMEBulletins(ctx context.Context, from, to time.Time) ([]byte, error) {
	params := dateRange(from, to)
	params["type"] = "CME"
	return c.fetch(ctx, parser.FeedCMEBulletin, c.cfg.CMENotificationsURL, params, "application/json")
}

// BreakerState returns the current state of a feed's breaker.
func (c *Client) BreakerState(feed parser.Feed) gobreaker.State {
	cb, ok := c.breakers[feed]
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

func (c *Client) fetch(ctx context.Context, feed parser.Feed, url string, params map[string]string, accept string) ([]byte, error) {
	start := time.Now()
	body, err := c.doFetch(ctx, feed, url, params, accept)
	metrics.RecordFeedFetch(string(feed), time.Since(start), err)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("feed", string(feed)).Msg("Feed fetch failed")
	}
	return body, err
}

func (c *Client) doFetch(ctx context.Context, feed parser.Feed, url string, params map[string]string, accept string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("%s feed URL is not configured", feed)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := c.breakers[feed].Execute(func() ([]byte, error) {
		req := c.http.R().SetContext(ctx).SetHeader("Accept", accept)
		if len(params) > 0 {
			req.SetQueryParams(params)
		}
		resp, err := req.Get(url)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", feed, err)
		}
		if resp.IsError() {
			return nil, &StatusError{Feed: feed, Code: resp.StatusCode()}
		}
		return resp.Body(), nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, feed)
	}
	return body, err
}

func dateRange(from, to time.Time) map[string]string {
	return map[string]string{
		"startDate": from.UTC().Format(donkiDateLayout),
		"endDate":   to.UTC().Format(donkiDateLayout),
	}
}
