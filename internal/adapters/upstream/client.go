package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"defilens/internal/adapters/config"
	"defilens/internal/metrics"
	"defilens/pkg/errors"
	"defilens/pkg/logger"
)

// Client is a rate-limited JSON client for the upstream aggregation APIs.
type Client struct {
	httpClient     *http.Client
	limiter        *rate.Limiter
	baseURL        string
	dimensionsURL  string
	stablecoinsURL string
	log            *logger.Logger
}

// NewClient builds a Client from the upstream configuration.
func NewClient(cfg config.UpstreamConfig, log *logger.Logger) *Client {
	dimensionsURL := cfg.DimensionsBaseURL
	if dimensionsURL == "" {
		dimensionsURL = cfg.BaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter:        rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst),
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		dimensionsURL:  strings.TrimRight(dimensionsURL, "/"),
		stablecoinsURL: strings.TrimRight(cfg.StablecoinsURL, "/"),
		log:            log.With("component", "upstream_client"),
	}
}

func (c *Client) getJSON(ctx context.Context, upstream, endpoint, url string, out interface{}) (err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter wait")
	}

	start := time.Now()
	defer func() {
		metrics.RecordUpstreamCall(upstream, endpoint, time.Since(start), err)
	}()

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if reqErr != nil {
		return errors.Wrapf(reqErr, "create request for %s", url)
	}
	req.Header.Set("Accept", "application/json")

	resp, doErr := c.httpClient.Do(req)
	if doErr != nil {
		c.log.Warnw("Upstream request failed", "url", url, "error", doErr)
		return errors.Wrapf(errors.ErrUpstreamUnavailable, "GET %s: %v", url, doErr)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warnw("Upstream returned non-OK status",
			"url", url,
			"status", resp.StatusCode,
			"body", string(body))
		return errors.Wrapf(errors.ErrUpstreamStatus, "GET %s: status %d", url, resp.StatusCode)
	}

	if decErr := json.NewDecoder(resp.Body).Decode(out); decErr != nil {
		return errors.Wrapf(errors.ErrUpstreamDecode, "GET %s: %v", url, decErr)
	}
	return nil
}
