package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL       = "https://explorer.lichess.ovh"
	defaultQueryInterval = 75 * time.Millisecond
	defaultHTTPTimeout   = 30 * time.Second

	// RatingSplit is the boundary between the low and high rating bands used
	// for the high-rating preference computation.
	RatingSplit = 2200

	maxAttempts       = 3
	defaultRetryDelay = 5 * time.Second
)

// ClientConfig configures the explorer client.
type ClientConfig struct {
	BaseURL        string         // explorer endpoint, defaults to the public instance
	APIToken       string         // optional bearer token
	QueryInterval  time.Duration  // minimum spacing between outbound queries
	ThrottleAlways bool           // throttle even when a token is configured
	HTTPTimeout    time.Duration  // per-request timeout
	RetryDelay     time.Duration  // pause between retry attempts
	Logger         zerolog.Logger // logger
}

// Client fetches position statistics from the opening explorer, serving
// repeat queries from a persistent cache. All waiting (throttle and retry
// backoff) happens inside the calls; the caller sees a plain blocking lookup.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter *rate.Limiter
	cache   *Cache
	log     zerolog.Logger

	queries int64 // outbound queries actually issued
}

// NewClient creates a client backed by the given cache.
func NewClient(cfg ClientConfig, cache *Cache) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.QueryInterval == 0 {
		cfg.QueryInterval = defaultQueryInterval
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaultRetryDelay
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.HTTPTimeout},
		limiter: rate.NewLimiter(rate.Every(cfg.QueryInterval), 1),
		cache:   cache,
		log:     cfg.Logger,
	}
}

// Queries returns the number of outbound queries issued so far.
func (c *Client) Queries() int64 { return c.queries }

// Stats returns the aggregate statistics for a position, fetching from the
// explorer on a cache miss. Identical arguments always hit the cache after
// the first successful call.
func (c *Client) Stats(ctx context.Context, fen string, minRating, maxRating int, timeControls []string) (*PositionStats, error) {
	key := cacheKey(fen, minRating, maxRating, timeControls)
	if entry, ok := c.cache.Get(key); ok {
		return &entry.PositionStats, nil
	}

	stats, err := c.fetch(ctx, fen, minRating, maxRating, timeControls)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Put(key, &ComprehensivePositionStats{PositionStats: *stats}); err != nil {
		c.log.Warn().Err(err).Msg("cache write failed")
	}
	return stats, nil
}

// ComprehensiveStats returns position statistics with the rating-band split
// and high-rating preferences precomputed. The composition of the three
// underlying queries is cached under its own key, so its cost is paid once.
//
// A failure fetching the full band is an error; a failed sub-band fetch only
// degrades the preference data to empty, matching a band with no overlap.
func (c *Client) ComprehensiveStats(ctx context.Context, fen string, minRating, maxRating int, timeControls []string) (*ComprehensivePositionStats, error) {
	key := cacheKey(fen, minRating, maxRating, timeControls) + comprehensiveSuffix
	if entry, ok := c.cache.Get(key); ok {
		return entry, nil
	}

	main, err := c.Stats(ctx, fen, minRating, maxRating, timeControls)
	if err != nil {
		return nil, err
	}

	var high, low *PositionStats
	if maxRating > RatingSplit {
		high, err = c.Stats(ctx, fen, RatingSplit, maxRating, timeControls)
		if err != nil {
			c.log.Warn().Err(err).Msg("high band fetch failed, preferences disabled")
		}
	}
	if minRating < RatingSplit {
		lowMax := min(RatingSplit-1, maxRating)
		low, err = c.Stats(ctx, fen, minRating, lowMax, timeControls)
		if err != nil {
			c.log.Warn().Err(err).Msg("low band fetch failed, preferences disabled")
		}
	}

	entry := &ComprehensivePositionStats{
		PositionStats:         *main,
		HighRating:            high,
		LowRating:             low,
		HighRatingPreferences: computePreferences(main, high, low),
	}
	if err := c.cache.Put(key, entry); err != nil {
		c.log.Warn().Err(err).Msg("cache write failed")
	}
	return entry, nil
}

// fetch issues a throttled query with bounded retries.
func (c *Client) fetch(ctx context.Context, fen string, minRating, maxRating int, timeControls []string) (*PositionStats, error) {
	params := url.Values{}
	params.Set("fen", fen)
	params.Set("ratings", strings.Join(ratingBrackets(minRating, maxRating), ","))
	params.Set("speeds", strings.Join(timeControls, ","))
	reqURL := c.cfg.BaseURL + "/lichess?" + params.Encode()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.throttle(ctx); err != nil {
			return nil, err
		}

		stats, err := c.doRequest(ctx, reqURL)
		if err == nil {
			return stats, nil
		}
		lastErr = err

		if attempt < maxAttempts {
			c.log.Warn().Err(err).
				Int("attempt", attempt).
				Int("max_attempts", maxAttempts).
				Dur("retry_in", c.cfg.RetryDelay).
				Msg("explorer query failed, retrying")
			select {
			case <-time.After(c.cfg.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	c.log.Warn().Err(lastErr).Int("attempts", maxAttempts).Msg("explorer query failed")
	return nil, fmt.Errorf("explorer query failed after %d attempts: %w", maxAttempts, lastErr)
}

// throttle enforces the minimum interval between outbound queries. A
// configured token bypasses the wait unless ThrottleAlways is set.
func (c *Client) throttle(ctx context.Context) error {
	if !c.cfg.ThrottleAlways && c.cfg.APIToken != "" {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) doRequest(ctx context.Context, reqURL string) (*PositionStats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	}

	c.queries++
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer returned status %d", resp.StatusCode)
	}

	var raw explorerResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return processResponse(&raw), nil
}
