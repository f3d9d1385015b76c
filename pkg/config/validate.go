package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Sriram-PR/politecrawl/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// Required: UserAgent
	c.UserAgent = strings.TrimSpace(c.UserAgent)
	if c.UserAgent == "" {
		return nil, fmt.Errorf("%w: user_agent is required", utils.ErrConfigValidation)
	}

	// Required: URLs
	if len(c.URLs) == 0 {
		return nil, fmt.Errorf("%w: urls must list at least one URL", utils.ErrConfigValidation)
	}
	for i, u := range c.URLs {
		c.URLs[i] = strings.TrimSpace(u)
		if c.URLs[i] == "" {
			return nil, fmt.Errorf("%w: urls[%d] is empty", utils.ErrConfigValidation, i)
		}
	}

	// Crawl delays
	if c.DefaultCrawlDelay != nil && !validDelay(*c.DefaultCrawlDelay) {
		warnings = append(warnings, fmt.Sprintf("default_crawl_delay %v is invalid, defaulting to 1", *c.DefaultCrawlDelay))
		c.DefaultCrawlDelay = nil
	}
	if !validDelay(c.MinCrawlDelay) {
		warnings = append(warnings, fmt.Sprintf("min_crawl_delay %v is invalid, setting to 0", c.MinCrawlDelay))
		c.MinCrawlDelay = 0
	}
	if c.MaxCrawlDelay != nil && !validDelay(*c.MaxCrawlDelay) {
		warnings = append(warnings, fmt.Sprintf("max_crawl_delay %v is invalid, defaulting to 60", *c.MaxCrawlDelay))
		c.MaxCrawlDelay = nil
	}
	if c.MinCrawlDelay > GetEffectiveMaxDelay(*c) {
		return nil, fmt.Errorf("%w: min_crawl_delay (%v) > max_crawl_delay (%v)",
			utils.ErrConfigValidation, c.MinCrawlDelay, GetEffectiveMaxDelay(*c))
	}

	// TimeoutSeconds
	if c.TimeoutSeconds < 0 {
		warnings = append(warnings, "timeout_seconds cannot be negative, defaulting to 30")
		c.TimeoutSeconds = 0
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 30
	}

	// Retry counts
	if c.FetchRetries != nil && *c.FetchRetries < 0 {
		warnings = append(warnings, "fetch_retries cannot be negative, setting to 0")
		zero := 0
		c.FetchRetries = &zero
	}
	if c.RobotsRetries != nil && *c.RobotsRetries < 0 {
		warnings = append(warnings, "robots_retries cannot be negative, setting to 0")
		zero := 0
		c.RobotsRetries = &zero
	}

	warnings = append(warnings, c.validateRetry()...)

	// HTTPClientSettings defaults
	c.validateHTTPClientSettings()

	// Output
	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
	switch c.Output.Format {
	case "":
		c.Output.Format = FormatJSONL
	case FormatJSONL, FormatBadger, FormatSQLite:
	default:
		return warnings, fmt.Errorf("%w: output.format %q is not one of jsonl, badger, sqlite",
			utils.ErrConfigValidation, c.Output.Format)
	}

	return warnings, nil
}

// validateRetry applies defaults to the backoff schedule.
func (c *AppConfig) validateRetry() (warnings []string) {
	r := &c.Retry
	if r.InitialBackoff <= 0 {
		r.InitialBackoff = 100 * time.Millisecond
	}
	if r.MaxBackoff <= 0 {
		r.MaxBackoff = 30 * time.Second
	}
	if r.Multiplier == 0 {
		r.Multiplier = 2.0
	} else if r.Multiplier < 1 || math.IsNaN(r.Multiplier) || math.IsInf(r.Multiplier, 0) {
		warnings = append(warnings, fmt.Sprintf("retry.multiplier (%v) must be >= 1, defaulting to 2", r.Multiplier))
		r.Multiplier = 2.0
	}
	if r.InitialBackoff > r.MaxBackoff {
		warnings = append(warnings, fmt.Sprintf(
			"retry.initial_backoff (%v) > retry.max_backoff (%v), using max_backoff for initial",
			r.InitialBackoff, r.MaxBackoff))
		r.InitialBackoff = r.MaxBackoff
	}
	if r.Jitter < 0 || r.Jitter >= 1 {
		warnings = append(warnings, fmt.Sprintf("retry.jitter (%v) must be in [0, 1), disabling jitter", r.Jitter))
		r.Jitter = 0
	}
	return warnings
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = time.Duration(c.TimeoutSeconds) * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
	if h.MaxRedirects <= 0 {
		h.MaxRedirects = 10
	}
}

func validDelay(d float64) bool {
	return d >= 0 && !math.IsNaN(d) && !math.IsInf(d, 0)
}
