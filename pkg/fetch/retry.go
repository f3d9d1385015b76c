package fetch

import (
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sriram-PR/politecrawl/pkg/utils"
)

// RetryConfig controls how many times Fetch retries and how long it backs off in between.
type RetryConfig struct {
	MaxRetries        int           // Attempts beyond the first
	InitialBackoff    time.Duration // Delay before the first retry
	BackoffMultiplier float64       // Growth factor applied per subsequent retry
	MaxBackoff        time.Duration // Upper bound for any single delay, including Retry-After
	Jitter            float64       // Fraction of the delay added/subtracted at random (0 disables)
}

// DefaultRetryConfig mirrors the defaults used by the crawl driver.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        5,
		InitialBackoff:    100 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

// WithMaxRetries returns a copy of c with a different retry budget.
func (c RetryConfig) WithMaxRetries(n int) RetryConfig {
	c.MaxRetries = n
	return c
}

// Validate rejects configurations that cannot produce a sane backoff schedule.
func (c RetryConfig) Validate() error {
	switch {
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max retries cannot be negative (%d)", utils.ErrConfigValidation, c.MaxRetries)
	case c.InitialBackoff < 0:
		return fmt.Errorf("%w: initial backoff cannot be negative (%v)", utils.ErrConfigValidation, c.InitialBackoff)
	case c.MaxBackoff < 0:
		return fmt.Errorf("%w: max backoff cannot be negative (%v)", utils.ErrConfigValidation, c.MaxBackoff)
	case c.BackoffMultiplier < 1 || math.IsNaN(c.BackoffMultiplier) || math.IsInf(c.BackoffMultiplier, 0):
		return fmt.Errorf("%w: backoff multiplier must be a finite value >= 1 (%v)", utils.ErrConfigValidation, c.BackoffMultiplier)
	case c.InitialBackoff > c.MaxBackoff:
		return fmt.Errorf("%w: initial backoff (%v) exceeds max backoff (%v)", utils.ErrConfigValidation, c.InitialBackoff, c.MaxBackoff)
	case c.Jitter < 0 || c.Jitter >= 1:
		return fmt.Errorf("%w: jitter must be in [0, 1) (%v)", utils.ErrConfigValidation, c.Jitter)
	}
	return nil
}

// Backoff returns the delay before retry number attempt (1-based):
// InitialBackoff * Multiplier^(attempt-1), capped at MaxBackoff, without jitter.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	backoff := float64(c.InitialBackoff) * math.Pow(c.BackoffMultiplier, float64(attempt-1))
	if backoff > float64(c.MaxBackoff) || math.IsInf(backoff, 0) {
		return c.MaxBackoff
	}
	return time.Duration(backoff)
}

// applyJitter spreads delay by +/- Jitter to desynchronize retries.
func (c RetryConfig) applyJitter(delay time.Duration) time.Duration {
	if c.Jitter <= 0 || delay <= 0 {
		return delay
	}
	spread := float64(delay) * c.Jitter
	jittered := time.Duration(float64(delay) + spread*(rand.Float64()*2-1))
	if jittered < 0 {
		return 0
	}
	return jittered
}

// IsRetryable reports whether an HTTP status signals a transient failure:
// 408 Request Timeout, 429 Too Many Requests, and every 5xx.
func IsRetryable(statusCode int) bool {
	return statusCode == http.StatusRequestTimeout ||
		statusCode == http.StatusTooManyRequests ||
		(statusCode >= 500 && statusCode < 600)
}

// ParseRetryAfter interprets a Retry-After header as delta-seconds or an HTTP-date.
// Dates in the past yield a zero delay. ok is false when the value is empty or unparsable.
func ParseRetryAfter(value string, now time.Time) (delay time.Duration, ok bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds < 0 {
			return 0, false
		}
		if seconds > int64(math.MaxInt64/int64(time.Second)) {
			return time.Duration(math.MaxInt64), true
		}
		return time.Duration(seconds) * time.Second, true
	}
	when, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	if d := when.Sub(now); d > 0 {
		return d, true
	}
	return 0, true
}
