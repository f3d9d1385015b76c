package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/politecrawl/pkg/utils"
)

// Doer sends one HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options are the per-request knobs of Fetch
type Options struct {
	UserAgent       string // Sent as User-Agent when non-empty
	Compress        bool   // Negotiate gzip/deflate/zstd and decode the body
	IfNoneMatch     string // Conditional request validators, sent when non-empty
	IfModifiedSince string
}

// Response is the outcome of a Fetch, successful or not.
type Response struct {
	StatusCode    int    // 0 when no HTTP response was received
	Body          string // Decoded body of the last response
	ContentType   string
	ContentLength int64 // -1 when unknown
	RetryAfter    string
	Date          string
	ETag          string
	LastModified  string
	Error         string // Human-readable failure; empty on success
	Success       bool   // 2xx or 304

	Attempts int             // Requests actually sent
	Backoffs []time.Duration // Delays slept before each retry, in order; a Retry-After override is capped at MaxBackoff

	Err error `json:"-"` // Categorisable cause behind Error, nil on success
}

// Fetcher performs GET requests with retry and exponential backoff. It holds no per-request state.
type Fetcher struct {
	client Doer
	log    *logrus.Entry
	now    func() time.Time
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client Doer, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client: client,
		log:    log,
		now:    time.Now,
	}
}

// Fetch GETs rawURL, retrying transient failures (408, 429, 5xx, transport errors) per retry.
// The returned error is non-nil only when retry is invalid; every request-level failure is
// reported through Response.Success and Response.Error instead.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, retry RetryConfig, opts Options) (Response, error) {
	if err := retry.Validate(); err != nil {
		return Response{}, err
	}

	reqLog := f.log.WithField("url", rawURL)

	var (
		last     Response
		backoffs []time.Duration
	)

	// Initial attempt plus MaxRetries retries
	for attempt := 0; attempt <= retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := retry.applyJitter(retry.Backoff(attempt))
			if override, ok := ParseRetryAfter(last.RetryAfter, f.now()); ok {
				delay = min(override, retry.MaxBackoff)
			}
			backoffs = append(backoffs, delay)

			reqLog.WithFields(logrus.Fields{
				"attempt":     attempt,
				"max_retries": retry.MaxRetries,
				"delay":       delay,
				"last_error":  last.Error,
			}).Warn("Retrying request...")

			if err := sleepContext(ctx, delay); err != nil {
				reqLog.Warnf("Context cancelled during retry sleep: %v", err)
				return cancelled(last, attempt, backoffs, err), nil
			}
		}

		resp, retryable := f.attempt(ctx, rawURL, opts)
		resp.Attempts = attempt + 1
		resp.Backoffs = backoffs

		if resp.Success {
			reqLog.WithFields(logrus.Fields{"status_code": resp.StatusCode, "attempt": attempt}).Debug("Successfully fetched")
			return resp, nil
		}
		if errors.Is(resp.Err, utils.ErrCancelled) {
			reqLog.Warnf("Context cancelled during HTTP request: %v", resp.Err)
			return resp, nil
		}
		if !retryable {
			reqLog.WithFields(logrus.Fields{"status_code": resp.StatusCode, "attempt": attempt}).Warnf("Not retrying: %s", resp.Error)
			return resp, nil
		}
		last = resp
	}

	reqLog.Errorf("All %d fetch attempts failed. Last error: %s", retry.MaxRetries+1, last.Error)
	last.Err = fmt.Errorf("%w: %w", utils.ErrRetryFailed, last.Err)
	return last, nil
}

// attempt sends a single request and classifies its result.
func (f *Fetcher) attempt(ctx context.Context, rawURL string, opts Options) (Response, bool) {
	resp := Response{ContentLength: -1}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return failed(resp, fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)), false
	}
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}
	if opts.Compress {
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}
	if opts.IfNoneMatch != "" {
		req.Header.Set("If-None-Match", opts.IfNoneMatch)
	}
	if opts.IfModifiedSince != "" {
		req.Header.Set("If-Modified-Since", opts.IfModifiedSince)
	}

	httpResp, err := f.client.Do(req)
	if err != nil {
		if httpResp != nil {
			drainAndClose(httpResp.Body)
		}
		if ctx.Err() != nil {
			return failed(resp, fmt.Errorf("%w: %w", utils.ErrCancelled, ctx.Err())), false
		}
		// Redirect loops are not retried
		if errors.Is(err, utils.ErrTooManyRedirects) {
			return failed(resp, err), false
		}
		return failed(resp, err), true
	}
	defer drainAndClose(httpResp.Body)

	resp.StatusCode = httpResp.StatusCode
	resp.ContentType = httpResp.Header.Get("Content-Type")
	resp.RetryAfter = httpResp.Header.Get("Retry-After")
	resp.Date = httpResp.Header.Get("Date")
	resp.ETag = httpResp.Header.Get("ETag")
	resp.LastModified = httpResp.Header.Get("Last-Modified")
	resp.ContentLength = contentLength(httpResp)

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return failed(resp, fmt.Errorf("%w: %w", utils.ErrCancelled, ctx.Err())), false
		}
		return failed(resp, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err)), true
	}
	body, err := decodeBody(httpResp.Header.Get("Content-Encoding"), raw)
	if err != nil {
		return failed(resp, fmt.Errorf("%w: content-encoding %q: %w", utils.ErrParsing, httpResp.Header.Get("Content-Encoding"), err)), false
	}
	resp.Body = string(body)

	code := httpResp.StatusCode
	switch {
	case code >= 200 && code < 300, code == http.StatusNotModified:
		resp.Success = true
		return resp, false
	case code >= 500:
		resp.Err = fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, code, http.StatusText(code))
	case code >= 400:
		resp.Err = fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, code, http.StatusText(code))
	default:
		resp.Err = fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, code, http.StatusText(code))
	}
	resp.Error = fmt.Sprintf("HTTP %d", code)
	return resp, IsRetryable(code)
}

func failed(resp Response, err error) Response {
	resp.Err = err
	resp.Error = err.Error()
	resp.Success = false
	return resp
}

// cancelled reports an abort during a backoff sleep, keeping what the last attempt observed.
func cancelled(last Response, attempts int, backoffs []time.Duration, cause error) Response {
	last.Attempts = attempts
	last.Backoffs = backoffs
	return failed(last, fmt.Errorf("%w: %w", utils.ErrCancelled, cause))
}

func contentLength(resp *http.Response) int64 {
	if v := resp.Header.Get("Content-Length"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			return n
		}
	}
	if resp.ContentLength >= 0 {
		return resp.ContentLength
	}
	return -1
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
