// Package crawler drives a crawl run: it walks the worklist in order, applies the
// politeness verdict for each URL, fetches it, and turns the result into an output row.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/Sriram-PR/politecrawl/pkg/fetch"
	"github.com/Sriram-PR/politecrawl/pkg/models"
	"github.com/Sriram-PR/politecrawl/pkg/parse"
	"github.com/Sriram-PR/politecrawl/pkg/politeness"
	"github.com/Sriram-PR/politecrawl/pkg/shutdown"
	"github.com/Sriram-PR/politecrawl/pkg/utils"
)

// DefaultFetchRetries is the retry budget for worklist URLs
const DefaultFetchRetries = 3

// Fetcher performs page and robots.txt requests. *fetch.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, retry fetch.RetryConfig, opts fetch.Options) (fetch.Response, error)
}

// Observer is notified once per processed URL, after the outcome is known.
type Observer interface {
	ObserveStep(domain string, outcome models.Outcome, status int, elapsed time.Duration)
}

// Options configures one crawl run
type Options struct {
	URLs         []string
	Policy       politeness.PolicyConfig
	LogSkipped   bool // Emit a status -1 row for robots-blocked URLs instead of skipping silently
	FetchRetries int
	Observer     Observer // Optional
}

// Step is the result of one Next call. Result is non-nil exactly when a row is emitted.
type Step struct {
	Outcome models.Outcome
	Result  *models.CrawlResult

	err error // Cause behind a non-fetched outcome, for log categorisation
}

// RunState is the mutable state of one run. It is owned by a Scheduler and only touched
// while holding the Scheduler's semaphore.
type RunState struct {
	ID       string
	Index    int // Next worklist position to process
	Finished bool
	Stats    models.RunStats
	Domains  *politeness.Registry
}

// Scheduler processes a worklist one URL per Next call
type Scheduler struct {
	opts    Options
	retry   fetch.RetryConfig
	fetcher Fetcher
	token   *shutdown.Token
	log     *logrus.Entry
	now     func() time.Time

	sem   *semaphore.Weighted // Single coordination region guarding state
	state *RunState
}

// New validates opts and prepares a fresh run. The token is reset, so an interrupt from a
// previous run does not leak into this one.
func New(opts Options, fetcher Fetcher, token *shutdown.Token, log *logrus.Entry) (*Scheduler, error) {
	if err := validateOptions(&opts); err != nil {
		return nil, err
	}
	if fetcher == nil {
		return nil, fmt.Errorf("%w: fetcher is required", utils.ErrConfigValidation)
	}
	if token == nil {
		token = shutdown.NewToken(log)
	}
	token.Reset()

	retry := opts.Policy.Retry
	if retry == (fetch.RetryConfig{}) {
		retry = fetch.DefaultRetryConfig()
	}
	retry = retry.WithMaxRetries(opts.FetchRetries)
	if err := retry.Validate(); err != nil {
		return nil, err
	}
	opts.Policy.Retry = retry

	runID := uuid.NewString()
	runLog := log.WithFields(logrus.Fields{"component": "crawler", "run_id": runID})
	start := time.Now()

	s := &Scheduler{
		opts:    opts,
		retry:   retry,
		fetcher: fetcher,
		token:   token,
		log:     runLog,
		now:     time.Now,
		sem:     semaphore.NewWeighted(1),
		state: &RunState{
			ID:      runID,
			Domains: politeness.NewRegistry(fetcher, opts.Policy, runLog),
			Stats:   models.RunStats{RunID: runID, StartTime: start},
		},
	}
	runLog.WithFields(logrus.Fields{
		"urls":           len(opts.URLs),
		"user_agent":     opts.Policy.UserAgent,
		"respect_robots": opts.Policy.RespectRobots,
		"log_skipped":    opts.LogSkipped,
	}).Info("Crawl run initialized")
	return s, nil
}

func validateOptions(opts *Options) error {
	opts.Policy.UserAgent = strings.TrimSpace(opts.Policy.UserAgent)
	if opts.Policy.UserAgent == "" {
		return fmt.Errorf("%w: user agent is required", utils.ErrConfigValidation)
	}
	for i, u := range opts.URLs {
		if strings.TrimSpace(u) == "" {
			return fmt.Errorf("%w: worklist entry %d is empty", utils.ErrConfigValidation, i)
		}
	}
	p := opts.Policy
	if p.DefaultDelay < 0 || p.MinDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("%w: crawl delays cannot be negative", utils.ErrConfigValidation)
	}
	if p.MinDelay > p.MaxDelay {
		return fmt.Errorf("%w: min crawl delay (%v) > max crawl delay (%v)", utils.ErrConfigValidation, p.MinDelay, p.MaxDelay)
	}
	if opts.FetchRetries < 0 || p.RobotsRetries < 0 {
		return fmt.Errorf("%w: retry counts cannot be negative", utils.ErrConfigValidation)
	}
	return nil
}

// Next processes at most one worklist URL. Once the worklist is exhausted or cancellation
// has been requested it returns OutcomeFinished, and keeps doing so on later calls.
func (s *Scheduler) Next(ctx context.Context) Step {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return Step{Outcome: models.OutcomeFinished}
	}
	defer s.sem.Release(1)

	st := s.state
	if st.Finished {
		return Step{Outcome: models.OutcomeFinished}
	}
	if st.Index >= len(s.opts.URLs) || s.token.Cancelled() || ctx.Err() != nil {
		s.finishLocked()
		return Step{Outcome: models.OutcomeFinished}
	}

	rawURL := s.opts.URLs[st.Index]
	st.Index++
	st.Stats.Processed++

	domain, path := parse.SplitURL(rawURL)
	step, elapsed := s.process(ctx, rawURL, domain, path)
	st.Stats.Domains = st.Domains.Len()

	s.logStep(rawURL, domain, step, elapsed)
	if s.opts.Observer != nil {
		status := 0
		if step.Result != nil {
			status = step.Result.HTTPStatus
		}
		s.opts.Observer.ObserveStep(domain, step.Outcome, status, elapsed)
	}
	return step
}

// process runs robots resolution, the delay wait and the fetch for one URL. The token is
// only checked around the delay wait; requests already in flight run to completion unless
// ctx itself is cancelled.
func (s *Scheduler) process(ctx context.Context, rawURL, domain, path string) (Step, time.Duration) {
	st := s.state
	res := st.Domains.Resolve(ctx, domain, path)

	if s.opts.Policy.RespectRobots && !res.Allowed {
		st.Stats.Skipped++
		st.Domains.MarkSkipped(domain)
		if !s.opts.LogSkipped {
			return Step{Outcome: models.OutcomeSkipped, err: utils.ErrRobotsDisallowed}, 0
		}
		return Step{
			Outcome: models.OutcomeBlocked,
			err:     utils.ErrRobotsDisallowed,
			Result: &models.CrawlResult{
				URL:        rawURL,
				Domain:     domain,
				HTTPStatus: models.StatusBlocked,
				CrawledAt:  s.now(),
				Error:      models.StringPtr(utils.ErrRobotsDisallowed.Error()),
			},
		}, 0
	}

	waitCtx, cancel := s.token.Context(ctx)
	err := politeness.WaitUntil(waitCtx, politeness.NextAllowed(res.State.LastCrawl, res.Delay))
	cancel()
	if err != nil || s.token.Cancelled() {
		st.Stats.Cancelled++
		return Step{Outcome: models.OutcomeCancelled, err: utils.ErrCancelled}, 0
	}

	start := s.now()
	resp, err := s.fetcher.Fetch(ctx, rawURL, s.retry, fetch.Options{
		UserAgent: s.opts.Policy.UserAgent,
		Compress:  s.opts.Policy.Compress,
	})
	completed := s.now()
	elapsed := completed.Sub(start)
	if err != nil {
		resp = fetch.Response{Error: err.Error(), Err: err}
	}

	// A request aborted by ctx is a cancellation, not a failure of the URL
	if errors.Is(resp.Err, utils.ErrCancelled) {
		st.Stats.Cancelled++
		return Step{Outcome: models.OutcomeCancelled, err: resp.Err}, elapsed
	}

	st.Domains.MarkFetched(domain, completed, resp.Success)
	outcome := models.OutcomeFetched
	if resp.Success {
		st.Stats.Crawled++
	} else {
		st.Stats.Failed++
		outcome = models.OutcomeFailed
	}

	return Step{
		Outcome: outcome,
		err:     resp.Err,
		Result: &models.CrawlResult{
			URL:         rawURL,
			Domain:      domain,
			HTTPStatus:  resp.StatusCode,
			Body:        models.StringPtr(resp.Body),
			ContentType: models.StringPtr(resp.ContentType),
			ElapsedMs:   elapsed.Milliseconds(),
			CrawledAt:   completed,
			Error:       models.StringPtr(resp.Error),
		},
	}, elapsed
}

func (s *Scheduler) logStep(rawURL, domain string, step Step, elapsed time.Duration) {
	fields := logrus.Fields{
		"url":        rawURL,
		"domain":     domain,
		"outcome":    step.Outcome.String(),
		"elapsed_ms": elapsed.Milliseconds(),
	}
	if step.Result != nil {
		fields["status"] = step.Result.HTTPStatus
	}
	if step.err != nil {
		fields["error_category"] = utils.CategorizeError(step.err)
	}

	stepLog := s.log.WithFields(fields)
	switch step.Outcome {
	case models.OutcomeFetched:
		stepLog.Info("URL fetched")
	case models.OutcomeFailed:
		stepLog.Warnf("URL failed: %s", *step.Result.Error)
	case models.OutcomeBlocked, models.OutcomeSkipped:
		stepLog.Info("URL blocked by robots.txt")
	case models.OutcomeCancelled:
		stepLog.Warn("Shutdown requested, URL not fetched")
	}
}

// finishLocked marks the run complete. Caller holds the semaphore.
func (s *Scheduler) finishLocked() {
	st := s.state
	st.Finished = true
	st.Stats.Duration = s.now().Sub(st.Stats.StartTime)
	st.Stats.Domains = st.Domains.Len()

	reason := "worklist exhausted"
	if st.Index < len(s.opts.URLs) {
		reason = "shutdown requested"
	}
	s.log.WithFields(logrus.Fields{
		"reason":    reason,
		"processed": st.Stats.Processed,
		"crawled":   st.Stats.Crawled,
		"failed":    st.Stats.Failed,
		"skipped":   st.Stats.Skipped,
		"cancelled": st.Stats.Cancelled,
		"domains":   st.Stats.Domains,
		"duration":  st.Stats.Duration,
	}).Info("Crawl run finished")
}

// Run drains Next until the run finishes, handing every emitted row to emit. The only
// error it returns is one from emit, which stops the run.
func (s *Scheduler) Run(ctx context.Context, emit func(models.CrawlResult) error) (models.RunStats, error) {
	for {
		step := s.Next(ctx)
		if step.Outcome == models.OutcomeFinished {
			return s.Stats(), nil
		}
		if step.Result == nil {
			continue
		}
		if err := emit(*step.Result); err != nil {
			s.log.WithField("url", step.Result.URL).Errorf("Failed to emit result: %v", err)
			return s.Stats(), fmt.Errorf("emit result for %s: %w", step.Result.URL, err)
		}
	}
}

// Stats returns a snapshot of the run counters. It waits for an in-progress step.
func (s *Scheduler) Stats() models.RunStats {
	var stats models.RunStats
	s.withState(func(st *RunState) {
		stats = st.Stats
		if !st.Finished {
			stats.Duration = s.now().Sub(st.Stats.StartTime)
		}
	})
	return stats
}

// Index returns the next worklist position
func (s *Scheduler) Index() int {
	var idx int
	s.withState(func(st *RunState) { idx = st.Index })
	return idx
}

// Finished reports whether Next has returned OutcomeFinished
func (s *Scheduler) Finished() bool {
	var done bool
	s.withState(func(st *RunState) { done = st.Finished })
	return done
}

// RunID identifies this run in logs and result stores
func (s *Scheduler) RunID() string {
	return s.state.ID
}

// Domains exposes the run's domain table for summaries
func (s *Scheduler) Domains() *politeness.Registry {
	return s.state.Domains
}

func (s *Scheduler) withState(fn func(*RunState)) {
	_ = s.sem.Acquire(context.Background(), 1)
	defer s.sem.Release(1)
	fn(s.state)
}
