// Package politeness tracks per-domain crawl state: robots.txt rules, the effective
// crawl delay, and when the domain was last fetched.
package politeness

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/politecrawl/pkg/fetch"
	"github.com/Sriram-PR/politecrawl/pkg/robots"
)

// RobotsFetcher retrieves robots.txt. *fetch.Fetcher satisfies it.
type RobotsFetcher interface {
	Fetch(ctx context.Context, url string, retry fetch.RetryConfig, opts fetch.Options) (fetch.Response, error)
}

// PolicyConfig holds the politeness settings of one crawl run. Delays are in seconds.
type PolicyConfig struct {
	UserAgent     string
	DefaultDelay  float64 // Used when robots.txt declares no Crawl-delay or cannot be fetched
	MinDelay      float64
	MaxDelay      float64
	RespectRobots bool
	RobotsRetries int               // Retries for the robots.txt request
	Retry         fetch.RetryConfig // Backoff schedule; MaxRetries is overridden per request kind
	Compress      bool
}

// DomainState is everything the crawler remembers about one domain during a run.
type DomainState struct {
	LastCrawl     time.Time // Zero until the first fetch completes
	CrawlDelay    float64   // Effective delay in seconds, already clamped
	Rules         robots.Rules
	Sitemaps      []string
	RobotsFetched bool   // Set once per run, whatever the fetch outcome
	RobotsError   string // Why robots.txt was treated as absent, if it was

	URLsCrawled int
	URLsFailed  int
	URLsSkipped int
}

// Resolution is the politeness verdict for one URL.
type Resolution struct {
	Delay       float64     // Seconds to keep between requests to the domain
	Allowed     bool        // robots.txt permits the path (always true when robots is not respected)
	ResolvedNow bool        // This call performed the one-time robots.txt resolution
	State       DomainState // Snapshot after resolution
}

// Registry owns the domain table of a crawl run
type Registry struct {
	fetcher RobotsFetcher
	cfg     PolicyConfig
	log     *logrus.Entry

	mu      sync.Mutex
	domains map[string]*DomainState // domain (no port) -> state
}

// NewRegistry creates an empty Registry
func NewRegistry(fetcher RobotsFetcher, cfg PolicyConfig, log *logrus.Entry) *Registry {
	return &Registry{
		fetcher: fetcher,
		cfg:     cfg,
		log:     log.WithField("component", "politeness"),
		domains: make(map[string]*DomainState),
	}
}

// RobotsURL is where robots.txt is looked up for domain. HTTPS is always used.
func RobotsURL(domain string) string {
	return "https://" + domain + "/robots.txt"
}

// ClampDelay bounds d to [minDelay, maxDelay]; the lower bound wins when they conflict.
func ClampDelay(d, minDelay, maxDelay float64) float64 {
	return max(minDelay, min(d, maxDelay))
}

// Resolve returns the delay and robots verdict for path on domain, creating the domain's
// state on first reference. robots.txt is fetched at most once per domain per run; a
// failed fetch leaves the domain unrestricted with the default delay.
func (r *Registry) Resolve(ctx context.Context, domain, path string) Resolution {
	r.mu.Lock()
	state, ok := r.domains[domain]
	if !ok {
		state = &DomainState{}
		r.domains[domain] = state
	}
	fetched := state.RobotsFetched
	r.mu.Unlock()

	res := Resolution{}
	if !fetched {
		r.resolveDomain(ctx, domain, state)
		res.ResolvedNow = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	res.Delay = state.CrawlDelay
	res.Allowed = !r.cfg.RespectRobots || robots.IsAllowed(state.Rules, path)
	res.State = snapshot(state)
	return res
}

// resolveDomain performs the one-time robots.txt resolution for a domain.
func (r *Registry) resolveDomain(ctx context.Context, domain string, state *DomainState) {
	delay := r.cfg.DefaultDelay
	var (
		rules    robots.Rules
		sitemaps []string
		robotErr string
	)

	if r.cfg.RespectRobots {
		robotsURL := RobotsURL(domain)
		robotsLog := r.log.WithFields(logrus.Fields{"domain": domain, "robots_url": robotsURL})
		robotsLog.Info("Fetching robots.txt...")

		retry := r.cfg.Retry
		if retry == (fetch.RetryConfig{}) {
			retry = fetch.DefaultRetryConfig()
		}
		resp, err := r.fetcher.Fetch(ctx, robotsURL, retry.WithMaxRetries(r.cfg.RobotsRetries), fetch.Options{
			UserAgent: r.cfg.UserAgent,
			Compress:  r.cfg.Compress,
		})
		switch {
		case err != nil:
			robotErr = err.Error()
		case !resp.Success:
			robotErr = resp.Error
		default:
			data := robots.Parse(resp.Body)
			rules = robots.RulesFor(data, r.cfg.UserAgent)
			sitemaps = data.Sitemaps
			if rules.CrawlDelay != nil {
				delay = *rules.CrawlDelay
			}
		}

		if robotErr != "" {
			robotsLog.WithField("error", robotErr).Warn("robots.txt unavailable, allowing all paths")
		} else {
			robotsLog.WithFields(logrus.Fields{
				"disallow": len(rules.Disallow),
				"allow":    len(rules.Allow),
				"sitemaps": len(sitemaps),
			}).Info("Parsed robots.txt")
		}
	}

	delay = ClampDelay(delay, r.cfg.MinDelay, r.cfg.MaxDelay)

	r.mu.Lock()
	state.CrawlDelay = delay
	state.Rules = rules
	state.Sitemaps = sitemaps
	state.RobotsError = robotErr
	state.RobotsFetched = true
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{"domain": domain, "crawl_delay": delay}).Debug("Domain resolved")
}

// MarkFetched records a completed fetch: LastCrawl moves to at, and the crawled or failed
// counter is bumped.
func (r *Registry) MarkFetched(domain string, at time.Time, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.stateLocked(domain)
	state.LastCrawl = at
	if success {
		state.URLsCrawled++
	} else {
		state.URLsFailed++
	}
}

// MarkSkipped records a URL blocked by robots.txt.
func (r *Registry) MarkSkipped(domain string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stateLocked(domain).URLsSkipped++
}

// State returns a snapshot of domain's state
func (r *Registry) State(domain string) (DomainState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.domains[domain]
	if !ok {
		return DomainState{}, false
	}
	return snapshot(state), true
}

// Len returns the number of domains seen so far
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.domains)
}

// Domains returns the known domains in sorted order
func (r *Registry) Domains() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.domains))
	for d := range r.domains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) stateLocked(domain string) *DomainState {
	state, ok := r.domains[domain]
	if !ok {
		state = &DomainState{}
		r.domains[domain] = state
	}
	return state
}

func snapshot(state *DomainState) DomainState {
	cp := *state
	cp.Sitemaps = append([]string(nil), state.Sitemaps...)
	return cp
}
