package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/politecrawl/pkg/config"
	"github.com/Sriram-PR/politecrawl/pkg/crawler"
	"github.com/Sriram-PR/politecrawl/pkg/fetch"
	"github.com/Sriram-PR/politecrawl/pkg/metrics"
	"github.com/Sriram-PR/politecrawl/pkg/models"
	"github.com/Sriram-PR/politecrawl/pkg/parse"
	"github.com/Sriram-PR/politecrawl/pkg/politeness"
	"github.com/Sriram-PR/politecrawl/pkg/shutdown"
	"github.com/Sriram-PR/politecrawl/pkg/storage"
)

// crawlFlags are the command-line overrides applied on top of the config file
type crawlFlags struct {
	configFile  string
	userAgent   string
	urls        stringList
	urlsFile    string
	noRobots    bool
	quietSkips  bool
	format      string
	out         string
	metricsAddr string
	logLevel    string
	gracePeriod time.Duration
}

// runCrawl handles the crawl subcommand
func runCrawl(args []string) {
	var f crawlFlags
	fs := flag.NewFlagSet("crawl", flag.ExitOnError)
	fs.StringVar(&f.configFile, "config", "", "Path to config file (optional when -user-agent and -url are given)")
	fs.StringVar(&f.userAgent, "user-agent", "", "User agent sent with every request and matched against robots.txt")
	fs.Var(&f.urls, "url", "URL to crawl (repeatable, appended after config urls)")
	fs.StringVar(&f.urlsFile, "urls-file", "", "File with one URL per line (appended after -url)")
	fs.BoolVar(&f.noRobots, "no-robots", false, "Ignore robots.txt rules and crawl delays")
	fs.BoolVar(&f.quietSkips, "quiet-skips", false, "Do not emit rows for URLs blocked by robots.txt")
	fs.StringVar(&f.format, "output", "", "Output format: jsonl, badger or sqlite")
	fs.StringVar(&f.out, "out", "", "Output path (file, directory for badger, '-' for stdout)")
	fs.StringVar(&f.metricsAddr, "metrics", "", "Address for the Prometheus /metrics endpoint, e.g. localhost:9090")
	fs.StringVar(&f.logLevel, "loglevel", "info", "Log level (trace, debug, info, warn, error)")
	fs.DurationVar(&f.gracePeriod, "grace-period", 0, "Force exit this long after the first interrupt (0 waits for the current URL)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: politecrawl crawl [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	f.urls = append(f.urls, fs.Args()...)

	log := setupLogger(f.logLevel)
	appCfg, err := buildConfig(f)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	logAppConfig(appCfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var tokenOpts []shutdown.Option
	if f.gracePeriod > 0 {
		tokenOpts = append(tokenOpts, shutdown.WithGracePeriod(f.gracePeriod))
	}
	token := shutdown.NewToken(log.WithField("component", "main"), tokenOpts...)
	stopSignals := token.Notify(ctx)

	client := fetch.NewClient(appCfg.HTTPClientSettings, log.WithField("component", "http_client"))
	stats, err := executeCrawl(ctx, appCfg, client, token, log)
	stopSignals()

	if err != nil {
		log.Errorf("Crawl finished with error: %v", err)
		os.Exit(1)
	}
	if token.Cancelled() {
		log.Warnf("Crawl cancelled gracefully after %d of %d URLs.", stats.Processed, len(appCfg.URLs))
		os.Exit(0)
	}
	log.Info("Crawl completed successfully.")
}

// buildConfig loads the optional config file and applies flag overrides
func buildConfig(f crawlFlags) (*config.AppConfig, error) {
	appCfg := &config.AppConfig{}
	if f.configFile != "" {
		loaded, err := loadConfig(f.configFile)
		if err != nil {
			return nil, err
		}
		appCfg = loaded
	}

	if f.userAgent != "" {
		appCfg.UserAgent = f.userAgent
	}
	appCfg.URLs = append(appCfg.URLs, f.urls...)
	if f.urlsFile != "" {
		file, err := os.Open(f.urlsFile)
		if err != nil {
			return nil, fmt.Errorf("read urls file: %w", err)
		}
		defer file.Close()
		urls, err := readURLList(file)
		if err != nil {
			return nil, fmt.Errorf("read urls file: %w", err)
		}
		appCfg.URLs = append(appCfg.URLs, urls...)
	}
	if f.noRobots {
		respect := false
		appCfg.RespectRobotsTxt = &respect
	}
	if f.quietSkips {
		logSkipped := false
		appCfg.LogSkipped = &logSkipped
	}
	if f.format != "" {
		appCfg.Output.Format = f.format
	}
	if f.out != "" {
		appCfg.Output.Path = f.out
	}
	if f.metricsAddr != "" {
		appCfg.MetricsAddr = f.metricsAddr
	}
	return appCfg, nil
}

// buildOptions maps a validated AppConfig onto scheduler options
func buildOptions(appCfg *config.AppConfig) crawler.Options {
	return crawler.Options{
		URLs: appCfg.URLs,
		Policy: politeness.PolicyConfig{
			UserAgent:     appCfg.UserAgent,
			DefaultDelay:  config.GetEffectiveDefaultDelay(*appCfg),
			MinDelay:      appCfg.MinCrawlDelay,
			MaxDelay:      config.GetEffectiveMaxDelay(*appCfg),
			RespectRobots: config.GetEffectiveRespectRobots(*appCfg),
			RobotsRetries: config.GetEffectiveRobotsRetries(*appCfg),
			Retry: fetch.RetryConfig{
				InitialBackoff:    appCfg.Retry.InitialBackoff,
				BackoffMultiplier: appCfg.Retry.Multiplier,
				MaxBackoff:        appCfg.Retry.MaxBackoff,
				Jitter:            appCfg.Retry.Jitter,
			},
			Compress: config.GetEffectiveCompress(*appCfg),
		},
		LogSkipped:   config.GetEffectiveLogSkipped(*appCfg),
		FetchRetries: config.GetEffectiveFetchRetries(*appCfg),
	}
}

// executeCrawl wires the scheduler to the configured sink and runs it to completion.
// The returned error is a setup or sink failure; per-URL failures end up in the rows.
func executeCrawl(ctx context.Context, appCfg *config.AppConfig, client fetch.Doer, token *shutdown.Token, log *logrus.Logger) (models.RunStats, error) {
	logEntry := log.WithField("component", "crawl")
	opts := buildOptions(appCfg)

	if appCfg.MetricsAddr != "" {
		m := metrics.New()
		opts.Observer = m
		metricsCtx, stopMetrics := context.WithCancel(ctx)
		defer stopMetrics()
		go func() {
			if err := m.Serve(metricsCtx, appCfg.MetricsAddr, log.WithField("component", "metrics")); err != nil {
				log.Errorf("Metrics server failed on %s: %v", appCfg.MetricsAddr, err)
			}
		}()
	}

	sched, err := crawler.New(opts, fetch.NewFetcher(client, log.WithField("component", "fetcher")), token, logEntry)
	if err != nil {
		return models.RunStats{}, err
	}

	sink, err := storage.Open(appCfg.Output.Format, config.GetEffectiveOutputPath(*appCfg), sched.RunID(), logEntry)
	if err != nil {
		return models.RunStats{}, err
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			log.Errorf("Failed to close output: %v", cerr)
		}
	}()
	if store, ok := sink.(*storage.BadgerResultStore); ok {
		gcCtx, stopGC := context.WithCancel(ctx)
		defer stopGC()
		go store.RunGC(gcCtx, 10*time.Minute)
	}

	stats, runErr := sched.Run(ctx, func(r models.CrawlResult) error {
		return sink.Write(ctx, r)
	})

	if rec, ok := sink.(storage.RunRecorder); ok {
		if err := rec.RecordRun(context.Background(), stats); err != nil {
			log.Errorf("Failed to record run summary: %v", err)
		}
	}
	logSummary(stats, sched.Domains(), log)
	return stats, runErr
}

// logSummary logs the run totals and one line per domain
func logSummary(stats models.RunStats, domains *politeness.Registry, log *logrus.Logger) {
	log.WithFields(logrus.Fields{
		"run_id":    stats.RunID,
		"processed": stats.Processed,
		"crawled":   stats.Crawled,
		"failed":    stats.Failed,
		"skipped":   stats.Skipped,
		"cancelled": stats.Cancelled,
		"duration":  stats.Duration.Round(time.Millisecond),
	}).Info("Crawl summary")

	for _, domain := range domains.Domains() {
		state, _ := domains.State(domain)
		entry := log.WithFields(logrus.Fields{
			"domain":      domain,
			"crawled":     state.URLsCrawled,
			"failed":      state.URLsFailed,
			"skipped":     state.URLsSkipped,
			"crawl_delay": state.CrawlDelay,
			"sitemaps":    len(state.Sitemaps),
		})
		if state.RobotsError != "" {
			entry = entry.WithField("robots_error", state.RobotsError)
		}
		entry.Info("Domain summary")
	}
}

// countDomains returns the number of distinct domains in urls
func countDomains(urls []string) int {
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		seen[parse.ExtractDomain(u)] = struct{}{}
	}
	return len(seen)
}

// logAppConfig logs the effective global configuration
func logAppConfig(appCfg *config.AppConfig, log *logrus.Logger) {
	log.Infof("Config: UserAgent:%q, URLs:%d, Domains:%d",
		appCfg.UserAgent, len(appCfg.URLs), countDomains(appCfg.URLs))
	log.Infof("Config Politeness: RespectRobots:%t, LogSkipped:%t, DefaultDelay:%vs, MinDelay:%vs, MaxDelay:%vs",
		config.GetEffectiveRespectRobots(*appCfg), config.GetEffectiveLogSkipped(*appCfg),
		config.GetEffectiveDefaultDelay(*appCfg), appCfg.MinCrawlDelay, config.GetEffectiveMaxDelay(*appCfg))
	log.Infof("Config Retries: Fetch:%d, Robots:%d, InitialBackoff:%v, Multiplier:%v, MaxBackoff:%v",
		config.GetEffectiveFetchRetries(*appCfg), config.GetEffectiveRobotsRetries(*appCfg),
		appCfg.Retry.InitialBackoff, appCfg.Retry.Multiplier, appCfg.Retry.MaxBackoff)
	log.Infof("Config HTTP Client: Timeout:%v, MaxIdle:%d, MaxIdlePerHost:%d, MaxRedirects:%d, Compress:%t",
		appCfg.HTTPClientSettings.Timeout, appCfg.HTTPClientSettings.MaxIdleConns,
		appCfg.HTTPClientSettings.MaxIdleConnsPerHost, appCfg.HTTPClientSettings.MaxRedirects,
		config.GetEffectiveCompress(*appCfg))
	log.Infof("Config Output: Format:%s, Path:%s, Metrics:%q",
		appCfg.Output.Format, config.GetEffectiveOutputPath(*appCfg), appCfg.MetricsAddr)
}
