package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/politecrawl/pkg/config"
	"github.com/Sriram-PR/politecrawl/pkg/fetch"
	"github.com/Sriram-PR/politecrawl/pkg/parse"
	"github.com/Sriram-PR/politecrawl/pkg/politeness"
)

// runRobots handles the robots subcommand
func runRobots(args []string) {
	fs := flag.NewFlagSet("robots", flag.ExitOnError)
	userAgent := fs.String("user-agent", "", "User agent to evaluate rules for (required)")
	retries := fs.Int("retries", 2, "Retries for the robots.txt request")
	logLevel := fs.String("loglevel", "warn", "Log level (trace, debug, info, warn, error)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: politecrawl robots -user-agent UA URL\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 || strings.TrimSpace(*userAgent) == "" {
		fs.Usage()
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	settings := config.AppConfig{UserAgent: *userAgent, URLs: fs.Args()}
	if _, err := settings.Validate(); err != nil {
		log.Fatalf("Config error: %v", err)
	}
	client := fetch.NewClient(settings.HTTPClientSettings, log.WithField("component", "http_client"))
	os.Exit(doRobots(context.Background(), client, *userAgent, fs.Arg(0), *retries, log.WithField("component", "robots"), os.Stdout))
}

// doRobots resolves the robots.txt policy of rawURL's domain and prints it.
// Returns exit code (0 = allowed, 2 = disallowed).
func doRobots(ctx context.Context, client fetch.Doer, userAgent, rawURL string, retries int, log *logrus.Entry, stdout io.Writer) int {
	domain, path := parse.SplitURL(rawURL)
	reg := politeness.NewRegistry(fetch.NewFetcher(client, log), politeness.PolicyConfig{
		UserAgent:     userAgent,
		DefaultDelay:  1,
		MaxDelay:      60,
		RespectRobots: true,
		RobotsRetries: retries,
		Compress:      true,
	}, log)
	res := reg.Resolve(ctx, domain, path)
	state := res.State

	fmt.Fprintf(stdout, "robots.txt:  %s\n", politeness.RobotsURL(domain))
	if state.RobotsError != "" {
		fmt.Fprintf(stdout, "status:      unavailable (%s), all paths allowed\n", state.RobotsError)
	} else {
		fmt.Fprintln(stdout, "status:      fetched")
	}
	if state.Rules.CrawlDelay != nil {
		fmt.Fprintf(stdout, "crawl-delay: %vs declared, %vs effective\n", *state.Rules.CrawlDelay, res.Delay)
	} else {
		fmt.Fprintf(stdout, "crawl-delay: %vs effective (default)\n", res.Delay)
	}
	for _, p := range state.Rules.Disallow {
		fmt.Fprintf(stdout, "disallow:    %s\n", p)
	}
	for _, p := range state.Rules.Allow {
		fmt.Fprintf(stdout, "allow:       %s\n", p)
	}
	for _, s := range state.Sitemaps {
		fmt.Fprintf(stdout, "sitemap:     %s\n", s)
	}

	if !res.Allowed {
		fmt.Fprintf(stdout, "%s: disallowed for %q\n", path, userAgent)
		return 2
	}
	fmt.Fprintf(stdout, "%s: allowed for %q\n", path, userAgent)
	return 0
}
