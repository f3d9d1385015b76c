package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/politecrawl/pkg/models"
	"github.com/Sriram-PR/politecrawl/pkg/storage"
)

// runResults handles the results subcommand
func runResults(args []string) {
	fs := flag.NewFlagSet("results", flag.ExitOnError)
	format := fs.String("output", "sqlite", "Store format: badger or sqlite")
	path := fs.String("out", "", "Store path (required)")
	runID := fs.String("run", "", "Run to print; lists runs when empty")
	logLevel := fs.String("loglevel", "warn", "Log level (trace, debug, info, warn, error)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: politecrawl results -output sqlite -out crawl_results.db [-run RUN_ID]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *path == "" {
		fs.Usage()
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	os.Exit(doResults(context.Background(), *format, *path, *runID, log.WithField("component", "results"), os.Stdout, os.Stderr))
}

// doResults lists stored runs, or prints one run's rows as JSON lines.
func doResults(ctx context.Context, format, path, runID string, log *logrus.Entry, stdout, stderr io.Writer) int {
	reader, closeFn, err := storage.OpenReader(format, path, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer closeFn()

	if runID == "" {
		runs, err := reader.Runs(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		for _, r := range runs {
			fmt.Fprintf(stdout, "%s  %s  processed=%d crawled=%d failed=%d skipped=%d cancelled=%d duration=%v\n",
				r.RunID, r.StartTime.Format(time.RFC3339), r.Processed, r.Crawled, r.Failed, r.Skipped, r.Cancelled,
				r.Duration.Round(time.Millisecond))
		}
		return 0
	}

	enc := json.NewEncoder(stdout)
	enc.SetEscapeHTML(false)
	if err := reader.ForEach(ctx, runID, func(r models.CrawlResult) error {
		return enc.Encode(r)
	}); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
