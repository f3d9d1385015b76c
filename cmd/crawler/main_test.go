package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/politecrawl/pkg/config"
	"github.com/Sriram-PR/politecrawl/pkg/models"
	"github.com/Sriram-PR/politecrawl/pkg/shutdown"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// rewriteDoer sends every request to target while keeping the original Host header,
// so https://ex.com/robots.txt reaches the test server as host ex.com.
type rewriteDoer struct {
	target *url.URL

	mu       sync.Mutex
	requests []string
}

func newRewriteDoer(t *testing.T, srv *httptest.Server) *rewriteDoer {
	t.Helper()
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return &rewriteDoer{target: target}
}

func (d *rewriteDoer) Do(req *http.Request) (*http.Response, error) {
	d.mu.Lock()
	d.requests = append(d.requests, req.URL.String())
	d.mu.Unlock()
	req.Host = req.URL.Host
	req.URL.Scheme = d.target.Scheme
	req.URL.Host = d.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func siteServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Host == "ex.com" && r.URL.Path == "/robots.txt":
			w.Write([]byte("User-agent: *\nDisallow: /b\nSitemap: https://ex.com/sitemap.xml\n"))
		case r.Host == "ex.com" && r.URL.Path == "/a":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html>a</html>"))
		default:
			http.NotFound(w, r)
		}
	}))
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))
	return cfgPath
}

func TestLoadConfig_ValidFile(t *testing.T) {
	cfgPath := writeConfig(t, `
user_agent: "TestBot/1.0"
urls:
  - https://ex.com/a
  - https://ex.com/b
log_skipped: false
output:
  format: sqlite
`)

	cfg, err := loadConfig(cfgPath)

	require.NoError(t, err)
	assert.Equal(t, "TestBot/1.0", cfg.UserAgent)
	assert.Len(t, cfg.URLs, 2)
	assert.False(t, config.GetEffectiveLogSkipped(*cfg))
	assert.Equal(t, config.FormatSQLite, cfg.Output.Format)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := loadConfig("/nonexistent/path/config.yaml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	cfgPath := writeConfig(t, "{{invalid yaml")

	_, err := loadConfig(cfgPath)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestReadURLList(t *testing.T) {
	urls, err := readURLList(strings.NewReader("# worklist\nhttps://a.com/\n\n  https://b.com/x  \n#https://skip.me\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.com/", "https://b.com/x"}, urls)
}

func TestBuildConfig_FlagsOverrideFile(t *testing.T) {
	cfgPath := writeConfig(t, `
user_agent: FileBot
urls: [https://a.com/]
output:
  format: badger
  path: ./state
`)
	listPath := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(listPath, []byte("https://c.com/\n"), 0644))

	cfg, err := buildConfig(crawlFlags{
		configFile: cfgPath,
		userAgent:  "FlagBot",
		urls:       stringList{"https://b.com/"},
		urlsFile:   listPath,
		noRobots:   true,
		quietSkips: true,
		format:     "sqlite",
		out:        "results.db",
	})

	require.NoError(t, err)
	assert.Equal(t, "FlagBot", cfg.UserAgent)
	assert.Equal(t, []string{"https://a.com/", "https://b.com/", "https://c.com/"}, cfg.URLs)
	assert.False(t, config.GetEffectiveRespectRobots(*cfg))
	assert.False(t, config.GetEffectiveLogSkipped(*cfg))
	assert.Equal(t, "sqlite", cfg.Output.Format)
	assert.Equal(t, "results.db", cfg.Output.Path)
}

func TestBuildConfig_NoFile(t *testing.T) {
	cfg, err := buildConfig(crawlFlags{userAgent: "Bot", urls: stringList{"https://a.com/"}})
	require.NoError(t, err)
	_, err = cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, config.FormatJSONL, cfg.Output.Format)
}

func TestBuildOptions_Defaults(t *testing.T) {
	cfg := &config.AppConfig{UserAgent: "Bot", URLs: []string{"https://a.com/"}}
	_, err := cfg.Validate()
	require.NoError(t, err)

	opts := buildOptions(cfg)

	assert.Equal(t, 1.0, opts.Policy.DefaultDelay)
	assert.Equal(t, 0.0, opts.Policy.MinDelay)
	assert.Equal(t, 60.0, opts.Policy.MaxDelay)
	assert.True(t, opts.Policy.RespectRobots)
	assert.True(t, opts.Policy.Compress)
	assert.True(t, opts.LogSkipped)
	assert.Equal(t, 3, opts.FetchRetries)
	assert.Equal(t, 2, opts.Policy.RobotsRetries)
	assert.Equal(t, 2.0, opts.Policy.Retry.BackoffMultiplier)
	assert.Nil(t, opts.Observer)
}

func TestExecuteCrawl_JSONL(t *testing.T) {
	srv := siteServer()
	defer srv.Close()
	doer := newRewriteDoer(t, srv)

	outPath := filepath.Join(t.TempDir(), "rows.jsonl")
	zero := 0.0
	cfg := &config.AppConfig{
		UserAgent:         "TestBot",
		URLs:              []string{"https://ex.com/a", "https://ex.com/b", "https://ex.com/missing"},
		DefaultCrawlDelay: &zero,
		Output:            config.OutputConfig{Format: config.FormatJSONL, Path: outPath},
	}
	_, err := cfg.Validate()
	require.NoError(t, err)

	stats, err := executeCrawl(context.Background(), cfg, doer, shutdown.NewToken(logrus.NewEntry(testLogger())), testLogger())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Processed)
	assert.Equal(t, 1, stats.Crawled)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Failed)

	file, err := os.Open(outPath)
	require.NoError(t, err)
	defer file.Close()

	var rows []models.CrawlResult
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var r models.CrawlResult
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		rows = append(rows, r)
	}
	require.Len(t, rows, 3)
	assert.Equal(t, 200, rows[0].HTTPStatus)
	assert.Equal(t, models.StatusBlocked, rows[1].HTTPStatus)
	require.NotNil(t, rows[1].Error)
	assert.Equal(t, "robots.txt disallow", *rows[1].Error)
	assert.Equal(t, 404, rows[2].HTTPStatus)

	robotsRequests := 0
	for _, r := range doer.requests {
		if r == "https://ex.com/robots.txt" {
			robotsRequests++
		}
	}
	assert.Equal(t, 1, robotsRequests)
}

func TestExecuteCrawl_SQLiteThenResults(t *testing.T) {
	srv := siteServer()
	defer srv.Close()

	dbPath := filepath.Join(t.TempDir(), "crawl.db")
	zero := 0.0
	cfg := &config.AppConfig{
		UserAgent:         "TestBot",
		URLs:              []string{"https://ex.com/a", "https://ex.com/b"},
		DefaultCrawlDelay: &zero,
		Output:            config.OutputConfig{Format: config.FormatSQLite, Path: dbPath},
	}
	_, err := cfg.Validate()
	require.NoError(t, err)

	stats, err := executeCrawl(context.Background(), cfg, newRewriteDoer(t, srv), nil, testLogger())
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer
	code := doResults(context.Background(), config.FormatSQLite, dbPath, "", logrus.NewEntry(testLogger()), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), stats.RunID)
	assert.Contains(t, stdout.String(), "processed=2 crawled=1")

	stdout.Reset()
	code = doResults(context.Background(), config.FormatSQLite, dbPath, stats.RunID, logrus.NewEntry(testLogger()), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"body":"<html>a</html>"`)
	assert.Contains(t, lines[1], `"http_status":-1`)
}

func TestDoResults_UnreadableFormat(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := doResults(context.Background(), config.FormatJSONL, t.TempDir(), "", logrus.NewEntry(testLogger()), &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "cannot be read back")
}

func TestDoRobots(t *testing.T) {
	srv := siteServer()
	defer srv.Close()
	entry := logrus.NewEntry(testLogger())

	var stdout bytes.Buffer
	code := doRobots(context.Background(), newRewriteDoer(t, srv), "TestBot", "https://ex.com/b/page", 0, entry, &stdout)
	assert.Equal(t, 2, code)
	assert.Contains(t, stdout.String(), "robots.txt:  https://ex.com/robots.txt")
	assert.Contains(t, stdout.String(), "disallow:    /b")
	assert.Contains(t, stdout.String(), "sitemap:     https://ex.com/sitemap.xml")
	assert.Contains(t, stdout.String(), `/b/page: disallowed for "TestBot"`)

	stdout.Reset()
	code = doRobots(context.Background(), newRewriteDoer(t, srv), "TestBot", "https://ex.com/a", 0, entry, &stdout)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), `/a: allowed`)
}

func TestDoRobots_Unavailable(t *testing.T) {
	srv := siteServer()
	defer srv.Close()

	var stdout bytes.Buffer
	code := doRobots(context.Background(), newRewriteDoer(t, srv), "TestBot", "https://other.org/x", 0, logrus.NewEntry(testLogger()), &stdout)

	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "unavailable (HTTP 404), all paths allowed")
	assert.Contains(t, stdout.String(), "1s effective (default)")
}

func TestDoValidate(t *testing.T) {
	cfgPath := writeConfig(t, `
user_agent: TestBot
urls: [https://a.com/x, https://a.com/y, https://b.com/]
min_crawl_delay: -1
`)

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "WARN: min_crawl_delay")
	assert.Contains(t, stdout.String(), "OK: 3 URLs, 2 domains, output jsonl -> -")
	assert.Contains(t, stdout.String(), "Configuration valid")
	assert.Empty(t, stderr.String())
}

func TestDoValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"missing user agent", "urls: [https://a.com/]", "user_agent is required"},
		{"no urls", "user_agent: Bot", "urls must list"},
		{"min above max", "user_agent: Bot\nurls: [https://a.com/]\nmin_crawl_delay: 10\nmax_crawl_delay: 5", "min_crawl_delay"},
		{"bad format", "user_agent: Bot\nurls: [https://a.com/]\noutput:\n  format: csv", "output.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			exitCode := doValidate(writeConfig(t, tt.content), &stdout, &stderr)
			assert.Equal(t, 1, exitCode)
			assert.Contains(t, stderr.String(), tt.want)
		})
	}
}

func TestDoValidate_FileNotFound(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := doValidate("/nonexistent/config.yaml", &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "Error:")
}

func TestPrintUsageTo(t *testing.T) {
	var buf bytes.Buffer
	printUsageTo(&buf)

	for _, cmd := range []string{"crawl", "robots", "results", "validate", "version"} {
		assert.Contains(t, buf.String(), cmd)
	}
}

func TestStringList(t *testing.T) {
	var s stringList
	require.NoError(t, s.Set("a"))
	require.NoError(t, s.Set("b"))
	assert.Equal(t, "a,b", s.String())
}
