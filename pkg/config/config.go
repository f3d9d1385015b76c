package config

import "time"

// Output formats accepted by OutputConfig.Format
const (
	FormatJSONL  = "jsonl"
	FormatBadger = "badger"
	FormatSQLite = "sqlite"
)

// AppConfig holds the global application configuration
type AppConfig struct {
	UserAgent          string           `yaml:"user_agent"`
	URLs               []string         `yaml:"urls"`
	DefaultCrawlDelay  *float64         `yaml:"default_crawl_delay,omitempty"` // Seconds; used when robots.txt declares none
	MinCrawlDelay      float64          `yaml:"min_crawl_delay,omitempty"`
	MaxCrawlDelay      *float64         `yaml:"max_crawl_delay,omitempty"`
	TimeoutSeconds     int              `yaml:"timeout_seconds,omitempty"` // Fallback for http_client_settings.timeout
	RespectRobotsTxt   *bool            `yaml:"respect_robots_txt,omitempty"`
	LogSkipped         *bool            `yaml:"log_skipped,omitempty"`
	Compress           *bool            `yaml:"compress,omitempty"`
	FetchRetries       *int             `yaml:"fetch_retries,omitempty"`
	RobotsRetries      *int             `yaml:"robots_retries,omitempty"`
	Retry              RetryConfig      `yaml:"retry,omitempty"`
	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
	Output             OutputConfig     `yaml:"output,omitempty"`
	MetricsAddr        string           `yaml:"metrics_addr,omitempty"` // Empty disables the /metrics endpoint
}

// RetryConfig holds the backoff schedule shared by page and robots.txt fetches.
// The retry count itself comes from fetch_retries / robots_retries.
type RetryConfig struct {
	InitialBackoff time.Duration `yaml:"initial_backoff,omitempty"`
	Multiplier     float64       `yaml:"multiplier,omitempty"`
	MaxBackoff     time.Duration `yaml:"max_backoff,omitempty"`
	Jitter         float64       `yaml:"jitter,omitempty"`
}

// OutputConfig selects where emitted rows go
type OutputConfig struct {
	Format string `yaml:"format,omitempty"` // jsonl | badger | sqlite
	Path   string `yaml:"path,omitempty"`   // File (jsonl, sqlite) or directory (badger); "-" is stdout for jsonl
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
	MaxRedirects          int           `yaml:"max_redirects,omitempty"`
}

// GetEffectiveDefaultDelay returns default_crawl_delay, or 1 second when unset
func GetEffectiveDefaultDelay(c AppConfig) float64 {
	if c.DefaultCrawlDelay != nil {
		return *c.DefaultCrawlDelay
	}
	return 1.0
}

// GetEffectiveMaxDelay returns max_crawl_delay, or 60 seconds when unset
func GetEffectiveMaxDelay(c AppConfig) float64 {
	if c.MaxCrawlDelay != nil {
		return *c.MaxCrawlDelay
	}
	return 60.0
}

// GetEffectiveRespectRobots defaults to true
func GetEffectiveRespectRobots(c AppConfig) bool {
	return boolOr(c.RespectRobotsTxt, true)
}

// GetEffectiveLogSkipped defaults to true
func GetEffectiveLogSkipped(c AppConfig) bool {
	return boolOr(c.LogSkipped, true)
}

// GetEffectiveCompress defaults to true
func GetEffectiveCompress(c AppConfig) bool {
	return boolOr(c.Compress, true)
}

// GetEffectiveFetchRetries returns fetch_retries, or 3 when unset
func GetEffectiveFetchRetries(c AppConfig) int {
	return intOr(c.FetchRetries, 3)
}

// GetEffectiveRobotsRetries returns robots_retries, or 2 when unset
func GetEffectiveRobotsRetries(c AppConfig) int {
	return intOr(c.RobotsRetries, 2)
}

// GetEffectiveOutputPath falls back to a per-format default location
func GetEffectiveOutputPath(c AppConfig) string {
	if c.Output.Path != "" {
		return c.Output.Path
	}
	switch c.Output.Format {
	case FormatBadger:
		return "./crawl_results"
	case FormatSQLite:
		return "./crawl_results.db"
	default:
		return "-"
	}
}

func boolOr(p *bool, def bool) bool {
	if p != nil {
		return *p
	}
	return def
}

func intOr(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}
