package models

import "time"

// StatusBlocked is the http_status value reserved for URLs blocked by robots policy.
const StatusBlocked = -1

// Columns lists the output row columns in emission order.
var Columns = []string{"url", "domain", "http_status", "body", "content_type", "elapsed_ms", "crawled_at", "error"}

// CrawlResult is one output row. Nil pointers are absent (NULL) values.
type CrawlResult struct {
	URL         string    `json:"url"`
	Domain      string    `json:"domain"`
	HTTPStatus  int       `json:"http_status"`
	Body        *string   `json:"body"`
	ContentType *string   `json:"content_type"`
	ElapsedMs   int64     `json:"elapsed_ms"`
	CrawledAt   time.Time `json:"crawled_at"`
	Error       *string   `json:"error"`
}

// Row returns the column values in the order of Columns, using nil for absent values.
func (r CrawlResult) Row() []any {
	return []any{
		r.URL,
		r.Domain,
		r.HTTPStatus,
		optional(r.Body),
		optional(r.ContentType),
		r.ElapsedMs,
		r.CrawledAt,
		optional(r.Error),
	}
}

// Blocked reports whether the row represents a robots.txt block rather than a fetch.
func (r CrawlResult) Blocked() bool {
	return r.HTTPStatus == StatusBlocked
}

// StringPtr returns nil for an empty string, otherwise a pointer to s.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// RunStats holds the aggregate counters of a single run.
type RunStats struct {
	RunID     string        `json:"run_id" yaml:"run_id"`
	Crawled   int           `json:"crawled" yaml:"crawled"`
	Failed    int           `json:"failed" yaml:"failed"`
	Skipped   int           `json:"skipped" yaml:"skipped"`
	Cancelled int           `json:"cancelled" yaml:"cancelled"`
	Processed int           `json:"processed" yaml:"processed"` // URLs taken off the worklist
	Domains   int           `json:"domains" yaml:"domains"`
	StartTime time.Time     `json:"start_time" yaml:"start_time"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}
