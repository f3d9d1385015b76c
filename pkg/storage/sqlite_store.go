package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/Sriram-PR/politecrawl/pkg/models"
	"github.com/Sriram-PR/politecrawl/pkg/utils"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS results (
	run_id       TEXT    NOT NULL,
	seq          INTEGER NOT NULL,
	url          TEXT    NOT NULL,
	domain       TEXT    NOT NULL,
	http_status  INTEGER NOT NULL,
	body         TEXT,
	content_type TEXT,
	elapsed_ms   INTEGER NOT NULL,
	crawled_at   TEXT    NOT NULL,
	error        TEXT,
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_results_domain ON results(domain);

CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	crawled     INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	cancelled   INTEGER NOT NULL,
	processed   INTEGER NOT NULL,
	domains     INTEGER NOT NULL,
	start_time  TEXT    NOT NULL,
	duration_ms INTEGER NOT NULL
);
`

// SQLiteResultStore writes rows into a results table, one row per emitted CrawlResult,
// with columns named after models.Columns.
type SQLiteResultStore struct {
	db    *sql.DB
	log   *logrus.Entry
	runID string

	mu  sync.Mutex
	seq int64
}

// NewSQLiteResultStore opens (or creates) the database file at path
func NewSQLiteResultStore(path, runID string, logger *logrus.Entry) (*SQLiteResultStore, error) {
	logger = logger.WithField("component", "sqlite_store")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create database directory: %w", utils.ErrFilesystem, err)
	}

	// modernc.org/sqlite registers as "sqlite"
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", utils.ErrDatabase, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL", "PRAGMA busy_timeout = 5000", sqliteSchema} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: failed to initialise database: %w", utils.ErrDatabase, err)
		}
	}

	logger.Infof("Result database opened at %s", path)
	return &SQLiteResultStore{db: db, log: logger, runID: runID}, nil
}

var insertResultSQL = fmt.Sprintf(
	"INSERT INTO results (run_id, seq, %s) VALUES (?, ?%s)",
	strings.Join(models.Columns, ", "),
	strings.Repeat(", ?", len(models.Columns)),
)

// Write implements ResultSink
func (s *SQLiteResultStore) Write(ctx context.Context, result models.CrawlResult) error {
	if s.runID == "" {
		return fmt.Errorf("%w: store opened without a run id is read-only", utils.ErrDatabase)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	args := append([]any{s.runID, s.seq + 1}, result.Row()...)
	// crawled_at is stored as RFC 3339 text
	args[2+6] = result.CrawledAt.UTC().Format(time.RFC3339Nano)

	if _, err := s.db.ExecContext(ctx, insertResultSQL, args...); err != nil {
		return fmt.Errorf("%w: insert row for %s: %w", utils.ErrDatabase, result.URL, err)
	}
	s.seq++
	return nil
}

// RecordRun implements RunRecorder
func (s *SQLiteResultStore) RecordRun(ctx context.Context, stats models.RunStats) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (run_id, crawled, failed, skipped, cancelled, processed, domains, start_time, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stats.RunID, stats.Crawled, stats.Failed, stats.Skipped, stats.Cancelled, stats.Processed,
		stats.Domains, stats.StartTime.UTC().Format(time.RFC3339Nano), stats.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("%w: record run %s: %w", utils.ErrDatabase, stats.RunID, err)
	}
	return nil
}

// ForEach implements ResultReader
func (s *SQLiteResultStore) ForEach(ctx context.Context, runID string, fn func(models.CrawlResult) error) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+strings.Join(models.Columns, ", ")+" FROM results WHERE run_id = ? ORDER BY seq", runID)
	if err != nil {
		return fmt.Errorf("%w: query results: %w", utils.ErrDatabase, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r                       models.CrawlResult
			body, contentType, errS sql.NullString
			crawledAt               string
		)
		if err := rows.Scan(&r.URL, &r.Domain, &r.HTTPStatus, &body, &contentType, &r.ElapsedMs, &crawledAt, &errS); err != nil {
			return fmt.Errorf("%w: scan result: %w", utils.ErrDatabase, err)
		}
		r.Body = nullable(body)
		r.ContentType = nullable(contentType)
		r.Error = nullable(errS)
		if r.CrawledAt, err = time.Parse(time.RFC3339Nano, crawledAt); err != nil {
			return fmt.Errorf("%w: crawled_at %q: %w", utils.ErrParsing, crawledAt, err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Runs implements ResultReader. Runs are returned oldest first.
func (s *SQLiteResultStore) Runs(ctx context.Context) ([]models.RunStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, crawled, failed, skipped, cancelled, processed, domains, start_time, duration_ms
		FROM runs ORDER BY start_time`)
	if err != nil {
		return nil, fmt.Errorf("%w: query runs: %w", utils.ErrDatabase, err)
	}
	defer rows.Close()

	var runs []models.RunStats
	for rows.Next() {
		var (
			st         models.RunStats
			start      string
			durationMs int64
		)
		if err := rows.Scan(&st.RunID, &st.Crawled, &st.Failed, &st.Skipped, &st.Cancelled, &st.Processed, &st.Domains, &start, &durationMs); err != nil {
			return nil, fmt.Errorf("%w: scan run: %w", utils.ErrDatabase, err)
		}
		st.StartTime, _ = time.Parse(time.RFC3339Nano, start)
		st.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, st)
	}
	return runs, rows.Err()
}

// Close implements ResultSink
func (s *SQLiteResultStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", utils.ErrDatabase, err)
	}
	s.log.Debugf("Result database closed after %d rows", s.seq)
	return nil
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
