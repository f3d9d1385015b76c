package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/politecrawl/pkg/models"
	"github.com/Sriram-PR/politecrawl/pkg/utils"
)

// JSONLWriter writes one JSON object per row. Absent columns are encoded as null.
type JSONLWriter struct {
	mu     sync.Mutex
	w      *bufio.Writer
	enc    *json.Encoder
	closer io.Closer // nil when the underlying writer is not owned (stdout)
	path   string
	count  int
	log    *logrus.Entry
}

// NewJSONLWriter wraps w. Close flushes but does not close w.
func NewJSONLWriter(w io.Writer, logger *logrus.Entry) *JSONLWriter {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{w: bw, enc: enc, log: logger}
}

// OpenJSONL opens path for appending. "-" writes to stdout; an existing directory gets a
// file named after the run.
func OpenJSONL(path, runID string, logger *logrus.Entry) (*JSONLWriter, error) {
	if path == "" || path == "-" {
		return NewJSONLWriter(os.Stdout, logger), nil
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, utils.SanitizeFilename("crawl_"+runID)+".jsonl")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: create output directory '%s': %w", utils.ErrFilesystem, dir, err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open output file '%s': %w", utils.ErrFilesystem, path, err)
	}
	logger.Infof("Writing results to %s", path)
	w := NewJSONLWriter(file, logger)
	w.closer = file
	w.path = path
	return w, nil
}

// Path returns the output file, or "" for stdout
func (j *JSONLWriter) Path() string { return j.path }

// Write encodes one row and flushes it
func (j *JSONLWriter) Write(_ context.Context, result models.CrawlResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(result); err != nil {
		return fmt.Errorf("%w: encode row for %s: %w", utils.ErrFilesystem, result.URL, err)
	}
	if err := j.w.Flush(); err != nil {
		return fmt.Errorf("%w: flush row for %s: %w", utils.ErrFilesystem, result.URL, err)
	}
	j.count++
	return nil
}

// Close flushes buffered output and closes an owned file
func (j *JSONLWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	err := j.w.Flush()
	if j.closer != nil {
		if cerr := j.closer.Close(); err == nil {
			err = cerr
		}
		j.closer = nil
	}
	j.log.Debugf("JSONL writer closed after %d rows", j.count)
	return err
}
