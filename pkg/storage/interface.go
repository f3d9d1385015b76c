package storage

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/politecrawl/pkg/config"
	"github.com/Sriram-PR/politecrawl/pkg/models"
	"github.com/Sriram-PR/politecrawl/pkg/utils"
)

// ResultSink receives emitted rows in worklist order
type ResultSink interface {
	// Write stores one row. An error stops the run.
	Write(ctx context.Context, result models.CrawlResult) error

	// Close flushes and releases the sink
	Close() error
}

// RunRecorder is implemented by sinks that can also persist the run summary
type RunRecorder interface {
	RecordRun(ctx context.Context, stats models.RunStats) error
}

// ResultReader is implemented by sinks whose rows can be read back, in write order
type ResultReader interface {
	ForEach(ctx context.Context, runID string, fn func(models.CrawlResult) error) error
	Runs(ctx context.Context) ([]models.RunStats, error)
}

// Open creates the sink for format at path. Rows written through it are tagged with runID.
func Open(format, path, runID string, logger *logrus.Entry) (ResultSink, error) {
	switch format {
	case "", config.FormatJSONL:
		return OpenJSONL(path, runID, logger)
	case config.FormatBadger:
		return NewBadgerResultStore(path, runID, logger)
	case config.FormatSQLite:
		return NewSQLiteResultStore(path, runID, logger)
	default:
		return nil, fmt.Errorf("%w: unknown output format %q", utils.ErrConfigValidation, format)
	}
}

// OpenReader opens an existing badger or sqlite store for reading
func OpenReader(format, path string, logger *logrus.Entry) (ResultReader, func() error, error) {
	switch format {
	case config.FormatBadger:
		s, err := NewBadgerResultStore(path, "", logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.FormatSQLite:
		s, err := NewSQLiteResultStore(path, "", logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: format %q cannot be read back", utils.ErrConfigValidation, format)
	}
}
