package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/politecrawl/pkg/log"
	"github.com/Sriram-PR/politecrawl/pkg/models"
	"github.com/Sriram-PR/politecrawl/pkg/utils"
)

const (
	resultKeyPrefix = "result:" // result:<run_id>:<seq>
	runKeyPrefix    = "run:"    // run:<run_id>
)

// BadgerResultStore appends rows to a BadgerDB directory. Rows of earlier runs are kept;
// keys are ordered by run and sequence so ForEach replays them in write order.
type BadgerResultStore struct {
	db    *badger.DB
	log   *logrus.Entry
	runID string
	seq   atomic.Int64
}

// NewBadgerResultStore opens (or creates) the store at dir
func NewBadgerResultStore(dir, runID string, logger *logrus.Entry) (*BadgerResultStore, error) {
	logger = logger.WithField("component", "badger_store")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create store directory %s: %w", utils.ErrFilesystem, dir, err)
	}

	opts := badger.DefaultOptions(dir).
		WithLogger(log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dir, err)
	}
	logger.Infof("Result store opened at %s", dir)
	return &BadgerResultStore{db: db, log: logger, runID: runID}, nil
}

func resultKey(runID string, seq int64) []byte {
	return fmt.Appendf(nil, "%s%s:%012d", resultKeyPrefix, runID, seq)
}

const maxConflictRetries = 10

// dbUpdate retries db.Update on transaction conflicts
func (s *BadgerResultStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// Write implements ResultSink
func (s *BadgerResultStore) Write(ctx context.Context, result models.CrawlResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.runID == "" {
		return fmt.Errorf("%w: store opened without a run id is read-only", utils.ErrDatabase)
	}
	value, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("%w: marshal row for %s: %w", utils.ErrDatabase, result.URL, err)
	}
	key := resultKey(s.runID, s.seq.Add(1))
	if err := s.dbUpdate(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	}); err != nil {
		return fmt.Errorf("%w: write row for %s: %w", utils.ErrDatabase, result.URL, err)
	}
	return nil
}

// RecordRun implements RunRecorder
func (s *BadgerResultStore) RecordRun(ctx context.Context, stats models.RunStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("%w: marshal run stats: %w", utils.ErrDatabase, err)
	}
	if err := s.dbUpdate(func(txn *badger.Txn) error {
		return txn.Set([]byte(runKeyPrefix+stats.RunID), value)
	}); err != nil {
		return fmt.Errorf("%w: write run stats: %w", utils.ErrDatabase, err)
	}
	return nil
}

// ForEach implements ResultReader
func (s *BadgerResultStore) ForEach(ctx context.Context, runID string, fn func(models.CrawlResult) error) error {
	prefix := []byte(resultKeyPrefix + runID + ":")
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var row models.CrawlResult
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &row)
			}); err != nil {
				return fmt.Errorf("%w: decode row %s: %w", utils.ErrDatabase, it.Item().Key(), err)
			}
			if err := fn(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// Runs implements ResultReader. Runs are returned oldest first.
func (s *BadgerResultStore) Runs(ctx context.Context) ([]models.RunStats, error) {
	var runs []models.RunStats
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var stats models.RunStats
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &stats)
			}); err != nil {
				s.log.Warnf("Skipping unreadable run record %s: %v", it.Item().Key(), err)
				continue
			}
			runs = append(runs, stats)
		}
		return nil
	})
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartTime.Before(runs[j].StartTime) })
	return runs, err
}

// RunGC runs BadgerDB's value log garbage collection periodically until ctx is done
func (s *BadgerResultStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.db.IsClosed() {
				return
			}
			var err error
			for err == nil {
				err = s.db.RunValueLogGC(0.5)
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close implements ResultSink
func (s *BadgerResultStore) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	if err := s.db.Close(); err != nil {
		s.log.Errorf("Error closing result store: %v", err)
		return fmt.Errorf("%w: close: %w", utils.ErrDatabase, err)
	}
	s.log.Debugf("Result store closed after %d rows", s.seq.Load())
	return nil
}
