package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"neatforge/internal/model"
)

const (
	scorePrefix = "score/"
	topPrefix   = "top/"
	diagPrefix  = "diag/"
)

type BadgerConfig struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	// Logger receives badger's internal log lines. Nil silences them.
	Logger *slog.Logger
}

// BadgerStore keeps the experiment history in an embedded badger database.
// Keys are namespaced by record kind; generations are zero padded so prefix
// iteration yields them in order.
type BadgerStore struct {
	cfg BadgerConfig

	mu sync.RWMutex
	db *badger.DB
}

func NewBadgerStore(cfg BadgerConfig) *BadgerStore {
	return &BadgerStore{cfg: cfg}
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (s *BadgerStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}
	if !s.cfg.InMemory && s.cfg.Path == "" {
		return errors.New("badger path is required for a persistent store")
	}

	var opts badger.Options
	if s.cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(s.cfg.Path, 0o750); err != nil {
			return fmt.Errorf("create badger directory %s: %w", s.cfg.Path, err)
		}
		opts = badger.DefaultOptions(s.cfg.Path)
	}
	opts = opts.WithSyncWrites(s.cfg.SyncWrites)
	if s.cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: s.cfg.Logger.With("component", "badger")})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("open badger database: %w", err)
	}
	s.db = db
	return nil
}

func (s *BadgerStore) WriteScore(ctx context.Context, identity string, score float64) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(scorePrefix+identity), EncodeScore(score))
	})
}

func (s *BadgerStore) Exists(ctx context.Context, identity string) (bool, error) {
	_, ok, err := s.Score(ctx, identity)
	return ok, err
}

func (s *BadgerStore) Score(ctx context.Context, identity string) (float64, bool, error) {
	var (
		score float64
		found bool
	)
	err := s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(scorePrefix + identity))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			v, err := DecodeScore(val)
			if err != nil {
				return fmt.Errorf("decode score %s: %w", identity, err)
			}
			score, found = v, true
			return nil
		})
	})
	return score, found, err
}

func (s *BadgerStore) CountScores(ctx context.Context) (int, error) {
	count := 0
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(scorePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (s *BadgerStore) SaveTopGenome(ctx context.Context, record model.TopGenomeRecord) error {
	payload, err := EncodeTopGenome(record)
	if err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.Set(generationKey(topPrefix, record.RunID, record.Generation), payload)
	})
}

func (s *BadgerStore) GetTopGenomes(ctx context.Context, runID string) ([]model.TopGenomeRecord, bool, error) {
	var out []model.TopGenomeRecord
	err := s.scanRun(ctx, topPrefix, runID, func(val []byte) error {
		record, err := DecodeTopGenome(val)
		if err != nil {
			return fmt.Errorf("decode top genome for %s: %w", runID, err)
		}
		out = append(out, record)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, len(out) > 0, nil
}

func (s *BadgerStore) SaveGenerationDiagnostics(ctx context.Context, runID string, d model.GenerationDiagnostics) error {
	payload, err := EncodeGenerationDiagnostics(d)
	if err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.Set(generationKey(diagPrefix, runID, d.Generation), payload)
	})
}

func (s *BadgerStore) GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	var out []model.GenerationDiagnostics
	err := s.scanRun(ctx, diagPrefix, runID, func(val []byte) error {
		d, err := DecodeGenerationDiagnostics(val)
		if err != nil {
			return fmt.Errorf("decode diagnostics for %s: %w", runID, err)
		}
		out = append(out, d)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, len(out) > 0, nil
}

func (s *BadgerStore) ListRuns(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(diagPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			rest := strings.TrimPrefix(string(it.Item().Key()), diagPrefix)
			if cut := strings.LastIndexByte(rest, '/'); cut > 0 {
				seen[rest[:cut]] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	runs := make([]string, 0, len(seen))
	for runID := range seen {
		runs = append(runs, runID)
	}
	sort.Strings(runs)
	return runs, nil
}

func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func generationKey(prefix, runID string, generation int) []byte {
	return []byte(fmt.Sprintf("%s%s/%010d", prefix, runID, generation))
}

func (s *BadgerStore) scanRun(ctx context.Context, prefix, runID string, fn func(val []byte) error) error {
	return s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix + runID + "/")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) getDB() (*badger.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}
	return db.Update(fn)
}

func (s *BadgerStore) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}
	return db.View(fn)
}
