//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"neatforge/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) WriteScore(ctx context.Context, identity string, score float64) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO scores (identity, score)
		VALUES (?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			score = excluded.score
	`, identity, EncodeScore(score))
	return err
}

func (s *SQLiteStore) Exists(ctx context.Context, identity string) (bool, error) {
	_, ok, err := s.Score(ctx, identity)
	return ok, err
}

func (s *SQLiteStore) Score(ctx context.Context, identity string) (float64, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT score FROM scores WHERE identity = ?`, identity).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	score, err := DecodeScore(payload)
	if err != nil {
		return 0, false, fmt.Errorf("decode score %s: %w", identity, err)
	}
	return score, true, nil
}

func (s *SQLiteStore) CountScores(ctx context.Context) (int, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	var count int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scores`).Scan(&count)
	return count, err
}

func (s *SQLiteStore) SaveTopGenome(ctx context.Context, record model.TopGenomeRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeTopGenome(record)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO top_genomes (run_id, generation, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, generation) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, record.RunID, record.Generation, record.SchemaVersion, record.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetTopGenomes(ctx context.Context, runID string) ([]model.TopGenomeRecord, bool, error) {
	var out []model.TopGenomeRecord
	err := s.scanRun(ctx, `SELECT payload FROM top_genomes WHERE run_id = ? ORDER BY generation`, runID, func(payload []byte) error {
		record, err := DecodeTopGenome(payload)
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

func (s *SQLiteStore) SaveGenerationDiagnostics(ctx context.Context, runID string, d model.GenerationDiagnostics) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeGenerationDiagnostics(d)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO diagnostics (run_id, generation, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id, generation) DO UPDATE SET
			payload = excluded.payload
	`, runID, d.Generation, payload)
	return err
}

func (s *SQLiteStore) GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	var out []model.GenerationDiagnostics
	err := s.scanRun(ctx, `SELECT payload FROM diagnostics WHERE run_id = ? ORDER BY generation`, runID, func(payload []byte) error {
		d, err := DecodeGenerationDiagnostics(payload)
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

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]string, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT run_id FROM diagnostics ORDER BY run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var runID string
		if err := rows.Scan(&runID); err != nil {
			return nil, err
		}
		runs = append(runs, runID)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) scanRun(ctx context.Context, query, runID string, fn func(payload []byte) error) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	rows, err := db.QueryContext(ctx, query, runID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return err
		}
		if err := fn(payload); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS scores (
			identity TEXT PRIMARY KEY,
			score BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS top_genomes (
			run_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, generation)
		);
		CREATE TABLE IF NOT EXISTS diagnostics (
			run_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, generation)
		);
	`)
	return err
}
