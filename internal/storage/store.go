package storage

import (
	"context"

	"neatforge/internal/model"
)

// Store persists the history of evolution runs: the score of every evaluated
// identity, the champion of each generation and per-generation diagnostics.
type Store interface {
	Init(ctx context.Context) error
	WriteScore(ctx context.Context, identity string, score float64) error
	Exists(ctx context.Context, identity string) (bool, error)
	Score(ctx context.Context, identity string) (float64, bool, error)
	CountScores(ctx context.Context) (int, error)
	SaveTopGenome(ctx context.Context, record model.TopGenomeRecord) error
	GetTopGenomes(ctx context.Context, runID string) ([]model.TopGenomeRecord, bool, error)
	SaveGenerationDiagnostics(ctx context.Context, runID string, diagnostics model.GenerationDiagnostics) error
	GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error)
	// ListRuns returns every run id with recorded diagnostics, sorted.
	ListRuns(ctx context.Context) ([]string, error)
}
