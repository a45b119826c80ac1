package evo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"neatforge/internal/genome"
)

// SeenStore answers whether an identity was evaluated in an earlier
// generation or run.
type SeenStore interface {
	Exists(ctx context.Context, identity string) (bool, error)
}

// DedupStats summarizes one deduplication pass.
type DedupStats struct {
	Collisions int
	Rebred     int
	Mutated    int
	Dropped    int
}

func (s *DedupStats) add(other DedupStats) {
	s.Collisions += other.Collisions
	s.Rebred += other.Rebred
	s.Mutated += other.Mutated
	s.Dropped += other.Dropped
}

const defaultDedupRetries = 5

// Deduplicator enforces pairwise-distinct identities within a population and
// optionally against a store of previously explored identities.
type Deduplicator struct {
	Store   SeenStore
	Retries int
	Policy  MutationPolicy
	Rand    *rand.Rand
	// Rebreed produces a fresh child from the current parent pool. It is
	// tried before in-place mutation when set.
	Rebreed func(ctx context.Context) (*genome.Genome, error)
	Logger  *slog.Logger
}

// Deduplicate returns the candidates with colliding identities resolved.
// Identities in reserved are treated as taken but never modified. A slot that
// stays colliding after the retry budget is dropped, so the result can be
// shorter than candidates.
func (d *Deduplicator) Deduplicate(ctx context.Context, reserved, candidates []*genome.Genome) ([]*genome.Genome, DedupStats, error) {
	var stats DedupStats
	if d.Rand == nil {
		return nil, stats, errRandomRequired
	}
	retries := d.Retries
	if retries <= 0 {
		retries = defaultDedupRetries
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	taken := make(map[string]struct{}, len(reserved)+len(candidates))
	for _, g := range reserved {
		taken[g.Identity()] = struct{}{}
	}
	out := make([]*genome.Genome, 0, len(candidates))
	for _, g := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		if !d.collides(ctx, logger, taken, g) {
			taken[g.Identity()] = struct{}{}
			out = append(out, g)
			continue
		}
		stats.Collisions++
		resolved, err := d.resolve(ctx, logger, taken, g, retries, &stats)
		if errors.Is(err, ErrDedupExhausted) {
			stats.Dropped++
			logger.Warn("dropping duplicate genome", "identity", g.Identity(), "retries", retries)
			continue
		}
		if err != nil {
			return nil, stats, err
		}
		taken[resolved.Identity()] = struct{}{}
		out = append(out, resolved)
	}
	return out, stats, nil
}

func (d *Deduplicator) resolve(ctx context.Context, logger *slog.Logger, taken map[string]struct{}, g *genome.Genome, retries int, stats *DedupStats) (*genome.Genome, error) {
	for attempt := 0; attempt < retries; attempt++ {
		if d.Rebreed != nil {
			child, err := d.Rebreed(ctx)
			switch {
			case err == nil && !d.collides(ctx, logger, taken, child):
				stats.Rebred++
				return child, nil
			case err != nil && !IsRecoverable(err):
				return nil, err
			}
		}
		if len(d.Policy) > 0 {
			if _, err := Mutate(ctx, d.Rand, d.Policy, g, 1, nil); err != nil && !IsRecoverable(err) {
				return nil, err
			}
			if !d.collides(ctx, logger, taken, g) {
				stats.Mutated++
				return g, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDedupExhausted, g.Identity())
}

func (d *Deduplicator) collides(ctx context.Context, logger *slog.Logger, taken map[string]struct{}, g *genome.Genome) bool {
	id := g.Identity()
	if _, ok := taken[id]; ok {
		return true
	}
	if d.Store == nil {
		return false
	}
	seen, err := d.Store.Exists(ctx, id)
	if err != nil {
		logger.Warn("experiment store lookup failed", "identity", id, "error", err)
		return false
	}
	return seen
}
