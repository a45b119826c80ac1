package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"neatforge/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	scores      map[string]float64
	diagnostics map[string][]model.GenerationDiagnostics
	topGenomes  map[string][]model.TopGenomeRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.scores = make(map[string]float64)
	s.diagnostics = make(map[string][]model.GenerationDiagnostics)
	s.topGenomes = make(map[string][]model.TopGenomeRecord)
	return nil
}

func (s *MemoryStore) WriteScore(_ context.Context, identity string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.scores[identity] = score
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, identity string) (bool, error) {
	_, ok, err := s.Score(ctx, identity)
	return ok, err
}

func (s *MemoryStore) Score(_ context.Context, identity string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return 0, false, errNotInitialized
	}
	score, ok := s.scores[identity]
	return score, ok, nil
}

func (s *MemoryStore) CountScores(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return 0, errNotInitialized
	}
	return len(s.scores), nil
}

// SaveTopGenome replaces any record already stored for the same generation.
func (s *MemoryStore) SaveTopGenome(_ context.Context, record model.TopGenomeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	record.Genome = clonePortable(record.Genome)
	top := s.topGenomes[record.RunID]
	for i := range top {
		if top[i].Generation == record.Generation {
			top[i] = record
			return nil
		}
	}
	top = append(top, record)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Generation < top[j].Generation })
	s.topGenomes[record.RunID] = top
	return nil
}

func (s *MemoryStore) GetTopGenomes(_ context.Context, runID string) ([]model.TopGenomeRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, false, errNotInitialized
	}
	top, ok := s.topGenomes[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.TopGenomeRecord, len(top))
	for i, record := range top {
		record.Genome = clonePortable(record.Genome)
		copied[i] = record
	}
	return copied, true, nil
}

func (s *MemoryStore) SaveGenerationDiagnostics(_ context.Context, runID string, d model.GenerationDiagnostics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	history := s.diagnostics[runID]
	for i := range history {
		if history[i].Generation == d.Generation {
			history[i] = d
			return nil
		}
	}
	history = append(history, d)
	sort.SliceStable(history, func(i, j int) bool { return history[i].Generation < history[j].Generation })
	s.diagnostics[runID] = history
	return nil
}

func (s *MemoryStore) GetGenerationDiagnostics(_ context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, false, errNotInitialized
	}
	diagnostics, ok := s.diagnostics[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.GenerationDiagnostics, len(diagnostics))
	copy(copied, diagnostics)
	return copied, true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, errNotInitialized
	}
	runs := make([]string, 0, len(s.diagnostics))
	for runID := range s.diagnostics {
		runs = append(runs, runID)
	}
	sort.Strings(runs)
	return runs, nil
}

func clonePortable(g model.PortableGenome) model.PortableGenome {
	out := g
	out.Neurons = make([]model.PortableNeuron, len(g.Neurons))
	for i, n := range g.Neurons {
		if n.Tags != nil {
			tags := make(map[string]string, len(n.Tags))
			for k, v := range n.Tags {
				tags[k] = v
			}
			n.Tags = tags
		}
		out.Neurons[i] = n
	}
	out.Connections = append([]model.PortableConnection(nil), g.Connections...)
	return out
}
