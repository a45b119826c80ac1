package evo

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"neatforge/internal/genome"
	"neatforge/internal/model"
	"neatforge/internal/nn"
	"neatforge/internal/worker"
)

var xorCases = [][3]float64{{0, 0, 0}, {0, 1, 1}, {1, 0, 1}, {1, 1, 0}}

// xorEvaluator scores a genome by negative squared error on XOR.
type xorEvaluator struct {
	registry *nn.Registry
	calls    int
}

func (e *xorEvaluator) Evaluate(_ context.Context, genomes []model.IndexedGenome) ([]float64, error) {
	e.calls++
	scores := make([]float64, len(genomes))
	for i, src := range genomes {
		g, err := genome.Import(src)
		if err != nil {
			return nil, err
		}
		sum := 0.0
		for _, c := range xorCases {
			out, err := g.Activate(e.registry, c[:2])
			if err != nil {
				return nil, err
			}
			d := out[0] - c[2]
			sum += d * d
		}
		scores[i] = -sum / float64(len(xorCases))
	}
	return scores, nil
}

type memoryExperimentStore struct {
	mu          sync.Mutex
	scores      map[string]float64
	top         []model.TopGenomeRecord
	diagnostics []model.GenerationDiagnostics
}

func newMemoryExperimentStore() *memoryExperimentStore {
	return &memoryExperimentStore{scores: make(map[string]float64)}
}

func (s *memoryExperimentStore) Exists(_ context.Context, identity string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.scores[identity]
	return ok, nil
}

func (s *memoryExperimentStore) WriteScore(_ context.Context, identity string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[identity] = score
	return nil
}

func (s *memoryExperimentStore) SaveTopGenome(_ context.Context, record model.TopGenomeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.top = append(s.top, record)
	return nil
}

func (s *memoryExperimentStore) SaveGenerationDiagnostics(_ context.Context, _ string, d model.GenerationDiagnostics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diagnostics = append(s.diagnostics, d)
	return nil
}

// fakePool hands back a bias-shifted copy of every submitted genome at the
// next drain.
type fakePool struct {
	submitted   []string
	pending     []worker.Result
	generations int
}

func (p *fakePool) Submit(identity string, g model.IndexedGenome) error {
	p.submitted = append(p.submitted, identity)
	trained := g.Clone()
	trained.Neurons[len(trained.Neurons)-1].Bias += 0.125
	p.pending = append(p.pending, worker.Result{Identity: identity, Trained: trained})
	return nil
}

func (p *fakePool) Drain(context.Context, time.Duration) []worker.Result {
	out := p.pending
	p.pending = nil
	return out
}

func (p *fakePool) NextGeneration() { p.generations++ }

func xorPopulation(t *testing.T, rng *rand.Rand, n int) []*genome.Genome {
	t.Helper()
	out := make([]*genome.Genome, n)
	for i := range out {
		out[i] = newMinimalGenome(t, rng, 2, 1)
	}
	return out
}

func TestPopulationMonitorRunsXOR(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	registry := nn.DefaultRegistry()
	evaluator := &xorEvaluator{registry: registry}
	store := newMemoryExperimentStore()
	monitor, err := NewPopulationMonitor(MonitorConfig{
		Evaluator:        evaluator,
		Registry:         registry,
		Mutations:        DefaultCatalogue(rng, registry, nil, 0),
		MutationCount:    NCountExponentialMutationCount{Power: 0.5, MaxCount: 4},
		PopulationSize:   20,
		EliteCount:       2,
		Generations:      6,
		Rand:             rng,
		FocusProbability: 0.3,
		Store:            store,
		FineTuneBatch:    3,
	})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}

	result, err := monitor.Run(context.Background(), xorPopulation(t, rng, 20))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.BestByGeneration) != 6 || evaluator.calls != 6 {
		t.Fatalf("generations=%d evaluations=%d", len(result.BestByGeneration), evaluator.calls)
	}
	for i := 1; i < len(result.BestByGeneration); i++ {
		if result.BestByGeneration[i] < result.BestByGeneration[i-1] {
			t.Fatalf("best fitness regressed at generation %d: %v", i+1, result.BestByGeneration)
		}
	}
	if len(result.FinalPopulation) == 0 || len(result.FinalPopulation) > 20 {
		t.Fatalf("final population size %d", len(result.FinalPopulation))
	}
	seen := make(map[string]struct{})
	for _, item := range result.FinalPopulation {
		mustValidate(t, item.Genome)
		if _, dup := seen[item.Genome.Identity()]; dup {
			t.Fatalf("duplicate identity in final population: %s", item.Genome.Identity())
		}
		seen[item.Genome.Identity()] = struct{}{}
	}
	if result.Best.Fitness != result.BestByGeneration[5] {
		t.Fatal("best does not match the last generation")
	}

	if len(store.diagnostics) != 6 || len(store.top) != 6 {
		t.Fatalf("store diagnostics=%d top=%d", len(store.diagnostics), len(store.top))
	}
	if store.top[5].RunID != result.RunID || store.top[5].Identity != result.Best.Genome.Identity() {
		t.Fatalf("unexpected top record: %+v", store.top[5])
	}
	for _, d := range result.GenerationDiagnostics[1:] {
		if d.OffspringBred == 0 {
			t.Fatalf("generation %d bred nothing", d.Generation)
		}
		if d.SpeciesCount < 1 || d.LargestSpecies < 1 {
			t.Fatalf("missing species diagnostics: %+v", d)
		}
	}
	if result.GenerationDiagnostics[1].InjectedFineTune == 0 {
		t.Fatal("expected fine-tune candidates in generation 2")
	}
}

func TestPopulationMonitorStopsAtFitnessGoal(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	goal := -1000.0
	evaluator := &xorEvaluator{registry: nn.DefaultRegistry()}
	monitor, err := NewPopulationMonitor(MonitorConfig{
		Evaluator:      evaluator,
		PopulationSize: 5,
		EliteCount:     1,
		Generations:    10,
		Rand:           rng,
		FitnessGoal:    &goal,
	})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	result, err := monitor.Run(context.Background(), xorPopulation(t, rng, 5))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.BestByGeneration) != 1 || evaluator.calls != 1 {
		t.Fatalf("expected a single generation, got %d", len(result.BestByGeneration))
	}
}

func TestPopulationMonitorInjectsTrainingResults(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	pool := &fakePool{}
	monitor, err := NewPopulationMonitor(MonitorConfig{
		Evaluator:      &xorEvaluator{registry: nn.DefaultRegistry()},
		PopulationSize: 8,
		EliteCount:     2,
		Generations:    3,
		Rand:           rng,
		Pool:           pool,
		TrainSubmits:   1,
	})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	result, err := monitor.Run(context.Background(), xorPopulation(t, rng, 8))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(pool.submitted) != 2 || pool.generations != 2 {
		t.Fatalf("submitted=%d generations=%d", len(pool.submitted), pool.generations)
	}
	if result.GenerationDiagnostics[1].TrainingResults != 1 {
		t.Fatalf("training results=%d want=1", result.GenerationDiagnostics[1].TrainingResults)
	}
}

func TestPopulationMonitorRejectsEmptyPopulation(t *testing.T) {
	monitor, err := NewPopulationMonitor(MonitorConfig{
		Evaluator:      &xorEvaluator{registry: nn.DefaultRegistry()},
		PopulationSize: 4,
		EliteCount:     1,
		Generations:    1,
	})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	_, err = monitor.Run(context.Background(), nil)
	if !errors.Is(err, ErrExtinction) || IsRecoverable(err) {
		t.Fatalf("expected fatal ErrExtinction, got %v", err)
	}
}

func TestNewPopulationMonitorValidatesConfig(t *testing.T) {
	base := MonitorConfig{Evaluator: &xorEvaluator{}, PopulationSize: 4, EliteCount: 1, Generations: 1}
	bad := []func(*MonitorConfig){
		func(c *MonitorConfig) { c.Evaluator = nil },
		func(c *MonitorConfig) { c.PopulationSize = 0 },
		func(c *MonitorConfig) { c.EliteCount = 5 },
		func(c *MonitorConfig) { c.Generations = 0 },
		func(c *MonitorConfig) { c.FocusProbability = 2 },
		func(c *MonitorConfig) { c.Mutations = MutationPolicy{} },
	}
	for i, mutate := range bad {
		cfg := base
		mutate(&cfg)
		if _, err := NewPopulationMonitor(cfg); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func newFallbackMonitor(t *testing.T) *PopulationMonitor {
	t.Helper()
	monitor, err := NewPopulationMonitor(MonitorConfig{
		Evaluator:      &xorEvaluator{},
		PopulationSize: 4,
		EliteCount:     1,
		Generations:    1,
		Seed:           5,
		Selector:       PowerSelector{Exponent: 1},
	})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	return monitor
}

func TestPickFatherPrefersMothersSpecies(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	mother := ScoredGenome{Genome: newMinimalGenome(t, rng, 2, 1), Fitness: 3}
	sibling := ScoredGenome{Genome: newMinimalGenome(t, rng, 2, 1), Fitness: 2}
	stranger := ScoredGenome{Genome: newHiddenGenome(t), Fitness: 1}
	ranked := []ScoredGenome{mother, sibling, stranger}
	genus, err := NewGenus(ranked, ActivationSkeletonKey)
	if err != nil {
		t.Fatalf("new genus: %v", err)
	}

	monitor := newFallbackMonitor(t)
	for i := 0; i < 20; i++ {
		father, foreign, err := monitor.pickFather(mother, ranked, genus)
		if err != nil {
			t.Fatalf("pick father: %v", err)
		}
		if foreign || father.Genome != sibling.Genome {
			t.Fatalf("expected the sibling, got foreign=%v fitness=%v", foreign, father.Fitness)
		}
	}
}

func TestPickFatherFallsBackToClosestSpecies(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	mother := ScoredGenome{Genome: newHiddenGenome(t), Fitness: 5}
	near := newHiddenGenome(t)
	if err := near.SetActivation(2, "relu"); err != nil {
		t.Fatalf("set activation: %v", err)
	}
	ranked := []ScoredGenome{
		mother,
		{Genome: newMinimalGenome(t, rng, 2, 1), Fitness: 4},
		{Genome: near, Fitness: 3},
		{Genome: newMinimalGenome(t, rng, 2, 1), Fitness: 2},
	}
	genus, err := NewGenus(ranked, ActivationSkeletonKey)
	if err != nil {
		t.Fatalf("new genus: %v", err)
	}
	if s, _ := genus.SpeciesOf(mother.Genome.Identity()); s.Size() != 1 {
		t.Fatalf("mother must be alone in her species, size=%d", s.Size())
	}

	monitor := newFallbackMonitor(t)
	for i := 0; i < 20; i++ {
		father, foreign, err := monitor.pickFather(mother, ranked, genus)
		if err != nil {
			t.Fatalf("pick father: %v", err)
		}
		if !foreign {
			t.Fatal("a partner from another species must be reported as foreign")
		}
		if father.Genome != near {
			t.Fatalf("expected the closest species member, got fitness=%v len=%d", father.Fitness, father.Genome.Len())
		}
	}

	aligned := AlignLineage(mother.Genome, near)
	mustValidate(t, aligned)
	for i := 2; i < aligned.Len(); i++ {
		if aligned.Neuron(i).ID != mother.Genome.Neuron(i).ID {
			t.Fatalf("neuron %d not aligned to the mother's lineage", i)
		}
	}
	if _, err := Breed(rng, Parent(mother), Parent{Genome: aligned, Fitness: 3}); err != nil && !errors.Is(err, ErrNoViableChild) {
		t.Fatalf("breed with aligned partner: %v", err)
	}
}

func TestPickFatherFallsBackToWholePopulation(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	mother := ScoredGenome{Genome: newMinimalGenome(t, rng, 2, 1), Fitness: 3}
	ranked := []ScoredGenome{
		mother,
		{Genome: newMinimalGenome(t, rng, 2, 1), Fitness: 2},
		{Genome: newMinimalGenome(t, rng, 2, 1), Fitness: 1},
	}
	// The partition predates the mother, so her species is unknown and the
	// only species shares her key.
	genus, err := NewGenus(ranked[1:], ActivationSkeletonKey)
	if err != nil {
		t.Fatalf("new genus: %v", err)
	}
	if genus.Len() != 1 {
		t.Fatalf("species=%d want=1", genus.Len())
	}

	monitor := newFallbackMonitor(t)
	for i := 0; i < 20; i++ {
		father, foreign, err := monitor.pickFather(mother, ranked, genus)
		if err != nil {
			t.Fatalf("pick father: %v", err)
		}
		if foreign {
			t.Fatal("whole-population partner must not be foreign")
		}
		if father.Genome == mother.Genome {
			t.Fatal("mother picked as her own partner while others exist")
		}
	}

	alone := []ScoredGenome{mother}
	lone, err := NewGenus(alone, ActivationSkeletonKey)
	if err != nil {
		t.Fatalf("new genus: %v", err)
	}
	father, foreign, err := monitor.pickFather(mother, alone, lone)
	if err != nil || foreign || father.Genome != mother.Genome {
		t.Fatalf("sole survivor must self-mate: foreign=%v err=%v", foreign, err)
	}
}
