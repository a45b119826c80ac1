package evo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"time"

	"neatforge/internal/genome"
	"neatforge/internal/model"
	"neatforge/internal/nn"
	"neatforge/internal/worker"
)

type ScoredGenome struct {
	Genome  *genome.Genome
	Fitness float64
}

// Evaluator scores exported genomes. It must be deterministic for a fixed
// genome, since deduplication relies on identity meaning "already explored".
type Evaluator interface {
	Evaluate(ctx context.Context, genomes []model.IndexedGenome) ([]float64, error)
}

// ExperimentStore persists scores and run history. Every method failure is
// logged and otherwise ignored by the monitor.
type ExperimentStore interface {
	SeenStore
	WriteScore(ctx context.Context, identity string, score float64) error
	SaveTopGenome(ctx context.Context, record model.TopGenomeRecord) error
	SaveGenerationDiagnostics(ctx context.Context, runID string, diagnostics model.GenerationDiagnostics) error
}

// TrainingPool accepts fine-tuning work for elites and hands back results at
// the drain point.
type TrainingPool interface {
	Submit(identity string, g model.IndexedGenome) error
	Drain(ctx context.Context, grace time.Duration) []worker.Result
	NextGeneration()
}

type RunResult struct {
	RunID                 string
	BestByGeneration      []float64
	GenerationDiagnostics []model.GenerationDiagnostics
	FinalPopulation       []ScoredGenome
	Best                  ScoredGenome
}

type MonitorConfig struct {
	Evaluator     Evaluator
	Registry      *nn.Registry
	Mutations     MutationPolicy
	MutationCount MutationCountPolicy
	Selector      Selector
	Postprocessor FitnessPostprocessor
	SpeciesKey    SpeciesKeyFunc

	PopulationSize int
	EliteCount     int
	Generations    int
	Seed           int64
	// Rand overrides the seeded source. Mutation operators should share it
	// to keep a run reproducible.
	Rand *rand.Rand

	BreedRetries     int
	DedupRetries     int
	FocusProbability float64
	// FitnessGoal stops the run early once the best score reaches it.
	FitnessGoal *float64

	Store ExperimentStore
	RunID string

	Pool          TrainingPool
	TrainSubmits  int
	DrainGrace    time.Duration
	FineTuneBatch int
	FineTuner     FineTuner

	Logger *slog.Logger
}

type PopulationMonitor struct {
	cfg    MonitorConfig
	rng    *rand.Rand
	logger *slog.Logger
	prior  *ScoredGenome
}

const (
	defaultBreedRetries = 4
	maxRefillRounds     = 3
	unscoredFitness     = -math.MaxFloat64
)

func NewPopulationMonitor(cfg MonitorConfig) (*PopulationMonitor, error) {
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if cfg.EliteCount <= 0 || cfg.EliteCount > cfg.PopulationSize {
		return nil, fmt.Errorf("elite count must be in [1, population size]")
	}
	if cfg.Generations <= 0 {
		return nil, fmt.Errorf("generations must be > 0")
	}
	if cfg.FocusProbability < 0 || cfg.FocusProbability > 1 {
		return nil, fmt.Errorf("focus probability must be in [0, 1]")
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(cfg.Seed))
	}
	if cfg.Registry == nil {
		cfg.Registry = nn.DefaultRegistry()
	}
	if cfg.Mutations == nil {
		cfg.Mutations = DefaultCatalogue(rng, cfg.Registry, nil, 0)
	}
	if err := cfg.Mutations.Validate(); err != nil {
		return nil, err
	}
	if cfg.MutationCount == nil {
		cfg.MutationCount = ConstMutationCount{Count: 1}
	}
	if cfg.Selector == nil {
		cfg.Selector = PowerSelector{Exponent: 2}
	}
	if cfg.Postprocessor == nil {
		cfg.Postprocessor = NoopFitnessPostprocessor{}
	}
	if cfg.SpeciesKey == nil {
		cfg.SpeciesKey = ActivationSkeletonKey
	}
	if cfg.BreedRetries <= 0 {
		cfg.BreedRetries = defaultBreedRetries
	}
	if cfg.RunID == "" {
		cfg.RunID = genome.NewID()
	}
	if cfg.FineTuner.Rand == nil {
		cfg.FineTuner.Rand = rng
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PopulationMonitor{
		cfg:    cfg,
		rng:    rng,
		logger: logger.With("component", "population_monitor", "run_id", cfg.RunID),
	}, nil
}

// Run evolves initial for the configured number of generations and returns
// the last evaluated population.
func (m *PopulationMonitor) Run(ctx context.Context, initial []*genome.Genome) (RunResult, error) {
	if len(initial) == 0 {
		return RunResult{}, ErrExtinction
	}
	population := make([]*genome.Genome, len(initial))
	for i, g := range initial {
		population[i] = g.Clone()
	}

	result := RunResult{
		RunID:                 m.cfg.RunID,
		BestByGeneration:      make([]float64, 0, m.cfg.Generations),
		GenerationDiagnostics: make([]model.GenerationDiagnostics, 0, m.cfg.Generations),
	}
	var carried nextStats
	for gen := 1; gen <= m.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}

		m.logger.Debug("phase", "generation", gen, "phase", "evaluate", "population", len(population))
		scored, err := m.evaluate(ctx, population)
		if err != nil {
			return RunResult{}, err
		}
		if len(scored) == 0 {
			return RunResult{}, ErrExtinction
		}
		genus, err := NewGenus(scored, m.cfg.SpeciesKey)
		if err != nil {
			return RunResult{}, err
		}

		diag := summarizeGeneration(scored, gen, genus, carried)
		result.BestByGeneration = append(result.BestByGeneration, scored[0].Fitness)
		result.GenerationDiagnostics = append(result.GenerationDiagnostics, diag)
		result.FinalPopulation = scored
		result.Best = scored[0]
		m.record(ctx, diag, scored[0])

		if m.cfg.FitnessGoal != nil && scored[0].Fitness >= *m.cfg.FitnessGoal {
			m.logger.Info("fitness goal reached", "generation", gen, "best", scored[0].Fitness)
			break
		}
		if gen == m.cfg.Generations {
			break
		}

		population, carried, err = m.nextGeneration(ctx, scored, genus, gen)
		if err != nil {
			return RunResult{}, err
		}
		best := scored[0]
		m.prior = &best
	}
	return result, nil
}

// evaluate scores population, writes the scores to the store and returns the
// members ranked best first.
func (m *PopulationMonitor) evaluate(ctx context.Context, population []*genome.Genome) ([]ScoredGenome, error) {
	exported := make([]model.IndexedGenome, len(population))
	for i, g := range population {
		exported[i] = g.Export()
	}
	scores, err := m.cfg.Evaluator.Evaluate(ctx, exported)
	if err != nil {
		return nil, fmt.Errorf("evaluate population: %w", err)
	}
	if len(scores) != len(population) {
		return nil, fmt.Errorf("evaluator returned %d scores for %d genomes", len(scores), len(population))
	}
	scored := make([]ScoredGenome, len(population))
	for i, g := range population {
		fitness := scores[i]
		if math.IsNaN(fitness) || math.IsInf(fitness, 0) {
			fitness = unscoredFitness
		}
		scored[i] = ScoredGenome{Genome: g, Fitness: fitness}
		if m.cfg.Store != nil {
			if err := m.cfg.Store.WriteScore(ctx, g.Identity(), fitness); err != nil {
				m.logger.Warn("write score failed", "identity", g.Identity(), "error", err)
			}
		}
	}
	scored = m.cfg.Postprocessor.Process(scored)
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Fitness > scored[j].Fitness
	})
	return scored, nil
}

func (m *PopulationMonitor) record(ctx context.Context, diag model.GenerationDiagnostics, best ScoredGenome) {
	generationsTotal.Inc()
	bestFitnessGauge.Set(diag.BestFitness)
	speciesGauge.Set(float64(diag.SpeciesCount))
	m.logger.Info("generation complete",
		"generation", diag.Generation,
		"best", diag.BestFitness,
		"mean", diag.MeanFitness,
		"species", diag.SpeciesCount,
		"population", diag.PopulationSize,
		"neurons", diag.BestNeurons,
	)
	if m.cfg.Store == nil {
		return
	}
	if err := m.cfg.Store.SaveGenerationDiagnostics(ctx, m.cfg.RunID, diag); err != nil {
		m.logger.Warn("save diagnostics failed", "generation", diag.Generation, "error", err)
	}
	record := model.TopGenomeRecord{
		VersionedRecord: model.CurrentVersion(),
		RunID:           m.cfg.RunID,
		Generation:      diag.Generation,
		Identity:        best.Genome.Identity(),
		Fitness:         best.Fitness,
		Genome:          best.Genome.ExportPortable(),
	}
	if err := m.cfg.Store.SaveTopGenome(ctx, record); err != nil {
		m.logger.Warn("save top genome failed", "generation", diag.Generation, "error", err)
	}
}

type nextStats struct {
	bred     int
	dedup    DedupStats
	trained  int
	injected int
}

func (m *PopulationMonitor) nextGeneration(ctx context.Context, ranked []ScoredGenome, genus *Genus, gen int) ([]*genome.Genome, nextStats, error) {
	var stats nextStats

	// Elect.
	m.logger.Debug("phase", "generation", gen, "phase", "elect")
	eliteCount := m.cfg.EliteCount
	if gen == 1 {
		eliteCount = max(eliteCount, 2)
	}
	eliteCount = min(eliteCount, len(ranked), m.cfg.PopulationSize)
	elites := make([]*genome.Genome, 0, eliteCount)
	electedIDs := make(map[string]struct{}, eliteCount)
	for _, item := range ranked {
		if len(elites) == eliteCount {
			break
		}
		if _, dup := electedIDs[item.Genome.Identity()]; dup {
			continue
		}
		electedIDs[item.Genome.Identity()] = struct{}{}
		elites = append(elites, item.Genome.Clone())
	}
	m.submitForTraining(elites)

	// Breed and mutate.
	m.logger.Debug("phase", "generation", gen, "phase", "breed", "species", genus.Len())
	offspring, err := m.breedBatch(ctx, ranked, genus, gen, m.cfg.PopulationSize-len(elites))
	if err != nil {
		return nil, stats, err
	}
	stats.bred += len(offspring)

	// Deduplicate.
	m.logger.Debug("phase", "generation", gen, "phase", "deduplicate", "offspring", len(offspring))
	dedup := m.deduplicator(ranked, genus, gen)
	offspring, dstats, err := dedup.Deduplicate(ctx, elites, offspring)
	if err != nil {
		return nil, stats, err
	}
	stats.dedup = dstats
	recordDedup(dstats)

	// Fine-tune inject: completed training results and local perturbations
	// of the champion.
	m.logger.Debug("phase", "generation", gen, "phase", "fine_tune_inject")
	taken := make(map[string]struct{}, m.cfg.PopulationSize)
	for _, g := range elites {
		taken[g.Identity()] = struct{}{}
	}
	for _, g := range offspring {
		taken[g.Identity()] = struct{}{}
	}
	trained := m.collectTraining(ctx, taken)
	injected := m.injectFineTune(ranked, taken)

	// Replace.
	m.logger.Debug("phase", "generation", gen, "phase", "replace")
	next := make([]*genome.Genome, 0, m.cfg.PopulationSize)
	next = append(next, elites...)
	before := len(next)
	next = appendUpTo(next, trained, m.cfg.PopulationSize)
	stats.trained = len(next) - before
	before = len(next)
	next = appendUpTo(next, injected, m.cfg.PopulationSize)
	stats.injected = len(next) - before
	next = appendUpTo(next, offspring, m.cfg.PopulationSize)

	for round := 0; round < maxRefillRounds && len(next) < m.cfg.PopulationSize; round++ {
		extra, err := m.breedBatch(ctx, ranked, genus, gen, m.cfg.PopulationSize-len(next))
		if err != nil {
			return nil, stats, err
		}
		stats.bred += len(extra)
		extra, dstats, err := dedup.Deduplicate(ctx, next, extra)
		if err != nil {
			return nil, stats, err
		}
		stats.dedup.add(dstats)
		recordDedup(dstats)
		next = appendUpTo(next, extra, m.cfg.PopulationSize)
	}
	if len(next) < m.cfg.PopulationSize {
		m.logger.Warn("population shrank", "generation", gen, "size", len(next), "target", m.cfg.PopulationSize)
	}
	if m.cfg.Pool != nil {
		m.cfg.Pool.NextGeneration()
	}
	return next, stats, nil
}

func appendUpTo(dst, src []*genome.Genome, limit int) []*genome.Genome {
	room := limit - len(dst)
	if room <= 0 {
		return dst
	}
	if len(src) > room {
		src = src[:room]
	}
	return append(dst, src...)
}

func (m *PopulationMonitor) submitForTraining(elites []*genome.Genome) {
	if m.cfg.Pool == nil || m.cfg.TrainSubmits <= 0 {
		return
	}
	for _, g := range elites[:min(len(elites), m.cfg.TrainSubmits)] {
		err := m.cfg.Pool.Submit(g.Identity(), g.Export())
		switch {
		case err == nil:
			trainingTotal.WithLabelValues("submitted").Inc()
		case errors.Is(err, worker.ErrInFlight), errors.Is(err, worker.ErrCapReached):
			m.logger.Debug("training submission skipped", "identity", g.Identity(), "reason", err)
		default:
			m.logger.Warn("training submission refused", "identity", g.Identity(), "error", err)
		}
	}
}

func (m *PopulationMonitor) collectTraining(ctx context.Context, taken map[string]struct{}) []*genome.Genome {
	if m.cfg.Pool == nil {
		return nil
	}
	var out []*genome.Genome
	for _, r := range m.cfg.Pool.Drain(ctx, m.cfg.DrainGrace) {
		if r.Err != nil {
			trainingTotal.WithLabelValues("failed").Inc()
			m.logger.Warn("discarding training result", "identity", r.Identity, "error", fmt.Errorf("%w: %v", ErrTrainingFailed, r.Err))
			continue
		}
		payload := r.Trained
		if r.Compacted != nil {
			payload = *r.Compacted
		}
		g, err := genome.Import(payload)
		if err != nil {
			trainingTotal.WithLabelValues("invalid").Inc()
			m.logger.Warn("discarding invalid training result", "identity", r.Identity, "error", err)
			continue
		}
		if _, dup := taken[g.Identity()]; dup {
			trainingTotal.WithLabelValues("duplicate").Inc()
			continue
		}
		taken[g.Identity()] = struct{}{}
		trainingTotal.WithLabelValues("completed").Inc()
		out = append(out, g)
	}
	return out
}

func (m *PopulationMonitor) injectFineTune(ranked []ScoredGenome, taken map[string]struct{}) []*genome.Genome {
	if m.cfg.FineTuneBatch <= 0 {
		return nil
	}
	reference := ScoredGenome{}
	switch {
	case m.prior != nil:
		reference = *m.prior
	case len(ranked) > 1:
		reference = ranked[1]
	}
	candidates, err := m.cfg.FineTuner.Inject(ranked[0], reference, m.cfg.FineTuneBatch, taken)
	if err != nil {
		m.logger.Warn("fine-tune injection failed", "error", err)
		return nil
	}
	for _, g := range candidates {
		taken[g.Identity()] = struct{}{}
	}
	injectedTotal.Add(float64(len(candidates)))
	return candidates
}

func (m *PopulationMonitor) deduplicator(ranked []ScoredGenome, genus *Genus, gen int) *Deduplicator {
	return &Deduplicator{
		Store:   m.cfg.Store,
		Retries: m.cfg.DedupRetries,
		Policy:  m.cfg.Mutations,
		Rand:    m.rng,
		Logger:  m.logger,
		Rebreed: func(ctx context.Context) (*genome.Genome, error) {
			return m.breedOne(ctx, ranked, genus, gen)
		},
	}
}

// breedBatch produces up to n mutated children. Recoverable failures cost a
// slot; fatal ones abort.
func (m *PopulationMonitor) breedBatch(ctx context.Context, ranked []ScoredGenome, genus *Genus, gen, n int) ([]*genome.Genome, error) {
	out := make([]*genome.Genome, 0, max(n, 0))
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		child, err := m.breedOne(ctx, ranked, genus, gen)
		if err != nil {
			if IsRecoverable(err) {
				offspringTotal.WithLabelValues("failed").Inc()
				m.logger.Warn("breeding failed", "generation", gen, "error", err)
				continue
			}
			return nil, err
		}
		offspringTotal.WithLabelValues("bred").Inc()
		out = append(out, child)
	}
	return out, nil
}

// breedOne selects two parents, recombines them and mutates the child,
// retrying a bounded number of times when no viable child results.
func (m *PopulationMonitor) breedOne(ctx context.Context, ranked []ScoredGenome, genus *Genus, gen int) (*genome.Genome, error) {
	if len(ranked) == 0 {
		return nil, ErrExtinction
	}
	var lastErr error
	for attempt := 0; attempt < m.cfg.BreedRetries; attempt++ {
		mother, err := m.cfg.Selector.Pick(m.rng, ranked)
		if err != nil {
			return nil, err
		}
		father, foreign, err := m.pickFather(mother, ranked, genus)
		if err != nil {
			return nil, err
		}
		if foreign {
			father.Genome = AlignLineage(mother.Genome, father.Genome)
		}
		child, err := Breed(m.rng, Parent(mother), Parent(father))
		if err != nil {
			if errors.Is(err, ErrNoViableChild) {
				lastErr = err
				continue
			}
			return nil, err
		}
		if err := m.mutate(ctx, child, gen); err != nil {
			return nil, err
		}
		return child, nil
	}
	return nil, lastErr
}

func (m *PopulationMonitor) mutate(ctx context.Context, child *genome.Genome, gen int) error {
	count, err := m.cfg.MutationCount.MutationCount(child, gen, m.rng)
	if err != nil {
		return err
	}
	var focus []int
	if m.cfg.FocusProbability > 0 && m.rng.Float64() < m.cfg.FocusProbability {
		focus = FocusFromOutput(m.rng, child)
	}
	if _, err := Mutate(ctx, m.rng, m.cfg.Mutations, child, count, focus); err != nil && !IsRecoverable(err) {
		return err
	}
	return nil
}

// pickFather restricts the partner to the mother's species, then to the
// closest other species, then to the whole population. foreign reports a
// partner from another species.
func (m *PopulationMonitor) pickFather(mother ScoredGenome, ranked []ScoredGenome, genus *Genus) (ScoredGenome, bool, error) {
	motherID := mother.Genome.Identity()
	if s, ok := genus.SpeciesOf(motherID); ok {
		if pool := excluding(s.Members, motherID); len(pool) > 0 {
			father, err := m.cfg.Selector.Pick(m.rng, pool)
			return father, false, err
		}
	}
	m.logger.Debug("no partner in species", "identity", motherID, "error", ErrNoPartner)
	if s, ok := genus.FindClosestMatchingSpecies(mother.Genome); ok {
		father, err := m.cfg.Selector.Pick(m.rng, s.Members)
		return father, true, err
	}
	if pool := excluding(ranked, motherID); len(pool) > 0 {
		father, err := m.cfg.Selector.Pick(m.rng, pool)
		return father, false, err
	}
	if len(ranked) == 0 {
		return ScoredGenome{}, false, ErrExtinction
	}
	return mother, false, nil
}

func excluding(members []ScoredGenome, identity string) []ScoredGenome {
	out := make([]ScoredGenome, 0, len(members))
	for _, item := range members {
		if item.Genome.Identity() != identity {
			out = append(out, item)
		}
	}
	return out
}

func summarizeGeneration(scored []ScoredGenome, generation int, genus *Genus, carried nextStats) model.GenerationDiagnostics {
	total := 0.0
	minFitness := scored[0].Fitness
	identities := make(map[string]struct{}, len(scored))
	for _, item := range scored {
		total += item.Fitness
		minFitness = math.Min(minFitness, item.Fitness)
		identities[item.Genome.Identity()] = struct{}{}
	}
	best := scored[0].Genome
	return model.GenerationDiagnostics{
		VersionedRecord:  model.CurrentVersion(),
		Generation:       generation,
		BestFitness:      scored[0].Fitness,
		MeanFitness:      total / float64(len(scored)),
		MinFitness:       minFitness,
		PopulationSize:   len(scored),
		SpeciesCount:     genus.Len(),
		LargestSpecies:   genus.LargestSize(),
		DistinctGenomes:  len(identities),
		OffspringBred:    carried.bred,
		DedupCollisions:  carried.dedup.Collisions,
		DedupRebred:      carried.dedup.Rebred,
		DedupMutated:     carried.dedup.Mutated,
		DedupDropped:     carried.dedup.Dropped,
		TrainingResults:  carried.trained,
		InjectedFineTune: carried.injected,
		BestNeurons:      best.Len(),
		BestConnections:  best.ConnectionCount(),
	}
}
