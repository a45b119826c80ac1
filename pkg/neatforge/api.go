// Package neatforge wires the evolution loop, its evaluator, training pool and
// experiment store from a single configuration.
package neatforge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"neatforge/internal/config"
	"neatforge/internal/evo"
	"neatforge/internal/fitness"
	"neatforge/internal/genome"
	"neatforge/internal/model"
	"neatforge/internal/nn"
	"neatforge/internal/storage"
	"neatforge/internal/tuning"
	"neatforge/internal/worker"
)

type Options struct {
	Logger *slog.Logger
	// Store replaces the store described by the configuration. The client
	// does not close a store it did not open.
	Store storage.Store
}

type Client struct {
	cfg       config.Config
	logger    *slog.Logger
	store     storage.Store
	ownsStore bool

	initOnce sync.Once
	initErr  error
}

var _ evo.ExperimentStore = storage.Store(nil)

type RunSummary struct {
	RunID            string
	Generations      int
	BestByGeneration []float64
	FinalBestFitness float64
	BestIdentity     string
	Best             model.PortableGenome
	Diagnostics      []model.GenerationDiagnostics
	Duration         time.Duration
}

type HistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

func New(cfg config.Config, opts Options) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{cfg: cfg, logger: logger, store: opts.Store}
	if c.store == nil {
		store, err := storage.NewStore(cfg.Store.Kind, cfg.Store.Path, logger)
		if err != nil {
			return nil, err
		}
		c.store = store
		c.ownsStore = true
	}
	return c, nil
}

func (c *Client) Close() error {
	if !c.ownsStore {
		return nil
	}
	return storage.CloseIfSupported(c.store)
}

func (c *Client) ensureStore(ctx context.Context) error {
	c.initOnce.Do(func() {
		c.initErr = c.store.Init(ctx)
	})
	return c.initErr
}

// Run evolves a population from minimal genomes until the generation limit
// or the fitness goal.
func (c *Client) Run(ctx context.Context) (RunSummary, error) {
	if err := c.ensureStore(ctx); err != nil {
		return RunSummary{}, err
	}
	cfg := c.cfg
	runID := cfg.Run.RunID
	if runID == "" {
		runID = NewRunID(time.Now())
	}
	logger := c.logger.With("run_id", runID)

	registry, err := buildRegistry(cfg)
	if err != nil {
		return RunSummary{}, err
	}
	dataset, err := fitness.DatasetByName(cfg.Run.Dataset.Name, cfg.Run.Dataset.Path, cfg.Run.Dataset.Inputs, cfg.Run.Dataset.Outputs)
	if err != nil {
		return RunSummary{}, err
	}
	evaluator := fitness.NewEvaluator(dataset, registry, cfg.Run.EvaluationWorkers, logger)

	rng := rand.New(rand.NewSource(cfg.Run.Seed))
	var weights evo.MutationWeights
	if len(cfg.Mutation.Weights) > 0 {
		weights = evo.MutationWeights(cfg.Mutation.Weights)
	}
	selector, err := evo.SelectorByName(cfg.Evolution.Selection, cfg.Evolution.PowerExponent, cfg.Evolution.TournamentSize)
	if err != nil {
		return RunSummary{}, err
	}
	postprocessor, err := evo.PostprocessorByName(cfg.Evolution.Postprocessor)
	if err != nil {
		return RunSummary{}, err
	}
	speciesKey, err := evo.SpeciesKeyByName(cfg.Evolution.SpeciesKey)
	if err != nil {
		return RunSummary{}, err
	}
	countPolicy, err := MutationCountPolicyFromConfig(cfg.Evolution.MutationCount)
	if err != nil {
		return RunSummary{}, err
	}

	monitorCfg := evo.MonitorConfig{
		Evaluator:        evaluator,
		Registry:         registry,
		Mutations:        evo.DefaultCatalogue(rng, registry, weights, cfg.Mutation.BiasDelta),
		MutationCount:    countPolicy,
		Selector:         selector,
		Postprocessor:    postprocessor,
		SpeciesKey:       speciesKey,
		PopulationSize:   cfg.Run.Population,
		EliteCount:       cfg.Evolution.EliteCount,
		Generations:      cfg.Run.Generations,
		Seed:             cfg.Run.Seed,
		Rand:             rng,
		BreedRetries:     cfg.Evolution.BreedRetries,
		DedupRetries:     cfg.Evolution.DedupRetries,
		FocusProbability: cfg.Evolution.FocusProbability,
		FitnessGoal:      cfg.Run.FitnessGoal,
		Store:            c.store,
		RunID:            runID,
		Logger:           logger,
	}
	if cfg.FineTune.Enabled {
		monitorCfg.FineTuneBatch = cfg.FineTune.InjectionBatch
		monitorCfg.FineTuner = evo.FineTuner{Rand: rng, Step: cfg.FineTune.Step, MaxSteps: cfg.FineTune.MaxSteps}
		if cfg.FineTune.Submits > 0 {
			pool, err := newTrainingPool(cfg, registry, evaluator, logger)
			if err != nil {
				return RunSummary{}, err
			}
			defer pool.Close()
			monitorCfg.Pool = pool
			monitorCfg.TrainSubmits = cfg.FineTune.Submits
			monitorCfg.DrainGrace = cfg.FineTune.DrainGrace
		}
	}
	monitor, err := evo.NewPopulationMonitor(monitorCfg)
	if err != nil {
		return RunSummary{}, err
	}

	initial := make([]*genome.Genome, 0, cfg.Run.Population)
	for i := 0; i < cfg.Run.Population; i++ {
		g, err := genome.NewMinimal(rng, dataset.Inputs, dataset.Outputs, cfg.Run.Activation)
		if err != nil {
			return RunSummary{}, fmt.Errorf("seed population: %w", err)
		}
		initial = append(initial, g)
	}

	logger.Info("run started",
		"dataset", dataset.Name,
		"population", cfg.Run.Population,
		"generations", cfg.Run.Generations,
		"store", cfg.Store.Kind,
	)
	started := time.Now()
	result, err := monitor.Run(ctx, initial)
	if err != nil {
		return RunSummary{}, fmt.Errorf("run %s: %w", runID, err)
	}
	summary := RunSummary{
		RunID:            runID,
		Generations:      len(result.BestByGeneration),
		BestByGeneration: result.BestByGeneration,
		FinalBestFitness: result.Best.Fitness,
		BestIdentity:     result.Best.Genome.Identity(),
		Best:             result.Best.Genome.ExportPortable(),
		Diagnostics:      result.GenerationDiagnostics,
		Duration:         time.Since(started),
	}
	logger.Info("run finished",
		"generations", summary.Generations,
		"best", summary.FinalBestFitness,
		"duration", summary.Duration,
	)
	return summary, nil
}

// Runs lists stored run ids, oldest first for generated ids.
func (c *Client) Runs(ctx context.Context) ([]string, error) {
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	return c.store.ListRuns(ctx)
}

// EvaluatedCount is the number of distinct genomes with a stored score.
func (c *Client) EvaluatedCount(ctx context.Context) (int, error) {
	if err := c.ensureStore(ctx); err != nil {
		return 0, err
	}
	return c.store.CountScores(ctx)
}

func (c *Client) Diagnostics(ctx context.Context, req HistoryRequest) ([]model.GenerationDiagnostics, error) {
	runID, err := c.resolveRun(ctx, req)
	if err != nil {
		return nil, err
	}
	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("diagnostics not found for run id: %s", runID)
	}
	return limit(diagnostics, req.Limit), nil
}

func (c *Client) TopGenomes(ctx context.Context, req HistoryRequest) ([]model.TopGenomeRecord, error) {
	runID, err := c.resolveRun(ctx, req)
	if err != nil {
		return nil, err
	}
	top, ok, err := c.store.GetTopGenomes(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("top genomes not found for run id: %s", runID)
	}
	return limit(top, req.Limit), nil
}

func (c *Client) resolveRun(ctx context.Context, req HistoryRequest) (string, error) {
	if req.RunID != "" && req.Latest {
		return "", errors.New("use either run id or latest")
	}
	if req.Limit < 0 {
		return "", errors.New("limit must be >= 0")
	}
	if err := c.ensureStore(ctx); err != nil {
		return "", err
	}
	if !req.Latest {
		if req.RunID == "" {
			return "", errors.New("run id or latest is required")
		}
		return req.RunID, nil
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", errors.New("no runs available")
	}
	return runs[len(runs)-1], nil
}

// NewRunID returns an id that sorts by creation time.
func NewRunID(now time.Time) string {
	return fmt.Sprintf("run-%s-%s", now.UTC().Format("20060102T150405"), uuid.NewString()[:8])
}

// MutationCountPolicyFromConfig resolves how many mutations a child receives.
func MutationCountPolicyFromConfig(cfg config.MutationCountConfig) (evo.MutationCountPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Policy)) {
	case "", "const":
		count := cfg.Count
		if count <= 0 {
			count = 1
		}
		return evo.ConstMutationCount{Count: count}, nil
	case "ncount_linear":
		return evo.NCountLinearMutationCount{Multiplier: cfg.Param, MaxCount: cfg.Max}, nil
	case "ncount_exponential":
		return evo.NCountExponentialMutationCount{Power: cfg.Param, MaxCount: cfg.Max}, nil
	default:
		return nil, fmt.Errorf("unknown mutation count policy: %s", cfg.Policy)
	}
}

func buildRegistry(cfg config.Config) (*nn.Registry, error) {
	registry := nn.DefaultRegistry()
	if len(cfg.Mutation.Activations) > 0 {
		subset, err := registry.Subset(cfg.Mutation.Activations...)
		if err != nil {
			return nil, err
		}
		registry = subset
	}
	if !registry.Has(cfg.Run.Activation) {
		return nil, fmt.Errorf("run activation %s is not in the activation set", cfg.Run.Activation)
	}
	return registry, nil
}

func newTrainingPool(cfg config.Config, registry *nn.Registry, evaluator *fitness.Evaluator, logger *slog.Logger) (*worker.Pool, error) {
	ft := cfg.FineTune
	attempts, err := tuning.AttemptPolicyFromConfig(ft.AttemptPolicy, ft.AttemptParam)
	if err != nil {
		return nil, err
	}
	trainer := &tuning.Trainer{
		Tuner: &tuning.HillClimber{
			Rand:               rand.New(rand.NewSource(cfg.Run.Seed + 1)),
			Steps:              ft.Tuner.Steps,
			StepSize:           ft.Tuner.StepSize,
			PerturbationRange:  ft.Tuner.PerturbationRange,
			AnnealingFactor:    ft.Tuner.AnnealingFactor,
			MinImprovement:     ft.Tuner.MinImprovement,
			CandidateSelection: ft.Tuner.CandidateSelection,
			Biases:             ft.Tuner.Biases,
		},
		Objective:    evaluator.Objective(),
		Attempts:     attempts,
		BaseAttempts: ft.Attempts,
		Registry:     registry,
		Logger:       logger,
	}
	poolCfg := worker.Config{
		Workers:          ft.Workers,
		PerGenerationCap: ft.Submits,
		Logger:           logger,
	}
	if ft.Timeout > 0 {
		poolCfg.Deadline = time.Now().Add(ft.Timeout)
	}
	return worker.New(trainer, poolCfg)
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		items = items[:n]
	}
	return append([]T(nil), items...)
}
