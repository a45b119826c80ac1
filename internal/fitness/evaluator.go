package fitness

import (
	"context"
	"log/slog"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"neatforge/internal/genome"
	"neatforge/internal/model"
	"neatforge/internal/nn"
	"neatforge/internal/tuning"
)

// Evaluator scores genomes as the negative mean squared error on a dataset.
// A genome that cannot be run scores -Inf instead of failing the batch.
type Evaluator struct {
	Dataset  Dataset
	Registry *nn.Registry
	// Workers bounds parallel evaluations. Zero means GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

func NewEvaluator(dataset Dataset, registry *nn.Registry, workers int, logger *slog.Logger) *Evaluator {
	if registry == nil {
		registry = nn.DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		Dataset:  dataset,
		Registry: registry,
		Workers:  workers,
		Logger:   logger.With("component", "evaluator", "dataset", dataset.Name),
	}
}

func (e *Evaluator) Evaluate(ctx context.Context, genomes []model.IndexedGenome) ([]float64, error) {
	scores := make([]float64, len(genomes))
	workers := e.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range genomes {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			mse, err := e.Dataset.MeanSquaredError(e.registry(), genomes[i])
			if err != nil {
				e.logger().Debug("genome not scorable", "index", i, "error", err)
				scores[i] = math.Inf(-1)
				return nil
			}
			scores[i] = -mse
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

// Objective adapts the dataset error to the tuning package.
func (e *Evaluator) Objective() tuning.Objective {
	return func(ctx context.Context, g *genome.Genome) (float64, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return e.Dataset.MeanSquaredError(e.registry(), g.Export())
	}
}

func (e *Evaluator) registry() *nn.Registry {
	if e.Registry == nil {
		return nn.DefaultRegistry()
	}
	return e.Registry
}

func (e *Evaluator) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}
