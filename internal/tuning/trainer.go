package tuning

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"neatforge/internal/genome"
	"neatforge/internal/nn"
	"neatforge/internal/worker"
)

// Trainer runs a Tuner on pool tasks. After tuning it folds linear hidden
// neurons away and reports the compacted genome when its error stays within
// CompactTolerance of the tuned one.
type Trainer struct {
	Tuner            Tuner
	Objective        Objective
	Attempts         AttemptPolicy
	BaseAttempts     int
	Registry         *nn.Registry
	CompactTolerance float64
	Logger           *slog.Logger
}

var _ worker.Trainer = (*Trainer)(nil)

// defaultCompactTolerance absorbs rounding from multiplying folded weights.
const defaultCompactTolerance = 1e-9

func (t *Trainer) Train(ctx context.Context, task worker.Task) (worker.Outcome, error) {
	if t.Tuner == nil || t.Objective == nil {
		return worker.Outcome{}, fmt.Errorf("trainer requires a tuner and an objective")
	}
	g, err := genome.Import(task.Genome)
	if err != nil {
		return worker.Outcome{}, fmt.Errorf("import task genome: %w", err)
	}
	policy := t.Attempts
	if policy == nil {
		policy = FixedAttemptPolicy{}
	}
	tuned, tunedErr, report, err := t.Tuner.Tune(ctx, g, policy.Attempts(t.BaseAttempts, g), t.Objective)
	if err != nil {
		return worker.Outcome{}, fmt.Errorf("tune %s: %w", task.Identity, err)
	}
	if math.IsNaN(tunedErr) || math.IsInf(tunedErr, 0) {
		return worker.Outcome{}, fmt.Errorf("tune %s: non-finite error", task.Identity)
	}
	out := worker.Outcome{Trained: tuned.Export(), Error: tunedErr}

	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("tuned genome",
		"component", "trainer",
		"identity", task.Identity,
		"error", tunedErr,
		"attempts", report.AttemptsExecuted,
		"accepted", report.AcceptedCandidates,
	)

	registry := t.Registry
	if registry == nil {
		registry = nn.DefaultRegistry()
	}
	compacted := tuned.Clone()
	removed, err := compacted.Compact(registry)
	if err != nil {
		logger.Debug("compaction stopped", "component", "trainer", "identity", task.Identity, "error", err)
	}
	if removed == 0 || compacted.Validate() != nil {
		return out, nil
	}
	compactedErr, err := t.Objective(ctx, compacted)
	if err != nil {
		return out, nil
	}
	tolerance := t.CompactTolerance
	if tolerance <= 0 {
		tolerance = defaultCompactTolerance
	}
	if compactedErr <= tunedErr+tolerance {
		exported := compacted.Export()
		out.Compacted = &exported
		out.Error = min(tunedErr, compactedErr)
	}
	return out, nil
}
