package tuning

import (
	"context"

	"neatforge/internal/genome"
)

// Objective measures the error of a genome on some task. Lower is better.
type Objective func(ctx context.Context, g *genome.Genome) (float64, error)

type TuneReport struct {
	AttemptsPlanned      int  `json:"attempts_planned"`
	AttemptsExecuted     int  `json:"attempts_executed"`
	CandidateEvaluations int  `json:"candidate_evaluations"`
	AcceptedCandidates   int  `json:"accepted_candidates"`
	RejectedCandidates   int  `json:"rejected_candidates"`
	GoalReached          bool `json:"goal_reached"`
}

// Tuner adjusts the parameters of a genome without changing its topology.
type Tuner interface {
	Name() string
	Tune(ctx context.Context, g *genome.Genome, attempts int, objective Objective) (*genome.Genome, float64, TuneReport, error)
}
