package fitness

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"neatforge/internal/genome"
	"neatforge/internal/model"
	"neatforge/internal/nn"
)

func TestEvaluatorScoresInOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	registry := nn.DefaultRegistry()
	batch := make([]model.IndexedGenome, 16)
	for i := range batch {
		g, err := genome.NewMinimal(rng, 2, 1, "tanh")
		if err != nil {
			t.Fatalf("new minimal: %v", err)
		}
		batch[i] = g.Export()
	}
	scores, err := NewEvaluator(XOR(), registry, 3, nil).Evaluate(context.Background(), batch)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	for i, s := range scores {
		mse, _ := XOR().MeanSquaredError(registry, batch[i])
		if s != -mse {
			t.Fatalf("score %d = %v want %v", i, s, -mse)
		}
	}
}

func TestEvaluatorMarksUnrunnableGenomes(t *testing.T) {
	g, _ := genome.New(3, 1, "tanh")
	scores, err := NewEvaluator(XOR(), nil, 0, nil).Evaluate(context.Background(), []model.IndexedGenome{g.Export()})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !math.IsInf(scores[0], -1) {
		t.Fatalf("score=%v want -Inf", scores[0])
	}
}

func TestEvaluatorHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g, _ := genome.New(2, 1, "tanh")
	if _, err := NewEvaluator(XOR(), nil, 1, nil).Evaluate(ctx, []model.IndexedGenome{g.Export()}); err == nil {
		t.Fatal("expected context error")
	}
}

func TestObjectiveMatchesScore(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	g, _ := genome.NewMinimal(rng, 2, 1, "tanh")
	e := NewEvaluator(XOR(), nil, 1, nil)
	got, err := e.Objective()(context.Background(), g)
	if err != nil {
		t.Fatalf("objective: %v", err)
	}
	scores, _ := e.Evaluate(context.Background(), []model.IndexedGenome{g.Export()})
	if got != -scores[0] {
		t.Fatalf("objective=%v score=%v", got, scores[0])
	}
}
