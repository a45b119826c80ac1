package neatforge

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"neatforge/internal/config"
	"neatforge/internal/genome"
	"neatforge/internal/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func smallConfig() config.Config {
	cfg := config.Default()
	cfg.Run.Population = 12
	cfg.Run.Generations = 3
	cfg.Run.EvaluationWorkers = 2
	cfg.Evolution.EliteCount = 3
	cfg.FineTune.InjectionBatch = 2
	cfg.FineTune.Submits = 1
	cfg.FineTune.Workers = 1
	cfg.FineTune.Attempts = 3
	cfg.FineTune.DrainGrace = 200 * time.Millisecond
	return cfg
}

func TestClientRunAndHistory(t *testing.T) {
	cfg := smallConfig()
	cfg.Run.RunID = "xor-small"
	client, err := New(cfg, Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	summary, err := client.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.RunID != "xor-small" || summary.Generations != 3 || len(summary.BestByGeneration) != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	for i := 1; i < len(summary.BestByGeneration); i++ {
		if summary.BestByGeneration[i] < summary.BestByGeneration[i-1] {
			t.Fatalf("best fitness regressed: %v", summary.BestByGeneration)
		}
	}
	if summary.FinalBestFitness > 0 || summary.FinalBestFitness != summary.BestByGeneration[2] {
		t.Fatalf("final best %f does not match history %v", summary.FinalBestFitness, summary.BestByGeneration)
	}
	best, err := genome.ImportPortable(summary.Best)
	if err != nil {
		t.Fatalf("import best: %v", err)
	}
	if best.Identity() != summary.BestIdentity {
		t.Fatal("best identity does not match exported genome")
	}

	runs, err := client.Runs(ctx)
	if err != nil || len(runs) != 1 || runs[0] != "xor-small" {
		t.Fatalf("runs=%v err=%v", runs, err)
	}
	diagnostics, err := client.Diagnostics(ctx, HistoryRequest{Latest: true})
	if err != nil || len(diagnostics) != 3 {
		t.Fatalf("diagnostics=%d err=%v", len(diagnostics), err)
	}
	top, err := client.TopGenomes(ctx, HistoryRequest{RunID: "xor-small", Limit: 2})
	if err != nil || len(top) != 2 {
		t.Fatalf("top=%d err=%v", len(top), err)
	}
}

func TestClientRunWithoutFineTune(t *testing.T) {
	cfg := smallConfig()
	cfg.FineTune.Enabled = false
	cfg.Evolution.Selection = "tournament"
	cfg.Evolution.MutationCount.Policy = "const"
	goal := 10.0
	cfg.Run.FitnessGoal = &goal

	client, err := New(cfg, Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	summary, err := client.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(summary.RunID, "run-") || summary.Generations != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	for _, d := range summary.Diagnostics {
		if d.InjectedFineTune != 0 || d.TrainingResults != 0 {
			t.Fatalf("fine-tune disabled but diagnostics show it: %+v", d)
		}
	}
}

func TestClientRunsOnCSVDatasetWithBadgerStore(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "and.csv")
	data := "a,b,y\n0,0,0\n0,1,0\n1,0,0\n1,1,1\n"
	if err := os.WriteFile(dataPath, []byte(data), 0o600); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	cfg := smallConfig()
	cfg.Run.RunID = "and"
	cfg.Run.Generations = 2
	cfg.Run.Dataset = config.DatasetConfig{Name: "csv", Path: dataPath, Inputs: 2, Outputs: 1}
	cfg.Store = config.StoreConfig{Kind: "badger", Path: filepath.Join(dir, "store")}

	client, err := New(cfg, Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := New(cfg, Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	diagnostics, err := reopened.Diagnostics(context.Background(), HistoryRequest{RunID: "and"})
	if err != nil || len(diagnostics) != 2 {
		t.Fatalf("diagnostics=%d err=%v", len(diagnostics), err)
	}
}

func TestClientUsesInjectedStore(t *testing.T) {
	store := storage.NewMemoryStore()
	cfg := smallConfig()
	cfg.Run.Generations = 1
	client, err := New(cfg, Options{Logger: quietLogger(), Store: store})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	n, err := client.EvaluatedCount(context.Background())
	if err != nil || n != cfg.Run.Population {
		t.Fatalf("scores=%d err=%v", n, err)
	}
}

func TestClientRejectsBadConfiguration(t *testing.T) {
	cfg := smallConfig()
	cfg.Run.Population = 0
	if _, err := New(cfg, Options{}); err == nil {
		t.Fatal("expected validation error")
	}

	cfg = smallConfig()
	cfg.Evolution.Selection = "lottery"
	client, err := New(cfg, Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Run(context.Background()); err == nil {
		t.Fatal("expected unknown selection error")
	}

	cfg = smallConfig()
	cfg.Mutation.Activations = []string{"relu"}
	client, err = New(cfg, Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Run(context.Background()); err == nil {
		t.Fatal("expected missing run activation error")
	}
}

func TestHistoryRequestValidation(t *testing.T) {
	client, err := New(smallConfig(), Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()
	if _, err := client.Diagnostics(ctx, HistoryRequest{RunID: "a", Latest: true}); err == nil {
		t.Fatal("expected conflicting selector error")
	}
	if _, err := client.Diagnostics(ctx, HistoryRequest{Latest: true}); err == nil {
		t.Fatal("expected no runs error")
	}
	if _, err := client.TopGenomes(ctx, HistoryRequest{RunID: "missing"}); err == nil {
		t.Fatal("expected not found error")
	}
	if _, err := client.TopGenomes(ctx, HistoryRequest{RunID: "a", Limit: -1}); err == nil {
		t.Fatal("expected limit error")
	}
}

func TestNewRunIDSortsByTime(t *testing.T) {
	early := NewRunID(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	late := NewRunID(time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC))
	if !strings.HasPrefix(early, "run-20260102T030405-") || early >= late {
		t.Fatalf("ids do not sort by time: %s %s", early, late)
	}
}

func TestMutationCountPolicyFromConfig(t *testing.T) {
	for _, name := range []string{"", "const", "ncount_linear", "ncount_exponential"} {
		policy, err := MutationCountPolicyFromConfig(config.MutationCountConfig{Policy: name, Param: 1})
		if err != nil || policy == nil {
			t.Fatalf("policy %q: %v", name, err)
		}
	}
	if _, err := MutationCountPolicyFromConfig(config.MutationCountConfig{Policy: "fib"}); err == nil {
		t.Fatal("expected unknown policy error")
	}
}
