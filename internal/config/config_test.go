package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
run:
  seed: 9
  population: 30
  fitness_goal: -0.01
  dataset:
    name: csv
    path: data.csv
    inputs: 3
evolution:
  selection: tournament
mutation:
  weights:
    mod_weight: 1
fine_tune:
  drain_grace: 500ms
store:
  kind: badger
  path: /tmp/neatforge
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Run.Seed != 9 || cfg.Run.Population != 30 || cfg.Run.Dataset.Inputs != 3 {
		t.Fatalf("run section not applied: %+v", cfg.Run)
	}
	if cfg.Run.Generations != Default().Run.Generations || cfg.Run.Dataset.Outputs != 1 {
		t.Fatalf("missing keys lost their defaults: %+v", cfg.Run)
	}
	if cfg.Run.FitnessGoal == nil || *cfg.Run.FitnessGoal != -0.01 {
		t.Fatalf("fitness goal = %v", cfg.Run.FitnessGoal)
	}
	if cfg.Evolution.Selection != "tournament" || cfg.Evolution.EliteCount != 6 {
		t.Fatalf("evolution section: %+v", cfg.Evolution)
	}
	if len(cfg.Mutation.Weights) != 1 || cfg.Mutation.Weights["mod_weight"] != 1 {
		t.Fatalf("weights: %v", cfg.Mutation.Weights)
	}
	if cfg.FineTune.DrainGrace != 500*time.Millisecond {
		t.Fatalf("drain grace: %v", cfg.FineTune.DrainGrace)
	}
	if cfg.Store.Kind != "badger" {
		t.Fatalf("store: %+v", cfg.Store)
	}
}

func TestParseEmptyDocumentKeepsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Run.Population != Default().Run.Population {
		t.Fatalf("population = %d", cfg.Run.Population)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	if _, err := Parse([]byte("run:\n  populaton: 10\n")); err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Run.Population = 0
	cfg.Evolution.FocusProbability = 2
	cfg.Store.Kind = "postgres"
	cfg.Log.Level = "loud"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"run.population", "focus_probability", "store.kind", "log.level"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}

	cfg = Default()
	cfg.Run.Dataset.Name = "csv"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "dataset.path") {
		t.Fatalf("expected csv path error, got %v", err)
	}
}

func TestMarshalRoundTripsThroughLoad(t *testing.T) {
	cfg := Default()
	cfg.Run.Seed = 42
	cfg.FineTune.Timeout = 3 * time.Second
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "neatforge.yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Run.Seed != 42 || loaded.FineTune.Timeout != 3*time.Second {
		t.Fatalf("loaded config differs: %+v", loaded)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected read error")
	}
}

func TestNewLoggerPicksHandler(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "warn", Format: "auto"}.NewLogger(&buf, false)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "k", 1)
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "shown" {
		t.Fatalf("unexpected record: %v", line)
	}

	buf.Reset()
	logger, err = LogConfig{Format: "auto"}.NewLogger(&buf, true)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Fatalf("expected text output, got %q", buf.String())
	}

	if _, err := (LogConfig{Level: "loud"}).NewLogger(&buf, true); err == nil {
		t.Fatal("expected level error")
	}
}
