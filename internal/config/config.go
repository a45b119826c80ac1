// Package config loads run configuration from YAML. Missing keys keep the
// values from Default, unknown keys are rejected.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Run       RunConfig       `yaml:"run"`
	Evolution EvolutionConfig `yaml:"evolution"`
	Mutation  MutationConfig  `yaml:"mutation"`
	FineTune  FineTuneConfig  `yaml:"fine_tune"`
	Store     StoreConfig     `yaml:"store"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type RunConfig struct {
	// RunID names the run in the store. Empty generates one.
	RunID       string `yaml:"run_id"`
	Seed        int64  `yaml:"seed"`
	Generations int    `yaml:"generations"`
	Population  int    `yaml:"population"`
	// Activation is used by the output neurons of the initial genomes.
	Activation string `yaml:"activation"`
	// FitnessGoal stops the run once reached. Nil runs every generation.
	FitnessGoal *float64      `yaml:"fitness_goal"`
	Dataset     DatasetConfig `yaml:"dataset"`
	// EvaluationWorkers bounds concurrent fitness evaluations.
	EvaluationWorkers int `yaml:"evaluation_workers"`
}

type DatasetConfig struct {
	Name    string `yaml:"name"`
	Path    string `yaml:"path"`
	Inputs  int    `yaml:"inputs"`
	Outputs int    `yaml:"outputs"`
}

type EvolutionConfig struct {
	EliteCount       int                 `yaml:"elite_count"`
	Selection        string              `yaml:"selection"`
	PowerExponent    float64             `yaml:"power_exponent"`
	TournamentSize   int                 `yaml:"tournament_size"`
	Postprocessor    string              `yaml:"postprocessor"`
	SpeciesKey       string              `yaml:"species_key"`
	BreedRetries     int                 `yaml:"breed_retries"`
	DedupRetries     int                 `yaml:"dedup_retries"`
	FocusProbability float64             `yaml:"focus_probability"`
	MutationCount    MutationCountConfig `yaml:"mutation_count"`
}

type MutationCountConfig struct {
	Policy string  `yaml:"policy"`
	Count  int     `yaml:"count"`
	Param  float64 `yaml:"param"`
	Max    int     `yaml:"max"`
}

type MutationConfig struct {
	// Weights lists per-operator weights. Operators left out are disabled;
	// an empty map selects the built-in weights.
	Weights   map[string]float64 `yaml:"weights"`
	BiasDelta float64            `yaml:"bias_delta"`
	// Activations restricts the registry. Empty keeps every built-in.
	Activations []string `yaml:"activations"`
}

type FineTuneConfig struct {
	Enabled bool `yaml:"enabled"`
	// InjectionBatch is the number of perturbed copies of the best genome
	// added each generation.
	InjectionBatch int     `yaml:"injection_batch"`
	Step           float64 `yaml:"step"`
	MaxSteps       int     `yaml:"max_steps"`

	// Submits is the number of elites handed to the training pool per
	// generation. Zero disables the pool.
	Submits       int           `yaml:"submits"`
	Workers       int           `yaml:"workers"`
	Timeout       time.Duration `yaml:"timeout"`
	DrainGrace    time.Duration `yaml:"drain_grace"`
	Attempts      int           `yaml:"attempts"`
	AttemptPolicy string        `yaml:"attempt_policy"`
	AttemptParam  float64       `yaml:"attempt_param"`
	Tuner         TunerConfig   `yaml:"tuner"`
}

type TunerConfig struct {
	Steps              int     `yaml:"steps"`
	StepSize           float64 `yaml:"step_size"`
	PerturbationRange  float64 `yaml:"perturbation_range"`
	AnnealingFactor    float64 `yaml:"annealing_factor"`
	MinImprovement     float64 `yaml:"min_improvement"`
	CandidateSelection string  `yaml:"candidate_selection"`
	Biases             bool    `yaml:"biases"`
}

type StoreConfig struct {
	Kind string `yaml:"kind"`
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a configuration that evolves XOR solvers in memory.
func Default() Config {
	return Config{
		Run: RunConfig{
			Seed:        1,
			Generations: 50,
			Population:  60,
			Activation:  "tanh",
			Dataset: DatasetConfig{
				Name:    "xor",
				Inputs:  2,
				Outputs: 1,
			},
			EvaluationWorkers: 4,
		},
		Evolution: EvolutionConfig{
			EliteCount:       6,
			Selection:        "power",
			PowerExponent:    2,
			TournamentSize:   3,
			Postprocessor:    "none",
			SpeciesKey:       "activation_skeleton",
			BreedRetries:     4,
			DedupRetries:     3,
			FocusProbability: 0.25,
			MutationCount: MutationCountConfig{
				Policy: "ncount_exponential",
				Count:  1,
				Param:  0.5,
				Max:    8,
			},
		},
		Mutation: MutationConfig{
			BiasDelta: 0.5,
		},
		FineTune: FineTuneConfig{
			Enabled:        true,
			InjectionBatch: 4,
			Step:           0.01,
			MaxSteps:       4,
			Submits:        2,
			Workers:        2,
			DrainGrace:     2 * time.Second,
			Attempts:       20,
			AttemptPolicy:  "fixed",
			Tuner: TunerConfig{
				Steps:              2,
				StepSize:           0.25,
				PerturbationRange:  1,
				AnnealingFactor:    1,
				CandidateSelection: "best_so_far",
			},
		},
		Store: StoreConfig{
			Kind: "memory",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func (c Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	r := c.Run
	check(r.Generations > 0, "run.generations must be > 0")
	check(r.Population > 0, "run.population must be > 0")
	check(r.Activation != "", "run.activation is required")
	check(r.Dataset.Inputs > 0, "run.dataset.inputs must be > 0")
	check(r.Dataset.Outputs > 0, "run.dataset.outputs must be > 0")
	check(r.EvaluationWorkers >= 0, "run.evaluation_workers must be >= 0")
	switch strings.ToLower(r.Dataset.Name) {
	case "", "xor":
	case "csv":
		check(r.Dataset.Path != "", "run.dataset.path is required for csv datasets")
	default:
		check(false, "run.dataset.name %q is not supported", r.Dataset.Name)
	}

	e := c.Evolution
	check(e.EliteCount > 0 && e.EliteCount <= r.Population, "evolution.elite_count must be in [1, run.population]")
	check(e.PowerExponent >= 0, "evolution.power_exponent must be >= 0")
	check(e.TournamentSize >= 0, "evolution.tournament_size must be >= 0")
	check(e.BreedRetries >= 0, "evolution.breed_retries must be >= 0")
	check(e.DedupRetries >= 0, "evolution.dedup_retries must be >= 0")
	check(e.FocusProbability >= 0 && e.FocusProbability <= 1, "evolution.focus_probability must be in [0, 1]")
	check(e.MutationCount.Max >= 0, "evolution.mutation_count.max must be >= 0")

	for name, w := range c.Mutation.Weights {
		check(w >= 0, "mutation.weights.%s must be >= 0", name)
	}
	check(c.Mutation.BiasDelta >= 0, "mutation.bias_delta must be >= 0")

	f := c.FineTune
	check(f.InjectionBatch >= 0, "fine_tune.injection_batch must be >= 0")
	check(f.Step >= 0, "fine_tune.step must be >= 0")
	check(f.MaxSteps >= 0, "fine_tune.max_steps must be >= 0")
	check(f.Submits >= 0, "fine_tune.submits must be >= 0")
	check(f.Workers >= 0, "fine_tune.workers must be >= 0")
	check(f.Timeout >= 0, "fine_tune.timeout must be >= 0")
	check(f.DrainGrace >= 0, "fine_tune.drain_grace must be >= 0")
	check(f.Attempts >= 0, "fine_tune.attempts must be >= 0")
	if f.Enabled && f.Submits > 0 {
		check(f.Tuner.Steps > 0, "fine_tune.tuner.steps must be > 0")
		check(f.Tuner.StepSize > 0, "fine_tune.tuner.step_size must be > 0")
	}

	switch strings.ToLower(c.Store.Kind) {
	case "", "memory", "badger", "sqlite":
	default:
		check(false, "store.kind %q is not supported", c.Store.Kind)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "auto", "text", "json":
	default:
		check(false, "log.format %q is not supported", c.Log.Format)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
