package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"neatforge/internal/config"
	"neatforge/pkg/neatforge"
)

type runFlags struct {
	runID       string
	seed        int64
	generations int
	population  int
	dataset     string
	datasetPath string
	storeKind   string
	storePath   string
	metricsAddr string
	noFineTune  bool
}

func newRunCmd(global *globalFlags) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an evolution experiment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := global.load()
			if err != nil {
				return err
			}
			flags.apply(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runExperiment(cmd, cfg, global.terminal)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&flags.runID, "run-id", "", "run id (generated when empty)")
	fs.Int64Var(&flags.seed, "seed", 0, "random seed")
	fs.IntVar(&flags.generations, "generations", 0, "generation limit")
	fs.IntVar(&flags.population, "population", 0, "population size")
	fs.StringVar(&flags.dataset, "dataset", "", "dataset: xor|csv")
	fs.StringVar(&flags.datasetPath, "dataset-path", "", "csv dataset path")
	fs.StringVar(&flags.storeKind, "store", "", "store backend: memory|badger|sqlite")
	fs.StringVar(&flags.storePath, "store-path", "", "store directory or database file")
	fs.StringVar(&flags.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	fs.BoolVar(&flags.noFineTune, "no-fine-tune", false, "disable fine-tune injection and the training pool")
	return cmd
}

// apply overrides cfg with the flags set on the command line.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("run-id") {
		cfg.Run.RunID = f.runID
	}
	if changed("seed") {
		cfg.Run.Seed = f.seed
	}
	if changed("generations") {
		cfg.Run.Generations = f.generations
	}
	if changed("population") {
		cfg.Run.Population = f.population
		if cfg.Evolution.EliteCount > f.population && f.population > 0 {
			cfg.Evolution.EliteCount = f.population
		}
	}
	if changed("dataset") {
		cfg.Run.Dataset.Name = f.dataset
	}
	if changed("dataset-path") {
		cfg.Run.Dataset.Path = f.datasetPath
	}
	if changed("store") {
		cfg.Store.Kind = f.storeKind
	}
	if changed("store-path") {
		cfg.Store.Path = f.storePath
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
	}
	if f.noFineTune {
		cfg.FineTune.Enabled = false
	}
}

func runExperiment(cmd *cobra.Command, cfg config.Config, terminal bool) error {
	logger, err := cfg.Log.NewLogger(cmd.ErrOrStderr(), terminal)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if cfg.Metrics.Addr != "" {
		stop, err := serveMetrics(cfg.Metrics.Addr, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	client, err := neatforge.New(cfg, neatforge.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx)
	if err != nil {
		return err
	}
	evaluated, err := client.EvaluatedCount(ctx)
	if err != nil {
		logger.Warn("count evaluated genomes", "error", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run_id=%s generations=%d best=%s\n", summary.RunID, summary.Generations, humanize.FtoaWithDigits(summary.FinalBestFitness, 6))
	fmt.Fprintf(out, "best_genome=%s neurons=%d connections=%d\n", summary.BestIdentity, len(summary.Best.Neurons)+summary.Best.Inputs, len(summary.Best.Connections))
	fmt.Fprintf(out, "evaluated=%s duration=%s\n", humanize.Comma(int64(evaluated)), summary.Duration.Round(time.Millisecond))
	return nil
}

// serveMetrics exposes the default prometheus registry until stop is called.
func serveMetrics(addr string, logger *slog.Logger) (stop func(), err error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", listener.Addr().String())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}, nil
}
