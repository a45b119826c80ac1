package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"neatforge/internal/model"
	"neatforge/pkg/neatforge"
)

type inspectFlags struct {
	storeKind string
	storePath string
	runID     string
	latest    bool
	limit     int
}

func newInspectCmd(global *globalFlags) *cobra.Command {
	flags := &inspectFlags{}
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect runs recorded in an experiment store",
	}
	cmd.PersistentFlags().StringVar(&flags.storeKind, "store", "", "store backend: memory|badger|sqlite")
	cmd.PersistentFlags().StringVar(&flags.storePath, "store-path", "", "store directory or database file")

	runs := &cobra.Command{
		Use:   "runs",
		Short: "List recorded run ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := flags.client(cmd, global)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()
			ids, err := client.Runs(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}

	diagnostics := &cobra.Command{
		Use:   "diagnostics",
		Short: "Show per-generation diagnostics of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := flags.client(cmd, global)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()
			history, err := client.Diagnostics(cmd.Context(), flags.request())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "GEN\tBEST\tMEAN\tSPECIES\tDISTINCT\tBRED\tDEDUP\tTRAINED\tINJECTED\tNEURONS\tCONNECTIONS")
			for _, d := range history {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%d\t%d/%d\t%d\t%d\t%d\t%d\n",
					d.Generation,
					humanize.FtoaWithDigits(d.BestFitness, 6),
					humanize.FtoaWithDigits(d.MeanFitness, 6),
					d.SpeciesCount,
					d.DistinctGenomes,
					d.OffspringBred,
					d.DedupCollisions, d.DedupDropped,
					d.TrainingResults,
					d.InjectedFineTune,
					d.BestNeurons,
					d.BestConnections,
				)
			}
			return w.Flush()
		},
	}

	top := &cobra.Command{
		Use:   "top",
		Short: "Show the best genome of each generation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := flags.client(cmd, global)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()
			records, err := client.TopGenomes(cmd.Context(), flags.request())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "GEN\tFITNESS\tIDENTITY\tNEURONS\tCONNECTIONS\tACTIVATIONS")
			for _, r := range records {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\n",
					r.Generation,
					humanize.FtoaWithDigits(r.Fitness, 6),
					r.Identity,
					r.Genome.Inputs+len(r.Genome.Neurons),
					len(r.Genome.Connections),
					activationSummary(r.Genome.Neurons),
				)
			}
			return w.Flush()
		},
	}

	for _, sub := range []*cobra.Command{diagnostics, top} {
		sub.Flags().StringVar(&flags.runID, "run-id", "", "run id")
		sub.Flags().BoolVar(&flags.latest, "latest", false, "use the most recent run")
		sub.Flags().IntVar(&flags.limit, "limit", 0, "show at most this many generations")
	}
	cmd.AddCommand(runs, diagnostics, top)
	return cmd
}

func (f *inspectFlags) client(cmd *cobra.Command, global *globalFlags) (*neatforge.Client, error) {
	cfg, err := global.load()
	if err != nil {
		return nil, err
	}
	if f.storeKind != "" {
		cfg.Store.Kind = f.storeKind
	}
	if f.storePath != "" {
		cfg.Store.Path = f.storePath
	}
	logger, err := cfg.Log.NewLogger(cmd.ErrOrStderr(), global.terminal)
	if err != nil {
		return nil, err
	}
	return neatforge.New(cfg, neatforge.Options{Logger: logger})
}

func (f *inspectFlags) request() neatforge.HistoryRequest {
	return neatforge.HistoryRequest{RunID: f.runID, Latest: f.latest, Limit: f.limit}
}

// activationSummary counts activations over non-input neurons, in first-seen
// order, e.g. "tanh:2 identity:1".
func activationSummary(neurons []model.PortableNeuron) string {
	counts := make(map[string]int)
	var order []string
	for _, n := range neurons {
		if n.Activation == "" {
			continue
		}
		if counts[n.Activation] == 0 {
			order = append(order, n.Activation)
		}
		counts[n.Activation]++
	}
	parts := make([]string, len(order))
	for i, name := range order {
		parts[i] = fmt.Sprintf("%s:%d", name, counts[name])
	}
	return strings.Join(parts, " ")
}
