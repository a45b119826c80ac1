package evo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neatforge_generations_total",
		Help: "Completed generations",
	})

	bestFitnessGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "neatforge_best_fitness",
		Help: "Best fitness of the latest evaluated generation",
	})

	speciesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "neatforge_species",
		Help: "Species count of the latest generation",
	})

	offspringTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neatforge_offspring_total",
		Help: "Breeding attempts by result",
	}, []string{"result"})

	dedupTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neatforge_dedup_total",
		Help: "Deduplication outcomes by resolution",
	}, []string{"resolution"})

	trainingTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neatforge_training_tasks_total",
		Help: "Training tasks by outcome",
	}, []string{"outcome"})

	injectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neatforge_fine_tune_injected_total",
		Help: "Fine-tune candidates injected into a population",
	})
)

func recordDedup(stats DedupStats) {
	dedupTotal.WithLabelValues("collision").Add(float64(stats.Collisions))
	dedupTotal.WithLabelValues("rebred").Add(float64(stats.Rebred))
	dedupTotal.WithLabelValues("mutated").Add(float64(stats.Mutated))
	dedupTotal.WithLabelValues("dropped").Add(float64(stats.Dropped))
}
