package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edgebench",
		Name:      "runs_total",
		Help:      "Benchmark runs finished, by outcome",
	}, []string{"model", "dataset", "outcome"})

	examplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edgebench",
		Name:      "examples_total",
		Help:      "Examples processed, by outcome",
	}, []string{"model", "dataset", "outcome"})

	exampleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "edgebench",
		Name:      "example_duration_seconds",
		Help:      "Wall time of one example from prefill to last token",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
	}, []string{"model", "dataset"})

	evalTokensPerSecond = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "edgebench",
		Name:      "eval_tokens_per_second",
		Help:      "Output tokens per second of the last finished run",
	}, []string{"model", "dataset"})

	promptTokensPerSecond = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "edgebench",
		Name:      "prompt_tokens_per_second",
		Help:      "Prompt tokens per second of the last finished run",
	}, []string{"model", "dataset"})

	resourceCPU = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "edgebench",
		Name:      "process_cpu_fraction",
		Help:      "Most recent CPU fraction reported by the resource monitor",
	})

	resourceMemory = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "edgebench",
		Name:      "process_memory_bytes",
		Help:      "Most recent resident memory reported by the resource monitor",
	})
)

// ObserveExample counts one example and its duration.
func ObserveExample(model, dataset, outcome string, seconds float64) {
	examplesTotal.WithLabelValues(model, dataset, outcome).Inc()
	exampleDuration.WithLabelValues(model, dataset).Observe(seconds)
}

// ObserveRun counts a finished run and publishes its throughput.
func ObserveRun(model, dataset, outcome string, bm *BenchmarkMetrics) {
	runsTotal.WithLabelValues(model, dataset, outcome).Inc()
	if bm == nil {
		return
	}
	evalTokensPerSecond.WithLabelValues(model, dataset).Set(bm.AverageEvalTokenPerSec)
	promptTokensPerSecond.WithLabelValues(model, dataset).Set(bm.AveragePromptTokenPerSec)
}

// ObserveResources publishes one resource sample.
func ObserveResources(cpuFraction float64, memoryBytes uint64) {
	resourceCPU.Set(cpuFraction)
	resourceMemory.Set(float64(memoryBytes))
}
