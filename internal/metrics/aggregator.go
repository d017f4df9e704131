// internal/metrics/aggregator.go
// Package metrics turns per-example records and cumulative runtime timings into
// run-level averages, and exports live counters to Prometheus.
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/mwiater/edgebench/internal/llm"
)

// ErrNoValidData is returned by Finalize when no example was recorded.
var ErrNoValidData = errors.New("no valid data found")

// Aggregator collects the examples of one run; use a fresh one per run.
type Aggregator struct {
	mutex   sync.Mutex
	count   int
	metric1 float64
	metric2 float64
	latency RunningStat
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add records one finished example.
func (a *Aggregator) Add(ex ExampleStat) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.count++
	a.metric1 += ex.Metric1
	a.metric2 += ex.Metric2
	updateRunningStat(&a.latency, ex.DurationMs)
}

// Count returns the number of recorded examples.
func (a *Aggregator) Count() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.count
}

// Finalize divides the cumulative session timings by the example count.
// loadTime is the measured model load; when zero the runtime's t_load_ms is used.
func (a *Aggregator) Finalize(loadTime time.Duration, t llm.Timings) (BenchmarkMetrics, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.count == 0 {
		return BenchmarkMetrics{}, ErrNoValidData
	}
	n := float64(a.count)
	perExampleSeconds := func(ms float64) float64 { return ms / (n * 1000) }

	load := loadTime.Seconds()
	if load == 0 {
		load = t.LoadMs / 1000
	}

	return BenchmarkMetrics{
		ModelLoadTime:            load,
		Count:                    a.count,
		AveragePromptTokens:      float64(t.PromptEvalN) / n,
		AveragePromptTime:        perExampleSeconds(t.PromptEvalMs),
		AveragePromptTokenPerSec: tokensPerSecond(t.PromptEvalMs, t.PromptEvalN),
		AverageSampleTime:        perExampleSeconds(t.SampleMs),
		SampleTPS:                tokensPerSecond(t.SampleMs, t.SampleN),
		AverageEvalTokens:        float64(t.EvalN) / n,
		AverageEvalTime:          perExampleSeconds(t.EvalMs),
		AverageEvalTokenPerSec:   tokensPerSecond(t.EvalMs, t.EvalN),
		AverageTotalTime:         perExampleSeconds(t.EndMs - t.StartMs),
		AverageMetric1:           a.metric1 / n,
		AverageMetric2:           a.metric2 / n,
		Latency:                  a.latency,
	}, nil
}

// tokensPerSecond uses cumulative time and count so per-example rounding does
// not compound.
func tokensPerSecond(ms float64, tokens int) float64 {
	if ms <= 0 {
		return 0
	}
	return 1e3 / ms * float64(tokens)
}

// updateRunningStat updates a single running statistic using Welford's online algorithm.
func updateRunningStat(rs *RunningStat, value float64) {
	rs.Count++
	if rs.Count == 1 {
		rs.Min = value
		rs.Max = value
	} else {
		if value < rs.Min {
			rs.Min = value
		}
		if value > rs.Max {
			rs.Max = value
		}
	}

	delta := value - rs.Mean
	rs.Mean += delta / float64(rs.Count)
	delta2 := value - rs.Mean
	rs.M2 += delta * delta2
}
