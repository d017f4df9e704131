// internal/metrics/types.go
package metrics

import "math"

// BenchmarkMetrics is the run-level summary persisted with each run. Times are
// seconds; token counts are per-example averages.
type BenchmarkMetrics struct {
	ModelLoadTime            float64 `json:"model_load_time"`
	Count                    int     `json:"count"`
	AveragePromptTokens      float64 `json:"averagePromptTokens"`
	AveragePromptTime        float64 `json:"averagePromptTime"`
	AveragePromptTokenPerSec float64 `json:"averagePromptTokenPerSec"`
	AverageSampleTime        float64 `json:"averageSampleTime"`
	SampleTPS                float64 `json:"sampleTPS"`
	AverageEvalTokens        float64 `json:"averageEvalTokens"`
	AverageEvalTime          float64 `json:"averageEvalTime"`
	AverageEvalTokenPerSec   float64 `json:"averageEvalTokenPerSec"`
	AverageTotalTime         float64 `json:"averageTotalTime"`

	AverageMetric1 float64     `json:"averageMetric1"`
	AverageMetric2 float64     `json:"averageMetric2"`
	Latency        RunningStat `json:"latency"`
}

// ExampleStat is what the aggregator needs from one finished example.
type ExampleStat struct {
	DurationMs float64
	Metric1    float64
	Metric2    float64
}

// RunningStat holds the necessary values for online calculation of mean, variance, and stddev.
type RunningStat struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	M2    float64 `json:"-"` // Sum of squares of differences from the current mean
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// StdDev returns the sample standard deviation, or 0 with fewer than two values.
func (rs RunningStat) StdDev() float64 {
	if rs.Count < 2 {
		return 0
	}
	return math.Sqrt(rs.M2 / float64(rs.Count-1))
}
