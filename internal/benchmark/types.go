// internal/benchmark/types.go
package benchmark

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/mwiater/edgebench/internal/llm"
	"github.com/mwiater/edgebench/internal/metrics"
	"github.com/mwiater/edgebench/internal/monitor"
)

// Item identifies one unit of work: a model run over the first Size examples of a dataset.
type Item struct {
	Model   string `json:"model"`
	Dataset string `json:"dataset"`
	Size    int    `json:"size"`
}

func (i Item) String() string {
	return fmt.Sprintf("%s/%s/%d", i.Model, i.Dataset, i.Size)
}

// EpochTime is stored as fractional seconds since the Unix epoch.
type EpochTime time.Time

// NewEpochTime converts t.
func NewEpochTime(t time.Time) EpochTime { return EpochTime(t) }

// Time returns the value as a time.Time.
func (e EpochTime) Time() time.Time { return time.Time(e) }

// MarshalJSON implements json.Marshaler.
func (e EpochTime) MarshalJSON() ([]byte, error) {
	t := time.Time(e)
	if t.IsZero() {
		return []byte("0"), nil
	}
	secs := float64(t.UnixMicro()) / 1e6
	return strconv.AppendFloat(nil, secs, 'f', 6, 64), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *EpochTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*e = EpochTime{}
		return nil
	}
	secs, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("epoch time: %w", err)
	}
	if secs == 0 {
		*e = EpochTime{}
		return nil
	}
	whole, frac := math.Modf(secs)
	*e = EpochTime(time.Unix(int64(whole), int64(math.Round(frac*1e6))*1e3))
	return nil
}

// GenerationResult is the record of one example.
type GenerationResult struct {
	Prompt     string      `json:"prompt"`
	Output     string      `json:"output"`
	GoldAnswer string      `json:"gold_answer"`
	Timings    llm.Timings `json:"timings"`
	StartedAt  EpochTime   `json:"startedAt"`
	EndedAt    EpochTime   `json:"endedAt"`
	Metric1    float64     `json:"metric1"`
	Metric2    float64     `json:"metric2"`
	DurationMs float64     `json:"durationMs"`
	// Error is set when prefill or generation failed; the scores are then zero.
	Error string `json:"error,omitempty"`
}

// RunRecord is the persisted outcome of one Item.
type RunRecord struct {
	ID               string                    `json:"id"`
	ModelName        string                    `json:"modelName"`
	TaskType         string                    `json:"taskType"`
	NumberOfExamples int                       `json:"numberOfExamples"`
	Results          []GenerationResult        `json:"results"`
	StartedAt        EpochTime                 `json:"startedAt"`
	EndedAt          EpochTime                 `json:"endedAt"`
	Timings          *llm.Timings              `json:"timings,omitempty"`
	BenchmarkMetrics *metrics.BenchmarkMetrics `json:"benchmarkMetrics,omitempty"`
	ResourceUsage    *monitor.Usage            `json:"resourceUsage,omitempty"`
	// Error is set on runs that stopped early; such records are partial.
	Error string `json:"error,omitempty"`
}

// Item returns the work item the record answers.
func (r RunRecord) Item() Item {
	return Item{Model: r.ModelName, Dataset: r.TaskType, Size: r.NumberOfExamples}
}

// Partial reports whether the run ended before completing.
func (r RunRecord) Partial() bool { return r.Error != "" }

// Duration returns the wall time of the run.
func (r RunRecord) Duration() time.Duration {
	return r.EndedAt.Time().Sub(r.StartedAt.Time())
}

// timingsDelta returns the counters accumulated between prev and cur.
func timingsDelta(prev, cur llm.Timings) llm.Timings {
	return llm.Timings{
		StartMs:      prev.EndMs,
		EndMs:        cur.EndMs,
		LoadMs:       cur.LoadMs,
		PromptEvalMs: cur.PromptEvalMs - prev.PromptEvalMs,
		EvalMs:       cur.EvalMs - prev.EvalMs,
		PromptEvalN:  cur.PromptEvalN - prev.PromptEvalN,
		EvalN:        cur.EvalN - prev.EvalN,
		ReusedN:      cur.ReusedN - prev.ReusedN,
		SampleMs:     cur.SampleMs - prev.SampleMs,
		SampleN:      cur.SampleN - prev.SampleN,
	}
}

// addTimings adds the per-example delta d to sum. The wall span of d
// accumulates in EndMs; sum.StartMs stays zero.
func addTimings(sum, d llm.Timings) llm.Timings {
	sum.EndMs += d.EndMs - d.StartMs
	sum.PromptEvalMs += d.PromptEvalMs
	sum.EvalMs += d.EvalMs
	sum.PromptEvalN += d.PromptEvalN
	sum.EvalN += d.EvalN
	sum.ReusedN += d.ReusedN
	sum.SampleMs += d.SampleMs
	sum.SampleN += d.SampleN
	return sum
}

// timingsWithout removes the counters summed by addTimings from the
// cumulative snapshot total.
func timingsWithout(total, sum llm.Timings) llm.Timings {
	total.EndMs -= sum.EndMs
	total.PromptEvalMs -= sum.PromptEvalMs
	total.EvalMs -= sum.EvalMs
	total.PromptEvalN -= sum.PromptEvalN
	total.EvalN -= sum.EvalN
	total.ReusedN -= sum.ReusedN
	total.SampleMs -= sum.SampleMs
	total.SampleN -= sum.SampleN
	return total
}
