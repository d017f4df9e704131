// internal/accuracy/types.go
package accuracy

// Scores holds the two quality values recorded for one example. Their meaning
// depends on the dataset category; see MetricNames.
type Scores struct {
	Metric1 float64 `json:"metric1"`
	Metric2 float64 `json:"metric2"`
}
