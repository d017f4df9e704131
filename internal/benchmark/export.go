package benchmark

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatCSV  = "csv"
)

// ErrUnknownFormat is returned by Export for an unsupported format.
var ErrUnknownFormat = errors.New("unknown export format")

var csvHeader = []string{
	"id", "modelName", "taskType", "numberOfExamples", "startedAt", "durationSeconds",
	"count", "averageMetric1", "averageMetric2", "model_load_time",
	"averagePromptTokenPerSec", "averageEvalTokenPerSec", "averageTotalTime",
	"peakMemoryBytes", "error",
}

// Export writes runs to w. JSON and YAML carry full records with the store's
// key names; CSV carries one summary row per run.
func Export(w io.Writer, runs []RunRecord, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatJSON, "":
		data, err := encodeDocument(document{Tests: runs})
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case FormatYAML, "yml":
		return exportYAML(w, runs)
	case FormatCSV:
		return exportCSV(w, runs)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func exportYAML(w io.Writer, runs []RunRecord) error {
	raw, err := json.Marshal(document{Tests: runs})
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic map[string]any
	if err := dec.Decode(&generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(yamlNumbers(generic)); err != nil {
		return err
	}
	return enc.Close()
}

// yamlNumbers replaces json.Number values, which yaml would quote, with int64 or float64.
func yamlNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = yamlNumbers(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = yamlNumbers(val)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}

func exportCSV(w io.Writer, runs []RunRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range runs {
		row := []string{
			r.ID, r.ModelName, r.TaskType, strconv.Itoa(r.NumberOfExamples),
			r.StartedAt.Time().UTC().Format(time.RFC3339), formatFloat(r.Duration().Seconds()),
		}
		if bm := r.BenchmarkMetrics; bm != nil {
			row = append(row,
				strconv.Itoa(bm.Count), formatFloat(bm.AverageMetric1), formatFloat(bm.AverageMetric2),
				formatFloat(bm.ModelLoadTime), formatFloat(bm.AveragePromptTokenPerSec),
				formatFloat(bm.AverageEvalTokenPerSec), formatFloat(bm.AverageTotalTime))
		} else {
			row = append(row, "0", "", "", "", "", "", "")
		}
		if u := r.ResourceUsage; u != nil {
			row = append(row, strconv.FormatUint(u.PeakMemoryBytes, 10))
		} else {
			row = append(row, "")
		}
		row = append(row, r.Error)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9_]+`)
	slugDashes  = regexp.MustCompile(`-+`)
)

// Slugify converts a string into a "slug" format,
// including replacing colons (:) with underscores (_).
func Slugify(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, ":", "_")
	s = slugInvalid.ReplaceAllString(s, "-")
	s = slugDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-_")
}

// ExportFileName is the default file name for an export of runs.
func ExportFileName(runs []RunRecord, format string) string {
	base := "bench-results"
	if len(runs) == 1 {
		base = Slugify(fmt.Sprintf("%s_%s_%d", runs[0].ModelName, runs[0].TaskType, runs[0].NumberOfExamples))
	}
	return base + "." + strings.ToLower(format)
}
