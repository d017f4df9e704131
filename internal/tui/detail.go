package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mwiater/edgebench/internal/benchmark"
	"github.com/mwiater/edgebench/internal/util"
)

var (
	headerStyle = lipgloss.NewStyle().Background(lipgloss.Color("62")).Foreground(lipgloss.Color("230")).Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Width(22)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(1)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("229"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	goodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

// partialBadge marks runs that ended early.
func partialBadge() string {
	return lipgloss.NewStyle().Background(lipgloss.Color("9")).Foreground(lipgloss.Color("0")).Padding(0, 1).Render("partial")
}

const (
	outputPreview = 60
	outputIndent  = 5
)

func field(b *strings.Builder, label string, format string, args ...any) {
	b.WriteString(labelStyle.Render(label))
	b.WriteString(fmt.Sprintf(format, args...))
	b.WriteString("\n")
}

// renderDetail formats one run for a viewport width columns wide.
func renderDetail(run benchmark.RunRecord, width int) string {
	var b strings.Builder
	field(&b, "Model", "%s", run.ModelName)
	field(&b, "Dataset", "%s", run.TaskType)
	field(&b, "Examples", "%d", run.NumberOfExamples)
	field(&b, "Started", "%s", run.StartedAt.Time().Local().Format("2006-01-02 15:04:05"))
	field(&b, "Duration", "%s", run.Duration().Round(time.Millisecond))
	if run.Partial() {
		field(&b, "Error", "%s", failStyle.Render(run.Error))
	}

	if bm := run.BenchmarkMetrics; bm != nil {
		b.WriteString("\n")
		field(&b, "Model load", "%.3fs", bm.ModelLoadTime)
		field(&b, "Scored examples", "%d", bm.Count)
		field(&b, "Metric 1 (avg)", "%.4f", bm.AverageMetric1)
		field(&b, "Metric 2 (avg)", "%.4f", bm.AverageMetric2)
		field(&b, "Prompt tokens (avg)", "%.1f at %.1f tok/s", bm.AveragePromptTokens, bm.AveragePromptTokenPerSec)
		field(&b, "Eval tokens (avg)", "%.1f at %.1f tok/s", bm.AverageEvalTokens, bm.AverageEvalTokenPerSec)
		field(&b, "Total time (avg)", "%.3fs", bm.AverageTotalTime)
		field(&b, "Latency ms", "mean %.1f  sd %.1f  min %.1f  max %.1f", bm.Latency.Mean, bm.Latency.StdDev(), bm.Latency.Min, bm.Latency.Max)
	}
	if u := run.ResourceUsage; u != nil && u.Samples > 0 {
		b.WriteString("\n")
		field(&b, "CPU", "mean %.1f%%  peak %.1f%%", u.MeanCPU*100, u.PeakCPU*100)
		field(&b, "Memory", "mean %s  peak %s", formatBytes(u.MeanMemoryBytes), formatBytes(u.PeakMemoryBytes))
	}

	if len(run.Results) > 0 {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render("Examples"))
		b.WriteString("\n")
		for i, res := range run.Results {
			status := goodStyle.Render("ok")
			if res.Error != "" {
				status = failStyle.Render("error: " + res.Error)
			}
			b.WriteString(fmt.Sprintf("%3d  m1 %.3f  m2 %.3f  %7.0fms  %s\n", i+1, res.Metric1, res.Metric2, res.DurationMs, status))
			b.WriteString(fmt.Sprintf("     gold:   %s\n", util.Preview(res.GoldAnswer, outputPreview)))
			if res.Output != "" {
				b.WriteString(util.Indent(util.WrapToWidth(strings.TrimSpace(res.Output), max(width-outputIndent, 20)), strings.Repeat(" ", outputIndent)))
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
