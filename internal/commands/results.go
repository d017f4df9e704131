package edgebench

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/mwiater/edgebench/internal/benchmark"
	"github.com/mwiater/edgebench/internal/tui"
)

var (
	exportFormat string
	exportOut    string
)

// browseResults is swapped in tests.
var browseResults = tui.Browse

// resultsListCmd implements 'results list', which renders every persisted run as a table.
var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runs, err := loadRuns()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), runsTable(runs))
		return nil
	},
}

// resultsShowCmd implements 'results show', which prints one run as JSON.
var resultsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one persisted run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		rec, err := store.Get(args[0])
		if err != nil {
			return err
		}
		raw, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(raw))
		return nil
	},
}

// resultsDeleteCmd implements 'results delete', which removes runs so the
// queue schedules their items again.
var resultsDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete persisted runs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		var errs []error
		for _, id := range args {
			if err := store.Delete(id); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", id)
		}
		return errors.Join(errs...)
	},
}

// resultsExportCmd implements 'results export'.
var resultsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export persisted runs as JSON, YAML or CSV",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runs, err := loadRuns()
		if err != nil {
			return err
		}
		if exportOut == "" {
			return benchmark.Export(cmd.OutOrStdout(), runs, exportFormat)
		}
		path := exportOut
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			path = filepath.Join(path, benchmark.ExportFileName(runs, exportFormat))
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := benchmark.Export(f, runs, exportFormat); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d run(s) to %s\n", len(runs), path)
		return nil
	},
}

// resultsBrowseCmd implements 'results browse', the interactive browser.
var resultsBrowseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse persisted runs interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		ctx, stop := signalContext(cmd.Context())
		defer stop()
		if err := browseResults(ctx, store); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return err
		}
		return nil
	},
}

func init() {
	resultsExportCmd.Flags().StringVarP(&exportFormat, "format", "f", benchmark.FormatJSON, "export format: json, yaml or csv")
	resultsExportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file or directory (default stdout)")
	resultsCmd.AddCommand(resultsListCmd, resultsShowCmd, resultsDeleteCmd, resultsExportCmd, resultsBrowseCmd)
}

func loadRuns() ([]benchmark.RunRecord, error) {
	store, err := openStore()
	if err != nil {
		return nil, err
	}
	return store.Load()
}

var (
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62")).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	tablePartial     = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("9"))
)

// runsTable renders runs in store order.
func runsTable(runs []benchmark.RunRecord) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "MODEL", "DATASET", "N", "SCORED", "METRIC1", "METRIC2", "EVAL TOK/S", "STATUS")
	for _, r := range runs {
		scored, m1, m2, tps := "-", "-", "-", "-"
		if bm := r.BenchmarkMetrics; bm != nil {
			scored = strconv.Itoa(bm.Count)
			m1 = strconv.FormatFloat(bm.AverageMetric1, 'f', 3, 64)
			m2 = strconv.FormatFloat(bm.AverageMetric2, 'f', 3, 64)
			tps = strconv.FormatFloat(bm.AverageEvalTokenPerSec, 'f', 1, 64)
		}
		status := "complete"
		if r.Partial() {
			status = "partial"
		}
		t.Row(r.ID, r.ModelName, r.TaskType, strconv.Itoa(r.NumberOfExamples), scored, m1, m2, tps, status)
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return tableHeaderStyle
		}
		if col == 8 && row >= 0 && row < len(runs) && runs[row].Partial() {
			return tablePartial
		}
		return tableCellStyle
	})
	return t.Render()
}
