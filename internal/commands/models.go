package edgebench

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mwiater/edgebench/internal/benchmark"
	"github.com/mwiater/edgebench/internal/catalog"
)

// modelsListCmd implements 'models list', which prints the catalog and
// whether each model's weights are present.
var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog models and their weights files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			return errNoConfig
		}
		dir := cfg.ModelsPath()
		width := 0
		for _, m := range catalog.Models {
			width = max(width, len(m.ID))
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Models in %s:\n", dir)
		for _, m := range catalog.Models {
			fmt.Fprintf(out, "  %-*s  %-15s  %-7s  %-6s  %s\n", width, m.ID, m.Family, m.Quantization, queuedLabel(m.Queued), presence(m.WeightsPath(dir)))
		}
		return nil
	},
}

// modelsCheckCmd implements 'models check', which fails when queued models
// have no weights file.
var modelsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report queued models whose weights are missing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			return errNoConfig
		}
		var missing []string
		for _, m := range catalog.QueuedModels() {
			if _, err := os.Stat(m.WeightsPath(cfg.ModelsPath())); err != nil {
				missing = append(missing, m.ID)
			}
		}
		if len(missing) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "All queued models have weights.")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Missing weights for %d queued model(s):\n  %s\n", len(missing), strings.Join(missing, "\n  "))
		return fmt.Errorf("%w: %d queued model(s)", benchmark.ErrModelNotFound, len(missing))
	},
}

// datasetsListCmd implements 'datasets list', which prints the catalog and
// the number of examples found for each dataset.
var datasetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog datasets and their example counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			return errNoConfig
		}
		dir := cfg.DatasetsPath()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Datasets in %s:\n", dir)
		for _, d := range catalog.Datasets {
			examples, err := benchmark.LoadDataset(dir, d)
			state := fmt.Sprintf("%d examples", len(examples))
			if err != nil {
				state = err.Error()
			}
			fmt.Fprintf(out, "  %-20s  %-16s  %-6s  %s\n", d.ID, d.Category, queuedLabel(d.Queued), state)
		}
		return nil
	},
}

func init() {
	modelsCmd.AddCommand(modelsListCmd, modelsCheckCmd)
	datasetsCmd.AddCommand(datasetsListCmd)
}

func queuedLabel(queued bool) string {
	if queued {
		return "queued"
	}
	return "-"
}

func presence(path string) string {
	if _, err := os.Stat(path); err != nil {
		return "missing"
	}
	return "present"
}
