package edgebench

import "github.com/spf13/cobra"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run benchmark items",
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the work queue",
}

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Browse, export and prune persisted runs",
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect the model catalog",
}

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "Inspect the dataset catalog",
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List application metadata",
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show application settings",
}

func init() {
	rootCmd.AddCommand(runCmd, queueCmd, resultsCmd, modelsCmd, datasetsCmd, listCmd, showCmd)
}
