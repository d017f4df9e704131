package edgebench

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mwiater/edgebench/internal/benchmark"
	"github.com/mwiater/edgebench/internal/catalog"
)

// queueNextCmd implements 'queue next', which prints the item 'run next' would pick.
var queueNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show the next pending item",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runs, tiers, err := queueState()
		if err != nil {
			return err
		}
		it, ok := benchmark.NextPending(runs, tiers, catalog.QueuedModels(), catalog.QueuedDatasets())
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Work queue is empty.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), it)
		return nil
	},
}

// queueListCmd implements 'queue list', which prints every pending item in order.
var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all pending items in queue order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runs, tiers, err := queueState()
		if err != nil {
			return err
		}
		items := benchmark.Pending(runs, tiers, catalog.QueuedModels(), catalog.QueuedDatasets())
		for _, it := range items {
			fmt.Fprintln(cmd.OutOrStdout(), it)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d pending item(s)\n", len(items))
		return nil
	},
}

func init() {
	queueCmd.AddCommand(queueNextCmd, queueListCmd)
}

func queueState() ([]benchmark.RunRecord, []int, error) {
	store, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	runs, err := store.Load()
	if err != nil {
		return nil, nil, err
	}
	return runs, GetConfig().QueueTiers(), nil
}
