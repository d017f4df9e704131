package edgebench

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mwiater/edgebench/internal/benchmark"
	"github.com/mwiater/edgebench/internal/progress"
)

// runItemCmd implements 'run item', which benchmarks one model over the first
// n examples of one dataset.
var runItemCmd = &cobra.Command{
	Use:   "item <model> <dataset> <examples>",
	Short: "Run one model over one dataset",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		size, err := strconv.Atoi(args[2])
		if err != nil || size <= 0 {
			return fmt.Errorf("examples must be a positive integer, got %q", args[2])
		}
		it := benchmark.Item{Model: args[0], Dataset: args[1], Size: size}
		return withOrchestrator(cmd, func(o *benchmark.Orchestrator) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			rec, err := o.RunItem(ctx, it)
			if rec.ID != "" {
				printRecord(cmd.OutOrStdout(), rec)
			}
			return err
		})
	},
}

// runNextCmd implements 'run next', which runs the first pending queue item.
var runNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Run the next pending item of the work queue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(cmd, func(o *benchmark.Orchestrator) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			rec, err := o.RunNext(ctx)
			if errors.Is(err, benchmark.ErrQueueExhausted) {
				fmt.Fprintln(cmd.OutOrStdout(), "Work queue is empty: every item has a persisted run.")
				return nil
			}
			if rec.ID != "" {
				printRecord(cmd.OutOrStdout(), rec)
			}
			return err
		})
	},
}

// runAllCmd implements 'run all', which drains the work queue.
var runAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Run pending items until the work queue is empty",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrchestrator(cmd, func(o *benchmark.Orchestrator) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			recs, err := o.RunAll(ctx)
			for _, rec := range recs {
				printRecord(cmd.OutOrStdout(), rec)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Completed %d run(s).\n", len(recs))
			return err
		})
	},
}

func init() {
	runCmd.AddCommand(runItemCmd, runNextCmd, runAllCmd)
}

// withOrchestrator builds an orchestrator whose progress log is echoed to the
// command's stderr and passes it to fn.
func withOrchestrator(cmd *cobra.Command, fn func(*benchmark.Orchestrator) error) error {
	log := progress.New(0)
	cancel := log.Subscribe(progress.ConsoleSink(cmd.ErrOrStderr()))
	defer cancel()

	o, err := newOrchestrator(log)
	if err != nil {
		return err
	}
	return fn(o)
}

// printRecord writes a short summary of rec.
func printRecord(out io.Writer, rec benchmark.RunRecord) {
	fmt.Fprintf(out, "Run %s: %s over %s (%d examples)\n", rec.ID, rec.ModelName, rec.TaskType, rec.NumberOfExamples)
	if rec.Partial() {
		fmt.Fprintf(out, "  Status:       partial (%s)\n", rec.Error)
	} else {
		fmt.Fprintln(out, "  Status:       complete")
	}
	fmt.Fprintf(out, "  Results:      %d\n", len(rec.Results))
	if bm := rec.BenchmarkMetrics; bm != nil {
		fmt.Fprintf(out, "  Metric 1:     %.4f\n", bm.AverageMetric1)
		fmt.Fprintf(out, "  Metric 2:     %.4f\n", bm.AverageMetric2)
		fmt.Fprintf(out, "  Eval tok/s:   %.2f\n", bm.AverageEvalTokenPerSec)
		fmt.Fprintf(out, "  Prompt tok/s: %.2f\n", bm.AveragePromptTokenPerSec)
	}
}
