package appconfig

import (
	"fmt"
	"io"

	"github.com/k0kubun/pp"
)

// ShowConfig prints the current configuration summary. With verbose set the
// generation policy is dumped in full.
func ShowConfig(out io.Writer, file string, cfg *Config, verbose bool) {
	if file == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", file)
	}
	if cfg == nil {
		fmt.Fprintln(out, "Configuration is not initialized.")
		return
	}

	gen := cfg.GenerationConfig()
	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintf(out, "  Debug:            %v\n", cfg.Debug)
	fmt.Fprintf(out, "  Log Level:        %s\n", cfg.LogLevelName())
	fmt.Fprintf(out, "  Log File:         %s\n", cfg.LogFilePath())
	fmt.Fprintf(out, "  Backend:          %s\n", cfg.BackendName())
	fmt.Fprintf(out, "  Models Dir:       %s\n", cfg.ModelsPath())
	fmt.Fprintf(out, "  Datasets Dir:     %s\n", cfg.DatasetsPath())
	fmt.Fprintf(out, "  Results Store:    %s\n", cfg.StorePath())
	fmt.Fprintf(out, "  Queue Tiers:      %v\n", cfg.QueueTiers())
	fmt.Fprintf(out, "  Monitor Interval: %s\n", cfg.MonitorInterval())
	fmt.Fprintf(out, "  Context Size:     %d\n", gen.ContextSize)
	fmt.Fprintf(out, "  Batch Size:       %d\n", gen.BatchSize)
	fmt.Fprintf(out, "  Predict Tokens:   %d\n", gen.PredictTokens)
	fmt.Fprintf(out, "  Threads:          %d\n", gen.Threads)
	fmt.Fprintf(out, "  Listen Address:   %s\n", cfg.ListenAddr())

	if verbose {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Generation policy:")
		pp.Fprintln(out, gen)
	}
}
