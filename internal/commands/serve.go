package edgebench

import (
	"github.com/spf13/cobra"

	"github.com/mwiater/edgebench/internal/httpapi"
	"github.com/mwiater/edgebench/internal/logging"
	"github.com/mwiater/edgebench/internal/progress"
)

var serveAddr string

// serveCmd implements 'serve', which exposes the orchestrator over HTTP.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the control API",
	Long:  `The 'serve' command exposes run status, the work queue, persisted results and Prometheus metrics over HTTP, and accepts requests to start runs.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := newOrchestrator(progress.New(0))
		if err != nil {
			return err
		}
		cfg := GetConfig()
		addr := cfg.ListenAddr()
		if serveAddr != "" {
			addr = serveAddr
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		httpapi.SetLogger(logging.Component("http"))
		svc := httpapi.NewService(ctx, o)
		err = httpapi.ListenAndServe(ctx, addr, httpapi.NewMux(svc, cfg.CORSOrigins()))
		svc.Wait()
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides http.addr)")
	rootCmd.AddCommand(serveCmd)
}
