package kernelbench

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mwiater/kernelbench/internal/server"
	"github.com/spf13/cobra"
)

var serveListen string

// serveCmd implements 'serve', exposing every workload over HTTP.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the benchmark HTTP API",
	Long: `Serve starts an HTTP API for triggering runs, initializing workloads, switching the
engine backend and reading the latest reports. Prometheus metrics are served on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *GetConfig()
		addr := cfg.Listen()
		if cmd.Flags().Changed("listen") {
			addr = serveListen
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, nil)
		if err != nil {
			return err
		}
		s := server.New(a.engine, a.runners, runConfig(cfg),
			server.WithMetrics(a.recorder.Handler()),
			server.WithTimeout(cfg.RequestTimeout()),
		)
		return s.ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (overrides listenAddr)")
	rootCmd.AddCommand(serveCmd)
}
