package kernelbench

import (
	"context"
	"fmt"

	"github.com/mwiater/kernelbench/internal/appconfig"
	"github.com/mwiater/kernelbench/internal/benchmark"
	"github.com/spf13/cobra"
)

var (
	remoteEndpoint string
	remoteFormat   string
)

// remoteCmd groups commands that talk to a running 'serve' instance.
var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Drive a kernelbench server",
}

// remoteRunCmd implements 'remote run <workload>'.
var remoteRunCmd = &cobra.Command{
	Use:   "run <workload>",
	Short: "Run a workload on a kernelbench server and print its report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *GetConfig()
		format, err := outputFormat(remoteFormat, cfg.JSONMode)
		if err != nil {
			return err
		}

		warmup, epochs := cfg.WarmupRounds, cfg.EpochRounds
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RequestTimeout())
		defer cancel()

		report, err := benchmark.RunRemote(ctx, remoteEndpoint, benchmark.RemoteRequest{
			Workload:     args[0],
			WarmupRounds: &warmup,
			EpochRounds:  &epochs,
		})
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), failedLine(err.Error()))
			return err
		}
		return printReport(cmd.OutOrStdout(), format, report, nil)
	},
}

func init() {
	remoteRunCmd.Flags().StringVar(&remoteEndpoint, "endpoint", "http://"+appconfig.DefaultListenAddr, "base URL of the kernelbench server")
	remoteCmd.AddCommand(remoteRunCmd)
	rootCmd.AddCommand(remoteCmd)
}
