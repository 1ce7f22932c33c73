package kernelbench

import (
	"fmt"

	"github.com/mwiater/kernelbench/internal/benchmark"
	"github.com/mwiater/kernelbench/internal/tui"
	"github.com/spf13/cobra"
)

var initFormat string

// initWorkloadCmd implements 'init <workload>', which times model setup only.
var initWorkloadCmd = &cobra.Command{
	Use:   "init <workload>",
	Short: "Time a workload's one-time initialization",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *GetConfig()
		format, err := outputFormat(initFormat, cfg.JSONMode)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg, args)
		if err != nil {
			return err
		}
		r, err := a.runner(args[0])
		if err != nil {
			return err
		}

		initReport, err := benchmark.InitializeAndWait(cmd.Context(), r)
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), failedLine(describeError(err)))
			return err
		}
		if format == "table" {
			fmt.Fprintln(cmd.OutOrStdout(), tui.RenderInit(initReport))
			return nil
		}
		return printValue(cmd.OutOrStdout(), format, initReport)
	},
}

func init() {
	initWorkloadCmd.Flags().StringVar(&initFormat, "format", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(initWorkloadCmd)
}
