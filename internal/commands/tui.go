package kernelbench

import (
	"github.com/mwiater/kernelbench/internal/logging"
	"github.com/mwiater/kernelbench/internal/tui"
	"github.com/spf13/cobra"
)

// tuiCmd implements 'tui', the interactive workload runner.
var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Pick and run workloads interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *GetConfig()
		// the alt screen owns stdout; keep logs in the file only
		if err := logging.Init(cfg.LogFilePath(), false); err != nil {
			return err
		}

		progress := tui.NewProgress()
		a, err := newApp(cmd.Context(), cfg, nil, progress)
		if err != nil {
			return err
		}
		return tui.Start(cmd.Context(), a.runners, runConfig(cfg), a.engine.Backend, progress)
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
