package kernelbench

import (
	"fmt"

	"github.com/mwiater/kernelbench/internal/benchmark"
	"github.com/mwiater/kernelbench/internal/logging"
	"github.com/spf13/cobra"
)

var (
	runFormat      string
	runDumpProfile bool
)

// runCmd implements 'run <workload>'.
var runCmd = &cobra.Command{
	Use:   "run <workload>",
	Short: "Warm up, measure and report one workload",
	Long: `Run switches the engine to the configured backend, initializes the workload when it
needs it, runs the warmup rounds, times the measured rounds and prints the kernel
breakdown of the final iteration, its memory use and the average iteration time.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *GetConfig()
		format, err := outputFormat(runFormat, cfg.JSONMode)
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
		out := cmd.OutOrStdout()

		var initReport *benchmark.InitReport
		if r.NeedsInit() {
			initReport, err = benchmark.InitializeAndWait(cmd.Context(), r)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), failedLine(describeError(err)))
				return err
			}
			if format == "table" {
				fmt.Fprintln(out, successLine(fmt.Sprintf("✔ %s initialized in %.2f ms", r.Workload(), initReport.ElapsedMs)))
			}
		}

		report, err := benchmark.RunAndWait(cmd.Context(), r, runConfig(cfg))
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), failedLine(describeError(err)))
			return err
		}
		logging.LogEvent("run %s finished on %s: avg=%.3fms", report.Workload, report.Backend, report.AverageDurationMs)

		if err := printReport(out, format, report, initReport); err != nil {
			return err
		}
		if runDumpProfile {
			dumpProfile(out, report)
		}

		if dir := cfg.ExportDir(); dir != "" {
			path, err := benchmark.WriteReport(dir, report)
			if err != nil {
				return err
			}
			if format == "table" {
				fmt.Fprintln(out, successLine("✔ report written to "+path))
			}
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runFormat, "format", "table", "output format: table, json or yaml")
	runCmd.Flags().BoolVar(&runDumpProfile, "dump-profile", false, "pretty-print the raw profile of the final iteration")
	rootCmd.AddCommand(runCmd)
}
