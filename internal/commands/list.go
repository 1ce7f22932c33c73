package kernelbench

import (
	"fmt"

	"github.com/mwiater/kernelbench/internal/engine"
	"github.com/spf13/cobra"
)

// listCmd groups the list subcommands.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List workloads or backends",
}

// listWorkloadsCmd implements 'list workloads'.
var listWorkloadsCmd = &cobra.Command{
	Use:   "workloads",
	Short: "List the registered workloads",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range newRegistry().Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

// listBackendsCmd implements 'list backends', marking the configured one.
var listBackendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List the engine backends",
	Run: func(cmd *cobra.Command, args []string) {
		active := GetConfig().BackendName()
		for _, name := range engine.New().Backends() {
			marker := " "
			if name == active {
				marker = "*"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
		}
	},
}

func init() {
	listCmd.AddCommand(listWorkloadsCmd)
	listCmd.AddCommand(listBackendsCmd)
	rootCmd.AddCommand(listCmd)
}
