package main

import (
	"fmt"

	"mococo/internal/appversion"

	"github.com/spf13/cobra"
)

// newRootCmd creates the root mococo command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mococo",
		Short:         "Mococo chat worker scheduler",
		Long:          "mococo dispatches AI chat workers, tracks dispatch chains,\nand follows up on requests that never got answered.",
		Version:       fmt.Sprintf("mococo %s", appversion.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddCommand(
		newRunCmd(),
		newStopCmd(),
		newStatusCmd(),
		newLogsCmd(),
		newWorkersCmd(),
	)

	return cmd
}
