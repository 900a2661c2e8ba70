package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mococo/pkg/roster"
)

// newWorkersCmd creates the "mococo workers" subcommand.
func newWorkersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workers",
		Short: "List the configured worker roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return fmt.Errorf("resolve paths: %w", err)
			}
			ros, err := roster.Load(paths.RosterPath)
			if err != nil {
				return fmt.Errorf("load roster: %w", err)
			}

			for _, w := range ros.Workers() {
				role := "worker"
				switch {
				case w.Human:
					role = "human"
				case w.Leader:
					role = "leader"
				}
				model := w.Model
				if model == "" {
					model = "-"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %-8s channel=%-12s model=%s\n",
					w.Name, role, w.Channel, model)
			}
			return nil
		},
	}
}
