package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// newStopCmd creates the "mococo stop" subcommand.
func newStopCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running scheduler",
		Long:  "Sends SIGTERM to the scheduler process. In-flight dispatches get a\ndrain window before the process exits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return fmt.Errorf("resolve paths: %w", err)
			}

			status, pid, err := DaemonStatus(paths.PIDPath)
			if err != nil {
				return err
			}

			switch status {
			case StatusStopped:
				fmt.Fprintln(cmd.OutOrStdout(), "scheduler is not running")
				return nil
			case StatusStale:
				fmt.Fprintln(cmd.OutOrStdout(), "removing stale PID file (process already dead)")
				return RemovePIDFile(paths.PIDPath)
			case StatusRunning:
				if !force && !confirmStop(cmd, pid) {
					fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sending SIGTERM to scheduler (PID %d)\n", pid)
				if err := StopDaemon(paths.PIDPath); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "stop signal sent")
				return nil
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "stop without confirmation")
	return cmd
}

// confirmStop prompts on an interactive terminal. Non-interactive callers
// (scripts, pipes) proceed without a prompt.
func confirmStop(cmd *cobra.Command, pid int) bool {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return true
	}
	fmt.Fprintf(cmd.OutOrStdout(), "stop scheduler (PID %d)? [y/N] ", pid)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
