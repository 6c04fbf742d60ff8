package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and dead-letter counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.status(cmd.Context())
			if err != nil {
				return fmt.Errorf("daemon unreachable: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Daemon:         running (pid %d)\n", status.PID)
			fmt.Fprintf(out, "Database:       %s\n", status.DatabasePath)
			fmt.Fprintf(out, "Lock file:      %s\n", status.LockFilePath)
			fmt.Fprintf(out, "Retention:      %d days\n", status.RetentionDays)
			fmt.Fprintf(out, "Dead letters:   %d\n", status.DeadLetters)

			if len(status.ByKind) > 0 {
				kinds := make([]string, 0, len(status.ByKind))
				for kind := range status.ByKind {
					kinds = append(kinds, kind)
				}
				sort.Strings(kinds)
				for _, kind := range kinds {
					fmt.Fprintf(out, "  %-16s %d\n", kind, status.ByKind[kind])
				}
			}
			return nil
		},
	}
}
