package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"parley/internal/api"
)

func newDeadLetterCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deadletter",
		Aliases: []string{"dl"},
		Short:   "Inspect and manage preserved transcription failures",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newDeadLetterListCommand(ctx))
	cmd.AddCommand(newDeadLetterRetryCommand(ctx))
	cmd.AddCommand(newDeadLetterDeleteCommand(ctx))
	cmd.AddCommand(newDeadLetterClearCommand(ctx))
	return cmd
}

func newDeadLetterListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List preserved failures, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			entries, err := client.listDeadLetters(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No preserved failures.")
				return nil
			}

			if isatty.IsTerminal(os.Stdout.Fd()) {
				fmt.Fprintln(out, deadLetterTable(entries))
				return nil
			}

			for _, e := range entries {
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%d\n",
					e.ID, e.AudioFileName, e.ErrorKind,
					e.RecordedAt.UTC().Format(time.RFC3339), e.RetryCount)
			}
			return nil
		},
	}
}

func newDeadLetterRetryCommand(ctx *commandContext) *cobra.Command {
	var model string

	cmd := &cobra.Command{
		Use:   "retry <entry-id>",
		Short: "Retry transcription of a preserved failure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if model != "" {
				if _, err := client.transcription(cmd.Context(), api.TranscriptionRequest{
					Action: api.ActionSetModel,
					Model:  model,
				}); err != nil {
					return fmt.Errorf("set model: %w", err)
				}
			}
			resp, err := client.transcription(cmd.Context(), api.TranscriptionRequest{
				Action:  api.ActionRetry,
				EntryID: args[0],
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Transcription)
			return nil
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "Set this client's default model before retrying")
	return cmd
}

func newDeadLetterDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <entry-id>",
		Short: "Delete one preserved failure and its audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.transcription(cmd.Context(), api.TranscriptionRequest{
				Action:  api.ActionDeleteOne,
				EntryID: args[0],
			})
			if err != nil {
				return err
			}
			if resp.DeletedCount == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Entry not found (already deleted?)")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Deleted.")
			return nil
		},
	}
}

func newDeadLetterClearCommand(ctx *commandContext) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all preserved failures for this client",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete all entries without --yes")
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.transcription(cmd.Context(), api.TranscriptionRequest{
				Action: api.ActionDeleteAll,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d entries.\n", resp.DeletedCount)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion of all entries")
	return cmd
}
