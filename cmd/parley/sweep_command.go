package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"parley/internal/blobstore"
	"parley/internal/deadletter"
	"parley/internal/logging"
	"parley/internal/notifications"
	"parley/internal/retention"
)

// newSweepCommand runs a single retention sweep against the local store,
// without going through the daemon.
func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one retention sweep over expired dead letters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			store, err := deadletter.Open(cfg)
			if err != nil {
				return fmt.Errorf("open dead-letter store: %w", err)
			}
			defer store.Close()

			blobs, err := blobstore.Open(filepath.Join(cfg.Paths.DataDir, "blobs"))
			if err != nil {
				return fmt.Errorf("open blob store: %w", err)
			}

			sweeper := retention.New(cfg, store, blobs, notifications.NewService(cfg), logging.NewNop())
			summary, err := sweeper.Sweep(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if summary.Examined == 0 {
				fmt.Fprintln(out, "Nothing to sweep.")
				return nil
			}
			fmt.Fprintf(out, "Swept %d of %d expired entries across %d owners in %s.\n",
				summary.Swept, summary.Examined, summary.Owners, summary.Duration.Round(time.Millisecond))
			if summary.Failed > 0 {
				fmt.Fprintf(out, "%d entries could not be removed; see daemon logs.\n", summary.Failed)
			}
			return nil
		},
	}
}
