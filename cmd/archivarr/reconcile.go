package main

import (
	"github.com/spf13/cobra"

	"github.com/mescon/Archivarr/internal/logger"
	"github.com/mescon/Archivarr/internal/services"
)

func newReconcileCmd() *cobra.Command {
	var (
		out     outputOptions
		mount   string
		storage string
		fix     bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile <collection-id>...",
		Short: "Classify every asset under the given collections and optionally fix its archive status",
		Long: `Walks the given collections, classifies every asset that is not marked archived
against its file records and the archive mount, and with --fix applies the
resulting action: fix_metadata marks the asset archived, reset_failed puts a
stuck asset back to not archived. stale_cache and skip are reported only.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, out)
			if err != nil {
				return err
			}
			if err := a.mounts.CheckMount(mount); err != nil {
				a.abort()
				return err
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			if storage != "" {
				if _, err := a.client.FindStorageByName(ctx, storage); err != nil {
					a.abort()
					return err
				}
			}

			logger.Infof("Reconciling %d collection(s) against %s", len(args), mount)
			r, runErr := a.newRun().Reconcile(ctx, services.ReconcileOptions{
				RootIDs:     args,
				MountRoot:   mount,
				StorageName: storage,
				Fix:         fix,
			})
			a.finish(cmd, r)
			return runErr
		},
	}

	cmd.Flags().StringVar(&mount, "mount", "", "Local mount of the archive storage")
	cmd.Flags().StringVar(&storage, "storage", "", "Only count placements on the archive storage with this exact name")
	cmd.Flags().BoolVar(&fix, "fix", false, "Apply the classification. Without it the run only reports")
	addRunFlags(cmd, &out)

	return cmd
}
