package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mescon/Archivarr/internal/logger"
	"github.com/mescon/Archivarr/internal/services"
)

// errMountsOverlap means the source and destination mounts are the same
// directory or one contains the other. Retiring the source would then delete
// the only copy.
var errMountsOverlap = errors.New("source and destination mounts overlap")

func newMigrateCmd() *cobra.Command {
	var (
		out           outputOptions
		assets        []string
		sourceMount   string
		destMount     string
		destStorageID string
		destStorage   string
	)

	cmd := &cobra.Command{
		Use:   "migrate [<collection-id>...]",
		Short: "Move assets to another storage and retire their source copies",
		Long: `Migrates every asset under the given collections plus every --asset to the
destination storage: the file is copied from the source mount when the
destination mount does not have it yet, the destination records are created,
the asset is marked archived and the source file sets and files are retired.
Re-running a migration only performs the steps that are still missing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(assets) == 0 {
				return errors.New("at least one collection id or --asset is required")
			}

			a, err := newApp(cmd, out)
			if err != nil {
				return err
			}
			for _, mount := range []string{sourceMount, destMount} {
				if err := a.mounts.CheckMount(mount); err != nil {
					a.abort()
					return err
				}
			}
			if err := checkDistinctMounts(sourceMount, destMount); err != nil {
				a.abort()
				return err
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			dest, err := resolveStorage(ctx, a.client, destStorageID, destStorage)
			if err != nil {
				a.abort()
				return err
			}

			logger.Infof("Migrating to storage %s (%s) from %s to %s", dest.Name, dest.ID, sourceMount, destMount)
			r, runErr := a.newRun().Migrate(ctx, services.MigrateOptions{
				RootIDs:       args,
				AssetIDs:      assets,
				SourceMount:   sourceMount,
				DestMount:     destMount,
				DestStorageID: dest.ID,
			})
			a.finish(cmd, r)
			return runErr
		},
	}

	cmd.Flags().StringArrayVar(&assets, "asset", nil, "Asset id to migrate, repeatable")
	cmd.Flags().StringVar(&sourceMount, "source-mount", "", "Local mount of the storage the assets are on")
	cmd.Flags().StringVar(&destMount, "dest-mount", "", "Local mount of the destination storage")
	cmd.Flags().StringVar(&destStorageID, "dest-storage-id", "", "Destination storage id")
	cmd.Flags().StringVar(&destStorage, "dest-storage", "", "Destination storage name, resolved by exact match")
	cmd.MarkFlagsMutuallyExclusive("dest-storage-id", "dest-storage")
	addRunFlags(cmd, &out)

	return cmd
}

// checkDistinctMounts fails when source and dest resolve to the same directory
// or one is nested in the other. Symlinks are resolved first.
func checkDistinctMounts(source, dest string) error {
	src, err := resolveDir(source)
	if err != nil {
		return err
	}
	dst, err := resolveDir(dest)
	if err != nil {
		return err
	}
	if isWithin(src, dst) || isWithin(dst, src) {
		return fmt.Errorf("%w: %s and %s", errMountsOverlap, source, dest)
	}
	return nil
}

func resolveDir(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return filepath.Clean(abs), nil
}

// isWithin reports whether child is parent or lies below it.
func isWithin(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
