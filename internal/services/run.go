package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/remeh/sizedwaitgroup"

	"github.com/mescon/Archivarr/internal/clock"
	"github.com/mescon/Archivarr/internal/config"
	"github.com/mescon/Archivarr/internal/domain"
	"github.com/mescon/Archivarr/internal/eventbus"
	"github.com/mescon/Archivarr/internal/integration"
	"github.com/mescon/Archivarr/internal/logger"
)

// processInWindows calls fn for every index in [0, n). Indices are started in
// windows of size window and each window is awaited before the next starts.
// A cancelled context stops before the next window.
func processInWindows(ctx context.Context, window, n int, fn func(i int)) {
	if window < 1 {
		window = 1
	}
	swg := sizedwaitgroup.New(window)
	for start := 0; start < n; start += window {
		if ctx.Err() != nil {
			return
		}
		end := min(start+window, n)
		for i := start; i < end; i++ {
			swg.Add()
			go func(i int) {
				defer swg.Done()
				fn(i)
			}(i)
		}
		swg.Wait()
	}
}

// Run owns the state of one pass: its id, mode and the storage cache shared
// by every item. Nothing outlives it.
type Run struct {
	ID   string
	Mode domain.Mode

	cfg      *config.Config
	client   integration.VaultClient
	fs       integration.FileSystem
	clock    clock.Clock
	events   RunEvents
	storages *StorageCache
}

// NewRun starts a run with a fresh id. The mode follows cfg.Live.
func NewRun(client integration.VaultClient, fs integration.FileSystem, eb eventbus.Publisher, clk clock.Clock, cfg *config.Config) *Run {
	id := uuid.New().String()
	mode := domain.ModeDryRun
	if cfg.Live {
		mode = domain.ModeLive
	}
	return &Run{
		ID:       id,
		Mode:     mode,
		cfg:      cfg,
		client:   client,
		fs:       fs,
		clock:    clk,
		events:   NewRunEvents(eb, id),
		storages: NewStorageCache(client),
	}
}

// ReconcileOptions configure a reconcile run.
type ReconcileOptions struct {
	RootIDs     []string
	MountRoot   string
	StorageName string
	// Fix applies the classification. Without it the run only reports.
	Fix bool
}

// Reconcile scans, classifies and, with Fix, remediates.
func (r *Run) Reconcile(ctx context.Context, opts ReconcileOptions) (*domain.RunReport, error) {
	report := r.begin(domain.CommandReconcile)

	scan, err := NewScannerService(r.client, r.events, r.clock, r.cfg).Scan(ctx, opts.RootIDs)
	if err != nil {
		return r.finish(report), err
	}
	report.FailedContainers = scan.FailedContainers

	classifier := NewClassifierService(r.client, r.fs, r.storages, r.events, ClassifierOptions{
		MountRoot:   opts.MountRoot,
		StorageName: opts.StorageName,
	})
	results := make([]domain.ClassificationResult, len(scan.Candidates))
	processInWindows(ctx, r.cfg.Window, len(scan.Candidates), func(i int) {
		results[i] = classifier.Classify(ctx, scan.Candidates[i])
	})
	if err := ctx.Err(); err != nil {
		return r.finish(report), err
	}
	report.Classifications = results

	if opts.Fix {
		report.Summary = NewRemediatorService(r.client, r.events, r.cfg.Window).Apply(ctx, results, r.Mode)
	} else {
		for _, res := range results {
			report.Summary.ByAction[res.Action]++
			if res.Action == domain.ActionStaleCache || res.Action == domain.ActionSkip {
				report.Summary.Skipped++
			}
		}
		logger.Infof("Classification only, no remediation requested")
	}
	report.Summary.Found = len(scan.Candidates)
	report.Summary.ScanErrors = len(scan.FailedContainers)

	return r.finish(report), nil
}

// MigrateOptions configure a migrate run. Assets come from scanning RootIDs
// plus the explicit AssetIDs.
type MigrateOptions struct {
	RootIDs       []string
	AssetIDs      []string
	SourceMount   string
	DestMount     string
	DestStorageID string
}

// Migrate moves every selected asset to the destination storage.
func (r *Run) Migrate(ctx context.Context, opts MigrateOptions) (*domain.RunReport, error) {
	if opts.DestStorageID == "" {
		return nil, errors.New("destination storage id is required")
	}
	report := r.begin(domain.CommandMigrate)

	var assetIDs []string
	seen := make(map[string]bool)
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			assetIDs = append(assetIDs, id)
		}
	}
	if len(opts.RootIDs) > 0 {
		scan, err := NewScannerService(r.client, r.events, r.clock, r.cfg).Scan(ctx, opts.RootIDs)
		if err != nil {
			return r.finish(report), err
		}
		report.FailedContainers = scan.FailedContainers
		report.Summary.ScanErrors = len(scan.FailedContainers)
		for _, c := range scan.Candidates {
			add(c.ID)
		}
	}
	for _, id := range opts.AssetIDs {
		add(id)
	}
	report.Summary.Found = len(assetIDs)

	migrator := NewMigratorService(r.client, r.fs, r.storages, r.events)
	migOpts := MigrationOptions{
		SourceMount:   opts.SourceMount,
		DestMount:     opts.DestMount,
		DestStorageID: opts.DestStorageID,
		Mode:          r.Mode,
	}
	results := make([]domain.MigrationResult, len(assetIDs))
	processInWindows(ctx, r.cfg.Window, len(assetIDs), func(i int) {
		results[i] = migrator.Migrate(ctx, assetIDs[i], migOpts)
	})
	report.Migrations = results

	for _, res := range results {
		switch {
		case res.Done:
			report.Summary.Migrated++
		case res.ItemID != "":
			report.Summary.Errors++
		}
	}

	return r.finish(report), ctx.Err()
}

func (r *Run) begin(command string) *domain.RunReport {
	logger.Infof("Run %s: %s started (%s)", r.ID, command, r.Mode)
	r.events.publish(domain.RunStarted, domain.AggregateRun, r.ID, map[string]interface{}{
		"command": command,
		"mode":    string(r.Mode),
	})
	return &domain.RunReport{
		Command:   command,
		Summary:   domain.NewSummary(r.ID, r.Mode),
		StartedAt: r.clock.Now(),
	}
}

func (r *Run) finish(report *domain.RunReport) *domain.RunReport {
	report.FinishedAt = r.clock.Now()
	s := report.Summary
	logger.Infof("Run %s: %s finished in %s: found %d, fixed %d, reset %d, migrated %d, skipped %d, errors %d",
		r.ID, report.Command, report.Duration(), s.Found, s.Fixed, s.Reset, s.Migrated, s.Skipped, s.Errors+s.ScanErrors)
	r.events.publish(domain.RunCompleted, domain.AggregateRun, r.ID, map[string]interface{}{
		"command":          report.Command,
		"duration_seconds": report.Duration().Seconds(),
		"found":            s.Found,
		"errors":           s.Errors,
	})
	return report
}
