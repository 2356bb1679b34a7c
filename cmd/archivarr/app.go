package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mescon/Archivarr/internal/clock"
	"github.com/mescon/Archivarr/internal/config"
	"github.com/mescon/Archivarr/internal/domain"
	"github.com/mescon/Archivarr/internal/eventbus"
	"github.com/mescon/Archivarr/internal/integration"
	"github.com/mescon/Archivarr/internal/logger"
	"github.com/mescon/Archivarr/internal/metrics"
	"github.com/mescon/Archivarr/internal/notifier"
	"github.com/mescon/Archivarr/internal/report"
	"github.com/mescon/Archivarr/internal/services"
)

// outputOptions are the end-of-run outputs shared by every run command.
type outputOptions struct {
	reportPath  string
	metricsPath string
	notifyURL   string
}

// addRunFlags registers the flags shared by reconcile and migrate.
func addRunFlags(cmd *cobra.Command, out *outputOptions) {
	cmd.Flags().Bool("live", false, "Apply changes. Without it the run is a dry run (env: ARCHIVARR_LIVE)")
	cmd.Flags().Int("window", 10, "Items processed concurrently (env: ARCHIVARR_WINDOW)")
	cmd.Flags().StringVar(&out.reportPath, "report", "", "Write the run report to this file, YAML for .yaml/.yml and JSON otherwise")
	cmd.Flags().StringVar(&out.metricsPath, "metrics-file", "", "Write Prometheus metrics in textfile format to this file")
	cmd.Flags().StringVar(&out.notifyURL, "notify-url", "", "shoutrrr URL or http(s) webhook that receives the run summary")
}

// app holds everything one run command wires together.
type app struct {
	cfg      *config.Config
	client   *integration.HTTPVaultClient
	mounts   *integration.MountFS
	bus      *eventbus.EventBus
	metrics  *metrics.MetricsService
	notifier *notifier.Notifier
	capture  *report.Capture
	out      outputOptions
}

// newApp loads the configuration and builds the API client, the mount
// filesystem and the event consumers. Any error is a precondition failure.
func newApp(cmd *cobra.Command, out outputOptions) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	notify, err := notifier.New(out.notifyURL)
	if err != nil {
		return nil, err
	}

	requester, err := integration.NewHTTPRequester(cfg, clock.NewRealClock())
	if err != nil {
		return nil, err
	}

	bus := eventbus.NewEventBus()
	metricsService := metrics.NewMetricsService(bus)
	metricsService.Start()
	requester.OnFailure = func(method, path string, err error) {
		metricsService.RecordAPIError()
	}

	mode := domain.ModeDryRun
	if cfg.Live {
		mode = domain.ModeLive
	}
	logger.Infof("Archivarr %s (%s, window %d)", config.Version, mode, cfg.Window)

	return &app{
		cfg:      cfg,
		client:   integration.NewVaultClient(requester, cfg.PageSize),
		mounts:   integration.NewMountFS(afero.NewOsFs()),
		bus:      bus,
		metrics:  metricsService,
		notifier: notify,
		capture:  report.StartCapture(),
		out:      out,
	}, nil
}

func (a *app) newRun() *services.Run {
	return services.NewRun(a.client, a.mounts, a.bus, clock.NewRealClock(), a.cfg)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// abort releases the app after a precondition failure. No report is produced.
func (a *app) abort() {
	a.bus.Shutdown()
	a.capture.Stop()
	_ = logger.Close()
}

// finish drains the event bus and writes every requested output. Output
// failures are logged and never change the outcome of the run.
func (a *app) finish(cmd *cobra.Command, r *domain.RunReport) {
	if r == nil {
		a.abort()
		return
	}
	a.bus.Shutdown()
	r.Warnings = a.capture.Stop()

	if err := report.PrintSummary(cmd.OutOrStdout(), r); err != nil {
		logger.Errorf("Failed to print summary: %v", err)
	}
	if a.out.reportPath != "" {
		if err := report.Write(afero.NewOsFs(), a.out.reportPath, r); err != nil {
			logger.Errorf("%v", err)
		} else {
			logger.Infof("Report written to %s", a.out.reportPath)
		}
	}
	if a.out.metricsPath != "" {
		if err := a.metrics.WriteTextfile(a.out.metricsPath); err != nil {
			logger.Errorf("%v", err)
		}
	}
	if err := a.notifier.NotifyRun(r); err != nil {
		logger.Warnf("Run notification was not delivered")
	}
	_ = logger.Close()
}

// resolveStorage looks a storage up by id or by exact name. An unknown storage
// is a precondition failure.
func resolveStorage(ctx context.Context, client integration.VaultClient, id, name string) (*domain.Storage, error) {
	switch {
	case id != "":
		storage, err := client.GetStorage(ctx, id)
		if err != nil {
			if integration.IsNotFound(err) {
				return nil, fmt.Errorf("%w: id %q", integration.ErrStorageNotFound, id)
			}
			return nil, fmt.Errorf("failed to look up storage %q: %w", id, err)
		}
		return storage, nil
	case name != "":
		storage, err := client.FindStorageByName(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to look up storage: %w", err)
		}
		return storage, nil
	default:
		return nil, fmt.Errorf("a destination storage is required (--dest-storage-id or --dest-storage)")
	}
}
