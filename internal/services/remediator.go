package services

import (
	"context"

	"github.com/mescon/Archivarr/internal/domain"
	"github.com/mescon/Archivarr/internal/integration"
	"github.com/mescon/Archivarr/internal/logger"
)

// Remediation sub-steps, as reported on RemediationStep events.
const (
	stepAssetStatus     = "asset_status"
	stepComponentStatus = "component_status"
	stepPlacementStatus = "placement_status"
)

// RemediatorService applies classification results. It makes no reads of its
// own, so a dry run and a live run read exactly the same things; only the
// writes differ.
type RemediatorService struct {
	client integration.VaultClient
	events RunEvents
	window int
}

func NewRemediatorService(client integration.VaultClient, events RunEvents, window int) *RemediatorService {
	return &RemediatorService{
		client: client,
		events: events,
		window: window,
	}
}

// Apply acts on fix_metadata and reset_failed results and reports the rest.
// Failures are counted per sub-step; nothing aborts the batch.
func (r *RemediatorService) Apply(ctx context.Context, results []domain.ClassificationResult, mode domain.Mode) domain.Summary {
	partial := make([]domain.Summary, len(results))
	processInWindows(ctx, r.window, len(results), func(i int) {
		partial[i] = r.ApplyOne(ctx, results[i], mode)
	})

	summary := domain.NewSummary(r.events.RunID(), mode)
	for _, s := range partial {
		summary.Merge(s)
	}
	logger.Infof("Remediation (%s): %d fixed, %d reset, %d skipped, %d error(s)",
		mode, summary.Fixed, summary.Reset, summary.Skipped, summary.Errors)
	return summary
}

// ApplyOne remediates a single result.
func (r *RemediatorService) ApplyOne(ctx context.Context, result domain.ClassificationResult, mode domain.Mode) domain.Summary {
	s := domain.Summary{ByAction: map[domain.Action]int{result.Action: 1}}
	id := result.Item.ID

	switch result.Action {
	case domain.ActionFixMetadata:
		errs := r.setAssetStatus(ctx, id, domain.StatusArchived, mode)
		errs += r.setComponentStatus(ctx, id, result.PendingComponents, domain.StatusArchived, mode)
		errs += r.closePlacements(ctx, id, result.PendingFiles, mode)
		s.Errors = errs
		if errs == 0 {
			s.Fixed = 1
		}
	case domain.ActionResetFailed:
		errs := r.setAssetStatus(ctx, id, domain.StatusNotArchived, mode)
		errs += r.setComponentStatus(ctx, id, result.PendingComponents, domain.StatusNotArchived, mode)
		s.Errors = errs
		if errs == 0 {
			s.Reset = 1
		}
	default:
		logger.Debugf("Remediate %s: %s, nothing to do", id, result.Action)
		s.Skipped = 1
	}
	return s
}

func (r *RemediatorService) setAssetStatus(ctx context.Context, assetID string, status domain.ArchiveStatus, mode domain.Mode) int {
	return r.write(stepAssetStatus, assetID, mode, func() error {
		return r.client.UpdateAssetStatus(ctx, assetID, status)
	}, "set asset %s archive status to %s", assetID, status)
}

func (r *RemediatorService) setComponentStatus(ctx context.Context, assetID string, formatIDs []string, status domain.ArchiveStatus, mode domain.Mode) int {
	errs := 0
	for _, formatID := range formatIDs {
		errs += r.write(stepComponentStatus, assetID, mode, func() error {
			return r.client.UpdateFormatStatus(ctx, assetID, formatID, status)
		}, "set format %s of asset %s archive status to %s", formatID, assetID, status)
	}
	return errs
}

func (r *RemediatorService) closePlacements(ctx context.Context, assetID string, fileIDs []string, mode domain.Mode) int {
	errs := 0
	for _, fileID := range fileIDs {
		errs += r.write(stepPlacementStatus, assetID, mode, func() error {
			return r.client.UpdateFileStatus(ctx, assetID, fileID, domain.FileClosed)
		}, "set file %s of asset %s status to %s", fileID, assetID, domain.FileClosed)
	}
	return errs
}

// write issues one sub-step write, or logs it in dry-run mode. It returns the
// number of errors (0 or 1).
func (r *RemediatorService) write(step, assetID string, mode domain.Mode, do func() error, format string, args ...interface{}) int {
	if !mode.IsLive() {
		logger.DryRunf(format, args...)
		r.events.step(domain.RemediationStep, assetID, step, domain.OutcomeWouldDo, 0, nil)
		return 0
	}

	if err := do(); err != nil {
		logger.Errorf("Remediate %s: %s failed: %v", assetID, step, err)
		r.events.step(domain.RemediationStep, assetID, step, domain.OutcomeFailed, 0, err)
		return 1
	}
	logger.Infof("Remediate %s: %s done", assetID, step)
	r.events.step(domain.RemediationStep, assetID, step, domain.OutcomeDone, 0, nil)
	return 0
}
