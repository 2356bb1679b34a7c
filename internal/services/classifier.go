package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/mescon/Archivarr/internal/domain"
	"github.com/mescon/Archivarr/internal/integration"
	"github.com/mescon/Archivarr/internal/logger"
)

// ClassifierOptions select which placements count as being on target.
type ClassifierOptions struct {
	// MountRoot is where the archive storage is mounted locally.
	MountRoot string
	// StorageName restricts target placements to one archive storage, by exact name.
	StorageName string
}

// ClassifierService turns candidates into classification results.
//
// AuthoritativeRecordWins: the asset record fetched by id is trusted over the
// collection listing. An ARCHIVED record classifies as stale_cache no matter
// what the placements or the mount say. This is an assumption about how the
// remote system's search index lags, not a guarantee it gives.
type ClassifierService struct {
	client   integration.VaultClient
	fs       integration.FileSystem
	storages *StorageCache
	events   RunEvents
	opts     ClassifierOptions
}

func NewClassifierService(client integration.VaultClient, fs integration.FileSystem, storages *StorageCache, events RunEvents, opts ClassifierOptions) *ClassifierService {
	return &ClassifierService{
		client:   client,
		fs:       fs,
		storages: storages,
		events:   events,
		opts:     opts,
	}
}

// Classify gathers evidence for one candidate and decides its action.
// The container-observed status is carried along but never consulted.
func (c *ClassifierService) Classify(ctx context.Context, item domain.CandidateItem) domain.ClassificationResult {
	result := domain.ClassificationResult{Item: item}

	asset, err := c.client.GetAsset(ctx, item.ID)
	if err != nil {
		result.Evidence.FetchError = err.Error()
		result.Action = domain.Decide(result.Evidence)
		logger.Warnf("Classify %s: %s, skipping: %v", item.ID, domain.EvidenceFetchError, err)
		c.publish(result)
		return result
	}
	result.Evidence.AuthoritativeStatus = asset.ArchiveStatus

	if asset.ArchiveStatus == domain.StatusArchived {
		result.Action = domain.Decide(result.Evidence)
		logger.Infof("Classify %s: record is %s, listing said %s (stale cache)",
			item.ID, asset.ArchiveStatus, item.ContainerObservedStatus)
		c.publish(result)
		return result
	}

	c.gatherPlacements(ctx, &result)
	c.gatherComponents(ctx, &result)
	result.Action = domain.Decide(result.Evidence)

	if result.Evidence.Partial {
		logger.Warnf("Classify %s: partial classification as %s (%s)",
			item.ID, result.Action, strings.Join(result.Evidence.PartialReasons, "; "))
	} else {
		logger.Infof("Classify %s: %s (status %s, on archive: %v, on mount: %v, placements: %s)",
			item.ID, result.Action, asset.ArchiveStatus, result.Evidence.OnArchiveStorage,
			result.Evidence.ArchiveFileExists, placementSummary(result.Evidence.Placements))
	}

	c.publish(result)
	return result
}

func (c *ClassifierService) gatherPlacements(ctx context.Context, result *domain.ClassificationResult) {
	ev := &result.Evidence

	files, err := c.client.ListPlacements(ctx, result.Item.ID)
	if err != nil {
		ev.AddPartial(fmt.Sprintf("files: %v", err))
		return
	}

	unresolved := make(map[string]bool)
	for _, f := range files {
		p := domain.PlacementEvidence{FileID: f.ID, Status: f.Status, StorageName: "unknown", StoragePurpose: "unknown"}

		storage, ok := c.storages.Get(ctx, f.StorageID)
		if !ok {
			if !unresolved[f.StorageID] {
				unresolved[f.StorageID] = true
				ev.AddPartial(fmt.Sprintf("storage %s unresolved", f.StorageID))
			}
			ev.Placements = append(ev.Placements, p)
			continue
		}
		p.StorageName = storage.Name
		p.StoragePurpose = string(storage.Purpose)
		p.OnTarget = c.isTarget(storage)

		if p.OnTarget {
			ev.OnArchiveStorage = true
			path := integration.MountPath(c.opts.MountRoot, f.DirectoryPath, f.Name)
			info, err := c.fs.Stat(path)
			switch {
			case err != nil:
				ev.AddPartial(fmt.Sprintf("mount stat %s: %v", path, err))
			case info.Exists:
				p.ExistsOnMount = true
				ev.ArchiveFileExists = true
				if f.Status == domain.FileMissing {
					result.PendingFiles = append(result.PendingFiles, f.ID)
				}
			}
		}
		ev.Placements = append(ev.Placements, p)
	}
}

func (c *ClassifierService) isTarget(s *domain.Storage) bool {
	if !s.IsArchive() {
		return false
	}
	return c.opts.StorageName == "" || s.Name == c.opts.StorageName
}

func (c *ClassifierService) gatherComponents(ctx context.Context, result *domain.ClassificationResult) {
	formats, err := c.client.ListFormats(ctx, result.Item.ID)
	if err != nil {
		result.Evidence.AddPartial(fmt.Sprintf("components: %v", err))
		return
	}
	for _, f := range formats {
		if f.ArchiveStatus != domain.StatusArchived {
			result.PendingComponents = append(result.PendingComponents, f.ID)
		}
	}
}

func (c *ClassifierService) publish(result domain.ClassificationResult) {
	c.events.publish(domain.ItemClassified, domain.AggregateAsset, result.Item.ID, map[string]interface{}{
		"action":  string(result.Action),
		"partial": result.Evidence.Partial,
	})
}

func placementSummary(placements []domain.PlacementEvidence) string {
	if len(placements) == 0 {
		return "none"
	}
	parts := make([]string, len(placements))
	for i, p := range placements {
		parts[i] = p.String()
	}
	return strings.Join(parts, ", ")
}
