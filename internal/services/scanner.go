package services

import (
	"context"
	"time"

	"github.com/mescon/Archivarr/internal/clock"
	"github.com/mescon/Archivarr/internal/config"
	"github.com/mescon/Archivarr/internal/domain"
	"github.com/mescon/Archivarr/internal/integration"
	"github.com/mescon/Archivarr/internal/logger"
)

// ScanResult is the flat, deduplicated output of one scan.
type ScanResult struct {
	Candidates       []domain.CandidateItem
	FailedContainers []string
	Pages            int
}

// ScannerService walks collection trees looking for assets the listing does
// not report as ARCHIVED. The listing can lag the asset record, so the scan
// over-reports on purpose and the classifier filters the false positives.
type ScannerService struct {
	client integration.VaultClient
	events RunEvents
	clock  clock.Clock

	pageSize   int
	pauseEvery int
	pagePause  time.Duration
	maxDepth   int
}

func NewScannerService(client integration.VaultClient, events RunEvents, clk clock.Clock, cfg *config.Config) *ScannerService {
	return &ScannerService{
		client:     client,
		events:     events,
		clock:      clk,
		pageSize:   cfg.PageSize,
		pauseEvery: cfg.PauseEveryPages,
		pagePause:  cfg.PagePause,
		maxDepth:   cfg.MaxDepth,
	}
}

// scanWalk is the state of one Scan call.
type scanWalk struct {
	visited map[string]int  // container -> shallowest depth entered at
	seen    map[string]bool // assets
	result  *ScanResult
}

// Scan walks every root depth-first. A container whose page fails is
// abandoned with its subtree and the walk carries on with its siblings.
// Only a cancelled context stops the scan early.
func (s *ScannerService) Scan(ctx context.Context, rootIDs []string) (*ScanResult, error) {
	w := &scanWalk{
		visited: make(map[string]int),
		seen:    make(map[string]bool),
		result:  &ScanResult{},
	}

	for _, id := range rootIDs {
		if err := s.walk(ctx, w, id, 1); err != nil {
			return w.result, err
		}
	}

	logger.Infof("Scan complete: %d candidate(s) in %d page(s), %d container(s) failed",
		len(w.result.Candidates), w.result.Pages, len(w.result.FailedContainers))
	return w.result, nil
}

func (s *ScannerService) walk(ctx context.Context, w *scanWalk, containerID string, depth int) error {
	// A container reached again at a shallower depth is walked again, since
	// children cut off by the depth limit may now be in range.
	if best, ok := w.visited[containerID]; ok && best <= depth {
		logger.Debugf("Scan: container %s already visited", containerID)
		return nil
	}
	if depth > s.maxDepth {
		logger.Warnf("Scan: not entering container %s, depth %d exceeds limit %d", containerID, depth, s.maxDepth)
		return nil
	}
	w.visited[containerID] = depth

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		contents, err := s.client.ListCollectionContents(ctx, containerID, page, s.pageSize)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Errorf("Scan: abandoning container %s at page %d: %v", containerID, page, err)
			w.result.FailedContainers = append(w.result.FailedContainers, containerID)
			s.events.publish(domain.ContainerFailed, domain.AggregateContainer, containerID, map[string]interface{}{
				"page":  page,
				"error": err.Error(),
			})
			return nil
		}
		w.result.Pages++

		for _, obj := range contents.Objects {
			if obj.IsCollection() {
				if err := s.walk(ctx, w, obj.ID, depth+1); err != nil {
					return err
				}
				continue
			}
			if obj.ObjectType != domain.ObjectTypeAsset {
				continue
			}
			s.consider(w, containerID, obj)
		}

		if !contents.HasNext() {
			return nil
		}

		if s.pauseEvery > 0 && w.result.Pages%s.pauseEvery == 0 {
			if err := clock.Pause(ctx, s.clock, s.pagePause); err != nil {
				return err
			}
		}
	}
}

func (s *ScannerService) consider(w *scanWalk, containerID string, obj domain.ContentObject) {
	if obj.ArchiveStatus == domain.StatusArchived || w.seen[obj.ID] {
		return
	}
	w.seen[obj.ID] = true

	item := domain.CandidateItem{
		ID:                      obj.ID,
		Label:                   obj.Title,
		ContainerObservedStatus: obj.ArchiveStatus,
		ContainerID:             containerID,
	}
	w.result.Candidates = append(w.result.Candidates, item)
	logger.Debugf("Scan: candidate %s (%s) observed as %s in %s", item.ID, item.Label, item.ContainerObservedStatus, containerID)
	s.events.publish(domain.CandidateFound, domain.AggregateAsset, item.ID, map[string]interface{}{
		"container_id":    containerID,
		"observed_status": string(item.ContainerObservedStatus),
	})
}
