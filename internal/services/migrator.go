package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/mescon/Archivarr/internal/domain"
	"github.com/mescon/Archivarr/internal/integration"
	"github.com/mescon/Archivarr/internal/logger"
)

// MigrationOptions describe where an item moves to.
type MigrationOptions struct {
	SourceMount   string
	DestMount     string
	DestStorageID string
	Mode          domain.Mode
}

// MigratorService moves an asset's file onto a destination storage.
//
// Every step checks before it acts, so re-running after any interruption
// resumes where the last run stopped. Sources are retired last, and only once
// the destination copy, its records and the status flip have succeeded.
type MigratorService struct {
	client   integration.VaultClient
	fs       integration.FileSystem
	storages *StorageCache
	events   RunEvents
}

func NewMigratorService(client integration.VaultClient, fs integration.FileSystem, storages *StorageCache, events RunEvents) *MigratorService {
	return &MigratorService{
		client:   client,
		fs:       fs,
		storages: storages,
		events:   events,
	}
}

// migration is the working state of one item's pass through the pipeline.
type migration struct {
	assetID string
	opts    MigrationOptions

	files     []domain.File    // live file records, listed in step 1
	fileSets  []domain.FileSet // live file sets, listed in step 3
	reference *domain.File
	destFile  *domain.File

	sourcePath string
	destPath   string

	destFileSetID string
	copied        int64
	warnings      []string
}

func (m *migration) live() bool {
	return m.opts.Mode.IsLive()
}

func (m *migration) warnf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Warnf("Migrate %s: %s", m.assetID, msg)
	m.warnings = append(m.warnings, msg)
}

// stepFunc runs one step and reports what it did. A non-nil error stops the
// pipeline for this item.
type stepFunc func(ctx context.Context, m *migration) (domain.StepOutcome, string, error)

type pipelineStep struct {
	step domain.MigrationStep
	run  stepFunc
}

func (s *MigratorService) pipeline() []pipelineStep {
	return []pipelineStep{
		{domain.StepLocateReference, s.locateReference},
		{domain.StepEnsureCopy, s.ensureCopy},
		{domain.StepEnsureFileSet, s.ensureFileSet},
		{domain.StepEnsureFile, s.ensureFile},
		{domain.StepFlipStatus, s.flipStatus},
		{domain.StepRetireSource, s.retireSource},
	}
}

// Migrate runs the six steps for one asset. The result says how far it got;
// a failure affects this asset only.
func (s *MigratorService) Migrate(ctx context.Context, assetID string, opts MigrationOptions) domain.MigrationResult {
	result := domain.MigrationResult{ItemID: assetID}
	m := &migration{assetID: assetID, opts: opts}

	for _, p := range s.pipeline() {
		m.warnings = nil
		outcome, detail, err := p.run(ctx, m)
		report := domain.StepReport{Step: p.step, Outcome: outcome, Detail: detail, Warnings: m.warnings}
		if err != nil {
			report.Outcome = domain.OutcomeFailed
			report.Detail = err.Error()
		}
		result.Steps = append(result.Steps, report)

		var bytes int64
		if p.step == domain.StepEnsureCopy && report.Outcome == domain.OutcomeDone {
			bytes = m.copied
		}
		s.events.step(domain.MigrationStepDone, assetID, string(p.step), report.Outcome, bytes, err)

		if err != nil {
			result.Error = fmt.Sprintf("%s: %v", p.step, err)
			logger.Errorf("Migrate %s: %s failed, stopping: %v", assetID, p.step, err)
			s.events.publish(domain.MigrationFailed, domain.AggregateAsset, assetID, map[string]interface{}{
				"step":  string(p.step),
				"error": err.Error(),
			})
			return result
		}
		logger.Debugf("Migrate %s: %s %s (%s)", assetID, p.step, report.Outcome, detail)
	}

	result.Done = true
	result.BytesCopied = m.copied
	logger.Infof("Migrate %s: complete (%s, copied %s)", assetID, opts.Mode, humanize.Bytes(uint64(m.copied)))
	s.events.publish(domain.MigrationCompleted, domain.AggregateAsset, assetID, map[string]interface{}{
		"bytes": m.copied,
	})
	return result
}

// Step 1: pick the file record the copy is driven from. A record on another
// storage is preferred; a record already on the destination is the fallback.
func (s *MigratorService) locateReference(ctx context.Context, m *migration) (domain.StepOutcome, string, error) {
	files, err := s.client.ListFiles(ctx, m.assetID)
	if err != nil {
		return domain.OutcomeFailed, "", fmt.Errorf("list files: %w", err)
	}
	m.files = files

	var source, onDest *domain.File
	for i := range files {
		f := &files[i]
		if f.StorageID == m.opts.DestStorageID {
			if onDest == nil {
				onDest = f
			}
			continue
		}
		if source == nil || (source.Status != domain.FileClosed && f.Status == domain.FileClosed) {
			source = f
		}
	}
	m.destFile = onDest

	switch {
	case source != nil:
		m.reference = source
	case onDest != nil:
		m.reference = onDest
	default:
		return domain.OutcomeFailed, "", ErrNoFileRecord
	}

	m.sourcePath = integration.MountPath(m.opts.SourceMount, m.reference.DirectoryPath, m.reference.Name)
	m.destPath = integration.MountPath(m.opts.DestMount, m.reference.DirectoryPath, m.reference.Name)
	return domain.OutcomeDone, fmt.Sprintf("file %s on storage %s", m.reference.ID, m.reference.StorageID), nil
}

// Step 2: make sure the bytes are on the destination mount.
func (s *MigratorService) ensureCopy(_ context.Context, m *migration) (domain.StepOutcome, string, error) {
	dst, err := s.fs.Stat(m.destPath)
	if err != nil {
		return domain.OutcomeFailed, "", err
	}
	src, err := s.fs.Stat(m.sourcePath)
	if err != nil {
		return domain.OutcomeFailed, "", err
	}

	if dst.Exists {
		if src.Exists && src.Size != dst.Size {
			return domain.OutcomeFailed, "", fmt.Errorf("%w: %s is %d bytes, %s is %d bytes",
				ErrConflictingCopies, m.sourcePath, src.Size, m.destPath, dst.Size)
		}
		logger.Infof("Migrate %s: %s already present (%s)", m.assetID, m.destPath, humanize.Bytes(uint64(dst.Size)))
		return domain.OutcomeAlreadyDone, m.destPath, nil
	}
	if !src.Exists {
		return domain.OutcomeFailed, "", fmt.Errorf("%w: %s", ErrNoCopyOnDisk, m.sourcePath)
	}

	if !m.live() {
		logger.DryRunf("copy %s to %s (%s)", m.sourcePath, m.destPath, humanize.Bytes(uint64(src.Size)))
		return domain.OutcomeWouldDo, m.destPath, nil
	}

	n, err := s.fs.Copy(m.sourcePath, m.destPath)
	if err != nil {
		return domain.OutcomeFailed, "", err
	}
	after, err := s.fs.Stat(m.destPath)
	if err != nil {
		return domain.OutcomeFailed, "", fmt.Errorf("verify %s: %w", m.destPath, err)
	}
	if !after.Exists || after.Size != src.Size {
		if rmErr := s.fs.Remove(m.destPath); rmErr != nil {
			logger.Warnf("Migrate %s: could not remove bad copy %s: %v", m.assetID, m.destPath, rmErr)
		}
		return domain.OutcomeFailed, "", fmt.Errorf("%w: source %d bytes, destination %d bytes",
			ErrSizeMismatch, src.Size, after.Size)
	}

	m.copied = n
	logger.Infof("Migrate %s: copied %s to %s (%s)", m.assetID, m.sourcePath, m.destPath, humanize.Bytes(uint64(n)))
	return domain.OutcomeDone, m.destPath, nil
}

// Step 3: make sure the destination storage has a file set for the asset.
func (s *MigratorService) ensureFileSet(ctx context.Context, m *migration) (domain.StepOutcome, string, error) {
	sets, err := s.client.ListFileSets(ctx, m.assetID)
	if err != nil {
		return domain.OutcomeFailed, "", fmt.Errorf("list file sets: %w", err)
	}
	m.fileSets = sets

	var sourceSet *domain.FileSet
	for i := range sets {
		if sets[i].StorageID == m.opts.DestStorageID {
			m.destFileSetID = sets[i].ID
			return domain.OutcomeAlreadyDone, sets[i].ID, nil
		}
		if sets[i].ID == m.reference.FileSetID {
			sourceSet = &sets[i]
		}
	}

	formatID := m.reference.FormatID
	if formatID == "" && sourceSet != nil {
		formatID = sourceSet.FormatID
	}
	fileSet := domain.FileSet{
		Name:         formatID,
		FormatID:     formatID,
		StorageID:    m.opts.DestStorageID,
		BaseDir:      m.reference.DirectoryPath,
		ComponentIDs: s.componentIDs(ctx, m, formatID),
	}
	if sourceSet != nil {
		fileSet.Name = sourceSet.Name
		fileSet.BaseDir = sourceSet.BaseDir
	}

	if !m.live() {
		logger.DryRunf("create file set %q on storage %s for asset %s (components %s)",
			fileSet.Name, fileSet.StorageID, m.assetID, strings.Join(fileSet.ComponentIDs, ","))
		return domain.OutcomeWouldDo, "", nil
	}

	created, err := s.client.CreateFileSet(ctx, m.assetID, fileSet)
	if err != nil {
		return domain.OutcomeFailed, "", fmt.Errorf("create file set: %w", err)
	}
	m.destFileSetID = created.ID
	logger.Infof("Migrate %s: created file set %s on storage %s", m.assetID, created.ID, m.opts.DestStorageID)
	return domain.OutcomeDone, created.ID, nil
}

// componentIDs lists the component ids of a format, falling back to the
// format id itself when the lookup fails or yields nothing.
func (s *MigratorService) componentIDs(ctx context.Context, m *migration, formatID string) []string {
	if formatID == "" {
		m.warnf("no format id on file %s or its file set, skipping component lookup", m.reference.ID)
		return nil
	}
	format, err := s.client.GetFormat(ctx, m.assetID, formatID)
	if err != nil {
		m.warnf("component lookup for format %s failed, using the format id: %v", formatID, err)
		return []string{formatID}
	}
	if len(format.Components) == 0 {
		return []string{formatID}
	}
	ids := make([]string, len(format.Components))
	for i, c := range format.Components {
		ids[i] = c.ID
	}
	return ids
}

// Step 4: make sure the destination file set holds a file record.
func (s *MigratorService) ensureFile(ctx context.Context, m *migration) (domain.StepOutcome, string, error) {
	if m.destFile != nil {
		return domain.OutcomeAlreadyDone, m.destFile.ID, nil
	}

	size := m.reference.Size
	info, err := s.fs.Stat(m.destPath)
	if err != nil {
		m.warnf("stat %s failed, using recorded size: %v", m.destPath, err)
	} else if info.Exists {
		size = info.Size
	}

	file := domain.File{
		Name:          m.reference.Name,
		OriginalName:  m.reference.OriginalName,
		DirectoryPath: m.reference.DirectoryPath,
		Size:          size,
		Type:          m.reference.Type,
		Status:        domain.FileClosed,
		StorageID:     m.opts.DestStorageID,
		FileSetID:     m.destFileSetID,
		FormatID:      m.reference.FormatID,
	}

	if !m.live() {
		logger.DryRunf("create file record %s/%s (%s) on storage %s for asset %s",
			file.DirectoryPath, file.Name, humanize.Bytes(uint64(size)), file.StorageID, m.assetID)
		return domain.OutcomeWouldDo, "", nil
	}

	created, err := s.client.CreateFile(ctx, m.assetID, file)
	if err != nil {
		return domain.OutcomeFailed, "", fmt.Errorf("create file: %w", err)
	}
	logger.Infof("Migrate %s: created file record %s in file set %s", m.assetID, created.ID, m.destFileSetID)
	return domain.OutcomeDone, created.ID, nil
}

// Step 5: mark the asset and every format ARCHIVED. Runs every time.
func (s *MigratorService) flipStatus(ctx context.Context, m *migration) (domain.StepOutcome, string, error) {
	formats, err := s.client.ListFormats(ctx, m.assetID)
	if err != nil {
		return domain.OutcomeFailed, "", fmt.Errorf("list formats: %w", err)
	}

	if !m.live() {
		logger.DryRunf("set asset %s and %d format(s) archive status to %s", m.assetID, len(formats), domain.StatusArchived)
		return domain.OutcomeWouldDo, "", nil
	}

	var errs []error
	if err := s.client.UpdateAssetStatus(ctx, m.assetID, domain.StatusArchived); err != nil {
		errs = append(errs, fmt.Errorf("asset: %w", err))
	}
	for _, f := range formats {
		if err := s.client.UpdateFormatStatus(ctx, m.assetID, f.ID, domain.StatusArchived); err != nil {
			errs = append(errs, fmt.Errorf("format %s: %w", f.ID, err))
		}
	}
	if len(errs) > 0 {
		return domain.OutcomeFailed, "", errors.Join(errs...)
	}
	return domain.OutcomeDone, fmt.Sprintf("asset and %d format(s)", len(formats)), nil
}

// Step 6: soft-delete file sets on storages that are neither the destination
// nor archive storage, then remove their files from the source mount.
// Individual failures are warnings.
func (s *MigratorService) retireSource(ctx context.Context, m *migration) (domain.StepOutcome, string, error) {
	retired := make(map[string]bool)
	var targets []domain.FileSet
	for _, set := range m.fileSets {
		if set.StorageID == m.opts.DestStorageID {
			continue
		}
		storage, ok := s.storages.Get(ctx, set.StorageID)
		if !ok {
			m.warnf("keeping file set %s, storage %s could not be resolved", set.ID, set.StorageID)
			continue
		}
		if storage.IsArchive() {
			continue
		}
		targets = append(targets, set)
	}
	if len(targets) == 0 {
		return domain.OutcomeAlreadyDone, "no source file sets", nil
	}

	for _, set := range targets {
		if !m.live() {
			logger.DryRunf("delete file set %s on storage %s for asset %s", set.ID, set.StorageID, m.assetID)
			retired[set.ID] = true
			continue
		}
		if err := s.client.DeleteFileSet(ctx, m.assetID, set.ID); err != nil {
			m.warnf("delete file set %s: %v", set.ID, err)
			continue
		}
		retired[set.ID] = true
	}

	removed := 0
	for _, f := range m.files {
		if !retired[f.FileSetID] || f.StorageID != m.reference.StorageID || f.StorageID == m.opts.DestStorageID {
			continue
		}
		path := integration.MountPath(m.opts.SourceMount, f.DirectoryPath, f.Name)
		if path == integration.MountPath(m.opts.DestMount, f.DirectoryPath, f.Name) {
			m.warnf("keeping %s, it is also the destination copy", path)
			continue
		}
		if !m.live() {
			logger.DryRunf("remove %s", path)
			removed++
			continue
		}
		if err := s.fs.Remove(path); err != nil {
			m.warnf("remove %s: %v", path, err)
			continue
		}
		removed++
	}

	detail := fmt.Sprintf("%d file set(s), %d file(s)", len(retired), removed)
	if !m.live() {
		return domain.OutcomeWouldDo, detail, nil
	}
	return domain.OutcomeDone, detail, nil
}
