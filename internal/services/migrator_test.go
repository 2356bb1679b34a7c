package services

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mescon/Archivarr/internal/domain"
	"github.com/mescon/Archivarr/internal/testutil"
)

func outcomes(r domain.MigrationResult) map[domain.MigrationStep]domain.StepOutcome {
	out := make(map[domain.MigrationStep]domain.StepOutcome)
	for _, step := range domain.MigrationSteps {
		out[step] = r.Outcome(step)
	}
	return out
}

func fileSetOn(sets []domain.FileSet, storageID string) *domain.FileSet {
	for i := range sets {
		if sets[i].StorageID == storageID {
			return &sets[i]
		}
	}
	return nil
}

func fileOn(files []domain.File, storageID string) *domain.File {
	for i := range files {
		if files[i].StorageID == storageID {
			return &files[i]
		}
	}
	return nil
}

type remoteState struct {
	asset    domain.Asset
	formats  map[string]domain.ArchiveStatus
	files    []domain.File
	fileSets []domain.FileSet
}

func (e *testEnv) remoteState(id string) remoteState {
	return remoteState{
		asset:    e.client.Asset(id),
		formats:  e.client.FormatStatuses(id),
		files:    e.client.AllFiles(id),
		fileSets: e.client.AllFileSets(id),
	}
}

// =============================================================================
// Full pass
// =============================================================================

func TestMigrator_LiveMigration(t *testing.T) {
	e := newTestEnv(t)
	e.seedOnlineAsset(t, "a1", domain.StatusNotArchived)

	result := e.migrator().Migrate(context.Background(), "a1", migrationOptions(domain.ModeLive))

	require.True(t, result.Done, result.Error)
	assert.Equal(t, int64(clipSize), result.BytesCopied)
	for _, step := range domain.MigrationSteps {
		assert.Equal(t, domain.OutcomeDone, result.Outcome(step), "step %s", step)
	}

	// Bytes moved.
	assert.True(t, testutil.FileExists(e.disk, e.destPath("a1")))
	assert.False(t, testutil.FileExists(e.disk, e.sourcePath("a1")))

	// Records moved.
	sets := e.client.AllFileSets("a1")
	destSet := fileSetOn(sets, destID)
	require.NotNil(t, destSet)
	assert.Equal(t, []string{"comp-video"}, destSet.ComponentIDs)
	assert.Equal(t, "original", destSet.Name)
	assert.Equal(t, domain.FileDeleted, fileSetOn(sets, onlineID).Status)

	files := e.client.AllFiles("a1")
	destFile := fileOn(files, destID)
	require.NotNil(t, destFile)
	assert.Equal(t, destSet.ID, destFile.FileSetID)
	assert.Equal(t, int64(clipSize), destFile.Size)
	assert.Equal(t, domain.FileClosed, destFile.Status)
	assert.Equal(t, domain.FileDeleted, fileOn(files, onlineID).Status)

	// Status flipped.
	assert.Equal(t, domain.StatusArchived, e.client.Asset("a1").ArchiveStatus)
	assert.Equal(t, domain.StatusArchived, e.client.FormatStatuses("a1")[formatID])

	assert.Equal(t, 6, e.bus.EventCount(domain.MigrationStepDone))
	assert.Equal(t, 1, e.bus.EventCount(domain.MigrationCompleted))
	var bytes int64
	for _, ev := range e.bus.GetEvents(domain.MigrationStepDone) {
		data, _ := ev.ParseStepEventData()
		bytes += data.Bytes
	}
	assert.Equal(t, int64(clipSize), bytes)
}

func TestMigrator_SecondRunIsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	e.seedOnlineAsset(t, "a1", domain.StatusNotArchived)
	m := e.migrator()

	first := m.Migrate(context.Background(), "a1", migrationOptions(domain.ModeLive))
	require.True(t, first.Done, first.Error)
	after := e.remoteState("a1")

	e.client.ResetCalls()
	e.fs.ResetCalls()
	second := m.Migrate(context.Background(), "a1", migrationOptions(domain.ModeLive))

	require.True(t, second.Done, second.Error)
	assert.Zero(t, e.fs.CallCount("Copy"))
	assert.Zero(t, e.fs.CallCount("Remove"))
	assert.Zero(t, e.client.CallCount("CreateFileSet"))
	assert.Zero(t, e.client.CallCount("CreateFile"))
	assert.Zero(t, e.client.CallCount("DeleteFileSet"))
	assert.Zero(t, second.BytesCopied)
	assert.Equal(t, after, e.remoteState("a1"))

	assert.Equal(t, map[domain.MigrationStep]domain.StepOutcome{
		domain.StepLocateReference: domain.OutcomeDone,
		domain.StepEnsureCopy:      domain.OutcomeAlreadyDone,
		domain.StepEnsureFileSet:   domain.OutcomeAlreadyDone,
		domain.StepEnsureFile:      domain.OutcomeAlreadyDone,
		domain.StepFlipStatus:      domain.OutcomeDone,
		domain.StepRetireSource:    domain.OutcomeAlreadyDone,
	}, outcomes(second))
}

func TestMigrator_ResumesAfterInterruptedRun(t *testing.T) {
	e := newTestEnv(t)
	e.seedOnlineAsset(t, "a1", domain.StatusNotArchived)
	// A previous run copied the bytes and created the file set, then died.
	testutil.WriteFile(t, e.disk, e.destPath("a1"), clipSize)
	e.client.AddFileSet("a1", domain.FileSet{ID: "fs-dest", Name: "original", FormatID: formatID, StorageID: destID})

	result := e.migrator().Migrate(context.Background(), "a1", migrationOptions(domain.ModeLive))

	require.True(t, result.Done, result.Error)
	assert.Equal(t, domain.OutcomeAlreadyDone, result.Outcome(domain.StepEnsureCopy))
	assert.Equal(t, domain.OutcomeAlreadyDone, result.Outcome(domain.StepEnsureFileSet))
	assert.Equal(t, domain.OutcomeDone, result.Outcome(domain.StepEnsureFile))
	assert.Zero(t, e.fs.CallCount("Copy"))
	assert.Zero(t, e.client.CallCount("CreateFileSet"))
	assert.Equal(t, "fs-dest", fileOn(e.client.AllFiles("a1"), destID).FileSetID)
}

// =============================================================================
// Step 2 safety
// =============================================================================

func assertSourceUntouched(t *testing.T, e *testEnv, result domain.MigrationResult) {
	t.Helper()
	assert.False(t, result.Done)
	assert.Equal(t, domain.OutcomeNotReached, result.Outcome(domain.StepRetireSource))
	assert.Zero(t, e.client.CallCount("DeleteFileSet"))
	assert.Zero(t, e.client.CallCount("CreateFileSet"))
	assert.Zero(t, e.client.CallCount("UpdateAssetStatus"))
	assert.True(t, testutil.FileExists(e.disk, e.sourcePath("a1")))
	assert.Equal(t, domain.FileClosed, fileSetOn(e.client.AllFileSets("a1"), onlineID).Status)
	assert.Equal(t, 1, e.bus.EventCount(domain.MigrationFailed))
}

func TestMigrator_CopyFailureNeverRetiresSource(t *testing.T) {
	e := newTestEnv(t)
	e.seedOnlineAsset(t, "a1", domain.StatusNotArchived)
	e.fs.FailOn("Copy", e.sourcePath("a1"), errors.New("no space left on device"))

	result := e.migrator().Migrate(context.Background(), "a1", migrationOptions(domain.ModeLive))

	assert.Equal(t, domain.OutcomeFailed, result.Outcome(domain.StepEnsureCopy))
	assert.Contains(t, result.Error, "no space left on device")
	assertSourceUntouched(t, e, result)
}

func TestMigrator_SizeMismatchIsHardFailure(t *testing.T) {
	e := newTestEnv(t)
	e.seedOnlineAsset(t, "a1", domain.StatusNotArchived)
	e.fs.AfterCopy = func(_, dst string) {
		require.NoError(t, afero.WriteFile(e.disk, dst, []byte("short"), 0o644))
	}

	result := e.migrator().Migrate(context.Background(), "a1", migrationOptions(domain.ModeLive))

	assert.Equal(t, domain.OutcomeFailed, result.Outcome(domain.StepEnsureCopy))
	assert.Contains(t, result.Error, ErrSizeMismatch.Error())
	assert.False(t, testutil.FileExists(e.disk, e.destPath("a1")), "bad copy should be removed")
	assertSourceUntouched(t, e, result)
}

func TestMigrator_ConflictingCopiesNeedAnOperator(t *testing.T) {
	e := newTestEnv(t)
	e.seedOnlineAsset(t, "a1", domain.StatusNotArchived)
	testutil.WriteFile(t, e.disk, e.destPath("a1"), clipSize/2)

	result := e.migrator().Migrate(context.Background(), "a1", migrationOptions(domain.ModeLive))

	assert.Equal(t, domain.OutcomeFailed, result.Outcome(domain.StepEnsureCopy))
	assert.Contains(t, result.Error, ErrConflictingCopies.Error())
	assert.Zero(t, e.fs.CallCount("Copy"))
	assert.True(t, testutil.FileExists(e.disk, e.destPath("a1")))
	assertSourceUntouched(t, e, result)
}

func TestMigrator_NoCopyOnEitherMount(t *testing.T) {
	e := newTestEnv(t)
	e.seedOnlineAsset(t, "a1", domain.StatusNotArchived)
	require.NoError(t, e.disk.Remove(e.sourcePath("a1")))

	result := e.migrator().Migrate(context.Background(), "a1", migrationOptions(domain.ModeLive))

	assert.False(t, result.Done)
	assert.Equal(t, domain.OutcomeFailed, result.Outcome(domain.StepEnsureCopy))
	assert.Contains(t, result.Error, ErrNoCopyOnDisk.Error())
	assert.Zero(t, e.client.CallCount("DeleteFileSet"))
}

// =============================================================================
// Other steps
// =============================================================================

func TestMigrator_NoFileRecord(t *testing.T) {
	e := newTestEnv(t)
	e.client.AddAsset(domain.Asset{ID: "a1", ArchiveStatus: domain.StatusNotArchived})

	result := e.migrator().Migrate(context.Background(), "a1", migrationOptions(domain.ModeLive))

	assert.False(t, result.Done)
	assert.Equal(t, domain.OutcomeFailed, result.Outcome(domain.StepLocateReference))
	assert.Contains(t, result.Error, ErrNoFileRecord.Error())
	assert.Len(t, result.Steps, 1)
	assert.Zero(t, e.fs.CallCount("Stat"))
}

func TestMigrator_ComponentLookupFallsBackToFormatID(t *testing.T) {
	e := newTestEnv(t)
	e.seedOnlineAsset(t, "a1", domain.StatusNotArchived)
	e.client.FailOn("GetFormat", "a1", errors.New("HTTP 500"))

	result := e.migrator().Migrate(context.Background(), "a1", migrationOptions(domain.ModeLive))

	require.True(t, result.Done, result.Error)
	destSet := fileSetOn(e.client.AllFileSets("a1"), destID)
	require.NotNil(t, destSet)
	assert.Equal(t, []string{formatID}, destSet.ComponentIDs)
	assert.Len(t, result.Steps[2].Warnings, 1)
}

func TestMigrator_NoFormatIDSkipsComponentLookup(t *testing.T) {
	e := newTestEnv(t)
	e.client.AddAsset(domain.Asset{ID: "a1", ArchiveStatus: domain.StatusNotArchived})
	file := testutil.Placement(sourceFile, onlineID, "fs-gone", assetDir("a1"), clipName, domain.FileClosed, clipSize)
	file.FormatID = ""
	e.client.AddFile("a1", file)
	testutil.WriteFile(t, e.disk, e.sourcePath("a1"), clipSize)

	result := e.migrator().Migrate(context.Background(), "a1", migrationOptions(domain.ModeLive))

	require.True(t, result.Done, result.Error)
	assert.Zero(t, e.client.CallCount("GetFormat"))
	require.Len(t, result.Steps[2].Warnings, 1)
	assert.Contains(t, result.Steps[2].Warnings[0], "no format id")
	destSet := fileSetOn(e.client.AllFileSets("a1"), destID)
	require.NotNil(t, destSet)
	assert.Empty(t, destSet.ComponentIDs)
}

func TestMigrator_FlipFailureStopsBeforeRetire(t *testing.T) {
	e := newTestEnv(t)
	e.seedOnlineAsset(t, "a1", domain.StatusNotArchived)
	e.client.FailOn("UpdateFormatStatus", "a1", errors.New("HTTP 409"))

	result := e.migrator().Migrate(context.Background(), "a1", migrationOptions(domain.ModeLive))

	assert.False(t, result.Done)
	assert.Equal(t, domain.OutcomeFailed, result.Outcome(domain.StepFlipStatus))
	assert.Equal(t, domain.OutcomeNotReached, result.Outcome(domain.StepRetireSource))
	assert.Zero(t, e.client.CallCount("DeleteFileSet"))
	assert.True(t, testutil.FileExists(e.disk, e.sourcePath("a1")))
}

func TestMigrator_RetireKeepsArchiveStoragesAndWarnsOnFailure(t *testing.T) {
	e := newTestEnv(t)
	e.seedOnlineAsset(t, "a1", domain.StatusNotArchived)
	e.client.AddFileSet("a1", domain.FileSet{ID: "fs-proxy", FormatID: "fmt-proxy", StorageID: proxyID, Status: domain.FileClosed})
	e.client.AddFileSet("a1", domain.FileSet{ID: "fs-vault", FormatID: formatID, StorageID: vaultID, Status: domain.FileClosed})
	e.client.FailOn("DeleteFileSet", "a1/fs-proxy", errors.New("HTTP 423"))

	result := e.migrator().Migrate(context.Background(), "a1", migrationOptions(domain.ModeLive))

	require.True(t, result.Done, result.Error)
	retire := result.Steps[5]
	assert.Equal(t, domain.OutcomeDone, retire.Outcome)
	require.Len(t, retire.Warnings, 1)
	assert.Contains(t, retire.Warnings[0], "fs-proxy")

	sets := e.client.AllFileSets("a1")
	assert.Equal(t, domain.FileDeleted, fileSetOn(sets, onlineID).Status)
	assert.Equal(t, domain.FileClosed, fileSetOn(sets, proxyID).Status)
	assert.Equal(t, domain.FileClosed, fileSetOn(sets, vaultID).Status)
	assert.False(t, testutil.FileExists(e.disk, e.sourcePath("a1")))
}

func TestMigrator_DryRunWritesNothing(t *testing.T) {
	e := newTestEnv(t)
	e.seedOnlineAsset(t, "a1", domain.StatusNotArchived)
	before := e.remoteState("a1")

	result := e.migrator().Migrate(context.Background(), "a1", migrationOptions(domain.ModeDryRun))

	require.True(t, result.Done, result.Error)
	assert.Empty(t, e.client.WriteCalls())
	assert.Zero(t, e.fs.CallCount("Copy"))
	assert.Zero(t, e.fs.CallCount("Remove"))
	assert.Equal(t, before, e.remoteState("a1"))
	assert.False(t, testutil.FileExists(e.disk, e.destPath("a1")))

	assert.Equal(t, map[domain.MigrationStep]domain.StepOutcome{
		domain.StepLocateReference: domain.OutcomeDone,
		domain.StepEnsureCopy:      domain.OutcomeWouldDo,
		domain.StepEnsureFileSet:   domain.OutcomeWouldDo,
		domain.StepEnsureFile:      domain.OutcomeWouldDo,
		domain.StepFlipStatus:      domain.OutcomeWouldDo,
		domain.StepRetireSource:    domain.OutcomeWouldDo,
	}, outcomes(result))
}

func TestMigrator_NeverRemovesTheDestinationCopy(t *testing.T) {
	e := newTestEnv(t)
	e.seedOnlineAsset(t, "a1", domain.StatusNotArchived)
	opts := migrationOptions(domain.ModeLive)
	opts.DestMount = opts.SourceMount

	result := e.migrator().Migrate(context.Background(), "a1", opts)

	require.True(t, result.Done, result.Error)
	assert.Equal(t, domain.OutcomeAlreadyDone, result.Outcome(domain.StepEnsureCopy))
	retire := result.Steps[5]
	require.Len(t, retire.Warnings, 1)
	assert.Contains(t, retire.Warnings[0], "also the destination copy")
	assert.Zero(t, e.fs.CallCount("Remove"))
	assert.True(t, testutil.FileExists(e.disk, e.sourcePath("a1")))
}
