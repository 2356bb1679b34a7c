package testutil

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/mescon/Archivarr/internal/domain"
	"github.com/mescon/Archivarr/internal/integration"
)

// Mount roots used by service tests.
const (
	ArchiveMount = "/mnt/vault"
	SourceMount  = "/mnt/online"
	DestMount    = "/mnt/archive"
)

// =============================================================================
// Mounts
// =============================================================================

// NewMemMount returns a MountFS over an empty in-memory filesystem.
func NewMemMount() (*integration.MountFS, afero.Fs) {
	fs := afero.NewMemMapFs()
	return integration.NewMountFS(fs), fs
}

// WriteFile creates path with size bytes of content.
func WriteFile(t testing.TB, fs afero.Fs, path string, size int64) {
	t.Helper()
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := afero.WriteFile(fs, path, bytes.Repeat([]byte{'x'}, int(size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// FileExists reports whether path exists on fs.
func FileExists(fs afero.Fs, path string) bool {
	ok, err := afero.Exists(fs, path)
	return err == nil && ok
}

// =============================================================================
// Records
// =============================================================================

// CollectionObject is a child container entry of a contents listing.
func CollectionObject(id string) domain.ContentObject {
	return domain.ContentObject{ID: id, ObjectType: domain.ObjectTypeCollection, Title: "collection " + id}
}

// AssetObject is an asset entry of a contents listing with the observed status.
func AssetObject(id string, status domain.ArchiveStatus) domain.ContentObject {
	return domain.ContentObject{ID: id, ObjectType: domain.ObjectTypeAsset, Title: "asset " + id, ArchiveStatus: status}
}

// Candidate builds a scanner candidate.
func Candidate(id string, observed domain.ArchiveStatus) domain.CandidateItem {
	return domain.CandidateItem{ID: id, Label: "asset " + id, ContainerObservedStatus: observed}
}

// ArchiveStorage builds an ARCHIVE-purpose storage.
func ArchiveStorage(id, name string) domain.Storage {
	return domain.Storage{ID: id, Name: name, Purpose: domain.PurposeArchive}
}

// OnlineStorage builds a FILES-purpose storage.
func OnlineStorage(id, name string) domain.Storage {
	return domain.Storage{ID: id, Name: name, Purpose: domain.PurposeFiles}
}

// Placement builds a file record.
func Placement(id, storageID, fileSetID, dir, name string, status domain.FileStatus, size int64) domain.File {
	return domain.File{
		ID:            id,
		Name:          name,
		OriginalName:  name,
		DirectoryPath: dir,
		Size:          size,
		Status:        status,
		StorageID:     storageID,
		FileSetID:     fileSetID,
		FormatID:      "fmt-original",
	}
}

// OriginalFormat builds the "original" format with one component.
func OriginalFormat(status domain.ArchiveStatus) domain.Format {
	return domain.Format{
		ID:            "fmt-original",
		Name:          "original",
		ArchiveStatus: status,
		Components:    []domain.FormatComponent{{ID: "comp-video", Name: "video", Type: "VIDEO"}},
	}
}

// =============================================================================
// Events
// =============================================================================

// EventOption is a functional option for configuring test events.
type EventOption func(*domain.Event)

// WithAggregateID sets a specific aggregate ID.
func WithAggregateID(id string) EventOption {
	return func(e *domain.Event) {
		e.AggregateID = id
	}
}

// WithCreatedAt sets the event creation time.
func WithCreatedAt(t time.Time) EventOption {
	return func(e *domain.Event) {
		e.CreatedAt = t
	}
}

// WithRunID sets the run id.
func WithRunID(runID string) EventOption {
	return func(e *domain.Event) {
		e.RunID = runID
	}
}

// WithEventData merges additional data into EventData.
func WithEventData(data map[string]interface{}) EventOption {
	return func(e *domain.Event) {
		if e.EventData == nil {
			e.EventData = make(map[string]interface{})
		}
		for k, v := range data {
			e.EventData[k] = v
		}
	}
}

// NewStepEvent creates a RemediationStep or MigrationStepDone event.
func NewStepEvent(eventType domain.EventType, step string, outcome domain.StepOutcome, opts ...EventOption) domain.Event {
	event := domain.Event{
		AggregateType: domain.AggregateAsset,
		AggregateID:   uuid.New().String(),
		EventType:     eventType,
		CreatedAt:     time.Now(),
		EventData: map[string]interface{}{
			"step":    step,
			"outcome": string(outcome),
		},
	}
	for _, opt := range opts {
		opt(&event)
	}
	return event
}
