package integration

import (
	"context"

	"github.com/mescon/Archivarr/internal/domain"
)

// Requester is the generic request/response boundary to the remote API.
// body is JSON-encoded when non-nil; out is JSON-decoded when non-nil.
// Any non-2xx response is returned as *APIError.
type Requester interface {
	Do(ctx context.Context, method, path string, body, out interface{}) error
}

// VaultClient defines the typed operations the engine needs from the remote API.
type VaultClient interface {
	// Collections
	ListCollectionContents(ctx context.Context, collectionID string, page, perPage int) (*domain.Page[domain.ContentObject], error)

	// Assets
	GetAsset(ctx context.Context, assetID string) (*domain.Asset, error)
	UpdateAssetStatus(ctx context.Context, assetID string, status domain.ArchiveStatus) error

	// Files (placements). ListFiles excludes DELETED records, ListPlacements
	// returns every record.
	ListFiles(ctx context.Context, assetID string) ([]domain.File, error)
	ListPlacements(ctx context.Context, assetID string) ([]domain.File, error)
	CreateFile(ctx context.Context, assetID string, file domain.File) (*domain.File, error)
	UpdateFileStatus(ctx context.Context, assetID, fileID string, status domain.FileStatus) error

	// File sets. Listings exclude DELETED records; DeleteFileSet is a soft delete.
	ListFileSets(ctx context.Context, assetID string) ([]domain.FileSet, error)
	CreateFileSet(ctx context.Context, assetID string, fileSet domain.FileSet) (*domain.FileSet, error)
	DeleteFileSet(ctx context.Context, assetID, fileSetID string) error

	// Formats (components)
	ListFormats(ctx context.Context, assetID string) ([]domain.Format, error)
	GetFormat(ctx context.Context, assetID, formatID string) (*domain.Format, error)
	UpdateFormatStatus(ctx context.Context, assetID, formatID string, status domain.ArchiveStatus) error

	// Storages
	GetStorage(ctx context.Context, storageID string) (*domain.Storage, error)
	FindStorageByName(ctx context.Context, name string) (*domain.Storage, error)
}

// FileInfo is the result of a mount stat.
type FileInfo struct {
	Exists bool
	Size   int64
}

// FileSystem is the local mount collaborator: stat, copy and delete only.
type FileSystem interface {
	Stat(path string) (FileInfo, error)
	Copy(src, dst string) (int64, error)
	Remove(path string) error
	CheckMount(root string) error
}
