package domain

// ArchiveStatus is the item-level (and format-level) archival bookkeeping field.
type ArchiveStatus string

const (
	StatusNotArchived ArchiveStatus = "NOT_ARCHIVED"
	StatusArchiving   ArchiveStatus = "ARCHIVING"
	StatusFailed      ArchiveStatus = "FAILED_TO_ARCHIVE"
	StatusArchived    ArchiveStatus = "ARCHIVED"
)

// FileStatus is the physical status recorded on a file (placement) record.
type FileStatus string

const (
	FileClosed  FileStatus = "CLOSED"
	FileMissing FileStatus = "MISSING"
	FileFailed  FileStatus = "FAILED"
	FileDeleted FileStatus = "DELETED"
)

// StoragePurpose is the role a storage plays. Only ARCHIVE storages take part in classification.
type StoragePurpose string

const (
	PurposeFiles     StoragePurpose = "FILES"
	PurposeProxies   StoragePurpose = "PROXIES"
	PurposeKeyframes StoragePurpose = "KEYFRAMES"
	PurposeArchive   StoragePurpose = "ARCHIVE"
)

// Object types returned by collection content listings.
const (
	ObjectTypeCollection = "COLLECTION"
	ObjectTypeAsset      = "ASSET"
)

// ContentObject is one entry of a collection contents page: either a child
// collection or an asset.
type ContentObject struct {
	ID            string        `json:"id"`
	ObjectType    string        `json:"object_type"`
	Title         string        `json:"title"`
	ArchiveStatus ArchiveStatus `json:"archive_status"`
}

// IsCollection reports whether the entry is a child container.
func (o ContentObject) IsCollection() bool {
	return o.ObjectType == ObjectTypeCollection
}

// Page is the paginated list envelope used by every list endpoint.
type Page[T any] struct {
	Objects []T `json:"objects"`
	Page    int `json:"page"`
	Pages   int `json:"pages"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
}

// HasNext reports whether the provider has more pages after this one.
func (p *Page[T]) HasNext() bool {
	return p.Page < p.Pages
}

// Asset is the authoritative item record.
type Asset struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	ArchiveStatus ArchiveStatus `json:"archive_status"`
}

// Format is a component (rendition) of an asset with its own archive status.
type Format struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	ArchiveStatus ArchiveStatus     `json:"archive_status"`
	Components    []FormatComponent `json:"components,omitempty"`
}

// FormatComponent is a sub-part of a format referenced by file sets.
type FormatComponent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// FileSet groups the files of one format on one storage.
type FileSet struct {
	ID           string     `json:"id,omitempty"`
	Name         string     `json:"name"`
	FormatID     string     `json:"format_id"`
	StorageID    string     `json:"storage_id"`
	BaseDir      string     `json:"base_dir"`
	ComponentIDs []string   `json:"component_ids"`
	Status       FileStatus `json:"status,omitempty"`
}

// File is a placement: one physical copy of item data on a storage.
type File struct {
	ID            string     `json:"id,omitempty"`
	Name          string     `json:"name"`
	OriginalName  string     `json:"original_name,omitempty"`
	DirectoryPath string     `json:"directory_path"`
	Size          int64      `json:"size"`
	Type          string     `json:"type,omitempty"`
	Status        FileStatus `json:"status"`
	StorageID     string     `json:"storage_id"`
	FileSetID     string     `json:"file_set_id"`
	FormatID      string     `json:"format_id"`
}

// Storage is a storage backend known to the remote system.
type Storage struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Purpose StoragePurpose `json:"purpose"`
}

// IsArchive reports whether the storage is designated as archive storage.
func (s *Storage) IsArchive() bool {
	return s != nil && s.Purpose == PurposeArchive
}
