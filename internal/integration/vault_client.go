package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mescon/Archivarr/internal/domain"
)

// maxListPages stops a per-asset listing that never reports its last page.
const maxListPages = 1000

// HTTPVaultClient implements VaultClient on top of a Requester.
type HTTPVaultClient struct {
	req      Requester
	pageSize int
}

// NewVaultClient returns a client that pages per-asset listings pageSize records at a time.
func NewVaultClient(req Requester, pageSize int) *HTTPVaultClient {
	if pageSize < 1 {
		pageSize = 100
	}
	return &HTTPVaultClient{req: req, pageSize: pageSize}
}

func assetPath(assetID string) string {
	return "assets/v1/assets/" + url.PathEscape(assetID) + "/"
}

func filesPath(assetID string) string {
	return "files/v1/assets/" + url.PathEscape(assetID) + "/files/"
}

func fileSetsPath(assetID string) string {
	return "files/v1/assets/" + url.PathEscape(assetID) + "/file_sets/"
}

func formatsPath(assetID string) string {
	return "files/v1/assets/" + url.PathEscape(assetID) + "/formats/"
}

// ListCollectionContents fetches one page of a collection's contents. Callers
// drive pagination so they control ordering and throttling.
func (c *HTTPVaultClient) ListCollectionContents(ctx context.Context, collectionID string, page, perPage int) (*domain.Page[domain.ContentObject], error) {
	path := fmt.Sprintf("assets/v1/collections/%s/contents/?page=%d&per_page=%d", url.PathEscape(collectionID), page, perPage)
	var out domain.Page[domain.ContentObject]
	if err := c.req.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPVaultClient) GetAsset(ctx context.Context, assetID string) (*domain.Asset, error) {
	var out domain.Asset
	if err := c.req.Do(ctx, http.MethodGet, assetPath(assetID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPVaultClient) UpdateAssetStatus(ctx context.Context, assetID string, status domain.ArchiveStatus) error {
	body := map[string]string{"archive_status": string(status)}
	return c.req.Do(ctx, http.MethodPatch, assetPath(assetID), body, nil)
}

func (c *HTTPVaultClient) ListPlacements(ctx context.Context, assetID string) ([]domain.File, error) {
	return listAll[domain.File](ctx, c, filesPath(assetID))
}

func (c *HTTPVaultClient) ListFiles(ctx context.Context, assetID string) ([]domain.File, error) {
	all, err := c.ListPlacements(ctx, assetID)
	if err != nil {
		return nil, err
	}
	files := all[:0]
	for _, f := range all {
		if f.Status != domain.FileDeleted {
			files = append(files, f)
		}
	}
	return files, nil
}

func (c *HTTPVaultClient) CreateFile(ctx context.Context, assetID string, file domain.File) (*domain.File, error) {
	var out domain.File
	if err := c.req.Do(ctx, http.MethodPost, filesPath(assetID), file, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPVaultClient) UpdateFileStatus(ctx context.Context, assetID, fileID string, status domain.FileStatus) error {
	body := map[string]string{"status": string(status)}
	return c.req.Do(ctx, http.MethodPatch, filesPath(assetID)+url.PathEscape(fileID)+"/", body, nil)
}

func (c *HTTPVaultClient) ListFileSets(ctx context.Context, assetID string) ([]domain.FileSet, error) {
	all, err := listAll[domain.FileSet](ctx, c, fileSetsPath(assetID))
	if err != nil {
		return nil, err
	}
	sets := all[:0]
	for _, fs := range all {
		if fs.Status != domain.FileDeleted {
			sets = append(sets, fs)
		}
	}
	return sets, nil
}

func (c *HTTPVaultClient) CreateFileSet(ctx context.Context, assetID string, fileSet domain.FileSet) (*domain.FileSet, error) {
	var out domain.FileSet
	if err := c.req.Do(ctx, http.MethodPost, fileSetsPath(assetID), fileSet, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteFileSet soft-deletes a file set; the remote keeps it with status DELETED.
func (c *HTTPVaultClient) DeleteFileSet(ctx context.Context, assetID, fileSetID string) error {
	return c.req.Do(ctx, http.MethodDelete, fileSetsPath(assetID)+url.PathEscape(fileSetID)+"/", nil, nil)
}

func (c *HTTPVaultClient) ListFormats(ctx context.Context, assetID string) ([]domain.Format, error) {
	return listAll[domain.Format](ctx, c, formatsPath(assetID))
}

func (c *HTTPVaultClient) GetFormat(ctx context.Context, assetID, formatID string) (*domain.Format, error) {
	var out domain.Format
	if err := c.req.Do(ctx, http.MethodGet, formatsPath(assetID)+url.PathEscape(formatID)+"/", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPVaultClient) UpdateFormatStatus(ctx context.Context, assetID, formatID string, status domain.ArchiveStatus) error {
	body := map[string]string{"archive_status": string(status)}
	return c.req.Do(ctx, http.MethodPatch, formatsPath(assetID)+url.PathEscape(formatID)+"/", body, nil)
}

func (c *HTTPVaultClient) GetStorage(ctx context.Context, storageID string) (*domain.Storage, error) {
	var out domain.Storage
	if err := c.req.Do(ctx, http.MethodGet, "files/v1/storages/"+url.PathEscape(storageID)+"/", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindStorageByName returns the storage whose name matches exactly, or ErrStorageNotFound.
func (c *HTTPVaultClient) FindStorageByName(ctx context.Context, name string) (*domain.Storage, error) {
	storages, err := listAll[domain.Storage](ctx, c, "files/v1/storages/?name="+url.QueryEscape(name))
	if err != nil {
		return nil, err
	}
	for i := range storages {
		if storages[i].Name == name {
			return &storages[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrStorageNotFound, name)
}

// listAll follows a list endpoint's pages until the envelope reports the last one.
func listAll[T any](ctx context.Context, c *HTTPVaultClient, path string) ([]T, error) {
	sep := "?"
	if u, err := url.Parse(path); err == nil && u.RawQuery != "" {
		sep = "&"
	}

	var all []T
	for page := 1; page <= maxListPages; page++ {
		var out domain.Page[T]
		if err := c.req.Do(ctx, http.MethodGet, fmt.Sprintf("%s%spage=%d&per_page=%d", path, sep, page, c.pageSize), nil, &out); err != nil {
			return nil, err
		}
		all = append(all, out.Objects...)
		if !out.HasNext() {
			return all, nil
		}
	}
	return nil, fmt.Errorf("listing %s exceeded %d pages", path, maxListPages)
}
