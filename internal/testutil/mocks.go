// Package testutil provides test utilities including fakes, mocks and fixtures.
package testutil

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/mescon/Archivarr/internal/domain"
	"github.com/mescon/Archivarr/internal/eventbus"
	"github.com/mescon/Archivarr/internal/integration"
)

// MockCall records a method call for verification in tests.
type MockCall struct {
	Method string
	Args   []interface{}
}

// String renders the call as "Method arg1 arg2".
func (c MockCall) String() string {
	parts := []string{c.Method}
	for _, a := range c.Args {
		parts = append(parts, fmt.Sprint(a))
	}
	return strings.Join(parts, " ")
}

// callLog is embedded by fakes that record calls.
type callLog struct {
	callMu sync.Mutex
	Calls  []MockCall
}

func (l *callLog) recordCall(method string, args ...interface{}) {
	l.callMu.Lock()
	defer l.callMu.Unlock()
	l.Calls = append(l.Calls, MockCall{Method: method, Args: args})
}

// CallCount returns the number of times a method was called.
func (l *callLog) CallCount(method string) int {
	l.callMu.Lock()
	defer l.callMu.Unlock()
	count := 0
	for _, call := range l.Calls {
		if call.Method == method {
			count++
		}
	}
	return count
}

// CallsMatching returns the recorded calls whose method passes keep, in call order.
func (l *callLog) CallsMatching(keep func(method string) bool) []string {
	l.callMu.Lock()
	defer l.callMu.Unlock()
	var out []string
	for _, call := range l.Calls {
		if keep(call.Method) {
			out = append(out, call.String())
		}
	}
	return out
}

// ResetCalls clears the call history.
func (l *callLog) ResetCalls() {
	l.callMu.Lock()
	defer l.callMu.Unlock()
	l.Calls = nil
}

// =============================================================================
// FakeVaultClient - stateful stand-in for the remote API
// =============================================================================

// IsWriteMethod reports whether a VaultClient method mutates remote state.
func IsWriteMethod(method string) bool {
	return strings.HasPrefix(method, "Update") || strings.HasPrefix(method, "Create") || strings.HasPrefix(method, "Delete")
}

// FakeVaultClient implements integration.VaultClient over in-memory records.
// Writes change the records, so a second pass sees the effects of the first.
// Set a *Func field to override one method, or use FailOn to inject errors.
type FakeVaultClient struct {
	callLog

	ListCollectionContentsFunc func(ctx context.Context, collectionID string, page, perPage int) (*domain.Page[domain.ContentObject], error)
	GetAssetFunc               func(ctx context.Context, assetID string) (*domain.Asset, error)
	ListFilesFunc              func(ctx context.Context, assetID string) ([]domain.File, error)

	mu          sync.Mutex
	collections map[string][]domain.ContentObject
	assets      map[string]*domain.Asset
	files       map[string][]domain.File
	fileSets    map[string][]domain.FileSet
	formats     map[string][]domain.Format
	storages    map[string]domain.Storage
	failures    map[string]error
	nextID      int
}

// Compile-time assertion that FakeVaultClient implements integration.VaultClient
var _ integration.VaultClient = (*FakeVaultClient)(nil)

// NewFakeVaultClient returns an empty fake.
func NewFakeVaultClient() *FakeVaultClient {
	return &FakeVaultClient{
		collections: make(map[string][]domain.ContentObject),
		assets:      make(map[string]*domain.Asset),
		files:       make(map[string][]domain.File),
		fileSets:    make(map[string][]domain.FileSet),
		formats:     make(map[string][]domain.Format),
		storages:    make(map[string]domain.Storage),
		failures:    make(map[string]error),
	}
}

// FailOn makes method fail with err whenever it is called for key. The key is
// the first id argument: collection id, asset id or storage id. An empty key
// matches every call.
func (f *FakeVaultClient) FailOn(method, key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method+"|"+key] = err
}

// ClearFailures removes every injected failure.
func (f *FakeVaultClient) ClearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = make(map[string]error)
}

func (f *FakeVaultClient) failure(method, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failures[method+"|"+key]; ok {
		return err
	}
	return f.failures[method+"|"]
}

// ReadCalls returns the read calls in call order.
func (f *FakeVaultClient) ReadCalls() []string {
	return f.CallsMatching(func(m string) bool { return !IsWriteMethod(m) })
}

// WriteCalls returns the write calls in call order.
func (f *FakeVaultClient) WriteCalls() []string {
	return f.CallsMatching(IsWriteMethod)
}

func notFound(method, path string) error {
	return &integration.APIError{Method: method, Path: path, StatusCode: http.StatusNotFound}
}

func (f *FakeVaultClient) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

// -----------------------------------------------------------------------------
// Seeding
// -----------------------------------------------------------------------------

// AddCollection sets the contents of a collection, in listing order.
func (f *FakeVaultClient) AddCollection(id string, objects ...domain.ContentObject) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collections[id] = append(f.collections[id], objects...)
}

// AddAsset stores an asset record.
func (f *FakeVaultClient) AddAsset(asset domain.Asset) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := asset
	f.assets[asset.ID] = &a
}

// AddStorage stores a storage record.
func (f *FakeVaultClient) AddStorage(s domain.Storage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storages[s.ID] = s
}

// AddFile stores a file record for an asset.
func (f *FakeVaultClient) AddFile(assetID string, file domain.File) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[assetID] = append(f.files[assetID], file)
}

// AddFileSet stores a file set record for an asset.
func (f *FakeVaultClient) AddFileSet(assetID string, fs domain.FileSet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fileSets[assetID] = append(f.fileSets[assetID], fs)
}

// AddFormat stores a format record for an asset.
func (f *FakeVaultClient) AddFormat(assetID string, format domain.Format) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.formats[assetID] = append(f.formats[assetID], format)
}

// -----------------------------------------------------------------------------
// Inspection
// -----------------------------------------------------------------------------

// Asset returns a copy of the stored asset.
func (f *FakeVaultClient) Asset(id string) domain.Asset {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.assets[id]; ok {
		return *a
	}
	return domain.Asset{}
}

// AllFiles returns every file record of an asset, DELETED ones included.
func (f *FakeVaultClient) AllFiles(assetID string) []domain.File {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.File(nil), f.files[assetID]...)
}

// AllFileSets returns every file set of an asset, DELETED ones included.
func (f *FakeVaultClient) AllFileSets(assetID string) []domain.FileSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.FileSet(nil), f.fileSets[assetID]...)
}

// FormatStatuses returns format id -> archive status for an asset.
func (f *FakeVaultClient) FormatStatuses(assetID string) map[string]domain.ArchiveStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]domain.ArchiveStatus)
	for _, fm := range f.formats[assetID] {
		out[fm.ID] = fm.ArchiveStatus
	}
	return out
}

// -----------------------------------------------------------------------------
// integration.VaultClient
// -----------------------------------------------------------------------------

func (f *FakeVaultClient) ListCollectionContents(ctx context.Context, collectionID string, page, perPage int) (*domain.Page[domain.ContentObject], error) {
	f.recordCall("ListCollectionContents", collectionID, page)
	if f.ListCollectionContentsFunc != nil {
		return f.ListCollectionContentsFunc(ctx, collectionID, page, perPage)
	}
	if err := f.failure("ListCollectionContents", collectionID); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	all, ok := f.collections[collectionID]
	if !ok {
		return nil, notFound(http.MethodGet, "collections/"+collectionID)
	}
	return PageOf(all, page, perPage), nil
}

func (f *FakeVaultClient) GetAsset(ctx context.Context, assetID string) (*domain.Asset, error) {
	f.recordCall("GetAsset", assetID)
	if f.GetAssetFunc != nil {
		return f.GetAssetFunc(ctx, assetID)
	}
	if err := f.failure("GetAsset", assetID); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assets[assetID]
	if !ok {
		return nil, notFound(http.MethodGet, "assets/"+assetID)
	}
	out := *a
	return &out, nil
}

func (f *FakeVaultClient) UpdateAssetStatus(_ context.Context, assetID string, status domain.ArchiveStatus) error {
	f.recordCall("UpdateAssetStatus", assetID, status)
	if err := f.failure("UpdateAssetStatus", assetID); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assets[assetID]
	if !ok {
		return notFound(http.MethodPatch, "assets/"+assetID)
	}
	a.ArchiveStatus = status
	return nil
}

func (f *FakeVaultClient) ListFiles(ctx context.Context, assetID string) ([]domain.File, error) {
	f.recordCall("ListFiles", assetID)
	if f.ListFilesFunc != nil {
		return f.ListFilesFunc(ctx, assetID)
	}
	if err := f.failure("ListFiles", assetID); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.File
	for _, file := range f.files[assetID] {
		if file.Status != domain.FileDeleted {
			out = append(out, file)
		}
	}
	return out, nil
}

func (f *FakeVaultClient) ListPlacements(_ context.Context, assetID string) ([]domain.File, error) {
	f.recordCall("ListPlacements", assetID)
	if err := f.failure("ListPlacements", assetID); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.File(nil), f.files[assetID]...), nil
}

func (f *FakeVaultClient) CreateFile(_ context.Context, assetID string, file domain.File) (*domain.File, error) {
	f.recordCall("CreateFile", assetID, file.StorageID)
	if err := f.failure("CreateFile", assetID); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	file.ID = f.newID("file")
	f.files[assetID] = append(f.files[assetID], file)
	return &file, nil
}

func (f *FakeVaultClient) UpdateFileStatus(_ context.Context, assetID, fileID string, status domain.FileStatus) error {
	f.recordCall("UpdateFileStatus", assetID, fileID, status)
	if err := f.failure("UpdateFileStatus", assetID); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.files[assetID] {
		if f.files[assetID][i].ID == fileID {
			f.files[assetID][i].Status = status
			return nil
		}
	}
	return notFound(http.MethodPatch, "files/"+fileID)
}

func (f *FakeVaultClient) ListFileSets(_ context.Context, assetID string) ([]domain.FileSet, error) {
	f.recordCall("ListFileSets", assetID)
	if err := f.failure("ListFileSets", assetID); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.FileSet
	for _, fs := range f.fileSets[assetID] {
		if fs.Status != domain.FileDeleted {
			out = append(out, fs)
		}
	}
	return out, nil
}

func (f *FakeVaultClient) CreateFileSet(_ context.Context, assetID string, fs domain.FileSet) (*domain.FileSet, error) {
	f.recordCall("CreateFileSet", assetID, fs.StorageID)
	if err := f.failure("CreateFileSet", assetID); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	fs.ID = f.newID("fs")
	f.fileSets[assetID] = append(f.fileSets[assetID], fs)
	return &fs, nil
}

// DeleteFileSet marks the file set and its files DELETED, as the remote does.
func (f *FakeVaultClient) DeleteFileSet(_ context.Context, assetID, fileSetID string) error {
	f.recordCall("DeleteFileSet", assetID, fileSetID)
	if err := f.failure("DeleteFileSet", assetID+"/"+fileSetID); err != nil {
		return err
	}
	if err := f.failure("DeleteFileSet", assetID); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	found := false
	for i := range f.fileSets[assetID] {
		if f.fileSets[assetID][i].ID == fileSetID {
			f.fileSets[assetID][i].Status = domain.FileDeleted
			found = true
		}
	}
	if !found {
		return notFound(http.MethodDelete, "file_sets/"+fileSetID)
	}
	for i := range f.files[assetID] {
		if f.files[assetID][i].FileSetID == fileSetID {
			f.files[assetID][i].Status = domain.FileDeleted
		}
	}
	return nil
}

func (f *FakeVaultClient) ListFormats(_ context.Context, assetID string) ([]domain.Format, error) {
	f.recordCall("ListFormats", assetID)
	if err := f.failure("ListFormats", assetID); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Format(nil), f.formats[assetID]...), nil
}

func (f *FakeVaultClient) GetFormat(_ context.Context, assetID, formatID string) (*domain.Format, error) {
	f.recordCall("GetFormat", assetID, formatID)
	if err := f.failure("GetFormat", assetID); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fm := range f.formats[assetID] {
		if fm.ID == formatID {
			out := fm
			return &out, nil
		}
	}
	return nil, notFound(http.MethodGet, "formats/"+formatID)
}

func (f *FakeVaultClient) UpdateFormatStatus(_ context.Context, assetID, formatID string, status domain.ArchiveStatus) error {
	f.recordCall("UpdateFormatStatus", assetID, formatID, status)
	if err := f.failure("UpdateFormatStatus", assetID); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.formats[assetID] {
		if f.formats[assetID][i].ID == formatID {
			f.formats[assetID][i].ArchiveStatus = status
			return nil
		}
	}
	return notFound(http.MethodPatch, "formats/"+formatID)
}

func (f *FakeVaultClient) GetStorage(_ context.Context, storageID string) (*domain.Storage, error) {
	f.recordCall("GetStorage", storageID)
	if err := f.failure("GetStorage", storageID); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.storages[storageID]
	if !ok {
		return nil, notFound(http.MethodGet, "storages/"+storageID)
	}
	return &s, nil
}

func (f *FakeVaultClient) FindStorageByName(_ context.Context, name string) (*domain.Storage, error) {
	f.recordCall("FindStorageByName", name)
	if err := f.failure("FindStorageByName", name); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.storages))
	for id := range f.storages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if s := f.storages[id]; s.Name == name {
			return &s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", integration.ErrStorageNotFound, name)
}

// PageOf slices all into the list envelope the API returns for page.
func PageOf[T any](all []T, page, perPage int) *domain.Page[T] {
	if perPage < 1 {
		perPage = 100
	}
	pages := (len(all) + perPage - 1) / perPage
	start := (page - 1) * perPage
	if start > len(all) {
		start = len(all)
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	return &domain.Page[T]{
		Objects: append([]T(nil), all[start:end]...),
		Page:    page,
		Pages:   pages,
		PerPage: perPage,
		Total:   len(all),
	}
}

// =============================================================================
// RecordingFS - call-recording wrapper for integration.FileSystem
// =============================================================================

// RecordingFS wraps a FileSystem, records calls and can inject failures per path.
type RecordingFS struct {
	callLog
	Inner integration.FileSystem

	mu       sync.Mutex
	failures map[string]error
	// AfterCopy, when set, runs after each successful Copy. Tests use it to
	// truncate the destination.
	AfterCopy func(src, dst string)
}

// Compile-time assertion that RecordingFS implements integration.FileSystem
var _ integration.FileSystem = (*RecordingFS)(nil)

// NewRecordingFS wraps inner.
func NewRecordingFS(inner integration.FileSystem) *RecordingFS {
	return &RecordingFS{Inner: inner, failures: make(map[string]error)}
}

// FailOn makes method fail with err for path.
func (r *RecordingFS) FailOn(method, path string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[method+"|"+path] = err
}

func (r *RecordingFS) failure(method, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures[method+"|"+path]
}

func (r *RecordingFS) Stat(path string) (integration.FileInfo, error) {
	r.recordCall("Stat", path)
	if err := r.failure("Stat", path); err != nil {
		return integration.FileInfo{}, err
	}
	return r.Inner.Stat(path)
}

func (r *RecordingFS) Copy(src, dst string) (int64, error) {
	r.recordCall("Copy", src, dst)
	if err := r.failure("Copy", src); err != nil {
		return 0, err
	}
	n, err := r.Inner.Copy(src, dst)
	if err == nil && r.AfterCopy != nil {
		r.AfterCopy(src, dst)
	}
	return n, err
}

func (r *RecordingFS) Remove(path string) error {
	r.recordCall("Remove", path)
	if err := r.failure("Remove", path); err != nil {
		return err
	}
	return r.Inner.Remove(path)
}

func (r *RecordingFS) CheckMount(root string) error {
	r.recordCall("CheckMount", root)
	if err := r.failure("CheckMount", root); err != nil {
		return err
	}
	return r.Inner.CheckMount(root)
}

// =============================================================================
// MockEventBus - Synchronous event capture
// =============================================================================

// MockEventBus captures published events and calls subscribers synchronously.
// Implements eventbus.Publisher interface.
type MockEventBus struct {
	mu              sync.Mutex
	PublishedEvents []domain.Event
	Subscribers     map[domain.EventType][]func(domain.Event)
}

// Compile-time assertion that MockEventBus implements eventbus.Publisher
var _ eventbus.Publisher = (*MockEventBus)(nil)

// NewMockEventBus creates a new mock event bus.
func NewMockEventBus() *MockEventBus {
	return &MockEventBus{
		Subscribers: make(map[domain.EventType][]func(domain.Event)),
	}
}

// Publish stores the event and notifies subscribers synchronously.
func (m *MockEventBus) Publish(event domain.Event) error {
	m.mu.Lock()
	m.PublishedEvents = append(m.PublishedEvents, event)
	subscribers := m.Subscribers[event.EventType]
	m.mu.Unlock()

	for _, handler := range subscribers {
		handler(event)
	}
	return nil
}

// Subscribe registers a handler for the given event type.
func (m *MockEventBus) Subscribe(eventType domain.EventType, handler func(domain.Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Subscribers[eventType] = append(m.Subscribers[eventType], handler)
}

// GetEvents returns all published events of a given type.
func (m *MockEventBus) GetEvents(eventType domain.EventType) []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Event
	for _, e := range m.PublishedEvents {
		if e.EventType == eventType {
			result = append(result, e)
		}
	}
	return result
}

// EventsFor returns the events published for one aggregate id, in order.
func (m *MockEventBus) EventsFor(aggregateID string) []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Event
	for _, e := range m.PublishedEvents {
		if e.AggregateID == aggregateID {
			result = append(result, e)
		}
	}
	return result
}

// EventCount returns the number of events of a given type.
func (m *MockEventBus) EventCount(eventType domain.EventType) int {
	return len(m.GetEvents(eventType))
}
