package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orbitdrive/internal/domain"
	"orbitdrive/internal/provider"
)

// memCatalog is an in-memory FileCatalog.
type memCatalog struct {
	files     map[uuid.UUID]*domain.File
	createErr error
	seq       int
}

func newMemCatalog() *memCatalog {
	return &memCatalog{files: make(map[uuid.UUID]*domain.File)}
}

func (m *memCatalog) Create(_ context.Context, file *domain.File) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.seq++
	file.CreatedAt = time.Unix(int64(m.seq), 0)
	cp := *file
	m.files[file.UUID] = &cp
	return nil
}

func (m *memCatalog) GetByUUID(_ context.Context, id uuid.UUID) (*domain.File, error) {
	f, ok := m.files[id]
	if !ok {
		return nil, domain.ErrFileNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *memCatalog) ListByOwner(_ context.Context, ownerID string) ([]domain.File, error) {
	var out []domain.File
	for _, f := range m.files {
		if f.OwnerID == ownerID {
			out = append(out, *f)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.After(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (m *memCatalog) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.files[id]; !ok {
		return domain.ErrFileNotFound
	}
	delete(m.files, id)
	return nil
}

// fakeObjectStore is an in-memory ObjectStore with scriptable failures.
type fakeObjectStore struct {
	objects    map[string][]byte
	providerID string
	putErr     error
	getErr     error
	deleteErr  error
	deletes    []string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		objects:    make(map[string][]byte),
		providerID: "primary",
	}
}

func (f *fakeObjectStore) Put(_ context.Context, key string, data []byte, _ string) (*provider.PutResult, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.objects[key] = data
	return &provider.PutResult{
		ProviderID: f.providerID,
		Key:        key,
		Location:   "fake://" + key,
		Size:       int64(len(data)),
	}, nil
}

func (f *fakeObjectStore) Get(_ context.Context, key, _ string) (provider.Object, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, domain.ErrAllProvidersUnavailable
	}
	return fakeObject{ReadCloser: io.NopCloser(bytes.NewReader(data)), size: int64(len(data))}, nil
}

func (f *fakeObjectStore) Delete(_ context.Context, key, _ string) (bool, error) {
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	f.deletes = append(f.deletes, key)
	_, ok := f.objects[key]
	delete(f.objects, key)
	return ok, nil
}

type fakeObject struct {
	io.ReadCloser
	size int64
}

func (o fakeObject) ContentLength() int64 { return o.size }
func (o fakeObject) ContentType() string  { return "application/octet-stream" }

type fileFixture struct {
	files   *FileService
	catalog *memCatalog
	store   *fakeObjectStore
	quota   *memQuotaStore
}

// newFileFixture wires a FileService over in-memory collaborators with one
// provisioned user "u1" (alice) capped at capacity bytes.
func newFileFixture(t *testing.T, capacity int64) *fileFixture {
	t.Helper()

	quotaStore := newMemQuotaStore()
	quotaService := newTestQuotaService(quotaStore, time.Date(2025, time.March, 5, 10, 0, 0, 0, time.UTC))
	_, err := quotaService.Provision(context.Background(), "u1", "alice")
	require.NoError(t, err)
	require.NoError(t, quotaStore.UpdateLimit(context.Background(), "u1", capacity))

	catalog := newMemCatalog()
	store := newFakeObjectStore()

	return &fileFixture{
		files:   NewFileService(catalog, store, quotaService),
		catalog: catalog,
		store:   store,
		quota:   quotaStore,
	}
}

func (fx *fileFixture) usage(t *testing.T, owner string) int64 {
	t.Helper()
	q, err := fx.quota.GetQuota(context.Background(), owner)
	require.NoError(t, err)
	return q.UsedBytes
}

func TestUploadHappyPath(t *testing.T) {
	fx := newFileFixture(t, 1000)

	file, err := fx.files.Upload(context.Background(), "u1", "report.pdf", "application/pdf", make([]byte, 600))
	require.NoError(t, err)

	assert.Equal(t, "primary", file.ProviderID)
	assert.Equal(t, int64(600), file.SizeBytes)
	assert.Contains(t, file.StorageKey, "u1/", "keys are namespaced by owner")
	assert.Contains(t, file.StorageKey, ".pdf", "keys keep the original extension")

	assert.Equal(t, int64(600), fx.usage(t, "u1"))
	assert.Equal(t, int64(600), fx.quota.daily["u1"]["2025-03-05"])
	assert.Contains(t, fx.store.objects, file.StorageKey)
}

func TestUploadRejectedWhenOverQuota(t *testing.T) {
	fx := newFileFixture(t, 1000)

	_, err := fx.files.Upload(context.Background(), "u1", "a.bin", "application/octet-stream", make([]byte, 600))
	require.NoError(t, err)

	_, err = fx.files.Upload(context.Background(), "u1", "b.bin", "application/octet-stream", make([]byte, 500))
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)

	assert.Equal(t, int64(600), fx.usage(t, "u1"), "a rejected upload must not change usage")
	assert.Len(t, fx.store.objects, 1, "the rejected upload must never reach a provider")
}

func TestUploadUnknownUserHasNoSideEffects(t *testing.T) {
	fx := newFileFixture(t, 1000)

	_, err := fx.files.Upload(context.Background(), "ghost", "a.bin", "", []byte("x"))
	require.ErrorIs(t, err, domain.ErrUserNotFound)
	assert.Empty(t, fx.store.objects)
	assert.Empty(t, fx.catalog.files)
}

func TestUploadPropagatesProviderExhaustion(t *testing.T) {
	fx := newFileFixture(t, 1000)
	fx.store.putErr = domain.ErrAllProvidersUnavailable

	_, err := fx.files.Upload(context.Background(), "u1", "a.bin", "", make([]byte, 100))
	require.ErrorIs(t, err, domain.ErrAllProvidersUnavailable)

	assert.Empty(t, fx.catalog.files, "no record may exist without bytes")
	assert.Zero(t, fx.usage(t, "u1"), "no usage may be billed without bytes")
}

func TestUploadCleansUpObjectWhenCatalogFails(t *testing.T) {
	fx := newFileFixture(t, 1000)
	fx.catalog.createErr = errors.New("deadlock detected")

	_, err := fx.files.Upload(context.Background(), "u1", "a.bin", "", make([]byte, 100))
	require.Error(t, err)

	assert.Len(t, fx.store.deletes, 1, "the stored object is removed again when the record cannot be written")
	assert.Empty(t, fx.store.objects)
	assert.Zero(t, fx.usage(t, "u1"))
}

func TestDeleteReversesUpload(t *testing.T) {
	fx := newFileFixture(t, 1000)

	file, err := fx.files.Upload(context.Background(), "u1", "a.bin", "", make([]byte, 600))
	require.NoError(t, err)
	require.Equal(t, int64(600), fx.usage(t, "u1"))

	require.NoError(t, fx.files.Delete(context.Background(), file.UUID, "u1"))

	assert.Zero(t, fx.usage(t, "u1"))
	assert.Empty(t, fx.store.objects)

	_, err = fx.files.GetMetadata(context.Background(), file.UUID, "u1")
	require.ErrorIs(t, err, domain.ErrFileNotFound)
}

func TestDeleteKeepsRecordWhenStorageDeleteFails(t *testing.T) {
	fx := newFileFixture(t, 1000)

	file, err := fx.files.Upload(context.Background(), "u1", "a.bin", "", make([]byte, 600))
	require.NoError(t, err)

	fx.store.deleteErr = errors.New("timeout")
	err = fx.files.Delete(context.Background(), file.UUID, "u1")
	require.Error(t, err)

	_, err = fx.files.GetMetadata(context.Background(), file.UUID, "u1")
	require.NoError(t, err, "record must survive so it still points at live bytes")
	assert.Equal(t, int64(600), fx.usage(t, "u1"))
}

func TestOpenDownloadStreamsStoredBytes(t *testing.T) {
	fx := newFileFixture(t, 1000)

	payload := []byte("hello world")
	file, err := fx.files.Upload(context.Background(), "u1", "hello.txt", "text/plain", payload)
	require.NoError(t, err)

	meta, obj, err := fx.files.OpenDownload(context.Background(), file.UUID, "u1")
	require.NoError(t, err)
	defer obj.Close()

	assert.Equal(t, file.UUID, meta.UUID)
	data, err := io.ReadAll(obj)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestListReturnsNewestFirst(t *testing.T) {
	fx := newFileFixture(t, 10000)

	first, err := fx.files.Upload(context.Background(), "u1", "first.txt", "text/plain", []byte("1"))
	require.NoError(t, err)
	second, err := fx.files.Upload(context.Background(), "u1", "second.txt", "text/plain", []byte("2"))
	require.NoError(t, err)

	files, err := fx.files.List(context.Background(), "u1")
	require.NoError(t, err)

	require.Len(t, files, 2)
	assert.Equal(t, second.UUID, files[0].UUID)
	assert.Equal(t, first.UUID, files[1].UUID)
}

func TestOwnershipIsolation(t *testing.T) {
	fx := newFileFixture(t, 1000)

	file, err := fx.files.Upload(context.Background(), "u1", "private.txt", "text/plain", []byte("secret"))
	require.NoError(t, err)

	// Every operation reads as not-found for a non-owner, never as
	// forbidden, so existence does not leak.
	_, err = fx.files.GetMetadata(context.Background(), file.UUID, "intruder")
	assert.ErrorIs(t, err, domain.ErrFileNotFound)

	_, _, err = fx.files.OpenDownload(context.Background(), file.UUID, "intruder")
	assert.ErrorIs(t, err, domain.ErrFileNotFound)

	err = fx.files.Delete(context.Background(), file.UUID, "intruder")
	assert.ErrorIs(t, err, domain.ErrFileNotFound)

	_, err = fx.files.GetMetadata(context.Background(), file.UUID, "u1")
	assert.NoError(t, err, "the owner still sees the file")
}
