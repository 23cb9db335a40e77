package service

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/google/uuid"

	"orbitdrive/internal/domain"
	"orbitdrive/internal/provider"
)

// FileCatalog is the durable record of uploaded files. Implemented by
// repository.FileRepository.
type FileCatalog interface {
	Create(ctx context.Context, file *domain.File) error
	GetByUUID(ctx context.Context, id uuid.UUID) (*domain.File, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.File, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ObjectStore is the multi-provider storage front. Implemented by
// provider.Orchestrator.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (*provider.PutResult, error)
	Get(ctx context.Context, key, knownProviderID string) (provider.Object, error)
	Delete(ctx context.Context, key, knownProviderID string) (bool, error)
}

// FileService sequences quota check, provider upload, catalog write and
// usage accounting so that no step can leave the three out of line: a record
// only ever exists once its bytes are durable, and usage is only counted
// once both exist.
type FileService struct {
	files FileCatalog
	store ObjectStore
	quota *QuotaService
}

func NewFileService(files FileCatalog, store ObjectStore, quota *QuotaService) *FileService {
	return &FileService{
		files: files,
		store: store,
		quota: quota,
	}
}

// Upload runs the full sequence. Quota is checked before paying for the
// network transfer; if the catalog write fails after the bytes landed, the
// object is best-effort removed again so it does not linger as an orphan.
// A crash between upload and accounting leaves an orphaned object for the
// reconciliation sweep, never an under-counted quota.
func (s *FileService) Upload(ctx context.Context, ownerID, name, contentType string, data []byte) (*domain.File, error) {
	if name == "" {
		return nil, fmt.Errorf("file name is required")
	}

	size := int64(len(data))

	ok, err := s.quota.CheckCapacity(ctx, ownerID, size)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrQuotaExceeded
	}

	// The file id doubles as the key stem, namespaced by owner so keys from
	// different users can never collide.
	id := uuid.New()
	key := fmt.Sprintf("%s/%s%s", ownerID, id, filepath.Ext(name))

	result, err := s.store.Put(ctx, key, data, contentType)
	if err != nil {
		return nil, err
	}

	file := &domain.File{
		UUID:       id,
		Name:       name,
		MIMEType:   contentType,
		SizeBytes:  size,
		StorageKey: result.Key,
		ProviderID: result.ProviderID,
		OwnerID:    ownerID,
	}

	if err := s.files.Create(ctx, file); err != nil {
		if _, delErr := s.store.Delete(ctx, result.Key, result.ProviderID); delErr != nil {
			log.Printf("[Files] failed to clean up object %s at %s after catalog error: %v",
				result.Key, result.ProviderID, delErr)
		}
		return nil, fmt.Errorf("failed to record uploaded file: %w", err)
	}

	if err := s.quota.RecordUsage(ctx, ownerID, size); err != nil {
		return nil, fmt.Errorf("failed to record usage: %w", err)
	}

	return file, nil
}

func (s *FileService) List(ctx context.Context, ownerID string) ([]domain.File, error) {
	return s.files.ListByOwner(ctx, ownerID)
}

// GetMetadata returns the record if it exists and belongs to ownerID. A
// record owned by someone else reads as not found so non-owners learn
// nothing from the response.
func (s *FileService) GetMetadata(ctx context.Context, id uuid.UUID, ownerID string) (*domain.File, error) {
	file, err := s.files.GetByUUID(ctx, id)
	if err != nil {
		return nil, err
	}
	if file.OwnerID != ownerID {
		return nil, domain.ErrFileNotFound
	}
	return file, nil
}

// OpenDownload resolves the record and opens the byte stream from whichever
// provider can serve it. The caller owns closing the stream.
func (s *FileService) OpenDownload(ctx context.Context, id uuid.UUID, ownerID string) (*domain.File, provider.Object, error) {
	file, err := s.GetMetadata(ctx, id, ownerID)
	if err != nil {
		return nil, nil, err
	}

	obj, err := s.store.Get(ctx, file.StorageKey, file.ProviderID)
	if err != nil {
		return nil, nil, err
	}

	return file, obj, nil
}

// Delete removes the provider object first, then the record, then the usage.
// If the provider delete fails the record stays, preserving the invariant
// that every record points at live bytes.
func (s *FileService) Delete(ctx context.Context, id uuid.UUID, ownerID string) error {
	file, err := s.GetMetadata(ctx, id, ownerID)
	if err != nil {
		return err
	}

	existed, err := s.store.Delete(ctx, file.StorageKey, file.ProviderID)
	if err != nil {
		return fmt.Errorf("failed to delete stored object: %w", err)
	}
	if !existed {
		log.Printf("[Files] object %s was already absent at %s", file.StorageKey, file.ProviderID)
	}

	if err := s.files.Delete(ctx, id); err != nil {
		return err
	}

	return s.quota.RecordUsage(ctx, ownerID, -file.SizeBytes)
}
