package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"orbitdrive/internal/domain"
)

// FileRepository is the durable file catalog. Rows are immutable: there is
// deliberately no Update.
type FileRepository struct {
	db *sqlx.DB
}

func NewFileRepository(db *sqlx.DB) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) Create(ctx context.Context, file *domain.File) error {
	query := `
        INSERT INTO files (uuid, name, mime_type, size_bytes, storage_key, provider_id, owner_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING created_at`

	err := r.db.QueryRowContext(
		ctx,
		query,
		file.UUID,
		file.Name,
		file.MIMEType,
		file.SizeBytes,
		file.StorageKey,
		file.ProviderID,
		file.OwnerID,
	).Scan(&file.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}

	return nil
}

func (r *FileRepository) GetByUUID(ctx context.Context, id uuid.UUID) (*domain.File, error) {
	var file domain.File
	query := `SELECT * FROM files WHERE uuid = $1`

	err := r.db.GetContext(ctx, &file, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	return &file, nil
}

func (r *FileRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.File, error) {
	var files []domain.File
	query := `SELECT * FROM files WHERE owner_id = $1 ORDER BY created_at DESC`

	err := r.db.SelectContext(ctx, &files, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return files, nil
}

func (r *FileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE uuid = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return domain.ErrFileNotFound
	}

	return nil
}
