package domain

import (
	"time"

	"github.com/google/uuid"
)

// File binds a logical file id to the provider and key holding its bytes.
// Records are immutable once written: they are created only after a
// successful provider upload and removed only after the provider object is
// gone (or confirmed already absent).
type File struct {
	UUID       uuid.UUID `json:"uuid" db:"uuid"`
	Name       string    `json:"name" db:"name"`
	MIMEType   string    `json:"mime_type" db:"mime_type"`
	SizeBytes  int64     `json:"size_bytes" db:"size_bytes"`
	StorageKey string    `json:"-" db:"storage_key"`
	ProviderID string    `json:"provider_id" db:"provider_id"`
	OwnerID    string    `json:"owner_id" db:"owner_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
