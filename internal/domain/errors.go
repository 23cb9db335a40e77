package domain

import "errors"

var (
	// ErrQuotaExceeded rejects an upload that would push the owner past the
	// capacity ceiling for the current cycle.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrAllProvidersUnavailable means every configured provider either
	// reported unavailable or failed the call. The object may still exist at
	// its recorded provider, so callers must surface this as "try again
	// later", never as data loss.
	ErrAllProvidersUnavailable = errors.New("all storage providers unavailable")

	// ErrFileNotFound covers both a missing record and a record owned by
	// someone else, so non-owners cannot probe for existence.
	ErrFileNotFound = errors.New("file not found")

	// ErrObjectNotFound is returned by a provider when the key is absent in
	// that one backend.
	ErrObjectNotFound = errors.New("object not found")

	// ErrUserNotFound means no quota state exists for the user.
	ErrUserNotFound = errors.New("user not found")

	// ErrUnknownProvider means a record names a provider id that is not in
	// the configured list. Configuration error, not retryable.
	ErrUnknownProvider = errors.New("unknown storage provider")
)
