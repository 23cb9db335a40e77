// Package provider contains the object-storage backend adapters and the
// failover orchestrator that sequences them.
package provider

import (
	"context"
	"io"
)

// Object is a downloaded object's byte stream plus the metadata needed to
// serve it.
type Object interface {
	io.ReadCloser
	ContentLength() int64
	ContentType() string
}

// object implements Object over any ReadCloser.
type object struct {
	io.ReadCloser
	contentLength int64
	contentType   string
}

func (o *object) ContentLength() int64 {
	return o.contentLength
}

func (o *object) ContentType() string {
	return o.contentType
}

// PutResult reports where an upload landed. ProviderID is recorded in the
// file catalog so later downloads and deletes go to the right backend.
type PutResult struct {
	ProviderID string
	Key        string
	Location   string
	Size       int64
}

// Provider wraps a single remote object-storage backend. Implementations
// hold their own client and credentials, know nothing about other providers,
// and are safe for concurrent use.
type Provider interface {
	// ID returns the configured identifier carried on records and results.
	ID() string

	// Upload stores data under key and returns a provider-native location
	// reference for logging.
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Download opens the object at key. Returns domain.ErrObjectNotFound if
	// the key is absent in this backend.
	Download(ctx context.Context, key string) (Object, error)

	// Delete removes the object at key. Returns false, not an error, when
	// the key was already absent.
	Delete(ctx context.Context, key string) (bool, error)

	// IsAvailable is a cheap liveness probe. It never returns an error: any
	// internal fault reads as false.
	IsAvailable(ctx context.Context) bool
}
