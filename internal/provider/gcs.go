package provider

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"orbitdrive/internal/domain"
)

// GCSProvider wraps one Google Cloud Storage bucket.
type GCSProvider struct {
	id     string
	client *storage.Client
	bucket string
}

// NewGCSProvider creates the GCS client. credentialsFile may be empty, in
// which case application default credentials apply.
func NewGCSProvider(ctx context.Context, id, bucket, credentialsFile string) (*GCSProvider, error) {
	if id == "" {
		return nil, fmt.Errorf("provider id is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSProvider{
		id:     id,
		client: client,
		bucket: bucket,
	}, nil
}

func (p *GCSProvider) ID() string {
	return p.id
}

func (p *GCSProvider) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("key is required")
	}

	w := p.client.Bucket(p.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to write object to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize GCS upload: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", p.bucket, key), nil
}

func (p *GCSProvider) Download(ctx context.Context, key string) (Object, error) {
	r, err := p.client.Bucket(p.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to open object from GCS: %w", err)
	}

	return &object{
		ReadCloser:    r,
		contentLength: r.Attrs.Size,
		contentType:   r.Attrs.ContentType,
	}, nil
}

func (p *GCSProvider) Delete(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("key is required")
	}

	err := p.client.Bucket(p.bucket).Object(key).Delete(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete object from GCS: %w", err)
	}

	return true, nil
}

func (p *GCSProvider) IsAvailable(ctx context.Context) bool {
	_, err := p.client.Bucket(p.bucket).Attrs(ctx)
	return err == nil
}
