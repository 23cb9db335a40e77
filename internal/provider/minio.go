package provider

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"orbitdrive/internal/domain"
)

// MinioProvider wraps one MinIO (or other S3-compatible) bucket through the
// native MinIO SDK.
type MinioProvider struct {
	id     string
	client *minio.Client
	bucket string
}

// MinioOptions carries the per-bucket connection settings.
type MinioOptions struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
}

func NewMinioProvider(id string, opts MinioOptions) (*MinioProvider, error) {
	if id == "" {
		return nil, fmt.Errorf("provider id is required")
	}
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, fmt.Errorf("endpoint and bucket are required")
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioProvider{
		id:     id,
		client: client,
		bucket: opts.Bucket,
	}, nil
}

func (p *MinioProvider) ID() string {
	return p.id
}

func (p *MinioProvider) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("key is required")
	}

	_, err := p.client.PutObject(ctx, p.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %q: %w", key, err)
	}

	return fmt.Sprintf("minio://%s/%s", p.bucket, key), nil
}

func (p *MinioProvider) Download(ctx context.Context, key string) (Object, error) {
	obj, err := p.client.GetObject(ctx, p.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %q: %w", key, err)
	}

	// GetObject is lazy; Stat forces the first request so an absent key
	// surfaces here instead of on the first Read.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", domain.ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to stat object %q: %w", key, err)
	}

	return &object{
		ReadCloser:    obj,
		contentLength: info.Size,
		contentType:   info.ContentType,
	}, nil
}

func (p *MinioProvider) Delete(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("key is required")
	}

	_, err := p.client.StatObject(ctx, p.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}

	if err := p.client.RemoveObject(ctx, p.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return false, fmt.Errorf("failed to remove object %q: %w", key, err)
	}

	return true, nil
}

func (p *MinioProvider) IsAvailable(ctx context.Context) bool {
	ok, err := p.client.BucketExists(ctx, p.bucket)
	return err == nil && ok
}
