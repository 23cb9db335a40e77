package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"orbitdrive/internal/domain"
)

// S3Provider talks to one S3-compatible bucket (AWS, Yandex Object Storage
// and friends all speak the same API).
type S3Provider struct {
	id     string
	client *s3.Client
	bucket string
}

// S3Options carries the per-bucket connection settings.
type S3Options struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

// NewS3Provider builds the client without probing the bucket. Reachability is
// checked per call via IsAvailable so a backend that is down at startup can
// still join the failover rotation later.
func NewS3Provider(id string, opts S3Options) (*S3Provider, error) {
	if id == "" {
		return nil, fmt.Errorf("provider id is required")
	}
	if opts.AccessKeyID == "" || opts.SecretAccessKey == "" || opts.Bucket == "" {
		return nil, fmt.Errorf("missing required configuration: accessKeyID, secretAccessKey, and bucket are required")
	}

	creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		opts.AccessKeyID,
		opts.SecretAccessKey,
		"",
	))

	s3Opts := s3.Options{
		Region:           opts.Region,
		Credentials:      creds,
		RetryMode:        aws.RetryModeAdaptive,
		RetryMaxAttempts: 3,
	}
	if opts.Endpoint != "" {
		s3Opts.BaseEndpoint = aws.String(opts.Endpoint)
	}

	return &S3Provider{
		id:     id,
		client: s3.New(s3Opts),
		bucket: opts.Bucket,
	}, nil
}

func (p *S3Provider) ID() string {
	return p.id
}

func (p *S3Provider) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("key is required")
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := p.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload object to S3: %w", err)
	}

	return fmt.Sprintf("s3://%s/%s", p.bucket, key), nil
}

func (p *S3Provider) Download(ctx context.Context, key string) (Object, error) {
	result, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}

	return &object{
		ReadCloser:    result.Body,
		contentLength: aws.ToInt64(result.ContentLength),
		contentType:   aws.ToString(result.ContentType),
	}, nil
}

func (p *S3Provider) Delete(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("key is required")
	}

	// The object may already be gone; report that as a clean no-op.
	_, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}

	_, err = p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete object from S3: %w", err)
	}

	return true, nil
}

func (p *S3Provider) IsAvailable(ctx context.Context) bool {
	_, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(p.bucket),
	})
	return err == nil
}

// isS3NotFound matches the absent-key shapes the S3 API can return: NoSuchKey
// from GetObject, NotFound from HeadObject.
func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	return errors.As(err, &nf)
}
