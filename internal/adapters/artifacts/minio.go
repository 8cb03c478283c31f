package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/target/cashier/internal/core"
)

// MinioOptions configures an S3-compatible artifact bucket.
type MinioOptions struct {
	Endpoint  string // Required: host[:port]
	AccessKey string // Required
	SecretKey string // Required
	Bucket    string // Required
	Region    string // Optional
	Secure    bool   // Optional: use HTTPS
	Logger    *slog.Logger
}

// MinioStore uploads artifacts to a bucket and returns "s3://bucket/key" references.
type MinioStore struct {
	client *minio.Client
	bucket string
	region string
	logger *slog.Logger
}

var _ core.ArtifactStore = (*MinioStore)(nil)

// NewMinioStore builds the client. It does not contact the server; call EnsureBucket for that.
func NewMinioStore(opts MinioOptions) (*MinioStore, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("minio endpoint is required")
	}
	if opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, errors.New("minio access key and secret key are required")
	}
	if opts.Bucket == "" {
		return nil, errors.New("minio bucket is required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MinioStore{
		client: client,
		bucket: opts.Bucket,
		region: opts.Region,
		logger: logger.With("component", "artifact_store"),
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	if err != nil {
		exists, errBucketExists := s.client.BucketExists(ctx, s.bucket)
		if errBucketExists == nil && exists {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	s.logger.InfoContext(ctx, "created artifact bucket", "bucket", s.bucket)
	return nil
}

// Put uploads data under key.
func (s *MinioStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = s.client.PutObject(ctx, s.bucket, clean, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("upload artifact: %w", err)
	}
	return Ref(s.bucket, clean), nil
}

// Ref formats the reference returned for an uploaded object.
func Ref(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}
