// Package covers stores project cover images in an S3-compatible bucket.
package covers

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds object-storage connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Service wraps a MinIO client scoped to the covers bucket.
type Service struct {
	client *minio.Client
	bucket string
}

// NewService connects to object storage and creates the covers bucket if it
// does not exist.
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &Service{client: client, bucket: cfg.Bucket}, nil
}

func objectName(projectID string) string {
	return "covers/" + projectID
}

// Upload stores a cover image for the project, replacing any previous one,
// and returns the object key.
func (s *Service) Upload(ctx context.Context, projectID string, reader io.Reader, size int64, contentType string) (string, error) {
	key := objectName(projectID)
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload cover for %s: %w", projectID, err)
	}
	return key, nil
}

// PresignedGetURL returns a time-limited download URL for the cover.
func (s *Service) PresignedGetURL(ctx context.Context, projectID string, expiry time.Duration) (string, error) {
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, objectName(projectID), expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign cover for %s: %w", projectID, err)
	}
	return presigned.String(), nil
}

// Delete removes the project's cover image. Missing objects are not an error.
func (s *Service) Delete(ctx context.Context, projectID string) error {
	err := s.client.RemoveObject(ctx, s.bucket, objectName(projectID), minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("delete cover for %s: %w", projectID, err)
	}
	return nil
}
