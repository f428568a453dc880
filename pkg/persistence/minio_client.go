package persistence

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig contains configuration for the MinIO client.
type MinioConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
	BucketName string
	BasePath   string
}

// MinioStorage writes objects to a single MinIO bucket.
type MinioStorage struct {
	client     *minio.Client
	bucketName string
	basePath   string
}

// NewMinioStorage creates a MinIO client and makes sure the bucket exists.
func NewMinioStorage(ctx context.Context, cfg MinioConfig) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	storage := &MinioStorage{
		client:     client,
		bucketName: cfg.BucketName,
		basePath:   cfg.BasePath,
	}
	if err := storage.ensureBucketExists(ctx); err != nil {
		return nil, err
	}
	return storage, nil
}

func (ms *MinioStorage) ensureBucketExists(ctx context.Context) error {
	exists, err := ms.client.BucketExists(ctx, ms.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check if bucket %s exists: %w", ms.bucketName, err)
	}
	if !exists {
		if err := ms.client.MakeBucket(ctx, ms.bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", ms.bucketName, err)
		}
	}
	return nil
}

// Upload stores reader under objectName, below the configured base path.
func (ms *MinioStorage) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	objectName = ObjectPath(ms.basePath, objectName)

	_, err := ms.client.PutObject(ctx, ms.bucketName, objectName, reader, size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", objectName, err)
	}
	return nil
}

// ObjectPath joins basePath and objectName with forward slashes and no
// leading slash.
func ObjectPath(basePath, objectName string) string {
	objectName = strings.TrimPrefix(objectName, "/")
	if basePath == "" {
		return objectName
	}
	return strings.TrimPrefix(path.Join(basePath, objectName), "/")
}
