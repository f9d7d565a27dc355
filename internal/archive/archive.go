// Package archive mirrors downloaded result artifacts to an S3-compatible
// bucket. The local artifact stays authoritative; the bucket copy is for
// downstream consumers that cannot reach the output directory.
package archive

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Uploader stores artifacts in a MinIO/S3 bucket.
type Uploader struct {
	client     *minio.Client
	bucketName string
}

// NewUploader creates an Uploader connected to the given endpoint. If the
// bucket does not exist, it will be created automatically.
func NewUploader(ctx context.Context, endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*Uploader, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &Uploader{
		client:     client,
		bucketName: bucketName,
	}, nil
}

// Upload copies the file at path into the bucket under its base name and
// returns the object location.
func (u *Uploader) Upload(ctx context.Context, path string) (string, error) {
	objectName := filepath.Base(path)

	info, err := u.client.FPutObject(ctx, u.bucketName, objectName, path, minio.PutObjectOptions{
		ContentType: "application/zip",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload artifact %s: %w", path, err)
	}

	return fmt.Sprintf("%s/%s", info.Bucket, info.Key), nil
}
