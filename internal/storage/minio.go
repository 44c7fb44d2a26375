package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/facecheck/internal/config"
)

// MinIOStore keeps enrollment snapshots, one JPEG per accepted capture.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

func NewMinIOStore(cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIOStore{client: client, bucket: cfg.Bucket}, nil
}

// SnapshotPrefix is the object prefix holding an employee's snapshots.
func SnapshotPrefix(employeeKey string) string {
	return "enrollments/" + employeeKey + "/"
}

// SnapshotKey names the n-th (1-based) enrollment snapshot of an employee.
func SnapshotKey(employeeKey string, n int) string {
	return fmt.Sprintf("%s%d.jpg", SnapshotPrefix(employeeKey), n)
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// PutSnapshots uploads JPEG snapshots as 1.jpg, 2.jpg, ... under the
// employee's prefix and returns the keys written.
func (s *MinIOStore) PutSnapshots(ctx context.Context, employeeKey string, jpegs [][]byte) ([]string, error) {
	keys := make([]string, 0, len(jpegs))
	for i, data := range jpegs {
		key := SnapshotKey(employeeKey, i+1)
		_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: "image/jpeg"})
		if err != nil {
			return keys, fmt.Errorf("put object %s: %w", key, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// ListSnapshots returns the snapshot keys stored for an employee.
func (s *MinIOStore) ListSnapshots(ctx context.Context, employeeKey string) ([]string, error) {
	prefix := SnapshotPrefix(employeeKey)
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects %s: %w", prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// DeleteSnapshots removes every snapshot of an employee in one batch request.
func (s *MinIOStore) DeleteSnapshots(ctx context.Context, employeeKey string) error {
	keys, err := s.ListSnapshots(ctx, employeeKey)
	if err != nil {
		return err
	}
	objectsCh := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objectsCh <- minio.ObjectInfo{Key: key}
	}
	close(objectsCh)
	for result := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			return fmt.Errorf("delete object %s: %w", result.ObjectName, result.Err)
		}
	}
	return nil
}

// Ping checks MinIO connectivity.
func (s *MinIOStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
