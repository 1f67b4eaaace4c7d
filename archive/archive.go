// Package archive keeps a copy of each published video in an S3-compatible
// bucket.
package archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"biomedtube/config"
)

// ObjectInfo describes an archived object.
type ObjectInfo struct {
	Bucket string
	Key    string
	Size   int64
	ETag   string
}

// MinIO archives videos through the MinIO client. It is safe for concurrent use.
type MinIO struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinIO creates the archive client and ensures the bucket exists.
func NewMinIO(ctx context.Context, cfg config.ArchiveConfig) (*MinIO, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("archive: endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("archive: credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket is required")
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("archive: create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("archive: check bucket: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("archive: create bucket: %w", err)
		}
	}

	return &MinIO{client: cli, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Key returns the object key for a run's video.
func (m *MinIO) Key(runID, file string) string {
	return path.Join(m.prefix, runID, filepath.Base(file))
}

// Archive uploads the file at p under the run's key with meta as user metadata.
func (m *MinIO) Archive(ctx context.Context, runID, p string, meta map[string]string) (ObjectInfo, error) {
	f, err := os.Open(p)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("archive: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("archive: %w", err)
	}

	key := m.Key(runID, p)
	info, err := m.client.PutObject(ctx, m.bucket, key, f, st.Size(), minio.PutObjectOptions{
		ContentType:  "video/mp4",
		UserMetadata: meta,
	})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("archive: put %s: %w", key, err)
	}
	return ObjectInfo{Bucket: m.bucket, Key: key, Size: info.Size, ETag: info.ETag}, nil
}
